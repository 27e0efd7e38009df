package docker

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/distribution/reference"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/mmr-tortoise/dockstack/internal/model"
)

// ImageInfo is the subset of an image inspect response dockstack reports.
type ImageInfo struct {
	ID       string   `json:"id"`
	RepoTags []string `json:"repo_tags"`
	Size     int64    `json:"size"`
}

// BuildRequest describes an image build from a local context directory.
type BuildRequest struct {
	ContextDir string
	Dockerfile string
	Args       map[string]string
	Target     string
	CacheFrom  []string
	Tags       []string
}

// NormalizeReference validates an image reference and returns it in its
// fully qualified form ("busybox" becomes "docker.io/library/busybox:latest").
func NormalizeReference(ref string) (string, error) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", model.WrapError(model.KindValidation, fmt.Sprintf("invalid image reference %q", ref), err)
	}
	return reference.TagNameOnly(named).String(), nil
}

// PullImage pulls an image. Credentials are validated before any request
// is sent. Progress goes to the client's progress output; an error
// message embedded in the progress stream is returned as a daemon error.
func (c *Client) PullImage(ctx context.Context, ref string, auth RegistryAuth) error {
	encoded, err := auth.encode()
	if err != nil {
		return err
	}
	normalized, err := NormalizeReference(ref)
	if err != nil {
		return err
	}

	rc, err := c.inner.ImagePull(ctx, normalized, image.PullOptions{RegistryAuth: encoded})
	if err != nil {
		return translateError(fmt.Sprintf("failed to pull image %q", ref), err)
	}
	defer rc.Close()

	return c.drainProgress(rc, fmt.Sprintf("failed to pull image %q", ref))
}

// PushImage pushes an image. The registry requires credentials for most
// pushes; an empty RegistryAuth is still sent as a placeholder header.
func (c *Client) PushImage(ctx context.Context, ref string, auth RegistryAuth) error {
	encoded, err := auth.encode()
	if err != nil {
		return err
	}
	normalized, err := NormalizeReference(ref)
	if err != nil {
		return err
	}
	if encoded == "" {
		// The daemon rejects push requests without the header.
		encoded = "e30=" // base64("{}")
	}

	rc, err := c.inner.ImagePush(ctx, normalized, image.PushOptions{RegistryAuth: encoded})
	if err != nil {
		return translateError(fmt.Sprintf("failed to push image %q", ref), err)
	}
	defer rc.Close()

	return c.drainProgress(rc, fmt.Sprintf("failed to push image %q", ref))
}

// BuildImage tars the context directory and builds it. Intermediate
// containers are removed.
func (c *Client) BuildImage(ctx context.Context, req BuildRequest) error {
	if fi, err := os.Stat(req.ContextDir); err != nil || !fi.IsDir() {
		return model.Errorf(model.KindIO, "build context %q is not a directory", req.ContextDir)
	}
	buildCtx, err := archive.TarWithOptions(req.ContextDir, &archive.TarOptions{})
	if err != nil {
		return model.WrapError(model.KindIO, fmt.Sprintf("failed to archive build context %q", req.ContextDir), err)
	}
	defer buildCtx.Close()

	args := make(map[string]*string, len(req.Args))
	for k, v := range req.Args {
		v := v
		args[k] = &v
	}

	resp, err := c.inner.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:       req.Tags,
		Dockerfile: req.Dockerfile,
		BuildArgs:  args,
		Target:     req.Target,
		CacheFrom:  req.CacheFrom,
		Remove:     true,
	})
	if err != nil {
		return translateError(fmt.Sprintf("failed to build image from %q", req.ContextDir), err)
	}
	defer resp.Body.Close()

	return c.drainProgress(resp.Body, fmt.Sprintf("failed to build image from %q", req.ContextDir))
}

// InspectImage returns basic metadata of a local image.
func (c *Client) InspectImage(ctx context.Context, ref string) (ImageInfo, error) {
	resp, err := c.inner.ImageInspect(ctx, ref)
	if err != nil {
		return ImageInfo{}, translateError(fmt.Sprintf("failed to inspect image %q", ref), err)
	}
	return ImageInfo{ID: resp.ID, RepoTags: resp.RepoTags, Size: resp.Size}, nil
}

// RemoveImage removes a local image.
func (c *Client) RemoveImage(ctx context.Context, ref string, force bool) error {
	if _, err := c.inner.ImageRemove(ctx, ref, image.RemoveOptions{Force: force, PruneChildren: true}); err != nil {
		return translateError(fmt.Sprintf("failed to remove image %q", ref), err)
	}
	return nil
}

// ListImages lists local images.
func (c *Client) ListImages(ctx context.Context, all bool) ([]ImageInfo, error) {
	images, err := c.inner.ImageList(ctx, image.ListOptions{All: all})
	if err != nil {
		return nil, translateError("failed to list images", err)
	}
	result := make([]ImageInfo, 0, len(images))
	for _, img := range images {
		result = append(result, ImageInfo{ID: img.ID, RepoTags: img.RepoTags, Size: img.Size})
	}
	return result, nil
}

// drainProgress reads a JSON progress stream to the end, writing it to the
// progress output, and surfaces any error message the daemon embedded.
func (c *Client) drainProgress(r io.Reader, msg string) error {
	out := c.logOut
	if out == nil {
		out = io.Discard
	}
	if err := jsonmessage.DisplayJSONMessagesStream(r, out, 0, false, nil); err != nil {
		return model.WrapError(model.KindDaemon, msg, err)
	}
	return nil
}
