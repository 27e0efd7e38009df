package docker

import (
	"context"
	"fmt"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/volume"
)

// VolumeInfo is the subset of a volume inspect response dockstack reports.
type VolumeInfo struct {
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Mountpoint string            `json:"mountpoint"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// CreateVolume creates a named volume. Creating a volume that already
// exists is not an error for the daemon; the existing volume is returned.
func (c *Client) CreateVolume(ctx context.Context, name, driver string, labels map[string]string) (VolumeInfo, error) {
	v, err := c.inner.VolumeCreate(ctx, volume.CreateOptions{Name: name, Driver: driver, Labels: labels})
	if err != nil {
		return VolumeInfo{}, translateError(fmt.Sprintf("failed to create volume %q", name), err)
	}
	return toVolumeInfo(v), nil
}

// EnsureVolume creates the named volume with the given labels unless it
// already exists, and returns its name.
func (c *Client) EnsureVolume(ctx context.Context, name string, labels map[string]string) (string, error) {
	_, err := c.inner.VolumeInspect(ctx, name)
	if err == nil {
		return name, nil
	}
	if !cerrdefs.IsNotFound(err) {
		return "", translateError(fmt.Sprintf("failed to inspect volume %q", name), err)
	}
	v, err := c.CreateVolume(ctx, name, "", labels)
	if err != nil {
		return "", err
	}
	return v.Name, nil
}

// InspectVolume returns metadata of a volume.
func (c *Client) InspectVolume(ctx context.Context, name string) (VolumeInfo, error) {
	v, err := c.inner.VolumeInspect(ctx, name)
	if err != nil {
		return VolumeInfo{}, translateError(fmt.Sprintf("failed to inspect volume %q", name), err)
	}
	return toVolumeInfo(v), nil
}

// ListStackVolumes returns the volumes labeled with the stack name.
func (c *Client) ListStackVolumes(ctx context.Context, stack string) ([]VolumeInfo, error) {
	resp, err := c.inner.VolumeList(ctx, volume.ListOptions{Filters: StackFilter(stack)})
	if err != nil {
		return nil, translateError(fmt.Sprintf("failed to list volumes of stack %q", stack), err)
	}
	result := make([]VolumeInfo, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		if v != nil {
			result = append(result, toVolumeInfo(*v))
		}
	}
	return result, nil
}

// RemoveVolume removes a volume. With force, the daemon removes it even
// if it is in use by a stopped container.
func (c *Client) RemoveVolume(ctx context.Context, name string, force bool) error {
	if err := c.inner.VolumeRemove(ctx, name, force); err != nil {
		return translateError(fmt.Sprintf("failed to remove volume %q", name), err)
	}
	return nil
}

func toVolumeInfo(v volume.Volume) VolumeInfo {
	return VolumeInfo{Name: v.Name, Driver: v.Driver, Mountpoint: v.Mountpoint, Labels: v.Labels}
}

// nameFilter matches resources by name. The daemon matches substrings.
func nameFilter(name string) filters.Args {
	return filters.NewArgs(filters.Arg("name", name))
}
