package docker

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// createCall records the arguments of one ContainerCreate call.
type createCall struct {
	Config     *container.Config
	HostConfig *container.HostConfig
	NetConfig  *network.NetworkingConfig
	Name       string
}

// fakeAPI is an in-memory API. Each method records its call and returns
// the canned response or error configured on the struct.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	pingErr error

	createResp  container.CreateResponse
	createErr   error
	createCalls []createCall
	startErr    error
	stopOpts    []container.StopOptions
	stopErr     error
	restartErr  error
	removeOpts  []container.RemoveOptions
	removeErr   error
	inspectResp container.InspectResponse
	inspectErr  error
	listResp    []container.Summary
	listOpts    []container.ListOptions
	listErr     error
	logsBody    []byte
	logsOpts    []container.LogsOptions
	logsErr     error

	pullOpts    []image.PullOptions
	pullRefs    []string
	pullBody    string
	pullErr     error
	pushOpts    []image.PushOptions
	buildOpts   []build.ImageBuildOptions
	buildBody   string
	imageInfo   image.InspectResponse
	imageErr    error
	imagesResp  []image.Summary
	imageRmOpts []image.RemoveOptions

	networkCreateResp  network.CreateResponse
	networkCreateOpts  []network.CreateOptions
	networkCreateNames []string
	networkList        []network.Summary
	networkListErr     error
	networkInspect     network.Inspect
	networkConnects    []string
	networkConnectErr  error
	networkRemoveErr   error

	volumeInspectErr error
	volumeCreateOpts []volume.CreateOptions
	volumeList       volume.ListResponse
	volumeRemoveErr  error
}

var _ API = (*fakeAPI)(nil)

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeAPI) Ping(ctx context.Context) (types.Ping, error) {
	f.record("Ping")
	return types.Ping{}, f.pingErr
}

func (f *fakeAPI) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.record("ContainerCreate")
	f.createCalls = append(f.createCalls, createCall{config, hostConfig, networkingConfig, containerName})
	return f.createResp, f.createErr
}

func (f *fakeAPI) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	f.record("ContainerStart")
	return f.startErr
}

func (f *fakeAPI) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	f.record("ContainerStop")
	f.stopOpts = append(f.stopOpts, options)
	return f.stopErr
}

func (f *fakeAPI) ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error {
	f.record("ContainerRestart")
	f.stopOpts = append(f.stopOpts, options)
	return f.restartErr
}

func (f *fakeAPI) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.record("ContainerRemove")
	f.removeOpts = append(f.removeOpts, options)
	return f.removeErr
}

func (f *fakeAPI) ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error) {
	f.record("ContainerInspect")
	return f.inspectResp, f.inspectErr
}

func (f *fakeAPI) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	f.record("ContainerList")
	f.listOpts = append(f.listOpts, options)
	return f.listResp, f.listErr
}

func (f *fakeAPI) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	f.record("ContainerLogs")
	f.logsOpts = append(f.logsOpts, options)
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return io.NopCloser(bytes.NewReader(f.logsBody)), nil
}

func (f *fakeAPI) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	f.record("ImagePull")
	f.pullRefs = append(f.pullRefs, refStr)
	f.pullOpts = append(f.pullOpts, options)
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return io.NopCloser(bytes.NewBufferString(f.pullBody)), nil
}

func (f *fakeAPI) ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error) {
	f.record("ImagePush")
	f.pushOpts = append(f.pushOpts, options)
	return io.NopCloser(bytes.NewBufferString(f.pullBody)), nil
}

func (f *fakeAPI) ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error) {
	f.record("ImageBuild")
	f.buildOpts = append(f.buildOpts, options)
	_, _ = io.Copy(io.Discard, buildContext)
	return build.ImageBuildResponse{Body: io.NopCloser(bytes.NewBufferString(f.buildBody))}, nil
}

func (f *fakeAPI) ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error) {
	f.record("ImageInspect")
	return f.imageInfo, f.imageErr
}

func (f *fakeAPI) ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error) {
	f.record("ImageRemove")
	f.imageRmOpts = append(f.imageRmOpts, options)
	return nil, f.imageErr
}

func (f *fakeAPI) ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error) {
	f.record("ImageList")
	return f.imagesResp, nil
}

func (f *fakeAPI) NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error) {
	f.record("NetworkCreate")
	f.networkCreateNames = append(f.networkCreateNames, name)
	f.networkCreateOpts = append(f.networkCreateOpts, options)
	return f.networkCreateResp, nil
}

func (f *fakeAPI) NetworkInspect(ctx context.Context, networkID string, options network.InspectOptions) (network.Inspect, error) {
	f.record("NetworkInspect")
	return f.networkInspect, nil
}

func (f *fakeAPI) NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error) {
	f.record("NetworkList")
	return f.networkList, f.networkListErr
}

func (f *fakeAPI) NetworkRemove(ctx context.Context, networkID string) error {
	f.record("NetworkRemove")
	return f.networkRemoveErr
}

func (f *fakeAPI) NetworkConnect(ctx context.Context, networkID, containerID string, config *network.EndpointSettings) error {
	f.record("NetworkConnect")
	f.networkConnects = append(f.networkConnects, networkID)
	return f.networkConnectErr
}

func (f *fakeAPI) NetworkDisconnect(ctx context.Context, networkID, containerID string, force bool) error {
	f.record("NetworkDisconnect")
	return nil
}

func (f *fakeAPI) VolumeCreate(ctx context.Context, options volume.CreateOptions) (volume.Volume, error) {
	f.record("VolumeCreate")
	f.volumeCreateOpts = append(f.volumeCreateOpts, options)
	return volume.Volume{Name: options.Name, Driver: "local", Labels: options.Labels}, nil
}

func (f *fakeAPI) VolumeInspect(ctx context.Context, volumeID string) (volume.Volume, error) {
	f.record("VolumeInspect")
	if f.volumeInspectErr != nil {
		return volume.Volume{}, f.volumeInspectErr
	}
	return volume.Volume{Name: volumeID, Driver: "local"}, nil
}

func (f *fakeAPI) VolumeList(ctx context.Context, options volume.ListOptions) (volume.ListResponse, error) {
	f.record("VolumeList")
	return f.volumeList, nil
}

func (f *fakeAPI) VolumeRemove(ctx context.Context, volumeID string, force bool) error {
	f.record("VolumeRemove")
	return f.volumeRemoveErr
}

func (f *fakeAPI) Close() error {
	f.record("Close")
	return nil
}

// callsOf returns how many times the named method was called.
func (f *fakeAPI) callsOf(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}
