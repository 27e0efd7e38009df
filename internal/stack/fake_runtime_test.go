package stack

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmr-tortoise/dockstack/internal/docker"
	"github.com/mmr-tortoise/dockstack/internal/model"
)

// fakeContainer is one container held by fakeRuntime.
type fakeContainer struct {
	spec    docker.ContainerSpec
	running bool
}

// fakeRuntime is an in-memory daemon. It records every call as "op:arg"
// in call order and is safe for concurrent use.
type fakeRuntime struct {
	mu    sync.Mutex
	calls []string

	nextID     int
	containers map[string]*fakeContainer
	networks   map[string]map[string]string
	volumes    map[string]map[string]string
	images     map[string]bool

	// Failures keyed by service name.
	failCreate map[string]error
	failStart  map[string]error
	// Failures keyed by container ID.
	failInspect map[string]error
	failRemove  map[string]error
	// Failures keyed by network name.
	failNetwork map[string]error
	// networkBusy counts how many more removals of a network fail with a
	// conflict before one succeeds.
	networkBusy map[string]int

	health map[string]model.HealthStatus
	logs   map[string]string
}

var _ Runtime = (*fakeRuntime)(nil)

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		containers:  make(map[string]*fakeContainer),
		networks:    make(map[string]map[string]string),
		volumes:     make(map[string]map[string]string),
		images:      make(map[string]bool),
		failCreate:  make(map[string]error),
		failStart:   make(map[string]error),
		failInspect: make(map[string]error),
		failRemove:  make(map[string]error),
		failNetwork: make(map[string]error),
		networkBusy: make(map[string]int),
		health:      make(map[string]model.HealthStatus),
		logs:        make(map[string]string),
	}
}

func (f *fakeRuntime) record(op, arg string) {
	f.calls = append(f.calls, op+":"+arg)
}

func notFound(what string) error {
	return model.Errorf(model.KindNotFound, "no such %s", what)
}

func (f *fakeRuntime) CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create", spec.Name)

	if err := f.failCreate[spec.Labels[docker.LabelService]]; err != nil {
		return "", err
	}
	for _, c := range f.containers {
		if c.spec.Name == spec.Name {
			return "", model.Errorf(model.KindConflict, "container name %q in use", spec.Name)
		}
	}
	f.nextID++
	id := fmt.Sprintf("ctr%03d", f.nextID)
	f.containers[id] = &fakeContainer{spec: spec}
	return id, nil
}

func (f *fakeRuntime) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return notFound("container")
	}
	f.record("start", c.spec.Name)
	if err := f.failStart[c.spec.Labels[docker.LabelService]]; err != nil {
		return err
	}
	c.running = true
	return nil
}

func (f *fakeRuntime) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return notFound("container")
	}
	f.record("stop", c.spec.Name)
	c.running = false
	return nil
}

func (f *fakeRuntime) RestartContainer(ctx context.Context, id string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return notFound("container")
	}
	f.record("restart", c.spec.Name)
	c.running = true
	return nil
}

func (f *fakeRuntime) RemoveContainer(ctx context.Context, id string, force, volumes bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return notFound("container")
	}
	if err := f.failRemove[id]; err != nil {
		return err
	}
	f.record("remove", c.spec.Name)
	delete(f.containers, id)
	return nil
}

func (f *fakeRuntime) InspectContainer(ctx context.Context, id string) (model.ContainerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failInspect[id]; err != nil {
		return model.ContainerState{}, err
	}
	c, ok := f.containers[id]
	if !ok {
		return model.ContainerState{}, notFound("container")
	}
	state := model.ContainerState{ID: id, Running: c.running, Status: model.ContainerCreated, Health: model.HealthNone}
	if c.running {
		state.Status = model.ContainerRunning
	}
	if h, ok := f.health[c.spec.Labels[docker.LabelService]]; ok {
		state.Health = h
	}
	return state, nil
}

func (f *fakeRuntime) ContainerLogs(ctx context.Context, id string, opts docker.LogsOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return "", notFound("container")
	}
	f.record("logs", c.spec.Name)
	return f.logs[c.spec.Name], nil
}

func (f *fakeRuntime) ListStackContainers(ctx context.Context, stack string) ([]model.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []model.ContainerInfo
	for id, c := range f.containers {
		if c.spec.Labels[docker.LabelProject] != stack {
			continue
		}
		state := "created"
		if c.running {
			state = "running"
		}
		info, err := docker.ContainerInfoFromLabels(id, "/"+c.spec.Name, state, c.spec.Labels)
		if err != nil {
			continue
		}
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ContainerName < result[j].ContainerName })
	return result, nil
}

func (f *fakeRuntime) InspectImage(ctx context.Context, ref string) (docker.ImageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.images[ref] {
		return docker.ImageInfo{}, notFound("image")
	}
	return docker.ImageInfo{ID: "sha256:" + ref, RepoTags: []string{ref}}, nil
}

func (f *fakeRuntime) PullImage(ctx context.Context, ref string, auth docker.RegistryAuth) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pull", ref)
	f.images[ref] = true
	return nil
}

func (f *fakeRuntime) BuildImage(ctx context.Context, req docker.BuildRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("build", strings.Join(req.Tags, ","))
	for _, t := range req.Tags {
		f.images[t] = true
	}
	return nil
}

func (f *fakeRuntime) EnsureNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("network", name)
	if err := f.failNetwork[name]; err != nil {
		return "", err
	}
	if _, ok := f.networks[name]; !ok {
		f.networks[name] = labels
	}
	return "net-" + name, nil
}

func (f *fakeRuntime) ListStackNetworks(ctx context.Context, stack string) ([]docker.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []docker.NetworkInfo
	for name, labels := range f.networks {
		if labels[docker.LabelProject] == stack {
			result = append(result, docker.NetworkInfo{ID: "net-" + name, Name: name, Labels: labels})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (f *fakeRuntime) RemoveNetwork(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.networks[id]; !ok {
		return notFound("network")
	}
	if f.networkBusy[id] > 0 {
		f.networkBusy[id]--
		return model.Errorf(model.KindConflict, "network %s has active endpoints", id)
	}
	f.record("rmnetwork", id)
	delete(f.networks, id)
	return nil
}

func (f *fakeRuntime) EnsureVolume(ctx context.Context, name string, labels map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("volume", name)
	if _, ok := f.volumes[name]; !ok {
		f.volumes[name] = labels
	}
	return name, nil
}

func (f *fakeRuntime) ListStackVolumes(ctx context.Context, stack string) ([]docker.VolumeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []docker.VolumeInfo
	for name, labels := range f.volumes {
		if labels[docker.LabelProject] == stack {
			result = append(result, docker.VolumeInfo{Name: name, Driver: "local", Labels: labels})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (f *fakeRuntime) RemoveVolume(ctx context.Context, name string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[name]; !ok {
		return notFound("volume")
	}
	f.record("rmvolume", name)
	delete(f.volumes, name)
	return nil
}

// callIndex returns the position of the first call equal to call, or -1.
func (f *fakeRuntime) callIndex(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.calls {
		if c == call {
			return i
		}
	}
	return -1
}

// callsWithPrefix returns the recorded calls of one operation, in order.
func (f *fakeRuntime) callsWithPrefix(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, op+":") {
			result = append(result, strings.TrimPrefix(c, op+":"))
		}
	}
	return result
}

// idOf returns the ID of the container with the given name, or "".
func (f *fakeRuntime) idOf(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.containers {
		if c.spec.Name == name {
			return id
		}
	}
	return ""
}

func (f *fakeRuntime) specOf(name string) (docker.ContainerSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.containers {
		if c.spec.Name == name {
			return c.spec, true
		}
	}
	return docker.ContainerSpec{}, false
}

func (f *fakeRuntime) containerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.containers)
}

// deleteContainer removes a container behind the stack's back.
func (f *fakeRuntime) deleteContainer(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
}
