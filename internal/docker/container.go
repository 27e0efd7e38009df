// container.go implements container lifecycle operations: create, start,
// stop, restart, remove, inspect, logs and label-based listing.
//
// CreateContainer translates a ContainerSpec, dockstack's SDK-neutral
// description of one replica, into the Engine API's Config, HostConfig and
// NetworkingConfig.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/mmr-tortoise/dockstack/internal/model"
	"github.com/mmr-tortoise/dockstack/internal/service"
)

// ContainerSpec is everything needed to create one replica. Resource
// values are already converted to the daemon's units and volume sources
// already carry their stack-scoped names.
type ContainerSpec struct {
	Name       string
	Image      string
	Command    []string
	Entrypoint []string
	Env        []string
	WorkingDir string
	Hostname   string
	User       string
	Labels     map[string]string
	Ports      []service.Port
	Mounts     []service.Volume

	// Memory and MemoryReservation are in bytes; NanoCPUs in 1e-9 CPUs.
	Memory            int64
	MemoryReservation int64
	NanoCPUs          int64
	CPUShares         int64
	CPUQuota          int64
	CPUPeriod         int64

	Restart *service.RestartPolicy
	Health  *service.HealthCheck

	// Network is joined at creation with Aliases. ExtraNetworks are
	// connected right after, with the same aliases.
	Network       string
	Aliases       []string
	ExtraNetworks []string
}

// LogsOptions selects which log lines to fetch.
type LogsOptions struct {
	// Tail limits output to the last N lines. Zero or negative means all.
	Tail int

	// Timestamps prefixes each line with its RFC3339Nano timestamp.
	Timestamps bool
}

// CreateContainer creates (but does not start) a container and returns its
// ID. If joining an extra network fails, the created container is left in
// place and its ID is returned alongside the error so the caller can track
// and later remove it.
func (c *Client) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	cfg, hostCfg, netCfg := translateSpec(spec)

	resp, err := c.inner.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return "", translateError(fmt.Sprintf("failed to create container %q", spec.Name), err)
	}

	for _, extra := range spec.ExtraNetworks {
		settings := &network.EndpointSettings{Aliases: spec.Aliases}
		if err := c.inner.NetworkConnect(ctx, extra, resp.ID, settings); err != nil {
			return resp.ID, translateError(fmt.Sprintf("failed to connect container %q to network %q", spec.Name, extra), err)
		}
	}
	return resp.ID, nil
}

// translateSpec builds the SDK request types from a ContainerSpec.
func translateSpec(spec ContainerSpec) (*container.Config, *container.HostConfig, *network.NetworkingConfig) {
	exposed, bindings := translatePorts(spec.Ports)

	cfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		Entrypoint:   spec.Entrypoint,
		Env:          spec.Env,
		WorkingDir:   spec.WorkingDir,
		Hostname:     spec.Hostname,
		User:         spec.User,
		Labels:       spec.Labels,
		ExposedPorts: exposed,
	}
	if h := spec.Health; h != nil {
		cfg.Healthcheck = &container.HealthConfig{
			Test:        h.Test,
			Interval:    h.Interval,
			Timeout:     h.Timeout,
			StartPeriod: h.StartPeriod,
			Retries:     h.Retries,
		}
	}

	hostCfg := &container.HostConfig{
		PortBindings: bindings,
		Mounts:       translateMounts(spec.Mounts),
		Resources: container.Resources{
			Memory:            spec.Memory,
			MemoryReservation: spec.MemoryReservation,
			NanoCPUs:          spec.NanoCPUs,
			CPUShares:         spec.CPUShares,
			CPUQuota:          spec.CPUQuota,
			CPUPeriod:         spec.CPUPeriod,
		},
	}
	if r := spec.Restart; r != nil {
		hostCfg.RestartPolicy = translateRestartPolicy(*r)
	}

	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(spec.Network)
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {Aliases: spec.Aliases},
			},
		}
	}
	return cfg, hostCfg, netCfg
}

// translatePorts converts ports to the exposed set and host bindings.
// Ports without a host side are exposed only; a host IP alone binds an
// ephemeral host port on that address. Port numbers are passed through
// as given and range checks are left to the daemon.
func translatePorts(ports []service.Port) (nat.PortSet, nat.PortMap) {
	if len(ports) == 0 {
		return nil, nil
	}
	exposed := make(nat.PortSet, len(ports))
	bindings := make(nat.PortMap)
	for _, p := range ports {
		port := nat.Port(strconv.Itoa(p.ContainerPort) + "/" + p.Proto())
		exposed[port] = struct{}{}
		if p.HostPort > 0 || p.HostIP != "" {
			binding := nat.PortBinding{HostIP: p.HostIP}
			if p.HostPort > 0 {
				binding.HostPort = strconv.Itoa(p.HostPort)
			}
			bindings[port] = append(bindings[port], binding)
		}
	}
	return exposed, bindings
}

func translateMounts(vols []service.Volume) []mount.Mount {
	if len(vols) == 0 {
		return nil
	}
	mounts := make([]mount.Mount, 0, len(vols))
	for _, v := range vols {
		typ := mount.TypeVolume
		if v.Kind == service.VolumeBind {
			typ = mount.TypeBind
		}
		mounts = append(mounts, mount.Mount{
			Type:     typ,
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}
	return mounts
}

func translateRestartPolicy(r service.RestartPolicy) container.RestartPolicy {
	switch r.Name {
	case service.RestartAlways:
		return container.RestartPolicy{Name: container.RestartPolicyAlways}
	case service.RestartUnlessStopped:
		return container.RestartPolicy{Name: container.RestartPolicyUnlessStopped}
	case service.RestartOnFailure:
		return container.RestartPolicy{Name: container.RestartPolicyOnFailure, MaximumRetryCount: r.MaxRetries}
	default:
		return container.RestartPolicy{Name: container.RestartPolicyDisabled}
	}
}

// StartContainer starts a created or stopped container.
func (c *Client) StartContainer(ctx context.Context, id string) error {
	if err := c.inner.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return translateError(fmt.Sprintf("failed to start container %s", shortID(id)), err)
	}
	return nil
}

// StopContainer stops a running container, waiting up to timeout for a
// graceful exit before the daemon kills it. A negative timeout uses the
// container's own stop timeout.
func (c *Client) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	if err := c.inner.ContainerStop(ctx, id, stopOptions(timeout)); err != nil {
		return translateError(fmt.Sprintf("failed to stop container %s", shortID(id)), err)
	}
	return nil
}

// RestartContainer restarts a container in place, keeping its ID.
func (c *Client) RestartContainer(ctx context.Context, id string, timeout time.Duration) error {
	if err := c.inner.ContainerRestart(ctx, id, stopOptions(timeout)); err != nil {
		return translateError(fmt.Sprintf("failed to restart container %s", shortID(id)), err)
	}
	return nil
}

// RemoveContainer removes a container. With force, a running container is
// killed first; with volumes, its anonymous volumes are removed too.
func (c *Client) RemoveContainer(ctx context.Context, id string, force, volumes bool) error {
	err := c.inner.ContainerRemove(ctx, id, container.RemoveOptions{
		Force:         force,
		RemoveVolumes: volumes,
	})
	if err != nil {
		return translateError(fmt.Sprintf("failed to remove container %s", shortID(id)), err)
	}
	return nil
}

// InspectContainer returns the current state and health of a container.
func (c *Client) InspectContainer(ctx context.Context, id string) (model.ContainerState, error) {
	resp, err := c.inner.ContainerInspect(ctx, id)
	if err != nil {
		return model.ContainerState{}, translateError(fmt.Sprintf("failed to inspect container %s", shortID(id)), err)
	}

	state := model.ContainerState{ID: resp.ID, Status: model.ContainerUnknown, Health: model.HealthNone}
	if s := resp.State; s != nil {
		state.Running = s.Running
		state.Status = model.ContainerStatusFromState(string(s.Status))
		state.ExitCode = s.ExitCode
		if s.Health != nil {
			state.Health = model.HealthStatusFromState(string(s.Health.Status))
		}
	}
	if resp.Config != nil {
		if ref, err := ParseLabels(resp.Config.Labels); err == nil {
			state.ReplicaIndex = ref.Index
		}
	}
	return state, nil
}

// ContainerLogs returns the stdout and stderr of a container as text.
// The daemon multiplexes both streams for non-TTY containers; they are
// demultiplexed into one buffer in arrival order.
func (c *Client) ContainerLogs(ctx context.Context, id string, opts LogsOptions) (string, error) {
	tail := "all"
	if opts.Tail > 0 {
		tail = strconv.Itoa(opts.Tail)
	}
	rc, err := c.inner.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: opts.Timestamps,
		Tail:       tail,
	})
	if err != nil {
		return "", translateError(fmt.Sprintf("failed to fetch logs of container %s", shortID(id)), err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return "", model.WrapError(model.KindDaemon, fmt.Sprintf("failed to read logs of container %s", shortID(id)), err)
	}
	return buf.String(), nil
}

// ListStackContainers returns every container of a stack, stopped ones
// included, sorted by service then replica index. Containers whose labels
// cannot be parsed are skipped.
func (c *Client) ListStackContainers(ctx context.Context, stack string) ([]model.ContainerInfo, error) {
	containers, err := c.inner.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: StackFilter(stack),
	})
	if err != nil {
		return nil, translateError(fmt.Sprintf("failed to list containers of stack %q", stack), err)
	}

	result := make([]model.ContainerInfo, 0, len(containers))
	for _, ctr := range containers {
		name := ""
		if len(ctr.Names) > 0 {
			name = ctr.Names[0]
		}
		info, err := ContainerInfoFromLabels(ctr.ID, name, string(ctr.State), ctr.Labels)
		if err != nil {
			continue
		}
		result = append(result, info)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].ServiceName != result[j].ServiceName {
			return result[i].ServiceName < result[j].ServiceName
		}
		return result[i].ReplicaIndex < result[j].ReplicaIndex
	})
	return result, nil
}

func stopOptions(timeout time.Duration) container.StopOptions {
	if timeout < 0 {
		return container.StopOptions{}
	}
	secs := int(timeout.Round(time.Second) / time.Second)
	return container.StopOptions{Timeout: &secs}
}

// shortID truncates a container ID to the 12 characters docker prints.
func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
