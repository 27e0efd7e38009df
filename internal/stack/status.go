package stack

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/mmr-tortoise/dockstack/internal/docker"
	"github.com/mmr-tortoise/dockstack/internal/model"
)

// Status inspects every tracked container and returns a fresh snapshot.
// Nothing is cached between calls. A container the daemon cannot inspect
// is reported with status unknown and the inspect error.
//
// The overall status is not_deployed when nothing is tracked, running when
// every container runs and none is unhealthy, and degraded otherwise.
func (s *Stack) Status(ctx context.Context) (*model.StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &model.StatusReport{
		Stack:    s.name,
		Status:   model.OverallNotDeployed,
		Services: make(map[string]model.ServiceStatus),
	}

	names := append([]string(nil), s.order...)
	for _, name := range s.trackedServices() {
		if _, registered := s.services[name]; !registered {
			names = append(names, name)
		}
	}

	degraded := false
	for _, name := range names {
		svc := model.ServiceStatus{Containers: []model.ContainerState{}}
		if def, ok := s.services[name]; ok {
			svc.Replicas = def.Replicas
		} else {
			svc.Replicas = len(s.tracked[name])
		}

		for _, ref := range s.tracked[name] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			state, err := s.rt.InspectContainer(ctx, ref.ID)
			if err != nil {
				state = model.ContainerState{
					ID:     ref.ID,
					Status: model.ContainerUnknown,
					Health: model.HealthNone,
					Error:  err.Error(),
				}
			}
			state.ID = ref.ID
			state.ReplicaIndex = ref.Index
			ref.Status = state.Status
			ref.Health = state.Health

			if state.Status == model.ContainerRunning {
				svc.Running++
			} else {
				degraded = true
			}
			switch state.Health {
			case model.HealthHealthy:
				svc.Healthy++
			case model.HealthUnhealthy:
				svc.Unhealthy++
				degraded = true
			}
			svc.Containers = append(svc.Containers, state)
			report.TotalContainers++
		}

		report.Services[name] = svc
		report.ServiceOrder = append(report.ServiceOrder, name)
	}

	if report.TotalContainers > 0 {
		report.Status = model.OverallRunning
		if degraded {
			report.Status = model.OverallDegraded
		}
	}
	return report, nil
}

// LogOptions selects the containers and lines Logs returns.
type LogOptions struct {
	// Services restricts output to these services. Empty means all.
	Services []string

	// Tail limits each container to its last N lines. Zero means all.
	Tail int

	// Timestamps prefixes every line with the daemon's timestamp.
	Timestamps bool
}

// Logs collects the logs of tracked containers, service by service in
// registration order and replica by replica. Every line is prefixed with
// "[service] ". Lines of one container keep their order; no order across
// services or replicas is implied beyond retrieval order.
//
// A container whose logs cannot be fetched does not stop the others; the
// returned error lists every failure alongside the text that was read.
func (s *Stack) Logs(ctx context.Context, opts LogOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := s.trackedServices()
	if len(opts.Services) > 0 {
		for _, name := range opts.Services {
			_, registered := s.services[name]
			if !registered && len(s.tracked[name]) == 0 {
				return "", model.Errorf(model.KindNotFound, "service %q is not part of stack %q", name, s.name)
			}
		}
		names = filterNames(names, opts.Services)
	}

	var b strings.Builder
	var errs *multierror.Error
	for _, name := range names {
		prefix := "[" + name + "] "
		for _, ref := range s.tracked[name] {
			out, err := s.rt.ContainerLogs(ctx, ref.ID, docker.LogsOptions{Tail: opts.Tail, Timestamps: opts.Timestamps})
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("service %q replica %d: %w", name, ref.Index, err))
				continue
			}
			writePrefixed(&b, prefix, out)
		}
	}
	return b.String(), errs.ErrorOrNil()
}

// filterNames keeps the entries of names that appear in keep, preserving
// the order of names.
func filterNames(names, keep []string) []string {
	want := make(map[string]bool, len(keep))
	for _, k := range keep {
		want[k] = true
	}
	var result []string
	for _, n := range names {
		if want[n] {
			result = append(result, n)
		}
	}
	return result
}

func writePrefixed(b *strings.Builder, prefix, text string) {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// Attach rebuilds the tracked containers, networks and volumes of the
// stack from daemon labels, replacing whatever was tracked before. It lets
// a new process manage a stack deployed earlier. The registry is left
// untouched. It returns the number of containers found. The stack counts
// as deployed only when containers are found; leftover networks and
// volumes are tracked so Down can still remove them.
func (s *Stack) Attach(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	containers, err := s.rt.ListStackContainers(ctx, s.name)
	if err != nil {
		return 0, err
	}
	networks, err := s.rt.ListStackNetworks(ctx, s.name)
	if err != nil {
		return 0, err
	}
	volumes, err := s.rt.ListStackVolumes(ctx, s.name)
	if err != nil {
		return 0, err
	}

	s.tracked = make(map[string][]*ContainerRef)
	s.networks = nil
	s.volumes = nil
	for _, c := range containers {
		s.track(&ContainerRef{
			Service: c.ServiceName,
			Index:   c.ReplicaIndex,
			ID:      c.ContainerID,
			Name:    c.ContainerName,
			Status:  c.Status,
			Health:  model.HealthNone,
		})
	}
	for _, n := range networks {
		s.addNetwork(n.Name)
	}
	for _, v := range volumes {
		s.addVolume(v.Name)
	}

	s.state = model.StateNotDeployed
	if len(containers) > 0 {
		s.state = model.StateRunning
	}
	s.log.WithField("containers", len(containers)).Debug("Attached to stack")
	return len(containers), nil
}
