package stack

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mmr-tortoise/dockstack/internal/docker"
	"github.com/mmr-tortoise/dockstack/internal/model"
	"github.com/mmr-tortoise/dockstack/internal/service"
)

// maxParallelReplicas bounds concurrent replica creation within a service.
const maxParallelReplicas = 4

// A network can still report active endpoints for a moment after its
// last container is removed. Removal is retried this many times.
const networkRemoveRetries = 5

var networkRetryInterval = 500 * time.Millisecond

// ServiceFailure records why a service could not be deployed.
type ServiceFailure struct {
	Service string `json:"service"`
	Error   string `json:"error"`

	err error
}

// DeployReport is the outcome of Up. Services are listed in deploy order.
// Skipped services were never created because a service they depend on,
// directly or not, failed.
type DeployReport struct {
	Stack   string           `json:"stack"`
	Started []string         `json:"started"`
	Failed  []ServiceFailure `json:"failed,omitempty"`
	Skipped []string         `json:"skipped,omitempty"`
}

// Err combines the failures, or returns nil when every service started.
func (r *DeployReport) Err() error {
	var result *multierror.Error
	for _, f := range r.Failed {
		result = multierror.Append(result, fmt.Errorf("service %q: %w", f.Service, f.err))
	}
	return result.ErrorOrNil()
}

func (r *DeployReport) fail(serviceName string, err error) {
	r.Failed = append(r.Failed, ServiceFailure{Service: serviceName, Error: err.Error(), err: err})
}

// TeardownReport is the outcome of Down. Every sub-operation is attempted;
// Errors lists the ones that failed.
type TeardownReport struct {
	Stack      string   `json:"stack"`
	Containers []string `json:"containers"`
	Networks   []string `json:"networks,omitempty"`
	Volumes    []string `json:"volumes,omitempty"`
	Errors     []string `json:"errors,omitempty"`

	errs *multierror.Error
}

// Err combines the failures, or returns nil when teardown was complete.
func (r *TeardownReport) Err() error {
	return r.errs.ErrorOrNil()
}

func (r *TeardownReport) record(err error) {
	r.errs = multierror.Append(r.errs, err)
	r.Errors = append(r.Errors, err.Error())
}

// Up deploys every registered service in dependency order, starting
// Replicas containers per service. Stack networks and named volumes are
// created first. Build-only services are built, and missing images are
// pulled, before their replicas are created.
//
// A failed service does not stop the deployment of services that do not
// depend on it, and nothing is rolled back. The report lists what started,
// what failed and what was skipped; the returned error is non-nil when
// anything failed. Validation, unknown dependencies and cycles are
// reported before any daemon call. If no service started and no container
// was created, the stack stays not deployed and Up may be retried.
func (s *Stack) Up(ctx context.Context) (*DeployReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &DeployReport{Stack: s.name}

	if s.state != model.StateNotDeployed || s.totalTracked() > 0 {
		return report, model.Errorf(model.KindConflict, "stack %q is already deployed", s.name)
	}

	defs := s.definitions()
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return report, err
		}
	}
	order, err := deployOrder(defs)
	if err != nil {
		return report, err
	}

	s.state = model.StateDeploying
	defer func() {
		// Nothing started and nothing left behind: the stack was never deployed.
		s.state = model.StateNotDeployed
		if s.totalTracked() > 0 || len(report.Started) > 0 {
			s.state = model.StateRunning
		}
	}()
	s.log.WithField("services", len(order)).Info("Deploying stack")

	// Step 1: stack-scoped networks and volumes.
	if err := s.ensureResources(ctx, defs); err != nil {
		return report, err
	}

	// Step 2: services in dependency order.
	blocked := make(map[string]bool)
	for _, name := range order {
		def := s.services[name]

		if dep := firstBlocked(def.DependsOn, blocked); dep != "" {
			s.log.WithFields(logrus.Fields{"service": name, "dependency": dep}).Warn("Skipping service: dependency failed")
			blocked[name] = true
			report.Skipped = append(report.Skipped, name)
			continue
		}

		if err := s.deployService(ctx, def); err != nil {
			s.log.WithField("service", name).WithError(err).Error("Service failed to deploy")
			blocked[name] = true
			report.fail(name, err)
			continue
		}
		report.Started = append(report.Started, name)
	}

	return report, report.Err()
}

func firstBlocked(deps []string, blocked map[string]bool) string {
	for _, dep := range deps {
		if blocked[dep] {
			return dep
		}
	}
	return ""
}

// ensureResources creates the default network, the declared networks and
// the named volumes of the stack. Each one is tracked as soon as it exists
// so a later Down removes it even if deployment stops halfway.
func (s *Stack) ensureResources(ctx context.Context, defs []*service.Definition) error {
	labels := docker.ResourceLabels(s.name)

	networks := append([]string{s.scopedName(defaultNetwork)}, s.declaredNetworks(defs)...)
	for _, name := range networks {
		if _, err := s.rt.EnsureNetwork(ctx, name, labels); err != nil {
			return err
		}
		s.addNetwork(name)
		s.log.WithField("network", name).Debug("Network ready")
	}

	for _, name := range s.namedVolumes(defs) {
		if _, err := s.rt.EnsureVolume(ctx, name, labels); err != nil {
			return err
		}
		s.addVolume(name)
		s.log.WithField("volume", name).Debug("Volume ready")
	}
	return nil
}

// deployService prepares the image of a service and creates and starts
// all of its replicas.
func (s *Stack) deployService(ctx context.Context, def *service.Definition) error {
	if def.Replicas == 0 {
		return nil
	}
	if err := s.prepareImage(ctx, def); err != nil {
		return err
	}
	indices := make([]int, def.Replicas)
	for i := range indices {
		indices[i] = i
	}
	return s.startReplicas(ctx, def, indices)
}

// prepareImage builds a build-only service, or pulls the image of an
// image service when it is not present locally.
func (s *Stack) prepareImage(ctx context.Context, def *service.Definition) error {
	log := s.log.WithField("service", def.Name())

	if def.Image == "" && def.Build != nil {
		contextDir, err := s.resolvePath(def.Build.Context)
		if err != nil {
			return model.WrapError(model.KindIO, fmt.Sprintf("service %q: build context %q", def.Name(), def.Build.Context), err)
		}
		tag := s.builtImageTag(def.Name())
		log.WithField("image", tag).Info("Building image")
		return s.rt.BuildImage(ctx, docker.BuildRequest{
			ContextDir: contextDir,
			Dockerfile: def.Build.Dockerfile,
			Args:       def.Build.Args,
			Target:     def.Build.Target,
			CacheFrom:  def.Build.CacheFrom,
			Tags:       []string{tag},
		})
	}

	_, err := s.rt.InspectImage(ctx, def.Image)
	if err == nil {
		return nil
	}
	if !model.IsKind(err, model.KindNotFound) {
		return err
	}
	log.WithField("image", def.Image).Info("Pulling image")
	return s.rt.PullImage(ctx, def.Image, docker.RegistryAuth{})
}

// startReplicas creates and starts the given replicas of a service
// concurrently. Every container that was created is tracked, started or
// not, so Down can remove it. The first failure cancels the replicas still
// in flight.
func (s *Stack) startReplicas(ctx context.Context, def *service.Definition, indices []int) error {
	specs := make([]docker.ContainerSpec, len(indices))
	for i, idx := range indices {
		spec, err := s.containerSpec(def, idx)
		if err != nil {
			return err
		}
		specs[i] = spec
	}

	refs := make([]*ContainerRef, len(indices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReplicas)
	for i := range specs {
		i := i
		g.Go(func() error {
			ref, err := s.startReplica(gctx, def.Name(), indices[i], specs[i])
			refs[i] = ref
			return err
		})
	}
	err := g.Wait()

	for _, ref := range refs {
		if ref != nil {
			s.track(ref)
		}
	}
	return err
}

// startReplica creates and starts one container. The returned ref is
// non-nil whenever a container exists, even if an error is also returned.
func (s *Stack) startReplica(ctx context.Context, serviceName string, index int, spec docker.ContainerSpec) (*ContainerRef, error) {
	log := s.log.WithFields(logrus.Fields{"service": serviceName, "replica": index})

	id, err := s.rt.CreateContainer(ctx, spec)
	var ref *ContainerRef
	if id != "" {
		ref = &ContainerRef{
			Service: serviceName,
			Index:   index,
			ID:      id,
			Name:    spec.Name,
			Status:  model.ContainerCreated,
			Health:  model.HealthNone,
		}
	}
	if err != nil {
		return ref, err
	}

	log = log.WithField("container", id)
	if err := s.rt.StartContainer(ctx, id); err != nil {
		return ref, err
	}
	ref.Status = model.ContainerRunning
	log.Info("Replica started")
	return ref, nil
}

// Down stops and removes every tracked container in reverse dependency
// order, then the stack networks and, with removeVolumes, the stack's
// named volumes. It never stops at a failed step. Afterwards the stack is
// not deployed and nothing is tracked, whatever failed; the report and
// the returned error say what did.
func (s *Stack) Down(ctx context.Context, removeVolumes bool) (*TeardownReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &TeardownReport{Stack: s.name}
	s.state = model.StateTearingDown
	s.log.Info("Tearing down stack")

	for _, name := range s.teardownOrder() {
		refs := s.tracked[name]
		for i := len(refs) - 1; i >= 0; i-- {
			if err := s.removeReplica(ctx, refs[i]); err != nil {
				report.record(err)
				continue
			}
			report.Containers = append(report.Containers, refs[i].Name)
		}
	}

	for _, name := range s.networks {
		if err := s.removeNetwork(ctx, name); err != nil {
			report.record(err)
			continue
		}
		report.Networks = append(report.Networks, name)
	}

	if removeVolumes {
		for _, name := range s.volumes {
			if err := s.rt.RemoveVolume(ctx, name, false); err != nil && !model.IsKind(err, model.KindNotFound) {
				report.record(err)
				continue
			}
			report.Volumes = append(report.Volumes, name)
		}
	}

	s.tracked = make(map[string][]*ContainerRef)
	s.networks = nil
	s.volumes = nil
	s.state = model.StateNotDeployed
	return report, report.Err()
}

// removeNetwork removes a stack network, retrying while the daemon
// reports it in use. A network that is already gone counts as removed.
func (s *Stack) removeNetwork(ctx context.Context, name string) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(networkRetryInterval), networkRemoveRetries),
		ctx,
	)
	return backoff.Retry(func() error {
		err := s.rt.RemoveNetwork(ctx, name)
		switch {
		case err == nil, model.IsKind(err, model.KindNotFound):
			return nil
		case model.IsKind(err, model.KindConflict):
			s.log.WithField("network", name).Debug("Network still in use, retrying removal")
			return err
		default:
			return backoff.Permanent(err)
		}
	}, policy)
}

// teardownOrder is the reverse of the deploy order, restricted to services
// with tracked replicas. Tracked services that are no longer registered go
// first. If the registry no longer yields a valid order, reverse
// registration order is used.
func (s *Stack) teardownOrder() []string {
	order, err := deployOrder(s.definitions())
	if err != nil {
		order = append([]string(nil), s.order...)
	}

	var result []string
	registered := make(map[string]bool, len(order))
	for _, name := range order {
		registered[name] = true
	}
	for _, name := range s.trackedServices() {
		if !registered[name] {
			result = append(result, name)
		}
	}
	for i := len(order) - 1; i >= 0; i-- {
		if len(s.tracked[order[i]]) > 0 {
			result = append(result, order[i])
		}
	}
	return result
}

// removeReplica stops and force-removes a container. A container that is
// already gone counts as removed.
func (s *Stack) removeReplica(ctx context.Context, ref *ContainerRef) error {
	log := s.log.WithFields(logrus.Fields{"service": ref.Service, "replica": ref.Index, "container": ref.ID})

	if err := s.rt.StopContainer(ctx, ref.ID, s.stopTimeout); err != nil {
		if model.IsKind(err, model.KindNotFound) {
			log.Debug("Container already removed")
			return nil
		}
		log.WithError(err).Warn("Stop failed, forcing removal")
	}
	if err := s.rt.RemoveContainer(ctx, ref.ID, true, false); err != nil && !model.IsKind(err, model.KindNotFound) {
		return err
	}
	log.Info("Replica removed")
	return nil
}

// Scale sets the replica count of a service. On a deployed stack, new
// replicas take the lowest free indices and surplus replicas are removed
// highest index first, so low indices stay stable. On a stack that is not
// deployed only the configured count changes.
func (s *Stack) Scale(ctx context.Context, serviceName string, replicas int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if replicas < 0 {
		return model.Errorf(model.KindValidation, "replica count must not be negative (got %d)", replicas)
	}
	def, ok := s.services[serviceName]
	if !ok {
		return model.Errorf(model.KindNotFound, "service %q is not registered in stack %q", serviceName, s.name)
	}
	def.SetReplicas(replicas)

	if s.state == model.StateNotDeployed {
		return nil
	}

	current := s.tracked[serviceName]
	log := s.log.WithFields(logrus.Fields{"service": serviceName, "from": len(current), "to": replicas})

	switch {
	case replicas > len(current):
		s.state = model.StateScalingUp
		defer func() { s.state = model.StateRunning }()
		log.Info("Scaling up")

		if err := s.prepareImage(ctx, def); err != nil {
			return err
		}
		return s.startReplicas(ctx, def, freeIndices(current, replicas-len(current)))

	case replicas < len(current):
		s.state = model.StateScalingDown
		defer func() { s.state = model.StateRunning }()
		log.Info("Scaling down")

		surplus := append([]*ContainerRef(nil), current[replicas:]...)
		var errs *multierror.Error
		for i := len(surplus) - 1; i >= 0; i-- {
			if err := s.removeReplica(ctx, surplus[i]); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			s.untrack(serviceName, surplus[i].Index)
		}
		return errs.ErrorOrNil()
	}
	return nil
}

// freeIndices returns the n lowest replica indices not used by refs.
func freeIndices(refs []*ContainerRef, n int) []int {
	used := make(map[int]bool, len(refs))
	for _, r := range refs {
		used[r.Index] = true
	}
	indices := make([]int, 0, n)
	for i := 0; len(indices) < n; i++ {
		if !used[i] {
			indices = append(indices, i)
		}
	}
	return indices
}

// RestartService restarts every tracked replica of a service in place. A
// replica whose container has disappeared is recreated under the same
// index. The replica count is preserved.
func (s *Stack) RestartService(ctx context.Context, serviceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.services[serviceName]
	if !ok {
		return model.Errorf(model.KindNotFound, "service %q is not registered in stack %q", serviceName, s.name)
	}
	refs := append([]*ContainerRef(nil), s.tracked[serviceName]...)
	if s.state == model.StateNotDeployed || len(refs) == 0 {
		return model.Errorf(model.KindNotFound, "service %q of stack %q is not deployed", serviceName, s.name)
	}

	s.state = model.StateRestarting
	defer func() { s.state = model.StateRunning }()

	var errs *multierror.Error
	var gone []int
	for _, ref := range refs {
		log := s.log.WithFields(logrus.Fields{"service": serviceName, "replica": ref.Index, "container": ref.ID})
		err := s.rt.RestartContainer(ctx, ref.ID, s.stopTimeout)
		switch {
		case err == nil:
			ref.Status = model.ContainerRunning
			log.Info("Replica restarted")
		case model.IsKind(err, model.KindNotFound):
			log.Warn("Container is gone, recreating replica")
			s.untrack(serviceName, ref.Index)
			gone = append(gone, ref.Index)
		default:
			errs = multierror.Append(errs, err)
		}
	}

	if len(gone) > 0 {
		sort.Ints(gone)
		if err := s.startReplicas(ctx, def, gone); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
