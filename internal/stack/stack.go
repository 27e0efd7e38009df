package stack

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/dockstack/internal/docker"
	"github.com/mmr-tortoise/dockstack/internal/logging"
	"github.com/mmr-tortoise/dockstack/internal/model"
	"github.com/mmr-tortoise/dockstack/internal/service"
)

// DefaultStopTimeout is how long a container gets to exit after SIGTERM
// before the daemon kills it.
const DefaultStopTimeout = 10 * time.Second

// Runtime is the daemon-facing collaborator of a Stack.
type Runtime interface {
	CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout time.Duration) error
	RestartContainer(ctx context.Context, id string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, id string, force, volumes bool) error
	InspectContainer(ctx context.Context, id string) (model.ContainerState, error)
	ContainerLogs(ctx context.Context, id string, opts docker.LogsOptions) (string, error)
	ListStackContainers(ctx context.Context, stack string) ([]model.ContainerInfo, error)

	InspectImage(ctx context.Context, ref string) (docker.ImageInfo, error)
	PullImage(ctx context.Context, ref string, auth docker.RegistryAuth) error
	BuildImage(ctx context.Context, req docker.BuildRequest) error

	EnsureNetwork(ctx context.Context, name string, labels map[string]string) (string, error)
	ListStackNetworks(ctx context.Context, stack string) ([]docker.NetworkInfo, error)
	RemoveNetwork(ctx context.Context, id string) error

	EnsureVolume(ctx context.Context, name string, labels map[string]string) (string, error)
	ListStackVolumes(ctx context.Context, stack string) ([]docker.VolumeInfo, error)
	RemoveVolume(ctx context.Context, name string, force bool) error
}

var _ Runtime = (*docker.Client)(nil)

// ContainerRef is one tracked replica. Status and Health hold the values
// observed by the most recent Status call.
type ContainerRef struct {
	Service string                `json:"service"`
	Index   int                   `json:"replica_index"`
	ID      string                `json:"id"`
	Name    string                `json:"name"`
	Status  model.ContainerStatus `json:"status"`
	Health  model.HealthStatus    `json:"health"`
}

// Stack is a named registry of service definitions plus the set of
// containers deployed for them.
type Stack struct {
	mu sync.Mutex

	name        string
	rt          Runtime
	log         logrus.FieldLogger
	stopTimeout time.Duration
	baseDir     string

	services map[string]*service.Definition
	order    []string

	state    model.StackState
	tracked  map[string][]*ContainerRef
	networks []string
	volumes  []string
}

// Option configures a Stack.
type Option func(*Stack)

// WithLogger sets the logger used for deployment steps.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Stack) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStopTimeout sets the grace period given to containers on stop and
// restart. A negative value leaves it to each container's configuration.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Stack) { s.stopTimeout = d }
}

// WithBaseDir sets the directory that relative build contexts, env files
// and bind mount sources are resolved against. Defaults to the working
// directory.
func WithBaseDir(dir string) Option {
	return func(s *Stack) { s.baseDir = dir }
}

// New creates an empty, not deployed stack.
func New(name string, rt Runtime, opts ...Option) (*Stack, error) {
	if err := model.ValidateName("stack", name); err != nil {
		return nil, err
	}

	s := &Stack{
		name:        name,
		rt:          rt,
		log:         logging.Discard(),
		stopTimeout: DefaultStopTimeout,
		services:    make(map[string]*service.Definition),
		state:       model.StateNotDeployed,
		tracked:     make(map[string][]*ContainerRef),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("stack", name)
	return s, nil
}

// Name returns the stack name.
func (s *Stack) Name() string {
	return s.name
}

// State returns the current deployment state.
func (s *Stack) State() model.StackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Register adds a service. The definition is stored by reference, so later
// setter calls on it are seen by the stack. Registering a name that is
// already present fails and leaves the registry unchanged.
func (s *Stack) Register(def *service.Definition) error {
	if def == nil {
		return model.NewError(model.KindValidation, "cannot register a nil service")
	}
	if err := model.ValidateName("service", def.Name()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.services[def.Name()]; exists {
		return model.Errorf(model.KindConflict, "service %q already registered in stack %q", def.Name(), s.name)
	}
	s.services[def.Name()] = def
	s.order = append(s.order, def.Name())
	return nil
}

// Unregister removes a service and reports whether it was registered.
// Containers already deployed for the service keep running and stay
// tracked until Down.
func (s *Stack) Unregister(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.services[name]; !exists {
		return false
	}
	delete(s.services, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// ServiceCount returns the number of registered services.
func (s *Stack) ServiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// HasService reports whether a service is registered under name.
func (s *Stack) HasService(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.services[name]
	return ok
}

// ServiceNames returns the registered service names in registration order.
func (s *Stack) ServiceNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Service returns the registered definition for name.
func (s *Stack) Service(name string) (*service.Definition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.services[name]
	return def, ok
}

// Services returns the registered definitions in registration order.
func (s *Stack) Services() []*service.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.definitions()
}

// Containers returns a copy of the tracked replicas of a service, sorted
// by replica index.
func (s *Stack) Containers(serviceName string) []ContainerRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]ContainerRef, 0, len(s.tracked[serviceName]))
	for _, r := range s.tracked[serviceName] {
		refs = append(refs, *r)
	}
	return refs
}

// TotalContainers returns the number of tracked replicas across services.
func (s *Stack) TotalContainers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalTracked()
}

func (s *Stack) definitions() []*service.Definition {
	defs := make([]*service.Definition, 0, len(s.order))
	for _, name := range s.order {
		defs = append(defs, s.services[name])
	}
	return defs
}

func (s *Stack) totalTracked() int {
	n := 0
	for _, refs := range s.tracked {
		n += len(refs)
	}
	return n
}

// trackedServices returns the names of services with tracked replicas:
// registered ones in registration order, then unregistered ones sorted.
func (s *Stack) trackedServices() []string {
	var names, extra []string
	for _, name := range s.order {
		if len(s.tracked[name]) > 0 {
			names = append(names, name)
		}
	}
	for name, refs := range s.tracked {
		if _, ok := s.services[name]; !ok && len(refs) > 0 {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// track adds a replica and keeps the service's list sorted by index.
func (s *Stack) track(ref *ContainerRef) {
	refs := append(s.tracked[ref.Service], ref)
	sort.Slice(refs, func(i, j int) bool { return refs[i].Index < refs[j].Index })
	s.tracked[ref.Service] = refs
}

func (s *Stack) untrack(serviceName string, index int) {
	refs := s.tracked[serviceName]
	for i, r := range refs {
		if r.Index == index {
			refs = append(refs[:i], refs[i+1:]...)
			break
		}
	}
	if len(refs) == 0 {
		delete(s.tracked, serviceName)
		return
	}
	s.tracked[serviceName] = refs
}

func (s *Stack) addNetwork(name string) {
	for _, n := range s.networks {
		if n == name {
			return
		}
	}
	s.networks = append(s.networks, name)
}

func (s *Stack) addVolume(name string) {
	for _, v := range s.volumes {
		if v == name {
			return
		}
	}
	s.volumes = append(s.volumes, name)
}
