package model

import (
	"fmt"
	"regexp"
	"strings"
)

// ContainerStatus is the last observed lifecycle state of a replica.
// Daemon states are folded into this smaller set so that status reports
// stay stable across daemon versions.
type ContainerStatus string

const (
	// ContainerCreated means the container exists but was never started.
	ContainerCreated ContainerStatus = "created"

	// ContainerRunning means the container's main process is running.
	// The daemon's "restarting" state is reported as running.
	ContainerRunning ContainerStatus = "running"

	// ContainerPaused means the container is frozen by the daemon.
	ContainerPaused ContainerStatus = "paused"

	// ContainerExited means the main process has terminated. The daemon's
	// "dead" and "removing" states are reported as exited.
	ContainerExited ContainerStatus = "exited"

	// ContainerUnknown is used when the daemon could not be queried or
	// returned a state this package does not recognise.
	ContainerUnknown ContainerStatus = "unknown"
)

// String returns the string representation of ContainerStatus.
func (s ContainerStatus) String() string {
	return string(s)
}

// IsValid checks whether the ContainerStatus value is one of the
// predefined states.
func (s ContainerStatus) IsValid() bool {
	switch s {
	case ContainerCreated, ContainerRunning, ContainerPaused, ContainerExited, ContainerUnknown:
		return true
	default:
		return false
	}
}

// ContainerStatusFromState normalizes a daemon state string
// (State.Status in an inspect response) to a ContainerStatus.
// Unrecognised values map to ContainerUnknown rather than failing,
// since the daemon may add states in future API versions.
func ContainerStatusFromState(state string) ContainerStatus {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "created":
		return ContainerCreated
	case "running", "restarting":
		return ContainerRunning
	case "paused":
		return ContainerPaused
	case "exited", "dead", "removing":
		return ContainerExited
	default:
		return ContainerUnknown
	}
}

// HealthStatus is the last observed health check result of a replica.
type HealthStatus string

const (
	// HealthHealthy means the most recent health checks passed.
	HealthHealthy HealthStatus = "healthy"

	// HealthUnhealthy means the health check exceeded its retry budget.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthStarting means the container is within its start period.
	HealthStarting HealthStatus = "starting"

	// HealthNone means the container has no health check configured.
	HealthNone HealthStatus = "none"
)

// String returns the string representation of HealthStatus.
func (h HealthStatus) String() string {
	return string(h)
}

// HealthStatusFromState normalizes a daemon health string. An empty
// string (no Health block in the inspect response) maps to HealthNone.
func HealthStatusFromState(state string) HealthStatus {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "healthy":
		return HealthHealthy
	case "unhealthy":
		return HealthUnhealthy
	case "starting":
		return HealthStarting
	default:
		return HealthNone
	}
}

// StackState is the deployment state of a Stack. The transitions are:
//
//	NotDeployed → Deploying → Running → (ScalingUp|ScalingDown|Restarting)* → TearingDown → NotDeployed
//
// NotDeployed is both the initial and the terminal state.
type StackState string

const (
	StateNotDeployed StackState = "not_deployed"
	StateDeploying   StackState = "deploying"
	StateRunning     StackState = "running"
	StateScalingUp   StackState = "scaling_up"
	StateScalingDown StackState = "scaling_down"
	StateRestarting  StackState = "restarting"
	StateTearingDown StackState = "tearing_down"
)

// String returns the string representation of StackState.
func (s StackState) String() string {
	return string(s)
}

// OverallStatus is the rollup status of a stack in a StatusReport.
type OverallStatus string

const (
	// OverallNotDeployed means no containers are tracked for the stack.
	OverallNotDeployed OverallStatus = "not_deployed"

	// OverallRunning means every tracked container is running and none
	// reports an unhealthy health check.
	OverallRunning OverallStatus = "running"

	// OverallDegraded means at least one tracked container is not running
	// or is unhealthy.
	OverallDegraded OverallStatus = "degraded"
)

// String returns the string representation of OverallStatus.
func (s OverallStatus) String() string {
	return string(s)
}

// ContainerInfo holds runtime information about a Docker container that
// belongs to a stack. This data is fetched dynamically from the Docker API,
// not persisted.
type ContainerInfo struct {
	// ContainerID is the unique Docker container identifier.
	ContainerID string `json:"id"`

	// ContainerName is the human-readable Docker container name,
	// without the leading slash the daemon reports.
	ContainerName string `json:"name"`

	// StackName is the compose project label of the container.
	StackName string `json:"stack,omitempty"`

	// ServiceName is the compose service label of the container.
	ServiceName string `json:"service,omitempty"`

	// ReplicaIndex is the zero-based replica index within the service.
	ReplicaIndex int `json:"replica_index"`

	// Status is the normalized container state.
	Status ContainerStatus `json:"status"`

	// Labels is the full set of Docker labels on the container.
	Labels map[string]string `json:"labels,omitempty"`
}

// ContainerState is one replica's entry in a status report.
type ContainerState struct {
	// ID is the Docker container identifier.
	ID string `json:"id"`

	// ReplicaIndex is the zero-based replica index within the service.
	ReplicaIndex int `json:"replica_index"`

	// Running mirrors State.Running from the inspect response.
	Running bool `json:"running"`

	// Status is the normalized container state.
	Status ContainerStatus `json:"status"`

	// Health is the normalized health check state.
	Health HealthStatus `json:"health"`

	// ExitCode is the exit code of the last run. Zero while running.
	ExitCode int `json:"exit_code"`

	// Error holds the inspect failure when the daemon could not be queried
	// for this container. Status is ContainerUnknown in that case.
	Error string `json:"error,omitempty"`
}

// ServiceStatus is the per-service rollup of a status report.
type ServiceStatus struct {
	Replicas   int              `json:"replicas"`
	Running    int              `json:"running"`
	Healthy    int              `json:"healthy"`
	Unhealthy  int              `json:"unhealthy"`
	Containers []ContainerState `json:"containers"`
}

// StatusReport is a point-in-time snapshot of every tracked container of a
// stack, obtained by querying the daemon. It is never cached.
type StatusReport struct {
	// Stack is the stack name.
	Stack string `json:"stack"`

	// Status is the overall rollup.
	Status OverallStatus `json:"status"`

	// TotalContainers is the number of tracked containers.
	TotalContainers int `json:"total_containers"`

	// Services maps service name to its rollup.
	Services map[string]ServiceStatus `json:"services"`

	// ServiceOrder lists the keys of Services in registry order for
	// deterministic text output. JSON consumers rely on map keys instead.
	ServiceOrder []string `json:"-"`
}

// nameRegex validates stack and service names. Names are used to build
// container, network and volume names, so they must satisfy the daemon's
// resource name rules: start with an alphanumeric character, followed by
// alphanumerics, underscores, periods or hyphens.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ValidateName checks if the given name is usable as a stack or service
// name. The kind argument ("stack", "service") only shapes the message.
func ValidateName(kind, name string) error {
	if name == "" {
		return Errorf(KindValidation, "%s name must not be empty", kind)
	}
	if !nameRegex.MatchString(name) {
		return Errorf(KindValidation,
			"invalid %s name %q: must start with an alphanumeric character and contain only alphanumerics, '_', '.' or '-'",
			kind, name)
	}
	return nil
}

// ReplicaName builds the container name of a replica. Replica indices are
// zero-based; the name suffix is one-based to match docker compose.
func ReplicaName(stack, service string, index int) string {
	return fmt.Sprintf("%s_%s_%d", stack, service, index+1)
}
