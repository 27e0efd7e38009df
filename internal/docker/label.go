package docker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/filters"

	"github.com/mmr-tortoise/dockstack/internal/model"
)

// Label key constants define the Docker labels that record stack
// membership on containers, networks and volumes. Labels are the only
// persistence mechanism: a new process rebuilds its view of a deployed
// stack from them.
//
// The project and service keys are the ones docker compose uses, so
// `docker compose -p <stack> ps` lists dockstack containers too.
const (
	// LabelProject stores the stack name.
	LabelProject = "com.docker.compose.project"

	// LabelService stores the service name.
	LabelService = "com.docker.compose.service"

	// LabelContainerNumber stores the one-based replica number, as
	// docker compose does.
	LabelContainerNumber = "com.docker.compose.container-number"

	// LabelPrefix is the common prefix for dockstack's own labels.
	LabelPrefix = "dockstack."

	// LabelManagedBy identifies resources created by dockstack.
	// Value: always ManagedByValue.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelReplicaIndex stores the zero-based replica index.
	LabelReplicaIndex = LabelPrefix + "replica-index"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "dockstack"

// BuildLabels constructs the label map applied to one replica. The
// service's own labels are copied first so the management labels always
// win.
func BuildLabels(stack, service string, index int, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+5)
	for k, v := range extra {
		labels[k] = v
	}
	labels[LabelProject] = stack
	labels[LabelService] = service
	labels[LabelContainerNumber] = strconv.Itoa(index + 1)
	labels[LabelManagedBy] = ManagedByValue
	labels[LabelReplicaIndex] = strconv.Itoa(index)
	return labels
}

// ResourceLabels returns the labels applied to stack networks and volumes.
func ResourceLabels(stack string) map[string]string {
	return map[string]string{
		LabelProject:   stack,
		LabelManagedBy: ManagedByValue,
	}
}

// ReplicaRef identifies a replica from its labels.
type ReplicaRef struct {
	Stack   string
	Service string
	Index   int
}

// ParseLabels extracts the replica identity from container labels. This is
// the inverse of BuildLabels. Containers created by docker compose carry
// no replica index label; the one-based container number is used instead.
func ParseLabels(labels map[string]string) (ReplicaRef, error) {
	var missing []string
	for _, key := range []string{LabelProject, LabelService} {
		if labels[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return ReplicaRef{}, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	ref := ReplicaRef{Stack: labels[LabelProject], Service: labels[LabelService]}

	if v, ok := labels[LabelReplicaIndex]; ok {
		idx, err := strconv.Atoi(v)
		if err != nil || idx < 0 {
			return ReplicaRef{}, fmt.Errorf("invalid label %s=%q", LabelReplicaIndex, v)
		}
		ref.Index = idx
		return ref, nil
	}
	if v, ok := labels[LabelContainerNumber]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return ReplicaRef{}, fmt.Errorf("invalid label %s=%q", LabelContainerNumber, v)
		}
		ref.Index = n - 1
		return ref, nil
	}
	return ReplicaRef{}, fmt.Errorf("missing required Docker labels: %s", LabelReplicaIndex)
}

// StackFilter returns the list filter matching every container, network
// or volume of a stack. The filter runs on the daemon side.
func StackFilter(stack string) filters.Args {
	return filters.NewArgs(
		filters.Arg("label", LabelProject+"="+stack),
	)
}

// ContainerInfoFromLabels builds the label-derived part of a ContainerInfo.
func ContainerInfoFromLabels(id, name, state string, labels map[string]string) (model.ContainerInfo, error) {
	ref, err := ParseLabels(labels)
	if err != nil {
		return model.ContainerInfo{}, err
	}
	return model.ContainerInfo{
		ContainerID:   id,
		ContainerName: strings.TrimPrefix(name, "/"),
		StackName:     ref.Stack,
		ServiceName:   ref.Service,
		ReplicaIndex:  ref.Index,
		Status:        model.ContainerStatusFromState(state),
		Labels:        labels,
	}, nil
}
