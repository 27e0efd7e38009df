package docker

import (
	"context"
	"fmt"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/network"

	"github.com/mmr-tortoise/dockstack/internal/model"
)

// NetworkInfo is the subset of a network inspect response dockstack reports.
type NetworkInfo struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Driver string            `json:"driver"`
	Labels map[string]string `json:"labels,omitempty"`
}

// CreateNetwork creates a network. The daemon allows duplicate names, so
// an existing network with the same name is reported as a conflict before
// the create request is sent.
func (c *Client) CreateNetwork(ctx context.Context, name, driver string, labels map[string]string) (string, error) {
	existing, err := c.findNetwork(ctx, name)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", model.Errorf(model.KindConflict, "network %q already exists", name)
	}

	if driver == "" {
		driver = "bridge"
	}
	resp, err := c.inner.NetworkCreate(ctx, name, network.CreateOptions{Driver: driver, Labels: labels})
	if err != nil {
		return "", translateError(fmt.Sprintf("failed to create network %q", name), err)
	}
	return resp.ID, nil
}

// EnsureNetwork returns the ID of the named network, creating a bridge
// network with the given labels if none exists.
func (c *Client) EnsureNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	existing, err := c.findNetwork(ctx, name)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}
	resp, err := c.inner.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge", Labels: labels})
	if err != nil {
		return "", translateError(fmt.Sprintf("failed to create network %q", name), err)
	}
	return resp.ID, nil
}

// findNetwork returns the network whose name is exactly name, or nil. The
// daemon's name filter matches substrings, hence the exact comparison.
func (c *Client) findNetwork(ctx context.Context, name string) (*network.Summary, error) {
	nets, err := c.inner.NetworkList(ctx, network.ListOptions{Filters: nameFilter(name)})
	if err != nil {
		return nil, translateError(fmt.Sprintf("failed to look up network %q", name), err)
	}
	for i := range nets {
		if nets[i].Name == name {
			return &nets[i], nil
		}
	}
	return nil, nil
}

// InspectNetwork returns metadata of a network by name or ID.
func (c *Client) InspectNetwork(ctx context.Context, id string) (NetworkInfo, error) {
	resp, err := c.inner.NetworkInspect(ctx, id, network.InspectOptions{})
	if err != nil {
		return NetworkInfo{}, translateError(fmt.Sprintf("failed to inspect network %q", id), err)
	}
	return NetworkInfo{ID: resp.ID, Name: resp.Name, Driver: resp.Driver, Labels: resp.Labels}, nil
}

// ListStackNetworks returns the networks labeled with the stack name.
func (c *Client) ListStackNetworks(ctx context.Context, stack string) ([]NetworkInfo, error) {
	nets, err := c.inner.NetworkList(ctx, network.ListOptions{Filters: StackFilter(stack)})
	if err != nil {
		return nil, translateError(fmt.Sprintf("failed to list networks of stack %q", stack), err)
	}
	result := make([]NetworkInfo, 0, len(nets))
	for _, n := range nets {
		result = append(result, NetworkInfo{ID: n.ID, Name: n.Name, Driver: n.Driver, Labels: n.Labels})
	}
	return result, nil
}

// RemoveNetwork removes a network by name or ID. A network that still has
// endpoints is a conflict error; the daemon reports it as forbidden.
func (c *Client) RemoveNetwork(ctx context.Context, id string) error {
	err := c.inner.NetworkRemove(ctx, id)
	switch {
	case err == nil:
		return nil
	case cerrdefs.IsPermissionDenied(err):
		return model.WrapError(model.KindConflict, fmt.Sprintf("network %q is still in use", id), err)
	default:
		return translateError(fmt.Sprintf("failed to remove network %q", id), err)
	}
}

// ConnectNetwork attaches a container to a network with optional aliases.
func (c *Client) ConnectNetwork(ctx context.Context, networkID, containerID string, aliases []string) error {
	err := c.inner.NetworkConnect(ctx, networkID, containerID, &network.EndpointSettings{Aliases: aliases})
	if err != nil {
		return translateError(fmt.Sprintf("failed to connect container %s to network %q", shortID(containerID), networkID), err)
	}
	return nil
}

// DisconnectNetwork detaches a container from a network.
func (c *Client) DisconnectNetwork(ctx context.Context, networkID, containerID string, force bool) error {
	if err := c.inner.NetworkDisconnect(ctx, networkID, containerID, force); err != nil {
		return translateError(fmt.Sprintf("failed to disconnect container %s from network %q", shortID(containerID), networkID), err)
	}
	return nil
}
