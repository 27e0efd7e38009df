package port

import (
	"fmt"

	"github.com/mmr-tortoise/dockstack/internal/service"
)

// Reasons a published port is reported by Preflight.
const (
	ReasonInUse      = "in_use"
	ReasonDuplicate  = "duplicate"
	ReasonMultiBound = "replicas"
)

// Conflict is one published host port that is expected to fail binding.
type Conflict struct {
	Service  string `json:"service"`
	HostIP   string `json:"host_ip,omitempty"`
	HostPort int    `json:"host_port"`
	Protocol string `json:"protocol"`
	Reason   string `json:"reason"`

	// Other is the service already publishing the port when Reason is
	// ReasonDuplicate.
	Other string `json:"other,omitempty"`
}

// String describes the conflict for a warning line.
func (c Conflict) String() string {
	addr := fmt.Sprintf("%d/%s", c.HostPort, c.Protocol)
	if c.HostIP != "" {
		addr = c.HostIP + ":" + addr
	}
	switch c.Reason {
	case ReasonDuplicate:
		return fmt.Sprintf("service %s: host port %s is also published by service %s", c.Service, addr, c.Other)
	case ReasonMultiBound:
		return fmt.Sprintf("service %s: host port %s is fixed but the service has more than one replica", c.Service, addr)
	default:
		return fmt.Sprintf("service %s: host port %s is already in use on this host", c.Service, addr)
	}
}

type binding struct {
	hostIP   string
	port     int
	protocol string
}

// Preflight returns the published host ports of defs that are expected to
// fail when the stack is deployed, in definition order. Ports without a
// fixed host side and services scaled to zero are ignored.
func (s *Scanner) Preflight(defs []*service.Definition) []Conflict {
	var conflicts []Conflict
	owner := make(map[binding]string)

	for _, def := range defs {
		if def == nil || def.Replicas == 0 {
			continue
		}
		for _, p := range def.Ports {
			if p.HostPort == 0 {
				continue
			}
			b := binding{hostIP: p.HostIP, port: p.HostPort, protocol: p.Proto()}
			c := Conflict{Service: def.Name(), HostIP: b.hostIP, HostPort: b.port, Protocol: b.protocol}

			if other, ok := owner[b]; ok {
				c.Reason, c.Other = ReasonDuplicate, other
				conflicts = append(conflicts, c)
				continue
			}
			owner[b] = def.Name()

			if def.Replicas > 1 {
				c.Reason = ReasonMultiBound
				conflicts = append(conflicts, c)
				continue
			}
			if available, checked := s.IsPortAvailable(b.hostIP, b.port, b.protocol); checked && !available {
				c.Reason = ReasonInUse
				conflicts = append(conflicts, c)
			}
		}
	}
	return conflicts
}
