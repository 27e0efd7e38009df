package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmr-tortoise/dockstack/internal/model"
)

// Port is a single published or exposed container port.
type Port struct {
	// ContainerPort is the port inside the container.
	ContainerPort int

	// HostPort is the port on the host. Zero means the port is exposed
	// but the daemon chooses the host side (or it is not published).
	HostPort int

	// HostIP optionally restricts the binding to one host address.
	HostIP string

	// Protocol is "tcp", "udp" or "sctp". Empty means tcp.
	Protocol string

	// Mode is the compose publish mode ("ingress" or "host"). Empty means
	// the compose default. Standalone containers ignore it.
	Mode string
}

// Proto returns the protocol with the tcp default applied.
func (p Port) Proto() string {
	if p.Protocol == "" {
		return "tcp"
	}
	return strings.ToLower(p.Protocol)
}

// String renders the compose short syntax:
// [[host_ip:][host_port]:]container_port[/protocol]. The protocol suffix is
// written whenever Protocol is set, so an explicit tcp stays explicit.
func (p Port) String() string {
	var b strings.Builder
	if p.HostIP != "" {
		b.WriteString(p.HostIP)
		b.WriteByte(':')
	}
	if p.HostPort > 0 {
		b.WriteString(strconv.Itoa(p.HostPort))
	}
	if p.HostIP != "" || p.HostPort > 0 {
		b.WriteByte(':')
	}
	b.WriteString(strconv.Itoa(p.ContainerPort))
	if p.Protocol != "" {
		b.WriteByte('/')
		b.WriteString(strings.ToLower(p.Protocol))
	}
	return b.String()
}

// ParsePortMapping parses the compose short port syntax:
//
//	"80"                 container port only
//	"8080:80"            host:container
//	"127.0.0.1:8080:80"  host_ip:host:container
//	"53:53/udp"          any of the above with a protocol suffix
//
// Port ranges are not supported. Malformed input yields a validation error.
func ParsePortMapping(s string) (Port, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Port{}, model.NewError(model.KindValidation, "port mapping must not be empty")
	}

	var p Port
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		p.Protocol = strings.ToLower(raw[i+1:])
		raw = raw[:i]
		switch p.Protocol {
		case "tcp", "udp", "sctp":
		default:
			return Port{}, model.Errorf(model.KindValidation, "invalid port mapping %q: unknown protocol %q", s, p.Protocol)
		}
	}

	parts := strings.Split(raw, ":")
	var hostPart, containerPart string
	switch len(parts) {
	case 1:
		containerPart = parts[0]
	case 2:
		hostPart, containerPart = parts[0], parts[1]
	case 3:
		p.HostIP, hostPart, containerPart = parts[0], parts[1], parts[2]
		if p.HostIP == "" {
			return Port{}, model.Errorf(model.KindValidation, "invalid port mapping %q: empty host IP", s)
		}
	default:
		return Port{}, model.Errorf(model.KindValidation, "invalid port mapping %q: too many ':' separators", s)
	}

	cp, err := parsePortNumber(containerPart)
	if err != nil {
		return Port{}, model.WrapError(model.KindValidation, fmt.Sprintf("invalid port mapping %q", s), err)
	}
	p.ContainerPort = cp

	if hostPart != "" {
		hp, err := parsePortNumber(hostPart)
		if err != nil {
			return Port{}, model.WrapError(model.KindValidation, fmt.Sprintf("invalid port mapping %q", s), err)
		}
		p.HostPort = hp
	} else if len(parts) > 1 && p.HostIP == "" {
		return Port{}, model.Errorf(model.KindValidation, "invalid port mapping %q: empty host port", s)
	}

	return p, nil
}

// parsePortNumber parses a single port in the range 1-65535.
func parsePortNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a port number", s)
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range (1-65535)", n)
	}
	return n, nil
}

// EnvVar is one environment entry. A Definition keeps an ordered list so
// duplicates survive until a consumer collapses them (last value wins).
type EnvVar struct {
	Key   string
	Value string
}

// VolumeKind distinguishes host bind mounts from named volumes.
type VolumeKind string

const (
	// VolumeBind mounts a host path into the container.
	VolumeBind VolumeKind = "bind"

	// VolumeNamed mounts a daemon-managed volume. An empty Source makes
	// it an anonymous volume.
	VolumeNamed VolumeKind = "volume"
)

// String returns the string representation of VolumeKind.
func (k VolumeKind) String() string {
	return string(k)
}

// Volume is a single mount of a service.
type Volume struct {
	// Source is a host path for binds, a volume name for named volumes,
	// or empty for an anonymous volume.
	Source string

	// Target is the mount point inside the container.
	Target string

	// Kind is bind or volume.
	Kind VolumeKind

	// ReadOnly mounts the source read-only.
	ReadOnly bool
}

// InferVolumeKind guesses the kind from the source the way compose does:
// paths (absolute, relative or home-relative) are binds, everything else
// is a named volume.
func InferVolumeKind(source string) VolumeKind {
	switch {
	case source == "":
		return VolumeNamed
	case strings.HasPrefix(source, "/"), strings.HasPrefix(source, "."), strings.HasPrefix(source, "~"):
		return VolumeBind
	default:
		return VolumeNamed
	}
}

// String renders the compose short syntax source:target[:ro], or just the
// target for an anonymous volume.
func (v Volume) String() string {
	if v.Source == "" {
		return v.Target
	}
	s := v.Source + ":" + v.Target
	if v.ReadOnly {
		s += ":ro"
	}
	return s
}

// ParseVolumeMapping parses the compose short volume syntax:
//
//	"/data"                anonymous volume at /data
//	"dbdata:/var/lib/db"   named volume
//	"./src:/app:ro"        bind mount, read-only
//
// The access mode may be "ro" or "rw". Anything else is a validation error.
func ParseVolumeMapping(s string) (Volume, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Volume{}, model.NewError(model.KindValidation, "volume mapping must not be empty")
	}

	parts := strings.Split(raw, ":")
	var v Volume
	switch len(parts) {
	case 1:
		v.Target = parts[0]
	case 2:
		v.Source, v.Target = parts[0], parts[1]
	case 3:
		v.Source, v.Target = parts[0], parts[1]
		switch parts[2] {
		case "ro":
			v.ReadOnly = true
		case "rw":
		default:
			return Volume{}, model.Errorf(model.KindValidation, "invalid volume mapping %q: unknown mode %q (valid: ro, rw)", s, parts[2])
		}
	default:
		return Volume{}, model.Errorf(model.KindValidation, "invalid volume mapping %q: too many ':' separators", s)
	}

	if v.Target == "" || !strings.HasPrefix(v.Target, "/") {
		return Volume{}, model.Errorf(model.KindValidation, "invalid volume mapping %q: target must be an absolute container path", s)
	}
	if len(parts) > 1 && v.Source == "" {
		return Volume{}, model.Errorf(model.KindValidation, "invalid volume mapping %q: empty source", s)
	}
	v.Kind = InferVolumeKind(v.Source)
	return v, nil
}

// BuildSpec describes how to build a service's image from a context
// directory.
type BuildSpec struct {
	Context    string
	Dockerfile string
	Args       map[string]string
	Target     string
	CacheFrom  []string
}

// IsContextOnly reports whether only the context is set, which compose
// can express as a plain string.
func (b *BuildSpec) IsContextOnly() bool {
	return b.Dockerfile == "" && len(b.Args) == 0 && b.Target == "" && len(b.CacheFrom) == 0
}

func (b *BuildSpec) clone() *BuildSpec {
	if b == nil {
		return nil
	}
	c := *b
	c.Args = cloneMap(b.Args)
	c.CacheFrom = cloneStrings(b.CacheFrom)
	return &c
}

// Resources holds resource constraints. Values are kept in the textual
// form they were given ("512m", "0.5") and converted at deploy time.
type Resources struct {
	Memory            string
	MemoryReservation string
	CPUs              string
	CPUShares         int64
	CPUQuota          int64
	CPUPeriod         int64
}

// IsZero reports whether no constraint is set.
func (r Resources) IsZero() bool {
	return r == Resources{}
}

// RestartPolicyName is one of the four restart policies the daemon knows.
type RestartPolicyName string

const (
	RestartNo            RestartPolicyName = "no"
	RestartAlways        RestartPolicyName = "always"
	RestartOnFailure     RestartPolicyName = "on-failure"
	RestartUnlessStopped RestartPolicyName = "unless-stopped"
)

// IsValid checks whether the name is one of the predefined policies.
func (n RestartPolicyName) IsValid() bool {
	switch n {
	case RestartNo, RestartAlways, RestartOnFailure, RestartUnlessStopped:
		return true
	default:
		return false
	}
}

// RestartPolicy is a named restart policy. MaxRetries only applies to
// on-failure; zero means unlimited.
type RestartPolicy struct {
	Name       RestartPolicyName
	MaxRetries int
}

// String renders the compose form, e.g. "on-failure:3".
func (r RestartPolicy) String() string {
	if r.Name == RestartOnFailure && r.MaxRetries > 0 {
		return fmt.Sprintf("%s:%d", r.Name, r.MaxRetries)
	}
	return string(r.Name)
}

// ParseRestartPolicy parses "no", "always", "unless-stopped", "on-failure"
// or "on-failure:N". Unrecognised names are rejected with a validation
// error.
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	name, retries, hasRetries := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	policy := RestartPolicy{Name: RestartPolicyName(name)}
	if !policy.Name.IsValid() {
		return RestartPolicy{}, model.Errorf(model.KindValidation,
			"invalid restart policy %q (valid: no, always, on-failure[:N], unless-stopped)", s)
	}
	if hasRetries {
		if policy.Name != RestartOnFailure {
			return RestartPolicy{}, model.Errorf(model.KindValidation,
				"invalid restart policy %q: a retry count is only allowed with on-failure", s)
		}
		n, err := strconv.Atoi(retries)
		if err != nil || n < 0 {
			return RestartPolicy{}, model.Errorf(model.KindValidation,
				"invalid restart policy %q: retry count must be a non-negative integer", s)
		}
		policy.MaxRetries = n
	}
	return policy, nil
}

// HealthCheck describes a container health check. Durations are stored
// verbatim; the daemon validates them.
type HealthCheck struct {
	// Test is the compose test form: ["CMD", args...], ["CMD-SHELL", cmd]
	// or ["NONE"].
	Test        []string
	Interval    time.Duration
	Timeout     time.Duration
	StartPeriod time.Duration
	Retries     int
}

func (h *HealthCheck) clone() *HealthCheck {
	if h == nil {
		return nil
	}
	c := *h
	c.Test = cloneStrings(h.Test)
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
