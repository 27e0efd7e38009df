package compose

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/dockstack/internal/service"
)

// Version is the compose schema version written by Marshal.
const Version = "3.8"

// Marshal renders the definitions as a compose document. Services appear
// in slice order; within a service, keys appear in a fixed order and map
// entries (labels, build args) are sorted, so the output is deterministic.
func Marshal(defs []*service.Definition) ([]byte, error) {
	root := mappingNode()
	appendPair(root, "version", stringNode(Version))

	services := mappingNode()
	namedVolumes := make(map[string]bool)
	networks := make(map[string]bool)
	secrets := make(map[string]bool)

	for _, def := range defs {
		appendPair(services, def.Name(), serviceNode(def))

		for _, v := range def.Volumes {
			if v.Kind == service.VolumeNamed && v.Source != "" {
				namedVolumes[v.Source] = true
			}
		}
		for _, n := range def.Networks {
			networks[n] = true
		}
		for _, s := range def.Secrets {
			secrets[s] = true
		}
	}
	appendPair(root, "services", services)

	// Named volumes and networks must be declared at the top level for the
	// document to be accepted by docker compose.
	if len(namedVolumes) > 0 {
		appendPair(root, "volumes", declarations(namedVolumes, false))
	}
	if len(networks) > 0 {
		appendPair(root, "networks", declarations(networks, false))
	}
	if len(secrets) > 0 {
		appendPair(root, "secrets", declarations(secrets, true))
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to serialize compose document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to serialize compose document: %w", err)
	}
	return buf.Bytes(), nil
}

// serviceNode builds the mapping for one service. Only non-default fields
// are written.
func serviceNode(def *service.Definition) *yaml.Node {
	n := mappingNode()

	if def.Image != "" {
		appendPair(n, "image", stringNode(def.Image))
	}
	if def.Build != nil {
		appendPair(n, "build", buildNode(def.Build))
	}
	if len(def.Command) > 0 {
		appendPair(n, "command", stringSeq(def.Command))
	}
	if len(def.Entrypoint) > 0 {
		appendPair(n, "entrypoint", stringSeq(def.Entrypoint))
	}
	if def.WorkingDir != "" {
		appendPair(n, "working_dir", stringNode(def.WorkingDir))
	}
	if def.Hostname != "" {
		appendPair(n, "hostname", stringNode(def.Hostname))
	}
	if def.User != "" {
		appendPair(n, "user", stringNode(def.User))
	}
	if len(def.Env) > 0 {
		appendPair(n, "environment", environmentNode(def.Env))
	}
	if len(def.EnvFiles) > 0 {
		appendPair(n, "env_file", stringSeq(def.EnvFiles))
	}
	if len(def.Ports) > 0 {
		ports := seqNode()
		for _, p := range def.Ports {
			ports.Content = append(ports.Content, portNode(p))
		}
		appendPair(n, "ports", ports)
	}
	if len(def.Volumes) > 0 {
		vols := seqNode()
		for _, v := range def.Volumes {
			vols.Content = append(vols.Content, volumeNode(v))
		}
		appendPair(n, "volumes", vols)
	}
	if len(def.Labels) > 0 {
		appendPair(n, "labels", sortedMapNode(def.Labels))
	}
	if def.Restart != nil {
		appendPair(n, "restart", stringNode(def.Restart.String()))
	}
	if def.Health != nil {
		appendPair(n, "healthcheck", healthNode(def.Health))
	}
	if len(def.Secrets) > 0 {
		appendPair(n, "secrets", stringSeq(def.Secrets))
	}
	if len(def.Networks) > 0 {
		appendPair(n, "networks", stringSeq(def.Networks))
	}
	if len(def.DependsOn) > 0 {
		appendPair(n, "depends_on", stringSeq(def.DependsOn))
	}
	if def.Resources.CPUShares != 0 {
		appendPair(n, "cpu_shares", intNode(def.Resources.CPUShares))
	}
	if def.Resources.CPUQuota != 0 {
		appendPair(n, "cpu_quota", intNode(def.Resources.CPUQuota))
	}
	if def.Resources.CPUPeriod != 0 {
		appendPair(n, "cpu_period", intNode(def.Resources.CPUPeriod))
	}
	if deploy := deployNode(def); deploy != nil {
		appendPair(n, "deploy", deploy)
	}
	return n
}

func buildNode(b *service.BuildSpec) *yaml.Node {
	if b.IsContextOnly() {
		return stringNode(b.Context)
	}
	n := mappingNode()
	appendPair(n, "context", stringNode(b.Context))
	if b.Dockerfile != "" {
		appendPair(n, "dockerfile", stringNode(b.Dockerfile))
	}
	if len(b.Args) > 0 {
		appendPair(n, "args", sortedMapNode(b.Args))
	}
	if b.Target != "" {
		appendPair(n, "target", stringNode(b.Target))
	}
	if len(b.CacheFrom) > 0 {
		appendPair(n, "cache_from", stringSeq(b.CacheFrom))
	}
	return n
}

// environmentNode collapses duplicate keys: the last value wins and the
// key keeps the position of its first occurrence.
func environmentNode(env []service.EnvVar) *yaml.Node {
	last := make(map[string]string, len(env))
	var order []string
	for _, e := range env {
		if _, seen := last[e.Key]; !seen {
			order = append(order, e.Key)
		}
		last[e.Key] = e.Value
	}
	n := mappingNode()
	for _, k := range order {
		appendPair(n, k, stringNode(last[k]))
	}
	return n
}

// portNode writes the short "host:container" string unless a publish mode
// is set, which only the long form can carry.
func portNode(p service.Port) *yaml.Node {
	if p.Mode == "" {
		s := stringNode(p.String())
		s.Style = yaml.DoubleQuotedStyle
		return s
	}
	n := mappingNode()
	appendPair(n, "target", intNode(int64(p.ContainerPort)))
	if p.HostPort > 0 {
		appendPair(n, "published", intNode(int64(p.HostPort)))
	}
	if p.HostIP != "" {
		appendPair(n, "host_ip", stringNode(p.HostIP))
	}
	if p.Protocol != "" {
		appendPair(n, "protocol", stringNode(p.Protocol))
	}
	appendPair(n, "mode", stringNode(p.Mode))
	return n
}

// volumeNode writes the short syntax unless the kind differs from the one
// the short syntax would infer from the source.
func volumeNode(v service.Volume) *yaml.Node {
	if v.Kind == "" || v.Kind == service.InferVolumeKind(v.Source) {
		return stringNode(v.String())
	}
	n := mappingNode()
	appendPair(n, "type", stringNode(v.Kind.String()))
	if v.Source != "" {
		appendPair(n, "source", stringNode(v.Source))
	}
	appendPair(n, "target", stringNode(v.Target))
	if v.ReadOnly {
		appendPair(n, "read_only", boolNode(true))
	}
	return n
}

func healthNode(h *service.HealthCheck) *yaml.Node {
	n := mappingNode()
	if len(h.Test) > 0 {
		appendPair(n, "test", stringSeq(h.Test))
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"interval", h.Interval},
		{"timeout", h.Timeout},
		{"start_period", h.StartPeriod},
	} {
		if d.val != 0 {
			appendPair(n, d.key, stringNode(d.val.String()))
		}
	}
	if h.Retries != 0 {
		appendPair(n, "retries", intNode(int64(h.Retries)))
	}
	return n
}

// deployNode returns nil when neither replicas nor memory/cpu limits
// differ from the defaults.
func deployNode(def *service.Definition) *yaml.Node {
	r := def.Resources
	limits := mappingNode()
	if r.CPUs != "" {
		appendPair(limits, "cpus", stringNode(r.CPUs))
	}
	if r.Memory != "" {
		appendPair(limits, "memory", stringNode(r.Memory))
	}
	reservations := mappingNode()
	if r.MemoryReservation != "" {
		appendPair(reservations, "memory", stringNode(r.MemoryReservation))
	}

	resources := mappingNode()
	if len(limits.Content) > 0 {
		appendPair(resources, "limits", limits)
	}
	if len(reservations.Content) > 0 {
		appendPair(resources, "reservations", reservations)
	}

	n := mappingNode()
	if def.Replicas != 1 {
		appendPair(n, "replicas", intNode(int64(def.Replicas)))
	}
	if len(resources.Content) > 0 {
		appendPair(n, "resources", resources)
	}
	if len(n.Content) == 0 {
		return nil
	}
	return n
}

// declarations builds a sorted top-level mapping of names, each with an
// empty body or "external: true".
func declarations(names map[string]bool, external bool) *yaml.Node {
	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := mappingNode()
	for _, k := range keys {
		body := mappingNode()
		if external {
			appendPair(body, "external", boolNode(true))
		}
		appendPair(n, k, body)
	}
	return n
}

func sortedMapNode(m map[string]string) *yaml.Node {
	n := mappingNode()
	for _, k := range service.SortedKeys(m) {
		appendPair(n, k, stringNode(m[k]))
	}
	return n
}

func mappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func seqNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
}

// stringNode tags the scalar as a string so the encoder quotes values
// that would otherwise read back as numbers, booleans or null.
func stringNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func intNode(i int64) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(i, 10)}
}

func boolNode(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
}

func stringSeq(items []string) *yaml.Node {
	n := seqNode()
	for _, s := range items {
		n.Content = append(n.Content, stringNode(s))
	}
	return n
}

func appendPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, stringNode(key), value)
}
