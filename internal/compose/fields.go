package compose

import (
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/dockstack/internal/service"
)

// rawService mirrors one entry of the compose services mapping. Fields this
// package does not model are ignored.
type rawService struct {
	Image          string          `yaml:"image"`
	Build          *rawBuild       `yaml:"build"`
	Command        shellCommand    `yaml:"command"`
	Entrypoint     shellCommand    `yaml:"entrypoint"`
	WorkingDir     string          `yaml:"working_dir"`
	Hostname       string          `yaml:"hostname"`
	User           string          `yaml:"user"`
	Environment    environment     `yaml:"environment"`
	EnvFile        stringOrList    `yaml:"env_file"`
	Ports          []rawPort       `yaml:"ports"`
	Volumes        []rawVolume     `yaml:"volumes"`
	Labels         stringMap       `yaml:"labels"`
	Restart        string          `yaml:"restart"`
	Healthcheck    *rawHealthcheck `yaml:"healthcheck"`
	Secrets        []rawSecret     `yaml:"secrets"`
	Networks       nameList        `yaml:"networks"`
	DependsOn      nameList        `yaml:"depends_on"`
	MemLimit       string          `yaml:"mem_limit"`
	MemReservation string          `yaml:"mem_reservation"`
	CPUs           string          `yaml:"cpus"`
	CPUShares      int64           `yaml:"cpu_shares"`
	CPUQuota       int64           `yaml:"cpu_quota"`
	CPUPeriod      int64           `yaml:"cpu_period"`
	Deploy         *rawDeploy      `yaml:"deploy"`
}

// rawBuild is either a context path or a build mapping.
type rawBuild struct {
	Context    string    `yaml:"context"`
	Dockerfile string    `yaml:"dockerfile"`
	Args       stringMap `yaml:"args"`
	Target     string    `yaml:"target"`
	CacheFrom  []string  `yaml:"cache_from"`
}

func (b *rawBuild) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		b.Context = value.Value
		return nil
	}
	type plain rawBuild
	return value.Decode((*plain)(b))
}

type rawDeploy struct {
	Replicas  *int `yaml:"replicas"`
	Resources struct {
		Limits struct {
			CPUs   string `yaml:"cpus"`
			Memory string `yaml:"memory"`
		} `yaml:"limits"`
		Reservations struct {
			Memory string `yaml:"memory"`
		} `yaml:"reservations"`
	} `yaml:"resources"`
}

type rawHealthcheck struct {
	Test        healthTest `yaml:"test"`
	Interval    string     `yaml:"interval"`
	Timeout     string     `yaml:"timeout"`
	StartPeriod string     `yaml:"start_period"`
	Retries     int        `yaml:"retries"`
	Disable     bool       `yaml:"disable"`
}

// healthTest accepts the list form as is and wraps the string form in
// CMD-SHELL, as compose does.
type healthTest []string

func (h *healthTest) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*h = healthTest{"CMD-SHELL", value.Value}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*h = list
	return nil
}

// shellCommand accepts a list of arguments or a single string split with
// shell quoting rules.
type shellCommand []string

func (c *shellCommand) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*c = nil
			return nil
		}
		args, err := shellwords.Parse(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: cannot split command %q: %w", value.Line, value.Value, err)
		}
		*c = args
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*c = list
		return nil
	default:
		return fmt.Errorf("line %d: command must be a string or a list of strings", value.Line)
	}
}

// stringOrList can be either a string or a list of strings.
type stringOrList []string

func (s *stringOrList) UnmarshalYAML(value *yaml.Node) error {
	var multi []string
	if err := value.Decode(&multi); err == nil {
		*s = multi
		return nil
	}
	var single string
	if err := value.Decode(&single); err != nil {
		return err
	}
	*s = []string{single}
	return nil
}

// nameList accepts a list of names or a mapping whose keys are the names
// (the long depends_on and networks forms). Document order is preserved.
type nameList []string

func (n *nameList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*n = list
		return nil
	case yaml.MappingNode:
		names := make([]string, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			names = append(names, value.Content[i].Value)
		}
		*n = names
		return nil
	default:
		return fmt.Errorf("line %d: expected a list or a mapping of names", value.Line)
	}
}

// environment keeps entries in document order. It accepts a mapping or a
// list of KEY=VALUE strings; a null mapping value or a bare KEY yields an
// empty value.
type environment []service.EnvVar

func (e *environment) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		vars := make([]service.EnvVar, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			vars = append(vars, service.EnvVar{
				Key:   value.Content[i].Value,
				Value: scalarValue(value.Content[i+1]),
			})
		}
		*e = vars
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		vars := make([]service.EnvVar, 0, len(list))
		for _, entry := range list {
			k, v, _ := strings.Cut(entry, "=")
			vars = append(vars, service.EnvVar{Key: k, Value: v})
		}
		*e = vars
		return nil
	default:
		return fmt.Errorf("line %d: environment must be a mapping or a list of KEY=VALUE strings", value.Line)
	}
}

// stringMap accepts a mapping or a list of key=value strings (labels and
// build args).
type stringMap map[string]string

func (m *stringMap) UnmarshalYAML(value *yaml.Node) error {
	var env environment
	if err := env.UnmarshalYAML(value); err != nil {
		return err
	}
	out := make(map[string]string, len(env))
	for _, kv := range env {
		out[kv.Key] = kv.Value
	}
	*m = out
	return nil
}

// rawPort is the short string, a bare number, or the long mapping form.
type rawPort struct {
	service.Port
}

func (p *rawPort) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		port, err := service.ParsePortMapping(value.Value)
		if err != nil {
			return err
		}
		p.Port = port
		return nil
	}

	var long struct {
		Target    int    `yaml:"target"`
		Published string `yaml:"published"`
		HostIP    string `yaml:"host_ip"`
		Protocol  string `yaml:"protocol"`
		Mode      string `yaml:"mode"`
	}
	if err := value.Decode(&long); err != nil {
		return err
	}
	if long.Target < 1 || long.Target > 65535 {
		return fmt.Errorf("line %d: port target %d out of range (1-65535)", value.Line, long.Target)
	}
	p.Port = service.Port{
		ContainerPort: long.Target,
		HostIP:        long.HostIP,
		Protocol:      long.Protocol,
		Mode:          long.Mode,
	}
	if long.Published != "" {
		hp, err := service.ParsePortMapping(long.Published)
		if err != nil {
			return err
		}
		p.HostPort = hp.ContainerPort
	}
	return nil
}

// rawVolume is the short string or the long mapping form.
type rawVolume struct {
	service.Volume
}

func (v *rawVolume) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		vol, err := service.ParseVolumeMapping(value.Value)
		if err != nil {
			return err
		}
		v.Volume = vol
		return nil
	}

	var long struct {
		Type     string `yaml:"type"`
		Source   string `yaml:"source"`
		Target   string `yaml:"target"`
		ReadOnly bool   `yaml:"read_only"`
	}
	if err := value.Decode(&long); err != nil {
		return err
	}
	if long.Target == "" {
		return fmt.Errorf("line %d: volume target must not be empty", value.Line)
	}
	kind := service.VolumeKind(long.Type)
	switch kind {
	case "":
		kind = service.InferVolumeKind(long.Source)
	case service.VolumeBind, service.VolumeNamed:
	default:
		return fmt.Errorf("line %d: unsupported volume type %q (valid: bind, volume)", value.Line, long.Type)
	}
	v.Volume = service.Volume{
		Source:   long.Source,
		Target:   long.Target,
		Kind:     kind,
		ReadOnly: long.ReadOnly,
	}
	return nil
}

// rawSecret is a secret name or a mapping with a source.
type rawSecret struct {
	Name string
}

func (s *rawSecret) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		s.Name = value.Value
		return nil
	}
	var long struct {
		Source string `yaml:"source"`
	}
	if err := value.Decode(&long); err != nil {
		return err
	}
	s.Name = long.Source
	return nil
}

// scalarValue returns the text of a scalar node, mapping null to "".
func scalarValue(n *yaml.Node) string {
	if n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}
	return n.Value
}
