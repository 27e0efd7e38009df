package compose

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/dockstack/internal/model"
	"github.com/mmr-tortoise/dockstack/internal/service"
)

// document is the top level of a compose file. Services is kept as a node
// so that document order survives decoding.
type document struct {
	Version  string    `yaml:"version"`
	Services yaml.Node `yaml:"services"`
}

// Unmarshal parses a compose document into one Definition per service, in
// document order. Invalid YAML, a missing services key, or a field of the
// wrong shape yields a parse error.
func Unmarshal(data []byte) ([]*service.Definition, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, model.WrapError(model.KindParse, "invalid compose document", err)
	}

	switch {
	case doc.Services.Kind == 0:
		return nil, model.NewError(model.KindParse, "invalid compose document: missing top-level \"services\" key")
	case doc.Services.Kind == yaml.ScalarNode && doc.Services.Tag == "!!null":
		return nil, nil
	case doc.Services.Kind != yaml.MappingNode:
		return nil, model.Errorf(model.KindParse, "invalid compose document: line %d: \"services\" must be a mapping", doc.Services.Line)
	}

	content := doc.Services.Content
	defs := make([]*service.Definition, 0, len(content)/2)
	seen := make(map[string]bool, len(content)/2)
	for i := 0; i+1 < len(content); i += 2 {
		name := content[i].Value
		if seen[name] {
			return nil, model.Errorf(model.KindParse, "invalid compose document: line %d: service %q declared twice", content[i].Line, name)
		}
		seen[name] = true

		var raw rawService
		if err := content[i+1].Decode(&raw); err != nil {
			return nil, model.WrapError(model.KindParse, fmt.Sprintf("invalid compose document: service %q", name), err)
		}
		def, err := toDefinition(name, &raw)
		if err != nil {
			return nil, model.WrapError(model.KindParse, fmt.Sprintf("invalid compose document: service %q", name), err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// toDefinition copies a decoded service into a Definition.
func toDefinition(name string, raw *rawService) (*service.Definition, error) {
	def := service.New(name)

	if raw.Image != "" {
		def.SetImage(raw.Image)
	}
	if raw.Build != nil {
		def.SetBuild(service.BuildSpec{
			Context:    raw.Build.Context,
			Dockerfile: raw.Build.Dockerfile,
			Args:       raw.Build.Args,
			Target:     raw.Build.Target,
			CacheFrom:  raw.Build.CacheFrom,
		})
		// A document may carry both; compose then builds and tags the
		// result with image. The build spec takes precedence here.
	}

	def.Command = raw.Command
	def.Entrypoint = raw.Entrypoint
	def.WorkingDir = raw.WorkingDir
	def.Hostname = raw.Hostname
	def.User = raw.User
	def.Env = raw.Environment
	def.EnvFiles = raw.EnvFile
	def.Networks = raw.Networks
	def.DependsOn = raw.DependsOn

	for _, p := range raw.Ports {
		def.AddPortSpec(p.Port)
	}
	for _, v := range raw.Volumes {
		def.AddVolumeSpec(v.Volume)
	}
	if len(raw.Labels) > 0 {
		def.Labels = raw.Labels
	}
	for _, s := range raw.Secrets {
		def.AddSecret(s.Name)
	}

	if raw.Restart != "" {
		policy, err := service.ParseRestartPolicy(raw.Restart)
		if err != nil {
			return nil, err
		}
		def.SetRestartPolicy(policy)
	}

	if raw.Healthcheck != nil {
		hc, err := toHealthCheck(raw.Healthcheck)
		if err != nil {
			return nil, err
		}
		def.SetHealthCheck(hc)
	}

	def.Resources = service.Resources{
		Memory:            raw.MemLimit,
		MemoryReservation: raw.MemReservation,
		CPUs:              raw.CPUs,
		CPUShares:         raw.CPUShares,
		CPUQuota:          raw.CPUQuota,
		CPUPeriod:         raw.CPUPeriod,
	}
	if d := raw.Deploy; d != nil {
		if d.Replicas != nil {
			def.SetReplicas(*d.Replicas)
		}
		// deploy.resources takes precedence over the legacy top-level keys.
		if lim := d.Resources.Limits; lim.Memory != "" {
			def.Resources.Memory = lim.Memory
		}
		if lim := d.Resources.Limits; lim.CPUs != "" {
			def.Resources.CPUs = lim.CPUs
		}
		if res := d.Resources.Reservations; res.Memory != "" {
			def.Resources.MemoryReservation = res.Memory
		}
	}

	return def, nil
}

func toHealthCheck(raw *rawHealthcheck) (service.HealthCheck, error) {
	hc := service.HealthCheck{
		Test:    raw.Test,
		Retries: raw.Retries,
	}
	if raw.Disable {
		hc.Test = []string{"NONE"}
	}

	for _, d := range []struct {
		key string
		src string
		dst *time.Duration
	}{
		{"interval", raw.Interval, &hc.Interval},
		{"timeout", raw.Timeout, &hc.Timeout},
		{"start_period", raw.StartPeriod, &hc.StartPeriod},
	} {
		if d.src == "" {
			continue
		}
		v, err := time.ParseDuration(d.src)
		if err != nil {
			return service.HealthCheck{}, fmt.Errorf("healthcheck %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return hc, nil
}
