package service

import (
	"github.com/mmr-tortoise/dockstack/internal/model"
)

// Definition is the declarative description of one service in a stack.
//
// The name is fixed at construction; every other field is set through the
// fluent setters below or directly by the compose importer. The image
// source is either Image or Build: setting one clears the other.
type Definition struct {
	name string

	Image      string
	Build      *BuildSpec
	Ports      []Port
	Env        []EnvVar
	Volumes    []Volume
	Command    []string
	Entrypoint []string
	WorkingDir string
	Hostname   string
	User       string
	Labels     map[string]string
	Resources  Resources
	Restart    *RestartPolicy
	Health     *HealthCheck
	Secrets    []string
	EnvFiles   []string
	Networks   []string
	Replicas   int
	DependsOn  []string
}

// New creates an empty definition with one replica.
func New(name string) *Definition {
	return &Definition{name: name, Replicas: 1}
}

// Name returns the service name.
func (d *Definition) Name() string {
	return d.name
}

// SetImage sets the image reference and clears any build spec.
func (d *Definition) SetImage(ref string) *Definition {
	d.Image = ref
	d.Build = nil
	return d
}

// SetBuild sets the build spec and clears any image reference.
func (d *Definition) SetBuild(spec BuildSpec) *Definition {
	d.Build = spec.clone()
	d.Image = ""
	return d
}

// AddPort appends a port. hostPort 0 leaves the host side unset. No range
// checks are made here; an invalid port surfaces as a daemon error at
// deploy time.
func (d *Definition) AddPort(containerPort, hostPort int, protocol, mode string) *Definition {
	d.Ports = append(d.Ports, Port{
		ContainerPort: containerPort,
		HostPort:      hostPort,
		Protocol:      protocol,
		Mode:          mode,
	})
	return d
}

// AddPortSpec appends a fully specified port, typically the result of
// ParsePortMapping.
func (d *Definition) AddPortSpec(p Port) *Definition {
	d.Ports = append(d.Ports, p)
	return d
}

// AddEnv appends an environment entry. Duplicate keys are kept in order.
func (d *Definition) AddEnv(key, value string) *Definition {
	d.Env = append(d.Env, EnvVar{Key: key, Value: value})
	return d
}

// AddVolume appends a mount whose kind is inferred from source.
func (d *Definition) AddVolume(source, target string, readOnly bool) *Definition {
	d.Volumes = append(d.Volumes, Volume{
		Source:   source,
		Target:   target,
		Kind:     InferVolumeKind(source),
		ReadOnly: readOnly,
	})
	return d
}

// AddVolumeSpec appends a fully specified mount.
func (d *Definition) AddVolumeSpec(v Volume) *Definition {
	if v.Kind == "" {
		v.Kind = InferVolumeKind(v.Source)
	}
	d.Volumes = append(d.Volumes, v)
	return d
}

// SetCommand overrides the image's CMD.
func (d *Definition) SetCommand(args ...string) *Definition {
	d.Command = cloneStrings(args)
	return d
}

// SetEntrypoint overrides the image's ENTRYPOINT.
func (d *Definition) SetEntrypoint(args ...string) *Definition {
	d.Entrypoint = cloneStrings(args)
	return d
}

// SetWorkingDir sets the working directory inside the container.
func (d *Definition) SetWorkingDir(dir string) *Definition {
	d.WorkingDir = dir
	return d
}

// SetHostname sets the container hostname.
func (d *Definition) SetHostname(hostname string) *Definition {
	d.Hostname = hostname
	return d
}

// SetUser sets the user (name, uid or uid:gid) the process runs as.
func (d *Definition) SetUser(user string) *Definition {
	d.User = user
	return d
}

// AddLabel sets one container label.
func (d *Definition) AddLabel(key, value string) *Definition {
	if d.Labels == nil {
		d.Labels = make(map[string]string)
	}
	d.Labels[key] = value
	return d
}

// SetMemory sets the hard memory limit, e.g. "512m" or "1g".
func (d *Definition) SetMemory(limit string) *Definition {
	d.Resources.Memory = limit
	return d
}

// SetMemoryReservation sets the soft memory limit.
func (d *Definition) SetMemoryReservation(limit string) *Definition {
	d.Resources.MemoryReservation = limit
	return d
}

// SetCPUs sets the CPU limit as a decimal number of CPUs, e.g. "0.5".
func (d *Definition) SetCPUs(cpus string) *Definition {
	d.Resources.CPUs = cpus
	return d
}

// SetCPUShares sets the relative CPU weight.
func (d *Definition) SetCPUShares(shares int64) *Definition {
	d.Resources.CPUShares = shares
	return d
}

// SetCPUQuota sets the CFS quota and period in microseconds.
func (d *Definition) SetCPUQuota(quota, period int64) *Definition {
	d.Resources.CPUQuota = quota
	d.Resources.CPUPeriod = period
	return d
}

// SetRestartPolicy sets the restart policy.
func (d *Definition) SetRestartPolicy(policy RestartPolicy) *Definition {
	p := policy
	d.Restart = &p
	return d
}

// SetHealthCheck sets the health check. Durations are stored as given.
func (d *Definition) SetHealthCheck(hc HealthCheck) *Definition {
	d.Health = hc.clone()
	return d
}

// AddSecret appends a secret name. Secrets are serialized to compose but
// are not applied to standalone containers.
func (d *Definition) AddSecret(name string) *Definition {
	d.Secrets = append(d.Secrets, name)
	return d
}

// AddEnvFile appends an env file path, read at deploy time.
func (d *Definition) AddEnvFile(path string) *Definition {
	d.EnvFiles = append(d.EnvFiles, path)
	return d
}

// AddNetwork attaches the service to a stack network in addition to the
// default one.
func (d *Definition) AddNetwork(name string) *Definition {
	d.Networks = append(d.Networks, name)
	return d
}

// SetReplicas sets the number of containers to run.
func (d *Definition) SetReplicas(n int) *Definition {
	d.Replicas = n
	return d
}

// DependsOnService declares that this service starts after the named one.
// Duplicate declarations are ignored.
func (d *Definition) DependsOnService(name string) *Definition {
	for _, dep := range d.DependsOn {
		if dep == name {
			return d
		}
	}
	d.DependsOn = append(d.DependsOn, name)
	return d
}

// CloneWithName returns a deep copy of d under a new name. Mutating the
// copy never affects d and vice versa.
func (d *Definition) CloneWithName(name string) *Definition {
	c := *d
	c.name = name
	c.Build = d.Build.clone()
	c.Ports = append([]Port(nil), d.Ports...)
	c.Env = append([]EnvVar(nil), d.Env...)
	c.Volumes = append([]Volume(nil), d.Volumes...)
	c.Command = cloneStrings(d.Command)
	c.Entrypoint = cloneStrings(d.Entrypoint)
	c.Labels = cloneMap(d.Labels)
	if d.Restart != nil {
		r := *d.Restart
		c.Restart = &r
	}
	c.Health = d.Health.clone()
	c.Secrets = cloneStrings(d.Secrets)
	c.EnvFiles = cloneStrings(d.EnvFiles)
	c.Networks = cloneStrings(d.Networks)
	c.DependsOn = cloneStrings(d.DependsOn)
	return &c
}

// Clone returns a deep copy of d under the same name.
func (d *Definition) Clone() *Definition {
	return d.CloneWithName(d.name)
}

// EnvMap collapses the ordered environment list to a map, the last value
// winning for duplicate keys.
func (d *Definition) EnvMap() map[string]string {
	m := make(map[string]string, len(d.Env))
	for _, e := range d.Env {
		m[e.Key] = e.Value
	}
	return m
}

// Validate checks the definition for problems that would make it
// impossible to deploy. Checks that need the daemon are not made.
func (d *Definition) Validate() error {
	if err := model.ValidateName("service", d.name); err != nil {
		return err
	}
	if d.Image == "" && d.Build == nil {
		return model.Errorf(model.KindValidation, "service %q has neither an image nor a build context", d.name)
	}
	if d.Build != nil && d.Build.Context == "" {
		return model.Errorf(model.KindValidation, "service %q has a build spec without a context", d.name)
	}
	if d.Replicas < 0 {
		return model.Errorf(model.KindValidation, "service %q: replicas must not be negative (got %d)", d.name, d.Replicas)
	}
	if d.Restart != nil && !d.Restart.Name.IsValid() {
		return model.Errorf(model.KindValidation, "service %q: invalid restart policy %q", d.name, d.Restart.Name)
	}
	for _, dep := range d.DependsOn {
		if dep == d.name {
			return model.Errorf(model.KindConfiguration, "service %q depends on itself", d.name)
		}
	}
	return nil
}
