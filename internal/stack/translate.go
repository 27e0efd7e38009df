package stack

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/subosito/gotenv"

	"github.com/mmr-tortoise/dockstack/internal/docker"
	"github.com/mmr-tortoise/dockstack/internal/model"
	"github.com/mmr-tortoise/dockstack/internal/service"
)

// defaultNetwork is the suffix of the network every replica joins.
const defaultNetwork = "default"

// scopedName prefixes a stack-level resource name with the stack name.
func (s *Stack) scopedName(name string) string {
	return s.name + "_" + name
}

// builtImageTag is the tag a build-only service is built into. Image
// repository names must be lowercase.
func (s *Stack) builtImageTag(serviceName string) string {
	return strings.ToLower(s.scopedName(serviceName)) + ":latest"
}

// imageFor returns the image a service's replicas run.
func (s *Stack) imageFor(def *service.Definition) string {
	if def.Image == "" && def.Build != nil {
		return s.builtImageTag(def.Name())
	}
	return def.Image
}

// resolvePath makes a relative or home-relative path absolute against the
// stack's base directory.
func (s *Stack) resolvePath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	base := s.baseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		base = wd
	}
	return filepath.Join(base, p), nil
}

// containerSpec translates one replica of a definition into the request
// the runtime sends to the daemon.
func (s *Stack) containerSpec(def *service.Definition, index int) (docker.ContainerSpec, error) {
	env, err := s.environment(def)
	if err != nil {
		return docker.ContainerSpec{}, err
	}
	mounts, err := s.mounts(def)
	if err != nil {
		return docker.ContainerSpec{}, err
	}

	spec := docker.ContainerSpec{
		Name:       model.ReplicaName(s.name, def.Name(), index),
		Image:      s.imageFor(def),
		Command:    def.Command,
		Entrypoint: def.Entrypoint,
		Env:        env,
		WorkingDir: def.WorkingDir,
		Hostname:   def.Hostname,
		User:       def.User,
		Labels:     docker.BuildLabels(s.name, def.Name(), index, def.Labels),
		Ports:      def.Ports,
		Mounts:     mounts,
		CPUShares:  def.Resources.CPUShares,
		CPUQuota:   def.Resources.CPUQuota,
		CPUPeriod:  def.Resources.CPUPeriod,
		Restart:    def.Restart,
		Health:     def.Health,
		Network:    s.scopedName(defaultNetwork),
		Aliases:    []string{def.Name()},
	}
	for _, n := range def.Networks {
		if n != defaultNetwork {
			spec.ExtraNetworks = append(spec.ExtraNetworks, s.scopedName(n))
		}
	}

	if spec.Memory, err = parseMemory(def.Name(), "memory", def.Resources.Memory); err != nil {
		return docker.ContainerSpec{}, err
	}
	if spec.MemoryReservation, err = parseMemory(def.Name(), "memory reservation", def.Resources.MemoryReservation); err != nil {
		return docker.ContainerSpec{}, err
	}
	if spec.NanoCPUs, err = parseNanoCPUs(def.Name(), def.Resources.CPUs); err != nil {
		return docker.ContainerSpec{}, err
	}
	return spec, nil
}

// environment merges env files (in order, later files win) with the
// definition's own entries, which win over every file.
func (s *Stack) environment(def *service.Definition) ([]string, error) {
	var env []string
	if len(def.EnvFiles) > 0 {
		merged := make(map[string]string)
		for _, f := range def.EnvFiles {
			path, err := s.resolvePath(f)
			if err != nil {
				return nil, model.WrapError(model.KindIO, fmt.Sprintf("service %q: env file %q", def.Name(), f), err)
			}
			vars, err := gotenv.Read(path)
			if err != nil {
				return nil, model.WrapError(model.KindIO, fmt.Sprintf("service %q: failed to read env file %q", def.Name(), f), err)
			}
			for k, v := range vars {
				merged[k] = v
			}
		}
		for _, k := range service.SortedKeys(merged) {
			env = append(env, k+"="+merged[k])
		}
	}
	for _, e := range def.Env {
		env = append(env, e.Key+"="+e.Value)
	}
	return env, nil
}

// mounts scopes named volume sources to the stack and makes bind sources
// absolute.
func (s *Stack) mounts(def *service.Definition) ([]service.Volume, error) {
	if len(def.Volumes) == 0 {
		return nil, nil
	}
	mounts := make([]service.Volume, 0, len(def.Volumes))
	for _, v := range def.Volumes {
		switch {
		case v.Source == "":
		case v.Kind == service.VolumeNamed:
			v.Source = s.scopedName(v.Source)
		default:
			src, err := s.resolvePath(v.Source)
			if err != nil {
				return nil, model.WrapError(model.KindIO, fmt.Sprintf("service %q: bind source %q", def.Name(), v.Source), err)
			}
			v.Source = src
		}
		mounts = append(mounts, v)
	}
	return mounts, nil
}

// namedVolumes returns the stack-scoped names of every named volume used
// by the given services, in first-use order.
func (s *Stack) namedVolumes(defs []*service.Definition) []string {
	var names []string
	seen := make(map[string]bool)
	for _, def := range defs {
		for _, v := range def.Volumes {
			if v.Kind != service.VolumeNamed || v.Source == "" {
				continue
			}
			name := s.scopedName(v.Source)
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// declaredNetworks returns the stack-scoped names of every non-default
// network the given services join, in first-use order.
func (s *Stack) declaredNetworks(defs []*service.Definition) []string {
	var names []string
	seen := make(map[string]bool)
	for _, def := range defs {
		for _, n := range def.Networks {
			if n == defaultNetwork {
				continue
			}
			name := s.scopedName(n)
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

func parseMemory(serviceName, field, value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(value)
	if err != nil {
		return 0, model.WrapError(model.KindValidation, fmt.Sprintf("service %q: invalid %s %q", serviceName, field, value), err)
	}
	return n, nil
}

// parseNanoCPUs converts a fractional CPU count ("1.5") to the daemon's
// 1e-9 CPU units.
func parseNanoCPUs(serviceName, value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, model.Errorf(model.KindValidation, "service %q: invalid cpus %q", serviceName, value)
	}
	return int64(math.Round(f * 1e9)), nil
}
