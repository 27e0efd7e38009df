package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/dockstack/internal/model"
	"github.com/mmr-tortoise/dockstack/internal/service"
)

// defsWithDeps builds image definitions from "name:dep,dep" entries.
func defsWithDeps(entries map[string][]string, order ...string) []*service.Definition {
	defs := make([]*service.Definition, 0, len(order))
	for _, name := range order {
		def := service.New(name).SetImage("busybox")
		for _, dep := range entries[name] {
			def.DependsOnService(dep)
		}
		defs = append(defs, def)
	}
	return defs
}

func TestDeployOrder(t *testing.T) {
	tests := []struct {
		name     string
		deps     map[string][]string
		order    []string
		expected []string
	}{
		{
			name:     "no dependencies keeps registration order",
			order:    []string{"c", "a", "b"},
			expected: []string{"c", "a", "b"},
		},
		{
			name:     "dependency registered later moves first",
			deps:     map[string][]string{"webapp": {"database"}},
			order:    []string{"webapp", "database"},
			expected: []string{"database", "webapp"},
		},
		{
			name:     "chain",
			deps:     map[string][]string{"a": {"b"}, "b": {"c"}},
			order:    []string{"a", "b", "c"},
			expected: []string{"c", "b", "a"},
		},
		{
			name:     "diamond with registration-order ties",
			deps:     map[string][]string{"web": {"api", "cache"}, "api": {"db"}, "cache": {"db"}},
			order:    []string{"web", "cache", "api", "db"},
			expected: []string{"db", "cache", "api", "web"},
		},
		{
			name:     "independent service placed as soon as possible",
			deps:     map[string][]string{"web": {"db"}},
			order:    []string{"web", "db", "worker"},
			expected: []string{"db", "web", "worker"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := deployOrder(defsWithDeps(tt.deps, tt.order...))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDeployOrder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		deps   map[string][]string
		order  []string
		errMsg string
	}{
		{
			name:   "unknown dependency",
			deps:   map[string][]string{"web": {"db"}},
			order:  []string{"web"},
			errMsg: `service "web" depends on unknown service "db"`,
		},
		{
			name:   "self dependency",
			deps:   map[string][]string{"web": {"web"}},
			order:  []string{"web"},
			errMsg: "depends on itself",
		},
		{
			name:   "two-service cycle",
			deps:   map[string][]string{"a": {"b"}, "b": {"a"}},
			order:  []string{"a", "b", "c"},
			errMsg: "dependency cycle among services: a, b",
		},
		{
			name:   "cycle behind a valid prefix",
			deps:   map[string][]string{"b": {"c"}, "c": {"d"}, "d": {"b"}},
			order:  []string{"a", "b", "c", "d"},
			errMsg: "dependency cycle among services: b, c, d",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := deployOrder(defsWithDeps(tt.deps, tt.order...))
			require.Error(t, err)
			assert.Equal(t, model.KindConfiguration, model.KindOf(err))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
