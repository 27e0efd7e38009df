package stack

import (
	"strings"

	"github.com/mmr-tortoise/dockstack/internal/model"
	"github.com/mmr-tortoise/dockstack/internal/service"
)

// deployOrder returns the service names so that every service comes after
// the services it depends on. Among services whose dependencies are all
// placed, the one registered first goes first.
//
// An unknown dependency or a cycle is a configuration error.
func deployOrder(defs []*service.Definition) ([]string, error) {
	index := make(map[string]int, len(defs))
	for i, def := range defs {
		index[def.Name()] = i
	}

	// pending[i] counts the unplaced dependencies of defs[i].
	pending := make([]int, len(defs))
	dependents := make([][]int, len(defs))
	for i, def := range defs {
		seen := make(map[string]bool, len(def.DependsOn))
		for _, dep := range def.DependsOn {
			if seen[dep] {
				continue
			}
			seen[dep] = true

			j, ok := index[dep]
			if !ok {
				return nil, model.Errorf(model.KindConfiguration,
					"service %q depends on unknown service %q", def.Name(), dep)
			}
			if j == i {
				return nil, model.Errorf(model.KindConfiguration, "service %q depends on itself", def.Name())
			}
			pending[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	placed := make([]bool, len(defs))
	order := make([]string, 0, len(defs))
	for len(order) < len(defs) {
		next := -1
		for i := range defs {
			if !placed[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var cycle []string
			for i, def := range defs {
				if !placed[i] {
					cycle = append(cycle, def.Name())
				}
			}
			return nil, model.Errorf(model.KindConfiguration,
				"dependency cycle among services: %s", strings.Join(cycle, ", "))
		}

		placed[next] = true
		order = append(order, defs[next].Name())
		for _, d := range dependents[next] {
			pending[d]--
		}
	}
	return order, nil
}
