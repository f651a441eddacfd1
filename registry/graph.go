package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/woojubb/robota-go/core"
)

// resolveOrder computes a topological order over dependency categories using
// Kahn's algorithm. Nodes are categories with at least one registered
// provider; an edge runs from a dependency to its dependent. Categories left
// with unresolved in-degree after no further progress form one or more
// cycles, reported as ordered cycle paths. Dependency types referenced but
// provided by no registered module are reported separately. Either failure
// aborts resolution entirely.
func resolveOrder(descriptors []core.Descriptor) ([]string, error) {
	providers := make(map[string]bool)
	for _, d := range descriptors {
		providers[d.Category] = true
	}

	var missing []string
	seenMissing := make(map[string]bool)
	graph := make(map[string][]string)
	inDegree := make(map[string]int)
	for cat := range providers {
		inDegree[cat] = 0
	}

	edgeSeen := make(map[string]bool)
	for _, d := range descriptors {
		for _, dep := range d.Dependencies {
			if !providers[dep] {
				if !seenMissing[dep] {
					seenMissing[dep] = true
					missing = append(missing, dep)
				}
				continue
			}
			key := dep + "\x00" + d.Category
			if edgeSeen[key] {
				continue
			}
			edgeSeen[key] = true
			graph[dep] = append(graph[dep], d.Category)
			inDegree[d.Category]++
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, core.NewConfigurationError("registry",
			"missing dependency types: %s", strings.Join(missing, ", "))
	}

	// Deterministic peeling order keeps initialization reproducible.
	var queue []string
	for cat, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, cat)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		cat := queue[0]
		queue = queue[1:]
		order = append(order, cat)

		next := append([]string(nil), graph[cat]...)
		sort.Strings(next)
		for _, dependent := range next {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(providers) {
		cycles := findCycles(graph, inDegree)
		return nil, core.NewConfigurationError("registry",
			"dependency cycle detected: %s", strings.Join(cycles, "; "))
	}

	return order, nil
}

// findCycles walks the residual graph (nodes with unresolved in-degree) and
// returns each discovered cycle as an ordered path "a -> b -> a".
func findCycles(graph map[string][]string, inDegree map[string]int) []string {
	residual := make(map[string]bool)
	for cat, deg := range inDegree {
		if deg > 0 {
			residual[cat] = true
		}
	}

	var roots []string
	for cat := range residual {
		roots = append(roots, cat)
	}
	sort.Strings(roots)

	var cycles []string
	reported := make(map[string]bool)

	var path []string
	index := make(map[string]int)
	done := make(map[string]bool)

	var visit func(node string)
	visit = func(node string) {
		if done[node] {
			return
		}
		if at, ok := index[node]; ok {
			cycle := append(append([]string(nil), path[at:]...), node)
			for _, n := range cycle {
				reported[n] = true
			}
			cycles = append(cycles, strings.Join(cycle, " -> "))
			return
		}
		index[node] = len(path)
		path = append(path, node)

		edges := append([]string(nil), graph[node]...)
		sort.Strings(edges)
		for _, e := range edges {
			if residual[e] {
				visit(e)
			}
		}

		path = path[:len(path)-1]
		delete(index, node)
		done[node] = true
	}

	for _, root := range roots {
		if !reported[root] {
			visit(root)
		}
	}

	if len(cycles) == 0 {
		// Should not happen when the caller detected leftover nodes.
		return []string{fmt.Sprintf("%d unresolved nodes", len(residual))}
	}
	return cycles
}
