package resolver

import "github.com/sps2/pm/pkg/pmerrors"

// nameGraph is a conservative, version-agnostic dependency graph: an
// edge p -> q exists if ANY version of p in the index lists q as a
// runtime or build dependency. It over-approximates the graph the SAT
// solver will actually select, so a cycle through any version of a
// package is reported here even when picking other versions would
// avoid it; checking it before the SAT search gives a much clearer
// error than waiting for UNSAT.
type nameGraph map[string][]string

func buildNameGraph(index *Index, roots []string) nameGraph {
	graph := make(nameGraph)
	visited := make(map[string]bool)

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true

		deps := make(map[string]bool)
		for _, entry := range index.Versions(name) {
			for _, raw := range entry.RuntimeDeps {
				depName, _, err := parseDepSpec(raw)
				if err == nil {
					deps[depName] = true
				}
			}
			for _, raw := range entry.BuildDeps {
				depName, _, err := parseDepSpec(raw)
				if err == nil {
					deps[depName] = true
				}
			}
		}

		for dep := range deps {
			graph[name] = append(graph[name], dep)
			visit(dep)
		}
	}

	for _, root := range roots {
		visit(root)
	}
	return graph
}

// detectCycle reports the first package found to participate in a
// cycle, via depth-first search with a three-color marking.
func (g nameGraph) detectCycle() (string, bool) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int)

	var visit func(name string) (string, bool)
	visit = func(name string) (string, bool) {
		color[name] = gray
		for _, dep := range g[name] {
			switch color[dep] {
			case gray:
				return dep, true
			case white:
				if found, ok := visit(dep); ok {
					return found, true
				}
			}
		}
		color[name] = black
		return "", false
	}

	for name := range g {
		if color[name] == white {
			if found, ok := visit(name); ok {
				return found, true
			}
		}
	}
	return "", false
}

// buildExecutionPlan partitions nodes into batches where every
// dependency of a node is in a strictly earlier batch, by repeatedly
// peeling off nodes whose dependencies are already placed (Kahn's
// algorithm, layered rather than flattened).
func buildExecutionPlan(nodes map[PackageId]ResolvedNode) (ExecutionPlan, error) {
	remaining := make(map[PackageId]ResolvedNode, len(nodes))
	for id, n := range nodes {
		remaining[id] = n
	}

	var plan ExecutionPlan
	placed := make(map[PackageId]bool)

	for len(remaining) > 0 {
		var batch []PackageId
		for id, node := range remaining {
			ready := true
			for _, dep := range node.Deps {
				depID := PackageId{Name: dep.Name, Version: bestMatchingVersion(nodes, dep)}
				if depID.Version == "" {
					continue // dependency resolved to a node outside this set (shouldn't happen, decoder guarantees coverage)
				}
				if !placed[depID] {
					ready = false
					break
				}
			}
			if ready {
				batch = append(batch, id)
			}
		}

		if len(batch) == 0 {
			return ExecutionPlan{}, &pmerrors.Internal{Message: "execution plan: no progress, dependency graph is not acyclic"}
		}

		for _, id := range batch {
			placed[id] = true
			delete(remaining, id)
		}
		plan.Batches = append(plan.Batches, batch)
	}

	return plan, nil
}

// bestMatchingVersion finds which selected node satisfies dep, since a
// DepEdge carries a range rather than the exact version the solver
// picked.
func bestMatchingVersion(nodes map[PackageId]ResolvedNode, dep DepEdge) string {
	for id := range nodes {
		if id.Name == dep.Name && dep.Range.Matches(id.Version) {
			return id.Version
		}
	}
	return ""
}
