package resolver

import (
	"github.com/sps2/pm/pkg/log"
	"github.com/sps2/pm/pkg/metrics"
	"github.com/sps2/pm/pkg/pmerrors"
)

// Resolver resolves an install request against a package index using
// the CDCL SAT encoding described in spec.md §4.3.
type Resolver struct {
	index *Index
}

// NewResolver returns a Resolver over index.
func NewResolver(index *Index) *Resolver {
	return &Resolver{index: index}
}

// Resolve finds a consistent set of package versions satisfying ctx,
// preferring the highest mutually compatible version of every package.
func (r *Resolver) Resolve(ctx ResolutionContext) (*ResolutionResult, error) {
	timer := metrics.NewTimer()
	logger := log.WithComponent("resolver")

	roots := make([]string, 0, len(ctx.RuntimeDeps)+len(ctx.BuildDeps))
	for _, spec := range ctx.RuntimeDeps {
		roots = append(roots, spec.Name)
	}
	for _, spec := range ctx.BuildDeps {
		roots = append(roots, spec.Name)
	}

	graph := buildNameGraph(r.index, roots)
	if cyclic, found := graph.detectCycle(); found {
		metrics.ResolutionOutcomesTotal.WithLabelValues("cycle").Inc()
		return nil, &pmerrors.ResolutionError{Kind: pmerrors.ResolutionDependencyCycle, Package: cyclic}
	}

	prob := newProblem(r.index)
	solver := NewSolver(0, nil)

	seenPackages := make(map[string]bool)
	for _, spec := range ctx.RuntimeDeps {
		if err := r.encodePackageClosure(prob, solver, spec.Name, false, seenPackages); err != nil {
			metrics.ResolutionOutcomesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		if err := prob.encodeRequest(solver, spec.Name, spec.Range); err != nil {
			metrics.ResolutionOutcomesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}
	for _, spec := range ctx.BuildDeps {
		if err := r.encodePackageClosure(prob, solver, spec.Name, true, seenPackages); err != nil {
			metrics.ResolutionOutcomesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		if err := prob.encodeRequest(solver, spec.Name, spec.Range); err != nil {
			metrics.ResolutionOutcomesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	solver.numVars = int(prob.nextVar)
	solver.versionPref = prob.versionPref

	assignment, ok := solver.Solve()
	metrics.ResolutionDecisionsTotal.Add(float64(solver.conflicts))
	if !ok {
		metrics.ResolutionConflictsTotal.Inc()
		metrics.ResolutionOutcomesTotal.WithLabelValues("unsat").Inc()
		timer.ObserveDuration(metrics.ResolutionDuration)
		explanation := explainUnsat(solver, prob)
		return nil, &pmerrors.ResolutionError{
			Kind: pmerrors.ResolutionDependencyConflict,
			Explanation: &pmerrors.ConflictExplanation{
				ConflictingPackages: explanation.ConflictingPackages,
				Message:             explanation.Message,
				Suggestions:         explanation.Suggestions,
			},
		}
	}

	nodes := make(map[PackageId]ResolvedNode)
	for v := Variable(0); v < Variable(prob.nextVar); v++ {
		if assignment.Value(v) != True {
			continue
		}
		id, ok := prob.packageID(v)
		if !ok {
			continue
		}
		entry := prob.versionOf[v]
		nodes[id] = ResolvedNode{
			Name:        id.Name,
			Version:     id.Version,
			Action:      ActionDownload,
			Deps:        depEdgesFor(entry),
			URL:         entry.URL,
			ArchiveHash: entry.ArchiveHash,
		}
	}

	for _, local := range ctx.LocalFiles {
		id := PackageId{Name: local.Name, Version: local.Version}
		nodes[id] = ResolvedNode{
			Name:    local.Name,
			Version: local.Version,
			Action:  ActionLocal,
			Path:    local.Path,
			Deps:    depEdgesForRaw(local.RuntimeDeps, DepRuntime),
		}
	}

	plan, err := buildExecutionPlan(nodes)
	if err != nil {
		metrics.ResolutionOutcomesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.ResolutionOutcomesTotal.WithLabelValues("solved").Inc()
	timer.ObserveDuration(metrics.ResolutionDuration)
	logger.Info().Int("packages", len(nodes)).Int("batches", len(plan.Batches)).Msg("resolution completed")

	return &ResolutionResult{Nodes: nodes, ExecutionPlan: plan}, nil
}

// encodePackageClosure walks name and every transitive dependency
// reachable from it, adding at-most-one and dependency clauses for
// each package exactly once.
func (r *Resolver) encodePackageClosure(prob *problem, solver *Solver, name string, includeBuildDeps bool, seen map[string]bool) error {
	if seen[name] {
		return nil
	}
	seen[name] = true

	if err := prob.encodeAtMostOne(solver, name); err != nil {
		return err
	}
	if err := prob.encodeDependencies(solver, name, includeBuildDeps); err != nil {
		return err
	}

	for _, entry := range prob.index.Versions(name) {
		for _, raw := range entry.RuntimeDeps {
			depName, _, err := parseDepSpec(raw)
			if err != nil {
				return err
			}
			if err := r.encodePackageClosure(prob, solver, depName, false, seen); err != nil {
				return err
			}
		}
		if includeBuildDeps {
			for _, raw := range entry.BuildDeps {
				depName, _, err := parseDepSpec(raw)
				if err != nil {
					return err
				}
				if err := r.encodePackageClosure(prob, solver, depName, false, seen); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func depEdgesFor(entry VersionEntry) []DepEdge {
	edges := depEdgesForRaw(entry.RuntimeDeps, DepRuntime)
	edges = append(edges, depEdgesForRaw(entry.BuildDeps, DepBuild)...)
	return edges
}

func depEdgesForRaw(raw []string, kind DepKind) []DepEdge {
	var edges []DepEdge
	for _, spec := range raw {
		name, rng, err := parseDepSpec(spec)
		if err != nil {
			continue
		}
		edges = append(edges, DepEdge{Name: name, Range: rng, Kind: kind})
	}
	return edges
}
