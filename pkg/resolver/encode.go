package resolver

import (
	"fmt"

	"github.com/sps2/pm/pkg/pmerrors"
)

// problem holds the CNF encoding of a resolution request together with
// the bookkeeping needed to decode a satisfying assignment back into
// package identities.
type problem struct {
	index *Index

	variableOf map[PackageId]Variable
	packageOf  map[Variable]PackageId
	versionOf  map[Variable]VersionEntry
	versionPref map[Variable]int

	nextVar Variable
}

func newProblem(index *Index) *problem {
	return &problem{
		index:       index,
		variableOf:  make(map[PackageId]Variable),
		packageOf:   make(map[Variable]PackageId),
		versionOf:   make(map[Variable]VersionEntry),
		versionPref: make(map[Variable]int),
	}
}

// variableFor returns the variable for (name, entry), allocating one on
// first use. Preference rank increases with version order so the
// solver's tie-breaking favors newer versions.
func (p *problem) variableFor(name string, entry VersionEntry, rank int) Variable {
	id := PackageId{Name: name, Version: entry.Version}
	if v, ok := p.variableOf[id]; ok {
		return v
	}
	v := p.nextVar
	p.nextVar++
	p.variableOf[id] = v
	p.packageOf[v] = id
	p.versionOf[v] = entry
	p.versionPref[v] = rank
	return v
}

// variablesForPackage returns (and lazily allocates) every variable for
// name's known versions, ascending, so rank 0 is the oldest.
func (p *problem) variablesForPackage(name string) ([]Variable, error) {
	entries := p.index.Versions(name)
	if len(entries) == 0 {
		return nil, &pmerrors.ResolutionError{Kind: pmerrors.ResolutionNotFound, Package: name}
	}
	vars := make([]Variable, len(entries))
	for i, e := range entries {
		vars[i] = p.variableFor(name, e, i)
	}
	return vars, nil
}

// encodeRequest builds the Request clause (spec.md §4.3): at least one
// matching version of name must be selected.
func (p *problem) encodeRequest(s *Solver, name string, rng Range) error {
	matches := p.index.MatchingVersions(name, rng)
	if len(matches) == 0 {
		return &pmerrors.ResolutionError{Kind: pmerrors.ResolutionNoMatchingVersion, Package: name}
	}

	allVars, err := p.variablesForPackage(name)
	if err != nil {
		return err
	}
	rankOf := make(map[string]int, len(allVars))
	for i, v := range allVars {
		rankOf[p.versionOf[v].Version] = i
	}

	var literals []Literal
	for _, entry := range matches {
		v := p.variableFor(name, entry, rankOf[entry.Version])
		literals = append(literals, NewLiteral(v, true))
	}
	s.AddClause(literals, false)
	return nil
}

// encodeAtMostOne builds the At-most-one clauses for every pair of
// versions of name: selecting two versions of the same package at
// once is never valid.
func (p *problem) encodeAtMostOne(s *Solver, name string) error {
	vars, err := p.variablesForPackage(name)
	if err != nil {
		return err
	}
	for i := 0; i < len(vars); i++ {
		for j := i + 1; j < len(vars); j++ {
			s.AddClause([]Literal{
				NewLiteral(vars[i], false),
				NewLiteral(vars[j], false),
			}, false)
		}
	}
	return nil
}

// encodeDependencies builds the Dependency clause for every version of
// name: selecting that version implies at least one matching version
// of each of its runtime (and, for build-only packages, build) deps.
func (p *problem) encodeDependencies(s *Solver, name string, includeBuildDeps bool) error {
	entries := p.index.Versions(name)
	vars, err := p.variablesForPackage(name)
	if err != nil {
		return err
	}

	for i, entry := range entries {
		self := vars[i]
		depLists := [][]string{entry.RuntimeDeps}
		if includeBuildDeps {
			depLists = append(depLists, entry.BuildDeps)
		}

		for _, list := range depLists {
			for _, raw := range list {
				depName, depRange, err := parseDepSpec(raw)
				if err != nil {
					return err
				}

				matches := p.index.MatchingVersions(depName, depRange)
				if len(matches) == 0 {
					return &pmerrors.ResolutionError{Kind: pmerrors.ResolutionNoMatchingVersion, Package: depName}
				}

				depVars, err := p.variablesForPackage(depName)
				if err != nil {
					return err
				}
				depRankOf := make(map[string]int, len(depVars))
				for j, dv := range depVars {
					depRankOf[p.versionOf[dv].Version] = j
				}

				literals := []Literal{NewLiteral(self, false)}
				for _, depEntry := range matches {
					dv := p.variableFor(depName, depEntry, depRankOf[depEntry.Version])
					literals = append(literals, NewLiteral(dv, true))
				}
				s.AddClause(literals, false)
			}
		}
	}
	return nil
}

// parseDepSpec splits a "name range" dependency string, e.g.
// "zlib >=1.2.0", into its package name and version range.
func parseDepSpec(raw string) (name string, rng Range, err error) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == ' ' {
			name = raw[:i]
			rangeExpr := raw[i+1:]
			rng, err = ParseRange(rangeExpr)
			return name, rng, err
		}
	}
	rng, err = ParseRange("*")
	return raw, rng, err
}

func (p *problem) packageID(v Variable) (PackageId, bool) {
	id, ok := p.packageOf[v]
	return id, ok
}

func (p *problem) describeVariable(v Variable) string {
	id, ok := p.packageOf[v]
	if !ok {
		return fmt.Sprintf("x%d", v)
	}
	return id.String()
}
