package resolver

import (
	"fmt"
	"sort"
	"strings"
)

// explainUnsat builds a ConflictExplanation from the solver's learned
// clauses: each learned clause that touches exactly two distinct
// packages is treated as evidence those two packages' version
// constraints are mutually exclusive, the same heuristic the original
// conflict analyser uses to turn a clause set into human language.
func explainUnsat(s *Solver, prob *problem) ConflictExplanation {
	var conflicting [][2]string
	involved := make(map[string]bool)

	for _, clause := range s.learnedClauses {
		packages := make(map[string]bool)
		for _, lit := range clause.Literals() {
			if id, ok := prob.packageID(lit.Variable()); ok {
				packages[id.Name] = true
				involved[id.Name] = true
			}
		}
		if len(packages) == 2 {
			names := make([]string, 0, 2)
			for name := range packages {
				names = append(names, name)
			}
			sort.Strings(names)
			conflicting = append(conflicting, [2]string{names[0], names[1]})
		}
	}

	message := "unable to find a set of package versions that satisfies all constraints"
	if len(conflicting) > 0 {
		parts := make([]string, len(conflicting))
		for i, pair := range conflicting {
			parts[i] = fmt.Sprintf("%s and %s", pair[0], pair[1])
		}
		message = fmt.Sprintf("dependency conflicts detected between: %s", strings.Join(parts, ", "))
	}

	var suggestions []string
	if len(involved) > 0 {
		names := make([]string, 0, len(involved))
		for name := range involved {
			names = append(names, name)
		}
		sort.Strings(names)
		suggestions = append(suggestions, fmt.Sprintf("try relaxing version constraints for: %s", strings.Join(names, ", ")))
	}
	suggestions = append(suggestions, "consider removing one of the conflicting packages or pinning a compatible version")

	return ConflictExplanation{
		ConflictingPackages: conflicting,
		Message:             message,
		Suggestions:         suggestions,
	}
}
