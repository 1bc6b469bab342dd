/*
Package resolver picks a consistent set of package versions for an
install request using a CDCL SAT solver (spec.md §4.3).

Every (package, version) pair becomes a boolean variable x_{p,v}. A
request clause says at least one matching version of a requested
package must be true; an at-most-one clause says no two versions of the
same package may both be true; a dependency clause says selecting a
version implies at least one matching version of each of its
dependencies. The solver is a textbook CDCL loop: two-watched literals
for fast unit propagation, VSIDS variable activity to pick the next
decision, first-UIP conflict-driven clause learning, and
non-chronological backtracking. Among satisfying assignments it prefers
the one selecting the highest version of each package by trying
decisions in descending-version order.

Cycle detection over the dependency graph runs before the solver, since
a cycle is never satisfiable and produces a far more useful error than
a SAT search that eventually proves it. On UNSAT, conflict analysis
walks the learned clauses to build a ConflictExplanation a user can act
on, following the pattern in SPEC_FULL.md's supplemented remediation
suggestions.
*/
package resolver
