package resolver

const vsidsDecay = 0.95

// Solver is a CDCL SAT solver: two-watched literals for propagation,
// VSIDS activity for decision ordering, first-UIP conflict-driven
// clause learning, and non-chronological backtracking.
type Solver struct {
	clauses    []*Clause
	watch      map[Literal][]*Clause
	assignment *Assignment
	queue      []Literal
	activity   map[Variable]float64
	bump       float64
	numVars    int
	versionPref map[Variable]int // higher value preferred when breaking decision ties

	conflicts      int
	restartAt      int
	lubyIndex      int
	restartEnabled bool

	learnedClauses []*Clause
}

// NewSolver builds a solver over numVars variables. versionPref maps
// each variable to a rank used to break decision ties toward the
// highest version of a package, per spec.md §4.3's optimisation
// preference.
func NewSolver(numVars int, versionPref map[Variable]int) *Solver {
	return &Solver{
		watch:          make(map[Literal][]*Clause),
		assignment:     NewAssignment(),
		activity:       make(map[Variable]float64, numVars),
		bump:           1.0,
		numVars:        numVars,
		versionPref:    versionPref,
		restartAt:      100,
		restartEnabled: true,
	}
}

// AddClause adds a clause to the problem, simplifying it first. A
// tautological clause is always true and is dropped.
func (s *Solver) AddClause(literals []Literal, learned bool) {
	simplified, ok := simplify(literals)
	if !ok {
		return
	}
	c := NewClause(simplified, learned)
	s.clauses = append(s.clauses, c)
	if learned {
		s.learnedClauses = append(s.learnedClauses, c)
	}

	if w0, w1, has := c.WatchedLiterals(); has {
		s.watch[w0] = append(s.watch[w0], c)
		s.watch[w1] = append(s.watch[w1], c)
	} else if c.Len() == 1 {
		s.queue = append(s.queue, c.literals[0])
	}

	for _, lit := range simplified {
		if _, ok := s.activity[lit.Variable()]; !ok {
			s.activity[lit.Variable()] = 0
		}
	}
}

// Solve runs the CDCL loop and returns a satisfying assignment, or
// false if the problem is unsatisfiable.
func (s *Solver) Solve() (*Assignment, bool) {
	// unit clauses carry no watches; assign them at level 0 so the first
	// propagation sees them, and report UNSAT on a contradictory pair
	for _, c := range s.clauses {
		if c.Len() != 1 {
			continue
		}
		lit := c.literals[0]
		switch s.assignment.EvalLiteral(lit) {
		case False:
			return nil, false
		case Unassigned:
			s.assignment.Assign(lit.Variable(), lit.IsPositive(), c)
		}
	}

	if conflict := s.propagate(); conflict != nil {
		return nil, false // conflict at level 0 before any decision: UNSAT
	}

	for {
		v, ok := s.pickDecisionVariable()
		if !ok {
			return s.assignment, true // every variable assigned, no conflicts
		}

		s.assignment.NewDecisionLevel()
		s.enqueue(NewLiteral(v, true), nil)

		for {
			conflict := s.propagate()
			if conflict == nil {
				break
			}

			if s.assignment.CurrentLevel() == 0 {
				return nil, false
			}

			learned, backtrackLevel := s.analyzeConflict(conflict)
			s.conflicts++
			s.decayActivity()

			s.assignment.UndoToLevel(backtrackLevel)
			s.AddClause(learnedLiterals(learned), true)

			if unit, has := learned.FindUnitLiteral(s.assignment); has {
				s.enqueue(unit, learned)
			}

			if s.restartEnabled && s.conflicts >= s.restartAt {
				s.restart()
			}
		}
	}
}

// enqueue assigns lit true at the current level and schedules it for
// propagation.
func (s *Solver) enqueue(lit Literal, reason *Clause) {
	s.assignment.Assign(lit.Variable(), lit.IsPositive(), reason)
	s.queue = append(s.queue, lit)
}

// propagate drains the propagation queue, updating watch lists and
// deriving unit implications until fixpoint or a conflict is found.
func (s *Solver) propagate() *Clause {
	for len(s.queue) > 0 {
		lit := s.queue[0]
		s.queue = s.queue[1:]

		falseLit := lit.Negate()
		watchers := s.watch[falseLit]
		s.watch[falseLit] = nil

		for i := 0; i < len(watchers); i++ {
			c := watchers[i]
			if c.IsSatisfied(s.assignment) {
				s.watch[falseLit] = append(s.watch[falseLit], c)
				continue
			}

			before0, before1, _ := c.WatchedLiterals()
			if c.UpdateWatch(falseLit, s.assignment) {
				w0, w1, _ := c.WatchedLiterals()
				if w0 == falseLit || w1 == falseLit {
					// falseLit wasn't actually one of the watched literals,
					// or the clause is already satisfied; nothing moved
					s.watch[falseLit] = append(s.watch[falseLit], c)
				} else {
					s.rehome(c, before0, before1)
				}
				continue
			}

			// watch could not move: clause is unit or conflicting
			s.watch[falseLit] = append(s.watch[falseLit], c)
			if c.IsConflict(s.assignment) {
				s.watch[falseLit] = append(s.watch[falseLit], watchers[i+1:]...)
				return c
			}
			if unit, has := c.FindUnitLiteral(s.assignment); has {
				s.enqueue(unit, c)
			}
		}
	}
	return nil
}

// rehome moves c's watch-list membership to whichever of its two current
// watched literals was not watched before the move (before0, before1).
func (s *Solver) rehome(c *Clause, before0, before1 Literal) {
	w0, w1, has := c.WatchedLiterals()
	if !has {
		return
	}
	newLit := w0
	if w0 == before0 || w0 == before1 {
		newLit = w1
	}
	if newLit == before0 || newLit == before1 {
		return // nothing moved
	}
	s.watch[newLit] = append(s.watch[newLit], c)
}

// pickDecisionVariable returns the unassigned variable with highest
// VSIDS activity, breaking ties by preferring the highest-ranked
// version so an unconstrained search still converges on the newest
// mutually compatible versions.
func (s *Solver) pickDecisionVariable() (Variable, bool) {
	best := Variable(-1)
	bestActivity := -1.0
	bestPref := -1

	for v := Variable(0); v < Variable(s.numVars); v++ {
		if s.assignment.Value(v) != Unassigned {
			continue
		}
		act := s.activity[v]
		pref := s.versionPref[v]
		if act > bestActivity || (act == bestActivity && pref > bestPref) {
			best = v
			bestActivity = act
			bestPref = pref
		}
	}

	if best < 0 {
		return 0, false
	}
	return best, true
}

// bumpActivity increases a variable's VSIDS score, called for every
// variable touched during conflict analysis.
func (s *Solver) bumpActivity(v Variable) {
	s.activity[v] += s.bump
}

// decayActivity shrinks the bump increment instead of rescaling every
// variable, the standard VSIDS implementation trick; a periodic
// rescale keeps the increment from overflowing on long runs.
func (s *Solver) decayActivity() {
	s.bump /= vsidsDecay
	if s.bump > 1e100 {
		for v := range s.activity {
			s.activity[v] *= 1e-100
		}
		s.bump *= 1e-100
	}
}

// restart undoes all decisions back to level 0 without forgetting
// learned clauses, escaping regions of the search space whose early
// decisions turned out to be unlucky. The next restart threshold grows
// by the Luby sequence, the standard schedule for CDCL restarts.
func (s *Solver) restart() {
	s.assignment.UndoToLevel(0)
	s.queue = nil
	s.conflicts = 0
	s.lubyIndex++
	s.restartAt = 50 * luby(s.lubyIndex)
}

// luby returns the i-th term of the Luby sequence (1-indexed):
// 1 1 2 1 1 2 4 1 1 2 1 1 2 4 8 ...
func luby(i int) int {
	k := 1
	for k < i {
		k = 2*k + 1
	}
	if i == k {
		return (k + 1) / 2
	}
	for {
		k = (k - 1) / 2
		if k <= i {
			return luby(i - k)
		}
	}
}

func learnedLiterals(c *Clause) []Literal {
	out := make([]Literal, len(c.literals))
	copy(out, c.literals)
	return out
}
