package resolver

// Clause is a disjunction of literals in CNF, with two-watched-literal
// bookkeeping for fast unit propagation: only the two watched literals
// are re-examined when some other literal's variable is assigned, so
// clauses satisfied or still 2-undecided never need re-scanning.
type Clause struct {
	literals []Literal
	watch    [2]int // indices into literals; -1,-1 when len(literals) < 2
	learned  bool
}

// NewClause builds a clause from literals, initializing its watches to
// the first two literals when there are at least two.
func NewClause(literals []Literal, learned bool) *Clause {
	c := &Clause{literals: literals, learned: learned, watch: [2]int{-1, -1}}
	if len(literals) >= 2 {
		c.watch = [2]int{0, 1}
	}
	return c
}

// Literals returns the clause's literals.
func (c *Clause) Literals() []Literal { return c.literals }

// Len returns the number of literals in the clause.
func (c *Clause) Len() int { return len(c.literals) }

// Evaluate returns the clause's truth value under assignment: True if
// any literal is true, False if all are false, Unassigned otherwise.
func (c *Clause) Evaluate(a *Assignment) TruthValue {
	hasUnassigned := false
	for _, lit := range c.literals {
		switch a.EvalLiteral(lit) {
		case True:
			return True
		case Unassigned:
			hasUnassigned = true
		}
	}
	if hasUnassigned {
		return Unassigned
	}
	return False
}

// IsSatisfied reports whether the clause currently evaluates to True.
func (c *Clause) IsSatisfied(a *Assignment) bool { return c.Evaluate(a) == True }

// IsConflict reports whether every literal currently evaluates False.
func (c *Clause) IsConflict(a *Assignment) bool { return c.Evaluate(a) == False }

// FindUnitLiteral returns the clause's single unassigned literal when
// every other literal is false, or false if the clause is not unit.
func (c *Clause) FindUnitLiteral(a *Assignment) (Literal, bool) {
	var unit Literal
	count := 0
	for _, lit := range c.literals {
		switch a.EvalLiteral(lit) {
		case True:
			return 0, false
		case Unassigned:
			unit = lit
			count++
			if count > 1 {
				return 0, false
			}
		}
	}
	if count == 1 {
		return unit, true
	}
	return 0, false
}

// WatchedLiterals returns the clause's two watched literals, if any.
func (c *Clause) WatchedLiterals() (Literal, Literal, bool) {
	if c.watch[0] < 0 {
		return 0, 0, false
	}
	return c.literals[c.watch[0]], c.literals[c.watch[1]], true
}

// UpdateWatch is called when assignedLit has just become false. If
// assignedLit is not one of the clause's watched literals, it does
// nothing and reports true (still watching, nothing to do). Otherwise
// it searches for a replacement literal that is not false; if found,
// the watch moves there and it reports true. If no replacement exists
// the clause is unit or conflicting under the watched pair and it
// reports false, so the caller must inspect the clause directly.
func (c *Clause) UpdateWatch(assignedLit Literal, a *Assignment) bool {
	if c.watch[0] < 0 {
		return true // no watches on unit clauses
	}

	w0, w1 := c.watch[0], c.watch[1]
	var assignedIdx int
	switch {
	case c.literals[w0] == assignedLit:
		assignedIdx = w0
	case c.literals[w1] == assignedLit:
		assignedIdx = w1
	default:
		return true // assignedLit isn't watched here
	}

	for i, lit := range c.literals {
		if i == w0 || i == w1 {
			continue
		}
		if !a.EvalLiteral(lit).IsFalse() {
			if assignedIdx == w0 {
				c.watch[0] = i
			} else {
				c.watch[1] = i
			}
			return true
		}
	}
	return false
}

// simplify removes duplicate literals and reports ok=false if the
// clause is a tautology (contains both x and ¬x), in which case it is
// always satisfied and can be dropped from the problem.
func simplify(literals []Literal) (out []Literal, ok bool) {
	seen := make(map[Literal]bool, len(literals))
	var deduped []Literal
	for _, lit := range literals {
		if seen[lit] {
			continue
		}
		if seen[lit.Negate()] {
			return nil, false
		}
		seen[lit] = true
		deduped = append(deduped, lit)
	}
	return deduped, true
}
