package resolver

import "fmt"

// Variable is a SAT variable index, one per (package, version) pair
// the encoder considers.
type Variable int

// Literal is a variable together with its polarity: positive values
// assert the variable, negative values assert its negation, using the
// common DIMACS-style encoding (variable index 0 maps to literal ±1 so
// 0 is never a valid literal value).
type Literal int

// NewLiteral builds the literal asserting var with the given polarity.
func NewLiteral(v Variable, positive bool) Literal {
	if positive {
		return Literal(v + 1)
	}
	return Literal(-(v + 1))
}

// Variable returns the variable l refers to.
func (l Literal) Variable() Variable {
	if l > 0 {
		return Variable(l - 1)
	}
	return Variable(-l - 1)
}

// IsPositive reports whether l asserts its variable true.
func (l Literal) IsPositive() bool { return l > 0 }

// Negate returns the complementary literal.
func (l Literal) Negate() Literal { return -l }

func (l Literal) String() string {
	if l.IsPositive() {
		return fmt.Sprintf("x%d", l.Variable())
	}
	return fmt.Sprintf("¬x%d", l.Variable())
}

// TruthValue is a literal or variable's value under a partial assignment.
type TruthValue int

const (
	Unassigned TruthValue = iota
	True
	False
)

func (t TruthValue) IsTrue() bool  { return t == True }
func (t TruthValue) IsFalse() bool { return t == False }

// assignmentRecord is one entry on the assignment trail.
type assignmentRecord struct {
	variable Variable
	value    bool
	level    int
	reason   *Clause // the clause that forced this assignment, nil for decisions
}

// Assignment tracks the solver's current partial truth assignment and
// the trail needed to undo it on backtrack.
type Assignment struct {
	values       map[Variable]bool
	levels       map[Variable]int
	reasons      map[Variable]*Clause
	trail        []assignmentRecord
	currentLevel int
}

// NewAssignment returns an empty assignment at decision level 0.
func NewAssignment() *Assignment {
	return &Assignment{
		values:  make(map[Variable]bool),
		levels:  make(map[Variable]int),
		reasons: make(map[Variable]*Clause),
	}
}

// Assign records var = value at the current decision level, optionally
// attributing it to the clause that forced it (nil for a decision).
func (a *Assignment) Assign(v Variable, value bool, reason *Clause) {
	a.values[v] = value
	a.levels[v] = a.currentLevel
	a.reasons[v] = reason
	a.trail = append(a.trail, assignmentRecord{variable: v, value: value, level: a.currentLevel, reason: reason})
}

// Value returns v's current truth value.
func (a *Assignment) Value(v Variable) TruthValue {
	val, ok := a.values[v]
	if !ok {
		return Unassigned
	}
	if val {
		return True
	}
	return False
}

// EvalLiteral returns l's truth value under the current assignment.
func (a *Assignment) EvalLiteral(l Literal) TruthValue {
	v := a.Value(l.Variable())
	if v == Unassigned {
		return Unassigned
	}
	if (v == True) == l.IsPositive() {
		return True
	}
	return False
}

// Level returns the decision level at which v was assigned, or -1 if
// v is unassigned.
func (a *Assignment) Level(v Variable) int {
	l, ok := a.levels[v]
	if !ok {
		return -1
	}
	return l
}

// Reason returns the clause that forced v's assignment, or nil if v
// was a decision or is unassigned.
func (a *Assignment) Reason(v Variable) *Clause {
	return a.reasons[v]
}

// CurrentLevel returns the decision level the solver is currently at.
func (a *Assignment) CurrentLevel() int { return a.currentLevel }

// NewDecisionLevel increments the current decision level, called
// before making a new branching decision.
func (a *Assignment) NewDecisionLevel() { a.currentLevel++ }

// UndoToLevel pops trail entries back to (and including) level+1,
// clearing their values, so the solver can resume deciding at level.
func (a *Assignment) UndoToLevel(level int) {
	for len(a.trail) > 0 && a.trail[len(a.trail)-1].level > level {
		rec := a.trail[len(a.trail)-1]
		a.trail = a.trail[:len(a.trail)-1]
		delete(a.values, rec.variable)
		delete(a.levels, rec.variable)
		delete(a.reasons, rec.variable)
	}
	a.currentLevel = level
}

// trailLiteralsFrom returns the literals assigned at or after index i in
// the trail.
func (a *Assignment) trailLiteralsFrom(i int) []Literal {
	lits := make([]Literal, 0, len(a.trail)-i)
	for _, rec := range a.trail[i:] {
		lits = append(lits, NewLiteral(rec.variable, rec.value))
	}
	return lits
}
