package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClause_EvaluateUnassigned(t *testing.T) {
	a := NewAssignment()
	c := NewClause([]Literal{NewLiteral(0, true), NewLiteral(1, false)}, false)
	assert.Equal(t, Unassigned, c.Evaluate(a))
}

func TestClause_EvaluateSatisfied(t *testing.T) {
	a := NewAssignment()
	a.Assign(0, true, nil)
	c := NewClause([]Literal{NewLiteral(0, true), NewLiteral(1, false)}, false)
	assert.True(t, c.IsSatisfied(a))
}

func TestClause_EvaluateConflict(t *testing.T) {
	a := NewAssignment()
	a.Assign(0, false, nil)
	a.Assign(1, true, nil)
	c := NewClause([]Literal{NewLiteral(0, true), NewLiteral(1, false)}, false)
	assert.True(t, c.IsConflict(a))
}

func TestClause_FindUnitLiteral(t *testing.T) {
	a := NewAssignment()
	a.Assign(0, false, nil)
	c := NewClause([]Literal{NewLiteral(0, true), NewLiteral(1, false)}, false)
	unit, ok := c.FindUnitLiteral(a)
	assert.True(t, ok)
	assert.Equal(t, NewLiteral(1, false), unit)
}

func TestClause_FindUnitLiteral_NotUnitWhenSatisfied(t *testing.T) {
	a := NewAssignment()
	a.Assign(0, true, nil)
	c := NewClause([]Literal{NewLiteral(0, true), NewLiteral(1, false)}, false)
	_, ok := c.FindUnitLiteral(a)
	assert.False(t, ok)
}

func TestClause_UpdateWatch_FindsReplacement(t *testing.T) {
	a := NewAssignment()
	c := NewClause([]Literal{NewLiteral(0, true), NewLiteral(1, true), NewLiteral(2, true)}, false)
	a.Assign(0, false, nil) // literal 0 becomes false

	ok := c.UpdateWatch(NewLiteral(0, true), a)
	assert.True(t, ok)
	w0, w1, has := c.WatchedLiterals()
	assert.True(t, has)
	assert.NotEqual(t, NewLiteral(0, true), w0)
	assert.NotEqual(t, NewLiteral(0, true), w1)
}

func TestClause_UpdateWatch_NoReplacementMeansUnitOrConflict(t *testing.T) {
	a := NewAssignment()
	c := NewClause([]Literal{NewLiteral(0, true), NewLiteral(1, true)}, false)
	a.Assign(0, false, nil)

	ok := c.UpdateWatch(NewLiteral(0, true), a)
	assert.False(t, ok)
}

func TestClause_UpdateWatch_IgnoresUnwatchedLiteral(t *testing.T) {
	a := NewAssignment()
	c := NewClause([]Literal{NewLiteral(0, true), NewLiteral(1, true), NewLiteral(2, true)}, false)
	ok := c.UpdateWatch(NewLiteral(2, true), a)
	assert.True(t, ok)
}

func TestSimplify_DedupsLiterals(t *testing.T) {
	out, ok := simplify([]Literal{NewLiteral(0, true), NewLiteral(0, true), NewLiteral(1, false)})
	assert.True(t, ok)
	assert.Len(t, out, 2)
}

func TestSimplify_DropsTautology(t *testing.T) {
	_, ok := simplify([]Literal{NewLiteral(0, true), NewLiteral(0, false)})
	assert.False(t, ok)
}

func TestLiteral_NegateAndVariable(t *testing.T) {
	l := NewLiteral(3, true)
	assert.Equal(t, Variable(3), l.Variable())
	assert.True(t, l.IsPositive())
	neg := l.Negate()
	assert.False(t, neg.IsPositive())
	assert.Equal(t, Variable(3), neg.Variable())
}
