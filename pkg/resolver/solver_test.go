package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolver_SimpleSatisfiable(t *testing.T) {
	s := NewSolver(2, nil)
	// (x0 OR x1) AND (NOT x0 OR x1)
	s.AddClause([]Literal{NewLiteral(0, true), NewLiteral(1, true)}, false)
	s.AddClause([]Literal{NewLiteral(0, false), NewLiteral(1, true)}, false)

	assignment, ok := s.Solve()
	require.True(t, ok)
	assert.True(t, assignment.Value(1) == True)
}

func TestSolver_Unsatisfiable(t *testing.T) {
	s := NewSolver(1, nil)
	// x0 AND NOT x0
	s.AddClause([]Literal{NewLiteral(0, true)}, false)
	s.AddClause([]Literal{NewLiteral(0, false)}, false)

	_, ok := s.Solve()
	assert.False(t, ok)
}

func TestSolver_UnitPropagationChain(t *testing.T) {
	s := NewSolver(3, nil)
	// x0, NOT x0 OR x1, NOT x1 OR x2
	s.AddClause([]Literal{NewLiteral(0, true)}, false)
	s.AddClause([]Literal{NewLiteral(0, false), NewLiteral(1, true)}, false)
	s.AddClause([]Literal{NewLiteral(1, false), NewLiteral(2, true)}, false)

	assignment, ok := s.Solve()
	require.True(t, ok)
	assert.Equal(t, True, assignment.Value(0))
	assert.Equal(t, True, assignment.Value(1))
	assert.Equal(t, True, assignment.Value(2))
}

func TestSolver_AtMostOneEnforced(t *testing.T) {
	s := NewSolver(2, nil)
	// request: x0 or x1, at-most-one: not(x0 and x1), force x0
	s.AddClause([]Literal{NewLiteral(0, true), NewLiteral(1, true)}, false)
	s.AddClause([]Literal{NewLiteral(0, false), NewLiteral(1, false)}, false)
	s.AddClause([]Literal{NewLiteral(0, true)}, false)

	assignment, ok := s.Solve()
	require.True(t, ok)
	assert.Equal(t, True, assignment.Value(0))
	assert.Equal(t, False, assignment.Value(1))
}

func TestSolver_PrefersHigherVersionRankOnTie(t *testing.T) {
	pref := map[Variable]int{0: 0, 1: 1}
	s := NewSolver(2, pref)
	// at-most-one, request either
	s.AddClause([]Literal{NewLiteral(0, true), NewLiteral(1, true)}, false)
	s.AddClause([]Literal{NewLiteral(0, false), NewLiteral(1, false)}, false)

	assignment, ok := s.Solve()
	require.True(t, ok)
	assert.Equal(t, True, assignment.Value(1))
	assert.Equal(t, False, assignment.Value(0))
}

func TestLuby_Sequence(t *testing.T) {
	want := []int{1, 1, 2, 1, 1, 2, 4, 1}
	for i, w := range want {
		assert.Equal(t, w, luby(i+1), "luby(%d)", i+1)
	}
}
