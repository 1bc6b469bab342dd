package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, -1, compareVersions("1.2.0", "1.3.0"))
	assert.Equal(t, 0, compareVersions("1.2.0", "1.2.0"))
	assert.Equal(t, 1, compareVersions("2.0.0", "1.9.9"))
	assert.Equal(t, 0, compareVersions("v1.2.0", "1.2.0"))
}

func TestSortVersionsAscending(t *testing.T) {
	entries := []VersionEntry{
		{Version: "1.3.0"},
		{Version: "1.1.0"},
		{Version: "2.0.0"},
		{Version: "1.2.0"},
	}
	sortVersionsAscending(entries)
	got := make([]string, len(entries))
	for i, e := range entries {
		got[i] = e.Version
	}
	assert.Equal(t, []string{"1.1.0", "1.2.0", "1.3.0", "2.0.0"}, got)
}

func TestParseRange_Wildcard(t *testing.T) {
	for _, expr := range []string{"", "*"} {
		rng, err := ParseRange(expr)
		require.NoError(t, err)
		assert.True(t, rng.Matches("1.0.0"))
		assert.True(t, rng.Matches("99.99.99"))
	}
}

func TestParseRange_BareVersionIsExactMatch(t *testing.T) {
	rng, err := ParseRange("1.2.0")
	require.NoError(t, err)
	assert.True(t, rng.Matches("1.2.0"))
	assert.False(t, rng.Matches("1.2.1"))
}

func TestParseRange_ComparatorOperators(t *testing.T) {
	cases := []struct {
		expr    string
		matches []string
		rejects []string
	}{
		{">=1.2.0", []string{"1.2.0", "1.3.0"}, []string{"1.1.0"}},
		{"<=1.2.0", []string{"1.2.0", "1.1.0"}, []string{"1.3.0"}},
		{">1.2.0", []string{"1.3.0"}, []string{"1.2.0"}},
		{"<1.2.0", []string{"1.1.0"}, []string{"1.2.0"}},
		{"!=1.2.0", []string{"1.3.0"}, []string{"1.2.0"}},
		{"==1.2.0", []string{"1.2.0"}, []string{"1.3.0"}},
	}
	for _, tc := range cases {
		rng, err := ParseRange(tc.expr)
		require.NoError(t, err, tc.expr)
		for _, v := range tc.matches {
			assert.True(t, rng.Matches(v), "%s should match %s", tc.expr, v)
		}
		for _, v := range tc.rejects {
			assert.False(t, rng.Matches(v), "%s should reject %s", tc.expr, v)
		}
	}
}

func TestParseRange_ConjunctionOfComparators(t *testing.T) {
	rng, err := ParseRange(">=1.2.0 <2.0.0")
	require.NoError(t, err)
	assert.True(t, rng.Matches("1.5.0"))
	assert.False(t, rng.Matches("1.1.0"))
	assert.False(t, rng.Matches("2.0.0"))
}

func TestRange_String(t *testing.T) {
	rng, err := ParseRange(">=1.2.0")
	require.NoError(t, err)
	assert.Equal(t, ">=1.2.0", rng.String())
}
