package resolver

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// canonicalize normalizes a bare "1.2.3" version into the "v"-prefixed
// form golang.org/x/mod/semver requires.
func canonicalize(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// compareVersions returns -1, 0, or 1 as a is less than, equal to, or
// greater than b, by semantic-version order.
func compareVersions(a, b string) int {
	return semver.Compare(canonicalize(a), canonicalize(b))
}

func sortVersionsAscending(entries []VersionEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return compareVersions(entries[i].Version, entries[j].Version) < 0
	})
}

// comparator is a single "<op><version>" constraint, e.g. ">=1.2.0".
type comparator struct {
	op      string
	version string
}

func (c comparator) matches(v string) bool {
	cmp := compareVersions(v, c.version)
	switch c.op {
	case "==", "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	default:
		return false
	}
}

// Range is a version constraint: the conjunction of its comparators.
// An empty Range (or the literal "*") matches every version.
type Range struct {
	raw         string
	comparators []comparator
}

// ParseRange parses a whitespace-separated constraint expression such
// as ">=1.2.0 <2.0.0". "*" and "" both match any version.
func ParseRange(expr string) (Range, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "*" {
		return Range{raw: expr}, nil
	}

	var comparators []comparator
	for _, field := range strings.Fields(expr) {
		op, version, err := splitComparator(field)
		if err != nil {
			return Range{}, fmt.Errorf("resolver: invalid range %q: %w", expr, err)
		}
		comparators = append(comparators, comparator{op: op, version: version})
	}
	return Range{raw: expr, comparators: comparators}, nil
}

func splitComparator(field string) (op, version string, err error) {
	for _, candidate := range []string{">=", "<=", "==", "!=", ">", "<", "="} {
		if strings.HasPrefix(field, candidate) {
			return candidate, strings.TrimSpace(strings.TrimPrefix(field, candidate)), nil
		}
	}
	// bare version defaults to exact match
	return "==", field, nil
}

// Matches reports whether version satisfies every comparator in r.
func (r Range) Matches(version string) bool {
	for _, c := range r.comparators {
		if !c.matches(version) {
			return false
		}
	}
	return true
}

// String returns the original constraint expression.
func (r Range) String() string { return r.raw }
