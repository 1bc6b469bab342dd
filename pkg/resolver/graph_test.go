package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildNameGraph_NoCycle(t *testing.T) {
	idx := NewIndex(map[string][]VersionEntry{
		"app": {{Version: "1.0.0", RuntimeDeps: []string{"lib *"}}},
		"lib": {{Version: "1.0.0"}},
	})
	graph := buildNameGraph(idx, []string{"app"})
	_, cyclic := graph.detectCycle()
	assert.False(t, cyclic)
}

func TestBuildNameGraph_DetectsCycle(t *testing.T) {
	idx := NewIndex(map[string][]VersionEntry{
		"a": {{Version: "1.0.0", RuntimeDeps: []string{"b *"}}},
		"b": {{Version: "1.0.0", RuntimeDeps: []string{"a *"}}},
	})
	graph := buildNameGraph(idx, []string{"a"})
	_, cyclic := graph.detectCycle()
	assert.True(t, cyclic)
}

func TestBuildExecutionPlan_OrdersByDependency(t *testing.T) {
	nodes := map[PackageId]ResolvedNode{
		{Name: "app", Version: "1.0.0"}: {
			Name: "app", Version: "1.0.0", Action: ActionDownload,
			Deps: []DepEdge{{Name: "lib", Range: mustRange(t, "*")}},
		},
		{Name: "lib", Version: "1.0.0"}: {
			Name: "lib", Version: "1.0.0", Action: ActionDownload,
		},
	}
	plan, err := buildExecutionPlan(nodes)
	require.NoError(t, err)
	require.Len(t, plan.Batches, 2)
	assert.Equal(t, "lib", plan.Batches[0][0].Name)
	assert.Equal(t, "app", plan.Batches[1][0].Name)
}

func TestBuildExecutionPlan_IndependentNodesShareBatch(t *testing.T) {
	nodes := map[PackageId]ResolvedNode{
		{Name: "a", Version: "1.0.0"}: {Name: "a", Version: "1.0.0", Action: ActionDownload},
		{Name: "b", Version: "1.0.0"}: {Name: "b", Version: "1.0.0", Action: ActionDownload},
	}
	plan, err := buildExecutionPlan(nodes)
	require.NoError(t, err)
	require.Len(t, plan.Batches, 1)
	assert.Len(t, plan.Batches[0], 2)
}

func mustRange(t *testing.T, expr string) Range {
	t.Helper()
	rng, err := ParseRange(expr)
	require.NoError(t, err)
	return rng
}
