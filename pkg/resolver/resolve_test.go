package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sps2/pm/pkg/pmerrors"
)

func TestResolve_SimpleRequest(t *testing.T) {
	idx := NewIndex(map[string][]VersionEntry{
		"app": {{Version: "1.0.0", RuntimeDeps: []string{"lib >=1.0.0"}, URL: "https://example.test/app-1.0.0.tar.zst"}},
		"lib": {
			{Version: "1.0.0", URL: "https://example.test/lib-1.0.0.tar.zst"},
			{Version: "2.0.0", URL: "https://example.test/lib-2.0.0.tar.zst"},
		},
	})
	r := NewResolver(idx)

	result, err := r.Resolve(ResolutionContext{
		RuntimeDeps: []Spec{{Name: "app", Range: mustRange(t, "*")}},
	})
	require.NoError(t, err)

	app, ok := result.Nodes[PackageId{Name: "app", Version: "1.0.0"}]
	require.True(t, ok)
	assert.Equal(t, ActionDownload, app.Action)

	lib, ok := result.Nodes[PackageId{Name: "lib", Version: "2.0.0"}]
	require.True(t, ok, "resolver should prefer the highest mutually compatible version")
	assert.Equal(t, "2.0.0", lib.Version)

	require.Len(t, result.ExecutionPlan.Batches, 2)
	assert.Equal(t, "lib", result.ExecutionPlan.Batches[0][0].Name)
	assert.Equal(t, "app", result.ExecutionPlan.Batches[1][0].Name)
}

func TestResolve_UnknownPackage(t *testing.T) {
	idx := NewIndex(map[string][]VersionEntry{})
	r := NewResolver(idx)

	_, err := r.Resolve(ResolutionContext{
		RuntimeDeps: []Spec{{Name: "missing", Range: mustRange(t, "*")}},
	})
	require.Error(t, err)
	resErr, ok := err.(*pmerrors.ResolutionError)
	require.True(t, ok)
	assert.Equal(t, pmerrors.ResolutionNotFound, resErr.Kind)
}

func TestResolve_NoMatchingVersion(t *testing.T) {
	idx := NewIndex(map[string][]VersionEntry{
		"foo": {{Version: "1.0.0"}},
	})
	r := NewResolver(idx)

	_, err := r.Resolve(ResolutionContext{
		RuntimeDeps: []Spec{{Name: "foo", Range: mustRange(t, ">=2.0.0")}},
	})
	require.Error(t, err)
	resErr, ok := err.(*pmerrors.ResolutionError)
	require.True(t, ok)
	assert.Equal(t, pmerrors.ResolutionNoMatchingVersion, resErr.Kind)
}

func TestResolve_DependencyCycle(t *testing.T) {
	idx := NewIndex(map[string][]VersionEntry{
		"a": {{Version: "1.0.0", RuntimeDeps: []string{"b *"}}},
		"b": {{Version: "1.0.0", RuntimeDeps: []string{"a *"}}},
	})
	r := NewResolver(idx)

	_, err := r.Resolve(ResolutionContext{
		RuntimeDeps: []Spec{{Name: "a", Range: mustRange(t, "*")}},
	})
	require.Error(t, err)
	resErr, ok := err.(*pmerrors.ResolutionError)
	require.True(t, ok)
	assert.Equal(t, pmerrors.ResolutionDependencyCycle, resErr.Kind)
}

func TestResolve_VersionConflictProducesExplanation(t *testing.T) {
	// app requires lib >=2.0.0, but also depends (via other) on lib ==1.0.0,
	// and at-most-one forbids selecting both versions of lib at once.
	idx := NewIndex(map[string][]VersionEntry{
		"app": {{Version: "1.0.0", RuntimeDeps: []string{"lib >=2.0.0", "other *"}}},
		"other": {{Version: "1.0.0", RuntimeDeps: []string{"lib ==1.0.0"}}},
		"lib": {
			{Version: "1.0.0"},
			{Version: "2.0.0"},
		},
	})
	r := NewResolver(idx)

	_, err := r.Resolve(ResolutionContext{
		RuntimeDeps: []Spec{{Name: "app", Range: mustRange(t, "*")}},
	})
	require.Error(t, err)
	resErr, ok := err.(*pmerrors.ResolutionError)
	require.True(t, ok)
	assert.Equal(t, pmerrors.ResolutionDependencyConflict, resErr.Kind)
	require.NotNil(t, resErr.Explanation)
	assert.NotEmpty(t, resErr.Explanation.Message)
}

func TestResolve_LocalFileIncludedInPlan(t *testing.T) {
	idx := NewIndex(map[string][]VersionEntry{})
	r := NewResolver(idx)

	result, err := r.Resolve(ResolutionContext{
		LocalFiles: []LocalFile{{Path: "/tmp/thing-1.0.0.tar.zst", Name: "thing", Version: "1.0.0"}},
	})
	require.NoError(t, err)

	node, ok := result.Nodes[PackageId{Name: "thing", Version: "1.0.0"}]
	require.True(t, ok)
	assert.Equal(t, ActionLocal, node.Action)
	assert.Equal(t, "/tmp/thing-1.0.0.tar.zst", node.Path)
}
