package pipeline

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/sps2/pm/pkg/config"
	"github.com/sps2/pm/pkg/events"
	"github.com/sps2/pm/pkg/resolver"
	"github.com/sps2/pm/pkg/staging"
	"github.com/sps2/pm/pkg/store"
)

// buildArchive writes a minimal zstd-tar package archive to path
// containing manifest.toml plus the given (relative path, content) pairs.
func buildArchive(t *testing.T, path, name, version string, files map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(zw)

	manifest := []byte("[package]\nname = \"" + name + "\"\nversion = \"" + version + "\"\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "manifest.toml", Size: int64(len(manifest)), Mode: 0o644, Typeflag: tar.TypeReg}))
	_, err = tw.Write(manifest)
	require.NoError(t, err)

	for rel, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: rel, Size: int64(len(content)), Mode: 0o644, Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func newTestPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()

	st, err := store.New(filepath.Join(root, "store"))
	require.NoError(t, err)

	stagingMgr, err := staging.New(filepath.Join(root, "staging"), 10)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.MaxFileCount = 100
	cfg.MaxExtractedSize = 1 << 20
	cfg.MaxPathLength = 4096

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	p := New(NewHTTPFetcher(), stagingMgr, st, cfg, broker)

	slot := filepath.Join(root, "slot0")
	require.NoError(t, os.MkdirAll(slot, 0o755))

	return p, slot
}

func TestRunPlanStagesLocalPackage(t *testing.T) {
	p, slot := newTestPipeline(t)

	archivePath := filepath.Join(t.TempDir(), "tool-1.0.0.archive")
	buildArchive(t, archivePath, "tool", "1.0.0", map[string]string{"bin/tool": "#!/bin/sh\necho hi\n"})

	id := resolver.PackageId{Name: "tool", Version: "1.0.0"}
	nodes := map[resolver.PackageId]resolver.ResolvedNode{
		id: {Name: "tool", Version: "1.0.0", Action: resolver.ActionLocal, Path: archivePath},
	}
	plan := resolver.ExecutionPlan{Batches: [][]resolver.PackageId{{id}}}

	staged, err := p.RunPlan(context.Background(), plan, nodes, slot)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	require.Equal(t, "tool", staged[0].Install.Name)
	require.Len(t, staged[0].Install.Files, 1)

	content, err := os.ReadFile(filepath.Join(slot, "bin/tool"))
	require.NoError(t, err)
	require.Equal(t, "#!/bin/sh\necho hi\n", string(content))
}

func TestRunPlanRejectsManifestMismatch(t *testing.T) {
	p, slot := newTestPipeline(t)

	archivePath := filepath.Join(t.TempDir(), "other.archive")
	buildArchive(t, archivePath, "other", "2.0.0", map[string]string{"bin/other": "x"})

	id := resolver.PackageId{Name: "tool", Version: "1.0.0"}
	nodes := map[resolver.PackageId]resolver.ResolvedNode{
		id: {Name: "tool", Version: "1.0.0", Action: resolver.ActionLocal, Path: archivePath},
	}
	plan := resolver.ExecutionPlan{Batches: [][]resolver.PackageId{{id}}}

	_, err := p.RunPlan(context.Background(), plan, nodes, slot)
	require.Error(t, err)
}

func TestRunPlanBatchesRunInOrder(t *testing.T) {
	p, slot := newTestPipeline(t)

	depArchive := filepath.Join(t.TempDir(), "dep-1.0.0.archive")
	buildArchive(t, depArchive, "dep", "1.0.0", map[string]string{"lib/dep": "dep bytes"})
	rootArchive := filepath.Join(t.TempDir(), "root-1.0.0.archive")
	buildArchive(t, rootArchive, "root", "1.0.0", map[string]string{"bin/root": "root bytes"})

	depID := resolver.PackageId{Name: "dep", Version: "1.0.0"}
	rootID := resolver.PackageId{Name: "root", Version: "1.0.0"}
	nodes := map[resolver.PackageId]resolver.ResolvedNode{
		depID:  {Name: "dep", Version: "1.0.0", Action: resolver.ActionLocal, Path: depArchive},
		rootID: {Name: "root", Version: "1.0.0", Action: resolver.ActionLocal, Path: rootArchive},
	}
	plan := resolver.ExecutionPlan{Batches: [][]resolver.PackageId{{depID}, {rootID}}}

	staged, err := p.RunPlan(context.Background(), plan, nodes, slot)
	require.NoError(t, err)
	require.Len(t, staged, 2)

	_, err = os.Stat(filepath.Join(slot, "lib/dep"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(slot, "bin/root"))
	require.NoError(t, err)
}
