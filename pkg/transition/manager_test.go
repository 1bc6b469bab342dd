package transition

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sps2/pm/pkg/hash"
	"github.com/sps2/pm/pkg/state"
	"github.com/sps2/pm/pkg/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store, *state.Manager, string) {
	t.Helper()
	root := t.TempDir()

	st, err := store.New(filepath.Join(root, "store"))
	require.NoError(t, err)

	db, err := state.Open(filepath.Join(root, "state", "state.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mgr, err := New(root, db, st)
	require.NoError(t, err)

	return mgr, st, db, root
}

func writeIntoSlot(t *testing.T, st *store.Store, mgr *Manager, slot int, relPath, content string) hash.Hash {
	t.Helper()
	h, err := st.AddBytes(strings.NewReader(content))
	require.NoError(t, err)

	dest := filepath.Join(mgr.slotPath(slot), relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
	require.NoError(t, st.LinkInto(h, dest, 0o644))
	return h
}

func TestCommitMakesStateLiveAndLinksFiles(t *testing.T) {
	ctx := context.Background()
	mgr, st, db, root := newTestManager(t)

	h := writeIntoSlot(t, st, mgr, 0, "lib/libz.dylib", "zlib bytes")

	result, err := mgr.Commit(ctx, CommitRequest{
		Label: "install zlib",
		Slot:  0,
		Packages: []PackageInstall{{
			Name:        "zlib",
			Version:     "1.2.11",
			ArchiveHash: h,
			Size:        int64(len("zlib bytes")),
			Files: []FileEntry{{
				RelativePath: "lib/libz.dylib",
				Hash:         h,
				Size:         int64(len("zlib bytes")),
				Permissions:  0o644,
			}},
		}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.StateID)

	live, err := os.Readlink(filepath.Join(root, "live"))
	require.NoError(t, err)
	require.Equal(t, mgr.slotPath(0), live)

	currentID, err := db.GetCurrentStateID(ctx)
	require.NoError(t, err)
	require.Equal(t, result.StateID, currentID)

	obj, err := db.GetFileObject(ctx, h.String())
	require.NoError(t, err)
	require.Equal(t, int64(1), obj.RefCount)

	content, err := os.ReadFile(filepath.Join(live, "lib/libz.dylib"))
	require.NoError(t, err)
	require.Equal(t, "zlib bytes", string(content))
}

func TestRollbackRestoresPriorLiveSlot(t *testing.T) {
	ctx := context.Background()
	mgr, st, db, root := newTestManager(t)

	h1 := writeIntoSlot(t, st, mgr, 0, "bin/curl", "curl 8.5.0")
	first, err := mgr.Commit(ctx, CommitRequest{
		Label: "install curl 8.5.0",
		Slot:  0,
		Packages: []PackageInstall{{
			Name: "curl", Version: "8.5.0", ArchiveHash: h1, Size: int64(len("curl 8.5.0")),
			Files: []FileEntry{{RelativePath: "bin/curl", Hash: h1, Size: int64(len("curl 8.5.0")), Permissions: 0o755}},
		}},
	})
	require.NoError(t, err)

	h2 := writeIntoSlot(t, st, mgr, 1, "bin/curl", "curl 8.6.0")
	parent := first.StateID
	second, err := mgr.Commit(ctx, CommitRequest{
		Label:    "upgrade curl to 8.6.0",
		ParentID: &parent,
		Slot:     1,
		Packages: []PackageInstall{{
			Name: "curl", Version: "8.6.0", ArchiveHash: h2, Size: int64(len("curl 8.6.0")),
			Files: []FileEntry{{RelativePath: "bin/curl", Hash: h2, Size: int64(len("curl 8.6.0")), Permissions: 0o755}},
		}},
	})
	require.NoError(t, err)
	require.NotEqual(t, first.StateID, second.StateID)

	require.NoError(t, mgr.Rollback(ctx, RollbackRequest{StateID: first.StateID}))

	live, err := os.Readlink(filepath.Join(root, "live"))
	require.NoError(t, err)
	require.Equal(t, mgr.slotPath(0), live)

	currentID, err := db.GetCurrentStateID(ctx)
	require.NoError(t, err)
	require.Equal(t, first.StateID, currentID)

	content, err := os.ReadFile(filepath.Join(live, "bin/curl"))
	require.NoError(t, err)
	require.Equal(t, "curl 8.5.0", string(content))
}

func TestGarbageCollectReclaimsBeyondRetention(t *testing.T) {
	ctx := context.Background()
	mgr, st, db, _ := newTestManager(t)

	// Three installs alternate slot 0/1/0, so the slot-0 binding moves
	// from the first state to the third: only the first state ends up
	// neither the retained-most-recent state nor bound to any slot.
	var firstID string
	for i := 0; i < 3; i++ {
		slot := i % 2
		h := writeIntoSlot(t, st, mgr, slot, "bin/tool", "version")
		result, err := mgr.Commit(ctx, CommitRequest{
			Label: "install",
			Slot:  slot,
			Packages: []PackageInstall{{
				Name: "tool", Version: "1", ArchiveHash: h, Size: int64(len("version")),
				Files: []FileEntry{{RelativePath: "bin/tool", Hash: h, Size: int64(len("version")), Permissions: 0o755}},
			}},
		})
		require.NoError(t, err)
		if i == 0 {
			firstID = result.StateID
		}
	}

	stats, err := mgr.GarbageCollect(ctx, 1, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.StatesReclaimed)

	remaining, err := db.ListStates(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	for _, st := range remaining {
		require.NotEqual(t, firstID, st.ID)
	}
}
