package transition

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sps2/pm/pkg/events"
	"github.com/sps2/pm/pkg/hash"
	"github.com/sps2/pm/pkg/log"
	"github.com/sps2/pm/pkg/metrics"
	"github.com/sps2/pm/pkg/pmerrors"
	"github.com/sps2/pm/pkg/state"
)

// FileEntry is one file belonging to a package in a new state, as
// produced by pkg/pipeline's extract/hash stage.
type FileEntry struct {
	RelativePath  string
	Hash          hash.Hash
	Size          int64
	Permissions   os.FileMode
	UID           int
	GID           int
	Mtime         int64
	IsExecutable  bool
	IsSymlink     bool
	SymlinkTarget string
}

// PackageInstall is one package's contribution to a new state: every
// package present in the new state must appear here, including ones
// carried forward unchanged from the parent, since ref-count accounting
// runs per (state, file_hash) pair rather than per newly-written byte.
type PackageInstall struct {
	Name        string
	Version     string
	ArchiveHash hash.Hash
	Size        int64
	VenvPath    *string
	Files       []FileEntry
}

// CommitRequest is the input to Commit: a fully staged slot plus the
// package set it materialises.
type CommitRequest struct {
	Label    string
	ParentID *string
	Slot     int
	Packages []PackageInstall
	Broker   *events.Broker // optional; nil disables progress events
}

// CommitResult is Commit's successful output.
type CommitResult struct {
	StateID string
	Slot    int
}

// Commit runs the eight-step protocol of spec.md §4.6. Steps 1–6 run
// inside a single SQL transaction guarded by state/.lock; if any of
// them fails, the transaction rolls back and the staged slot is
// scrubbed so a retried install starts from a clean slate. Step 7 (the
// symlink rename) is the true commit point: once it has happened, the
// new state is live no matter what happens afterward.
func (m *Manager) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	timer := metrics.NewTimer()
	logger := log.WithComponent("transition")

	if err := m.AcquireLock(ctx, false); err != nil {
		return nil, err
	}
	defer m.ReleaseLock()

	stateID := uuid.NewString()
	now := time.Now().Unix()
	slotPath := m.slotPath(req.Slot)

	publish(req.Broker, events.EventCommitStarted, events.StageCommit, stateID, "")

	txErr := m.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		if err := state.CreateState(ctx, tx, state.State{
			ID:        stateID,
			ParentID:  req.ParentID,
			CreatedAt: now,
			Label:     req.Label,
			Slot:      req.Slot,
		}); err != nil {
			return err
		}

		for _, pkg := range req.Packages {
			pkgID, err := state.InsertPackage(ctx, tx, state.Package{
				StateID:     stateID,
				Name:        pkg.Name,
				Version:     pkg.Version,
				Hash:        pkg.ArchiveHash.String(),
				Size:        pkg.Size,
				InstalledAt: now,
				VenvPath:    pkg.VenvPath,
			})
			if err != nil {
				return err
			}

			for _, f := range pkg.Files {
				var symlinkTarget *string
				if f.IsSymlink {
					symlinkTarget = &f.SymlinkTarget
				}
				if _, err := state.AddFileObject(ctx, tx, state.FileObject{
					Hash:          f.Hash.String(),
					Size:          f.Size,
					IsExecutable:  f.IsExecutable,
					IsSymlink:     f.IsSymlink,
					SymlinkTarget: symlinkTarget,
				}, now); err != nil {
					return err
				}
				if err := state.AddStoreRef(ctx, tx, f.Hash.String(), f.Size); err != nil {
					return err
				}
				if err := state.AddPackageFileEntry(ctx, tx, state.PackageFileEntry{
					PackageID:    pkgID,
					FileHash:     f.Hash.String(),
					RelativePath: f.RelativePath,
					Permissions:  int64(f.Permissions),
					UID:          int64(f.UID),
					GID:          int64(f.GID),
					Mtime:        f.Mtime,
				}); err != nil {
					return err
				}
			}
		}

		if err := state.SetSlot(ctx, tx, req.Slot, stateID); err != nil {
			return err
		}
		return state.SetCurrent(ctx, tx, stateID)
	})

	if txErr != nil {
		if scrubErr := scrubSlot(slotPath); scrubErr != nil {
			logger.Error().Err(scrubErr).Msg("failed to scrub slot after commit rollback")
		}
		metrics.InstallsTotal.WithLabelValues("db_error").Inc()
		return nil, &pmerrors.StateError{Kind: pmerrors.StateCommitFailed, StateID: stateID, Cause: txErr}
	}

	// step 7: the atomic symlink swap is the true commit point.
	if err := swapSymlink(m.livePath(), slotPath); err != nil {
		// the DB already committed; a crash here is recovered by
		// Reconcile on next start, which re-points the symlink from
		// the "current" row. We surface the error so the caller can
		// invoke Guard, but we do not attempt to undo the DB commit.
		metrics.InstallsTotal.WithLabelValues("symlink_error").Inc()
		return nil, &pmerrors.StateError{Kind: pmerrors.StateCommitFailed, StateID: stateID, Cause: err}
	}

	metrics.InstallsTotal.WithLabelValues("committed").Inc()
	metrics.CommitDuration.Observe(timer.Duration().Seconds())
	publish(req.Broker, events.EventCommitCompleted, events.StageCommit, stateID, "")
	logger.Info().Str("state_id", stateID).Int("slot", req.Slot).Msg("state committed")

	return &CommitResult{StateID: stateID, Slot: req.Slot}, nil
}

// swapSymlink atomically repoints the live symlink at target, via a
// temporary symlink plus rename so readers never observe a missing
// live path (spec.md §4.6 step 7/8).
func swapSymlink(livePath, target string) error {
	tmp := livePath + ".next"
	os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("transition: create %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, livePath); err != nil {
		return fmt.Errorf("transition: rename %s to %s: %w", tmp, livePath, err)
	}
	dir, err := os.Open(filepath.Dir(livePath))
	if err != nil {
		return fmt.Errorf("transition: fsync dir open: %w", err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("transition: fsync live dir: %w", err)
	}
	return nil
}

// Reconcile repoints the live symlink at the slot bound to the
// database's "current" row, recovering from a crash between §4.6 step
// 6 (DB commit) and step 7 (symlink rename). Call once at startup.
func (m *Manager) Reconcile(ctx context.Context) error {
	currentID, err := m.db.GetCurrentStateID(ctx)
	if err != nil {
		return err
	}
	if currentID == "" {
		return nil
	}
	st, err := m.db.GetState(ctx, currentID)
	if err != nil {
		return err
	}

	want := m.slotPath(st.Slot)
	got, err := os.Readlink(m.livePath())
	if err == nil && got == want {
		return nil
	}
	return swapSymlink(m.livePath(), want)
}

func publish(b *events.Broker, typ events.EventType, stage events.Stage, stateID, pkg string) {
	if b == nil {
		return
	}
	b.Publish(&events.Event{
		Type:    typ,
		Message: string(stage),
		Package: pkg,
		Metadata: map[string]string{
			"state_id": stateID,
		},
	})
}
