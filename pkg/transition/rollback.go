package transition

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sps2/pm/pkg/events"
	"github.com/sps2/pm/pkg/hash"
	"github.com/sps2/pm/pkg/log"
	"github.com/sps2/pm/pkg/metrics"
	"github.com/sps2/pm/pkg/pmerrors"
	"github.com/sps2/pm/pkg/state"
)

// RollbackRequest names the prior state to make live again.
type RollbackRequest struct {
	StateID string
	Broker  *events.Broker
}

// Rollback makes a previously committed state live again, per spec.md
// §4.6's three-step rollback protocol: verify the target is usable,
// re-materialise its slot if retention GC reclaimed the bytes without
// touching the DB rows, then swap the symlink and repoint "current".
func (m *Manager) Rollback(ctx context.Context, req RollbackRequest) error {
	logger := log.WithComponent("transition")

	if err := m.AcquireLock(ctx, false); err != nil {
		return err
	}
	defer m.ReleaseLock()

	target, err := m.db.GetState(ctx, req.StateID)
	if err != nil {
		return err
	}

	publish(req.Broker, events.EventRollbackStarted, events.StageRollback, req.StateID, "")

	slotPath := m.slotPath(target.Slot)
	boundID, err := m.db.GetSlot(ctx, target.Slot)
	if err != nil {
		return err
	}
	if boundID != target.ID {
		logger.Info().Str("state_id", target.ID).Int("slot", target.Slot).
			Msg("rollback target's slot is stale, re-materialising from store")
		if err := m.rematerializeSlot(ctx, target.ID, slotPath); err != nil {
			return err
		}
	}

	if err := swapSymlink(m.livePath(), slotPath); err != nil {
		return &pmerrors.StateError{Kind: pmerrors.StateRollbackFailed, StateID: req.StateID, Cause: err}
	}

	txErr := m.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		if err := state.SetSlot(ctx, tx, target.Slot, target.ID); err != nil {
			return err
		}
		return state.SetCurrent(ctx, tx, target.ID)
	})
	if txErr != nil {
		return &pmerrors.StateError{Kind: pmerrors.StateRollbackFailed, StateID: req.StateID, Cause: txErr}
	}

	metrics.RollbacksTotal.Inc()
	publish(req.Broker, events.EventRollbackCompleted, events.StageRollback, req.StateID, "")
	logger.Info().Str("state_id", req.StateID).Int("slot", target.Slot).Msg("rollback complete")
	return nil
}

// rematerializeSlot rebuilds a slot's entire file tree from
// package_file_entries by linking each entry back out of the content
// store, used when a slot's on-disk contents were reclaimed but its DB
// rows still describe it fully.
func (m *Manager) rematerializeSlot(ctx context.Context, stateID, slotPath string) error {
	if err := scrubSlot(slotPath); err != nil {
		return err
	}

	pkgs, err := m.db.ListPackages(ctx, stateID)
	if err != nil {
		return err
	}

	for _, pkg := range pkgs {
		entries, err := m.db.ListPackageFileEntries(ctx, pkg.ID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			h, err := hash.Parse(e.FileHash)
			if err != nil {
				return &pmerrors.Internal{Message: fmt.Sprintf("corrupt file_hash %q in package_file_entries", e.FileHash), Cause: err}
			}
			dest := filepath.Join(slotPath, e.RelativePath)
			if err := m.store.LinkInto(h, dest, os.FileMode(e.Permissions)); err != nil {
				return err
			}
		}
	}
	return nil
}
