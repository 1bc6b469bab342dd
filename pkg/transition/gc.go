package transition

import (
	"context"
	"database/sql"

	"github.com/sps2/pm/pkg/events"
	"github.com/sps2/pm/pkg/hash"
	"github.com/sps2/pm/pkg/log"
	"github.com/sps2/pm/pkg/metrics"
	"github.com/sps2/pm/pkg/state"
	"github.com/sps2/pm/pkg/store"
)

// GCStats reports the outcome of a GarbageCollect pass.
type GCStats struct {
	StatesReclaimed int64
	Store           store.GCStats
}

// GarbageCollect keeps the RetentionCount most recently created
// committed states plus any state currently bound to a slot, and
// deletes everything else: its packages/package_file_entries rows, the
// ref counts those entries held, and finally any store object whose
// ref_count has fallen to zero. This is the state-count-threshold
// policy recorded as the decision for spec.md §9's GC timestamp open
// question — no time-based staleness check, a pure retention count.
func (m *Manager) GarbageCollect(ctx context.Context, retentionCount int, broker *events.Broker) (GCStats, error) {
	var stats GCStats
	logger := log.WithComponent("transition")

	publish(broker, events.EventGCStarted, events.StageGC, "", "")

	if err := m.AcquireLock(ctx, false); err != nil {
		return stats, err
	}
	defer m.ReleaseLock()

	all, err := m.db.ListStates(ctx) // most recently created first
	if err != nil {
		return stats, err
	}

	boundSlots := make(map[string]bool)
	for slot := range slotNames {
		id, err := m.db.GetSlot(ctx, slot)
		if err != nil {
			return stats, err
		}
		if id != "" {
			boundSlots[id] = true
		}
	}

	var toDelete []state.State
	for i, st := range all {
		if i < retentionCount || boundSlots[st.ID] {
			continue
		}
		toDelete = append(toDelete, st)
	}

	for _, st := range toDelete {
		if err := m.deleteState(ctx, st.ID); err != nil {
			return stats, err
		}
		stats.StatesReclaimed++
		logger.Info().Str("state_id", st.ID).Msg("reclaimed state past retention window")
	}
	metrics.GCStatesReclaimedTotal.Add(float64(stats.StatesReclaimed))

	keepHashes, err := m.db.KeepSetHashes(ctx)
	if err != nil {
		return stats, err
	}
	keepSet := make(map[hash.Hash]struct{}, len(keepHashes))
	for _, h := range keepHashes {
		parsed, err := hash.Parse(h)
		if err != nil {
			continue
		}
		keepSet[parsed] = struct{}{}
	}

	gcStats, err := m.store.GarbageCollect(keepSet)
	if err != nil {
		return stats, err
	}
	stats.Store = gcStats

	publish(broker, events.EventGCCompleted, events.StageGC, "", "")
	return stats, nil
}

// deleteState decrements every ref count the state's packages held,
// then removes its rows, all inside one write transaction.
func (m *Manager) deleteState(ctx context.Context, stateID string) error {
	return m.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		pkgs, err := listPackagesTx(ctx, tx, stateID)
		if err != nil {
			return err
		}
		for _, pkgID := range pkgs {
			hashes, err := listFileHashesTx(ctx, tx, pkgID)
			if err != nil {
				return err
			}
			for _, h := range hashes {
				if err := state.DecrementFileObjectRef(ctx, tx, h); err != nil {
					return err
				}
				if err := state.DecrementStoreRef(ctx, tx, h); err != nil {
					return err
				}
			}
		}
		if err := state.ClearParentReferences(ctx, tx, stateID); err != nil {
			return err
		}
		return state.DeleteState(ctx, tx, stateID)
	})
}

func listPackagesTx(ctx context.Context, tx *sql.Tx, stateID string) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM packages WHERE state_id = ?`, stateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func listFileHashesTx(ctx context.Context, tx *sql.Tx, packageID int64) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT file_hash FROM package_file_entries WHERE package_id = ?`, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}
