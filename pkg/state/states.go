package state

import (
	"context"
	"database/sql"
	"errors"
)

// State is a single row of the states table: one point in pm's
// install history, addressable as a transition's before- or after-image.
type State struct {
	ID        string
	ParentID  *string
	CreatedAt int64
	Label     string
	Slot      int
}

// CreateState inserts a new state row inside tx, the caller's
// already-open write transaction (states are always created as part of
// a larger atomic transition, never standalone).
func CreateState(ctx context.Context, tx *sql.Tx, st State) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO states (id, parent_id, created_at, label, slot) VALUES (?, ?, ?, ?, ?)`,
		st.ID, st.ParentID, st.CreatedAt, st.Label, st.Slot,
	)
	return dbErr("create state", err)
}

// GetState returns the state row identified by id.
func (m *Manager) GetState(ctx context.Context, id string) (*State, error) {
	var st State
	err := m.db.QueryRowContext(ctx,
		`SELECT id, parent_id, created_at, label, slot FROM states WHERE id = ?`, id,
	).Scan(&st.ID, &st.ParentID, &st.CreatedAt, &st.Label, &st.Slot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("state", id)
	}
	if err != nil {
		return nil, dbErr("get state", err)
	}
	return &st, nil
}

// ListStates returns every state row, most recently created first.
func (m *Manager) ListStates(ctx context.Context) ([]State, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, parent_id, created_at, label, slot FROM states ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, dbErr("list states", err)
	}
	defer rows.Close()

	var states []State
	for rows.Next() {
		var st State
		if err := rows.Scan(&st.ID, &st.ParentID, &st.CreatedAt, &st.Label, &st.Slot); err != nil {
			return nil, dbErr("scan state", err)
		}
		states = append(states, st)
	}
	return states, dbErr("iterate states", rows.Err())
}

// ClearParentReferences nulls out parent_id on any state row that
// points at id, run before DeleteState so retention GC can reclaim an
// ancestor state without violating the parent_id foreign key on states
// that descend from it but are themselves still retained.
func ClearParentReferences(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `UPDATE states SET parent_id = NULL WHERE parent_id = ?`, id)
	return dbErr("clear parent references", err)
}

// DeleteState removes a state row and its packages/package_file_entries
// rows inside tx; callers must have already decremented every
// file_objects/store_refs ref_count this state held before calling
// this, per the ref-count accounting rule in spec.md §4.2.
func DeleteState(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM package_file_entries WHERE package_id IN (SELECT id FROM packages WHERE state_id = ?)`, id)
	if err != nil {
		return dbErr("delete state package file entries", err)
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM packages WHERE state_id = ?`, id)
	if err != nil {
		return dbErr("delete state packages", err)
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM states WHERE id = ?`, id)
	return dbErr("delete state", err)
}

// SetCurrent points the single "current" row at stateID inside tx.
func SetCurrent(ctx context.Context, tx *sql.Tx, stateID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO current (key, state_id) VALUES ('current', ?)
		 ON CONFLICT(key) DO UPDATE SET state_id = excluded.state_id`,
		stateID,
	)
	return dbErr("set current", err)
}

// GetCurrentStateID returns the id of the currently live state, or ""
// if no state has ever been committed.
func (m *Manager) GetCurrentStateID(ctx context.Context) (string, error) {
	var id string
	err := m.db.QueryRowContext(ctx, `SELECT state_id FROM current WHERE key = 'current'`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", dbErr("get current", err)
	}
	return id, nil
}

// SetSlot records which state occupies a materialisation slot inside tx.
func SetSlot(ctx context.Context, tx *sql.Tx, slot int, stateID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO slots (slot, state_id) VALUES (?, ?)
		 ON CONFLICT(slot) DO UPDATE SET state_id = excluded.state_id`,
		slot, stateID,
	)
	return dbErr("set slot", err)
}

// GetSlot returns which state occupies slot, or "" if the slot is empty.
func (m *Manager) GetSlot(ctx context.Context, slot int) (string, error) {
	var stateID sql.NullString
	err := m.db.QueryRowContext(ctx, `SELECT state_id FROM slots WHERE slot = ?`, slot).Scan(&stateID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", dbErr("get slot", err)
	}
	return stateID.String, nil
}
