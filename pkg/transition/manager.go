package transition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/sps2/pm/pkg/state"
	"github.com/sps2/pm/pkg/store"
)

// slotNames maps a Slot integer (spec.md §3) to its on-disk directory
// name under root/slots, matching spec.md §6's literal A/B layout.
var slotNames = []string{"A", "B"}

// Manager owns the live symlink, the slots directory, and the
// process-wide state/.lock that serialises commits across processes
// (spec.md §5: "mutated only by the committer, which holds an
// exclusive lock").
type Manager struct {
	root  string
	db    *state.Manager
	store *store.Store
	lock  *flock.Flock
}

// New returns a Manager rooted at root, creating slots/A, slots/B, and
// state/.lock if they do not already exist.
func New(root string, db *state.Manager, st *store.Store) (*Manager, error) {
	for _, name := range slotNames {
		if err := os.MkdirAll(filepath.Join(root, "slots", name), 0o755); err != nil {
			return nil, fmt.Errorf("transition: create slot dir: %w", err)
		}
	}
	stateDir := filepath.Join(root, "state")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("transition: create state dir: %w", err)
	}

	return &Manager{
		root:  root,
		db:    db,
		store: st,
		lock:  flock.New(filepath.Join(stateDir, ".lock")),
	}, nil
}

func (m *Manager) slotPath(slot int) string {
	return filepath.Join(m.root, "slots", slotNames[slot%len(slotNames)])
}

// SlotPath returns the on-disk directory for slot, the path an installer
// stages a new state's files into before calling Commit with the same
// slot number.
func (m *Manager) SlotPath(slot int) string {
	return m.slotPath(slot)
}

func (m *Manager) livePath() string {
	return filepath.Join(m.root, "live")
}

// CurrentSlot returns the slot bound to the database's "current" state,
// or -1 if no state has ever been committed, so a caller can pick the
// inactive slot via OtherSlot for its next install.
func (m *Manager) CurrentSlot(ctx context.Context) (int, error) {
	currentID, err := m.db.GetCurrentStateID(ctx)
	if err != nil {
		return -1, err
	}
	if currentID == "" {
		return -1, nil
	}
	st, err := m.db.GetState(ctx, currentID)
	if err != nil {
		return -1, err
	}
	return st.Slot, nil
}

// OtherSlot returns the slot not currently bound to current, the one a
// new install should stage into (spec.md §4.5 stage 4: "pick the
// inactive slot").
func OtherSlot(current int) int {
	return (current + 1) % len(slotNames)
}

// scrubSlot removes a slot directory's contents without removing the
// directory itself, used both when a commit's DB steps fail (spec.md
// §4.6: "the staged slot is scrubbed") and before re-materialising a
// stale slot during rollback.
func scrubSlot(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("transition: scrub %s: %w", path, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(path, e.Name())); err != nil {
			return fmt.Errorf("transition: scrub %s: %w", path, err)
		}
	}
	return nil
}
