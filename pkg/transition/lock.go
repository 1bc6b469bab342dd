package transition

import (
	"context"
	"time"

	"github.com/sps2/pm/pkg/pmerrors"
)

// lockPollInterval is how often AcquireLock retries TryLock while
// blocking for a second process to release state/.lock.
const lockPollInterval = 50 * time.Millisecond

// AcquireLock takes the exclusive state/.lock file lock, either
// blocking until it is available or, when failFast is true, returning
// immediately per the caller's choice (spec.md §5: "second process
// attempts to commit block or fail-fast per caller choice").
func (m *Manager) AcquireLock(ctx context.Context, failFast bool) error {
	if failFast {
		ok, err := m.lock.TryLock()
		if err != nil {
			return &pmerrors.StateError{Kind: pmerrors.StateCommitFailed, Cause: err}
		}
		if !ok {
			return &pmerrors.ConcurrencyError{Resource: "state lock", Limit: 1}
		}
		return nil
	}

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		ok, err := m.lock.TryLock()
		if err != nil {
			return &pmerrors.StateError{Kind: pmerrors.StateCommitFailed, Cause: err}
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ReleaseLock releases state/.lock.
func (m *Manager) ReleaseLock() error {
	return m.lock.Unlock()
}
