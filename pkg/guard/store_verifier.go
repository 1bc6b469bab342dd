package guard

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sps2/pm/pkg/config"
	"github.com/sps2/pm/pkg/events"
	"github.com/sps2/pm/pkg/hash"
	"github.com/sps2/pm/pkg/log"
	"github.com/sps2/pm/pkg/metrics"
	"github.com/sps2/pm/pkg/state"
	"github.com/sps2/pm/pkg/store"
)

// objectVerifyMaxAge bounds how long a store object's last successful
// verification is trusted before StoreVerifier re-checks it.
const objectVerifyMaxAge = 7 * 24 * time.Hour

// StoreVerifier re-hashes content-store objects on a rolling basis,
// independent of any single state (spec.md §4.7's store-level half of
// Guard), and quarantines objects that fail beyond MaxVerifyAttempts.
type StoreVerifier struct {
	db          *state.Manager
	store       *store.Store
	maxAttempts int64
	broker      *events.Broker

	// concurrency bounds how many objects are re-hashed at once, the
	// same configurable verification-worker semaphore spec.md §5 calls
	// for; outcome recording still goes through the DB's single-writer
	// transaction so this only parallelises the re-hash I/O and CPU work.
	concurrency int
}

// NewStoreVerifier returns a StoreVerifier configured per cfg.
func NewStoreVerifier(db *state.Manager, st *store.Store, cfg config.Config, broker *events.Broker) *StoreVerifier {
	concurrency := cfg.VerificationConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &StoreVerifier{db: db, store: st, maxAttempts: int64(cfg.MaxVerifyAttempts), broker: broker, concurrency: concurrency}
}

// StoreVerificationStats reports one VerifyBatch run's outcome, matching
// state.VerificationStats plus a throughput figure for diagnostics
// (SPEC_FULL.md §12 "Verification statistics reporting").
type StoreVerificationStats struct {
	state.VerificationStats
	ObjectsPerSecond float64
}

// VerifyBatch re-hashes up to limit objects whose last_verified is older
// than objectVerifyMaxAge (or unset), quarantining any whose
// verify_attempts has reached maxAttempts, and returns the resulting
// tally across the whole file_objects table.
func (v *StoreVerifier) VerifyBatch(ctx context.Context, now int64, limit int64) (StoreVerificationStats, error) {
	timer := metrics.NewTimer()
	logger := log.WithComponent("guard")

	hashes, err := v.db.ObjectsNeedingVerification(ctx, int64(objectVerifyMaxAge.Seconds()), now, limit)
	if err != nil {
		return StoreVerificationStats{}, err
	}

	sem := semaphore.NewWeighted(int64(v.concurrency))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, hexHash := range hashes {
		if err := sem.Acquire(workerCtx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(hexHash string) {
			defer wg.Done()
			defer sem.Release(1)

			h, err := hash.Parse(hexHash)
			if err != nil {
				return
			}

			passed := v.verifyObject(h)
			if err := v.recordOutcome(workerCtx, hexHash, passed, now); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
			}
		}(hexHash)
	}

	wg.Wait()
	if firstErr != nil {
		return StoreVerificationStats{}, firstErr
	}

	stats, err := v.db.GetVerificationStats(ctx, int64(objectVerifyMaxAge.Seconds()), now)
	if err != nil {
		return StoreVerificationStats{}, err
	}

	elapsed := timer.Duration().Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(len(hashes)) / elapsed
	}
	result := StoreVerificationStats{VerificationStats: stats, ObjectsPerSecond: rate}

	timer.ObserveDurationVec(metrics.VerificationDuration, "store")
	v.publishStats(result)
	logger.Info().
		Int64("total", stats.TotalObjects).
		Int64("verified", stats.VerifiedCount).
		Int64("quarantined", stats.QuarantinedCount).
		Float64("objects_per_second", rate).
		Msg("store verification batch completed")

	return result, nil
}

// verifyObject re-hashes the on-disk object for h and reports whether it
// still matches its own content address.
func (v *StoreVerifier) verifyObject(h hash.Hash) bool {
	f, err := os.Open(v.store.PathOf(h))
	if err != nil {
		return false
	}
	defer f.Close()

	actual, err := hash.FromReader(f)
	if err != nil {
		return false
	}
	return actual == h
}

// recordOutcome stamps the verification result on file_objects and, once
// verify_attempts reaches maxAttempts, quarantines the object both in the
// database and in the content store.
func (v *StoreVerifier) recordOutcome(ctx context.Context, hexHash string, passed bool, now int64) error {
	return v.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		if err := state.VerifyFileWithTracking(ctx, tx, hexHash, passed, now); err != nil {
			return err
		}
		if passed {
			return nil
		}

		var attempts int64
		if err := tx.QueryRowContext(ctx, `SELECT verify_attempts FROM file_objects WHERE hash = ?`, hexHash).Scan(&attempts); err != nil {
			return fmt.Errorf("guard: read verify_attempts for %s: %w", hexHash, err)
		}
		if attempts < v.maxAttempts {
			return nil
		}

		if err := state.QuarantineFileObject(ctx, tx, hexHash); err != nil {
			return err
		}
		parsed, err := hash.Parse(hexHash)
		if err != nil {
			return nil
		}
		if _, err := v.store.Quarantine(parsed); err != nil {
			log.WithComponent("guard").Error().Err(err).Str("hash", hexHash).Msg("failed to quarantine store object")
		}
		return nil
	})
}

func (v *StoreVerifier) publishStats(s StoreVerificationStats) {
	if v.broker == nil {
		return
	}
	v.broker.Publish(&events.Event{
		Type:    events.EventVerifyCompleted,
		Message: string(events.StageVerify),
		Metadata: map[string]string{
			"total":              fmt.Sprintf("%d", s.TotalObjects),
			"verified":           fmt.Sprintf("%d", s.VerifiedCount),
			"pending":            fmt.Sprintf("%d", s.PendingCount),
			"failed":             fmt.Sprintf("%d", s.FailedCount),
			"quarantined":        fmt.Sprintf("%d", s.QuarantinedCount),
			"objects_per_second": fmt.Sprintf("%.2f", s.ObjectsPerSecond),
		},
	})
}
