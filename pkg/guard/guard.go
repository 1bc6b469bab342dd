package guard

import (
	"context"

	"github.com/sps2/pm/pkg/config"
	"github.com/sps2/pm/pkg/events"
	"github.com/sps2/pm/pkg/state"
	"github.com/sps2/pm/pkg/store"
)

// Guard ties the Verifier, Healer, and StoreVerifier together into the
// single entrypoint the install pipeline and the periodic maintenance
// job both call (spec.md §4.7).
type Guard struct {
	verifier      *Verifier
	healer        *Healer
	storeVerifier *StoreVerifier
}

// New returns a Guard wired to db and st per cfg.
func New(db *state.Manager, st *store.Store, cfg config.Config, broker *events.Broker) *Guard {
	return &Guard{
		verifier:      NewVerifier(db, cfg),
		healer:        NewHealer(st, cfg, broker),
		storeVerifier: NewStoreVerifier(db, st, cfg, broker),
	}
}

// Report is the combined outcome of one VerifyAndHeal call.
type Report struct {
	Discrepancies []Discrepancy
	Heals         []HealOutcome
}

// VerifyAndHeal checks stateID's files under prefixRoot and, per the
// Healer's configured DiscrepancyPolicy, repairs what it can. This is
// the call the install pipeline makes immediately after a commit (§2's
// data flow: "... then swaps a symlink to make it live → Guard verifies
// post-conditions") and that a periodic maintenance job makes against
// whatever state is currently live.
func (g *Guard) VerifyAndHeal(ctx context.Context, stateID, prefixRoot string) (Report, error) {
	discrepancies, err := g.verifier.VerifyState(ctx, stateID, prefixRoot)
	if err != nil {
		return Report{}, err
	}

	heals, err := g.healer.Heal(ctx, discrepancies, prefixRoot)
	if err != nil {
		return Report{Discrepancies: discrepancies, Heals: heals}, err
	}

	return Report{Discrepancies: discrepancies, Heals: heals}, nil
}

// VerifyStoreBatch delegates to StoreVerifier, the store-level half of
// Guard that runs independent of any single state.
func (g *Guard) VerifyStoreBatch(ctx context.Context, now int64, limit int64) (StoreVerificationStats, error) {
	return g.storeVerifier.VerifyBatch(ctx, now, limit)
}
