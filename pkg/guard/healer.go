package guard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sps2/pm/pkg/config"
	"github.com/sps2/pm/pkg/events"
	"github.com/sps2/pm/pkg/log"
	"github.com/sps2/pm/pkg/metrics"
	"github.com/sps2/pm/pkg/pmerrors"
	"github.com/sps2/pm/pkg/store"
)

// HealOutcome is the result of attempting to repair one Discrepancy.
type HealOutcome struct {
	Discrepancy Discrepancy
	Healed      bool
	Err         error
}

// orphanBackupDir is the directory, relative to a prefix root, that
// UserFileBackup moves orphaned files into rather than deleting them.
const orphanBackupDir = ".pm-orphaned"

// Healer repairs discrepancies Verifier finds, re-linking from the
// content store where possible (spec.md §4.7's "Healing" paragraph).
type Healer struct {
	store          *store.Store
	policy         config.DiscrepancyPolicy
	userFilePolicy config.UserFilePolicy
	broker         *events.Broker
}

// NewHealer returns a Healer configured per cfg.
func NewHealer(st *store.Store, cfg config.Config, broker *events.Broker) *Healer {
	return &Healer{store: st, policy: cfg.DiscrepancyPolicy, userFilePolicy: cfg.UserFilePolicy, broker: broker}
}

// Heal applies the configured DiscrepancyPolicy to discrepancies found
// under prefixRoot:
//
//   - ReportOnly never attempts a repair; every discrepancy is returned
//     unhealed.
//   - AutoHeal and AutoHealOrFail both attempt a repair for every
//     discrepancy; AutoHealOrFail additionally returns a StateError if
//     any discrepancy remains unhealed afterward.
//   - FailFast attempts no repair and returns a StateError immediately
//     if discrepancies is non-empty.
func (h *Healer) Heal(ctx context.Context, discrepancies []Discrepancy, prefixRoot string) ([]HealOutcome, error) {
	if len(discrepancies) == 0 {
		return nil, nil
	}

	if h.policy == config.DiscrepancyFailFast {
		return nil, &pmerrors.StateError{Kind: pmerrors.StateInconsistent, Cause: fmt.Errorf("%d discrepancies found, fail_fast policy in effect", len(discrepancies))}
	}

	outcomes := make([]HealOutcome, 0, len(discrepancies))
	unhealed := 0

	for _, d := range discrepancies {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		if h.policy == config.DiscrepancyReportOnly {
			outcomes = append(outcomes, HealOutcome{Discrepancy: d, Healed: false})
			unhealed++
			continue
		}

		healed, err := h.healOne(d, prefixRoot)
		outcomes = append(outcomes, HealOutcome{Discrepancy: d, Healed: healed, Err: err})
		if !healed {
			unhealed++
		}
		if healed {
			metrics.HealsTotal.WithLabelValues("healed").Inc()
		} else {
			metrics.HealsTotal.WithLabelValues("failed").Inc()
		}
		h.publish(d, healed)
	}

	if h.policy == config.DiscrepancyAutoHealOrFail && unhealed > 0 {
		return outcomes, &pmerrors.StateError{Kind: pmerrors.StateInconsistent, Cause: fmt.Errorf("%d of %d discrepancies could not be healed", unhealed, len(discrepancies))}
	}

	return outcomes, nil
}

// healOne attempts to repair a single discrepancy, reporting whether it
// succeeded.
func (h *Healer) healOne(d Discrepancy, prefixRoot string) (bool, error) {
	logger := log.WithComponent("guard")

	switch d.Kind {
	case MissingFile, CorruptedFile, TypeMismatch:
		full := filepath.Join(prefixRoot, d.RelativePath)

		if d.IsSymlink {
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return false, err
			}
			os.Remove(full)
			if err := os.Symlink(d.SymlinkTarget, full); err != nil {
				return false, err
			}
			return true, nil
		}

		if !h.store.Contains(d.Expected) {
			// the store object itself is gone or quarantined; nothing to
			// re-link from. The caller must reinstall the owning package.
			logger.Warn().Str("path", d.RelativePath).Str("hash", d.Expected.String()).Msg("cannot heal: object absent from store")
			return false, nil
		}
		if err := h.store.LinkInto(d.Expected, full, d.Permissions); err != nil {
			return false, err
		}
		return true, nil

	case OrphanedFile:
		return h.healOrphan(d, prefixRoot)

	case MissingVenv:
		// not repairable by re-linking from the store; surfaced for
		// reinstall or manual operator action.
		return false, nil

	default:
		return false, nil
	}
}

// healOrphan applies the configured UserFilePolicy to a path present in
// the prefix but not owned by any PackageFileEntry (spec.md §4.7's
// "user-file policy"):
//
//   - Preserve leaves the file in place; the discrepancy is reported but
//     not counted as a failed heal, since Preserve's contract is "do
//     nothing", not "repair".
//   - Remove deletes the file outright.
//   - Backup moves it under orphanBackupDir, preserving its relative
//     path, so an operator can recover it later.
func (h *Healer) healOrphan(d Discrepancy, prefixRoot string) (bool, error) {
	full := filepath.Join(prefixRoot, d.RelativePath)

	switch h.userFilePolicy {
	case config.UserFileRemove:
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return false, err
		}
		return true, nil

	case config.UserFileBackup:
		dest := filepath.Join(prefixRoot, orphanBackupDir, d.RelativePath)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return false, err
		}
		if err := os.Rename(full, dest); err != nil {
			return false, err
		}
		return true, nil

	default: // config.UserFilePreserve
		return true, nil
	}
}

func (h *Healer) publish(d Discrepancy, healed bool) {
	if h.broker == nil {
		return
	}
	h.broker.Publish(&events.Event{
		Type:    events.EventHealAttempted,
		Message: d.Kind.String(),
		Package: d.PackageName + "@" + d.PackageVersion,
		Metadata: map[string]string{
			"path":   d.RelativePath,
			"healed": boolString(healed),
		},
	})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
