// Package guard implements pm's post-install and periodic verification
// of the live prefix and the content store, plus optional auto-healing,
// as described in spec.md §4.7: stat (and, at Full level, re-hash) every
// PackageFileEntry of the current state, classify any disagreement as a
// Discrepancy, and — when the configured DiscrepancyPolicy allows it —
// repair it by re-linking from the content store or quarantining a
// corrupt store object.
package guard
