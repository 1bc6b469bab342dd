package main

import (
	"errors"

	"github.com/sps2/pm/pkg/pmerrors"
)

const (
	exitSuccess             = 0
	exitUserError           = 1
	exitResolutionFailure   = 2
	exitInstallFailure      = 3
	exitVerificationFailure = 4
	exitInternal            = 5
)

// exitCodeFor maps an engine error to the exit codes spec.md §6 defines,
// in the escalation order of §7.
func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}

	var userErr *pmerrors.UserError
	if errors.As(err, &userErr) {
		return exitUserError
	}

	var resErr *pmerrors.ResolutionError
	if errors.As(err, &resErr) {
		return exitResolutionFailure
	}

	var dlErr *pmerrors.DownloadError
	var valErr *pmerrors.ValidationError
	var stoErr *pmerrors.StorageError
	var dbErr *pmerrors.DatabaseError
	if errors.As(err, &dlErr) || errors.As(err, &valErr) || errors.As(err, &stoErr) || errors.As(err, &dbErr) {
		return exitInstallFailure
	}

	var stateErr *pmerrors.StateError
	if errors.As(err, &stateErr) {
		return exitVerificationFailure
	}

	var internalErr *pmerrors.Internal
	if errors.As(err, &internalErr) {
		return exitInternal
	}

	return exitInternal
}
