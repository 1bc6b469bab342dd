package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sps2/pm/pkg/pmerrors"
)

func TestExitCodeForEscalationOrder(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitSuccess},
		{"user", &pmerrors.UserError{Message: "bad spec"}, exitUserError},
		{"resolution", &pmerrors.ResolutionError{Kind: pmerrors.ResolutionNotFound}, exitResolutionFailure},
		{"download", &pmerrors.DownloadError{Kind: pmerrors.DownloadTimeout}, exitInstallFailure},
		{"validation", &pmerrors.ValidationError{Kind: pmerrors.ValidationPathUnsafe}, exitInstallFailure},
		{"storage", &pmerrors.StorageError{Kind: pmerrors.StorageOutOfSpace}, exitInstallFailure},
		{"database", &pmerrors.DatabaseError{}, exitInstallFailure},
		{"state", &pmerrors.StateError{Kind: pmerrors.StateInconsistent}, exitVerificationFailure},
		{"internal", &pmerrors.Internal{}, exitInternal},
		{"unknown", fmt.Errorf("something else"), exitInternal},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, exitCodeFor(c.err))
		})
	}
}

func TestExitCodeForWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("install: %w", &pmerrors.ResolutionError{Kind: pmerrors.ResolutionDependencyCycle})
	require.Equal(t, exitResolutionFailure, exitCodeFor(wrapped))
}
