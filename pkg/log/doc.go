/*
Package log provides structured logging for pm using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers (store, state, resolver, staging,
pipeline, transition, guard), configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("transition")
	logger.Info().Str("state_id", id).Msg("commit starting")

Context loggers (WithOperationID, WithStateID, WithPackage, WithHash) let
a component attach the identifiers relevant to §7's error-context
requirement without repeating Str() calls at every call site.

No library code touches the package-level Logger directly except through
these constructors, and only cmd/pm calls Init; library packages do not
accept an injected zerolog.Logger.
*/
package log
