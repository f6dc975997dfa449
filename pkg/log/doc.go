/*
Package log provides structured logging for the fleet control plane using
zerolog.

The package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable levels, and helpers for common
patterns. All logs carry timestamps and are filterable by severity.

# Usage

Initializing:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	schedLog := log.WithComponent("scheduler")
	schedLog.Info().Str("schedule_id", id).Msg("schedule due")

Structured errors:

	log.Logger.Error().Err(err).Str("node_id", nodeID).Msg("sync failed")

Never log credential plaintext; the vault returns plaintext only through
token exchange and callers must not pass it to the logger.
*/
package log
