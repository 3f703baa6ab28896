// Package logging provides structured logging for the occupancy daemon.
//
// It wraps the standard library's log/slog with configuration-driven
// format and level selection, plus default fields identifying the
// service and build version on every record.
//
// The engine core accepts any logger satisfying its small Logger
// interface; *logging.Logger satisfies it directly, so one logger flows
// from main through the host into the engine.
//
// # Usage
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("starting", "config", path)
//
//	hostLog := log.With("component", "host")
package logging
