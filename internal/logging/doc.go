// Package logging assembles structured slog loggers and formatting helpers used
// across folio.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so orchestrator, executor and
// worker code can tag log lines with batch IDs, job IDs, capabilities, and
// correlation IDs. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
package logging
