// Package services defines shared utilities consumed by the orchestrator,
// executor, workers and API.
//
// Key responsibilities:
//   - Context helpers that stamp batch IDs, job IDs, capability names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified with errors.Is at the API boundary.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the pipeline.
package services
