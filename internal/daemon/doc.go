// Package daemon coordinates the long-running folio process.
//
// It wires configuration, the job store, the batch orchestrator, the local
// executor, and the HTTP API into a single lifecycle with flock-based locking
// to prevent multiple instances against the same data directory. At startup
// it removes work directories left behind by chains that are no longer
// running and logs preflight results.
//
// Keep orchestration logic here: compilation, persistence, and execution live
// in their respective packages while the daemon focuses on startup, shutdown,
// and health reporting.
package daemon
