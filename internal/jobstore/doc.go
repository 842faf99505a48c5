// Package jobstore persists the three-level job tree (batch root, chain
// nodes, task nodes) and exposes the point lookups, per-user listings and
// state/error updates the orchestrator, executor and workers rely on.
//
// Three backends implement Store: SQLite (the default, via modernc.org/sqlite),
// PostgreSQL (via pgx), and an in-memory B-tree store used by tests and
// ephemeral daemons. Open selects one from configuration. Every backend
// guarantees that InsertTree is all-or-nothing so a failed batch creation
// never leaves a partial tree behind.
package jobstore
