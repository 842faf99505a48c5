// Package main hosts the folio CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground, submits ingestion
// requests to a running daemon over its HTTP API, and renders the resulting
// job trees. Configuration resolution lives in commandContext so subcommands
// only deal with presentation.
package main
