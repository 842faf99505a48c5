// Package batch turns compiled chains into a persisted three-level job tree
// (batch root, one chain node per target, one task node per step) and hands
// the executable batch to an execution substrate.
//
// The Orchestrator persists the whole tree before anything starts, marks the
// root and chain nodes started, then submits. The Finalizer is the completion
// handler the substrate invokes once per batch after every chain is terminal.
package batch
