// Package executor is the in-process execution substrate. Each submitted
// batch runs its chains concurrently (bounded globally by
// workflow.max_parallel_chains), the tasks of a chain strictly in order, and
// the batch completion task exactly once after every chain has stopped.
package executor
