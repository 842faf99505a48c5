// Package pipeline compiles a job request into the chains of worker tasks
// that make up one batch.
//
// Each supported job type has a recipe in a strategy table. A recipe is a
// pure function of its targets, options, and the publishing settings: it
// never touches storage, so an unsupported request fails with a
// CompilationError before anything is persisted.
package pipeline
