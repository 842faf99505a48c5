package preflight

import (
	"context"

	"folio/internal/config"
	"folio/internal/jobstore"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every applicable check for the given config. The store
// check is skipped when store is nil; the OJS check only runs when a base
// URL is configured.
func RunAll(ctx context.Context, cfg *config.Config, store jobstore.Store) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckFreeSpace("Work volume", cfg.Paths.WorkDir, cfg.Workflow.MinFreeGiB),
	}
	if store != nil {
		results = append(results, CheckStore(ctx, store))
	}
	if cfg.Publishing.OJSBaseURL != "" {
		results = append(results, CheckHTTP(ctx, "OJS", cfg.Publishing.OJSBaseURL))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
