package testsupport

import (
	"path/filepath"
	"testing"

	"folio/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The store defaults to the in-memory driver, the free-space floor to zero,
// and the API to an ephemeral port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Store.Driver = "memory"
	cfgVal.Workflow.MinFreeGiB = 0
	cfgVal.Publishing.OJSBaseURL = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithSQLiteStore switches the test config to the sqlite driver under the
// temp data directory.
func WithSQLiteStore() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Driver = "sqlite"
	}
}

// WithMaxParallelChains overrides the executor parallelism.
func WithMaxParallelChains(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxParallelChains = n
	}
}

// WithMinFreeGiB overrides the free-space floor checked before submission.
func WithMinFreeGiB(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MinFreeGiB = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
