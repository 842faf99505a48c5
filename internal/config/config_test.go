package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"folio/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("FOLIO_STORE_DSN", "")
	t.Setenv("OJS_BASE_URL", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "folio")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.WorkDir != filepath.Join(wantData, "work") {
		t.Fatalf("unexpected work dir: %q", cfg.Paths.WorkDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver by default, got %q", cfg.Store.Driver)
	}
	if cfg.Workflow.MaxParallelChains != config.Default().Workflow.MaxParallelChains {
		t.Fatalf("unexpected max parallel chains: %d", cfg.Workflow.MaxParallelChains)
	}
	if cfg.Publishing.ArchiveLinkBase != "https://archives.dainst.org/index.php" {
		t.Fatalf("unexpected archive link base: %q", cfg.Publishing.ArchiveLinkBase)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.StorePath() != filepath.Join(wantData, "jobs.db") {
		t.Fatalf("unexpected store path: %q", cfg.StorePath())
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "folio.toml")
	payload := `
[paths]
data_dir = "~/archive"
api_bind = "0.0.0.0:9000"

[store]
driver = "Memory"

[workflow]
max_parallel_chains = 2

[publishing]
ojs_base_url = "https://ojs.example.org/"

[logging]
format = "JSON"
level = "debug"
`
	if err := os.WriteFile(configPath, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected explicit config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "archive") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.APIBind != "0.0.0.0:9000" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("expected normalized driver, got %q", cfg.Store.Driver)
	}
	if cfg.Workflow.MaxParallelChains != 2 {
		t.Fatalf("unexpected max parallel chains: %d", cfg.Workflow.MaxParallelChains)
	}
	if cfg.Publishing.OJSBaseURL != "https://ojs.example.org" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Publishing.OJSBaseURL)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadUsesEnvironmentFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FOLIO_STORE_DSN", "postgres://folio@localhost/folio")
	t.Setenv("OJS_BASE_URL", "https://ojs.example.org")

	configPath := filepath.Join(t.TempDir(), "folio.toml")
	if err := os.WriteFile(configPath, []byte("[store]\ndriver = \"postgres\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Store.DSN != "postgres://folio@localhost/folio" {
		t.Fatalf("expected dsn from env, got %q", cfg.Store.DSN)
	}
	if cfg.Publishing.OJSBaseURL != "https://ojs.example.org" {
		t.Fatalf("expected ojs url from env, got %q", cfg.Publishing.OJSBaseURL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FOLIO_STORE_DSN", "")

	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "unknown driver", payload: "[store]\ndriver = \"mongo\"\n", want: "store.driver"},
		{name: "postgres without dsn", payload: "[store]\ndriver = \"postgres\"\n", want: "store.dsn"},
		{name: "zero parallelism", payload: "[workflow]\nmax_parallel_chains = 0\n", want: "max_parallel_chains"},
		{name: "bad log format", payload: "[logging]\nformat = \"xml\"\n", want: "logging.format"},
		{name: "unknown field", payload: "[paths]\nstaging_dir = \"/tmp\"\n", want: "parse config"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "folio.toml")
			if err := os.WriteFile(configPath, []byte(tc.payload), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(configPath)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	if _, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FOLIO_STORE_DSN", "")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded map[string]any
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	for _, section := range []string{"paths", "store", "workflow", "publishing", "notifications", "logging"} {
		if _, ok := decoded[section]; !ok {
			t.Fatalf("sample missing section %q", section)
		}
	}

	if _, _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func TestEnsureDirectoriesCreatesPaths(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.WorkDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist: %v", dir, err)
		}
	}
}
