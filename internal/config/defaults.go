package config

const (
	defaultDataDir           = "~/.local/share/folio"
	defaultWorkDir           = "~/.local/share/folio/work"
	defaultLogDir            = "~/.local/share/folio/logs"
	defaultAPIBind           = "127.0.0.1:7490"
	defaultStoreDriver       = "sqlite"
	defaultMaxParallelChains = 4
	defaultShutdownTimeout   = 30
	defaultMinFreeGiB        = 5
	defaultArchiveLinkBase   = "https://archives.dainst.org/index.php"
	defaultNtfyTimeout       = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Store: Store{
			Driver: defaultStoreDriver,
		},
		Workflow: Workflow{
			MaxParallelChains: defaultMaxParallelChains,
			ShutdownTimeout:   defaultShutdownTimeout,
			MinFreeGiB:        defaultMinFreeGiB,
		},
		Publishing: Publishing{
			ArchiveLinkBase: defaultArchiveLinkBase,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
