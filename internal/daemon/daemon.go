package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"folio/internal/api"
	"folio/internal/batch"
	"folio/internal/config"
	"folio/internal/executor"
	"folio/internal/ids"
	"folio/internal/jobstore"
	"folio/internal/logging"
	"folio/internal/notifications"
	"folio/internal/pipeline"
	"folio/internal/preflight"
	"folio/internal/services"
	"folio/internal/workdir"
	"folio/internal/workers"
)

// Daemon owns the store, executor, and API server for one data directory.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  jobstore.Store

	orchestrator *batch.Orchestrator
	executor     *executor.Executor
	server       *api.Server

	lockPath string
	lock     *flock.Flock
	listener net.Listener

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	APIAddress    string
	LockFilePath  string
	ActiveBatches int
	Checks        []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store jobstore.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	finalizer := batch.NewFinalizer(store, logger).WithNotifier(notifications.NewService(cfg))
	registry, err := workers.NewDefaultRegistry(cfg.Paths.WorkDir, finalizer, logger)
	if err != nil {
		return nil, fmt.Errorf("register workers: %w", err)
	}
	runner := workers.NewRunner(registry, workers.NewReporter(store), logger)
	exec := executor.New(runner, store, cfg.Workflow.MaxParallelChains, logger)

	compiler := pipeline.NewCompiler(pipeline.Settings{
		ArchiveLinkBase: cfg.Publishing.ArchiveLinkBase,
		OJSBaseURL:      cfg.Publishing.OJSBaseURL,
	})
	orch, err := batch.NewOrchestrator(store, ids.UUIDGenerator{}, compiler, exec, logger)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        store,
		orchestrator: orch,
		executor:     exec,
		lockPath:     cfg.LockPath(),
		lock:         flock.New(cfg.LockPath()),
	}
	d.server = api.NewServer(api.Options{
		Jobs:    api.NewJobService(store),
		Batches: orch,
		Admit:   d.admit,
		Health:  d.health,
		Logger:  logger,
	})
	return d, nil
}

// Start acquires the daemon lock, cleans orphaned work directories, and
// begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another folio daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.cleanWorkDirs(d.ctx)
	d.logPreflight(d.ctx)

	bind := strings.TrimSpace(d.cfg.Paths.APIBind)
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("api listen: %w", err)
	}
	d.listener = listener
	go func() {
		if err := d.server.Serve(listener); err != nil {
			d.logger.Error("api server error", logging.Error(err))
		}
	}()

	d.running.Store(true)
	d.logger.Info("folio daemon started",
		logging.Event("daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api", listener.Addr().String()),
		logging.String("store", d.cfg.Store.Driver),
	)
	return nil
}

// Stop shuts down the API, lets running batches finalize within the
// configured shutdown timeout, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	timeout := time.Duration(d.cfg.Workflow.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("api shutdown incomplete", logging.Error(err))
	}
	if err := d.executor.Stop(shutdownCtx); err != nil {
		logging.WarnWithContext(d.logger, "executor shutdown incomplete", "executor_stop_timeout",
			logging.Int("active_batches", d.executor.Active()),
			logging.String(logging.FieldErrorHint, "raise workflow.shutdown_timeout"),
			logging.String(logging.FieldImpact, "unfinished batches stay in the started state"),
			logging.Error(err),
		)
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.listener = nil
	d.running.Store(false)
	d.logger.Info("folio daemon stopped", logging.Event("daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Orchestrator exposes the batch orchestrator for in-process submission.
func (d *Daemon) Orchestrator() *batch.Orchestrator {
	return d.orchestrator
}

// Wait blocks until every submitted batch has completed.
func (d *Daemon) Wait() {
	d.executor.Wait()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:       d.running.Load(),
		LockFilePath:  d.lockPath,
		ActiveBatches: d.executor.Active(),
		Checks:        preflight.RunAll(ctx, d.cfg, d.store),
	}
	if d.listener != nil {
		status.APIAddress = d.listener.Addr().String()
	}
	return status
}

func (d *Daemon) health(ctx context.Context) api.HealthResponse {
	status := d.Status(ctx)
	return api.HealthResponse{
		Healthy:       status.Running && len(preflight.Failed(status.Checks)) == 0,
		ActiveBatches: status.ActiveBatches,
		Checks:        status.Checks,
	}
}

// admit rejects submissions while the work volume is below the free-space floor.
func (d *Daemon) admit(context.Context) error {
	result := preflight.CheckFreeSpace("Work volume", d.cfg.Paths.WorkDir, d.cfg.Workflow.MinFreeGiB)
	if !result.Passed {
		return services.Wrap(services.ErrUnavailable, "daemon", "admit batch", "work volume below free-space floor ("+result.Detail+")", nil)
	}
	return nil
}

func (d *Daemon) cleanWorkDirs(ctx context.Context) {
	keep := func(name string) bool {
		node, err := d.store.Get(ctx, name)
		if err != nil {
			return !errors.Is(err, jobstore.ErrNotFound)
		}
		return !node.State.Terminal()
	}
	result := workdir.CleanOrphaned(ctx, d.cfg.Paths.WorkDir, keep, d.logger)
	if len(result.Removed) > 0 {
		d.logger.Info("orphaned work directories removed",
			logging.Event("workdir_cleanup_summary"),
			logging.Count("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
		)
	}
}

func (d *Daemon) logPreflight(ctx context.Context) {
	for _, result := range preflight.RunAll(ctx, d.cfg, d.store) {
		if result.Passed {
			d.logger.Debug("preflight passed", logging.String("check", result.Name), logging.String("detail", result.Detail))
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "batches may fail or be rejected"),
		)
	}
}
