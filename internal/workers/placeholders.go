package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"folio/internal/jobstore"
	"folio/internal/logging"
	"folio/internal/pipeline"
	"folio/internal/services"
	"folio/internal/workdir"
)

// Finalizer completes a batch once all chains are terminal.
type Finalizer interface {
	Finalize(ctx context.Context, batchID string) (jobstore.State, error)
}

// NewDefaultRegistry registers a worker for every capability the pipeline
// compiler emits. Objects are assembled under workRoot.
func NewDefaultRegistry(workRoot string, finalizer Finalizer, logger *slog.Logger) (*Registry, error) {
	logger = logging.NewComponentLogger(logger, "worker")
	reg := NewRegistry()
	objects := &objectWorker{root: workRoot, logger: logger}

	cleanup := WorkerFunc(func(_ context.Context, inv Invocation) error {
		return workdir.Remove(workRoot, inv.WorkPath())
	})
	finish := WorkerFunc(func(ctx context.Context, inv Invocation) error {
		_, err := finalizer.Finalize(ctx, inv.JobID())
		return err
	})

	bindings := map[string]Worker{
		"create_object":          objects,
		"create_complex_object":  objects,
		"cleanup_directories":    cleanup,
		"finish_chain":           &chainFinishedWorker{logger: logger},
		pipeline.FinishBatchTask: finish,
	}
	for _, name := range pipeline.Capabilities() {
		w, ok := bindings[name]
		if !ok {
			w = &placeholderWorker{root: workRoot, logger: logger}
		}
		if err := reg.Register(name, w); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// objectWorker creates the chain's work directory and imports the target's
// files as the initial representation.
type objectWorker struct {
	root   string
	logger *slog.Logger
}

func (w *objectWorker) Run(ctx context.Context, inv Invocation) error {
	source, _ := inv.Params["path"].(string)
	source = strings.TrimSpace(source)
	if source == "" {
		return services.Wrap(services.ErrTask, "worker", inv.Name, "target path is empty", nil)
	}
	if _, err := os.Stat(source); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrTask, "worker", inv.Name, fmt.Sprintf("target path %s not found", source), nil)
		}
		return err
	}

	dir, err := workdir.Ensure(w.root, inv.WorkPath())
	if err != nil {
		return err
	}
	if instructions, ok := inv.Params["copy_instructions"].(map[string]any); ok {
		return w.importComplex(ctx, inv, source, dir, instructions)
	}

	representation, _ := inv.Params["initial_representation"].(string)
	if representation == "" {
		representation = "tif"
	}
	copied, err := workdir.ImportFiles(source, workdir.Representation(dir, representation), "")
	if err != nil {
		return err
	}
	logging.WithContext(ctx, w.logger).Info("object created",
		logging.String("source", source),
		logging.String("representation", representation),
		logging.Count("files", copied),
	)
	return nil
}

// importComplex follows copy instructions of the form
// {"<source subdir>": ["<representation>", "<glob>"]}.
func (w *objectWorker) importComplex(ctx context.Context, inv Invocation, source, dir string, instructions map[string]any) error {
	total := 0
	for _, from := range slices.Sorted(maps.Keys(instructions)) {
		target, pattern, ok := copyInstruction(instructions[from])
		if !ok {
			return services.Wrap(services.ErrTask, "worker", inv.Name, fmt.Sprintf("malformed copy instruction for %s", from), nil)
		}
		copied, err := workdir.ImportFiles(filepath.Join(source, filepath.FromSlash(from)), workdir.Representation(dir, target), pattern)
		if err != nil {
			return err
		}
		total += copied
	}
	logging.WithContext(ctx, w.logger).Info("complex object created",
		logging.String("source", source),
		logging.Count("parts", len(instructions)),
		logging.Count("files", total),
	)
	return nil
}

func copyInstruction(value any) (string, string, bool) {
	switch v := value.(type) {
	case []string:
		if len(v) == 2 {
			return v[0], v[1], true
		}
	case []any:
		if len(v) == 2 {
			target, ok1 := v[0].(string)
			pattern, ok2 := v[1].(string)
			return target, pattern, ok1 && ok2
		}
	}
	return "", "", false
}

// placeholderWorker accepts a capability whose implementation lives outside
// this repository. It requires the chain's work directory to exist.
type placeholderWorker struct {
	root   string
	logger *slog.Logger
}

func (w *placeholderWorker) Run(ctx context.Context, inv Invocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !workdir.Exists(w.root, inv.WorkPath()) {
		return services.Wrap(services.ErrTask, "worker", inv.Name, "work directory missing", nil)
	}
	logging.WithContext(ctx, w.logger).Debug("capability accepted", logging.String("work_path", inv.WorkPath()))
	return nil
}

// chainFinishedWorker reports the chain's success message. It runs after
// cleanup_directories, so it does not touch the work directory.
type chainFinishedWorker struct {
	logger *slog.Logger
}

func (w *chainFinishedWorker) Run(ctx context.Context, inv Invocation) error {
	msg, _ := inv.Params["success_msg"].(string)
	url, _ := inv.Params["success_url"].(string)
	logging.WithContext(ctx, w.logger).Info("chain finished",
		logging.Event("chain_complete"),
		logging.String("message", msg),
		logging.String("url", url),
	)
	return nil
}
