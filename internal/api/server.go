package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"

	"folio/internal/batch"
	"folio/internal/logging"
	"folio/internal/pipeline"
	"folio/internal/services"
)

// Starter creates and runs a batch.
type Starter interface {
	Start(ctx context.Context, jobType string, req pipeline.Request, user string) (*batch.Handle, error)
}

// Options wires a Server.
type Options struct {
	Jobs    *JobService
	Batches Starter
	// Admit gates submissions; a non-nil error rejects the batch before
	// anything is compiled or persisted.
	Admit func(ctx context.Context) error
	// Health reports readiness checks and executor load.
	Health func(ctx context.Context) HealthResponse
	Logger *slog.Logger
}

// Server serves the job API.
type Server struct {
	app    *fiber.App
	opts   Options
	logger *slog.Logger
}

// NewServer builds the fiber application and registers every route.
func NewServer(opts Options) *Server {
	s := &Server{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "api"),
	}
	s.app = fiber.New(fiber.Config{
		AppName:      "folio",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: s.handleError,
	})
	s.app.Use(recoverer.New())
	s.app.Use(requestid.New())
	s.app.Use(s.logRequest)

	s.app.Post("/api/jobs/:type", s.handleSubmit)
	s.app.Get("/api/jobs", s.handleList)
	s.app.Get("/api/jobs/:id", s.handleShow)
	s.app.Get("/api/job-types", s.handleJobTypes)
	s.app.Get("/api/health", s.handleHealth)
	return s
}

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting requests and waits for in-flight handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleSubmit(c fiber.Ctx) error {
	ctx := s.requestContext(c)
	jobType := strings.TrimSpace(c.Params("type"))
	user := strings.TrimSpace(c.Get(UserHeader))
	if user == "" {
		return services.Wrap(services.ErrValidation, "api", "submit", UserHeader+" header is required", nil)
	}

	var req pipeline.Request
	body := c.Body()
	if len(body) == 0 {
		return services.Wrap(services.ErrValidation, "api", "submit", "request body is required", nil)
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return services.Wrap(services.ErrValidation, "api", "submit", "invalid request body", err)
	}

	if s.opts.Admit != nil {
		if err := s.opts.Admit(ctx); err != nil {
			return err
		}
	}

	handle, err := s.opts.Batches.Start(ctx, jobType, req, user)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(SubmitResponse{
		BatchID:  handle.ID,
		JobType:  handle.JobType,
		User:     handle.User,
		ChainIDs: handle.ChainIDs,
	})
}

func (s *Server) handleList(c fiber.Ctx) error {
	user := strings.TrimSpace(c.Query("user"))
	if user == "" {
		return services.Wrap(services.ErrValidation, "api", "list", "user query parameter is required", nil)
	}
	all := c.Query("all") == "true"
	jobs, err := s.opts.Jobs.List(s.requestContext(c), user, all)
	if err != nil {
		return err
	}
	return c.JSON(JobListResponse{Jobs: jobs})
}

func (s *Server) handleShow(c fiber.Ctx) error {
	detail, err := s.opts.Jobs.Describe(s.requestContext(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

func (s *Server) handleJobTypes(c fiber.Ctx) error {
	names := pipeline.JobTypes()
	types := make([]JobType, 0, len(names))
	for _, name := range names {
		recipe, _ := pipeline.Lookup(name)
		types = append(types, JobType{Name: name, Label: recipe.Label, Description: recipe.Description})
	}
	return c.JSON(JobTypesResponse{Types: types})
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	resp := HealthResponse{Healthy: true}
	if s.opts.Health != nil {
		resp = s.opts.Health(s.requestContext(c))
	}
	status := fiber.StatusOK
	if !resp.Healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(resp)
}

// handleError maps classified errors onto status codes.
func (s *Server) handleError(c fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: fiberErr.Message})
	}

	kind := services.FailureKind(err)
	status := StatusForError(err)
	if status >= fiber.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(s.requestContext(c), s.logger), "request failed", "api_error",
			logging.String("method", c.Method()),
			logging.String("path", c.Path()),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error(), Kind: kind})
}

// StatusForError returns the HTTP status an error is reported with.
func StatusForError(err error) int {
	switch services.FailureKind(err) {
	case "compilation", "validation":
		return fiber.StatusBadRequest
	case "not_found":
		return fiber.StatusNotFound
	case "unavailable":
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) logRequest(c fiber.Ctx) error {
	started := time.Now()
	if err := c.Next(); err != nil {
		if herr := s.handleError(c, err); herr != nil {
			return herr
		}
	}
	s.logger.Debug("request served",
		logging.String("method", c.Method()),
		logging.String("path", c.Path()),
		logging.Int("status", c.Response().StatusCode()),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldCorrelationID, requestid.FromContext(c)),
	)
	return nil
}

func (s *Server) requestContext(c fiber.Ctx) context.Context {
	return services.WithRequestID(c.Context(), requestid.FromContext(c))
}
