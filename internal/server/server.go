// Package server exposes the runner's remote operations over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"mlrunner/internal/environment"
	"mlrunner/internal/task"
	"mlrunner/pkg/api"
)

// Admission gates task execution against the worker-slot pool.
type Admission interface {
	Acquire() error
	Release() error
	Status() (string, error)
	Slots() (int, error)
}

// Environment provisions and refreshes job workspaces.
type Environment interface {
	PrepareDirectories(jobID, datasetName, modelName string) (environment.Dirs, error)
	Setup(ctx context.Context, jobID string, dataset, model api.RepoRef) error
	Prepare(ctx context.Context, jobID string, dataset, model api.RepoRef, datasetType, uploadSrc string) error
}

// TaskStream is a live task run: its output lines and terminal exit code.
type TaskStream interface {
	Lines() <-chan string
	Wait(ctx context.Context) (int, error)
}

// TaskRunner launches task invocations.
type TaskRunner interface {
	Run(ctx context.Context, spec task.Spec) (TaskStream, error)
}

// Harvester reads the result document a finished task left behind.
type Harvester interface {
	Harvest(ctx context.Context, dir string) (api.Outcome, error)
}

// Lifecycle stops correlated containers and removes workspaces and images.
type Lifecycle interface {
	Stop(ctx context.Context, jobID string) error
	Remove(jobID string) error
	RemoveImage(ctx context.Context, jobID string) error
}

// execRunner adapts *task.Executor to the TaskRunner interface.
type execRunner struct {
	e *task.Executor
}

func (r execRunner) Run(ctx context.Context, spec task.Spec) (TaskStream, error) {
	rt, err := r.e.Run(ctx, spec)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// NewTaskRunner wraps a task.Executor for use by the server.
func NewTaskRunner(e *task.Executor) TaskRunner {
	return execRunner{e: e}
}

// Server is the HTTP server carrying the runner API.
type Server struct {
	httpServer *http.Server
}

// New creates a runner API server on addr.
func New(addr string, h *Handlers, log *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", h.GetStatus)

	limited := RateLimitMiddleware(defaultRate, defaultBurst)
	logged := RequestLogMiddleware(log)

	mux.Handle("POST /environments", logged(limited(http.HandlerFunc(h.CreateEnvironment))))
	mux.Handle("POST /tasks/run", logged(limited(http.HandlerFunc(h.RunTask))))
	mux.Handle("POST /tasks/{jobID}/stop", logged(limited(http.HandlerFunc(h.StopTask))))
	mux.Handle("DELETE /environments/{jobID}", logged(limited(http.HandlerFunc(h.RemoveEnvironment))))

	return &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 30 * time.Second,
			// No write timeout: a run-task stream lives as long as its
			// child process.
		},
	}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
