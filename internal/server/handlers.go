package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mlrunner/internal/admission"
	"mlrunner/internal/logger"
	"mlrunner/internal/task"
	"mlrunner/pkg/api"
)

// Handlers holds the runner API handlers and their dependencies.
type Handlers struct {
	admission Admission
	env       Environment
	runner    TaskRunner
	harvester Harvester
	lifecycle Lifecycle
	log       *slog.Logger
}

// NewHandlers wires the runner API handlers.
func NewHandlers(adm Admission, env Environment, runner TaskRunner, h Harvester, lc Lifecycle, log *slog.Logger) *Handlers {
	return &Handlers{
		admission: adm,
		env:       env,
		runner:    runner,
		harvester: h,
		lifecycle: lc,
		log:       log,
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJSON(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// GetStatus handles GET /status.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.admission.Status()
	if err != nil {
		h.httpError(w, "Failed to read slot status", http.StatusInternalServerError)
		return
	}
	slots, err := h.admission.Slots()
	if err != nil {
		h.httpError(w, "Failed to read slot count", http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, http.StatusOK, api.StatusResponse{Status: status, Slots: slots})
}

// CreateEnvironment handles POST /environments. It provisions the job
// workspace and materializes dataset and model into it.
func (h *Handlers) CreateEnvironment(w http.ResponseWriter, r *http.Request) {
	var req api.CreateEnvironmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid body", http.StatusBadRequest)
		return
	}
	if req.JobID == "" || req.Dataset.Name == "" || req.Model.Name == "" {
		h.httpError(w, "job_id, dataset.name and model.name are required", http.StatusBadRequest)
		return
	}

	// Pre-flight only: environment creation never consumes a slot.
	status, err := h.admission.Status()
	if err != nil {
		h.httpError(w, "Failed to read slot status", http.StatusInternalServerError)
		return
	}
	if status != admission.StatusAvailable {
		h.httpError(w, "No worker slot available", http.StatusServiceUnavailable)
		return
	}

	ctx := logger.WithJobID(r.Context(), req.JobID)
	if err := h.env.Setup(ctx, req.JobID, req.Dataset, req.Model); err != nil {
		logger.FromContext(ctx, h.log).Error("environment setup failed", "error", err)
		h.httpError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusCreated, struct{}{})
}

// RunTask handles POST /tasks/run. The response is an NDJSON stream of
// output-line frames followed by one terminal outcome frame. The handler
// holds one worker slot for the entire task lifetime.
func (h *Handlers) RunTask(w http.ResponseWriter, r *http.Request) {
	var req api.RunTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid body", http.StatusBadRequest)
		return
	}

	if _, err := uuid.Parse(req.JobID); err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}
	if _, err := uuid.Parse(req.TaskID); err != nil {
		h.httpError(w, "Invalid task id", http.StatusBadRequest)
		return
	}

	ctx := logger.WithJobID(r.Context(), req.JobID)
	log := logger.FromContext(ctx, h.log)

	tracer := otel.Tracer("runner-server")
	ctx, span := tracer.Start(ctx, "run_task",
		trace.WithAttributes(
			attribute.String("job.id", req.JobID),
			attribute.String("task.id", req.TaskID),
			attribute.String("task.name", req.TaskName),
		),
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	if err := h.admission.Acquire(); err != nil {
		if errors.Is(err, admission.ErrDenied) {
			h.httpError(w, "No worker slot available", http.StatusServiceUnavailable)
			return
		}
		h.httpError(w, "Failed to acquire slot", http.StatusInternalServerError)
		return
	}
	// The slot is freed on every exit path, success or not.
	defer func() {
		if err := h.admission.Release(); err != nil {
			log.Error("failed to release slot", "error", err)
		}
	}()

	if err := h.env.Prepare(ctx, req.JobID, req.Dataset, req.Model, req.DatasetType, req.ResultsDir); err != nil {
		span.RecordError(err)
		log.Error("environment prepare failed", "error", err)
		h.httpError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	dirs, err := h.env.PrepareDirectories(req.JobID, req.Dataset.Name, req.Model.Name)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	spec := task.Spec{
		TaskName:     req.TaskName,
		PkgName:      req.TaskName,
		JobID:        req.JobID,
		TaskID:       req.TaskID,
		UserID:       req.UserID,
		DatasetDir:   dirs.Dataset,
		BaseDir:      dirs.Base,
		TrainedModel: req.TrainedModel,
	}

	stream, err := h.runner.Run(ctx, spec)
	if err != nil {
		span.RecordError(err)
		log.Error("task launch failed", "error", err)
		h.httpError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.httpError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for line := range stream.Lines() {
		if err := enc.Encode(api.StreamFrame{Line: line}); err != nil {
			// Client went away. Keep draining so the producer can
			// finish and the child gets reaped; the deferred release
			// still fires after Wait.
			log.Warn("stream write failed", "error", err)
			go func() {
				for range stream.Lines() {
				}
			}()
			break
		}
		flusher.Flush()
	}

	exitCode, err := stream.Wait(ctx)
	if err != nil {
		span.RecordError(err)
		log.Error("task wait failed", "error", err)
	}
	span.SetAttributes(attribute.Int("exit_code", exitCode))

	outcome, err := h.harvester.Harvest(ctx, dirs.Base)
	if err != nil {
		span.RecordError(err)
		log.Error("harvest failed", "error", err)
		outcome = api.Outcome{Status: api.OutcomeNone}
	}
	outcome.ExitCode = exitCode

	log.Info("task completed", "task_id", req.TaskID, "status", outcome.Status, "exit_code", exitCode)

	if err := enc.Encode(api.StreamFrame{Outcome: &outcome}); err != nil {
		log.Warn("failed to write terminal frame", "error", err)
		return
	}
	flusher.Flush()
}

// StopTask handles POST /tasks/{jobID}/stop.
func (h *Handlers) StopTask(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")

	if err := h.lifecycle.Stop(r.Context(), jobID); err != nil {
		logger.FromContext(logger.WithJobID(r.Context(), jobID), h.log).
			Error("stop failed", "error", err)
		h.httpError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, http.StatusOK, struct{}{})
}

// RemoveEnvironment handles DELETE /environments/{jobID}. The job's image
// is removed best-effort: a job whose image was never built still gets its
// workspace deleted.
func (h *Handlers) RemoveEnvironment(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	log := logger.FromContext(logger.WithJobID(r.Context(), jobID), h.log)

	if err := h.lifecycle.RemoveImage(r.Context(), jobID); err != nil {
		log.Warn("image removal failed", "error", err)
	}

	if err := h.lifecycle.Remove(jobID); err != nil {
		log.Error("workspace removal failed", "error", err)
		h.httpError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, http.StatusOK, struct{}{})
}
