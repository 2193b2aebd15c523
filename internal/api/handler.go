package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/aldersea/questor/internal/events"
	"github.com/aldersea/questor/internal/runner"
	"github.com/aldersea/questor/internal/store"
	"github.com/aldersea/questor/internal/tool"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RunStore is the slice of run persistence the API needs.
type RunStore interface {
	CreateRun(ctx context.Context, goal string) (string, error)
	GetRun(ctx context.Context, id string) (*store.Run, error)
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// Submitter enqueues run jobs.
type Submitter interface {
	Submit(job runner.Job) error
}

// EventSource follows a run's progress stream.
type EventSource interface {
	Subscribe(ctx context.Context, runID string) <-chan *events.RunEvent
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	runs   RunStore
	runner Submitter
	events EventSource
	tools  *tool.Registry
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(runs RunStore, submitter Submitter, source EventSource, tools *tool.Registry, logger *zap.Logger) *Handler {
	return &Handler{
		runs:   runs,
		runner: submitter,
		events: source,
		tools:  tools,
		logger: logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Post("/runs", h.createRun)
		r.Get("/runs", h.listRuns)
		r.Get("/runs/{id}", h.getRun)
		r.Get("/runs/{id}/events", h.streamRunEvents)
		r.Get("/tools", h.listTools)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createRunRequest struct {
	Goal     string `json:"goal"`
	MaxSteps int    `json:"max_steps,omitempty"`
}

func (h *Handler) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "goal is required"})
		return
	}

	id, err := h.runs.CreateRun(r.Context(), req.Goal)
	if err != nil {
		h.logger.Error("creating run failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create run"})
		return
	}

	if err := h.runner.Submit(runner.Job{RunID: id, Goal: req.Goal, MaxSteps: req.MaxSteps}); err != nil {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     id,
		"status": store.RunPending,
	})
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.runs.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	if err != nil {
		h.logger.Error("fetching run failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch run"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing runs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// streamRunEvents follows a run over Server-Sent Events until the run
// finishes or the client disconnects.
func (h *Handler) streamRunEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event streaming not configured"})
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.runs.GetRun(r.Context(), id); errors.Is(err, store.ErrRunNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range h.events.Subscribe(r.Context(), id) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
		if ev.Type == events.EventFinished || ev.Type == events.EventFailed {
			return
		}
	}
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) listTools(w http.ResponseWriter, r *http.Request) {
	var out []toolInfo
	for _, name := range h.tools.List() {
		t, ok := h.tools.Get(name)
		if !ok {
			continue
		}
		out = append(out, toolInfo{Name: t.Name, Description: t.Description})
	}
	if out == nil {
		out = []toolInfo{}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
