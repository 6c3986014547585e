package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reikki7/tokopedia-products-scraper/internal/jobs"
)

type Handlers struct {
	runs   *jobs.Manager
	logger *slog.Logger
}

func NewHandlers(runs *jobs.Manager, logger *slog.Logger) *Handlers {
	return &Handlers{
		runs:   runs,
		logger: logger,
	}
}

// Routes mounts the run endpoints on a router.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/runs", h.CreateRun)
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{runID}", h.GetRun)
	r.Get("/runs/{runID}/results", h.GetRunResults)
	r.Get("/stats", h.GetStats)
}

// CreateRunRequest represents a new scrape run request
type CreateRunRequest struct {
	SearchURLs  []string `json:"search_urls"`
	MaxProducts int      `json:"max_products"`
}

// CreateRunResponse represents the run creation response
type CreateRunResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CreateRun handles new scrape run creation
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := h.runs.CreateRun(req.SearchURLs, req.MaxProducts)
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			h.respondError(w, http.StatusTooManyRequests, "run queue is full")
			return
		}
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateRunResponse{
		RunID:   run.ID,
		Status:  run.Status,
		Message: "Run created successfully",
	})
}

// GetRun handles run status retrieval
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		h.respondError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	run, err := h.runs.GetRun(runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

// ListRuns handles listing all runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.runs.ListRuns())
}

// GetRunResults returns the collected records of a finished run
func (h *Handlers) GetRunResults(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		h.respondError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	result, err := h.runs.Results(runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if result == nil {
		h.respondError(w, http.StatusConflict, "run has not finished")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// GetStats handles statistics retrieval
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.runs.GetStats())
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
