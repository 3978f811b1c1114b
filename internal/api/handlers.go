package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leaddev/leadharvester/internal/database"
	"github.com/leaddev/leadharvester/internal/errs"
	"github.com/leaddev/leadharvester/internal/models"
	"github.com/leaddev/leadharvester/internal/orchestrator"
	"github.com/leaddev/leadharvester/internal/proxy"
	"github.com/leaddev/leadharvester/internal/selftest"
)

type Handlers struct {
	orc      *orchestrator.Orchestrator
	pool     *proxy.Pool
	selftest *selftest.Runner
	history  *database.HistoryRepo
	logger   *slog.Logger
}

func NewHandlers(orc *orchestrator.Orchestrator, pool *proxy.Pool, st *selftest.Runner, history *database.HistoryRepo, logger *slog.Logger) *Handlers {
	return &Handlers{
		orc:      orc,
		pool:     pool,
		selftest: st,
		history:  history,
		logger:   logger,
	}
}

// SearchRequest mirrors models.SearchParams with JSON-friendly delay
// fields in milliseconds.
type SearchRequest struct {
	Query              string `json:"query"`
	Location           string `json:"location"`
	Industry           string `json:"industry"`
	MaxResults         int    `json:"max_results"`
	DecisionMakersOnly bool   `json:"decision_makers_only"`
	AntiDetection      bool   `json:"anti_detection"`
	MinDelayMs         int    `json:"min_delay_ms"`
	MaxDelayMs         int    `json:"max_delay_ms"`
}

// Search runs the fallback chain. "No results" is a 200 with an empty
// list plus the execution log; only validation failures are a 400.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := models.SearchParams{
		Query:              req.Query,
		Location:           req.Location,
		Industry:           req.Industry,
		MaxResults:         req.MaxResults,
		DecisionMakersOnly: req.DecisionMakersOnly,
		AntiDetection:      req.AntiDetection,
		MinDelay:           time.Duration(req.MinDelayMs) * time.Millisecond,
		MaxDelay:           time.Duration(req.MaxDelayMs) * time.Millisecond,
	}

	result, err := h.orc.Search(r.Context(), params)
	if err != nil {
		if errs.IsKind(err, errs.KindValidation) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("search failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	if params.DecisionMakersOnly {
		result.Businesses = filterDecisionMakers(result.Businesses)
	}

	h.respondJSON(w, http.StatusOK, result)
}

func filterDecisionMakers(businesses []models.BusinessRecord) []models.BusinessRecord {
	for i := range businesses {
		var kept []models.ContactRecord
		for _, c := range businesses[i].Contacts {
			if c.IsDecisionMaker {
				kept = append(kept, c)
			}
		}
		businesses[i].Contacts = kept
	}
	return businesses
}

// GetProxyStats returns the pool health snapshot.
func (h *Handlers) GetProxyStats(w http.ResponseWriter, r *http.Request) {
	include := r.URL.Query().Get("servers") == "true"
	h.respondJSON(w, http.StatusOK, h.pool.Stats(include))
}

// CheckProxyHealth runs a batched health check and returns the
// resulting snapshot.
func (h *Handlers) CheckProxyHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pool.CheckHealth(r.Context())
	if err != nil {
		h.logger.Error("health check failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "health check failed")
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

// ResetBlockedProxies explicitly returns blocked proxies to the pool.
func (h *Handlers) ResetBlockedProxies(w http.ResponseWriter, r *http.Request) {
	reset := h.pool.ResetBlocked()
	h.respondJSON(w, http.StatusOK, map[string]int{"reset": reset})
}

// RunSelfTest executes the canned diagnostic suite.
func (h *Handlers) RunSelfTest(w http.ResponseWriter, r *http.Request) {
	report := h.selftest.Run(r.Context())
	h.respondJSON(w, http.StatusOK, report)
}

// ListHistory returns recent saved searches.
func (h *Handlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.history.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list search history", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	h.respondJSON(w, http.StatusOK, entries)
}

// GetExecutionLog returns the full diagnostic log for a correlation id.
func (h *Handlers) GetExecutionLog(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")
	if executionID == "" {
		h.respondError(w, http.StatusBadRequest, "execution ID is required")
		return
	}

	log, err := h.history.Get(r.Context(), executionID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "execution not found")
		return
	}
	h.respondJSON(w, http.StatusOK, log)
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
