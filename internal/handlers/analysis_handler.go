package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/services/analysis"
)

// AnalysisHandler serves on-demand company analyses
type AnalysisHandler struct {
	svc    *analysis.Service
	logger arbor.ILogger
}

// NewAnalysisHandler creates an analysis handler
func NewAnalysisHandler(svc *analysis.Service, logger arbor.ILogger) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, logger: logger}
}

// GetHandler handles GET /api/v1/analysis/{ticker}?force_refresh=
func (h *AnalysisHandler) GetHandler(w http.ResponseWriter, r *http.Request, ticker string) {
	result, err := h.svc.Get(r.Context(), ticker, QueryBool(r, "force_refresh"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, result)
}

// RefreshHandler handles POST /api/v1/analysis/{ticker}/refresh
func (h *AnalysisHandler) RefreshHandler(w http.ResponseWriter, r *http.Request, ticker string) {
	result, err := h.svc.Get(r.Context(), ticker, true)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, result)
}

// CacheStatusHandler handles GET /api/v1/analysis/{ticker}/cache-status
func (h *AnalysisHandler) CacheStatusHandler(w http.ResponseWriter, r *http.Request, ticker string) {
	status, err := h.svc.Status(r.Context(), ticker)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, status)
}

// ComparisonHandler handles GET /api/v1/analysis/{ticker}/comparison
func (h *AnalysisHandler) ComparisonHandler(w http.ResponseWriter, r *http.Request, ticker string) {
	comparison, err := h.svc.Compare(r.Context(), ticker)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, comparison)
}

// BatchHandler handles POST /api/v1/analysis/batch?tickers=A,B,C
func (h *AnalysisHandler) BatchHandler(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("tickers"))
	var tickers []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tickers = append(tickers, t)
		}
	}

	items, err := h.svc.Batch(r.Context(), tickers, QueryBool(r, "force_refresh"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, items)
}

// PopularHandler handles GET /api/v1/analysis/popular?limit=
func (h *AnalysisHandler) PopularHandler(w http.ResponseWriter, r *http.Request) {
	limit := QueryInt(r, "limit", 10)
	if limit < 1 || limit > 20 {
		WriteError(w, http.StatusBadRequest, "limit must be between 1 and 20")
		return
	}

	popular, err := h.svc.Popular(r.Context(), limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, popular)
}

// Route dispatches /api/v1/analysis/ sub-paths
func (h *AnalysisHandler) Route(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/analysis/"

	first := PathSegment(r.URL.Path, prefix, 0)
	second := PathSegment(r.URL.Path, prefix, 1)

	switch {
	case first == "batch" && second == "":
		if RequireMethod(w, r, "POST") {
			h.BatchHandler(w, r)
		}
	case first == "popular" && second == "":
		if RequireMethod(w, r, "GET") {
			h.PopularHandler(w, r)
		}
	case ValidTicker(first):
		switch second {
		case "":
			if RequireMethod(w, r, "GET") {
				h.GetHandler(w, r, first)
			}
		case "refresh":
			if RequireMethod(w, r, "POST") {
				h.RefreshHandler(w, r, first)
			}
		case "cache-status":
			if RequireMethod(w, r, "GET") {
				h.CacheStatusHandler(w, r, first)
			}
		case "comparison":
			if RequireMethod(w, r, "GET") {
				h.ComparisonHandler(w, r, first)
			}
		default:
			WriteError(w, http.StatusNotFound, "not found")
		}
	default:
		WriteError(w, http.StatusBadRequest, "invalid ticker "+first)
	}
}
