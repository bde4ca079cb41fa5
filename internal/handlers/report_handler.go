package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
	"github.com/ternarybob/specula/internal/services/report"
)

// afternoonReady is when the afternoon report becomes the "latest" one
const afternoonReady = 15*time.Hour + 40*time.Minute

// ReportHandler serves generated market reports
type ReportHandler struct {
	svc    *report.Service
	store  interfaces.ReportStorage
	logger arbor.ILogger
}

// NewReportHandler creates a report handler
func NewReportHandler(svc *report.Service, store interfaces.ReportStorage, logger arbor.ILogger) *ReportHandler {
	return &ReportHandler{svc: svc, store: store, logger: logger}
}

// GetHandler handles GET /api/v1/reports/{morning|afternoon}?date=
func (h *ReportHandler) GetHandler(w http.ResponseWriter, r *http.Request, reportType models.ReportType) {
	date, ok := QueryDate(w, r, "date")
	if !ok {
		return
	}

	result, err := h.store.Get(r.Context(), reportType, date)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, result)
}

// LatestHandler handles GET /api/v1/reports/latest. The time of day
// selects the report type: afternoon once its slot has passed, with a
// fallback to the other type when the preferred one is absent.
func (h *ReportHandler) LatestHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	preferred := models.ReportMorning
	if now.Sub(midnight) >= afternoonReady {
		preferred = models.ReportAfternoon
	}
	other := models.ReportAfternoon
	if preferred == models.ReportAfternoon {
		other = models.ReportMorning
	}

	result, err := h.store.Get(r.Context(), preferred, now)
	if errors.Is(err, common.ErrNotFound) {
		result, err = h.store.Get(r.Context(), other, now)
	}
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, result)
}

// GenerateHandler handles POST /api/v1/reports/{morning|afternoon}/generate?date=
func (h *ReportHandler) GenerateHandler(w http.ResponseWriter, r *http.Request, reportType models.ReportType) {
	date, ok := QueryDate(w, r, "date")
	if !ok {
		return
	}

	result, err := h.svc.Generate(r.Context(), reportType, date)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, result)
}

// HistoryHandler handles GET /api/v1/reports/history?report_type=&limit=
func (h *ReportHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	reportType, valid := models.ParseReportType(r.URL.Query().Get("report_type"))
	if !valid {
		WriteError(w, http.StatusBadRequest, "invalid report_type")
		return
	}
	limit := QueryInt(r, "limit", 10)
	if limit < 1 || limit > 30 {
		WriteError(w, http.StatusBadRequest, "limit must be between 1 and 30")
		return
	}

	rows, err := h.store.History(r.Context(), reportType, limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, rows)
}

// StatsHandler handles GET /api/v1/reports/stats
func (h *ReportHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, stats)
}

// Route dispatches /api/v1/reports/ sub-paths
func (h *ReportHandler) Route(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/reports/"

	first := PathSegment(r.URL.Path, prefix, 0)
	second := PathSegment(r.URL.Path, prefix, 1)

	switch {
	case first == "latest" && second == "":
		if RequireMethod(w, r, "GET") {
			h.LatestHandler(w, r)
		}
	case first == "history" && second == "":
		if RequireMethod(w, r, "GET") {
			h.HistoryHandler(w, r)
		}
	case first == "stats" && second == "":
		if RequireMethod(w, r, "GET") {
			h.StatsHandler(w, r)
		}
	default:
		reportType, valid := models.ParseReportType(first)
		if !valid {
			WriteError(w, http.StatusBadRequest, "invalid report type "+first)
			return
		}
		switch second {
		case "":
			if RequireMethod(w, r, "GET") {
				h.GetHandler(w, r, reportType)
			}
		case "generate":
			if RequireMethod(w, r, "POST") {
				h.GenerateHandler(w, r, reportType)
			}
		default:
			WriteError(w, http.StatusNotFound, "not found")
		}
	}
}
