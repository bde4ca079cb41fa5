package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
	"github.com/ternarybob/specula/internal/triggers"
)

// TriggerHandler serves surge detections and on-demand trigger runs
type TriggerHandler struct {
	store   interfaces.TriggerStorage
	engine  *triggers.Engine
	scanner *triggers.PreSurgeScanner
	logger  arbor.ILogger
}

// NewTriggerHandler creates a trigger handler
func NewTriggerHandler(store interfaces.TriggerStorage, engine *triggers.Engine, scanner *triggers.PreSurgeScanner, logger arbor.ILogger) *TriggerHandler {
	return &TriggerHandler{store: store, engine: engine, scanner: scanner, logger: logger}
}

// ListHandler handles GET /api/v1/triggers?date=&session=
func (h *TriggerHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	date, ok := QueryDate(w, r, "date")
	if !ok {
		return
	}

	sessions := []models.Session{models.SessionMorning, models.SessionAfternoon}
	if raw := r.URL.Query().Get("session"); raw != "" {
		session, valid := models.ParseSession(raw)
		if !valid {
			WriteError(w, http.StatusBadRequest, "invalid session "+raw)
			return
		}
		sessions = []models.Session{session}
	}

	rows := make([]models.TriggerResult, 0)
	for _, session := range sessions {
		sessionRows, err := h.store.ListBySession(r.Context(), date, session)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		rows = append(rows, sessionRows...)
	}
	WriteData(w, map[string]interface{}{
		"date":     date.Format("2006-01-02"),
		"triggers": rows,
	})
}

// LatestHandler handles GET /api/v1/triggers/latest
func (h *TriggerHandler) LatestHandler(w http.ResponseWriter, r *http.Request) {
	date, err := h.store.LatestDate(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	rows := make([]models.TriggerResult, 0)
	for _, session := range []models.Session{models.SessionMorning, models.SessionAfternoon} {
		sessionRows, err := h.store.ListBySession(r.Context(), date, session)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		rows = append(rows, sessionRows...)
	}
	WriteData(w, map[string]interface{}{
		"date":     date.Format("2006-01-02"),
		"triggers": rows,
	})
}

// ByTypeHandler handles GET /api/v1/triggers/types/{trigger_type}
func (h *TriggerHandler) ByTypeHandler(w http.ResponseWriter, r *http.Request, rawType string) {
	triggerType, valid := models.ParseTriggerType(rawType)
	if !valid {
		WriteError(w, http.StatusBadRequest, "invalid trigger type "+rawType)
		return
	}
	date, ok := QueryDate(w, r, "date")
	if !ok {
		return
	}

	rows, err := h.store.ListByType(r.Context(), triggerType, date, QueryInt(r, "limit", 10))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, rows)
}

// HistoryHandler handles GET /api/v1/triggers/{ticker}/history?days=
func (h *TriggerHandler) HistoryHandler(w http.ResponseWriter, r *http.Request, ticker string) {
	rows, err := h.store.HistoryByTicker(r.Context(), ticker, QueryInt(r, "days", 30))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, rows)
}

// RunHandler handles POST /api/v1/triggers/run/{session}
func (h *TriggerHandler) RunHandler(w http.ResponseWriter, r *http.Request, rawSession string) {
	session, valid := models.ParseSession(rawSession)
	if !valid {
		WriteError(w, http.StatusBadRequest, "invalid session "+rawSession)
		return
	}
	date, ok := QueryDate(w, r, "date")
	if !ok {
		return
	}

	count, err := h.engine.RunSession(r.Context(), date, session)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, map[string]interface{}{
		"session":    session,
		"detections": count,
	})
}

// PreSurgeHandler handles GET /api/v1/triggers/pre-surge
func (h *TriggerHandler) PreSurgeHandler(w http.ResponseWriter, r *http.Request) {
	signals, err := h.scanner.Scan(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, signals)
}

// StatsHandler handles GET /api/v1/triggers/stats?start_date=&end_date=
func (h *TriggerHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	end, ok := QueryDate(w, r, "end_date")
	if !ok {
		return
	}
	start := end.AddDate(0, 0, -7)
	if r.URL.Query().Get("start_date") != "" {
		start, ok = QueryDate(w, r, "start_date")
		if !ok {
			return
		}
	}
	if start.After(end) {
		WriteError(w, http.StatusBadRequest, "start_date after end_date")
		return
	}

	stats, err := h.store.Stats(r.Context(), start, end)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, stats)
}

// Route dispatches /api/v1/triggers/ sub-paths
func (h *TriggerHandler) Route(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/triggers/"

	first := PathSegment(r.URL.Path, prefix, 0)
	second := PathSegment(r.URL.Path, prefix, 1)

	switch {
	case first == "latest" && second == "":
		if RequireMethod(w, r, "GET") {
			h.LatestHandler(w, r)
		}
	case first == "pre-surge" && second == "":
		if RequireMethod(w, r, "GET") {
			h.PreSurgeHandler(w, r)
		}
	case first == "stats" && second == "":
		if RequireMethod(w, r, "GET") {
			h.StatsHandler(w, r)
		}
	case first == "types" && second != "":
		if RequireMethod(w, r, "GET") {
			h.ByTypeHandler(w, r, second)
		}
	case first == "run" && second != "":
		if RequireMethod(w, r, "POST") {
			h.RunHandler(w, r, second)
		}
	case ValidTicker(first) && second == "history":
		if RequireMethod(w, r, "GET") {
			h.HistoryHandler(w, r, first)
		}
	default:
		WriteError(w, http.StatusNotFound, "not found")
	}
}
