package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/poller"
	"github.com/ternarybob/specula/internal/services/scheduler"
)

// SystemHandler serves health, version, and scheduler introspection
type SystemHandler struct {
	store     interfaces.StorageManager
	poller    *poller.Poller
	scheduler *scheduler.Service
	started   time.Time
	logger    arbor.ILogger
}

// NewSystemHandler creates a system handler
func NewSystemHandler(store interfaces.StorageManager, pollerSvc *poller.Poller, schedulerSvc *scheduler.Service, logger arbor.ILogger) *SystemHandler {
	return &SystemHandler{
		store:     store,
		poller:    pollerSvc,
		scheduler: schedulerSvc,
		started:   time.Now(),
		logger:    logger,
	}
}

// HealthHandler handles GET /api/health
func (h *SystemHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"version":    common.GetVersion(),
		"uptime_sec": int(time.Since(h.started).Seconds()),
	}
	statusCode := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		health["status"] = "degraded"
		health["storage"] = err.Error()
		statusCode = http.StatusServiceUnavailable
	} else {
		health["storage"] = "ok"
	}

	if h.poller != nil {
		health["poller"] = h.poller.Status()
	}
	if h.scheduler != nil {
		health["scheduler_running"] = h.scheduler.IsRunning()
	}

	WriteJSON(w, statusCode, map[string]interface{}{
		"success": statusCode == http.StatusOK,
		"data":    health,
	})
}

// VersionHandler handles GET /api/version
func (h *SystemHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteData(w, map[string]string{
		"version": common.Version,
		"commit":  common.Commit,
	})
}

// SchedulerJobsHandler handles GET /api/scheduler/jobs
func (h *SystemHandler) SchedulerJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	if h.scheduler == nil {
		WriteData(w, []scheduler.JobStatus{})
		return
	}
	WriteData(w, h.scheduler.Jobs())
}

// NotFoundHandler is the fallback for unknown /api paths
func (h *SystemHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "not found")
}
