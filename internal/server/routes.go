package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Stocks
	mux.HandleFunc("/api/v1/stocks", s.app.StockHandler.SearchHandler)
	mux.HandleFunc("/api/v1/stocks/", s.app.StockHandler.Route)

	// Triggers
	mux.HandleFunc("/api/v1/triggers", s.app.TriggerHandler.ListHandler)
	mux.HandleFunc("/api/v1/triggers/", s.app.TriggerHandler.Route)

	// Analysis
	mux.HandleFunc("/api/v1/analysis/", s.app.AnalysisHandler.Route)

	// Reports
	mux.HandleFunc("/api/v1/reports/", s.app.ReportHandler.Route)

	// System
	mux.HandleFunc("/api/health", s.app.SystemHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.SystemHandler.VersionHandler)
	mux.HandleFunc("/api/scheduler/jobs", s.app.SystemHandler.SchedulerJobsHandler)

	// Fallback for unknown API paths
	mux.HandleFunc("/api/", s.app.SystemHandler.NotFoundHandler)

	return mux
}
