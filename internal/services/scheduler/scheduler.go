// Package scheduler runs the five recurring market jobs on their
// configured wall-clock times and reconciles missed runs at startup.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
)

// Job names, stable identifiers exposed over the API
const (
	JobFinancialBatch    = "financial_batch"
	JobMorningReport     = "morning_report"
	JobMorningTriggers   = "morning_triggers"
	JobAfternoonTriggers = "afternoon_triggers"
	JobAfternoonReport   = "afternoon_report"
)

// universeRefresher is the daily financial batch
type universeRefresher interface {
	Refresh(ctx context.Context, date time.Time) (int, error)
}

// triggerRunner runs one session's surge detection
type triggerRunner interface {
	RunSession(ctx context.Context, date time.Time, session models.Session) (int, error)
}

// reportGenerator produces one report type for one date
type reportGenerator interface {
	Generate(ctx context.Context, reportType models.ReportType, date time.Time) (*models.ReportResult, error)
}

// jobEntry is one registered job with run metadata
type jobEntry struct {
	name      string
	schedule  string
	handler   func(ctx context.Context) error
	cronID    cron.EntryID
	lastRun   *time.Time
	lastError string
	isRunning bool
}

// JobStatus is the API view of one job
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	IsRunning bool       `json:"is_running"`
	LastError string     `json:"last_error,omitempty"`
}

// Service owns the cron runner and the startup reconciler
type Service struct {
	config   common.SchedulerConfig
	universe universeRefresher
	triggers triggerRunner
	reports  reportGenerator
	stocks   interfaces.StockStorage
	trigRows interfaces.TriggerStorage
	repRows  interfaces.ReportStorage
	cron     *cron.Cron
	logger   arbor.ILogger

	mu      sync.Mutex
	jobs    map[string]*jobEntry
	running bool
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewService creates the scheduler. It does not start the cron runner;
// call Start after the service graph is wired.
func NewService(config common.SchedulerConfig, universe universeRefresher, triggers triggerRunner,
	reports reportGenerator, stocks interfaces.StockStorage, trigRows interfaces.TriggerStorage,
	repRows interfaces.ReportStorage, logger arbor.ILogger) *Service {
	return &Service{
		config:   config,
		universe: universe,
		triggers: triggers,
		reports:  reports,
		stocks:   stocks,
		trigRows: trigRows,
		repRows:  repRows,
		cron:     cron.New(),
		logger:   logger,
		jobs:     make(map[string]*jobEntry),
	}
}

// cronSpec converts an "HH:MM" wall-clock time to a cron expression.
// Weekday jobs skip Saturday and Sunday; the financial batch runs daily
// so a weekend start still refreshes a stale universe.
func cronSpec(clock string, weekdaysOnly bool) (string, error) {
	hour, minute, err := common.ParseClock(clock)
	if err != nil {
		return "", err
	}
	if weekdaysOnly {
		return fmt.Sprintf("%d %d * * 1-5", minute, hour), nil
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// Start registers the five jobs, kicks off the missed-run reconciler
// in the background, and starts the cron runner. It returns without
// waiting for reconciled jobs so the HTTP server can come up while a
// cold start replays the morning work.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	type jobDef struct {
		name     string
		clock    string
		weekdays bool
		handler  func(ctx context.Context) error
	}
	defs := []jobDef{
		{JobFinancialBatch, s.config.FinancialBatchTime, false, s.runFinancialBatch},
		{JobMorningReport, s.config.MorningReportTime, true, s.runReport(models.ReportMorning)},
		{JobMorningTriggers, s.config.MorningTriggerTime, true, s.runTriggers(models.SessionMorning)},
		{JobAfternoonTriggers, s.config.AfternoonTrigTime, true, s.runTriggers(models.SessionAfternoon)},
		{JobAfternoonReport, s.config.AfternoonRepTime, true, s.runReport(models.ReportAfternoon)},
	}

	for _, def := range defs {
		spec, err := cronSpec(def.clock, def.weekdays)
		if err != nil {
			return fmt.Errorf("job %s: %w", def.name, err)
		}
		entry := &jobEntry{name: def.name, schedule: spec, handler: def.handler}
		id, err := s.cron.AddFunc(spec, func() { s.execute(entry) })
		if err != nil {
			return fmt.Errorf("failed to register job %s: %w", def.name, err)
		}
		entry.cronID = id
		s.mu.Lock()
		s.jobs[def.name] = entry
		s.mu.Unlock()
	}

	go s.Reconcile(s.baseCtx, time.Now())

	s.cron.Start()
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Int("jobs", len(defs)).Msg("Scheduler started")
	return nil
}

// Stop halts the cron runner and waits for in-flight jobs to finish
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	if cancel != nil {
		cancel()
	}
	s.logger.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether the cron runner is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Jobs returns the status of every registered job, sorted by name
func (s *Service) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, entry := range s.jobs {
		status := JobStatus{
			Name:      entry.name,
			Schedule:  entry.schedule,
			LastRun:   entry.lastRun,
			IsRunning: entry.isRunning,
			LastError: entry.lastError,
		}
		if s.running {
			next := s.cron.Entry(entry.cronID).Next
			if !next.IsZero() {
				status.NextRun = &next
			}
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// TriggerJob runs one job by name outside its schedule
func (s *Service) TriggerJob(name string) error {
	s.mu.Lock()
	entry, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return common.NewValidationError("job", fmt.Sprintf("unknown job %q", name))
	}
	go s.execute(entry)
	return nil
}

// execute runs one job, recording run metadata. Overlapping runs of
// the same job are skipped.
func (s *Service) execute(entry *jobEntry) {
	s.mu.Lock()
	if entry.isRunning {
		s.mu.Unlock()
		s.logger.Warn().Str("job", entry.name).Msg("Job still running, skipping")
		return
	}
	entry.isRunning = true
	now := time.Now()
	entry.lastRun = &now
	ctx := s.baseCtx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	err := entry.handler(ctx)

	s.mu.Lock()
	entry.isRunning = false
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("job", entry.name).Msg("Job failed")
	}
}

func (s *Service) runFinancialBatch(ctx context.Context) error {
	passed, err := s.universe.Refresh(ctx, time.Now())
	if err != nil {
		return err
	}
	s.logger.Info().Int("passed", passed).Msg("Financial batch completed")
	return nil
}

func (s *Service) runTriggers(session models.Session) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		count, err := s.triggers.RunSession(ctx, time.Now(), session)
		if err != nil {
			return err
		}
		s.logger.Info().Str("session", string(session)).Int("detections", count).
			Msg("Trigger session completed")
		return nil
	}
}

func (s *Service) runReport(reportType models.ReportType) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		result, err := s.reports.Generate(ctx, reportType, time.Now())
		if err != nil {
			return err
		}
		s.logger.Info().Str("type", string(reportType)).Str("model", result.Model).
			Msg("Report job completed")
		return nil
	}
}
