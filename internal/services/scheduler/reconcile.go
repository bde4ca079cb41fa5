package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/models"
)

// dayState is what reconciliation knows about today's completed work
type dayState struct {
	universeUpdated    time.Time
	hasMorningReport   bool
	morningTriggers    int
	afternoonTriggers  int
	hasAfternoonReport bool
}

// clockAt places an "HH:MM" clock on the given day. Times the config
// validator already accepted cannot fail here.
func clockAt(day time.Time, clock string) time.Time {
	hour, minute, err := common.ParseClock(clock)
	if err != nil {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// dueJobs decides which jobs a process starting at now has missed.
// A job is due when its scheduled time has passed and its output for
// today is absent. Weekends run only the financial batch since the
// market jobs have nothing to act on.
func dueJobs(now time.Time, state dayState, config common.SchedulerConfig) []string {
	var due []string

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if state.universeUpdated.Before(midnight) {
		due = append(due, JobFinancialBatch)
	}

	if isWeekend(now) {
		return due
	}

	if !now.Before(clockAt(now, config.MorningReportTime)) && !state.hasMorningReport {
		due = append(due, JobMorningReport)
	}
	if !now.Before(clockAt(now, config.MorningTriggerTime)) && state.morningTriggers == 0 {
		due = append(due, JobMorningTriggers)
	}
	if !now.Before(clockAt(now, config.AfternoonTrigTime)) && state.afternoonTriggers == 0 {
		due = append(due, JobAfternoonTriggers)
	}
	if !now.Before(clockAt(now, config.AfternoonRepTime)) && !state.hasAfternoonReport {
		due = append(due, JobAfternoonReport)
	}
	return due
}

// Reconcile runs every job whose scheduled time already passed today
// but whose output is missing. Jobs run in schedule order within one
// goroutine so the morning report sees a fresh universe.
func (s *Service) Reconcile(ctx context.Context, now time.Time) {
	state := s.collectState(ctx, now)

	for _, name := range dueJobs(now, state, s.config) {
		s.mu.Lock()
		entry := s.jobs[name]
		s.mu.Unlock()
		if entry == nil {
			continue
		}
		s.logger.Info().Str("job", name).Msg("Reconciling missed job run")
		s.execute(entry)
	}
}

// collectState reads today's job outputs; storage errors count as
// absent output so the job reruns.
func (s *Service) collectState(ctx context.Context, now time.Time) dayState {
	state := dayState{}

	if updated, err := s.stocks.LastUpdated(ctx); err == nil {
		state.universeUpdated = updated
	}

	if _, err := s.repRows.Get(ctx, models.ReportMorning, now); err == nil {
		state.hasMorningReport = true
	} else if !errors.Is(err, common.ErrNotFound) {
		s.logger.Warn().Err(err).Msg("Failed to check morning report")
	}
	if _, err := s.repRows.Get(ctx, models.ReportAfternoon, now); err == nil {
		state.hasAfternoonReport = true
	} else if !errors.Is(err, common.ErrNotFound) {
		s.logger.Warn().Err(err).Msg("Failed to check afternoon report")
	}

	if count, err := s.trigRows.CountBySession(ctx, now, models.SessionMorning); err == nil {
		state.morningTriggers = count
	}
	if count, err := s.trigRows.CountBySession(ctx, now, models.SessionAfternoon); err == nil {
		state.afternoonTriggers = count
	}
	return state
}
