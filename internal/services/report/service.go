// Package report generates the twice-daily market reports: a morning
// Top-10 briefing and an afternoon trigger recap, each one grounded LLM
// call persisted at most once per (type, date).
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
)

const (
	// reportTemperature keeps the narrative factual
	reportTemperature = 0.3

	// realtimeMaxAge bounds how stale an attached quote may be
	realtimeMaxAge = 24 * time.Hour

	atrPeriod = 14

	prevLookbackDays = 10
)

// topRanker builds the Top-10 selection for the morning report
type topRanker interface {
	Rank(ctx context.Context, date time.Time) ([]models.RankedStock, error)
}

// marketData is the gateway surface the report engine reads
type marketData interface {
	Index(ctx context.Context, date time.Time) (*models.MarketIndex, error)
	PreviousTradingDay(ctx context.Context, date time.Time, maxLookback int) (time.Time, error)
	RealtimeBulk(ctx context.Context, tickers []string, maxAge time.Duration) ([]models.RealtimePrice, error)
	ATR(ctx context.Context, ticker string, date time.Time, period int) (*float64, error)
}

// Service generates and persists market reports
type Service struct {
	market   marketData
	ranker   topRanker
	triggers interfaces.TriggerStorage
	store    interfaces.ReportStorage
	llm      interfaces.LLMService
	logger   arbor.ILogger
}

// NewService creates the report engine
func NewService(market marketData, ranker topRanker, triggers interfaces.TriggerStorage, store interfaces.ReportStorage, llmSvc interfaces.LLMService, logger arbor.ILogger) *Service {
	return &Service{
		market:   market,
		ranker:   ranker,
		triggers: triggers,
		store:    store,
		llm:      llmSvc,
		logger:   logger,
	}
}

// Generate dispatches on report type, enforcing at-most-once per
// (type, date): an existing row short-circuits without touching the LLM.
func (s *Service) Generate(ctx context.Context, reportType models.ReportType, date time.Time) (*models.ReportResult, error) {
	existing, err := s.store.Get(ctx, reportType, date)
	if err == nil {
		s.logger.Info().
			Str("type", string(reportType)).
			Str("date", date.Format("2006-01-02")).
			Msg("Report already generated")
		return existing, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	switch reportType {
	case models.ReportMorning:
		return s.morning(ctx, date)
	case models.ReportAfternoon:
		return s.afternoon(ctx, date)
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}

// persist stores the generated report row
func (s *Service) persist(ctx context.Context, result *models.ReportResult) (*models.ReportResult, error) {
	if err := s.store.Upsert(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to store %s report: %w", result.ReportType, err)
	}
	s.logger.Info().
		Str("type", string(result.ReportType)).
		Str("date", result.Date.Format("2006-01-02")).
		Int("tokens", result.TokensUsed).
		Msg("Report generated")
	return result, nil
}
