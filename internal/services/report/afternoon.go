package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
	"github.com/ternarybob/specula/internal/services/llm"
)

// afternoon recaps the day: trigger detections plus the extended index.
// Empty afternoon triggers fall back to the morning rows.
func (s *Service) afternoon(ctx context.Context, date time.Time) (*models.ReportResult, error) {
	rows, err := s.triggers.ListBySession(ctx, date, models.SessionAfternoon)
	if err != nil {
		return nil, fmt.Errorf("failed to load afternoon triggers: %w", err)
	}
	if len(rows) == 0 {
		if rows, err = s.triggers.ListBySession(ctx, date, models.SessionMorning); err != nil {
			return nil, fmt.Errorf("failed to load morning triggers: %w", err)
		}
		s.logger.Info().Int("rows", len(rows)).Msg("No afternoon triggers, using morning rows")
	}

	result, err := s.composeAfternoon(ctx, date, rows)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Afternoon report failed, persisting stub")
		result = s.triggerStub(date, rows)
	}
	return s.persist(ctx, result)
}

// composeAfternoon runs the grounded recap call and merges the computed
// market summary into the returned JSON.
func (s *Service) composeAfternoon(ctx context.Context, date time.Time, rows []models.TriggerResult) (*models.ReportResult, error) {
	index, err := s.market.Index(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load market index: %w", err)
	}

	completion, err := s.llm.Chat(ctx, buildAfternoonPrompt(date, index, rows), interfaces.ChatOptions{
		System:      afternoonSystem,
		Temperature: reportTemperature,
		Grounding:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("afternoon completion failed: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(llm.ExtractJSON(completion.Text)), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse afternoon report: %w", err)
	}
	payload["date"] = date.Format("2006-01-02")
	payload["market_summary"] = marketSummary(index)

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &models.ReportResult{
		ReportType:  models.ReportAfternoon,
		Date:        date,
		Payload:     raw,
		GeneratedAt: time.Now(),
		Model:       completion.Model,
		TokensUsed:  completion.TokensUsed,
	}, nil
}

// marketSummary flattens the extended index; monetary fields stay in
// 100M-KRW units.
func marketSummary(idx *models.MarketIndex) map[string]any {
	return map[string]any{
		"kospi_close":          idx.KOSPIClose,
		"kospi_change_rate":    idx.KOSPIChangeRate,
		"kospi_change_points":  idx.KOSPIChangePoints,
		"kosdaq_close":         idx.KOSDAQClose,
		"kosdaq_change_rate":   idx.KOSDAQChangeRate,
		"kosdaq_change_points": idx.KOSDAQChangePoints,
		"kospi_trading_value":  idx.KOSPITradingValue,
		"kosdaq_trading_value": idx.KOSDAQTradingValue,
		"kospi_flow":           idx.KOSPIFlow,
		"kosdaq_flow":          idx.KOSDAQFlow,
		"advancing":            idx.Advancing,
		"declining":            idx.Declining,
		"unchanged":            idx.Unchanged,
	}
}

// triggerStub is the degraded afternoon report built from the rows alone
func (s *Service) triggerStub(date time.Time, rows []models.TriggerResult) *models.ReportResult {
	detections := make([]map[string]any, len(rows))
	for i, r := range rows {
		detections[i] = map[string]any{
			"ticker":          r.Ticker,
			"name":            r.Name,
			"trigger_type":    r.TriggerType,
			"composite_score": r.CompositeScore,
			"price":           0,
			"change_rate":     0,
		}
	}
	payload, _ := json.Marshal(map[string]any{
		"date":       date.Format("2006-01-02"),
		"stub":       true,
		"summary":    "리포트 생성 중 오류가 발생하여 기본 리포트로 대체되었습니다.",
		"detections": detections,
	})
	return &models.ReportResult{
		ReportType:  models.ReportAfternoon,
		Date:        date,
		Payload:     payload,
		GeneratedAt: time.Now(),
		Model:       "stub",
	}
}
