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

// stockContext is one Top-10 ticker enriched for the prompt
type stockContext struct {
	models.RankedStock
	ATR       *float64              `json:"atr,omitempty"`
	Realtime  *models.RealtimePrice `json:"realtime,omitempty"`
	ImpliedD2 float64               `json:"implied_d2_close"`
}

// morning builds the Top-10 briefing. Once the ranking exists, any later
// failure persists a stub so the slot is never left empty.
func (s *Service) morning(ctx context.Context, date time.Time) (*models.ReportResult, error) {
	top, err := s.ranker.Rank(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to rank for morning report: %w", err)
	}

	result, err := s.composeMorning(ctx, date, top)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Morning report failed, persisting stub")
		result = s.stub(models.ReportMorning, date, top)
	}
	return s.persist(ctx, result)
}

// composeMorning enriches the selection, runs the grounded LLM call and
// reattaches the ranker's scores to the returned stocks.
func (s *Service) composeMorning(ctx context.Context, date time.Time, top []models.RankedStock) (*models.ReportResult, error) {
	prev, err := s.market.PreviousTradingDay(ctx, date, prevLookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve prior trading day: %w", err)
	}
	macro, err := s.market.Index(ctx, prev)
	if err != nil {
		return nil, fmt.Errorf("failed to load macro context: %w", err)
	}

	stocks := s.enrich(ctx, date, top)

	completion, err := s.llm.Chat(ctx, buildMorningPrompt(date, macro, stocks), interfaces.ChatOptions{
		System:      morningSystem,
		Temperature: reportTemperature,
		Grounding:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("morning completion failed: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(llm.ExtractJSON(completion.Text)), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse morning report: %w", err)
	}
	reattachScores(payload, top)
	payload["date"] = date.Format("2006-01-02")

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &models.ReportResult{
		ReportType:  models.ReportMorning,
		Date:        date,
		Payload:     raw,
		GeneratedAt: time.Now(),
		Model:       completion.Model,
		TokensUsed:  completion.TokensUsed,
	}, nil
}

// enrich attaches fresh quotes, ATR and the implied D-2 close to each
// selected ticker. Per-ticker failures degrade to missing fields.
func (s *Service) enrich(ctx context.Context, date time.Time, top []models.RankedStock) []stockContext {
	tickers := make([]string, len(top))
	for i, t := range top {
		tickers[i] = t.Ticker
	}

	realtime := make(map[string]models.RealtimePrice)
	if fresh, err := s.market.RealtimeBulk(ctx, tickers, realtimeMaxAge); err != nil {
		s.logger.Warn().Err(err).Msg("Realtime quotes unavailable for report")
	} else {
		for _, p := range fresh {
			realtime[p.Ticker] = p
		}
	}

	stocks := make([]stockContext, len(top))
	for i, t := range top {
		sc := stockContext{RankedStock: t}
		if p, ok := realtime[t.Ticker]; ok {
			sc.Realtime = &p
		}
		if atr, err := s.market.ATR(ctx, t.Ticker, date, atrPeriod); err != nil {
			s.logger.Debug().Err(err).Str("ticker", t.Ticker).Msg("ATR unavailable")
		} else {
			sc.ATR = atr
		}
		// Invert the change rate to recover the close before last
		if t.ChangeRate > -100 {
			sc.ImpliedD2 = t.Price / (1 + t.ChangeRate/100)
		}
		stocks[i] = sc
	}
	return stocks
}

// reattachScores overwrites the LLM's top_stocks entries with the
// ranker's numbers; the model never owns scores.
func reattachScores(payload map[string]any, top []models.RankedStock) {
	entries, ok := payload["top_stocks"].([]any)
	if !ok {
		return
	}
	for i, e := range entries {
		if i >= len(top) {
			break
		}
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		m["ticker"] = top[i].Ticker
		m["name"] = top[i].Name
		m["price"] = top[i].Price
		m["change_rate"] = top[i].ChangeRate
		m["final_score"] = top[i].FinalScore
		m["base_score"] = top[i].BaseScore
		m["sentiment_score"] = top[i].SentimentScore
	}
}

// stub is the degraded report: the selected tickers with zero prices and
// a generic narrative.
func (s *Service) stub(reportType models.ReportType, date time.Time, top []models.RankedStock) *models.ReportResult {
	stocks := make([]map[string]any, len(top))
	for i, t := range top {
		stocks[i] = map[string]any{
			"ticker":      t.Ticker,
			"name":        t.Name,
			"price":       0,
			"change_rate": 0,
			"final_score": t.FinalScore,
		}
	}
	payload, _ := json.Marshal(map[string]any{
		"date":            date.Format("2006-01-02"),
		"stub":            true,
		"market_overview": "리포트 생성 중 오류가 발생하여 기본 리포트로 대체되었습니다.",
		"top_stocks":      stocks,
	})
	return &models.ReportResult{
		ReportType:  reportType,
		Date:        date,
		Payload:     payload,
		GeneratedAt: time.Now(),
		Model:       "stub",
	}
}
