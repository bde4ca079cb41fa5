package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
)

var reportDate = time.Date(2026, 8, 24, 0, 0, 0, 0, time.Local)

// --- fakes -----------------------------------------------------------------

type fakeStore struct {
	rows map[string]*models.ReportResult
}

func (s *fakeStore) key(rt models.ReportType, date time.Time) string {
	return string(rt) + "/" + date.Format("2006-01-02")
}

func (s *fakeStore) Upsert(_ context.Context, r *models.ReportResult) error {
	if s.rows == nil {
		s.rows = make(map[string]*models.ReportResult)
	}
	s.rows[s.key(r.ReportType, r.Date)] = r
	return nil
}

func (s *fakeStore) Get(_ context.Context, rt models.ReportType, date time.Time) (*models.ReportResult, error) {
	if r, ok := s.rows[s.key(rt, date)]; ok {
		return r, nil
	}
	return nil, common.ErrNotFound
}

func (s *fakeStore) History(context.Context, models.ReportType, int) ([]models.ReportResult, error) {
	return nil, nil
}

func (s *fakeStore) Stats(context.Context) (*interfaces.ReportStats, error) { return nil, nil }

type fakeMarket struct{}

func (fakeMarket) Index(context.Context, time.Time) (*models.MarketIndex, error) {
	return &models.MarketIndex{
		KOSPIClose: 2700.5, KOSPIChangeRate: 0.8, KOSPIChangePoints: 21.4,
		KOSDAQClose: 870.2, KOSDAQChangeRate: -0.3,
		KOSPITradingValue: 95000,
		KOSPIFlow:         models.InvestorFlow{Foreign: 1200, Institution: -400, Individual: -800},
		Advancing:         512, Declining: 340, Unchanged: 48,
	}, nil
}

func (fakeMarket) PreviousTradingDay(_ context.Context, date time.Time, _ int) (time.Time, error) {
	return date.AddDate(0, 0, -1), nil
}

func (fakeMarket) RealtimeBulk(context.Context, []string, time.Duration) ([]models.RealtimePrice, error) {
	return nil, nil
}

func (fakeMarket) ATR(context.Context, string, time.Time, int) (*float64, error) {
	atr := 1500.0
	return &atr, nil
}

type fakeRanker struct {
	top []models.RankedStock
	err error
}

func (r *fakeRanker) Rank(context.Context, time.Time) ([]models.RankedStock, error) {
	return r.top, r.err
}

type fakeTriggers struct {
	bySession map[models.Session][]models.TriggerResult
}

func (f *fakeTriggers) ReplaceSession(context.Context, time.Time, models.Session, []models.TriggerResult) error {
	return nil
}
func (f *fakeTriggers) ListBySession(_ context.Context, _ time.Time, session models.Session) ([]models.TriggerResult, error) {
	return f.bySession[session], nil
}
func (f *fakeTriggers) CountBySession(context.Context, time.Time, models.Session) (int, error) {
	return 0, nil
}
func (f *fakeTriggers) ListByType(context.Context, models.TriggerType, time.Time, int) ([]models.TriggerResult, error) {
	return nil, nil
}
func (f *fakeTriggers) HistoryByTicker(context.Context, string, int) ([]models.TriggerResult, error) {
	return nil, nil
}
func (f *fakeTriggers) LatestDate(context.Context) (time.Time, error) { return time.Time{}, nil }
func (f *fakeTriggers) Stats(context.Context, time.Time, time.Time) (*interfaces.TriggerStats, error) {
	return nil, nil
}

type fakeLLM struct {
	calls int
	text  string
	err   error
}

func (l *fakeLLM) Chat(context.Context, string, interfaces.ChatOptions) (*interfaces.ChatResult, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return &interfaces.ChatResult{Text: l.text, Model: "fake", TokensUsed: 250}, nil
}

func (l *fakeLLM) Provider() string { return "fake" }

func rankedTop() []models.RankedStock {
	return []models.RankedStock{
		{Ticker: "005930", Name: "삼성전자", Price: 71000, ChangeRate: 1.43,
			FinalScore: 8.2, BaseScore: 8.0, SentimentScore: 10},
		{Ticker: "000660", Name: "SK하이닉스", Price: 195000, ChangeRate: -0.5,
			FinalScore: 7.9, BaseScore: 8.5, SentimentScore: 2.5},
	}
}

func newTestService(ranker *fakeRanker, triggers *fakeTriggers, llmSvc *fakeLLM) (*Service, *fakeStore) {
	store := &fakeStore{}
	svc := NewService(fakeMarket{}, ranker, triggers, store, llmSvc, arbor.NewLogger())
	return svc, store
}

// --- tests -----------------------------------------------------------------

const morningJSON = `{
  "market_overview": "미 증시 상승 마감",
  "top_stocks": [
    {"comment": "HBM 모멘텀 지속", "final_score": 999},
    {"comment": "단기 조정 구간"}
  ],
  "outlook": "반도체 중심 강세 예상"
}`

func TestMorning_ReattachesScores(t *testing.T) {
	llmSvc := &fakeLLM{text: morningJSON}
	svc, _ := newTestService(&fakeRanker{top: rankedTop()}, &fakeTriggers{}, llmSvc)

	result, err := svc.Generate(context.Background(), models.ReportMorning, reportDate)
	require.NoError(t, err)
	assert.Equal(t, models.ReportMorning, result.ReportType)
	assert.Equal(t, 250, result.TokensUsed)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(result.Payload, &payload))
	stocks := payload["top_stocks"].([]any)
	require.Len(t, stocks, 2)

	// The model's score is overwritten with the ranker's number
	first := stocks[0].(map[string]any)
	assert.Equal(t, "005930", first["ticker"])
	assert.Equal(t, 8.2, first["final_score"])
	assert.Equal(t, "HBM 모멘텀 지속", first["comment"])
}

func TestGenerate_AtMostOncePerDate(t *testing.T) {
	llmSvc := &fakeLLM{text: morningJSON}
	svc, _ := newTestService(&fakeRanker{top: rankedTop()}, &fakeTriggers{}, llmSvc)
	ctx := context.Background()

	first, err := svc.Generate(ctx, models.ReportMorning, reportDate)
	require.NoError(t, err)
	second, err := svc.Generate(ctx, models.ReportMorning, reportDate)
	require.NoError(t, err)

	assert.Equal(t, 1, llmSvc.calls)
	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)
}

func TestMorning_StubOnLLMFailure(t *testing.T) {
	llmSvc := &fakeLLM{err: errors.New("overloaded")}
	svc, store := newTestService(&fakeRanker{top: rankedTop()}, &fakeTriggers{}, llmSvc)

	result, err := svc.Generate(context.Background(), models.ReportMorning, reportDate)
	require.NoError(t, err)
	assert.Equal(t, "stub", result.Model)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(result.Payload, &payload))
	assert.Equal(t, true, payload["stub"])

	// The stub carries the selected tickers with zero prices
	stocks := payload["top_stocks"].([]any)
	require.Len(t, stocks, 2)
	first := stocks[0].(map[string]any)
	assert.Equal(t, "005930", first["ticker"])
	assert.Equal(t, 0.0, first["price"])

	// The stub occupies the slot; a retry does not call the LLM again
	require.Len(t, store.rows, 1)
	_, err = svc.Generate(context.Background(), models.ReportMorning, reportDate)
	require.NoError(t, err)
	assert.Equal(t, 1, llmSvc.calls)
}

func TestMorning_RankFailureIsFatal(t *testing.T) {
	svc, store := newTestService(&fakeRanker{err: errors.New("no snapshot")}, &fakeTriggers{}, &fakeLLM{})

	_, err := svc.Generate(context.Background(), models.ReportMorning, reportDate)
	require.Error(t, err)
	assert.Empty(t, store.rows)
}

const afternoonJSON = `{
  "summary": "반도체 강세로 지수 상승",
  "tomorrow_outlook": "숨고르기 예상"
}`

func TestAfternoon_MergesMarketSummary(t *testing.T) {
	triggers := &fakeTriggers{bySession: map[models.Session][]models.TriggerResult{
		models.SessionAfternoon: {
			{Ticker: "005930", Name: "삼성전자", TriggerType: models.TriggerIntradayRise, CompositeScore: 0.91},
		},
	}}
	llmSvc := &fakeLLM{text: afternoonJSON}
	svc, _ := newTestService(&fakeRanker{}, triggers, llmSvc)

	result, err := svc.Generate(context.Background(), models.ReportAfternoon, reportDate)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(result.Payload, &payload))

	summary := payload["market_summary"].(map[string]any)
	assert.Equal(t, 2700.5, summary["kospi_close"])
	assert.Equal(t, 95000.0, summary["kospi_trading_value"])
	assert.Equal(t, "반도체 강세로 지수 상승", payload["summary"])
}

func TestAfternoon_FallsBackToMorningTriggers(t *testing.T) {
	triggers := &fakeTriggers{bySession: map[models.Session][]models.TriggerResult{
		models.SessionMorning: {
			{Ticker: "000660", Name: "SK하이닉스", TriggerType: models.TriggerGapUp, CompositeScore: 0.75},
		},
	}}
	// LLM failure forces the stub, which exposes the rows it was given
	llmSvc := &fakeLLM{err: errors.New("overloaded")}
	svc, _ := newTestService(&fakeRanker{}, triggers, llmSvc)

	result, err := svc.Generate(context.Background(), models.ReportAfternoon, reportDate)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(result.Payload, &payload))
	detections := payload["detections"].([]any)
	require.Len(t, detections, 1)
	assert.Equal(t, "000660", detections[0].(map[string]any)["ticker"])
}
