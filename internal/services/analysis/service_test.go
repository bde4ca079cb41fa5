package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
)

// --- fakes -----------------------------------------------------------------

type fakeStore struct {
	rows map[string]*models.AnalysisResult
}

func (s *fakeStore) key(ticker string, date time.Time) string {
	return ticker + "/" + date.Format("2006-01-02")
}

func (s *fakeStore) Upsert(_ context.Context, r *models.AnalysisResult) error {
	if s.rows == nil {
		s.rows = make(map[string]*models.AnalysisResult)
	}
	s.rows[s.key(r.Ticker, r.Date)] = r
	return nil
}

func (s *fakeStore) Get(_ context.Context, ticker string, date time.Time) (*models.AnalysisResult, error) {
	if r, ok := s.rows[s.key(ticker, date)]; ok {
		return r, nil
	}
	return nil, common.ErrNotFound
}

func (s *fakeStore) Delete(_ context.Context, ticker string, date time.Time) error {
	delete(s.rows, s.key(ticker, date))
	return nil
}

func (s *fakeStore) Popular(context.Context, int) ([]models.PopularTicker, error) { return nil, nil }

type fakeMarket struct {
	price      float64
	changeRate float64
	prices     []models.RealtimePrice
}

func (m *fakeMarket) Snapshot(context.Context, time.Time) (*models.MarketSnapshot, error) {
	return nil, common.ErrDataUnavailable
}

func (m *fakeMarket) Technicals(_ context.Context, ticker string, _ time.Time) (models.Technicals, error) {
	return models.NeutralTechnicals(ticker), nil
}

func (m *fakeMarket) RealtimeOne(context.Context, string) (*models.RealtimePrice, error) {
	return &models.RealtimePrice{CurrentPrice: m.price, ChangeRate: m.changeRate}, nil
}

func (m *fakeMarket) RealtimeBulk(context.Context, []string, time.Duration) ([]models.RealtimePrice, error) {
	return m.prices, nil
}

type fakeStocks struct {
	stocks map[string]*models.FilteredStock
}

func (s *fakeStocks) UpsertStocks(context.Context, []models.FilteredStock) error { return nil }
func (s *fakeStocks) GetStock(_ context.Context, ticker string) (*models.FilteredStock, error) {
	if st, ok := s.stocks[ticker]; ok {
		return st, nil
	}
	return nil, common.ErrNotFound
}
func (s *fakeStocks) ListPassing(context.Context) ([]models.FilteredStock, error) {
	out := make([]models.FilteredStock, 0, len(s.stocks))
	for _, st := range s.stocks {
		out = append(out, *st)
	}
	return out, nil
}
func (s *fakeStocks) Search(context.Context, interfaces.StockFilter) ([]models.FilteredStock, error) {
	return nil, nil
}
func (s *fakeStocks) LastUpdated(context.Context) (time.Time, error) { return time.Time{}, nil }

type fakeNews struct{}

func (fakeNews) News(context.Context, string, string, int) ([]models.NewsItem, error) {
	return nil, nil
}

type fakeLLM struct {
	calls int
	text  string
}

func (l *fakeLLM) Chat(context.Context, string, interfaces.ChatOptions) (*interfaces.ChatResult, error) {
	l.calls++
	return &interfaces.ChatResult{Text: l.text, Model: "fake", TokensUsed: 100}, nil
}

func (l *fakeLLM) Provider() string { return "fake" }

const finalizeJSON = `{
  "summary": "반도체 업황 회복 수혜",
  "opinion": "BUY",
  "target_price": 95000,
  "stop_loss_price": 62000,
  "key_points": ["HBM 수요 증가"],
  "financial_analysis": {"summary": "견조한 재무", "points": ["현금흐름 양호"]},
  "industry_analysis": "메모리 업황 개선",
  "news_analysis": {"summary": "긍정 우위"},
  "technical_analysis": {"summary": "중립"},
  "risks": ["환율 변동"],
  "investment_strategy": "분할 매수"
}`

func newTestService(llmSvc *fakeLLM) (*Service, *fakeStore) {
	store := &fakeStore{}
	stocks := &fakeStocks{stocks: map[string]*models.FilteredStock{
		"005930": {Ticker: "005930", Name: "삼성전자", Market: models.MarketKOSPI,
			PER: 10, PBR: 1.2, BPS: 55000, ROE: 12, RevenueGrowth: 8},
	}}
	market := &fakeMarket{price: 70000, changeRate: 1.5}
	svc := NewService(market, fakeNews{}, nil, llmSvc, stocks, store, 0, arbor.NewLogger())
	return svc, store
}

// --- service tests ---------------------------------------------------------

func TestGet_CachesAndReuses(t *testing.T) {
	llmSvc := &fakeLLM{text: finalizeJSON}
	svc, _ := newTestService(llmSvc)
	ctx := context.Background()

	first, err := svc.Get(ctx, "005930", false)
	require.NoError(t, err)
	assert.Equal(t, 1, llmSvc.calls)
	assert.Equal(t, models.OpinionBuy, first.Payload.Opinion)
	assert.Equal(t, 95000.0, first.Payload.TargetPrice)

	// Second fetch hits the cache, no new LLM call
	second, err := svc.Get(ctx, "005930", false)
	require.NoError(t, err)
	assert.Equal(t, 1, llmSvc.calls)
	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)
}

func TestGet_ForceRefreshRegenerates(t *testing.T) {
	llmSvc := &fakeLLM{text: finalizeJSON}
	svc, _ := newTestService(llmSvc)
	ctx := context.Background()

	_, err := svc.Get(ctx, "005930", false)
	require.NoError(t, err)
	_, err = svc.Get(ctx, "005930", true)
	require.NoError(t, err)
	assert.Equal(t, 2, llmSvc.calls)
}

func TestGet_RegeneratesAfterInvalidation(t *testing.T) {
	llmSvc := &fakeLLM{text: finalizeJSON}
	svc, _ := newTestService(llmSvc)
	ctx := context.Background()

	_, err := svc.Get(ctx, "005930", false)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx, "005930", time.Now()))

	_, err = svc.Get(ctx, "005930", false)
	require.NoError(t, err)
	assert.Equal(t, 2, llmSvc.calls)
}

func TestGet_UnknownTicker(t *testing.T) {
	svc, _ := newTestService(&fakeLLM{text: finalizeJSON})
	_, err := svc.Get(context.Background(), "999999", false)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestBatch_CapsAtLimit(t *testing.T) {
	svc, _ := newTestService(&fakeLLM{text: finalizeJSON})

	tickers := make([]string, BatchLimit+1)
	for i := range tickers {
		tickers[i] = "005930"
	}
	_, err := svc.Batch(context.Background(), tickers, false)
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}

func TestBatch_ReportsPerTickerErrors(t *testing.T) {
	svc, _ := newTestService(&fakeLLM{text: finalizeJSON})

	items, err := svc.Batch(context.Background(), []string{"005930", "999999"}, false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.NotNil(t, items[0].Result)
	assert.Empty(t, items[0].Error)
	assert.Nil(t, items[1].Result)
	assert.NotEmpty(t, items[1].Error)
}

func TestInvalidateOnSurge(t *testing.T) {
	llmSvc := &fakeLLM{text: finalizeJSON}
	svc, store := newTestService(llmSvc)
	ctx := context.Background()
	today := time.Now()

	_, err := svc.Get(ctx, "005930", false)
	require.NoError(t, err)
	require.Len(t, store.rows, 1)

	// +12% on the cached ticker fires the rule; +5% elsewhere does not
	svc.market.(*fakeMarket).prices = []models.RealtimePrice{
		{Ticker: "005930", ChangeRate: 12.0},
		{Ticker: "000660", ChangeRate: 5.0},
	}
	dropped, err := svc.InvalidateOnSurge(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	assert.Empty(t, store.rows)
}

func TestShouldInvalidate_Threshold(t *testing.T) {
	assert.True(t, ShouldInvalidate(10.0))
	assert.True(t, ShouldInvalidate(-10.5))
	assert.False(t, ShouldInvalidate(9.99))
	assert.False(t, ShouldInvalidate(-9.99))
}

func TestStatus(t *testing.T) {
	llmSvc := &fakeLLM{text: finalizeJSON}
	svc, _ := newTestService(llmSvc)
	ctx := context.Background()

	status, err := svc.Status(ctx, "005930")
	require.NoError(t, err)
	assert.False(t, status.Cached)

	_, err = svc.Get(ctx, "005930", false)
	require.NoError(t, err)

	status, err = svc.Status(ctx, "005930")
	require.NoError(t, err)
	assert.True(t, status.Cached)
	assert.Equal(t, "fake", status.Model)
}

// --- valuation tests -------------------------------------------------------

func TestMultiplierBuckets(t *testing.T) {
	assert.Equal(t, 1.2, growthMultiplier(25))
	assert.Equal(t, 1.1, growthMultiplier(15))
	assert.Equal(t, 1.05, growthMultiplier(5))
	assert.Equal(t, 0.95, growthMultiplier(-3))

	assert.Equal(t, 1.2, roeMultiplier(18))
	assert.Equal(t, 1.1, roeMultiplier(12))
	assert.Equal(t, 1.0, roeMultiplier(7))
	assert.Equal(t, 0.9, roeMultiplier(2))
}

func TestBaseValuation(t *testing.T) {
	st := &models.FilteredStock{PER: 10, PBR: 1.0, BPS: 50000, ROE: 16, RevenueGrowth: 25}
	per, pbr, base := baseValuation(st, 10000)

	// per_target = (price/PER)·PER·g = price·g; pbr_target = BPS·PBR·r
	assert.InDelta(t, 12000, per, 1e-9)
	assert.InDelta(t, 60000, pbr, 1e-9)
	assert.InDelta(t, 36000, base, 1e-9)
}

func TestBaseValuation_NoTargetsFallsBackToPrice(t *testing.T) {
	st := &models.FilteredStock{PER: 0, PBR: 0, BPS: 0}
	_, _, base := baseValuation(st, 10000)
	assert.Equal(t, 10000.0, base)
}

func TestTechnicalAdjustment_Clamped(t *testing.T) {
	best := models.Technicals{RSI: 25, MACDStatus: models.MACDGoldenCross, MAPosition: models.MAAbove}
	worst := models.Technicals{RSI: 75, MACDStatus: models.MACDDeadCross, MAPosition: models.MABelow}

	// 13 raw points clamp to the ±10% band
	assert.InDelta(t, 0.10, technicalAdjustment(best), 1e-9)
	assert.InDelta(t, -0.10, technicalAdjustment(worst), 1e-9)
	assert.InDelta(t, 0.0, technicalAdjustment(models.NeutralTechnicals("005930")), 1e-9)
}

func TestSentimentAdjustment(t *testing.T) {
	assert.InDelta(t, 0.003, sentimentAdjustment(10, 4), 1e-9)
	assert.InDelta(t, 0.05, sentimentAdjustment(300, 0), 1e-9) // clamped
	assert.InDelta(t, -0.05, sentimentAdjustment(0, 300), 1e-9)
}

func TestPreliminaryTarget(t *testing.T) {
	assert.InDelta(t, 11500, preliminaryTarget(10000, 0.10, 0.05), 1e-9)
	assert.InDelta(t, 8500, preliminaryTarget(10000, -0.10, -0.05), 1e-9)
}

// --- parser tests ----------------------------------------------------------

func TestParseAnalysis_FencedAndCoerced(t *testing.T) {
	text := "분석 결과입니다.\n```json\n" + `{
	  "summary": "요약",
	  "opinion": "적극 매수",
	  "target_price": 80000,
	  "industry_analysis": "업황 개선 중",
	  "risks": ["리스크 하나"]
	}` + "\n```\n"

	payload, err := parseAnalysis(text)
	require.NoError(t, err)

	// Off-enum opinion coerces to HOLD, short risks pad to three
	assert.Equal(t, models.OpinionHold, payload.Opinion)
	assert.Len(t, payload.Risks, 3)
	assert.Equal(t, "리스크 하나", payload.Risks[0])

	// Bare-string section lands in Summary
	assert.Equal(t, "업황 개선 중", payload.IndustryAnalysis.Summary)
}

func TestParseAnalysis_Garbage(t *testing.T) {
	_, err := parseAnalysis("죄송합니다. 분석을 생성할 수 없습니다.")
	assert.Error(t, err)
}
