package triggers

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

var (
	testDate = time.Date(2026, 8, 24, 0, 0, 0, 0, time.Local)
	prevDate = time.Date(2026, 8, 21, 0, 0, 0, 0, time.Local)
)

// --- fakes -----------------------------------------------------------------

type fakeMarket struct {
	snapshots map[string]*models.MarketSnapshot // keyed "2006-01-02"
}

func (m *fakeMarket) Snapshot(_ context.Context, date time.Time) (*models.MarketSnapshot, error) {
	snap, ok := m.snapshots[date.Format("2006-01-02")]
	if !ok {
		return nil, common.ErrDataUnavailable
	}
	return snap, nil
}

func (m *fakeMarket) PreviousTradingDay(_ context.Context, _ time.Time, _ int) (time.Time, error) {
	return prevDate, nil
}

type fakeStocks struct {
	passing []models.FilteredStock
}

func (s *fakeStocks) UpsertStocks(context.Context, []models.FilteredStock) error { return nil }
func (s *fakeStocks) GetStock(context.Context, string) (*models.FilteredStock, error) {
	return nil, common.ErrNotFound
}
func (s *fakeStocks) ListPassing(context.Context) ([]models.FilteredStock, error) {
	return s.passing, nil
}
func (s *fakeStocks) Search(context.Context, interfaces.StockFilter) ([]models.FilteredStock, error) {
	return nil, nil
}
func (s *fakeStocks) LastUpdated(context.Context) (time.Time, error) { return time.Time{}, nil }

type fakeTriggerStore struct {
	sessions map[string][]models.TriggerResult
	replaces int
}

func (s *fakeTriggerStore) key(date time.Time, session models.Session) string {
	return date.Format("2006-01-02") + "/" + string(session)
}

func (s *fakeTriggerStore) ReplaceSession(_ context.Context, date time.Time, session models.Session, results []models.TriggerResult) error {
	if s.sessions == nil {
		s.sessions = make(map[string][]models.TriggerResult)
	}
	s.sessions[s.key(date, session)] = results
	s.replaces++
	return nil
}

func (s *fakeTriggerStore) ListBySession(_ context.Context, date time.Time, session models.Session) ([]models.TriggerResult, error) {
	return s.sessions[s.key(date, session)], nil
}

func (s *fakeTriggerStore) CountBySession(_ context.Context, date time.Time, session models.Session) (int, error) {
	return len(s.sessions[s.key(date, session)]), nil
}

func (s *fakeTriggerStore) ListByType(context.Context, models.TriggerType, time.Time, int) ([]models.TriggerResult, error) {
	return nil, nil
}
func (s *fakeTriggerStore) HistoryByTicker(context.Context, string, int) ([]models.TriggerResult, error) {
	return nil, nil
}
func (s *fakeTriggerStore) LatestDate(context.Context) (time.Time, error) { return time.Time{}, nil }
func (s *fakeTriggerStore) Stats(context.Context, time.Time, time.Time) (*interfaces.TriggerStats, error) {
	return nil, nil
}

type fakeInvalidator struct {
	calls []time.Time
}

func (f *fakeInvalidator) InvalidateOnSurge(_ context.Context, date time.Time) (int, error) {
	f.calls = append(f.calls, date)
	return 2, nil
}

// --- detector-level tests --------------------------------------------------

func mkCandidate(ticker string, open, close float64, prevVol, vol int64) candidate {
	return candidate{
		Ticker: ticker,
		Name:   "종목" + ticker,
		Row: models.SnapshotRow{
			Ticker: ticker, Open: open, High: close * 1.01, Low: open * 0.99,
			Close: close, Volume: vol, TradingValue: close * float64(vol),
			MarketCap: 1e12,
		},
		PrevRow:      models.SnapshotRow{Ticker: ticker, Close: open, Volume: prevVol},
		HasPrev:      true,
		VolumeChange: float64(vol-prevVol) / float64(prevVol) * 100,
	}
}

func TestVolumeSurge_OrderingAndFilters(t *testing.T) {
	candidates := []candidate{
		// A doubles volume on an uptrend, the dominant 0.6-weight column
		mkCandidate("000001", 10000, 10500, 500_000, 1_000_000),
		// B barely clears the +30% gate with a slightly larger raw volume
		mkCandidate("000002", 20000, 20500, 800_000, 1_040_000),
		// C doubles volume but closes below the open
		mkCandidate("000003", 10000, 9800, 500_000, 1_000_000),
		// D trends up but misses the volume gate
		mkCandidate("000004", 10000, 10400, 1_000_000, 1_200_000),
	}

	results, err := detectors[models.TriggerVolumeSurge].run(testDate, models.SessionMorning, candidates, time.Now())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "000001", results[0].Ticker)
	assert.Equal(t, "000002", results[1].Ticker)
	assert.Greater(t, results[0].CompositeScore, results[1].CompositeScore)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.CompositeScore, 0.0)
		assert.LessOrEqual(t, r.CompositeScore, 1.0)
		assert.Equal(t, models.TriggerVolumeSurge, r.TriggerType)
		assert.Equal(t, models.SessionMorning, r.Session)
	}
}

func TestGapUp_GapColumnDominates(t *testing.T) {
	// Equal trading value so only gap and intraday separate the two
	x := mkCandidate("000001", 10500, 10605, 100_000, 100_000)
	x.PrevRow.Close = 10000 // 5% gap, 1% intraday
	x.Row.TradingValue = 5e9

	y := mkCandidate("000002", 10150, 10600, 100_000, 100_000)
	y.PrevRow.Close = 10000 // 1.5% gap, ~4.4% intraday
	y.Row.TradingValue = 5e9

	results, err := detectors[models.TriggerGapUp].run(testDate, models.SessionMorning, []candidate{x, y}, time.Now())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "000001", results[0].Ticker)
	assert.InDelta(t, 0.6, results[0].CompositeScore, 1e-9)
	assert.InDelta(t, 0.4, results[1].CompositeScore, 1e-9)
}

func TestGapUp_IntradayBreaksGapTie(t *testing.T) {
	// Identical gap and trading value; the stronger intraday move wins
	x := mkCandidate("000001", 10200, 10600, 100_000, 100_000)
	x.PrevRow.Close = 10000 // 2% gap, ~3.9% intraday
	x.Row.TradingValue = 5e9

	y := mkCandidate("000002", 10200, 10250, 100_000, 100_000)
	y.PrevRow.Close = 10000 // 2% gap, ~0.5% intraday
	y.Row.TradingValue = 5e9

	results, err := detectors[models.TriggerGapUp].run(testDate, models.SessionMorning, []candidate{x, y}, time.Now())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "000001", results[0].Ticker)
	assert.InDelta(t, 0.65, results[0].CompositeScore, 1e-9)
	assert.InDelta(t, 0.35, results[1].CompositeScore, 1e-9)
}

func TestGapUp_BelowThresholdExcluded(t *testing.T) {
	c := mkCandidate("000001", 10050, 10200, 100_000, 100_000)
	c.PrevRow.Close = 10000 // 0.5% gap

	results, err := detectors[models.TriggerGapUp].run(testDate, models.SessionMorning, []candidate{c}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDetector_CapsAtTopThree(t *testing.T) {
	var candidates []candidate
	for i := 0; i < 6; i++ {
		vol := int64(1_000_000 + i*100_000)
		candidates = append(candidates, mkCandidate(string(rune('1'+i))+"00000", 10000, 10500, 500_000, vol))
	}

	results, err := detectors[models.TriggerVolumeSurge].run(testDate, models.SessionMorning, candidates, time.Now())
	require.NoError(t, err)
	assert.Len(t, results, TopPerDetector)
}

// --- engine tests ----------------------------------------------------------

func afternoonFixture() (*fakeMarket, *fakeStocks) {
	rows := map[string]models.SnapshotRow{
		// fires intraday_rise, closing_strength, sideways_volume
		"000001": {Ticker: "000001", Open: 10000, High: 10500, Low: 9900, Close: 10400,
			Volume: 200_000, TradingValue: 2e9, ChangeRate: 4.0, MarketCap: 1e12},
		// flat close on a +60% volume day: closing_strength and sideways_volume
		"000002": {Ticker: "000002", Open: 20000, High: 20100, Low: 19900, Close: 20050,
			Volume: 160_000, TradingValue: 3.2e9, ChangeRate: 0.25, MarketCap: 2e12},
		// downtrend on thin volume, fires nothing
		"000003": {Ticker: "000003", Open: 5000, High: 5050, Low: 4880, Close: 4900,
			Volume: 110_000, TradingValue: 5.4e8, ChangeRate: -2.0, MarketCap: 5e11},
	}
	prevRows := map[string]models.SnapshotRow{
		"000001": {Ticker: "000001", Close: 10000, Volume: 100_000},
		"000002": {Ticker: "000002", Close: 20000, Volume: 100_000},
		"000003": {Ticker: "000003", Close: 5000, Volume: 100_000},
	}

	market := &fakeMarket{snapshots: map[string]*models.MarketSnapshot{
		"2026-08-24": {Date: testDate, Rows: rows},
		"2026-08-21": {Date: prevDate, Rows: prevRows},
	}}
	stocks := &fakeStocks{passing: []models.FilteredStock{
		{Ticker: "000001", Name: "가나전자"},
		{Ticker: "000002", Name: "다라화학"},
		{Ticker: "000003", Name: "마바건설"},
	}}
	return market, stocks
}

func TestEngine_AfternoonSessionAndInvalidation(t *testing.T) {
	market, stocks := afternoonFixture()
	store := &fakeTriggerStore{}
	invalidator := &fakeInvalidator{}
	engine := NewEngine(market, stocks, store, invalidator, arbor.NewLogger())

	n, err := engine.RunSession(context.Background(), testDate, models.SessionAfternoon)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	stored, err := store.ListBySession(context.Background(), testDate, models.SessionAfternoon)
	require.NoError(t, err)
	require.Len(t, stored, 5)

	byType := make(map[models.TriggerType][]string)
	for _, r := range stored {
		byType[r.TriggerType] = append(byType[r.TriggerType], r.Ticker)
	}
	assert.Equal(t, []string{"000001"}, byType[models.TriggerIntradayRise])
	assert.Len(t, byType[models.TriggerClosingStrength], 2)
	assert.Len(t, byType[models.TriggerSidewaysVolume], 2)

	// The afternoon run kicks exactly one cache sweep for the traded date
	require.Len(t, invalidator.calls, 1)
	assert.Equal(t, testDate, invalidator.calls[0])
}

func TestEngine_RerunReplacesSession(t *testing.T) {
	market, stocks := afternoonFixture()
	store := &fakeTriggerStore{}
	engine := NewEngine(market, stocks, store, nil, arbor.NewLogger())

	ctx := context.Background()
	_, err := engine.RunSession(ctx, testDate, models.SessionAfternoon)
	require.NoError(t, err)
	_, err = engine.RunSession(ctx, testDate, models.SessionAfternoon)
	require.NoError(t, err)

	assert.Equal(t, 2, store.replaces)
	count, err := store.CountBySession(ctx, testDate, models.SessionAfternoon)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestEngine_MorningWithoutPreviousSnapshot(t *testing.T) {
	market, stocks := afternoonFixture()
	delete(market.snapshots, "2026-08-21")
	store := &fakeTriggerStore{}
	engine := NewEngine(market, stocks, store, nil, arbor.NewLogger())

	// Volume-dependent detectors degrade silently; fund_inflow still runs
	n, err := engine.RunSession(context.Background(), testDate, models.SessionMorning)
	require.NoError(t, err)

	stored, _ := store.ListBySession(context.Background(), testDate, models.SessionMorning)
	assert.Equal(t, n, len(stored))
	for _, r := range stored {
		assert.Equal(t, models.TriggerFundInflow, r.TriggerType)
	}
}

// --- pre-surge tests -------------------------------------------------------

type fakeHistory struct {
	volumes map[string]int64 // constant per-bar volume
}

func (h *fakeHistory) History(_ context.Context, ticker string, _, _ time.Time) ([]models.PriceBar, error) {
	vol, ok := h.volumes[ticker]
	if !ok {
		return nil, common.ErrDataUnavailable
	}
	bars := make([]models.PriceBar, 5)
	for i := range bars {
		bars[i] = models.PriceBar{Ticker: ticker, Volume: vol}
	}
	return bars, nil
}

type fakePrices struct {
	fresh []models.RealtimePrice
}

func (p *fakePrices) UpsertPrices(context.Context, []models.RealtimePrice) error { return nil }
func (p *fakePrices) GetPrice(context.Context, string) (*models.RealtimePrice, error) {
	return nil, common.ErrNotFound
}
func (p *fakePrices) GetFresh(context.Context, []string, time.Duration) ([]models.RealtimePrice, error) {
	return p.fresh, nil
}

func TestPreSurgeScanner_Scan(t *testing.T) {
	stocks := &fakeStocks{passing: []models.FilteredStock{
		{Ticker: "000001"}, {Ticker: "000002"}, {Ticker: "000003"}, {Ticker: "000004"},
	}}
	history := &fakeHistory{volumes: map[string]int64{
		"000001": 100_000, "000002": 100_000, "000003": 100_000, "000004": 100_000,
	}}
	prices := &fakePrices{fresh: []models.RealtimePrice{
		{Ticker: "000001", Volume: 400_000, ChangeRate: 1.0},  // ratio 4
		{Ticker: "000002", Volume: 600_000, ChangeRate: -2.0}, // ratio 6, clamped
		{Ticker: "000003", Volume: 400_000, ChangeRate: 5.0},  // moved too far
		{Ticker: "000004", Volume: 200_000, ChangeRate: 0.5},  // ratio below gate
	}}

	scanner := NewPreSurgeScanner(history, stocks, prices, arbor.NewLogger())
	signals, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 2)

	// Highest confidence first, saturating at 1.0
	assert.Equal(t, "000002", signals[0].Ticker)
	assert.Equal(t, 1.0, signals[0].Confidence)
	assert.Equal(t, "000001", signals[1].Ticker)
	assert.InDelta(t, 0.8, signals[1].Confidence, 1e-9)
	assert.InDelta(t, 4.0, signals[1].VolumeRatio, 1e-9)
}
