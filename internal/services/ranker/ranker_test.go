package ranker

import (
	"context"
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

var rankDate = time.Date(2026, 8, 24, 0, 0, 0, 0, time.Local)

// --- fakes -----------------------------------------------------------------

type fakeMarket struct {
	snapshots  map[string]*models.MarketSnapshot
	technicals map[string]models.Technicals
}

func (m *fakeMarket) Snapshot(_ context.Context, date time.Time) (*models.MarketSnapshot, error) {
	snap, ok := m.snapshots[date.Format("2006-01-02")]
	if !ok {
		return nil, common.ErrDataUnavailable
	}
	return snap, nil
}

func (m *fakeMarket) PreviousTradingDay(_ context.Context, date time.Time, _ int) (time.Time, error) {
	return date.AddDate(0, 0, -1), nil
}

func (m *fakeMarket) TechnicalsBatch(_ context.Context, tickers []string, _ time.Time) (map[string]models.Technicals, error) {
	out := make(map[string]models.Technicals, len(tickers))
	for _, t := range tickers {
		if tech, ok := m.technicals[t]; ok {
			out[t] = tech
		} else {
			out[t] = models.NeutralTechnicals(t)
		}
	}
	return out, nil
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

type fakeNews struct {
	titles map[string][]string
}

func (n *fakeNews) News(_ context.Context, ticker, _ string, _ int) ([]models.NewsItem, error) {
	items := make([]models.NewsItem, 0, len(n.titles[ticker]))
	for _, t := range n.titles[ticker] {
		items = append(items, models.NewsItem{Ticker: ticker, Title: t})
	}
	return items, nil
}

type fakeLLM struct {
	text string
	err  error
}

func (l *fakeLLM) Chat(context.Context, string, interfaces.ChatOptions) (*interfaces.ChatResult, error) {
	if l.err != nil {
		return nil, l.err
	}
	return &interfaces.ChatResult{Text: l.text, Model: "fake"}, nil
}

func (l *fakeLLM) Provider() string { return "fake" }

type fakeEmbedder struct {
	vectors [][]float32
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return e.vectors[:len(texts)], nil
}

func (e *fakeEmbedder) Available() bool { return true }

// --- fixtures --------------------------------------------------------------

// fixture builds the current snapshot plus 20 prior daily snapshots.
// closes maps ticker to [current, prior] closes; priors share one value.
func fixture(closes map[string][2]float64, volume int64) *fakeMarket {
	current := &models.MarketSnapshot{Date: rankDate, Rows: map[string]models.SnapshotRow{}}
	for ticker, c := range closes {
		current.Rows[ticker] = models.SnapshotRow{
			Ticker: ticker, Open: c[0], High: c[0], Low: c[0], Close: c[0],
			Volume: volume, TradingValue: c[0] * float64(volume),
			ChangeRate: 1.0, MarketCap: 1e12,
		}
	}

	market := &fakeMarket{snapshots: map[string]*models.MarketSnapshot{
		rankDate.Format("2006-01-02"): current,
	}}
	for i := 1; i <= momentumDays; i++ {
		date := rankDate.AddDate(0, 0, -i)
		snap := &models.MarketSnapshot{Date: date, Rows: map[string]models.SnapshotRow{}}
		for ticker, c := range closes {
			if c[1] == 0 {
				continue // no history for this ticker
			}
			snap.Rows[ticker] = models.SnapshotRow{
				Ticker: ticker, Close: c[1], Volume: volume,
			}
		}
		market.snapshots[date.Format("2006-01-02")] = snap
	}
	return market
}

func passingStocks(tickers ...string) *fakeStocks {
	s := &fakeStocks{}
	for _, t := range tickers {
		s.passing = append(s.passing, models.FilteredStock{
			Ticker: t, Name: "종목" + t, PER: 10, PBR: 1.2,
		})
	}
	return s
}

// --- tests -----------------------------------------------------------------

func TestRank_SentimentBreaksBaseTie(t *testing.T) {
	// Identical price action, so both stocks share base 4.5; the LLM
	// ranking alone decides the final order.
	market := fixture(map[string][2]float64{
		"000001": {10000, 10000},
		"000002": {10000, 10000},
	}, 100_000)
	news := &fakeNews{titles: map[string][]string{
		"000001": {"실적 부진 우려"},
		"000002": {"사상 최대 실적"},
	}}
	llmSvc := &fakeLLM{text: `{"rankings": [{"ticker": "000002", "rank": 1}, {"ticker": "000001", "rank": 2}]}`}

	r := New(market, passingStocks("000001", "000002"), news, nil, llmSvc, 0, arbor.NewLogger())
	ranked, err := r.Rank(context.Background(), rankDate)
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, "000002", ranked[0].Ticker)
	assert.Equal(t, "000001", ranked[1].Ticker)

	assert.InDelta(t, 4.5, ranked[0].BaseScore, 1e-9)
	assert.InDelta(t, 4.5, ranked[1].BaseScore, 1e-9)
	assert.InDelta(t, 10.0, ranked[0].SentimentScore, 1e-9)
	assert.InDelta(t, 0.0, ranked[1].SentimentScore, 1e-9)

	// final = 0.9*base + 0.1*sentiment
	assert.InDelta(t, 5.05, ranked[0].FinalScore, 1e-9)
	assert.InDelta(t, 4.05, ranked[1].FinalScore, 1e-9)
}

func TestRank_LLMFailureFallsBackToNeutral(t *testing.T) {
	market := fixture(map[string][2]float64{
		"000001": {10000, 10000},
		"000002": {10000, 10000},
	}, 100_000)
	news := &fakeNews{}
	llmSvc := &fakeLLM{err: errors.New("overloaded")}

	r := New(market, passingStocks("000001", "000002"), news, nil, llmSvc, 0, arbor.NewLogger())
	ranked, err := r.Rank(context.Background(), rankDate)
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	// Neutral sentiment everywhere; ties break on ticker
	assert.Equal(t, "000001", ranked[0].Ticker)
	for _, rs := range ranked {
		assert.InDelta(t, 5.0, rs.SentimentScore, 1e-9)
		assert.InDelta(t, 0.9*4.5+0.5, rs.FinalScore, 1e-9)
	}
}

func TestRank_MomentumSpreadAndMissingHistory(t *testing.T) {
	// X gained 10% over every horizon, Y is flat, Z has no history at all
	market := fixture(map[string][2]float64{
		"000001": {11000, 10000},
		"000002": {10000, 10000},
		"000003": {10000, 0},
	}, 100_000)

	r := New(market, passingStocks("000001", "000002", "000003"), &fakeNews{}, nil, nil, 0, arbor.NewLogger())
	ranked, err := r.Rank(context.Background(), rankDate)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	scores := map[string]models.RankedStock{}
	for _, rs := range ranked {
		scores[rs.Ticker] = rs
	}
	assert.InDelta(t, 10.0, scores["000001"].MomentumScore, 1e-9)
	assert.InDelta(t, 0.0, scores["000002"].MomentumScore, 1e-9)
	assert.InDelta(t, 5.0, scores["000003"].MomentumScore, 1e-9) // neutral

	// Winner first
	assert.Equal(t, "000001", ranked[0].Ticker)
}

func TestRank_JoinFiltersBadFundamentals(t *testing.T) {
	market := fixture(map[string][2]float64{
		"000001": {10000, 10000},
		"000002": {10000, 10000},
	}, 100_000)
	stocks := passingStocks("000001", "000002")
	stocks.passing[1].PER = 0 // loss-making, excluded from ranking

	r := New(market, stocks, &fakeNews{}, nil, nil, 0, arbor.NewLogger())
	ranked, err := r.Rank(context.Background(), rankDate)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "000001", ranked[0].Ticker)
}

func TestTechnicalScore_Mapping(t *testing.T) {
	best := models.Technicals{RSI: 25, MACDStatus: models.MACDGoldenCross, MAPosition: models.MAAbove}
	worst := models.Technicals{RSI: 75, MACDStatus: models.MACDDeadCross, MAPosition: models.MABelow}

	assert.InDelta(t, 10.0, technicalScore(best), 1e-9)
	assert.InDelta(t, 0.0, technicalScore(worst), 1e-9)
	assert.InDelta(t, 5.0, technicalScore(models.NeutralTechnicals("000001")), 1e-9)
}

// barrierNews holds every News call open until released, so the test
// can observe how many crawls run at once.
type barrierNews struct {
	arrivals chan struct{}
	release  chan struct{}
}

func (n *barrierNews) News(ctx context.Context, ticker, _ string, _ int) ([]models.NewsItem, error) {
	n.arrivals <- struct{}{}
	select {
	case <-n.release:
	case <-ctx.Done():
	}
	return []models.NewsItem{{Ticker: ticker, Title: "헤드라인 " + ticker}}, nil
}

func TestCrawlTitles_ParallelFanOut(t *testing.T) {
	news := &barrierNews{arrivals: make(chan struct{}, 3), release: make(chan struct{})}
	r := New(nil, nil, news, nil, nil, 0, arbor.NewLogger())

	entries := []*entry{
		{st: models.FilteredStock{Ticker: "000001", Name: "가"}},
		{st: models.FilteredStock{Ticker: "000002", Name: "나"}},
		{st: models.FilteredStock{Ticker: "000003", Name: "다"}},
	}

	done := make(chan map[string][]string, 1)
	go func() { done <- r.crawlTitles(context.Background(), entries) }()

	// All three crawls must be in flight before any of them finishes;
	// a serial crawl never gets past the first arrival.
	for i := 0; i < len(entries); i++ {
		select {
		case <-news.arrivals:
		case <-time.After(2 * time.Second):
			t.Fatal("news crawl did not fan out")
		}
	}
	close(news.release)

	titles := <-done
	require.Len(t, titles, 3)
	assert.Equal(t, []string{"헤드라인 000001"}, titles["000001"])
}

func TestDedupTitles_DropsNearDuplicates(t *testing.T) {
	emb := &fakeEmbedder{vectors: [][]float32{
		{1, 0}, // original
		{1, 0}, // duplicate of the first
		{0, 1}, // unrelated
	}}
	r := New(nil, nil, nil, emb, nil, 0.66, arbor.NewLogger())

	kept := r.dedupTitles(context.Background(),
		[]string{"삼성전자 신고가", "삼성전자 또 신고가", "환율 급등"})
	assert.Equal(t, []string{"삼성전자 신고가", "환율 급등"}, kept)
}
