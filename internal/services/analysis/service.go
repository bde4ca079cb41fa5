package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/embedder"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
)

const (
	// InvalidateThreshold is the |change rate| [%] past which a cached
	// analysis no longer reflects the market
	InvalidateThreshold = 10.0

	// BatchLimit caps one batch-analysis request
	BatchLimit = 10

	newsWindowDays = 5
	maxNewsItems   = 100

	realtimeMaxAge = 24 * time.Hour
)

// marketData is the gateway surface the analysis engine reads
type marketData interface {
	Snapshot(ctx context.Context, date time.Time) (*models.MarketSnapshot, error)
	Technicals(ctx context.Context, ticker string, date time.Time) (models.Technicals, error)
	RealtimeOne(ctx context.Context, ticker string) (*models.RealtimePrice, error)
	RealtimeBulk(ctx context.Context, tickers []string, maxAge time.Duration) ([]models.RealtimePrice, error)
}

// newsSource provides recent headlines per ticker
type newsSource interface {
	News(ctx context.Context, ticker, name string, days int) ([]models.NewsItem, error)
}

// Service generates, caches and invalidates company analyses
type Service struct {
	market       marketData
	news         newsSource
	embedder     interfaces.Embedder
	llm          interfaces.LLMService
	stocks       interfaces.StockStorage
	store        interfaces.AnalysisStorage
	simThreshold float64
	logger       arbor.ILogger
}

// NewService creates the analysis engine. A zero simThreshold falls back
// to 0.66.
func NewService(market marketData, news newsSource, emb interfaces.Embedder, llmSvc interfaces.LLMService, stocks interfaces.StockStorage, store interfaces.AnalysisStorage, simThreshold float64, logger arbor.ILogger) *Service {
	if simThreshold <= 0 {
		simThreshold = 0.66
	}
	return &Service{
		market:       market,
		news:         news,
		embedder:     emb,
		llm:          llmSvc,
		stocks:       stocks,
		store:        store,
		simThreshold: simThreshold,
		logger:       logger,
	}
}

// Get returns today's analysis for the ticker, generating and caching it
// when absent. forceRefresh bypasses the cache read but still writes.
func (s *Service) Get(ctx context.Context, ticker string, forceRefresh bool) (*models.AnalysisResult, error) {
	today := time.Now()

	if !forceRefresh {
		cached, err := s.store.Get(ctx, ticker, today)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
	}

	result, err := s.generate(ctx, ticker, today)
	if err != nil {
		return nil, err
	}
	if err := s.store.Upsert(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to cache analysis: %w", err)
	}
	return result, nil
}

// BatchItem is one ticker's outcome in a batch request
type BatchItem struct {
	Ticker string                 `json:"ticker"`
	Result *models.AnalysisResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// Batch runs Get over up to BatchLimit tickers; per-ticker failures are
// reported inline instead of failing the batch.
func (s *Service) Batch(ctx context.Context, tickers []string, forceRefresh bool) ([]BatchItem, error) {
	if len(tickers) == 0 {
		return nil, common.NewValidationError("tickers", "at least one ticker required")
	}
	if len(tickers) > BatchLimit {
		return nil, common.NewValidationError("tickers", fmt.Sprintf("at most %d tickers per batch", BatchLimit))
	}

	items := make([]BatchItem, 0, len(tickers))
	for _, ticker := range tickers {
		item := BatchItem{Ticker: ticker}
		if result, err := s.Get(ctx, ticker, forceRefresh); err != nil {
			item.Error = err.Error()
		} else {
			item.Result = result
		}
		items = append(items, item)
	}
	return items, nil
}

// Popular returns the most analyzed tickers
func (s *Service) Popular(ctx context.Context, limit int) ([]models.PopularTicker, error) {
	return s.store.Popular(ctx, limit)
}

// CacheStatus describes whether today's analysis is already cached
type CacheStatus struct {
	Ticker      string    `json:"ticker"`
	Cached      bool      `json:"cached"`
	GeneratedAt time.Time `json:"generated_at,omitempty"`
	Model       string    `json:"model,omitempty"`
}

// Status reports the cache state for the ticker today
func (s *Service) Status(ctx context.Context, ticker string) (*CacheStatus, error) {
	cached, err := s.store.Get(ctx, ticker, time.Now())
	if errors.Is(err, common.ErrNotFound) {
		return &CacheStatus{Ticker: ticker}, nil
	}
	if err != nil {
		return nil, err
	}
	return &CacheStatus{
		Ticker:      ticker,
		Cached:      true,
		GeneratedAt: cached.GeneratedAt,
		Model:       cached.Model,
	}, nil
}

// Invalidate drops the cached analysis for the ticker on the given date
func (s *Service) Invalidate(ctx context.Context, ticker string, date time.Time) error {
	return s.store.Delete(ctx, ticker, date)
}

// ShouldInvalidate is the surge rule: the cache is stale once the price
// has moved at least InvalidateThreshold percent.
func ShouldInvalidate(changeRate float64) bool {
	return math.Abs(changeRate) >= InvalidateThreshold
}

// InvalidateOnSurge sweeps every filtered ticker's realtime price and
// drops cached analyses where the surge rule fires. Returns the number
// of rows dropped.
func (s *Service) InvalidateOnSurge(ctx context.Context, date time.Time) (int, error) {
	universe, err := s.stocks.ListPassing(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load universe: %w", err)
	}

	tickers := make([]string, 0, len(universe))
	for _, st := range universe {
		tickers = append(tickers, st.Ticker)
	}

	prices, err := s.market.RealtimeBulk(ctx, tickers, realtimeMaxAge)
	if err != nil {
		return 0, fmt.Errorf("failed to load realtime prices: %w", err)
	}

	dropped := 0
	for _, p := range prices {
		if !ShouldInvalidate(p.ChangeRate) {
			continue
		}
		if err := s.store.Delete(ctx, p.Ticker, date); err != nil {
			s.logger.Warn().Err(err).Str("ticker", p.Ticker).Msg("Cache invalidation failed")
			continue
		}
		dropped++
	}
	return dropped, nil
}

// Comparison sets a ticker's fundamentals against its venue medians,
// attaching the cached industry section when one exists.
type Comparison struct {
	Ticker    string         `json:"ticker"`
	Name      string         `json:"name"`
	Market    models.Market  `json:"market"`
	PER       float64        `json:"per"`
	PBR       float64        `json:"pbr"`
	ROE       float64        `json:"roe"`
	DebtRatio float64        `json:"debt_ratio"`
	MedianPER float64        `json:"median_per"`
	MedianPBR float64        `json:"median_pbr"`
	MedianROE float64        `json:"median_roe"`
	Peers     int            `json:"peers"`
	Industry  models.Section `json:"industry,omitempty"`
}

// Compare builds the venue comparison for one ticker
func (s *Service) Compare(ctx context.Context, ticker string) (*Comparison, error) {
	st, err := s.stocks.GetStock(ctx, ticker)
	if err != nil {
		return nil, err
	}

	universe, err := s.stocks.ListPassing(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}

	var pers, pbrs, roes []float64
	peers := 0
	for _, peer := range universe {
		if peer.Market != st.Market || peer.Ticker == st.Ticker {
			continue
		}
		peers++
		if peer.PER > 0 {
			pers = append(pers, peer.PER)
		}
		if peer.PBR > 0 {
			pbrs = append(pbrs, peer.PBR)
		}
		roes = append(roes, peer.ROE)
	}

	cmp := &Comparison{
		Ticker:    st.Ticker,
		Name:      st.Name,
		Market:    st.Market,
		PER:       st.PER,
		PBR:       st.PBR,
		ROE:       st.ROE,
		DebtRatio: st.DebtRatio,
		MedianPER: median(pers),
		MedianPBR: median(pbrs),
		MedianROE: median(roes),
		Peers:     peers,
	}

	if cached, err := s.store.Get(ctx, ticker, time.Now()); err == nil {
		cmp.Industry = cached.Payload.IndustryAnalysis
	}
	return cmp, nil
}

// generate runs the three valuation steps and the LLM finalize call
func (s *Service) generate(ctx context.Context, ticker string, date time.Time) (*models.AnalysisResult, error) {
	st, err := s.stocks.GetStock(ctx, ticker)
	if err != nil {
		return nil, err
	}

	price, changeRate, err := s.currentPrice(ctx, st.Ticker, date)
	if err != nil {
		return nil, err
	}

	tech, err := s.market.Technicals(ctx, st.Ticker, date)
	if err != nil {
		s.logger.Warn().Err(err).Str("ticker", st.Ticker).Msg("Technicals unavailable, using neutral")
		tech = models.NeutralTechnicals(st.Ticker)
	}

	titles := s.newsTitles(ctx, st)
	cls, clsTokens := s.classifyNews(ctx, st.Name, titles)

	perTarget, pbrTarget, base := baseValuation(st, price)
	techAdj := technicalAdjustment(tech)
	sentAdj := sentimentAdjustment(cls.Positive, cls.Negative)

	steps := models.ValuationSteps{
		GrowthMultiplier:  growthMultiplier(st.RevenueGrowth),
		ROEMultiplier:     roeMultiplier(st.ROE),
		PERTarget:         perTarget,
		PBRTarget:         pbrTarget,
		BaseTarget:        base,
		TechnicalAdj:      techAdj,
		SentimentAdj:      sentAdj,
		PositiveNews:      cls.Positive,
		NegativeNews:      cls.Negative,
		PreliminaryTarget: preliminaryTarget(base, techAdj, sentAdj),
	}

	prompt := buildFinalizePrompt(st, price, changeRate, tech, steps, cls)
	result, err := s.llm.Chat(ctx, prompt, interfaces.ChatOptions{
		System:      finalizeSystem,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finalize analysis: %w", err)
	}

	payload, err := parseAnalysis(result.Text)
	if err != nil {
		return nil, err
	}
	payload.Steps = steps

	return &models.AnalysisResult{
		Ticker:      st.Ticker,
		Date:        date,
		Payload:     *payload,
		GeneratedAt: time.Now(),
		Model:       result.Model,
		TokensUsed:  result.TokensUsed + clsTokens,
	}, nil
}

// currentPrice prefers a live quote, falling back to the daily snapshot
func (s *Service) currentPrice(ctx context.Context, ticker string, date time.Time) (price, changeRate float64, err error) {
	if rt, err := s.market.RealtimeOne(ctx, ticker); err == nil && rt.CurrentPrice > 0 {
		return rt.CurrentPrice, rt.ChangeRate, nil
	}

	snap, err := s.market.Snapshot(ctx, date)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to resolve price for %s: %w", ticker, err)
	}
	row, ok := snap.Rows[ticker]
	if !ok || row.Close == 0 {
		return 0, 0, fmt.Errorf("no price for %s: %w", ticker, common.ErrDataUnavailable)
	}
	return row.Close, row.ChangeRate, nil
}

// newsTitles fetches, dedups and caps the recent headlines. Failures
// degrade to an empty list.
func (s *Service) newsTitles(ctx context.Context, st *models.FilteredStock) []string {
	items, err := s.news.News(ctx, st.Ticker, st.Name, newsWindowDays)
	if err != nil {
		s.logger.Debug().Err(err).Str("ticker", st.Ticker).Msg("News fetch failed")
		return nil
	}

	titles := make([]string, 0, len(items))
	for _, it := range items {
		if t := strings.TrimSpace(it.Title); t != "" {
			titles = append(titles, t)
		}
	}

	titles = s.dedupTitles(ctx, titles)
	if len(titles) > maxNewsItems {
		titles = titles[:maxNewsItems]
	}
	return titles
}

// dedupTitles drops near-duplicate headlines via embedding similarity;
// without a live embedding server the list passes through.
func (s *Service) dedupTitles(ctx context.Context, titles []string) []string {
	if len(titles) < 2 || s.embedder == nil || !s.embedder.Available() {
		return titles
	}

	vectors, err := s.embedder.Embed(ctx, titles)
	if err != nil || len(vectors) != len(titles) {
		s.logger.Debug().Err(err).Msg("Embedding failed, skipping dedup")
		return titles
	}

	kept := make([]string, 0, len(titles))
	var keptVecs [][]float32
	for i, title := range titles {
		dup := false
		for _, kv := range keptVecs {
			if embedder.CosineSimilarity(vectors[i], kv) >= s.simThreshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, title)
			keptVecs = append(keptVecs, vectors[i])
		}
	}
	return kept
}

// classifyNews asks the LLM to tally headline sentiment. Failures yield
// a zero classification (neutral adjustment), never an error.
func (s *Service) classifyNews(ctx context.Context, name string, titles []string) (*newsClassification, int) {
	if len(titles) == 0 || s.llm == nil {
		return &newsClassification{}, 0
	}

	result, err := s.llm.Chat(ctx, buildClassifyPrompt(name, titles), interfaces.ChatOptions{
		System:      classifySystem,
		Temperature: 0.1,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("News classification failed, using neutral")
		return &newsClassification{}, 0
	}

	cls, err := parseClassification(result.Text)
	if err != nil {
		s.logger.Warn().Err(err).Msg("News classification unparseable, using neutral")
		return &newsClassification{}, result.TokensUsed
	}
	return cls, result.TokensUsed
}

// median returns the middle value, 0 for an empty slice
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
