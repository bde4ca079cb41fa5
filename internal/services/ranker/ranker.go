// Package ranker builds the daily Top-N selection: momentum, volume and
// technical sub-scores over the filtered universe, a news-sentiment rank
// from one LLM call, and the blended final score.
package ranker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
	"github.com/ternarybob/specula/internal/normalize"
)

const (
	// TopBase is the base-score cut feeding the sentiment stage
	TopBase = 50

	// TopFinal is the published selection size
	TopFinal = 10

	// momentum horizons in trading days
	momentumDays = 20

	neutralScore = 5.0

	prevLookbackDays = 10
)

// weight splits; momentum/volume/technical feed the base, sentiment the final
var (
	momentumWeights = []float64{0.4, 0.35, 0.25} // D-1 / D-5 / D-20
	volumeWeights   = []float64{0.6, 0.4}        // volume increase / trading value
)

const (
	baseMomentumWeight   = 0.40
	baseVolumeWeight     = 0.30
	baseTechnicalWeight  = 0.20
	finalBaseWeight      = 0.90
	finalSentimentWeight = 0.10
)

// marketData is the gateway surface the ranker reads
type marketData interface {
	Snapshot(ctx context.Context, date time.Time) (*models.MarketSnapshot, error)
	PreviousTradingDay(ctx context.Context, date time.Time, maxLookback int) (time.Time, error)
	TechnicalsBatch(ctx context.Context, tickers []string, date time.Time) (map[string]models.Technicals, error)
}

// newsSource provides recent headlines per ticker
type newsSource interface {
	News(ctx context.Context, ticker, name string, days int) ([]models.NewsItem, error)
}

// entry is one universe row joined with its snapshot row
type entry struct {
	st  models.FilteredStock
	row models.SnapshotRow

	momentum  float64
	volume    float64
	technical float64
	base      float64
	sentiment float64
	final     float64
}

// Ranker runs the full pipeline for one trading date
type Ranker struct {
	market       marketData
	stocks       interfaces.StockStorage
	news         newsSource
	embedder     interfaces.Embedder
	llm          interfaces.LLMService
	simThreshold float64
	logger       arbor.ILogger
}

// New creates a ranker. A zero simThreshold falls back to 0.66.
func New(market marketData, stocks interfaces.StockStorage, news newsSource, embedder interfaces.Embedder, llm interfaces.LLMService, simThreshold float64, logger arbor.ILogger) *Ranker {
	if simThreshold <= 0 {
		simThreshold = 0.66
	}
	return &Ranker{
		market:       market,
		stocks:       stocks,
		news:         news,
		embedder:     embedder,
		llm:          llm,
		simThreshold: simThreshold,
		logger:       logger,
	}
}

// Rank computes the Top-10 for the given date. Sentiment degradation
// (news or LLM failure) falls back to neutral scores rather than failing
// the run.
func (r *Ranker) Rank(ctx context.Context, date time.Time) ([]models.RankedStock, error) {
	snap, err := r.market.Snapshot(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	entries, err := r.join(ctx, snap)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no rankable stocks for %s", snap.Date.Format("2006-01-02"))
	}

	prior := r.priorSnapshots(ctx, snap.Date)

	r.scoreMomentum(entries, snap, prior)
	r.scoreVolume(entries, prior)
	if err := r.scoreTechnical(ctx, entries, snap.Date); err != nil {
		return nil, err
	}

	for _, e := range entries {
		e.base = baseMomentumWeight*e.momentum + baseVolumeWeight*e.volume + baseTechnicalWeight*e.technical
	}
	sortByScore(entries, func(e *entry) float64 { return e.base })
	if len(entries) > TopBase {
		entries = entries[:TopBase]
	}

	sentiments := r.sentimentScores(ctx, entries)
	for _, e := range entries {
		e.sentiment = neutralScore
		if s, ok := sentiments[e.st.Ticker]; ok {
			e.sentiment = s
		}
		e.final = finalBaseWeight*e.base + finalSentimentWeight*e.sentiment
	}
	sortByScore(entries, func(e *entry) float64 { return e.final })
	if len(entries) > TopFinal {
		entries = entries[:TopFinal]
	}

	ranked := make([]models.RankedStock, len(entries))
	for i, e := range entries {
		ranked[i] = models.RankedStock{
			Ticker:         e.st.Ticker,
			Name:           e.st.Name,
			Price:          e.row.Close,
			ChangeRate:     e.row.ChangeRate,
			MomentumScore:  e.momentum,
			VolumeScore:    e.volume,
			TechnicalScore: e.technical,
			SentimentScore: e.sentiment,
			BaseScore:      e.base,
			FinalScore:     e.final,
		}
	}

	r.logger.Info().
		Str("date", snap.Date.Format("2006-01-02")).
		Int("universe", len(ranked)).
		Msg("Ranking completed")
	return ranked, nil
}

// join keeps universe rows with sane fundamentals and a traded close
func (r *Ranker) join(ctx context.Context, snap *models.MarketSnapshot) ([]*entry, error) {
	universe, err := r.stocks.ListPassing(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}

	entries := make([]*entry, 0, len(universe))
	for _, st := range universe {
		row, ok := snap.Rows[st.Ticker]
		if !ok {
			continue
		}
		if st.PER <= 0 || st.PBR <= 0 || row.MarketCap <= 0 || row.Close <= 0 {
			continue
		}
		entries = append(entries, &entry{st: st, row: row})
	}
	return entries, nil
}

// priorSnapshots walks back up to momentumDays trading days and returns
// their snapshots, nearest first. A short chain (holiday gaps, thin
// history) is returned as-is; the scorers degrade per ticker.
func (r *Ranker) priorSnapshots(ctx context.Context, date time.Time) []*models.MarketSnapshot {
	snaps := make([]*models.MarketSnapshot, 0, momentumDays)
	cur := date
	for i := 0; i < momentumDays; i++ {
		prev, err := r.market.PreviousTradingDay(ctx, cur, prevLookbackDays)
		if err != nil {
			r.logger.Warn().Err(err).Int("depth", i).Msg("Prior trading-day chain cut short")
			break
		}
		snap, err := r.market.Snapshot(ctx, prev)
		if err != nil {
			r.logger.Warn().Err(err).Str("date", prev.Format("2006-01-02")).Msg("Prior snapshot unavailable")
			break
		}
		snaps = append(snaps, snap)
		cur = prev
	}
	return snaps
}

// scoreMomentum computes D-1/D-5/D-20 returns, robust-then-minmax
// normalizes each horizon over the eligible tickers, and blends them into
// a 0-10 score. Tickers missing any horizon stay neutral.
func (r *Ranker) scoreMomentum(entries []*entry, snap *models.MarketSnapshot, prior []*models.MarketSnapshot) {
	for _, e := range entries {
		e.momentum = neutralScore
	}
	if len(prior) < momentumDays {
		return
	}
	horizons := []*models.MarketSnapshot{prior[0], prior[4], prior[19]}

	var eligible []*entry
	cols := make([][]float64, len(horizons))
	for _, e := range entries {
		rets := make([]float64, len(horizons))
		ok := true
		for i, h := range horizons {
			prev, found := h.Rows[e.st.Ticker]
			if !found || prev.Close <= 0 {
				ok = false
				break
			}
			rets[i] = (e.row.Close/prev.Close - 1) * 100
		}
		if !ok {
			continue
		}
		eligible = append(eligible, e)
		for i := range cols {
			cols[i] = append(cols[i], rets[i])
		}
	}
	if len(eligible) == 0 {
		return
	}

	for i := range cols {
		cols[i] = normalize.MinMax01(normalize.Robust(cols[i]))
	}
	scores, err := normalize.Composite(cols, momentumWeights)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Momentum composite failed, scores stay neutral")
		return
	}
	for i, e := range eligible {
		e.momentum = scores[i] * 10
	}
}

// scoreVolume blends log volume-increase against the 20-day average with
// log trading value, percentile-clipped at 5/95. No baseline stays
// neutral.
func (r *Ranker) scoreVolume(entries []*entry, prior []*models.MarketSnapshot) {
	for _, e := range entries {
		e.volume = neutralScore
	}

	var eligible []*entry
	var incCol, valCol []float64
	for _, e := range entries {
		var sum int64
		var days int
		for _, snap := range prior {
			if prev, ok := snap.Rows[e.st.Ticker]; ok && prev.Volume > 0 {
				sum += prev.Volume
				days++
			}
		}
		if days == 0 {
			continue
		}
		avg := float64(sum) / float64(days)
		increase := (float64(e.row.Volume)/avg - 1) * 100
		eligible = append(eligible, e)
		incCol = append(incCol, increase+100)
		valCol = append(valCol, e.row.TradingValue)
	}
	if len(eligible) == 0 {
		return
	}

	cols := [][]float64{
		normalize.PercentileClip(normalize.Log(incCol), 5, 95),
		normalize.PercentileClip(normalize.Log(valCol), 5, 95),
	}
	scores, err := normalize.Composite(cols, volumeWeights)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Volume composite failed, scores stay neutral")
		return
	}
	for i, e := range eligible {
		e.volume = scores[i] * 10
	}
}

// scoreTechnical maps the indicator snapshot onto signed points and
// rescales [-13, +13] to [0, 10]. Tickers missing from the batch score
// the neutral midpoint.
func (r *Ranker) scoreTechnical(ctx context.Context, entries []*entry, date time.Time) error {
	tickers := make([]string, len(entries))
	for i, e := range entries {
		tickers[i] = e.st.Ticker
	}

	batch, err := r.market.TechnicalsBatch(ctx, tickers, date)
	if err != nil {
		return fmt.Errorf("failed to compute technicals: %w", err)
	}

	for _, e := range entries {
		tech, ok := batch[e.st.Ticker]
		if !ok {
			tech = models.NeutralTechnicals(e.st.Ticker)
		}
		e.technical = technicalScore(tech)
	}
	return nil
}

// technicalScore converts one indicator snapshot into the 0-10 scale
func technicalScore(t models.Technicals) float64 {
	points := 0.0
	switch {
	case t.RSI > 70:
		points -= 5
	case t.RSI < 30:
		points += 5
	}
	switch t.MACDStatus {
	case models.MACDGoldenCross:
		points += 5
	case models.MACDDeadCross:
		points -= 5
	}
	switch t.MAPosition {
	case models.MAAbove:
		points += 3
	case models.MABelow:
		points -= 3
	}
	return (points + 13) / 26 * 10
}

// sortByScore orders descending with ticker as the deterministic tiebreak
func sortByScore(entries []*entry, score func(*entry) float64) {
	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := score(entries[i]), score(entries[j])
		if si != sj {
			return si > sj
		}
		return entries[i].st.Ticker < entries[j].st.Ticker
	})
}
