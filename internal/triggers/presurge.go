package triggers

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
)

const (
	// preSurgeVolumeRatio is the realtime-vs-5-day-average gate
	preSurgeVolumeRatio = 3.0

	// preSurgeMaxChange caps |change rate| so already-moved names drop out
	preSurgeMaxChange = 3.0

	// preSurgeConfidenceScale saturates confidence at a 5x volume ratio
	preSurgeConfidenceScale = 5.0

	// preSurgeFreshness discards quotes older than this
	preSurgeFreshness = 5 * time.Minute

	// preSurgeHistoryDays covers 5 trading days with weekend slack
	preSurgeHistoryDays = 10

	preSurgeAvgBars = 5
)

// historySource provides daily bars for the volume baseline
type historySource interface {
	History(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error)
}

// PreSurgeScanner flags tickers whose realtime volume has already tripled
// the recent baseline while the price is still flat.
type PreSurgeScanner struct {
	history historySource
	stocks  interfaces.StockStorage
	prices  interfaces.PriceStorage
	logger  arbor.ILogger
}

// NewPreSurgeScanner creates a realtime pre-surge scanner
func NewPreSurgeScanner(history historySource, stocks interfaces.StockStorage, prices interfaces.PriceStorage, logger arbor.ILogger) *PreSurgeScanner {
	return &PreSurgeScanner{
		history: history,
		stocks:  stocks,
		prices:  prices,
		logger:  logger,
	}
}

// Scan evaluates every fresh quote against its 5-day average volume and
// returns the passing signals sorted by confidence. Per-ticker history
// failures are skipped, not fatal.
func (s *PreSurgeScanner) Scan(ctx context.Context) ([]models.PreSurgeSignal, error) {
	universe, err := s.stocks.ListPassing(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}

	tickers := make([]string, 0, len(universe))
	for _, st := range universe {
		tickers = append(tickers, st.Ticker)
	}

	fresh, err := s.prices.GetFresh(ctx, tickers, preSurgeFreshness)
	if err != nil {
		return nil, fmt.Errorf("failed to load realtime prices: %w", err)
	}

	now := time.Now()
	var signals []models.PreSurgeSignal
	for _, p := range fresh {
		if p.Volume == 0 || math.Abs(p.ChangeRate) > preSurgeMaxChange {
			continue
		}

		avg, err := s.averageVolume(ctx, p.Ticker, now)
		if err != nil {
			s.logger.Debug().Err(err).Str("ticker", p.Ticker).Msg("Volume baseline unavailable")
			continue
		}
		if avg == 0 {
			continue
		}

		ratio := float64(p.Volume) / avg
		if ratio < preSurgeVolumeRatio {
			continue
		}

		signals = append(signals, models.PreSurgeSignal{
			Ticker:      p.Ticker,
			VolumeRatio: ratio,
			ChangeRate:  p.ChangeRate,
			Confidence:  math.Min(ratio/preSurgeConfidenceScale, 1),
			DetectedAt:  now,
		})
	}

	sort.Slice(signals, func(i, j int) bool {
		return signals[i].Confidence > signals[j].Confidence
	})
	return signals, nil
}

// averageVolume returns the mean volume of the latest preSurgeAvgBars
// daily bars, excluding today's partial bar.
func (s *PreSurgeScanner) averageVolume(ctx context.Context, ticker string, now time.Time) (float64, error) {
	start := now.AddDate(0, 0, -preSurgeHistoryDays)
	bars, err := s.history.History(ctx, ticker, start, now.AddDate(0, 0, -1))
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if len(bars) > preSurgeAvgBars {
		bars = bars[len(bars)-preSurgeAvgBars:]
	}

	var sum int64
	for _, b := range bars {
		sum += b.Volume
	}
	return float64(sum) / float64(len(bars)), nil
}
