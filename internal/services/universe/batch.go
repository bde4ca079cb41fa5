// Package universe refreshes the filtered-universe table: the daily
// financial batch joins the whole-market snapshot with per-stock
// valuations and applies the absolute liquidity and size filters.
package universe

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/krx"
	"github.com/ternarybob/specula/internal/models"
)

// Absolute filter thresholds, all on raw KRW snapshot values
const (
	// MinTradingValue gates daily liquidity
	MinTradingValue = 5e8

	// MinMarketCap gates issue size
	MinMarketCap = 5e10

	// MeanVolumeShare is the floor relative to the market mean volume
	MeanVolumeShare = 0.20
)

// hundredMillion converts raw KRW to the stored 100M-KRW unit
const hundredMillion = 1e8

// snapshotSource provides the whole-market daily snapshot
type snapshotSource interface {
	Snapshot(ctx context.Context, date time.Time) (*models.MarketSnapshot, error)
}

// valuationSource provides per-stock valuation metrics per venue
type valuationSource interface {
	GetValuations(ctx context.Context, date, market string) ([]krx.ValuationRow, error)
}

// Batch is the daily financial-universe refresh job
type Batch struct {
	market     snapshotSource
	valuations valuationSource
	stocks     interfaces.StockStorage
	logger     arbor.ILogger
}

// NewBatch creates the financial batch job
func NewBatch(market snapshotSource, valuations valuationSource, stocks interfaces.StockStorage, logger arbor.ILogger) *Batch {
	return &Batch{
		market:     market,
		valuations: valuations,
		stocks:     stocks,
		logger:     logger,
	}
}

// venueValuation tags a valuation row with its listing venue
type venueValuation struct {
	row    krx.ValuationRow
	market models.Market
}

// Refresh rebuilds the filtered universe for the given date and returns
// the number of tickers that passed the filters.
func (b *Batch) Refresh(ctx context.Context, date time.Time) (int, error) {
	snap, err := b.market.Snapshot(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("failed to load snapshot: %w", err)
	}

	valuations, err := b.loadValuations(ctx, snap.Date)
	if err != nil {
		return 0, err
	}

	meanVolume := marketMeanVolume(snap)
	now := time.Now()

	stocks := make([]models.FilteredStock, 0, len(snap.Rows))
	passed := 0
	for ticker, row := range snap.Rows {
		st := models.FilteredStock{
			Ticker:          ticker,
			Name:            ticker,
			Market:          models.MarketOther,
			MarketCap:       row.MarketCap / hundredMillion,
			TradingValue:    row.TradingValue / hundredMillion,
			FilterStatus:    models.FilterUnknown,
			LastFilterCheck: now,
			UpdatedAt:       now,
		}

		if v, ok := valuations[ticker]; ok {
			st.Name = v.row.Name
			st.Market = v.market
			st.BPS = v.row.BPS
			st.PER = v.row.PER
			st.PBR = v.row.PBR
			st.EPS = v.row.EPS
			st.DIV = v.row.DIV
			st.DPS = v.row.DPS
			if v.row.BPS > 0 {
				// ROE approximated from the valuation screen
				st.ROE = v.row.EPS / v.row.BPS * 100
			}
			st.FilterStatus = filterStatus(row, meanVolume)
		}

		if st.FilterStatus == models.FilterPass {
			passed++
		}
		stocks = append(stocks, st)
	}

	if err := b.stocks.UpsertStocks(ctx, stocks); err != nil {
		return 0, fmt.Errorf("failed to store universe: %w", err)
	}

	b.logger.Info().
		Str("date", snap.Date.Format("2006-01-02")).
		Int("total", len(stocks)).
		Int("passed", passed).
		Msg("Filtered universe refreshed")
	return passed, nil
}

// loadValuations merges both venues' valuation screens keyed by ticker
func (b *Batch) loadValuations(ctx context.Context, date time.Time) (map[string]venueValuation, error) {
	dateKey := date.Format("20060102")
	merged := make(map[string]venueValuation)

	for market, venue := range map[string]models.Market{
		krx.MarketKOSPI:  models.MarketKOSPI,
		krx.MarketKOSDAQ: models.MarketKOSDAQ,
	} {
		rows, err := b.valuations.GetValuations(ctx, dateKey, market)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s valuations: %w", venue, err)
		}
		for _, row := range rows {
			merged[row.Ticker] = venueValuation{row: row, market: venue}
		}
	}
	return merged, nil
}

// marketMeanVolume is the mean traded volume over all snapshot rows
func marketMeanVolume(snap *models.MarketSnapshot) float64 {
	if len(snap.Rows) == 0 {
		return 0
	}
	var sum int64
	for _, row := range snap.Rows {
		sum += row.Volume
	}
	return float64(sum) / float64(len(snap.Rows))
}

// filterStatus applies the absolute liquidity and size gates
func filterStatus(row models.SnapshotRow, meanVolume float64) models.FilterStatus {
	if row.TradingValue >= MinTradingValue &&
		row.MarketCap >= MinMarketCap &&
		float64(row.Volume) >= MeanVolumeShare*meanVolume {
		return models.FilterPass
	}
	return models.FilterFail
}
