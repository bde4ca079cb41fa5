// Package marketdata is the unified gateway over the KIS and KRX vendors:
// daily snapshots, per-ticker history, venue indices, technicals, news,
// and the realtime cache read path.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/indicators"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/kis"
	"github.com/ternarybob/specula/internal/krx"
	"github.com/ternarybob/specula/internal/models"
	"github.com/ternarybob/specula/internal/poller"
)

const (
	// MaxSnapshotLookback bounds the empty-snapshot recursion
	MaxSnapshotLookback = 10

	// TechnicalsMinDays is the minimum history for real technicals;
	// shorter series get the neutral default.
	TechnicalsMinDays = 14

	// TechnicalsBatchSize bounds the parallel fan-out of technicalsBatch
	TechnicalsBatchSize = 50

	// technicalsLookbackDays is how far back history is pulled so SMA-60
	// and the MACD slow window have enough bars.
	technicalsLookbackDays = 130
)

// Service is the market data gateway
type Service struct {
	kis    *kis.Client
	krx    *krx.Client
	stocks interfaces.StockStorage
	prices interfaces.PriceStorage
	logger arbor.ILogger

	snapMu    sync.Mutex
	snapCache map[string]*models.MarketSnapshot
}

// NewService creates the gateway over both vendor clients and the store
// read paths.
func NewService(kisClient *kis.Client, krxClient *krx.Client, stocks interfaces.StockStorage, prices interfaces.PriceStorage, logger arbor.ILogger) *Service {
	return &Service{
		kis:       kisClient,
		krx:       krxClient,
		stocks:    stocks,
		prices:    prices,
		logger:    logger,
		snapCache: make(map[string]*models.MarketSnapshot),
	}
}

// Snapshot returns the whole-market table for date, recursing to earlier
// business days when the vendor returns an empty or mostly-zero table.
// Recursion is bounded by MaxSnapshotLookback.
func (s *Service) Snapshot(ctx context.Context, date time.Time) (*models.MarketSnapshot, error) {
	probe := date
	for i := 0; i <= MaxSnapshotLookback; i++ {
		if isWeekend(probe) {
			probe = probe.AddDate(0, 0, -1)
			continue
		}

		snap, err := s.fetchSnapshot(ctx, probe)
		if err != nil {
			return nil, err
		}
		if snapshotUsable(snap) {
			return snap, nil
		}

		s.logger.Debug().
			Str("date", probe.Format("2006-01-02")).
			Int("rows", len(snap.Rows)).
			Msg("Snapshot unusable, probing previous day")
		probe = probe.AddDate(0, 0, -1)
	}
	return nil, fmt.Errorf("no usable snapshot within %d days of %s: %w",
		MaxSnapshotLookback, date.Format("2006-01-02"), common.ErrDataUnavailable)
}

// fetchSnapshot pulls and merges both venues for one exact date
func (s *Service) fetchSnapshot(ctx context.Context, date time.Time) (*models.MarketSnapshot, error) {
	key := date.Format("20060102")

	s.snapMu.Lock()
	if cached, ok := s.snapCache[key]; ok {
		s.snapMu.Unlock()
		return cached, nil
	}
	s.snapMu.Unlock()

	snap := &models.MarketSnapshot{
		Date: date,
		Rows: make(map[string]models.SnapshotRow),
	}

	for _, market := range []string{krx.MarketKOSPI, krx.MarketKOSDAQ} {
		var rows []krx.SnapshotRow
		err := withRetry(ctx, s.logger, "krx snapshot", func() error {
			var err error
			rows, err = s.krx.GetSnapshot(ctx, key, market)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			snap.Rows[r.Ticker] = models.SnapshotRow{
				Ticker:       r.Ticker,
				Open:         r.Open,
				High:         r.High,
				Low:          r.Low,
				Close:        r.Close,
				Volume:       r.Volume,
				TradingValue: r.TradingValue,
				ChangeRate:   r.ChangeRate,
				MarketCap:    r.MarketCap,
				ListedShares: r.ListedShares,
			}
		}
	}

	s.snapMu.Lock()
	s.snapCache[key] = snap
	if len(s.snapCache) > 32 {
		// Drop an arbitrary old entry; the cache only needs the last few days
		for k := range s.snapCache {
			if k != key {
				delete(s.snapCache, k)
				break
			}
		}
	}
	s.snapMu.Unlock()
	return snap, nil
}

// snapshotUsable rejects empty tables and tables where more than 90% of
// closes are zero (the venue publishes placeholder rows on holidays).
func snapshotUsable(snap *models.MarketSnapshot) bool {
	if len(snap.Rows) == 0 {
		return false
	}
	zeros := 0
	for _, r := range snap.Rows {
		if r.Close == 0 {
			zeros++
		}
	}
	return float64(zeros)/float64(len(snap.Rows)) <= 0.9
}

// PreviousTradingDay returns the first date before `date` whose probe
// snapshot is non-empty with real closes, skipping weekends, within
// maxLookback days.
func (s *Service) PreviousTradingDay(ctx context.Context, date time.Time, maxLookback int) (time.Time, error) {
	if maxLookback <= 0 {
		maxLookback = MaxSnapshotLookback
	}

	probe := date.AddDate(0, 0, -1)
	for i := 0; i < maxLookback; i++ {
		if isWeekend(probe) {
			probe = probe.AddDate(0, 0, -1)
			continue
		}

		snap, err := s.fetchSnapshot(ctx, probe)
		if err != nil {
			return time.Time{}, err
		}
		if snapshotTraded(snap) {
			return probe, nil
		}
		probe = probe.AddDate(0, 0, -1)
	}
	return time.Time{}, fmt.Errorf("no trading day within %d days before %s: %w",
		maxLookback, date.Format("2006-01-02"), common.ErrDataUnavailable)
}

// snapshotTraded rejects holiday tables whose close-sum and volume-sum
// are both zero.
func snapshotTraded(snap *models.MarketSnapshot) bool {
	if len(snap.Rows) == 0 {
		return false
	}
	var closeSum float64
	var volSum int64
	for _, r := range snap.Rows {
		closeSum += r.Close
		volSum += r.Volume
	}
	return closeSum != 0 || volSum != 0
}

// History returns daily OHLCV bars for one ticker over [start, end],
// oldest first. KIS is the primary source; when it fails or its bar cap
// truncates the range, the KRX history screen fills in.
func (s *Service) History(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error) {
	bars, kisErr := s.kisHistory(ctx, ticker, start, end)
	if kisErr == nil && historyCovers(bars, start) {
		return bars, nil
	}
	if kisErr != nil {
		s.logger.Warn().Err(kisErr).Str("ticker", ticker).
			Msg("KIS history failed, falling back to KRX")
	}

	krxBars, krxErr := s.krxHistory(ctx, ticker, start, end)
	if krxErr != nil {
		if kisErr != nil {
			return nil, kisErr
		}
		// KIS answered short and KRX is down; serve what we have
		s.logger.Warn().Err(krxErr).Str("ticker", ticker).Msg("KRX history fallback failed")
		return bars, nil
	}
	if len(krxBars) > len(bars) {
		return krxBars, nil
	}
	return bars, nil
}

// historyCovers reports whether the oldest bar reaches the requested
// start, with slack for holidays at the range head
func historyCovers(bars []models.PriceBar, start time.Time) bool {
	return len(bars) > 0 && !bars[0].Date.After(start.AddDate(0, 0, 7))
}

func (s *Service) kisHistory(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error) {
	var raw []kis.DailyBar
	err := withRetry(ctx, s.logger, "kis daily bars", func() error {
		var err error
		raw, err = s.kis.GetDailyBars(ctx, ticker,
			start.Format("20060102"), end.Format("20060102"))
		return err
	})
	if err != nil {
		return nil, err
	}

	bars := make([]models.PriceBar, 0, len(raw))
	for _, b := range raw {
		d, err := time.Parse("20060102", b.Date)
		if err != nil {
			continue
		}
		bars = append(bars, models.PriceBar{
			Ticker: ticker,
			Date:   d,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}

	// Vendor returns newest first; callers want chronological order
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

func (s *Service) krxHistory(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error) {
	var raw []krx.HistoryBar
	err := withRetry(ctx, s.logger, "krx history", func() error {
		var err error
		raw, err = s.krx.GetHistory(ctx, krx.ShortIssueCode(ticker),
			start.Format("20060102"), end.Format("20060102"))
		return err
	})
	if err != nil {
		return nil, err
	}

	bars := make([]models.PriceBar, 0, len(raw))
	for _, b := range raw {
		d, err := time.Parse("20060102", b.Date)
		if err != nil {
			continue
		}
		bars = append(bars, models.PriceBar{
			Ticker: ticker,
			Date:   d,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// Index returns both venue indices with investor flow and breadth for one
// date. Monetary values in 100M KRW.
func (s *Service) Index(ctx context.Context, date time.Time) (*models.MarketIndex, error) {
	key := date.Format("20060102")
	idx := &models.MarketIndex{Date: date}

	kospi, err := s.fetchIndex(ctx, key, krx.MarketKOSPI)
	if err != nil {
		return nil, err
	}
	idx.KOSPIClose = kospi.Close
	idx.KOSPIChangeRate = kospi.ChangeRate
	idx.KOSPIChangePoints = kospi.ChangePoints
	idx.KOSPITradingValue = kospi.TradingValue / 1e8

	kosdaq, err := s.fetchIndex(ctx, key, krx.MarketKOSDAQ)
	if err != nil {
		return nil, err
	}
	idx.KOSDAQClose = kosdaq.Close
	idx.KOSDAQChangeRate = kosdaq.ChangeRate
	idx.KOSDAQChangePoints = kosdaq.ChangePoints
	idx.KOSDAQTradingValue = kosdaq.TradingValue / 1e8

	for market, dst := range map[string]*models.InvestorFlow{
		krx.MarketKOSPI:  &idx.KOSPIFlow,
		krx.MarketKOSDAQ: &idx.KOSDAQFlow,
	} {
		var flow *krx.InvestorFlow
		err := withRetry(ctx, s.logger, "krx investor flow", func() error {
			var err error
			flow, err = s.krx.GetInvestorFlow(ctx, key, market)
			return err
		})
		if err != nil {
			return nil, err
		}
		dst.Foreign = flow.Foreign / 1e8
		dst.Institution = flow.Institution / 1e8
		dst.Individual = flow.Individual / 1e8
	}

	// Breadth from the daily snapshot's change rates
	snap, err := s.Snapshot(ctx, date)
	if err == nil {
		for _, r := range snap.Rows {
			switch {
			case r.ChangeRate > 0:
				idx.Advancing++
			case r.ChangeRate < 0:
				idx.Declining++
			default:
				idx.Unchanged++
			}
		}
	}

	return idx, nil
}

func (s *Service) fetchIndex(ctx context.Context, dateKey, market string) (*krx.IndexRow, error) {
	var row *krx.IndexRow
	err := withRetry(ctx, s.logger, "krx index", func() error {
		var err error
		row, err = s.krx.GetIndex(ctx, dateKey, market)
		return err
	})
	return row, err
}

// Fundamentals returns the static valuation row for one ticker from the
// filtered universe.
func (s *Service) Fundamentals(ctx context.Context, ticker string) (*models.FilteredStock, error) {
	return s.stocks.GetStock(ctx, ticker)
}

// Technicals computes the indicator snapshot as of date. Fewer than
// TechnicalsMinDays of history yields the documented neutral default.
func (s *Service) Technicals(ctx context.Context, ticker string, date time.Time) (models.Technicals, error) {
	bars, err := s.History(ctx, ticker, date.AddDate(0, 0, -technicalsLookbackDays), date)
	if err != nil {
		return models.NeutralTechnicals(ticker), err
	}
	if len(bars) < TechnicalsMinDays {
		return models.NeutralTechnicals(ticker), nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	macd := indicators.MACD(closes)
	sma20 := indicators.SMA(closes, 20)
	latest := closes[len(closes)-1]

	return models.Technicals{
		Ticker:     ticker,
		RSI:        indicators.RSI(closes, indicators.RSIPeriod),
		MACD:       macd.MACD,
		MACDSignal: macd.Signal,
		MACDStatus: models.MACDStatus(macd.CrossStatus()),
		SMA5:       indicators.SMA(closes, 5),
		SMA20:      sma20,
		SMA60:      indicators.SMA(closes, 60),
		MAPosition: indicators.MAPosition(latest, sma20),
	}, nil
}

// TechnicalsBatch computes technicals for many tickers with bounded
// fan-out. Per-ticker failures degrade to the neutral default so one bad
// ticker cannot sink the batch.
func (s *Service) TechnicalsBatch(ctx context.Context, tickers []string, date time.Time) (map[string]models.Technicals, error) {
	out := make(map[string]models.Technicals, len(tickers))
	var mu sync.Mutex

	for start := 0; start < len(tickers); start += TechnicalsBatchSize {
		end := start + TechnicalsBatchSize
		if end > len(tickers) {
			end = len(tickers)
		}

		var wg sync.WaitGroup
		for _, ticker := range tickers[start:end] {
			wg.Add(1)
			go func(t string) {
				defer wg.Done()
				tech, err := s.Technicals(ctx, t, date)
				if err != nil {
					s.logger.Warn().Str("ticker", t).Err(err).Msg("Technicals failed, using neutral")
					tech = models.NeutralTechnicals(t)
				}
				mu.Lock()
				out[t] = tech
				mu.Unlock()
			}(ticker)
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return out, err
		}
	}
	return out, nil
}

// ATR returns the average true range as of date, nil when fewer than
// period+1 bars exist.
func (s *Service) ATR(ctx context.Context, ticker string, date time.Time, period int) (*float64, error) {
	if period <= 0 {
		period = indicators.ATRPeriod
	}

	bars, err := s.History(ctx, ticker, date.AddDate(0, 0, -(period*3)), date)
	if err != nil {
		return nil, err
	}
	if len(bars) > period+1 {
		bars = bars[len(bars)-(period+1):]
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}

	atr, ok := indicators.ATR(highs, lows, closes, period)
	if !ok {
		return nil, nil
	}
	return &atr, nil
}

// RealtimeOne returns the live quote for one ticker. The poller's cache
// is the primary source; on a cache miss the vendor is asked directly,
// and failing that the latest daily snapshot close is served so the
// endpoint still answers outside polling hours.
func (s *Service) RealtimeOne(ctx context.Context, ticker string) (*models.RealtimePrice, error) {
	price, err := s.prices.GetPrice(ctx, ticker)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	if quote, qerr := s.kis.GetQuote(ctx, ticker); qerr == nil && quote.Price > 0 {
		return &models.RealtimePrice{
			Ticker:       ticker,
			CurrentPrice: quote.Price,
			ChangeRate:   quote.ChangeRate,
			ChangeAmount: quote.ChangeAmount,
			Volume:       quote.Volume,
			Open:         quote.Open,
			High:         quote.High,
			Low:          quote.Low,
			TradingValue: quote.TradingValue,
			MarketStatus: poller.ResolvePhase(time.Now()).MarketStatus(),
			DataSource:   "kis",
			UpdatedAt:    time.Now(),
		}, nil
	} else if qerr != nil {
		s.logger.Warn().Err(qerr).Str("ticker", ticker).
			Msg("Vendor quote fallback failed, trying snapshot")
	}

	snap, err := s.Snapshot(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	row, ok := snap.Rows[ticker]
	if !ok || row.Close <= 0 {
		return nil, common.ErrNotFound
	}
	return &models.RealtimePrice{
		Ticker:       ticker,
		CurrentPrice: row.Close,
		ChangeRate:   row.ChangeRate,
		Volume:       row.Volume,
		Open:         row.Open,
		High:         row.High,
		Low:          row.Low,
		TradingValue: row.TradingValue,
		MarketStatus: models.MarketClosed,
		DataSource:   "krx_snapshot",
		UpdatedAt:    snap.Date,
	}, nil
}

// RealtimeBulk returns cached quotes younger than maxAge; stale tickers
// are silently omitted and the caller falls back.
func (s *Service) RealtimeBulk(ctx context.Context, tickers []string, maxAge time.Duration) ([]models.RealtimePrice, error) {
	return s.prices.GetFresh(ctx, tickers, maxAge)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
