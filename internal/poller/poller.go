// Package poller keeps the realtime quote cache warm for every passing
// ticker, batching vendor multi-quote calls under the 2 req/s budget
// across the intraday session phases.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/kis"
	"github.com/ternarybob/specula/internal/models"
)

const (
	// defaultBatchDelay spaces vendor batches so two calls land per second
	defaultBatchDelay = 500 * time.Millisecond

	// batchRetries bounds per-batch retry on transport/429 failures
	batchRetries = 3

	// dataSource tags rows written by this poller
	dataSource = "kis_rest"
)

// quoteClient is the vendor surface the poller drives
type quoteClient interface {
	GetQuotes(ctx context.Context, tickers []string) ([]kis.Quote, error)
}

// Status is the poller's health snapshot
type Status struct {
	Running      bool      `json:"running"`
	Phase        Phase     `json:"phase"`
	UniverseSize int       `json:"universe_size"`
	LastCycleAt  time.Time `json:"last_cycle_at,omitempty"`
	LastCycleOK  int       `json:"last_cycle_ok"`
	ErrorCount   int64     `json:"error_count"`
}

// Poller is the realtime polling loop
type Poller struct {
	client     quoteClient
	stocks     interfaces.StockStorage
	prices     interfaces.PriceStorage
	batchSize  int
	batchDelay time.Duration
	logger     arbor.ILogger

	stop    atomic.Bool
	running atomic.Bool

	mu          sync.RWMutex
	universe    []models.FilteredStock
	lastCycleAt time.Time
	lastCycleOK int
	errorCount  atomic.Int64
}

// New creates a poller over the vendor client and store. A zero
// batchDelay takes the default 500ms spacing.
func New(client quoteClient, stocks interfaces.StockStorage, prices interfaces.PriceStorage, batchSize int, batchDelay time.Duration, logger arbor.ILogger) *Poller {
	if batchSize <= 0 || batchSize > kis.MaxMultiQuote {
		batchSize = kis.MaxMultiQuote
	}
	if batchDelay <= 0 {
		batchDelay = defaultBatchDelay
	}
	return &Poller{
		client:     client,
		stocks:     stocks,
		prices:     prices,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		logger:     logger,
	}
}

// Run drives the polling loop until Stop or context cancellation. The
// loop never crashes on vendor failures; they count toward ErrorCount
// and the loop moves to the next batch.
func (p *Poller) Run(ctx context.Context) error {
	p.running.Store(true)
	defer p.running.Store(false)

	p.logger.Info().Msg("Realtime poller started")

	if err := p.refreshUniverse(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("Initial universe load failed")
	}

	for !p.stop.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}

		phase := ResolvePhase(time.Now())
		if phase == PhaseClosed {
			if err := p.sleepUntilPrep(ctx); err != nil {
				return err
			}
			if err := p.refreshUniverse(ctx); err != nil {
				p.logger.Warn().Err(err).Msg("Universe refresh failed")
			}
			continue
		}

		p.runCycle(ctx, phase)
	}

	p.logger.Info().Msg("Realtime poller stopped")
	return nil
}

// Stop requests a graceful exit at the next batch boundary
func (p *Poller) Stop() {
	p.stop.Store(true)
}

// Status reports the loop's health for the health endpoint
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Status{
		Running:      p.running.Load(),
		Phase:        ResolvePhase(time.Now()),
		UniverseSize: len(p.universe),
		LastCycleAt:  p.lastCycleAt,
		LastCycleOK:  p.lastCycleOK,
		ErrorCount:   p.errorCount.Load(),
	}
}

// refreshUniverse reloads the passing tickers from the store
func (p *Poller) refreshUniverse(ctx context.Context) error {
	stocks, err := p.stocks.ListPassing(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.universe = stocks
	p.mu.Unlock()

	p.logger.Info().Int("tickers", len(stocks)).Msg("Polling universe refreshed")
	return nil
}

// runCycle polls the whole universe once in vendor-capped batches
func (p *Poller) runCycle(ctx context.Context, phase Phase) {
	p.mu.RLock()
	universe := p.universe
	p.mu.RUnlock()

	if len(universe) == 0 {
		select {
		case <-time.After(10 * time.Second):
		case <-ctx.Done():
		}
		return
	}

	ok := 0
	for start := 0; start < len(universe); start += p.batchSize {
		if p.stop.Load() || ctx.Err() != nil {
			break
		}

		end := start + p.batchSize
		if end > len(universe) {
			end = len(universe)
		}

		tickers := make([]string, 0, end-start)
		for _, st := range universe[start:end] {
			tickers = append(tickers, st.Ticker)
		}

		if err := p.pollBatch(ctx, tickers, phase); err != nil {
			p.errorCount.Add(1)
			p.logger.Warn().Err(err).Int("batch_start", start).Msg("Batch poll failed")
		} else {
			ok += len(tickers)
		}

		select {
		case <-time.After(p.batchDelay):
		case <-ctx.Done():
		}
	}

	p.mu.Lock()
	p.lastCycleAt = time.Now()
	p.lastCycleOK = ok
	p.mu.Unlock()
}

// pollBatch fetches one multi-quote batch with bounded retry and upserts
func (p *Poller) pollBatch(ctx context.Context, tickers []string, phase Phase) error {
	var quotes []kis.Quote
	var err error

	for attempt := 0; attempt < batchRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		quotes, err = p.client.GetQuotes(ctx, tickers)
		if err == nil {
			break
		}

		var rateErr *kis.RateLimitError
		if !errors.As(err, &rateErr) && attempt > 0 {
			// Non-throttle errors get one retry, not the full budget
			break
		}
	}
	if err != nil {
		return err
	}

	prices := make([]models.RealtimePrice, 0, len(quotes))
	now := time.Now()
	for _, q := range quotes {
		prices = append(prices, remapQuote(q, phase, now))
	}
	return p.prices.UpsertPrices(ctx, prices)
}

// remapQuote converts a vendor quote into the persisted row. During call
// auctions only expected values are live, so current/change/volume are
// rebuilt from them; expected-only fields never reach the schema.
func remapQuote(q kis.Quote, phase Phase, now time.Time) models.RealtimePrice {
	price := models.RealtimePrice{
		Ticker:       q.Ticker,
		CurrentPrice: q.Price,
		ChangeRate:   q.ChangeRate,
		ChangeAmount: q.ChangeAmount,
		Volume:       q.Volume,
		Open:         q.Open,
		High:         q.High,
		Low:          q.Low,
		TradingValue: q.TradingValue,
		MarketStatus: phase.MarketStatus(),
		DataSource:   dataSource,
		UpdatedAt:    now,
	}

	if phase.IsAuction() {
		price.CurrentPrice = q.PrevClose + q.ExpectedDiff
		price.ChangeRate = q.ExpectedChangeRate
		price.ChangeAmount = q.ExpectedDiff
		price.Volume = q.ExpectedVolume
	}
	return price
}

// sleepUntilPrep blocks until the next 07:30 or until stop/cancel
func (p *Poller) sleepUntilPrep(ctx context.Context) error {
	next := NextPrepStart(time.Now())
	p.logger.Info().Str("next", next.Format(time.RFC3339)).Msg("Market closed, sleeping until prep")

	for {
		if p.stop.Load() {
			return nil
		}
		remaining := time.Until(next)
		if remaining <= 0 {
			return nil
		}

		// Wake periodically so Stop is observed promptly
		interval := remaining
		if interval > 30*time.Second {
			interval = 30 * time.Second
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
