package poller

import (
	"context"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/kis"
	"github.com/ternarybob/specula/internal/models"
)

// MaxStreamSubs caps websocket subscriptions per connection (vendor
// limit: 41 registrations).
const MaxStreamSubs = 40

// streamDataSource tags rows written by the websocket feeder
const streamDataSource = "kis_ws"

// tickStream is the websocket surface the feeder drives
type tickStream interface {
	Connect(ctx context.Context, tickers []string) error
	Run(ctx context.Context, handler func(kis.Tick)) error
	Close() error
}

// StreamFeeder pushes websocket ticks into the realtime cache for the
// highest-value passing tickers. It is a secondary path next to the REST
// poller, which stays the source of record for full-universe coverage.
type StreamFeeder struct {
	stream tickStream
	stocks interfaces.StockStorage
	prices interfaces.PriceStorage
	logger arbor.ILogger
}

// NewStreamFeeder creates a feeder over the websocket client and stores
func NewStreamFeeder(stream tickStream, stocks interfaces.StockStorage, prices interfaces.PriceStorage, logger arbor.ILogger) *StreamFeeder {
	return &StreamFeeder{
		stream: stream,
		stocks: stocks,
		prices: prices,
		logger: logger,
	}
}

// Run subscribes to the top passing tickers and pipes ticks into the
// cache until the context ends or the connection drops.
func (f *StreamFeeder) Run(ctx context.Context) error {
	tickers, err := f.subscriptionSet(ctx)
	if err != nil {
		return err
	}
	if len(tickers) == 0 {
		f.logger.Info().Msg("No passing tickers, websocket feeder idle")
		return nil
	}

	if err := f.stream.Connect(ctx, tickers); err != nil {
		return err
	}
	defer f.stream.Close()

	return f.stream.Run(ctx, func(tick kis.Tick) { f.apply(ctx, tick) })
}

// subscriptionSet picks the passing tickers with the largest trading
// value, capped at the vendor subscription limit
func (f *StreamFeeder) subscriptionSet(ctx context.Context) ([]string, error) {
	passing, err := f.stocks.ListPassing(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(passing, func(i, j int) bool {
		return passing[i].TradingValue > passing[j].TradingValue
	})
	if len(passing) > MaxStreamSubs {
		passing = passing[:MaxStreamSubs]
	}

	tickers := make([]string, 0, len(passing))
	for _, st := range passing {
		tickers = append(tickers, st.Ticker)
	}
	return tickers, nil
}

func (f *StreamFeeder) apply(ctx context.Context, tick kis.Tick) {
	if tick.Price <= 0 {
		return
	}
	now := time.Now()
	price := models.RealtimePrice{
		Ticker:       tick.Ticker,
		CurrentPrice: tick.Price,
		ChangeRate:   tick.ChangeRate,
		Volume:       tick.Volume,
		MarketStatus: ResolvePhase(now).MarketStatus(),
		DataSource:   streamDataSource,
		UpdatedAt:    now,
	}
	if err := f.prices.UpsertPrices(ctx, []models.RealtimePrice{price}); err != nil {
		f.logger.Warn().Err(err).Str("ticker", tick.Ticker).Msg("Tick upsert failed")
	}
}
