package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/kis"
	"github.com/ternarybob/specula/internal/models"
)

type fakeStreamStocks struct{ passing []models.FilteredStock }

func (s *fakeStreamStocks) UpsertStocks(context.Context, []models.FilteredStock) error { return nil }
func (s *fakeStreamStocks) GetStock(context.Context, string) (*models.FilteredStock, error) {
	return nil, common.ErrNotFound
}
func (s *fakeStreamStocks) ListPassing(context.Context) ([]models.FilteredStock, error) {
	return s.passing, nil
}
func (s *fakeStreamStocks) Search(context.Context, interfaces.StockFilter) ([]models.FilteredStock, error) {
	return nil, nil
}
func (s *fakeStreamStocks) LastUpdated(context.Context) (time.Time, error) {
	return time.Time{}, nil
}

type capturePrices struct{ rows []models.RealtimePrice }

func (p *capturePrices) UpsertPrices(_ context.Context, prices []models.RealtimePrice) error {
	p.rows = append(p.rows, prices...)
	return nil
}
func (p *capturePrices) GetPrice(context.Context, string) (*models.RealtimePrice, error) {
	return nil, common.ErrNotFound
}
func (p *capturePrices) GetFresh(context.Context, []string, time.Duration) ([]models.RealtimePrice, error) {
	return nil, nil
}

type fakeStream struct {
	connected []string
	ticks     []kis.Tick
}

func (s *fakeStream) Connect(_ context.Context, tickers []string) error {
	s.connected = tickers
	return nil
}
func (s *fakeStream) Run(_ context.Context, handler func(kis.Tick)) error {
	for _, t := range s.ticks {
		handler(t)
	}
	return nil
}
func (s *fakeStream) Close() error { return nil }

func TestStreamFeeder_SubscribesByTradingValue(t *testing.T) {
	stocks := &fakeStreamStocks{passing: []models.FilteredStock{
		{Ticker: "000001", TradingValue: 5},
		{Ticker: "000002", TradingValue: 50},
		{Ticker: "000003", TradingValue: 20},
	}}
	stream := &fakeStream{ticks: []kis.Tick{
		{Ticker: "000002", Price: 71000, ChangeRate: 1.2, Volume: 500},
		{Ticker: "000003", Price: 0}, // pre-open frame, never cached
	}}
	prices := &capturePrices{}

	feeder := NewStreamFeeder(stream, stocks, prices, arbor.NewLogger())
	require.NoError(t, feeder.Run(context.Background()))

	assert.Equal(t, []string{"000002", "000003", "000001"}, stream.connected)

	require.Len(t, prices.rows, 1)
	assert.Equal(t, "000002", prices.rows[0].Ticker)
	assert.Equal(t, 71000.0, prices.rows[0].CurrentPrice)
	assert.Equal(t, streamDataSource, prices.rows[0].DataSource)
}

func TestStreamFeeder_CapsSubscriptions(t *testing.T) {
	stocks := &fakeStreamStocks{}
	for i := 0; i < MaxStreamSubs+20; i++ {
		stocks.passing = append(stocks.passing, models.FilteredStock{
			Ticker: "0000" + string(rune('a'+i%26)), TradingValue: float64(i),
		})
	}
	stream := &fakeStream{}

	feeder := NewStreamFeeder(stream, stocks, &capturePrices{}, arbor.NewLogger())
	require.NoError(t, feeder.Run(context.Background()))
	assert.Len(t, stream.connected, MaxStreamSubs)
}
