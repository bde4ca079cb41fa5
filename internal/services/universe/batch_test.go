package universe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/krx"
	"github.com/ternarybob/specula/internal/models"
)

var batchDate = time.Date(2026, 8, 24, 0, 0, 0, 0, time.Local)

type fakeMarket struct {
	snap *models.MarketSnapshot
}

func (m *fakeMarket) Snapshot(context.Context, time.Time) (*models.MarketSnapshot, error) {
	return m.snap, nil
}

type fakeValuations struct {
	byMarket map[string][]krx.ValuationRow
}

func (v *fakeValuations) GetValuations(_ context.Context, _ string, market string) ([]krx.ValuationRow, error) {
	return v.byMarket[market], nil
}

type fakeStocks struct {
	upserted []models.FilteredStock
}

func (s *fakeStocks) UpsertStocks(_ context.Context, stocks []models.FilteredStock) error {
	s.upserted = stocks
	return nil
}

func (s *fakeStocks) GetStock(context.Context, string) (*models.FilteredStock, error) {
	return nil, common.ErrNotFound
}

func (s *fakeStocks) ListPassing(context.Context) ([]models.FilteredStock, error) { return nil, nil }

func (s *fakeStocks) Search(context.Context, interfaces.StockFilter) ([]models.FilteredStock, error) {
	return nil, nil
}

func (s *fakeStocks) LastUpdated(context.Context) (time.Time, error) { return time.Time{}, nil }

func (s *fakeStocks) find(t *testing.T, ticker string) models.FilteredStock {
	t.Helper()
	for _, st := range s.upserted {
		if st.Ticker == ticker {
			return st
		}
	}
	t.Fatalf("ticker %s not upserted", ticker)
	return models.FilteredStock{}
}

// row builds a snapshot row that clears the absolute gates unless
// overridden by the caller.
func row(ticker string, volume int64, tradingValue, marketCap float64) models.SnapshotRow {
	return models.SnapshotRow{
		Ticker:       ticker,
		Close:        10000,
		Volume:       volume,
		TradingValue: tradingValue,
		MarketCap:    marketCap,
	}
}

func testSnapshot() *models.MarketSnapshot {
	return &models.MarketSnapshot{
		Date: batchDate,
		Rows: map[string]models.SnapshotRow{
			// mean volume over four rows is 500_000
			"005930": row("005930", 1_500_000, 2e12, 4e14), // passes everything
			"000660": row("000660", 400_000, 3e8, 9e13),    // trading value below 5e8
			"035720": row("035720", 50_000, 8e8, 2e13),     // volume below 20% of mean
			"900001": row("900001", 50_000, 6e8, 8e10),     // no valuation row
		},
	}
}

func testValuations() *fakeValuations {
	return &fakeValuations{byMarket: map[string][]krx.ValuationRow{
		krx.MarketKOSPI: {
			{Ticker: "005930", Name: "삼성전자", EPS: 5500, PER: 12.9, BPS: 55000, PBR: 1.29, DPS: 1444, DIV: 2.0},
			{Ticker: "000660", Name: "SK하이닉스", EPS: 21000, PER: 9.3, BPS: 105000, PBR: 1.86},
		},
		krx.MarketKOSDAQ: {
			{Ticker: "035720", Name: "카카오", EPS: 800, PER: 48.1, BPS: 26000, PBR: 1.48},
		},
	}}
}

func newTestBatch(snap *models.MarketSnapshot) (*Batch, *fakeStocks) {
	stocks := &fakeStocks{}
	b := NewBatch(&fakeMarket{snap: snap}, testValuations(), stocks, arbor.NewLogger())
	return b, stocks
}

func TestRefresh_FilterStatuses(t *testing.T) {
	b, stocks := newTestBatch(testSnapshot())

	passed, err := b.Refresh(context.Background(), batchDate)
	require.NoError(t, err)
	assert.Equal(t, 1, passed)
	require.Len(t, stocks.upserted, 4)

	assert.Equal(t, models.FilterPass, stocks.find(t, "005930").FilterStatus)
	assert.Equal(t, models.FilterFail, stocks.find(t, "000660").FilterStatus)
	assert.Equal(t, models.FilterFail, stocks.find(t, "035720").FilterStatus)
	// No valuation row means the gates cannot be trusted for it
	assert.Equal(t, models.FilterUnknown, stocks.find(t, "900001").FilterStatus)
}

func TestRefresh_UnitsAndValuation(t *testing.T) {
	b, stocks := newTestBatch(testSnapshot())

	_, err := b.Refresh(context.Background(), batchDate)
	require.NoError(t, err)

	samsung := stocks.find(t, "005930")
	assert.Equal(t, "삼성전자", samsung.Name)
	assert.Equal(t, models.MarketKOSPI, samsung.Market)
	// 2e12 KRW trading value and 4e14 KRW cap, stored in 100M-KRW units
	assert.Equal(t, 20000.0, samsung.TradingValue)
	assert.Equal(t, 4_000_000.0, samsung.MarketCap)
	assert.Equal(t, 12.9, samsung.PER)
	assert.InDelta(t, 10.0, samsung.ROE, 1e-9) // 5500/55000*100

	kakao := stocks.find(t, "035720")
	assert.Equal(t, models.MarketKOSDAQ, kakao.Market)

	// Snapshot-only tickers keep their ticker as a placeholder name
	unknown := stocks.find(t, "900001")
	assert.Equal(t, "900001", unknown.Name)
	assert.Equal(t, models.MarketOther, unknown.Market)
}

func TestMarketMeanVolume(t *testing.T) {
	assert.Equal(t, 0.0, marketMeanVolume(&models.MarketSnapshot{}))
	snap := testSnapshot()
	assert.Equal(t, 500_000.0, marketMeanVolume(snap))
}
