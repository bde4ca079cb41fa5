package models

import (
	"fmt"
	"strings"
	"time"
)

// Market identifies the listing venue
type Market string

const (
	MarketKOSPI  Market = "KOSPI"
	MarketKOSDAQ Market = "KOSDAQ"
	MarketOther  Market = "OTHER"
)

// FilterStatus is the static fundamental/liquidity gate result computed by
// the financial batch. Only "pass" participates in triggers and the ranker.
type FilterStatus string

const (
	FilterPass    FilterStatus = "pass"
	FilterFail    FilterStatus = "fail"
	FilterUnknown FilterStatus = "unknown"
)

// MarketStatus is the realtime quote session state
type MarketStatus string

const (
	MarketPreOpen    MarketStatus = "pre_market"
	MarketOpen       MarketStatus = "open"
	MarketClosed     MarketStatus = "closed"
	MarketAfterHours MarketStatus = "after_hours"
)

// NormalizeTicker zero-pads a numeric ticker to the 6-character KRX form
func NormalizeTicker(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" || len(t) > 6 {
		return "", fmt.Errorf("invalid ticker %q", s)
	}
	for _, r := range t {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid ticker %q", s)
		}
	}
	return strings.Repeat("0", 6-len(t)) + t, nil
}

// FilteredStock is a filtered-universe row. Produced by the financial batch;
// read-only to the rest of the pipeline. Monetary sizes in 100M KRW.
type FilteredStock struct {
	Ticker          string       `json:"ticker"`
	Name            string       `json:"name"`
	Market          Market       `json:"market"`
	BPS             float64      `json:"bps"`
	PER             float64      `json:"per"`
	PBR             float64      `json:"pbr"`
	EPS             float64      `json:"eps"`
	DIV             float64      `json:"div"`
	DPS             float64      `json:"dps"`
	ROE             float64      `json:"roe"`
	DebtRatio       float64      `json:"debt_ratio"`     // [%]
	RevenueGrowth   float64      `json:"revenue_growth"` // YoY [%]
	MarketCap       float64      `json:"market_cap"`     // [100M KRW]
	TradingValue    float64      `json:"trading_value"`  // [100M KRW]
	FilterStatus    FilterStatus `json:"filter_status"`
	LastFilterCheck time.Time    `json:"last_filter_check"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// RealtimePrice is the hot per-ticker quote maintained by the poller.
// Rows with CurrentPrice == 0 are never served as live quotes.
type RealtimePrice struct {
	Ticker       string       `json:"ticker"`
	CurrentPrice float64      `json:"current_price"`
	ChangeRate   float64      `json:"change_rate"` // [%]
	ChangeAmount float64      `json:"change_amount"`
	Volume       int64        `json:"volume"`
	Open         float64      `json:"open"`
	High         float64      `json:"high"`
	Low          float64      `json:"low"`
	TradingValue float64      `json:"trading_value"`
	MarketStatus MarketStatus `json:"market_status"`
	DataSource   string       `json:"data_source"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Age returns how stale the quote is relative to now
func (p *RealtimePrice) Age(now time.Time) time.Duration {
	return now.Sub(p.UpdatedAt)
}

// PriceBar is one daily OHLCV bar, immutable once observed
type PriceBar struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// SnapshotRow is a per-ticker row of the whole-market daily snapshot
type SnapshotRow struct {
	Ticker       string  `json:"ticker"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	Volume       int64   `json:"volume"`
	TradingValue float64 `json:"trading_value"`
	ChangeRate   float64 `json:"change_rate"` // [%]
	MarketCap    float64 `json:"market_cap"`
	ListedShares int64   `json:"listed_shares"`
}

// MarketSnapshot is the whole market at one date, keyed by ticker
type MarketSnapshot struct {
	Date time.Time              `json:"date"`
	Rows map[string]SnapshotRow `json:"rows"`
}

// InvestorFlow is net buying by one investor class on one venue [100M KRW]
type InvestorFlow struct {
	Foreign     float64 `json:"foreign"`
	Institution float64 `json:"institution"`
	Individual  float64 `json:"individual"`
}

// MarketIndex holds both venue indices plus flow and breadth for one date
type MarketIndex struct {
	Date               time.Time    `json:"date"`
	KOSPIClose         float64      `json:"kospi_close"`
	KOSPIChangeRate    float64      `json:"kospi_change_rate"` // [%]
	KOSPIChangePoints  float64      `json:"kospi_change_points"`
	KOSDAQClose        float64      `json:"kosdaq_close"`
	KOSDAQChangeRate   float64      `json:"kosdaq_change_rate"`
	KOSDAQChangePoints float64      `json:"kosdaq_change_points"`
	KOSPITradingValue  float64      `json:"kospi_trading_value"`  // [100M KRW]
	KOSDAQTradingValue float64      `json:"kosdaq_trading_value"` // [100M KRW]
	KOSPIFlow          InvestorFlow `json:"kospi_flow"`
	KOSDAQFlow         InvestorFlow `json:"kosdaq_flow"`
	Advancing          int          `json:"advancing"`
	Declining          int          `json:"declining"`
	Unchanged          int          `json:"unchanged"`
}

// NewsItem is one crawled headline, newest-first in gateway results
type NewsItem struct {
	Ticker      string    `json:"ticker"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// MACDStatus is decided on the sign flip of the prior histogram vs the latest
type MACDStatus string

const (
	MACDGoldenCross MACDStatus = "golden_cross"
	MACDDeadCross   MACDStatus = "dead_cross"
	MACDNeutral     MACDStatus = "neutral"
)

// MA position labels relative to the ±2% band around SMA-20
const (
	MAAbove   = "상회"
	MABelow   = "하회"
	MANeutral = "중립"
)

// Technicals bundles the per-ticker indicator snapshot used by the ranker
// and the analysis engine. NeutralTechnicals is the documented default when
// fewer than 14 days of history exist.
type Technicals struct {
	Ticker     string     `json:"ticker"`
	RSI        float64    `json:"rsi"`
	MACD       float64    `json:"macd"`
	MACDSignal float64    `json:"macd_signal"`
	MACDStatus MACDStatus `json:"macd_status"`
	SMA5       float64    `json:"sma_5"`
	SMA20      float64    `json:"sma_20"`
	SMA60      float64    `json:"sma_60"`
	MAPosition string     `json:"ma_position"`
}

// NeutralTechnicals returns the insufficient-history default
func NeutralTechnicals(ticker string) Technicals {
	return Technicals{
		Ticker:     ticker,
		RSI:        50,
		MACDStatus: MACDNeutral,
		MAPosition: MANeutral,
	}
}
