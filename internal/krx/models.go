package krx

import (
	"strconv"
	"strings"
)

// numStr is a KRX numeric field: thousands-separated, sometimes "-" for
// missing, always a string on the wire.
type numStr string

func (n numStr) Float() float64 {
	s := strings.ReplaceAll(strings.TrimSpace(string(n)), ",", "")
	if s == "" || s == "-" {
		return 0
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func (n numStr) Int() int64 {
	return int64(n.Float())
}

type snapshotResponse struct {
	Block []snapshotRow `json:"OutBlock_1"`
}

type snapshotRow struct {
	Ticker       string `json:"ISU_SRT_CD"`
	Name         string `json:"ISU_ABBRV"`
	Close        numStr `json:"TDD_CLSPRC"`
	ChangeRate   numStr `json:"FLUC_RT"`
	Open         numStr `json:"TDD_OPNPRC"`
	High         numStr `json:"TDD_HGPRC"`
	Low          numStr `json:"TDD_LWPRC"`
	Volume       numStr `json:"ACC_TRDVOL"`
	TradingValue numStr `json:"ACC_TRDVAL"`
	MarketCap    numStr `json:"MKTCAP"`
	ListedShares numStr `json:"LIST_SHRS"`
}

// SnapshotRow is one normalized whole-market row. Values in KRW.
type SnapshotRow struct {
	Ticker       string
	Name         string
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       int64
	TradingValue float64
	ChangeRate   float64
	MarketCap    float64
	ListedShares int64
}

func (r snapshotRow) normalize() SnapshotRow {
	return SnapshotRow{
		Ticker:       r.Ticker,
		Name:         r.Name,
		Open:         r.Open.Float(),
		High:         r.High.Float(),
		Low:          r.Low.Float(),
		Close:        r.Close.Float(),
		Volume:       r.Volume.Int(),
		TradingValue: r.TradingValue.Float(),
		ChangeRate:   r.ChangeRate.Float(),
		MarketCap:    r.MarketCap.Float(),
		ListedShares: r.ListedShares.Int(),
	}
}

type historyResponse struct {
	Block []historyRow `json:"output"`
}

type historyRow struct {
	Date   string `json:"TRD_DD"` // YYYY/MM/DD
	Close  numStr `json:"TDD_CLSPRC"`
	Open   numStr `json:"TDD_OPNPRC"`
	High   numStr `json:"TDD_HGPRC"`
	Low    numStr `json:"TDD_LWPRC"`
	Volume numStr `json:"ACC_TRDVOL"`
}

// HistoryBar is one normalized daily bar, date as YYYYMMDD
type HistoryBar struct {
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

func (r historyRow) normalize() HistoryBar {
	return HistoryBar{
		Date:   strings.ReplaceAll(r.Date, "/", ""),
		Open:   r.Open.Float(),
		High:   r.High.Float(),
		Low:    r.Low.Float(),
		Close:  r.Close.Float(),
		Volume: r.Volume.Int(),
	}
}

type valuationResponse struct {
	Block []valuationRow `json:"output"`
}

type valuationRow struct {
	Ticker string `json:"ISU_SRT_CD"`
	Name   string `json:"ISU_ABBRV"`
	EPS    numStr `json:"EPS"`
	PER    numStr `json:"PER"`
	BPS    numStr `json:"BPS"`
	PBR    numStr `json:"PBR"`
	DPS    numStr `json:"DPS"`
	DIV    numStr `json:"DVD_YLD"`
}

// ValuationRow is one normalized per-stock valuation row
type ValuationRow struct {
	Ticker string
	Name   string
	EPS    float64
	PER    float64
	BPS    float64
	PBR    float64
	DPS    float64
	DIV    float64
}

func (r valuationRow) normalize() ValuationRow {
	return ValuationRow{
		Ticker: r.Ticker,
		Name:   r.Name,
		EPS:    r.EPS.Float(),
		PER:    r.PER.Float(),
		BPS:    r.BPS.Float(),
		PBR:    r.PBR.Float(),
		DPS:    r.DPS.Float(),
		DIV:    r.DIV.Float(),
	}
}

type indexResponse struct {
	Block []indexRow `json:"output"`
}

type indexRow struct {
	Name         string `json:"IDX_NM"`
	Close        numStr `json:"CLSPRC_IDX"`
	ChangePoints numStr `json:"PRV_DD_CMPR"`
	ChangeRate   numStr `json:"FLUC_RT"`
	TradingValue numStr `json:"ACC_TRDVAL"`
}

// IndexRow is one normalized venue index row
type IndexRow struct {
	Name         string
	Close        float64
	ChangePoints float64
	ChangeRate   float64
	TradingValue float64
}

func (r indexRow) normalize() IndexRow {
	return IndexRow{
		Name:         r.Name,
		Close:        r.Close.Float(),
		ChangePoints: r.ChangePoints.Float(),
		ChangeRate:   r.ChangeRate.Float(),
		TradingValue: r.TradingValue.Float(),
	}
}

type flowResponse struct {
	Block []flowRow `json:"output"`
}

type flowRow struct {
	InvestorName string `json:"INVST_TP_NM"`
	NetValue     numStr `json:"NETBID_TRDVAL"`
}

// InvestorFlow is net trading value by investor class [KRW]
type InvestorFlow struct {
	Foreign     float64
	Institution float64
	Individual  float64
}
