package kis

import (
	"strconv"
	"strings"
)

// numStr is a KIS numeric field. The API returns every number as a string,
// sometimes empty, sometimes with a leading sign.
type numStr string

func (n numStr) Float() float64 {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func (n numStr) Int() int64 {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

// envelope is the common KIS response wrapper
type envelope struct {
	RtCd  string `json:"rt_cd"`  // "0" on success
	MsgCd string `json:"msg_cd"` // e.g. "EGW00201" on rate limit
	Msg   string `json:"msg1"`
}

// ok reports vendor-level success; transport may be 200 with rt_cd != 0
func (e envelope) ok() bool { return e.RtCd == "0" }

// rateLimited matches the gateway throttle code
func (e envelope) rateLimited() bool { return e.MsgCd == "EGW00201" }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

type approvalResponse struct {
	ApprovalKey string `json:"approval_key"`
}

// quoteOutput is the single-quote payload (tr FHKST01010100)
type quoteOutput struct {
	Price        numStr `json:"stck_prpr"`    // current
	ChangeRate   numStr `json:"prdy_ctrt"`    // vs prev close [%]
	ChangeAmount numStr `json:"prdy_vrss"`    // vs prev close
	Volume       numStr `json:"acml_vol"`     // accumulated
	Open         numStr `json:"stck_oprc"`    //
	High         numStr `json:"stck_hgpr"`    //
	Low          numStr `json:"stck_lwpr"`    //
	TradingValue numStr `json:"acml_tr_pbmn"` // accumulated [KRW]
	PrevClose    numStr `json:"stck_sdpr"`    // base (prev close) price
}

type quoteResponse struct {
	envelope
	Output quoteOutput `json:"output"`
}

// multiQuoteOutput is one row of the multi-quote payload (tr FHKST11300006).
// During call-auction windows only the antc_* expected fields are live.
type multiQuoteOutput struct {
	Ticker       string `json:"inter_shrn_iscd"`
	Price        numStr `json:"inter2_prpr"`
	ChangeRate   numStr `json:"prdy_ctrt"`
	ChangeAmount numStr `json:"inter2_prdy_vrss"`
	Volume       numStr `json:"acml_vol"`
	Open         numStr `json:"inter2_oprc"`
	High         numStr `json:"inter2_hgpr"`
	Low          numStr `json:"inter2_lwpr"`
	TradingValue numStr `json:"acml_tr_pbmn"`
	PrevClose    numStr `json:"inter2_sdpr"`

	// Expected (call auction) values
	ExpectedPrice      numStr `json:"antc_cnpr"`
	ExpectedDiff       numStr `json:"antc_cntg_vrss"`
	ExpectedChangeRate numStr `json:"antc_cntg_prdy_ctrt"`
	ExpectedVolume     numStr `json:"antc_vol"`
}

type multiQuoteResponse struct {
	envelope
	Output []multiQuoteOutput `json:"output"`
}

// indexOutput is the venue index payload (tr FHPUP02100000)
type indexOutput struct {
	Close        numStr `json:"bstp_nmix_prpr"`
	ChangePoints numStr `json:"bstp_nmix_prdy_vrss"`
	ChangeRate   numStr `json:"bstp_nmix_prdy_ctrt"`
	TradingValue numStr `json:"acml_tr_pbmn"`
	Advancing    numStr `json:"ascn_issu_cnt"`
	Declining    numStr `json:"down_issu_cnt"`
	Unchanged    numStr `json:"stnr_issu_cnt"`
}

type indexResponse struct {
	envelope
	Output indexOutput `json:"output"`
}

// dailyBarOutput is one row of the daily chart payload (tr FHKST03010100)
type dailyBarOutput struct {
	Date   string `json:"stck_bsop_date"` // YYYYMMDD
	Open   numStr `json:"stck_oprc"`
	High   numStr `json:"stck_hgpr"`
	Low    numStr `json:"stck_lwpr"`
	Close  numStr `json:"stck_clpr"`
	Volume numStr `json:"acml_vol"`
}

type dailyChartResponse struct {
	envelope
	Output []dailyBarOutput `json:"output2"`
}

// Quote is the normalized realtime quote returned by the client. Expected
// fields are non-zero only during call-auction windows; the poller remaps
// them before persisting.
type Quote struct {
	Ticker       string
	Price        float64
	ChangeRate   float64
	ChangeAmount float64
	Volume       int64
	Open         float64
	High         float64
	Low          float64
	TradingValue float64
	PrevClose    float64

	ExpectedPrice      float64
	ExpectedDiff       float64
	ExpectedChangeRate float64
	ExpectedVolume     int64
}

// IndexQuote is the normalized venue index snapshot
type IndexQuote struct {
	Close        float64
	ChangePoints float64
	ChangeRate   float64
	TradingValue float64
	Advancing    int
	Declining    int
	Unchanged    int
}

// DailyBar is one normalized OHLCV bar, date as YYYYMMDD
type DailyBar struct {
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

func (o multiQuoteOutput) normalize() Quote {
	return Quote{
		Ticker:             o.Ticker,
		Price:              o.Price.Float(),
		ChangeRate:         o.ChangeRate.Float(),
		ChangeAmount:       o.ChangeAmount.Float(),
		Volume:             o.Volume.Int(),
		Open:               o.Open.Float(),
		High:               o.High.Float(),
		Low:                o.Low.Float(),
		TradingValue:       o.TradingValue.Float(),
		PrevClose:          o.PrevClose.Float(),
		ExpectedPrice:      o.ExpectedPrice.Float(),
		ExpectedDiff:       o.ExpectedDiff.Float(),
		ExpectedChangeRate: o.ExpectedChangeRate.Float(),
		ExpectedVolume:     o.ExpectedVolume.Int(),
	}
}
