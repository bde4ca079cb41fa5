package models

import "time"

// Session partitions the trading day for trigger runs
type Session string

const (
	SessionMorning   Session = "morning"
	SessionAfternoon Session = "afternoon"
)

// ParseSession validates a session string
func ParseSession(s string) (Session, bool) {
	switch Session(s) {
	case SessionMorning, SessionAfternoon:
		return Session(s), true
	}
	return "", false
}

// TriggerType names one of the surge detectors
type TriggerType string

const (
	TriggerVolumeSurge     TriggerType = "volume_surge"
	TriggerGapUp           TriggerType = "gap_up"
	TriggerFundInflow      TriggerType = "fund_inflow"
	TriggerIntradayRise    TriggerType = "intraday_rise"
	TriggerClosingStrength TriggerType = "closing_strength"
	TriggerSidewaysVolume  TriggerType = "sideways_volume"
	TriggerPreSurge        TriggerType = "pre_surge"
)

// MorningTriggers and AfternoonTriggers list the detectors fired per session
var (
	MorningTriggers   = []TriggerType{TriggerVolumeSurge, TriggerGapUp, TriggerFundInflow}
	AfternoonTriggers = []TriggerType{TriggerIntradayRise, TriggerClosingStrength, TriggerSidewaysVolume}
)

// ParseTriggerType validates a trigger type string
func ParseTriggerType(s string) (TriggerType, bool) {
	switch TriggerType(s) {
	case TriggerVolumeSurge, TriggerGapUp, TriggerFundInflow,
		TriggerIntradayRise, TriggerClosingStrength, TriggerSidewaysVolume,
		TriggerPreSurge:
		return TriggerType(s), true
	}
	return "", false
}

// TriggerResult is one detected candidate. Unique on
// (Date, Session, Ticker, TriggerType); CompositeScore lies in [0,1].
type TriggerResult struct {
	ID             int64       `json:"id"`
	Date           time.Time   `json:"date"`
	Session        Session     `json:"session"`
	Ticker         string      `json:"ticker"`
	Name           string      `json:"name"`
	TriggerType    TriggerType `json:"trigger_type"`
	Price          float64     `json:"price"`
	ChangeRate     float64     `json:"change_rate"` // [%]
	Volume         int64       `json:"volume"`
	TradingValue   float64     `json:"trading_value"`
	CompositeScore float64     `json:"composite_score"`
	DetectedAt     time.Time   `json:"detected_at"`
}

// PreSurgeSignal is the realtime add-on detector output
type PreSurgeSignal struct {
	Ticker      string    `json:"ticker"`
	VolumeRatio float64   `json:"volume_ratio"` // current / 5-day average
	ChangeRate  float64   `json:"change_rate"`
	Confidence  float64   `json:"confidence"` // min(ratio/5, 1)
	DetectedAt  time.Time `json:"detected_at"`
}
