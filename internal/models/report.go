package models

import (
	"encoding/json"
	"time"
)

// ReportType selects the morning or afternoon market report
type ReportType string

const (
	ReportMorning   ReportType = "morning"
	ReportAfternoon ReportType = "afternoon"
)

// ParseReportType validates a report type string
func ParseReportType(s string) (ReportType, bool) {
	switch ReportType(s) {
	case ReportMorning, ReportAfternoon:
		return ReportType(s), true
	}
	return "", false
}

// RankedStock is one Top-N selection with all sub-scores; reports display
// these verbatim (the LLM never owns scores).
type RankedStock struct {
	Ticker         string  `json:"ticker"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	ChangeRate     float64 `json:"change_rate"`
	MomentumScore  float64 `json:"momentum_score"`  // 0-10
	VolumeScore    float64 `json:"volume_score"`    // 0-10
	TechnicalScore float64 `json:"technical_score"` // 0-10
	SentimentScore float64 `json:"sentiment_score"` // 0-10
	BaseScore      float64 `json:"base_score"`      // 0-10
	FinalScore     float64 `json:"final_score"`     // 0-10
}

// ReportResult is the persisted row, unique on (ReportType, Date).
// Payload is the opaque report JSON as returned (and merged) by the engine.
type ReportResult struct {
	ReportType  ReportType      `json:"report_type"`
	Date        time.Time       `json:"date"`
	Payload     json.RawMessage `json:"payload"`
	GeneratedAt time.Time       `json:"generated_at"`
	Model       string          `json:"model"`
	TokensUsed  int             `json:"tokens_used"`
}
