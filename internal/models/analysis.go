package models

import (
	"encoding/json"
	"time"
)

// Opinion is the five-value investment stance. Anything else coming back
// from the LLM is coerced to HOLD.
type Opinion string

const (
	OpinionStrongBuy  Opinion = "STRONG_BUY"
	OpinionBuy        Opinion = "BUY"
	OpinionHold       Opinion = "HOLD"
	OpinionSell       Opinion = "SELL"
	OpinionStrongSell Opinion = "STRONG_SELL"
)

// CoerceOpinion maps an arbitrary string into the opinion enum
func CoerceOpinion(s string) Opinion {
	switch Opinion(s) {
	case OpinionStrongBuy, OpinionBuy, OpinionHold, OpinionSell, OpinionStrongSell:
		return Opinion(s)
	}
	return OpinionHold
}

// Section is the strict shape every sub-analysis canonicalizes into
type Section struct {
	Summary string   `json:"summary"`
	Points  []string `json:"points,omitempty"`
}

// FlexSection accepts either a JSON object or a bare string for a
// sub-analysis. A string lands in the Summary field of the strict shape.
type FlexSection struct {
	Section
}

// UnmarshalJSON implements the object|string sum decoding
func (f *FlexSection) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Section = Section{Summary: s}
		return nil
	}
	var sec Section
	if err := json.Unmarshal(data, &sec); err == nil {
		f.Section = sec
		return nil
	}
	// Unknown object shape: keep whatever string fields we can find
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for _, v := range m {
		if str, ok := v.(string); ok && f.Summary == "" {
			f.Summary = str
		}
	}
	return nil
}

// ValuationSteps is the deterministic three-step pre-computation attached
// to every analysis for traceability.
type ValuationSteps struct {
	GrowthMultiplier  float64 `json:"growth_multiplier"`
	ROEMultiplier     float64 `json:"roe_multiplier"`
	PERTarget         float64 `json:"per_target"`
	PBRTarget         float64 `json:"pbr_target"`
	BaseTarget        float64 `json:"base_target"`
	TechnicalAdj      float64 `json:"technical_adj"` // fraction in [-0.10, +0.10]
	SentimentAdj      float64 `json:"sentiment_adj"` // fraction in [-0.05, +0.05]
	PositiveNews      int     `json:"positive_news"`
	NegativeNews      int     `json:"negative_news"`
	PreliminaryTarget float64 `json:"preliminary_target"`
}

// CompanyAnalysis is the LLM-refined analysis payload
type CompanyAnalysis struct {
	Summary            string         `json:"summary"`
	Opinion            Opinion        `json:"opinion"`
	TargetPrice        float64        `json:"target_price"`
	StopLossPrice      float64        `json:"stop_loss_price"`
	KeyPoints          []string       `json:"key_points"`
	FinancialAnalysis  Section        `json:"financial_analysis"`
	IndustryAnalysis   Section        `json:"industry_analysis"`
	NewsAnalysis       Section        `json:"news_analysis"`
	TechnicalAnalysis  Section        `json:"technical_analysis"`
	Risks              []string       `json:"risks"`
	InvestmentStrategy string         `json:"investment_strategy"`
	Steps              ValuationSteps `json:"steps"`
}

// PopularTicker counts cached analyses per ticker
type PopularTicker struct {
	Ticker string `json:"ticker"`
	Count  int    `json:"count"`
	Latest string `json:"latest"` // YYYY-MM-DD of the newest cached analysis
}

// AnalysisResult is the persisted row, unique on (Ticker, Date)
type AnalysisResult struct {
	Ticker      string          `json:"ticker"`
	Date        time.Time       `json:"date"`
	Payload     CompanyAnalysis `json:"payload"`
	GeneratedAt time.Time       `json:"generated_at"`
	Model       string          `json:"model"`
	TokensUsed  int             `json:"tokens_used"`
}
