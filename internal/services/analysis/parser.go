package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/ternarybob/specula/internal/models"
	"github.com/ternarybob/specula/internal/services/llm"
)

// minRisks is the guaranteed floor of the risks list
const minRisks = 3

// defaultRisks pads short risk lists from the LLM
var defaultRisks = []string{
	"시장 전반의 변동성 확대 가능성",
	"업종 경쟁 심화에 따른 수익성 악화 위험",
	"거시경제 지표 악화 시 투자심리 위축 위험",
}

// rawAnalysis is the tolerant decode target; sub-analyses may come back
// as objects or bare strings.
type rawAnalysis struct {
	Summary            string             `json:"summary"`
	Opinion            string             `json:"opinion"`
	TargetPrice        float64            `json:"target_price"`
	StopLossPrice      float64            `json:"stop_loss_price"`
	KeyPoints          []string           `json:"key_points"`
	FinancialAnalysis  models.FlexSection `json:"financial_analysis"`
	IndustryAnalysis   models.FlexSection `json:"industry_analysis"`
	NewsAnalysis       models.FlexSection `json:"news_analysis"`
	TechnicalAnalysis  models.FlexSection `json:"technical_analysis"`
	Risks              []string           `json:"risks"`
	InvestmentStrategy string             `json:"investment_strategy"`
}

// parseAnalysis extracts and canonicalizes the finalize completion:
// fenced JSON unwrapped, opinion coerced into the enum, risks padded to
// at least minRisks entries.
func parseAnalysis(text string) (*models.CompanyAnalysis, error) {
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(llm.ExtractJSON(text)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}

	risks := raw.Risks
	for i := 0; len(risks) < minRisks; i++ {
		risks = append(risks, defaultRisks[i%len(defaultRisks)])
	}

	return &models.CompanyAnalysis{
		Summary:            raw.Summary,
		Opinion:            models.CoerceOpinion(raw.Opinion),
		TargetPrice:        raw.TargetPrice,
		StopLossPrice:      raw.StopLossPrice,
		KeyPoints:          raw.KeyPoints,
		FinancialAnalysis:  raw.FinancialAnalysis.Section,
		IndustryAnalysis:   raw.IndustryAnalysis.Section,
		NewsAnalysis:       raw.NewsAnalysis.Section,
		TechnicalAnalysis:  raw.TechnicalAnalysis.Section,
		Risks:              risks,
		InvestmentStrategy: raw.InvestmentStrategy,
	}, nil
}

// newsClassification is the step-3 sentiment tally from the LLM
type newsClassification struct {
	Positive         int      `json:"positive"`
	Negative         int      `json:"negative"`
	Neutral          int      `json:"neutral"`
	PositiveExamples []string `json:"positive_examples"`
	NegativeExamples []string `json:"negative_examples"`
}

// parseClassification decodes the headline-classification completion
func parseClassification(text string) (*newsClassification, error) {
	var c newsClassification
	if err := json.Unmarshal([]byte(llm.ExtractJSON(text)), &c); err != nil {
		return nil, fmt.Errorf("failed to parse news classification: %w", err)
	}
	return &c, nil
}
