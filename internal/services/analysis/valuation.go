// Package analysis generates per-company deep dives: a deterministic
// three-step valuation followed by one LLM refinement, cached per
// (ticker, date).
package analysis

import (
	"github.com/ternarybob/specula/internal/models"
	"github.com/ternarybob/specula/internal/normalize"
)

const (
	// adjustment clamps, as fractions of the base target
	maxTechnicalAdj = 0.10
	maxSentimentAdj = 0.05
	maxTotalAdj     = 0.25

	// sentimentAdjUnit converts a net headline count into a fraction
	sentimentAdjUnit = 0.0005
)

// growthMultiplier buckets YoY revenue growth [%]
func growthMultiplier(growth float64) float64 {
	switch {
	case growth >= 20:
		return 1.2
	case growth >= 10:
		return 1.1
	case growth >= 0:
		return 1.05
	default:
		return 0.95
	}
}

// roeMultiplier buckets return on equity [%]
func roeMultiplier(roe float64) float64 {
	switch {
	case roe >= 15:
		return 1.2
	case roe >= 10:
		return 1.1
	case roe >= 5:
		return 1.0
	default:
		return 0.9
	}
}

// baseValuation computes the PER and PBR targets and their mean. Only
// positive targets participate; with none the current price stands in.
func baseValuation(st *models.FilteredStock, price float64) (perTarget, pbrTarget, base float64) {
	g := growthMultiplier(st.RevenueGrowth)
	r := roeMultiplier(st.ROE)

	if st.PER > 0 {
		eps := price / st.PER
		perTarget = eps * st.PER * g
	}
	if st.PBR > 0 && st.BPS > 0 {
		pbrTarget = st.BPS * st.PBR * r
	}

	var sum float64
	var n int
	for _, t := range []float64{perTarget, pbrTarget} {
		if t > 0 {
			sum += t
			n++
		}
	}
	if n == 0 {
		return perTarget, pbrTarget, price
	}
	return perTarget, pbrTarget, sum / float64(n)
}

// technicalPoints maps the indicator snapshot onto signed percent points
func technicalPoints(t models.Technicals) float64 {
	points := 0.0
	switch {
	case t.RSI > 70:
		points -= 5
	case t.RSI < 30:
		points += 5
	}
	switch t.MACDStatus {
	case models.MACDGoldenCross:
		points += 5
	case models.MACDDeadCross:
		points -= 5
	}
	switch t.MAPosition {
	case models.MAAbove:
		points += 3
	case models.MABelow:
		points -= 3
	}
	return points
}

// technicalAdjustment clamps the summed points into the ±10% band
func technicalAdjustment(t models.Technicals) float64 {
	return normalize.Clamp(technicalPoints(t)/100, -maxTechnicalAdj, maxTechnicalAdj)
}

// sentimentAdjustment converts the net positive headline count into the
// ±5% band
func sentimentAdjustment(positive, negative int) float64 {
	adj := sentimentAdjUnit * float64(positive-negative)
	return normalize.Clamp(adj, -maxSentimentAdj, maxSentimentAdj)
}

// preliminaryTarget applies both adjustments, clamping their sum to ±25%
func preliminaryTarget(base, technicalAdj, sentimentAdj float64) float64 {
	total := normalize.Clamp(technicalAdj+sentimentAdj, -maxTotalAdj, maxTotalAdj)
	return base * (1 + total)
}
