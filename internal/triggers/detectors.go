// Package triggers runs the six surge detectors over the filtered
// universe and the realtime pre-surge add-on.
package triggers

import (
	"sort"
	"time"

	"github.com/ternarybob/specula/internal/indicators"
	"github.com/ternarybob/specula/internal/models"
	"github.com/ternarybob/specula/internal/normalize"
)

// TopPerDetector is how many candidates each detector keeps
const TopPerDetector = 3

// candidate is one universe row joined with its previous-day snapshot
type candidate struct {
	Ticker       string
	Name         string
	Row          models.SnapshotRow
	PrevRow      models.SnapshotRow
	HasPrev      bool
	VolumeChange float64 // [%] vs previous trading day
}

// detector filters candidates, scores the survivors with fixed weights,
// and returns at most TopPerDetector results.
type detector struct {
	Type models.TriggerType
	// keep decides whether a candidate passes the session filter
	keep func(c candidate) bool
	// columns extracts the raw metric columns, one slice entry per weight
	columns func(c candidate) []float64
	weights []float64
}

func uptrend(c candidate) bool { return c.Row.Close > c.Row.Open }

func intraday(c candidate) float64 {
	return indicators.IntradayChange(c.Row.Open, c.Row.Close)
}

// detectors is the full table: thresholds and weights per detector
var detectors = map[models.TriggerType]detector{
	models.TriggerVolumeSurge: {
		Type: models.TriggerVolumeSurge,
		keep: func(c candidate) bool {
			return uptrend(c) && c.HasPrev && c.VolumeChange >= 30
		},
		columns: func(c candidate) []float64 {
			return []float64{c.VolumeChange, float64(c.Row.Volume)}
		},
		weights: []float64{0.6, 0.4},
	},
	models.TriggerGapUp: {
		Type: models.TriggerGapUp,
		keep: func(c candidate) bool {
			return uptrend(c) && c.HasPrev &&
				indicators.Gap(c.Row.Open, c.PrevRow.Close) >= 1
		},
		columns: func(c candidate) []float64 {
			return []float64{
				indicators.Gap(c.Row.Open, c.PrevRow.Close),
				intraday(c),
				c.Row.TradingValue,
			}
		},
		weights: []float64{0.5, 0.3, 0.2},
	},
	models.TriggerFundInflow: {
		Type: models.TriggerFundInflow,
		keep: uptrend,
		columns: func(c candidate) []float64 {
			return []float64{
				indicators.FundInflowRatio(c.Row.TradingValue, c.Row.MarketCap),
				c.Row.TradingValue,
				intraday(c),
			}
		},
		weights: []float64{0.5, 0.3, 0.2},
	},
	models.TriggerIntradayRise: {
		Type: models.TriggerIntradayRise,
		keep: func(c candidate) bool { return intraday(c) >= 3 },
		columns: func(c candidate) []float64 {
			return []float64{intraday(c), c.Row.TradingValue}
		},
		weights: []float64{0.6, 0.4},
	},
	models.TriggerClosingStrength: {
		Type: models.TriggerClosingStrength,
		keep: func(c candidate) bool {
			return c.HasPrev && c.VolumeChange > 0 && c.Row.Close > c.Row.Open
		},
		columns: func(c candidate) []float64 {
			return []float64{
				indicators.ClosingStrength(c.Row.High, c.Row.Low, c.Row.Close),
				c.VolumeChange,
				c.Row.TradingValue,
			}
		},
		weights: []float64{0.5, 0.3, 0.2},
	},
	models.TriggerSidewaysVolume: {
		Type: models.TriggerSidewaysVolume,
		keep: func(c candidate) bool {
			chg := intraday(c)
			return chg >= -5 && chg <= 5 && c.HasPrev && c.VolumeChange >= 50
		},
		columns: func(c candidate) []float64 {
			return []float64{c.VolumeChange, c.Row.TradingValue}
		},
		weights: []float64{0.6, 0.4},
	},
}

// run scores all passing candidates and keeps the top TopPerDetector.
// Composite scores land in [0,1] by construction of the min-max columns.
func (d detector) run(date time.Time, session models.Session, candidates []candidate, now time.Time) ([]models.TriggerResult, error) {
	var passing []candidate
	for _, c := range candidates {
		if d.keep(c) {
			passing = append(passing, c)
		}
	}
	if len(passing) == 0 {
		return nil, nil
	}

	cols := make([][]float64, len(d.weights))
	for i := range cols {
		cols[i] = make([]float64, len(passing))
	}
	for j, c := range passing {
		raw := d.columns(c)
		for i := range cols {
			cols[i][j] = raw[i]
		}
	}
	for i := range cols {
		cols[i] = normalize.MinMax01(cols[i])
	}

	scores, err := normalize.Composite(cols, d.weights)
	if err != nil {
		return nil, err
	}

	results := make([]models.TriggerResult, len(passing))
	for i, c := range passing {
		results[i] = models.TriggerResult{
			Date:           date,
			Session:        session,
			Ticker:         c.Ticker,
			Name:           c.Name,
			TriggerType:    d.Type,
			Price:          c.Row.Close,
			ChangeRate:     c.Row.ChangeRate,
			Volume:         c.Row.Volume,
			TradingValue:   c.Row.TradingValue,
			CompositeScore: scores[i],
			DetectedAt:     now,
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CompositeScore > results[j].CompositeScore
	})
	if len(results) > TopPerDetector {
		results = results[:TopPerDetector]
	}
	return results, nil
}
