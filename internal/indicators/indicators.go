// Package indicators holds the pure technical-indicator math. Every
// function is synchronous, zero-guarded, and returns a documented neutral
// value when the input is shorter than its window.
package indicators

import "math"

// RSIPeriod is the default lookback for RSI
const RSIPeriod = 14

// MACD parameterization (fast/slow/signal EMAs)
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// ATRPeriod is the default lookback for ATR
const ATRPeriod = 14

// SMA returns the simple moving average of the last n values, 0 when the
// series is shorter than n.
func SMA(values []float64, n int) float64 {
	if len(values) < n || n <= 0 {
		return 0
	}
	sum := 0.0
	for i := len(values) - n; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(n)
}

// EMA returns the full exponential moving average series with the standard
// 2/(n+1) smoothing, seeded by the first value.
func EMA(values []float64, n int) []float64 {
	if len(values) == 0 || n <= 0 {
		return nil
	}
	k := 2.0 / float64(n+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI computes the relative strength index over the trailing period using
// average gains and losses. All-gain series yield 100, all-loss 0, and a
// constant series (no movement at all) the neutral 50.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return 50
	}

	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}

	if gains == 0 && losses == 0 {
		return 50
	}
	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

// MACDResult carries the latest MACD line, signal line, and the previous
// and latest histogram values used for cross detection.
type MACDResult struct {
	MACD          float64
	Signal        float64
	Histogram     float64
	PrevHistogram float64
}

// MACD computes the 12/26/9 moving average convergence divergence. Series
// shorter than the slow window return the zero value.
func MACD(closes []float64) MACDResult {
	if len(closes) < MACDSlow {
		return MACDResult{}
	}

	fast := EMA(closes, MACDFast)
	slow := EMA(closes, MACDSlow)

	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fast[i] - slow[i]
	}
	signal := EMA(line, MACDSignal)

	n := len(closes)
	r := MACDResult{
		MACD:      line[n-1],
		Signal:    signal[n-1],
		Histogram: line[n-1] - signal[n-1],
	}
	if n >= 2 {
		r.PrevHistogram = line[n-2] - signal[n-2]
	}
	return r
}

// CrossStatus classifies the histogram sign flip: "golden_cross" when the
// previous histogram was negative and the latest is positive, "dead_cross"
// on the opposite flip, "neutral" otherwise.
func (r MACDResult) CrossStatus() string {
	switch {
	case r.PrevHistogram < 0 && r.Histogram > 0:
		return "golden_cross"
	case r.PrevHistogram > 0 && r.Histogram < 0:
		return "dead_cross"
	default:
		return "neutral"
	}
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|)
func TrueRange(high, low, prevClose float64) float64 {
	hl := high - low
	hc := math.Abs(high - prevClose)
	lc := math.Abs(low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// ATR returns the mean of the last period True Ranges computed over the
// most recent period+1 bars. Fewer bars yield (0, false).
func ATR(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n {
		return 0, false
	}

	sum := 0.0
	for i := n - period; i < n; i++ {
		sum += TrueRange(highs[i], lows[i], closes[i-1])
	}
	return sum / float64(period), true
}

// MAPositionBand is the half-width of the neutral band around SMA-20
const MAPositionBand = 0.02

// MAPosition labels the latest close against the ±2% band around SMA-20:
// "상회" above, "하회" below, "중립" inside the band or when undefined.
func MAPosition(close, sma20 float64) string {
	if sma20 <= 0 {
		return "중립"
	}
	switch {
	case close > sma20*(1+MAPositionBand):
		return "상회"
	case close < sma20*(1-MAPositionBand):
		return "하회"
	default:
		return "중립"
	}
}

// Gap returns the opening gap vs the previous close [%], 0-guarded
func Gap(open, prevClose float64) float64 {
	if prevClose == 0 {
		return 0
	}
	return (open - prevClose) / prevClose * 100
}

// IntradayChange returns the close-vs-open change [%], 0-guarded
func IntradayChange(open, close float64) float64 {
	if open == 0 {
		return 0
	}
	return (close - open) / open * 100
}

// ClosingStrength returns where the close sits in the day's range, in
// [0,1]; a degenerate range yields the neutral 0.5.
func ClosingStrength(high, low, close float64) float64 {
	if high <= low {
		return 0.5
	}
	return (close - low) / (high - low)
}

// VolumeChange returns the day-over-day volume change [%], 0-guarded
func VolumeChange(prevVolume, volume int64) float64 {
	if prevVolume == 0 {
		return 0
	}
	return float64(volume-prevVolume) / float64(prevVolume) * 100
}

// FundInflowRatio approximates buying pressure as trading value per unit
// of market cap [%]. Zero cap short-circuits.
func FundInflowRatio(tradingValue, marketCap float64) float64 {
	if marketCap == 0 {
		return 0
	}
	return tradingValue / marketCap * 100
}
