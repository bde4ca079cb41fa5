// Package normalize holds the pure score-normalization primitives used by
// the trigger engine and the ranker. Every function is defined on any
// input length; degenerate inputs map to documented neutral values.
package normalize

import (
	"fmt"
	"math"
	"sort"
)

// WeightTolerance bounds the allowed deviation of a weight sum from 1.0
const WeightTolerance = 1e-9

// MinMax scales values into [lo, hi]. Identical inputs (zero spread) map
// every value to the midpoint.
func MinMax(values []float64, lo, hi float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	out := make([]float64, len(values))
	if max == min {
		mid := (lo + hi) / 2
		for i := range out {
			out[i] = mid
		}
		return out
	}
	for i, v := range values {
		out[i] = lo + (v-min)/(max-min)*(hi-lo)
	}
	return out
}

// MinMax01 scales into [0, 1]
func MinMax01(values []float64) []float64 {
	return MinMax(values, 0, 1)
}

// Inverse returns 1 − min-max, so the smallest input scores highest
func Inverse(values []float64) []float64 {
	out := MinMax01(values)
	for i := range out {
		out[i] = 1 - out[i]
	}
	return out
}

// ZScore standardizes by population mean and deviation; zero deviation
// maps everything to 0.
func ZScore(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	sd := math.Sqrt(variance / float64(len(values)))

	out := make([]float64, len(values))
	if sd == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - mean) / sd
	}
	return out
}

// PercentileClip winsorizes values at the [pLo, pHi] percentiles (0..100)
// then min-max scales into [0, 1]. The default outlier suppression uses
// 5/95.
func PercentileClip(values []float64, pLo, pHi float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	lo := percentile(values, pLo)
	hi := percentile(values, pHi)

	clipped := make([]float64, len(values))
	for i, v := range values {
		clipped[i] = math.Min(math.Max(v, lo), hi)
	}
	return MinMax01(clipped)
}

// Robust centers on the median and scales by IQR; a zero IQR maps
// everything to 0.
func Robust(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	med := percentile(values, 50)
	iqr := percentile(values, 75) - percentile(values, 25)

	out := make([]float64, len(values))
	if iqr == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - med) / iqr
	}
	return out
}

// Rank maps each value to its ascending percentile rank in [0, 1]; ties
// share the mean rank of their run.
func Rank(values []float64) []float64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []float64{0.5}
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		meanRank := float64(i+j) / 2
		for k := i; k <= j; k++ {
			out[idx[k]] = meanRank / float64(n-1)
		}
		i = j + 1
	}
	return out
}

// Sigmoid applies the logistic function elementwise
func Sigmoid(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = 1.0 / (1.0 + math.Exp(-v))
	}
	return out
}

// Log applies the natural log to values clipped to ≥ 1
func Log(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Log(math.Max(v, 1))
	}
	return out
}

// LogBase applies log base b to values clipped to ≥ 1
func LogBase(values []float64, b float64) []float64 {
	if b <= 0 || b == 1 {
		return Log(values)
	}
	div := math.Log(b)
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Log(math.Max(v, 1)) / div
	}
	return out
}

// Composite blends columns by weight. Columns must share a length and the
// weights must sum to 1.0 within WeightTolerance.
func Composite(columns [][]float64, weights []float64) ([]float64, error) {
	if len(columns) == 0 || len(columns) != len(weights) {
		return nil, fmt.Errorf("composite needs matching columns and weights, got %d/%d",
			len(columns), len(weights))
	}

	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1.0) > WeightTolerance {
		return nil, fmt.Errorf("composite weights sum to %.12f, want 1.0", sum)
	}

	n := len(columns[0])
	for _, col := range columns {
		if len(col) != n {
			return nil, fmt.Errorf("composite columns differ in length")
		}
	}

	out := make([]float64, n)
	for j, col := range columns {
		for i, v := range col {
			out[i] += v * weights[j]
		}
	}
	return out, nil
}

// Clamp restricts a value to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// percentile computes the p-th percentile (0..100) by linear interpolation
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	pos := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
