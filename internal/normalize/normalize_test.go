package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinMax_Range(t *testing.T) {
	out := MinMax([]float64{3, 7, 1, 9, 5}, 0, 10)
	for _, v := range out {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 10.0)
	}
	assert.Equal(t, 0.0, out[2])  // min
	assert.Equal(t, 10.0, out[3]) // max
}

func TestMinMax_IdenticalInputsMapToMidpoint(t *testing.T) {
	out := MinMax01([]float64{4, 4, 4})
	for _, v := range out {
		assert.Equal(t, 0.5, v)
	}

	scaled := MinMax([]float64{4, 4}, 0, 10)
	assert.Equal(t, 5.0, scaled[0])
}

func TestInverse(t *testing.T) {
	out := Inverse([]float64{1, 2, 3})
	assert.Equal(t, 1.0, out[0])
	assert.Equal(t, 0.0, out[2])
}

func TestZScore_ZeroDeviation(t *testing.T) {
	out := ZScore([]float64{5, 5, 5})
	for _, v := range out {
		assert.Zero(t, v)
	}
}

func TestZScore_MeanCentered(t *testing.T) {
	out := ZScore([]float64{1, 2, 3, 4, 5})
	sum := 0.0
	for _, v := range out {
		sum += v
	}
	assert.InDelta(t, 0.0, sum, 1e-9)
	assert.Negative(t, out[0])
	assert.Positive(t, out[4])
}

func TestPercentileClip_SuppressesOutliers(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 1000}
	out := PercentileClip(values, 5, 95)

	for _, v := range out {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	// The outlier maxes out, but the second-largest stays close behind
	// instead of collapsing to near zero like a raw min-max would force.
	assert.Equal(t, 1.0, out[9])
	assert.Greater(t, out[8], 0.8)
}

func TestRobust_ZeroIQR(t *testing.T) {
	out := Robust([]float64{2, 2, 2, 2})
	for _, v := range out {
		assert.Zero(t, v)
	}
}

func TestRobust_MedianCentered(t *testing.T) {
	out := Robust([]float64{1, 2, 3, 4, 5})
	assert.Zero(t, out[2]) // median maps to 0
	assert.Negative(t, out[0])
	assert.Positive(t, out[4])
}

func TestRank_TiesShareRank(t *testing.T) {
	out := Rank([]float64{10, 20, 20, 30})
	assert.Equal(t, 0.0, out[0])
	assert.Equal(t, out[1], out[2])
	assert.Equal(t, 1.0, out[3])
}

func TestRank_SingleValue(t *testing.T) {
	assert.Equal(t, []float64{0.5}, Rank([]float64{42}))
}

func TestLog_ClipsBelowOne(t *testing.T) {
	out := Log([]float64{-5, 0, 1, 100})
	assert.Zero(t, out[0])
	assert.Zero(t, out[1])
	assert.Zero(t, out[2])
	assert.Positive(t, out[3])
}

func TestComposite_WeightSumTolerance(t *testing.T) {
	cols := [][]float64{{1, 2}, {3, 4}}

	out, err := Composite(cols, []float64{0.6, 0.4})
	require.NoError(t, err)
	assert.InDelta(t, 1.8, out[0], 1e-9)
	assert.InDelta(t, 2.8, out[1], 1e-9)

	// Within tolerance passes
	_, err = Composite(cols, []float64{0.6, 0.4 + 1e-12})
	assert.NoError(t, err)

	// Outside tolerance fails
	_, err = Composite(cols, []float64{0.6, 0.5})
	assert.Error(t, err)
}

func TestComposite_LengthMismatch(t *testing.T) {
	_, err := Composite([][]float64{{1, 2}, {3}}, []float64{0.5, 0.5})
	assert.Error(t, err)

	_, err = Composite(nil, nil)
	assert.Error(t, err)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5.0, Clamp(7, 0, 5))
	assert.Equal(t, 0.0, Clamp(-1, 0, 5))
	assert.Equal(t, 3.0, Clamp(3, 0, 5))
}
