package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanSquaredError(t *testing.T) {
	a := []float64{0, 10, 20, 30}
	b := []float64{0, 12, 16, 30}
	// (0 + 4 + 16 + 0) / 4
	assert.InDelta(t, 5.0, meanSquaredError(a, b), 1e-12)
	assert.Zero(t, meanSquaredError(nil, nil))
}

func TestMeanSquaredError_NoUnsignedWraparound(t *testing.T) {
	a := []float64{0}
	b := []float64{255}
	assert.InDelta(t, 65025.0, meanSquaredError(a, b), 1e-9)
}

func TestHistogramCorrelation(t *testing.T) {
	a := []float64{0, 0, 255, 255, 128}
	assert.InDelta(t, 1.0, histogramCorrelation(a, a), 1e-12)

	// Same distribution in a different spatial layout still correlates fully.
	shuffled := []float64{255, 128, 0, 255, 0}
	assert.InDelta(t, 1.0, histogramCorrelation(a, shuffled), 1e-12)

	allBlack := []float64{0, 0, 0, 0, 0}
	allWhite := []float64{255, 255, 255, 255, 255}
	assert.Less(t, histogramCorrelation(allBlack, allWhite), 0.0)
}

func TestStructuralSimilarity(t *testing.T) {
	const w, h = 16, 16
	flat := make([]float64, w*h)
	ramp := make([]float64, w*h)
	inverted := make([]float64, w*h)
	for i := range flat {
		flat[i] = 200
		ramp[i] = float64((i % w) * 16)
		inverted[i] = 255 - ramp[i]
	}

	assert.InDelta(t, 1.0, structuralSimilarity(flat, flat, w, h), 1e-9)
	assert.InDelta(t, 1.0, structuralSimilarity(ramp, ramp, w, h), 1e-9)
	assert.Less(t, structuralSimilarity(ramp, inverted, w, h), 0.0)
	assert.Zero(t, structuralSimilarity(ramp, ramp, 4, 4))
}
