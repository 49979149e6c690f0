package math

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bruteForceTauB is the O(n^2) definition of tau-b.
func bruteForceTauB(x, y []float64) float64 {
	var concordant, discordant, tiesX, tiesY float64
	for i := 0; i < len(x); i++ {
		for j := i + 1; j < len(x); j++ {
			dx := x[i] - x[j]
			dy := y[i] - y[j]
			switch {
			case dx == 0 && dy == 0:
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case dx*dy > 0:
				concordant++
			default:
				discordant++
			}
		}
	}
	denom := math.Sqrt((concordant + discordant + tiesX) * (concordant + discordant + tiesY))
	if denom == 0 {
		return 0
	}
	return (concordant - discordant) / denom
}

func TestKendallTauBPerfectOrder(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 1.0, KendallTauB(x, []float64{10, 20, 30, 40, 50}), 1e-12)
	assert.InDelta(t, -1.0, KendallTauB(x, []float64{5, 4, 3, 2, 1}), 1e-12)
}

func TestKendallTauBConstantColumn(t *testing.T) {
	assert.Equal(t, 0.0, KendallTauB([]float64{1, 1, 1}, []float64{1, 2, 3}))
	assert.Equal(t, 0.0, KendallTauB([]float64{1}, []float64{1}))
	assert.Equal(t, 0.0, KendallTauB([]float64{1, 2}, []float64{1}))
}

func TestKendallTauBMatchesBruteForceWithTies(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	for trial := 0; trial < 20; trial++ {
		n := 5 + rng.Intn(200)
		x := make([]float64, n)
		y := make([]float64, n)
		for i := range x {
			x[i] = float64(rng.Intn(6))
			y[i] = float64(rng.Intn(4)) + 0.5*x[i]
		}
		assert.InDelta(t, bruteForceTauB(x, y), KendallTauB(x, y), 1e-9)
	}
}

func TestKendallTauBDoesNotReorderInput(t *testing.T) {
	x := []float64{3, 1, 2}
	y := []float64{9, 7, 8}
	KendallTauB(x, y)
	assert.Equal(t, []float64{3, 1, 2}, x)
	assert.Equal(t, []float64{9, 7, 8}, y)
}

func TestKendallTauMatrix(t *testing.T) {
	cols := [][]float64{
		{1, 2, 3, 4},
		{4, 3, 2, 1},
		{1, 3, 2, 4},
	}
	m := KendallTauMatrix(cols)
	require.Len(t, m, 3)
	for i := range m {
		assert.Equal(t, 1.0, m[i][i])
		for j := range m {
			assert.Equal(t, m[i][j], m[j][i])
		}
	}
	assert.InDelta(t, -1.0, m[0][1], 1e-12)
	assert.InDelta(t, bruteForceTauB(cols[0], cols[2]), m[0][2], 1e-12)
}
