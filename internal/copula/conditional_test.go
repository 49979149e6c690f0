package copula

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/casesynth/pkg/models"
)

func TestConditionalBivariate(t *testing.T) {
	model, err := NewModel(models.CorrelationMatrix{{1, 0.6}, {0.6, 1}})
	require.NoError(t, err)

	r := math.Sin(0.3 * math.Pi)
	mean, sd := model.Conditional(1, []float64{1.5, 0})
	assert.InDelta(t, r*1.5, mean, 1e-9)
	assert.InDelta(t, math.Sqrt(1-r*r), sd, 1e-9)

	mean, sd = model.Conditional(0, []float64{0, -2})
	assert.InDelta(t, -2*r, mean, 1e-9)
	assert.InDelta(t, math.Sqrt(1-r*r), sd, 1e-9)
}

func TestConditionalIndependent(t *testing.T) {
	model, err := NewModel(models.Identity(3))
	require.NoError(t, err)

	mean, sd := model.Conditional(2, []float64{3, -3, 0})
	assert.InDelta(t, 0.0, mean, 1e-12)
	assert.InDelta(t, 1.0, sd, 1e-12)
}

func TestConditionalSingleVariable(t *testing.T) {
	model, err := NewModel(models.Identity(1))
	require.NoError(t, err)

	mean, sd := model.Conditional(0, []float64{5})
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 1.0, sd)
}

func TestDrawConditionalTracksMean(t *testing.T) {
	model, err := NewModel(models.CorrelationMatrix{{1, 0.8}, {0.8, 1}})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(3))

	latent := []float64{2, 0}
	expected, _ := model.Conditional(1, latent)
	sum := 0.0
	const draws = 4000
	for i := 0; i < draws; i++ {
		sum += model.DrawConditional(rng, 1, latent)
	}
	assert.InDelta(t, expected, sum/draws, 0.05)
}

func TestModelDrawMatchesCorrelation(t *testing.T) {
	model, err := NewModel(models.CorrelationMatrix{{1, 0.5}, {0.5, 1}})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(8))

	const draws = 20000
	var sxy, sxx, syy float64
	for i := 0; i < draws; i++ {
		z := model.Draw(rng)
		require.Len(t, z, 2)
		sxy += z[0] * z[1]
		sxx += z[0] * z[0]
		syy += z[1] * z[1]
	}
	rho := math.Sin(0.25 * math.Pi)
	assert.InDelta(t, rho, sxy/math.Sqrt(sxx*syy), 0.03)
}
