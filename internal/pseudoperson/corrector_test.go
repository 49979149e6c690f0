package pseudoperson

import (
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/casesynth/internal/copula"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func mustVariable(t *testing.T, name string, values []string, weights []float64) *models.Variable {
	t.Helper()
	v, err := models.NewVariable(name, values, weights)
	require.NoError(t, err)
	return v
}

// caseVariables mimics a case-report model where pregnancy is common enough
// for the sampler to produce many violations.
func caseVariables(t *testing.T) []*models.Variable {
	return []*models.Variable{
		mustVariable(t, "age", []string{"999", "5", "25", "40", "70", "130"}, []float64{1, 2, 4, 3, 2, 1}),
		mustVariable(t, "sex", []string{"F", "M", "U"}, []float64{4, 5, 1}),
		mustVariable(t, "pregnant", []string{"N", "U", "Y"}, []float64{5, 2, 3}),
	}
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	require.Len(t, rules, 3)

	byName := make(map[string]Rule)
	for _, r := range rules {
		byName[r.Name] = r
	}

	female := byName["pregnancy-requires-female"]
	assert.True(t, female.Check(map[string]string{"pregnant": "Y", "sex": "F"}))
	assert.False(t, female.Check(map[string]string{"pregnant": "Y", "sex": "M"}))
	assert.True(t, female.Check(map[string]string{"pregnant": "N", "sex": "M"}))

	age := byName["pregnancy-requires-childbearing-age"]
	assert.True(t, age.Check(map[string]string{"pregnant": "Y", "age": "999"}))
	assert.True(t, age.Check(map[string]string{"pregnant": "Y", "age": "30"}))
	assert.False(t, age.Check(map[string]string{"pregnant": "Y", "age": "5"}))
	assert.False(t, age.Check(map[string]string{"pregnant": "Y", "age": "70"}))

	unknown := byName["unknown-age-code"]
	assert.True(t, unknown.Check(map[string]string{"age": "999"}))
	assert.True(t, unknown.Check(map[string]string{"age": "0"}))
	assert.False(t, unknown.Check(map[string]string{"age": "130"}))
	assert.False(t, unknown.Check(map[string]string{"age": "abc"}))
}

func TestCorrectRemovesAllViolations(t *testing.T) {
	vars := caseVariables(t)
	tau := models.CorrelationMatrix{
		{1, -0.2, 0.1},
		{-0.2, 1, -0.3},
		{0.1, -0.3, 1},
	}
	sampler := copula.NewSampler(quietLogger())
	corrector := NewCorrector(nil, nil, quietLogger())

	for seed := int64(1); seed <= 5; seed++ {
		rng := rand.New(rand.NewSource(seed))
		sample, err := sampler.Sample(400, vars, tau, rng)
		require.NoError(t, err)
		require.NotEmpty(t, corrector.Violations(vars, sample.Tuples))

		tuples, report, err := corrector.Correct(400, vars, sample.Tuples, tau, rng)
		require.NoError(t, err)
		assert.Len(t, tuples, 400)
		assert.Empty(t, corrector.Violations(vars, tuples))
		assert.Greater(t, report.TuplesCorrected, 0)
		assert.Greater(t, report.Resamples, 0)
	}
}

func TestCorrectFallsBackWhenRetriesExhausted(t *testing.T) {
	vars := []*models.Variable{
		mustVariable(t, "sex", []string{"M"}, []float64{1}),
		mustVariable(t, "pregnant", []string{"N", "Y"}, []float64{0.001, 0.999}),
	}
	tuples := []models.Tuple{{0, 1}, {0, 0}}

	corrector := NewCorrector(&CorrectorConfig{MaxRetries: 1}, nil, quietLogger())
	out, report, err := corrector.Correct(2, vars, tuples, models.Identity(2), rand.New(rand.NewSource(2)))
	require.NoError(t, err)

	assert.Equal(t, models.Tuple{0, 0}, out[0])
	assert.Equal(t, models.Tuple{0, 0}, out[1])
	assert.Equal(t, 1, report.TuplesCorrected)
	assert.Equal(t, 1, report.Violations["pregnancy-requires-female"])
	assert.LessOrEqual(t, report.Resamples, 1)
}

func TestCorrectScansDomainWhenFallbackMissing(t *testing.T) {
	vars := []*models.Variable{
		mustVariable(t, "age", []string{"5", "130"}, []float64{1, 1}),
	}
	tuples := []models.Tuple{{1}}

	corrector := NewCorrector(&CorrectorConfig{MaxRetries: 1}, nil, quietLogger())
	rng := rand.New(rand.NewSource(1))
	out, _, err := corrector.Correct(1, vars, tuples, models.Identity(1), rng)
	require.NoError(t, err)
	assert.Equal(t, "5", vars[0].Decode(out[0][0]))
}

func TestCorrectUnsatisfiable(t *testing.T) {
	vars := []*models.Variable{
		mustVariable(t, "sex", []string{"M"}, []float64{1}),
		mustVariable(t, "pregnant", []string{"Y"}, []float64{1}),
	}
	tuples := []models.Tuple{{0, 0}}

	corrector := NewCorrector(&CorrectorConfig{MaxRetries: 2}, nil, quietLogger())
	_, _, err := corrector.Correct(1, vars, tuples, models.Identity(2), rand.New(rand.NewSource(1)))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSampling))
	assert.Equal(t, "correct", errors.StageOf(err))
}

func TestCorrectSkipsRulesWithAbsentVariables(t *testing.T) {
	vars := []*models.Variable{
		mustVariable(t, "race", []string{"A", "B"}, []float64{1, 1}),
	}
	tuples := []models.Tuple{{0}, {1}}

	corrector := NewCorrector(nil, nil, quietLogger())
	out, report, err := corrector.Correct(2, vars, tuples, models.Identity(1), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 0, report.TuplesCorrected)
	assert.Len(t, report.SkippedRules, 3)
}

func TestCorrectCountMismatch(t *testing.T) {
	corrector := NewCorrector(nil, nil, quietLogger())
	_, _, err := corrector.Correct(3, caseVariables(t), []models.Tuple{{0, 0, 0}}, models.Identity(3), rand.New(rand.NewSource(1)))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}
