package pseudoperson

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func consecutiveDays(start time.Time, n int) []time.Time {
	days := make([]time.Time, n)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}

func testTuples(n int) []models.Tuple {
	tuples := make([]models.Tuple, n)
	for i := range tuples {
		tuples[i] = models.Tuple{0}
	}
	return tuples
}

func testDateModel(t *testing.T) *models.DateModel {
	t.Helper()
	onset, err := models.NewEmpiricalCDF([]int{0})
	require.NoError(t, err)
	diag, err := models.NewEmpiricalCDF([]int{0, 3, 7, 400})
	require.NoError(t, err)
	return &models.DateModel{
		Fields:    []string{"illness_onset_dt", "diag_dt"},
		AnchorCDF: []float64{1, 1},
		Offsets: []models.OffsetDistribution{
			{Field: "illness_onset_dt", Days: onset},
			{Field: "diag_dt", MissingProbability: 0.2, Days: diag},
		},
	}
}

func TestDeriveFollowsSyntheticCounts(t *testing.T) {
	deriver := NewDateDeriver(nil, quietLogger())
	start := date(2021, time.March, 1)
	days := consecutiveDays(start, 4)

	result, err := deriver.Derive(5, []int{2, 0, 3, 1}, days, nil, testTuples(5), days[3], rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, result.DateTuples, 5)
	assert.False(t, result.Truncated)
	assert.NoError(t, result.Diagnostic)

	expected := []time.Time{days[0], days[0], days[2], days[2], days[2]}
	for i, dt := range result.DateTuples {
		assert.Equal(t, i, dt.Index)
		assert.Equal(t, expected[i], dt.Anchor)
	}
}

func TestDeriveRepeatsSeriesIntoFuture(t *testing.T) {
	deriver := NewDateDeriver(nil, quietLogger())
	days := consecutiveDays(date(2021, time.January, 1), 3)

	result, err := deriver.Derive(4, []int{1, 0, 1}, days, nil, testTuples(4), days[2], rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, result.DateTuples, 4)
	assert.Equal(t, date(2021, time.January, 4), result.DateTuples[2].Anchor)
	assert.Equal(t, date(2021, time.January, 6), result.DateTuples[3].Anchor)
}

func TestDeriveZeroSumPlacesOnePerDay(t *testing.T) {
	deriver := NewDateDeriver(nil, quietLogger())
	days := consecutiveDays(date(2022, time.June, 1), 2)

	result, err := deriver.Derive(3, []int{0, 0}, days, nil, testTuples(3), days[1], rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, result.DateTuples, 3)
	for i, dt := range result.DateTuples {
		assert.Equal(t, days[0].AddDate(0, 0, i), dt.Anchor)
	}
}

func TestDeriveTruncatesAtCeiling(t *testing.T) {
	deriver := NewDateDeriver(testDateModel(t), quietLogger())
	days := consecutiveDays(date(9999, time.December, 25), 2)
	ceiling := constants.MaxDate()

	result, err := deriver.Derive(20, []int{1, 1}, days, nil, testTuples(20), days[1], rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Len(t, result.DateTuples, 7)
	assert.LessOrEqual(t, len(result.DateTuples), 20)
	require.Error(t, result.Diagnostic)
	assert.True(t, errors.IsType(result.Diagnostic, errors.ErrorTypeDateOverflow))

	for _, dt := range result.DateTuples {
		assert.False(t, dt.Anchor.After(ceiling))
		for _, d := range dt.Dates {
			assert.False(t, d.After(ceiling))
		}
	}
}

func TestDeriveSecondaryDates(t *testing.T) {
	deriver := NewDateDeriver(testDateModel(t), quietLogger())
	days := consecutiveDays(date(2020, time.January, 1), 10)
	maxOriginal := date(2020, time.March, 1)
	synthetic := []int{5, 5, 5, 5, 5, 5, 5, 5, 5, 5}

	result, err := deriver.Derive(50, synthetic, days, nil, testTuples(50), maxOriginal, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	require.Len(t, result.DateTuples, 50)
	assert.Equal(t, []string{"illness_onset_dt", "diag_dt"}, result.Fields)

	missing := 0
	for _, dt := range result.DateTuples {
		require.Len(t, dt.Dates, 2)
		assert.Equal(t, dt.Anchor, dt.Dates[0])
		if dt.Dates[1].IsZero() {
			missing++
			continue
		}
		assert.False(t, dt.Dates[1].Before(dt.Anchor))
		assert.False(t, dt.Dates[1].After(maxOriginal))
	}
	assert.Greater(t, missing, 0)
	assert.Less(t, missing, 50)
}

func TestDeriveRejectsMismatchedInput(t *testing.T) {
	deriver := NewDateDeriver(nil, quietLogger())
	rng := rand.New(rand.NewSource(1))
	days := consecutiveDays(date(2020, time.January, 1), 3)

	_, err := deriver.Derive(1, []int{1, 1}, days, nil, testTuples(1), days[2], rng)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))

	gap := []time.Time{days[0], days[2]}
	_, err = deriver.Derive(1, []int{1, 1}, gap, nil, testTuples(1), days[2], rng)
	require.Error(t, err)

	_, err = deriver.Derive(5, []int{1, 1, 1}, days, nil, testTuples(2), days[2], rng)
	require.Error(t, err)
}

func TestDeriveZeroSamples(t *testing.T) {
	deriver := NewDateDeriver(nil, quietLogger())
	result, err := deriver.Derive(0, nil, nil, nil, nil, time.Time{}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Empty(t, result.DateTuples)
	assert.False(t, result.Truncated)
}
