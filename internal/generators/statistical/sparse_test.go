package statistical

import (
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sparseSeries returns segments days of which every segment has five
// nonzero days out of 28.
func sparseSeries(segments int) []int {
	series := make([]int, segments*28)
	for s := 0; s < segments; s++ {
		for _, off := range []int{3, 9, 14, 20, 26} {
			series[s*28+off] = 2
		}
	}
	return series
}

func TestNewSparseSegmentRepairerDefaults(t *testing.T) {
	r := NewSparseSegmentRepairer(&SparseConfig{}, nil)
	assert.Equal(t, 28, r.config.SegmentLength)
	assert.Equal(t, 0.25, r.config.SparseFraction)
	assert.Equal(t, 2, r.config.MaxShift)
	assert.Equal(t, 7, r.config.MaxAttempts)
	assert.Equal(t, 0.1, r.config.DeltaStep)
}

func TestModifySparseSegmentsDoesNotMutateInput(t *testing.T) {
	r := NewSparseSegmentRepairer(nil, logrus.New())
	rng := rand.New(rand.NewSource(7))

	input := sparseSeries(4)
	snapshot := append([]int(nil), input...)

	out := r.ModifySparseSegments(rng, input, 1.0)
	assert.Equal(t, snapshot, input)
	assert.Len(t, out, len(input))
	assert.NotEqual(t, input, out)
	for _, v := range out {
		assert.GreaterOrEqual(t, v, 0)
	}
}

func TestModifySparseSegmentsZeroDeltaIsIdentity(t *testing.T) {
	r := NewSparseSegmentRepairer(nil, logrus.New())
	input := sparseSeries(2)
	out := r.ModifySparseSegments(rand.New(rand.NewSource(1)), input, 0)
	assert.Equal(t, input, out)
}

func TestModifySparseSegmentsLeavesDenseSegments(t *testing.T) {
	r := NewSparseSegmentRepairer(nil, logrus.New())

	input := make([]int, 28)
	for i := range input {
		input[i] = 5
	}
	out := r.ModifySparseSegments(rand.New(rand.NewSource(1)), input, 1.0)
	assert.Equal(t, input, out)
}

func TestModifySparseSegmentsKeepsNonzeroEntriesPositive(t *testing.T) {
	r := NewSparseSegmentRepairer(nil, logrus.New())

	input := make([]int, 60)
	input[5] = 1
	input[33] = 1
	input[59] = 1

	for seed := int64(0); seed < 50; seed++ {
		out := r.ModifySparseSegments(rand.New(rand.NewSource(seed)), input, 1.0)
		require.Len(t, out, 60)
		nonzero := 0
		for _, v := range out {
			assert.GreaterOrEqual(t, v, 0)
			if v > 0 {
				nonzero++
			}
		}
		assert.Equal(t, 3, nonzero)
	}
}

func TestRepairAllZeroTerminates(t *testing.T) {
	r := NewSparseSegmentRepairer(nil, logrus.New())

	zeros := make([]int, 90)
	result := r.Repair(rand.New(rand.NewSource(1)), zeros, zeros)

	assert.Len(t, result.Signal, 90)
	assert.LessOrEqual(t, result.Attempts, 7)
	assert.False(t, result.Modified)
	assert.Equal(t, zeros, result.Signal)
}

func TestRepairEscalatesUntilDifferent(t *testing.T) {
	r := NewSparseSegmentRepairer(nil, logrus.New())

	original := sparseSeries(10)
	synthetic := append([]int(nil), original...)

	result := r.Repair(rand.New(rand.NewSource(5)), synthetic, original)
	assert.Len(t, result.Signal, len(original))
	assert.True(t, result.Modified)
	assert.GreaterOrEqual(t, result.Attempts, 2)
	assert.LessOrEqual(t, result.Attempts, 7)
	assert.NotEqual(t, original, result.Signal)
	assert.Equal(t, original, synthetic)
}

func TestRepairAcceptsAlreadyDifferentSeries(t *testing.T) {
	r := NewSparseSegmentRepairer(nil, logrus.New())

	original := []int{1, 0, 0, 4}
	synthetic := []int{0, 1, 0, 4}

	result := r.Repair(rand.New(rand.NewSource(1)), synthetic, original)
	assert.Equal(t, 1, result.Attempts)
	assert.False(t, result.Modified)
	assert.Equal(t, synthetic, result.Signal)
}
