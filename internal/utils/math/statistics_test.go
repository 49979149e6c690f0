package math

import (
	"go/format"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesHelpers(t *testing.T) {
	assert.Equal(t, 0, SumInts(nil))
	assert.Equal(t, 9, SumInts([]int{2, 0, 7}))
	assert.Equal(t, []float64{2, 0, 7}, IntsToFloats([]int{2, 0, 7}))

	assert.Equal(t, 3, RoundToInt(2.5))
	assert.Equal(t, -3, RoundToInt(-2.5))
	assert.Equal(t, 2, RoundToInt(2.49))

	assert.Equal(t, 0.0, Clamp(-1, 0, 1))
	assert.Equal(t, 1.0, Clamp(4, 0, 1))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
}

func TestStatisticsSourceIsFormatted(t *testing.T) {
	for _, name := range []string{"statistics.go", "statistics_test.go"} {
		src, err := os.ReadFile(name)
		require.NoError(t, err)
		formatted, err := format.Source(src)
		require.NoError(t, err, name)
		assert.Equal(t, string(formatted), string(src), "%s is not gofmt-formatted", name)
	}
}
