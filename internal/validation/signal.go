package validation

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	mathutil "github.com/inferloop/casesynth/internal/utils/math"
	"github.com/inferloop/casesynth/pkg/errors"
)

// SignalReport compares a synthetic daily count series with its source.
type SignalReport struct {
	Correlation   float64 `json:"correlation"`
	OriginalSum   int     `json:"original_sum"`
	SyntheticSum  int     `json:"synthetic_sum"`
	DifferingDays int     `json:"differing_days"`
}

// SignalSimilarity computes the Pearson correlation of the two series along
// with their sums and the number of days on which they differ. The
// correlation is 0 when either series is constant.
func SignalSimilarity(original, synthetic []int) (*SignalReport, error) {
	if len(original) != len(synthetic) {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("signal lengths differ: %d original, %d synthetic", len(original), len(synthetic)))
	}

	report := &SignalReport{
		OriginalSum:  mathutil.SumInts(original),
		SyntheticSum: mathutil.SumInts(synthetic),
	}
	for i := range original {
		if original[i] != synthetic[i] {
			report.DifferingDays++
		}
	}

	x := mathutil.IntsToFloats(original)
	y := mathutil.IntsToFloats(synthetic)
	if len(x) > 1 && stat.Variance(x, nil) > 0 && stat.Variance(y, nil) > 0 {
		report.Correlation = stat.Correlation(x, y, nil)
	}
	return report, nil
}
