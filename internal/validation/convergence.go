package validation

import (
	"fmt"

	mathutil "github.com/inferloop/casesynth/internal/utils/math"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/models"
)

const (
	convergenceStart = 1 << constants.ConvergenceMinExponent
	convergenceMax   = 1 << constants.ConvergenceMaxExponent
)

// ConvergencePoint is the achieved rank correlation of the first N tuples.
type ConvergencePoint struct {
	N         int                      `json:"n"`
	Tau       models.CorrelationMatrix `json:"tau"`
	Frobenius float64                  `json:"frobenius"`
}

// ConvergenceReport measures how the Kendall tau matrix of growing prefixes
// of tuples approaches the target. Prefix sizes double from 32 up to 2^18,
// capped at the number of tuples.
func ConvergenceReport(tuples []models.Tuple, variables []*models.Variable, tau models.CorrelationMatrix) ([]ConvergencePoint, error) {
	d := len(variables)
	if tau.Dim() != d {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("target tau has dimension %d but there are %d variables", tau.Dim(), d))
	}
	for i, t := range tuples {
		if len(t) != d {
			return nil, errors.NewValidationError(errors.CodeInvalidInput,
				fmt.Sprintf("tuple %d has %d codes, want %d", i, len(t), d))
		}
	}

	points := make([]ConvergencePoint, 0)
	for _, n := range prefixSizes(len(tuples)) {
		achieved := models.CorrelationMatrix(mathutil.KendallTauMatrix(codeColumns(tuples[:n], d)))
		points = append(points, ConvergencePoint{
			N:         n,
			Tau:       achieved,
			Frobenius: achieved.FrobeniusDistance(tau),
		})
	}
	return points, nil
}

func prefixSizes(total int) []int {
	limit := total
	if limit > convergenceMax {
		limit = convergenceMax
	}
	if limit < 2 {
		return nil
	}

	sizes := make([]int, 0)
	for n := convergenceStart; n < limit; n *= 2 {
		sizes = append(sizes, n)
	}
	return append(sizes, limit)
}

func codeColumns(tuples []models.Tuple, d int) [][]float64 {
	columns := make([][]float64, d)
	for j := range columns {
		columns[j] = make([]float64, len(tuples))
		for i, t := range tuples {
			columns[j][i] = float64(t[j])
		}
	}
	return columns
}
