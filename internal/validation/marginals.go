package validation

import (
	"math"

	"github.com/inferloop/casesynth/pkg/models"
)

// MarginalDistances returns, per variable, the total variation distance
// between the variable's model distribution and the code frequencies of the
// synthetic tuples.
func MarginalDistances(tuples []models.Tuple, variables []*models.Variable) map[string]float64 {
	distances := make(map[string]float64, len(variables))
	if len(tuples) == 0 {
		return distances
	}

	for j, v := range variables {
		counts := make([]float64, v.Size())
		for _, t := range tuples {
			if j < len(t) && t[j] >= 0 && t[j] < v.Size() {
				counts[t[j]]++
			}
		}

		tvd := 0.0
		for code := range counts {
			lo, hi := v.Interval(code)
			tvd += math.Abs(counts[code]/float64(len(tuples)) - (hi - lo))
		}
		distances[v.Name] = tvd / 2
	}
	return distances
}
