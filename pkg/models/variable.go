package models

import (
	"fmt"
	"math"
	"sort"
)

// Variable is a categorical attribute with an ordered domain. Codes are the
// consecutive integers 0..len(Values)-1; Values holds the raw value for each
// code and CDF the empirical cumulative probability up to and including it.
type Variable struct {
	Name   string    `json:"name"`
	Values []string  `json:"values"`
	CDF    []float64 `json:"cdf"`
}

// NewVariable builds a variable from its ordered domain and the observed
// weight of each value.
func NewVariable(name string, values []string, weights []float64) (*Variable, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("variable %q has an empty domain", name)
	}
	if len(values) != len(weights) {
		return nil, fmt.Errorf("variable %q: %d values but %d weights", name, len(values), len(weights))
	}

	cdf, err := cumulative(weights)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}

	return &Variable{
		Name:   name,
		Values: append([]string(nil), values...),
		CDF:    cdf,
	}, nil
}

// Size returns the number of codes in the domain.
func (v *Variable) Size() int {
	return len(v.Values)
}

// Inverse maps a rank in [0,1] to the smallest code whose cumulative
// probability is at least u.
func (v *Variable) Inverse(u float64) int {
	return searchCDF(v.CDF, u)
}

// Interval returns the cumulative probabilities bracketing code.
func (v *Variable) Interval(code int) (lo, hi float64) {
	if code > 0 {
		lo = v.CDF[code-1]
	}
	return lo, v.CDF[code]
}

// Decode returns the raw value for code.
func (v *Variable) Decode(code int) string {
	if code < 0 || code >= len(v.Values) {
		return ""
	}
	return v.Values[code]
}

// Encode returns the code for a raw value.
func (v *Variable) Encode(raw string) (int, bool) {
	for i, value := range v.Values {
		if value == raw {
			return i, true
		}
	}
	return -1, false
}

// Validate checks that the CDF is aligned with the domain, monotonic and ends at 1.
func (v *Variable) Validate() error {
	if len(v.Values) == 0 {
		return fmt.Errorf("variable %q has an empty domain", v.Name)
	}
	if len(v.CDF) != len(v.Values) {
		return fmt.Errorf("variable %q: cdf length %d does not match domain size %d", v.Name, len(v.CDF), len(v.Values))
	}
	return checkCDF(v.CDF)
}

// EmpiricalCDF is a discrete distribution over integer values.
type EmpiricalCDF struct {
	Values []int     `json:"values"`
	CDF    []float64 `json:"cdf"`
}

// NewEmpiricalCDF builds a distribution from observed integer samples.
func NewEmpiricalCDF(samples []int) (*EmpiricalCDF, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("empirical cdf needs at least one sample")
	}

	counts := make(map[int]float64)
	for _, s := range samples {
		counts[s]++
	}
	values := make([]int, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Ints(values)

	weights := make([]float64, len(values))
	for i, v := range values {
		weights[i] = counts[v]
	}
	cdf, err := cumulative(weights)
	if err != nil {
		return nil, err
	}
	return &EmpiricalCDF{Values: values, CDF: cdf}, nil
}

// Inverse maps a rank in [0,1] to a value.
func (e *EmpiricalCDF) Inverse(u float64) int {
	return e.Values[searchCDF(e.CDF, u)]
}

// CumulativeProbabilities normalizes non-negative weights into a CDF.
func CumulativeProbabilities(weights []float64) ([]float64, error) {
	return cumulative(weights)
}

func cumulative(weights []float64) ([]float64, error) {
	total := 0.0
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("invalid weight %v", w)
		}
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("weights sum to zero")
	}

	cdf := make([]float64, len(weights))
	running := 0.0
	for i, w := range weights {
		running += w
		cdf[i] = running / total
	}
	cdf[len(cdf)-1] = 1.0
	return cdf, nil
}

func checkCDF(cdf []float64) error {
	prev := 0.0
	for i, p := range cdf {
		if p < prev || p > 1 {
			return fmt.Errorf("cdf is not monotonic in [0,1] at index %d", i)
		}
		prev = p
	}
	if math.Abs(cdf[len(cdf)-1]-1.0) > 1e-9 {
		return fmt.Errorf("cdf ends at %v instead of 1", cdf[len(cdf)-1])
	}
	return nil
}

func searchCDF(cdf []float64, u float64) int {
	i := sort.SearchFloat64s(cdf, u)
	if i >= len(cdf) {
		return len(cdf) - 1
	}
	return i
}
