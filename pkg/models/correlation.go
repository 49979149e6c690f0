package models

import (
	"fmt"
	"math"
)

// CorrelationMatrix holds pairwise Kendall rank correlations over the
// variables of a model, in variable order.
type CorrelationMatrix [][]float64

// Identity returns the n×n identity correlation matrix.
func Identity(n int) CorrelationMatrix {
	m := make(CorrelationMatrix, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1.0
	}
	return m
}

// Dim returns the number of variables covered by the matrix.
func (m CorrelationMatrix) Dim() int {
	return len(m)
}

// Validate checks shape, symmetry, unit diagonal and the [-1,1] range.
func (m CorrelationMatrix) Validate() error {
	n := len(m)
	if n == 0 {
		return fmt.Errorf("correlation matrix is empty")
	}
	for i := 0; i < n; i++ {
		if len(m[i]) != n {
			return fmt.Errorf("row %d has %d entries, want %d", i, len(m[i]), n)
		}
	}
	for i := 0; i < n; i++ {
		if math.Abs(m[i][i]-1.0) > 1e-9 {
			return fmt.Errorf("diagonal entry %d is %v, want 1", i, m[i][i])
		}
		for j := 0; j < n; j++ {
			v := m[i][j]
			if math.IsNaN(v) || v < -1-1e-9 || v > 1+1e-9 {
				return fmt.Errorf("entry (%d,%d) = %v is outside [-1,1]", i, j, v)
			}
			if math.Abs(v-m[j][i]) > 1e-9 {
				return fmt.Errorf("matrix is not symmetric at (%d,%d)", i, j)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (m CorrelationMatrix) Clone() CorrelationMatrix {
	out := make(CorrelationMatrix, len(m))
	for i := range m {
		out[i] = append([]float64(nil), m[i]...)
	}
	return out
}

// FrobeniusDistance returns the Frobenius norm of m - other. Both matrices
// must have the same shape.
func (m CorrelationMatrix) FrobeniusDistance(other CorrelationMatrix) float64 {
	sum := 0.0
	for i := range m {
		for j := range m[i] {
			d := m[i][j] - other[i][j]
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}
