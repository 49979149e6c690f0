package copula

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// conditional caches the regression of one latent coordinate on the others.
type conditional struct {
	others   []int
	weights  []float64
	variance float64
}

// Conditional returns the mean and standard deviation of latent coordinate
// k given the other coordinates of latent. The value latent[k] is ignored.
// When the remaining block cannot be factorized the marginal N(0,1) is
// returned.
func (m *Model) Conditional(k int, latent []float64) (mean, sd float64) {
	c := m.conditionalFor(k)
	if c == nil {
		return 0, 1
	}
	for i, o := range c.others {
		mean += c.weights[i] * latent[o]
	}
	return mean, math.Sqrt(c.variance)
}

// DrawConditional samples latent coordinate k given the others.
func (m *Model) DrawConditional(rng *rand.Rand, k int, latent []float64) float64 {
	mean, sd := m.Conditional(k, latent)
	return mean + sd*rng.NormFloat64()
}

func (m *Model) conditionalFor(k int) *conditional {
	if c := m.conditionals[k]; c != nil {
		return c
	}

	d := m.Dim()
	if d == 1 {
		return nil
	}

	others := make([]int, 0, d-1)
	for i := 0; i < d; i++ {
		if i != k {
			others = append(others, i)
		}
	}

	block := mat.NewSymDense(len(others), nil)
	cross := mat.NewVecDense(len(others), nil)
	for a, i := range others {
		cross.SetVec(a, m.Rho.At(k, i))
		for b := a; b < len(others); b++ {
			block.SetSym(a, b, m.Rho.At(i, others[b]))
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(block) {
		return nil
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, cross); err != nil {
		return nil
	}

	variance := 1 - mat.Dot(cross, &w)
	if variance < minEigenvalue {
		variance = minEigenvalue
	}

	c := &conditional{
		others:   others,
		weights:  append([]float64(nil), w.RawVector().Data...),
		variance: variance,
	}
	m.conditionals[k] = c
	return c
}
