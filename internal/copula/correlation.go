package copula

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/models"
)

const (
	// psdTolerance is how far below zero an eigenvalue of tau may fall.
	psdTolerance = 1e-8
	// minEigenvalue is the floor applied when repairing the latent matrix.
	minEigenvalue = 1e-6
)

// LatentCorrelation converts a Kendall tau matrix into the Pearson
// correlation of the Gaussian latent space, rho = sin(pi/2 * tau). The
// result is repaired to the nearest positive definite correlation matrix
// when needed. repaired reports whether that happened.
func LatentCorrelation(tau models.CorrelationMatrix) (rho *mat.SymDense, repaired bool, err error) {
	if err := ValidateTau(tau); err != nil {
		return nil, false, err
	}

	d := tau.Dim()
	rho = mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		rho.SetSym(i, i, 1)
		for j := i + 1; j < d; j++ {
			rho.SetSym(i, j, math.Sin(math.Pi/2*tau[i][j]))
		}
	}

	var chol mat.Cholesky
	if chol.Factorize(rho) {
		return rho, false, nil
	}

	fixed, err := nearestCorrelation(rho)
	if err != nil {
		return nil, false, err
	}
	return fixed, true, nil
}

// ValidateTau checks that tau is a usable rank-correlation matrix:
// square, symmetric, unit diagonal, entries in [-1,1] and positive
// semi-definite.
func ValidateTau(tau models.CorrelationMatrix) error {
	if err := tau.Validate(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeSampling, errors.CodeInvalidCorrelation,
			"tau is not a valid correlation matrix").WithDetails(err.Error())
	}

	d := tau.Dim()
	sym := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			sym.SetSym(i, j, tau[i][j])
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		return errors.WrapError(errors.ErrInvalidCorrelation, errors.ErrorTypeSampling, errors.CodeInvalidCorrelation,
			"eigen decomposition of tau failed")
	}
	values := eig.Values(nil)
	minValue := values[0]
	for _, v := range values {
		minValue = math.Min(minValue, v)
	}
	if minValue < -psdTolerance {
		return errors.WrapError(errors.ErrInvalidCorrelation, errors.ErrorTypeSampling, errors.CodeInvalidCorrelation,
			"tau is not positive semi-definite").
			WithDetails(fmt.Sprintf("smallest eigenvalue %.3g", minValue))
	}
	return nil
}

// nearestCorrelation clips the spectrum of a symmetric matrix and rescales
// the result back to a unit diagonal.
func nearestCorrelation(a *mat.SymDense) (*mat.SymDense, error) {
	d := a.SymmetricDim()

	var eig mat.EigenSym
	if ok := eig.Factorize(a, true); !ok {
		return nil, errors.WrapError(errors.ErrFactorizationFailed, errors.ErrorTypeSampling, errors.CodeFactorizationFailed,
			"eigen decomposition of latent correlation failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	for i := range values {
		if values[i] < minEigenvalue {
			values[i] = minEigenvalue
		}
	}

	var scaled mat.Dense
	scaled.Mul(&vectors, mat.NewDiagDense(d, values))
	var recon mat.Dense
	recon.Mul(&scaled, vectors.T())

	out := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			v := recon.At(i, j) / math.Sqrt(recon.At(i, i)*recon.At(j, j))
			if i == j {
				v = 1
			}
			out.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(out) {
		return nil, errors.WrapError(errors.ErrFactorizationFailed, errors.ErrorTypeSampling, errors.CodeFactorizationFailed,
			"latent correlation is not decomposable after repair")
	}
	return out, nil
}
