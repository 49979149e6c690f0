package copula

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	mathutil "github.com/inferloop/casesynth/internal/utils/math"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/models"
)

// Sampler draws categorical tuples from a Gaussian copula whose rank
// correlations match a target Kendall tau matrix.
type Sampler struct {
	logger *logrus.Logger
}

// SampleResult holds the sampled tuples together with the Kendall tau
// matrix they achieve.
type SampleResult struct {
	Tuples      []models.Tuple
	AchievedTau models.CorrelationMatrix
	Model       *Model
}

// NewSampler creates a new copula sampler
func NewSampler(logger *logrus.Logger) *Sampler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Sampler{logger: logger}
}

// Sample draws n tuples. Each latent vector z = L*e, with L the Cholesky
// factor of the latent correlation and e standard normal, is mapped through
// the normal CDF and each variable's inverse CDF.
func (s *Sampler) Sample(n int, variables []*models.Variable, tau models.CorrelationMatrix, rng *rand.Rand) (*SampleResult, error) {
	if n < 1 {
		return nil, errors.NewConfigurationError(errors.CodeInvalidSampleCount, "sample count must be at least 1").
			WithContext("n", n).WithStage(constants.StageSample)
	}
	if len(variables) == 0 {
		return nil, errors.NewConfigurationError(errors.CodeInvalidInput, "at least one variable is required").
			WithStage(constants.StageSample)
	}
	if tau.Dim() != len(variables) {
		return nil, errors.NewSamplingError(errors.CodeInvalidCorrelation, "tau does not match the number of variables").
			WithDetails(fmt.Sprintf("tau is %dx%d, %d variables", tau.Dim(), tau.Dim(), len(variables))).
			WithStage(constants.StageSample)
	}
	for _, v := range variables {
		if err := v.Validate(); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidInput, "invalid variable").
				WithStage(constants.StageSample)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"samples":   n,
		"variables": len(variables),
	}).Info("Starting copula sampling")

	model, err := NewModel(tau)
	if err != nil {
		return nil, errors.AtStage(err, constants.StageSample)
	}
	if model.Repaired {
		s.logger.Warn("Latent correlation was not positive definite and has been repaired")
	}

	d := len(variables)
	tuples := make([]models.Tuple, n)
	columns := make([][]float64, d)
	for k := range columns {
		columns[k] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		z := model.Draw(rng)
		tuple := make(models.Tuple, d)
		for k, v := range variables {
			code := v.Inverse(distuv.UnitNormal.CDF(z[k]))
			tuple[k] = code
			columns[k][i] = float64(code)
		}
		tuples[i] = tuple
	}

	achieved := models.CorrelationMatrix(mathutil.KendallTauMatrix(columns))

	s.logger.WithFields(logrus.Fields{
		"samples":        n,
		"tau_difference": achieved.FrobeniusDistance(tau),
	}).Info("Copula sampling completed")

	return &SampleResult{
		Tuples:      tuples,
		AchievedTau: achieved,
		Model:       model,
	}, nil
}

// Model is the latent Gaussian of the copula.
type Model struct {
	Rho      *mat.SymDense
	Repaired bool

	lower        mat.TriDense
	conditionals []*conditional
}

// NewModel prepares the latent correlation and its Cholesky factor.
func NewModel(tau models.CorrelationMatrix) (*Model, error) {
	rho, repaired, err := LatentCorrelation(tau)
	if err != nil {
		return nil, err
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(rho); !ok {
		return nil, errors.WrapError(errors.ErrFactorizationFailed, errors.ErrorTypeSampling, errors.CodeFactorizationFailed,
			"latent correlation is not decomposable")
	}

	m := &Model{
		Rho:          rho,
		Repaired:     repaired,
		conditionals: make([]*conditional, rho.SymmetricDim()),
	}
	chol.LTo(&m.lower)
	return m, nil
}

// Dim returns the number of latent coordinates.
func (m *Model) Dim() int {
	return m.Rho.SymmetricDim()
}

// Draw returns one latent vector.
func (m *Model) Draw(rng *rand.Rand) []float64 {
	d := m.Dim()
	e := mat.NewVecDense(d, nil)
	for i := 0; i < d; i++ {
		e.SetVec(i, rng.NormFloat64())
	}
	var z mat.VecDense
	z.MulVec(&m.lower, e)
	return z.RawVector().Data
}
