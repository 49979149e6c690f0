package statistical

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	mathutil "github.com/inferloop/casesynth/internal/utils/math"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
)

// FourierSynthesizer produces a synthetic daily-count series with the same
// length and spectral magnitudes as an input series.
type FourierSynthesizer struct {
	logger *logrus.Logger
	config *FourierConfig
}

// FourierConfig contains configuration for Fourier-based synthesis
type FourierConfig struct {
	PhaseNoiseFraction float64 `json:"phase_noise_fraction" mapstructure:"phase_noise_fraction"` // share of components whose phase is randomized
}

// NewFourierSynthesizer creates a new Fourier-based synthesizer
func NewFourierSynthesizer(config *FourierConfig, logger *logrus.Logger) *FourierSynthesizer {
	if config == nil {
		config = getDefaultFourierConfig()
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &FourierSynthesizer{
		logger: logger,
		config: config,
	}
}

// PhaseNoiseFraction returns the configured default fraction.
func (f *FourierSynthesizer) PhaseNoiseFraction() float64 {
	return f.config.PhaseNoiseFraction
}

// Synthesize transforms signal to the frequency domain, randomizes the phase
// of round(fraction*eligible) components, and transforms back. Negative
// reconstructed values are clipped to zero and the rest rounded half away
// from zero.
func (f *FourierSynthesizer) Synthesize(rng *rand.Rand, signal []int, phaseNoiseFraction float64) ([]int, error) {
	if len(signal) == 0 {
		return nil, errors.NewConfigurationError(errors.CodeInvalidInput, "signal must contain at least one day").
			WithStage(constants.StageSynthesize)
	}
	if math.IsNaN(phaseNoiseFraction) || phaseNoiseFraction < 0 || phaseNoiseFraction > 1 {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "phase noise fraction must be in [0, 1]").
			WithContext("phase_noise_fraction", phaseNoiseFraction).
			WithStage(constants.StageSynthesize)
	}
	if rng == nil {
		return nil, errors.NewInternalError("random source is required")
	}

	n := len(signal)
	f.logger.WithFields(logrus.Fields{
		"length":   n,
		"fraction": phaseNoiseFraction,
	}).Info("Starting spectral synthesis")

	coeffs := mathutil.RealFFT(mathutil.IntsToFloats(signal))
	modified := f.randomizePhases(rng, coeffs, n, phaseNoiseFraction)
	reconstructed := mathutil.InverseRealFFT(coeffs, n)

	out := make([]int, n)
	for i, v := range reconstructed {
		if v < 0 {
			v = 0
		}
		out[i] = mathutil.RoundToInt(v)
	}

	f.logger.WithFields(logrus.Fields{
		"length":              n,
		"components_modified": modified,
		"original_sum":        mathutil.SumInts(signal),
		"synthetic_sum":       mathutil.SumInts(out),
	}).Info("Spectral synthesis completed")

	return out, nil
}

// randomizePhases replaces the phase of a random subset of the complex
// coefficients in place and returns how many were changed.
func (f *FourierSynthesizer) randomizePhases(rng *rand.Rand, coeffs []complex128, n int, fraction float64) int {
	realOnly := mathutil.RealOnlyBins(n)
	eligible := make([]int, 0, len(coeffs))
	for k := range coeffs {
		if !realOnly[k] {
			eligible = append(eligible, k)
		}
	}

	count := mathutil.RoundToInt(fraction * float64(len(eligible)))
	if count == 0 {
		return 0
	}

	magnitude := mathutil.MagnitudeSpectrum(coeffs)
	phase := mathutil.PhaseSpectrum(coeffs)
	for _, idx := range rng.Perm(len(eligible))[:count] {
		k := eligible[idx]
		phase[k] = -math.Pi + 2*math.Pi*rng.Float64()
	}
	copy(coeffs, mathutil.FromPolar(magnitude, phase))

	f.logger.WithFields(logrus.Fields{
		"eligible": len(eligible),
		"modified": count,
	}).Debug("Randomized Fourier phases")

	return count
}

func getDefaultFourierConfig() *FourierConfig {
	return &FourierConfig{
		PhaseNoiseFraction: constants.DefaultPhaseNoiseFraction,
	}
}
