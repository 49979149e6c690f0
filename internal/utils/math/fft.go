package math

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// RealFFT returns the len(signal)/2+1 non-redundant Fourier coefficients of
// a real signal. Any length is accepted.
func RealFFT(signal []float64) []complex128 {
	n := len(signal)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []complex128{complex(signal[0], 0)}
	}

	fft := fourier.NewFFT(n)
	return fft.Coefficients(nil, signal)
}

// InverseRealFFT reconstructs a real signal of length n from the
// coefficients returned by RealFFT. The result is normalized by n.
func InverseRealFFT(coeffs []complex128, n int) []float64 {
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []float64{real(coeffs[0])}
	}

	fft := fourier.NewFFT(n)
	seq := fft.Sequence(nil, coeffs)
	scale := 1.0 / float64(n)
	for i := range seq {
		seq[i] *= scale
	}
	return seq
}

// MagnitudeSpectrum calculates the magnitude of each coefficient
func MagnitudeSpectrum(spectrum []complex128) []float64 {
	magnitude := make([]float64, len(spectrum))
	for i, c := range spectrum {
		magnitude[i] = cmplx.Abs(c)
	}
	return magnitude
}

// PhaseSpectrum calculates the phase angle of each coefficient
func PhaseSpectrum(spectrum []complex128) []float64 {
	phase := make([]float64, len(spectrum))
	for i, c := range spectrum {
		phase[i] = cmplx.Phase(c)
	}
	return phase
}

// FromPolar rebuilds coefficients from magnitudes and phases.
func FromPolar(magnitude, phase []float64) []complex128 {
	out := make([]complex128, len(magnitude))
	for i := range magnitude {
		out[i] = cmplx.Rect(magnitude[i], phase[i])
	}
	return out
}

// RealOnlyBins reports which coefficient indices of a length-n real FFT must
// stay real-valued: the DC term and, for even n, the Nyquist term.
func RealOnlyBins(n int) map[int]bool {
	bins := map[int]bool{0: true}
	if n > 1 && n%2 == 0 {
		bins[n/2] = true
	}
	return bins
}
