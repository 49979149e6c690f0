package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealFFTRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 16, 29} {
		signal := make([]float64, n)
		for i := range signal {
			signal[i] = float64((i*7)%5) - 1
		}

		coeffs := RealFFT(signal)
		require.Len(t, coeffs, n/2+1)

		back := InverseRealFFT(coeffs, n)
		require.Len(t, back, n)
		for i := range signal {
			assert.InDelta(t, signal[i], back[i], 1e-9)
		}
	}
}

func TestRealFFTDCComponent(t *testing.T) {
	coeffs := RealFFT([]float64{1, 2, 3, 4})
	assert.InDelta(t, 10.0, real(coeffs[0]), 1e-12)
	assert.InDelta(t, 0.0, imag(coeffs[0]), 1e-12)
}

func TestPolarRoundTrip(t *testing.T) {
	coeffs := []complex128{complex(1, 1), complex(-2, 0.5), complex(0, -3)}
	back := FromPolar(MagnitudeSpectrum(coeffs), PhaseSpectrum(coeffs))
	for i := range coeffs {
		assert.InDelta(t, real(coeffs[i]), real(back[i]), 1e-12)
		assert.InDelta(t, imag(coeffs[i]), imag(back[i]), 1e-12)
	}
}

func TestRealOnlyBins(t *testing.T) {
	assert.Equal(t, map[int]bool{0: true, 4: true}, RealOnlyBins(8))
	assert.Equal(t, map[int]bool{0: true}, RealOnlyBins(7))
	assert.Equal(t, map[int]bool{0: true}, RealOnlyBins(1))
}

func TestRoundToIntHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 3, RoundToInt(2.5))
	assert.Equal(t, 2, RoundToInt(2.4999))
	assert.Equal(t, 0, RoundToInt(0.49))
}
