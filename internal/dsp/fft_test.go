// SPDX-License-Identifier: MIT
package dsp

import (
	"math"
	"math/cmplx"
	"testing"

	"gonum.org/v1/gonum/dsp/fourier"
)

func TestNewFFTRejectsBadSizes(t *testing.T) {
	for _, size := range []int{0, 1, 3, 1000, -8} {
		if _, err := NewFFT(size); err == nil {
			t.Errorf("NewFFT(%d) expected error, got nil", size)
		}
	}
	for _, size := range []int{2, 8, 1024, 4096} {
		if _, err := NewFFT(size); err != nil {
			t.Errorf("NewFFT(%d) unexpected error: %v", size, err)
		}
	}
}

func TestImpulseYieldsFlatSpectrum(t *testing.T) {
	const size = 64
	fft, err := NewFFT(size)
	if err != nil {
		t.Fatal(err)
	}

	data := make([]complex128, size)
	data[0] = 1

	fft.Transform(data)

	// An impulse has unit magnitude in every bin.
	for i, c := range data {
		if math.Abs(cmplx.Abs(c)-1.0) > 1e-3 {
			t.Errorf("bin %d magnitude = %v, expected 1.0", i, cmplx.Abs(c))
		}
	}
}

func TestSinusoidPeaksAtItsBin(t *testing.T) {
	const size = 256
	fft, err := NewFFT(size)
	if err != nil {
		t.Fatal(err)
	}

	for _, k := range []int{1, 7, 32, 100, size/2 - 1} {
		data := make([]complex128, size)
		for i := range data {
			data[i] = complex(math.Sin(2*math.Pi*float64(k)*float64(i)/size), 0)
		}

		fft.Transform(data)

		peakBin := 0
		peakMag := 0.0
		for bin := 0; bin < size/2; bin++ {
			if mag := cmplx.Abs(data[bin]); mag > peakMag {
				peakMag = mag
				peakBin = bin
			}
		}
		if peakBin != k {
			t.Errorf("sine at bin %d peaked at bin %d", k, peakBin)
		}

		// On-bin sine concentrates all energy in one coefficient:
		// |X[k]| = N/2.
		if math.Abs(peakMag-size/2) > 1e-6*size {
			t.Errorf("sine at bin %d: |X[k]| = %v, expected %v", k, peakMag, float64(size)/2)
		}
	}
}

// TestMatchesReferenceTransform cross-checks the hand-rolled radix-2
// implementation against gonum's FFT on a broadband signal.
func TestMatchesReferenceTransform(t *testing.T) {
	const size = 1024
	fft, err := NewFFT(size)
	if err != nil {
		t.Fatal(err)
	}

	data := make([]complex128, size)
	reference := make([]complex128, size)
	for i := range data {
		tm := float64(i) / size
		v := math.Sin(2*math.Pi*17*tm)*0.5 +
			math.Sin(2*math.Pi*111*tm)*0.3 +
			math.Cos(2*math.Pi*200*tm)*0.2
		data[i] = complex(v, 0)
		reference[i] = data[i]
	}

	fft.Transform(data)

	ref := fourier.NewCmplxFFT(size)
	refOut := ref.Coefficients(nil, reference)

	for i := range data {
		if cmplx.Abs(data[i]-refOut[i]) > 1e-6 {
			t.Fatalf("bin %d: got %v, reference %v", i, data[i], refOut[i])
		}
	}
}

func TestTransformZeroAllocs(t *testing.T) {
	const size = 1024
	fft, err := NewFFT(size)
	if err != nil {
		t.Fatal(err)
	}
	data := make([]complex128, size)
	for i := range data {
		data[i] = complex(float64(i%17), 0)
	}

	// Warm-up call before counting.
	fft.Transform(data)
	allocs := testing.AllocsPerRun(100, func() {
		fft.Transform(data)
	})
	if allocs > 0 {
		t.Errorf("expected zero allocations in Transform, got %.1f", allocs)
	}
}

func BenchmarkTransform(b *testing.B) {
	const size = 1024
	fft, _ := NewFFT(size)
	data := make([]complex128, size)
	for i := range data {
		data[i] = complex(math.Sin(2*math.Pi*float64(i)/size), 0)
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		fft.Transform(data)
	}
}
