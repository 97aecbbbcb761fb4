// SPDX-License-Identifier: MIT
/*
Package dsp implements the spectral estimation core: analysis window
tables, a radix-2 decimation-in-time transform, and the conversion of a
raw sample buffer into a calibrated decibel magnitude spectrum.

All buffers are allocated once at construction; the per-frame paths are
allocation-free.
*/
package dsp

import (
	"fmt"
	"math"
	"strings"
)

// Window selects the analysis window applied before transformation.
type Window int

const (
	Rectangle Window = iota
	Hamming
	Hann
	Blackman
	BlackmanHarris
	KaiserBessel
	FlatTop
)

// kaiserBeta is the shape parameter of the Kaiser-Bessel approximation.
const kaiserBeta = 8.5

// String returns the display name of the window.
func (w Window) String() string {
	switch w {
	case Rectangle:
		return "Rectangle"
	case Hamming:
		return "Hamming"
	case Hann:
		return "Hann"
	case Blackman:
		return "Blackman"
	case BlackmanHarris:
		return "Blackman-Harris"
	case KaiserBessel:
		return "Kaiser-Bessel"
	case FlatTop:
		return "Flat-Top"
	default:
		return "Unknown"
	}
}

// Windows lists every supported window kind in declaration order.
func Windows() []Window {
	return []Window{Rectangle, Hamming, Hann, Blackman, BlackmanHarris, KaiserBessel, FlatTop}
}

// ParseWindow converts a name (case-insensitive, separators ignored) to a
// Window. Returns Rectangle and an error if the name is unknown.
func ParseWindow(name string) (Window, error) {
	normalized := strings.ToLower(name)
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")
	normalized = strings.ReplaceAll(normalized, " ", "")
	switch normalized {
	case "rectangle", "rectangular", "rect", "none":
		return Rectangle, nil
	case "hamming":
		return Hamming, nil
	case "hann", "hanning":
		return Hann, nil
	case "blackman":
		return Blackman, nil
	case "blackmanharris":
		return BlackmanHarris, nil
	case "kaiserbessel", "kaiser":
		return KaiserBessel, nil
	case "flattop":
		return FlatTop, nil
	default:
		return Rectangle, fmt.Errorf("unknown window name: %q", name)
	}
}

// coherentGain returns the theoretical coherent gain of the window. The
// amplitude correction applied to the spectrum is its reciprocal.
func (w Window) coherentGain() float64 {
	switch w {
	case Hamming:
		return 0.54
	case Hann:
		return 0.5
	case Blackman:
		return 0.42
	case BlackmanHarris:
		return 0.35875
	case KaiserBessel:
		return 0.4 // beta = 8.5
	case FlatTop:
		return 0.2156
	default:
		return 1.0
	}
}

// AmplitudeCorrection returns 1 / coherent gain for the window.
func (w Window) AmplitudeCorrection() float64 {
	return 1.0 / w.coherentGain()
}

// Table holds the per-sample window coefficients for one configuration
// plus the window's fixed amplitude-correction factor. Computed once and
// read-only afterwards.
type Table struct {
	Kind                Window
	Coefficients        []float64
	AmplitudeCorrection float64
}

// NewTable computes the coefficient table for the given window kind and
// size. An unsupported kind degrades to Rectangle rather than failing.
// Size must be >= 2; coefficients use the symmetric (size-1) denominator
// so edge samples of the cosine-sum windows match.
func NewTable(kind Window, size int) *Table {
	switch kind {
	case Rectangle, Hamming, Hann, Blackman, BlackmanHarris, KaiserBessel, FlatTop:
	default:
		kind = Rectangle
	}

	coeffs := make([]float64, size)
	denom := float64(size - 1)

	for i := range coeffs {
		arg := 2 * math.Pi * float64(i) / denom
		switch kind {
		case Hamming:
			coeffs[i] = 0.54 - 0.46*math.Cos(arg)
		case Hann:
			coeffs[i] = 0.5 * (1 - math.Cos(arg))
		case Blackman:
			coeffs[i] = 0.42 - 0.5*math.Cos(arg) + 0.08*math.Cos(2*arg)
		case BlackmanHarris:
			coeffs[i] = 0.35875 - 0.48829*math.Cos(arg) + 0.14128*math.Cos(2*arg) - 0.01168*math.Cos(3*arg)
		case KaiserBessel:
			// Exponential approximation of the Kaiser window,
			// beta = 8.5. Exact only in the exponent-dominated
			// region; the tails are clamped to zero.
			alpha := denom / 2
			x := (float64(i) - alpha) / alpha
			karg := kaiserBeta * math.Sqrt(1-x*x)
			if karg < 50 {
				coeffs[i] = math.Exp(karg - kaiserBeta)
			} else {
				coeffs[i] = 0
			}
		case FlatTop:
			coeffs[i] = 1 - 1.93*math.Cos(arg) + 1.29*math.Cos(2*arg) - 0.388*math.Cos(3*arg) + 0.032*math.Cos(4*arg)
		default:
			coeffs[i] = 1.0
		}
	}

	return &Table{
		Kind:                kind,
		Coefficients:        coeffs,
		AmplitudeCorrection: kind.AmplitudeCorrection(),
	}
}
