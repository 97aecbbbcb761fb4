// SPDX-License-Identifier: MIT
package dsp

import (
	"errors"
	"math"
)

// Magnitude floors. Voltages below the threshold clamp to the floor
// instead of diverging toward -inf; the uncorrected path uses a lower
// sentinel so floored bins stay distinguishable from real signal.
const (
	voltageFloor  = 1e-9
	floorDB       = -120.0
	rawSentinelDB = -200.0
)

// ErrNotReady is returned when estimation is requested without a
// completed sample buffer.
var ErrNotReady = errors.New("dsp: no sample buffer ready")

// Frame is one calibrated magnitude spectrum: dB values for the
// positive-frequency half of the transform, plus the sample rate they
// were computed against. A frame is valid from the estimate that
// produced it until the caller signals completion; it must not be
// retained across that boundary.
type Frame struct {
	MagnitudesDB []float64 // N/2 bins, dB relative to the calibration voltage
	SampleRate   float64   // Rate the source buffer was acquired at (Hz)
}

// BinFrequency returns the center frequency in Hz of the given bin.
func (f *Frame) BinFrequency(bin int) float64 {
	n := 2 * len(f.MagnitudesDB)
	if bin < 0 || n == 0 {
		return 0
	}
	return float64(bin) * f.SampleRate / float64(n)
}

// EstimatorConfig carries the fixed physical calibration applied when
// converting digital magnitudes to decibels.
type EstimatorConfig struct {
	SampleRate          float64 // Acquisition rate (Hz).
	VoltsPerCount       float64 // Converter LSB voltage.
	CalibrationVoltage  float64 // Voltage defined as 0 dB.
	ImpedanceCorrection float64 // (Rin + Rsource) / Rin; 1.0 for the raw path.
}

// Estimator converts completed sample buffers into calibrated spectral
// frames: DC removal, windowing, forward transform, magnitude scaling
// and dB conversion. All working storage is pre-allocated; Estimate is
// allocation-free.
type Estimator struct {
	size   int
	fft    *FFT
	window *Table
	cfg    EstimatorConfig

	work  []complex128 // transform working buffer
	frame Frame        // reused output frame
}

// NewEstimator builds an estimator for the given transform size. The
// window table is shared read-only; it must have size coefficients.
func NewEstimator(size int, window *Table, cfg EstimatorConfig) (*Estimator, error) {
	fft, err := NewFFT(size)
	if err != nil {
		return nil, err
	}
	if len(window.Coefficients) != size {
		return nil, errors.New("dsp: window table size does not match transform size")
	}
	if cfg.ImpedanceCorrection <= 0 {
		cfg.ImpedanceCorrection = 1.0
	}

	return &Estimator{
		size:   size,
		fft:    fft,
		window: window,
		cfg:    cfg,
		work:   make([]complex128, size),
		frame: Frame{
			MagnitudesDB: make([]float64, size/2),
			SampleRate:   cfg.SampleRate,
		},
	}, nil
}

// Size returns the transform size N.
func (e *Estimator) Size() int {
	return e.size
}

// Window returns the window table in use.
func (e *Estimator) Window() *Table {
	return e.window
}

// Estimate runs the full estimation chain on a completed buffer of raw
// converter counts and returns the calibrated frame. The returned frame
// is owned by the estimator and overwritten by the next call. A nil or
// short buffer returns ErrNotReady with no side effects.
func (e *Estimator) Estimate(samples []uint16) (*Frame, error) {
	if len(samples) < e.size {
		return nil, ErrNotReady
	}

	// DC estimate over the full buffer, removed before windowing so
	// the window does not smear the bias into neighboring bins.
	var sum float64
	for _, s := range samples[:e.size] {
		sum += float64(s)
	}
	dc := sum / float64(e.size)

	coeffs := e.window.Coefficients
	for i := 0; i < e.size; i++ {
		e.work[i] = complex((float64(samples[i])-dc)*coeffs[i], 0)
	}

	e.fft.Transform(e.work)

	// Positive-frequency half. DC keeps the plain 1/N scale; every
	// other bin is doubled to fold in its negative-frequency twin.
	// (The Nyquist bin sits at index N/2 and is outside the frame.)
	n := float64(e.size)
	correction := e.window.AmplitudeCorrection
	for bin := 0; bin < e.size/2; bin++ {
		re := real(e.work[bin])
		im := imag(e.work[bin])
		magnitude := math.Sqrt(re*re+im*im) / n
		if bin != 0 {
			magnitude *= 2
		}

		voltage := magnitude * correction * e.cfg.VoltsPerCount * e.cfg.ImpedanceCorrection

		switch {
		case voltage > voltageFloor:
			e.frame.MagnitudesDB[bin] = 20 * math.Log10(voltage/e.cfg.CalibrationVoltage)
		case e.cfg.ImpedanceCorrection == 1.0:
			e.frame.MagnitudesDB[bin] = rawSentinelDB
		default:
			e.frame.MagnitudesDB[bin] = floorDB
		}
	}

	return &e.frame, nil
}
