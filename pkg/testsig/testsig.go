// Package testsig provides synthetic converter signals and small
// helpers shared by tests across the pipeline packages.
package testsig

import "math"

// BinSine generates size samples of a pure sinusoid that lands exactly
// on the given transform bin: frequency = bin * rate / size. The result
// is in raw converter counts, biased to offset with the given peak
// amplitude.
func BinSine(size, bin int, amplitude, offset float64) []uint16 {
	buffer := make([]uint16, size)
	for i := range buffer {
		v := offset + amplitude*math.Sin(2*math.Pi*float64(bin)*float64(i)/float64(size))
		buffer[i] = clampCount(v)
	}
	return buffer
}

// ToneCounts generates size samples of a sinusoid at an arbitrary
// frequency in Hz for the given sample rate, in raw converter counts.
func ToneCounts(size int, sampleRate, frequency, amplitude, offset float64) []uint16 {
	buffer := make([]uint16, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		v := offset + amplitude*math.Sin(2*math.Pi*frequency*tm)
		buffer[i] = clampCount(v)
	}
	return buffer
}

// Constant returns size samples all holding the same count, useful for
// DC-removal checks.
func Constant(size int, count uint16) []uint16 {
	buffer := make([]uint16, size)
	for i := range buffer {
		buffer[i] = count
	}
	return buffer
}

func clampCount(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v + 0.5)
}

// FindPeakBin returns the index of the largest value in magnitudes
// within [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
