// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	"specan/pkg/bitint"
)

// FFT performs an in-place radix-2 decimation-in-time transform of a
// fixed size. The bit-reversal permutation is precomputed at
// construction so Transform performs no allocations.
type FFT struct {
	size   int
	stages int
	rev    []int
}

// NewFFT creates a transform plan for the given size, which must be a
// power of 2 and at least 2.
func NewFFT(size int) (*FFT, error) {
	if !bitint.IsPowerOfTwo(size) || size < 2 {
		return nil, fmt.Errorf("transform size must be a power of 2 >= 2, got %d", size)
	}

	stages := bitint.Log2(size)
	rev := make([]int, size)
	for i := 1; i < size; i++ {
		rev[i] = rev[i>>1]>>1 | (i&1)<<(stages-1)
	}

	return &FFT{size: size, stages: stages, rev: rev}, nil
}

// Size returns the transform length.
func (f *FFT) Size() int {
	return f.size
}

// Transform executes the forward transform in place. data must have
// length Size(); the contents are replaced with the frequency-domain
// coefficients.
//
// Each stage uses the canonical twiddle recurrence w *= w_len rather
// than a coefficient table; the accumulated rounding stays well inside
// the tolerance the estimator needs.
func (f *FFT) Transform(data []complex128) {
	n := f.size

	// Bit-reversal permutation. rev[i] < i exactly once per swapped
	// pair, so each pair is exchanged a single time.
	for i, j := range f.rev {
		if j > i {
			data[i], data[j] = data[j], data[i]
		}
	}

	// Butterfly stages.
	for length := 2; length <= n; length <<= 1 {
		wlen := cmplx.Exp(complex(0, -2*math.Pi/float64(length)))
		half := length / 2
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			for k := start; k < start+half; k++ {
				u := data[k]
				v := data[k+half] * w
				data[k] = u + v
				data[k+half] = u - v
				w *= wlen
			}
		}
	}
}
