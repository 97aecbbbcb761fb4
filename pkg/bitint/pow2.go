/*
Package bitint provides the power-of-two arithmetic used when sizing
transform buffers. All operations are O(1), allocation-free and safe
to call from the acquisition hot path.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size. Exact powers of
// 2 are preserved; the (size-1) subtraction is what keeps 8 from
// becoming 16. Non-positive input returns 1.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}

	// 64-bit platforms (where int is 64-bit)
	if ^uint(0)>>63 == 0 {
		return int(1 << (bits.Len64(uint64(size - 1))))
	}

	// 32-bit platforms
	return int(1 << (bits.Len32(uint32(size - 1))))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
// Powers of 2 have exactly one bit set, so n & (n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns floor(log2(n)) for positive n, which for power-of-two
// transform sizes is the exact butterfly stage count. Returns 0 for
// n <= 0.
func Log2(n int) int {
	if n <= 0 {
		return 0
	}
	return bits.Len(uint(n)) - 1
}
