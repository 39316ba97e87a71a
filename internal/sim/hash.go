// Package sim implements deterministic Monte Carlo trial sampling for risk
// leaves: a hash-derived generator with no mutable state, and the loss
// distribution fits it draws from.
package sim

import "math/bits"

// mix64 is a splitmix64-style finalizer: a fast, well-distributed integer
// hash whose output bits are effectively independent of small input deltas.
// It is the whole of the engine's random number generation — identical
// inputs always reproduce identical samples, across runs and processes.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// hashString folds a string into 64 bits, FNV-1a style.
func hashString(s string) uint64 {
	const (
		offset = 0xcbf29ce484222325
		prime  = 0x100000001b3
	)
	h := uint64(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

// toUnitInterval maps 64 hash bits onto (0,1), exclusive at both ends so the
// result is always a valid argument to an inverse CDF.
func toUnitInterval(x uint64) float64 {
	return (float64(x>>11) + 0.5) / (1 << 53)
}

func rotl(x uint64, k int) uint64 {
	return bits.RotateLeft64(x, k)
}
