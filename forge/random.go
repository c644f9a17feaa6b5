package forge

import (
	"math/rand/v2"
)

// RandomSource draws uniform integers in [0, n). *rand.Rand satisfies it.
type RandomSource interface {
	IntN(n int) int
}

// NewRandomSource returns a deterministic PCG source for seed.
func NewRandomSource(seed uint64) RandomSource {
	// Non-cryptographic PRNG is intentional for reproducible drops.
	// #nosec G404
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
