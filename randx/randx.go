// Package randx provides the seeded PRNG resource (spec.md §5, §9):
// explicit seed(u64) and random() in [0,1). Its consumers (caminit.Run,
// pnp.Solve) build a fresh Source from an explicit seed on every call, so
// repeated runs with the same seed draw the same sequence.
//
// No example repo in the corpus ships a seeded-PRNG abstraction beyond the
// standard library, so this is built directly on math/rand (DESIGN.md).
package randx

import "math/rand"

// Source is a process-local, explicitly-seeded random source.
type Source struct {
	rng *rand.Rand
}

// New constructs a Source seeded with the given value.
func New(seed uint64) *Source {
	return &Source{rng: rand.New(rand.NewSource(int64(seed)))}
}

// Seed reseeds the source, discarding any prior state.
func (s *Source) Seed(seed uint64) {
	s.rng = rand.New(rand.NewSource(int64(seed)))
}

// Float64 returns a pseudo-random number in [0, 1).
func (s *Source) Float64() float64 {
	return s.rng.Float64()
}

// IntN returns a pseudo-random integer in [0, n).
func (s *Source) IntN(n int) int {
	return s.rng.Intn(n)
}

// Perm returns a pseudo-random permutation of [0, n).
func (s *Source) Perm(n int) []int {
	return s.rng.Perm(n)
}

// Sample draws k distinct indices from [0, n) without replacement.
// Used by RANSAC-style minimal-set sampling (§4.3).
func (s *Source) Sample(n, k int) []int {
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	return s.Perm(n)[:k]
}
