package utils

import (
	"math/rand"
	"time"
)

// RandSource is a seedable random number generator owned by a single caller
type RandSource struct {
	seed int64
	rng  *rand.Rand
}

// NewRandSource creates a new random source with the given seed
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandSource{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Seed returns the seed this source was created with
func (r *RandSource) Seed() int64 {
	return r.seed
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	return r.rng.Float64()
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	return r.rng.Intn(n)
}

// UniformFloat64 returns a uniformly distributed random number in [min, max)
func (r *RandSource) UniformFloat64(min, max float64) float64 {
	return min + r.rng.Float64()*(max-min)
}

// Perm returns a random permutation of [0, n)
func (r *RandSource) Perm(n int) []int {
	return r.rng.Perm(n)
}

// DistinctPair returns two distinct indices i < j drawn uniformly from [0, n).
// Panics if n < 2, mirroring rand.Intn's contract for invalid arguments.
func (r *RandSource) DistinctPair(n int) (int, int) {
	if n < 2 {
		panic("utils: DistinctPair requires n >= 2")
	}
	i, j := r.rng.Intn(n), r.rng.Intn(n)
	for j == i {
		j = r.rng.Intn(n)
	}
	if j < i {
		return j, i
	}
	return i, j
}

// Derive returns an independent source for the given stream number. The new
// seed is a SplitMix64 mix of this source's seed and the stream, so derived
// streams do not overlap with the parent or with each other.
func (r *RandSource) Derive(stream uint64) *RandSource {
	z := uint64(r.seed) + 0x9e3779b97f4a7c15*(stream+1)
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	seed := int64(z)
	if seed == 0 {
		seed = 1
	}
	return &RandSource{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Global default random source
var defaultRand = NewRandSource(0)

// SetSeed sets the seed for the default random source
func SetSeed(seed int64) {
	defaultRand = NewRandSource(seed)
}

// Float64 returns a random float64 from the default source
func Float64() float64 {
	return defaultRand.Float64()
}

// Intn returns a random int from the default source
func Intn(n int) int {
	return defaultRand.Intn(n)
}
