// Package rng provides a portable, seeded pseudo-random generator.
//
// A string seed is hashed with xmur3 into four 32-bit words that initialise an
// sfc32 generator. All arithmetic wraps modulo 2^32, so any implementation of
// the same algorithm yields the same sequence for the same seed.
package rng

import (
	"math"
	"math/bits"
)

const (
	hashInit = 1779033703
	hashMul  = 3432918353
	mixMul1  = 2246822507
	mixMul2  = 3266489909

	// twoPow32 maps a uint32 onto [0,1).
	twoPow32 = 4294967296.0

	// gaussianFloor replaces an exact zero draw before taking its log.
	gaussianFloor = 1e-12
)

// SeedFunc yields successive avalanche-mixed 32-bit seeds derived from a string.
type SeedFunc func() uint32

// Xmur3 hashes seed and returns a SeedFunc closed over the final hash state.
// Each call advances the state, so successive calls return decorrelated words.
func Xmur3(seed string) SeedFunc {
	h := uint32(hashInit)
	for _, r := range seed {
		h ^= uint32(r)
		h *= hashMul
		h = bits.RotateLeft32(h, 13)
	}

	return func() uint32 {
		h ^= h >> 16
		h *= mixMul1
		h ^= h >> 13
		h *= mixMul2
		h ^= h >> 16
		return h
	}
}

// Generator is an sfc32 ("simple fast counter") generator.
// It is not safe for concurrent use; create one per seed.
type Generator struct {
	a, b, c, d uint32
}

// NewSFC32 builds a generator from four explicit state words.
func NewSFC32(a, b, c, d uint32) *Generator {
	return &Generator{a: a, b: b, c: c, d: d}
}

// New returns a generator seeded from the xmur3 hash of seed.
func New(seed string) *Generator {
	next := Xmur3(seed)
	a := next()
	b := next()
	c := next()
	d := next()
	return NewSFC32(a, b, c, d)
}

// Uint32 advances the generator and returns the raw 32-bit output.
func (g *Generator) Uint32() uint32 {
	t := g.a + g.b
	g.a = g.b ^ (g.b >> 9)
	g.b = g.c + (g.c << 3)
	g.c = bits.RotateLeft32(g.c, 21)
	g.d++
	t += g.d
	g.c += t
	return t
}

// Float64 returns the next value in [0,1).
func (g *Generator) Float64() float64 {
	return float64(g.Uint32()) / twoPow32
}

// Gaussian draws a standard normal deviate with the Box-Muller transform.
// Two uniforms are consumed per call, u1 first.
func (g *Generator) Gaussian() float64 {
	u1 := g.Float64()
	if u1 == 0 {
		u1 = gaussianFloor
	}
	u2 := g.Float64()
	if u2 == 0 {
		u2 = gaussianFloor
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}
