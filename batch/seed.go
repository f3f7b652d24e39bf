package batch

import (
	"crypto/rand"
	"encoding/binary"
	"math"
)

// RandomSeed returns a non-negative seed from crypto/rand.
func RandomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return 42
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) & math.MaxInt64)
}

// SeedMode decides the image seed of each job in a batch.
type SeedMode string

const (
	// SeedFixed gives every job the base seed.
	SeedFixed SeedMode = "fixed"
	// SeedIncrement gives job i the base seed plus i.
	SeedIncrement SeedMode = "increment"
	// SeedRandom draws a fresh seed per job.
	SeedRandom SeedMode = "random"
)

// Valid reports whether m is a known mode. The empty mode counts as
// SeedRandom.
func (m SeedMode) Valid() bool {
	switch m {
	case "", SeedFixed, SeedIncrement, SeedRandom:
		return true
	}
	return false
}

// Seeds returns n image seeds for mode starting from base. A negative
// base is replaced with a random one for fixed and increment modes.
// Incremented seeds wrap within the non-negative int64 range.
func Seeds(mode SeedMode, base int64, n int, random func() int64) []int64 {
	if random == nil {
		random = RandomSeed
	}
	if base < 0 && (mode == SeedFixed || mode == SeedIncrement) {
		base = random()
	}
	out := make([]int64, n)
	for i := range out {
		switch mode {
		case SeedFixed:
			out[i] = base
		case SeedIncrement:
			out[i] = int64((uint64(base) + uint64(i)) & math.MaxInt64)
		default:
			out[i] = random()
		}
	}
	return out
}
