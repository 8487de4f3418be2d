package headless

import (
	"math/rand/v2"
)

// Random is a seeded PCG source. Its full state round-trips through
// MarshalBinary, so a session restores the exact sequence a module saw.
type Random struct {
	src *rand.PCG
	rng *rand.Rand
}

// NewRandom creates a source from a seed.
func NewRandom(seed uint64) *Random {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Random{src: src, rng: rand.New(src)}
}

// Range returns a value in [lo, hi). An empty or inverted range returns lo.
func (r *Random) Range(lo, hi float32) float32 {
	if !(hi > lo) {
		return lo
	}
	v := lo + r.rng.Float32()*(hi-lo)
	if v >= hi {
		// Rounding can land on the upper bound
		return lo
	}
	return v
}

// Uint64 returns the next raw value.
func (r *Random) Uint64() uint64 { return r.rng.Uint64() }

func (r *Random) MarshalBinary() ([]byte, error) {
	return r.src.MarshalBinary()
}

func (r *Random) UnmarshalBinary(data []byte) error {
	return r.src.UnmarshalBinary(data)
}
