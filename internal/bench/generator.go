package bench

import (
	"math/rand/v2"

	"lwwmerge/internal/lww"
)

// MaxValue is the inclusive upper bound of generated sequence and value
// fields.
const MaxValue = 1000

// Generator fills register pairs with uniform integers in [0, MaxValue],
// independently per field. The same seed yields the same sequence of pairs.
// A Generator is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))}
}

// Pair returns a freshly allocated pair of n registers per replica.
func (g *Generator) Pair(n int) lww.ArrayPair {
	p := lww.NewArrayPair(n)
	g.fill(p.SeqA)
	g.fill(p.ValA)
	g.fill(p.SeqB)
	g.fill(p.ValB)
	return p
}

func (g *Generator) fill(dst []uint32) {
	for i := range dst {
		dst[i] = g.rng.Uint32N(MaxValue + 1)
	}
}
