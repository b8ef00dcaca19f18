package memhost

import (
	"math/rand"
	"sync"
)

// RNG is a seedable kad.RNG, deterministic given a seed so random-walk
// tests can assert on specific target ids.
type RNG struct {
	mu  sync.Mutex
	src *rand.Rand
}

// NewRNG builds an RNG seeded with seed.
func NewRNG(seed int64) *RNG {
	return &RNG{src: rand.New(rand.NewSource(seed))}
}

func (r *RNG) FillRandomly(buf []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.src.Read(buf)
}
