package sender

import "math/rand"

// Chooser picks interface positions uniformly at random from a seeded
// source, so the sequence is the same on every run with the same seed.
type Chooser struct {
	rng *rand.Rand
	n   int
}

// NewChooser returns a chooser over n interfaces.
func NewChooser(seed int64, n int) *Chooser {
	return &Chooser{rng: rand.New(rand.NewSource(seed)), n: n}
}

// Next returns a position in [0, n).
func (c *Chooser) Next() int {
	if c.n <= 1 {
		return 0
	}
	return c.rng.Intn(c.n)
}
