package gen

import (
	"math/rand"
)

// The filler alphabet spans 58 consecutive code points starting at 'A'. It
// runs past 'Z' into punctuation and lowercase ranges, which keeps generated
// bodies high-entropy without leaving ASCII (one byte per character).
const (
	alphabetStart = 'A'
	alphabetSize  = 58
)

// Context carries the seed state for fixture generation. Every derived value
// (file bodies, metadata fields) is a pure function of the seed, so two
// contexts created from the same seed produce byte-identical output.
type Context struct {
	seed int
	rng  *rand.Rand
}

// NewContext creates a generation context deterministically initialized from
// the given seed.
func NewContext(seed int) *Context {
	c := &Context{seed: seed}
	c.Reset()
	return c
}

// Seed returns the seed this context was created from.
func (c *Context) Seed() int {
	return c.seed
}

// Reset rewinds the underlying engine to its initial state, so the next
// generation run reproduces the same character stream.
func (c *Context) Reset() {
	c.rng = rand.New(rand.NewSource(int64(c.seed)))
}

// String returns a string of exactly n characters drawn uniformly from the
// filler alphabet.
func (c *Context) String(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(alphabetStart + c.rng.Intn(alphabetSize))
	}
	return string(b)
}
