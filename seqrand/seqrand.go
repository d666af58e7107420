// Package seqrand implements a replayable sequence of bounded random
// integers, seeded from a cryptographically secure source.
//
// A [Generator] draws from an append-only buffer of uint32 values. Calling
// [Generator.Reset] rewinds the read cursor, so that the same sequence of
// draws may be replayed, e.g. to reproduce a set of randomized values within
// a single reset cycle:
//
//	g, err := seqrand.New()
//	if err != nil {
//	    return err
//	}
//	a, _ := g.Intn(10)
//	b, _ := g.Intn(10)
//	g.Reset()
//	// the next two draws are a, then b
//
// Generators are not safe for concurrent use.
package seqrand

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// InitialSize is the number of values seeded by [New].
const InitialSize = 10

var (
	// ErrRandomUnavailable indicates the secure random source failed.
	// There is no fallback to a weaker source.
	ErrRandomUnavailable = errors.New(`seqrand: secure random source unavailable`)

	// ErrInvalidLimit is returned by [Generator.Intn] for non-positive limits.
	ErrInvalidLimit = errors.New(`seqrand: limit must be positive`)
)

// Generator is a replayable sequence of random values. The zero value is not
// usable, use [New] or [NewFromReader].
type Generator struct {
	source io.Reader
	buf    []uint32
	cursor int
}

// New seeds a generator from [crypto/rand.Reader].
func New() (*Generator, error) {
	return NewFromReader(rand.Reader)
}

// NewFromReader seeds a generator from the given source, which must be a
// secure random source. It is exposed primarily for testing. Any failure to
// read from the source is returned, wrapping [ErrRandomUnavailable].
func NewFromReader(source io.Reader) (*Generator, error) {
	if source == nil {
		return nil, ErrRandomUnavailable
	}
	g := &Generator{source: source}
	if err := g.grow(InitialSize); err != nil {
		return nil, err
	}
	return g, nil
}

// Reset rewinds the generator to the start of its sequence. The buffer is
// left untouched.
func (g *Generator) Reset() {
	g.cursor = 0
}

// Len returns the number of values currently buffered.
func (g *Generator) Len() int {
	return len(g.buf)
}

// Intn returns the next value in the sequence, reduced to [0, limit).
//
// The reduction is a plain modulo, which is biased towards smaller values
// when limit is large relative to the uint32 range. This is accepted, the
// values are offsets, not key material.
//
// Reading past the end of the buffer grows it with fresh values. Values
// already drawn keep their positions, so a replay after [Generator.Reset]
// returns the same prefix.
func (g *Generator) Intn(limit int) (int, error) {
	if limit <= 0 {
		return 0, ErrInvalidLimit
	}
	if g.cursor >= len(g.buf) {
		if err := g.grow(2 * (g.cursor + 1)); err != nil {
			return 0, err
		}
	}
	v := g.buf[g.cursor]
	g.cursor++
	return int(uint64(v) % uint64(limit)), nil
}

// grow extends the buffer to n values, appending only.
func (g *Generator) grow(n int) error {
	if n <= len(g.buf) {
		return nil
	}
	raw := make([]byte, 4*(n-len(g.buf)))
	if _, err := io.ReadFull(g.source, raw); err != nil {
		return fmt.Errorf(`%w: %w`, ErrRandomUnavailable, err)
	}
	for i := 0; i < len(raw); i += 4 {
		g.buf = append(g.buf, binary.LittleEndian.Uint32(raw[i:]))
	}
	return nil
}
