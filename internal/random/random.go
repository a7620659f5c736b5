// Package random provides the engine's sources of randomness.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	mathrand "math/rand"
	"sync"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Source is a math/rand generator safe for concurrent use.
type Source struct {
	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewSource(seed int64) *Source {
	return &Source{rand: mathrand.New(mathrand.NewSource(seed))}
}

// NewSeededSource seeds a Source from crypto/rand.
func NewSeededSource() (*Source, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewSource(seed), nil
}

// Float64 returns a value in [0, 1).
func (s *Source) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

// Sequence replays fixed values, wrapping around. Used for deterministic draws.
type Sequence struct {
	mu     sync.Mutex
	values []float64
	next   int
}

func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Code returns n characters drawn uniformly from A-Z0-9 using crypto/rand.
func Code(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("code length must be > 0")
	}
	max := big.NewInt(int64(len(codeAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := crand.Int(crand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random code: %w", err)
		}
		out[i] = codeAlphabet[idx.Int64()]
	}
	return string(out), nil
}
