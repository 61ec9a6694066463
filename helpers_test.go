// helpers_test.go: Shared fixtures for the fuzzy extractor tests.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy_test

import (
	"errors"
	"io"
	mrand "math/rand/v2"
	"testing"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// seededReader returns a deterministic byte stream for reproducible tests.
func seededReader(seed uint64) io.Reader {
	var s [32]byte
	for i := 0; i < 8; i++ {
		s[i] = byte(seed >> (8 * i))
	}
	return mrand.NewChaCha8(s)
}

// seededRand returns a deterministic math/rand generator.
func seededRand(seed uint64) *mrand.Rand {
	return mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// randomLetters returns n ASCII letters.
func randomLetters(rng *mrand.Rand, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = letters[rng.IntN(len(letters))]
	}
	return out
}

// flipBits returns a copy of value with n distinct bits flipped.
func flipBits(t *testing.T, rng *mrand.Rand, value []byte, n int) []byte {
	t.Helper()
	if n > len(value)*8 {
		t.Fatalf("cannot flip %d bits in %d bytes", n, len(value))
	}
	out := append([]byte(nil), value...)
	for _, pos := range rng.Perm(len(value) * 8)[:n] {
		out[pos/8] ^= 1 << (pos % 8)
	}
	return out
}

// hammingDistance counts differing bits.
func hammingDistance(a, b []byte) int {
	d := 0
	for i := range a {
		x := a[i] ^ b[i]
		for x != 0 {
			d += int(x & 1)
			x >>= 1
		}
	}
	return d
}

var errEntropyExhausted = errors.New("entropy exhausted")

// limitedReader serves limit bytes from r and then fails.
type limitedReader struct {
	r     io.Reader
	limit int
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.limit <= 0 {
		return 0, errEntropyExhausted
	}
	if len(p) > l.limit {
		p = p[:l.limit]
	}
	n, err := l.r.Read(p)
	l.limit -= n
	return n, err
}
