// fuzz_test.go: Fuzz tests for locker and helper bundle parsing.
//
// Usage:
//
//	go test -fuzz=FuzzParseLocker
//	go test -fuzz=FuzzUnmarshalBundle -fuzztime=30s
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/agilira/proteus"
)

// FuzzParseLocker checks that arbitrary input never panics and that anything
// parsed re-encodes to the same bytes.
func FuzzParseLocker(f *testing.F) {
	l, err := fuzzy.Lock([]byte("AABBCCDD"), []byte("secret"), nil)
	if err != nil {
		f.Fatalf("Lock failed: %v", err)
	}
	valid, _ := l.MarshalBinary()

	f.Add(valid)
	f.Add([]byte{})
	f.Add(valid[:20])
	f.Add(bytes.Repeat([]byte{0xFF}, 40))

	f.Fuzz(func(t *testing.T, data []byte) {
		parsed, err := fuzzy.ParseLocker(data, fuzzy.DefaultNonceLen, fuzzy.SHA256())
		if err != nil {
			if !errors.Is(err, fuzzy.ErrMalformed) {
				t.Fatalf("unexpected error class: %v", err)
			}
			return
		}
		encoded, err := parsed.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary failed on a parsed locker: %v", err)
		}
		if !bytes.Equal(encoded, data) {
			t.Fatal("re-encoding differs from the parsed input")
		}
		if _, _, err := parsed.Unlock([]byte("AABBCCDD")); err != nil {
			t.Fatalf("Unlock failed on a parsed locker: %v", err)
		}
	})
}

// FuzzUnmarshalBundle checks that arbitrary bundle bytes never panic and only
// fail with ErrMalformed.
func FuzzUnmarshalBundle(f *testing.F) {
	extractor, err := fuzzy.NewExtractor(4, 1, fuzzy.FastParams())
	if err != nil {
		f.Fatalf("NewExtractor failed: %v", err)
	}
	_, helpers, err := extractor.Generate([]byte("PUF!"))
	if err != nil {
		f.Fatalf("Generate failed: %v", err)
	}
	valid, _ := helpers.MarshalBinary()

	f.Add(valid)
	f.Add([]byte("PXHB"))
	f.Add(valid[:50])

	f.Fuzz(func(t *testing.T, data []byte) {
		var b fuzzy.HelperBundle
		if err := b.UnmarshalBinary(data); err != nil {
			if !errors.Is(err, fuzzy.ErrMalformed) {
				t.Fatalf("unexpected error class: %v", err)
			}
			return
		}
		if err := b.Validate(); err != nil {
			t.Fatalf("decoded bundle fails validation: %v", err)
		}
	})
}
