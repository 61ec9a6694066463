// keyutils.go: Key utilities for random generation, export, zeroization, and fingerprinting.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	goerrors "github.com/agilira/go-errors"
)

// KeyToHex encodes a key as a hexadecimal string.
//
// Example:
//
//	key, helpers, _ := extractor.Generate(reading)
//	fmt.Println("Key:", fuzzy.KeyToHex(key))
func KeyToHex(key []byte) string {
	return hex.EncodeToString(key)
}

// KeyFromHex decodes a hexadecimal string to a key.
func KeyFromHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, goerrors.Wrap(err, "HEX_DECODE_ERROR", "failed to decode hex key")
	}
	return key, nil
}

// Zeroize securely wipes a byte slice from memory.
//
// Keys returned by Generate and Reproduce are owned by the caller; wipe them
// with Zeroize as soon as they are no longer needed.
//
// Note: This function modifies the original slice in place.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GetKeyFingerprint generates a fingerprint for a key (non-cryptographic).
//
// The fingerprint is the first 8 bytes of SHA-256 in hex. It identifies a key
// in logs without exposing the key material. An empty key yields "".
func GetKeyFingerprint(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	hash := sha256.Sum256(key)
	return fmt.Sprintf("%016x", hash[:8])
}

// GenerateKey generates a cryptographically secure random key of the given length.
//
// Extractors draw their keys from their configured random source; this function
// always uses crypto/rand.
func GenerateKey(length int) ([]byte, error) {
	if length <= 0 {
		return nil, goerrors.New("INVALID_KEY_SIZE", "key size must be positive")
	}
	return readRandom(rand.Reader, length)
}

// GenerateNonce generates a cryptographically secure random nonce of the given size.
func GenerateNonce(size int) ([]byte, error) {
	if size <= 0 {
		return nil, goerrors.New("INVALID_NONCE_SIZE", "nonce size must be positive")
	}
	return readRandom(rand.Reader, size)
}

// readRandom draws exactly n bytes from r.
func readRandom(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeRandomSource, fmt.Sprintf("failed to read %d random bytes", n))
		return nil, fmt.Errorf("%w: %w", ErrRandomSource, richErr)
	}
	return buf, nil
}

// syncReader serializes reads so that a random source which is not safe for
// concurrent use can feed parallel helper rounds.
type syncReader struct {
	mu sync.Mutex
	r  io.Reader
}

func (s *syncReader) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Read(p)
}

// andBytes stores a AND b into dst. All three slices must have equal length.
func andBytes(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] & b[i]
	}
}
