// params.go: Extractor parameters and helper-count derivation.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy

import (
	"fmt"
	"math"
	"runtime"

	goerrors "github.com/agilira/go-errors"
)

const (
	// DefaultReproduceError is the default probability that a reading within
	// the Hamming budget fails to reproduce the key.
	DefaultReproduceError = 0.001

	// MaxHelpers bounds the helper count of a single extractor. Beyond it a
	// helper bundle no longer fits comfortably in memory.
	MaxHelpers = 1 << 24
)

// Params defines optional parameters for NewExtractor.
//
// If a field is zero, the library's default will be used.
//
// Example:
//
//	params := &fuzzy.Params{
//		ReproduceError: 1e-6,
//		LockerParams:   fuzzy.LockerParams{Deriver: fuzzy.SHA512(), SecLen: 3},
//	}
//	extractor, err := fuzzy.NewExtractor(32, 4, params)
type Params struct {
	LockerParams

	// ReproduceError is the tolerated probability that a reading within the
	// Hamming budget does not reproduce the key. Must lie in (0, 1).
	// If zero, DefaultReproduceError is used.
	ReproduceError float64 `json:"reproduce_error,omitempty"`

	// Workers bounds the goroutines used per Generate or Reproduce call.
	// If zero, runtime.GOMAXPROCS(0) is used.
	Workers int `json:"workers,omitempty"`
}

// DefaultParams returns the defaults spelled out: SHA256, two check bytes,
// 16-byte salts and a 0.1% reproduce error.
func DefaultParams() *Params {
	return &Params{
		LockerParams: LockerParams{
			Deriver:  SHA256(),
			SecLen:   DefaultSecLen,
			NonceLen: DefaultNonceLen,
		},
		ReproduceError: DefaultReproduceError,
	}
}

// StrictParams returns parameters for high-value keys: a one-in-a-million
// reproduce error, four check bytes (false accepts at 2^-32 per round) and
// 32-byte salts over SHA512.
func StrictParams() *Params {
	return &Params{
		LockerParams: LockerParams{
			Deriver:  SHA512(),
			SecLen:   4,
			NonceLen: 32,
		},
		ReproduceError: 1e-6,
	}
}

// FastParams trades reliability for fewer helper rounds. Suitable for tests
// and for interactive flows where the caller can simply ask for another reading.
func FastParams() *Params {
	return &Params{
		LockerParams: LockerParams{
			Deriver:  SHA256(),
			SecLen:   DefaultSecLen,
			NonceLen: DefaultNonceLen,
		},
		ReproduceError: 0.05,
	}
}

// resolve fills defaults and validates the parameters.
func (p *Params) resolve() (LockerParams, float64, int, error) {
	var lp *LockerParams
	reproduceError := DefaultReproduceError
	workers := runtime.GOMAXPROCS(0)

	if p != nil {
		lp = &p.LockerParams
		if p.ReproduceError != 0 {
			reproduceError = p.ReproduceError
		}
		if p.Workers < 0 {
			richErr := goerrors.New(ErrCodeInvalidParameter, fmt.Sprintf("workers must not be negative, got %d", p.Workers))
			return LockerParams{}, 0, 0, fmt.Errorf("%w: %w", ErrInvalidParameter, richErr)
		}
		if p.Workers > 0 {
			workers = p.Workers
		}
	}

	resolved, err := lp.resolve()
	if err != nil {
		return LockerParams{}, 0, 0, err
	}
	return resolved, reproduceError, workers, nil
}

// NumHelpers returns the number of helper rounds needed so that a reading
// differing from the enrolled one in at most hammingBudget bits reproduces the
// key with probability at least 1-reproduceError:
//
//	bits = 8 * length
//	n    = round(bits^(hammingBudget/ln(bits)) * log2(2/reproduceError))
//
// following Canetti et al., "Reusable Fuzzy Extractors for Low-Entropy
// Distributions". The result is never below 1.
func NumHelpers(length, hammingBudget int, reproduceError float64) (int, error) {
	if length < 1 {
		richErr := goerrors.New(ErrCodeInvalidParameter, fmt.Sprintf("length must be at least 1 byte, got %d", length))
		return 0, fmt.Errorf("%w: %w", ErrInvalidParameter, richErr)
	}
	if hammingBudget < 1 {
		richErr := goerrors.New(ErrCodeInvalidParameter, fmt.Sprintf("hamming budget must be at least 1 bit, got %d", hammingBudget))
		return 0, fmt.Errorf("%w: %w", ErrInvalidParameter, richErr)
	}
	if math.IsNaN(reproduceError) || reproduceError <= 0 || reproduceError >= 1 {
		richErr := goerrors.New(ErrCodeInvalidParameter, fmt.Sprintf("reproduce error must lie in (0, 1), got %v", reproduceError))
		return 0, fmt.Errorf("%w: %w", ErrInvalidParameter, richErr)
	}

	bits := float64(length) * 8
	exponent := float64(hammingBudget) / math.Log(bits)
	// Ties round half to even. math.Round would change the helper count of such configurations.
	n := math.RoundToEven(math.Pow(bits, exponent) * math.Log2(2/reproduceError))

	if math.IsNaN(n) || math.IsInf(n, 0) || n > MaxHelpers {
		richErr := goerrors.New(ErrCodeInvalidParameter, fmt.Sprintf("hamming budget %d over %d bits needs more than %d helpers", hammingBudget, length*8, MaxHelpers))
		return 0, fmt.Errorf("%w: %w", ErrInvalidParameter, richErr)
	}
	if n < 1 {
		return 1, nil
	}
	return int(n), nil
}
