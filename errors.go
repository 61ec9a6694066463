// errors.go: Error taxonomy for lockers, extractors and helper bundles.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy

import "errors"

// Public standard errors for drop-in compatibility.
// These errors can be used with errors.Is() for error checking.
//
// A failed reproduction is not an error: Unlock and Reproduce report it
// through their boolean result.
var (
	// ErrInvalidParameter is returned when an extractor or locker is configured
	// with out-of-range parameters.
	ErrInvalidParameter = errors.New("fuzzy: invalid parameter")

	// ErrLengthMismatch is returned when a source value does not have the
	// extractor's fixed length.
	ErrLengthMismatch = errors.New("fuzzy: value length mismatch")

	// ErrIllegalState is returned when an empty locker is unlocked or encoded.
	ErrIllegalState = errors.New("fuzzy: locker is empty")

	// ErrMalformed is returned when a locker or helper bundle encoding cannot be parsed.
	ErrMalformed = errors.New("fuzzy: malformed encoding")

	// ErrBundleMismatch is returned when a helper bundle was produced by an
	// extractor with a different configuration.
	ErrBundleMismatch = errors.New("fuzzy: helper bundle does not match extractor")

	// ErrRandomSource is returned when the random source fails to deliver bytes.
	ErrRandomSource = errors.New("fuzzy: random source failure")

	// ErrDerivation is returned when a Deriver cannot produce the requested output.
	ErrDerivation = errors.New("fuzzy: key derivation failure")

	// ErrUnknownDeriver is returned by DeriverByName for unregistered identifiers.
	ErrUnknownDeriver = errors.New("fuzzy: unknown deriver")
)

// Error codes for rich error handling
const (
	ErrCodeInvalidParameter = "FUZZY_INVALID_PARAMETER"
	ErrCodeLengthMismatch   = "FUZZY_LENGTH_MISMATCH"
	ErrCodeIllegalState     = "FUZZY_ILLEGAL_STATE"
	ErrCodeMalformed        = "FUZZY_MALFORMED"
	ErrCodeBundleMismatch   = "FUZZY_BUNDLE_MISMATCH"
	ErrCodeRandomSource     = "FUZZY_RANDOM_SOURCE"
	ErrCodeDerivation       = "FUZZY_DERIVATION"
	ErrCodeUnknownDeriver   = "FUZZY_UNKNOWN_DERIVER"
)
