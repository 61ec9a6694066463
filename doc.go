// Package fuzzy derives stable cryptographic keys from noisy readings.
//
// It implements the reusable fuzzy extractor of Canetti et al. ("Reusable
// Fuzzy Extractors for Low-Entropy Distributions") on top of a digital locker
// primitive. Two readings of the same source (a biometric template, a PUF
// response, any measurement with bit-level noise) that differ in at most a
// configured number of bits reproduce the same key. The key itself is never
// stored: only public helper data is.
//
// The package offers:
//   - Digital lockers with extendable-output key derivation (Lock, Unlock)
//   - Fuzzy extractor enrollment and reproduction (Generate, Reproduce)
//   - Helper-count derivation tying error tolerance to failure probability
//   - Binary, base64, JSON and streaming encodings for helper bundles
//   - Pluggable key derivation (PBKDF2, HKDF, SHAKE, BLAKE2Xb, Argon2id)
//   - Pluggable entropy providers through github.com/agilira/go-plugins
//
// # Quick Start
//
// Enrollment and reproduction:
//
//	// Readings are 32 bytes; tolerate up to 4 flipped bits
//	extractor, err := fuzzy.NewExtractor(32, 4, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Enroll: keep helpers, use the key, then wipe it
//	key, helpers, err := extractor.Generate(reading)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer fuzzy.Zeroize(key)
//
//	// Later, with a fresh and slightly different reading
//	recovered, ok, err := extractor.Reproduce(newReading, helpers)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if !ok {
//		// Reading too far from the enrolled one: ask for another
//	}
//
// # Helper Data
//
// Helper bundles are public and can be persisted with any of:
//
//	data, _ := helpers.MarshalBinary()     // compact binary form
//	text, _ := fuzzy.EncodeBundle(helpers) // base64 of the binary form
//	js, _ := json.Marshal(helpers)         // JSON with base64 fields
//
// A bundle records the identifier of the deriver that produced it. Reproduce
// reports ErrBundleMismatch when an extractor with another deriver, length or
// locker geometry is used, instead of silently failing every round.
//
// # Digital Lockers
//
// Lockers can also be used on their own:
//
//	locker, err := fuzzy.Lock(keyMaterial, secret, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	data, _ := locker.MarshalBinary()
//
//	parsed, err := fuzzy.ParseLocker(data, fuzzy.DefaultNonceLen, fuzzy.SHA256())
//	secret, ok, err := parsed.Unlock(keyMaterial)
//
// The locker wire form does not name its deriver; the caller supplies it.
//
// # Error Handling
//
// A reading that does not reproduce the key is not an error: Unlock and
// Reproduce report it through their boolean result. Errors are reserved for
// caller mistakes and environment failures and can be matched with errors.Is:
//
//	key, ok, err := extractor.Reproduce(reading, helpers)
//	if errors.Is(err, fuzzy.ErrLengthMismatch) {
//		// Reading has the wrong size
//	}
//
// Rich error codes are attached with github.com/agilira/go-errors.
//
// # Security Considerations
//
//   - Rejection of dissimilar readings is statistical, not guaranteed: a
//     reading far outside the Hamming budget can still hit a helper round
//     whose mask avoids every differing bit.
//   - Each Unlock accepts unrelated key material with probability
//     2^(-8*SecLen); a bundle multiplies that by its helper count.
//   - Salts are drawn per locker and never reused.
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra library
// SPDX-License-Identifier: MPL-2.0
package fuzzy
