// seal.go: Authenticated encryption of data under an extracted key.
//
// Extracted keys have the length of the source reading, not the 32 bytes
// AES-256 needs. Seal and Open first expand the extracted key with HKDF-SHA256
// and then use AES-256-GCM, so a reproduced key can protect arbitrary data.
//
// Sealed form (base64 of): nonce[12] || ciphertext || tag[16]
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	goerrors "github.com/agilira/go-errors"
	"golang.org/x/crypto/hkdf"
)

// SealKeySize is the size of the AES-256 key derived from an extracted key.
const SealKeySize = 32

var (
	// ErrCipherInit is returned when AES-GCM initialization fails.
	ErrCipherInit = errors.New("fuzzy: cipher initialization error")

	// ErrDecrypt is returned when sealed data fails authentication: wrong
	// key, tampered ciphertext or mismatched associated data.
	ErrDecrypt = errors.New("fuzzy: decryption error")
)

// Error codes for sealing
const (
	ErrCodeCipherInit = "FUZZY_CIPHER_INIT"
	ErrCodeDecrypt    = "FUZZY_DECRYPT"
)

var sealInfo = []byte("proteus-seal-v1")

// SealingKey expands an extracted key into an AES-256 key. The same
// extracted key always yields the same sealing key.
func SealingKey(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, goerrors.New(ErrCodeInvalidParameter, "extracted key is empty"))
	}
	out := make([]byte, SealKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, sealInfo), out); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeDerivation, "failed to expand sealing key")
		return nil, fmt.Errorf("%w: %w", ErrDerivation, richErr)
	}
	return out, nil
}

// newGCM builds AES-256-GCM over the sealing key of an extracted key.
func newGCM(key []byte) (cipher.AEAD, error) {
	sealKey, err := SealingKey(key)
	if err != nil {
		return nil, err
	}
	defer Zeroize(sealKey)

	block, err := aes.NewCipher(sealKey)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeCipherInit, "failed to create AES cipher")
		return nil, fmt.Errorf("%w: %w", ErrCipherInit, richErr)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeCipherInit, "failed to create GCM cipher")
		return nil, fmt.Errorf("%w: %w", ErrCipherInit, richErr)
	}
	return gcm, nil
}

// Seal encrypts plaintext under an extracted key with optional associated
// data, which is authenticated but not encrypted.
//
// Example:
//
//	key, helpers, _ := extractor.Generate(reading)
//	sealed, err := fuzzy.Seal(key, document, []byte(helpers.ID.String()))
//	fuzzy.Zeroize(key)
//
// Empty plaintext is supported.
func Seal(key, plaintext, aad []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize(), gcm.NonceSize()+len(plaintext)+gcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeRandomSource, "failed to generate nonce")
		return "", fmt.Errorf("%w: %w", ErrRandomSource, richErr)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, aad) // #nosec G407 -- nonce is generated from crypto/rand, not hardcoded
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts data produced by Seal. The key must be the extracted key
// Seal was given, typically recovered with Reproduce.
//
// The function will return an error if:
//   - The key is empty
//   - The base64 decoding fails or the data is too short (ErrMalformed)
//   - Authentication fails (ErrDecrypt)
func Open(key []byte, sealed string, aad []byte) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeMalformed, "failed to decode base64")
		return nil, fmt.Errorf("%w: %w", ErrMalformed, richErr)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize()+gcm.Overhead() {
		richErr := goerrors.New(ErrCodeMalformed, "sealed data too short")
		return nil, fmt.Errorf("%w: %w", ErrMalformed, richErr)
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeDecrypt, "GCM decryption failed (wrong key, tampered data, or AAD mismatch)")
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, richErr)
	}
	return plaintext, nil
}
