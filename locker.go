// locker.go: Digital locker primitive.
//
// A digital locker hides a secret behind key material. Lock derives a pad from
// the key material and a fresh salt and XORs it with the secret followed by
// secLen zero bytes. Unlock recomputes the pad; the secret is released only if
// the trailing check bytes come out as zero, which happens by chance with
// probability 2^(-8*secLen) for any other key material.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	goerrors "github.com/agilira/go-errors"
)

const (
	// DefaultSecLen is the default number of zero check bytes.
	DefaultSecLen = 2

	// DefaultNonceLen is the default salt length in bytes.
	DefaultNonceLen = 16

	// maxCipherLen is the largest cipher the uint16 length field can describe.
	maxCipherLen = 1<<16 - 1

	// lockerHeaderLen is the size of the secLen and cipherLen fields.
	lockerHeaderLen = 4
)

// LockerParams configures Lock.
//
// If a field is zero, the library's default will be used.
type LockerParams struct {
	// Deriver produces the pad. If nil, SHA256() is used.
	Deriver Deriver `json:"-"`

	// SecLen is the number of zero check bytes appended to the secret.
	// If zero, DefaultSecLen is used; this is the only value below 1 that
	// is accepted, negative values are rejected with ErrInvalidParameter.
	SecLen int `json:"sec_len,omitempty"`

	// NonceLen is the salt length. If zero, DefaultNonceLen is used.
	NonceLen int `json:"nonce_len,omitempty"`

	// Random supplies salts. If nil, crypto/rand.Reader is used.
	Random io.Reader `json:"-"`
}

// resolve fills defaults and validates the parameters.
func (p *LockerParams) resolve() (LockerParams, error) {
	out := LockerParams{
		Deriver:  SHA256(),
		SecLen:   DefaultSecLen,
		NonceLen: DefaultNonceLen,
		Random:   rand.Reader,
	}
	if p == nil {
		return out, nil
	}

	if p.SecLen < 0 || p.SecLen > maxCipherLen {
		return out, fmt.Errorf("%w: %w", ErrInvalidParameter, goerrors.New(ErrCodeInvalidParameter, fmt.Sprintf("sec_len must be between 1 and %d, got %d", maxCipherLen, p.SecLen)))
	}
	if p.NonceLen < 0 || p.NonceLen > maxCipherLen {
		return out, fmt.Errorf("%w: %w", ErrInvalidParameter, goerrors.New(ErrCodeInvalidParameter, fmt.Sprintf("nonce_len must be between 1 and %d, got %d", maxCipherLen, p.NonceLen)))
	}
	if p.Deriver != nil {
		out.Deriver = p.Deriver
	}
	if p.SecLen > 0 {
		out.SecLen = p.SecLen
	}
	if p.NonceLen > 0 {
		out.NonceLen = p.NonceLen
	}
	if p.Random != nil {
		out.Random = p.Random
	}
	return out, nil
}

// Locker is a digital locker.
//
// The zero value is an empty locker: Unlock and MarshalBinary on it report
// ErrIllegalState. Sealed lockers are only produced by Lock and ParseLocker and
// are immutable, so they are safe for concurrent use.
type Locker struct {
	salt    []byte
	cipher  []byte
	secLen  int
	deriver Deriver
}

// Lock seals secret under keyMaterial.
//
// Secrets of any length are accepted as long as len(secret)+SecLen fits the
// 16-bit cipher length of the wire form. A fresh salt is drawn for every call,
// so locking the same secret twice never reuses a pad.
//
// Example:
//
//	locker, err := fuzzy.Lock(keyMaterial, secret, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	recovered, ok, err := locker.Unlock(keyMaterial)
func Lock(keyMaterial, secret []byte, params *LockerParams) (*Locker, error) {
	p, err := params.resolve()
	if err != nil {
		return nil, err
	}
	return lock(keyMaterial, secret, p)
}

// lock seals secret with already resolved parameters.
func lock(keyMaterial, secret []byte, p LockerParams) (*Locker, error) {
	cipherLen := len(secret) + p.SecLen
	if cipherLen > maxCipherLen {
		richErr := goerrors.New(ErrCodeInvalidParameter, fmt.Sprintf("secret plus check bytes must not exceed %d bytes, got %d", maxCipherLen, cipherLen))
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, richErr)
	}

	salt, err := readRandom(p.Random, p.NonceLen)
	if err != nil {
		return nil, err
	}

	pad, err := p.Deriver.Derive(keyMaterial, salt, cipherLen)
	if err != nil {
		return nil, err
	}
	if len(pad) != cipherLen {
		richErr := goerrors.New(ErrCodeDerivation, fmt.Sprintf("deriver %s returned %d bytes, want %d", p.Deriver.ID(), len(pad), cipherLen))
		return nil, fmt.Errorf("%w: %w", ErrDerivation, richErr)
	}

	// The check bytes are zero, so the pad tail is the cipher tail as is.
	subtle.XORBytes(pad, pad[:len(secret)], secret)

	return &Locker{salt: salt, cipher: pad, secLen: p.SecLen, deriver: p.Deriver}, nil
}

// Sealed reports whether the locker holds a secret.
func (l *Locker) Sealed() bool {
	return l != nil && l.cipher != nil && l.deriver != nil
}

// Unlock releases the secret if keyMaterial matches the key material it was
// locked under.
//
// A mismatch is not an error: Unlock returns (nil, false, nil). Errors are
// reserved for an empty locker (ErrIllegalState) and derivation failures.
func (l *Locker) Unlock(keyMaterial []byte) ([]byte, bool, error) {
	if !l.Sealed() {
		return nil, false, fmt.Errorf("%w: %w", ErrIllegalState, goerrors.New(ErrCodeIllegalState, "cannot unlock a locker with nothing in it"))
	}

	if l.secLen < 1 || l.secLen > len(l.cipher) {
		richErr := goerrors.New(ErrCodeIllegalState, fmt.Sprintf("locker has %d check bytes for a %d-byte cipher", l.secLen, len(l.cipher)))
		return nil, false, fmt.Errorf("%w: %w", ErrIllegalState, richErr)
	}

	plain, err := l.deriver.Derive(keyMaterial, l.salt, len(l.cipher))
	if err != nil {
		return nil, false, err
	}
	defer Zeroize(plain)
	if len(plain) != len(l.cipher) {
		richErr := goerrors.New(ErrCodeDerivation, fmt.Sprintf("deriver %s returned %d bytes, want %d", l.deriver.ID(), len(plain), len(l.cipher)))
		return nil, false, fmt.Errorf("%w: %w", ErrDerivation, richErr)
	}
	subtle.XORBytes(plain, plain, l.cipher)

	n := len(plain) - l.secLen
	var check byte
	for _, b := range plain[n:] {
		check |= b
	}
	if subtle.ConstantTimeByteEq(check, 0) != 1 {
		return nil, false, nil
	}

	secret := make([]byte, n)
	copy(secret, plain[:n])
	return secret, true, nil
}

// SecLen returns the number of check bytes, or 0 for an empty locker.
func (l *Locker) SecLen() int {
	if !l.Sealed() {
		return 0
	}
	return l.secLen
}

// DeriverID returns the identifier of the locker's deriver, or "" for an empty locker.
func (l *Locker) DeriverID() string {
	if !l.Sealed() {
		return ""
	}
	return l.deriver.ID()
}

// WireSize returns the length of the locker's binary encoding.
func (l *Locker) WireSize() int {
	if !l.Sealed() {
		return 0
	}
	return len(l.salt) + lockerHeaderLen + len(l.cipher)
}

// MarshalBinary encodes a sealed locker as
//
//	salt || secLen:uint16 || cipherLen:uint16 || cipher
//
// with big-endian integers. The deriver is not part of the encoding; whoever
// parses it must supply the same deriver, or every Unlock will report a
// mismatch.
func (l *Locker) MarshalBinary() ([]byte, error) {
	if !l.Sealed() {
		return nil, fmt.Errorf("%w: %w", ErrIllegalState, goerrors.New(ErrCodeIllegalState, "cannot encode an empty locker"))
	}
	return appendLockerWire(make([]byte, 0, l.WireSize()), l.salt, l.secLen, l.cipher), nil
}

// ParseLocker decodes a locker produced by MarshalBinary. nonceLen and deriver
// must match the values used at lock time.
func ParseLocker(data []byte, nonceLen int, deriver Deriver) (*Locker, error) {
	if deriver == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, goerrors.New(ErrCodeInvalidParameter, "deriver is required"))
	}
	if nonceLen <= 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, goerrors.New(ErrCodeInvalidParameter, "nonce length must be positive"))
	}

	salt, secLen, cipher, n, err := readLockerWire(data, nonceLen)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		richErr := goerrors.New(ErrCodeMalformed, fmt.Sprintf("%d trailing bytes after locker", len(data)-n))
		return nil, fmt.Errorf("%w: %w", ErrMalformed, richErr)
	}
	return newSealedLocker(salt, cipher, secLen, deriver), nil
}

// newSealedLocker builds a locker from copies of salt and cipher.
func newSealedLocker(salt, cipher []byte, secLen int, deriver Deriver) *Locker {
	return &Locker{
		salt:    append([]byte(nil), salt...),
		cipher:  append([]byte(nil), cipher...),
		secLen:  secLen,
		deriver: deriver,
	}
}

// appendLockerWire appends the wire form of a locker to dst.
func appendLockerWire(dst, salt []byte, secLen int, cipher []byte) []byte {
	dst = append(dst, salt...)
	dst = binary.BigEndian.AppendUint16(dst, uint16(secLen))      // #nosec G115 -- validated at lock time
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(cipher))) // #nosec G115 -- validated at lock time
	return append(dst, cipher...)
}

// readLockerWire parses one locker from the front of data and returns the
// number of bytes consumed. The returned slices alias data.
func readLockerWire(data []byte, nonceLen int) (salt []byte, secLen int, cipher []byte, n int, err error) {
	if len(data) < nonceLen+lockerHeaderLen {
		richErr := goerrors.New(ErrCodeMalformed, fmt.Sprintf("locker too short: %d bytes", len(data)))
		return nil, 0, nil, 0, fmt.Errorf("%w: %w", ErrMalformed, richErr)
	}

	salt = data[:nonceLen]
	secLen = int(binary.BigEndian.Uint16(data[nonceLen:]))
	cipherLen := int(binary.BigEndian.Uint16(data[nonceLen+2:]))
	if secLen < 1 || cipherLen < secLen {
		richErr := goerrors.New(ErrCodeMalformed, fmt.Sprintf("invalid locker lengths: sec_len=%d cipher_len=%d", secLen, cipherLen))
		return nil, 0, nil, 0, fmt.Errorf("%w: %w", ErrMalformed, richErr)
	}

	n = nonceLen + lockerHeaderLen + cipherLen
	if len(data) < n {
		richErr := goerrors.New(ErrCodeMalformed, fmt.Sprintf("locker cipher truncated: want %d bytes, have %d", n, len(data)))
		return nil, 0, nil, 0, fmt.Errorf("%w: %w", ErrMalformed, richErr)
	}
	return salt, secLen, data[nonceLen+lockerHeaderLen : n], n, nil
}
