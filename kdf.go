// kdf.go: Salted key derivation functions with arbitrary output length.
//
// A Deriver is the only hashing dependency of a digital locker. Lockers ask for
// exactly len(secret)+secLen bytes, so every Deriver here must produce outputs
// longer than a single hash block.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy

import (
	"crypto/sha1" // #nosec G505 -- HMAC-SHA1 inside PBKDF2 is still a PRF
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	goerrors "github.com/agilira/go-errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
	pbkdf2 "golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

// Deriver derives outLen pseudorandom bytes from an input and a salt.
//
// Implementations must be deterministic, must not retain input or salt, and
// must be safe for concurrent use.
type Deriver interface {
	// ID names the algorithm. It is recorded in helper bundles so that a
	// reproduction with a different algorithm is reported instead of
	// silently failing.
	ID() string

	// Derive returns exactly outLen bytes.
	Derive(input, salt []byte, outLen int) ([]byte, error)
}

// Deriver identifiers understood by DeriverByName.
const (
	DeriverSHA1       = "sha1"
	DeriverSHA256     = "sha256"
	DeriverSHA512     = "sha512"
	DeriverHKDFSHA256 = "hkdf-sha256"
	DeriverHKDFSHA512 = "hkdf-sha512"
	DeriverSHAKE128   = "shake128"
	DeriverSHAKE256   = "shake256"
	DeriverBLAKE2b    = "blake2b"
	DeriverArgon2id   = "argon2id"
)

// PBKDF2Deriver derives bytes with PBKDF2-HMAC.
//
// The built-in PBKDF2 derivers run a single iteration. Every helper round
// pays the iteration count again, so stretching multiplies enrollment and
// reproduction cost by the helper count.
type PBKDF2Deriver struct {
	id         string
	hash       func() hash.Hash
	iterations int
}

// NewPBKDF2Deriver returns a PBKDF2 deriver over the given hash.
func NewPBKDF2Deriver(id string, h func() hash.Hash, iterations int) (*PBKDF2Deriver, error) {
	if id == "" || h == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, goerrors.New(ErrCodeInvalidParameter, "deriver id and hash are required"))
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, goerrors.New(ErrCodeInvalidParameter, "iterations must be positive"))
	}
	return &PBKDF2Deriver{id: id, hash: h, iterations: iterations}, nil
}

// SHA256 returns the default deriver: PBKDF2-HMAC-SHA256 with one iteration.
func SHA256() Deriver {
	return &PBKDF2Deriver{id: DeriverSHA256, hash: sha256.New, iterations: 1}
}

// SHA512 returns PBKDF2-HMAC-SHA512 with one iteration.
func SHA512() Deriver {
	return &PBKDF2Deriver{id: DeriverSHA512, hash: sha512.New, iterations: 1}
}

// SHA1 returns PBKDF2-HMAC-SHA1 with one iteration, for helper data produced
// by legacy enrollments.
func SHA1() Deriver {
	return &PBKDF2Deriver{id: DeriverSHA1, hash: sha1.New, iterations: 1}
}

// ID implements Deriver.
func (d *PBKDF2Deriver) ID() string { return d.id }

// Derive implements Deriver.
func (d *PBKDF2Deriver) Derive(input, salt []byte, outLen int) ([]byte, error) {
	if err := checkOutLen(outLen); err != nil {
		return nil, err
	}
	return pbkdf2.Key(input, salt, d.iterations, outLen, d.hash), nil
}

// HKDFDeriver derives bytes with HKDF (RFC 5869). The salt is the HKDF salt
// and the info string binds outputs to this library.
type HKDFDeriver struct {
	id   string
	hash func() hash.Hash
	info []byte
}

// HKDFSHA256 returns an HKDF-SHA256 deriver.
func HKDFSHA256() Deriver {
	return &HKDFDeriver{id: DeriverHKDFSHA256, hash: sha256.New, info: []byte("proteus-locker-v1")}
}

// HKDFSHA512 returns an HKDF-SHA512 deriver.
func HKDFSHA512() Deriver {
	return &HKDFDeriver{id: DeriverHKDFSHA512, hash: sha512.New, info: []byte("proteus-locker-v1")}
}

// ID implements Deriver.
func (d *HKDFDeriver) ID() string { return d.id }

// Derive implements Deriver. HKDF output is capped at 255 hash blocks.
func (d *HKDFDeriver) Derive(input, salt []byte, outLen int) ([]byte, error) {
	if err := checkOutLen(outLen); err != nil {
		return nil, err
	}
	if limit := 255 * d.hash().Size(); outLen > limit {
		richErr := goerrors.New(ErrCodeDerivation, fmt.Sprintf("output length %d exceeds HKDF limit %d", outLen, limit))
		return nil, fmt.Errorf("%w: %w", ErrDerivation, richErr)
	}

	out := make([]byte, outLen)
	if _, err := io.ReadFull(hkdf.New(d.hash, input, salt, d.info), out); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeDerivation, "HKDF expand failed")
		return nil, fmt.Errorf("%w: %w", ErrDerivation, richErr)
	}
	return out, nil
}

// SHAKEDeriver derives bytes from a SHAKE extendable-output function over
// len(salt) || salt || input.
type SHAKEDeriver struct {
	id  string
	new func() sha3.ShakeHash
}

// SHAKE128 returns a SHAKE128 deriver.
func SHAKE128() Deriver {
	return &SHAKEDeriver{id: DeriverSHAKE128, new: sha3.NewShake128}
}

// SHAKE256 returns a SHAKE256 deriver.
func SHAKE256() Deriver {
	return &SHAKEDeriver{id: DeriverSHAKE256, new: sha3.NewShake256}
}

// ID implements Deriver.
func (d *SHAKEDeriver) ID() string { return d.id }

// Derive implements Deriver.
func (d *SHAKEDeriver) Derive(input, salt []byte, outLen int) ([]byte, error) {
	if err := checkOutLen(outLen); err != nil {
		return nil, err
	}
	xof := d.new()
	writePrefixed(xof, salt)
	_, _ = xof.Write(input)

	out := make([]byte, outLen)
	_, _ = io.ReadFull(xof, out)
	return out, nil
}

// BLAKE2bXOFDeriver derives bytes from the BLAKE2Xb extendable-output function.
type BLAKE2bXOFDeriver struct{}

// BLAKE2b returns a BLAKE2Xb deriver.
func BLAKE2b() Deriver { return BLAKE2bXOFDeriver{} }

// ID implements Deriver.
func (BLAKE2bXOFDeriver) ID() string { return DeriverBLAKE2b }

// Derive implements Deriver.
func (BLAKE2bXOFDeriver) Derive(input, salt []byte, outLen int) ([]byte, error) {
	if err := checkOutLen(outLen); err != nil {
		return nil, err
	}
	xof, err := blake2b.NewXOF(uint32(outLen), nil) // #nosec G115 -- bounded by checkOutLen
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeDerivation, "failed to create BLAKE2b XOF")
		return nil, fmt.Errorf("%w: %w", ErrDerivation, richErr)
	}
	writePrefixed(xof, salt)
	_, _ = xof.Write(input)

	out := make([]byte, outLen)
	if _, err := io.ReadFull(xof, out); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeDerivation, "BLAKE2b XOF read failed")
		return nil, fmt.Errorf("%w: %w", ErrDerivation, richErr)
	}
	return out, nil
}

// Argon2idDeriver derives bytes with Argon2id.
//
// Every helper round pays the full Argon2id cost, so this deriver only makes
// sense with small helper counts (low Hamming budgets).
type Argon2idDeriver struct {
	// Time is the number of iterations. If zero, 1 is used.
	Time uint32 `json:"time,omitempty"`

	// Memory is the memory usage in KiB. If zero, 8 MiB is used.
	Memory uint32 `json:"memory,omitempty"`

	// Threads is the degree of parallelism. If zero, 1 is used.
	Threads uint8 `json:"threads,omitempty"`
}

// Argon2id returns an Argon2id deriver with light parameters suitable for
// per-round use.
func Argon2id() Deriver {
	return &Argon2idDeriver{Time: 1, Memory: 8 * 1024, Threads: 1}
}

// ID implements Deriver.
func (d *Argon2idDeriver) ID() string { return DeriverArgon2id }

// Derive implements Deriver.
func (d *Argon2idDeriver) Derive(input, salt []byte, outLen int) ([]byte, error) {
	if err := checkOutLen(outLen); err != nil {
		return nil, err
	}
	time, memory, threads := uint32(1), uint32(8*1024), uint8(1)
	if d.Time > 0 {
		time = d.Time
	}
	if d.Memory > 0 {
		memory = d.Memory
	}
	if d.Threads > 0 {
		threads = d.Threads
	}
	return argon2.IDKey(input, salt, time, memory, threads, uint32(outLen)), nil // #nosec G115 -- bounded by checkOutLen
}

// DeriverByName resolves a deriver identifier, as found in configuration
// files and helper bundle headers, to a Deriver.
func DeriverByName(name string) (Deriver, error) {
	switch name {
	case DeriverSHA1:
		return SHA1(), nil
	case DeriverSHA256, "":
		return SHA256(), nil
	case DeriverSHA512:
		return SHA512(), nil
	case DeriverHKDFSHA256:
		return HKDFSHA256(), nil
	case DeriverHKDFSHA512:
		return HKDFSHA512(), nil
	case DeriverSHAKE128:
		return SHAKE128(), nil
	case DeriverSHAKE256:
		return SHAKE256(), nil
	case DeriverBLAKE2b:
		return BLAKE2b(), nil
	case DeriverArgon2id:
		return Argon2id(), nil
	}
	richErr := goerrors.New(ErrCodeUnknownDeriver, fmt.Sprintf("no deriver registered as %q", name))
	return nil, fmt.Errorf("%w: %w", ErrUnknownDeriver, richErr)
}

// checkOutLen bounds a derivation request by the largest cipher a locker can encode.
func checkOutLen(outLen int) error {
	if outLen <= 0 || outLen > maxCipherLen {
		richErr := goerrors.New(ErrCodeDerivation, fmt.Sprintf("output length must be between 1 and %d, got %d", maxCipherLen, outLen))
		return fmt.Errorf("%w: %w", ErrDerivation, richErr)
	}
	return nil
}

// writePrefixed writes len(b) as a big-endian uint32 followed by b.
func writePrefixed(w io.Writer, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b))) // #nosec G115 -- salts are bounded by the nonce length
	_, _ = w.Write(n[:])
	_, _ = w.Write(b)
}
