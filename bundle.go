// bundle.go: Public helper data produced at enrollment.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/google/uuid"
)

// HelperEntry is the public data of one helper round: the mask applied to the
// source value and the locker sealed under the masked value.
type HelperEntry struct {
	Mask   []byte `json:"mask"`
	Salt   []byte `json:"salt"`
	Cipher []byte `json:"cipher"`
}

// NewHelperEntry pairs a mask with a sealed locker, for bundles assembled
// outside Generate.
func NewHelperEntry(mask []byte, l *Locker) (HelperEntry, error) {
	if !l.Sealed() {
		return HelperEntry{}, fmt.Errorf("%w: %w", ErrIllegalState, goerrors.New(ErrCodeIllegalState, "cannot build a helper entry from an empty locker"))
	}
	return HelperEntry{
		Mask:   append([]byte(nil), mask...),
		Salt:   append([]byte(nil), l.salt...),
		Cipher: append([]byte(nil), l.cipher...),
	}, nil
}

// HelperBundle is the public helper data of one enrollment.
//
// A bundle carries no secret and may be stored anywhere. It must not be
// modified after Generate returns it; Reproduce treats entry order as the
// tie-break order.
type HelperBundle struct {
	ID        uuid.UUID     `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	DeriverID string        `json:"deriver"`
	Length    int           `json:"length"`
	SecLen    int           `json:"sec_len"`
	NonceLen  int           `json:"nonce_len"`
	Entries   []HelperEntry `json:"entries"`
}

// BundleHeader describes a helper bundle without its entries.
type BundleHeader struct {
	ID        uuid.UUID
	CreatedAt time.Time
	DeriverID string
	Length    int
	SecLen    int
	NonceLen  int
	Count     int
}

// Header returns the bundle's header.
func (b *HelperBundle) Header() BundleHeader {
	return BundleHeader{
		ID:        b.ID,
		CreatedAt: b.CreatedAt,
		DeriverID: b.DeriverID,
		Length:    b.Length,
		SecLen:    b.SecLen,
		NonceLen:  b.NonceLen,
		Count:     len(b.Entries),
	}
}

// Len returns the number of helper rounds in the bundle.
func (b *HelperBundle) Len() int {
	return len(b.Entries)
}

// Locker rebuilds the sealed locker of entry i with the given deriver.
// Returns ErrMalformed if the header or the entry is out of shape.
func (b *HelperBundle) Locker(i int, deriver Deriver) (*Locker, error) {
	if i < 0 || i >= len(b.Entries) {
		richErr := goerrors.New(ErrCodeInvalidParameter, fmt.Sprintf("entry %d out of range [0, %d)", i, len(b.Entries)))
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, richErr)
	}
	if deriver == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, goerrors.New(ErrCodeInvalidParameter, "deriver is required"))
	}
	h := b.Header()
	if err := h.validate(); err != nil {
		return nil, err
	}
	e := b.Entries[i]
	if err := h.validateEntry(e); err != nil {
		return nil, fmt.Errorf("entry %d: %w", i, err)
	}
	return newSealedLocker(e.Salt, e.Cipher, b.SecLen, deriver), nil
}

// Validate checks that the header is in range and that every entry has the
// lengths the header announces.
func (b *HelperBundle) Validate() error {
	if err := b.Header().validate(); err != nil {
		return err
	}
	for i := range b.Entries {
		if err := b.Header().validateEntry(b.Entries[i]); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

// MarshalBinary encodes the bundle in the format written by BundleWriter.
func (b *HelperBundle) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(b.Header().EncodedSize())
	if _, err := b.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a bundle produced by MarshalBinary.
func (b *HelperBundle) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	decoded, err := ReadBundle(r)
	if err != nil {
		return err
	}
	if r.Len() != 0 {
		richErr := goerrors.New(ErrCodeMalformed, fmt.Sprintf("%d trailing bytes after bundle", r.Len()))
		return fmt.Errorf("%w: %w", ErrMalformed, richErr)
	}
	*b = *decoded
	return nil
}

// WriteTo streams the bundle to w.
func (b *HelperBundle) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw, err := NewBundleWriter(cw, b.Header())
	if err != nil {
		return cw.n, err
	}
	for _, e := range b.Entries {
		if err := bw.WriteEntry(e); err != nil {
			return cw.n, err
		}
	}
	return cw.n, bw.Close()
}

// maxPrealloc bounds the entries allocated from an untrusted header count.
const maxPrealloc = 4096

// ReadBundle reads a whole bundle from r.
func ReadBundle(r io.Reader) (*HelperBundle, error) {
	br, err := NewBundleReader(r)
	if err != nil {
		return nil, err
	}
	h := br.Header()
	b := &HelperBundle{
		ID:        h.ID,
		CreatedAt: h.CreatedAt,
		DeriverID: h.DeriverID,
		Length:    h.Length,
		SecLen:    h.SecLen,
		NonceLen:  h.NonceLen,
		Entries:   make([]HelperEntry, 0, min(h.Count, maxPrealloc)),
	}
	for {
		e, err := br.Next()
		if err == io.EOF {
			return b, nil
		}
		if err != nil {
			return nil, err
		}
		b.Entries = append(b.Entries, e)
	}
}

// EncodeBundle returns the base64 form of the bundle's binary encoding, for
// storage in text columns and configuration files.
func EncodeBundle(b *HelperBundle) (string, error) {
	data, err := b.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeBundle is the inverse of EncodeBundle.
func DecodeBundle(s string) (*HelperBundle, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeMalformed, "failed to decode base64 bundle")
		return nil, fmt.Errorf("%w: %w", ErrMalformed, richErr)
	}
	b := &HelperBundle{}
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return b, nil
}

// bundleJSON breaks the MarshalJSON/UnmarshalJSON recursion.
type bundleJSON HelperBundle

// MarshalJSON encodes the bundle as JSON with base64 entry fields.
func (b *HelperBundle) MarshalJSON() ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal((*bundleJSON)(b))
}

// UnmarshalJSON decodes and validates a bundle encoded by MarshalJSON.
func (b *HelperBundle) UnmarshalJSON(data []byte) error {
	var decoded bundleJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeMalformed, "failed to decode JSON bundle")
		return fmt.Errorf("%w: %w", ErrMalformed, richErr)
	}
	candidate := HelperBundle(decoded)
	if err := candidate.Validate(); err != nil {
		return err
	}
	*b = candidate
	return nil
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
