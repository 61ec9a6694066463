// streaming.go: Streaming encoding and decoding of helper bundles.
//
// High Hamming budgets produce bundles with tens of thousands of entries. The
// streaming interfaces write and read them entry by entry, so a bundle can go
// to a file or a network stream without a second in-memory copy.
//
// Binary format (big-endian):
//
//	magic "PXHB" || version:uint8 || id[16] || createdAt:int64 (unix nanoseconds)
//	|| deriverLen:uint8 || deriver || length:uint16 || secLen:uint16
//	|| nonceLen:uint16 || count:uint32
//	count × ( mask[length] || salt[nonceLen] || secLen:uint16 || cipherLen:uint16 || cipher )
//
// Each entry after its mask is a locker in the MarshalBinary wire form.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	goerrors "github.com/agilira/go-errors"
)

const (
	bundleMagic   = "PXHB"
	bundleVersion = 1

	// bundleFixedLen is the header size without the deriver identifier.
	bundleFixedLen = 4 + 1 + 16 + 8 + 1 + 2 + 2 + 2 + 4

	maxDeriverIDLen = 255
)

// EntrySize returns the encoded size of one entry.
func (h BundleHeader) EntrySize() int {
	return h.Length + h.NonceLen + lockerHeaderLen + h.Length + h.SecLen
}

// EncodedSize returns the encoded size of a bundle with this header.
func (h BundleHeader) EncodedSize() int {
	return bundleFixedLen + len(h.DeriverID) + h.Count*h.EntrySize()
}

func (h BundleHeader) validate() error {
	var msg string
	switch {
	case h.Length < 1:
		msg = fmt.Sprintf("length must be positive, got %d", h.Length)
	case h.SecLen < 1:
		msg = fmt.Sprintf("sec_len must be positive, got %d", h.SecLen)
	case h.Length+h.SecLen > maxCipherLen:
		msg = fmt.Sprintf("length %d plus sec_len %d exceeds %d", h.Length, h.SecLen, maxCipherLen)
	case h.NonceLen < 1 || h.NonceLen > maxCipherLen:
		msg = fmt.Sprintf("nonce_len must be between 1 and %d, got %d", maxCipherLen, h.NonceLen)
	case h.Count < 1 || h.Count > MaxHelpers:
		msg = fmt.Sprintf("entry count must be between 1 and %d, got %d", MaxHelpers, h.Count)
	case len(h.DeriverID) > maxDeriverIDLen:
		msg = fmt.Sprintf("deriver identifier longer than %d bytes", maxDeriverIDLen)
	default:
		return nil
	}
	return fmt.Errorf("%w: %w", ErrMalformed, goerrors.New(ErrCodeMalformed, msg))
}

func (h BundleHeader) validateEntry(e HelperEntry) error {
	var msg string
	switch {
	case len(e.Mask) != h.Length:
		msg = fmt.Sprintf("mask has %d bytes, want %d", len(e.Mask), h.Length)
	case len(e.Salt) != h.NonceLen:
		msg = fmt.Sprintf("salt has %d bytes, want %d", len(e.Salt), h.NonceLen)
	case len(e.Cipher) != h.Length+h.SecLen:
		msg = fmt.Sprintf("cipher has %d bytes, want %d", len(e.Cipher), h.Length+h.SecLen)
	default:
		return nil
	}
	return fmt.Errorf("%w: %w", ErrMalformed, goerrors.New(ErrCodeMalformed, msg))
}

func (h BundleHeader) appendTo(dst []byte) []byte {
	dst = append(dst, bundleMagic...)
	dst = append(dst, bundleVersion)
	dst = append(dst, h.ID[:]...)
	dst = binary.BigEndian.AppendUint64(dst, uint64(h.CreatedAt.UnixNano())) // #nosec G115 -- round-trips through int64
	dst = append(dst, byte(len(h.DeriverID)))
	dst = append(dst, h.DeriverID...)
	dst = binary.BigEndian.AppendUint16(dst, uint16(h.Length))   // #nosec G115 -- validated
	dst = binary.BigEndian.AppendUint16(dst, uint16(h.SecLen))   // #nosec G115 -- validated
	dst = binary.BigEndian.AppendUint16(dst, uint16(h.NonceLen)) // #nosec G115 -- validated
	return binary.BigEndian.AppendUint32(dst, uint32(h.Count))   // #nosec G115 -- validated
}

// BundleWriter writes a helper bundle entry by entry.
//
// Example usage:
//
//	bw, _ := fuzzy.NewBundleWriter(file, header)
//	for _, e := range entries {
//		if err := bw.WriteEntry(e); err != nil {
//			return err
//		}
//	}
//	return bw.Close()
type BundleWriter struct {
	w       io.Writer
	header  BundleHeader
	buf     []byte
	written int
	closed  bool
}

// NewBundleWriter validates header and writes it to w. header.Count entries
// must follow before Close.
func NewBundleWriter(w io.Writer, header BundleHeader) (*BundleWriter, error) {
	if err := header.validate(); err != nil {
		return nil, err
	}
	if _, err := w.Write(header.appendTo(make([]byte, 0, bundleFixedLen+len(header.DeriverID)))); err != nil {
		return nil, goerrors.Wrap(err, "BUNDLE_WRITE_ERROR", "failed to write bundle header")
	}
	return &BundleWriter{
		w:      w,
		header: header,
		buf:    make([]byte, 0, header.EntrySize()),
	}, nil
}

// WriteEntry writes the next entry.
func (bw *BundleWriter) WriteEntry(e HelperEntry) error {
	if bw.closed {
		return goerrors.New("BUNDLE_WRITER_CLOSED", "cannot write to closed bundle writer")
	}
	if bw.written >= bw.header.Count {
		return goerrors.New("BUNDLE_OVERFLOW", fmt.Sprintf("bundle header announced %d entries", bw.header.Count))
	}
	if err := bw.header.validateEntry(e); err != nil {
		return err
	}

	bw.buf = append(bw.buf[:0], e.Mask...)
	bw.buf = appendLockerWire(bw.buf, e.Salt, bw.header.SecLen, e.Cipher)
	if _, err := bw.w.Write(bw.buf); err != nil {
		return goerrors.Wrap(err, "BUNDLE_WRITE_ERROR", "failed to write bundle entry")
	}
	bw.written++
	return nil
}

// Close checks that every announced entry was written.
func (bw *BundleWriter) Close() error {
	if bw.closed {
		return nil
	}
	bw.closed = true
	if bw.written != bw.header.Count {
		return goerrors.New("BUNDLE_INCOMPLETE", fmt.Sprintf("wrote %d of %d bundle entries", bw.written, bw.header.Count))
	}
	return nil
}

// BundleReader reads a helper bundle entry by entry.
type BundleReader struct {
	r      io.Reader
	header BundleHeader
	buf    []byte
	read   int
}

// NewBundleReader reads and validates the bundle header from r.
func NewBundleReader(r io.Reader) (*BundleReader, error) {
	fixed := make([]byte, 4+1+16+8+1)
	if err := readFull(r, fixed, "bundle header"); err != nil {
		return nil, err
	}
	if string(fixed[:4]) != bundleMagic {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, goerrors.New(ErrCodeMalformed, "not a helper bundle"))
	}
	if fixed[4] != bundleVersion {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, goerrors.New(ErrCodeMalformed, fmt.Sprintf("unsupported bundle version %d", fixed[4])))
	}

	var h BundleHeader
	copy(h.ID[:], fixed[5:21])
	h.CreatedAt = time.Unix(0, int64(binary.BigEndian.Uint64(fixed[21:29]))).UTC() // #nosec G115 -- written from int64

	rest := make([]byte, int(fixed[29])+10)
	if err := readFull(r, rest, "bundle header"); err != nil {
		return nil, err
	}
	idLen := int(fixed[29])
	h.DeriverID = string(rest[:idLen])
	h.Length = int(binary.BigEndian.Uint16(rest[idLen:]))
	h.SecLen = int(binary.BigEndian.Uint16(rest[idLen+2:]))
	h.NonceLen = int(binary.BigEndian.Uint16(rest[idLen+4:]))
	h.Count = int(binary.BigEndian.Uint32(rest[idLen+6:]))
	if err := h.validate(); err != nil {
		return nil, err
	}

	return &BundleReader{r: r, header: h}, nil
}

// Header returns the bundle header.
func (br *BundleReader) Header() BundleHeader {
	return br.header
}

// Next returns the next entry, or io.EOF after the last one. Returned entries
// do not alias the reader's buffers.
func (br *BundleReader) Next() (HelperEntry, error) {
	if br.read >= br.header.Count {
		return HelperEntry{}, io.EOF
	}

	size := br.header.EntrySize()
	if br.buf == nil {
		br.buf = make([]byte, size)
	}
	if err := readFull(br.r, br.buf, fmt.Sprintf("bundle entry %d", br.read)); err != nil {
		return HelperEntry{}, err
	}

	h := br.header
	salt, secLen, cipher, n, err := readLockerWire(br.buf[h.Length:], h.NonceLen)
	if err != nil {
		return HelperEntry{}, err
	}
	if secLen != h.SecLen || n != size-h.Length {
		richErr := goerrors.New(ErrCodeMalformed, fmt.Sprintf("entry %d disagrees with bundle header", br.read))
		return HelperEntry{}, fmt.Errorf("%w: %w", ErrMalformed, richErr)
	}

	br.read++
	return HelperEntry{
		Mask:   append([]byte(nil), br.buf[:h.Length]...),
		Salt:   append([]byte(nil), salt...),
		Cipher: append([]byte(nil), cipher...),
	}, nil
}

// readFull reads exactly len(buf) bytes, reporting short input as ErrMalformed.
func readFull(r io.Reader, buf []byte, what string) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			richErr := goerrors.Wrap(err, ErrCodeMalformed, what+" truncated")
			return fmt.Errorf("%w: %w", ErrMalformed, richErr)
		}
		return goerrors.Wrap(err, "BUNDLE_READ_ERROR", "failed to read "+what)
	}
	return nil
}
