// extractor.go: Reusable fuzzy extractor built on digital lockers.
//
// Generate draws a random key and locks it in many lockers, each under the
// source value ANDed with an independent random mask. A later reading that
// differs in a few bits still produces the same masked vector for any mask
// that is zero on every differing bit; NumHelpers sizes the number of masks so
// that at least one such mask exists with the configured probability.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync/atomic"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Extractor derives stable keys from noisy readings of a fixed length.
//
// An Extractor is immutable and safe for concurrent use. Its random source must
// be safe for concurrent use too; sources other than crypto/rand.Reader are
// serialized internally.
type Extractor struct {
	length         int
	hammingBudget  int
	reproduceError float64
	numHelpers     int
	workers        int
	locker         LockerParams
}

// NewExtractor creates an extractor for readings of length bytes that
// tolerates up to hammingBudget flipped bits.
//
// Parameters:
//   - length: The length in bytes of readings and keys (at least 1)
//   - hammingBudget: The number of bits a reading may differ from the enrolled
//     one while still reproducing the key with probability 1-ReproduceError
//   - params: Optional parameters (nil to use defaults)
//
// Returns ErrInvalidParameter for out-of-range values.
//
// Example:
//
//	extractor, err := fuzzy.NewExtractor(32, 4, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	key, helpers, err := extractor.Generate(reading)
func NewExtractor(length, hammingBudget int, params *Params) (*Extractor, error) {
	lp, reproduceError, workers, err := params.resolve()
	if err != nil {
		return nil, err
	}

	numHelpers, err := NumHelpers(length, hammingBudget, reproduceError)
	if err != nil {
		return nil, err
	}
	if length+lp.SecLen > maxCipherLen {
		richErr := goerrors.New(ErrCodeInvalidParameter, fmt.Sprintf("length %d plus sec_len %d exceeds %d", length, lp.SecLen, maxCipherLen))
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, richErr)
	}
	if len(lp.Deriver.ID()) > maxDeriverIDLen {
		richErr := goerrors.New(ErrCodeInvalidParameter, fmt.Sprintf("deriver identifier longer than %d bytes", maxDeriverIDLen))
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, richErr)
	}
	if lp.Random != rand.Reader {
		lp.Random = &syncReader{r: lp.Random}
	}

	return &Extractor{
		length:         length,
		hammingBudget:  hammingBudget,
		reproduceError: reproduceError,
		numHelpers:     numHelpers,
		workers:        workers,
		locker:         lp,
	}, nil
}

// Length returns the reading and key length in bytes.
func (e *Extractor) Length() int { return e.length }

// HammingBudget returns the tolerated number of differing bits.
func (e *Extractor) HammingBudget() int { return e.hammingBudget }

// ReproduceError returns the tolerated reproduction failure probability.
func (e *Extractor) ReproduceError() float64 { return e.reproduceError }

// NumHelpers returns the number of helper rounds per enrollment.
func (e *Extractor) NumHelpers() int { return e.numHelpers }

// SecLen returns the number of locker check bytes.
func (e *Extractor) SecLen() int { return e.locker.SecLen }

// NonceLen returns the locker salt length.
func (e *Extractor) NonceLen() int { return e.locker.NonceLen }

// Deriver returns the locker key derivation function.
func (e *Extractor) Deriver() Deriver { return e.locker.Deriver }

// BundleHeader returns the header every bundle of this extractor carries,
// apart from its ID and creation time.
func (e *Extractor) BundleHeader() BundleHeader {
	return BundleHeader{
		DeriverID: e.locker.Deriver.ID(),
		Length:    e.length,
		SecLen:    e.locker.SecLen,
		NonceLen:  e.locker.NonceLen,
		Count:     e.numHelpers,
	}
}

// Generate enrolls a reading. It returns a fresh random key, to be used and
// then wiped by the caller, and the public helper bundle needed to reproduce
// it later.
//
// Returns ErrLengthMismatch if len(value) != Length().
func (e *Extractor) Generate(value []byte) ([]byte, *HelperBundle, error) {
	if err := e.checkValue(value); err != nil {
		return nil, nil, err
	}

	key, err := readRandom(e.locker.Random, e.length)
	if err != nil {
		return nil, nil, err
	}

	entries := make([]HelperEntry, e.numHelpers)
	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for i := range entries {
		g.Go(func() error {
			entry, err := e.generateRound(value, key)
			if err != nil {
				return fmt.Errorf("helper round %d: %w", i, err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		Zeroize(key)
		return nil, nil, err
	}

	h := e.BundleHeader()
	return key, &HelperBundle{
		ID:        uuid.New(),
		CreatedAt: timecache.CachedTime().UTC(),
		DeriverID: h.DeriverID,
		Length:    h.Length,
		SecLen:    h.SecLen,
		NonceLen:  h.NonceLen,
		Entries:   entries,
	}, nil
}

// generateRound draws a mask and locks key under mask AND value.
func (e *Extractor) generateRound(value, key []byte) (HelperEntry, error) {
	mask, err := readRandom(e.locker.Random, e.length)
	if err != nil {
		return HelperEntry{}, err
	}

	vector := getBuffer(e.length)
	defer putBuffer(vector)
	andBytes(*vector, mask, value)

	l, err := lock(*vector, key, e.locker)
	if err != nil {
		return HelperEntry{}, err
	}
	return HelperEntry{Mask: mask, Salt: l.salt, Cipher: l.cipher}, nil
}

// Reproduce recovers the key enrolled with helpers from a reading close to the
// enrolled one.
//
// If no helper round validates, Reproduce returns (nil, false, nil): the
// reading is too far from the enrolled one, or belongs to another source.
// Rounds are tried concurrently, but when several validate the one earliest in
// bundle order wins.
//
// Returns ErrLengthMismatch if len(value) != Length() and ErrBundleMismatch if
// helpers were produced with a different configuration.
func (e *Extractor) Reproduce(value []byte, helpers *HelperBundle) ([]byte, bool, error) {
	if err := e.checkValue(value); err != nil {
		return nil, false, err
	}
	if err := e.checkBundle(helpers); err != nil {
		return nil, false, err
	}

	n := len(helpers.Entries)
	results := make([][]byte, n)
	var first atomic.Int64
	first.Store(int64(n))

	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for i := range helpers.Entries {
		g.Go(func() error {
			if int64(i) > first.Load() {
				return nil
			}
			key, ok, err := e.reproduceRound(value, helpers.Entries[i])
			if err != nil {
				return fmt.Errorf("helper round %d: %w", i, err)
			}
			if !ok {
				return nil
			}
			results[i] = key
			for {
				cur := first.Load()
				if int64(i) >= cur || first.CompareAndSwap(cur, int64(i)) {
					return nil
				}
			}
		})
	}
	err := g.Wait()

	winner := int(first.Load())
	for i, r := range results {
		if i != winner && r != nil {
			Zeroize(r)
		}
	}
	if err != nil {
		if winner < n {
			Zeroize(results[winner])
		}
		return nil, false, err
	}
	if winner == n {
		return nil, false, nil
	}
	return results[winner], true, nil
}

// ReproduceStream is Reproduce over a streamed bundle. Entries are tried in
// order and reading stops at the first that validates, so a bundle of any size
// is processed in constant memory.
func (e *Extractor) ReproduceStream(value []byte, br *BundleReader) ([]byte, bool, error) {
	if err := e.checkValue(value); err != nil {
		return nil, false, err
	}
	if br == nil {
		richErr := goerrors.New(ErrCodeBundleMismatch, "bundle reader is nil")
		return nil, false, fmt.Errorf("%w: %w", ErrBundleMismatch, richErr)
	}
	if err := e.checkHeader(br.Header()); err != nil {
		return nil, false, err
	}

	for i := 0; ; i++ {
		entry, err := br.Next()
		if err == io.EOF {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		key, ok, err := e.reproduceRound(value, entry)
		if err != nil {
			return nil, false, fmt.Errorf("helper round %d: %w", i, err)
		}
		if ok {
			return key, true, nil
		}
	}
}

// reproduceRound tries to open one helper entry with mask AND value.
func (e *Extractor) reproduceRound(value []byte, entry HelperEntry) ([]byte, bool, error) {
	vector := getBuffer(e.length)
	defer putBuffer(vector)
	andBytes(*vector, entry.Mask, value)

	l := &Locker{salt: entry.Salt, cipher: entry.Cipher, secLen: e.locker.SecLen, deriver: e.locker.Deriver}
	return l.Unlock(*vector)
}

func (e *Extractor) checkValue(value []byte) error {
	if len(value) != e.length {
		richErr := goerrors.New(ErrCodeLengthMismatch, fmt.Sprintf("value must be %d bytes, got %d", e.length, len(value)))
		return fmt.Errorf("%w: %w", ErrLengthMismatch, richErr)
	}
	return nil
}

// checkBundle verifies that helpers can be opened by this extractor. An empty
// DeriverID is accepted for bundles assembled by hand.
func (e *Extractor) checkBundle(helpers *HelperBundle) error {
	if helpers == nil {
		richErr := goerrors.New(ErrCodeBundleMismatch, "helper bundle is nil")
		return fmt.Errorf("%w: %w", ErrBundleMismatch, richErr)
	}
	if err := e.checkHeader(helpers.Header()); err != nil {
		return err
	}
	if err := helpers.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrBundleMismatch, err)
	}
	return nil
}

func (e *Extractor) checkHeader(h BundleHeader) error {
	var msg string
	switch {
	case h.DeriverID != "" && h.DeriverID != e.locker.Deriver.ID():
		msg = fmt.Sprintf("bundle deriver %q, extractor deriver %q", h.DeriverID, e.locker.Deriver.ID())
	case h.Length != e.length:
		msg = fmt.Sprintf("bundle length %d, extractor length %d", h.Length, e.length)
	case h.SecLen != e.locker.SecLen:
		msg = fmt.Sprintf("bundle sec_len %d, extractor sec_len %d", h.SecLen, e.locker.SecLen)
	case h.NonceLen != e.locker.NonceLen:
		msg = fmt.Sprintf("bundle nonce_len %d, extractor nonce_len %d", h.NonceLen, e.locker.NonceLen)
	default:
		return nil
	}
	return fmt.Errorf("%w: %w", ErrBundleMismatch, goerrors.New(ErrCodeBundleMismatch, msg))
}
