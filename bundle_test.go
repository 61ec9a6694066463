// bundle_test.go: Test cases for helper bundle encodings.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilira/proteus"
)

// enroll returns a small bundle together with its extractor, reading and key.
func enroll(t *testing.T, params *fuzzy.Params) (*fuzzy.Extractor, []byte, []byte, *fuzzy.HelperBundle) {
	t.Helper()
	value := []byte("AABBCCDD")
	extractor, err := fuzzy.NewExtractor(len(value), 1, params)
	require.NoError(t, err)
	key, helpers, err := extractor.Generate(value)
	require.NoError(t, err)
	return extractor, value, key, helpers
}

func TestBundle_BinaryRoundTrip(t *testing.T) {
	extractor, value, key, helpers := enroll(t, nil)

	data, err := helpers.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, helpers.Header().EncodedSize())

	var decoded fuzzy.HelperBundle
	require.NoError(t, decoded.UnmarshalBinary(data))
	if diff := cmp.Diff(helpers, &decoded); diff != "" {
		t.Errorf("bundle mismatch after binary round trip (-want +got):\n%s", diff)
	}

	got, ok, err := extractor.Reproduce(value, &decoded)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, key, got)
}

func TestBundle_Base64RoundTrip(t *testing.T) {
	_, _, _, helpers := enroll(t, fuzzy.StrictParams())

	text, err := fuzzy.EncodeBundle(helpers)
	require.NoError(t, err)

	decoded, err := fuzzy.DecodeBundle(text)
	require.NoError(t, err)
	if diff := cmp.Diff(helpers, decoded); diff != "" {
		t.Errorf("bundle mismatch after base64 round trip (-want +got):\n%s", diff)
	}

	_, err = fuzzy.DecodeBundle("not base64!")
	assert.True(t, errors.Is(err, fuzzy.ErrMalformed))
}

func TestBundle_JSONRoundTrip(t *testing.T) {
	extractor, value, key, helpers := enroll(t, nil)

	data, err := json.Marshal(helpers)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, fuzzy.DeriverSHA256, fields["deriver"])
	assert.Equal(t, helpers.ID.String(), fields["id"])

	var decoded fuzzy.HelperBundle
	require.NoError(t, json.Unmarshal(data, &decoded))
	if diff := cmp.Diff(helpers, &decoded); diff != "" {
		t.Errorf("bundle mismatch after JSON round trip (-want +got):\n%s", diff)
	}

	got, ok, err := extractor.Reproduce(value, &decoded)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, key, got)
}

func TestBundle_JSONRejectsInvalid(t *testing.T) {
	_, _, _, helpers := enroll(t, nil)

	tampered := *helpers
	tampered.Entries = append([]fuzzy.HelperEntry(nil), helpers.Entries...)
	tampered.Entries[0].Salt = tampered.Entries[0].Salt[:3]
	_, err := json.Marshal(&tampered)
	assert.True(t, errors.Is(err, fuzzy.ErrMalformed), "got %v", err)

	var decoded fuzzy.HelperBundle
	err = json.Unmarshal([]byte(`{"length": 8, "sec_len": 2, "nonce_len": 16, "entries": []}`), &decoded)
	assert.True(t, errors.Is(err, fuzzy.ErrMalformed), "got %v", err)

	err = json.Unmarshal([]byte(`{"length": "eight"}`), &decoded)
	assert.True(t, errors.Is(err, fuzzy.ErrMalformed), "got %v", err)
}

func TestBundle_UnmarshalBinaryMalformed(t *testing.T) {
	_, _, _, helpers := enroll(t, nil)
	valid, err := helpers.MarshalBinary()
	require.NoError(t, err)

	badMagic := append([]byte(nil), valid...)
	badMagic[0] = 'X'

	badVersion := append([]byte(nil), valid...)
	badVersion[4] = 9

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"magic only", valid[:4]},
		{"bad magic", badMagic},
		{"bad version", badVersion},
		{"truncated header", valid[:35]},
		{"truncated entry", valid[:len(valid)-1]},
		{"trailing byte", append(append([]byte(nil), valid...), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var decoded fuzzy.HelperBundle
			err := decoded.UnmarshalBinary(tt.data)
			assert.True(t, errors.Is(err, fuzzy.ErrMalformed), "got %v", err)
		})
	}
}

func TestBundle_Locker(t *testing.T) {
	_, value, key, helpers := enroll(t, nil)

	// Find the round whose mask keeps every bit of the value
	opened := false
	for i, e := range helpers.Entries {
		l, err := helpers.Locker(i, fuzzy.SHA256())
		require.NoError(t, err)
		vector := make([]byte, len(value))
		for j := range vector {
			vector[j] = e.Mask[j] & value[j]
		}
		got, ok, err := l.Unlock(vector)
		require.NoError(t, err)
		if ok {
			assert.Equal(t, key, got)
			opened = true
		}
	}
	assert.True(t, opened, "no helper round opened with its own masked vector")

	_, err := helpers.Locker(-1, fuzzy.SHA256())
	assert.True(t, errors.Is(err, fuzzy.ErrInvalidParameter))
	_, err = helpers.Locker(helpers.Len(), fuzzy.SHA256())
	assert.True(t, errors.Is(err, fuzzy.ErrInvalidParameter))
	_, err = helpers.Locker(0, nil)
	assert.True(t, errors.Is(err, fuzzy.ErrInvalidParameter))
}

// TestBundle_LockerRejectsBadSecLen checks that a header sec_len which does not
// fit the entry never yields a locker that opens under any key
func TestBundle_LockerRejectsBadSecLen(t *testing.T) {
	l, err := fuzzy.Lock([]byte("AABBCCDD"), []byte("secretkey!"), &fuzzy.LockerParams{SecLen: 4})
	require.NoError(t, err)
	e, err := fuzzy.NewHelperEntry(bytes.Repeat([]byte{0xFF}, 10), l)
	require.NoError(t, err)

	for _, secLen := range []int{0, -1, 50} {
		b := &fuzzy.HelperBundle{Length: 10, SecLen: secLen, NonceLen: fuzzy.DefaultNonceLen, Entries: []fuzzy.HelperEntry{e}}
		locker, err := b.Locker(0, fuzzy.SHA256())
		assert.Nil(t, locker, "sec_len %d", secLen)
		assert.True(t, errors.Is(err, fuzzy.ErrMalformed), "sec_len %d: got %v", secLen, err)
	}

	b := &fuzzy.HelperBundle{Length: 10, SecLen: 4, NonceLen: fuzzy.DefaultNonceLen, Entries: []fuzzy.HelperEntry{e}}
	locker, err := b.Locker(0, fuzzy.SHA256())
	require.NoError(t, err)
	got, ok, err := locker.Unlock([]byte("WRONGKEY"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestNewHelperEntry(t *testing.T) {
	mask := []byte{0xF0, 0x0F}
	l, err := fuzzy.Lock([]byte{0x10, 0x01}, []byte("ab"), nil)
	require.NoError(t, err)

	e, err := fuzzy.NewHelperEntry(mask, l)
	require.NoError(t, err)
	assert.Equal(t, mask, e.Mask)
	assert.Len(t, e.Salt, fuzzy.DefaultNonceLen)
	assert.Len(t, e.Cipher, 2+fuzzy.DefaultSecLen)

	mask[0] = 0
	assert.Equal(t, byte(0xF0), e.Mask[0], "entry must not alias the mask")

	_, err = fuzzy.NewHelperEntry(mask, &fuzzy.Locker{})
	assert.True(t, errors.Is(err, fuzzy.ErrIllegalState))
}

func TestBundle_WriteToReadBundle(t *testing.T) {
	_, _, _, helpers := enroll(t, nil)

	var buf bytes.Buffer
	n, err := helpers.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	decoded, err := fuzzy.ReadBundle(&buf)
	require.NoError(t, err)
	assert.Equal(t, helpers.Header(), decoded.Header())
}

func TestBundle_HeaderTimestamp(t *testing.T) {
	created := time.Date(2025, 3, 14, 15, 9, 26, 535897932, time.UTC)
	_, _, _, helpers := enroll(t, nil)
	helpers.CreatedAt = created
	helpers.ID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	data, err := helpers.MarshalBinary()
	require.NoError(t, err)
	var decoded fuzzy.HelperBundle
	require.NoError(t, decoded.UnmarshalBinary(data))

	assert.True(t, created.Equal(decoded.CreatedAt))
	assert.Equal(t, helpers.ID, decoded.ID)
}
