// locker_test.go: Test cases for the digital locker primitive.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilira/proteus"
)

// TestLocker_RoundTrip locks random secrets and checks that only the exact key opens them
func TestLocker_RoundTrip(t *testing.T) {
	rng := seededRand(1)
	params := &fuzzy.LockerParams{SecLen: 3, Random: seededReader(1)}

	for i := 0; i < 150; i++ {
		secret := randomLetters(rng, 30)
		key := randomLetters(rng, 32)

		locker, err := fuzzy.Lock(key, secret, params)
		require.NoError(t, err)
		require.True(t, locker.Sealed())

		got, ok, err := locker.Unlock(key)
		require.NoError(t, err)
		require.True(t, ok, "iteration %d: correct key rejected", i)
		assert.Equal(t, secret, got)

		got, ok, err = locker.Unlock(key[:len(key)-1])
		require.NoError(t, err)
		assert.False(t, ok, "iteration %d: truncated key accepted", i)
		assert.Nil(t, got)
	}
}

// TestLocker_SecretLongerThanDigest checks that secrets longer than a native digest are supported
func TestLocker_SecretLongerThanDigest(t *testing.T) {
	key := []byte("AABBCCDD")
	secret := []byte("AABBCCDDEEFFGGHHIIJJKKLLMMNNOOPP")

	derivers := []fuzzy.Deriver{
		fuzzy.SHA256(), fuzzy.SHA512(), fuzzy.SHA1(),
		fuzzy.HKDFSHA256(), fuzzy.HKDFSHA512(),
		fuzzy.SHAKE128(), fuzzy.SHAKE256(),
		fuzzy.BLAKE2b(), fuzzy.Argon2id(),
	}
	for _, d := range derivers {
		t.Run(d.ID(), func(t *testing.T) {
			locker, err := fuzzy.Lock(key, secret, &fuzzy.LockerParams{Deriver: d})
			require.NoError(t, err)

			got, ok, err := locker.Unlock(key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, secret, got)
			assert.Equal(t, d.ID(), locker.DeriverID())
		})
	}
}

// TestLocker_TruncatedKey checks the default configuration rejects a truncated key
func TestLocker_TruncatedKey(t *testing.T) {
	key := []byte("AABBCCDD")
	locker, err := fuzzy.Lock(key, []byte("secret value"), nil)
	require.NoError(t, err)

	got, ok, err := locker.Unlock(key[:len(key)-1])
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestLocker_EmptyLocker(t *testing.T) {
	var empty fuzzy.Locker
	assert.False(t, empty.Sealed())

	_, ok, err := empty.Unlock([]byte("AABBCCDD"))
	assert.False(t, ok)
	assert.True(t, errors.Is(err, fuzzy.ErrIllegalState))

	_, err = empty.MarshalBinary()
	assert.True(t, errors.Is(err, fuzzy.ErrIllegalState))

	var nilLocker *fuzzy.Locker
	_, _, err = nilLocker.Unlock([]byte("key"))
	assert.True(t, errors.Is(err, fuzzy.ErrIllegalState))
	assert.Equal(t, 0, nilLocker.SecLen())
	assert.Equal(t, 0, nilLocker.WireSize())
	assert.Equal(t, "", nilLocker.DeriverID())
}

func TestLocker_EmptySecret(t *testing.T) {
	key := []byte("key material")
	locker, err := fuzzy.Lock(key, nil, nil)
	require.NoError(t, err)

	got, ok, err := locker.Unlock(key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

// TestLocker_HighBytes checks secrets and keys using the full byte range
func TestLocker_HighBytes(t *testing.T) {
	key := bytes.Repeat([]byte{0xFF}, 15)
	secret := bytes.Repeat([]byte{0xFF, 0x00, 0x80}, 11)

	locker, err := fuzzy.Lock(key, secret, nil)
	require.NoError(t, err)

	got, ok, err := locker.Unlock(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, secret, got)
}

func TestLocker_FreshSaltPerLock(t *testing.T) {
	key := []byte("AABBCCDD")
	secret := []byte("same secret")

	a, err := fuzzy.Lock(key, secret, nil)
	require.NoError(t, err)
	b, err := fuzzy.Lock(key, secret, nil)
	require.NoError(t, err)

	da, _ := a.MarshalBinary()
	db, _ := b.MarshalBinary()
	assert.NotEqual(t, da[:fuzzy.DefaultNonceLen], db[:fuzzy.DefaultNonceLen], "salts must differ")
	assert.NotEqual(t, da, db)
}

func TestLocker_InvalidParams(t *testing.T) {
	key := []byte("key")

	tests := []struct {
		name   string
		secret []byte
		params *fuzzy.LockerParams
	}{
		{"negative sec_len", []byte("s"), &fuzzy.LockerParams{SecLen: -1}},
		{"negative nonce_len", []byte("s"), &fuzzy.LockerParams{NonceLen: -1}},
		{"sec_len beyond wire limit", []byte("s"), &fuzzy.LockerParams{SecLen: 1 << 16}},
		{"secret beyond wire limit", make([]byte, 1<<16-2), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locker, err := fuzzy.Lock(key, tt.secret, tt.params)
			assert.Nil(t, locker)
			assert.True(t, errors.Is(err, fuzzy.ErrInvalidParameter), "got %v", err)
		})
	}
}

func TestLocker_RandomSourceFailure(t *testing.T) {
	params := &fuzzy.LockerParams{Random: &limitedReader{r: seededReader(2), limit: 4}}
	locker, err := fuzzy.Lock([]byte("key"), []byte("secret"), params)
	assert.Nil(t, locker)
	assert.True(t, errors.Is(err, fuzzy.ErrRandomSource))
}

// TestLocker_WireFormat checks the documented salt || sec_len || cipher_len || cipher layout
func TestLocker_WireFormat(t *testing.T) {
	secret := []byte("AABBCCDDEEFFGGHHIIJJKKLLMMNNOOPP")
	locker, err := fuzzy.Lock([]byte("AABBCCDD"), secret, &fuzzy.LockerParams{SecLen: 3, NonceLen: 24})
	require.NoError(t, err)

	data, err := locker.MarshalBinary()
	require.NoError(t, err)

	require.Len(t, data, 24+4+len(secret)+3)
	assert.Equal(t, locker.WireSize(), len(data))
	assert.Equal(t, uint16(3), binary.BigEndian.Uint16(data[24:26]))
	assert.Equal(t, uint16(len(secret)+3), binary.BigEndian.Uint16(data[26:28]))
}

func TestLocker_SerializationRoundTrip(t *testing.T) {
	key := []byte("AABBCCDD")
	secret := []byte("AABBCCDDEEFFGGHHIIJJKKLLMMNNOOPP")

	locker, err := fuzzy.Lock(key, secret, nil)
	require.NoError(t, err)
	data, err := locker.MarshalBinary()
	require.NoError(t, err)

	parsed, err := fuzzy.ParseLocker(data, fuzzy.DefaultNonceLen, fuzzy.SHA256())
	require.NoError(t, err)
	assert.Equal(t, locker.SecLen(), parsed.SecLen())

	got, ok, err := parsed.Unlock(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, secret, got)

	_, ok, err = parsed.Unlock(key[:len(key)-1])
	require.NoError(t, err)
	assert.False(t, ok)

	// Parsing must not alias the caller's buffer
	for i := range data {
		data[i] = 0
	}
	got, ok, err = parsed.Unlock(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, secret, got)
}

// TestLocker_WrongDeriverFailsSilently documents that the wire form does not name its deriver
func TestLocker_WrongDeriverFailsSilently(t *testing.T) {
	key := []byte("AABBCCDD")
	locker, err := fuzzy.Lock(key, []byte("secret"), &fuzzy.LockerParams{SecLen: 4})
	require.NoError(t, err)
	data, err := locker.MarshalBinary()
	require.NoError(t, err)

	parsed, err := fuzzy.ParseLocker(data, fuzzy.DefaultNonceLen, fuzzy.SHA512())
	require.NoError(t, err)

	got, ok, err := parsed.Unlock(key)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestParseLocker_Malformed(t *testing.T) {
	locker, err := fuzzy.Lock([]byte("key"), []byte("secret"), nil)
	require.NoError(t, err)
	valid, err := locker.MarshalBinary()
	require.NoError(t, err)

	zeroSecLen := append([]byte(nil), valid...)
	binary.BigEndian.PutUint16(zeroSecLen[16:], 0)

	shortCipher := append([]byte(nil), valid...)
	binary.BigEndian.PutUint16(shortCipher[16:], 9)
	binary.BigEndian.PutUint16(shortCipher[18:], 8)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"salt only", valid[:16]},
		{"truncated cipher", valid[:len(valid)-1]},
		{"trailing byte", append(append([]byte(nil), valid...), 0)},
		{"zero sec_len", zeroSecLen},
		{"cipher shorter than check bytes", shortCipher},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := fuzzy.ParseLocker(tt.data, fuzzy.DefaultNonceLen, fuzzy.SHA256())
			assert.Nil(t, parsed)
			assert.True(t, errors.Is(err, fuzzy.ErrMalformed), "got %v", err)
		})
	}

	_, err = fuzzy.ParseLocker(valid, fuzzy.DefaultNonceLen, nil)
	assert.True(t, errors.Is(err, fuzzy.ErrInvalidParameter))
	_, err = fuzzy.ParseLocker(valid, 0, fuzzy.SHA256())
	assert.True(t, errors.Is(err, fuzzy.ErrInvalidParameter))
}

func BenchmarkLockerUnlock(b *testing.B) {
	key := []byte("AABBCCDDEEFFGGHH")
	locker, err := fuzzy.Lock(key, make([]byte, 32), nil)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := locker.Unlock(key); err != nil {
			b.Fatal(err)
		}
	}
}
