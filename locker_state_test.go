// locker_state_test.go: Tests for lockers whose internal state is inconsistent.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLocker_UnlockRejectsInconsistentSecLen verifies that check bytes outside
// [1, len(cipher)] are reported instead of releasing a secret or panicking
func TestLocker_UnlockRejectsInconsistentSecLen(t *testing.T) {
	sealed, err := Lock([]byte("AABBCCDD"), []byte("secretkey!"), nil)
	require.NoError(t, err)

	for _, secLen := range []int{0, -3, len(sealed.cipher) + 1, 50} {
		l := &Locker{salt: sealed.salt, cipher: sealed.cipher, secLen: secLen, deriver: sealed.deriver}
		got, ok, err := l.Unlock([]byte("WRONGKEY"))
		assert.Nil(t, got, "sec_len %d", secLen)
		assert.False(t, ok, "sec_len %d", secLen)
		assert.True(t, errors.Is(err, ErrIllegalState), "sec_len %d: got %v", secLen, err)
	}

	got, ok, err := sealed.Unlock([]byte("AABBCCDD"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("secretkey!"), got)
}
