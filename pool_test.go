// pool_test.go: Scratch buffer pooling tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy

import (
	"sync"
	"testing"
)

// TestBufferPoolBasic verifies basic get/put operations of the buffer pools
func TestBufferPoolBasic(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"Small buffer (8B)", 8},
		{"Small buffer (64B)", 64},
		{"Medium buffer (300B)", 300},
		{"Large buffer (4KB)", 4 * 1024},
		{"Oversized buffer (10KB)", 10 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := getBuffer(tt.size)
			if buf == nil {
				t.Fatal("getBuffer returned nil")
			}
			if len(*buf) != tt.size {
				t.Errorf("Buffer length %d != requested size %d", len(*buf), tt.size)
			}
			for i := range *buf {
				(*buf)[i] = byte(i)
			}
			putBuffer(buf)
		})
	}
}

// TestBufferPoolSafety verifies that masked vectors do not survive in the pool
func TestBufferPoolSafety(t *testing.T) {
	buf := getBuffer(30)
	copy(*buf, "masked-reading-0123456789abcde")
	putBuffer(buf)

	for i, b := range *buf {
		if b != 0 {
			t.Fatalf("Buffer not zeroed at position %d: got %v, want 0", i, b)
		}
	}

	// A longer request on a recycled buffer must not expose stale bytes either
	buf2 := getBuffer(64)
	defer putBuffer(buf2)
	for i, b := range *buf2 {
		if b != 0 {
			t.Errorf("Recycled buffer not zeroed at position %d", i)
		}
	}
}

func TestClearBuffer(t *testing.T) {
	for _, n := range []int{0, 1, 63, 64, 65, 71, 512} {
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = 0xAA
		}
		clearBuffer(buf)
		for i, b := range buf {
			if b != 0 {
				t.Fatalf("clearBuffer(%d) left byte %d set", n, i)
			}
		}
	}
}

func TestPutBufferNil(t *testing.T) {
	putBuffer(nil)
}

// TestBufferPoolConcurrency verifies thread-safety
func TestBufferPoolConcurrency(t *testing.T) {
	const numGoroutines = 100
	const numOpsPerGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			for j := 0; j < numOpsPerGoroutine; j++ {
				smallBuf := getBuffer(32)
				(*smallBuf)[0] = byte(id)
				putBuffer(smallBuf)

				medBuf := getBuffer(300)
				(*medBuf)[0] = byte(j)
				putBuffer(medBuf)
			}
		}(i)
	}

	wg.Wait()
}

// TestWarmupPools verifies the warmup function
func TestWarmupPools(t *testing.T) {
	WarmupPools(10)

	for i := 0; i < 5; i++ {
		buf := getBuffer(64)
		putBuffer(buf)
	}
}

func TestAndBytes(t *testing.T) {
	dst := make([]byte, 3)
	andBytes(dst, []byte{0xFF, 0x0F, 0x00}, []byte{0xAB, 0xAB, 0xAB})
	want := []byte{0xAB, 0x0B, 0x00}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("andBytes[%d] = %#x, want %#x", i, dst[i], want[i])
		}
	}
}

// BenchmarkBufferPoolOperations measures the performance of pool operations
func BenchmarkBufferPoolOperations(b *testing.B) {
	b.Run("SmallBuffer", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := getBuffer(32)
			putBuffer(buf)
		}
	})

	b.Run("MediumBuffer", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := getBuffer(300)
			putBuffer(buf)
		}
	})
}
