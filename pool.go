// pool.go: Scratch buffer pooling for helper rounds
//
// Every helper round needs a masked vector of the source value's length. The
// vector is key material, so buffers are cleared before they go back to a pool.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy

import (
	"sync"
)

var (
	// Buffer pools sized for typical source values to reduce GC pressure
	smallBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 64) // Up to 512-bit readings
			return &buf
		},
	}

	mediumBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 512) // Iris codes and similar templates
			return &buf
		},
	}

	largeBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 4*1024)
			return &buf
		},
	}
)

// getBuffer retrieves a buffer from the appropriate pool based on size
func getBuffer(size int) *[]byte {
	switch {
	case size <= 64:
		buf := smallBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	case size <= 512:
		buf := mediumBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	case size <= 4*1024:
		buf := largeBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	default:
		// For very large sizes, allocate directly
		buf := make([]byte, size)
		return &buf
	}
}

// clearBuffer zeroes buf, unrolled for buffers larger than a cache line
func clearBuffer(buf []byte) {
	if len(buf) <= 64 {
		for i := range buf {
			buf[i] = 0
		}
		return
	}

	i := 0
	for i < len(buf)-7 {
		buf[i] = 0
		buf[i+1] = 0
		buf[i+2] = 0
		buf[i+3] = 0
		buf[i+4] = 0
		buf[i+5] = 0
		buf[i+6] = 0
		buf[i+7] = 0
		i += 8
	}
	for i < len(buf) {
		buf[i] = 0
		i++
	}
}

// putBuffer clears a buffer and returns it to the pool it came from
func putBuffer(buf *[]byte) {
	if buf == nil {
		return
	}

	if len(*buf) > 0 {
		clearBuffer(*buf)
	}

	size := cap(*buf)
	switch {
	case size == 64:
		smallBufferPool.Put(buf)
	case size == 512:
		mediumBufferPool.Put(buf)
	case size == 4*1024:
		largeBufferPool.Put(buf)
		// Non-standard sizes are not returned to the pool
	}
}

// WarmupPools pre allocates buffers in the pools to reduce cold latency
// before a burst of enrollments.
func WarmupPools(count int) {
	bufs := make([]*[]byte, 0, 3*count)
	for i := 0; i < count; i++ {
		bufs = append(bufs, getBuffer(64), getBuffer(512), getBuffer(4*1024))
	}
	for _, buf := range bufs {
		putBuffer(buf)
	}
}
