package gowarp

import (
	"bytes"
	"sync"
)

// Buffer pools for reducing GC pressure in hot paths

// byteSlicePool pools byte slices of various sizes
type byteSlicePool struct {
	// Small buffers (up to 64KB) - typical for compressed 8-bit tiles
	small sync.Pool
	// Medium buffers (up to 256KB) - an uncompressed 256x256 4-band 8-bit tile
	medium sync.Pool
	// Large buffers (up to 1MB) - 16-bit or 32-bit tiles
	large sync.Pool
}

const (
	smallBufferSize  = 64 * 1024   // 64KB
	mediumBufferSize = 256 * 1024  // 256KB
	largeBufferSize  = 1024 * 1024 // 1MB
)

var bufferPool = &byteSlicePool{
	small: sync.Pool{
		New: func() any {
			buf := make([]byte, smallBufferSize)
			return &buf
		},
	},
	medium: sync.Pool{
		New: func() any {
			buf := make([]byte, mediumBufferSize)
			return &buf
		},
	},
	large: sync.Pool{
		New: func() any {
			buf := make([]byte, largeBufferSize)
			return &buf
		},
	},
}

// GetBuffer returns a byte slice of the requested length from the pool.
// Call PutBuffer when done to return it to the pool.
func GetBuffer(size int) []byte {
	switch {
	case size <= smallBufferSize:
		return (*bufferPool.small.Get().(*[]byte))[:size]
	case size <= mediumBufferSize:
		return (*bufferPool.medium.Get().(*[]byte))[:size]
	case size <= largeBufferSize:
		return (*bufferPool.large.Get().(*[]byte))[:size]
	}
	return make([]byte, size)
}

// PutBuffer returns a buffer to the pool.
// The buffer should not be used after calling this function.
func PutBuffer(buf []byte) {
	buf = buf[:cap(buf)]
	switch cap(buf) {
	case smallBufferSize:
		bufferPool.small.Put(&buf)
	case mediumBufferSize:
		bufferPool.medium.Put(&buf)
	case largeBufferSize:
		bufferPool.large.Put(&buf)
	}
	// non-standard sizes are left to the GC
}

var bytesBufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// getBytesBuffer returns an empty bytes.Buffer from the pool.
func getBytesBuffer() *bytes.Buffer {
	buf := bytesBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBytesBuffer(buf *bytes.Buffer) {
	// Don't pool very large buffers as they consume too much memory
	if buf == nil || buf.Cap() > 4*largeBufferSize {
		return
	}
	bytesBufferPool.Put(buf)
}

// axisTap describes the taps of one destination column or row.
type axisTap struct {
	base   int // first source tap
	frac   float64
	inside bool // the mapped centre lies inside the source
	w      [4]float64
}

var tapTablePool = sync.Pool{
	New: func() any {
		t := make([]axisTap, 0, DefaultTileSize)
		return &t
	},
}

// getTapTable returns a tap table of length n. Entries are not cleared.
func getTapTable(n int) []axisTap {
	t := *tapTablePool.Get().(*[]axisTap)
	if cap(t) < n {
		return make([]axisTap, n)
	}
	return t[:n]
}

func putTapTable(t []axisTap) {
	t = t[:0]
	tapTablePool.Put(&t)
}
