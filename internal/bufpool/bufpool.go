// Package bufpool provides a tiered buffer pool for transfer I/O.
//
// File payloads are streamed over the wire in bounded chunks; every chunk
// needs a scratch buffer. Pooling those buffers keeps the per-transfer
// allocation count flat regardless of file size.
//
// Two size tiers are enough for this server:
//   - Small buffers (4KB): command lines and short payloads
//   - Large buffers (64KB): bulk file transfer chunks
//
// Buffers larger than the large tier are allocated directly and not pooled
// to avoid keeping oversized buffers in memory indefinitely.
//
// All operations are thread-safe via sync.Pool.
package bufpool

import (
	"sync"
)

const (
	// SmallSize covers command lines and short payloads (4KB)
	SmallSize = 4 << 10

	// LargeSize covers file transfer chunks (64KB)
	LargeSize = 64 << 10
)

var (
	small = sync.Pool{
		New: func() any {
			buf := make([]byte, SmallSize)
			return &buf
		},
	}
	large = sync.Pool{
		New: func() any {
			buf := make([]byte, LargeSize)
			return &buf
		},
	}
)

// Get returns a byte slice of at least the requested size.
// The slice may be longer than requested; callers must honor their own
// length accounting. Pair every Get with a Put:
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
func Get(size int) []byte {
	var bufPtr *[]byte

	switch {
	case size <= SmallSize:
		bufPtr = small.Get().(*[]byte)
	case size <= LargeSize:
		bufPtr = large.Get().(*[]byte)
	default:
		// Oversized requests bypass the pool entirely.
		return make([]byte, size)
	}

	return (*bufPtr)[:size]
}

// Put returns a buffer to the pool for reuse.
// The buffer must not be used after Put. Buffers that did not come from
// Get (wrong capacity) are dropped and garbage collected normally.
func Put(buf []byte) {
	if buf == nil {
		return
	}

	full := buf[:cap(buf)]
	switch cap(buf) {
	case SmallSize:
		small.Put(&full)
	case LargeSize:
		large.Put(&full)
	}
}
