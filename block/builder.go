// Package block implements the prefix-compressed, restart-pointed byte
// format persisted files are made of: Builder appends (key, value) pairs
// in increasing key order into one finished block; Reader opens a block by
// path and looks up a single key with a binary search over the restart
// table followed by a linear scan within the matching restart group.
//
// Layout (little-endian throughout):
//
//	block   := entries trailer
//	entries := entry*
//	entry   := varint(shared) varint(unshared) unshared_key_bytes
//	           varint(value_len) value_bytes
//	trailer := fixed32(restart_offset)^M fixed32(M)
//
// Every restart group's first entry has shared=0 (its key is stored in
// full), which is what lets Reader binary-search the restart table without
// decoding the whole block.
package block

import (
	"github.com/magnificentthinker/kvdb/varint"
)

// DefaultRestartInterval is the reference restart group size (R=4).
const DefaultRestartInterval = 4

// Builder buffers entries for one block. The zero value is not usable; use
// NewBuilder. Keys must be added in strictly increasing order — Builder
// does not check this; the caller is responsible for it.
type Builder struct {
	restartInterval int
	buf             []byte
	restarts        []uint32
	entriesSince    int
	lastKey         []byte
}

// NewBuilder creates a Builder that starts a new restart group every
// restartInterval entries.
func NewBuilder(restartInterval int) *Builder {
	if restartInterval < 1 {
		restartInterval = DefaultRestartInterval
	}
	b := &Builder{restartInterval: restartInterval}
	b.Reset()
	return b
}

// Reset empties the builder and seeds restart point 0 at offset 0.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = append(b.restarts[:0], 0)
	b.entriesSince = 0
	b.lastKey = b.lastKey[:0]
}

// Add appends a (key, value) entry. key must sort strictly after the key
// from the previous Add call since the last Reset.
func (b *Builder) Add(key, value []byte) {
	shared := 0
	if b.entriesSince == b.restartInterval {
		b.restarts = append(b.restarts, uint32(len(b.buf)))
		b.entriesSince = 0
	} else {
		shared = commonPrefixLen(key, b.lastKey)
	}

	unshared := len(key) - shared
	b.buf = varint.Append(b.buf, uint32(shared))
	b.buf = varint.Append(b.buf, uint32(unshared))
	b.buf = append(b.buf, key[shared:]...)
	b.buf = varint.Append(b.buf, uint32(len(value)))
	b.buf = append(b.buf, value...)

	b.lastKey = append(b.lastKey[:0], key...)
	b.entriesSince++
}

// Finish appends the restart trailer and returns the finished block bytes.
// The builder is left in an undefined state until the next Reset.
func (b *Builder) Finish() []byte {
	for _, offset := range b.restarts {
		b.buf = varint.AppendFixed32(b.buf, offset)
	}
	b.buf = varint.AppendFixed32(b.buf, uint32(len(b.restarts)))
	return b.buf
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
