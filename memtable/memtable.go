// Package memtable implements the write buffer: an ordered probabilistic
// index (package skiplist) plus an approximate byte-size counter and a
// one-way mutable-to-frozen state transition.
package memtable

import (
	"bytes"
	"iter"
	"sync/atomic"

	"github.com/magnificentthinker/kvdb/kvdberrors"
	"github.com/magnificentthinker/kvdb/record"
	"github.com/magnificentthinker/kvdb/skiplist"
)

// approxRecordOverhead is the constant-per-record size estimate used by
// ApproxSize. The reference counts sizeof(shared_record_handle) per
// inserted record rather than actual key/value bytes; this spec inherits
// "approximate, monotonic" without constraining the constant, so a small
// fixed overhead comparable to a Record struct header is used here.
const approxRecordOverhead = 48

// WriteBuffer is the mutable (or, after Freeze, read-only) in-memory index
// backing one generation of writes.
type WriteBuffer struct {
	index      *skiplist.List
	approxSize atomic.Int64
	frozen     atomic.Bool
}

// New creates an empty write buffer. seed is forwarded to the underlying
// skiplist for reproducible height selection.
func New(seed int64) *WriteBuffer {
	return &WriteBuffer{index: skiplist.New(seed)}
}

// Insert appends rec to the buffer. It fails with kvdberrors.ErrFrozenBufferWrite
// once the buffer has been frozen.
func (b *WriteBuffer) Insert(rec record.Record) error {
	if b.frozen.Load() {
		return kvdberrors.ErrFrozenBufferWrite
	}
	b.index.Insert(rec)
	b.approxSize.Add(approxRecordOverhead)
	return nil
}

// Get returns the newest record for key, tombstones included, so a caller
// can tell a deleted key apart from an absent one. Live hits come from the
// underlying index; on an index miss the buffer is scanned up to key.
func (b *WriteBuffer) Get(key []byte) (record.Record, bool) {
	if rec, ok := b.index.Get(key); ok {
		return rec, true
	}
	var found record.Record
	ok := false
	for rec := range b.index.Iterate() {
		c := bytes.Compare(rec.Key, key)
		if c > 0 {
			break
		}
		if c == 0 {
			found, ok = rec, true
		}
	}
	return found, ok
}

// Freeze marks the buffer read-only. Idempotent.
func (b *WriteBuffer) Freeze() {
	b.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (b *WriteBuffer) Frozen() bool {
	return b.frozen.Load()
}

// Iterate returns every record in ascending key order. Only meaningful as a
// stable snapshot once the buffer is frozen.
func (b *WriteBuffer) Iterate() iter.Seq[record.Record] {
	return b.index.Iterate()
}

// ApproxSize returns the accumulated size estimate.
func (b *WriteBuffer) ApproxSize() int64 {
	return b.approxSize.Load()
}
