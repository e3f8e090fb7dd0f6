// Package kvdberrors collects the sentinel errors raised across the engine
// so callers can match on them with errors.Is regardless of which layer
// produced them.
package kvdberrors

import "errors"

var (
	// ErrFrozenBufferWrite is returned by WriteBuffer.Insert once the
	// buffer has been frozen. It signals a programmer error: the caller
	// inserted into a buffer it should have already rotated away from.
	ErrFrozenBufferWrite = errors.New("kvdb: write to frozen buffer")

	// ErrCorruptedBlock is returned when a block's varint encoding is
	// malformed or a record is truncated.
	ErrCorruptedBlock = errors.New("kvdb: corrupted block")

	// ErrIO wraps any underlying file open/read/write/close failure.
	ErrIO = errors.New("kvdb: io error")

	// ErrFlushFailed is returned when persisting a frozen write buffer to
	// disk fails partway through; the frozen buffer is retained and the
	// engine does not retry automatically.
	ErrFlushFailed = errors.New("kvdb: flush failed")
)
