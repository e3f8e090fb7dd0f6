// Package sstable persists a frozen write buffer as a single block file and
// maintains the newest-first stack of files a lookup walks after the
// in-memory buffers miss. Each file carries an in-memory bloom filter built
// at flush time so a miss can usually be rejected without opening the file.
package sstable

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/magnificentthinker/kvdb/block"
	"github.com/magnificentthinker/kvdb/kvdberrors"
	"github.com/magnificentthinker/kvdb/record"
)

const (
	defaultFilePrefix        = "segment-"
	fileExt                  = ".sst"
	bloomExpectedItems  uint = 10000
	bloomFalsePositive      = 0.01
)

// FrozenSource is the read side a frozen write buffer exposes to PushFromBuffer:
// an ascending iteration over its live and tombstoned records.
type FrozenSource interface {
	Iterate() iter.Seq[record.Record]
}

// File is one immutable, on-disk block file plus the bloom filter built for
// it at flush time. The filter is never persisted; it is rebuilt from the
// frozen buffer's keys while the file is written and held only in memory.
type File struct {
	VersionID       int
	Path            string
	bloom           *bloom.BloomFilter
	restartInterval int
}

// newer files mask older ones with the same key, so Get on a File never
// needs to know about its neighbors; the Stack supplies the order.
func newFile(versionID int, path string, restartInterval int, filter *bloom.BloomFilter) *File {
	return &File{VersionID: versionID, Path: path, bloom: filter, restartInterval: restartInterval}
}

// Get looks up key in this file. It consults the bloom filter first; a
// negative there is certain, so it never touches disk.
func (f *File) Get(key []byte) ([]byte, bool, error) {
	if f.bloom != nil && !f.bloom.Test(key) {
		return nil, false, nil
	}
	r := block.NewReader(f.Path, f.restartInterval)
	return r.Get(key)
}

// Stack is the newest-first list of on-disk files. Index 0 is the most
// recently flushed file; a Get scans from there toward the oldest, returning
// on the first hit so newer writes mask older ones.
type Stack struct {
	mu              sync.Mutex
	dir             string
	prefix          string
	restartInterval int
	nextVersion     int
	files           []*File
}

// Option configures a Stack.
type Option func(*Stack)

// WithFilePrefix overrides the default on-disk filename prefix.
func WithFilePrefix(prefix string) Option {
	return func(s *Stack) { s.prefix = prefix }
}

// WithRestartInterval sets the restart group size used by files this stack
// writes.
func WithRestartInterval(n int) Option {
	return func(s *Stack) {
		if n > 0 {
			s.restartInterval = n
		}
	}
}

// NewStack creates an empty file stack rooted at dir. It does not scan dir
// for pre-existing files: there is no crash-recovery path, so a fresh Stack
// always starts version numbering from 1.
func NewStack(dir string, opts ...Option) (*Stack, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", kvdberrors.ErrIO, dir, err)
	}

	s := &Stack{
		dir:             dir,
		prefix:          defaultFilePrefix,
		restartInterval: block.DefaultRestartInterval,
		nextVersion:     1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Stack) pathFor(versionID int) string {
	name := fmt.Sprintf("%s%06d%s", s.prefix, versionID, fileExt)
	return filepath.Join(s.dir, name)
}

// PushFromBuffer writes buf's records, in ascending key order, into one new
// block file, pushes it onto the front of the stack as the newest file, and
// returns it. A partial write is removed before the error is returned; the
// caller is expected to retain the frozen buffer and surface ErrFlushFailed
// rather than retry automatically.
func (s *Stack) PushFromBuffer(buf FrozenSource) (*File, error) {
	s.mu.Lock()
	versionID := s.nextVersion
	s.mu.Unlock()

	path := s.pathFor(versionID)

	builder := block.NewBuilder(s.restartInterval)
	filter := bloom.NewWithEstimates(bloomExpectedItems, bloomFalsePositive)

	for rec := range buf.Iterate() {
		// A tombstone is written as an empty value; no kind tag is
		// persisted (Stack.Get reads an empty value as a deletion).
		builder.Add(rec.Key, rec.Value)
		filter.Add(rec.Key)
	}
	data := builder.Finish()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: writing %s: %v", kvdberrors.ErrFlushFailed, path, err)
	}

	f := newFile(versionID, path, s.restartInterval, filter)

	s.mu.Lock()
	s.nextVersion++
	s.files = append([]*File{f}, s.files...)
	s.mu.Unlock()

	return f, nil
}

// Get scans the stack newest-first and returns the first hit. The first
// file that contains key wins even if its value is empty: an empty value is
// a flushed tombstone, and the freshest record for a key always masks
// older ones, so the scan stops there rather than searching further back.
func (s *Stack) Get(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	files := make([]*File, len(s.files))
	copy(files, s.files)
	s.mu.Unlock()

	for _, f := range files {
		value, ok, err := f.Get(key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			if len(value) == 0 {
				return nil, false, nil
			}
			return value, true, nil
		}
	}
	return nil, false, nil
}

// Files returns the current newest-first snapshot of the stack.
func (s *Stack) Files() []*File {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*File, len(s.files))
	copy(out, s.files)
	return out
}
