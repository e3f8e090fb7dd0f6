// Package engine is the lookup-path façade: it composes an LRU read cache,
// a mutable write buffer, at most one frozen write buffer, and a
// newest-first stack of persisted files into Insert/Get/Remove/Shutdown.
package engine

import (
	"fmt"
	"sync"

	"github.com/magnificentthinker/kvdb/block"
	"github.com/magnificentthinker/kvdb/cache"
	"github.com/magnificentthinker/kvdb/kvdberrors"
	"github.com/magnificentthinker/kvdb/memtable"
	"github.com/magnificentthinker/kvdb/record"
	"github.com/magnificentthinker/kvdb/sstable"
)

const defaultFlushThresholdBytes = 1 << 20 // 1 MiB

// Config collects the engine's three tunables plus the filename prefix. Use
// Option values with Open to override the defaults.
type Config struct {
	cacheCapacity   int
	flushThreshold  int64
	restartInterval int
	filePrefix      string
}

// Option configures an Engine at construction time.
type Option func(*Config)

// WithCacheCapacity sets the number of entries the LRU read cache holds.
func WithCacheCapacity(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.cacheCapacity = n
		}
	}
}

// WithFlushThreshold sets the soft mutable-buffer size, in bytes, that
// triggers a freeze-and-flush after Insert.
func WithFlushThreshold(n int64) Option {
	return func(c *Config) {
		if n > 0 {
			c.flushThreshold = n
		}
	}
}

// WithRestartInterval sets the block restart group size newly written
// files use.
func WithRestartInterval(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.restartInterval = n
		}
	}
}

// WithFilePrefix overrides the fixed installation-time filename prefix.
func WithFilePrefix(prefix string) Option {
	return func(c *Config) {
		if prefix != "" {
			c.filePrefix = prefix
		}
	}
}

func defaultConfig() Config {
	return Config{
		cacheCapacity:   10000,
		flushThreshold:  defaultFlushThresholdBytes,
		restartInterval: block.DefaultRestartInterval,
		filePrefix:      "segment-",
	}
}

// Engine is the storage core's lookup-path orchestrator. The zero value is
// not usable; use Open.
type Engine struct {
	mu sync.Mutex

	cfg Config

	cache   *cache.Cache
	mutable *memtable.WriteBuffer
	frozen  *memtable.WriteBuffer
	files   *sstable.Stack

	seed int64

	// flushFailed latches once a flush fails; the engine does not retry
	// automatically, matching the non-retrying error state spec.md 4.F
	// requires. Once set, every later freeze-and-flush (from an Insert past
	// the threshold or from Shutdown) fails with ErrFlushFailed without
	// writing; such an Insert still leaves its record in the mutable buffer.
	flushFailed error
}

// Open creates an Engine persisting files under dir.
func Open(dir string, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	files, err := sstable.NewStack(dir,
		sstable.WithFilePrefix(cfg.filePrefix),
		sstable.WithRestartInterval(cfg.restartInterval),
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:     cfg,
		cache:   cache.New(cfg.cacheCapacity),
		mutable: memtable.New(1),
		files:   files,
		seed:    1,
	}, nil
}

// Insert adds or overwrites key's value. It invalidates any cached entry,
// writes a LIVE record into the mutable buffer, and triggers a
// freeze-and-flush if the buffer has grown past the configured threshold.
func (e *Engine) Insert(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache.Remove(string(key))

	if err := e.mutable.Insert(record.NewLive(key, value)); err != nil {
		return err
	}

	if e.mutable.ApproxSize() > e.cfg.flushThreshold {
		return e.freezeAndFlushLocked()
	}
	return nil
}

// Get looks up key across the cache, the mutable buffer, the frozen buffer,
// and the file stack, in that order, returning the first hit. It returns
// ok=false for both a tombstoned key and a true miss.
func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rec, ok := e.cache.Get(string(key)); ok {
		return rec.Value, true, nil
	}

	if rec, ok := e.mutable.Get(key); ok {
		if rec.Kind == record.Tombstone {
			return nil, false, nil
		}
		e.cache.Insert(string(key), rec.Value)
		return rec.Value, true, nil
	}

	if e.frozen != nil {
		if rec, ok := e.frozen.Get(key); ok {
			if rec.Kind == record.Tombstone {
				return nil, false, nil
			}
			e.cache.Insert(string(key), rec.Value)
			return rec.Value, true, nil
		}
	}

	value, ok, err := e.files.Get(key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		e.cache.Insert(string(key), value)
		return value, true, nil
	}

	return nil, false, nil
}

// Remove deletes key by invalidating its cached entry and inserting a
// tombstone into the mutable buffer.
func (e *Engine) Remove(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache.Remove(string(key))
	return e.mutable.Insert(record.NewTombstone(key))
}

// Shutdown flushes any non-empty mutable buffer to disk before returning.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mutable.ApproxSize() > 0 {
		return e.freezeAndFlushLocked()
	}
	return nil
}

// freezeAndFlushLocked performs the mutable -> frozen -> persisted
// transition. Callers hold e.mu. On flush failure the frozen buffer is
// retained (nothing is lost) and flushFailed latches, so every subsequent
// call fails immediately with ErrFlushFailed; no flush is retried.
func (e *Engine) freezeAndFlushLocked() error {
	if e.flushFailed != nil {
		return fmt.Errorf("%w: engine is in a non-retrying failed-flush state: %v", kvdberrors.ErrFlushFailed, e.flushFailed)
	}

	e.mutable.Freeze()
	e.frozen = e.mutable
	e.seed++
	e.mutable = memtable.New(e.seed)

	if _, err := e.files.PushFromBuffer(e.frozen); err != nil {
		e.flushFailed = err
		return err
	}
	e.frozen = nil
	return nil
}
