// Package skiplist implements the ordered probabilistic index used as the
// write buffer's index: a multi-level forward-linked set of records keyed
// by byte-slice key, with a single writer and many lock-free readers.
//
// The height selection and traversal rules are ported from the reference
// kvdb's SkipList<Key> (db/skiplist.h): height H_max=12, branching p=4,
// and a "advance while next.key <= target" descent that both Insert and
// Get share so their tie-break on duplicate keys agrees.
package skiplist

import (
	"bytes"
	"iter"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/magnificentthinker/kvdb/record"
)

const (
	maxHeight = 12
	branching = 4
)

type node struct {
	record record.Record
	next   []atomic.Pointer[node]
}

func newNode(rec record.Record, height int) *node {
	return &node{record: rec, next: make([]atomic.Pointer[node], height)}
}

// List is a concurrent ordered probabilistic index. The zero value is not
// usable; construct one with New.
type List struct {
	head      *node
	maxHeight atomic.Int32

	mu  sync.Mutex // serializes writers; readers never take it
	rnd *rand.Rand
}

// New builds an empty list. seed makes height selection reproducible across
// runs, matching the reference's Random rnd_(0xdeadbeef).
func New(seed int64) *List {
	l := &List{head: newNode(record.Record{}, maxHeight), rnd: rand.New(rand.NewSource(seed))}
	l.maxHeight.Store(1)
	return l
}

func (l *List) height() int {
	return int(l.maxHeight.Load())
}

// randomHeight picks a node height: 1 with probability (p-1)/p, each
// additional level taken with probability 1/p, capped at maxHeight.
func (l *List) randomHeight() int {
	h := 1
	for h < maxHeight && l.rnd.Intn(branching) == 0 {
		h++
	}
	return h
}

// findPredecessors descends from the current top level to level 0,
// advancing on each level while the next key is <= target, and records the
// last node visited at each level into preds (if non-nil). It returns the
// node the descent lands on.
func (l *List) findPredecessors(key []byte, preds []*node) *node {
	x := l.head
	for level := l.height() - 1; level >= 0; level-- {
		for {
			next := x.next[level].Load()
			if next == nil || bytes.Compare(next.record.Key, key) > 0 {
				break
			}
			x = next
		}
		if preds != nil {
			preds[level] = x
		}
	}
	return x
}

// Insert places rec in sorted position. Duplicate keys may coexist; since
// Get shares the same "advance while <=" descent, the most recently
// inserted record for a key is the one a subsequent Get observes. Insert
// must not be called concurrently with another Insert (single-writer); it
// may run concurrently with any number of Get/Iterate calls.
func (l *List) Insert(rec record.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	height := l.randomHeight()
	curHeight := l.height()

	preds := make([]*node, maxHeight)
	l.findPredecessors(rec.Key, preds[:curHeight])
	for level := curHeight; level < height; level++ {
		preds[level] = l.head
	}
	if height > curHeight {
		l.maxHeight.Store(int32(height))
	}

	n := newNode(rec, height)
	for level := 0; level < height; level++ {
		n.next[level].Store(preds[level].next[level].Load())
		preds[level].next[level].Store(n)
	}
}

// Get returns the record whose key equals key and whose kind is Live. If
// the matching record is a tombstone, or no record with that key exists,
// it returns the zero Record and false.
func (l *List) Get(key []byte) (record.Record, bool) {
	x := l.findPredecessors(key, nil)
	if x == l.head || !bytes.Equal(x.record.Key, key) {
		return record.Record{}, false
	}
	if x.record.Kind == record.Tombstone {
		return record.Record{}, false
	}
	return x.record, true
}

// Iterate returns a finite, forward-only, non-restartable sequence of every
// record in the list in ascending key order (including tombstones — callers
// that care about liveness filter them). It may run concurrently with the
// single writer's Insert; readers never block each other.
func (l *List) Iterate() iter.Seq[record.Record] {
	return func(yield func(record.Record) bool) {
		x := l.head.next[0].Load()
		for x != nil {
			if !yield(x.record) {
				return
			}
			x = x.next[0].Load()
		}
	}
}
