package skiplist

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/magnificentthinker/kvdb/record"
)

func key(i int) []byte { return []byte(fmt.Sprintf("%05d", i)) }

func TestEmptyList(t *testing.T) {
	l := New(1)
	if _, ok := l.Get(key(1)); ok {
		t.Fatal("expected miss on empty list")
	}
}

func TestInsertAndGet(t *testing.T) {
	l := New(1)
	l.Insert(record.NewLive(key(10), []byte("ten")))

	got, ok := l.Get(key(10))
	if !ok || !bytes.Equal(got.Value, []byte("ten")) {
		t.Fatalf("got %v, %v", got, ok)
	}
}

func TestOverwriteReturnsMostRecent(t *testing.T) {
	l := New(1)
	l.Insert(record.NewLive(key(1), []byte("v1")))
	l.Insert(record.NewLive(key(1), []byte("v2")))

	got, ok := l.Get(key(1))
	if !ok || !bytes.Equal(got.Value, []byte("v2")) {
		t.Fatalf("expected v2, got %v", got)
	}
}

func TestTombstoneMasksLiveRecord(t *testing.T) {
	l := New(1)
	l.Insert(record.NewLive(key(1), []byte("v")))
	l.Insert(record.NewTombstone(key(1)))

	if _, ok := l.Get(key(1)); ok {
		t.Fatal("expected miss after tombstone")
	}
}

func TestSequentialInsertAndGet(t *testing.T) {
	l := New(42)
	for i := 0; i < 1000; i++ {
		l.Insert(record.NewLive(key(i), key(i)))
	}
	for i := 0; i < 1000; i++ {
		got, ok := l.Get(key(i))
		if !ok || !bytes.Equal(got.Value, key(i)) {
			t.Fatalf("bad value for key %d", i)
		}
	}
}

func TestIteratorAscendingOrder(t *testing.T) {
	l := New(7)
	rnd := rand.New(rand.NewSource(7))
	keys := make(map[string]bool)
	for i := 0; i < 500; i++ {
		k := key(rnd.Intn(2000))
		l.Insert(record.NewLive(k, k))
		keys[string(k)] = true
	}

	var prev []byte
	count := 0
	for rec := range l.Iterate() {
		if prev != nil && bytes.Compare(rec.Key, prev) < 0 {
			t.Fatalf("iterator out of order: %q before %q", rec.Key, prev)
		}
		prev = rec.Key
		count++
	}
	if count != 500 {
		t.Fatalf("expected 500 entries (duplicates coexist), got %d", count)
	}
}

func TestIteratorEarlyStop(t *testing.T) {
	l := New(3)
	for i := 0; i < 100; i++ {
		l.Insert(record.NewLive(key(i), key(i)))
	}

	count := 0
	for range l.Iterate() {
		count++
		if count == 10 {
			break
		}
	}
	if count != 10 {
		t.Fatalf("expected early stop at 10, got %d", count)
	}
}

func TestConcurrentReadersDuringInsert(t *testing.T) {
	l := New(9)
	for i := 0; i < 200; i += 2 {
		l.Insert(record.NewLive(key(i), key(i)))
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					for i := 0; i < 200; i += 2 {
						if _, ok := l.Get(key(i)); !ok {
							t.Errorf("reader lost key %d mid-write", i)
							return
						}
					}
				}
			}
		}()
	}

	for i := 1; i < 200; i += 2 {
		l.Insert(record.NewLive(key(i), key(i)))
	}
	close(stop)
	wg.Wait()
}

func TestRandomHeightDistribution(t *testing.T) {
	l := New(123)
	counts := make([]int, maxHeight+1)
	for i := 0; i < 10000; i++ {
		counts[l.randomHeight()]++
	}
	if counts[0] != 0 {
		t.Fatalf("height 0 should never occur")
	}
	// Height 1 should be the large majority (~75% at p=4).
	if counts[1] < 6000 {
		t.Fatalf("expected most heights to be 1, got distribution %v", counts)
	}
}
