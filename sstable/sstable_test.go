package sstable

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/magnificentthinker/kvdb/memtable"
	"github.com/magnificentthinker/kvdb/record"
)

func newFlushedStack(t *testing.T, recs ...record.Record) (*Stack, *memtable.WriteBuffer) {
	t.Helper()
	buf := memtable.New(1)
	for _, r := range recs {
		if err := buf.Insert(r); err != nil {
			t.Fatal(err)
		}
	}
	buf.Freeze()

	dir := t.TempDir()
	s, err := NewStack(dir, WithRestartInterval(4))
	if err != nil {
		t.Fatal(err)
	}
	return s, buf
}

func TestPushFromBufferThenGet(t *testing.T) {
	s, buf := newFlushedStack(t,
		record.NewLive([]byte("a"), []byte("1")),
		record.NewLive([]byte("b"), []byte("2")),
		record.NewLive([]byte("c"), []byte("3")),
	)

	f, err := s.PushFromBuffer(buf)
	if err != nil {
		t.Fatal(err)
	}
	if f.VersionID != 1 {
		t.Fatalf("VersionID = %d, want 1", f.VersionID)
	}

	v, ok, err := s.Get([]byte("b"))
	if err != nil || !ok || string(v) != "2" {
		t.Fatalf("Get(b) = %q, %v, %v", v, ok, err)
	}

	if _, ok, err := s.Get([]byte("missing")); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestNewestFileWinsOnOverlappingKeys(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStack(dir, WithRestartInterval(4))
	if err != nil {
		t.Fatal(err)
	}

	older := memtable.New(1)
	older.Insert(record.NewLive([]byte("k"), []byte("old")))
	older.Freeze()
	if _, err := s.PushFromBuffer(older); err != nil {
		t.Fatal(err)
	}

	newer := memtable.New(2)
	newer.Insert(record.NewLive([]byte("k"), []byte("new")))
	newer.Freeze()
	if _, err := s.PushFromBuffer(newer); err != nil {
		t.Fatal(err)
	}

	v, ok, err := s.Get([]byte("k"))
	if err != nil || !ok || string(v) != "new" {
		t.Fatalf("Get(k) = %q, %v, %v; want newest value", v, ok, err)
	}
}

func TestTombstoneInNewerFileMasksOlderLiveValue(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStack(dir, WithRestartInterval(4))
	if err != nil {
		t.Fatal(err)
	}

	older := memtable.New(1)
	older.Insert(record.NewLive([]byte("k"), []byte("old")))
	older.Freeze()
	if _, err := s.PushFromBuffer(older); err != nil {
		t.Fatal(err)
	}

	newer := memtable.New(2)
	newer.Insert(record.NewTombstone([]byte("k")))
	newer.Freeze()
	if _, err := s.PushFromBuffer(newer); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := s.Get([]byte("k")); err != nil || ok {
		t.Fatalf("expected tombstone to mask older value, got ok=%v err=%v", ok, err)
	}
}

func TestVersionIDsIncreaseAcrossFlushes(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStack(dir, WithRestartInterval(4))
	if err != nil {
		t.Fatal(err)
	}

	var lastID int
	for i := 0; i < 5; i++ {
		buf := memtable.New(int64(i))
		buf.Insert(record.NewLive([]byte(fmt.Sprintf("key-%d", i)), []byte("v")))
		buf.Freeze()

		f, err := s.PushFromBuffer(buf)
		if err != nil {
			t.Fatal(err)
		}
		if f.VersionID <= lastID {
			t.Fatalf("VersionID did not increase: %d <= %d", f.VersionID, lastID)
		}
		lastID = f.VersionID
	}

	files := s.Files()
	if len(files) != 5 {
		t.Fatalf("len(files) = %d, want 5", len(files))
	}
	if files[0].VersionID != 5 {
		t.Fatalf("newest file at index 0 has VersionID %d, want 5", files[0].VersionID)
	}
	if files[len(files)-1].VersionID != 1 {
		t.Fatalf("oldest file at end has VersionID %d, want 1", files[len(files)-1].VersionID)
	}
}

func TestBloomFilterReportsFlushedKeyAsPresent(t *testing.T) {
	s, buf := newFlushedStack(t, record.NewLive([]byte("present"), []byte("v")))
	f, err := s.PushFromBuffer(buf)
	if err != nil {
		t.Fatal(err)
	}

	if f.bloom.Test([]byte("present")) != true {
		t.Fatal("bloom filter should report present key as possibly present")
	}
}

func TestFileNamingUsesVersionID(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStack(dir, WithFilePrefix("seg-"))
	if err != nil {
		t.Fatal(err)
	}

	buf := memtable.New(1)
	buf.Insert(record.NewLive([]byte("a"), []byte("1")))
	buf.Freeze()

	f, err := s.PushFromBuffer(buf)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "seg-000001.sst")
	if f.Path != want {
		t.Fatalf("Path = %s, want %s", f.Path, want)
	}
}
