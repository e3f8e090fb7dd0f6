// Package record defines the key-value vocabulary shared by every layer of
// the engine: the write buffer, the block format, the persisted file stack,
// and the read cache all move Record values around without caring where a
// record came from.
package record

// Kind distinguishes a live value from a tombstone left behind by Remove.
type Kind uint8

const (
	// Live records carry a real value.
	Live Kind = iota
	// Tombstone records shadow older values for the same key; their Value
	// is unused and always empty.
	Tombstone
)

func (k Kind) String() string {
	if k == Tombstone {
		return "tombstone"
	}
	return "live"
}

// Record is the (key, value, kind) triple moved through the skiplist, the
// write buffer, the block builder/reader, and the LRU cache. Records are
// shared by value; nothing below treats Record identity as meaningful.
type Record struct {
	Key   []byte
	Value []byte
	Kind  Kind
}

// NewLive builds a live record for key/value.
func NewLive(key, value []byte) Record {
	return Record{Key: key, Value: value, Kind: Live}
}

// NewTombstone builds a tombstone record for key. Its value is always empty.
func NewTombstone(key []byte) Record {
	return Record{Key: key, Kind: Tombstone}
}
