package block

import (
	"fmt"
	"os"

	"github.com/magnificentthinker/kvdb/kvdberrors"
	"github.com/magnificentthinker/kvdb/varint"
)

// Reader opens a persisted block by path and performs point lookups. It
// holds no writable handle and opens/closes the file once per Get, per the
// resource policy: no live handle to a persisted file outlives the call
// that needed it.
type Reader struct {
	path            string
	restartInterval int
}

// NewReader builds a Reader over the block at path. restartInterval must
// match the interval the block was built with.
func NewReader(path string, restartInterval int) *Reader {
	if restartInterval < 1 {
		restartInterval = DefaultRestartInterval
	}
	return &Reader{path: path, restartInterval: restartInterval}
}

// Get looks up key in the block, returning its value and true on a hit, or
// false if the block does not contain key.
func (r *Reader) Get(key []byte) ([]byte, bool, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: opening %s: %v", kvdberrors.ErrIO, r.path, err)
	}
	return Get(data, key, r.restartInterval)
}

// Get looks up key within an already-loaded block's bytes. It is exported
// so the block format can be tested and reused without touching a
// filesystem.
func Get(data []byte, key []byte, restartInterval int) ([]byte, bool, error) {
	if restartInterval < 1 {
		restartInterval = DefaultRestartInterval
	}

	restarts, restartsStart, err := readRestarts(data)
	if err != nil {
		return nil, false, err
	}

	startOffset, err := binarySearchRestarts(data, restarts, key)
	if err != nil {
		return nil, false, err
	}

	offset := int(startOffset)
	var lastKey []byte
	for i := 0; i < restartInterval && offset < restartsStart; i++ {
		shared, unshared, value, next, derr := decodeEntry(data, offset)
		if derr != nil {
			return nil, false, derr
		}

		fullKey := append(append([]byte{}, lastKey[:shared]...), data[next.keyStart:next.keyStart+unshared]...)
		if string(fullKey) == string(key) {
			return append([]byte{}, value...), true, nil
		}
		lastKey = fullKey
		offset = next.nextOffset
	}

	return nil, false, nil
}

// readRestarts reads the trailer: the restart count M from the last 4
// bytes, then the M restart offsets from the preceding 4*M bytes. It
// returns the decoded offsets and the byte offset at which the trailer
// (restart table) begins — i.e. the end of the entries region.
func readRestarts(data []byte) (restarts []uint32, restartsStart int, err error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("%w: block shorter than trailer", kvdberrors.ErrCorruptedBlock)
	}

	m, err := varint.DecodeFixed32(data[len(data)-4:])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading restart count: %v", kvdberrors.ErrCorruptedBlock, err)
	}
	if m == 0 {
		return nil, 0, fmt.Errorf("%w: block has no restart points", kvdberrors.ErrCorruptedBlock)
	}

	tableLen := 4 * int(m)
	if len(data) < 4+tableLen {
		return nil, 0, fmt.Errorf("%w: truncated restart table", kvdberrors.ErrCorruptedBlock)
	}

	restartsStart = len(data) - 4 - tableLen
	restarts = make([]uint32, m)
	for i := range restarts {
		off := restartsStart + 4*i
		v, derr := varint.DecodeFixed32(data[off : off+4])
		if derr != nil {
			return nil, 0, fmt.Errorf("%w: reading restart offset %d: %v", kvdberrors.ErrCorruptedBlock, i, derr)
		}
		restarts[i] = v
	}
	return restarts, restartsStart, nil
}

// binarySearchRestarts finds the greatest restart index whose full key is
// <= key, using the l,r = 0,M-1; mid=(l+r+1)/2 recurrence from the
// reference block reader, and returns that restart point's byte offset.
func binarySearchRestarts(data []byte, restarts []uint32, key []byte) (uint32, error) {
	l, r := 0, len(restarts)-1
	for l < r {
		mid := (l + r + 1) / 2

		_, unshared, _, next, err := decodeEntry(data, int(restarts[mid]))
		if err != nil {
			return 0, err
		}
		midKey := data[next.keyStart : next.keyStart+unshared]

		if string(midKey) <= string(key) {
			l = mid
		} else {
			r = mid - 1
		}
	}
	return restarts[l], nil
}

type entryCursor struct {
	keyStart   int
	nextOffset int
}

// decodeEntry decodes the entry at offset, returning its shared/unshared
// lengths, its value bytes, and a cursor locating the unshared key bytes
// plus the offset of the following entry.
func decodeEntry(data []byte, offset int) (shared, unshared int, value []byte, cur entryCursor, err error) {
	pos := offset

	sharedV, n, derr := varint.Decode(data[pos:])
	if derr != nil {
		return 0, 0, nil, cur, fmt.Errorf("%w: decoding shared length: %v", kvdberrors.ErrCorruptedBlock, derr)
	}
	pos += n

	unsharedV, n, derr := varint.Decode(data[pos:])
	if derr != nil {
		return 0, 0, nil, cur, fmt.Errorf("%w: decoding unshared length: %v", kvdberrors.ErrCorruptedBlock, derr)
	}
	pos += n

	if pos+int(unsharedV) > len(data) {
		return 0, 0, nil, cur, fmt.Errorf("%w: truncated key", kvdberrors.ErrCorruptedBlock)
	}
	keyStart := pos
	pos += int(unsharedV)

	valueLen, n, derr := varint.Decode(data[pos:])
	if derr != nil {
		return 0, 0, nil, cur, fmt.Errorf("%w: decoding value length: %v", kvdberrors.ErrCorruptedBlock, derr)
	}
	pos += n

	if pos+int(valueLen) > len(data) {
		return 0, 0, nil, cur, fmt.Errorf("%w: truncated value", kvdberrors.ErrCorruptedBlock)
	}
	value = data[pos : pos+int(valueLen)]
	pos += int(valueLen)

	return int(sharedV), int(unsharedV), value, entryCursor{keyStart: keyStart, nextOffset: pos}, nil
}
