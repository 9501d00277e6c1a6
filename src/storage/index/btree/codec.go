// Package btree implements an on-disk B+ tree index: search, insert with
// splitting, delete with coalesce/redistribute, and a forward iterator,
// all mediated through the buffer pool.
package btree

import "encoding/binary"

// KeyCodec serializes a fixed-size key type to and from a byte layout that
// must stay bit-exact across sessions, since it is read back from disk.
type KeyCodec[K any] interface {
	Size() int
	Encode(k K, dst []byte)
	Decode(src []byte) K
}

// Int64Codec is the common case: an 8-byte big-endian signed integer key,
// ordered identically whether compared as bytes or as integers for
// non-negative keys.
type Int64Codec struct{}

func (Int64Codec) Size() int { return 8 }

func (Int64Codec) Encode(k int64, dst []byte) {
	binary.BigEndian.PutUint64(dst, uint64(k))
}

func (Int64Codec) Decode(src []byte) int64 {
	return int64(binary.BigEndian.Uint64(src))
}

// CompareInt64 is the natural total order for int64 keys.
func CompareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
