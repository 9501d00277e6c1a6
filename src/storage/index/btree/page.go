package btree

import (
	"encoding/binary"

	"github.com/Blackdeer1524/reldb/src/pkg/common"
)

// Page type tags: LEAF=0 / INTERNAL=1, stored as the page_type header field.
const (
	pageTypeLeaf     int32 = 0
	pageTypeInternal int32 = 1
)

// Common header field offsets, 24 bytes total: page_type, size, max_size,
// parent_page_id, page_id, each a 4-byte field, followed by 4 bytes of
// unused padding. Leaves append a 4-byte next_page_id right after the
// common header (a 28-byte leaf header); internal pages add nothing.
const (
	offPageType       = 0
	offSize           = 4
	offMaxSize        = 8
	offParentPageID   = 12
	offPageID         = 16
	commonHeaderSize  = 24
	offLeafNextPageID = commonHeaderSize
	leafHeaderSize    = commonHeaderSize + 4
	internalHeaderSize = commonHeaderSize
)

// header wraps the first commonHeaderSize bytes shared by every tree page
// variant.
type header struct{ buf []byte }

func (h header) PageType() int32 { return int32(binary.BigEndian.Uint32(h.buf[offPageType:])) }
func (h header) setPageType(t int32) {
	binary.BigEndian.PutUint32(h.buf[offPageType:], uint32(t))
}

func (h header) Size() int32 { return int32(binary.BigEndian.Uint32(h.buf[offSize:])) }
func (h header) SetSize(n int32) {
	binary.BigEndian.PutUint32(h.buf[offSize:], uint32(n))
}

func (h header) MaxSize() int32 { return int32(binary.BigEndian.Uint32(h.buf[offMaxSize:])) }
func (h header) SetMaxSize(n int32) {
	binary.BigEndian.PutUint32(h.buf[offMaxSize:], uint32(n))
}

func (h header) ParentPageID() common.PageID {
	return common.PageID(int32(binary.BigEndian.Uint32(h.buf[offParentPageID:])))
}
func (h header) SetParentPageID(id common.PageID) {
	binary.BigEndian.PutUint32(h.buf[offParentPageID:], uint32(int32(id)))
}

func (h header) PageID() common.PageID {
	return common.PageID(int32(binary.BigEndian.Uint32(h.buf[offPageID:])))
}
func (h header) SetPageID(id common.PageID) {
	binary.BigEndian.PutUint32(h.buf[offPageID:], uint32(int32(id)))
}

func (h header) IsRoot() bool { return !h.ParentPageID().IsValid() }

// leafView interprets a page's bytes as a leaf node: header.Size() entries
// of (key, rid) in ascending key order, plus the next_leaf chain pointer.
type leafView[K any] struct {
	header
	codec KeyCodec[K]
}

func newLeafView[K any](buf []byte, codec KeyCodec[K]) leafView[K] {
	return leafView[K]{header: header{buf: buf}, codec: codec}
}

func (l leafView[K]) NextPageID() common.PageID {
	return common.PageID(int32(binary.BigEndian.Uint32(l.buf[offLeafNextPageID:])))
}
func (l leafView[K]) SetNextPageID(id common.PageID) {
	binary.BigEndian.PutUint32(l.buf[offLeafNextPageID:], uint32(int32(id)))
}

func (l leafView[K]) entrySize() int { return l.codec.Size() + 8 }

func (l leafView[K]) entryOffset(i int) int { return leafHeaderSize + i*l.entrySize() }

func (l leafView[K]) KeyAt(i int) K {
	off := l.entryOffset(i)
	return l.codec.Decode(l.buf[off : off+l.codec.Size()])
}

func (l leafView[K]) setKeyAt(i int, k K) {
	off := l.entryOffset(i)
	l.codec.Encode(k, l.buf[off:off+l.codec.Size()])
}

func (l leafView[K]) ValueAt(i int) common.RID {
	off := l.entryOffset(i) + l.codec.Size()
	return common.RID{
		PageID:  common.PageID(int32(binary.BigEndian.Uint32(l.buf[off:]))),
		SlotNum: binary.BigEndian.Uint32(l.buf[off+4:]),
	}
}

func (l leafView[K]) setValueAt(i int, rid common.RID) {
	off := l.entryOffset(i) + l.codec.Size()
	binary.BigEndian.PutUint32(l.buf[off:], uint32(int32(rid.PageID)))
	binary.BigEndian.PutUint32(l.buf[off+4:], rid.SlotNum)
}

func (l leafView[K]) setEntry(i int, k K, rid common.RID) {
	l.setKeyAt(i, k)
	l.setValueAt(i, rid)
}

// insertAt shifts entries [i, size) one slot to the right and writes (k,
// rid) at i, growing size by one.
func (l leafView[K]) insertAt(i int, k K, rid common.RID) {
	n := int(l.Size())
	for j := n; j > i; j-- {
		l.setEntry(j, l.KeyAt(j-1), l.ValueAt(j-1))
	}
	l.setEntry(i, k, rid)
	l.SetSize(int32(n + 1))
}

// removeAt shifts entries (i, size) one slot to the left, shrinking size by
// one.
func (l leafView[K]) removeAt(i int) {
	n := int(l.Size())
	for j := i; j < n-1; j++ {
		l.setEntry(j, l.KeyAt(j+1), l.ValueAt(j+1))
	}
	l.SetSize(int32(n - 1))
}

func initLeaf[K any](buf []byte, codec KeyCodec[K], pageID, parentID common.PageID, maxSize int32) leafView[K] {
	l := newLeafView(buf, codec)
	l.setPageType(pageTypeLeaf)
	l.SetSize(0)
	l.SetMaxSize(maxSize)
	l.SetParentPageID(parentID)
	l.SetPageID(pageID)
	l.SetNextPageID(common.InvalidPageID)
	return l
}

// internalView interprets a page's bytes as an internal node: header.Size()
// entries of (key, child_page_id); entry 0's key bytes are never read.
type internalView[K any] struct {
	header
	codec KeyCodec[K]
}

func newInternalView[K any](buf []byte, codec KeyCodec[K]) internalView[K] {
	return internalView[K]{header: header{buf: buf}, codec: codec}
}

func (n internalView[K]) entrySize() int { return n.codec.Size() + 4 }

func (n internalView[K]) entryOffset(i int) int { return internalHeaderSize + i*n.entrySize() }

func (n internalView[K]) KeyAt(i int) K {
	off := n.entryOffset(i)
	return n.codec.Decode(n.buf[off : off+n.codec.Size()])
}

func (n internalView[K]) setKeyAt(i int, k K) {
	off := n.entryOffset(i)
	n.codec.Encode(k, n.buf[off:off+n.codec.Size()])
}

func (n internalView[K]) ChildAt(i int) common.PageID {
	off := n.entryOffset(i) + n.codec.Size()
	return common.PageID(int32(binary.BigEndian.Uint32(n.buf[off:])))
}

func (n internalView[K]) setChildAt(i int, id common.PageID) {
	off := n.entryOffset(i) + n.codec.Size()
	binary.BigEndian.PutUint32(n.buf[off:], uint32(int32(id)))
}

func (n internalView[K]) setEntry(i int, k K, child common.PageID) {
	n.setKeyAt(i, k)
	n.setChildAt(i, child)
}

func (n internalView[K]) insertAt(i int, k K, child common.PageID) {
	size := int(n.Size())
	for j := size; j > i; j-- {
		n.setEntry(j, n.KeyAt(j-1), n.ChildAt(j-1))
	}
	n.setEntry(i, k, child)
	n.SetSize(int32(size + 1))
}

func (n internalView[K]) removeAt(i int) {
	size := int(n.Size())
	for j := i; j < size-1; j++ {
		n.setEntry(j, n.KeyAt(j+1), n.ChildAt(j+1))
	}
	n.SetSize(int32(size - 1))
}

// findChildIndex returns the index i of the first key strictly greater
// than key, or Size() if none. The caller descends via child i-1 (i is
// never 0, since entry 0's key is ignored and the scan starts at 1).
func (n internalView[K]) findChildIndex(key K, cmp func(a, b K) int) int {
	size := int(n.Size())
	i := 1
	for i < size && cmp(n.KeyAt(i), key) <= 0 {
		i++
	}
	return i
}

func initInternal[K any](buf []byte, codec KeyCodec[K], pageID, parentID common.PageID, maxSize int32) internalView[K] {
	n := newInternalView(buf, codec)
	n.setPageType(pageTypeInternal)
	n.SetSize(0)
	n.SetMaxSize(maxSize)
	n.SetParentPageID(parentID)
	n.SetPageID(pageID)
	return n
}

// headerPageRootOffset is where the header page stores root_page_id.
const headerPageRootOffset = 0

func readRootPageID(buf []byte) common.PageID {
	return common.PageID(int32(binary.BigEndian.Uint32(buf[headerPageRootOffset:])))
}

func writeRootPageID(buf []byte, id common.PageID) {
	binary.BigEndian.PutUint32(buf[headerPageRootOffset:], uint32(int32(id)))
}
