package btree

import (
	"github.com/Blackdeer1524/reldb/src/buffer"
	"github.com/Blackdeer1524/reldb/src/pkg/assert"
	"github.com/Blackdeer1524/reldb/src/pkg/common"
)

// Iterator walks leaf entries in ascending key order, crossing next_leaf
// pointers as it exhausts each page. It holds a pin on at most one leaf at
// a time; Close (or draining to the end) releases it.
type Iterator[K any] struct {
	tree  *BPlusTree[K]
	guard buffer.BasicPageGuard
	leaf  leafView[K]
	idx   int
	valid bool
}

// Begin returns an iterator positioned at the smallest key in the tree.
func (t *BPlusTree[K]) Begin() *Iterator[K] {
	t.latch.RLock()
	defer t.latch.RUnlock()

	if !t.rootPageID().IsValid() {
		return &Iterator[K]{tree: t, valid: false}
	}

	g := t.findLeftmostLeaf()
	it := &Iterator[K]{tree: t, guard: g, leaf: newLeafView(g.Data(), t.codec), idx: 0}
	it.valid = int(it.leaf.Size()) > 0
	if !it.valid {
		it.release()
	}
	return it
}

// BeginAt returns an iterator positioned at the smallest key >= key.
func (t *BPlusTree[K]) BeginAt(key K) *Iterator[K] {
	t.latch.RLock()
	defer t.latch.RUnlock()

	if !t.rootPageID().IsValid() {
		return &Iterator[K]{tree: t, valid: false}
	}

	g := t.findLeaf(key)
	leaf := newLeafView(g.Data(), t.codec)
	i, _ := t.leafSearch(leaf, key)

	it := &Iterator[K]{tree: t, guard: g, leaf: leaf, idx: i}
	it.valid = i < int(leaf.Size())
	if !it.valid {
		it.advanceToNextLeaf()
	}
	return it
}

// End reports whether the iterator has been exhausted.
func (it *Iterator[K]) End() bool { return !it.valid }

// IsEnd is an alias for End, matching the common "is-end sentinel" naming.
func (it *Iterator[K]) IsEnd() bool { return it.End() }

// Valid reports whether the iterator is positioned at an entry, i.e. the
// negation of End — the test-helper spelling callers reach for when
// writing "for it.Valid() { ... }" loops.
func (it *Iterator[K]) Valid() bool { return it.valid }

// Key returns the current entry's key. Must not be called when End().
func (it *Iterator[K]) Key() K {
	assert.Assert(it.valid, "Key called on exhausted iterator")
	return it.leaf.KeyAt(it.idx)
}

// Value returns the current entry's RID. Must not be called when End().
func (it *Iterator[K]) Value() common.RID {
	assert.Assert(it.valid, "Value called on exhausted iterator")
	return it.leaf.ValueAt(it.idx)
}

// Next advances the iterator by one entry, crossing to the next leaf page
// if the current one is exhausted.
func (it *Iterator[K]) Next() {
	assert.Assert(it.valid, "Next called on exhausted iterator")
	it.idx++
	if it.idx >= int(it.leaf.Size()) {
		it.advanceToNextLeaf()
	}
}

func (it *Iterator[K]) advanceToNextLeaf() {
	for {
		next := it.leaf.NextPageID()
		it.release()
		if !next.IsValid() {
			it.valid = false
			return
		}

		it.tree.latch.RLock()
		g, ok := it.tree.pool.FetchPageBasic(next)
		it.tree.latch.RUnlock()
		assert.Assert(ok, "leaf page %d must be resident", next)

		it.guard = g
		it.leaf = newLeafView(g.Data(), it.tree.codec)
		it.idx = 0
		if int(it.leaf.Size()) > 0 {
			it.valid = true
			return
		}
		// An empty leaf can only transiently exist mid-coalesce; the tree
		// latch excludes that during iteration, so loop defensively rather
		// than assume it can't happen.
	}
}

func (it *Iterator[K]) release() {
	if it.guard.IsValid() {
		it.guard.Drop()
	}
}

// Close releases the iterator's pinned leaf, if any. Safe to call multiple
// times or on an already-exhausted iterator.
func (it *Iterator[K]) Close() {
	it.release()
	it.valid = false
}
