package btree

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Blackdeer1524/reldb/src/buffer"
	"github.com/Blackdeer1524/reldb/src/pkg/assert"
	"github.com/Blackdeer1524/reldb/src/pkg/common"
)

// minSize is the minimum occupancy for a non-root node: ceil(maxSize/2),
// applied uniformly to both leaf and internal nodes.
func minSize(maxSize int) int {
	return (maxSize + 1) / 2
}

// Pool is the subset of buffer.Pool the tree needs, letting tests swap in
// a lighter fake if ever desired while keeping production code wired to
// the real pool.
type Pool interface {
	FetchPageBasic(id common.PageID) (buffer.BasicPageGuard, bool)
	NewPageGuarded() (buffer.WritePageGuard, bool)
	DeletePage(id common.PageID) bool
}

var _ Pool = (*buffer.Pool)(nil)

// BPlusTree is an on-disk ordered map from K to common.RID, built atop a
// buffer pool. A single reader-writer latch serializes structural
// operations in place of per-page latch crabbing.
type BPlusTree[K any] struct {
	pool   Pool
	header common.PageID

	codec KeyCodec[K]
	cmp   func(a, b K) int

	leafMax     int
	internalMax int

	latch sync.RWMutex
	log   *zap.Logger
}

// New wires a BPlusTree to an already-allocated header page whose
// root_page_id is already initialized (to InvalidPageID for an empty tree,
// e.g. by InitHeaderPage below).
func New[K any](
	pool Pool,
	headerPageID common.PageID,
	codec KeyCodec[K],
	cmp func(a, b K) int,
	leafMax, internalMax int,
	log *zap.Logger,
) *BPlusTree[K] {
	assert.Assert(leafMax >= 3, "leaf max size too small: %d", leafMax)
	assert.Assert(internalMax >= 3, "internal max size too small: %d", internalMax)

	return &BPlusTree[K]{
		pool:        pool,
		header:      headerPageID,
		codec:       codec,
		cmp:         cmp,
		leafMax:     leafMax,
		internalMax: internalMax,
		log:         log,
	}
}

// InitHeaderPage allocates a fresh header page with root_page_id set to
// common.InvalidPageID, ready to be passed to New. A raw pool.NewPage()
// would leave the header zero-filled, which reads back as page id 0 — a
// valid id, not the empty-tree sentinel.
func InitHeaderPage(pool Pool) (common.PageID, bool) {
	g, ok := pool.NewPageGuarded()
	if !ok {
		return 0, false
	}
	writeRootPageID(g.Data(), common.InvalidPageID)
	g.MarkDirty()
	id := g.PageID()
	g.Drop()
	return id, true
}

func (t *BPlusTree[K]) rootPageID() common.PageID {
	g, ok := t.pool.FetchPageBasic(t.header)
	assert.Assert(ok, "header page %d must be resident", t.header)
	defer g.Drop()
	return readRootPageID(g.Data())
}

func (t *BPlusTree[K]) setRootPageID(id common.PageID) {
	g, ok := t.pool.FetchPageBasic(t.header)
	assert.Assert(ok, "header page %d must be resident", t.header)
	defer g.Drop()
	writeRootPageID(g.Data(), id)
	g.MarkDirty()
}

// IsEmpty reports whether the tree currently has no root.
func (t *BPlusTree[K]) IsEmpty() bool {
	t.latch.RLock()
	defer t.latch.RUnlock()
	return !t.rootPageID().IsValid()
}

// GetValue looks up key. Keys are unique, so the result slice has at most
// one element, but the interface composes with duplicate-key schemes.
func (t *BPlusTree[K]) GetValue(key K) ([]common.RID, bool) {
	t.latch.RLock()
	defer t.latch.RUnlock()

	if !t.rootPageID().IsValid() {
		return nil, false
	}

	leafGuard := t.findLeaf(key)
	defer leafGuard.Drop()

	leaf := newLeafView(leafGuard.Data(), t.codec)
	i, found := t.leafSearch(leaf, key)
	if !found {
		return nil, false
	}
	return []common.RID{leaf.ValueAt(i)}, true
}

// findLeaf descends from the root to the leaf that would hold key,
// pinning exactly that leaf on return.
func (t *BPlusTree[K]) findLeaf(key K) buffer.BasicPageGuard {
	id := t.rootPageID()
	assert.Assert(id.IsValid(), "findLeaf called on empty tree")

	for {
		g, ok := t.pool.FetchPageBasic(id)
		assert.Assert(ok, "page %d must be resident", id)

		h := header{buf: g.Data()}
		if h.PageType() == pageTypeLeaf {
			return g
		}

		n := newInternalView(g.Data(), t.codec)
		i := n.findChildIndex(key, t.cmp)
		child := n.ChildAt(i - 1)
		g.Drop()
		id = child
	}
}

// findLeftmostLeaf descends via child 0 at every level, for Begin().
func (t *BPlusTree[K]) findLeftmostLeaf() buffer.BasicPageGuard {
	id := t.rootPageID()
	assert.Assert(id.IsValid(), "findLeftmostLeaf called on empty tree")

	for {
		g, ok := t.pool.FetchPageBasic(id)
		assert.Assert(ok, "page %d must be resident", id)

		h := header{buf: g.Data()}
		if h.PageType() == pageTypeLeaf {
			return g
		}
		n := newInternalView(g.Data(), t.codec)
		child := n.ChildAt(0)
		g.Drop()
		id = child
	}
}

// leafSearch finds key's index in leaf via linear scan (leaves are small,
// a handful of cache lines; binary search would be a pure constant-factor
// win with no behavioral change).
func (t *BPlusTree[K]) leafSearch(l leafView[K], key K) (int, bool) {
	n := int(l.Size())
	for i := 0; i < n; i++ {
		c := t.cmp(l.KeyAt(i), key)
		if c == 0 {
			return i, true
		}
		if c > 0 {
			return i, false
		}
	}
	return n, false
}

// Insert adds (key, rid) to the tree. Returns false without modifying
// anything if key is already present.
func (t *BPlusTree[K]) Insert(key K, rid common.RID) bool {
	t.latch.Lock()
	defer t.latch.Unlock()

	if !t.rootPageID().IsValid() {
		g, ok := t.pool.NewPageGuarded()
		assert.Assert(ok, "buffer pool exhausted allocating initial root leaf")
		leaf := initLeaf(g.Data(), t.codec, g.PageID(), common.InvalidPageID, int32(t.leafMax))
		leaf.insertAt(0, key, rid)
		g.MarkDirty()
		leafID := g.PageID()
		g.Drop()
		t.setRootPageID(leafID)
		return true
	}

	leafGuard := t.findLeafForWrite(key)
	leaf := newLeafView(leafGuard.Data(), t.codec)

	i, found := t.leafSearch(leaf, key)
	if found {
		leafGuard.Drop()
		return false
	}

	leaf.insertAt(i, key, rid)
	leafGuard.MarkDirty()

	if int(leaf.Size()) >= t.leafMax-1 {
		t.splitLeaf(leafGuard, leaf)
	} else {
		leafGuard.Drop()
	}
	return true
}

// findLeafForWrite is findLeaf, named separately to mark the call sites
// that may go on to mutate the returned page (the tree-level write latch
// already serializes concurrent structural changes, so no extra per-page
// write guard is needed here).
func (t *BPlusTree[K]) findLeafForWrite(key K) buffer.BasicPageGuard {
	return t.findLeaf(key)
}

// splitLeaf splits an overfull leaf (guard/view for the left half, already
// holding an updated, dirty left half) and propagates the new leaf's first
// key upward.
func (t *BPlusTree[K]) splitLeaf(leftGuard buffer.BasicPageGuard, left leafView[K]) {
	rightGuard, ok := t.pool.NewPageGuarded()
	assert.Assert(ok, "buffer pool exhausted splitting leaf")

	n := int(left.Size())
	moveFrom := n / 2 // ceil(old/2) moves: old - n/2 == ceil(n/2) when paired with floor stay

	right := initLeaf(rightGuard.Data(), t.codec, rightGuard.PageID(), left.ParentPageID(), int32(t.leafMax))
	for i := moveFrom; i < n; i++ {
		right.insertAt(int(right.Size()), left.KeyAt(i), left.ValueAt(i))
	}
	left.SetSize(int32(moveFrom))

	right.SetNextPageID(left.NextPageID())
	left.SetNextPageID(right.PageID())

	rightGuard.MarkDirty()
	separator := right.KeyAt(0)
	rightID := right.PageID()
	leftID := left.PageID()

	leftGuard.Drop()
	rightGuard.Drop()

	t.insertIntoParent(leftID, separator, rightID)
}

// insertIntoParent wires a newly split-off right page into old's parent,
// separated by key. If old has no parent, a fresh root is allocated.
func (t *BPlusTree[K]) insertIntoParent(oldID common.PageID, key K, newID common.PageID) {
	oldGuard, ok := t.pool.FetchPageBasic(oldID)
	assert.Assert(ok, "page %d must be resident", oldID)
	oldParent := header{buf: oldGuard.Data()}.ParentPageID()
	oldGuard.Drop()

	if !oldParent.IsValid() {
		rootGuard, ok := t.pool.NewPageGuarded()
		assert.Assert(ok, "buffer pool exhausted allocating new root")

		root := initInternal(rootGuard.Data(), t.codec, rootGuard.PageID(), common.InvalidPageID, int32(t.internalMax))
		root.insertAt(0, key, oldID) // entry 0's key is ignored by convention
		root.insertAt(1, key, newID)
		rootGuard.MarkDirty()
		rootID := rootGuard.PageID()
		rootGuard.Drop()

		t.reparent(oldID, rootID)
		t.reparent(newID, rootID)
		t.setRootPageID(rootID)
		return
	}

	parentGuard, ok := t.pool.FetchPageBasic(oldParent)
	assert.Assert(ok, "parent page %d must be resident", oldParent)
	parent := newInternalView(parentGuard.Data(), t.codec)

	pos := t.findChildPosition(parent, oldID)
	parent.insertAt(pos+1, key, newID)
	parentGuard.MarkDirty()
	t.reparent(newID, oldParent)

	if int(parent.Size()) > t.internalMax {
		t.splitInternal(parentGuard, parent)
	} else {
		parentGuard.Drop()
	}
}

func (t *BPlusTree[K]) findChildPosition(n internalView[K], childID common.PageID) int {
	size := int(n.Size())
	for i := 0; i < size; i++ {
		if n.ChildAt(i) == childID {
			return i
		}
	}
	assert.Never("child %d not found in parent", childID)
	return -1
}

// reparent updates childID's parent_page_id to parentID. Callers that move
// children between internal nodes are responsible for calling this for
// each moved child.
func (t *BPlusTree[K]) reparent(childID, parentID common.PageID) {
	g, ok := t.pool.FetchPageBasic(childID)
	assert.Assert(ok, "page %d must be resident", childID)
	defer g.Drop()
	header{buf: g.Data()}.SetParentPageID(parentID)
	g.MarkDirty()
}

func (t *BPlusTree[K]) splitInternal(leftGuard buffer.BasicPageGuard, left internalView[K]) {
	rightGuard, ok := t.pool.NewPageGuarded()
	assert.Assert(ok, "buffer pool exhausted splitting internal node")

	n := int(left.Size())
	moveFrom := n / 2

	right := initInternal(rightGuard.Data(), t.codec, rightGuard.PageID(), left.ParentPageID(), int32(t.internalMax))
	for i := moveFrom; i < n; i++ {
		right.insertAt(int(right.Size()), left.KeyAt(i), left.ChildAt(i))
		t.reparent(left.ChildAt(i), right.PageID())
	}
	left.SetSize(int32(moveFrom))

	rightGuard.MarkDirty()
	separator := right.KeyAt(0) // pushed up; right's own entry 0 key becomes meaningless post-push, matching convention
	rightID := right.PageID()
	leftID := left.PageID()

	leftGuard.Drop()
	rightGuard.Drop()

	t.insertIntoParent(leftID, separator, rightID)
}
