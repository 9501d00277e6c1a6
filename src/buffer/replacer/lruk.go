// Package replacer implements the LRU-K frame replacement policy used by
// the buffer pool. A frame's backward k-distance is the gap
// between now and its k-th most recent access; frames seen fewer than k
// times are treated as having infinite backward distance and fall back to
// plain LRU among themselves.
package replacer

import (
	"container/list"
	"math"
	"sync"

	"github.com/Blackdeer1524/reldb/src/pkg/assert"
)

const infDistance = math.MaxInt64

type node struct {
	frameID   int32
	history   []int64 // newest access first
	evictable bool
}

func (n *node) kDistance(k int) int64 {
	if len(n.history) < k {
		return infDistance
	}
	return n.history[k-1] // k-th most recent access timestamp
}

// LRUKReplacer tracks access history for up to size frames and picks an
// eviction victim under the LRU-K policy.
type LRUKReplacer struct {
	mu sync.Mutex

	k    int
	size int

	now int64

	// young holds frames with fewer than k recorded accesses, ordered
	// newest-first (front = most recently touched).
	young *list.List
	// mature holds frames with >= k accesses, ordered by ascending
	// k-th-back timestamp (front = largest backward distance = oldest).
	mature *list.List

	index         map[int32]*list.Element
	evictableSize int
}

func New(size int, k int) *LRUKReplacer {
	assert.Assert(size > 0, "replacer size must be positive, got %d", size)
	assert.Assert(k > 0, "k must be positive, got %d", k)

	return &LRUKReplacer{
		k:      k,
		size:   size,
		young:  list.New(),
		mature: list.New(),
		index:  make(map[int32]*list.Element, size),
	}
}

// RecordAccess logs a new access to frameID at the current logical time.
func (r *LRUKReplacer) RecordAccess(frameID int32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.now++

	el, ok := r.index[frameID]
	if !ok {
		n := &node{frameID: frameID, history: []int64{r.now}}
		if r.k == 1 {
			r.index[frameID] = r.insertMature(n)
		} else {
			r.index[frameID] = r.young.PushFront(n)
		}
		return
	}

	n := el.Value.(*node)
	n.history = append([]int64{r.now}, n.history...)

	switch {
	case len(n.history) == r.k:
		r.young.Remove(el)
		r.index[frameID] = r.insertMature(n)
	case len(n.history) > r.k:
		n.history = n.history[:r.k]
		r.mature.Remove(el)
		r.index[frameID] = r.insertMature(n)
	}
}

// insertMature re-inserts n into the mature list in ascending order of
// k-th-back timestamp (smallest timestamp = largest backward distance =
// front of the list, i.e. the first eviction candidate).
func (r *LRUKReplacer) insertMature(n *node) *list.Element {
	dist := n.kDistance(r.k)
	for e := r.mature.Front(); e != nil; e = e.Next() {
		if e.Value.(*node).kDistance(r.k) > dist {
			return r.mature.InsertBefore(n, e)
		}
	}
	return r.mature.PushBack(n)
}

// SetEvictable marks frameID evictable or pinned, adjusting Size().
func (r *LRUKReplacer) SetEvictable(frameID int32, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.index[frameID]
	if !ok {
		return
	}
	n := el.Value.(*node)
	if n.evictable == evictable {
		return
	}
	n.evictable = evictable
	if evictable {
		r.evictableSize++
	} else {
		r.evictableSize--
	}
}

// Evict picks a victim: the young list scanned oldest-first (tail to head,
// i.e. list order back to front since young is newest-first), then the
// mature list scanned front-to-back (largest backward distance first).
func (r *LRUKReplacer) Evict() (int32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for e := r.young.Back(); e != nil; e = e.Prev() {
		n := e.Value.(*node)
		if n.evictable {
			r.young.Remove(e)
			delete(r.index, n.frameID)
			r.evictableSize--
			return n.frameID, true
		}
	}

	for e := r.mature.Front(); e != nil; e = e.Next() {
		n := e.Value.(*node)
		if n.evictable {
			r.mature.Remove(e)
			delete(r.index, n.frameID)
			r.evictableSize--
			return n.frameID, true
		}
	}

	return 0, false
}

// Remove drops frameID's tracking entirely. frameID must be evictable (or
// untracked, in which case Remove is a no-op).
func (r *LRUKReplacer) Remove(frameID int32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.index[frameID]
	if !ok {
		return
	}
	n := el.Value.(*node)
	assert.Assert(n.evictable, "attempt to remove a non-evictable frame %d", frameID)

	if len(n.history) >= r.k {
		r.mature.Remove(el)
	} else {
		r.young.Remove(el)
	}
	delete(r.index, frameID)
	r.evictableSize--
}

// Size returns the number of currently evictable tracked frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictableSize
}
