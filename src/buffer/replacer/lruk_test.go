package replacer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLRUKScenario: pool size 3, k=2, access frames 1,2,3,1,2 in order,
// mark only frame 1 evictable, then evict.
func TestLRUKScenario(t *testing.T) {
	r := New(3, 2)

	for _, f := range []int32{1, 2, 3, 1, 2} {
		r.RecordAccess(f)
	}
	r.SetEvictable(1, true)

	require.Equal(t, 1, r.Size())

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, int32(1), victim)
}

func TestLRUKYoungBeforeMature(t *testing.T) {
	r := New(4, 2)

	r.RecordAccess(1)
	r.RecordAccess(1) // frame 1 now mature (k=2 reached)
	r.RecordAccess(2) // frame 2 still young

	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	// Young candidates are preferred over mature ones regardless of recency.
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, int32(2), victim)
}

func TestLRUKMatureOrderedByBackwardDistance(t *testing.T) {
	r := New(4, 2)

	// Frame 1: accesses at t=1,2 -> k-distance = 1.
	r.RecordAccess(1)
	r.RecordAccess(1)
	// Frame 2: accesses at t=3,4 -> k-distance = 3 (more recent, smaller
	// backward distance).
	r.RecordAccess(2)
	r.RecordAccess(2)

	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	// Frame 1 has the larger backward k-distance and is evicted first.
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, int32(1), victim)
}

func TestSetEvictableAdjustsSize(t *testing.T) {
	r := New(2, 2)
	r.RecordAccess(1)
	require.Equal(t, 0, r.Size())

	r.SetEvictable(1, true)
	require.Equal(t, 1, r.Size())

	r.SetEvictable(1, false)
	require.Equal(t, 0, r.Size())
}

func TestRemoveNoOpIfAbsent(t *testing.T) {
	r := New(2, 2)
	r.Remove(42) // must not panic
}

func TestEvictReturnsFalseWhenNothingEvictable(t *testing.T) {
	r := New(2, 2)
	r.RecordAccess(1)
	_, ok := r.Evict()
	require.False(t, ok)
}
