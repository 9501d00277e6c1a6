package btree

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/reldb/src/buffer"
	"github.com/Blackdeer1524/reldb/src/pkg/common"
	"github.com/Blackdeer1524/reldb/src/storage/disk"
)

func newTestTree(t *testing.T, leafMax, internalMax int) *BPlusTree[int64] {
	t.Helper()
	fs := afero.NewMemMapFs()
	dm, err := disk.New(fs, "/test.db", zap.NewNop())
	require.NoError(t, err)
	pool := buffer.New(64, 2, dm, zap.NewNop())

	headerID, ok := InitHeaderPage(pool)
	require.True(t, ok)

	return New[int64](pool, headerID, Int64Codec{}, CompareInt64, leafMax, internalMax, zap.NewNop())
}

func rid(n int64) common.RID {
	return common.RID{PageID: common.PageID(n), SlotNum: 0}
}

func collect(t *testing.T, tree *BPlusTree[int64]) []int64 {
	t.Helper()
	var got []int64
	it := tree.Begin()
	for !it.End() {
		got = append(got, it.Key())
		it.Next()
	}
	return got
}

func TestEmptyTree(t *testing.T) {
	tree := newTestTree(t, 5, 5)
	require.True(t, tree.IsEmpty())

	_, ok := tree.GetValue(1)
	require.False(t, ok)

	it := tree.Begin()
	require.True(t, it.End())
}

func TestInsertAndGetValue(t *testing.T) {
	tree := newTestTree(t, 5, 5)

	require.True(t, tree.Insert(10, rid(10)))
	require.True(t, tree.Insert(20, rid(20)))
	require.True(t, tree.Insert(5, rid(5)))

	v, ok := tree.GetValue(10)
	require.True(t, ok)
	require.Equal(t, rid(10), v[0])

	v, ok = tree.GetValue(5)
	require.True(t, ok)
	require.Equal(t, rid(5), v[0])

	_, ok = tree.GetValue(999)
	require.False(t, ok)
}

func TestInsertDuplicateRejected(t *testing.T) {
	tree := newTestTree(t, 5, 5)
	require.True(t, tree.Insert(1, rid(1)))
	require.False(t, tree.Insert(1, rid(99)))

	v, ok := tree.GetValue(1)
	require.True(t, ok)
	require.Equal(t, rid(1), v[0])
}

// TestInsertSplitScenario mirrors a leaf_max=5/internal_max=3 tree built by
// inserting 1..15 in order, then scanning it back in sorted order.
func TestInsertSplitScenario(t *testing.T) {
	tree := newTestTree(t, 5, 3)

	for i := int64(1); i <= 15; i++ {
		require.True(t, tree.Insert(i, rid(i)))
	}

	for i := int64(1); i <= 15; i++ {
		v, ok := tree.GetValue(i)
		require.True(t, ok, "key %d", i)
		require.Equal(t, rid(i), v[0])
	}

	got := collect(t, tree)
	want := make([]int64, 15)
	for i := range want {
		want[i] = int64(i + 1)
	}
	require.Equal(t, want, got)

	// The root must have split into an internal node by now, and the
	// leftmost leaf must hold exactly {1, 2}: a leaf-split trigger of
	// `> leafMax` instead of `>= leafMax-1` leaves the root a single
	// 5-entry leaf and grows the leftmost leaf to {1, 2, 3}.
	leafGuard := tree.findLeftmostLeaf()
	leaf := newLeafView(leafGuard.Data(), tree.codec)
	var leftmost []int64
	for i := 0; i < int(leaf.Size()); i++ {
		leftmost = append(leftmost, leaf.KeyAt(i))
	}
	leafGuard.Drop()
	require.Equal(t, []int64{1, 2}, leftmost)
}

// TestInsertSplitsRootOnFourthKey checks the root is still a single leaf
// through the third insert and has split into an internal node on the
// fourth, since with leaf_max=5 a leaf splits once it reaches
// leaf_max-1 = 4 entries.
func TestInsertSplitsRootOnFourthKey(t *testing.T) {
	tree := newTestTree(t, 5, 3)

	for i := int64(1); i <= 3; i++ {
		require.True(t, tree.Insert(i, rid(i)))
	}
	g, ok := tree.pool.FetchPageBasic(tree.rootPageID())
	require.True(t, ok)
	require.Equal(t, pageTypeLeaf, (header{buf: g.Data()}).PageType())
	g.Drop()

	require.True(t, tree.Insert(4, rid(4)))
	g, ok = tree.pool.FetchPageBasic(tree.rootPageID())
	require.True(t, ok)
	require.NotEqual(t, pageTypeLeaf, (header{buf: g.Data()}).PageType())
	g.Drop()
}

// TestDeleteCoalesceScenario builds the same 1..15 tree, removes a chosen
// subset, and checks the surviving key set and its in-order scan.
func TestDeleteCoalesceScenario(t *testing.T) {
	tree := newTestTree(t, 5, 3)

	for i := int64(1); i <= 15; i++ {
		require.True(t, tree.Insert(i, rid(i)))
	}

	for _, k := range []int64{1, 5, 3, 7, 10, 14} {
		tree.Remove(k)
	}

	got := collect(t, tree)
	want := []int64{2, 4, 6, 8, 9, 11, 12, 13, 15}
	require.Equal(t, want, got)
	require.Len(t, got, 9)

	for _, k := range []int64{1, 5, 3, 7, 10, 14} {
		_, ok := tree.GetValue(k)
		require.False(t, ok, "key %d should be gone", k)
	}
	for _, k := range want {
		_, ok := tree.GetValue(k)
		require.True(t, ok, "key %d should remain", k)
	}
}

func TestRemoveAbsentKeyIsNoOp(t *testing.T) {
	tree := newTestTree(t, 5, 3)
	require.True(t, tree.Insert(1, rid(1)))
	tree.Remove(999) // must not panic

	v, ok := tree.GetValue(1)
	require.True(t, ok)
	require.Equal(t, rid(1), v[0])
}

func TestRemoveAllKeysEmptiesTree(t *testing.T) {
	tree := newTestTree(t, 5, 3)
	for i := int64(1); i <= 15; i++ {
		require.True(t, tree.Insert(i, rid(i)))
	}
	for i := int64(1); i <= 15; i++ {
		tree.Remove(i)
	}
	require.True(t, tree.IsEmpty())
	require.Empty(t, collect(t, tree))
}

func TestBeginAt(t *testing.T) {
	tree := newTestTree(t, 5, 3)
	for _, k := range []int64{2, 4, 6, 8, 10, 12, 14} {
		require.True(t, tree.Insert(k, rid(k)))
	}

	it := tree.BeginAt(7)
	require.False(t, it.End())
	require.Equal(t, int64(8), it.Key())

	var got []int64
	for !it.End() {
		got = append(got, it.Key())
		it.Next()
	}
	require.Equal(t, []int64{8, 10, 12, 14}, got)
}

func TestBeginAtPastEnd(t *testing.T) {
	tree := newTestTree(t, 5, 3)
	require.True(t, tree.Insert(1, rid(1)))

	it := tree.BeginAt(100)
	require.True(t, it.End())
}

func TestIteratorValidTracksEnd(t *testing.T) {
	tree := newTestTree(t, 5, 3)
	require.True(t, tree.Insert(1, rid(1)))
	require.True(t, tree.Insert(2, rid(2)))

	it := tree.Begin()
	var seen []int64
	for it.Valid() {
		seen = append(seen, it.Key())
		it.Next()
	}
	require.Equal(t, []int64{1, 2}, seen)
	require.False(t, it.Valid())
	require.True(t, it.End())
}

func TestInsertDescendingOrder(t *testing.T) {
	tree := newTestTree(t, 5, 3)
	for i := int64(15); i >= 1; i-- {
		require.True(t, tree.Insert(i, rid(i)))
	}
	got := collect(t, tree)
	want := make([]int64, 15)
	for i := range want {
		want[i] = int64(i + 1)
	}
	require.Equal(t, want, got)
}
