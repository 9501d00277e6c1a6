package buffer

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/reldb/src/pkg/common"
	"github.com/Blackdeer1524/reldb/src/storage/disk"
)

func newTestPool(t *testing.T, poolSize, k int) *Pool {
	t.Helper()
	fs := afero.NewMemMapFs()
	dm, err := disk.New(fs, "/test.db", zap.NewNop())
	require.NoError(t, err)
	return New(poolSize, k, dm, zap.NewNop())
}

func TestNewPageAssignsMonotonicIDs(t *testing.T) {
	p := newTestPool(t, 4, 2)

	id1, _, ok := p.NewPage()
	require.True(t, ok)
	id2, _, ok := p.NewPage()
	require.True(t, ok)

	require.Less(t, int32(id1), int32(id2))
}

func TestFetchPageSameFrame(t *testing.T) {
	p := newTestPool(t, 4, 2)

	id, data, ok := p.NewPage()
	require.True(t, ok)
	copy(data, []byte("hello"))
	require.True(t, p.UnpinPage(id, true))

	got, ok := p.FetchPage(id)
	require.True(t, ok)
	require.Equal(t, byte('h'), got[0])
	require.True(t, p.UnpinPage(id, false))
}

func TestUnpinFalseWhenNotResidentOrAlreadyZero(t *testing.T) {
	p := newTestPool(t, 2, 2)
	require.False(t, p.UnpinPage(common.PageID(99), false))

	id, _, ok := p.NewPage()
	require.True(t, ok)
	require.True(t, p.UnpinPage(id, false))
	require.False(t, p.UnpinPage(id, false))
}

func TestEvictionWritesDirtyPageBack(t *testing.T) {
	p := newTestPool(t, 1, 2)

	id1, data, ok := p.NewPage()
	require.True(t, ok)
	copy(data, []byte("dirty"))
	require.True(t, p.UnpinPage(id1, true))

	// Pool has exactly one frame; allocating a second page must evict id1.
	id2, _, ok := p.NewPage()
	require.True(t, ok)
	require.NotEqual(t, id1, id2)
	require.True(t, p.UnpinPage(id2, false))

	got, ok := p.FetchPage(id1)
	require.True(t, ok)
	require.Equal(t, byte('d'), got[0])
	require.True(t, p.UnpinPage(id1, false))
}

func TestNewPageFailsWhenAllFramesPinned(t *testing.T) {
	p := newTestPool(t, 1, 2)

	_, _, ok := p.NewPage()
	require.True(t, ok)

	_, _, ok = p.NewPage()
	require.False(t, ok)
}

func TestDeletePage(t *testing.T) {
	p := newTestPool(t, 2, 2)

	id, _, ok := p.NewPage()
	require.True(t, ok)

	require.False(t, p.DeletePage(id)) // still pinned
	require.True(t, p.UnpinPage(id, false))
	require.True(t, p.DeletePage(id))
	require.True(t, p.DeletePage(id)) // absent now => true again
}

func TestFlushAllPages(t *testing.T) {
	p := newTestPool(t, 2, 2)

	id, data, ok := p.NewPage()
	require.True(t, ok)
	copy(data, []byte("flush-me"))
	require.True(t, p.UnpinPage(id, true))

	p.FlushAllPages()

	pg, ok := p.pageAt(id)
	require.True(t, ok)
	require.False(t, pg.IsDirty())
}
