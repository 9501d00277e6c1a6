package txn

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/reldb/src/concurrency/lockmanager"
	"github.com/Blackdeer1524/reldb/src/pkg/common"
)

type fakeUndoer struct {
	restored []lockmanager.RowID
	deleted  []lockmanager.RowID
	order    []lockmanager.RowID
}

func (f *fakeUndoer) Undo(row lockmanager.RowID, before []byte) error {
	f.order = append(f.order, row)
	if before == nil {
		f.deleted = append(f.deleted, row)
	} else {
		f.restored = append(f.restored, row)
	}
	return nil
}

func newTestManager() (*Manager, *lockmanager.Manager, *fakeUndoer) {
	locks := lockmanager.New(zap.NewNop())
	undo := &fakeUndoer{}
	return NewManager(locks, undo, zap.NewNop()), locks, undo
}

func TestBeginStartsGrowing(t *testing.T) {
	m, _, _ := newTestManager()
	tx := m.Begin(RepeatableRead)
	require.Equal(t, Growing, tx.State())
	require.Equal(t, RepeatableRead, tx.Isolation())
}

func TestCommitReleasesLocksAndTransitions(t *testing.T) {
	m, locks, _ := newTestManager()
	tx := m.Begin(RepeatableRead)

	require.NoError(t, m.LockTableForWrite(tx, 100))
	row := lockmanager.RowID{Table: 100, RID: common.RID{PageID: 1, SlotNum: 0}}
	require.NoError(t, m.LockRowForWrite(tx, 100, row, []byte("old")))

	m.Commit(tx)
	require.Equal(t, Committed, tx.State())

	// Locks released: another transaction can now take an exclusive table lock.
	require.NoError(t, locks.LockTable(2, 100, lockmanager.Exclusive))
}

func TestAbortUndoesWritesInReverseOrder(t *testing.T) {
	m, _, undo := newTestManager()
	tx := m.Begin(RepeatableRead)

	require.NoError(t, m.LockTableForWrite(tx, 100))
	rowA := lockmanager.RowID{Table: 100, RID: common.RID{PageID: 1, SlotNum: 0}}
	rowB := lockmanager.RowID{Table: 100, RID: common.RID{PageID: 1, SlotNum: 1}}
	require.NoError(t, m.LockRowForWrite(tx, 100, rowA, []byte("before-a")))
	require.NoError(t, m.LockRowForWrite(tx, 100, rowB, nil)) // insert

	m.Abort(tx)
	require.Equal(t, Aborted, tx.State())
	require.Equal(t, []lockmanager.RowID{rowB}, undo.deleted)
	require.Equal(t, []lockmanager.RowID{rowA}, undo.restored)
	require.Equal(t, []lockmanager.RowID{rowB, rowA}, undo.order)
}

func TestAbortIsIdempotent(t *testing.T) {
	m, _, undo := newTestManager()
	tx := m.Begin(RepeatableRead)
	require.NoError(t, m.LockTableForWrite(tx, 100))
	row := lockmanager.RowID{Table: 100, RID: common.RID{PageID: 1, SlotNum: 0}}
	require.NoError(t, m.LockRowForWrite(tx, 100, row, []byte("before")))

	m.Abort(tx)
	require.Len(t, undo.restored, 1)

	m.Abort(tx) // second call must not re-run undo
	require.Len(t, undo.restored, 1)
	require.Equal(t, Aborted, tx.State())
}

func TestReadCommittedReleasesRowLockImmediately(t *testing.T) {
	m, locks, _ := newTestManager()
	tx := m.Begin(ReadCommitted)

	require.NoError(t, m.LockTableForRead(tx, 100))
	row := lockmanager.RowID{Table: 100, RID: common.RID{PageID: 1, SlotNum: 0}}
	require.NoError(t, m.LockRowForRead(tx, 100, row))

	// The shared row lock was released already, so an exclusive lock from
	// another transaction (holding the required IX table lock) is not
	// blocked by it.
	require.NoError(t, locks.LockTable(2, 100, lockmanager.IntentionExclusive))
	require.NoError(t, locks.LockRow(2, 100, row, lockmanager.Exclusive))
}

func TestReadUncommittedRejectsTableSharedLock(t *testing.T) {
	m, _, _ := newTestManager()
	tx := m.Begin(ReadUncommitted)

	err := m.LockTableForRead(tx, 100) // requests IntentionShared
	require.ErrorIs(t, err, lockmanager.ErrLockSharedOnReadUncommitted)
	require.Equal(t, Aborted, tx.State())
}

func TestReadUncommittedRejectsRowSharedLock(t *testing.T) {
	m, _, _ := newTestManager()
	tx := m.Begin(ReadUncommitted)
	require.NoError(t, m.LockTableForWrite(tx, 100)) // IX is allowed under read uncommitted

	row := lockmanager.RowID{Table: 100, RID: common.RID{PageID: 1, SlotNum: 0}}
	err := m.LockRowForRead(tx, 100, row)
	require.ErrorIs(t, err, lockmanager.ErrLockSharedOnReadUncommitted)
	require.Equal(t, Aborted, tx.State())
}

func TestReadUncommittedAllowsExclusiveLocks(t *testing.T) {
	m, locks, _ := newTestManager()
	tx := m.Begin(ReadUncommitted)

	require.NoError(t, m.LockTableForWrite(tx, 100))
	row := lockmanager.RowID{Table: 100, RID: common.RID{PageID: 1, SlotNum: 0}}
	require.NoError(t, m.LockRowForWrite(tx, 100, row, []byte("before")))
	m.Commit(tx)

	require.NoError(t, locks.LockTable(2, 100, lockmanager.IntentionExclusive))
}

func TestLockOnShrinkingAbortsUnderRepeatableRead(t *testing.T) {
	m, _, _ := newTestManager()
	tx := m.Begin(RepeatableRead)

	require.NoError(t, m.LockTableForWrite(tx, 100))
	row := lockmanager.RowID{Table: 100, RID: common.RID{PageID: 1, SlotNum: 0}}
	require.NoError(t, m.LockRowForWrite(tx, 100, row, []byte("before")))

	require.NoError(t, m.UnlockRow(tx, row))
	require.Equal(t, Shrinking, tx.State())

	row2 := lockmanager.RowID{Table: 100, RID: common.RID{PageID: 1, SlotNum: 1}}
	err := m.LockRowForWrite(tx, 100, row2, nil)
	require.ErrorIs(t, err, lockmanager.ErrLockOnShrinking)
	require.Equal(t, Aborted, tx.State())
}

func TestLockOnShrinkingAllowsSharedUnderReadCommitted(t *testing.T) {
	m, _, _ := newTestManager()
	tx := m.Begin(ReadCommitted)

	require.NoError(t, m.LockTableForWrite(tx, 100))
	row := lockmanager.RowID{Table: 100, RID: common.RID{PageID: 1, SlotNum: 0}}
	require.NoError(t, m.LockRowForWrite(tx, 100, row, []byte("before")))

	require.NoError(t, m.UnlockRow(tx, row))
	require.Equal(t, Shrinking, tx.State())

	// IS/S are still allowed while SHRINKING under READ_COMMITTED.
	require.NoError(t, m.LockTableForRead(tx, 200))

	// But X/IX are not.
	row2 := lockmanager.RowID{Table: 100, RID: common.RID{PageID: 1, SlotNum: 1}}
	err := m.LockRowForWrite(tx, 100, row2, nil)
	require.ErrorIs(t, err, lockmanager.ErrLockOnShrinking)
	require.Equal(t, Aborted, tx.State())
}

func TestRepeatableReadHoldsRowLockUntilCommit(t *testing.T) {
	m, _, _ := newTestManager()
	tx := m.Begin(RepeatableRead)

	require.NoError(t, m.LockTableForRead(tx, 100))
	row := lockmanager.RowID{Table: 100, RID: common.RID{PageID: 1, SlotNum: 0}}
	require.NoError(t, m.LockRowForRead(tx, 100, row))
	require.Equal(t, lockmanager.Shared, tx.HeldRows()[row])

	m.Commit(tx)
}
