package txn

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Blackdeer1524/reldb/src/concurrency/lockmanager"
	"github.com/Blackdeer1524/reldb/src/pkg/assert"
	"github.com/Blackdeer1524/reldb/src/pkg/common"
)

// Undoer restores a row's pre-image (or deletes it, if before is nil) when
// a transaction's write is rolled back. The heap/row storage that
// implements this sits above the lock manager and B+ tree index and is out
// of this package's scope; it is supplied by whichever layer owns tuple
// storage.
type Undoer interface {
	Undo(row lockmanager.RowID, before []byte) error
}

// Manager begins, commits, and aborts transactions, translating isolation
// levels into lock-acquisition and lock-release policy around calls into
// the lock manager.
type Manager struct {
	locks *lockmanager.Manager
	undo  Undoer
	log   *zap.Logger

	nextID atomic.Int64

	mu    sync.Mutex
	byID  map[common.TxnID]*Transaction
}

func NewManager(locks *lockmanager.Manager, undo Undoer, log *zap.Logger) *Manager {
	return &Manager{
		locks: locks,
		undo:  undo,
		log:   log,
		byID:  make(map[common.TxnID]*Transaction),
	}
}

// Begin starts a new transaction at the given isolation level.
func (m *Manager) Begin(isolation IsolationLevel) *Transaction {
	id := common.TxnID(m.nextID.Add(1))
	t := newTransaction(id, isolation)

	m.mu.Lock()
	m.byID[id] = t
	m.mu.Unlock()

	return t
}

func (m *Manager) Lookup(id common.TxnID) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	return t, ok
}

// isGrowingAllowed reports whether mode may be requested while a
// transaction at the given isolation level is GROWING. Only
// READ_UNCOMMITTED restricts this phase, to X/IX — it never holds a
// shared-family lock.
func isGrowingAllowed(isolation IsolationLevel, mode lockmanager.Mode) bool {
	if isolation != ReadUncommitted {
		return true
	}
	return mode == lockmanager.Exclusive || mode == lockmanager.IntentionExclusive
}

// isShrinkingAllowed reports whether mode may be requested while a
// transaction at the given isolation level is SHRINKING.
func isShrinkingAllowed(isolation IsolationLevel, mode lockmanager.Mode) bool {
	switch isolation {
	case ReadCommitted:
		return mode == lockmanager.IntentionShared || mode == lockmanager.Shared
	default: // RepeatableRead, ReadUncommitted
		return false
	}
}

// checkIsolation rejects a lock request isolation forbids, aborting the
// transaction and returning the sentinel error the caller should surface,
// per the GROWING/SHRINKING policy table.
func (m *Manager) checkIsolation(t *Transaction, mode lockmanager.Mode) error {
	switch t.state {
	case Growing:
		if !isGrowingAllowed(t.isolation, mode) {
			m.Abort(t)
			return lockmanager.ErrLockSharedOnReadUncommitted
		}
		return nil
	case Shrinking:
		if !isShrinkingAllowed(t.isolation, mode) {
			m.Abort(t)
			return lockmanager.ErrLockOnShrinking
		}
		return nil
	default:
		assert.Assert(false, "txn %d: lock requested in terminal state %s", t.id, t.state)
		return lockmanager.ErrLockOnShrinking
	}
}

// maybeShrink transitions t to SHRINKING on release, per the isolation
// level's phase-transition rule.
func (t *Transaction) maybeShrink(released lockmanager.Mode) {
	if t.state != Growing {
		return
	}
	switch t.isolation {
	case RepeatableRead:
		if released == lockmanager.Shared || released == lockmanager.Exclusive {
			t.state = Shrinking
		}
	case ReadCommitted, ReadUncommitted:
		if released == lockmanager.Exclusive {
			t.state = Shrinking
		}
	}
}

// LockTableForRead acquires a table-level intention-shared lock.
func (m *Manager) LockTableForRead(t *Transaction, table lockmanager.TableID) error {
	if err := m.checkIsolation(t, lockmanager.IntentionShared); err != nil {
		return err
	}
	if err := m.locks.LockTable(t.id, table, lockmanager.IntentionShared); err != nil {
		return err
	}
	t.heldTables[table] = lockmanager.IntentionShared
	return nil
}

// LockTableForWrite acquires a table-level intention-exclusive lock.
func (m *Manager) LockTableForWrite(t *Transaction, table lockmanager.TableID) error {
	if err := m.checkIsolation(t, lockmanager.IntentionExclusive); err != nil {
		return err
	}
	if err := m.locks.LockTable(t.id, table, lockmanager.IntentionExclusive); err != nil {
		return err
	}
	t.heldTables[table] = lockmanager.IntentionExclusive
	return nil
}

// LockRowForRead acquires a row-level shared lock. Under ReadCommitted the
// lock is released as soon as the read completes; RepeatableRead keeps it
// until commit/abort. Under ReadUncommitted, requesting S always fails
// isolation and aborts the transaction — a READ_UNCOMMITTED reader must
// not go through this path at all.
func (m *Manager) LockRowForRead(t *Transaction, table lockmanager.TableID, row lockmanager.RowID) error {
	if err := m.checkIsolation(t, lockmanager.Shared); err != nil {
		return err
	}
	if err := m.locks.LockRow(t.id, table, row, lockmanager.Shared); err != nil {
		return err
	}
	if t.isolation == ReadCommitted {
		_ = m.locks.UnlockRow(t.id, row)
		t.maybeShrink(lockmanager.Shared)
		return nil
	}
	t.heldRows[row] = lockmanager.Shared
	return nil
}

// LockRowForWrite acquires a row-level exclusive lock and records before as
// the row's pre-image for undo on abort (nil before means this write is an
// insert, undone by deleting the row).
func (m *Manager) LockRowForWrite(t *Transaction, table lockmanager.TableID, row lockmanager.RowID, before []byte) error {
	if err := m.checkIsolation(t, lockmanager.Exclusive); err != nil {
		return err
	}
	if err := m.locks.LockRow(t.id, table, row, lockmanager.Exclusive); err != nil {
		return err
	}
	t.heldRows[row] = lockmanager.Exclusive
	t.recordWrite(row, before)
	return nil
}

// UnlockTable releases a table lock the transaction holds, applying the
// isolation level's GROWING -> SHRINKING transition rule on release.
func (m *Manager) UnlockTable(t *Transaction, table lockmanager.TableID) error {
	mode, held := t.heldTables[table]
	assert.Assert(held, "txn %d: unlock of table %v not held", t.id, table)

	if err := m.locks.UnlockTable(t.id, table); err != nil {
		return err
	}
	delete(t.heldTables, table)
	t.maybeShrink(mode)
	return nil
}

// UnlockRow releases a row lock the transaction holds, applying the
// isolation level's GROWING -> SHRINKING transition rule on release.
func (m *Manager) UnlockRow(t *Transaction, row lockmanager.RowID) error {
	mode, held := t.heldRows[row]
	assert.Assert(held, "txn %d: unlock of row %v not held", t.id, row)

	if err := m.locks.UnlockRow(t.id, row); err != nil {
		return err
	}
	delete(t.heldRows, row)
	t.maybeShrink(mode)
	return nil
}

// Commit releases every lock the transaction still holds and marks it
// COMMITTED.
func (m *Manager) Commit(t *Transaction) {
	assert.Assert(t.state == Growing || t.state == Shrinking, "txn %d: commit from state %s", t.id, t.state)
	t.state = Shrinking
	m.locks.UnlockAll(t.id)
	t.state = Committed
}

// Abort undoes every write in reverse order, releases every lock, clears
// the lock manager's deadlock-victim flag if set, and marks the
// transaction ABORTED. Idempotent: aborting an already-aborted transaction
// is a no-op.
func (m *Manager) Abort(t *Transaction) {
	if t.state == Aborted {
		return
	}
	t.state = Shrinking

	for i := len(t.writeSet) - 1; i >= 0; i-- {
		w := t.writeSet[i]
		if err := m.undo.Undo(w.row, w.before); err != nil {
			m.log.Error("undo failed during abort", zap.Int64("txn_id", int64(t.id)), zap.Error(err))
		}
	}
	t.writeSet = nil

	m.locks.UnlockAll(t.id)
	m.locks.ClearAborted(t.id)
	t.state = Aborted
}
