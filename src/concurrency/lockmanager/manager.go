package lockmanager

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Blackdeer1524/reldb/src/pkg/assert"
	"github.com/Blackdeer1524/reldb/src/pkg/common"
)

// Manager grants and releases table and row locks under the multi-
// granularity protocol: a row lock requires the holding transaction to
// already hold a compatible intention lock on its table.
type Manager struct {
	mu     sync.Mutex
	tables map[TableID]*queue
	rows   map[RowID]*queue

	txnTables map[common.TxnID]map[TableID]Mode
	txnRows   map[common.TxnID]map[RowID]Mode

	abortedMu sync.Mutex
	aborted   map[common.TxnID]struct{}

	log *zap.Logger
}

func New(log *zap.Logger) *Manager {
	return &Manager{
		tables:    make(map[TableID]*queue),
		rows:      make(map[RowID]*queue),
		txnTables: make(map[common.TxnID]map[TableID]Mode),
		txnRows:   make(map[common.TxnID]map[RowID]Mode),
		aborted:   make(map[common.TxnID]struct{}),
		log:       log,
	}
}

func (m *Manager) tableQueue(id TableID) *queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.tables[id]
	if !ok {
		q = newQueue(fmt.Sprintf("table:%d", id), m.log)
		m.tables[id] = q
	}
	return q
}

func (m *Manager) rowQueue(id RowID) *queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rows[id]
	if !ok {
		q = newQueue(fmt.Sprintf("row:%d/%v", id.Table, id.RID), m.log)
		m.rows[id] = q
	}
	return q
}

func (m *Manager) isAborted(txnID common.TxnID) bool {
	m.abortedMu.Lock()
	defer m.abortedMu.Unlock()
	_, ok := m.aborted[txnID]
	return ok
}

// MarkAborted flags txnID as a deadlock victim; any lock request it is
// currently blocked on will wake, observe the flag, and return ErrDeadlock.
// Called by the background detector.
func (m *Manager) MarkAborted(txnID common.TxnID) {
	m.abortedMu.Lock()
	m.aborted[txnID] = struct{}{}
	m.abortedMu.Unlock()

	m.mu.Lock()
	queues := make([]*queue, 0, len(m.tables)+len(m.rows))
	for _, q := range m.tables {
		queues = append(queues, q)
	}
	for _, q := range m.rows {
		queues = append(queues, q)
	}
	m.mu.Unlock()

	for _, q := range queues {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// ClearAborted forgets txnID's victim flag, called once the transaction
// manager has finished rolling it back.
func (m *Manager) ClearAborted(txnID common.TxnID) {
	m.abortedMu.Lock()
	delete(m.aborted, txnID)
	m.abortedMu.Unlock()
}

// waitFor blocks on q until r is granted, the transaction is chosen as a
// deadlock victim, or the queue signals a change worth re-checking.
func (m *Manager) waitFor(q *queue, r *request, txnID common.TxnID) error {
	for {
		if q.grantable(r) {
			r.granted = true
			q.cond.Broadcast()
			return nil
		}
		if m.isAborted(txnID) {
			q.remove(txnID)
			q.cond.Broadcast()
			return ErrDeadlock
		}
		q.cond.Wait()
	}
}

// LockTable acquires mode on table for txnID, blocking until granted.
func (m *Manager) LockTable(txnID common.TxnID, table TableID, mode Mode) error {
	if m.isAborted(txnID) {
		return ErrTransactionAborted
	}

	q := m.tableQueue(table)

	q.mu.Lock()
	if existing := q.findByTxn(txnID); existing != nil && existing.granted {
		held := existing.mode
		q.mu.Unlock()
		if held.Combine(mode) == held {
			return nil // already holding an equal-or-stronger mode
		}
		return m.UpgradeTable(txnID, table, mode)
	}

	r := &request{txnID: txnID, mode: mode}
	q.requests = append(q.requests, r)
	err := m.waitFor(q, r, txnID)
	q.mu.Unlock()
	if err != nil {
		return err
	}

	m.mu.Lock()
	locks, ok := m.txnTables[txnID]
	if !ok {
		locks = make(map[TableID]Mode)
		m.txnTables[txnID] = locks
	}
	locks[table] = mode
	m.mu.Unlock()
	return nil
}

// LockRow acquires mode on row for txnID. The transaction must already
// hold a table lock sufficient for mode before requesting a row lock (any
// table mode for Shared; IX, SIX or X for Exclusive).
func (m *Manager) LockRow(txnID common.TxnID, table TableID, row RowID, mode Mode) error {
	if mode.IsIntention() {
		return ErrAttemptedIntentionLockOnRow
	}
	if m.isAborted(txnID) {
		return ErrTransactionAborted
	}

	m.mu.Lock()
	tableMode, haveTable := m.txnTables[txnID][table]
	m.mu.Unlock()
	if !haveTable || !tableModeSufficientForRow(tableMode, mode) {
		return ErrTableLockNotPresent
	}

	q := m.rowQueue(row)

	q.mu.Lock()
	if existing := q.findByTxn(txnID); existing != nil && existing.granted {
		held := existing.mode
		q.mu.Unlock()
		if held == mode || held == Exclusive {
			return nil
		}
		return m.UpgradeRow(txnID, table, row, mode)
	}

	r := &request{txnID: txnID, mode: mode}
	q.requests = append(q.requests, r)
	err := m.waitFor(q, r, txnID)
	q.mu.Unlock()
	if err != nil {
		return err
	}

	m.mu.Lock()
	locks, ok := m.txnRows[txnID]
	if !ok {
		locks = make(map[RowID]Mode)
		m.txnRows[txnID] = locks
	}
	locks[row] = mode
	m.mu.Unlock()
	return nil
}

// UpgradeTable replaces txnID's held table lock with a stronger mode,
// combining the requested mode with whatever is already held (e.g. S + IX
// upgrades to SIX) and preserving the request's place at the front of the
// wait queue — a waiting upgrade never loses its priority to a freshly
// arrived request.
func (m *Manager) UpgradeTable(txnID common.TxnID, table TableID, mode Mode) error {
	q := m.tableQueue(table)
	return m.upgrade(q, txnID, mode, func(final Mode) {
		m.mu.Lock()
		m.txnTables[txnID][table] = final
		m.mu.Unlock()
	})
}

// UpgradeRow is UpgradeTable's row-granularity counterpart.
func (m *Manager) UpgradeRow(txnID common.TxnID, table TableID, row RowID, mode Mode) error {
	q := m.rowQueue(row)
	return m.upgrade(q, txnID, mode, func(final Mode) {
		m.mu.Lock()
		m.txnRows[txnID][row] = final
		m.mu.Unlock()
	})
}

func (m *Manager) upgrade(q *queue, txnID common.TxnID, mode Mode, commit func(final Mode)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	r := q.findByTxn(txnID)
	assert.Assert(r != nil && r.granted, "upgrade requested without a held lock")

	held := r.mode
	final := held.Combine(mode)
	if final == held {
		return nil
	}
	if !held.CanUpgradeTo(final) {
		return ErrIncompatibleUpgrade
	}
	if q.upgrading != common.InvalidTxnID && q.upgrading != txnID {
		return ErrUpgradeConflict
	}

	q.upgrading = txnID
	r.granted = false
	r.mode = final
	defer func() { q.upgrading = common.InvalidTxnID }()

	err := m.waitFor(q, r, txnID)
	if err != nil {
		return err
	}
	commit(final)
	return nil
}

// UnlockTable releases txnID's table lock. The transaction must have
// already released every row lock it holds under that table.
func (m *Manager) UnlockTable(txnID common.TxnID, table TableID) error {
	m.mu.Lock()
	for rowID := range m.txnRows[txnID] {
		if rowID.Table == table {
			m.mu.Unlock()
			return ErrTableUnlockedBeforeUnlockingRows
		}
	}
	locks, ok := m.txnTables[txnID]
	m.mu.Unlock()
	if !ok || !hasKey(locks, table) {
		return ErrAttemptedUnlockButNoLockHeld
	}

	q := m.tableQueue(table)
	q.mu.Lock()
	if q.findByTxn(txnID) == nil {
		q.mu.Unlock()
		return ErrAttemptedUnlockButNoLockHeld
	}
	q.remove(txnID)
	q.cond.Broadcast()
	q.mu.Unlock()

	m.mu.Lock()
	delete(m.txnTables[txnID], table)
	m.mu.Unlock()
	return nil
}

// UnlockRow releases txnID's row lock.
func (m *Manager) UnlockRow(txnID common.TxnID, row RowID) error {
	m.mu.Lock()
	locks, ok := m.txnRows[txnID]
	m.mu.Unlock()
	if !ok || !hasKey(locks, row) {
		return ErrAttemptedUnlockButNoLockHeld
	}

	q := m.rowQueue(row)
	q.mu.Lock()
	q.remove(txnID)
	q.cond.Broadcast()
	q.mu.Unlock()

	m.mu.Lock()
	delete(m.txnRows[txnID], row)
	m.mu.Unlock()
	return nil
}

// UnlockAll releases every lock held by txnID, rows before tables, as the
// multi-granularity protocol requires. Safe to call on a transaction
// holding no locks.
func (m *Manager) UnlockAll(txnID common.TxnID) {
	m.mu.Lock()
	rows := m.txnRows[txnID]
	rowIDs := make([]RowID, 0, len(rows))
	for id := range rows {
		rowIDs = append(rowIDs, id)
	}
	tables := m.txnTables[txnID]
	tableIDs := make([]TableID, 0, len(tables))
	for id := range tables {
		tableIDs = append(tableIDs, id)
	}
	m.mu.Unlock()

	for _, id := range rowIDs {
		_ = m.UnlockRow(txnID, id)
	}
	for _, id := range tableIDs {
		_ = m.UnlockTable(txnID, id)
	}

	m.mu.Lock()
	delete(m.txnTables, txnID)
	delete(m.txnRows, txnID)
	m.mu.Unlock()
}

func hasKey[K comparable, V any](m map[K]V, k K) bool {
	_, ok := m[k]
	return ok
}

// tableModeSufficientForRow reports whether tableMode grants enough
// intent to take rowMode on one of the table's rows: Shared rows need at
// least an IS table lock (any held table mode qualifies), Exclusive rows
// need at least an IX table lock.
func tableModeSufficientForRow(tableMode, rowMode Mode) bool {
	switch rowMode {
	case Shared:
		return true
	case Exclusive:
		return tableMode == IntentionExclusive || tableMode == SharedIntentionExclusive || tableMode == Exclusive
	default:
		return false
	}
}
