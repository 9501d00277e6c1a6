// Package txn implements the transaction state machine and isolation-level
// policy that sits above the lock manager: a transaction acquires locks
// while GROWING, stops acquiring new ones once it starts releasing
// (SHRINKING), and finishes COMMITTED or ABORTED.
package txn

import (
	"fmt"

	"github.com/Blackdeer1524/reldb/src/concurrency/lockmanager"
	"github.com/Blackdeer1524/reldb/src/pkg/common"
)

type State uint8

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// IsolationLevel governs which locks a transaction is required to acquire
// and how long it must hold them.
type IsolationLevel uint8

const (
	// ReadUncommitted never takes shared locks, so it never blocks on a
	// writer and may observe uncommitted data; exclusive locks are still
	// required and held to commit/abort.
	ReadUncommitted IsolationLevel = iota
	// ReadCommitted takes shared locks but releases them immediately after
	// the read, only holding exclusive locks until commit/abort.
	ReadCommitted
	// RepeatableRead holds every lock, shared or exclusive, until
	// commit/abort — the strongest of the three.
	RepeatableRead
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ_UNCOMMITTED"
	case ReadCommitted:
		return "READ_COMMITTED"
	case RepeatableRead:
		return "REPEATABLE_READ"
	default:
		return fmt.Sprintf("IsolationLevel(%d)", uint8(l))
	}
}

// writeRecord is one entry of a transaction's undo log: the row it touched
// and the bytes to restore on abort (nil for an insert, meaning "delete
// this row on undo").
type writeRecord struct {
	row    lockmanager.RowID
	before []byte
}

// Transaction tracks one transaction's state, isolation level, held locks,
// and pending undo log.
type Transaction struct {
	id        common.TxnID
	isolation IsolationLevel
	state     State

	heldTables map[lockmanager.TableID]lockmanager.Mode
	heldRows   map[lockmanager.RowID]lockmanager.Mode

	writeSet []writeRecord
}

func newTransaction(id common.TxnID, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:         id,
		isolation:  isolation,
		state:      Growing,
		heldTables: make(map[lockmanager.TableID]lockmanager.Mode),
		heldRows:   make(map[lockmanager.RowID]lockmanager.Mode),
	}
}

func (t *Transaction) ID() common.TxnID                { return t.id }
func (t *Transaction) Isolation() IsolationLevel       { return t.isolation }
func (t *Transaction) State() State                    { return t.state }
func (t *Transaction) HeldTables() map[lockmanager.TableID]lockmanager.Mode {
	return t.heldTables
}
func (t *Transaction) HeldRows() map[lockmanager.RowID]lockmanager.Mode {
	return t.heldRows
}

// recordWrite appends an undo entry; before is the row's pre-image (nil for
// an insert).
func (t *Transaction) recordWrite(row lockmanager.RowID, before []byte) {
	t.writeSet = append(t.writeSet, writeRecord{row: row, before: before})
}
