package lockmanager

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Blackdeer1524/reldb/src/pkg/common"
	"github.com/Blackdeer1524/reldb/src/pkg/dbg"
)

// request is one entry in an object's FIFO lock queue.
type request struct {
	txnID   common.TxnID
	mode    Mode
	granted bool
}

// queue is a single lockable object's FIFO wait queue: requests are
// granted strictly in arrival order, so a request can only be granted once
// every request ahead of it is already granted and compatible. The queue
// mutex is a dbg.LoggedMutex rather than a plain sync.Mutex: contested
// queues are exactly where lock-ordering bugs hide, and the goroutine-id
// trail it leaves at debug level is what DumpWaitGraph's snapshot needs
// to correlate a logged wait edge back to the goroutine that blocked.
type queue struct {
	mu   *dbg.LoggedMutex
	cond *sync.Cond

	requests  []*request
	upgrading common.TxnID // InvalidTxnID if no upgrade is in flight
}

func newQueue(name string, log *zap.Logger) *queue {
	q := &queue{upgrading: common.InvalidTxnID, mu: dbg.NewLoggedMutex(name, log)}
	q.cond = sync.NewCond(q.mu)
	return q
}

func (q *queue) findByTxn(txnID common.TxnID) *request {
	for _, r := range q.requests {
		if r.txnID == txnID {
			return r
		}
	}
	return nil
}

// grantable reports whether r, a waiting request, may now be granted: every
// request ahead of it in FIFO order must already be granted and compatible
// with r's mode, and r's mode must be compatible with every other granted
// mode (an upgrading request keeps its place, so granted requests can sit
// behind it in the queue).
func (q *queue) grantable(r *request) bool {
	reached := false
	for _, other := range q.requests {
		if other == r {
			reached = true
			continue
		}
		if !other.granted {
			if !reached {
				return false
			}
			continue
		}
		if !other.mode.Compatible(r.mode) {
			return false
		}
	}
	return true
}

// heldMode returns the mode txnID currently holds on this object, if any.
func (q *queue) heldMode(txnID common.TxnID) (Mode, bool) {
	r := q.findByTxn(txnID)
	if r == nil || !r.granted {
		return 0, false
	}
	return r.mode, true
}

func (q *queue) remove(txnID common.TxnID) {
	for i, r := range q.requests {
		if r.txnID == txnID {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

// snapshot returns the transaction ids currently granted and currently
// waiting, for the deadlock detector's waits-for edge construction.
func (q *queue) snapshot() (granted []common.TxnID, waiting []common.TxnID) {
	for _, r := range q.requests {
		if r.granted {
			granted = append(granted, r.txnID)
		} else {
			waiting = append(waiting, r.txnID)
		}
	}
	return
}

func (q *queue) isEmpty() bool {
	return len(q.requests) == 0
}
