package lockmanager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Blackdeer1524/reldb/src/pkg/common"
	"github.com/Blackdeer1524/reldb/src/pkg/dbg"
)

// waitsForGraph maps a blocked transaction to the transactions whose
// requests stand ahead of it in some object's FIFO queue and block it from
// being granted.
type waitsForGraph map[common.TxnID][]common.TxnID

func (g waitsForGraph) addEdge(from, to common.TxnID) {
	if from == to {
		return
	}
	for _, existing := range g[from] {
		if existing == to {
			return
		}
	}
	g[from] = append(g[from], to)
}

// isCyclic runs DFS cycle detection over the waits-for graph.
func (g waitsForGraph) isCyclic() (common.TxnID, bool) {
	const none = common.InvalidTxnID

	visited := make(map[common.TxnID]bool)
	recStack := make(map[common.TxnID]bool)
	var cycleMember common.TxnID = none

	var dfs func(common.TxnID) bool
	dfs = func(txnID common.TxnID) bool {
		if recStack[txnID] {
			cycleMember = txnID
			return true
		}
		if visited[txnID] {
			return false
		}
		visited[txnID] = true
		recStack[txnID] = true
		for _, dst := range g[txnID] {
			if dfs(dst) {
				return true
			}
		}
		recStack[txnID] = false
		return false
	}

	for txnID := range g {
		if !visited[txnID] {
			if dfs(txnID) {
				return cycleMember, true
			}
		}
	}
	return none, false
}

// dump renders the waits-for graph as graphviz, for pasting into a
// diagnostic report when a cycle won't reproduce under a debugger.
func (g waitsForGraph) dump() string {
	var b strings.Builder
	b.WriteString("digraph WaitsFor {\n\trankdir=LR;\n\tnode [shape=box];\n")
	for txnID, waitsOn := range g {
		for _, other := range waitsOn {
			b.WriteString(fmt.Sprintf("\t\"txn_%d\" -> \"txn_%d\";\n", txnID, other))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// DumpWaitGraph logs the current waits-for graph at debug level, tagged
// with the calling goroutine's id so the dump can be correlated with
// whichever caller requested it.
func (m *Manager) DumpWaitGraph() {
	g := m.snapshotGraph()
	m.log.Debug("waits-for graph snapshot",
		zap.Int64("goid", dbg.GoroutineID()),
		zap.String("graphviz", g.dump()),
	)
}

// snapshotGraph builds the current waits-for graph over every table and row
// queue.
func (m *Manager) snapshotGraph() waitsForGraph {
	m.mu.Lock()
	queues := make([]*queue, 0, len(m.tables)+len(m.rows))
	for _, q := range m.tables {
		queues = append(queues, q)
	}
	for _, q := range m.rows {
		queues = append(queues, q)
	}
	m.mu.Unlock()

	g := make(waitsForGraph)
	for _, q := range queues {
		q.mu.Lock()
		for i, r := range q.requests {
			if r.granted {
				continue
			}
			for j := 0; j < i; j++ {
				ahead := q.requests[j]
				if !ahead.granted || !ahead.mode.Compatible(r.mode) {
					g.addEdge(r.txnID, ahead.txnID)
				}
			}
		}
		q.mu.Unlock()
	}
	return g
}

// findCycleVictim finds a cycle in the waits-for graph and returns the
// youngest (highest-numbered) transaction participating in it, so older
// transactions are never starved by repeated rollback.
func (m *Manager) findCycleVictim() (common.TxnID, bool) {
	g := m.snapshotGraph()
	member, found := g.isCyclic()
	if !found {
		return 0, false
	}

	// Walk the full cycle starting at member to pick the youngest id in it,
	// rather than assume member itself is youngest.
	visited := map[common.TxnID]bool{member: true}
	youngest := member
	pending := []common.TxnID{member}
	for len(pending) > 0 {
		cur := pending[0]
		pending = pending[1:]
		for _, next := range g[cur] {
			if next > youngest {
				youngest = next
			}
			if !visited[next] {
				visited[next] = true
				pending = append(pending, next)
			}
		}
	}
	return youngest, true
}

// Detector periodically scans the waits-for graph and aborts one
// transaction per detected cycle.
type Detector struct {
	manager  *Manager
	interval time.Duration
	log      *zap.Logger
}

func NewDetector(manager *Manager, interval time.Duration, log *zap.Logger) *Detector {
	return &Detector{manager: manager, interval: interval, log: log}
}

// Run ticks until ctx is cancelled, aborting one cycle's youngest
// transaction per tick (a fresh scan next tick catches any cycle the
// previous abort didn't fully resolve).
func (d *Detector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if victim, found := d.manager.findCycleVictim(); found {
				d.log.Info("deadlock detected, aborting victim", zap.Int64("txn_id", int64(victim)))
				d.manager.MarkAborted(victim)
			}
		}
	}
}

// StartDetector launches the detector under an errgroup.Group tied to ctx,
// returning a stop function that cancels it and waits for exit.
func StartDetector(ctx context.Context, manager *Manager, interval time.Duration, log *zap.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	d := NewDetector(manager, interval, log)
	g.Go(func() error { return d.Run(gctx) })

	return func() {
		cancel()
		_ = g.Wait()
	}
}
