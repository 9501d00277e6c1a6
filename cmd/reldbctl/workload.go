package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/reldb/src/buffer"
	"github.com/Blackdeer1524/reldb/src/concurrency/lockmanager"
	"github.com/Blackdeer1524/reldb/src/concurrency/txn"
	"github.com/Blackdeer1524/reldb/src/pkg/common"
	"github.com/Blackdeer1524/reldb/src/pkg/config"
	"github.com/Blackdeer1524/reldb/src/pkg/logging"
	"github.com/Blackdeer1524/reldb/src/storage/disk"
	"github.com/Blackdeer1524/reldb/src/storage/index/btree"
)

// workloadTable is the fixed table id the workload command locks its
// inserts and deletes under; there is no catalog in this tree, so a single
// well-known id stands in for "the index under test."
const workloadTable lockmanager.TableID = 1

var workloadCmd = &cobra.Command{
	Use:   "workload [keys...]",
	Short: "Run a scripted insert/get/delete workload against the B+ tree under a transaction",
	RunE:  runWorkload,
}

// noopUndoer satisfies txn.Undoer for the workload command: this tree has
// no row/heap storage above it to restore a pre-image into, so abort here
// only rolls back lock state, not tree contents.
type noopUndoer struct{ log *zap.Logger }

func (u noopUndoer) Undo(row lockmanager.RowID, before []byte) error {
	u.log.Warn("workload: undo requested but no heap storage is wired to restore", zap.Any("row", row))
	return nil
}

func runWorkload(cmd *cobra.Command, args []string) error {
	log, err := logging.New(devLog)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load("RELDB")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fs := afero.NewOsFs()
	if err := fs.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	indexPath := filepath.Join(cfg.DataDir, indexFileName)
	fresh := true
	if info, statErr := fs.Stat(indexPath); statErr == nil && info.Size() > 0 {
		fresh = false
	}

	diskMgr, err := disk.New(fs, indexPath, log)
	if err != nil {
		return fmt.Errorf("open disk manager: %w", err)
	}
	pool := buffer.New(cfg.PoolSize, cfg.ReplacerK, diskMgr, log)
	defer pool.FlushAllPages()

	var headerPageID common.PageID
	if fresh {
		id, ok := btree.InitHeaderPage(pool)
		if !ok {
			return fmt.Errorf("allocate header page: pool exhausted")
		}
		headerPageID = id
	}
	tree := btree.New(
		pool, headerPageID, btree.Int64Codec{}, btree.CompareInt64,
		cfg.LeafMaxSize, cfg.InternalMaxSize, log,
	)

	keys := make([]int64, 0, len(args))
	for _, a := range args {
		var k int64
		if _, err := fmt.Sscanf(a, "%d", &k); err != nil {
			return fmt.Errorf("parse key %q: %w", a, err)
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		keys = []int64{1, 2, 3, 4, 5}
	}

	locks := lockmanager.New(log)
	txns := txn.NewManager(locks, noopUndoer{log: log}, log)

	t := txns.Begin(txn.RepeatableRead)
	if err := txns.LockTableForWrite(t, workloadTable); err != nil {
		return fmt.Errorf("lock table for write: %w", err)
	}

	for i, k := range keys {
		rid := common.RID{PageID: common.PageID(k), SlotNum: uint32(i)}
		row := lockmanager.RowID{Table: workloadTable, RID: rid}
		if err := txns.LockRowForWrite(t, workloadTable, row, nil); err != nil {
			txns.Abort(t)
			return fmt.Errorf("lock row %d for write: %w", k, err)
		}
		inserted := tree.Insert(k, rid)
		fmt.Printf("insert key=%d rid=%s ok=%v\n", k, rid, inserted)
	}

	for _, k := range keys {
		v, ok := tree.GetValue(k)
		fmt.Printf("get key=%d found=%v rid=%v\n", k, ok, v)
	}

	removed := keys[0]
	tree.Remove(removed)
	_, stillThere := tree.GetValue(removed)
	fmt.Printf("delete key=%d found_after=%v\n", removed, stillThere)

	txns.Commit(t)
	fmt.Println("workload committed")
	return nil
}
