package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/reldb/src/buffer"
	"github.com/Blackdeer1524/reldb/src/pkg/config"
	"github.com/Blackdeer1524/reldb/src/pkg/logging"
	"github.com/Blackdeer1524/reldb/src/storage/disk"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Open the data directory and print buffer-pool diagnostics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
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
	indexPath := filepath.Join(cfg.DataDir, indexFileName)
	diskMgr, err := disk.New(fs, indexPath, log)
	if err != nil {
		return fmt.Errorf("open disk manager: %w", err)
	}

	pool := buffer.New(cfg.PoolSize, cfg.ReplacerK, diskMgr, log)

	fmt.Printf("data_dir=%s pool_size=%d replacer_k=%d\n", cfg.DataDir, cfg.PoolSize, cfg.ReplacerK)
	pool.FlushAllPages() // nothing resident yet at open, but keeps exit state clean
	return nil
}
