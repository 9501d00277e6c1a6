package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/reldb/src/buffer"
	"github.com/Blackdeer1524/reldb/src/concurrency/lockmanager"
	"github.com/Blackdeer1524/reldb/src/pkg/config"
	"github.com/Blackdeer1524/reldb/src/pkg/logging"
	"github.com/Blackdeer1524/reldb/src/storage/disk"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the data directory and run the deadlock detector until interrupted",
	RunE:  runServe,
}

const indexFileName = "index.db"

func runServe(cmd *cobra.Command, args []string) error {
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

	diskMgr, err := disk.New(fs, indexPath, log)
	if err != nil {
		return fmt.Errorf("open disk manager: %w", err)
	}

	pool := buffer.New(cfg.PoolSize, cfg.ReplacerK, diskMgr, log)

	locks := lockmanager.New(log)
	stopDetector := lockmanager.StartDetector(cmd.Context(), locks, cfg.DeadlockDetectInterval, log)

	log.Info("reldbctl serving",
		zap.String("data_dir", cfg.DataDir),
		zap.Int("pool_size", cfg.PoolSize),
		zap.Duration("deadlock_detect_interval", cfg.DeadlockDetectInterval),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	stopDetector()
	pool.FlushAllPages()
	return nil
}
