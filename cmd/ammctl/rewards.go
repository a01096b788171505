package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammCore/internal/batch"
	"ammCore/internal/config"
	"ammCore/internal/storage/postgres"
)

func runRewardsAccrue(cmd *cobra.Command, _ []string) error {
	return runRewardsBatch(cmd, batch.ModeAccrue)
}

func runRewardsMigrate(cmd *cobra.Command, _ []string) error {
	return runRewardsBatch(cmd, batch.ModeMigrate)
}

func runRewardsBatch(cmd *cobra.Command, mode batch.Mode) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadRewards(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	now := cfg.Now
	if mode == batch.ModeAccrue && now == 0 {
		return fmt.Errorf("now is required for accrue")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	runner := batch.NewRunner(batch.RunConfig{
		Mode:              mode,
		Now:               now,
		WindowSize:        cfg.WindowSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, store, logger)

	logger.Info("rewards batch start",
		zap.String("mode", string(mode)),
		zap.Uint64("now", now),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("window_size", cfg.WindowSize),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
