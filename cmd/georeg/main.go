package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"georeg/internal/batch"
	"georeg/internal/cli"
	"georeg/internal/config"
	"georeg/internal/logging"
	"georeg/internal/pipeline"
	"georeg/internal/preview"
	"georeg/internal/raster"
	"georeg/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	if cfg.Processing.TempDir != "" {
		// ImageMagick spills its pixel cache here when previews of large
		// rasters exceed memory.
		os.Setenv("MAGICK_TEMPORARY_PATH", cfg.Processing.TempDir)
	}

	store, err := storage.New(cfg.Paths.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engines := cli.BuildEngineManager(cfg)
	runner := batch.New(engines, raster.NewGDAL(), preview.NewMagick(uint(cfg.Run.PreviewQuality)), store, logger)
	pipe := pipeline.New(ctx, cfg.Processing.ParallelRuns, logger, store, runner)
	defer pipe.Stop()

	return cli.NewRootCmd(cfg, logger, store, pipe).ExecuteContext(ctx)
}
