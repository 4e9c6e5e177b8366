package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stockline/invoice-ingest/internal/app"
	"github.com/stockline/invoice-ingest/internal/worker"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// Local overrides for database path, log level and the like
	gotenv.Load(".env")

	application, err := app.New(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	logger := application.Logger
	logger.Info("Starting invoice ingest daemon",
		zap.String("config", *configPath),
		zap.String("database", application.Config.Database.Path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := worker.NewManager(logger)
	if application.Config.Sweep.Enabled {
		manager.Register(worker.NewSweeper(worker.SweeperConfig{
			Schedule:    application.Config.Sweep.Schedule,
			AutoMatch:   application.Config.Sweep.AutoMatch,
			CreateStock: application.Config.Sweep.CreateStock,
		}, application.Processor, logger))
	}

	if err := manager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	if manager.Count() == 0 {
		logger.Warn("No workers enabled; daemon is idle. Enable sweep.enabled or use invoicectl.")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("Shutting down", zap.String("signal", sig.String()))
	cancel()
	manager.StopAll()
	logger.Info("Daemon stopped")
}
