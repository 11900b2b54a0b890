package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"bibliocli/internal/config"
	"bibliocli/internal/infrastructure"
	"bibliocli/pkg/contracts"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	useCached := flag.Bool("use-cached", false, "skip loading and cleaning, analyze the saved snapshot")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.VersionString())
		return
	}

	// optional .env for local runs; missing file is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := newRunner(cfg, logger)
	if err := r.run(ctx, *useCached); err != nil {
		logger.Error("Pipeline failed", "error", err)
		os.Exit(1)
	}
}
