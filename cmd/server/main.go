package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"bibliocli/internal/config"
	"bibliocli/internal/exporter"
	"bibliocli/internal/infrastructure"
	transport "bibliocli/internal/transport/http"
	"bibliocli/pkg/contracts"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.VersionString())
		return
	}

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

	metrics := infrastructure.NewMetrics()
	store := exporter.NewSnapshotStore(&cfg.Paths, logger)

	// seed the dataset gauges from the current snapshot, if any
	version := cfg.Paths.ProcessedVersion
	if meta, err := store.ReadMetadata(version); err == nil {
		metrics.DatasetRows.Set(float64(meta.Rows))
		if created, err := time.Parse(time.RFC3339, meta.CreatedAt); err == nil {
			metrics.SnapshotAge.Set(time.Since(created).Seconds())
		}
	} else {
		logger.Warn("no snapshot available yet, api will return 404 until the pipeline runs",
			slog.String("version", version))
	}

	srv := transport.NewServer(cfg.Server, store, &cfg.Paths, version, contracts.Version, metrics, logger)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
