package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pinnedref/pinnedref/internal/analytics"
	"github.com/pinnedref/pinnedref/internal/browse"
	"github.com/pinnedref/pinnedref/internal/dataset"
	"github.com/pinnedref/pinnedref/internal/library"
	"github.com/pinnedref/pinnedref/pkg/config"
	"github.com/pinnedref/pinnedref/pkg/kafka"
	"github.com/pinnedref/pinnedref/pkg/logger"
	"github.com/pinnedref/pinnedref/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var readDB dataset.ReadOnlyDB
	if cfg.Dataset.Source == config.SourcePostgres {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		readDB = db
	}
	src, err := dataset.NewSource(cfg.Dataset, readDB)
	if err != nil {
		slog.Error("invalid dataset source", "error", err)
		os.Exit(1)
	}
	snap, err := dataset.Load(ctx, src, cfg.Dataset.Strict)
	if err != nil {
		slog.Error("failed to load dataset", "error", err)
		os.Exit(1)
	}
	lib, err := library.New(snap)
	if err != nil {
		slog.Error("failed to build library", "error", err)
		os.Exit(1)
	}

	opts := []browse.Option{browse.WithDebounceDelay(cfg.Search.DebounceDelay)}
	if cfg.Analytics.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer collector.Close()
		opts = append(opts, browse.WithCollector(collector))
	}

	shell := browse.NewShell(os.Stdout)
	opts = append(opts, browse.OnCount(shell.Count))
	session := browse.NewSession(lib, opts...)
	defer session.Close()

	if err := shell.Run(ctx, session, os.Stdin); err != nil {
		slog.Error("reading commands", "error", err)
		os.Exit(1)
	}
}
