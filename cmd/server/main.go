package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pinnedref/pinnedref/internal/analytics"
	"github.com/pinnedref/pinnedref/internal/dataset"
	"github.com/pinnedref/pinnedref/internal/library"
	"github.com/pinnedref/pinnedref/internal/searcher/cache"
	"github.com/pinnedref/pinnedref/internal/searcher/handler"
	"github.com/pinnedref/pinnedref/pkg/config"
	"github.com/pinnedref/pinnedref/pkg/health"
	"github.com/pinnedref/pinnedref/pkg/kafka"
	"github.com/pinnedref/pinnedref/pkg/logger"
	"github.com/pinnedref/pinnedref/pkg/metrics"
	"github.com/pinnedref/pinnedref/pkg/middleware"
	"github.com/pinnedref/pinnedref/pkg/postgres"
	pkgredis "github.com/pinnedref/pinnedref/pkg/redis"
	"github.com/pinnedref/pinnedref/pkg/resilience"
	"github.com/pinnedref/pinnedref/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting pinnedref server", "port", cfg.Server.Port, "dataset_source", cfg.Dataset.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db     *postgres.Client
		readDB dataset.ReadOnlyDB
	)
	if cfg.Dataset.Source == config.SourcePostgres {
		db, err = postgres.New(cfg.Postgres)
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
	var snap *dataset.Snapshot
	err = resilience.WithTimeout(ctx, cfg.Dataset.LoadTimeout, "dataset-load", func(ctx context.Context) error {
		var err error
		snap, err = dataset.Load(ctx, src, cfg.Dataset.Strict)
		return err
	})
	if err != nil {
		slog.Error("failed to load dataset", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	lib, err := library.New(snap,
		library.WithMetrics(m),
		library.WithTracer(tracing.NewTracer(cfg.Tracing.Enabled)),
	)
	if err != nil {
		slog.Error("failed to build library", "error", err)
		os.Exit(1)
	}

	var (
		queryCache  *cache.QueryCache
		redisClient *pkgredis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, lib.Version(), cache.WithMetrics(m))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var (
		collector  *analytics.Collector
		aggregator *analytics.Aggregator
	)
	if cfg.Analytics.Enabled {
		aggregator = analytics.NewAggregator()
		var publisher analytics.Publisher = analytics.Loopback{Aggregator: aggregator}
		if len(cfg.Kafka.Brokers) > 0 {
			topic := cfg.Kafka.Topics.SearchEvents
			producer := kafka.NewProducer(cfg.Kafka, topic)
			defer producer.Close()
			publisher = producer
			consumer := kafka.NewConsumer(cfg.Kafka, topic, aggregator.HandleMessage)
			go func() {
				if err := aggregator.Run(ctx, consumer); err != nil {
					slog.Error("analytics aggregator error", "error", err)
				}
			}()
			slog.Info("analytics pipeline started", "topic", topic, "brokers", cfg.Kafka.Brokers)
		} else {
			slog.Info("analytics running in-process, no kafka brokers configured")
		}
		collector = analytics.NewCollector(publisher, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer collector.Close()
	}

	checker := health.NewChecker()
	checker.Register("dataset", func(ctx context.Context) health.ComponentHealth {
		stats := lib.Stats()
		if stats.Articles == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no articles loaded"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d articles, %d terms, version %s", stats.Articles, stats.Terms, stats.Version),
		}
	})
	if redisClient != nil {
		checker.Register("redis", health.Ping(redisClient.Ping, false))
	} else {
		checker.Register("redis", health.Disabled("caching disabled"))
	}
	if db != nil {
		checker.Register("postgres", health.Ping(db.Ping, false))
	}

	mux := http.NewServeMux()
	handler.New(lib, queryCache, collector, m, cfg.Search.MaxQueryBytes).Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdownMetrics(context.Background())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("pinnedref server listening", "addr", server.Addr, "version", lib.Version())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("pinnedref server stopped")
}
