// Command analytics aggregates search and article-view events from the
// search-events Kafka topic and serves the totals at GET /api/v1/analytics.
// It is the consumer side for deployments where the server and terminal
// browsers publish to Kafka instead of aggregating in-process.
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

	"github.com/pinnedref/pinnedref/internal/analytics"
	"github.com/pinnedref/pinnedref/pkg/config"
	"github.com/pinnedref/pinnedref/pkg/health"
	"github.com/pinnedref/pinnedref/pkg/kafka"
	"github.com/pinnedref/pinnedref/pkg/logger"
	"github.com/pinnedref/pinnedref/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 8081, "HTTP port for the analytics API")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if len(cfg.Kafka.Brokers) == 0 {
		slog.Error("no kafka brokers configured; set kafka.brokers or PR_KAFKA_BROKERS")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	topic := cfg.Kafka.Topics.SearchEvents
	aggregator := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, topic, aggregator.HandleMessage)
	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- aggregator.Run(ctx, consumer)
	}()
	slog.Info("analytics aggregator started", "topic", topic, "group", cfg.Kafka.ConsumerGroup)

	checker := health.NewChecker()
	checker.Register("kafka_consumer", func(ctx context.Context) health.ComponentHealth {
		select {
		case err := <-consumerDone:
			consumerDone <- err
			msg := "consumer stopped"
			if err != nil {
				msg = err.Error()
			}
			return health.ComponentHealth{Status: health.StatusDown, Message: msg}
		default:
			return health.ComponentHealth{Status: health.StatusUp, Message: "consuming " + topic}
		}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      middleware.RequestID(mux),
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
