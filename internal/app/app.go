// Package app assembles the tick pipeline: durable storage, the in-memory
// buffer, the persistence worker, the feed consumers, the alert manager, the
// live metrics stream, and the on-demand pair analytics service.
package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pairstream/config"
	"pairstream/internal/alerts"
	"pairstream/internal/ingest"
	"pairstream/internal/live"
	"pairstream/internal/market/tickbuffer"
	"pairstream/internal/metrics"
	"pairstream/internal/pairs"
	"pairstream/internal/persist"
	"pairstream/pkg/storage/postgres"
)

// App owns every pipeline component. A serving layer (HTTP/WS) embeds the
// exported handles; nothing here is ambient or global.
type App struct {
	cfg *config.Config
	log *zap.Logger

	DB     *postgres.PostgresClient
	Buffer *tickbuffer.Buffer
	Worker *persist.Worker
	Feed   *ingest.Service
	Alerts *alerts.Manager
	Stream *live.Stream
	Pairs  *pairs.Service
}

// New connects to storage and wires the components together without starting
// any of them.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	postgresClient, err := postgres.InitializeAndMigrateTickRecord(cfg.Postgres, cfg.Log.Environment, true)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	buffer := tickbuffer.New(cfg.Pipeline.BufferCapacity)

	worker := persist.NewWorker(postgresClient, persist.Config{
		QueueSize:     cfg.Pipeline.QueueSize,
		BatchSize:     cfg.Pipeline.BatchSize,
		FlushInterval: cfg.Pipeline.FlushInterval,
	}, logger)

	feed := ingest.NewService(ingest.Config{
		BaseURL:          cfg.Binance.WSBaseURL,
		Symbols:          cfg.Binance.Symbols,
		ConnectTimeout:   cfg.Binance.ConnectTimeout,
		ReconnectBackoff: cfg.Binance.ReconnectBackoff,
	}, buffer, worker, nil, logger)

	alertManager := alerts.NewManager(cfg.Alerts.HistoryLimit, logger)

	var stream *live.Stream
	if len(cfg.Binance.Symbols) >= 2 {
		stream = live.NewStream(live.Config{
			SymbolA:          cfg.Binance.Symbols[0],
			SymbolB:          cfg.Binance.Symbols[1],
			Window:           cfg.Analytics.Window,
			IncludeIntercept: cfg.Analytics.IncludeIntercept,
		}, feed, buffer, alertManager, logger)
	} else {
		logger.Warn("fewer than two symbols configured, live pair stream disabled",
			zap.Strings("symbols", cfg.Binance.Symbols))
	}

	return &App{
		cfg:    cfg,
		log:    logger,
		DB:     postgresClient,
		Buffer: buffer,
		Worker: worker,
		Feed:   feed,
		Alerts: alertManager,
		Stream: stream,
		Pairs:  pairs.NewService(postgresClient, buffer, feed, cfg.Analytics.Window, logger),
	}, nil
}

// Run starts every component and blocks until the process receives SIGINT or
// SIGTERM, then shuts the stages down in dependency order.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer a.DB.Close()

	a.Worker.Start(ctx)
	if err := a.Feed.Start(ctx); err != nil {
		a.Worker.Stop()
		return fmt.Errorf("failed to start feed: %w", err)
	}
	if a.Stream != nil {
		if err := a.Stream.Start(ctx); err != nil {
			a.Feed.Stop()
			a.Worker.Stop()
			return fmt.Errorf("failed to start live stream: %w", err)
		}
	}

	metricsServer := metrics.Serve(a.cfg.Metrics.Addr)
	a.log.Info("metrics server listening", zap.String("addr", a.cfg.Metrics.Addr))

	// Periodically report pipeline progress for visibility.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fields := []zap.Field{zap.Int("flushes", a.Worker.Flushes())}
				for _, symbol := range a.cfg.Binance.Symbols {
					fields = append(fields,
						zap.String(symbol, a.Feed.SymbolState(symbol).String()))
				}
				a.log.Info("pipeline status", fields...)
			}
		}
	}()

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	// Stop producers before consumers so the final flush sees every tick.
	a.Feed.Stop()
	if a.Stream != nil {
		a.Stream.Stop()
	}
	a.Worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	return nil
}
