// Package main runs the trade desk gateway: the notification pipeline
// (REST + push feed), the derived-balance tracker, chart data joining, and
// platform health polling, exposed over a small HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"trade-desk-gateway/internal/balances"
	"trade-desk-gateway/internal/charts"
	"trade-desk-gateway/internal/config"
	"trade-desk-gateway/internal/health"
	"trade-desk-gateway/internal/logger"
	"trade-desk-gateway/internal/notify"
	"trade-desk-gateway/internal/observability"
	"trade-desk-gateway/internal/server"
	"trade-desk-gateway/internal/solana"
	"trade-desk-gateway/internal/storage"
	chstore "trade-desk-gateway/internal/storage/clickhouse"
	"trade-desk-gateway/internal/storage/memory"
	"trade-desk-gateway/internal/storage/migrations"
	pgstore "trade-desk-gateway/internal/storage/postgres"
)

func main() {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load configuration")
	}

	if err := logger.Setup(cfg.Log); err != nil {
		logrus.WithError(err).Fatal("configure logging")
	}

	log := logrus.WithField("component", "gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Notification archive: postgres when configured, memory otherwise.
	var archive storage.NotificationStore = memory.NewNotificationStore()
	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			log.WithError(err).Fatal("connect postgres")
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			log.WithError(err).Fatal("apply postgres migrations")
		}
		archive = pgstore.NewNotificationStore(pool)
		log.Info("notification archive: postgres")
	} else {
		log.Info("notification archive: in-memory")
	}

	// Candle archive: clickhouse when configured, memory otherwise.
	var candleStore storage.CandleStore = memory.NewCandleStore()
	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			log.WithError(err).Fatal("apply clickhouse migrations")
		}
		defer conn.Close()
		candleStore = chstore.NewCandleStore(conn)
		log.Info("candle archive: clickhouse")
	}

	apiClient := notify.NewClient(cfg.NotificationAPI)
	inbox := notify.NewInbox(apiClient, archive)
	session := server.NewSession(cfg.NotificationWS, inbox)
	defer session.Stop()

	tracker := balances.NewTracker()

	fetcher := charts.NewFetcher(charts.DefaultFetcherConfig(cfg.ChartAPI), candleStore)

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint)
	poller := health.NewPoller(rpc, health.DefaultPollerConfig(cfg.DBHealthURL))
	go poller.Run(ctx)

	// Prometheus metrics endpoint.
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: observability.Handler(),
	}
	go func() {
		log.WithField("addr", cfg.MetricsAddr).Info("metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()

	srv := server.New(session, inbox, tracker, fetcher, poller)
	log.WithField("addr", cfg.ListenAddr).Info("gateway listening")
	if err := srv.Run(ctx, cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("gateway server")
	}

	log.Info("shutdown complete")
}
