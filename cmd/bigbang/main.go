// Package main is the entry point for the bigbang service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fernandezvara/pgtx"
	"github.com/fernandezvara/pgtx/internal/logger"
	"github.com/fernandezvara/pgtx/internal/schema"
	"github.com/fernandezvara/pgtx/internal/server"
	"github.com/fernandezvara/pgtx/internal/settings"
	"github.com/fernandezvara/pgtx/internal/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Printf("fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := settings.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log)
	log.Info("starting bigbang",
		"version", serviceVersion,
		"port", cfg.Server.Port,
		"log_level", cfg.Log.Level,
	)

	tel, err := telemetry.Init(ctx, cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	migrations, err := schema.Migrations()
	if err != nil {
		return err
	}

	dbCfg := pgtx.DefaultConfig(cfg.Database.URL).
		WithLogger(logger.WithComponent(log, "database")).
		WithMetrics(registry).
		WithTracing(tel.Tracer("github.com/fernandezvara/pgtx")).
		WithMigrations(migrations...)
	dbCfg.AcquireTimeout = cfg.Database.AcquireTimeout
	dbCfg.LogQueries = cfg.Database.LogQueries
	if cfg.Database.SlowQuery > 0 {
		dbCfg = dbCfg.WithSlowQueryLog(cfg.Database.SlowQuery)
	}

	db, err := pgtx.New(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	srv, err := server.New(server.Options{
		Settings: cfg,
		Logger:   logger.WithComponent(log, "http"),
		Database: db,
		Registry: registry,
		Tracer:   tel.Tracer("github.com/fernandezvara/pgtx/internal/server"),
		Version:  serviceVersion,
	})
	if err != nil {
		return err
	}

	// Run blocks until a shutdown signal is received
	return srv.Run(ctx)
}
