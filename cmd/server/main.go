// Package main initializes and starts the SessionSync snapshot store,
// setting up configuration, logging, database connections, repositories,
// services, handlers, and TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/SessionSync/internal/config"
	"github.com/atinyakov/SessionSync/internal/db"
	"github.com/atinyakov/SessionSync/internal/logger"
	"github.com/atinyakov/SessionSync/internal/repository"
	"github.com/atinyakov/SessionSync/internal/server/handler/http"
	"github.com/atinyakov/SessionSync/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, file and environment configuration.
	options, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer func() { _ = postgresDB.Close() }()

	// Drop snapshots nobody has pushed for a while.
	if options.Retention > 0 {
		db.StartRetentionCleaner(ctx, postgresDB,
			time.Duration(options.CleanInterval),
			time.Duration(options.Retention),
			zapLogger,
		)
	}

	// Initialize repositories and the business-logic service.
	accountRepo := repository.NewPostgresAccountRepository(postgresDB)
	syncRepo := repository.NewPostgresSyncRepository(postgresDB)
	syncService := service.NewSyncService(syncRepo, accountRepo)

	// Create HTTP handlers for the RPC and health endpoints.
	syncHandler := &http.SyncHandler{SyncService: syncService, Log: zapLogger}
	healthHandler := &http.HealthHandler{DB: postgresDB}

	// Build the router with middleware and routes.
	router := http.NewRouter(syncHandler, healthHandler, options.APIKeys, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsEnabled := options.TLSCert != ""
	if tlsEnabled {
		// Load server TLS certificate and key.
		cert, err := tls.LoadX509KeyPair(options.TLSCert, options.TLSKey)
		if err != nil {
			zapLogger.Fatal("failed to load server TLS cert/key", zap.Error(err))
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	} else {
		zapLogger.Warn("TLS is not configured, serving plain HTTP")
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("shutdown", zap.Error(err))
		}
	}()

	zapLogger.Info("starting server",
		zap.String("addr", options.Addr),
		zap.Bool("tls", tlsEnabled),
		zap.Int("api_keys", len(options.APIKeys)))

	if tlsEnabled {
		err = server.ListenAndServeTLS("", "")
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}
