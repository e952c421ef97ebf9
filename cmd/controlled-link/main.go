package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/adapter/oauth"
	"github.com/vertextoedge/owncloud-controlled-link/internal/adapter/owncloud"
	"github.com/vertextoedge/owncloud-controlled-link/internal/adapter/sqlite"
	"github.com/vertextoedge/owncloud-controlled-link/internal/config"
	"github.com/vertextoedge/owncloud-controlled-link/internal/logger"
	"github.com/vertextoedge/owncloud-controlled-link/internal/metrics"
	"github.com/vertextoedge/owncloud-controlled-link/internal/service/maintenance"
	"github.com/vertextoedge/owncloud-controlled-link/internal/service/provisioner"
	"github.com/vertextoedge/owncloud-controlled-link/internal/service/server"
	"github.com/vertextoedge/owncloud-controlled-link/internal/util/ratelimiter"
	"go.uber.org/zap"
)

const version = "0.1.0"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if _, err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	zapLogger := logger.L()

	zapLogger.Info("starting controlled-link",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Open database
	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		zapLogger.Fatal("failed to open database", zap.Error(err), zap.String("path", cfg.Database.Path))
	}
	defer store.Close()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	issuer := cfg.Issuer.ToDomain()

	// Identity broker keeps user and system tokens in the store
	broker := oauth.NewBroker(oauth.Config{
		ClientID:           cfg.Issuer.ClientID,
		ClientSecret:       cfg.Issuer.ClientSecret,
		Scopes:             cfg.Issuer.Scopes,
		SkipTLSVerify:      cfg.Issuer.SkipTLSVerify,
		SystemUsername:     cfg.SystemAccount.Username,
		SystemRefreshToken: cfg.SystemAccount.RefreshToken,
		Timeout:            cfg.Repository.GetRequestTimeout(),
	}, store, logger.Named("oauth"))

	connector := owncloud.NewConnector(issuer, cfg.Repository.GetRequestTimeout(), logger.Named("owncloud"))

	links := provisioner.New(provisioner.Config{
		Enabled:       cfg.Repository.Enabled,
		FolderName:    cfg.Repository.ControlledLinkFolder,
		ShareDuration: cfg.Repository.GetShareDuration(),
		TransferMode:  cfg.Repository.GetTransferMode(),
		CallTimeout:   cfg.Repository.GetRequestTimeout(),
		RetryAfter:    cfg.Repository.GetRetryAfter(),
	}, issuer, broker, connector, store, metrics.NewProvisionMetrics(), logger.Named("provisioner"))

	limiter := ratelimiter.New(cfg.HTTP.GetProvisionInterval())

	// Create maintenance service
	maintenanceService := maintenance.New(&maintenance.Config{
		PruneInterval: cfg.Maintenance.GetPruneInterval(),
	}, store, limiter, logger.Named("maintenance"))

	// Create HTTP server
	serverCfg := &server.Config{
		BindAddr:     cfg.HTTP.BindAddr,
		APIUsername:  cfg.HTTP.APIUsername,
		APIPassword:  cfg.HTTP.APIPassword,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  cfg.HTTP.GetIdleTimeout(),
	}
	httpServer := server.New(serverCfg, store, links, limiter, metrics.Handler(), logger.Named("http"))

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start HTTP server
	go func() {
		if err := httpServer.Start(); err != nil {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Start maintenance service
	go func() {
		if err := maintenanceService.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	zapLogger.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("issuer", issuer.Name),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)
	<-sigChan

	zapLogger.Info("shutdown signal received, stopping services...")

	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	maintenanceService.Stop()

	// Stop HTTP server
	if err := httpServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	zapLogger.Info("application stopped successfully")
}
