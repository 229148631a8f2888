// Copyright (c) 2026 Keypo Labs
//
// This file is part of keypo-keyring.
//
// keypo-keyring is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@keypo.io for commercial licensing options.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/keypo/keyring/internal/config"
	"github.com/keypo/keyring/internal/rest"
	"github.com/keypo/keyring/pkg/challenge"
	"github.com/keypo/keyring/pkg/keyring"
	"github.com/keypo/keyring/pkg/logging"
	"github.com/keypo/keyring/pkg/metrics"
	"github.com/keypo/keyring/pkg/passkey"
	"github.com/keypo/keyring/pkg/ratelimit"
	"github.com/keypo/keyring/pkg/session"
	"github.com/keypo/keyring/pkg/storage"
	"github.com/keypo/keyring/pkg/storage/sqlite"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("keypo-keyring server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("KEYRING_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	// A configuration failure here is fatal. The process must refuse to
	// serve rather than fail every request with a missing secret.
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.NewLogger(strings.EqualFold(cfg.Logging.Level, "debug"))
	logger.Info("Starting keyring server",
		"version", version,
		"port", cfg.Server.Port,
		"rp_id", cfg.WebAuthn.RPID,
		"storage", cfg.Storage.Backend)

	challenges := challenge.NewStore(cfg.ChallengeTTL())

	engine, err := passkey.NewEngine(cfg.PasskeyConfig(), challenges)
	if err != nil {
		logger.FatalError(fmt.Errorf("failed to create passkey engine: %w", err))
	}

	users, cleanupStore, err := openUserStore(cfg, logger)
	if err != nil {
		logger.FatalError(err)
	}
	defer cleanupStore()

	tokens, err := session.NewIssuer([]byte(cfg.SessionSecret),
		session.WithIssuer(cfg.Session.Issuer),
		session.WithTTL(cfg.SessionTTL()))
	if err != nil {
		logger.FatalError(fmt.Errorf("failed to create token issuer: %w", err))
	}

	service, err := keyring.NewService(keyring.ServiceParams{
		MasterSecret: cfg.MasterSecret,
		Users:        users,
		Passkeys:     engine,
		Tokens:       tokens,
	})
	if err != nil {
		logger.FatalError(fmt.Errorf("failed to create keyring service: %w", err))
	}

	limiter := ratelimit.New(cfg.RateLimitSettings())
	defer limiter.Stop()

	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewResourceCollector(ctx, 15*time.Second)
	collector.TrackChallenges(challenges.Len)
	go collector.Start()
	defer collector.Stop()

	// Sweep abandoned ceremonies so the challenge map stays bounded
	go sweepChallenges(ctx, challenges, cfg.ChallengeCleanupInterval(), logger)

	rest.Version = version
	server, err := rest.NewServer(&rest.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	}, service, tokens, limiter, logger)
	if err != nil {
		logger.FatalError(fmt.Errorf("failed to create server: %w", err))
	}

	shutdownCtx := setupSignalHandler(logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		logger.Errorf("Server error: %v", err)
	}

	shutdownTimeout, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Stop(shutdownTimeout); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Keyring server stopped")
}

// openUserStore creates the configured user directory backend. The returned
// cleanup closes the backing database when there is one.
func openUserStore(cfg *config.Config, logger *logging.Logger) (storage.UserStore, func(), error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		store, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open user database: %w", err)
		}
		return store, func() { logger.MaybeError(store.Close()) }, nil
	default:
		return storage.NewMemoryUserStore(), func() {}, nil
	}
}

// sweepChallenges periodically removes expired pending challenges and keeps
// the gauge current.
func sweepChallenges(ctx context.Context, challenges *challenge.Store, interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := challenges.Cleanup(); removed > 0 {
				logger.Debug("Expired pending challenges removed", "count", removed)
			}
			metrics.SetPendingChallenges(challenges.Len())
		}
	}
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler(logger *logging.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}
