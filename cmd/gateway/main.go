package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/promptgate/promptgate/internal/assets"
	"github.com/promptgate/promptgate/internal/common/config"
	"github.com/promptgate/promptgate/internal/common/logger"
	"github.com/promptgate/promptgate/internal/events/bus"
	"github.com/promptgate/promptgate/internal/gateway/api"
	"github.com/promptgate/promptgate/internal/gateway/auth"
	"github.com/promptgate/promptgate/internal/gateway/executor"
	"github.com/promptgate/promptgate/internal/history"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Promptgate gateway...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Connect event bus (in-memory when no NATS URL is configured)
	eventBus, err := bus.Provide(cfg.NATS, log)
	if err != nil {
		log.Fatal("Failed to connect event bus", zap.Error(err))
	}
	defer eventBus.Close()

	// 5. Provision agent credentials
	provisioner, err := auth.NewProvisioner(cfg.Credentials, log)
	if err != nil {
		log.Fatal("Failed to initialize credential provisioner", zap.Error(err))
	}
	state, err := provisioner.Provision(cfg.Credentials)
	if err != nil {
		// Fatal to subscription mode only; the service continues on API key.
		log.Error("Credential provisioning failed", zap.Error(err))
		if state.APIKey == "" {
			log.Fatal("No API key available to fall back to")
		}
		state.AccessToken = ""
		state.RefreshToken = ""
	}
	log.Info("Credential state ready",
		zap.String("auth_mode", string(auth.SelectMode(state, time.Now()))))

	// 6. Open the asset store
	assetStore, err := assets.Provide(cfg.Assets, log)
	if err != nil {
		log.Fatal("Failed to open asset store", zap.Error(err))
	}
	log.Info("Asset store ready", zap.String("mode", cfg.Assets.Mode))

	// 7. Open the execution history repository
	repo, err := history.Provide(ctx, cfg.History, log)
	if err != nil {
		log.Fatal("Failed to open execution history", zap.Error(err))
	}
	defer repo.Close()
	log.Info("Execution history ready", zap.String("driver", cfg.History.Driver))

	// 8. Build the executor
	exec := executor.New(cfg.Gateway, state, eventBus, repo, os.Environ(), log)
	log.Info("Executor ready",
		zap.String("agent_binary", cfg.Gateway.AgentBinary),
		zap.Duration("warn_after", cfg.Gateway.WarnAfter()),
		zap.Duration("kill_after", cfg.Gateway.KillAfter()))

	// 9. Setup HTTP server
	router := api.SetupRouter(cfg, exec, assetStore, repo, state, log)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 10. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 11. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Promptgate gateway...")

	// 12. Graceful shutdown; the window outlives the hard deadline so an
	// in-flight execution can still resolve.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Promptgate gateway stopped")
}
