package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/botloft/botloft/api"
	"github.com/botloft/botloft/audit"
	"github.com/botloft/botloft/config"
	"github.com/botloft/botloft/hub"
	"github.com/botloft/botloft/redisd"
	"github.com/botloft/botloft/registry"
	"github.com/botloft/botloft/supervisor"
)

func main() {
	configPath := flag.String("config", "botloft.yaml", "path to the daemon configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	logger.Info("Starting botloft instance supervisor")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error("Failed to create data directory", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	store, err := registry.Open(filepath.Join(cfg.DataDir, "botloft.db"))
	if err != nil {
		logger.Error("Failed to open instance registry", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	auditLog, err := audit.NewLogger(store.DB())
	if err != nil {
		logger.Error("Failed to initialize audit log", "error", err)
		os.Exit(1)
	}

	go auditRetention(auditLog, logger)

	h := hub.New(logger)
	redis := redisd.New(cfg.Redis.Binary, cfg.Redis.Port, store, logger)
	sup := supervisor.New(store, h, redis, cfg.ToolDirs, logger)

	autoStart(store, sup, logger)

	server := api.New(cfg.ListenAddr, store, sup, h, redis, auditLog, logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-errChan:
		logger.Error("API server failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	sup.Shutdown()
	if err := redis.Stop(); err != nil && !errors.Is(err, redisd.ErrNotRunning) {
		logger.Warn("Failed to stop shared redis-server on shutdown", "error", err)
	}

	logger.Info("Shutdown complete")
}

const auditRetentionPeriod = 30 * 24 * time.Hour

// auditRetention prunes audit events past the retention period, once at
// startup and then daily.
func auditRetention(auditLog *audit.Logger, logger *slog.Logger) {
	for {
		deleted, err := auditLog.DeleteOldEvents(auditRetentionPeriod)
		if err != nil {
			logger.Warn("Audit retention sweep failed", "error", err)
		} else if deleted > 0 {
			logger.Info("Pruned old audit events", "deleted", deleted)
		}
		time.Sleep(24 * time.Hour)
	}
}

// autoStart launches every instance whose record carries the auto-start
// flag. Failures are logged and skipped; one broken instance must not block
// the daemon.
func autoStart(store *registry.Store, sup *supervisor.Supervisor, logger *slog.Logger) {
	records, err := store.List()
	if err != nil {
		logger.Error("Failed to list instances for auto-start", "error", err)
		return
	}
	for _, rec := range records {
		if !rec.AutoStart {
			continue
		}
		logger.Info("Auto-starting instance", "instance", rec.Name)
		if err := sup.Start(rec.ID); err != nil {
			logger.Error("Auto-start failed", "instance", rec.Name, "error", err)
		}
	}
}
