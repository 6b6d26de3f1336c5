package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tastelab/cupping-rooms/internal/api"
	"github.com/tastelab/cupping-rooms/internal/auth"
	"github.com/tastelab/cupping-rooms/internal/config"
	"github.com/tastelab/cupping-rooms/internal/logging"
	"github.com/tastelab/cupping-rooms/internal/metrics"
	"github.com/tastelab/cupping-rooms/internal/repository/postgres"
	"github.com/tastelab/cupping-rooms/internal/service"
	"github.com/tastelab/cupping-rooms/internal/storage"
	"github.com/tastelab/cupping-rooms/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := postgres.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		return err
	}
	repos := postgres.NewRepositories(db)
	m := metrics.New()

	var broker websocket.Broker = websocket.NewMemoryBroker()
	if cfg.ValkeyAddr != "" {
		client, err := websocket.NewValkeyClient(cfg.ValkeyAddr, cfg.ValkeyPassword)
		if err != nil {
			return err
		}
		valkeyBroker := websocket.NewValkeyBroker(client, "", logger)
		defer valkeyBroker.Close()
		broker = valkeyBroker
		logger.Info("realtime_broker", "kind", "valkey", "addr", cfg.ValkeyAddr)
	}

	hub := websocket.NewHub(broker, service.NewRealtimeAuthorizer(repos), m, logger)
	go hub.Run()
	timers := websocket.NewTimerManager()

	deps := service.Deps{
		Repos:   repos,
		Config:  cfg,
		Events:  websocket.NewEventEmitter(hub, logger),
		Timers:  timers,
		Metrics: m,
		Logger:  logger,
	}
	if cfg.Storage.Enabled() {
		store, err := storage.NewS3Store(cfg.Storage)
		if err != nil {
			return err
		}
		deps.Photos = store
	} else {
		logger.Warn("photo_storage_disabled")
	}
	services := service.NewServices(deps)

	startup, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = services.Game.Recover(startup)
	cancel()
	if err != nil {
		return err
	}

	verifier, err := auth.NewVerifier(cfg.AuthJWTPublicKey, cfg.AuthDevSecret, cfg.AuthIssuer)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:        "0.0.0.0:" + cfg.Port,
		Handler:     api.NewRouter(services, hub, verifier, m, cfg, logger),
		ReadTimeout: 15 * time.Second,
		// Websocket connections outlive any write timeout; REST routes are
		// bounded by the router's own timeout.
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_starting", "port", cfg.Port, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("server_shutting_down")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	timers.Stop()
	hub.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Info("server_stopped")
	return nil
}
