package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"huddle/internal/config"
	"huddle/internal/directory"
	"huddle/internal/httpserver"
	"huddle/internal/logger"
	"huddle/internal/notify"
	"huddle/internal/security"
	"huddle/internal/store/postgres"
	"huddle/internal/store/sqlite"
	"huddle/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		panic(err)
	}
	defer func() { _ = logger.Log.Sync() }()

	db, stores, err := openStores(cfg)
	if err != nil {
		logger.Log.Fatal("failed to open store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer db.Close()

	dir := directory.New(stores.Users, time.Duration(cfg.DirectoryTTLSeconds)*time.Second)
	hub := ws.NewHub()
	fanout := notify.New(stores.Notifications, dir, hub, cfg.FanoutWorkers, cfg.FanoutQueueSize)
	defer fanout.Close()

	tokens := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	hasher := security.NewPasswordHasher(0)
	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey))
	if err != nil {
		logger.Log.Fatal("failed to initialize encryptor", zap.Error(err))
	}

	router := httpserver.NewRouter(cfg, stores, dir, fanout, hub, tokens, hasher, encryptor)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("server listening",
			zap.String("addr", cfg.HTTPAddr()),
			zap.String("backend", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStores(cfg *config.Config) (*sql.DB, httpserver.Stores, error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, httpserver.Stores{}, err
		}
		if err := postgres.Migrate(db); err != nil {
			return nil, httpserver.Stores{}, err
		}
		return db, httpserver.Stores{
			Users:         postgres.NewUserRepo(db),
			Conversations: postgres.NewConversationRepo(db),
			Participants:  postgres.NewParticipantRepo(db),
			Messages:      postgres.NewMessageRepo(db),
			Notifications: postgres.NewNotificationRepo(db),
		}, nil
	default:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, httpserver.Stores{}, err
		}
		if err := sqlite.Migrate(db); err != nil {
			return nil, httpserver.Stores{}, err
		}
		return db, httpserver.Stores{
			Users:         sqlite.NewUserRepo(db),
			Conversations: sqlite.NewConversationRepo(db),
			Participants:  sqlite.NewParticipantRepo(db),
			Messages:      sqlite.NewMessageRepo(db),
			Notifications: sqlite.NewNotificationRepo(db),
		}, nil
	}
}
