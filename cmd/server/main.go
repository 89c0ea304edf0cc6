package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"campusai/internal/account"
	"campusai/internal/agent"
	"campusai/internal/config"
	"campusai/internal/knowledge"
	"campusai/internal/server"
	"campusai/internal/storage"
	"campusai/internal/util"
	"campusai/pkg/ai"
	"campusai/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel)

	kb, err := knowledge.Load(cfg.DataDir)
	if err != nil {
		logger.Error("failed to load knowledge base", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	if kb.Empty() {
		logger.Warn("knowledge base is empty, answers will not be document-grounded", "dir", cfg.DataDir)
	} else {
		logger.Info("knowledge base loaded", "dir", cfg.DataDir, "files", kb.Files())
	}

	client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
	if err != nil {
		logger.Error("failed to init gemini client", "err", err)
		os.Exit(1)
	}
	gen := ai.NewGeminiGenerator(client, cfg.Model)

	// Store failures degrade to memory-only operation: chat keeps working,
	// accounts and persistence do not.
	var dataStore store.Store
	gormStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		logger.Warn("database unavailable, running without persistence", "err", err)
	} else {
		dataStore = gormStore
	}

	var accounts *account.Service
	if dataStore != nil {
		sessions, err := newSessionStore(cfg, dataStore)
		if err != nil {
			logger.Error("failed to init session store", "strategy", cfg.SessionStrategy, "err", err)
			os.Exit(1)
		}
		accounts, err = account.New(dataStore, sessions)
		if err != nil {
			logger.Error("failed to init account service", "err", err)
			os.Exit(1)
		}
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Warn("object storage unavailable, transcript images stay in memory", "err", err)
		} else {
			objects = minioStore
		}
	}

	assistant, err := agent.New(gen, gen, kb, dataStore)
	if err != nil {
		logger.Error("failed to init agent", "err", err)
		os.Exit(1)
	}

	httpServer, err := server.New(server.Config{
		Agent:                    assistant,
		Accounts:                 accounts,
		Store:                    dataStore,
		Objects:                  objects,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		SignupRateLimitPerMinute: cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:  cfg.LoginRateLimitPerMinute,
	})
	if err != nil {
		logger.Error("failed to init http server", "err", err)
		os.Exit(1)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("campusai server listening", "addr", addr, "model", cfg.Model)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func newSessionStore(cfg config.FileConfig, dataStore store.Store) (store.SessionStore, error) {
	switch cfg.SessionStrategy {
	case "redis":
		return store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, 24*time.Hour), nil
	case "jwt":
		return store.NewJWTSessionStore(cfg.JWTSecret, 24*time.Hour)
	default:
		if mem, ok := dataStore.(store.SessionStore); ok {
			return mem, nil
		}
		return store.NewMemoryStore(), nil
	}
}
