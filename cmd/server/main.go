package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"appforge/internal/app"
	"appforge/internal/config"
	"appforge/internal/ownerlock"
	"appforge/internal/server"
	"appforge/internal/util"
	"appforge/pkg/ai"
	"appforge/pkg/runtime"
	"appforge/pkg/storage"
	"appforge/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}

	generator, err := buildGenerator(cfg, dataStore)
	if err != nil {
		log.Fatalf("failed to init generator: %v", err)
	}

	locks, err := ownerlock.NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword, "", time.Duration(cfg.OwnerLockTTLSeconds)*time.Second)
	if err != nil {
		log.Fatalf("failed to init owner locks: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:             dataStore,
		Objects:           objects,
		Generator:         generator,
		Runtime:           runtime.NewDockerRuntime(cfg.DockerHost),
		Locks:             locks,
		PreviewBaseURL:    cfg.PreviewBaseURL,
		PreviewHostPort:   cfg.PreviewHostPort,
		DefaultImage:      cfg.DefaultImage,
		FrameworkImages:   cfg.FrameworkImages,
		GenerationTimeout: time.Duration(cfg.GenerationTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                appCore,
		RedisAddr:          cfg.RedisAddr,
		RedisPassword:      cfg.RedisPassword,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("appforge server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

// buildGenerator selects the completion backend. The OpenAI-compatible
// provider resolves its API key from the secrets table, falling back to
// the environment; Ollama needs no credential.
func buildGenerator(cfg config.FileConfig, dataStore store.Store) (ai.TextGenerator, error) {
	switch cfg.GeneratorProvider {
	case "ollama":
		return ai.NewOllamaGenerator(cfg.GeneratorBaseURL, cfg.GeneratorModel), nil
	default:
		secretName := cfg.GeneratorKeySecret
		if secretName == "" {
			secretName = "OPENAI_API_KEY"
		}
		keys := app.NewStoreCredentialProvider(dataStore, secretName, os.Getenv(secretName))
		return ai.NewOpenAICompatGenerator(cfg.GeneratorBaseURL, keys, cfg.GeneratorModel), nil
	}
}
