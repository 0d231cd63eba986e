package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"gitvault/internal/auth"
	"gitvault/internal/bucket"
	"gitvault/internal/config"
	"gitvault/internal/file"
	"gitvault/internal/logger"
	"gitvault/internal/provider"
	"gitvault/internal/ratelimit"
	"gitvault/internal/server"
	"gitvault/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logg := logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer dbPool.Close()

	gitClient, err := provider.New(cfg.GitHub, logg)
	if err != nil {
		log.Fatalf("create github client: %v", err)
	}

	userRepo := auth.NewRepository(dbPool)
	verifier := auth.NewVerifier(cfg.Auth, userRepo, logg)

	bucketRepo := bucket.NewRepository(dbPool)
	fileRepo := file.NewRepository(dbPool)

	tracker := bucket.NewTracker(bucketRepo, gitClient, logg)
	allocator := bucket.NewAllocator(tracker, bucketRepo, gitClient,
		cfg.Storage.MaxBucketSizeMB, cfg.Storage.MaxBucketNameTries, logg)
	fileService := file.NewService(fileRepo, bucketRepo, allocator, tracker, gitClient, cfg.Storage, logg)

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)

	router := server.NewRouter(server.Dependencies{
		Config:      cfg,
		DB:          dbPool,
		Provider:    gitClient,
		Verifier:    verifier,
		FileService: fileService,
		Limiter:     limiter,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logg.Info("GitVault API listening", "address", cfg.Server.Address())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logg.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Error("shutdown error", "error", err)
	}
}
