package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkuznetsov/link-registry/internal/config"
	"github.com/dkuznetsov/link-registry/internal/handler"
	"github.com/dkuznetsov/link-registry/internal/middleware"
	"github.com/dkuznetsov/link-registry/internal/preview"
	"github.com/dkuznetsov/link-registry/internal/repository"
	"github.com/dkuznetsov/link-registry/internal/rpcserver"
	"github.com/dkuznetsov/link-registry/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Подключение к Redis (кэш превью)
	redis, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Инициализация репозиториев
	linkRepo := repository.NewLinkRepository(db)
	userRepo := repository.NewUserRepository(db)
	previewCache := repository.NewPreviewCache(redis)

	// Фасад реестра и сервис превью
	registry := service.NewRegistry(linkRepo, logger)
	previews := preview.NewService(previewCache, logger)

	// Рекордер доступов (Worker Pool)
	recorder := service.NewAccessRecorder(linkRepo, logger)
	recorder.Start()
	defer recorder.Stop()

	// Middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	defer rateLimiter.Close()

	var apiAuth gin.HandlerFunc
	if len(cfg.Auth.APITokens) > 0 {
		apiAuth = middleware.RequireToken(cfg.Auth.APITokens)
		logger.Info("API token authentication enabled", zap.Int("tokens_count", len(cfg.Auth.APITokens)))
	}

	// RPC фронтенд
	rpcSrv, err := rpcserver.New(registry, userRepo, logger)
	if err != nil {
		logger.Fatal("Failed to create RPC server", zap.Error(err))
	}
	if err := rpcSrv.Start(":" + cfg.App.RPCPort); err != nil {
		logger.Fatal("Failed to start RPC server", zap.Error(err))
	}
	defer rpcSrv.Stop()

	// Настройка роутера
	router := handler.NewRouter(registry, recorder, previews, rateLimiter, apiAuth, cfg.App.BaseURL, logger)

	// Запуск HTTP сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown: сначала фронтенды, потом рекордер (через defer)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
