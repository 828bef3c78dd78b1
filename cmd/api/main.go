package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/tinylink/internal/config"
	"github.com/SergeiKhy/tinylink/internal/handler"
	"github.com/SergeiKhy/tinylink/internal/migrations"
	"github.com/SergeiKhy/tinylink/internal/repository"
	"github.com/SergeiKhy/tinylink/internal/service"
	"github.com/SergeiKhy/tinylink/internal/shortcode"
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
	logger, err := newLogger(cfg.App)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	if !cfg.App.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Подключение к хранилищу
	linkRepo, closeStorage, err := openStorage(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}
	defer closeStorage()

	generator, err := shortcode.NewRandomGenerator(cfg.Codes.Length)
	if err != nil {
		logger.Fatal("Failed to init code generator", zap.Error(err))
	}

	var checker service.ReachabilityChecker
	if cfg.Reachability.Enabled {
		checker = service.NewReachabilityChecker(service.ReachabilityConfig{
			Timeout:           cfg.Reachability.Timeout,
			RequestsPerSecond: cfg.Reachability.RequestsPerSecond,
			AllowPrivate:      cfg.Reachability.AllowPrivate,
		}, logger)
		logger.Info("Target reachability check enabled")
	}

	// Инициализация процессора кликов (Worker Pool)
	clickProcessor := service.NewClickProcessor(linkRepo, service.ClickProcessorConfig{
		Workers:      cfg.Clicks.Workers,
		QueueSize:    cfg.Clicks.QueueSize,
		WriteTimeout: cfg.Clicks.WriteTimeout,
		WaitTimeout:  cfg.Clicks.WaitTimeout,
	}, logger)
	clickProcessor.Start()
	defer clickProcessor.Stop()

	// Инициализация сервиса
	linkService, err := service.NewLinkService(linkRepo, service.LinkServiceOptions{
		Generator:      generator,
		Checker:        checker,
		ClickProcessor: clickProcessor,
		MaxAttempts:    cfg.Codes.MaxAttempts,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Failed to init link service", zap.Error(err))
	}

	// Настройка роутера
	router := handler.NewRouter(linkService, clickProcessor, handler.RouterConfig{
		BaseURL:        cfg.App.BaseURL,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting",
			zap.String("port", cfg.App.Port),
			zap.String("backend", cfg.Storage.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Сначала дожидаемся текущих запросов, потом deferred Stop процессора и закрытие хранилища
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg config.AppConfig) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStorage открывает выбранный бэкенд хранилища ссылок
func openStorage(cfg *config.Config, logger *zap.Logger) (repository.LinkRepository, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.Info("Using in-memory storage", zap.Int("shards", cfg.Storage.Shards))
		return repository.NewMemoryLinkRepository(cfg.Storage.Shards), func() {}, nil

	case config.BackendPostgres:
		if cfg.DB.AutoMigrate {
			if err := migrations.Run(cfg.DB.DSN(), logger); err != nil {
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		db, err := repository.NewPostgresDB(context.Background(), cfg.DB, logger)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewLinkRepository(db), db.Close, nil

	case config.BackendRedis:
		rdb, err := repository.NewRedisClient(context.Background(), cfg.Redis, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("Failed to close Redis", zap.Error(err))
			}
		}
		return repository.NewRedisLinkRepository(rdb, cfg.Redis.KeyPrefix), closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
