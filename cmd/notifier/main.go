package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mailtriage/contracts/mq"
	"mailtriage/internal/config"
	"mailtriage/internal/httpserver"
	"mailtriage/internal/mqhandler"
	"mailtriage/internal/repository"
	"mailtriage/internal/service"
	"mailtriage/pkg/db"
	"mailtriage/pkg/logger"
	pkgmq "mailtriage/pkg/mq"
	"mailtriage/pkg/redis"
	"mailtriage/pkg/util"
)

const queueName = "notifier.notify.requested"

func main() {
	cfg := config.Load()

	log := logger.NewLogger("notifier")
	defer log.Sync()

	if cfg.Telegram.BotToken == "" {
		log.Fatal("telegram.bot_token is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	userRepo := repository.NewUserRepository(dbConn)
	if err := userRepo.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure schema", zap.Error(err))
	}

	rdb, err := redis.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()

	// DLQ 发布用
	publisher, err := pkgmq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	users := repository.NewCachedUserRepository(userRepo, rdb, cfg.Cache.UserTTL, log)
	telegram := service.NewTelegramSender(cfg.Telegram.APIBase, cfg.Telegram.BotToken, cfg.Telegram.Timeout, log)
	sender := service.NewNotificationSender(users, telegram, log)
	notifyHandler := mqhandler.NewNotifyHandler(sender, log)

	consumer, err := pkgmq.NewConsumer(cfg.MQ.URL, queueName, mq.RoutingKeyNotifyRequested, pkgmq.ConsumerOptions{
		Prefetch:   cfg.MQ.Prefetch,
		MaxRetries: cfg.MQ.MaxRetries,
		Retries:    util.NewRetryCounter(rdb, cfg.Cache.RetryTTL),
		DeadLetter: publisher,
	}, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(notifyHandler.Handle)

	go func() {
		log.Info("Starting notify.requested consumer...", zap.String("queue", queueName))
		if err := consumer.StartConsuming(ctx); err != nil {
			log.Error("notify.requested consumer stopped", zap.Error(err))
			cancel()
		}
	}()

	router := httpserver.NewRouter(map[string]httpserver.ReadinessCheck{
		"postgres": dbConn.Ping,
		"rabbitmq": func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("publisher connection closed")
			}
			return nil
		},
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("notifier is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down notifier gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("notifier shutdown complete")
}
