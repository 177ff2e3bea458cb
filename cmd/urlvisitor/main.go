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

const queueName = "urlvisitor.forward.confirm"

func main() {
	cfg := config.Load()

	log := logger.NewLogger("urlvisitor")
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	publisher, err := pkgmq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// 确认后需要让缓存失效
	users := repository.NewCachedUserRepository(userRepo, rdb, cfg.Cache.UserTTL, log)
	visitor := service.NewConfirmationVisitor(users, cfg.Visitor.Timeout, log)
	confirmHandler := mqhandler.NewConfirmHandler(visitor, log)

	consumer, err := pkgmq.NewConsumer(cfg.MQ.URL, queueName, mq.RoutingKeyForwardConfirm, pkgmq.ConsumerOptions{
		Prefetch:   cfg.MQ.Prefetch,
		MaxRetries: cfg.MQ.MaxRetries,
		Retries:    util.NewRetryCounter(rdb, cfg.Cache.RetryTTL),
		DeadLetter: publisher,
	}, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(confirmHandler.Handle)

	go func() {
		log.Info("Starting forward.confirm consumer...", zap.String("queue", queueName))
		if err := consumer.StartConsuming(ctx); err != nil {
			log.Error("forward.confirm consumer stopped", zap.Error(err))
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

	log.Info("urlvisitor is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down urlvisitor gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("urlvisitor shutdown complete")
}
