package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mailtriage/contracts/mq"
	"mailtriage/internal/classifier"
	"mailtriage/internal/config"
	"mailtriage/internal/httpserver"
	"mailtriage/internal/llm"
	"mailtriage/internal/mqhandler"
	"mailtriage/internal/objectstore"
	"mailtriage/internal/pipeline"
	"mailtriage/internal/prompt"
	"mailtriage/internal/repository"
	"mailtriage/internal/routing"
	"mailtriage/internal/sanitizer"
	"mailtriage/internal/service"
	"mailtriage/pkg/db"
	"mailtriage/pkg/logger"
	pkgmq "mailtriage/pkg/mq"
	"mailtriage/pkg/outbox"
	"mailtriage/pkg/redis"
	"mailtriage/pkg/util"
)

const queueName = "triage.email.stored"

func main() {
	cfg := config.Load()

	log := logger.NewLogger("triage")
	defer log.Sync()

	log.Info("Starting triage...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("prompt_variant", cfg.Prompt.Variant),
	)

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

	// Redis：用户缓存 + 重试计数
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()

	// Object store
	mongoClient, err := objectstore.NewClient(ctx, cfg.Mongo, log)
	if err != nil {
		log.Fatal("Failed to init MongoDB", zap.Error(err))
	}
	defer func() {
		_ = mongoClient.Disconnect(context.Background())
	}()
	store := objectstore.NewStore(mongoClient.Database(cfg.Mongo.Database))

	// MQ Publisher
	publisher, err := pkgmq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Classifier
	prompts, err := newPromptBuilder(cfg.Prompt)
	if err != nil {
		log.Fatal("Failed to init prompt builder", zap.Error(err))
	}
	model, err := newModel(cfg.LLM, log)
	if err != nil {
		log.Fatal("Failed to init model client", zap.Error(err))
	}
	cls := classifier.NewClassifier(prompts, model, log)

	// Routing
	users := repository.NewCachedUserRepository(userRepo, rdb, cfg.Cache.UserTTL, log)
	policy := routing.NewPolicy(users)

	// Outbound
	var outbound pipeline.Outbound
	switch cfg.Outbound.Mode {
	case "", "direct":
		outbound = service.NewQueueOutbound(publisher)
	case "outbox":
		outboxRepo := outbox.NewRepository(dbConn)
		if err := outboxRepo.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to ensure outbox schema", zap.Error(err))
		}
		outbound = service.NewOutboxOutbound(outboxRepo)

		if cfg.Outbound.ReplayFailedOnStart {
			n, err := outboxRepo.ReplayFailed(ctx)
			if err != nil {
				log.Fatal("Failed to replay outbox events", zap.Error(err))
			}
			log.Info("Replayed failed outbox events", zap.Int64("count", n))
		}

		dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
			WithInterval(cfg.Outbound.DispatchInterval).
			WithBatchSize(cfg.Outbound.BatchSize).
			WithMaxRetries(cfg.Outbound.MaxRetries)
		go dispatcher.Start(ctx)
	default:
		log.Fatal("Unknown outbound mode", zap.String("mode", cfg.Outbound.Mode))
	}

	orchestrator := pipeline.NewOrchestrator(
		store,
		sanitizer.NewNormalizer(log),
		cls,
		policy,
		outbound,
		pipeline.Options{
			OutputBucket: cfg.Storage.OutputBucket,
			Concurrency:  cfg.Pipeline.Concurrency,
			UnitTimeout:  cfg.Pipeline.UnitTimeout,
		},
		log,
	)
	triageHandler := mqhandler.NewTriageHandler(orchestrator, log)

	// MQ Consumer for email.stored
	consumer, err := pkgmq.NewConsumer(cfg.MQ.URL, queueName, mq.RoutingKeyEmailStored, pkgmq.ConsumerOptions{
		Prefetch:   cfg.MQ.Prefetch,
		MaxRetries: cfg.MQ.MaxRetries,
		Retries:    util.NewRetryCounter(rdb, cfg.Cache.RetryTTL),
		DeadLetter: publisher,
	}, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(triageHandler.Handle)

	go func() {
		log.Info("Starting email.stored consumer...", zap.String("queue", queueName))
		if err := consumer.StartConsuming(ctx); err != nil {
			log.Error("email.stored consumer stopped", zap.Error(err))
			cancel()
		}
	}()

	// HTTP Server (health checks + metrics)
	router := httpserver.NewRouter(map[string]httpserver.ReadinessCheck{
		"postgres": dbConn.Ping,
		"rabbitmq": func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("publisher connection closed")
			}
			return nil
		},
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"mongo":    func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
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

	log.Info("triage is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down triage gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("triage shutdown complete")
}

func newPromptBuilder(cfg config.PromptConfig) (*prompt.Builder, error) {
	if cfg.TemplatePath != "" {
		tmpl, err := prompt.LoadTemplate(cfg.TemplatePath)
		if err != nil {
			return nil, err
		}
		return prompt.NewBuilder(tmpl, cfg.MaxTokens), nil
	}
	return prompt.NewVariantBuilder(prompt.Variant(cfg.Variant), cfg.MaxTokens)
}

func newModel(cfg config.LLMConfig, log *zap.Logger) (classifier.Model, error) {
	switch cfg.Provider {
	case "", "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("llm.url is required for the http provider")
		}
		return llm.NewHTTPClient(llm.HTTPConfig{
			URL:     cfg.URL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}, log), nil
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.URL,
			Model:   cfg.Model,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
