package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"mailtriage/pkg/logger"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/trace"
	"mailtriage/pkg/util"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

// DeadLetterer receives messages that will not be retried any further.
type DeadLetterer interface {
	PublishToDLQ(ctx context.Context, routingKey string, body []byte, reason string) error
}

// RetryCounter tracks redeliveries of a message across requeues.
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type ConsumerOptions struct {
	Prefetch   int
	MaxRetries int64
	// 为空时可重试错误无限重新入队
	Retries    RetryCounter
	DeadLetter DeadLetterer
}

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger
	opts       ConsumerOptions
}

// NewConsumer creates a consumer for a specific routing key.
func NewConsumer(url, queueName, routingKey string, opts ConsumerOptions, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	c := &Consumer{
		conn:       conn,
		channel:    ch,
		routingKey: routingKey,
		logger:     logger,
		opts:       opts,
	}

	if err := c.declare(queueName); err != nil {
		c.Close()
		return nil, err
	}

	if c.opts.DeadLetter == nil {
		c.opts.DeadLetter = &channelDeadLetterer{channel: ch}
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
		zap.Int64("max_retries", opts.MaxRetries),
	)

	return c, nil
}

func (c *Consumer) declare(queueName string) error {
	if err := DeclareExchange(c.channel); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(c.channel); err != nil {
		return fmt.Errorf("failed to declare dlq exchange: %w", err)
	}

	q, err := c.channel.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(q.Name, c.routingKey, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	if _, err := DeclareDLQQueue(c.channel, queueName, c.routingKey); err != nil {
		return err
	}

	if c.opts.Prefetch > 0 {
		if err := c.channel.Qos(c.opts.Prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set qos: %w", err)
		}
	}

	c.queue = q
	return nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming consumes until ctx is cancelled or the channel closes.
// This method blocks and should be called in a goroutine.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"",
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

// handleDelivery 最安全的消费模型：保证每条消息都会被 ack 或 nack
func (c *Consumer) handleDelivery(ctx context.Context, msg amqp091.Delivery) {
	start := time.Now()
	ctx = trace.WithContext(ctx, traceIDFrom(msg))
	log := logger.WithTrace(ctx, c.logger).With(
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	log.Debug("Received message", zap.Int("message_size", len(msg.Body)))

	err := c.invoke(ctx, msg.Body)
	result := c.settle(ctx, log, msg, err)

	metrics.RecordMQConsumeLatency(c.routingKey, c.queue.Name, result, time.Since(start))
}

// invoke 执行业务处理，panic 转换为可重试错误
func (c *Consumer) invoke(ctx context.Context, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return c.handler(ctx, body)
}

// settle acks, requeues or dead-letters msg according to err and returns
// the outcome label used for metrics.
func (c *Consumer) settle(ctx context.Context, log *zap.Logger, msg amqp091.Delivery, err error) string {
	retryKey := util.FormatRetryKey(c.queue.Name, msg.MessageId, msg.Body)

	if err == nil {
		if c.opts.Retries != nil {
			_ = c.opts.Retries.Reset(ctx, retryKey)
		}
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
		return "success"
	}

	retryable, kind := util.IsRetryableError(err)
	log = log.With(zap.Error(err), zap.String("error_type", kind), zap.Bool("retryable", retryable))

	if retryable {
		count, countErr := c.retryCount(ctx, retryKey)
		if countErr != nil {
			log.Warn("Failed to read retry count", zap.NamedError("count_error", countErr))
		}
		if c.opts.Retries == nil || util.ShouldRetry(count, c.opts.MaxRetries, true) {
			log.Warn("Handler error, requeueing", zap.Int64("retry_count", count))
			if nackErr := msg.Nack(false, true); nackErr != nil {
				log.Error("Failed to nack message", zap.NamedError("nack_error", nackErr))
			}
			return "requeued"
		}
		log = log.With(zap.Int64("retry_count", count))
	}

	// 不可重试 或 超过最大重试次数 → 进入死信队列
	if dlqErr := c.opts.DeadLetter.PublishToDLQ(ctx, c.routingKey, msg.Body, err.Error()); dlqErr != nil {
		log.Error("Failed to publish to DLQ, requeueing", zap.NamedError("dlq_error", dlqErr))
		if nackErr := msg.Nack(false, true); nackErr != nil {
			log.Error("Failed to nack message", zap.NamedError("nack_error", nackErr))
		}
		return "requeued"
	}

	log.Error("Message dead-lettered")
	if c.opts.Retries != nil {
		_ = c.opts.Retries.Reset(ctx, retryKey)
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		log.Error("Failed to ack message", zap.NamedError("ack_error", ackErr))
	}
	return "dead_lettered"
}

func (c *Consumer) retryCount(ctx context.Context, key string) (int64, error) {
	if c.opts.Retries == nil {
		return 0, nil
	}
	return c.opts.Retries.IncrementAndGet(ctx, key)
}

func traceIDFrom(msg amqp091.Delivery) string {
	if v, ok := msg.Headers[trace.HeaderName].(string); ok && v != "" {
		return v
	}
	return trace.GenerateTraceID()
}

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.value)
}

// Panic 视为可重试
func (e panicError) Retryable() bool { return true }
func (e panicError) Kind() string    { return "panic" }

type channelDeadLetterer struct {
	channel *amqp091.Channel
}

func (d *channelDeadLetterer) PublishToDLQ(ctx context.Context, routingKey string, body []byte, reason string) error {
	return d.channel.PublishWithContext(
		ctx,
		DLQExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Headers:      deadLetterHeaders(reason),
		},
	)
}
