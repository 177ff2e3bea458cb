package util

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"go.mongodb.org/mongo-driver/mongo"

	"mailtriage/pkg/circuitbreaker"
)

// retryable 由业务错误实现，显式声明是否可重试
type retryable interface {
	Retryable() bool
	Kind() string
}

// IsRetryableError determines if an error is retryable
// Returns: (isRetryable, errorType)
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	// 业务错误优先：错误自己声明的重试语义
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable(), r.Kind()
	}

	// 熔断器打开 - 下游不可用，可重试
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return true, "circuit_open"
	}

	// Context timeout - 可重试
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	// 关停时取消：消息需要重新投递
	if errors.Is(err, context.Canceled) {
		return true, "context_canceled"
	}

	// JSON decode errors - 不可重试（数据格式错误）
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return false, "json_decode_error"
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	// Database errors
	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found"
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, "not_found"
	}
	if mongo.IsDuplicateKeyError(err) {
		// 唯一约束冲突 - 不可重试（幂等性）
		return false, "duplicate_key"
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true, "storage_unavailable"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "duplicate key") {
		return false, "duplicate_key"
	}

	// Network errors - 可重试
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		// DB / MQ 连接问题 - 可重试
		return true, "connection_error"
	}

	// 默认：未知错误，保守处理 - 不重试
	return false, "unknown_error"
}

// ShouldRetry checks if an error should be retried based on retry count
func ShouldRetry(retryCount int64, maxRetries int64, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return retryCount <= maxRetries
}
