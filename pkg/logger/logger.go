package logger

import (
	"context"

	"go.uber.org/zap"

	"mailtriage/pkg/trace"
)

// NewLogger builds the production logger shared by every process.
// service 会作为固定字段写入每一条日志。
func NewLogger(service string) *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	if service != "" {
		l = l.With(zap.String("service", service))
	}
	return l
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
