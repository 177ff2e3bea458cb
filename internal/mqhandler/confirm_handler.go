package mqhandler

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	mqcontracts "mailtriage/contracts/mq"
	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
)

type Visitor interface {
	Visit(ctx context.Context, email, confirmURL string) error
}

// ConfirmHandler consumes forward.confirm messages.
type ConfirmHandler struct {
	visitor Visitor
	logger  *zap.Logger
}

func NewConfirmHandler(visitor Visitor, logger *zap.Logger) *ConfirmHandler {
	return &ConfirmHandler{visitor: visitor, logger: logger}
}

func (h *ConfirmHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.ForwardConfirmPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		logger.WithTrace(ctx, h.logger).Error("Failed to unmarshal ForwardConfirmPayload", zap.Error(err))
		return fmt.Errorf("%w: %v", model.ErrInvalidPayload, err)
	}
	// 缺少字段：不可重试
	if p.Email == "" || p.URL == "" {
		return fmt.Errorf("%w: email and url are required", model.ErrInvalidPayload)
	}

	logger.WithTrace(ctx, h.logger).Info("Visiting forwarding confirmation", zap.String("email", p.Email))
	return h.visitor.Visit(ctx, p.Email, p.URL)
}
