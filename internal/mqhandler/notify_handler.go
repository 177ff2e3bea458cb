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

type Deliverer interface {
	Deliver(ctx context.Context, p mqcontracts.NotifyRequestedPayload) error
}

// NotifyHandler consumes notify.requested messages.
type NotifyHandler struct {
	sender Deliverer
	logger *zap.Logger
}

func NewNotifyHandler(sender Deliverer, logger *zap.Logger) *NotifyHandler {
	return &NotifyHandler{sender: sender, logger: logger}
}

func (h *NotifyHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.NotifyRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		logger.WithTrace(ctx, h.logger).Error("Failed to unmarshal NotifyRequestedPayload", zap.Error(err))
		return fmt.Errorf("%w: %v", model.ErrInvalidPayload, err)
	}
	if p.UserEmail == "" {
		return fmt.Errorf("%w: missing user_email", model.ErrInvalidPayload)
	}
	return h.sender.Deliver(ctx, p)
}
