package service

import (
	"context"
	"fmt"

	mqcontracts "mailtriage/contracts/mq"
	"mailtriage/internal/model"
)

// Publisher publishes a JSON payload under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// QueueOutbound hands routing decisions to the notifier and the
// confirmation visitor over the message queue.
type QueueOutbound struct {
	publisher Publisher
}

func NewQueueOutbound(publisher Publisher) *QueueOutbound {
	return &QueueOutbound{publisher: publisher}
}

func (o *QueueOutbound) Notify(ctx context.Context, d model.Notify) error {
	payload := mqcontracts.NotifyRequestedPayload{UserEmail: d.UserEmail, Text: d.Text}
	if err := o.publisher.Publish(ctx, mqcontracts.RoutingKeyNotifyRequested, payload); err != nil {
		return fmt.Errorf("%w: publish %s: %v", model.ErrOutboundUnavailable, mqcontracts.RoutingKeyNotifyRequested, err)
	}
	return nil
}

func (o *QueueOutbound) ConfirmForward(ctx context.Context, d model.ConfirmForward) error {
	payload := mqcontracts.ForwardConfirmPayload{Email: d.Email, URL: d.URL}
	if err := o.publisher.Publish(ctx, mqcontracts.RoutingKeyForwardConfirm, payload); err != nil {
		return fmt.Errorf("%w: publish %s: %v", model.ErrOutboundUnavailable, mqcontracts.RoutingKeyForwardConfirm, err)
	}
	return nil
}
