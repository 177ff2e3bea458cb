package service

import (
	"context"
	"fmt"

	mqcontracts "mailtriage/contracts/mq"
	"mailtriage/internal/model"
	"mailtriage/pkg/trace"
)

// EventWriter is implemented by outbox.Repository.
type EventWriter interface {
	Insert(ctx context.Context, routingKey, traceID string, payload any) (int64, error)
}

// OutboxOutbound records routing decisions in the outbox table. The
// outbox dispatcher publishes them to the queue afterwards.
type OutboxOutbound struct {
	events EventWriter
}

func NewOutboxOutbound(events EventWriter) *OutboxOutbound {
	return &OutboxOutbound{events: events}
}

func (o *OutboxOutbound) Notify(ctx context.Context, d model.Notify) error {
	payload := mqcontracts.NotifyRequestedPayload{UserEmail: d.UserEmail, Text: d.Text}
	return o.insert(ctx, mqcontracts.RoutingKeyNotifyRequested, payload)
}

func (o *OutboxOutbound) ConfirmForward(ctx context.Context, d model.ConfirmForward) error {
	payload := mqcontracts.ForwardConfirmPayload{Email: d.Email, URL: d.URL}
	return o.insert(ctx, mqcontracts.RoutingKeyForwardConfirm, payload)
}

func (o *OutboxOutbound) insert(ctx context.Context, routingKey string, payload any) error {
	if _, err := o.events.Insert(ctx, routingKey, trace.FromContext(ctx), payload); err != nil {
		return fmt.Errorf("%w: outbox %s: %v", model.ErrOutboundUnavailable, routingKey, err)
	}
	return nil
}
