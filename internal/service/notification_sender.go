package service

import (
	"context"

	"go.uber.org/zap"

	mqcontracts "mailtriage/contracts/mq"
	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
)

// UserDirectory resolves a user by email; (nil, nil) means unknown.
type UserDirectory interface {
	Resolve(ctx context.Context, email string) (*model.KnownUser, error)
}

// Messenger sends text to a chat.
type Messenger interface {
	Send(ctx context.Context, chatID, text string) error
}

type NotificationSender struct {
	users     UserDirectory
	messenger Messenger
	logger    *zap.Logger
}

func NewNotificationSender(users UserDirectory, messenger Messenger, logger *zap.Logger) *NotificationSender {
	return &NotificationSender{users: users, messenger: messenger, logger: logger}
}

// Deliver sends p to the user's linked chat. Users that are unknown or have
// no linked chat are skipped without error.
func (s *NotificationSender) Deliver(ctx context.Context, p mqcontracts.NotifyRequestedPayload) error {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("user_email", p.UserEmail))

	user, err := s.users.Resolve(ctx, p.UserEmail)
	if err != nil {
		return err
	}
	if user == nil {
		log.Warn("No user found, skipping notification")
		return nil
	}
	if user.MessagingID == "" {
		log.Warn("User has no linked chat, skipping notification")
		return nil
	}

	if err := s.messenger.Send(ctx, user.MessagingID, p.Text); err != nil {
		return err
	}

	log.Info("Notification sent successfully")
	return nil
}
