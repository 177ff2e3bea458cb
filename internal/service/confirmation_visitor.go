package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/metrics"
)

// ForwardMarker records that a forwarding address was confirmed.
type ForwardMarker interface {
	MarkForwardConfirmed(ctx context.Context, email string) error
}

// ConfirmationVisitor opens forwarding confirmation links.
type ConfirmationVisitor struct {
	httpClient *http.Client
	users      ForwardMarker
	logger     *zap.Logger
}

func NewConfirmationVisitor(users ForwardMarker, timeout time.Duration, logger *zap.Logger) *ConfirmationVisitor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ConfirmationVisitor{
		// 默认 client 会跟随重定向
		httpClient: &http.Client{Timeout: timeout},
		users:      users,
		logger:     logger,
	}
}

// Visit POSTs to confirmURL and, on 200, marks email as forward-confirmed.
// Any other outcome is retryable.
func (v *ConfirmationVisitor) Visit(ctx context.Context, email, confirmURL string) error {
	log := logger.WithTrace(ctx, v.logger).With(zap.String("email", email))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, confirmURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: bad confirmation url: %v", model.ErrInvalidPayload, err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		metrics.IncrementOutboundSend("confirm_visit", "error")
		return fmt.Errorf("%w: confirmation request failed: %v", model.ErrOutboundUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.IncrementOutboundSend("confirm_visit", strconv.Itoa(resp.StatusCode))
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return fmt.Errorf("%w: confirmation returned %d: %s", model.ErrOutboundUnavailable, resp.StatusCode, snippet)
	}
	metrics.IncrementOutboundSend("confirm_visit", "success")

	if err := v.users.MarkForwardConfirmed(ctx, email); err != nil {
		return err
	}

	log.Info("Forwarding confirmed", zap.String("final_url", resp.Request.URL.String()))
	return nil
}
