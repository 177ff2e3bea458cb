package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/circuitbreaker"
	"mailtriage/pkg/metrics"
)

const DefaultTelegramAPIBase = "https://api.telegram.org"

// TelegramSender delivers text messages through the Telegram Bot API.
type TelegramSender struct {
	apiBase    string
	token      string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewTelegramSender(apiBase, token string, timeout time.Duration, logger *zap.Logger) *TelegramSender {
	if apiBase == "" {
		apiBase = DefaultTelegramAPIBase
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramSender{
		apiBase:    strings.TrimRight(apiBase, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		cb:         circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("telegram"), logger),
		logger:     logger,
	}
}

// Send posts text to chatID. Transport failures and non-2xx answers wrap
// model.ErrOutboundUnavailable.
func (s *TelegramSender) Send(ctx context.Context, chatID, text string) error {
	status := "success"
	defer func() {
		metrics.IncrementOutboundSend("telegram", status)
	}()

	err := s.cb.Execute(func() error {
		form := url.Values{}
		form.Set("chat_id", chatID)
		form.Set("text", text)

		endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.token)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			// url.Error 会带上完整 URL（包括 token），这里只保留原因
			var ue *url.Error
			if errors.As(err, &ue) {
				return fmt.Errorf("telegram request failed: %w", ue.Err)
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
			status = strconv.Itoa(resp.StatusCode)
			return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, snippet)
		}
		return nil
	})
	if err != nil {
		if status == "success" {
			status = "error"
		}
		return fmt.Errorf("%w: %v", model.ErrOutboundUnavailable, err)
	}
	return nil
}
