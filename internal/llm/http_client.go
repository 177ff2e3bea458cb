// Package llm implements classifier.Model against language model providers.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/circuitbreaker"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/trace"
)

// HTTPClient calls a completion endpoint that accepts
// {prompt, max_tokens, temperature} and answers with a content list.
type HTTPClient struct {
	url        string
	apiKey     string
	modelName  string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker // 熔断器
	logger     *zap.Logger
}

type HTTPConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewHTTPClient(cfg HTTPConfig, logger *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cbConfig := circuitbreaker.DefaultConfig("llm-http")
	// 连续失败3次后打开，快速失败
	cbConfig.FailureThreshold = 3

	return &HTTPClient{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		modelName:  cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		cb:         circuitbreaker.NewCircuitBreaker(cbConfig, logger),
		logger:     logger,
	}
}

type completionRequest struct {
	Model       string  `json:"model,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type completionResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete returns the text of the first content item.
func (c *HTTPClient) Complete(ctx context.Context, req model.CompletionRequest) (string, error) {
	var text string

	err := c.cb.Execute(func() error {
		start := time.Now()
		status := "success"
		defer func() {
			metrics.RecordModelCallLatency("http", status, time.Since(start))
		}()

		body, err := json.Marshal(completionRequest{
			Model:       c.modelName,
			Prompt:      req.Prompt,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		})
		if err != nil {
			status = "error"
			return err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			status = "error"
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("x-api-key", c.apiKey)
		}
		// 传播 trace_id
		if traceID := trace.FromContext(ctx); traceID != "" {
			httpReq.Header.Set(trace.HeaderName, traceID)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			status = "error"
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			status = strconv.Itoa(resp.StatusCode)
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
			return fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, snippet)
		}

		var out completionResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			status = "decode_error"
			return fmt.Errorf("decode model response: %w", err)
		}
		if len(out.Content) > 0 {
			text = out.Content[0].Text
		}
		return nil
	})
	if err != nil {
		c.logger.Error("Model call failed", zap.String("provider", "http"), zap.Error(err))
		return "", fmt.Errorf("%w: %v", model.ErrModelInvocation, err)
	}

	return text, nil
}
