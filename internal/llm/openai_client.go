package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/circuitbreaker"
	"mailtriage/pkg/metrics"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client    *openai.Client
	modelName string
	cb        *circuitbreaker.CircuitBreaker
	logger    *zap.Logger
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientCfg),
		modelName: modelName,
		cb:        circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("llm-openai"), logger),
		logger:    logger,
	}
}

// Complete sends the prompt as a single user message.
func (c *OpenAIClient) Complete(ctx context.Context, req model.CompletionRequest) (string, error) {
	var text string

	temperature := float32(req.Temperature)
	if temperature == 0 {
		// temperature 带 omitempty，0 会被省略，服务端回退到默认值
		temperature = math.SmallestNonzeroFloat32
	}

	err := c.cb.Execute(func() error {
		start := time.Now()
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.modelName,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: req.Prompt,
				},
			},
			MaxTokens:   req.MaxTokens,
			Temperature: temperature,
		})
		metrics.RecordModelCallLatency("openai", statusOf(err), time.Since(start))
		if err != nil {
			return err
		}

		if len(resp.Choices) > 0 {
			text = resp.Choices[0].Message.Content
		}
		return nil
	})
	if err != nil {
		c.logger.Error("Model call failed", zap.String("provider", "openai"), zap.Error(err))
		return "", fmt.Errorf("%w: %v", model.ErrModelInvocation, err)
	}

	return text, nil
}

func statusOf(err error) string {
	if err == nil {
		return "success"
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return strconv.Itoa(apiErr.HTTPStatusCode)
	}
	return "error"
}
