package classifier

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
)

// Model completes a prompt. Implementations wrap transport failures in
// model.ErrModelInvocation.
type Model interface {
	Complete(ctx context.Context, req model.CompletionRequest) (string, error)
}

// PromptBuilder renders an email into a prompt.
type PromptBuilder interface {
	Build(email model.NormalizedEmail) string
	MaxTokens() int
}

type Classifier struct {
	prompts PromptBuilder
	model   Model
	logger  *zap.Logger
}

func NewClassifier(prompts PromptBuilder, m Model, logger *zap.Logger) *Classifier {
	return &Classifier{prompts: prompts, model: m, logger: logger}
}

// Classify prompts the model with email at temperature 0 and parses its reply.
func (c *Classifier) Classify(ctx context.Context, email model.NormalizedEmail) (model.Result, error) {
	log := logger.WithTrace(ctx, c.logger)

	text, err := c.model.Complete(ctx, model.CompletionRequest{
		Prompt:      c.prompts.Build(email),
		MaxTokens:   c.prompts.MaxTokens(),
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	result, err := Parse(text)
	if err != nil {
		log.Warn("Model response unparsable",
			zap.String("from", email.FromAddress),
			zap.String("response", truncateForLog(text)),
			zap.Error(err),
		)
		return nil, err
	}
	return result, nil
}

// truncateForLog 按 rune 截断，避免日志中出现非法 UTF-8
func truncateForLog(s string) string {
	const limit = 300
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
