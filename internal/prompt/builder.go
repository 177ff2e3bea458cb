// Package prompt renders normalized emails into bounded classification prompts.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"mailtriage/internal/model"
)

// DefaultMaxTokens is the token budget used when none is configured.
const DefaultMaxTokens = 4000

// charsPerToken 粗略估算：一个 token 约 4 个字符
const charsPerToken = 4

type Builder struct {
	template  string
	maxTokens int
}

// NewBuilder returns a Builder for template. maxTokens <= 0 selects
// DefaultMaxTokens.
func NewBuilder(template string, maxTokens int) *Builder {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Builder{template: template, maxTokens: maxTokens}
}

// NewVariantBuilder returns a Builder for one of the built-in templates.
func NewVariantBuilder(v Variant, maxTokens int) (*Builder, error) {
	tmpl, ok := builtins[v]
	if !ok {
		return nil, fmt.Errorf("unknown prompt variant %q", v)
	}
	return NewBuilder(tmpl, maxTokens), nil
}

// LoadTemplate reads a custom template from path.
func LoadTemplate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt template: %w", err)
	}
	return string(data), nil
}

// MaxTokens is the budget the prompt was sized for.
func (b *Builder) MaxTokens() int {
	return b.maxTokens
}

// Build substitutes the email into the template and truncates the rendered
// prompt to maxTokens*4 characters.
func (b *Builder) Build(email model.NormalizedEmail) string {
	r := strings.NewReplacer(
		"{from}", strings.ToLower(strings.TrimSpace(email.FromAddress)),
		"{subject}", email.Subject,
		"{body}", email.Body,
	)
	return truncate(r.Replace(b.template), b.maxTokens*charsPerToken)
}

// truncate 按字符（rune）截断，避免切断多字节字符
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
