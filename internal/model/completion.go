package model

// CompletionRequest is what the classifier sends to a language model.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}
