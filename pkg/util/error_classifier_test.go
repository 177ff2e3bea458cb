package util

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"

	"mailtriage/pkg/circuitbreaker"
)

type kindErr struct {
	retry bool
	kind  string
}

func (e kindErr) Error() string   { return e.kind }
func (e kindErr) Retryable() bool { return e.retry }
func (e kindErr) Kind() string    { return e.kind }

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		kind      string
	}{
		{"nil", nil, false, ""},
		{"declared terminal", fmt.Errorf("wrap: %w", kindErr{false, "malformed_message"}), false, "malformed_message"},
		{"declared retryable", fmt.Errorf("wrap: %w", kindErr{true, "model_invocation"}), true, "model_invocation"},
		{"circuit open", fmt.Errorf("call: %w", circuitbreaker.ErrCircuitBreakerOpen), true, "circuit_open"},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), true, "timeout"},
		{"canceled", fmt.Errorf("get raw/a.eml: %w", context.Canceled), true, "context_canceled"},
		{"pg no rows", fmt.Errorf("lookup: %w", pgx.ErrNoRows), false, "not_found"},
		{"mongo no documents", mongo.ErrNoDocuments, false, "not_found"},
		{"url error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("refused")}, true, "network_error"},
		{"connection text", errors.New("dial tcp: connection refused"), true, "connection_error"},
		{"duplicate text", errors.New("ERROR: duplicate key value violates unique constraint"), false, "duplicate_key"},
		{"unknown", errors.New("boom"), false, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, kind := IsRetryableError(tt.err)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 3, true))
	assert.True(t, ShouldRetry(3, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(0, 3, false))
}

func TestFormatRetryKey(t *testing.T) {
	assert.Equal(t, "retry:triage:msg-1", FormatRetryKey("triage", "msg-1", []byte("x")))

	a := FormatRetryKey("triage", "", []byte(`{"Records":[]}`))
	b := FormatRetryKey("triage", "", []byte(`{"Records":[]}`))
	c := FormatRetryKey("triage", "", []byte(`{"Records":[{}]}`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len("retry:triage:")+40)
}
