package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var errDownstream = errors.New("downstream 503")

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Minute
	cb := NewCircuitBreaker(cfg, zap.NewNop())

	calls := 0
	fail := func() error {
		calls++
		return errDownstream
	}

	assert.ErrorIs(t, cb.Execute(fail), errDownstream)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(fail), errDownstream)
	assert.Equal(t, StateOpen, cb.GetState())

	assert.ErrorIs(t, cb.Execute(fail), ErrCircuitBreakerOpen)
	assert.Equal(t, 2, calls)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.FailureThreshold = 2
	cb := NewCircuitBreaker(cfg, nil)

	_ = cb.Execute(func() error { return errDownstream })
	assert.NoError(t, cb.Execute(func() error { return nil }))
	_ = cb.Execute(func() error { return errDownstream })

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_IsFailureFiltersErrors(t *testing.T) {
	errBadInput := errors.New("bad input")

	cfg := DefaultConfig("test")
	cfg.FailureThreshold = 1
	cfg.IsFailure = func(err error) bool { return !errors.Is(err, errBadInput) }
	cb := NewCircuitBreaker(cfg, zap.NewNop())

	assert.ErrorIs(t, cb.Execute(func() error { return errBadInput }), errBadInput)
	assert.Equal(t, StateClosed, cb.GetState())

	_ = cb.Execute(func() error { return errDownstream })
	assert.Equal(t, StateOpen, cb.GetState())
}
