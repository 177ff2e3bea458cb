package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtriage/internal/model"
)

type directory struct {
	users map[string]model.KnownUser
	err   error
	calls int
}

func (d *directory) Resolve(_ context.Context, email string) (*model.KnownUser, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	u, ok := d.users[email]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func TestDecide(t *testing.T) {
	users := &directory{users: map[string]model.KnownUser{
		"alice@example.com": {Email: "alice@example.com", MessagingID: "42"},
	}}
	p := NewPolicy(users)

	tests := []struct {
		name   string
		email  model.NormalizedEmail
		result model.Result
		want   model.Decision
	}{
		{
			name:   "forward confirmation",
			email:  model.NormalizedEmail{To: "bob@example.com"},
			result: model.ForwardConfirmation{TargetEmail: "a@gmail.com", ConfirmURL: "https://x/y"},
			want:   model.ConfirmForward{Email: "a@gmail.com", URL: "https://x/y"},
		},
		{
			name:   "forward confirmation without target uses recipient",
			email:  model.NormalizedEmail{To: "alice@example.com"},
			result: model.ForwardConfirmation{ConfirmURL: "https://x/y"},
			want:   model.ConfirmForward{Email: "alice@example.com", URL: "https://x/y"},
		},
		{
			name:   "unknown recipient",
			email:  model.NormalizedEmail{To: "bob@example.com", Subject: "Hi"},
			result: model.Attention{WorthReading: true, Reason: "important"},
			want:   model.Drop{Reason: "unknown recipient"},
		},
		{
			name:   "not worth reading",
			email:  model.NormalizedEmail{To: "alice@example.com"},
			result: model.Attention{WorthReading: false, Reason: "spam"},
			want:   model.Drop{Reason: "not worth reading"},
		},
		{
			name:   "notify",
			email:  model.NormalizedEmail{To: "alice@example.com", Subject: "Invoice"},
			result: model.Attention{WorthReading: true, Reason: "Payment due Friday"},
			want:   model.Notify{UserEmail: "alice@example.com", Text: "Invoice\n\nPayment due Friday"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Decide(context.Background(), tt.email, tt.result)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecide_ForwardSkipsLookup(t *testing.T) {
	users := &directory{err: errors.New("must not be called")}
	got, err := NewPolicy(users).Decide(context.Background(), model.NormalizedEmail{},
		model.ForwardConfirmation{TargetEmail: "a@b.c", ConfirmURL: "https://x"})
	require.NoError(t, err)
	assert.IsType(t, model.ConfirmForward{}, got)
	assert.Zero(t, users.calls)
}

func TestDecide_LookupFailurePropagates(t *testing.T) {
	users := &directory{err: fmt.Errorf("%w: timeout", model.ErrLookupUnavailable)}
	_, err := NewPolicy(users).Decide(context.Background(), model.NormalizedEmail{To: "a@b.c"},
		model.Attention{WorthReading: true})
	assert.True(t, errors.Is(err, model.ErrLookupUnavailable))
}
