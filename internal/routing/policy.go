// Package routing decides where a classified email goes.
package routing

import (
	"context"
	"fmt"

	"mailtriage/internal/model"
)

// UserDirectory resolves recipients. Resolve returns (nil, nil) when the
// address is not a known user.
type UserDirectory interface {
	Resolve(ctx context.Context, email string) (*model.KnownUser, error)
}

type Policy struct {
	users UserDirectory
}

func NewPolicy(users UserDirectory) *Policy {
	return &Policy{users: users}
}

// Decide applies the routing rules in order:
//  1. ForwardConfirmation confirms unconditionally, without a user lookup.
//  2. Unknown recipient drops.
//  3. worth_reading=false drops.
//  4. Otherwise notify the user with subject and reason.
//
// When the model gave no target address for a forwarding confirmation the
// email's recipient is used instead.
func (p *Policy) Decide(ctx context.Context, email model.NormalizedEmail, result model.Result) (model.Decision, error) {
	switch r := result.(type) {
	case model.ForwardConfirmation:
		target := r.TargetEmail
		if target == "" {
			target = email.To
		}
		return model.ConfirmForward{Email: target, URL: r.ConfirmURL}, nil

	case model.Attention:
		user, err := p.users.Resolve(ctx, email.To)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return model.Drop{Reason: model.DropUnknownRecipient}, nil
		}
		if !r.WorthReading {
			return model.Drop{Reason: model.DropNotWorthReading}, nil
		}
		return model.Notify{UserEmail: user.Email, Text: email.Subject + "\n\n" + r.Reason}, nil

	default:
		return nil, fmt.Errorf("unsupported classification result %T", result)
	}
}
