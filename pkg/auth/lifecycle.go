package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrisonrobin/agendify/pkg/model"
)

// Grant is the outcome of a successful refresh exchange.
// RefreshToken is empty unless the upstream rotated it.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenExchange trades a refresh token for a new access token.
// Implementations wrap ErrRejected when the refresh token itself is refused.
type TokenExchange interface {
	Refresh(ctx context.Context, refreshToken string) (Grant, error)
}

// Lifecycle decides whether a credential can be used as-is or must be refreshed first.
// It never persists anything.
type Lifecycle struct {
	exchange TokenExchange
	now      func() time.Time
}

func NewLifecycle(exchange TokenExchange) *Lifecycle {
	return &Lifecycle{exchange: exchange, now: time.Now}
}

// WithClock replaces the time source, mostly for tests.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

// EnsureUsable returns cred unchanged while it is unexpired, otherwise the refreshed
// credential with refreshed=true. The caller must persist a refreshed credential.
func (l *Lifecycle) EnsureUsable(ctx context.Context, cred model.Credential) (model.Credential, bool, error) {
	if err := cred.Validate(); err != nil {
		return model.Credential{}, false, err
	}
	if cred.Usable(l.now()) {
		return cred, false, nil
	}
	if cred.RefreshToken == "" {
		return model.Credential{}, false, &CredentialError{Kind: NoRefreshToken}
	}

	grant, err := l.exchange.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return model.Credential{}, false, &CredentialError{Kind: RefreshRejected, Err: err}
		}
		return model.Credential{}, false, fmt.Errorf("refresh exchange: %w", err)
	}
	if grant.AccessToken == "" || grant.ExpiresAt.IsZero() {
		return model.Credential{}, false, errors.New("refresh exchange returned an incomplete grant")
	}

	next := model.Credential{
		AccessToken:  grant.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
	}
	if grant.RefreshToken != "" {
		next.RefreshToken = grant.RefreshToken
	}
	return next, true, nil
}
