package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// defaultTokenLifetime is assumed when the token endpoint omits expires_in.
const defaultTokenLifetime = time.Hour

// Exchanger refreshes access tokens against an OAuth 2.0 token endpoint.
type Exchanger struct {
	config *oauth2.Config
	now    func() time.Time
}

func NewExchanger(config *oauth2.Config) *Exchanger {
	return &Exchanger{config: config, now: time.Now}
}

// Refresh implements TokenExchange.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	// A token without an access token is always invalid, forcing the source to refresh.
	src := e.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && isRejection(rerr) {
			return Grant{}, fmt.Errorf("%w: %s", ErrRejected, rejectionReason(rerr))
		}
		return Grant{}, err
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = e.now().Add(defaultTokenLifetime)
	}
	grant := Grant{AccessToken: tok.AccessToken, ExpiresAt: expiresAt.UTC()}
	if tok.RefreshToken != refreshToken {
		grant.RefreshToken = tok.RefreshToken
	}
	return grant, nil
}

func isRejection(rerr *oauth2.RetrieveError) bool {
	switch rerr.ErrorCode {
	case "invalid_grant", "unauthorized_client", "invalid_client":
		return true
	}
	if rerr.Response == nil {
		return false
	}
	return rerr.Response.StatusCode == http.StatusBadRequest || rerr.Response.StatusCode == http.StatusUnauthorized
}

func rejectionReason(rerr *oauth2.RetrieveError) string {
	if rerr.ErrorCode != "" {
		return rerr.ErrorCode
	}
	if rerr.Response != nil {
		return rerr.Response.Status
	}
	return "unknown"
}
