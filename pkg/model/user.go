package model

import (
	"errors"
	"time"
)

// User owns tasks and a calendar credential.
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// Credential is the OAuth access credential used against the calendar upstream.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

var ErrMissingExpiry = errors.New("credential has an access token but no expiry")

// Validate enforces that an access token never travels without its expiry.
func (c Credential) Validate() error {
	if c.AccessToken != "" && c.ExpiresAt.IsZero() {
		return ErrMissingExpiry
	}
	return nil
}

// Usable reports whether the access token is still valid at now.
func (c Credential) Usable(now time.Time) bool {
	return c.AccessToken != "" && c.ExpiresAt.After(now)
}
