package auth

import (
	"errors"
	"fmt"
)

// CredentialErrorKind classifies why a credential could not be made usable.
type CredentialErrorKind string

const (
	NoRefreshToken  CredentialErrorKind = "no_refresh_token"
	RefreshRejected CredentialErrorKind = "refresh_rejected"
	NoCredential    CredentialErrorKind = "no_credential"
)

// CredentialError is returned when a stored credential is expired and cannot be renewed.
type CredentialError struct {
	Kind CredentialErrorKind
	Err  error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("credential: %s", e.Kind)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// ErrRejected is wrapped by TokenExchange implementations when the upstream
// refuses the refresh token (revoked, expired or already rotated).
var ErrRejected = errors.New("refresh token rejected")

// ErrNotFound is returned by credential stores when the user has never authorized.
var ErrNotFound = errors.New("credential not found")
