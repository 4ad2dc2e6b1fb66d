package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harrisonrobin/agendify/pkg/auth"
	"github.com/harrisonrobin/agendify/pkg/model"
)

var _ auth.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo stores one OAuth credential per user.
type CredentialRepo struct {
	db *DB
}

func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Load returns auth.ErrNotFound when the user never authorized.
func (r *CredentialRepo) Load(ctx context.Context, userID string) (model.Credential, error) {
	const query = `SELECT access_token, refresh_token, expires_at FROM credentials WHERE user_id = ?`
	var cred model.Credential
	var expiresAt string
	err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(&cred.AccessToken, &cred.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, auth.ErrNotFound
	}
	if err != nil {
		return model.Credential{}, fmt.Errorf("load credential for %q: %w", userID, err)
	}
	if cred.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return model.Credential{}, err
	}
	return cred, nil
}

// Save upserts the credential. A credential without an expiry is refused.
func (r *CredentialRepo) Save(ctx context.Context, userID string, cred model.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	const query = `INSERT INTO credentials (user_id, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`
	_, err := r.db.Writer.ExecContext(ctx, query,
		userID, cred.AccessToken, cred.RefreshToken, formatTime(cred.ExpiresAt), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save credential for %q: %w", userID, err)
	}
	return nil
}

func (r *CredentialRepo) Delete(ctx context.Context, userID string) error {
	const query = `DELETE FROM credentials WHERE user_id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("delete credential for %q: %w", userID, err)
	}
	return nil
}
