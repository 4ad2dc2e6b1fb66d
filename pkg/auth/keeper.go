package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/harrisonrobin/agendify/pkg/model"
)

// refreshTimeout bounds a shared refresh once it no longer follows the caller's context.
const refreshTimeout = 30 * time.Second

// CredentialStore persists one credential per user.
type CredentialStore interface {
	Load(ctx context.Context, userID string) (model.Credential, error)
	Save(ctx context.Context, userID string, cred model.Credential) error
}

// Keeper hands out usable credentials, refreshing and persisting them as needed.
// Refreshes for the same user are collapsed into a single exchange: concurrent
// callers share the in-flight result and later callers re-load the saved credential.
type Keeper struct {
	store     CredentialStore
	lifecycle *Lifecycle
	group     singleflight.Group
	locks     sync.Map // userID -> *sync.Mutex
}

func NewKeeper(store CredentialStore, lifecycle *Lifecycle) *Keeper {
	return &Keeper{store: store, lifecycle: lifecycle}
}

func (k *Keeper) userLock(userID string) *sync.Mutex {
	mu, _ := k.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

type ensured struct {
	cred      model.Credential
	refreshed bool
}

// Usable loads the user's credential and returns it ready for use.
func (k *Keeper) Usable(ctx context.Context, userID string) (model.Credential, error) {
	cred, _, err := k.Ensure(ctx, userID)
	return cred, err
}

// Ensure is Usable that also reports whether a refresh exchange took place.
// The shared refresh outlives a cancelled caller so other waiters still get
// its result.
func (k *Keeper) Ensure(ctx context.Context, userID string) (model.Credential, bool, error) {
	ch := k.group.DoChan(userID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		mu := k.userLock(userID)
		mu.Lock()
		defer mu.Unlock()

		cred, err := k.store.Load(fctx, userID)
		if errors.Is(err, ErrNotFound) {
			return nil, &CredentialError{Kind: NoCredential, Err: err}
		}
		if err != nil {
			return nil, fmt.Errorf("load credential: %w", err)
		}

		fresh, refreshed, err := k.lifecycle.EnsureUsable(fctx, cred)
		if err != nil {
			return nil, err
		}
		if refreshed {
			if err := k.store.Save(fctx, userID, fresh); err != nil {
				return nil, fmt.Errorf("save refreshed credential: %w", err)
			}
			slog.Info("credential refreshed", "user_id", userID, "expires_at", fresh.ExpiresAt)
		}
		return ensured{cred: fresh, refreshed: refreshed}, nil
	})

	select {
	case <-ctx.Done():
		return model.Credential{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.Credential{}, false, res.Err
		}
		e := res.Val.(ensured)
		return e.cred, e.refreshed, nil
	}
}

// Invalidate marks the stored credential expired if it still holds accessToken,
// so the next Usable call goes through a refresh. A credential that has already
// been replaced by a concurrent refresh is left untouched.
func (k *Keeper) Invalidate(ctx context.Context, userID, accessToken string) error {
	mu := k.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	cred, err := k.store.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	now := k.lifecycle.now()
	if cred.AccessToken != accessToken || !cred.ExpiresAt.After(now) {
		return nil
	}
	cred.ExpiresAt = now
	if err := k.store.Save(ctx, userID, cred); err != nil {
		return fmt.Errorf("save invalidated credential: %w", err)
	}
	slog.Warn("credential invalidated after upstream rejection", "user_id", userID)
	return nil
}

// Anonymous serves calendar sources that carry their own authorization,
// such as a secret feed URL.
type Anonymous struct{}

func (Anonymous) Usable(context.Context, string) (model.Credential, error) {
	return model.Credential{}, nil
}

func (Anonymous) Invalidate(context.Context, string, string) error { return nil }
