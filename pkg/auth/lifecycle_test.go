package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/agendify/pkg/model"
)

var testNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type fakeExchange struct {
	calls atomic.Int32
	err   error
	token string
}

func (f *fakeExchange) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return Grant{}, f.err
	}
	// Widen the window in which a second caller could race this refresh.
	time.Sleep(20 * time.Millisecond)
	return Grant{AccessToken: fmt.Sprintf("%s-%d", f.token, n), ExpiresAt: testNow.Add(time.Hour)}, nil
}

type memStore struct {
	mu    sync.Mutex
	creds map[string]model.Credential
	saves int
}

func newMemStore() *memStore {
	return &memStore{creds: make(map[string]model.Credential)}
}

func (s *memStore) Load(ctx context.Context, userID string) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[userID]
	if !ok {
		return model.Credential{}, ErrNotFound
	}
	return c, nil
}

func (s *memStore) Save(ctx context.Context, userID string, cred model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[userID] = cred
	s.saves++
	return nil
}

func fixedClock() time.Time { return testNow }

func TestEnsureUsable_Unexpired(t *testing.T) {
	ex := &fakeExchange{token: "new"}
	l := NewLifecycle(ex).WithClock(fixedClock)
	cred := model.Credential{AccessToken: "old", RefreshToken: "r", ExpiresAt: testNow.Add(time.Minute)}

	got, refreshed, err := l.EnsureUsable(context.Background(), cred)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, cred, got)
	assert.Zero(t, ex.calls.Load())
}

func TestEnsureUsable_ExpiresExactlyNowRefreshes(t *testing.T) {
	ex := &fakeExchange{token: "new"}
	l := NewLifecycle(ex).WithClock(fixedClock)
	cred := model.Credential{AccessToken: "old", RefreshToken: "r", ExpiresAt: testNow}

	got, refreshed, err := l.EnsureUsable(context.Background(), cred)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, "new-1", got.AccessToken)
	assert.Equal(t, "r", got.RefreshToken)
	assert.Equal(t, testNow.Add(time.Hour), got.ExpiresAt)
}

func TestEnsureUsable_NoRefreshToken(t *testing.T) {
	l := NewLifecycle(&fakeExchange{}).WithClock(fixedClock)
	cred := model.Credential{AccessToken: "old", ExpiresAt: testNow.Add(-time.Minute)}

	_, _, err := l.EnsureUsable(context.Background(), cred)
	var cerr *CredentialError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, NoRefreshToken, cerr.Kind)
}

func TestEnsureUsable_Rejected(t *testing.T) {
	ex := &fakeExchange{err: fmt.Errorf("%w: invalid_grant", ErrRejected)}
	l := NewLifecycle(ex).WithClock(fixedClock)
	cred := model.Credential{AccessToken: "old", RefreshToken: "r", ExpiresAt: testNow.Add(-time.Minute)}

	_, _, err := l.EnsureUsable(context.Background(), cred)
	var cerr *CredentialError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, RefreshRejected, cerr.Kind)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestEnsureUsable_TransportFailureIsNotRejection(t *testing.T) {
	ex := &fakeExchange{err: errors.New("connection reset")}
	l := NewLifecycle(ex).WithClock(fixedClock)
	cred := model.Credential{AccessToken: "old", RefreshToken: "r", ExpiresAt: testNow.Add(-time.Minute)}

	_, _, err := l.EnsureUsable(context.Background(), cred)
	require.Error(t, err)
	var cerr *CredentialError
	assert.False(t, errors.As(err, &cerr))
}

func TestEnsureUsable_MissingExpiry(t *testing.T) {
	l := NewLifecycle(&fakeExchange{}).WithClock(fixedClock)
	_, _, err := l.EnsureUsable(context.Background(), model.Credential{AccessToken: "a"})
	assert.ErrorIs(t, err, model.ErrMissingExpiry)
}

func TestKeeper_ConcurrentRefreshExchangesOnce(t *testing.T) {
	ex := &fakeExchange{token: "new"}
	store := newMemStore()
	store.creds["u1"] = model.Credential{AccessToken: "old", RefreshToken: "r", ExpiresAt: testNow.Add(-time.Minute)}
	k := NewKeeper(store, NewLifecycle(ex).WithClock(fixedClock))

	var wg sync.WaitGroup
	results := make([]model.Credential, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = k.Usable(context.Background(), "u1")
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), ex.calls.Load())
	assert.Equal(t, "new-1", results[0].AccessToken)
	assert.Equal(t, "new-1", results[1].AccessToken)
	assert.Equal(t, 1, store.saves)
}

type gatedExchange struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gatedExchange) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return Grant{}, ctx.Err()
	}
	return Grant{AccessToken: "fresh", ExpiresAt: testNow.Add(time.Hour)}, nil
}

func TestKeeper_CancelledCallerDoesNotFailSharedRefresh(t *testing.T) {
	ex := &gatedExchange{entered: make(chan struct{}), release: make(chan struct{})}
	store := newMemStore()
	store.creds["u1"] = model.Credential{AccessToken: "old", RefreshToken: "r", ExpiresAt: testNow.Add(-time.Minute)}
	k := NewKeeper(store, NewLifecycle(ex).WithClock(fixedClock))

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := k.Usable(ctx, "u1")
		firstErr <- err
	}()
	<-ex.entered

	type result struct {
		cred model.Credential
		err  error
	}
	second := make(chan result, 1)
	go func() {
		c, err := k.Usable(context.Background(), "u1")
		second <- result{c, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(ex.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "fresh", res.cred.AccessToken)
	assert.Equal(t, int32(1), ex.calls.Load())

	stored, err := store.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken)
}

func TestKeeper_SequentialCallsReuseSavedCredential(t *testing.T) {
	ex := &fakeExchange{token: "new"}
	store := newMemStore()
	store.creds["u1"] = model.Credential{AccessToken: "old", RefreshToken: "r", ExpiresAt: testNow.Add(-time.Minute)}
	k := NewKeeper(store, NewLifecycle(ex).WithClock(fixedClock))

	for range 3 {
		_, err := k.Usable(context.Background(), "u1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), ex.calls.Load())
}

func TestKeeper_MissingCredential(t *testing.T) {
	k := NewKeeper(newMemStore(), NewLifecycle(&fakeExchange{}).WithClock(fixedClock))
	_, err := k.Usable(context.Background(), "nobody")
	var cerr *CredentialError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, NoCredential, cerr.Kind)
}

func TestKeeper_Invalidate(t *testing.T) {
	store := newMemStore()
	store.creds["u1"] = model.Credential{AccessToken: "tok", RefreshToken: "r", ExpiresAt: testNow.Add(time.Hour)}
	k := NewKeeper(store, NewLifecycle(&fakeExchange{}).WithClock(fixedClock))

	require.NoError(t, k.Invalidate(context.Background(), "u1", "other"))
	assert.Equal(t, testNow.Add(time.Hour), store.creds["u1"].ExpiresAt, "a replaced token is left alone")

	require.NoError(t, k.Invalidate(context.Background(), "u1", "tok"))
	assert.Equal(t, testNow, store.creds["u1"].ExpiresAt)
	assert.Equal(t, "tok", store.creds["u1"].AccessToken)
	assert.NoError(t, store.creds["u1"].Validate())
}

func TestKeeper_EnsureReportsRefresh(t *testing.T) {
	ex := &fakeExchange{token: "new"}
	store := newMemStore()
	store.creds["u1"] = model.Credential{AccessToken: "old", RefreshToken: "r", ExpiresAt: testNow.Add(-time.Minute)}
	k := NewKeeper(store, NewLifecycle(ex).WithClock(fixedClock))

	cred, refreshed, err := k.Ensure(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, "new-1", cred.AccessToken)

	_, refreshed, err = k.Ensure(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, refreshed)
}

func TestAnonymous(t *testing.T) {
	var a Anonymous
	cred, err := a.Usable(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, cred.AccessToken)
	assert.NoError(t, a.Invalidate(context.Background(), "u1", ""))
}
