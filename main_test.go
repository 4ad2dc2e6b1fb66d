package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/agendify/pkg/auth"
)

func TestParseDue(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)

	got, err := parseDue("2024-01-02 14:30", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 14, 30, 0, 0, loc), got)

	got, err = parseDue("2024-01-02", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, loc), got)

	_, err = parseDue("tomorrow", loc)
	assert.Error(t, err)
}

func TestUnconfiguredCredentials(t *testing.T) {
	u := unconfigured{err: errors.New("oauth client id and secret are required")}
	_, err := u.Usable(context.Background(), "u1")
	var cerr *auth.CredentialError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, auth.NoCredential, cerr.Kind)
	assert.NoError(t, u.Invalidate(context.Background(), "u1", "tok"))
}
