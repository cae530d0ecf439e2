package services_test

import (
	"strings"
	"testing"
	"time"

	services "github.com/pewpi/go-services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore_RequiresInitialize(t *testing.T) {
	store := services.NewTokenStore()

	_, err := store.CreateToken("session", nil, time.Hour)
	assert.ErrorIs(t, err, services.ErrNotInitialized)

	_, err = store.ValidateToken("tok_missing")
	assert.ErrorIs(t, err, services.ErrNotInitialized)

	_, err = store.GetToken("tok_missing")
	assert.ErrorIs(t, err, services.ErrNotInitialized)

	_, err = store.RevokeToken("tok_missing")
	assert.ErrorIs(t, err, services.ErrNotInitialized)

	_, err = store.CleanupExpiredTokens()
	assert.ErrorIs(t, err, services.ErrNotInitialized)
}

func TestTokenStore_InitializeIsIdempotent(t *testing.T) {
	store := services.NewTokenStore()
	require.NoError(t, store.Initialize())

	token, err := store.CreateToken("session", nil, time.Hour)
	require.NoError(t, err)

	// A defensive re-initialize must not wipe live tokens.
	require.NoError(t, store.Initialize())

	valid, err := store.ValidateToken(token.ID)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestTokenStore_CreateToken(t *testing.T) {
	clock := newTestClock()
	store := services.NewTokenStore(services.WithTokenClock(clock.Now))
	require.NoError(t, store.Initialize())

	t.Run("returns id, value, type and expiry", func(t *testing.T) {
		token, err := store.CreateToken("session", map[string]any{"userId": "usr_1"}, time.Hour)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(token.ID, services.TokenIDPrefix))
		assert.NotEmpty(t, token.Value)
		assert.Equal(t, "session", token.Type)
		assert.Equal(t, clock.Now().Add(time.Hour), token.ExpiresAt)
	})

	t.Run("ids and values are unique", func(t *testing.T) {
		a, err := store.CreateToken("session", nil, time.Hour)
		require.NoError(t, err)
		b, err := store.CreateToken("session", nil, time.Hour)
		require.NoError(t, err)

		assert.NotEqual(t, a.ID, b.ID)
		assert.NotEqual(t, a.Value, b.Value)
	})

	t.Run("works with the fallback generator", func(t *testing.T) {
		weak := services.NewTokenStore(services.WithValueGenerator(services.NewFallbackGenerator()))
		require.NoError(t, weak.Initialize())

		token, err := weak.CreateToken("session", nil, time.Hour)
		require.NoError(t, err)
		assert.NotEmpty(t, token.Value)
	})
}

func TestTokenStore_ValidateToken(t *testing.T) {
	clock := newTestClock()
	store := services.NewTokenStore(services.WithTokenClock(clock.Now))
	require.NoError(t, store.Initialize())

	t.Run("unknown id is invalid", func(t *testing.T) {
		valid, err := store.ValidateToken("tok_nope")
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("valid until expiry", func(t *testing.T) {
		token, err := store.CreateToken("session", nil, time.Hour)
		require.NoError(t, err)

		valid, err := store.ValidateToken(token.ID)
		require.NoError(t, err)
		assert.True(t, valid)

		clock.Advance(2 * time.Hour)

		valid, err = store.ValidateToken(token.ID)
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("expiry is monotonic even when the clock rewinds", func(t *testing.T) {
		token, err := store.CreateToken("session", nil, time.Minute)
		require.NoError(t, err)

		clock.Advance(5 * time.Minute)
		valid, err := store.ValidateToken(token.ID)
		require.NoError(t, err)
		require.False(t, valid)

		// Observed-expired flips the record permanently.
		clock.Rewind(time.Hour)
		valid, err = store.ValidateToken(token.ID)
		require.NoError(t, err)
		assert.False(t, valid)
	})
}

func TestTokenStore_GetToken(t *testing.T) {
	clock := newTestClock()
	store := services.NewTokenStore(services.WithTokenClock(clock.Now))
	require.NoError(t, store.Initialize())

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.GetToken("tok_nope")
		assert.ErrorIs(t, err, services.ErrTokenNotFound)
	})

	t.Run("snapshot recomputes validity and hides the value", func(t *testing.T) {
		issued, err := store.CreateToken("session", map[string]any{"userId": "usr_1"}, time.Minute)
		require.NoError(t, err)

		snap, err := store.GetToken(issued.ID)
		require.NoError(t, err)
		assert.Equal(t, issued.ID, snap.ID)
		assert.Equal(t, "session", snap.Type)
		assert.Equal(t, "usr_1", snap.Payload["userId"])
		assert.True(t, snap.Valid)

		clock.Advance(2 * time.Minute)
		snap, err = store.GetToken(issued.ID)
		require.NoError(t, err)
		assert.False(t, snap.Valid)
	})

	t.Run("payload is a copy", func(t *testing.T) {
		issued, err := store.CreateToken("session", map[string]any{"k": "v"}, time.Hour)
		require.NoError(t, err)

		snap, err := store.GetToken(issued.ID)
		require.NoError(t, err)
		snap.Payload["k"] = "mutated"

		again, err := store.GetToken(issued.ID)
		require.NoError(t, err)
		assert.Equal(t, "v", again.Payload["k"])
	})
}

func TestTokenStore_RevokeToken(t *testing.T) {
	store := services.NewTokenStore()
	require.NoError(t, store.Initialize())

	t.Run("unknown id", func(t *testing.T) {
		ok, err := store.RevokeToken("tok_nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("revoked token stays retrievable as invalid", func(t *testing.T) {
		token, err := store.CreateToken("session", nil, time.Hour)
		require.NoError(t, err)

		ok, err := store.RevokeToken(token.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		valid, err := store.ValidateToken(token.ID)
		require.NoError(t, err)
		assert.False(t, valid)

		snap, err := store.GetToken(token.ID)
		require.NoError(t, err)
		assert.False(t, snap.Valid)
	})
}

func TestTokenStore_CleanupExpiredTokens(t *testing.T) {
	clock := newTestClock()
	store := services.NewTokenStore(services.WithTokenClock(clock.Now))
	require.NoError(t, store.Initialize())

	short, err := store.CreateToken("session", nil, time.Minute)
	require.NoError(t, err)
	long, err := store.CreateToken("session", nil, time.Hour)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)

	removed, err := store.CleanupExpiredTokens()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetToken(short.ID)
	assert.ErrorIs(t, err, services.ErrTokenNotFound)

	valid, err := store.ValidateToken(long.ID)
	require.NoError(t, err)
	assert.True(t, valid)

	removed, err = store.CleanupExpiredTokens()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestTokenStore_Status(t *testing.T) {
	clock := newTestClock()
	store := services.NewTokenStore(services.WithTokenClock(clock.Now))

	status := store.Status()
	assert.False(t, status.Initialized)

	require.NoError(t, store.Initialize())
	_, err := store.CreateToken("session", nil, time.Minute)
	require.NoError(t, err)
	_, err = store.CreateToken("session", nil, time.Hour)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)

	status = store.Status()
	assert.True(t, status.Initialized)
	assert.Equal(t, 2, status.Counts["tokens"])
	assert.Equal(t, 1, status.Counts["valid"])
	assert.Equal(t, "token-store", status.Name)
}
