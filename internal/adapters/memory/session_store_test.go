package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
	"github.com/target/lessonhub/internal/testutil"
)

func TestSessionStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(nil)

	sess := domainauth.NewSession("sid-1", time.Now())
	sess.ReturnTo = "/account"
	sess.BeginHandshake(domainauth.ProviderGitHub, domainauth.Handshake{State: "st"})
	require.NoError(t, store.Save(ctx, *sess, time.Hour))

	got, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "/account", got.ReturnTo)

	// Mutating the returned copy must not leak into the store.
	got.EndHandshake(domainauth.ProviderGitHub)
	again, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)
	_, pending := again.PendingHandshake(domainauth.ProviderGitHub)
	assert.True(t, pending)
}

func TestSessionStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(testutil.TestTime())
	store := NewSessionStore(clock.Now)

	sess := domainauth.NewSession("sid-1", clock.Now())
	require.NoError(t, store.Save(ctx, *sess, time.Minute))

	clock.Advance(59 * time.Second)
	_, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)

	// A write pushes expiry out again.
	require.NoError(t, store.Save(ctx, *sess, time.Minute))
	clock.Advance(59 * time.Second)
	_, err = store.Get(ctx, "sid-1")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = store.Get(ctx, "sid-1")
	require.ErrorIs(t, err, ports.ErrSessionNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestSessionStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(nil)
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "a"}, time.Hour))

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "missing"))

	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
}

func TestSessionStore_SaveValidation(t *testing.T) {
	store := NewSessionStore(nil)
	require.Error(t, store.Save(context.Background(), domainauth.Session{}, time.Hour))
	require.Error(t, store.Save(context.Background(), domainauth.Session{ID: "a"}, 0))
}
