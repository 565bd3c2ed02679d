package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
	"github.com/target/lessonhub/internal/testutil"
)

func newRepo() *PrincipalRepository {
	return NewPrincipalRepository(testutil.FixedTimeFunc(testutil.TestTime()))
}

func TestPrincipalRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()

	created, err := repo.Create(ctx, domainauth.Principal{ID: "p1", Email: " Ada@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.Equal(t, testutil.TestTime(), created.CreatedAt)

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	byEmail, err := repo.GetByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "p1", byEmail.ID)

	_, err = repo.Get(ctx, "nope")
	require.ErrorIs(t, err, ports.ErrPrincipalNotFound)
	_, err = repo.GetByEmail(ctx, "")
	require.ErrorIs(t, err, ports.ErrPrincipalNotFound)
}

func TestPrincipalRepository_CreateDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	_, err := repo.Create(ctx, domainauth.Principal{ID: "p1", Email: "a@example.com"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, domainauth.Principal{ID: "p2", Email: "A@example.com"})
	require.ErrorIs(t, err, ports.ErrEmailTaken)

	// Principals without email never collide.
	_, err = repo.Create(ctx, domainauth.Principal{ID: "p3"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, domainauth.Principal{ID: "p4"})
	require.NoError(t, err)
}

func TestPrincipalRepository_LinkIdentity(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	_, err := repo.Create(ctx, domainauth.Principal{ID: "p1"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, domainauth.Principal{ID: "p2"})
	require.NoError(t, err)

	ident := domainauth.ExternalIdentity{
		Provider:    domainauth.ProviderGitHub,
		Subject:     "42",
		AccessToken: "tok-1",
		Scopes:      []string{"user:email"},
	}
	require.NoError(t, repo.LinkIdentity(ctx, "p1", ident))

	owner, err := repo.GetByIdentity(ctx, domainauth.ProviderGitHub, "42")
	require.NoError(t, err)
	assert.Equal(t, "p1", owner.ID)
	assert.True(t, owner.HasScopes(domainauth.ProviderGitHub, "user:email"))

	t.Run("relink updates credential", func(t *testing.T) {
		ident.AccessToken = "tok-2"
		require.NoError(t, repo.LinkIdentity(ctx, "p1", ident))
		p, getErr := repo.Get(ctx, "p1")
		require.NoError(t, getErr)
		require.Len(t, p.Identities, 1)
		assert.Equal(t, "tok-2", p.Identities[0].AccessToken)
	})

	t.Run("other principal is rejected", func(t *testing.T) {
		err := repo.LinkIdentity(ctx, "p2", ident)
		require.ErrorIs(t, err, ports.ErrIdentityLinkedElsewhere)
	})

	t.Run("unknown principal", func(t *testing.T) {
		err := repo.LinkIdentity(ctx, "ghost", domainauth.ExternalIdentity{Provider: "github", Subject: "7"})
		require.ErrorIs(t, err, ports.ErrPrincipalNotFound)
	})
}

func TestPrincipalRepository_UnlinkIdentity(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	_, err := repo.Create(ctx, domainauth.Principal{ID: "p1"})
	require.NoError(t, err)
	require.NoError(t, repo.LinkIdentity(ctx, "p1", domainauth.ExternalIdentity{
		Provider: domainauth.ProviderGoogle, Subject: "g-1",
	}))

	require.NoError(t, repo.UnlinkIdentity(ctx, "p1", domainauth.ProviderGoogle))

	p, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, p.Identities)
	_, err = repo.GetByIdentity(ctx, domainauth.ProviderGoogle, "g-1")
	require.ErrorIs(t, err, ports.ErrPrincipalNotFound)

	// Identity is free to link to another principal now.
	_, err = repo.Create(ctx, domainauth.Principal{ID: "p2"})
	require.NoError(t, err)
	require.NoError(t, repo.LinkIdentity(ctx, "p2", domainauth.ExternalIdentity{
		Provider: domainauth.ProviderGoogle, Subject: "g-1",
	}))
}

func TestPrincipalRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	_, err := repo.Create(ctx, domainauth.Principal{ID: "p1", Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, domainauth.Principal{ID: "p2", Email: "grace@example.com"})
	require.NoError(t, err)

	name, email, hash := "Ada", "Countess@Example.com", "h"
	updated, err := repo.Update(ctx, "p1", domainauth.UpdatePrincipalRequest{Name: &name, Email: &email, PasswordHash: &hash})
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.Name)
	assert.Equal(t, "countess@example.com", updated.Email)
	assert.Equal(t, "h", updated.PasswordHash)

	_, err = repo.GetByEmail(ctx, "ada@example.com")
	require.ErrorIs(t, err, ports.ErrPrincipalNotFound, "old address is released")
	byEmail, err := repo.GetByEmail(ctx, "countess@example.com")
	require.NoError(t, err)
	assert.Equal(t, "p1", byEmail.ID)

	taken := "grace@example.com"
	_, err = repo.Update(ctx, "p1", domainauth.UpdatePrincipalRequest{Email: &taken})
	require.ErrorIs(t, err, ports.ErrEmailTaken)

	_, err = repo.Update(ctx, "nope", domainauth.UpdatePrincipalRequest{Name: &name})
	require.ErrorIs(t, err, ports.ErrPrincipalNotFound)
}

func TestPrincipalRepository_DeleteReleasesEmailAndIdentities(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	_, err := repo.Create(ctx, domainauth.Principal{ID: "p1", Email: "ada@example.com"})
	require.NoError(t, err)
	require.NoError(t, repo.LinkIdentity(ctx, "p1", domainauth.ExternalIdentity{Provider: domainauth.ProviderGitHub, Subject: "42"}))

	require.NoError(t, repo.Delete(ctx, "p1"))

	_, err = repo.Get(ctx, "p1")
	require.ErrorIs(t, err, ports.ErrPrincipalNotFound)
	_, err = repo.GetByIdentity(ctx, domainauth.ProviderGitHub, "42")
	require.ErrorIs(t, err, ports.ErrPrincipalNotFound)
	_, err = repo.Create(ctx, domainauth.Principal{ID: "p2", Email: "ada@example.com"})
	require.NoError(t, err)

	require.ErrorIs(t, repo.Delete(ctx, "p1"), ports.ErrPrincipalNotFound)
}
