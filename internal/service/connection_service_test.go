package service

import (
	"context"
	"errors"
	"testing"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnectionService(repo *memConnections, providers ...platform.OAuth2Provider) ConnectionService {
	return NewConnectionService(repo, platform.NewProviders(providers...), testCipher())
}

func TestConnectionServiceList(t *testing.T) {
	repo := newMemConnections()
	seedOAuth2(t, repo, "u1", models.PlatformLinkedIn, "a", "t")
	seedOAuth2(t, repo, "u1", models.PlatformTiktok, "b", "t")
	seedOAuth2(t, repo, "u2", models.PlatformLinkedIn, "c", "t")
	svc := newTestConnectionService(repo)

	all, err := svc.List(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	linkedin, err := svc.List(context.Background(), "u1", models.PlatformLinkedIn)
	require.NoError(t, err)
	require.Len(t, linkedin, 1)
	assert.Equal(t, "a", linkedin[0].ExternalAccountID)

	_, err = svc.List(context.Background(), "u1", "myspace")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestConnectionServiceSetPrimary(t *testing.T) {
	ctx := context.Background()
	repo := newMemConnections()
	first := seedOAuth2(t, repo, "u1", models.PlatformLinkedIn, "a", "t")
	second := seedOAuth2(t, repo, "u1", models.PlatformLinkedIn, "b", "t")
	foreign := seedOAuth2(t, repo, "u2", models.PlatformLinkedIn, "c", "t")
	svc := newTestConnectionService(repo)

	require.NoError(t, svc.SetPrimary(ctx, "u1", second))

	conn, err := repo.GetPrimary(ctx, "u1", models.PlatformLinkedIn)
	require.NoError(t, err)
	assert.Equal(t, second, conn.ID)
	assert.Equal(t, 1, repo.primaries("u1", models.PlatformLinkedIn))

	assert.ErrorIs(t, svc.SetPrimary(ctx, "u1", foreign), ErrForbidden)
	assert.ErrorIs(t, svc.SetPrimary(ctx, "u1", "missing"), ErrNotFound)

	other, err := repo.GetByID(ctx, first)
	require.NoError(t, err)
	assert.False(t, other.IsPrimary)
}

func TestConnectionServiceDelete(t *testing.T) {
	ctx := context.Background()
	repo := newMemConnections()
	tiktok := &revokingProvider{fakeProvider: &fakeProvider{name: models.PlatformTiktok}}
	first := seedOAuth2(t, repo, "u1", models.PlatformTiktok, "a", "token-a")
	second := seedOAuth2(t, repo, "u1", models.PlatformTiktok, "b", "token-b")
	foreign := seedOAuth2(t, repo, "u2", models.PlatformTiktok, "c", "token-c")
	svc := newTestConnectionService(repo, tiktok)

	require.NoError(t, svc.Delete(ctx, "u1", first))
	assert.Equal(t, []string{"token-a"}, tiktok.revoked)

	conn, err := repo.GetPrimary(ctx, "u1", models.PlatformTiktok)
	require.NoError(t, err)
	assert.Equal(t, second, conn.ID)

	assert.ErrorIs(t, svc.Delete(ctx, "u1", foreign), ErrForbidden)
	assert.NoError(t, svc.Delete(ctx, "u1", first))
}

func TestConnectionServiceDeleteSurvivesRevokeFailure(t *testing.T) {
	ctx := context.Background()
	repo := newMemConnections()
	tiktok := &revokingProvider{fakeProvider: &fakeProvider{name: models.PlatformTiktok}, err: errors.New("503")}
	id := seedOAuth2(t, repo, "u1", models.PlatformTiktok, "a", "token-a")
	svc := newTestConnectionService(repo, tiktok)

	require.NoError(t, svc.Delete(ctx, "u1", id))
	_, err := repo.GetByID(ctx, id)
	assert.Error(t, err)
}

func TestConnectionServiceDeleteAll(t *testing.T) {
	ctx := context.Background()
	repo := newMemConnections()
	tiktok := &revokingProvider{fakeProvider: &fakeProvider{name: models.PlatformTiktok}}
	seedOAuth2(t, repo, "u1", models.PlatformTiktok, "a", "token-a")
	seedOAuth2(t, repo, "u1", models.PlatformLinkedIn, "b", "token-b")
	seedOAuth2(t, repo, "u2", models.PlatformLinkedIn, "c", "token-c")
	svc := newTestConnectionService(repo, tiktok)

	require.NoError(t, svc.DeleteAll(ctx, "u1"))
	assert.Equal(t, []string{"token-a"}, tiktok.revoked)

	left, err := repo.List(ctx, "u1", "")
	require.NoError(t, err)
	assert.Empty(t, left)

	others, err := repo.List(ctx, "u2", "")
	require.NoError(t, err)
	assert.Len(t, others, 1)
}
