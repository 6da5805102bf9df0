package service

import (
	"context"
	"errors"
	"testing"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseCredentialKind(t *testing.T) {
	both := &models.Connection{OAuth2AccessToken: "a", OAuth1AccessToken: "t", OAuth1TokenSecret: "s"}
	oauth2Only := &models.Connection{OAuth2AccessToken: "a"}
	oauth1Only := &models.Connection{OAuth1AccessToken: "t", OAuth1TokenSecret: "s"}

	tests := []struct {
		name       string
		platform   string
		hasMedia   bool
		conn       *models.Connection
		want       platform.CredentialKind
		capability string
	}{
		{"twitter text prefers oauth2", models.PlatformTwitter, false, both, platform.OAuth2, ""},
		{"twitter media needs oauth1", models.PlatformTwitter, true, both, platform.OAuth1, ""},
		{"twitter media without oauth1", models.PlatformTwitter, true, oauth2Only, "", CapabilityMediaUpload},
		{"twitter text falls back to oauth1", models.PlatformTwitter, false, oauth1Only, platform.OAuth1, ""},
		{"linkedin media uses oauth2", models.PlatformLinkedIn, true, oauth2Only, platform.OAuth2, ""},
		{"linkedin ignores oauth1", models.PlatformLinkedIn, false, oauth1Only, "", "oauth2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChooseCredentialKind(tt.platform, tt.hasMedia, tt.conn)
			if tt.capability != "" {
				var missing *MissingCapabilityError
				require.ErrorAs(t, err, &missing)
				assert.Equal(t, tt.capability, missing.Capability)
				assert.Equal(t, tt.platform, missing.Platform)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCredentialSelectorSelect(t *testing.T) {
	ctx := context.Background()
	repo := newMemConnections()

	primaryID, err := repo.UpsertOAuth2(ctx, repository.OAuth2Upsert{
		UserID: "u1", Platform: models.PlatformTwitter, ExternalAccountID: "42", AccessToken: "enc",
	})
	require.NoError(t, err)
	secondID, err := repo.UpsertOAuth2(ctx, repository.OAuth2Upsert{
		UserID: "u1", Platform: models.PlatformTwitter, ExternalAccountID: "43", AccessToken: "enc",
	})
	require.NoError(t, err)
	_, err = repo.UpsertOAuth1(ctx, repository.OAuth1Upsert{
		UserID: "u1", Platform: models.PlatformTwitter, ExternalAccountID: "43", AccessToken: "t", TokenSecret: "s",
	})
	require.NoError(t, err)
	otherID, err := repo.UpsertOAuth2(ctx, repository.OAuth2Upsert{
		UserID: "u2", Platform: models.PlatformTwitter, ExternalAccountID: "99", AccessToken: "enc",
	})
	require.NoError(t, err)

	selector := NewCredentialSelector(repo)

	t.Run("primary", func(t *testing.T) {
		conn, kind, err := selector.Select(ctx, models.PlatformTwitter, false, "u1", "")
		require.NoError(t, err)
		assert.Equal(t, primaryID, conn.ID)
		assert.Equal(t, platform.OAuth2, kind)
	})

	t.Run("explicit account with media", func(t *testing.T) {
		conn, kind, err := selector.Select(ctx, models.PlatformTwitter, true, "u1", secondID)
		require.NoError(t, err)
		assert.Equal(t, secondID, conn.ID)
		assert.Equal(t, platform.OAuth1, kind)
	})

	t.Run("primary without media capability", func(t *testing.T) {
		_, _, err := selector.Select(ctx, models.PlatformTwitter, true, "u1", "")
		var missing *MissingCapabilityError
		assert.ErrorAs(t, err, &missing)
	})

	t.Run("no connection for platform", func(t *testing.T) {
		_, _, err := selector.Select(ctx, models.PlatformLinkedIn, false, "u1", "")
		assert.ErrorIs(t, err, ErrNoConnection)
	})

	t.Run("another user's account", func(t *testing.T) {
		_, _, err := selector.Select(ctx, models.PlatformTwitter, false, "u1", otherID)
		assert.ErrorIs(t, err, ErrNoConnection)
	})

	t.Run("account on another platform", func(t *testing.T) {
		_, _, err := selector.Select(ctx, models.PlatformLinkedIn, false, "u1", primaryID)
		assert.ErrorIs(t, err, ErrNoConnection)
	})

	t.Run("store failure", func(t *testing.T) {
		broken := newMemConnections()
		broken.err = errors.New("connection refused")
		_, _, err := NewCredentialSelector(broken).Select(ctx, models.PlatformTwitter, false, "u1", "")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoConnection)
	})
}
