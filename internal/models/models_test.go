package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnection_Capabilities(t *testing.T) {
	c := Connection{OAuth2AccessToken: "enc"}
	assert.True(t, c.HasOAuth2())
	assert.False(t, c.HasOAuth1())

	c.OAuth1AccessToken = "enc1"
	assert.False(t, c.HasOAuth1(), "secret missing")

	c.OAuth1TokenSecret = "enc2"
	assert.True(t, c.HasOAuth1())
}

func TestMetadata_ValueScan(t *testing.T) {
	m := Metadata{"page_name": "Acme", "followers": float64(10)}
	v, err := m.Value()
	require.NoError(t, err)

	var out Metadata
	require.NoError(t, out.Scan(v))
	assert.Equal(t, m, out)

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)

	assert.Error(t, out.Scan(42))
}

func TestPendingRequestToken_Expired(t *testing.T) {
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p := PendingRequestToken{CreatedAt: created}

	assert.False(t, p.Expired(created.Add(14*time.Minute)))
	assert.False(t, p.Expired(created.Add(PendingTokenTTL)))
	assert.True(t, p.Expired(created.Add(PendingTokenTTL+time.Second)))
}

func TestPost_Validate(t *testing.T) {
	assert.NoError(t, Post{UserID: "u1", Content: "hello"}.Validate())
	assert.Error(t, Post{UserID: "u1"}.Validate(), "no content and no media")
	assert.Error(t, Post{Content: "hello"}.Validate(), "no user")

	withMedia := Post{UserID: "u1", Media: []MediaRef{{ID: "m1", Kind: MediaImage, URL: "https://cdn.example.com/a.jpg"}}}
	assert.NoError(t, withMedia.Validate())
	assert.True(t, withMedia.HasMedia())

	badMedia := Post{UserID: "u1", Media: []MediaRef{{ID: "m1", Kind: "gif", URL: "https://cdn.example.com/a.gif"}}}
	assert.Error(t, badMedia.Validate())
}

func TestPostStatus(t *testing.T) {
	ok := PublishOutcome{Status: OutcomeSuccess}
	failed := PublishOutcome{Status: OutcomeFailed}

	assert.Equal(t, PostPublished, PostStatus([]PublishOutcome{ok, ok}, false))
	assert.Equal(t, PostPartial, PostStatus([]PublishOutcome{ok, failed}, false))
	assert.Equal(t, PostFailed, PostStatus([]PublishOutcome{failed}, false))
	assert.Equal(t, PostFailed, PostStatus(nil, false))
	assert.Equal(t, PostRetrying, PostStatus([]PublishOutcome{ok, failed}, true))
}

func TestTarget_Validate(t *testing.T) {
	assert.NoError(t, Target{Platform: PlatformThreads}.Validate())
	assert.Error(t, Target{Platform: "myspace"}.Validate())
	assert.Error(t, Target{}.Validate())
	assert.NoError(t, Target{Platform: PlatformTwitter, AccountID: "5f0c3f8e-2b1a-4c6d-9e7f-0a1b2c3d4e5f"}.Validate())
	assert.Error(t, Target{Platform: PlatformTwitter, AccountID: "not-a-uuid"}.Validate())

	assert.Equal(t, "twitter", Target{Platform: "twitter"}.String())
	assert.Equal(t, "twitter:abc", Target{Platform: "twitter", AccountID: "abc"}.String())
}
