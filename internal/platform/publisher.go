package platform

import (
	"context"
	"fmt"

	"github.com/maheshrc27/crosspost/internal/models"
)

type CredentialKind string

const (
	OAuth2 CredentialKind = "oauth2"
	OAuth1 CredentialKind = "oauth1"
)

// Credentials are decrypted and scoped to one publish call.
type Credentials struct {
	Kind              CredentialKind
	AccessToken       string
	Token             string
	TokenSecret       string
	ExternalAccountID string
	AccountType       string
	Metadata          models.Metadata
}

// Content is the per-target rendering of a post.
type Content struct {
	Text  string
	Title string
	Media []models.MediaRef
}

func (c Content) HasMedia() bool { return len(c.Media) > 0 }

func (c Content) videos() []models.MediaRef {
	var out []models.MediaRef
	for _, m := range c.Media {
		if m.Kind == models.MediaVideo {
			out = append(out, m)
		}
	}
	return out
}

// Publisher sends one piece of content to one account and returns the
// platform's id for the created post.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, creds Credentials, content Content) (string, error)
}

// MediaSource loads media bytes for platforms that need an upload instead of
// a public URL.
type MediaSource interface {
	Fetch(ctx context.Context, ref models.MediaRef) ([]byte, error)
}

// RequiresSignedMedia reports whether media uploads on the platform need
// OAuth1 signed requests.
func RequiresSignedMedia(platform string) bool {
	return platform == models.PlatformTwitter
}

// SupportsOAuth1 reports whether the platform accepts OAuth1 credentials.
func SupportsOAuth1(platform string) bool {
	return platform == models.PlatformTwitter
}

// Registry maps platform identifiers to publishers.
type Registry struct {
	publishers map[string]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[string]Publisher, len(publishers))}
	for _, p := range publishers {
		r.publishers[p.Platform()] = p
	}
	return r
}

func (r *Registry) Get(platform string) (Publisher, error) {
	p, ok := r.publishers[platform]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for %q", platform)
	}
	return p, nil
}

func requireMedia(platform string, content Content) error {
	if !content.HasMedia() {
		return newError(platform, CodeValidation, "platform requires at least one image or video")
	}
	return nil
}
