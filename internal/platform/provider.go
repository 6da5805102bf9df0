package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

// ConnectedAccount is one external account reachable with a grant. Most
// platforms yield exactly one; Facebook yields one per managed page, each
// with its own page token.
type ConnectedAccount struct {
	Profile models.AccountProfile
	Grant   models.OAuth2Grant
}

type OAuth2Provider interface {
	Platform() string
	// AuthCodeURL returns the consent URL. verifier is empty unless UsesPKCE.
	AuthCodeURL(state, verifier string) string
	UsesPKCE() bool
	Exchange(ctx context.Context, code, verifier string) (*models.OAuth2Grant, error)
	Accounts(ctx context.Context, grant models.OAuth2Grant) ([]ConnectedAccount, error)
	// Refresh renews a grant. Long-lived token platforms refresh with the
	// current access token instead of a refresh token.
	Refresh(ctx context.Context, current models.OAuth2Grant) (*models.OAuth2Grant, error)
	// RefreshThreshold is how long before expiry a token is renewed.
	RefreshThreshold() time.Duration
}

// Revoker is implemented by providers with a token revocation endpoint.
type Revoker interface {
	Revoke(ctx context.Context, accessToken, externalAccountID string) error
}

type Providers struct {
	providers map[string]OAuth2Provider
}

func NewProviders(providers ...OAuth2Provider) *Providers {
	p := &Providers{providers: make(map[string]OAuth2Provider, len(providers))}
	for _, provider := range providers {
		p.providers[provider.Platform()] = provider
	}
	return p
}

func (p *Providers) Get(platform string) (OAuth2Provider, error) {
	provider, ok := p.providers[platform]
	if !ok {
		return nil, fmt.Errorf("no oauth2 provider registered for %q", platform)
	}
	return provider, nil
}

// MaxThreshold is the widest refresh window across providers.
func (p *Providers) MaxThreshold() time.Duration {
	var max time.Duration
	for _, provider := range p.providers {
		if t := provider.RefreshThreshold(); t > max {
			max = t
		}
	}
	return max
}

func expiresIn(now time.Time, seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := now.Add(time.Duration(seconds) * time.Second)
	return &t
}
