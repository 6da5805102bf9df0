package platform

import (
	"context"
	"net/http"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/linkedin"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

var twitterEndpoint = oauth2.Endpoint{
	AuthURL:   "https://twitter.com/i/oauth2/authorize",
	TokenURL:  "https://api.twitter.com/2/oauth2/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

const (
	twitterMeURL    = "https://api.twitter.com/2/users/me"
	linkedinMeURL   = "https://api.linkedin.com/v2/userinfo"
	googleRevokeURL = "https://oauth2.googleapis.com/revoke"
)

type accountsFunc func(ctx context.Context, client *http.Client, grant models.OAuth2Grant) ([]ConnectedAccount, error)

// standardProvider covers platforms that follow RFC 6749 closely enough for
// golang.org/x/oauth2.
type standardProvider struct {
	platform   string
	conf       *oauth2.Config
	pkce       bool
	threshold  time.Duration
	authParams []oauth2.AuthCodeOption
	accounts   accountsFunc
	client     *http.Client
}

func (p *standardProvider) Platform() string                { return p.platform }
func (p *standardProvider) UsesPKCE() bool                  { return p.pkce }
func (p *standardProvider) RefreshThreshold() time.Duration { return p.threshold }

func (p *standardProvider) AuthCodeURL(state, verifier string) string {
	opts := append([]oauth2.AuthCodeOption{}, p.authParams...)
	if p.pkce && verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return p.conf.AuthCodeURL(state, opts...)
}

func (p *standardProvider) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

func (p *standardProvider) Exchange(ctx context.Context, code, verifier string) (*models.OAuth2Grant, error) {
	var opts []oauth2.AuthCodeOption
	if p.pkce {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	token, err := p.conf.Exchange(p.ctx(ctx), code, opts...)
	if err != nil {
		return nil, Classify(p.platform, err)
	}
	return grantFromToken(token), nil
}

func (p *standardProvider) Refresh(ctx context.Context, current models.OAuth2Grant) (*models.OAuth2Grant, error) {
	if current.RefreshToken == "" {
		return nil, newError(p.platform, CodeAuth, "no refresh token stored")
	}

	// An empty access token forces the token source to hit the endpoint.
	source := p.conf.TokenSource(p.ctx(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, Classify(p.platform, err)
	}

	grant := grantFromToken(token)
	if grant.RefreshToken == current.RefreshToken {
		grant.RefreshToken = ""
	}
	return grant, nil
}

func (p *standardProvider) Accounts(ctx context.Context, grant models.OAuth2Grant) ([]ConnectedAccount, error) {
	client := oauth2.NewClient(p.ctx(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: grant.AccessToken}))
	return p.accounts(ctx, client, grant)
}

func grantFromToken(token *oauth2.Token) *models.OAuth2Grant {
	grant := &models.OAuth2Grant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		grant.ExpiresAt = &expiry
	}
	return grant
}

func NewTwitterProvider(clientID, clientSecret, redirectURI string, client *http.Client) OAuth2Provider {
	return &standardProvider{
		platform: models.PlatformTwitter,
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
			Endpoint:     twitterEndpoint,
		},
		pkce:      true,
		threshold: 30 * time.Minute,
		client:    client,
		accounts: func(ctx context.Context, c *http.Client, grant models.OAuth2Grant) ([]ConnectedAccount, error) {
			var me struct {
				Data struct {
					ID       string `json:"id"`
					Name     string `json:"name"`
					Username string `json:"username"`
				} `json:"data"`
			}
			if err := newAPIClient(models.PlatformTwitter, c).getJSON(ctx, twitterMeURL, "", &me); err != nil {
				return nil, err
			}
			return []ConnectedAccount{{
				Profile: models.AccountProfile{
					ExternalAccountID: me.Data.ID,
					Label:             "@" + me.Data.Username,
					AccountType:       models.AccountTypePersonal,
					Metadata:          models.Metadata{"username": me.Data.Username, "name": me.Data.Name},
				},
				Grant: grant,
			}}, nil
		},
	}
}

func NewLinkedInProvider(clientID, clientSecret, redirectURI string, client *http.Client) OAuth2Provider {
	return &standardProvider{
		platform: models.PlatformLinkedIn,
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "profile", "email", "w_member_social"},
			Endpoint:     linkedin.Endpoint,
		},
		threshold: 7 * 24 * time.Hour,
		client:    client,
		accounts: func(ctx context.Context, c *http.Client, grant models.OAuth2Grant) ([]ConnectedAccount, error) {
			var me struct {
				Sub  string `json:"sub"`
				Name string `json:"name"`
			}
			if err := newAPIClient(models.PlatformLinkedIn, c).getJSON(ctx, linkedinMeURL, "", &me); err != nil {
				return nil, err
			}
			return []ConnectedAccount{{
				Profile: models.AccountProfile{
					ExternalAccountID: me.Sub,
					Label:             me.Name,
					AccountType:       models.AccountTypePersonal,
					Metadata:          models.Metadata{"author_urn": "urn:li:person:" + me.Sub},
				},
				Grant: grant,
			}}, nil
		},
	}
}

type youtubeProvider struct {
	*standardProvider
}

func NewYoutubeProvider(clientID, clientSecret, redirectURI string, client *http.Client) OAuth2Provider {
	p := &standardProvider{
		platform: models.PlatformYoutube,
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		threshold:  15 * time.Minute,
		authParams: []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce},
		client:     client,
	}
	p.accounts = func(ctx context.Context, c *http.Client, grant models.OAuth2Grant) ([]ConnectedAccount, error) {
		svc, err := youtube.NewService(ctx, option.WithHTTPClient(c))
		if err != nil {
			return nil, err
		}

		resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
		if err != nil {
			return nil, Classify(models.PlatformYoutube, err)
		}

		var accounts []ConnectedAccount
		for _, ch := range resp.Items {
			accounts = append(accounts, ConnectedAccount{
				Profile: models.AccountProfile{
					ExternalAccountID: ch.Id,
					Label:             ch.Snippet.Title,
					AccountType:       models.AccountTypePersonal,
					Metadata:          models.Metadata{"custom_url": ch.Snippet.CustomUrl},
				},
				Grant: grant,
			})
		}
		if len(accounts) == 0 {
			return nil, newError(models.PlatformYoutube, CodeNotFound, "account has no YouTube channel")
		}
		return accounts, nil
	}
	return &youtubeProvider{standardProvider: p}
}

func (p *youtubeProvider) Revoke(ctx context.Context, accessToken, _ string) error {
	form := map[string][]string{"token": {accessToken}}
	return newAPIClient(p.platform, p.client).postForm(ctx, googleRevokeURL, "", form, nil)
}
