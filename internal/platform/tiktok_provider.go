package platform

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

const (
	tiktokAuthURL     = "https://www.tiktok.com/v2/auth/authorize/"
	tiktokTokenURL    = "https://open.tiktokapis.com/v2/oauth/token/"
	tiktokRevokeURL   = "https://open.tiktokapis.com/v2/oauth/revoke/"
	tiktokUserInfoURL = "https://open.tiktokapis.com/v2/user/info/?fields=open_id,avatar_url,display_name,username"
)

// tiktokProvider speaks TikTok's OAuth dialect, which names the client id
// client_key.
type tiktokProvider struct {
	clientKey    string
	clientSecret string
	redirectURI  string
	api          apiClient
	now          func() time.Time
}

func NewTiktokProvider(clientKey, clientSecret, redirectURI string, client *http.Client) OAuth2Provider {
	return &tiktokProvider{
		clientKey:    clientKey,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		api:          newAPIClient(models.PlatformTiktok, client),
		now:          time.Now,
	}
}

func (p *tiktokProvider) Platform() string                { return models.PlatformTiktok }
func (p *tiktokProvider) UsesPKCE() bool                  { return false }
func (p *tiktokProvider) RefreshThreshold() time.Duration { return 2 * time.Hour }

func (p *tiktokProvider) AuthCodeURL(state, _ string) string {
	return withQuery(tiktokAuthURL, url.Values{
		"client_key":    {p.clientKey},
		"redirect_uri":  {p.redirectURI},
		"response_type": {"code"},
		"scope":         {"user.info.basic,video.publish,video.upload"},
		"state":         {state},
	})
}

type tiktokToken struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	OpenID       string `json:"open_id"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	Error        string `json:"error"`
	Description  string `json:"error_description"`
}

func (p *tiktokProvider) token(ctx context.Context, form url.Values) (*models.OAuth2Grant, error) {
	form.Set("client_key", p.clientKey)
	form.Set("client_secret", p.clientSecret)

	var tok tiktokToken
	if err := p.api.postForm(ctx, tiktokTokenURL, "", form, &tok); err != nil {
		return nil, err
	}
	// The token endpoint reports some failures with a 200.
	if tok.Error != "" || tok.AccessToken == "" {
		return nil, newError(models.PlatformTiktok, CodeAuth, tok.Error+": "+tok.Description)
	}

	return &models.OAuth2Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresIn(p.now(), tok.ExpiresIn),
	}, nil
}

func (p *tiktokProvider) Exchange(ctx context.Context, code, _ string) (*models.OAuth2Grant, error) {
	return p.token(ctx, url.Values{
		"code":         {code},
		"grant_type":   {"authorization_code"},
		"redirect_uri": {p.redirectURI},
	})
}

func (p *tiktokProvider) Refresh(ctx context.Context, current models.OAuth2Grant) (*models.OAuth2Grant, error) {
	if current.RefreshToken == "" {
		return nil, newError(models.PlatformTiktok, CodeAuth, "no refresh token stored")
	}
	return p.token(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {current.RefreshToken},
	})
}

func (p *tiktokProvider) Accounts(ctx context.Context, grant models.OAuth2Grant) ([]ConnectedAccount, error) {
	var info struct {
		Data struct {
			User struct {
				OpenID      string `json:"open_id"`
				DisplayName string `json:"display_name"`
				Username    string `json:"username"`
				AvatarURL   string `json:"avatar_url"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := p.api.getJSON(ctx, tiktokUserInfoURL, grant.AccessToken, &info); err != nil {
		return nil, err
	}

	user := info.Data.User
	return []ConnectedAccount{{
		Profile: models.AccountProfile{
			ExternalAccountID: user.OpenID,
			Label:             user.DisplayName,
			AccountType:       models.AccountTypePersonal,
			Metadata:          models.Metadata{"username": user.Username, "avatar_url": user.AvatarURL},
		},
		Grant: grant,
	}}, nil
}

func (p *tiktokProvider) Revoke(ctx context.Context, accessToken, _ string) error {
	return p.api.postForm(ctx, tiktokRevokeURL, "", url.Values{
		"client_key":    {p.clientKey},
		"client_secret": {p.clientSecret},
		"token":         {accessToken},
	}, nil)
}
