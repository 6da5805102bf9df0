package platform

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

const (
	facebookAuthURL  = "https://www.facebook.com/v23.0/dialog/oauth"
	facebookGraphURL = "https://graph.facebook.com/v23.0"
)

var facebookScopes = []string{"pages_show_list", "pages_read_engagement", "pages_manage_posts", "business_management"}

// facebookProvider exchanges a user grant for the pages the user manages.
// Page tokens obtained from a long-lived user token do not expire. It has
// no Revoke: all pages of a user share one grant.
type facebookProvider struct {
	clientID     string
	clientSecret string
	redirectURI  string
	api          apiClient
	now          func() time.Time
}

func NewFacebookProvider(clientID, clientSecret, redirectURI string, client *http.Client) OAuth2Provider {
	return &facebookProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		api:          newAPIClient(models.PlatformFacebook, client),
		now:          time.Now,
	}
}

func (p *facebookProvider) Platform() string                { return models.PlatformFacebook }
func (p *facebookProvider) UsesPKCE() bool                  { return false }
func (p *facebookProvider) RefreshThreshold() time.Duration { return 7 * 24 * time.Hour }

func (p *facebookProvider) AuthCodeURL(state, _ string) string {
	return withQuery(facebookAuthURL, url.Values{
		"client_id":     {p.clientID},
		"redirect_uri":  {p.redirectURI},
		"response_type": {"code"},
		"scope":         {strings.Join(facebookScopes, ",")},
		"state":         {state},
	})
}

func (p *facebookProvider) Exchange(ctx context.Context, code, _ string) (*models.OAuth2Grant, error) {
	var short metaToken
	err := p.api.getJSON(ctx, withQuery(facebookGraphURL+"/oauth/access_token", url.Values{
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"redirect_uri":  {p.redirectURI},
		"code":          {code},
	}), "", &short)
	if err != nil {
		return nil, err
	}
	return p.Refresh(ctx, models.OAuth2Grant{AccessToken: short.AccessToken})
}

// Refresh swaps a user token for a long-lived one.
func (p *facebookProvider) Refresh(ctx context.Context, current models.OAuth2Grant) (*models.OAuth2Grant, error) {
	var long metaToken
	err := p.api.getJSON(ctx, withQuery(facebookGraphURL+"/oauth/access_token", url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {p.clientID},
		"client_secret":     {p.clientSecret},
		"fb_exchange_token": {current.AccessToken},
	}), "", &long)
	if err != nil {
		return nil, err
	}
	return &models.OAuth2Grant{
		AccessToken: long.AccessToken,
		ExpiresAt:   expiresIn(p.now(), long.ExpiresIn),
	}, nil
}

func (p *facebookProvider) Accounts(ctx context.Context, grant models.OAuth2Grant) ([]ConnectedAccount, error) {
	var pages struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			AccessToken string `json:"access_token"`
			Category    string `json:"category"`
		} `json:"data"`
	}
	err := p.api.getJSON(ctx, withQuery(facebookGraphURL+"/me/accounts", url.Values{
		"fields":       {"id,name,access_token,category"},
		"access_token": {grant.AccessToken},
	}), "", &pages)
	if err != nil {
		return nil, err
	}
	if len(pages.Data) == 0 {
		return nil, newError(models.PlatformFacebook, CodeNotFound, "account manages no pages")
	}

	accounts := make([]ConnectedAccount, 0, len(pages.Data))
	for _, page := range pages.Data {
		accounts = append(accounts, ConnectedAccount{
			Profile: models.AccountProfile{
				ExternalAccountID: page.ID,
				Label:             page.Name,
				AccountType:       models.AccountTypePage,
				Metadata:          models.Metadata{"category": page.Category},
			},
			Grant: models.OAuth2Grant{AccessToken: page.AccessToken},
		})
	}
	return accounts, nil
}
