package platform

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

type metaEndpoints struct {
	authURL      string
	tokenURL     string
	exchangeURL  string
	exchangeType string
	refreshURL   string
	refreshType  string
	meURL        string
	scopes       []string
}

var instagramEndpoints = metaEndpoints{
	authURL:      "https://www.instagram.com/oauth/authorize",
	tokenURL:     "https://api.instagram.com/oauth/access_token",
	exchangeURL:  "https://graph.instagram.com/access_token",
	exchangeType: "ig_exchange_token",
	refreshURL:   "https://graph.instagram.com/refresh_access_token",
	refreshType:  "ig_refresh_token",
	meURL:        "https://graph.instagram.com/v21.0/me?fields=user_id,username,name,account_type",
	scopes:       []string{"instagram_business_basic", "instagram_business_content_publish"},
}

var threadsEndpoints = metaEndpoints{
	authURL:      "https://threads.net/oauth/authorize",
	tokenURL:     "https://graph.threads.net/oauth/access_token",
	exchangeURL:  "https://graph.threads.net/access_token",
	exchangeType: "th_exchange_token",
	refreshURL:   "https://graph.threads.net/refresh_access_token",
	refreshType:  "th_refresh_token",
	meURL:        "https://graph.threads.net/v1.0/me?fields=id,username,name",
	scopes:       []string{"threads_basic", "threads_content_publish"},
}

// metaProvider implements the Instagram Login and Threads flows: a code is
// exchanged for a short-lived token, which is immediately swapped for a
// sixty day token that is later refreshed in place.
type metaProvider struct {
	platform     string
	clientID     string
	clientSecret string
	redirectURI  string
	endpoints    metaEndpoints
	api          apiClient
	now          func() time.Time
}

func NewInstagramProvider(clientID, clientSecret, redirectURI string, client *http.Client) OAuth2Provider {
	return newMetaProvider(models.PlatformInstagram, clientID, clientSecret, redirectURI, instagramEndpoints, client)
}

func NewThreadsProvider(clientID, clientSecret, redirectURI string, client *http.Client) OAuth2Provider {
	return newMetaProvider(models.PlatformThreads, clientID, clientSecret, redirectURI, threadsEndpoints, client)
}

func newMetaProvider(platform, clientID, clientSecret, redirectURI string, endpoints metaEndpoints, client *http.Client) *metaProvider {
	return &metaProvider{
		platform:     platform,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		endpoints:    endpoints,
		api:          newAPIClient(platform, client),
		now:          time.Now,
	}
}

func (p *metaProvider) Platform() string                { return p.platform }
func (p *metaProvider) UsesPKCE() bool                  { return false }
func (p *metaProvider) RefreshThreshold() time.Duration { return 7 * 24 * time.Hour }

func (p *metaProvider) AuthCodeURL(state, _ string) string {
	return withQuery(p.endpoints.authURL, url.Values{
		"client_id":     {p.clientID},
		"redirect_uri":  {p.redirectURI},
		"response_type": {"code"},
		"scope":         {strings.Join(p.endpoints.scopes, ",")},
		"state":         {state},
	})
}

type metaToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (p *metaProvider) Exchange(ctx context.Context, code, _ string) (*models.OAuth2Grant, error) {
	var short metaToken
	err := p.api.postForm(ctx, p.endpoints.tokenURL, "", url.Values{
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {p.redirectURI},
		"code":          {code},
	}, &short)
	if err != nil {
		return nil, err
	}
	if short.AccessToken == "" {
		return nil, newError(p.platform, CodeAuth, "token endpoint returned no access token")
	}

	var long metaToken
	err = p.api.getJSON(ctx, withQuery(p.endpoints.exchangeURL, url.Values{
		"grant_type":    {p.endpoints.exchangeType},
		"client_secret": {p.clientSecret},
		"access_token":  {short.AccessToken},
	}), "", &long)
	if err != nil {
		return nil, err
	}

	return &models.OAuth2Grant{
		AccessToken: long.AccessToken,
		ExpiresAt:   expiresIn(p.now(), long.ExpiresIn),
	}, nil
}

func (p *metaProvider) Refresh(ctx context.Context, current models.OAuth2Grant) (*models.OAuth2Grant, error) {
	var refreshed metaToken
	err := p.api.getJSON(ctx, withQuery(p.endpoints.refreshURL, url.Values{
		"grant_type":   {p.endpoints.refreshType},
		"access_token": {current.AccessToken},
	}), "", &refreshed)
	if err != nil {
		return nil, err
	}

	return &models.OAuth2Grant{
		AccessToken: refreshed.AccessToken,
		ExpiresAt:   expiresIn(p.now(), refreshed.ExpiresIn),
	}, nil
}

func (p *metaProvider) Accounts(ctx context.Context, grant models.OAuth2Grant) ([]ConnectedAccount, error) {
	var me struct {
		ID          string `json:"id"`
		UserID      string `json:"user_id"`
		Username    string `json:"username"`
		Name        string `json:"name"`
		AccountType string `json:"account_type"`
	}
	meURL := p.endpoints.meURL + "&access_token=" + url.QueryEscape(grant.AccessToken)
	if err := p.api.getJSON(ctx, meURL, "", &me); err != nil {
		return nil, err
	}

	// Instagram's publishing endpoints are keyed by user_id, not the app
	// scoped id.
	id := me.UserID
	if id == "" {
		id = me.ID
	}

	accountType := models.AccountTypePersonal
	if me.AccountType == "BUSINESS" || me.AccountType == "MEDIA_CREATOR" {
		accountType = models.AccountTypeBusiness
	}

	return []ConnectedAccount{{
		Profile: models.AccountProfile{
			ExternalAccountID: id,
			Label:             "@" + me.Username,
			AccountType:       accountType,
			Metadata:          models.Metadata{"username": me.Username, "name": me.Name},
		},
		Grant: grant,
	}}, nil
}
