package platform

import (
	"context"
	"net/http"
	"net/url"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/pkg/oauth1"
)

const (
	twitterRequestTokenURL = "https://api.twitter.com/oauth/request_token"
	twitterAuthorizeURL    = "https://api.twitter.com/oauth/authorize"
	twitterAccessTokenURL  = "https://api.twitter.com/oauth/access_token"
	twitterVerifyURL       = "https://api.twitter.com/1.1/account/verify_credentials.json"
)

// TwitterOAuth1 runs the three-legged OAuth 1.0a handshake.
type TwitterOAuth1 struct {
	signer *oauth1.Signer
	api    apiClient
}

type OAuth1AccessToken struct {
	Token      string
	Secret     string
	UserID     string
	ScreenName string
}

func NewTwitterOAuth1(signer *oauth1.Signer, client *http.Client) *TwitterOAuth1 {
	return &TwitterOAuth1{signer: signer, api: newAPIClient(models.PlatformTwitter, client)}
}

// RequestToken obtains a temporary token bound to callback.
func (t *TwitterOAuth1) RequestToken(ctx context.Context, callback string) (oauth1.Token, error) {
	values, err := t.post(ctx, twitterRequestTokenURL, oauth1.Token{}, map[string]string{"oauth_callback": callback})
	if err != nil {
		return oauth1.Token{}, err
	}

	if values.Get("oauth_callback_confirmed") != "true" {
		return oauth1.Token{}, newError(models.PlatformTwitter, CodeAuth, "callback not confirmed")
	}

	token := oauth1.Token{Token: values.Get("oauth_token"), Secret: values.Get("oauth_token_secret")}
	if token.Token == "" || token.Secret == "" {
		return oauth1.Token{}, newError(models.PlatformTwitter, CodeAuth, "request token response incomplete")
	}
	return token, nil
}

func (t *TwitterOAuth1) AuthorizationURL(requestToken string) string {
	return withQuery(twitterAuthorizeURL, url.Values{"oauth_token": {requestToken}})
}

// AccessToken trades an authorized request token and its verifier for
// permanent credentials.
func (t *TwitterOAuth1) AccessToken(ctx context.Context, request oauth1.Token, verifier string) (*OAuth1AccessToken, error) {
	values, err := t.post(ctx, twitterAccessTokenURL, request, map[string]string{"oauth_verifier": verifier})
	if err != nil {
		return nil, err
	}

	access := &OAuth1AccessToken{
		Token:      values.Get("oauth_token"),
		Secret:     values.Get("oauth_token_secret"),
		UserID:     values.Get("user_id"),
		ScreenName: values.Get("screen_name"),
	}
	if access.Token == "" || access.Secret == "" {
		return nil, newError(models.PlatformTwitter, CodeAuth, "access token response incomplete")
	}
	return access, nil
}

// VerifyCredentials makes one signed profile call with freshly issued
// credentials and returns the account's id and handle.
func (t *TwitterOAuth1) VerifyCredentials(ctx context.Context, access oauth1.Token) (id, screenName string, err error) {
	verifyURL := withQuery(twitterVerifyURL, url.Values{"skip_status": {"true"}, "include_entities": {"false"}})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, verifyURL, nil)
	if err != nil {
		return "", "", err
	}
	if err := t.signer.Authorize(req, access, nil, nil); err != nil {
		return "", "", err
	}

	var profile struct {
		IDStr      string `json:"id_str"`
		ScreenName string `json:"screen_name"`
	}
	if _, err := t.api.do(req, &profile); err != nil {
		return "", "", err
	}
	if profile.IDStr == "" {
		return "", "", newError(models.PlatformTwitter, CodeAuth, "credentials returned no account id")
	}
	return profile.IDStr, profile.ScreenName, nil
}

func (t *TwitterOAuth1) post(ctx context.Context, endpoint string, token oauth1.Token, extraOAuth map[string]string) (url.Values, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if err := t.signer.Authorize(req, token, extraOAuth, nil); err != nil {
		return nil, err
	}

	_, body, err := t.api.raw(req)
	if err != nil {
		return nil, err
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, &Error{Platform: models.PlatformTwitter, Code: CodeUnknown, Message: "malformed token response", Err: err}
	}
	return values, nil
}
