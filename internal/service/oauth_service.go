package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/pkg/oauth1"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"golang.org/x/oauth2"
)

// OAuth1Client is the platform side of the three-legged OAuth1 handshake.
type OAuth1Client interface {
	RequestToken(ctx context.Context, callback string) (oauth1.Token, error)
	AuthorizationURL(requestToken string) string
	AccessToken(ctx context.Context, request oauth1.Token, verifier string) (*platform.OAuth1AccessToken, error)
	VerifyCredentials(ctx context.Context, access oauth1.Token) (string, string, error)
}

type OAuthService interface {
	AuthorizationURL(ctx context.Context, userID, platformName string) (string, error)
	// ExchangeCode finishes an OAuth2 grant. Facebook grants yield one
	// connection per managed page.
	ExchangeCode(ctx context.Context, platformName, code, state string) ([]*models.Connection, error)
	InitiateOAuth1(ctx context.Context, userID, redirectURI string) (string, error)
	// CompleteOAuth1 returns the connection and the redirect URI given at
	// initiation.
	CompleteOAuth1(ctx context.Context, requestToken, verifier string) (*models.Connection, string, error)
}

type OAuthConfig struct {
	StateSecret    string
	OAuth1Callback string
}

type oauthService struct {
	providers   *platform.Providers
	twitter     OAuth1Client
	states      OAuthStateStore
	connections repository.ConnectionRepository
	pending     repository.PendingTokenRepository
	cipher      *utils.TokenCipher
	cfg         OAuthConfig
	now         func() time.Time
}

func NewOAuthService(
	providers *platform.Providers,
	twitter OAuth1Client,
	states OAuthStateStore,
	connections repository.ConnectionRepository,
	pending repository.PendingTokenRepository,
	cipher *utils.TokenCipher,
	cfg OAuthConfig) OAuthService {
	return &oauthService{
		providers:   providers,
		twitter:     twitter,
		states:      states,
		connections: connections,
		pending:     pending,
		cipher:      cipher,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *oauthService) AuthorizationURL(ctx context.Context, userID, platformName string) (string, error) {
	provider, err := s.providers.Get(platformName)
	if err != nil {
		return "", ErrUnsupportedPlatform
	}

	nonce, err := utils.RandomString(32)
	if err != nil {
		return "", err
	}

	var verifier string
	if provider.UsesPKCE() {
		verifier = oauth2.GenerateVerifier()
	}
	if err := s.states.Save(ctx, nonce, verifier); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	state, err := utils.GenerateStateToken(s.cfg.StateSecret, userID, platformName, nonce, models.PendingTokenTTL)
	if err != nil {
		return "", err
	}
	return provider.AuthCodeURL(state, verifier), nil
}

func (s *oauthService) ExchangeCode(ctx context.Context, platformName, code, state string) ([]*models.Connection, error) {
	provider, err := s.providers.Get(platformName)
	if err != nil {
		return nil, ErrUnsupportedPlatform
	}

	claims, err := utils.ValidateStateToken(s.cfg.StateSecret, state)
	if err != nil || claims.Platform != platformName {
		return nil, ErrInvalidState
	}

	verifier, err := s.states.Take(ctx, claims.Nonce)
	if err != nil {
		return nil, err
	}

	grant, err := provider.Exchange(ctx, code, verifier)
	if err != nil {
		slog.Info("oauth2 exchange failed", "platform", platformName, "error", err)
		return nil, &OAuthExchangeFailedError{Platform: platformName, Cause: err}
	}

	accounts, err := provider.Accounts(ctx, *grant)
	if err != nil {
		slog.Info("oauth2 profile fetch failed", "platform", platformName, "error", err)
		return nil, &OAuthExchangeFailedError{Platform: platformName, Cause: err}
	}

	connections := make([]*models.Connection, 0, len(accounts))
	for _, account := range accounts {
		conn, err := s.storeOAuth2(ctx, claims.UserID, platformName, account)
		if err != nil {
			return nil, err
		}
		connections = append(connections, conn)
	}
	return connections, nil
}

func (s *oauthService) storeOAuth2(ctx context.Context, userID, platformName string, account platform.ConnectedAccount) (*models.Connection, error) {
	access, err := s.cipher.Encrypt(account.Grant.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.cipher.EncryptOptional(account.Grant.RefreshToken)
	if err != nil {
		return nil, err
	}

	id, err := s.connections.UpsertOAuth2(ctx, repository.OAuth2Upsert{
		UserID:            userID,
		Platform:          platformName,
		ExternalAccountID: account.Profile.ExternalAccountID,
		AccessToken:       access,
		RefreshToken:      refresh,
		ExpiresAt:         account.Grant.ExpiresAt,
		AccountLabel:      account.Profile.Label,
		AccountType:       account.Profile.AccountType,
		Metadata:          account.Profile.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return s.connections.GetByID(ctx, id)
}

func (s *oauthService) InitiateOAuth1(ctx context.Context, userID, redirectURI string) (string, error) {
	token, err := s.twitter.RequestToken(ctx, s.cfg.OAuth1Callback)
	if err != nil {
		slog.Info("oauth1 request token failed", "error", err)
		return "", &OAuthExchangeFailedError{Platform: models.PlatformTwitter, Cause: err}
	}

	secret, err := s.cipher.Encrypt(token.Secret)
	if err != nil {
		return "", err
	}

	err = s.pending.Create(ctx, &models.PendingRequestToken{
		RequestToken:       token.Token,
		RequestTokenSecret: secret,
		UserID:             userID,
		RedirectURI:        redirectURI,
		CreatedAt:          s.now(),
	})
	if err != nil {
		return "", err
	}

	return s.twitter.AuthorizationURL(token.Token), nil
}

func (s *oauthService) CompleteOAuth1(ctx context.Context, requestToken, verifier string) (*models.Connection, string, error) {
	now := s.now()

	if n, err := s.pending.DeleteExpired(ctx, now.Add(-models.PendingTokenTTL)); err != nil {
		slog.Error("cannot delete expired request tokens", "error", err)
	} else if n > 0 {
		slog.Info("deleted expired request tokens", "count", n)
	}

	// Consuming deletes the record, so it is single use whatever happens
	// next.
	pending, err := s.pending.Consume(ctx, requestToken)
	if errors.Is(err, repository.ErrPendingTokenNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	if pending.Expired(now) {
		return nil, "", ErrExpired
	}

	requestSecret, err := s.cipher.Decrypt(pending.RequestTokenSecret)
	if err != nil {
		return nil, "", err
	}

	access, err := s.twitter.AccessToken(ctx, oauth1.Token{Token: requestToken, Secret: requestSecret}, verifier)
	if err != nil {
		slog.Info("oauth1 access token failed", "error", err)
		return nil, "", &OAuthExchangeFailedError{Platform: models.PlatformTwitter, Cause: err}
	}

	accountID, screenName, err := s.twitter.VerifyCredentials(ctx, oauth1.Token{Token: access.Token, Secret: access.Secret})
	if err != nil {
		slog.Info("oauth1 credential check failed", "error", err)
		return nil, "", &OAuthExchangeFailedError{Platform: models.PlatformTwitter, Cause: err}
	}
	if access.UserID != "" && access.UserID != accountID {
		return nil, "", &OAuthExchangeFailedError{Platform: models.PlatformTwitter,
			Cause: fmt.Errorf("access token issued for %s but credentials belong to %s", access.UserID, accountID)}
	}

	token, err := s.cipher.Encrypt(access.Token)
	if err != nil {
		return nil, "", err
	}
	secret, err := s.cipher.Encrypt(access.Secret)
	if err != nil {
		return nil, "", err
	}

	id, err := s.connections.UpsertOAuth1(ctx, repository.OAuth1Upsert{
		UserID:            pending.UserID,
		Platform:          models.PlatformTwitter,
		ExternalAccountID: accountID,
		AccessToken:       token,
		TokenSecret:       secret,
		ExternalUserID:    accountID,
		AccountLabel:      "@" + screenName,
	})
	if err != nil {
		return nil, "", err
	}

	conn, err := s.connections.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return conn, pending.RedirectURI, nil
}
