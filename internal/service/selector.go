package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
)

const CapabilityMediaUpload = "media_upload"

type CredentialSelector interface {
	Select(ctx context.Context, platformName string, hasMedia bool, userID, accountID string) (*models.Connection, platform.CredentialKind, error)
}

type credentialSelector struct {
	connections repository.ConnectionRepository
}

func NewCredentialSelector(connections repository.ConnectionRepository) CredentialSelector {
	return &credentialSelector{connections: connections}
}

// Select resolves the connection for a target and the credential kind the
// publish call must use. An empty accountID means the primary connection.
func (s *credentialSelector) Select(ctx context.Context, platformName string, hasMedia bool, userID, accountID string) (*models.Connection, platform.CredentialKind, error) {
	conn, err := s.resolve(ctx, platformName, userID, accountID)
	if err != nil {
		return nil, "", err
	}

	kind, err := ChooseCredentialKind(platformName, hasMedia, conn)
	if err != nil {
		return nil, "", err
	}
	return conn, kind, nil
}

func (s *credentialSelector) resolve(ctx context.Context, platformName, userID, accountID string) (*models.Connection, error) {
	var (
		conn *models.Connection
		err  error
	)
	if accountID != "" {
		conn, err = s.connections.GetByID(ctx, accountID)
	} else {
		conn, err = s.connections.GetPrimary(ctx, userID, platformName)
	}

	if errors.Is(err, repository.ErrConnectionNotFound) {
		return nil, ErrNoConnection
	}
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	// Another user's connection is reported as missing.
	if conn.UserID != userID || conn.Platform != platformName {
		return nil, ErrNoConnection
	}
	return conn, nil
}

// ChooseCredentialKind decides which credential set a publish call uses.
// Media on a platform that signs uploads needs OAuth1 and never falls back
// to OAuth2.
func ChooseCredentialKind(platformName string, hasMedia bool, conn *models.Connection) (platform.CredentialKind, error) {
	if hasMedia && platform.RequiresSignedMedia(platformName) {
		if conn.HasOAuth1() {
			return platform.OAuth1, nil
		}
		return "", &MissingCapabilityError{Platform: platformName, Capability: CapabilityMediaUpload}
	}

	if conn.HasOAuth2() {
		return platform.OAuth2, nil
	}
	if conn.HasOAuth1() && platform.SupportsOAuth1(platformName) {
		return platform.OAuth1, nil
	}
	return "", &MissingCapabilityError{Platform: platformName, Capability: string(platform.OAuth2)}
}
