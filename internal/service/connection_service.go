package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

type ConnectionService interface {
	List(ctx context.Context, userID, platformName string) ([]*models.Connection, error)
	SetPrimary(ctx context.Context, userID, connectionID string) error
	// Delete removes a connection and revokes its token where the platform
	// allows it. Deleting a missing connection is not an error.
	Delete(ctx context.Context, userID, connectionID string) error
	DeleteAll(ctx context.Context, userID string) error
}

type connectionService struct {
	connections repository.ConnectionRepository
	providers   *platform.Providers
	cipher      *utils.TokenCipher
}

func NewConnectionService(
	connections repository.ConnectionRepository,
	providers *platform.Providers,
	cipher *utils.TokenCipher) ConnectionService {
	return &connectionService{
		connections: connections,
		providers:   providers,
		cipher:      cipher,
	}
}

func (s *connectionService) List(ctx context.Context, userID, platformName string) ([]*models.Connection, error) {
	if platformName != "" && !models.IsPlatform(platformName) {
		return nil, ErrUnsupportedPlatform
	}

	conns, err := s.connections.List(ctx, userID, platformName)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return conns, nil
}

func (s *connectionService) SetPrimary(ctx context.Context, userID, connectionID string) error {
	if _, err := s.owned(ctx, userID, connectionID); err != nil {
		return err
	}

	err := s.connections.SetPrimary(ctx, connectionID)
	if errors.Is(err, repository.ErrConnectionNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *connectionService) Delete(ctx context.Context, userID, connectionID string) error {
	conn, err := s.owned(ctx, userID, connectionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.revoke(ctx, conn)

	if err := s.connections.Delete(ctx, connectionID); err != nil {
		slog.Info(err.Error())
		return err
	}
	slog.Info("connection deleted", "connection_id", conn.ID, "platform", conn.Platform)
	return nil
}

func (s *connectionService) DeleteAll(ctx context.Context, userID string) error {
	conns, err := s.connections.List(ctx, userID, "")
	if err != nil {
		return err
	}
	for _, conn := range conns {
		s.revoke(ctx, conn)
	}
	return s.connections.DeleteByUser(ctx, userID)
}

func (s *connectionService) owned(ctx context.Context, userID, connectionID string) (*models.Connection, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if errors.Is(err, repository.ErrConnectionNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if conn.UserID != userID {
		return nil, ErrForbidden
	}
	return conn, nil
}

// revoke is best effort; a failed revocation never blocks deletion.
func (s *connectionService) revoke(ctx context.Context, conn *models.Connection) {
	if !conn.HasOAuth2() {
		return
	}
	provider, err := s.providers.Get(conn.Platform)
	if err != nil {
		return
	}
	revoker, ok := provider.(platform.Revoker)
	if !ok {
		return
	}

	token, err := s.cipher.Decrypt(conn.OAuth2AccessToken)
	if err != nil {
		slog.Error("cannot decrypt token for revocation", "connection_id", conn.ID, "error", err)
		return
	}
	if err := revoker.Revoke(ctx, token, conn.ExternalAccountID); err != nil {
		slog.Warn("token revocation failed", "connection_id", conn.ID, "platform", conn.Platform, "error", err)
	}
}
