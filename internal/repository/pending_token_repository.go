package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

type PendingTokenRepository interface {
	Create(ctx context.Context, p *models.PendingRequestToken) error
	// Consume reads and deletes the record in one statement so a token can
	// be redeemed at most once.
	Consume(ctx context.Context, requestToken string) (*models.PendingRequestToken, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type pendingTokenRepository struct {
	db *sql.DB
}

func NewPendingTokenRepository(db *sql.DB) PendingTokenRepository {
	return &pendingTokenRepository{db: db}
}

func (r *pendingTokenRepository) Create(ctx context.Context, p *models.PendingRequestToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth1_pending_tokens (request_token, request_token_secret, user_id, redirect_uri, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.RequestToken, p.RequestTokenSecret, p.UserID, p.RedirectURI, p.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return mapError(err)
	}
	return nil
}

func (r *pendingTokenRepository) Consume(ctx context.Context, requestToken string) (*models.PendingRequestToken, error) {
	var p models.PendingRequestToken
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM oauth1_pending_tokens
		WHERE request_token = $1
		RETURNING request_token, request_token_secret, user_id, redirect_uri, created_at`,
		requestToken).Scan(&p.RequestToken, &p.RequestTokenSecret, &p.UserID, &p.RedirectURI, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPendingTokenNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &p, nil
}

func (r *pendingTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM oauth1_pending_tokens WHERE created_at < $1`, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return result.RowsAffected()
}
