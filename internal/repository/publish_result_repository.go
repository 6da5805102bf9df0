package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/maheshrc27/crosspost/internal/models"
)

type PublishResultRepository interface {
	Create(ctx context.Context, pr *models.PublishResult) (string, error)
	ListByPostID(ctx context.Context, postID string) ([]*models.PublishResult, error)
}

type publishResultRepository struct {
	db *sql.DB
}

func NewPublishResultRepository(db *sql.DB) PublishResultRepository {
	return &publishResultRepository{db: db}
}

func (r *publishResultRepository) Create(ctx context.Context, pr *models.PublishResult) (string, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO publish_results (
			id, post_id, user_id, platform, connection_id, status,
			platform_post_id, error_code, error_message, retryable, attempt
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		id, pr.PostID, pr.UserID, pr.Platform, nullString(pr.ConnectionID), pr.Status,
		pr.PlatformPostID, pr.ErrorCode, pr.ErrorMessage, pr.Retryable, pr.Attempt)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return id, nil
}

func (r *publishResultRepository) ListByPostID(ctx context.Context, postID string) ([]*models.PublishResult, error) {
	query := `
		SELECT id, post_id, user_id, platform, COALESCE(connection_id::text, ''), status,
			platform_post_id, error_code, error_message, retryable, attempt, created_at
		FROM publish_results
		WHERE post_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var results []*models.PublishResult
	for rows.Next() {
		var pr models.PublishResult
		err := rows.Scan(&pr.ID, &pr.PostID, &pr.UserID, &pr.Platform, &pr.ConnectionID, &pr.Status,
			&pr.PlatformPostID, &pr.ErrorCode, &pr.ErrorMessage, &pr.Retryable, &pr.Attempt, &pr.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		results = append(results, &pr)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return results, nil
}
