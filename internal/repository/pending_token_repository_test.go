package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingToken_CreateAndConsumeOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewPendingTokenRepository(db)
	created := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO oauth1_pending_tokens")).
		WithArgs("req-1", "enc-secret", "user-1", "https://app.example.com/done", created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), &models.PendingRequestToken{
		RequestToken:       "req-1",
		RequestTokenSecret: "enc-secret",
		UserID:             "user-1",
		RedirectURI:        "https://app.example.com/done",
		CreatedAt:          created,
	}))

	columns := []string{"request_token", "request_token_secret", "user_id", "redirect_uri", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM oauth1_pending_tokens")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("req-1", "enc-secret", "user-1", "https://app.example.com/done", created))
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM oauth1_pending_tokens")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows(columns))

	p, err := repo.Consume(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, created, p.CreatedAt)

	_, err = repo.Consume(context.Background(), "req-1")
	assert.ErrorIs(t, err, ErrPendingTokenNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingToken_DeleteExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewPendingTokenRepository(db)
	cutoff := time.Date(2025, 1, 1, 11, 45, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM oauth1_pending_tokens WHERE created_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
