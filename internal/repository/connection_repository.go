package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maheshrc27/crosspost/internal/models"
)

// OAuth2Upsert carries already encrypted OAuth2 material. An empty
// RefreshToken, AccountLabel or AccountType and a nil Metadata keep the
// stored values.
type OAuth2Upsert struct {
	UserID            string
	Platform          string
	ExternalAccountID string
	AccessToken       string
	RefreshToken      string
	ExpiresAt         *time.Time
	AccountLabel      string
	AccountType       string
	Metadata          models.Metadata
}

// OAuth1Upsert carries already encrypted OAuth1 material.
type OAuth1Upsert struct {
	UserID            string
	Platform          string
	ExternalAccountID string
	AccessToken       string
	TokenSecret       string
	ExternalUserID    string
	AccountLabel      string
}

// GrantUpdate carries a renewed, already encrypted OAuth2 grant. An empty
// RefreshToken keeps the stored one.
type GrantUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

type ConnectionRepository interface {
	UpsertOAuth2(ctx context.Context, in OAuth2Upsert) (string, error)
	UpsertOAuth1(ctx context.Context, in OAuth1Upsert) (string, error)
	GetByID(ctx context.Context, id string) (*models.Connection, error)
	GetPrimary(ctx context.Context, userID, platform string) (*models.Connection, error)
	List(ctx context.Context, userID, platform string) ([]*models.Connection, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.Connection, error)
	SetPrimary(ctx context.Context, id string) error
	UpdateOAuth2Grant(ctx context.Context, id string, in GrantUpdate) error
	RecordRefreshFailure(ctx context.Context, id string) (int, error)
	MarkNeedsReauth(ctx context.Context, id, reason string) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
}

type connectionRepository struct {
	db *sql.DB
}

func NewConnectionRepository(db *sql.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `id, user_id, platform, external_account_id,
	oauth2_access_token, oauth2_refresh_token, oauth2_expires_at,
	oauth1_access_token, oauth1_token_secret, oauth1_external_user_id,
	is_primary, account_label, account_type, metadata,
	needs_reauth, reauth_reason, created_at, updated_at`

func (r *connectionRepository) UpsertOAuth2(ctx context.Context, in OAuth2Upsert) (string, error) {
	var id string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockAccountSet(ctx, tx, in.UserID, in.Platform); err != nil {
			return err
		}

		existing, err := findIdentity(ctx, tx, in.UserID, in.Platform, in.ExternalAccountID)
		if err != nil {
			return err
		}

		if existing != "" {
			id = existing
			_, err = tx.ExecContext(ctx, `
				UPDATE account_connections
				SET
					oauth2_access_token = $2,
					oauth2_refresh_token = COALESCE(NULLIF($3, ''), oauth2_refresh_token),
					oauth2_expires_at = $4,
					account_label = COALESCE(NULLIF($5, ''), account_label),
					account_type = COALESCE(NULLIF($6, ''), account_type),
					metadata = COALESCE($7::jsonb, metadata),
					needs_reauth = FALSE,
					reauth_reason = '',
					refresh_failures = 0,
					updated_at = NOW()
				WHERE id = $1`,
				id, in.AccessToken, in.RefreshToken, in.ExpiresAt,
				in.AccountLabel, in.AccountType, metadataArg(in.Metadata))
			return err
		}

		primary, err := becomesPrimary(ctx, tx, in.UserID, in.Platform)
		if err != nil {
			return err
		}

		id = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO account_connections (
				id, user_id, platform, external_account_id,
				oauth2_access_token, oauth2_refresh_token, oauth2_expires_at,
				is_primary, account_label, account_type, metadata
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			id, in.UserID, in.Platform, in.ExternalAccountID,
			in.AccessToken, nullString(in.RefreshToken), in.ExpiresAt,
			primary, in.AccountLabel, accountType(in.AccountType), metadataValue(in.Metadata))
		return err
	})
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return id, nil
}

func (r *connectionRepository) UpsertOAuth1(ctx context.Context, in OAuth1Upsert) (string, error) {
	var id string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockAccountSet(ctx, tx, in.UserID, in.Platform); err != nil {
			return err
		}

		existing, err := findIdentity(ctx, tx, in.UserID, in.Platform, in.ExternalAccountID)
		if err != nil {
			return err
		}

		if existing != "" {
			id = existing
			_, err = tx.ExecContext(ctx, `
				UPDATE account_connections
				SET
					oauth1_access_token = $2,
					oauth1_token_secret = $3,
					oauth1_external_user_id = $4,
					account_label = COALESCE(NULLIF(account_label, ''), $5),
					updated_at = NOW()
				WHERE id = $1`,
				id, in.AccessToken, in.TokenSecret, in.ExternalUserID, in.AccountLabel)
			return err
		}

		primary, err := becomesPrimary(ctx, tx, in.UserID, in.Platform)
		if err != nil {
			return err
		}

		id = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO account_connections (
				id, user_id, platform, external_account_id,
				oauth1_access_token, oauth1_token_secret, oauth1_external_user_id,
				is_primary, account_label
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			id, in.UserID, in.Platform, in.ExternalAccountID,
			in.AccessToken, in.TokenSecret, in.ExternalUserID,
			primary, in.AccountLabel)
		return err
	})
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return id, nil
}

func (r *connectionRepository) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM account_connections WHERE id = $1`, id)

	c, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
			return nil, ErrConnectionNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return c, nil
}

func (r *connectionRepository) GetPrimary(ctx context.Context, userID, platform string) (*models.Connection, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+connectionColumns+`
		FROM account_connections
		WHERE user_id = $1 AND platform = $2 AND is_primary`, userID, platform)

	c, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return c, nil
}

func (r *connectionRepository) List(ctx context.Context, userID, platform string) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM account_connections WHERE user_id = $1`
	args := []interface{}{userID}

	if platform != "" {
		query += ` AND platform = $2`
		args = append(args, platform)
	}
	query += ` ORDER BY platform, is_primary DESC, created_at ASC`

	return r.query(ctx, query, args...)
}

// ListExpiring returns connections whose OAuth2 token expires before the
// given instant, including already expired ones.
func (r *connectionRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.Connection, error) {
	return r.query(ctx, `
		SELECT `+connectionColumns+`
		FROM account_connections
		WHERE oauth2_expires_at IS NOT NULL
			AND oauth2_access_token IS NOT NULL
			AND oauth2_expires_at <= $1
		ORDER BY oauth2_expires_at ASC`, before)
}

func (r *connectionRepository) SetPrimary(ctx context.Context, id string) error {
	userID, platform, err := r.accountSet(ctx, id)
	if err != nil {
		return err
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockAccountSet(ctx, tx, userID, platform); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE account_connections
			SET is_primary = FALSE, updated_at = NOW()
			WHERE user_id = $1 AND platform = $2 AND is_primary AND id <> $3`,
			userID, platform, id); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE account_connections
			SET is_primary = TRUE, updated_at = NOW()
			WHERE id = $1`, id)
		if err != nil {
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected != 1 {
			return ErrConnectionNotFound
		}
		return nil
	})
}

// UpdateOAuth2Grant replaces the grant of an existing connection. It never
// creates a row: a connection deleted meanwhile yields ErrConnectionNotFound.
func (r *connectionRepository) UpdateOAuth2Grant(ctx context.Context, id string, in GrantUpdate) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE account_connections
		SET
			oauth2_access_token = $2,
			oauth2_refresh_token = COALESCE(NULLIF($3, ''), oauth2_refresh_token),
			oauth2_expires_at = $4,
			needs_reauth = FALSE,
			reauth_reason = '',
			refresh_failures = 0,
			updated_at = NOW()
		WHERE id = $1`,
		id, in.AccessToken, in.RefreshToken, in.ExpiresAt)
	if err != nil {
		if isMalformedID(err) {
			return ErrConnectionNotFound
		}
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// RecordRefreshFailure counts a transient refresh failure and returns the
// number of consecutive failures since the last successful refresh.
func (r *connectionRepository) RecordRefreshFailure(ctx context.Context, id string) (int, error) {
	var failures int
	err := r.db.QueryRowContext(ctx, `
		UPDATE account_connections
		SET refresh_failures = refresh_failures + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING refresh_failures`, id).Scan(&failures)
	if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
		return 0, ErrConnectionNotFound
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return failures, nil
}

func (r *connectionRepository) MarkNeedsReauth(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE account_connections
		SET needs_reauth = TRUE, reauth_reason = $2, updated_at = NOW()
		WHERE id = $1`, id, reason)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Delete removes a connection. When it was primary, the most recently
// created remaining connection for the same platform is promoted. Deleting
// an unknown id is a no-op.
func (r *connectionRepository) Delete(ctx context.Context, id string) error {
	userID, platform, err := r.accountSet(ctx, id)
	if errors.Is(err, ErrConnectionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockAccountSet(ctx, tx, userID, platform); err != nil {
			return err
		}

		var wasPrimary bool
		err := tx.QueryRowContext(ctx,
			`DELETE FROM account_connections WHERE id = $1 RETURNING is_primary`, id).Scan(&wasPrimary)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if !wasPrimary {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE account_connections
			SET is_primary = TRUE, updated_at = NOW()
			WHERE id = (
				SELECT id FROM account_connections
				WHERE user_id = $1 AND platform = $2
				ORDER BY created_at DESC, id DESC
				LIMIT 1
			)`, userID, platform)
		return err
	})
}

func (r *connectionRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM account_connections WHERE user_id = $1`, userID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *connectionRepository) accountSet(ctx context.Context, id string) (string, string, error) {
	var userID, platform string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, platform FROM account_connections WHERE id = $1`, id).Scan(&userID, &platform)
	if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
		return "", "", ErrConnectionNotFound
	}
	if err != nil {
		slog.Info(err.Error())
		return "", "", err
	}
	return userID, platform, nil
}

func (r *connectionRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Connection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		connections = append(connections, c)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return connections, nil
}

func findIdentity(ctx context.Context, tx *sql.Tx, userID, platform, externalID string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM account_connections
		WHERE user_id = $1 AND platform = $2 AND external_account_id = $3
		FOR UPDATE`, userID, platform, externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// becomesPrimary reports whether a new row for the pair must take the
// primary flag, which is the case while no row holds it.
func becomesPrimary(ctx context.Context, tx *sql.Tx, userID, platform string) (bool, error) {
	var hasPrimary bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM account_connections
			WHERE user_id = $1 AND platform = $2 AND is_primary
		)`, userID, platform).Scan(&hasPrimary)
	if err != nil {
		return false, err
	}
	return !hasPrimary, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	var (
		c                                         models.Connection
		access2, refresh2, access1, secret1, ext1 sql.NullString
		expires                                   sql.NullTime
	)

	err := row.Scan(&c.ID, &c.UserID, &c.Platform, &c.ExternalAccountID,
		&access2, &refresh2, &expires,
		&access1, &secret1, &ext1,
		&c.IsPrimary, &c.AccountLabel, &c.AccountType, &c.Metadata,
		&c.NeedsReauth, &c.ReauthReason, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c.OAuth2AccessToken = access2.String
	c.OAuth2RefreshToken = refresh2.String
	c.OAuth1AccessToken = access1.String
	c.OAuth1TokenSecret = secret1.String
	c.OAuth1ExternalUserID = ext1.String
	if expires.Valid {
		t := expires.Time
		c.OAuth2ExpiresAt = &t
	}
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func accountType(t string) string {
	if t == "" {
		return models.AccountTypePersonal
	}
	return t
}

func metadataValue(m models.Metadata) models.Metadata {
	if m == nil {
		return models.Metadata{}
	}
	return m
}

// metadataArg is NULL for a nil bag so COALESCE keeps the stored value.
func metadataArg(m models.Metadata) interface{} {
	if m == nil {
		return nil
	}
	return m
}
