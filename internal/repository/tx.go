package repository

import (
	"context"
	"database/sql"
	"log/slog"
)

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return mapError(err)
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return mapError(err)
	}
	return nil
}

// lockAccountSet serializes primary election for one (user, platform) pair
// until the transaction ends.
func lockAccountSet(ctx context.Context, tx *sql.Tx, userID, platform string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, userID, platform)
	return err
}
