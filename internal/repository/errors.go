package repository

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

var (
	ErrConstraintViolation  = errors.New("constraint violation")
	ErrConnectionNotFound   = errors.New("connection not found")
	ErrPendingTokenNotFound = errors.New("pending request token not found")
)

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

// mapError turns unique violations into ErrConstraintViolation. Those are
// invariant breaches, so they are logged at error level.
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		slog.Error("store invariant violated", "constraint", pqErr.Constraint, "detail", pqErr.Detail)
		return fmt.Errorf("%w: %s", ErrConstraintViolation, pqErr.Constraint)
	}
	return err
}

// isMalformedID reports an id literal postgres cannot cast to uuid. No row
// can match such an id.
func isMalformedID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation
}
