package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrExpired is returned for handshake state that outlived its TTL. It
	// matches ErrNotFound so callers can treat both as "restart the flow".
	ErrExpired             = fmt.Errorf("%w: expired", ErrNotFound)
	ErrNoConnection        = errors.New("no connection for platform")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrForbidden           = errors.New("connection belongs to another user")
	ErrInvalidState        = errors.New("invalid oauth state")
)

type MissingCapabilityError struct {
	Platform   string
	Capability string
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("%s connection is missing capability %q", e.Platform, e.Capability)
}

// OAuthExchangeFailedError is a rejected handshake step. The handshake must
// be restarted by the user.
type OAuthExchangeFailedError struct {
	Platform string
	Cause    error
}

func (e *OAuthExchangeFailedError) Error() string {
	return fmt.Sprintf("%s oauth exchange failed: %v", e.Platform, e.Cause)
}

func (e *OAuthExchangeFailedError) Unwrap() error { return e.Cause }
