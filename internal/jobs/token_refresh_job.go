package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/lock"
	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

const (
	refreshLockTTL     = 10 * time.Minute
	refreshCallTimeout = 30 * time.Second
	refreshConcurrency = 10

	// maxTransientFailures consecutive retryable failures flag a connection
	// even while its token still works.
	maxTransientFailures = 3
)

var errConnectionGone = errors.New("connection deleted during refresh")

const (
	RefreshOK     = "ok"
	RefreshFailed = "failed"
	RefreshError  = "error"
)

// ReauthNotifier delivers "connect this account again" events to the user.
type ReauthNotifier interface {
	NotifyReauth(ctx context.Context, event models.ReauthEvent) error
}

type RefreshReport struct {
	Scanned   int
	Refreshed int
	Failed    int
	Skipped   int
}

type TokenRefreshJob struct {
	connections repository.ConnectionRepository
	providers   *platform.Providers
	cipher      *utils.TokenCipher
	notifier    ReauthNotifier
	metrics     metrics.Metrics
	locker      *lock.Locker
	now         func() time.Time
}

func NewTokenRefreshJob(
	connections repository.ConnectionRepository,
	providers *platform.Providers,
	cipher *utils.TokenCipher,
	notifier ReauthNotifier,
	m metrics.Metrics,
	locker *lock.Locker) *TokenRefreshJob {
	return &TokenRefreshJob{
		connections: connections,
		providers:   providers,
		cipher:      cipher,
		notifier:    notifier,
		metrics:     m,
		locker:      locker,
		now:         time.Now,
	}
}

// RefreshTokens is the cron entry. Only the instance holding the lock runs a
// pass.
func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	err := j.locker.Run(ctx, refreshLockTTL, func(ctx context.Context) error {
		report, err := j.Scan(ctx, j.now())
		if err != nil {
			return err
		}
		slog.Info("token refresh pass finished",
			"scanned", report.Scanned, "refreshed", report.Refreshed,
			"failed", report.Failed, "skipped", report.Skipped)
		return nil
	})
	if errors.Is(err, lock.ErrHeld) {
		slog.Info("token refresh pass is running on another instance")
		return
	}
	if err != nil {
		slog.Error("token refresh pass failed", "error", err)
	}
}

// Scan refreshes every OAuth2 grant expiring within its platform's threshold
// of now. A failing connection never stops the pass.
func (j *TokenRefreshJob) Scan(ctx context.Context, now time.Time) (RefreshReport, error) {
	var report RefreshReport

	conns, err := j.connections.ListExpiring(ctx, now.Add(j.providers.MaxThreshold()))
	if err != nil {
		slog.Info(err.Error())
		return report, err
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	semaphore := make(chan struct{}, refreshConcurrency)

	for _, conn := range conns {
		report.Scanned++

		provider, err := j.providers.Get(conn.Platform)
		if err != nil || !dueForRefresh(conn, provider, now) {
			report.Skipped++
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(conn *models.Connection, provider platform.OAuth2Provider) {
			defer wg.Done()
			defer func() { <-semaphore }()

			err := j.refresh(ctx, provider, conn, now)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, errConnectionGone):
				report.Skipped++
			case err != nil:
				report.Failed++
			default:
				report.Refreshed++
			}
		}(conn, provider)
	}

	wg.Wait()
	return report, nil
}

func dueForRefresh(conn *models.Connection, provider platform.OAuth2Provider, now time.Time) bool {
	if !conn.HasOAuth2() || conn.OAuth2ExpiresAt == nil {
		return false
	}
	return conn.OAuth2ExpiresAt.Sub(now) <= provider.RefreshThreshold()
}

func (j *TokenRefreshJob) refresh(ctx context.Context, provider platform.OAuth2Provider, conn *models.Connection, now time.Time) error {
	current, err := j.currentGrant(conn)
	if err != nil {
		// A key mismatch is an operator problem, not the user's.
		slog.Error("cannot decrypt grant for refresh", "connection_id", conn.ID, "platform", conn.Platform, "error", err)
		j.metrics.TokenRefresh(conn.Platform, RefreshError)
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, refreshCallTimeout)
	defer cancel()

	grant, err := provider.Refresh(callCtx, current)
	if err != nil {
		perr := platform.Classify(conn.Platform, err)
		j.metrics.TokenRefresh(conn.Platform, RefreshFailed)
		j.flag(ctx, conn, perr, now)
		return perr
	}

	if err := j.store(ctx, conn, grant); err != nil {
		if errors.Is(err, repository.ErrConnectionNotFound) {
			slog.Info("connection deleted during refresh, dropping grant", "connection_id", conn.ID, "platform", conn.Platform)
			return errConnectionGone
		}
		slog.Error("cannot store refreshed grant", "connection_id", conn.ID, "platform", conn.Platform, "error", err)
		j.metrics.TokenRefresh(conn.Platform, RefreshError)
		return err
	}

	j.metrics.TokenRefresh(conn.Platform, RefreshOK)
	slog.Info("token refreshed", "connection_id", conn.ID, "platform", conn.Platform)
	return nil
}

func (j *TokenRefreshJob) currentGrant(conn *models.Connection) (models.OAuth2Grant, error) {
	access, err := j.cipher.Decrypt(conn.OAuth2AccessToken)
	if err != nil {
		return models.OAuth2Grant{}, err
	}
	refresh, err := j.cipher.DecryptOptional(conn.OAuth2RefreshToken)
	if err != nil {
		return models.OAuth2Grant{}, err
	}
	return models.OAuth2Grant{AccessToken: access, RefreshToken: refresh, ExpiresAt: conn.OAuth2ExpiresAt}, nil
}

// store writes the new grant onto the existing row. An empty refresh token
// keeps the stored one.
func (j *TokenRefreshJob) store(ctx context.Context, conn *models.Connection, grant *models.OAuth2Grant) error {
	access, err := j.cipher.Encrypt(grant.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := j.cipher.EncryptOptional(grant.RefreshToken)
	if err != nil {
		return err
	}

	return j.connections.UpdateOAuth2Grant(ctx, conn.ID, repository.GrantUpdate{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    grant.ExpiresAt,
	})
}

// flag marks the connection as needing a new handshake and tells the user.
// Transient failures are left for the next pass while the token still works,
// until they repeat maxTransientFailures times in a row.
func (j *TokenRefreshJob) flag(ctx context.Context, conn *models.Connection, perr *platform.Error, now time.Time) {
	stillValid := conn.OAuth2ExpiresAt != nil && conn.OAuth2ExpiresAt.After(now)
	if perr.Retryable && stillValid {
		failures, err := j.connections.RecordRefreshFailure(ctx, conn.ID)
		if err != nil {
			if !errors.Is(err, repository.ErrConnectionNotFound) {
				slog.Error("cannot count refresh failure", "connection_id", conn.ID, "error", err)
			}
			return
		}
		if failures < maxTransientFailures {
			slog.Warn("token refresh failed, retrying next pass", "connection_id", conn.ID, "platform", conn.Platform,
				"failures", failures, "error", perr)
			return
		}
	}

	slog.Warn("token refresh failed, connection needs reauth", "connection_id", conn.ID, "platform", conn.Platform, "error", perr)

	reason := perr.Code
	if perr.Message != "" {
		reason += ": " + perr.Message
	}
	if err := j.connections.MarkNeedsReauth(ctx, conn.ID, reason); err != nil {
		slog.Error("cannot flag connection", "connection_id", conn.ID, "error", err)
	}

	if conn.NeedsReauth {
		// Already reported on an earlier pass.
		return
	}
	err := j.notifier.NotifyReauth(ctx, models.ReauthEvent{
		ConnectionID: conn.ID,
		UserID:       conn.UserID,
		Platform:     conn.Platform,
		AccountLabel: conn.AccountLabel,
		Reason:       reason,
		OccurredAt:   now,
	})
	if err != nil {
		slog.Error("cannot queue reauth notification", "connection_id", conn.ID, "error", err)
	}
}
