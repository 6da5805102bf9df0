package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"golang.org/x/time/rate"
)

// Outcome codes for failures that happen before a platform is called.
const (
	CodeUnsupportedPlatform = "unsupported_platform"
	CodeNoConnection        = "no_connection"
	CodeMissingCapability   = "missing_capability"
	CodeDecryptionFailed    = "decryption_failed"
	CodeStoreError          = "store_error"
	CodeInternal            = "internal_error"
)

type PublishDispatcher interface {
	// Publish sends post to every target and returns one outcome per target
	// in input order. It never fails as a whole.
	Publish(ctx context.Context, post *models.Post, targets []models.Target) []models.PublishOutcome
}

type DispatcherConfig struct {
	Timeout time.Duration
	// MediaTimeout bounds targets that upload media, which includes waiting
	// for the platform to process video. Never shorter than Timeout.
	MediaTimeout time.Duration
	Concurrency  int
	// RateLimit and Burst bound calls per platform across all users.
	RateLimit rate.Limit
	Burst     int
}

type publishDispatcher struct {
	selector   CredentialSelector
	cipher     *utils.TokenCipher
	publishers *platform.Registry
	metrics    metrics.Metrics
	timeout    time.Duration
	mediaWait  time.Duration
	sem        chan struct{}
	limiters   map[string]*rate.Limiter
}

func NewPublishDispatcher(
	selector CredentialSelector,
	cipher *utils.TokenCipher,
	publishers *platform.Registry,
	m metrics.Metrics,
	cfg DispatcherConfig) PublishDispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MediaTimeout < cfg.Timeout {
		cfg.MediaTimeout = cfg.Timeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = rate.Inf
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	limiters := make(map[string]*rate.Limiter, len(models.Platforms))
	for _, p := range models.Platforms {
		limiters[p] = rate.NewLimiter(cfg.RateLimit, cfg.Burst)
	}

	return &publishDispatcher{
		selector:   selector,
		cipher:     cipher,
		publishers: publishers,
		metrics:    m,
		timeout:    cfg.Timeout,
		mediaWait:  cfg.MediaTimeout,
		sem:        make(chan struct{}, cfg.Concurrency),
		limiters:   limiters,
	}
}

func (d *publishDispatcher) Publish(ctx context.Context, post *models.Post, targets []models.Target) []models.PublishOutcome {
	outcomes := make([]models.PublishOutcome, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target models.Target) {
			defer wg.Done()
			d.sem <- struct{}{}
			defer func() { <-d.sem }()

			outcomes[i] = d.publishTarget(ctx, post, target)
		}(i, target)
	}
	wg.Wait()

	return outcomes
}

func (d *publishDispatcher) publishTarget(ctx context.Context, post *models.Post, target models.Target) (outcome models.PublishOutcome) {
	outcome = models.PublishOutcome{Platform: target.Platform, AccountID: target.AccountID}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("publish panicked", "target", target.String(), "panic", r)
			outcome = failed(outcome, CodeInternal, fmt.Sprint(r), false)
		}
		d.metrics.PublishOutcome(outcome.Platform, outcome.Status, outcome.ErrorCode)
	}()

	if !models.IsPlatform(target.Platform) {
		return failed(outcome, CodeUnsupportedPlatform, fmt.Sprintf("unsupported platform %q", target.Platform), false)
	}
	if err := target.Validate(); err != nil {
		// A malformed account id cannot name any connection.
		return failed(outcome, CodeNoConnection, err.Error(), false)
	}
	publisher, err := d.publishers.Get(target.Platform)
	if err != nil {
		return failed(outcome, CodeUnsupportedPlatform, err.Error(), false)
	}

	content := platform.BuildContent(post, target.Platform, target.AccountID)
	conn, kind, err := d.selector.Select(ctx, target.Platform, content.HasMedia(), post.UserID, target.AccountID)
	if err != nil {
		return selectionFailure(outcome, err)
	}
	outcome.ConnectionID = conn.ID

	// A variant keyed by the resolved connection may change the media set.
	if target.AccountID != conn.ID {
		resolved := platform.BuildContent(post, target.Platform, conn.ID)
		if resolved.HasMedia() != content.HasMedia() {
			if kind, err = ChooseCredentialKind(target.Platform, resolved.HasMedia(), conn); err != nil {
				return selectionFailure(outcome, err)
			}
		}
		content = resolved
	}

	creds, err := d.credentials(conn, kind)
	if err != nil {
		slog.Error("cannot decrypt connection credentials", "connection_id", conn.ID, "platform", conn.Platform, "error", err)
		return failed(outcome, CodeDecryptionFailed, "stored credentials cannot be decrypted", false)
	}

	// The caller may go away; calls already started run until their own
	// timeout.
	timeout := d.timeout
	if content.HasMedia() {
		timeout = d.mediaWait
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := d.limiters[target.Platform].Wait(callCtx); err != nil {
		return failed(outcome, platform.CodeRateLimited, err.Error(), true)
	}

	observer := d.metrics.StartPlatformCall(target.Platform)
	postID, err := publisher.Publish(callCtx, creds, content)
	observer.Finish()

	if err != nil {
		perr := platform.Classify(target.Platform, err)
		slog.Info("publish failed", "platform", target.Platform, "connection_id", conn.ID,
			"code", perr.Code, "retryable", perr.Retryable, "error", perr.Error())
		return failed(outcome, perr.Code, perr.Error(), perr.Retryable)
	}

	outcome.Status = models.OutcomeSuccess
	outcome.PlatformPostID = postID
	return outcome
}

func (d *publishDispatcher) credentials(conn *models.Connection, kind platform.CredentialKind) (platform.Credentials, error) {
	creds := platform.Credentials{
		Kind:              kind,
		ExternalAccountID: conn.ExternalAccountID,
		AccountType:       conn.AccountType,
		Metadata:          conn.Metadata,
	}

	var err error
	switch kind {
	case platform.OAuth1:
		if creds.Token, err = d.cipher.Decrypt(conn.OAuth1AccessToken); err != nil {
			return creds, err
		}
		if creds.TokenSecret, err = d.cipher.Decrypt(conn.OAuth1TokenSecret); err != nil {
			return creds, err
		}
	default:
		if creds.AccessToken, err = d.cipher.Decrypt(conn.OAuth2AccessToken); err != nil {
			return creds, err
		}
	}
	return creds, nil
}

func selectionFailure(outcome models.PublishOutcome, err error) models.PublishOutcome {
	var missing *MissingCapabilityError
	switch {
	case errors.Is(err, ErrNoConnection):
		return failed(outcome, CodeNoConnection, err.Error(), false)
	case errors.As(err, &missing):
		return failed(outcome, CodeMissingCapability, err.Error(), false)
	default:
		// The store being unreachable says nothing about the post itself.
		slog.Error("cannot resolve connection", "platform", outcome.Platform, "error", err)
		return failed(outcome, CodeStoreError, err.Error(), true)
	}
}

func failed(outcome models.PublishOutcome, code, message string, retryable bool) models.PublishOutcome {
	outcome.Status = models.OutcomeFailed
	outcome.ErrorCode = code
	outcome.ErrorMessage = message
	outcome.Retryable = retryable
	return outcome
}
