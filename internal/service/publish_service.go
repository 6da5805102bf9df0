package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
)

// PublishScheduler queues a publish job to run at a given time.
type PublishScheduler interface {
	SchedulePublish(ctx context.Context, job models.PublishJob, at time.Time) error
}

type PublishSubmission struct {
	PostID      string                  `json:"post_id"`
	Status      string                  `json:"status"`
	ScheduledAt *time.Time              `json:"scheduled_at,omitempty"`
	Outcomes    []models.PublishOutcome `json:"outcomes,omitempty"`
}

// PostResults is the recorded history of a post. Status is computed from the
// latest attempt of each target.
type PostResults struct {
	PostID  string                  `json:"post_id"`
	Status  string                  `json:"status"`
	Results []*models.PublishResult `json:"results"`
}

type PublishService interface {
	// Submit publishes now, or queues the post when it is scheduled in the
	// future.
	Submit(ctx context.Context, post *models.Post, targets []models.Target) (*PublishSubmission, error)
	// Run dispatches a job, records every outcome and queues another attempt
	// for targets that failed with a retryable error.
	Run(ctx context.Context, job models.PublishJob) ([]models.PublishOutcome, error)
	Results(ctx context.Context, userID, postID string) (*PostResults, error)
}

type publishService struct {
	dispatcher  PublishDispatcher
	results     repository.PublishResultRepository
	scheduler   PublishScheduler
	maxAttempts int
	retryDelay  func(attempt int) time.Duration
	now         func() time.Time
}

func NewPublishService(
	dispatcher PublishDispatcher,
	results repository.PublishResultRepository,
	scheduler PublishScheduler,
	maxAttempts int) PublishService {
	return &publishService{
		dispatcher:  dispatcher,
		results:     results,
		scheduler:   scheduler,
		maxAttempts: maxAttempts,
		retryDelay:  RetryDelay,
		now:         time.Now,
	}
}

func (s *publishService) Submit(ctx context.Context, post *models.Post, targets []models.Target) (*PublishSubmission, error) {
	if err := validation.Validate(targets, validation.Required); err != nil {
		return nil, validation.Errors{"targets": err}
	}
	if err := post.Validate(); err != nil {
		return nil, err
	}
	if post.ID == "" {
		post.ID = uuid.NewString()
	}

	job := models.PublishJob{Post: *post, Targets: targets, Attempt: 1}

	if post.ScheduledAt != nil && post.ScheduledAt.After(s.now()) {
		if err := s.scheduler.SchedulePublish(ctx, job, *post.ScheduledAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		return &PublishSubmission{PostID: post.ID, Status: models.PostScheduled, ScheduledAt: post.ScheduledAt}, nil
	}

	outcomes, retrying, err := s.run(ctx, job)
	if err != nil {
		return nil, err
	}
	return &PublishSubmission{PostID: post.ID, Status: models.PostStatus(outcomes, retrying), Outcomes: outcomes}, nil
}

func (s *publishService) Run(ctx context.Context, job models.PublishJob) ([]models.PublishOutcome, error) {
	outcomes, _, err := s.run(ctx, job)
	return outcomes, err
}

// run reports whether another attempt was queued.
func (s *publishService) run(ctx context.Context, job models.PublishJob) ([]models.PublishOutcome, bool, error) {
	outcomes := s.dispatcher.Publish(ctx, &job.Post, job.Targets)

	var retry []models.Target
	for i, outcome := range outcomes {
		s.record(ctx, job, outcome)

		if !outcome.Succeeded() && outcome.Retryable {
			target := job.Targets[i]
			// Pin the retry to the connection that was used.
			if outcome.ConnectionID != "" {
				target.AccountID = outcome.ConnectionID
			}
			retry = append(retry, target)
		}
	}

	if len(retry) == 0 {
		return outcomes, false, nil
	}
	if job.Attempt >= s.maxAttempts {
		slog.Warn("giving up on retryable targets", "post_id", job.Post.ID, "attempt", job.Attempt, "targets", len(retry))
		return outcomes, false, nil
	}

	next := models.PublishJob{Post: job.Post, Targets: retry, Attempt: job.Attempt + 1}
	at := s.now().Add(s.retryDelay(job.Attempt))
	if err := s.scheduler.SchedulePublish(ctx, next, at); err != nil {
		slog.Error("cannot queue publish retry", "post_id", job.Post.ID, "error", err)
		return outcomes, false, err
	}
	slog.Info("queued publish retry", "post_id", job.Post.ID, "attempt", next.Attempt, "at", at, "targets", len(retry))
	return outcomes, true, nil
}

func (s *publishService) record(ctx context.Context, job models.PublishJob, outcome models.PublishOutcome) {
	_, err := s.results.Create(ctx, &models.PublishResult{
		PostID:         job.Post.ID,
		UserID:         job.Post.UserID,
		Platform:       outcome.Platform,
		ConnectionID:   outcome.ConnectionID,
		Status:         outcome.Status,
		PlatformPostID: outcome.PlatformPostID,
		ErrorCode:      outcome.ErrorCode,
		ErrorMessage:   outcome.ErrorMessage,
		Retryable:      outcome.Retryable,
		Attempt:        job.Attempt,
	})
	if err != nil {
		slog.Error("cannot record publish result", "post_id", job.Post.ID, "platform", outcome.Platform, "error", err)
	}
}

// Results lists every recorded attempt for a post owned by userID.
func (s *publishService) Results(ctx context.Context, userID, postID string) (*PostResults, error) {
	results, err := s.results.ListByPostID(ctx, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	owned := results[:0]
	for _, r := range results {
		if r.UserID == userID {
			owned = append(owned, r)
		}
	}
	if len(owned) == 0 {
		return nil, ErrNotFound
	}

	var (
		latest   = latestAttempts(owned)
		outcomes = make([]models.PublishOutcome, 0, len(latest))
		retrying bool
	)
	for _, r := range latest {
		outcomes = append(outcomes, r.Outcome())
		if r.Status == models.OutcomeFailed && r.Retryable && r.Attempt < s.maxAttempts {
			retrying = true
		}
	}
	return &PostResults{PostID: postID, Status: models.PostStatus(outcomes, retrying), Results: owned}, nil
}

// latestAttempts keeps the last recorded attempt per target. A target is a
// platform and connection; a failure recorded before any connection was
// resolved is superseded by any later attempt on the same platform.
func latestAttempts(results []*models.PublishResult) []*models.PublishResult {
	type key struct{ platform, connectionID string }

	latest := map[key]*models.PublishResult{}
	lastOnPlatform := map[string]int{}
	for _, r := range results {
		k := key{r.Platform, r.ConnectionID}
		if cur, ok := latest[k]; !ok || r.Attempt > cur.Attempt {
			latest[k] = r
		}
		if r.Attempt > lastOnPlatform[r.Platform] {
			lastOnPlatform[r.Platform] = r.Attempt
		}
	}

	out := make([]*models.PublishResult, 0, len(latest))
	for k, r := range latest {
		if k.connectionID == "" && r.Attempt < lastOnPlatform[k.platform] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// RetryDelay is the wait before attempt+1: exponential from 30 seconds,
// capped at 30 minutes.
func RetryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 30 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Minute
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
