package models

import "time"

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// PublishOutcome is the result for one target of one dispatch.
type PublishOutcome struct {
	Platform       string `json:"platform"`
	ConnectionID   string `json:"connection_id,omitempty"`
	AccountID      string `json:"account_id,omitempty"`
	Status         string `json:"status"`
	PlatformPostID string `json:"platform_post_id,omitempty"`
	ErrorCode      string `json:"error_code,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	Retryable      bool   `json:"retryable"`
}

func (o PublishOutcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}

// Post level status, aggregated over every target of a post.
const (
	PostScheduled = "scheduled"
	PostPublished = "published"
	PostPartial   = "partial"
	PostFailed    = "failed"
	PostRetrying  = "retrying"
)

// PostStatus aggregates target outcomes. retrying means another attempt is
// queued for the failed targets, which wins over partial or failed.
func PostStatus(outcomes []PublishOutcome, retrying bool) string {
	if retrying {
		return PostRetrying
	}

	var succeeded int
	for _, o := range outcomes {
		if o.Succeeded() {
			succeeded++
		}
	}
	switch {
	case len(outcomes) > 0 && succeeded == len(outcomes):
		return PostPublished
	case succeeded > 0:
		return PostPartial
	default:
		return PostFailed
	}
}

// PublishResult is a persisted outcome.
type PublishResult struct {
	ID             string    `db:"id" json:"id"`
	PostID         string    `db:"post_id" json:"post_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Platform       string    `db:"platform" json:"platform"`
	ConnectionID   string    `db:"connection_id" json:"connection_id,omitempty"`
	Status         string    `db:"status" json:"status"`
	PlatformPostID string    `db:"platform_post_id" json:"platform_post_id,omitempty"`
	ErrorCode      string    `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage   string    `db:"error_message" json:"error_message,omitempty"`
	Retryable      bool      `db:"retryable" json:"retryable"`
	Attempt        int       `db:"attempt" json:"attempt"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

func (r *PublishResult) Outcome() PublishOutcome {
	return PublishOutcome{
		Platform:       r.Platform,
		ConnectionID:   r.ConnectionID,
		Status:         r.Status,
		PlatformPostID: r.PlatformPostID,
		ErrorCode:      r.ErrorCode,
		ErrorMessage:   r.ErrorMessage,
		Retryable:      r.Retryable,
	}
}
