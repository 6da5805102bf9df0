package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

func TestFromResponse(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      string
		retryable bool
	}{
		{"rate limited", 429, `{}`, CodeRateLimited, true},
		{"server error", 503, `oops`, CodeUnavailable, true},
		{"unauthorized", 401, `{}`, CodeAuth, false},
		{"forbidden", 403, `{}`, CodeForbidden, false},
		{"bad request", 400, `{}`, CodeValidation, false},
		{"graph throttled", 400, `{"error":{"message":"slow down","code":4}}`, CodeRateLimited, true},
		{"graph expired token", 400, `{"error":{"message":"Session has expired","code":190}}`, CodeAuth, false},
		{"graph transient", 400, `{"error":{"message":"try later","code":2,"is_transient":true}}`, CodeUnavailable, true},
		{"tiktok spam", 400, `{"error":{"code":"spam_risk_too_many_posts","message":"too many"}}`, CodeRateLimited, true},
		{"tiktok token", 401, `{"error":{"code":"access_token_invalid","message":"bad"}}`, CodeAuth, false},
		{"twitter duplicate", 403, `{"detail":"You are not allowed to create a Tweet with duplicate content."}`, CodeDuplicate, false},
		{"twitter v1 duplicate", 403, `{"errors":[{"code":187,"message":"Status is a duplicate."}]}`, CodeDuplicate, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromResponse("x", tt.status, []byte(tt.body))
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.status, err.Status)
		})
	}
}

func TestClassify(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, Classify("x", nil))
	})

	t.Run("already classified", func(t *testing.T) {
		original := newError("x", CodeDuplicate, "dup")
		wrapped := fmt.Errorf("publish: %w", original)
		assert.Same(t, original, Classify("x", wrapped))
	})

	t.Run("deadline", func(t *testing.T) {
		err := Classify("x", fmt.Errorf("call: %w", context.DeadlineExceeded))
		assert.Equal(t, CodeTimeout, err.Code)
		assert.True(t, err.Retryable)
	})

	t.Run("invalid grant", func(t *testing.T) {
		rerr := &oauth2.RetrieveError{
			Response:  &http.Response{StatusCode: 400},
			Body:      []byte(`{"error":"invalid_grant"}`),
			ErrorCode: "invalid_grant",
		}
		err := Classify("twitter", rerr)
		assert.Equal(t, CodeAuth, err.Code)
		assert.False(t, err.Retryable)
		assert.True(t, errors.Is(err, rerr))
	})

	t.Run("google quota", func(t *testing.T) {
		gerr := &googleapi.Error{
			Code:    403,
			Message: "quota",
			Errors:  []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
		}
		err := Classify("youtube", gerr)
		assert.Equal(t, CodeRateLimited, err.Code)
		assert.True(t, err.Retryable)
	})

	t.Run("unknown", func(t *testing.T) {
		err := Classify("x", errors.New("boom"))
		assert.Equal(t, CodeUnknown, err.Code)
		assert.False(t, err.Retryable)
	})
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Platform: "facebook", Code: CodeAuth, Status: 401, Message: "expired"}
	assert.Equal(t, "facebook: auth_failed (status 401): expired", err.Error())

	err = newError("tiktok", CodeValidation, "no media")
	assert.Equal(t, "tiktok: validation_failed: no media", err.Error())
}
