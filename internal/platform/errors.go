package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

const (
	CodeRateLimited = "rate_limited"
	CodeUnavailable = "platform_unavailable"
	CodeNetwork     = "network_error"
	CodeTimeout     = "timeout"
	CodeAuth        = "auth_failed"
	CodeForbidden   = "forbidden"
	CodeDuplicate   = "duplicate_content"
	CodeValidation  = "validation_failed"
	CodeNotFound    = "not_found"
	CodeUnknown     = "platform_error"
)

// Error is a failed platform call with its retry classification.
type Error struct {
	Platform  string
	Code      string
	Status    int
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Platform, e.Code, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(platform, code, message string) *Error {
	return &Error{Platform: platform, Code: code, Message: message, Retryable: retryableCode(code)}
}

func retryableCode(code string) bool {
	switch code {
	case CodeRateLimited, CodeUnavailable, CodeNetwork, CodeTimeout:
		return true
	}
	return false
}

// graphError is the error envelope used by the Meta Graph APIs.
type graphError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		IsTransient  bool   `json:"is_transient"`
	} `json:"error"`
}

// tiktokError is TikTok's {"error": {"code": ...}} envelope.
type tiktokError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// twitterError covers the v2 problem shape and the v1.1 errors array.
type twitterError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// FromResponse classifies a non-2xx platform response.
func FromResponse(platform string, status int, body []byte) *Error {
	e := &Error{Platform: platform, Status: status, Message: summarize(body)}

	switch {
	case status == http.StatusTooManyRequests:
		e.Code = CodeRateLimited
	case status >= 500:
		e.Code = CodeUnavailable
	case status == http.StatusUnauthorized:
		e.Code = CodeAuth
	case status == http.StatusForbidden:
		e.Code = CodeForbidden
	case status == http.StatusNotFound:
		e.Code = CodeNotFound
	case status == http.StatusConflict:
		e.Code = CodeDuplicate
	default:
		e.Code = CodeValidation
	}

	refineFromBody(e, body)
	e.Retryable = retryableCode(e.Code)
	return e
}

func refineFromBody(e *Error, body []byte) {
	var ge graphError
	if json.Unmarshal(body, &ge) == nil && ge.Error.Code != 0 {
		e.Message = ge.Error.Message
		switch ge.Error.Code {
		case 4, 17, 32, 613, 80001, 80002, 80004:
			e.Code = CodeRateLimited
		case 190, 102:
			e.Code = CodeAuth
		case 10, 200:
			e.Code = CodeForbidden
		case 506:
			e.Code = CodeDuplicate
		}
		if ge.Error.IsTransient && e.Code != CodeRateLimited {
			e.Code = CodeUnavailable
		}
		return
	}

	var te tiktokError
	if json.Unmarshal(body, &te) == nil && te.Error.Code != "" && te.Error.Code != "ok" {
		e.Message = te.Error.Message
		switch te.Error.Code {
		case "rate_limit_exceeded", "spam_risk_too_many_posts":
			e.Code = CodeRateLimited
		case "access_token_invalid", "scope_not_authorized", "token_not_authorized_for_specified_deviceID":
			e.Code = CodeAuth
		case "internal_error":
			e.Code = CodeUnavailable
		}
		return
	}

	var tw twitterError
	if json.Unmarshal(body, &tw) == nil {
		if tw.Detail != "" {
			e.Message = tw.Detail
		}
		for _, item := range tw.Errors {
			if item.Code == 187 {
				e.Code = CodeDuplicate
			}
			if item.Message != "" && e.Message == "" {
				e.Message = item.Message
			}
		}
	}

	if strings.Contains(strings.ToLower(e.Message), "duplicate") {
		e.Code = CodeDuplicate
	}
}

func summarize(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}

// Classify maps any error returned while talking to a platform onto an
// *Error. Errors already classified are returned as is.
func Classify(platform string, err error) *Error {
	if err == nil {
		return nil
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		e := FromResponse(platform, gerr.Code, []byte(gerr.Body))
		if e.Message == "" {
			e.Message = gerr.Message
		}
		for _, item := range gerr.Errors {
			switch item.Reason {
			case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded", "uploadLimitExceeded":
				e.Code = CodeRateLimited
				e.Retryable = true
			}
		}
		e.Err = err
		return e
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		e := FromResponse(platform, status, rerr.Body)
		if rerr.ErrorCode == "invalid_grant" || rerr.ErrorCode == "invalid_client" || rerr.ErrorCode == "unauthorized_client" {
			e.Code = CodeAuth
			e.Retryable = false
		}
		if rerr.ErrorCode != "" {
			e.Message = rerr.ErrorCode + ": " + rerr.ErrorDescription
		}
		e.Err = err
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &Error{Platform: platform, Code: CodeTimeout, Retryable: true, Err: err}
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{Platform: platform, Code: CodeTimeout, Retryable: true, Err: err}
	}

	var uerr *url.Error
	if errors.As(err, &uerr) || nerr != nil {
		return &Error{Platform: platform, Code: CodeNetwork, Retryable: true, Err: err}
	}

	return &Error{Platform: platform, Code: CodeUnknown, Err: err}
}
