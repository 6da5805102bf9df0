package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	MediaImage = "image"
	MediaVideo = "video"
)

// MediaRef points at an already uploaded asset. Key addresses it in the
// media store; URL is what platforms that pull media fetch.
type MediaRef struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	URL      string `json:"url"`
	Key      string `json:"key,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

func (m MediaRef) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required),
		validation.Field(&m.Kind, validation.Required, validation.In(MediaImage, MediaVideo)),
		validation.Field(&m.URL, validation.Required, is.URL),
	)
}

// Variant overrides the universal content for a platform ("linkedin") or a
// single account ("linkedin:<connection id>").
type Variant struct {
	Content  string   `json:"content"`
	Hashtags []string `json:"hashtags,omitempty"`
	MediaIDs []string `json:"media_ids,omitempty"`
	Title    string   `json:"title,omitempty"`
}

type Post struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	Content     string             `json:"content"`
	Title       string             `json:"title,omitempty"`
	Hashtags    []string           `json:"hashtags,omitempty"`
	Media       []MediaRef         `json:"media,omitempty"`
	Variants    map[string]Variant `json:"variants,omitempty"`
	ScheduledAt *time.Time         `json:"scheduled_at,omitempty"`
}

func (p Post) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.UserID, validation.Required),
		validation.Field(&p.Content, validation.When(len(p.Media) == 0 && len(p.Variants) == 0, validation.Required)),
		validation.Field(&p.Media),
	)
}

func (p *Post) HasMedia() bool {
	return len(p.Media) > 0
}

// Target is one (platform, account) pair a post is dispatched to. AccountID
// is a connection id; empty addresses the user's primary connection.
type Target struct {
	Platform  string `json:"platform"`
	AccountID string `json:"account_id,omitempty"`
}

func (t Target) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Platform, validation.Required, validation.By(knownPlatform)),
		validation.Field(&t.AccountID, is.UUID),
	)
}

func (t Target) String() string {
	if t.AccountID == "" {
		return t.Platform
	}
	return t.Platform + ":" + t.AccountID
}

func knownPlatform(value interface{}) error {
	p, _ := value.(string)
	if !IsPlatform(p) {
		return validation.NewError("validation_unknown_platform", "unsupported platform")
	}
	return nil
}

// PublishJob is a post queued for dispatch. Attempt counts from 1.
type PublishJob struct {
	Post    Post     `json:"post"`
	Targets []Target `json:"targets"`
	Attempt int      `json:"attempt"`
}
