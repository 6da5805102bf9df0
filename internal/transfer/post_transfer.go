package transfer

import (
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

// PublishRequest is the body of POST /api/posts/publish.
type PublishRequest struct {
	Content     string                    `json:"content"`
	Title       string                    `json:"title,omitempty"`
	Hashtags    []string                  `json:"hashtags,omitempty"`
	Media       []models.MediaRef         `json:"media,omitempty"`
	Variants    map[string]models.Variant `json:"variants,omitempty"`
	ScheduledAt *time.Time                `json:"scheduled_at,omitempty"`
	Targets     []models.Target           `json:"targets"`
}
