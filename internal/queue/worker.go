package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/models"
)

func (q *Queue) HandlePublishTask(ctx context.Context, task *asynq.Task) error {
	var job models.PublishJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("decode publish job: %v: %w", err, asynq.SkipRetry)
	}

	outcomes, err := q.publisher.Run(ctx, job)
	if err != nil {
		// Outcomes are already recorded; failing the task would publish the
		// successful targets twice.
		slog.Error("publish job finished with error", "post_id", job.Post.ID, "attempt", job.Attempt, "error", err)
	}

	succeeded := 0
	for _, o := range outcomes {
		if o.Succeeded() {
			succeeded++
		}
	}
	slog.Info("publish job done", "post_id", job.Post.ID, "attempt", job.Attempt,
		"targets", len(outcomes), "succeeded", succeeded)
	return nil
}

type webhook struct {
	Event string             `json:"event"`
	Data  models.ReauthEvent `json:"data"`
}

// HandleReauthTask posts the event to the notification webhook. A non-2xx
// answer fails the task so asynq retries it.
func (q *Queue) HandleReauthTask(ctx context.Context, task *asynq.Task) error {
	if q.webhookURL == "" {
		return nil
	}

	var event models.ReauthEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return fmt.Errorf("decode reauth event: %v: %w", err, asynq.SkipRetry)
	}

	body, err := json.Marshal(webhook{Event: EventNeedsReauth, Data: event})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.http.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook answered %d", resp.StatusCode)
	}

	slog.Info("reauth notification sent", "connection_id", event.ConnectionID, "platform", event.Platform)
	return nil
}
