package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/models"
)

const (
	publishRetention   = 24 * time.Hour
	notifyMaxRetry     = 8
	notifyTaskDeadline = time.Minute
)

// Scheduler enqueues publish jobs and reauth notifications.
type Scheduler struct {
	client        *asynq.Client
	notifications bool
}

// NewScheduler returns a Scheduler. Reauth events are dropped when
// webhookURL is empty.
func NewScheduler(client *asynq.Client, webhookURL string) *Scheduler {
	return &Scheduler{client: client, notifications: webhookURL != ""}
}

func publishTaskID(job models.PublishJob) string {
	return fmt.Sprintf("publish:%s:%d", job.Post.ID, job.Attempt)
}

// SchedulePublish queues job to run at at. Each (post, attempt) pair is
// queued at most once.
func (s *Scheduler) SchedulePublish(ctx context.Context, job models.PublishJob, at time.Time) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypePublishPost, payload)
	// Outcomes are persisted and retried per target, so the task itself is
	// never retried.
	info, err := s.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.MaxRetry(0),
		asynq.TaskID(publishTaskID(job)),
		asynq.Retention(publishRetention))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Info("publish task already queued", "post_id", job.Post.ID, "attempt", job.Attempt)
		return nil
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	slog.Info("publish task queued", "task_id", info.ID, "post_id", job.Post.ID, "attempt", job.Attempt, "at", at)
	return nil
}

func (s *Scheduler) NotifyReauth(ctx context.Context, event models.ReauthEvent) error {
	if !s.notifications {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeNotifyReauth, payload)
	_, err = s.client.EnqueueContext(ctx, task, asynq.MaxRetry(notifyMaxRetry), asynq.Timeout(notifyTaskDeadline))
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
