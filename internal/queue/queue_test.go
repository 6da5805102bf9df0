package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *asynq.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testJob() models.PublishJob {
	return models.PublishJob{
		Post:    models.Post{ID: "post-1", UserID: "u1", Content: "hello"},
		Targets: []models.Target{{Platform: models.PlatformLinkedIn}},
		Attempt: 2,
	}
}

func TestSchedulePublish(t *testing.T) {
	mr, client := newTestClient(t)
	s := NewScheduler(client, "")

	err := s.SchedulePublish(context.Background(), testJob(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	assert.True(t, mr.Exists("asynq:{default}:t:publish:post-1:2"))
	assert.Contains(t, mr.Keys(), "asynq:{default}:scheduled")
}

func TestSchedulePublishIsIdempotent(t *testing.T) {
	_, client := newTestClient(t)
	s := NewScheduler(client, "")

	at := time.Now().Add(time.Hour)
	require.NoError(t, s.SchedulePublish(context.Background(), testJob(), at))
	assert.NoError(t, s.SchedulePublish(context.Background(), testJob(), at))
}

func TestNotifyReauthDisabled(t *testing.T) {
	mr, client := newTestClient(t)
	s := NewScheduler(client, "")

	require.NoError(t, s.NotifyReauth(context.Background(), models.ReauthEvent{ConnectionID: "c1"}))
	assert.Empty(t, mr.Keys())
}

func TestNotifyReauthEnqueues(t *testing.T) {
	mr, client := newTestClient(t)
	s := NewScheduler(client, "https://hooks.example.com/reauth")

	require.NoError(t, s.NotifyReauth(context.Background(), models.ReauthEvent{ConnectionID: "c1"}))
	assert.Contains(t, mr.Keys(), "asynq:{default}:pending")
}
