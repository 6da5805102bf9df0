package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublishService struct {
	jobs     []models.PublishJob
	outcomes []models.PublishOutcome
	err      error
}

func (f *fakePublishService) Submit(context.Context, *models.Post, []models.Target) (*service.PublishSubmission, error) {
	return nil, errors.New("not used")
}

func (f *fakePublishService) Results(context.Context, string, string) (*service.PostResults, error) {
	return nil, nil
}

func (f *fakePublishService) Run(_ context.Context, job models.PublishJob) ([]models.PublishOutcome, error) {
	f.jobs = append(f.jobs, job)
	return f.outcomes, f.err
}

func TestHandlePublishTask(t *testing.T) {
	publisher := &fakePublishService{outcomes: []models.PublishOutcome{{Status: models.OutcomeSuccess}}}
	q := NewQueue(publisher, "", http.DefaultClient)

	payload, err := json.Marshal(testJob())
	require.NoError(t, err)

	require.NoError(t, q.HandlePublishTask(context.Background(), asynq.NewTask(TypePublishPost, payload)))
	require.Len(t, publisher.jobs, 1)
	assert.Equal(t, "post-1", publisher.jobs[0].Post.ID)
	assert.Equal(t, 2, publisher.jobs[0].Attempt)
}

func TestHandlePublishTaskNeverFailsAfterDispatch(t *testing.T) {
	publisher := &fakePublishService{err: errors.New("redis down")}
	q := NewQueue(publisher, "", http.DefaultClient)

	payload, err := json.Marshal(testJob())
	require.NoError(t, err)
	assert.NoError(t, q.HandlePublishTask(context.Background(), asynq.NewTask(TypePublishPost, payload)))
}

func TestHandlePublishTaskBadPayload(t *testing.T) {
	q := NewQueue(&fakePublishService{}, "", http.DefaultClient)
	err := q.HandlePublishTask(context.Background(), asynq.NewTask(TypePublishPost, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func reauthTask(t *testing.T) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(models.ReauthEvent{
		ConnectionID: "c1",
		UserID:       "u1",
		Platform:     models.PlatformTiktok,
		Reason:       "auth_failed",
		OccurredAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return asynq.NewTask(TypeNotifyReauth, payload)
}

func TestHandleReauthTask(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var got webhook
	transport.RegisterResponder(http.MethodPost, "https://hooks.example.com/reauth",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
			return httpmock.NewStringResponse(http.StatusAccepted, ""), nil
		})

	q := NewQueue(&fakePublishService{}, "https://hooks.example.com/reauth", &http.Client{Transport: transport})
	require.NoError(t, q.HandleReauthTask(context.Background(), reauthTask(t)))

	assert.Equal(t, EventNeedsReauth, got.Event)
	assert.Equal(t, "c1", got.Data.ConnectionID)
	assert.Equal(t, models.PlatformTiktok, got.Data.Platform)
}

func TestHandleReauthTaskRetriesOnFailure(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "https://hooks.example.com/reauth",
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	q := NewQueue(&fakePublishService{}, "https://hooks.example.com/reauth", &http.Client{Transport: transport})
	err := q.HandleReauthTask(context.Background(), reauthTask(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleReauthTaskWithoutWebhook(t *testing.T) {
	transport := httpmock.NewMockTransport()
	q := NewQueue(&fakePublishService{}, "", &http.Client{Transport: transport})

	require.NoError(t, q.HandleReauthTask(context.Background(), reauthTask(t)))
	assert.Equal(t, 0, transport.GetTotalCallCount())
}
