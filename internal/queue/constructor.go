package queue

import (
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/service"
)

const (
	TypePublishPost  = "publish:post"
	TypeNotifyReauth = "notify:reauth"
)

const EventNeedsReauth = "connection.needs_reauth"

// Queue holds the task handlers run by the asynq worker.
type Queue struct {
	publisher  service.PublishService
	webhookURL string
	http       *http.Client
}

func NewQueue(publisher service.PublishService, webhookURL string, client *http.Client) *Queue {
	return &Queue{
		publisher:  publisher,
		webhookURL: webhookURL,
		http:       client,
	}
}

func (q *Queue) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypePublishPost, q.HandlePublishTask)
	mux.HandleFunc(TypeNotifyReauth, q.HandleReauthTask)
}
