package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
)

// PendingSweepJob deletes OAuth1 request tokens that outlived their TTL.
type PendingSweepJob struct {
	pending repository.PendingTokenRepository
	now     func() time.Time
}

func NewPendingSweepJob(pending repository.PendingTokenRepository) *PendingSweepJob {
	return &PendingSweepJob{pending: pending, now: time.Now}
}

func (j *PendingSweepJob) Sweep() {
	if _, err := j.SweepAt(context.Background(), j.now()); err != nil {
		slog.Error("pending token sweep failed", "error", err)
	}
}

func (j *PendingSweepJob) SweepAt(ctx context.Context, now time.Time) (int64, error) {
	n, err := j.pending.DeleteExpired(ctx, now.Add(-models.PendingTokenTTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("expired request tokens deleted", "count", n)
	}
	return n, nil
}
