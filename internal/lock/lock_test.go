package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewLocker(db, "jobs:refresh", "host-1")

	mock.ExpectSetNX("jobs:refresh", "host-1", time.Minute).SetVal(true)
	mock.ExpectSetNX("jobs:refresh", "host-1", time.Minute).SetVal(false)

	require.NoError(t, l.Acquire(context.Background(), time.Minute))
	assert.ErrorIs(t, l.Acquire(context.Background(), time.Minute), ErrHeld)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewLocker(db, "jobs:refresh", "host-1")

	mock.ExpectEval(releaseScript, []string{"jobs:refresh"}, "host-1").SetVal(int64(1))
	mock.ExpectEval(releaseScript, []string{"jobs:refresh"}, "host-1").SetVal(int64(0))

	require.NoError(t, l.Release(context.Background()))
	assert.ErrorIs(t, l.Release(context.Background()), ErrNotHolder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewLocker(db, "jobs:sweep", "host-1")

	mock.ExpectSetNX("jobs:sweep", "host-1", time.Minute).SetVal(true)
	mock.ExpectEval(releaseScript, []string{"jobs:sweep"}, "host-1").SetVal(int64(1))

	boom := errors.New("boom")
	calls := 0
	err := l.Run(context.Background(), time.Minute, func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSkipsWhenHeld(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewLocker(db, "jobs:sweep", "host-2")

	mock.ExpectSetNX("jobs:sweep", "host-2", time.Minute).SetVal(false)

	called := false
	err := l.Run(context.Background(), time.Minute, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrHeld)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}
