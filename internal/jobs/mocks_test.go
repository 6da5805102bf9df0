package job

import (
	"context"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/stretchr/testify/mock"
)

type mockConnections struct {
	mock.Mock
}

func (m *mockConnections) UpsertOAuth2(ctx context.Context, in repository.OAuth2Upsert) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockConnections) UpsertOAuth1(ctx context.Context, in repository.OAuth1Upsert) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockConnections) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	args := m.Called(ctx, id)
	conn, _ := args.Get(0).(*models.Connection)
	return conn, args.Error(1)
}

func (m *mockConnections) GetPrimary(ctx context.Context, userID, platformName string) (*models.Connection, error) {
	args := m.Called(ctx, userID, platformName)
	conn, _ := args.Get(0).(*models.Connection)
	return conn, args.Error(1)
}

func (m *mockConnections) List(ctx context.Context, userID, platformName string) ([]*models.Connection, error) {
	args := m.Called(ctx, userID, platformName)
	conns, _ := args.Get(0).([]*models.Connection)
	return conns, args.Error(1)
}

func (m *mockConnections) ListExpiring(ctx context.Context, before time.Time) ([]*models.Connection, error) {
	args := m.Called(ctx, before)
	conns, _ := args.Get(0).([]*models.Connection)
	return conns, args.Error(1)
}

func (m *mockConnections) SetPrimary(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockConnections) UpdateOAuth2Grant(ctx context.Context, id string, in repository.GrantUpdate) error {
	return m.Called(ctx, id, in).Error(0)
}

func (m *mockConnections) RecordRefreshFailure(ctx context.Context, id string) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *mockConnections) MarkNeedsReauth(ctx context.Context, id, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *mockConnections) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockConnections) DeleteByUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyReauth(ctx context.Context, event models.ReauthEvent) error {
	return m.Called(ctx, event).Error(0)
}

// refreshProvider answers Refresh from a function and counts calls.
type refreshProvider struct {
	name      string
	threshold time.Duration
	fn        func(models.OAuth2Grant) (*models.OAuth2Grant, error)

	mu    sync.Mutex
	calls []models.OAuth2Grant
}

func (p *refreshProvider) Platform() string                { return p.name }
func (p *refreshProvider) UsesPKCE() bool                  { return false }
func (p *refreshProvider) RefreshThreshold() time.Duration { return p.threshold }
func (p *refreshProvider) AuthCodeURL(string, string) string {
	return ""
}

func (p *refreshProvider) Exchange(context.Context, string, string) (*models.OAuth2Grant, error) {
	return nil, nil
}

func (p *refreshProvider) Accounts(context.Context, models.OAuth2Grant) ([]platform.ConnectedAccount, error) {
	return nil, nil
}

func (p *refreshProvider) Refresh(_ context.Context, current models.OAuth2Grant) (*models.OAuth2Grant, error) {
	p.mu.Lock()
	p.calls = append(p.calls, current)
	p.mu.Unlock()
	return p.fn(current)
}

func (p *refreshProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type refreshCounter struct {
	metrics.Nop
	mu      sync.Mutex
	results map[string]int
}

func (c *refreshCounter) TokenRefresh(platformName, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = map[string]int{}
	}
	c.results[platformName+":"+result]++
}
