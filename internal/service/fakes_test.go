package service

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/pkg/oauth1"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func testCipher() *utils.TokenCipher {
	c, err := utils.NewTokenCipher(testKey)
	if err != nil {
		panic(err)
	}
	return c
}

func mustEncrypt(s string) string {
	out, err := testCipher().Encrypt(s)
	if err != nil {
		panic(err)
	}
	return out
}

// memConnections is an in-memory ConnectionRepository with the same primary
// election rules as the SQL store.
type memConnections struct {
	mu    sync.Mutex
	rows  map[string]*models.Connection
	clock time.Time
	err   error
}

func newMemConnections() *memConnections {
	return &memConnections{rows: map[string]*models.Connection{}, clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memConnections) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memConnections) find(userID, platformName, externalID string) *models.Connection {
	for _, c := range m.rows {
		if c.UserID == userID && c.Platform == platformName && c.ExternalAccountID == externalID {
			return c
		}
	}
	return nil
}

func (m *memConnections) hasPrimary(userID, platformName string) bool {
	for _, c := range m.rows {
		if c.UserID == userID && c.Platform == platformName && c.IsPrimary {
			return true
		}
	}
	return false
}

func (m *memConnections) insert(userID, platformName, externalID string) *models.Connection {
	now := m.tick()
	c := &models.Connection{
		ID:                uuid.NewString(),
		UserID:            userID,
		Platform:          platformName,
		ExternalAccountID: externalID,
		IsPrimary:         !m.hasPrimary(userID, platformName),
		AccountType:       models.AccountTypePersonal,
		Metadata:          models.Metadata{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.rows[c.ID] = c
	return c
}

func (m *memConnections) UpsertOAuth2(_ context.Context, in repository.OAuth2Upsert) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}

	c := m.find(in.UserID, in.Platform, in.ExternalAccountID)
	if c == nil {
		c = m.insert(in.UserID, in.Platform, in.ExternalAccountID)
	}
	c.OAuth2AccessToken = in.AccessToken
	if in.RefreshToken != "" {
		c.OAuth2RefreshToken = in.RefreshToken
	}
	c.OAuth2ExpiresAt = in.ExpiresAt
	if in.AccountLabel != "" {
		c.AccountLabel = in.AccountLabel
	}
	if in.AccountType != "" {
		c.AccountType = in.AccountType
	}
	if in.Metadata != nil {
		c.Metadata = in.Metadata
	}
	c.NeedsReauth, c.ReauthReason = false, ""
	c.UpdatedAt = m.tick()
	return c.ID, nil
}

func (m *memConnections) UpsertOAuth1(_ context.Context, in repository.OAuth1Upsert) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}

	c := m.find(in.UserID, in.Platform, in.ExternalAccountID)
	if c == nil {
		c = m.insert(in.UserID, in.Platform, in.ExternalAccountID)
	}
	c.OAuth1AccessToken = in.AccessToken
	c.OAuth1TokenSecret = in.TokenSecret
	c.OAuth1ExternalUserID = in.ExternalUserID
	if in.AccountLabel != "" {
		c.AccountLabel = in.AccountLabel
	}
	c.UpdatedAt = m.tick()
	return c.ID, nil
}

func (m *memConnections) GetByID(_ context.Context, id string) (*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrConnectionNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConnections) GetPrimary(_ context.Context, userID, platformName string) (*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, c := range m.rows {
		if c.UserID == userID && c.Platform == platformName && c.IsPrimary {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrConnectionNotFound
}

func (m *memConnections) List(_ context.Context, userID, platformName string) ([]*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Connection
	for _, c := range m.rows {
		if c.UserID == userID && (platformName == "" || c.Platform == platformName) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memConnections) ListExpiring(_ context.Context, before time.Time) ([]*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Connection
	for _, c := range m.rows {
		if c.OAuth2ExpiresAt != nil && c.OAuth2ExpiresAt.Before(before) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memConnections) SetPrimary(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.rows[id]
	if !ok {
		return repository.ErrConnectionNotFound
	}
	for _, c := range m.rows {
		if c.UserID == target.UserID && c.Platform == target.Platform {
			c.IsPrimary = c.ID == id
		}
	}
	return nil
}

func (m *memConnections) UpdateOAuth2Grant(_ context.Context, id string, in repository.GrantUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return repository.ErrConnectionNotFound
	}
	c.OAuth2AccessToken = in.AccessToken
	if in.RefreshToken != "" {
		c.OAuth2RefreshToken = in.RefreshToken
	}
	c.OAuth2ExpiresAt = in.ExpiresAt
	c.NeedsReauth, c.ReauthReason = false, ""
	return nil
}

func (m *memConnections) RecordRefreshFailure(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return 0, repository.ErrConnectionNotFound
	}
	return 1, nil
}

func (m *memConnections) MarkNeedsReauth(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return repository.ErrConnectionNotFound
	}
	c.NeedsReauth, c.ReauthReason = true, reason
	return nil
}

func (m *memConnections) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil
	}
	delete(m.rows, id)
	if !c.IsPrimary {
		return nil
	}

	var next *models.Connection
	for _, other := range m.rows {
		if other.UserID == c.UserID && other.Platform == c.Platform {
			if next == nil || other.CreatedAt.After(next.CreatedAt) {
				next = other
			}
		}
	}
	if next != nil {
		next.IsPrimary = true
	}
	return nil
}

func (m *memConnections) DeleteByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.rows {
		if c.UserID == userID {
			delete(m.rows, id)
		}
	}
	return nil
}

func (m *memConnections) primaries(userID, platformName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.rows {
		if c.UserID == userID && c.Platform == platformName && c.IsPrimary {
			n++
		}
	}
	return n
}

type memPending struct {
	mu           sync.Mutex
	rows         map[string]*models.PendingRequestToken
	sweepErr     error
	sweepCutoffs []time.Time
}

func newMemPending() *memPending {
	return &memPending{rows: map[string]*models.PendingRequestToken{}}
}

func (m *memPending) Create(_ context.Context, p *models.PendingRequestToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.rows[p.RequestToken] = &cp
	return nil
}

func (m *memPending) Consume(_ context.Context, requestToken string) (*models.PendingRequestToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[requestToken]
	if !ok {
		return nil, repository.ErrPendingTokenNotFound
	}
	delete(m.rows, requestToken)
	return p, nil
}

func (m *memPending) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepCutoffs = append(m.sweepCutoffs, cutoff)
	if m.sweepErr != nil {
		return 0, m.sweepErr
	}
	var n int64
	for k, p := range m.rows {
		if p.CreatedAt.Before(cutoff) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

type memResults struct {
	mu   sync.Mutex
	rows []*models.PublishResult
}

func (m *memResults) Create(_ context.Context, pr *models.PublishResult) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr.ID = uuid.NewString()
	m.rows = append(m.rows, pr)
	return pr.ID, nil
}

func (m *memResults) ListByPostID(_ context.Context, postID string) ([]*models.PublishResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PublishResult
	for _, r := range m.rows {
		if r.PostID == postID {
			out = append(out, r)
		}
	}
	return out, nil
}

type scheduledJob struct {
	job models.PublishJob
	at  time.Time
}

type fakeScheduler struct {
	mu   sync.Mutex
	jobs []scheduledJob
	err  error
}

func (f *fakeScheduler) SchedulePublish(_ context.Context, job models.PublishJob, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, scheduledJob{job: job, at: at})
	return nil
}

type fakePublisher struct {
	name string
	fn   func(ctx context.Context, creds platform.Credentials, content platform.Content) (string, error)
}

func (f *fakePublisher) Platform() string { return f.name }

func (f *fakePublisher) Publish(ctx context.Context, creds platform.Credentials, content platform.Content) (string, error) {
	return f.fn(ctx, creds, content)
}

type fakeProvider struct {
	name        string
	pkce        bool
	threshold   time.Duration
	grant       *models.OAuth2Grant
	accounts    []platform.ConnectedAccount
	exchangeErr error
	gotVerifier string
	refresh     func(models.OAuth2Grant) (*models.OAuth2Grant, error)
}

func (f *fakeProvider) Platform() string                { return f.name }
func (f *fakeProvider) UsesPKCE() bool                  { return f.pkce }
func (f *fakeProvider) RefreshThreshold() time.Duration { return f.threshold }

func (f *fakeProvider) AuthCodeURL(state, verifier string) string {
	return "https://auth.example.com/authorize?" + url.Values{"state": {state}, "verifier": {verifier}}.Encode()
}

func (f *fakeProvider) Exchange(_ context.Context, _, verifier string) (*models.OAuth2Grant, error) {
	f.gotVerifier = verifier
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.grant, nil
}

func (f *fakeProvider) Accounts(_ context.Context, grant models.OAuth2Grant) ([]platform.ConnectedAccount, error) {
	out := make([]platform.ConnectedAccount, len(f.accounts))
	for i, a := range f.accounts {
		out[i] = a
		if out[i].Grant.AccessToken == "" {
			out[i].Grant = grant
		}
	}
	return out, nil
}

func (f *fakeProvider) Refresh(_ context.Context, current models.OAuth2Grant) (*models.OAuth2Grant, error) {
	return f.refresh(current)
}

type revokingProvider struct {
	*fakeProvider
	revoked []string
	err     error
}

func (r *revokingProvider) Revoke(_ context.Context, accessToken, _ string) error {
	r.revoked = append(r.revoked, accessToken)
	return r.err
}

type fakeOAuth1 struct {
	requestToken oauth1.Token
	requestErr   error
	access       *platform.OAuth1AccessToken
	accessErr    error
	verifyID     string
	verifyName   string
	gotRequest   oauth1.Token
	gotVerifier  string
}

func (f *fakeOAuth1) RequestToken(_ context.Context, _ string) (oauth1.Token, error) {
	return f.requestToken, f.requestErr
}

func (f *fakeOAuth1) AuthorizationURL(requestToken string) string {
	return "https://api.twitter.com/oauth/authorize?oauth_token=" + requestToken
}

func (f *fakeOAuth1) AccessToken(_ context.Context, request oauth1.Token, verifier string) (*platform.OAuth1AccessToken, error) {
	f.gotRequest, f.gotVerifier = request, verifier
	return f.access, f.accessErr
}

func (f *fakeOAuth1) VerifyCredentials(_ context.Context, _ oauth1.Token) (string, string, error) {
	if f.verifyID == "" {
		return "", "", errors.New("verify failed")
	}
	return f.verifyID, f.verifyName, nil
}
