package application

import (
	"context"
	"sync"
	"time"

	"github.com/guxdde/base-auth-service/internal/adapters/config"
	"github.com/guxdde/base-auth-service/internal/adapters/logger"
	"github.com/guxdde/base-auth-service/internal/adapters/memory"
	"github.com/guxdde/base-auth-service/internal/domain"
)

// testClock is a manually advanced clock shared between a service under test
// and its in-memory cache store.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

// newTestClock starts at the wall clock so that JWT expiry validation, which
// the jwt library always performs against real time, agrees with the clock's
// initial reading.
func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() config.Provider {
	return config.Static{Config: &config.Config{
		Auth: config.AuthConfig{
			SecretToken:         "test-api-key",
			UserTokenSecret:     "user-signing-secret",
			UserTokenTTLMinutes: 60,
			MaxDevicesPerUser:   2,
		},
		Tenant: config.TenantConfig{
			TokenSecret:            "tenant-signing-secret",
			AccessTokenTTLSeconds:  7200,
			RefreshTokenTTLSeconds: 2592000,
		},
		Cache: config.CacheConfig{
			Prefix:             "service:cache",
			DefaultTTLSeconds:  3600,
			TriggerExtendRatio: 0.2,
		},
	}}
}

func newTestRegistry(clock *testClock) (*DeviceRegistry, *memory.CacheStore) {
	cache := memory.NewCacheStoreWithClock(clock.Now)
	registry := NewDeviceRegistry(logger.NewNop(), testConfig(), cache)
	registry.now = clock.Now
	return registry, cache
}

// fakeUserStore is an in-memory domain.UserStore.
type fakeUserStore struct {
	users map[int64]*domain.User
}

func (s *fakeUserStore) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// fakeTenantStore is an in-memory domain.TenantStore.
type fakeTenantStore struct {
	mu      sync.Mutex
	tenants map[string]*domain.Tenant
	records []*domain.RefreshTokenRecord
	nextID  int64
}

func newFakeTenantStore(tenants ...*domain.Tenant) *fakeTenantStore {
	s := &fakeTenantStore{tenants: make(map[string]*domain.Tenant)}
	for _, t := range tenants {
		s.tenants[t.AppID] = t
	}
	return s
}

func (s *fakeTenantStore) FindTenantByAppID(ctx context.Context, appID string) (*domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.tenants[appID]
	if !ok || !tenant.IsActive {
		return nil, domain.ErrNotFound
	}
	copied := *tenant
	return &copied, nil
}

func (s *fakeTenantStore) LatestRefreshToken(ctx context.Context, tenantID int64, appID string, expiresAfter time.Time) (*domain.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.RefreshTokenRecord
	for _, record := range s.records {
		if record.TenantID != tenantID || record.AppID != appID {
			continue
		}
		if !record.ExpireTime.After(expiresAfter) {
			continue
		}
		if latest == nil || record.ExpireTime.After(latest.ExpireTime) {
			latest = record
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *fakeTenantStore) InsertRefreshToken(ctx context.Context, record *domain.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	record.ID = s.nextID
	copied := *record
	s.records = append(s.records, &copied)
	return nil
}

func (s *fakeTenantStore) FindRefreshTokenByJTI(ctx context.Context, jti string) (*domain.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.RefreshJTI == jti {
			copied := *record
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

// recordingAuditSink captures published audit records.
type recordingAuditSink struct {
	mu      sync.Mutex
	records []domain.AuditRecord
	done    chan struct{}
}

func newRecordingAuditSink() *recordingAuditSink {
	return &recordingAuditSink{done: make(chan struct{}, 8)}
}

func (s *recordingAuditSink) Publish(ctx context.Context, record domain.AuditRecord) error {
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func (s *recordingAuditSink) Records() []domain.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditRecord, len(s.records))
	copy(out, s.records)
	return out
}
