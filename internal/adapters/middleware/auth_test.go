package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guxdde/base-auth-service/internal/adapters/config"
	"github.com/guxdde/base-auth-service/internal/adapters/logger"
	"github.com/guxdde/base-auth-service/internal/adapters/memory"
	"github.com/guxdde/base-auth-service/internal/application"
	"github.com/guxdde/base-auth-service/internal/domain"
	"github.com/guxdde/base-auth-service/pkg/crypto"
)

func TestClientIPPrecedence(t *testing.T) {
	cases := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{name: "forwarded wins", forwarded: "203.0.113.7, 10.0.0.1", realIP: "198.51.100.2", remoteAddr: "192.0.2.1:4444", want: "203.0.113.7"},
		{name: "single forwarded", forwarded: "203.0.113.9", remoteAddr: "192.0.2.1:4444", want: "203.0.113.9"},
		{name: "real ip fallback", realIP: "198.51.100.2", remoteAddr: "192.0.2.1:4444", want: "198.51.100.2"},
		{name: "remote addr fallback", remoteAddr: "192.0.2.1:4444", want: "192.0.2.1"},
		{name: "remote addr without port", remoteAddr: "192.0.2.5", want: "192.0.2.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			assert.Equal(t, tc.want, ClientIP(r))
		})
	}
}

func TestRequestFingerprintIsStablePerConnection(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:5555"
	r.Header.Set("User-Agent", "Mozilla/5.0")

	want := crypto.DeviceFingerprint("Mozilla/5.0", "203.0.113.7")
	assert.Equal(t, want, RequestFingerprint(r))

	// Different port, same host: same fingerprint.
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.RemoteAddr = "203.0.113.7:6666"
	r2.Header.Set("User-Agent", "Mozilla/5.0")
	assert.Equal(t, want, RequestFingerprint(r2))
}

type stubUserStore struct {
	user *domain.User
}

func (s *stubUserStore) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	if s.user != nil && s.user.ID == id {
		copied := *s.user
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

func newBearerTestService(t *testing.T) (*application.AuthService, *application.DeviceRegistry) {
	t.Helper()
	cfg := config.Static{Config: &config.Config{
		Auth: config.AuthConfig{
			SecretToken:         "test-api-key",
			UserTokenSecret:     "user-signing-secret",
			UserTokenTTLMinutes: 60,
			MaxDevicesPerUser:   2,
		},
	}}
	registry := application.NewDeviceRegistry(logger.NewNop(), cfg, memory.NewCacheStore())
	users := &stubUserStore{user: &domain.User{ID: 42, Username: "tester", IsActive: true}}
	return application.NewAuthService(logger.NewNop(), cfg, registry, users, nil), registry
}

func authedRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/auth/user/me", nil)
	r.RemoteAddr = "203.0.113.7:5555"
	r.Header.Set("User-Agent", "Mozilla/5.0")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestBearerAuthMiddlewareAcceptsValidToken(t *testing.T) {
	svc, registry := newBearerTestService(t)
	ctx := context.Background()

	fingerprint := crypto.DeviceFingerprint("Mozilla/5.0", "203.0.113.7")
	require.NoError(t, registry.AddDevice(ctx, 42, fingerprint))
	token, err := svc.IssueUserToken(42, fingerprint)
	require.NoError(t, err)

	var seen *domain.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AuthenticatedUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	BearerAuthMiddleware(svc, logger.NewNop())(next).ServeHTTP(rec, authedRequest(token))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, int64(42), seen.ID)
}

func TestBearerAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	svc, _ := newBearerTestService(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})

	rec := httptest.NewRecorder()
	BearerAuthMiddleware(svc, logger.NewNop())(next).ServeHTTP(rec, authedRequest(""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(domain.ErrInvalidCredential))
}

func TestBearerAuthMiddlewareRejectsRevokedDevice(t *testing.T) {
	svc, registry := newBearerTestService(t)
	ctx := context.Background()

	fingerprint := crypto.DeviceFingerprint("Mozilla/5.0", "203.0.113.7")
	require.NoError(t, registry.AddDevice(ctx, 42, fingerprint))
	token, err := svc.IssueUserToken(42, fingerprint)
	require.NoError(t, err)
	require.NoError(t, registry.RemoveDevice(ctx, 42, fingerprint))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})

	rec := httptest.NewRecorder()
	BearerAuthMiddleware(svc, logger.NewNop())(next).ServeHTTP(rec, authedRequest(token))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerAuthMiddlewareUniformRejectionBody(t *testing.T) {
	svc, _ := newBearerTestService(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})
	handler := BearerAuthMiddleware(svc, logger.NewNop())(next)

	bodies := make(map[string]struct{})
	for _, token := range []string{"garbage", "also.not.valid"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(token))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		bodies[strings.TrimSpace(rec.Body.String())] = struct{}{}
	}
	assert.Len(t, bodies, 1, "all credential failures must share one response body")
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	cfg := config.Static{Config: &config.Config{
		Auth: config.AuthConfig{SecretToken: "test-api-key"},
	}}
	nextRan := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextRan = true
		w.WriteHeader(http.StatusOK)
	})
	handler := APIKeyAuthMiddleware(cfg, logger.NewNop())(next)

	t.Run("valid header key", func(t *testing.T) {
		nextRan = false
		r := httptest.NewRequest(http.MethodPost, "/auth/user/token", nil)
		r.Header.Set("X-API-Key", "test-api-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		assert.True(t, nextRan)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("valid query key", func(t *testing.T) {
		nextRan = false
		r := httptest.NewRequest(http.MethodPost, "/auth/user/token?x-api-key=test-api-key", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		assert.True(t, nextRan)
	})

	t.Run("missing key", func(t *testing.T) {
		nextRan = false
		r := httptest.NewRequest(http.MethodPost, "/auth/user/token", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		assert.False(t, nextRan)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		nextRan = false
		r := httptest.NewRequest(http.MethodPost, "/auth/user/token", nil)
		r.Header.Set("X-API-Key", "nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		assert.False(t, nextRan)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
