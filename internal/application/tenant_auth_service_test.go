package application

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guxdde/base-auth-service/internal/adapters/logger"
	"github.com/guxdde/base-auth-service/internal/adapters/memory"
	"github.com/guxdde/base-auth-service/internal/domain"
	"github.com/guxdde/base-auth-service/pkg/crypto"
	"github.com/guxdde/base-auth-service/pkg/rediskeys"
)

func acmeTenant() *domain.Tenant {
	return &domain.Tenant{
		ID:        1,
		AppID:     "acme-app",
		AppSecret: "acme-secret",
		Status:    domain.TenantStatusActive,
		IsActive:  true,
	}
}

func newTestTenantService(clock *testClock, tenants domain.TenantStore) (*TenantAuthService, *memory.CacheStore) {
	cache := memory.NewCacheStoreWithClock(clock.Now)
	svc := NewTenantAuthService(logger.NewNop(), testConfig(), cache, tenants)
	svc.now = clock.Now
	return svc, cache
}

func acmeSignature() string {
	return crypto.TenantSignature("acme-app", "acme-secret")
}

func TestGetTenantAuthTokenIssuesGrant(t *testing.T) {
	clock := newTestClock()
	store := newFakeTenantStore(acmeTenant())
	svc, cache := newTestTenantService(clock, store)
	ctx := context.Background()

	result, err := svc.GetTenantAuthToken(ctx, "acme-app", acmeSignature())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.Data)
	assert.NotEmpty(t, result.Data.AccessToken)
	assert.NotEmpty(t, result.Data.RefreshToken)
	assert.Equal(t, int64(7200), result.Data.ExpiresIn)

	// Both cache keys are populated on a fresh mint.
	require.Len(t, store.records, 1)
	jti := store.records[0].RefreshJTI
	_, err = cache.Get(ctx, rediskeys.TenantRefreshPointerKey(clock.Now(), "acme-app"))
	assert.NoError(t, err, "daily pointer must be written")
	_, err = cache.Get(ctx, rediskeys.TenantRefreshTokenKey(jti))
	assert.NoError(t, err, "per-jti mirror must be written")
}

func TestGetTenantAuthTokenReusesSameDayRefreshToken(t *testing.T) {
	clock := newTestClock()
	store := newFakeTenantStore(acmeTenant())
	svc, _ := newTestTenantService(clock, store)
	ctx := context.Background()

	first, err := svc.GetTenantAuthToken(ctx, "acme-app", acmeSignature())
	require.NoError(t, err)
	require.True(t, first.Success)

	clock.Advance(time.Minute)
	second, err := svc.GetTenantAuthToken(ctx, "acme-app", acmeSignature())
	require.NoError(t, err)
	require.True(t, second.Success)

	assert.Equal(t, first.Data.RefreshToken, second.Data.RefreshToken, "refresh token must be reused within the day")
	assert.NotEqual(t, first.Data.AccessToken, second.Data.AccessToken, "access token must be minted fresh")
	assert.Len(t, store.records, 1, "no second durable record within the day")
}

func TestGetTenantAuthTokenFallsBackToDurableStore(t *testing.T) {
	clock := newTestClock()
	store := newFakeTenantStore(acmeTenant())
	svc, cache := newTestTenantService(clock, store)
	ctx := context.Background()

	expire := clock.Now().Add(29 * 24 * time.Hour)
	require.NoError(t, store.InsertRefreshToken(ctx, &domain.RefreshTokenRecord{
		TenantID:   1,
		AppID:      "acme-app",
		RefreshJTI: "durable-jti",
		ExpireTime: expire,
	}))

	result, err := svc.GetTenantAuthToken(ctx, "acme-app", acmeSignature())
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Len(t, store.records, 1, "the live durable record must be reused, not re-minted")

	// The pointer is repaired from the durable record.
	raw, err := cache.Get(ctx, rediskeys.TenantRefreshPointerKey(clock.Now(), "acme-app"))
	require.NoError(t, err)
	assert.Contains(t, raw, "durable-jti")
}

func TestGetTenantAuthTokenMintsWhenDurableRecordNearlyExpired(t *testing.T) {
	clock := newTestClock()
	store := newFakeTenantStore(acmeTenant())
	svc, _ := newTestTenantService(clock, store)
	ctx := context.Background()

	// Less than a day of life left: tokens issued against it could outlive
	// it, so it must not be reused.
	require.NoError(t, store.InsertRefreshToken(ctx, &domain.RefreshTokenRecord{
		TenantID:   1,
		AppID:      "acme-app",
		RefreshJTI: "stale-jti",
		ExpireTime: clock.Now().Add(12 * time.Hour),
	}))

	result, err := svc.GetTenantAuthToken(ctx, "acme-app", acmeSignature())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, store.records, 2, "a fresh record must be minted")
	assert.NotEqual(t, "stale-jti", store.records[1].RefreshJTI)
}

func TestGetTenantAuthTokenRejectsBadCredentials(t *testing.T) {
	clock := newTestClock()
	stopped := acmeTenant()
	stopped.AppID = "stopped-app"
	stopped.Status = domain.TenantStatusStopped
	disabled := acmeTenant()
	disabled.AppID = "disabled-app"
	disabled.IsActive = false
	store := newFakeTenantStore(acmeTenant(), stopped, disabled)
	svc, _ := newTestTenantService(clock, store)
	ctx := context.Background()

	cases := []struct {
		name      string
		appID     string
		signature string
	}{
		{name: "unknown app", appID: "ghost-app", signature: acmeSignature()},
		{name: "stopped tenant", appID: "stopped-app", signature: crypto.TenantSignature("stopped-app", "acme-secret")},
		{name: "disabled tenant", appID: "disabled-app", signature: crypto.TenantSignature("disabled-app", "acme-secret")},
		{name: "wrong signature", appID: "acme-app", signature: crypto.TenantSignature("acme-app", "wrong-secret")},
		{name: "empty signature", appID: "acme-app", signature: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := svc.GetTenantAuthToken(ctx, tc.appID, tc.signature)
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Nil(t, result.Data)
		})
	}
}

func TestRefreshTenantAuthTokenMintsFreshAccessToken(t *testing.T) {
	clock := newTestClock()
	store := newFakeTenantStore(acmeTenant())
	svc, _ := newTestTenantService(clock, store)
	ctx := context.Background()

	issued, err := svc.GetTenantAuthToken(ctx, "acme-app", acmeSignature())
	require.NoError(t, err)
	require.True(t, issued.Success)

	clock.Advance(time.Hour)
	refreshed, err := svc.RefreshTenantAuthToken(ctx, issued.Data.RefreshToken)
	require.NoError(t, err)
	require.True(t, refreshed.Success)
	assert.NotEqual(t, issued.Data.AccessToken, refreshed.Data.AccessToken)
	assert.Equal(t, issued.Data.RefreshToken, refreshed.Data.RefreshToken, "refresh token is echoed, not rotated")
	assert.Less(t, refreshed.Data.RefreshExpiresIn, issued.Data.RefreshExpiresIn, "remaining refresh life must shrink")
}

func TestRefreshTenantAuthTokenRepairsCacheMirror(t *testing.T) {
	clock := newTestClock()
	store := newFakeTenantStore(acmeTenant())
	svc, cache := newTestTenantService(clock, store)
	ctx := context.Background()

	issued, err := svc.GetTenantAuthToken(ctx, "acme-app", acmeSignature())
	require.NoError(t, err)
	require.True(t, issued.Success)

	jti := store.records[0].RefreshJTI
	mirrorKey := rediskeys.TenantRefreshTokenKey(jti)
	_, err = cache.Del(ctx, mirrorKey)
	require.NoError(t, err)

	refreshed, err := svc.RefreshTenantAuthToken(ctx, issued.Data.RefreshToken)
	require.NoError(t, err)
	require.True(t, refreshed.Success, "durable store must back up a lost mirror")

	_, err = cache.Get(ctx, mirrorKey)
	assert.NoError(t, err, "mirror must be repopulated by the read-through")
}

func TestRefreshTenantAuthTokenRejectsAccessToken(t *testing.T) {
	clock := newTestClock()
	store := newFakeTenantStore(acmeTenant())
	svc, _ := newTestTenantService(clock, store)
	ctx := context.Background()

	issued, err := svc.GetTenantAuthToken(ctx, "acme-app", acmeSignature())
	require.NoError(t, err)
	require.True(t, issued.Success)

	result, err := svc.RefreshTenantAuthToken(ctx, issued.Data.AccessToken)
	require.NoError(t, err)
	assert.False(t, result.Success, "an access token must not pass the refresh endpoint")
}

func TestRefreshTenantAuthTokenRejectsUnknownJTI(t *testing.T) {
	clock := newTestClock()
	store := newFakeTenantStore(acmeTenant())
	svc, _ := newTestTenantService(clock, store)
	ctx := context.Background()

	// Correctly signed refresh token whose JTI has no durable record.
	claims := tenantRefreshClaims{
		RefreshJTI: "phantom-jti",
		Type:       tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(24 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("tenant-signing-secret"))
	require.NoError(t, err)

	result, err := svc.RefreshTenantAuthToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestRefreshTenantAuthTokenRejectsGarbage(t *testing.T) {
	clock := newTestClock()
	svc, _ := newTestTenantService(clock, newFakeTenantStore(acmeTenant()))

	result, err := svc.RefreshTenantAuthToken(context.Background(), "not-a-token")
	require.NoError(t, err)
	assert.False(t, result.Success)

	result, err = svc.RefreshTenantAuthToken(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, result.Success)
}
