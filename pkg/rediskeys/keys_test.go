package rediskeys

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserDevicesKey(t *testing.T) {
	assert.Equal(t, "user:42:devices", UserDevicesKey(42))
}

func TestTenantRefreshPointerKey(t *testing.T) {
	day := time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "tenant:refresh:pointer:20250615:acme-app", TenantRefreshPointerKey(day, "acme-app"))

	// Key changes at the day boundary.
	next := day.Add(time.Minute)
	assert.Equal(t, "tenant:refresh:pointer:20250616:acme-app", TenantRefreshPointerKey(next, "acme-app"))
}

func TestTenantRefreshTokenKey(t *testing.T) {
	assert.Equal(t, "tenant:refresh:token:abc-123", TenantRefreshTokenKey("abc-123"))
}

func TestResultCacheKey(t *testing.T) {
	assert.Equal(t, "service:cache:orders", ResultCacheKey("service:cache", "orders", 0))
	assert.Equal(t, "service:cache:orders:42", ResultCacheKey("service:cache", "orders", 42))
}
