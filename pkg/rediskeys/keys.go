package rediskeys

import (
	"fmt"
	"time"
)

// UserDevicesKey generates the Redis key for the sorted set of a user's
// active devices. Members are device fingerprints, scores are last-seen
// unix timestamps.
func UserDevicesKey(userID int64) string {
	return fmt.Sprintf("user:%d:devices", userID)
}

// TenantRefreshPointerKey generates the per-day pointer key used to
// short-circuit refresh-token re-issuance for a tenant app.
func TenantRefreshPointerKey(day time.Time, appID string) string {
	return fmt.Sprintf("tenant:refresh:pointer:%s:%s", day.Format("20060102"), appID)
}

// TenantRefreshTokenKey generates the per-JTI key holding the mirrored
// refresh-token record for fast verification.
func TenantRefreshTokenKey(refreshJTI string) string {
	return fmt.Sprintf("tenant:refresh:token:%s", refreshJTI)
}

// ResultCacheKey generates the aggregate-container key for the tagged
// result cache. A zero userID yields a globally scoped container.
func ResultCacheKey(prefix, tag string, userID int64) string {
	if userID != 0 {
		return fmt.Sprintf("%s:%s:%d", prefix, tag, userID)
	}
	return fmt.Sprintf("%s:%s", prefix, tag)
}
