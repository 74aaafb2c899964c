package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guxdde/base-auth-service/internal/adapters/config"
	"github.com/guxdde/base-auth-service/internal/adapters/metrics"
	"github.com/guxdde/base-auth-service/internal/domain"
	"github.com/guxdde/base-auth-service/pkg/rediskeys"
)

const defaultMaxDevicesPerUser = 2

// DeviceRegistry is the bounded per-user collection of active device
// fingerprints, backed by a sorted set keyed on the user id where scores are
// last-seen unix timestamps.
type DeviceRegistry struct {
	logger domain.Logger
	cache  domain.CacheStore
	cfg    config.Provider

	now func() time.Time
}

// NewDeviceRegistry creates a DeviceRegistry.
func NewDeviceRegistry(logger domain.Logger, cfg config.Provider, cache domain.CacheStore) *DeviceRegistry {
	if logger == nil {
		panic("logger is nil in NewDeviceRegistry")
	}
	if cfg == nil {
		panic("config provider is nil in NewDeviceRegistry")
	}
	if cache == nil {
		panic("cache store is nil in NewDeviceRegistry")
	}
	return &DeviceRegistry{
		logger: logger,
		cache:  cache,
		cfg:    cfg,
		now:    time.Now,
	}
}

// lastSeenScore converts a timestamp to a sorted-set score with sub-second
// precision. Whole-second scores would tie devices admitted within the same
// second and eviction would then fall back to member ordering instead of
// recency.
func lastSeenScore(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func (r *DeviceRegistry) maxDevices() int {
	if n := r.cfg.Get().Auth.MaxDevicesPerUser; n > 0 {
		return n
	}
	return defaultMaxDevicesPerUser
}

// AddDevice registers or refreshes a device for the user. When the set is at
// capacity the member with the lowest score (oldest last-seen) is evicted
// first. The count-evict-insert sequence is not atomic: concurrent logins
// for the same user can transiently exceed the cap by the number of
// concurrent callers. That overshoot is an accepted tolerance; the next
// admission shrinks the set back.
func (r *DeviceRegistry) AddDevice(ctx context.Context, userID int64, deviceID string) error {
	key := rediskeys.UserDevicesKey(userID)
	maxDevices := r.maxDevices()

	count, err := r.cache.ZCard(ctx, key)
	if err != nil {
		r.logger.Warn(ctx, "Device count lookup failed, proceeding with insert", "key", key, "error", err.Error())
	}

	if count >= int64(maxDevices) {
		oldest, err := r.cache.ZRange(ctx, key, 0, 0)
		if err == nil && len(oldest) > 0 {
			if _, err := r.cache.ZRem(ctx, key, oldest[0]); err != nil {
				r.logger.Warn(ctx, "Failed to evict oldest device", "key", key, "device_id", oldest[0], "error", err.Error())
			} else {
				metrics.IncrementDevicesEvicted()
				r.logger.Info(ctx, "Evicted oldest device session", "user_id", userID, "device_id", oldest[0])
			}
		}
	}

	if _, err := r.cache.ZAdd(ctx, key, lastSeenScore(r.now()), deviceID); err != nil {
		return fmt.Errorf("registering device %q for user %d failed: %w", deviceID, userID, err)
	}
	return nil
}

// IsActive reports whether the device is currently a member of the user's
// active set. A degraded cache reads as inactive; the caller's
// re-registration side effect heals that on the next successful round trip.
func (r *DeviceRegistry) IsActive(ctx context.Context, userID int64, deviceID string) (bool, error) {
	_, err := r.cache.ZScore(ctx, rediskeys.UserDevicesKey(userID), deviceID)
	if errors.Is(err, domain.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemoveDevice removes the device from the user's active set. Idempotent.
func (r *DeviceRegistry) RemoveDevice(ctx context.Context, userID int64, deviceID string) error {
	_, err := r.cache.ZRem(ctx, rediskeys.UserDevicesKey(userID), deviceID)
	return err
}
