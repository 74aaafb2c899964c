package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/guxdde/base-auth-service/internal/adapters/config"
	"github.com/guxdde/base-auth-service/internal/adapters/metrics"
	"github.com/guxdde/base-auth-service/internal/domain"
	"github.com/guxdde/base-auth-service/pkg/crypto"
	"github.com/guxdde/base-auth-service/pkg/rediskeys"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	defaultAccessTokenTTL  = 2 * time.Hour
	defaultRefreshTokenTTL = 30 * 24 * time.Hour

	refreshPointerTTL = 24 * time.Hour

	// Uniform caller-facing message for every credential failure; the
	// distinguishing cause goes to logs and metrics only.
	msgInvalidAppCredentials = "invalid app credentials"
	msgInvalidRefreshToken   = "invalid refresh token"
	msgOK                    = "ok"
)

type tenantAccessClaims struct {
	TenantID int64  `json:"tenant_id"`
	AppID    string `json:"app_id"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

type tenantRefreshClaims struct {
	RefreshJTI string `json:"refresh_jti"`
	Type       string `json:"type"`
	jwt.RegisteredClaims
}

// refreshPointer is the per-day cache payload that short-circuits
// refresh-token re-issuance for a tenant app.
type refreshPointer struct {
	RefreshJTI string    `json:"refresh_jti"`
	ExpireTime time.Time `json:"expire_time"`
}

// cachedRefreshRecord is the per-JTI cache mirror of a durable refresh
// record, used for fast verification on the refresh path.
type cachedRefreshRecord struct {
	TenantID     int64     `json:"tenant_id"`
	AppID        string    `json:"app_id"`
	RefreshToken string    `json:"refresh_token"`
	ExpireTime   time.Time `json:"expire_time"`
}

// TenantAuthService issues and refreshes dual tokens for machine tenants.
// Access tokens are always minted fresh; refresh tokens are reused within a
// calendar day through a cache pointer with a durable-store fallback. The
// durable record is authoritative, the cache mirror is reconstructable.
type TenantAuthService struct {
	logger  domain.Logger
	cfg     config.Provider
	cache   domain.CacheStore
	tenants domain.TenantStore

	now func() time.Time
}

// NewTenantAuthService creates a new TenantAuthService.
func NewTenantAuthService(logger domain.Logger, cfg config.Provider, cache domain.CacheStore, tenants domain.TenantStore) *TenantAuthService {
	if logger == nil {
		panic("logger is nil in NewTenantAuthService")
	}
	if cfg == nil {
		panic("config provider is nil in NewTenantAuthService")
	}
	if cache == nil {
		panic("cache store is nil in NewTenantAuthService")
	}
	if tenants == nil {
		panic("tenant store is nil in NewTenantAuthService")
	}
	return &TenantAuthService{
		logger:  logger,
		cfg:     cfg,
		cache:   cache,
		tenants: tenants,
		now:     time.Now,
	}
}

func (s *TenantAuthService) accessTTL() time.Duration {
	if sec := s.cfg.Get().Tenant.AccessTokenTTLSeconds; sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return defaultAccessTokenTTL
}

func (s *TenantAuthService) refreshTTL() time.Duration {
	if sec := s.cfg.Get().Tenant.RefreshTokenTTLSeconds; sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return defaultRefreshTokenTTL
}

func (s *TenantAuthService) signingSecret() ([]byte, error) {
	secret := s.cfg.Get().Tenant.TokenSecret
	if secret == "" {
		return nil, errors.New("tenant.token_secret is not configured")
	}
	return []byte(secret), nil
}

// GetTenantAuthToken authenticates the tenant app by its shared-secret
// signature and returns a fresh access token plus the day's refresh token.
func (s *TenantAuthService) GetTenantAuthToken(ctx context.Context, appID, signature string) (*domain.AuthTokenResult, error) {
	if appID == "" || signature == "" {
		return &domain.AuthTokenResult{Success: false, Message: "app_id and signature are required"}, nil
	}

	tenant, err := s.tenants.FindTenantByAppID(ctx, appID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncrementAuthFailure("unknown_app")
			s.logger.Warn(ctx, "Tenant token rejected: unknown app", "app_id", appID)
			return &domain.AuthTokenResult{Success: false, Message: msgInvalidAppCredentials}, nil
		}
		return nil, fmt.Errorf("tenant lookup for app %q failed: %w", appID, err)
	}
	if tenant.Status == domain.TenantStatusStopped {
		metrics.IncrementAuthFailure("tenant_stopped")
		s.logger.Warn(ctx, "Tenant token rejected: tenant stopped", "app_id", appID, "tenant_id", tenant.ID)
		return &domain.AuthTokenResult{Success: false, Message: msgInvalidAppCredentials}, nil
	}
	if !crypto.VerifyTenantSignature(appID, tenant.AppSecret, signature) {
		metrics.IncrementAuthFailure("signature_mismatch")
		s.logger.Warn(ctx, "Tenant token rejected: signature mismatch", "app_id", appID, "tenant_id", tenant.ID)
		return &domain.AuthTokenResult{Success: false, Message: msgInvalidAppCredentials}, nil
	}

	now := s.now()

	refreshJTI, refreshExpire, err := s.lookupOrIssueRefreshToken(ctx, tenant, now)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.mintAccessToken(tenant.ID, tenant.AppID, now)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.mintRefreshToken(refreshJTI, refreshExpire)
	if err != nil {
		return nil, err
	}

	s.mirrorRefreshRecord(ctx, refreshJTI, cachedRefreshRecord{
		TenantID:     tenant.ID,
		AppID:        tenant.AppID,
		RefreshToken: refreshToken,
		ExpireTime:   refreshExpire,
	}, refreshExpire.Sub(now))

	return &domain.AuthTokenResult{
		Success: true,
		Message: msgOK,
		Data: &domain.TokenGrant{
			AccessToken:      accessToken,
			ExpiresIn:        int64(s.accessTTL().Seconds()),
			RefreshToken:     refreshToken,
			RefreshExpiresIn: int64(refreshExpire.Sub(now).Seconds()),
		},
	}, nil
}

// lookupOrIssueRefreshToken resolves the refresh JTI for the tenant's
// current calendar day: cache pointer first, then the durable store, then a
// fresh mint persisted durably and mirrored into both cache keys.
func (s *TenantAuthService) lookupOrIssueRefreshToken(ctx context.Context, tenant *domain.Tenant, now time.Time) (string, time.Time, error) {
	pointerKey := rediskeys.TenantRefreshPointerKey(now, tenant.AppID)

	if raw, err := s.cache.Get(ctx, pointerKey); err == nil {
		var ptr refreshPointer
		if jsonErr := json.Unmarshal([]byte(raw), &ptr); jsonErr == nil && ptr.RefreshJTI != "" && ptr.ExpireTime.After(now) {
			metrics.IncrementCacheHit("refresh_pointer")
			s.logger.Debug(ctx, "Reusing refresh token from daily pointer", "app_id", tenant.AppID, "refresh_jti", ptr.RefreshJTI)
			return ptr.RefreshJTI, ptr.ExpireTime, nil
		} else if jsonErr != nil {
			s.logger.Warn(ctx, "Malformed refresh pointer payload, falling through", "key", pointerKey, "error", jsonErr.Error())
		}
	} else if !errors.Is(err, domain.ErrCacheMiss) {
		s.logger.Warn(ctx, "Refresh pointer lookup failed, falling through", "key", pointerKey, "error", err.Error())
	}
	metrics.IncrementCacheMiss("refresh_pointer")

	// A record is reusable while it still has at least a full day of life
	// left, so that tokens issued against it never outlive it.
	expiresAfter := now.Add(s.refreshTTL() - 24*time.Hour)
	record, err := s.tenants.LatestRefreshToken(ctx, tenant.ID, tenant.AppID, expiresAfter)
	if err == nil {
		s.writePointer(ctx, pointerKey, record.RefreshJTI, record.ExpireTime)
		s.logger.Debug(ctx, "Reusing refresh token from durable store", "app_id", tenant.AppID, "refresh_jti", record.RefreshJTI)
		return record.RefreshJTI, record.ExpireTime, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", time.Time{}, fmt.Errorf("refresh token lookup for tenant %d failed: %w", tenant.ID, err)
	}

	jti := uuid.NewString()
	expire := now.Add(s.refreshTTL())
	if err := s.tenants.InsertRefreshToken(ctx, &domain.RefreshTokenRecord{
		TenantID:   tenant.ID,
		AppID:      tenant.AppID,
		RefreshJTI: jti,
		ExpireTime: expire,
	}); err != nil {
		return "", time.Time{}, fmt.Errorf("persisting refresh token for tenant %d failed: %w", tenant.ID, err)
	}
	s.writePointer(ctx, pointerKey, jti, expire)
	s.logger.Info(ctx, "Minted new tenant refresh token", "app_id", tenant.AppID, "tenant_id", tenant.ID, "refresh_jti", jti)
	return jti, expire, nil
}

func (s *TenantAuthService) writePointer(ctx context.Context, key, jti string, expire time.Time) {
	payload, err := json.Marshal(refreshPointer{RefreshJTI: jti, ExpireTime: expire})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(payload), refreshPointerTTL); err != nil {
		s.logger.Warn(ctx, "Failed to cache refresh pointer", "key", key, "error", err.Error())
	}
}

// mirrorRefreshRecord writes the per-JTI cache mirror. Failures are absorbed:
// the durable record remains authoritative and the refresh path read-throughs.
func (s *TenantAuthService) mirrorRefreshRecord(ctx context.Context, jti string, record cachedRefreshRecord, ttl time.Duration) {
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	key := rediskeys.TenantRefreshTokenKey(jti)
	if err := s.cache.Set(ctx, key, string(payload), ttl); err != nil {
		s.logger.Warn(ctx, "Failed to mirror refresh record into cache", "key", key, "error", err.Error())
	}
}

func (s *TenantAuthService) mintAccessToken(tenantID int64, appID string, now time.Time) (string, error) {
	secret, err := s.signingSecret()
	if err != nil {
		return "", err
	}
	claims := tenantAccessClaims{
		TenantID: tenantID,
		AppID:    appID,
		Type:     tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL())),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing tenant access token failed: %w", err)
	}
	return signed, nil
}

func (s *TenantAuthService) mintRefreshToken(jti string, expire time.Time) (string, error) {
	secret, err := s.signingSecret()
	if err != nil {
		return "", err
	}
	claims := tenantRefreshClaims{
		RefreshJTI: jti,
		Type:       tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expire),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing tenant refresh token failed: %w", err)
	}
	return signed, nil
}

// RefreshTenantAuthToken verifies a refresh token and mints a fresh access
// token. The refresh token itself is echoed back unchanged; rotation on use
// is deliberately not performed. A missing cache mirror is repaired by
// reading through to the durable store.
func (s *TenantAuthService) RefreshTenantAuthToken(ctx context.Context, refreshToken string) (*domain.AuthTokenResult, error) {
	if refreshToken == "" {
		return &domain.AuthTokenResult{Success: false, Message: "refresh_token is required"}, nil
	}
	secret, err := s.signingSecret()
	if err != nil {
		return nil, err
	}

	claims := &tenantRefreshClaims{}
	if _, err := jwt.ParseWithClaims(refreshToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}); err != nil {
		metrics.IncrementAuthFailure("refresh_token_invalid")
		s.logger.Warn(ctx, "Refresh token verification failed", "error", err.Error())
		return &domain.AuthTokenResult{Success: false, Message: msgInvalidRefreshToken}, nil
	}
	if claims.Type != tokenTypeRefresh {
		metrics.IncrementAuthFailure("wrong_token_type")
		s.logger.Warn(ctx, "Refresh endpoint called with non-refresh token", "type", claims.Type)
		return &domain.AuthTokenResult{Success: false, Message: msgInvalidRefreshToken}, nil
	}

	now := s.now()
	record, err := s.loadRefreshRecord(ctx, claims.RefreshJTI, refreshToken, now)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncrementAuthFailure("refresh_record_missing")
			s.logger.Warn(ctx, "Refresh token has no durable record", "refresh_jti", claims.RefreshJTI)
			return &domain.AuthTokenResult{Success: false, Message: msgInvalidRefreshToken}, nil
		}
		return nil, err
	}

	accessToken, err := s.mintAccessToken(record.TenantID, record.AppID, now)
	if err != nil {
		return nil, err
	}

	return &domain.AuthTokenResult{
		Success: true,
		Message: msgOK,
		Data: &domain.TokenGrant{
			AccessToken:      accessToken,
			ExpiresIn:        int64(s.accessTTL().Seconds()),
			RefreshToken:     refreshToken,
			RefreshExpiresIn: int64(record.ExpireTime.Sub(now).Seconds()),
		},
	}, nil
}

// loadRefreshRecord resolves the refresh record for a JTI: cache first, then
// a durable read-through that repopulates the mirror with the record's
// remaining lifetime as its TTL.
func (s *TenantAuthService) loadRefreshRecord(ctx context.Context, jti, refreshToken string, now time.Time) (*cachedRefreshRecord, error) {
	key := rediskeys.TenantRefreshTokenKey(jti)

	if raw, err := s.cache.Get(ctx, key); err == nil {
		var record cachedRefreshRecord
		if jsonErr := json.Unmarshal([]byte(raw), &record); jsonErr == nil && record.AppID != "" {
			metrics.IncrementCacheHit("refresh_token")
			return &record, nil
		} else if jsonErr != nil {
			s.logger.Warn(ctx, "Malformed cached refresh record, reading through", "key", key, "error", jsonErr.Error())
		}
	} else if !errors.Is(err, domain.ErrCacheMiss) {
		s.logger.Warn(ctx, "Cached refresh record lookup failed, reading through", "key", key, "error", err.Error())
	}
	metrics.IncrementCacheMiss("refresh_token")

	durable, err := s.tenants.FindRefreshTokenByJTI(ctx, jti)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("refresh record lookup for jti %q failed: %w", jti, err)
	}

	record := cachedRefreshRecord{
		TenantID:     durable.TenantID,
		AppID:        durable.AppID,
		RefreshToken: refreshToken,
		ExpireTime:   durable.ExpireTime,
	}
	s.mirrorRefreshRecord(ctx, jti, record, durable.ExpireTime.Sub(now))
	s.logger.Info(ctx, "Repaired refresh record cache mirror from durable store", "refresh_jti", jti)
	return &record, nil
}
