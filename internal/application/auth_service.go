package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/guxdde/base-auth-service/internal/adapters/config"
	"github.com/guxdde/base-auth-service/internal/adapters/metrics"
	"github.com/guxdde/base-auth-service/internal/domain"
	"github.com/guxdde/base-auth-service/pkg/safego"
)

// ErrInvalidCredential is the uniform rejection for every credential
// failure. The wrapped causes below exist for logs and tests; callers
// surface only the umbrella error.
var (
	ErrInvalidCredential = errors.New("invalid credential")

	ErrTokenInvalid  = fmt.Errorf("%w: token invalid", ErrInvalidCredential)
	ErrTokenExpired  = fmt.Errorf("%w: token expired", ErrInvalidCredential)
	ErrDeviceRevoked = fmt.Errorf("%w: device session revoked", ErrInvalidCredential)
	ErrUserNotFound  = fmt.Errorf("%w: user not found", ErrInvalidCredential)
)

const defaultUserTokenTTL = 7 * 24 * time.Hour

// userClaims is the signed payload of a device-bound user access token.
type userClaims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// AuthService issues and verifies device-bound user access tokens.
// A token is only usable while its device remains in the user's active set;
// eviction revokes it regardless of its remaining signed lifetime.
type AuthService struct {
	logger  domain.Logger
	cfg     config.Provider
	devices *DeviceRegistry
	users   domain.UserStore
	audit   domain.AuditSink

	now func() time.Time
}

// NewAuthService creates a new AuthService. The audit sink may be nil, in
// which case access records are silently skipped.
func NewAuthService(logger domain.Logger, cfg config.Provider, devices *DeviceRegistry, users domain.UserStore, audit domain.AuditSink) *AuthService {
	if logger == nil {
		panic("logger is nil in NewAuthService")
	}
	if cfg == nil {
		panic("config provider is nil in NewAuthService")
	}
	if devices == nil {
		panic("device registry is nil in NewAuthService")
	}
	if users == nil {
		panic("user store is nil in NewAuthService")
	}
	return &AuthService{
		logger:  logger,
		cfg:     cfg,
		devices: devices,
		users:   users,
		audit:   audit,
		now:     time.Now,
	}
}

func (s *AuthService) tokenTTL() time.Duration {
	if m := s.cfg.Get().Auth.UserTokenTTLMinutes; m > 0 {
		return time.Duration(m) * time.Minute
	}
	return defaultUserTokenTTL
}

// IssueUserToken builds a signed token bound to the given device. The caller
// is responsible for admitting the device to the registry.
func (s *AuthService) IssueUserToken(userID int64, deviceID string) (string, error) {
	secret := s.cfg.Get().Auth.UserTokenSecret
	if secret == "" {
		return "", errors.New("auth.user_token_secret is not configured")
	}

	claims := userClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(s.now().Add(s.tokenTTL())),
			IssuedAt:  jwt.NewNumericDate(s.now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing user token failed: %w", err)
	}
	return signed, nil
}

// VerifyUserToken validates signature, claims and expiry, then checks the
// bound device is still active for the subject. Returns the user id and the
// token's device fingerprint.
func (s *AuthService) VerifyUserToken(ctx context.Context, rawToken string) (int64, string, error) {
	secret := s.cfg.Get().Auth.UserTokenSecret
	if secret == "" {
		return 0, "", errors.New("auth.user_token_secret is not configured")
	}

	claims := &userClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		metrics.IncrementAuthFailure("token_invalid")
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.logger.Warn(ctx, "User token expired", "error", err.Error())
			return 0, "", ErrTokenExpired
		}
		s.logger.Warn(ctx, "User token verification failed", "error", err.Error())
		return 0, "", ErrTokenInvalid
	}

	if claims.Subject == "" || claims.DeviceID == "" {
		metrics.IncrementAuthFailure("missing_claims")
		s.logger.Warn(ctx, "User token missing required claims")
		return 0, "", ErrTokenInvalid
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		metrics.IncrementAuthFailure("bad_subject")
		s.logger.Warn(ctx, "User token subject is not a user id", "subject", claims.Subject)
		return 0, "", ErrTokenInvalid
	}

	active, err := s.devices.IsActive(ctx, userID, claims.DeviceID)
	if err != nil {
		s.logger.Error(ctx, "Device activity check failed", "user_id", userID, "error", err.Error())
		return 0, "", ErrDeviceRevoked
	}
	if !active {
		metrics.IncrementAuthFailure("device_revoked")
		s.logger.Warn(ctx, "Token device is no longer in the active set", "user_id", userID, "device_id", claims.DeviceID)
		return 0, "", ErrDeviceRevoked
	}

	return userID, claims.DeviceID, nil
}

// Authenticate verifies the token, loads the durable user record and
// refreshes the caller's device recency. currentDeviceID is the fingerprint
// of the connection making this request, which re-registers on every
// authenticated call.
func (s *AuthService) Authenticate(ctx context.Context, rawToken, currentDeviceID string) (*domain.User, error) {
	userID, _, err := s.VerifyUserToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncrementAuthFailure("user_not_found")
			s.logger.Warn(ctx, "Token subject has no durable user record", "user_id", userID)
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user lookup for %d failed: %w", userID, err)
	}

	if err := s.devices.AddDevice(ctx, userID, currentDeviceID); err != nil {
		// Best effort: a failed refresh only ages the device's score.
		s.logger.Warn(ctx, "Device re-registration failed", "user_id", userID, "error", err.Error())
	}

	return user, nil
}

// RecordAccess emits an audit record for an authenticated call. It never
// blocks or fails the request path: publishing runs on a recovered
// goroutine and failures are logged and dropped.
func (s *AuthService) RecordAccess(ctx context.Context, record domain.AuditRecord) {
	if s.audit == nil {
		return
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now()
	}
	safego.Execute(ctx, s.logger, "AuditRecordPublisher", func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.audit.Publish(pubCtx, record); err != nil {
			s.logger.Warn(pubCtx, "Audit record publish failed",
				"user_id", record.UserID, "resource", record.Resource, "error", err.Error())
		}
	})
}
