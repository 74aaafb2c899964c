package domain

import (
	"context"
	"time"
)

// TenantStatus enumerates the lifecycle states of a machine tenant.
type TenantStatus string

const (
	TenantStatusActive  TenantStatus = "active"
	TenantStatusStopped TenantStatus = "stopped"
)

// Tenant is a machine principal authenticated by a shared-secret signature.
// Rows are created and updated outside this core; it is consumed read-only.
type Tenant struct {
	ID          int64        `json:"id"`
	CompanyName string       `json:"company_name"`
	AppID       string       `json:"app_id"`
	AppSecret   string       `json:"-"`
	Status      TenantStatus `json:"status"`
	IsActive    bool         `json:"is_active"`
	CreateTime  time.Time    `json:"create_time"`
}

// RefreshTokenRecord is the durable record backing a tenant refresh token.
// The durable row is authoritative; the cache mirror under
// tenant:refresh:token:<jti> is an optimization reconstructable from it.
type RefreshTokenRecord struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	AppID      string    `json:"app_id"`
	RefreshJTI string    `json:"refresh_jti"`
	ExpireTime time.Time `json:"expire_time"`
	CreateTime time.Time `json:"create_time"`
}

// TenantStore exposes the durable reads and single-row writes the tenant
// token authority needs. Transaction discipline belongs to the adapter.
type TenantStore interface {
	// FindTenantByAppID returns the enabled tenant registered under appID,
	// or ErrNotFound. Disabled (is_active=false) rows are not returned;
	// stopped tenants are, so the caller can distinguish the causes.
	FindTenantByAppID(ctx context.Context, appID string) (*Tenant, error)

	// LatestRefreshToken returns the most recently expiring refresh record
	// for the tenant whose expiry is after the given instant, or ErrNotFound.
	LatestRefreshToken(ctx context.Context, tenantID int64, appID string, expiresAfter time.Time) (*RefreshTokenRecord, error)

	// InsertRefreshToken persists a newly minted refresh record.
	InsertRefreshToken(ctx context.Context, record *RefreshTokenRecord) error

	// FindRefreshTokenByJTI returns the record for a refresh JTI, or ErrNotFound.
	FindRefreshTokenByJTI(ctx context.Context, jti string) (*RefreshTokenRecord, error)
}

// TokenGrant is the data portion of a successful tenant token response.
type TokenGrant struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// AuthTokenResult is the envelope returned to the surrounding framework for
// tenant token issuance and refresh. All credential failures share the same
// shape; the distinguishing cause is only logged server-side.
type AuthTokenResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    *TokenGrant `json:"data,omitempty"`
}
