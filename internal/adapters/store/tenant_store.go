package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/guxdde/base-auth-service/internal/domain"
)

// TenantStore implements domain.TenantStore over the relational database.
// It only ever performs indexed reads and single-row inserts; the token
// authority owns all policy.
type TenantStore struct {
	db *bun.DB
}

// NewTenantStore creates a TenantStore.
func NewTenantStore(db *bun.DB) *TenantStore {
	if db == nil {
		panic("db cannot be nil in NewTenantStore")
	}
	return &TenantStore{db: db}
}

// FindTenantByAppID returns the enabled tenant registered under appID.
// Disabled rows (is_active = false) are treated as absent; stopped tenants
// are returned so the caller can reject them with the right logged cause.
func (s *TenantStore) FindTenantByAppID(ctx context.Context, appID string) (*domain.Tenant, error) {
	record := new(tenantRecord)
	err := s.db.NewSelect().
		Model(record).
		Where("app_id = ?", appID).
		Where("is_active = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("selecting tenant by app id: %w", err)
	}
	return record.toDomain(), nil
}

// LatestRefreshToken returns the most recently expiring refresh record for
// the tenant with expire_time after the given instant.
func (s *TenantStore) LatestRefreshToken(ctx context.Context, tenantID int64, appID string, expiresAfter time.Time) (*domain.RefreshTokenRecord, error) {
	record := new(refreshTokenRecord)
	err := s.db.NewSelect().
		Model(record).
		Where("tenant_id = ?", tenantID).
		Where("app_id = ?", appID).
		Where("expire_time > ?", expiresAfter).
		OrderExpr("expire_time DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("selecting latest refresh token: %w", err)
	}
	return record.toDomain(), nil
}

// InsertRefreshToken persists a newly minted refresh record and writes the
// generated id back onto the domain record.
func (s *TenantStore) InsertRefreshToken(ctx context.Context, record *domain.RefreshTokenRecord) error {
	row := &refreshTokenRecord{
		TenantID:   record.TenantID,
		AppID:      record.AppID,
		RefreshJTI: record.RefreshJTI,
		ExpireTime: record.ExpireTime,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}
	record.ID = row.ID
	record.CreateTime = row.CreateTime
	return nil
}

// FindRefreshTokenByJTI returns the refresh record carrying the given JTI.
func (s *TenantStore) FindRefreshTokenByJTI(ctx context.Context, jti string) (*domain.RefreshTokenRecord, error) {
	record := new(refreshTokenRecord)
	err := s.db.NewSelect().
		Model(record).
		Where("refresh_jti = ?", jti).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("selecting refresh token by jti: %w", err)
	}
	return record.toDomain(), nil
}
