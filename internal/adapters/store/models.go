package store

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/guxdde/base-auth-service/internal/domain"
)

type tenantRecord struct {
	bun.BaseModel `bun:"table:tenant,alias:t"`

	ID          int64     `bun:"id,pk,autoincrement"`
	CompanyName string    `bun:"company_name"`
	AppID       string    `bun:"app_id,notnull,unique"`
	AppSecret   string    `bun:"app_secret,notnull"`
	Status      string    `bun:"status,notnull"`
	IsActive    bool      `bun:"is_active,notnull"`
	CreateTime  time.Time `bun:"create_time,nullzero,notnull,default:current_timestamp"`
	UpdateTime  time.Time `bun:"update_time,nullzero,notnull,default:current_timestamp"`
}

func (r *tenantRecord) toDomain() *domain.Tenant {
	return &domain.Tenant{
		ID:          r.ID,
		CompanyName: r.CompanyName,
		AppID:       r.AppID,
		AppSecret:   r.AppSecret,
		Status:      domain.TenantStatus(r.Status),
		IsActive:    r.IsActive,
		CreateTime:  r.CreateTime,
	}
}

type refreshTokenRecord struct {
	bun.BaseModel `bun:"table:tenant_auth_token,alias:tat"`

	ID         int64     `bun:"id,pk,autoincrement"`
	TenantID   int64     `bun:"tenant_id,notnull"`
	AppID      string    `bun:"app_id"`
	RefreshJTI string    `bun:"refresh_jti,notnull"`
	ExpireTime time.Time `bun:"expire_time,notnull"`
	CreateTime time.Time `bun:"create_time,nullzero,notnull,default:current_timestamp"`
}

func (r *refreshTokenRecord) toDomain() *domain.RefreshTokenRecord {
	return &domain.RefreshTokenRecord{
		ID:         r.ID,
		TenantID:   r.TenantID,
		AppID:      r.AppID,
		RefreshJTI: r.RefreshJTI,
		ExpireTime: r.ExpireTime,
		CreateTime: r.CreateTime,
	}
}

type userRecord struct {
	bun.BaseModel `bun:"table:app_user,alias:u"`

	ID         int64     `bun:"id,pk,autoincrement"`
	Username   string    `bun:"username,notnull"`
	IsActive   bool      `bun:"is_active,notnull"`
	CreateTime time.Time `bun:"create_time,nullzero,notnull,default:current_timestamp"`
}

func (r *userRecord) toDomain() *domain.User {
	return &domain.User{
		ID:         r.ID,
		Username:   r.Username,
		IsActive:   r.IsActive,
		CreateTime: r.CreateTime,
	}
}
