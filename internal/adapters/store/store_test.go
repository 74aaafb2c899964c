package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/guxdde/base-auth-service/internal/domain"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, model := range []any{(*tenantRecord)(nil), (*refreshTokenRecord)(nil), (*userRecord)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func seedTenant(t *testing.T, db *bun.DB, record *tenantRecord) {
	t.Helper()
	_, err := db.NewInsert().Model(record).Exec(context.Background())
	require.NoError(t, err)
}

func TestFindTenantByAppID(t *testing.T) {
	db := newTestDB(t)
	store := NewTenantStore(db)
	ctx := context.Background()

	seedTenant(t, db, &tenantRecord{
		CompanyName: "Acme",
		AppID:       "acme-app",
		AppSecret:   "s3cret",
		Status:      "active",
		IsActive:    true,
	})
	seedTenant(t, db, &tenantRecord{
		CompanyName: "Ghost",
		AppID:       "ghost-app",
		AppSecret:   "s3cret",
		Status:      "active",
		IsActive:    false,
	})
	seedTenant(t, db, &tenantRecord{
		CompanyName: "Halted",
		AppID:       "halted-app",
		AppSecret:   "s3cret",
		Status:      "stopped",
		IsActive:    true,
	})

	tenant, err := store.FindTenantByAppID(ctx, "acme-app")
	require.NoError(t, err)
	assert.Equal(t, "Acme", tenant.CompanyName)
	assert.Equal(t, domain.TenantStatusActive, tenant.Status)

	// Disabled rows read as absent.
	_, err = store.FindTenantByAppID(ctx, "ghost-app")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Stopped tenants are returned so the caller can log the cause.
	tenant, err = store.FindTenantByAppID(ctx, "halted-app")
	require.NoError(t, err)
	assert.Equal(t, domain.TenantStatusStopped, tenant.Status)

	_, err = store.FindTenantByAppID(ctx, "missing-app")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLatestRefreshTokenPicksNewestLiveRecord(t *testing.T) {
	db := newTestDB(t)
	store := NewTenantStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	insert := func(jti string, expire time.Time) {
		require.NoError(t, store.InsertRefreshToken(ctx, &domain.RefreshTokenRecord{
			TenantID:   1,
			AppID:      "acme-app",
			RefreshJTI: jti,
			ExpireTime: expire,
		}))
	}
	insert("old", now.Add(2*24*time.Hour))
	insert("newest", now.Add(29*24*time.Hour))
	insert("middle", now.Add(10*24*time.Hour))

	record, err := store.LatestRefreshToken(ctx, 1, "acme-app", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "newest", record.RefreshJTI)

	// The threshold excludes records expiring too soon.
	record, err = store.LatestRefreshToken(ctx, 1, "acme-app", now.Add(15*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "newest", record.RefreshJTI)

	_, err = store.LatestRefreshToken(ctx, 1, "acme-app", now.Add(40*24*time.Hour))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Other tenants do not leak in.
	_, err = store.LatestRefreshToken(ctx, 2, "acme-app", now)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsertAndFindRefreshTokenByJTI(t *testing.T) {
	db := newTestDB(t)
	store := NewTenantStore(db)
	ctx := context.Background()

	record := &domain.RefreshTokenRecord{
		TenantID:   7,
		AppID:      "acme-app",
		RefreshJTI: "jti-1",
		ExpireTime: time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second),
	}
	require.NoError(t, store.InsertRefreshToken(ctx, record))
	assert.NotZero(t, record.ID, "generated id must be written back")

	found, err := store.FindRefreshTokenByJTI(ctx, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, record.TenantID, found.TenantID)
	assert.Equal(t, record.AppID, found.AppID)

	_, err = store.FindRefreshTokenByJTI(ctx, "jti-unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindUserByID(t *testing.T) {
	db := newTestDB(t)
	store := NewUserStore(db)
	ctx := context.Background()

	_, err := db.NewInsert().Model(&userRecord{Username: "alice", IsActive: true}).Exec(ctx)
	require.NoError(t, err)
	inactive := &userRecord{Username: "bob", IsActive: false}
	_, err = db.NewInsert().Model(inactive).Exec(ctx)
	require.NoError(t, err)

	user, err := store.FindUserByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	// Deactivated users read as absent.
	_, err = store.FindUserByID(ctx, inactive.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.FindUserByID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
