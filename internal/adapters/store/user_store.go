package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/guxdde/base-auth-service/internal/domain"
)

// UserStore implements domain.UserStore over the relational database.
type UserStore struct {
	db *bun.DB
}

// NewUserStore creates a UserStore.
func NewUserStore(db *bun.DB) *UserStore {
	if db == nil {
		panic("db cannot be nil in NewUserStore")
	}
	return &UserStore{db: db}
}

// FindUserByID returns the active user with the given id, or ErrNotFound.
// Deactivated users are treated as absent so revocation takes effect on the
// next token verification.
func (s *UserStore) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	record := new(userRecord)
	err := s.db.NewSelect().
		Model(record).
		Where("id = ?", id).
		Where("is_active = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("selecting user by id: %w", err)
	}
	return record.toDomain(), nil
}
