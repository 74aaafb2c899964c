package domain

import (
	"context"
	"time"
)

// User is the durable principal behind a device-bound session. It is created
// and maintained by the surrounding application; this core only reads it.
type User struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	IsActive   bool      `json:"is_active"`
	CreateTime time.Time `json:"create_time"`
}

// UserStore exposes the read-only durable lookup needed for token verification.
type UserStore interface {
	// FindUserByID returns ErrNotFound when no user exists with the given id.
	FindUserByID(ctx context.Context, id int64) (*User, error)
}
