package contextkeys

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for storing and retrieving a request ID.
	RequestIDKey contextKey = "request_id"

	// UserIDKey is the context key for storing and retrieving a user ID from the token.
	UserIDKey contextKey = "user_id"

	// DeviceIDKey is the context key for storing and retrieving the device fingerprint.
	DeviceIDKey contextKey = "device_id"

	// TenantIDKey is the context key for storing and retrieving a tenant ID from the token.
	TenantIDKey contextKey = "tenant_id"

	// AuthUserKey is the context key for storing the authenticated user record.
	AuthUserKey contextKey = "auth_user"
)

// String makes contextKey satisfy fmt.Stringer to help with debugging/logging of keys themselves.
func (c contextKey) String() string {
	return string(c)
}
