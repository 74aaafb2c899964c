package domain

import (
	"context"
	"time"
)

// AuditRecord describes one authenticated access for the audit trail.
// Payload holds the normalized request parameters as a JSON object string.
type AuditRecord struct {
	UserID    int64          `json:"user_id"`
	Timestamp time.Time      `json:"ts"`
	Method    string         `json:"resource_type"`
	Resource  string         `json:"resource_id"`
	Payload   string         `json:"resource_content"`
	Extra     map[string]any `json:"extra_info,omitempty"`
}

// AuditSink accepts access records on a best-effort basis. Implementations
// must not block the request path; delivery guarantees end at "published".
type AuditSink interface {
	Publish(ctx context.Context, record AuditRecord) error
}
