package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/guxdde/base-auth-service/internal/adapters/config"
	"github.com/guxdde/base-auth-service/internal/domain"
)

// AuditPublisher publishes access audit records to a NATS subject. Audit
// delivery is fire-and-forget: a publish failure is logged and never
// surfaced to the request that produced the record.
type AuditPublisher struct {
	nc      *nats.Conn
	subject string
	logger  domain.Logger
}

// NewAuditPublisher connects to the NATS server named in the configuration
// and returns the publisher plus a cleanup closing the connection.
func NewAuditPublisher(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*AuditPublisher, func(), error) {
	appCfg := cfgProvider.Get()
	natsCfg := appCfg.NATS

	appLogger.Info(ctx, "Connecting to NATS server", "url", natsCfg.URL)

	nc, err := nats.Connect(natsCfg.URL,
		nats.Name(fmt.Sprintf("%s-audit", appCfg.App.ServiceName)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.ClosedHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS connection closed")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			appLogger.Warn(ctx, "NATS disconnected", "error", err)
		}),
	)
	if err != nil {
		appLogger.Error(ctx, "Failed to connect to NATS", "url", natsCfg.URL, "error", err.Error())
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsCfg.URL, err)
	}

	publisher := &AuditPublisher{
		nc:      nc,
		subject: natsCfg.AuditSubject,
		logger:  appLogger,
	}

	cleanup := func() {
		appLogger.Info(context.Background(), "Draining NATS connection...")
		if err := nc.Drain(); err != nil {
			appLogger.Warn(context.Background(), "Error draining NATS connection", "error", err.Error())
			nc.Close()
		}
	}

	return publisher, cleanup, nil
}

// IsConnected reports whether the underlying NATS connection is up. Used by
// the readiness probe.
func (p *AuditPublisher) IsConnected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// Publish serializes the record as JSON and publishes it to the audit
// subject. Failures are logged and swallowed.
func (p *AuditPublisher) Publish(ctx context.Context, record domain.AuditRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		p.logger.Error(ctx, "Failed to marshal audit record", "user_id", record.UserID, "error", err.Error())
		return nil
	}
	if err := p.nc.Publish(p.subject, payload); err != nil {
		p.logger.Error(ctx, "Failed to publish audit record", "subject", p.subject, "error", err.Error())
	}
	return nil
}
