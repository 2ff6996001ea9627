package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBLogger stores events in the authz_audit_log table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database sink, creating its table if needed
func NewDBLogger(ctx context.Context, db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	l := &DBLogger{db: db}
	if err := l.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure authz_audit_log table: %w", err)
	}
	return l, nil
}

func (l *DBLogger) ensureTable(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS authz_audit_log (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL,
			actor_id BIGINT,
			username VARCHAR(255),
			organization_id BIGINT NOT NULL,
			resource_type VARCHAR(32),
			resource_id VARCHAR(64),
			request_id VARCHAR(100),
			ip_address VARCHAR(64),
			message TEXT,
			metadata JSONB
		);

		CREATE INDEX IF NOT EXISTS idx_authz_audit_log_org_time ON authz_audit_log(organization_id, timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_authz_audit_log_actor ON authz_audit_log(actor_id);
	`)
	return err
}

// Log implements Logger
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	err := l.db.QueryRowContext(ctx, `
		INSERT INTO authz_audit_log (
			timestamp, event_type, status,
			actor_id, username, organization_id,
			resource_type, resource_id,
			request_id, ip_address, message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		event.Timestamp, string(event.EventType), string(event.Status),
		event.ActorID, event.Username, event.OrganizationID,
		string(event.ResourceType), event.ResourceID,
		event.RequestID, event.IPAddress, event.Message, metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close implements Logger. The database handle is owned by the caller.
func (l *DBLogger) Close() error { return nil }
