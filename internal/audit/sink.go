// Package audit records security and lifecycle events on a best-effort
// basis. A Sink never returns an error: a failed audit write must not fail
// the operation that produced it.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/finbook/finbook/internal/logger"
)

// Sink accepts events fire-and-forget.
type Sink interface {
	Record(ctx context.Context, userID, eventType string, detail map[string]string)
}

// SQLSink persists events to the audit_events table, swallowing failures.
type SQLSink struct {
	db *sql.DB
}

func NewSQLSink(db *sql.DB) *SQLSink { return &SQLSink{db: db} }

func (s *SQLSink) Record(ctx context.Context, userID, eventType string, detail map[string]string) {
	payload := "{}"
	if len(detail) > 0 {
		if b, err := json.Marshal(detail); err == nil {
			payload = string(b)
		}
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO audit_events(id, user_id, event_type, detail, created_at)
	VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, uuid.NewString(), userID, eventType, payload)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Debug().Err(err).Str("event", eventType).Msg("audit write dropped")
	}
}

// NopSink discards events; used where audit persistence is not configured.
type NopSink struct{}

func (NopSink) Record(context.Context, string, string, map[string]string) {}
