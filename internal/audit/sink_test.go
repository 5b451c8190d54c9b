package audit

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finbook/finbook/internal/database"
	"github.com/finbook/finbook/internal/logger"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLSinkRecordsEvent(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	sink := NewSQLSink(db)

	sink.Record(context.Background(), "user-1", "sync.job.enqueued", map[string]string{"job": "j1"})

	var userID, eventType, detail string
	require.NoError(t, db.QueryRow(
		`SELECT user_id, event_type, detail FROM audit_events`,
	).Scan(&userID, &eventType, &detail))
	require.Equal(t, "user-1", userID)
	require.Equal(t, "sync.job.enqueued", eventType)
	require.Contains(t, detail, `"job":"j1"`)
}

func TestSQLSinkSwallowsWriteFailures(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	sink := NewSQLSink(db)
	require.NoError(t, db.Close())

	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))

	// must not panic and must not surface the error to the caller
	sink.Record(ctx, "user-1", "sync.job.enqueued", nil)
	require.Contains(t, buf.String(), "audit write dropped")
}
