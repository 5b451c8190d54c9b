package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finbook/finbook/internal/database"
	"github.com/finbook/finbook/internal/database/repository"
)

// MaintenanceService houses retention cleanup and operator escape hatches.
type MaintenanceService struct {
	DB   *sql.DB
	Jobs *repository.SyncJobRepo
}

// PruneTerminalJobs deletes completed/failed jobs older than the retention
// window.
func (s *MaintenanceService) PruneTerminalJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := database.Now().Add(-olderThan)
	return s.Jobs.DeleteTerminalBefore(ctx, cutoff)
}

// ReleaseStaleJobs returns processing jobs untouched for olderThan to the
// retry pool. For operator use when a worker died mid-run; nothing calls
// this automatically.
func (s *MaintenanceService) ReleaseStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := database.Now().Add(-olderThan)
	return s.Jobs.ReleaseStale(ctx, cutoff)
}

// Reset wipes all user data. It keeps the schema intact so the service can
// continue running.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		tables := []string{
			"audit_events",
			"sync_jobs",
			"category_rules",
			"transactions",
			"categories",
			"linked_items",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
