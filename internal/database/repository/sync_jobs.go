package repository

import (
	"context"
	"database/sql"
	"time"
)

// SyncJobRepo persists the sync job state machine. All mutations are
// single-statement conditional updates; the claim update is the only
// concurrency-exclusivity mechanism in the system.
type SyncJobRepo struct{ db *sql.DB }

func NewSyncJobRepo(db *sql.DB) *SyncJobRepo { return &SyncJobRepo{db: db} }

// SweepScope narrows a due-job sweep.
type SweepScope struct {
	UserID string
	ItemID string
}

// InsertIfAbsent attempts the fingerprint-keyed conditional insert. Returns
// whether a new row was created; on conflict the caller looks up the existing
// job by fingerprint.
func (r *SyncJobRepo) InsertIfAbsent(ctx context.Context, j SyncJob) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO sync_jobs(id, user_id, item_id, fingerprint, origin, status, attempts, max_attempts, next_run_at, last_error, payload, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(fingerprint) DO NOTHING;
	`, j.ID, j.UserID, j.ItemID, j.Fingerprint, j.Origin, j.Status, j.Attempts, j.MaxAttempts, j.NextRunAt, j.LastError, j.Payload)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SyncJobRepo) Get(ctx context.Context, id string) (*SyncJob, error) {
	row := r.db.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	return scanJob(row)
}

func (r *SyncJobRepo) GetByFingerprint(ctx context.Context, fingerprint string) (*SyncJob, error) {
	row := r.db.QueryRowContext(ctx, jobSelect+` WHERE fingerprint = ?`, fingerprint)
	return scanJob(row)
}

// Claim atomically moves a due job from pending/retry to processing. Zero
// rows affected means another worker won or the job is not yet eligible.
func (r *SyncJobRepo) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE sync_jobs SET status = 'processing', updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND status IN ('pending', 'retry') AND next_run_at <= ?
	`, id, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkCompleted finishes a successful attempt: terminal, error cleared.
func (r *SyncJobRepo) MarkCompleted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE sync_jobs SET status = 'completed', attempts = attempts + 1, last_error = NULL, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND status = 'processing'
	`, id)
	return err
}

// MarkRetry schedules the next attempt. MAX keeps next_run_at monotonically
// non-decreasing even if a caller passes a stale clock.
func (r *SyncJobRepo) MarkRetry(ctx context.Context, id string, nextRun time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE sync_jobs SET status = 'retry', attempts = attempts + 1, next_run_at = MAX(next_run_at, ?), last_error = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND status = 'processing'
	`, nextRun, lastError, id)
	return err
}

// MarkFailed records the terminal failure after max attempts.
func (r *SyncJobRepo) MarkFailed(ctx context.Context, id string, now time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE sync_jobs SET status = 'failed', attempts = attempts + 1, next_run_at = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND status = 'processing'
	`, now, lastError, id)
	return err
}

// Due returns claimable jobs ordered by next_run_at ascending, bounded by
// limit. The claim step re-checks eligibility, so this read needs no lock.
func (r *SyncJobRepo) Due(ctx context.Context, scope SweepScope, now time.Time, limit int) ([]SyncJob, error) {
	query := jobSelect + ` WHERE status IN ('pending', 'retry') AND next_run_at <= ?`
	args := []interface{}{now}
	if scope.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, scope.UserID)
	}
	if scope.ItemID != "" {
		query += ` AND item_id = ?`
		args = append(args, scope.ItemID)
	}
	query += ` ORDER BY next_run_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SyncJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// DeleteTerminalBefore prunes completed/failed jobs older than cutoff.
func (r *SyncJobRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	DELETE FROM sync_jobs WHERE status IN ('completed', 'failed') AND updated_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReleaseStale returns processing jobs untouched since cutoff to the retry
// pool. Operator escape hatch; nothing schedules this automatically.
func (r *SyncJobRepo) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE sync_jobs SET status = 'retry', updated_at = CURRENT_TIMESTAMP
	WHERE status = 'processing' AND updated_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const jobSelect = `SELECT id, user_id, item_id, fingerprint, origin, status, attempts, max_attempts, next_run_at, last_error, payload, created_at, updated_at FROM sync_jobs`

func scanJob(row scanner) (*SyncJob, error) {
	var j SyncJob
	var lastErr sql.NullString
	if err := row.Scan(&j.ID, &j.UserID, &j.ItemID, &j.Fingerprint, &j.Origin, &j.Status,
		&j.Attempts, &j.MaxAttempts, &j.NextRunAt, &lastErr, &j.Payload, &j.CreatedAt, &j.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if lastErr.Valid {
		j.LastError = &lastErr.String
	}
	return &j, nil
}
