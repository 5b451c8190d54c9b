package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/finbook/finbook/internal/audit"
	"github.com/finbook/finbook/internal/database"
	"github.com/finbook/finbook/internal/database/repository"
	"github.com/finbook/finbook/internal/logger"
	"github.com/finbook/finbook/internal/metrics"
)

const maxBackoffSeconds = 300

// SyncService drives the sync job state machine:
// pending -> processing -> completed | retry | failed, retry -> processing.
type SyncService struct {
	Jobs    *repository.SyncJobRepo
	Items   *repository.LinkedItemRepo
	Syncer  *Syncer
	Audit   audit.Sink
	Metrics *metrics.Counters

	// MaxAttempts is stamped onto new jobs.
	MaxAttempts int
}

// EnqueueResult reports whether the trigger created a new job or matched an
// existing one.
type EnqueueResult struct {
	Job     repository.SyncJob
	Created bool
}

// Enqueue deduplicates an inbound trigger into at most one job row per
// payload fingerprint. A duplicate payload returns the existing job with
// Created=false; an unknown item returns ErrNoLinkedItem.
func (s *SyncService) Enqueue(ctx context.Context, itemExternalID, origin string, payload []byte) (*EnqueueResult, error) {
	item, err := s.Items.GetByExternalID(ctx, itemExternalID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNoLinkedItem
	}

	fp := Fingerprint(payload)
	job := repository.SyncJob{
		ID:          uuid.NewString(),
		UserID:      item.UserID,
		ItemID:      item.ID,
		Fingerprint: fp,
		Origin:      origin,
		Status:      repository.JobPending,
		MaxAttempts: s.MaxAttempts,
		NextRunAt:   database.Now(),
		Payload:     payload,
	}
	created, err := s.Jobs.InsertIfAbsent(ctx, job)
	if err != nil {
		return nil, err
	}
	if !created {
		existing, err := s.Jobs.GetByFingerprint(ctx, fp)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("job for fingerprint %s vanished", fp)
		}
		s.Metrics.Inc(metrics.JobsDeduped)
		return &EnqueueResult{Job: *existing, Created: false}, nil
	}

	s.Metrics.Inc(metrics.JobsEnqueued)
	s.Audit.Record(ctx, item.UserID, "sync.job.enqueued", map[string]string{
		"job":    job.ID,
		"item":   item.ExternalID,
		"origin": origin,
	})
	stored, err := s.Jobs.Get(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	return &EnqueueResult{Job: *stored, Created: true}, nil
}

// ProcessResult reports the outcome of one claim/execute cycle.
type ProcessResult struct {
	Claimed bool
	Status  string
}

// ProcessJob claims the job and runs the reconciler for its item. Reconciler
// errors become job transitions (retry with exponential backoff, or failed at
// max attempts); they are never propagated to the caller.
func (s *SyncService) ProcessJob(ctx context.Context, jobID string) (ProcessResult, error) {
	job, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return ProcessResult{}, err
	}
	if job == nil {
		return ProcessResult{}, fmt.Errorf("sync job %s not found", jobID)
	}

	now := database.Now()
	claimed, err := s.Jobs.Claim(ctx, job.ID, now)
	if err != nil {
		return ProcessResult{}, err
	}
	if !claimed {
		return ProcessResult{Claimed: false, Status: job.Status}, nil
	}
	s.Metrics.Inc(metrics.JobsClaimed)

	log := logger.FromContext(ctx).With().Str("job", job.ID).Logger()
	execErr := s.execute(ctx, *job)
	if execErr == nil {
		if err := s.Jobs.MarkCompleted(ctx, job.ID); err != nil {
			return ProcessResult{}, err
		}
		s.Metrics.Inc(metrics.JobsCompleted)
		s.Audit.Record(ctx, job.UserID, "sync.job.completed", map[string]string{"job": job.ID})
		log.Info().Int("attempt", job.Attempts+1).Msg("job completed")
		return ProcessResult{Claimed: true, Status: repository.JobCompleted}, nil
	}

	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		if err := s.Jobs.MarkFailed(ctx, job.ID, database.Now(), execErr.Error()); err != nil {
			return ProcessResult{}, err
		}
		s.Metrics.Inc(metrics.JobsFailed)
		s.Audit.Record(ctx, job.UserID, "sync.job.failed", map[string]string{"job": job.ID, "error": execErr.Error()})
		log.Error().Err(execErr).Int("attempts", attempts).Msg("job failed permanently")
		return ProcessResult{Claimed: true, Status: repository.JobFailed}, nil
	}

	nextRun := database.Now().Add(Backoff(attempts))
	if err := s.Jobs.MarkRetry(ctx, job.ID, nextRun, execErr.Error()); err != nil {
		return ProcessResult{}, err
	}
	s.Metrics.Inc(metrics.JobsRetried)
	log.Warn().Err(execErr).Int("attempt", attempts).Time("next_run", nextRun).Msg("job scheduled for retry")
	return ProcessResult{Claimed: true, Status: repository.JobRetry}, nil
}

func (s *SyncService) execute(ctx context.Context, job repository.SyncJob) error {
	item, err := s.Items.Get(ctx, job.ItemID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("linked item %s no longer exists", job.ItemID)
	}
	_, err = s.Syncer.SyncItem(ctx, *item)
	return err
}

// SweepResult reports a due-job sweep.
type SweepResult struct {
	Queued    int
	Processed int
}

// ProcessDue selects due jobs in next-eligible order and claims/executes each
// in turn. Safe to call from multiple workers: the per-job claim decides who
// wins.
func (s *SyncService) ProcessDue(ctx context.Context, scope repository.SweepScope, limit int) (SweepResult, error) {
	if limit <= 0 {
		limit = 25
	}
	due, err := s.Jobs.Due(ctx, scope, database.Now(), limit)
	if err != nil {
		return SweepResult{}, err
	}
	res := SweepResult{Queued: len(due)}
	for _, job := range due {
		outcome, err := s.ProcessJob(ctx, job.ID)
		if err != nil {
			return res, err
		}
		if outcome.Claimed {
			res.Processed++
		}
	}
	return res, nil
}

// Fingerprint computes the stable dedup hash of a trigger payload.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
