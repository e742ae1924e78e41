package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrJobNotFound indicates the requested job does not exist.
var ErrJobNotFound = errors.New("job not found")

// DeriveJobID computes the deterministic job identifier from the fields
// that define a follow-up: re-deriving it for the same inputs always
// yields the same value, which makes creation idempotent by construction.
func DeriveJobID(t JobType, chatID, messageID string) string {
	sum := sha256.Sum256([]byte(string(t) + "|" + chatID + "|" + messageID))
	return hex.EncodeToString(sum[:])
}

// Repository handles database operations for jobs, deliveries, phases,
// and directory bindings.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const jobColumns = `
	id, type, channel, scheduled_at, status, targets, payload,
	source_kind, source_id, resend_guard, last_sent_at,
	created_at, updated_at
`

// CreateJobIfAbsent inserts a pending job unless one with the same
// deterministic id already exists. Returns (true, nil) when the row was
// written, (false, nil) when it already existed. The check-then-write is
// not transactional across concurrent callers; the ON CONFLICT guard makes
// a lost race equivalent to an idempotent no-op.
func (r *Repository) CreateJobIfAbsent(ctx context.Context, job *NotificationJob) (bool, error) {
	query := `
		INSERT INTO notification_jobs (
			id, type, channel, scheduled_at, status, targets, payload,
			source_kind, source_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query,
		job.ID,
		job.Type,
		job.Channel,
		job.ScheduledAt,
		JobStatusPending,
		job.Targets,
		job.Payload,
		job.SourceKind,
		job.SourceID,
	)
	if err != nil {
		r.logger.Error("failed to create job",
			zap.Error(err),
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
		)
		return false, fmt.Errorf("insert job: %w", err)
	}

	if result.RowsAffected() == 0 {
		r.logger.Info("job already exists, creation skipped",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
		)
		return false, nil
	}

	r.logger.Info("job created",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Time("scheduled_at", job.ScheduledAt),
	)

	return true, nil
}

// GetJob retrieves a job by its deterministic id
func (r *Repository) GetJob(ctx context.Context, id string) (*NotificationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM notification_jobs WHERE id = $1`

	var job NotificationJob
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.Type,
		&job.Channel,
		&job.ScheduledAt,
		&job.Status,
		&job.Targets,
		&job.Payload,
		&job.SourceKind,
		&job.SourceID,
		&job.ResendGuard,
		&job.LastSentAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}

	if err != nil {
		r.logger.Error("failed to get job",
			zap.Error(err),
			zap.String("job_id", id),
		)
		return nil, fmt.Errorf("query job: %w", err)
	}

	return &job, nil
}

// SetResendGuard marks the job as sent so a replayed queue callback does
// not deliver it a second time.
func (r *Repository) SetResendGuard(ctx context.Context, id string, sentAt time.Time) error {
	query := `
		UPDATE notification_jobs
		SET resend_guard = TRUE, last_sent_at = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.Pool().Exec(ctx, query, sentAt, id)
	if err != nil {
		return fmt.Errorf("set resend guard: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkJobTerminal moves a pending job into a terminal status. Terminal rows
// stay in place for auditability; only pending rows are actionable.
func (r *Repository) MarkJobTerminal(ctx context.Context, id, status string) error {
	if status != JobStatusDelivered && status != JobStatusFailed && status != JobStatusExpired {
		return fmt.Errorf("not a terminal job status: %s", status)
	}

	query := `
		UPDATE notification_jobs
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := r.db.Pool().Exec(ctx, query, status, id, JobStatusPending)
	if err != nil {
		return fmt.Errorf("mark job terminal: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}

	r.logger.Info("job reached terminal status",
		zap.String("job_id", id),
		zap.String("status", status),
	)

	return nil
}

// ListJobsByChat retrieves jobs for a conversation, newest first
func (r *Repository) ListJobsByChat(ctx context.Context, chatID string, limit, offset int) ([]*NotificationJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM notification_jobs
		WHERE payload->>'chat_id' = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, chatID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListOverduePendingJobs retrieves pending jobs whose scheduled instant has
// already passed by at least the grace period. Used by the reconciliation
// sweep to re-register jobs whose timer registration was lost.
func (r *Repository) ListOverduePendingJobs(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]*NotificationJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM notification_jobs
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, JobStatusPending, now.Add(-grace), limit)
	if err != nil {
		return nil, fmt.Errorf("query overdue jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func scanJobs(rows pgx.Rows) ([]*NotificationJob, error) {
	var jobs []*NotificationJob
	for rows.Next() {
		var job NotificationJob
		err := rows.Scan(
			&job.ID,
			&job.Type,
			&job.Channel,
			&job.ScheduledAt,
			&job.Status,
			&job.Targets,
			&job.Payload,
			&job.SourceKind,
			&job.SourceID,
			&job.ResendGuard,
			&job.LastSentAt,
			&job.CreatedAt,
			&job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return jobs, nil
}
