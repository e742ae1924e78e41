package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// CreateDelivery appends a terminal delivery log record. Delivery records
// are never mutated or deleted after creation.
func (r *Repository) CreateDelivery(ctx context.Context, d *NotificationDelivery) error {
	query := `
		INSERT INTO notification_deliveries (
			id, job_id, type, channel, targets, status, attempt,
			error_message, response_code, started_at, finished_at,
			duration_ms, source_kind, source_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		d.ID,
		d.JobID,
		d.Type,
		d.Channel,
		d.Targets,
		d.Status,
		d.Attempt,
		d.ErrorMessage,
		d.ResponseCode,
		d.StartedAt,
		d.FinishedAt,
		d.DurationMs,
		d.SourceKind,
		d.SourceID,
	).Scan(&d.CreatedAt)

	if err != nil {
		r.logger.Error("failed to create delivery record",
			zap.Error(err),
			zap.String("delivery_id", d.ID.String()),
			zap.String("job_id", d.JobID),
		)
		return fmt.Errorf("insert delivery: %w", err)
	}

	r.logger.Info("delivery recorded",
		zap.String("delivery_id", d.ID.String()),
		zap.String("job_id", d.JobID),
		zap.String("status", d.Status),
		zap.Int("attempt", d.Attempt),
	)

	return nil
}

// ListDeliveriesByJob retrieves all delivery attempts for a job, oldest first
func (r *Repository) ListDeliveriesByJob(ctx context.Context, jobID string) ([]*NotificationDelivery, error) {
	query := `
		SELECT
			id, job_id, type, channel, targets, status, attempt,
			error_message, response_code, started_at, finished_at,
			duration_ms, source_kind, source_id, created_at
		FROM notification_deliveries
		WHERE job_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*NotificationDelivery
	for rows.Next() {
		var d NotificationDelivery
		err := rows.Scan(
			&d.ID,
			&d.JobID,
			&d.Type,
			&d.Channel,
			&d.Targets,
			&d.Status,
			&d.Attempt,
			&d.ErrorMessage,
			&d.ResponseCode,
			&d.StartedAt,
			&d.FinishedAt,
			&d.DurationMs,
			&d.SourceKind,
			&d.SourceID,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return deliveries, nil
}
