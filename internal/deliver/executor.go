// Package deliver executes queue callbacks for scheduled follow-up jobs:
// it enforces the retry ceiling, validates the job, composes and sends the
// message, writes the terminal delivery log, and settles the job's status.
package deliver

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/velora-hq/salesflow/internal/db"
	"github.com/velora-hq/salesflow/internal/metrics"
)

// Terminal reason codes returned to the queue.
const (
	CodeJobNotFound      = "job_not_found"
	CodeAlreadyTerminal  = "already_terminal"
	CodeRetriesExhausted = "retries_exhausted"
	CodeInvalidJob       = "invalid_job"
	CodeAlreadySent      = "already_sent"
	CodeDelivered        = "delivered"
	CodeFailed           = "failed"
	CodeRetryRequested   = "retry_requested"
)

// Result tells the callback handler how to answer the queue. Retry means
// the job stays pending and the queue should re-invoke with attempt+1.
type Result struct {
	Code  string
	Retry bool
}

// JobStore is the executor's view of the job repository.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*db.NotificationJob, error)
	SetResendGuard(ctx context.Context, id string, sentAt time.Time) error
	MarkJobTerminal(ctx context.Context, id, status string) error
}

// DeliveryStore appends terminal delivery log records.
type DeliveryStore interface {
	CreateDelivery(ctx context.Context, d *db.NotificationDelivery) error
}

// EventPublisher announces terminal delivery outcomes to downstream
// consumers. Optional.
type EventPublisher interface {
	DeliveryCompleted(ctx context.Context, job *db.NotificationJob, status string) error
}

// Escalator notifies ops when a job burns through its retry ceiling.
// Optional.
type Escalator interface {
	RetriesExhausted(ctx context.Context, job *db.NotificationJob, lastError string) error
}

// Executor is the delivery state machine.
type Executor struct {
	jobs        JobStore
	deliveries  DeliveryStore
	channel     Channel
	events      EventPublisher // nil when fan-out is not configured
	alerts      Escalator      // nil when escalation email is not configured
	maxAttempts int
	loc         *time.Location
	logger      *zap.Logger
}

// Config holds executor parameters.
type Config struct {
	MaxAttempts int
	Location    *time.Location
}

// NewExecutor creates a delivery executor. events and alerts may be nil.
func NewExecutor(jobs JobStore, deliveries DeliveryStore, channel Channel, events EventPublisher, alerts Escalator, cfg Config, logger *zap.Logger) *Executor {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Executor{
		jobs:        jobs,
		deliveries:  deliveries,
		channel:     channel,
		events:      events,
		alerts:      alerts,
		maxAttempts: cfg.MaxAttempts,
		loc:         cfg.Location,
		logger:      logger,
	}
}

// Execute runs one queue callback for jobID with the queue-supplied
// 1-based attempt count. Every terminal path writes a delivery record and
// settles the job's status; only a retryable send failure leaves the job
// pending and asks the queue to come back.
//
// The executor tolerates at-least-once invocation: a missing or already
// settled job is a terminal no-op, and the re-send guard short-circuits a
// replay after a completed send. The guard is set only once an attempt
// reached a terminal channel outcome — a retryable failure leaves it unset
// so the retry genuinely re-attempts delivery.
func (e *Executor) Execute(ctx context.Context, jobID string, attempt int) Result {
	if attempt < 1 {
		attempt = 1
	}

	job, err := e.jobs.GetJob(ctx, jobID)
	if errors.Is(err, db.ErrJobNotFound) {
		e.logger.Info("callback for unknown job, nothing to do",
			zap.String("job_id", jobID),
		)
		return Result{Code: CodeJobNotFound}
	}
	if err != nil {
		// Store unavailable: let the queue retry within the ceiling.
		e.logger.Error("failed to load job", zap.Error(err), zap.String("job_id", jobID))
		return Result{Code: CodeRetryRequested, Retry: true}
	}

	if job.Status != db.JobStatusPending {
		e.logger.Info("callback for settled job, nothing to do",
			zap.String("job_id", jobID),
			zap.String("status", job.Status),
		)
		return Result{Code: CodeAlreadyTerminal}
	}

	if attempt > e.maxAttempts {
		reason := "retry ceiling exceeded"
		e.record(ctx, job, db.DeliveryStatusFailure, attempt, &reason, nil, time.Now(), time.Now())
		e.settle(ctx, job, db.JobStatusExpired)
		if e.alerts != nil {
			if err := e.alerts.RetriesExhausted(ctx, job, reason); err != nil {
				e.logger.Warn("failed to send escalation", zap.Error(err), zap.String("job_id", job.ID))
			}
		}
		metrics.RecordDelivery(string(job.Type), CodeRetriesExhausted)
		return Result{Code: CodeRetriesExhausted}
	}

	if reason, ok := validate(job); !ok {
		e.record(ctx, job, db.DeliveryStatusFailure, attempt, &reason, nil, time.Now(), time.Now())
		e.settle(ctx, job, db.JobStatusFailed)
		metrics.RecordDelivery(string(job.Type), CodeInvalidJob)
		return Result{Code: CodeInvalidJob}
	}

	if job.ResendGuard {
		// A prior attempt already completed a send; treat the replay as
		// delivered instead of sending twice.
		e.record(ctx, job, db.DeliveryStatusSuccess, attempt, nil, nil, time.Now(), time.Now())
		e.settle(ctx, job, db.JobStatusDelivered)
		metrics.RecordDelivery(string(job.Type), CodeAlreadySent)
		return Result{Code: CodeAlreadySent}
	}

	msg := ComposeMessage(job, e.loc)

	started := time.Now()
	resp, sendErr := e.channel.Send(ctx, msg)
	finished := time.Now()
	metrics.RecordDeliveryDuration(string(job.Type), finished.Sub(started))

	outcome := classify(resp, sendErr)

	if outcome != outcomeRetryable {
		// The attempt is spent: guard against a queue replay re-sending.
		if err := e.jobs.SetResendGuard(ctx, job.ID, finished); err != nil {
			e.logger.Warn("failed to set resend guard", zap.Error(err), zap.String("job_id", job.ID))
		}
	}

	var errMsg *string
	var respCode *int
	if sendErr != nil {
		s := sendErr.Error()
		errMsg = &s
	} else if !resp.OK {
		s := resp.Body
		errMsg = &s
	}
	if sendErr == nil {
		code := resp.StatusCode
		respCode = &code
	}

	status := db.DeliveryStatusFailure
	if outcome == outcomeSuccess {
		status = db.DeliveryStatusSuccess
	}
	e.record(ctx, job, status, attempt, errMsg, respCode, started, finished)

	switch outcome {
	case outcomeSuccess:
		e.settle(ctx, job, db.JobStatusDelivered)
		metrics.RecordDelivery(string(job.Type), CodeDelivered)
		return Result{Code: CodeDelivered}

	case outcomeNonRetryable:
		e.settle(ctx, job, db.JobStatusFailed)
		metrics.RecordDelivery(string(job.Type), CodeFailed)
		return Result{Code: CodeFailed}

	default:
		e.logger.Warn("delivery failed, retry requested",
			zap.String("job_id", job.ID),
			zap.Int("attempt", attempt),
			zap.Error(sendErr),
		)
		metrics.RecordDelivery(string(job.Type), CodeRetryRequested)
		return Result{Code: CodeRetryRequested, Retry: true}
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetryable
	outcomeNonRetryable
)

// classify buckets a send result: transport failures and 429/5xx responses
// are retryable, any other non-2xx is not.
func classify(resp ChannelResponse, sendErr error) outcome {
	if sendErr != nil {
		return outcomeRetryable
	}
	if resp.OK {
		return outcomeSuccess
	}
	if resp.StatusCode == 429 || resp.StatusCode >= 500 {
		return outcomeRetryable
	}
	return outcomeNonRetryable
}

// validate checks the job is actually deliverable.
func validate(job *db.NotificationJob) (string, bool) {
	if job.Channel != db.ChannelChatWebhook {
		return "unsupported channel: " + job.Channel, false
	}
	if len(job.Targets) == 0 {
		return "job has no delivery targets", false
	}
	if job.Payload.ChatID == "" || job.Payload.MessageID == "" {
		return "job payload missing origin metadata", false
	}
	return "", true
}

// record writes the delivery log entry; a failure here is logged and
// swallowed so it never masks the primary outcome.
func (e *Executor) record(ctx context.Context, job *db.NotificationJob, status string, attempt int, errMsg *string, respCode *int, started, finished time.Time) {
	d := &db.NotificationDelivery{
		ID:           uuid.New(),
		JobID:        job.ID,
		Type:         job.Type,
		Channel:      job.Channel,
		Targets:      job.Targets,
		Status:       status,
		Attempt:      attempt,
		ErrorMessage: errMsg,
		ResponseCode: respCode,
		StartedAt:    started,
		FinishedAt:   finished,
		DurationMs:   finished.Sub(started).Milliseconds(),
		SourceKind:   job.SourceKind,
		SourceID:     job.SourceID,
	}

	if err := e.deliveries.CreateDelivery(ctx, d); err != nil {
		e.logger.Error("failed to write delivery record",
			zap.Error(err),
			zap.String("job_id", job.ID),
		)
	}
}

// settle moves the job to a terminal status and fans the outcome out;
// both are best-effort relative to the primary decision.
func (e *Executor) settle(ctx context.Context, job *db.NotificationJob, status string) {
	if err := e.jobs.MarkJobTerminal(ctx, job.ID, status); err != nil {
		e.logger.Error("failed to settle job",
			zap.Error(err),
			zap.String("job_id", job.ID),
			zap.String("status", status),
		)
		return
	}

	if e.events != nil {
		if err := e.events.DeliveryCompleted(ctx, job, status); err != nil {
			e.logger.Warn("failed to publish delivery event",
				zap.Error(err),
				zap.String("job_id", job.ID),
			)
		}
	}
}
