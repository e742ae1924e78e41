package db

import (
	"time"

	"github.com/google/uuid"
)

// JobType identifies a follow-up notification kind.
type JobType string

const (
	TypeProposal1st      JobType = "proposal_1st"
	TypeProposal2nd      JobType = "proposal_2nd"
	TypeInvoice1st       JobType = "invoice_1st"
	TypeInvoice2nd       JobType = "invoice_2nd"
	TypeAgreement1st     JobType = "agreement_1st"
	TypeAgreement2nd     JobType = "agreement_2nd"
	TypeCalendly         JobType = "calendly"
	TypeBotJoinCallCheck JobType = "bot_join_call_check"
)

// Job status constants. A job is actionable only while pending; terminal
// rows are retained for auditability instead of being deleted.
const (
	JobStatusPending   = "pending"
	JobStatusDelivered = "delivered"
	JobStatusFailed    = "failed"
	JobStatusExpired   = "expired"
)

// Delivery status constants
const (
	DeliveryStatusSuccess = "success"
	DeliveryStatusFailure = "failure"
)

// Channel constants
const (
	ChannelChatWebhook = "chat_webhook"
)

// JobPayload carries the template fields captured from the origin event.
type JobPayload struct {
	ChatID    string    `json:"chat_id"`
	ChatTitle string    `json:"chat_title,omitempty"`
	MessageID string    `json:"message_id"`
	SenderID  string    `json:"sender_id,omitempty"`
	FileName  string    `json:"file_name,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	EventAt   time.Time `json:"event_at"`
}

// NotificationJob is a scheduled follow-up. Its ID is a pure function of
// (type, origin chat id, origin message id), so creation is idempotent by
// construction. ScheduledAt is immutable once set.
type NotificationJob struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Channel     string     `json:"channel"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      string     `json:"status"`
	Targets     []string   `json:"targets"`
	Payload     JobPayload `json:"payload"`
	SourceKind  string     `json:"source_kind"`
	SourceID    string     `json:"source_id"`
	ResendGuard bool       `json:"resend_guard"`
	LastSentAt  *time.Time `json:"last_sent_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NotificationDelivery is one append-only delivery attempt record. A job
// can accumulate several of these before it reaches a terminal status.
type NotificationDelivery struct {
	ID           uuid.UUID `json:"id"`
	JobID        string    `json:"job_id"`
	Type         JobType   `json:"type"`
	Channel      string    `json:"channel"`
	Targets      []string  `json:"targets"`
	Status       string    `json:"status"`
	Attempt      int       `json:"attempt"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	ResponseCode *int      `json:"response_code,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	DurationMs   int64     `json:"duration_ms"`
	SourceKind   string    `json:"source_kind"`
	SourceID     string    `json:"source_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChatPhase is the per-conversation lifecycle marker. Its rank never
// decreases across a conversation's history.
type ChatPhase struct {
	ChatID    string    `json:"chat_id"`
	Value     string    `json:"value"`
	TS        time.Time `json:"ts"`
	MessageID string    `json:"message_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DirectoryBinding maps a platform identity to one delivery target.
type DirectoryBinding struct {
	UserID      string  `json:"user_id"`
	WorkspaceID *string `json:"workspace_id,omitempty"`
	TargetID    string  `json:"target_id"`
	Enabled     *bool   `json:"enabled,omitempty"`
}
