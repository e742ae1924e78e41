package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/velora-hq/salesflow/internal/db"
	"github.com/velora-hq/salesflow/internal/metrics"
	"github.com/velora-hq/salesflow/internal/phase"
	"github.com/velora-hq/salesflow/internal/planner"
	"github.com/velora-hq/salesflow/internal/tasks"
	"github.com/velora-hq/salesflow/internal/trigger"
)

// Repository is the handler's view of the durable store.
type Repository interface {
	CreateJobIfAbsent(ctx context.Context, job *db.NotificationJob) (bool, error)
	GetJob(ctx context.Context, id string) (*db.NotificationJob, error)
	ListJobsByChat(ctx context.Context, chatID string, limit, offset int) ([]*db.NotificationJob, error)
	ListDeliveriesByJob(ctx context.Context, jobID string) ([]*db.NotificationDelivery, error)
	AdvanceChatPhase(ctx context.Context, chatID string, cand phase.Candidate) (bool, error)
	GetChatPhase(ctx context.Context, chatID string) (*db.ChatPhase, error)
}

// Classifier maps inbound events to a base notification type.
type Classifier interface {
	Classify(ev *trigger.InboundEvent) (db.JobType, bool)
}

// Planner expands a base type into scheduled entries.
type Planner interface {
	Plan(base db.JobType, origin time.Time) ([]planner.Entry, error)
}

// TargetResolver picks delivery targets for a planned job.
type TargetResolver interface {
	Resolve(ctx context.Context, jobType db.JobType, senderID, workspaceID string) ([]string, error)
}

// Dedup short-circuits redelivered webhook events. Optional.
type Dedup interface {
	SeenFirst(ctx context.Context, chatID, messageID string) (bool, error)
}

// JobEventPublisher announces created jobs. Optional.
type JobEventPublisher interface {
	JobCreated(ctx context.Context, job *db.NotificationJob) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	repo        Repository
	classifier  Classifier
	planner     Planner
	resolver    TargetResolver
	dispatcher  tasks.Dispatcher
	dedup       Dedup             // nil when Redis is not configured
	events      JobEventPublisher // nil when fan-out is not configured
	executor    Executor
	callbackURL string
	tasksSecret string
}

// NewHandler creates a new API handler. dedup and events may be nil.
func NewHandler(
	logger *zap.Logger,
	repo Repository,
	classifier Classifier,
	pl Planner,
	resolver TargetResolver,
	dispatcher tasks.Dispatcher,
	dedup Dedup,
	events JobEventPublisher,
	executor Executor,
	callbackURL, tasksSecret string,
) *Handler {
	return &Handler{
		logger:      logger,
		repo:        repo,
		classifier:  classifier,
		planner:     pl,
		resolver:    resolver,
		dispatcher:  dispatcher,
		dedup:       dedup,
		events:      events,
		executor:    executor,
		callbackURL: callbackURL,
		tasksSecret: tasksSecret,
	}
}

// plannedJob is one realized schedule entry in the ingest response.
type plannedJob struct {
	JobID       string    `json:"job_id"`
	Type        string    `json:"type"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Created     bool      `json:"created"`
}

// IngestResponse summarizes what an inbound event produced.
type IngestResponse struct {
	Status       string       `json:"status"` // scheduled | ignored | duplicate
	Trigger      string       `json:"trigger,omitempty"`
	Jobs         []plannedJob `json:"jobs,omitempty"`
	PhaseApplied bool         `json:"phase_applied"`
}

// IngestEvent handles POST /v1/events: classify a normalized inbound chat
// event, expand its schedule, create idempotent jobs, register them with
// the delayed-execution queue, and advance the conversation phase.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var ev trigger.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if ev.ChatID == "" || ev.MessageID == "" || ev.SenderID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields",
			"chat_id, message_id, and sender_id are required")
		return
	}
	if ev.EventAt.IsZero() {
		ev.EventAt = time.Now().UTC()
	}

	// Chat platforms redeliver webhooks; drop replays before classifying.
	// Fail open when the dedup store is unavailable — job ids are
	// deterministic, so a replayed event cannot create a second job.
	if h.dedup != nil {
		first, err := h.dedup.SeenFirst(ctx, ev.ChatID, ev.MessageID)
		if err != nil {
			h.logger.Warn("event dedup unavailable, proceeding", zap.Error(err))
		} else if !first {
			h.writeJSON(w, http.StatusOK, IngestResponse{Status: "duplicate"})
			return
		}
	}

	baseType, ok := h.classifier.Classify(&ev)
	if !ok {
		metrics.RecordEventClassified("none")
		h.writeJSON(w, http.StatusOK, IngestResponse{Status: "ignored"})
		return
	}
	metrics.RecordEventClassified(string(baseType))

	entries, err := h.planner.Plan(baseType, ev.EventAt)
	if err != nil {
		h.logger.Error("failed to plan schedule",
			zap.Error(err),
			zap.String("trigger", string(baseType)),
		)
		h.writeError(w, http.StatusInternalServerError, "planning_error", "Failed to plan follow-up schedule", "")
		return
	}

	targets, err := h.resolver.Resolve(ctx, baseType, ev.SenderID, ev.WorkspaceID)
	if err != nil {
		h.logger.Error("failed to resolve targets",
			zap.Error(err),
			zap.String("sender_id", ev.SenderID),
		)
		h.writeError(w, http.StatusInternalServerError, "directory_error", "Failed to resolve delivery targets", "")
		return
	}

	sourceKind := "chat_message"
	if ev.Kind == trigger.KindMemberJoin {
		sourceKind = "member_join"
	}

	resp := IngestResponse{Status: "scheduled", Trigger: string(baseType)}

	for _, entry := range entries {
		job := &db.NotificationJob{
			ID:          db.DeriveJobID(entry.Type, ev.ChatID, ev.MessageID),
			Type:        entry.Type,
			Channel:     db.ChannelChatWebhook,
			ScheduledAt: entry.ScheduledAt,
			Status:      db.JobStatusPending,
			Targets:     targets,
			Payload: db.JobPayload{
				ChatID:    ev.ChatID,
				ChatTitle: ev.ChatTitle,
				MessageID: ev.MessageID,
				SenderID:  ev.SenderID,
				FileName:  ev.FileName,
				Caption:   firstNonEmpty(ev.Caption, ev.Text),
				EventAt:   ev.EventAt,
			},
			SourceKind: sourceKind,
			SourceID:   ev.MessageID,
		}

		created, err := h.repo.CreateJobIfAbsent(ctx, job)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create follow-up job", "")
			return
		}

		resp.Jobs = append(resp.Jobs, plannedJob{
			JobID:       job.ID,
			Type:        string(job.Type),
			ScheduledAt: job.ScheduledAt,
			Created:     created,
		})

		if !created {
			metrics.RecordJobDuplicate()
			continue
		}
		metrics.RecordJobCreated(string(job.Type))

		if h.events != nil {
			if err := h.events.JobCreated(ctx, job); err != nil {
				h.logger.Warn("failed to publish job created event",
					zap.Error(err),
					zap.String("job_id", job.ID),
				)
			}
		}

		// No transactional boundary joins the job write and the timer
		// registration; a failure here is repaired by the reconciliation
		// sweep, so the request still succeeds.
		payload, _ := json.Marshal(map[string]string{"jobId": job.ID})
		if _, err := h.dispatcher.Enqueue(ctx, h.callbackURL, payload, job.ScheduledAt); err != nil {
			h.logger.Error("failed to register job with task queue",
				zap.Error(err),
				zap.String("job_id", job.ID),
			)
		} else {
			metrics.RecordTaskDispatched()
		}
	}

	if value, ok := phase.FromTrigger(string(baseType)); ok {
		applied, err := h.repo.AdvanceChatPhase(ctx, ev.ChatID, phase.Candidate{
			Value:     value,
			TS:        ev.EventAt,
			MessageID: ev.MessageID,
		})
		if err != nil {
			h.logger.Error("failed to advance chat phase",
				zap.Error(err),
				zap.String("chat_id", ev.ChatID),
			)
		} else {
			resp.PhaseApplied = applied
			if applied {
				metrics.RecordPhaseTransition(string(value))
			}
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	job, err := h.repo.GetJob(ctx, id)
	if errors.Is(err, db.ErrJobNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Job not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to get job", zap.Error(err), zap.String("job_id", id))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get job", "")
		return
	}

	h.writeJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /v1/jobs?chat_id=xxx&limit=20&offset=0
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing chat_id", "chat_id query parameter is required")
		return
	}

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	jobs, err := h.repo.ListJobsByChat(ctx, chatID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list jobs", zap.Error(err), zap.String("chat_id", chatID))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list jobs", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":   jobs,
		"limit":  limit,
		"offset": offset,
		"count":  len(jobs),
	})
}

// ListDeliveries handles GET /v1/jobs/{id}/deliveries
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")

	deliveries, err := h.repo.ListDeliveriesByJob(ctx, jobID)
	if err != nil {
		h.logger.Error("failed to list deliveries", zap.Error(err), zap.String("job_id", jobID))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list deliveries", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  deliveries,
		"count": len(deliveries),
	})
}

// GetChatPhase handles GET /v1/chats/{id}/phase
func (h *Handler) GetChatPhase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := chi.URLParam(r, "id")

	p, err := h.repo.GetChatPhase(ctx, chatID)
	if errors.Is(err, db.ErrPhaseNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Chat has no recorded phase", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to get chat phase", zap.Error(err), zap.String("chat_id", chatID))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get chat phase", "")
		return
	}

	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
