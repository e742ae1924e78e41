package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/velora-hq/salesflow/internal/deliver"
)

// Headers supplied by the delayed-execution queue on each callback.
const (
	HeaderTasksSecret = "X-Tasks-Secret"
	HeaderTaskAttempt = "X-Task-Attempt"
)

// Executor runs one delivery callback.
type Executor interface {
	Execute(ctx context.Context, jobID string, attempt int) deliver.Result
}

// callbackRequest is the queue's callback body.
type callbackRequest struct {
	JobID string `json:"jobId"`
}

// callbackResponse carries the terminal reason code back to the queue.
type callbackResponse struct {
	Reason string `json:"reason"`
}

// DeliveryCallback handles POST /tasks/notifications, the queue's delivery
// invocation. Responses: 200 terminal (with a reason code), 403 untrusted
// caller, 400 malformed request, 500 retry requested.
func (h *Handler) DeliveryCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.tasksSecret == "" || r.Header.Get(HeaderTasksSecret) != h.tasksSecret {
		h.logger.Warn("delivery callback from untrusted caller",
			zap.String("remote_addr", r.RemoteAddr),
		)
		h.writeError(w, http.StatusForbidden, "untrusted_caller", "Caller identity not recognized", "")
		return
	}

	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.JobID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing jobId", "jobId is required")
		return
	}

	attempt := 1
	if raw := r.Header.Get(HeaderTaskAttempt); raw != "" {
		if a, err := strconv.Atoi(raw); err == nil && a >= 1 {
			attempt = a
		}
	}

	result := h.executor.Execute(ctx, req.JobID, attempt)

	h.logger.Info("delivery callback handled",
		zap.String("job_id", req.JobID),
		zap.Int("attempt", attempt),
		zap.String("reason", result.Code),
		zap.Bool("retry", result.Retry),
	)

	if result.Retry {
		// Non-2xx asks the queue to re-invoke with attempt+1.
		h.writeJSON(w, http.StatusInternalServerError, callbackResponse{Reason: result.Code})
		return
	}

	h.writeJSON(w, http.StatusOK, callbackResponse{Reason: result.Code})
}
