package deliver

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/velora-hq/salesflow/internal/db"
)

// fakeJobStore is an in-memory JobStore.
type fakeJobStore struct {
	jobs map[string]*db.NotificationJob

	getErr      error
	guardCalls  int
	settledTo   string
	settleCalls int
}

func newFakeJobStore(jobs ...*db.NotificationJob) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]*db.NotificationJob)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) GetJob(ctx context.Context, id string) (*db.NotificationJob, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	job, ok := s.jobs[id]
	if !ok {
		return nil, db.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *fakeJobStore) SetResendGuard(ctx context.Context, id string, sentAt time.Time) error {
	s.guardCalls++
	if job, ok := s.jobs[id]; ok {
		job.ResendGuard = true
		job.LastSentAt = &sentAt
	}
	return nil
}

func (s *fakeJobStore) MarkJobTerminal(ctx context.Context, id, status string) error {
	s.settleCalls++
	s.settledTo = status
	if job, ok := s.jobs[id]; ok {
		job.Status = status
	}
	return nil
}

// fakeDeliveryStore collects appended delivery records.
type fakeDeliveryStore struct {
	records []*db.NotificationDelivery
}

func (s *fakeDeliveryStore) CreateDelivery(ctx context.Context, d *db.NotificationDelivery) error {
	s.records = append(s.records, d)
	return nil
}

// fakeChannel returns scripted responses per call.
type fakeChannel struct {
	resp  ChannelResponse
	err   error
	calls int
}

func (c *fakeChannel) Send(ctx context.Context, msg OutboundMessage) (ChannelResponse, error) {
	c.calls++
	return c.resp, c.err
}

// fakeEscalator records exhaustion alerts.
type fakeEscalator struct {
	calls int
}

func (f *fakeEscalator) RetriesExhausted(ctx context.Context, job *db.NotificationJob, lastError string) error {
	f.calls++
	return nil
}

func pendingJob(id string) *db.NotificationJob {
	return &db.NotificationJob{
		ID:          id,
		Type:        db.TypeProposal1st,
		Channel:     db.ChannelChatWebhook,
		ScheduledAt: time.Now(),
		Status:      db.JobStatusPending,
		Targets:     []string{"t-1"},
		Payload: db.JobPayload{
			ChatID:    "chat-1",
			ChatTitle: "Acme deal room",
			MessageID: "msg-1",
			SenderID:  "u-1",
			EventAt:   time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC),
		},
		SourceKind: "chat_message",
		SourceID:   "msg-1",
	}
}

func newTestExecutor(jobs *fakeJobStore, deliveries *fakeDeliveryStore, ch Channel, alerts Escalator) *Executor {
	return NewExecutor(jobs, deliveries, ch, nil, alerts, Config{MaxAttempts: 5}, zap.NewNop())
}

func TestExecute_SuccessfulDelivery(t *testing.T) {
	jobs := newFakeJobStore(pendingJob("j1"))
	deliveries := &fakeDeliveryStore{}
	ch := &fakeChannel{resp: ChannelResponse{OK: true, StatusCode: 200}}
	e := newTestExecutor(jobs, deliveries, ch, nil)

	res := e.Execute(context.Background(), "j1", 1)

	if res.Code != CodeDelivered || res.Retry {
		t.Fatalf("Execute() = %+v, want delivered without retry", res)
	}
	if jobs.settledTo != db.JobStatusDelivered {
		t.Errorf("job settled to %q, want delivered", jobs.settledTo)
	}
	if jobs.guardCalls != 1 {
		t.Errorf("guard set %d times, want 1", jobs.guardCalls)
	}
	if len(deliveries.records) != 1 {
		t.Fatalf("got %d delivery records, want 1", len(deliveries.records))
	}
	rec := deliveries.records[0]
	if rec.Status != db.DeliveryStatusSuccess || rec.Attempt != 1 {
		t.Errorf("record = status %q attempt %d, want success attempt 1", rec.Status, rec.Attempt)
	}
}

func TestExecute_UnknownJobIsTerminalNoop(t *testing.T) {
	jobs := newFakeJobStore()
	deliveries := &fakeDeliveryStore{}
	ch := &fakeChannel{}
	e := newTestExecutor(jobs, deliveries, ch, nil)

	res := e.Execute(context.Background(), "missing", 1)

	if res.Code != CodeJobNotFound || res.Retry {
		t.Fatalf("Execute() = %+v, want job_not_found without retry", res)
	}
	if ch.calls != 0 || len(deliveries.records) != 0 {
		t.Error("unknown job must not send or record anything")
	}
}

func TestExecute_StoreErrorRequestsRetry(t *testing.T) {
	jobs := newFakeJobStore()
	jobs.getErr = errors.New("connection refused")
	e := newTestExecutor(jobs, &fakeDeliveryStore{}, &fakeChannel{}, nil)

	res := e.Execute(context.Background(), "j1", 1)
	if res.Code != CodeRetryRequested || !res.Retry {
		t.Fatalf("Execute() = %+v, want retry on store error", res)
	}
}

func TestExecute_SettledJobIsNoop(t *testing.T) {
	job := pendingJob("j1")
	job.Status = db.JobStatusDelivered
	jobs := newFakeJobStore(job)
	ch := &fakeChannel{}
	e := newTestExecutor(jobs, &fakeDeliveryStore{}, ch, nil)

	res := e.Execute(context.Background(), "j1", 2)
	if res.Code != CodeAlreadyTerminal || res.Retry {
		t.Fatalf("Execute() = %+v, want already_terminal", res)
	}
	if ch.calls != 0 {
		t.Error("settled job must not be re-sent")
	}
}

// Attempt ceiling+1 expires the job regardless of channel health, writes a
// failure record, and escalates.
func TestExecute_RetriesExhausted(t *testing.T) {
	jobs := newFakeJobStore(pendingJob("j1"))
	deliveries := &fakeDeliveryStore{}
	ch := &fakeChannel{resp: ChannelResponse{OK: true, StatusCode: 200}}
	alerts := &fakeEscalator{}
	e := newTestExecutor(jobs, deliveries, ch, alerts)

	res := e.Execute(context.Background(), "j1", 6)

	if res.Code != CodeRetriesExhausted || res.Retry {
		t.Fatalf("Execute() = %+v, want retries_exhausted", res)
	}
	if ch.calls != 0 {
		t.Error("exhausted job must not reach the channel")
	}
	if jobs.settledTo != db.JobStatusExpired {
		t.Errorf("job settled to %q, want expired", jobs.settledTo)
	}
	if alerts.calls != 1 {
		t.Errorf("escalation sent %d times, want 1", alerts.calls)
	}
	if len(deliveries.records) != 1 || deliveries.records[0].Status != db.DeliveryStatusFailure {
		t.Error("exhaustion must append a failure record")
	}
}

func TestExecute_InvalidJob(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*db.NotificationJob)
	}{
		{"no targets", func(j *db.NotificationJob) { j.Targets = nil }},
		{"unknown channel", func(j *db.NotificationJob) { j.Channel = "carrier_pigeon" }},
		{"missing origin metadata", func(j *db.NotificationJob) { j.Payload.MessageID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := pendingJob("j1")
			tt.mutate(job)
			jobs := newFakeJobStore(job)
			deliveries := &fakeDeliveryStore{}
			ch := &fakeChannel{}
			e := newTestExecutor(jobs, deliveries, ch, nil)

			res := e.Execute(context.Background(), "j1", 1)

			if res.Code != CodeInvalidJob || res.Retry {
				t.Fatalf("Execute() = %+v, want invalid_job", res)
			}
			if ch.calls != 0 {
				t.Error("invalid job must not be sent")
			}
			if jobs.settledTo != db.JobStatusFailed {
				t.Errorf("job settled to %q, want failed", jobs.settledTo)
			}
			if len(deliveries.records) != 1 {
				t.Error("invalid job must still append a failure record")
			}
		})
	}
}

func TestExecute_ResendGuardShortCircuits(t *testing.T) {
	job := pendingJob("j1")
	job.ResendGuard = true
	jobs := newFakeJobStore(job)
	deliveries := &fakeDeliveryStore{}
	ch := &fakeChannel{}
	e := newTestExecutor(jobs, deliveries, ch, nil)

	res := e.Execute(context.Background(), "j1", 2)

	if res.Code != CodeAlreadySent || res.Retry {
		t.Fatalf("Execute() = %+v, want already_sent", res)
	}
	if ch.calls != 0 {
		t.Error("guarded job must not be re-sent")
	}
	if jobs.settledTo != db.JobStatusDelivered {
		t.Errorf("job settled to %q, want delivered", jobs.settledTo)
	}
	if len(deliveries.records) != 1 || deliveries.records[0].Status != db.DeliveryStatusSuccess {
		t.Error("guarded replay must append a success record")
	}
}

// A retryable failure must leave the re-send guard unset so the next
// attempt genuinely re-sends; setting it would turn every transient
// failure into a silent drop.
func TestExecute_RetryableFailureLeavesGuardUnset(t *testing.T) {
	jobs := newFakeJobStore(pendingJob("j1"))
	deliveries := &fakeDeliveryStore{}
	ch := &fakeChannel{resp: ChannelResponse{OK: false, StatusCode: 503, Body: "upstream down"}}
	e := newTestExecutor(jobs, deliveries, ch, nil)

	res := e.Execute(context.Background(), "j1", 1)
	if res.Code != CodeRetryRequested || !res.Retry {
		t.Fatalf("Execute() = %+v, want retry_requested", res)
	}
	if jobs.guardCalls != 0 {
		t.Fatalf("guard set %d times after retryable failure, want 0", jobs.guardCalls)
	}
	if jobs.settleCalls != 0 {
		t.Error("retryable failure must leave the job pending")
	}

	// Next attempt after recovery actually reaches the channel and delivers.
	ch.resp = ChannelResponse{OK: true, StatusCode: 200}
	res = e.Execute(context.Background(), "j1", 2)
	if res.Code != CodeDelivered {
		t.Fatalf("Execute() = %+v, want delivered on retry", res)
	}
	if ch.calls != 2 {
		t.Errorf("channel called %d times, want 2", ch.calls)
	}
	if len(deliveries.records) != 2 {
		t.Errorf("got %d delivery records, want one per attempt", len(deliveries.records))
	}
}

func TestExecute_TransportErrorIsRetryable(t *testing.T) {
	jobs := newFakeJobStore(pendingJob("j1"))
	ch := &fakeChannel{err: errors.New("dial tcp: connection refused")}
	e := newTestExecutor(jobs, &fakeDeliveryStore{}, ch, nil)

	res := e.Execute(context.Background(), "j1", 1)
	if res.Code != CodeRetryRequested || !res.Retry {
		t.Fatalf("Execute() = %+v, want retry on transport error", res)
	}
	if jobs.guardCalls != 0 {
		t.Error("transport error must not set the guard")
	}
}

// A 4xx other than 429 is a permanent rejection: guard set, job failed,
// no retry.
func TestExecute_NonRetryableFailure(t *testing.T) {
	jobs := newFakeJobStore(pendingJob("j1"))
	deliveries := &fakeDeliveryStore{}
	ch := &fakeChannel{resp: ChannelResponse{OK: false, StatusCode: 404, Body: "channel_not_found"}}
	e := newTestExecutor(jobs, deliveries, ch, nil)

	res := e.Execute(context.Background(), "j1", 1)

	if res.Code != CodeFailed || res.Retry {
		t.Fatalf("Execute() = %+v, want failed without retry", res)
	}
	if jobs.guardCalls != 1 {
		t.Errorf("guard set %d times, want 1 on non-retryable outcome", jobs.guardCalls)
	}
	if jobs.settledTo != db.JobStatusFailed {
		t.Errorf("job settled to %q, want failed", jobs.settledTo)
	}
	rec := deliveries.records[0]
	if rec.Status != db.DeliveryStatusFailure || rec.ResponseCode == nil || *rec.ResponseCode != 404 {
		t.Errorf("record = %+v, want failure with response code 404", rec)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		resp ChannelResponse
		err  error
		want outcome
	}{
		{"2xx", ChannelResponse{OK: true, StatusCode: 200}, nil, outcomeSuccess},
		{"429", ChannelResponse{StatusCode: 429}, nil, outcomeRetryable},
		{"500", ChannelResponse{StatusCode: 500}, nil, outcomeRetryable},
		{"503", ChannelResponse{StatusCode: 503}, nil, outcomeRetryable},
		{"transport error", ChannelResponse{}, errors.New("timeout"), outcomeRetryable},
		{"400", ChannelResponse{StatusCode: 400}, nil, outcomeNonRetryable},
		{"403", ChannelResponse{StatusCode: 403}, nil, outcomeNonRetryable},
		{"404", ChannelResponse{StatusCode: 404}, nil, outcomeNonRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.resp, tt.err); got != tt.want {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}
}
