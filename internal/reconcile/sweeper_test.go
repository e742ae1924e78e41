package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/velora-hq/salesflow/internal/db"
)

type fakeJobLister struct {
	jobs []*db.NotificationJob
	err  error
}

func (f *fakeJobLister) ListOverduePendingJobs(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]*db.NotificationJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.jobs, nil
}

type fakeDispatcher struct {
	payloads [][]byte
	err      error
}

func (f *fakeDispatcher) Enqueue(ctx context.Context, url string, payload []byte, scheduledAt time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, payload)
	return "task-1", nil
}

func TestSweep_RedispatchesOverdueJobs(t *testing.T) {
	lister := &fakeJobLister{jobs: []*db.NotificationJob{
		{ID: "j1", Status: db.JobStatusPending, ScheduledAt: time.Now().Add(-time.Hour)},
		{ID: "j2", Status: db.JobStatusPending, ScheduledAt: time.Now().Add(-2 * time.Hour)},
	}}
	dispatcher := &fakeDispatcher{}
	s := New(lister, dispatcher, Config{CallbackURL: "https://example.com/cb"}, zap.NewNop())

	s.Sweep(context.Background())

	if len(dispatcher.payloads) != 2 {
		t.Fatalf("re-dispatched %d jobs, want 2", len(dispatcher.payloads))
	}

	var body map[string]string
	if err := json.Unmarshal(dispatcher.payloads[0], &body); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if body["jobId"] != "j1" {
		t.Errorf("payload jobId = %q, want j1", body["jobId"])
	}
}

func TestSweep_NothingOverdue(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	s := New(&fakeJobLister{}, dispatcher, Config{}, zap.NewNop())

	s.Sweep(context.Background())

	if len(dispatcher.payloads) != 0 {
		t.Errorf("re-dispatched %d jobs, want 0", len(dispatcher.payloads))
	}
}

func TestSweep_ListErrorIsNonFatal(t *testing.T) {
	lister := &fakeJobLister{err: errors.New("db down")}
	s := New(lister, &fakeDispatcher{}, Config{}, zap.NewNop())

	// Must not panic; the next scheduled sweep tries again.
	s.Sweep(context.Background())
}

func TestNew_Defaults(t *testing.T) {
	s := New(&fakeJobLister{}, &fakeDispatcher{}, Config{}, zap.NewNop())

	if s.cfg.Schedule != "@every 5m" {
		t.Errorf("schedule = %q, want @every 5m", s.cfg.Schedule)
	}
	if s.cfg.Grace != 10*time.Minute {
		t.Errorf("grace = %v, want 10m", s.cfg.Grace)
	}
	if s.cfg.BatchSize != 50 {
		t.Errorf("batch size = %d, want 50", s.cfg.BatchSize)
	}
}
