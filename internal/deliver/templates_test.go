package deliver

import (
	"strings"
	"testing"
	"time"

	"github.com/velora-hq/salesflow/internal/db"
)

func TestComposeMessage(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}

	base := db.JobPayload{
		ChatID:    "chat-1",
		ChatTitle: "Acme deal room",
		MessageID: "msg-1",
		FileName:  "proposal_v2.pdf",
		Caption:   "updated pricing",
		EventAt:   time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC), // 19:00 JST
	}

	tests := []struct {
		jobType  db.JobType
		contains []string
	}{
		{db.TypeProposal1st, []string{"proposal", "Acme deal room", "proposal_v2.pdf", "updated pricing", "2025/01/09 19:00"}},
		{db.TypeProposal2nd, []string{"Second reminder", "proposal"}},
		{db.TypeInvoice1st, []string{"invoice", "payment status"}},
		{db.TypeInvoice2nd, []string{"Second reminder", "invoice"}},
		{db.TypeAgreement1st, []string{"agreement", "signed"}},
		{db.TypeAgreement2nd, []string{"Second reminder", "agreement"}},
		{db.TypeCalendly, []string{"scheduling link", "booked"}},
		{db.TypeBotJoinCallCheck, []string{"joined", "intro call"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.jobType), func(t *testing.T) {
			job := &db.NotificationJob{
				Type:    tt.jobType,
				Targets: []string{"t-1", "t-2"},
				Payload: base,
			}

			msg := ComposeMessage(job, loc)

			if !strings.Contains(msg.Text, "<@t-1> <@t-2>") {
				t.Errorf("message missing target mentions: %q", msg.Text)
			}
			for _, want := range tt.contains {
				if !strings.Contains(msg.Text, want) {
					t.Errorf("message missing %q: %q", want, msg.Text)
				}
			}
		})
	}
}

func TestComposeMessage_FallsBackToChatID(t *testing.T) {
	job := &db.NotificationJob{
		Type:    db.TypeCalendly,
		Targets: []string{"t-1"},
		Payload: db.JobPayload{ChatID: "chat-42", MessageID: "m", EventAt: time.Now()},
	}

	msg := ComposeMessage(job, time.UTC)
	if !strings.Contains(msg.Text, "chat-42") {
		t.Errorf("message should reference the chat id when the title is empty: %q", msg.Text)
	}
}
