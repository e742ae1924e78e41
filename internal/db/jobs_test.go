package db

import "testing"

func TestDeriveJobID_Deterministic(t *testing.T) {
	a := DeriveJobID(TypeProposal1st, "chat-1", "msg-1")
	b := DeriveJobID(TypeProposal1st, "chat-1", "msg-1")
	if a != b {
		t.Errorf("same inputs produced different ids: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("id length = %d, want 64 hex chars", len(a))
	}
}

func TestDeriveJobID_DistinctInputs(t *testing.T) {
	base := DeriveJobID(TypeProposal1st, "chat-1", "msg-1")

	variants := []string{
		DeriveJobID(TypeProposal2nd, "chat-1", "msg-1"),
		DeriveJobID(TypeProposal1st, "chat-2", "msg-1"),
		DeriveJobID(TypeProposal1st, "chat-1", "msg-2"),
	}

	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collided with base id", i)
		}
	}
}

// The separator keeps ("ab", "c") and ("a", "bc") apart.
func TestDeriveJobID_NoFieldBleed(t *testing.T) {
	a := DeriveJobID(TypeCalendly, "chat-ab", "c-msg")
	b := DeriveJobID(TypeCalendly, "chat-a", "bc-msg")
	if a == b {
		t.Error("adjacent fields must not be confusable")
	}
}
