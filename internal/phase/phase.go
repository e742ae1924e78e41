// Package phase implements the per-conversation lifecycle marker. A chat's
// phase only ever moves forward: a candidate is applied only when its rank
// exceeds the stored rank, or when no phase exists yet.
package phase

import "time"

// Value is one of the five ordered lifecycle markers.
type Value string

const (
	BotAdded           Value = "bot_added"
	CalendlyLinkShared Value = "calendly_link_shared"
	ProposalSent       Value = "proposal_sent"
	AgreementSent      Value = "agreement_sent"
	InvoiceSent        Value = "invoice_sent"
)

var ranks = map[Value]int{
	BotAdded:           1,
	CalendlyLinkShared: 2,
	ProposalSent:       3,
	AgreementSent:      4,
	InvoiceSent:        5,
}

// Rank returns the ordinal rank of a phase value, or 0 if unknown.
func Rank(v Value) int {
	return ranks[v]
}

// Valid reports whether v is one of the five known phase values.
func Valid(v Value) bool {
	_, ok := ranks[v]
	return ok
}

// FromTrigger maps a base notification type to the phase it realizes.
// Reminder ("2nd") types never advance the phase and return false.
func FromTrigger(jobType string) (Value, bool) {
	switch jobType {
	case "bot_join_call_check":
		return BotAdded, true
	case "calendly":
		return CalendlyLinkShared, true
	case "proposal_1st":
		return ProposalSent, true
	case "agreement_1st":
		return AgreementSent, true
	case "invoice_1st":
		return InvoiceSent, true
	default:
		return "", false
	}
}

// Candidate is a proposed phase transition.
type Candidate struct {
	Value     Value
	TS        time.Time
	MessageID string
}

// Current is the stored phase state read inside the transaction.
type Current struct {
	Value     Value
	MessageID string
}

// ShouldAdvance decides whether a candidate replaces the current phase.
// current == nil means no phase exists yet (base case, always applied).
// An identical (value, messageId) pair is an idempotent replay and is
// never re-applied.
func ShouldAdvance(current *Current, cand Candidate) bool {
	if !Valid(cand.Value) {
		return false
	}
	if current == nil {
		return true
	}
	if current.Value == cand.Value && current.MessageID == cand.MessageID {
		return false
	}
	return Rank(cand.Value) > Rank(current.Value)
}
