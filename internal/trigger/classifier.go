// Package trigger maps normalized inbound chat events to follow-up
// notification types.
package trigger

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/velora-hq/salesflow/internal/db"
)

// Event kinds produced by the webhook normalization layer.
const (
	KindText       = "text"
	KindDocument   = "document"
	KindMemberJoin = "member_join"
)

// InboundEvent is a normalized chat platform event. Payload parsing and
// message-type detection happen upstream; the classifier only inspects
// the normalized record.
type InboundEvent struct {
	SenderID      string    `json:"sender_id"`
	WorkspaceID   string    `json:"workspace_id,omitempty"`
	ChatID        string    `json:"chat_id"`
	ChatTitle     string    `json:"chat_title,omitempty"`
	MessageID     string    `json:"message_id"`
	EventAt       time.Time `json:"event_at"`
	Kind          string    `json:"kind"`
	Text          string    `json:"text,omitempty"`
	Caption       string    `json:"caption,omitempty"`
	FileName      string    `json:"file_name,omitempty"`
	JoinedMembers []string  `json:"joined_members,omitempty"`
}

// Classifier applies the ordered trigger rules. Membership and domain
// tables are injected at construction, never embedded as literals.
type Classifier struct {
	internalMembers map[string]struct{}
	botAccountID    string
	docDomains      []string
	logger          *zap.Logger
}

// NewClassifier builds a classifier from the injected identity tables.
func NewClassifier(internalMembers []string, botAccountID string, docDomains []string, logger *zap.Logger) *Classifier {
	members := make(map[string]struct{}, len(internalMembers))
	for _, m := range internalMembers {
		members[m] = struct{}{}
	}
	return &Classifier{
		internalMembers: members,
		botAccountID:    botAccountID,
		docDomains:      docDomains,
		logger:          logger,
	}
}

// Classify returns the base notification type triggered by an event, or
// ok=false when nothing matches. A non-internal sender is a legitimate
// no-match, not an error. Rules are ordered; the first match wins.
func (c *Classifier) Classify(ev *InboundEvent) (db.JobType, bool) {
	if _, internal := c.internalMembers[ev.SenderID]; !internal {
		c.logger.Debug("event from non-internal sender ignored",
			zap.String("sender_id", ev.SenderID),
			zap.String("chat_id", ev.ChatID),
		)
		return "", false
	}

	combined := strings.ToLower(ev.Caption + " " + ev.Text + " " + ev.FileName)

	switch {
	case ev.Kind == KindMemberJoin && c.botJoined(ev.JoinedMembers):
		return db.TypeBotJoinCallCheck, true

	case c.hasDocDomain(combined) && strings.Contains(combined, "proposal"):
		return db.TypeProposal1st, true

	case ev.Kind == KindDocument && strings.Contains(combined, "invoice"):
		return db.TypeInvoice1st, true

	case strings.Contains(combined, "calendly.com"):
		return db.TypeCalendly, true

	case c.hasDocDomain(combined) && strings.Contains(combined, "agreement"):
		return db.TypeAgreement1st, true
	}

	return "", false
}

func (c *Classifier) botJoined(members []string) bool {
	if c.botAccountID == "" {
		return false
	}
	for _, m := range members {
		if m == c.botAccountID {
			return true
		}
	}
	return false
}

func (c *Classifier) hasDocDomain(combined string) bool {
	for _, domain := range c.docDomains {
		if strings.Contains(combined, domain) {
			return true
		}
	}
	return false
}
