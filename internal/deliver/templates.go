package deliver

import (
	"fmt"
	"strings"
	"time"

	"github.com/velora-hq/salesflow/internal/db"
)

// ComposeMessage renders the type-keyed follow-up body for a job. Each
// template references the recipient mentions, the conversation title, the
// referenced file name, the caption, and the original event timestamp
// formatted in the reference timezone.
func ComposeMessage(job *db.NotificationJob, loc *time.Location) OutboundMessage {
	mentions := formatMentions(job.Targets)
	title := job.Payload.ChatTitle
	if title == "" {
		title = job.Payload.ChatID
	}
	file := job.Payload.FileName
	if file == "" {
		file = "(no file)"
	}
	caption := job.Payload.Caption
	if caption == "" {
		caption = "(no caption)"
	}
	when := job.Payload.EventAt.In(loc).Format("2006/01/02 15:04")

	var text string
	switch job.Type {
	case db.TypeProposal1st:
		text = fmt.Sprintf(
			"%s Follow-up on the proposal in %q.\nFile: %s\nCaption: %s\nSent: %s\nHas the client responded? If not, please nudge them today.",
			mentions, title, file, caption, when)

	case db.TypeProposal2nd:
		text = fmt.Sprintf(
			"%s Second reminder for the proposal in %q (sent %s, file %s).\nIf there is still no reply, consider calling the client directly.",
			mentions, title, when, file)

	case db.TypeInvoice1st:
		text = fmt.Sprintf(
			"%s Follow-up on the invoice in %q.\nFile: %s\nCaption: %s\nSent: %s\nPlease confirm the payment status.",
			mentions, title, file, caption, when)

	case db.TypeInvoice2nd:
		text = fmt.Sprintf(
			"%s Second reminder for the invoice in %q (sent %s, file %s).\nPayment has not been confirmed yet — please escalate if needed.",
			mentions, title, when, file)

	case db.TypeAgreement1st:
		text = fmt.Sprintf(
			"%s Follow-up on the agreement in %q.\nFile: %s\nCaption: %s\nSent: %s\nPlease check whether it has been signed.",
			mentions, title, file, caption, when)

	case db.TypeAgreement2nd:
		text = fmt.Sprintf(
			"%s Second reminder for the agreement in %q (sent %s, file %s).\nStill unsigned — please follow up with the client.",
			mentions, title, when, file)

	case db.TypeCalendly:
		text = fmt.Sprintf(
			"%s A scheduling link was shared in %q on %s.\nCaption: %s\nPlease confirm the meeting has been booked.",
			mentions, title, when, caption)

	case db.TypeBotJoinCallCheck:
		text = fmt.Sprintf(
			"%s The assistant joined %q on %s.\nPlease make sure an intro call is on the calendar for this client.",
			mentions, title, when)

	default:
		text = fmt.Sprintf("%s Follow-up reminder for %q (sent %s).", mentions, title, when)
	}

	return OutboundMessage{
		Targets: job.Targets,
		Text:    text,
	}
}

func formatMentions(targets []string) string {
	if len(targets) == 0 {
		return ""
	}
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = "<@" + t + ">"
	}
	return strings.Join(parts, " ")
}
