// Package planner expands a base notification type into the ordered set of
// scheduled follow-up entries.
package planner

import (
	"fmt"
	"time"

	"github.com/velora-hq/salesflow/internal/db"
	"github.com/velora-hq/salesflow/internal/schedule"
)

// Entry is one (notification type, scheduled instant) pair.
type Entry struct {
	Type        db.JobType
	ScheduledAt time.Time
}

// offsets maps each business-day-scheduled type to its day offset from
// the origin. bot_join_call_check is absolute-time based and is handled
// separately.
var offsets = map[db.JobType]int{
	db.TypeProposal1st:  3,
	db.TypeProposal2nd:  6,
	db.TypeInvoice1st:   2,
	db.TypeInvoice2nd:   4,
	db.TypeAgreement1st: 2,
	db.TypeAgreement2nd: 4,
	db.TypeCalendly:     1,
}

// followUps maps a base type to the reminder that accompanies it.
var followUps = map[db.JobType]db.JobType{
	db.TypeProposal1st:  db.TypeProposal2nd,
	db.TypeInvoice1st:   db.TypeInvoice2nd,
	db.TypeAgreement1st: db.TypeAgreement2nd,
}

const botJoinOffsetHours = 3

// Planner turns a base type and an origin instant into scheduled entries.
type Planner struct {
	loc    *time.Location
	hour   int // local wall-clock hour for business-day follow-ups
	minute int
}

// New creates a planner for the given reference timezone and local
// notification hour.
func New(loc *time.Location, hour int) *Planner {
	return &Planner{loc: loc, hour: hour, minute: 0}
}

// Plan expands a type into its ordered schedule entries.
//
// A fresh base detection yields the base entry plus its reminder (when one
// exists). A "2nd" type passed directly yields only its own entry, which
// is how a continuation is re-planned. bot_join_call_check is origin+3h
// absolute, snapped out of the local pre-business window.
func (p *Planner) Plan(base db.JobType, origin time.Time) ([]Entry, error) {
	if base == db.TypeBotJoinCallCheck {
		at := schedule.SnapEarlyMorning(schedule.AddHours(origin, botJoinOffsetHours), p.loc)
		return []Entry{{Type: db.TypeBotJoinCallCheck, ScheduledAt: at}}, nil
	}

	offset, ok := offsets[base]
	if !ok {
		return nil, fmt.Errorf("no schedule rule for type: %s", base)
	}

	entries := []Entry{{
		Type:        base,
		ScheduledAt: schedule.AddDays(origin, p.loc, offset, p.hour, p.minute, true),
	}}

	if reminder, ok := followUps[base]; ok {
		entries = append(entries, Entry{
			Type:        reminder,
			ScheduledAt: schedule.AddDays(origin, p.loc, offsets[reminder], p.hour, p.minute, true),
		})
	}

	return entries, nil
}
