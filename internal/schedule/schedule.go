// Package schedule holds the pure wall-clock arithmetic behind follow-up
// scheduling. Every function is deterministic and side-effect-free, and is
// parameterized by a named timezone: a fixed offset would silently drift
// for any zone with daylight-saving transitions.
package schedule

import "time"

// AddDays returns the UTC instant that is offsetDays after the origin's
// local calendar date, at hour:minute local time in loc.
//
// With businessDays set, the walk starts from the origin's local date at
// local midnight and steps forward one calendar day at a time, counting
// only Monday through Friday, until the counter reaches offsetDays. No
// holiday calendar is modeled. Without it, the offset is plain calendar
// days.
func AddDays(origin time.Time, loc *time.Location, offsetDays, hour, minute int, businessDays bool) time.Time {
	local := origin.In(loc)
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	if businessDays {
		counted := 0
		for counted < offsetDays {
			date = date.AddDate(0, 0, 1)
			if isBusinessDay(date.Weekday()) {
				counted++
			}
		}
	} else {
		date = date.AddDate(0, 0, offsetDays)
	}

	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc).UTC()
}

// AddHours shifts the origin by an absolute duration in hours, independent
// of calendars.
func AddHours(origin time.Time, hours int) time.Time {
	return origin.Add(time.Duration(hours) * time.Hour).UTC()
}

// SnapEarlyMorning moves an instant that lands in the local pre-business
// window to 11:00 local time on the same local calendar date. The window
// is hour-of-day 3 through 11 inclusive; anything outside it is returned
// unchanged.
func SnapEarlyMorning(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	if local.Hour() < 3 || local.Hour() > 11 {
		return t.UTC()
	}
	return time.Date(local.Year(), local.Month(), local.Day(), 11, 0, 0, 0, loc).UTC()
}

func isBusinessDay(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}
