package schedule

import (
	"testing"
	"time"
)

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	return loc
}

func TestAddDays_BusinessDays(t *testing.T) {
	loc := tokyo(t)

	tests := []struct {
		name   string
		origin time.Time
		offset int
		want   time.Time
	}{
		{
			// Thursday 2025-01-09 19:00 JST; +3 business days skips the
			// weekend and lands on Tuesday 2025-01-14 at 15:00 JST.
			name:   "weekend skipped",
			origin: time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC),
			offset: 3,
			want:   time.Date(2025, 1, 14, 6, 0, 0, 0, time.UTC),
		},
		{
			// Same origin, +6 business days: Friday 2025-01-17.
			name:   "second reminder offset",
			origin: time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC),
			offset: 6,
			want:   time.Date(2025, 1, 17, 6, 0, 0, 0, time.UTC),
		},
		{
			// Friday origin, +1 business day is Monday.
			name:   "friday to monday",
			origin: time.Date(2025, 1, 10, 2, 0, 0, 0, time.UTC),
			offset: 1,
			want:   time.Date(2025, 1, 13, 6, 0, 0, 0, time.UTC),
		},
		{
			// Saturday origin: the walk starts from the Saturday local
			// date, so +1 business day is the following Monday.
			name:   "weekend origin",
			origin: time.Date(2025, 1, 11, 2, 0, 0, 0, time.UTC),
			offset: 1,
			want:   time.Date(2025, 1, 13, 6, 0, 0, 0, time.UTC),
		},
		{
			// An origin late in the UTC day is already the next local
			// date in Tokyo; the walk must start from the local date.
			name:   "origin crosses local midnight",
			origin: time.Date(2025, 1, 9, 16, 30, 0, 0, time.UTC), // Fri 01:30 JST
			offset: 1,
			want:   time.Date(2025, 1, 13, 6, 0, 0, 0, time.UTC), // Mon 15:00 JST
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddDays(tt.origin, loc, tt.offset, 15, 0, true)
			if !got.Equal(tt.want) {
				t.Errorf("AddDays() = %v, want %v", got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("AddDays() returned non-UTC instant: %v", got.Location())
			}
		})
	}
}

func TestAddDays_CalendarDays(t *testing.T) {
	loc := tokyo(t)

	// Thursday +3 calendar days is Sunday, weekend or not.
	origin := time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC)
	got := AddDays(origin, loc, 3, 15, 0, false)
	want := time.Date(2025, 1, 12, 6, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("AddDays() = %v, want %v", got, want)
	}
}

func TestAddHours(t *testing.T) {
	origin := time.Date(2025, 3, 1, 22, 15, 0, 0, time.UTC)
	got := AddHours(origin, 3)
	want := time.Date(2025, 3, 2, 1, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("AddHours() = %v, want %v", got, want)
	}
}

func TestSnapEarlyMorning(t *testing.T) {
	loc := tokyo(t)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			// 00:30 local is before the window, unchanged.
			name: "before window",
			in:   time.Date(2025, 1, 9, 15, 30, 0, 0, time.UTC), // 00:30 JST next day
			want: time.Date(2025, 1, 9, 15, 30, 0, 0, time.UTC),
		},
		{
			// 04:00 local snaps to 11:00 local the same date.
			name: "inside window",
			in:   time.Date(2025, 1, 9, 19, 0, 0, 0, time.UTC), // 04:00 JST Jan 10
			want: time.Date(2025, 1, 10, 2, 0, 0, 0, time.UTC), // 11:00 JST Jan 10
		},
		{
			// The 11 o'clock hour itself is inside the window and snaps
			// back to the top of the hour.
			name: "eleven forty",
			in:   time.Date(2025, 1, 10, 2, 40, 0, 0, time.UTC), // 11:40 JST
			want: time.Date(2025, 1, 10, 2, 0, 0, 0, time.UTC),  // 11:00 JST
		},
		{
			// 20:00 local is after the window, unchanged.
			name: "after window",
			in:   time.Date(2025, 1, 9, 11, 0, 0, 0, time.UTC), // 20:00 JST
			want: time.Date(2025, 1, 9, 11, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SnapEarlyMorning(tt.in, loc)
			if !got.Equal(tt.want) {
				t.Errorf("SnapEarlyMorning() = %v, want %v", got, tt.want)
			}
		})
	}
}
