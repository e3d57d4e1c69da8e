package appointment

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout    = "2006-01-02"
	minutesPerDay = 24 * 60
	noClock       = ClockTime(-1)
)

// ClockTime is a wall-clock time of day with minute precision, stored as
// minutes since midnight.
type ClockTime int

// Clock builds a ClockTime from hour and minute.
func Clock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClock parses "HH:MM". An empty string is reported as a missing time.
func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return noClock, &InvalidSlotError{Reason: "start time is required"}
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return noClock, &InvalidSlotError{Reason: fmt.Sprintf("invalid time %q", s)}
	}
	return Clock(t.Hour(), t.Minute()), nil
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) valid() bool { return c >= 0 && c < minutesPerDay }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// ParseDate parses a calendar date in YYYY-MM-DD form.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &InvalidSlotError{Reason: "date is required"}
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &InvalidSlotError{Reason: fmt.Sprintf("invalid date %q", s)}
	}
	return d, nil
}

// DateOf strips the clock from t, keeping the calendar day as seen in t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TimeSlot is an immutable booking window on a single calendar day.
// The window is half-open: [start, end).
type TimeSlot struct {
	date     time.Time
	start    ClockTime
	end      ClockTime
	duration int
}

// NewTimeSlot validates and builds a slot. Slots may not run past midnight.
func NewTimeSlot(date time.Time, start ClockTime, durationMinutes int) (TimeSlot, error) {
	if date.IsZero() {
		return TimeSlot{}, &InvalidSlotError{Reason: "date is required"}
	}
	if !start.valid() {
		return TimeSlot{}, &InvalidSlotError{Reason: "start time is required"}
	}
	if durationMinutes <= 0 {
		return TimeSlot{}, &InvalidSlotError{Reason: fmt.Sprintf("duration must be positive, got %d", durationMinutes)}
	}
	end := start + ClockTime(durationMinutes)
	if int(end) > minutesPerDay {
		return TimeSlot{}, &InvalidSlotError{Reason: "slot must end on the day it starts"}
	}
	return TimeSlot{
		date:     DateOf(date),
		start:    start,
		end:      end,
		duration: durationMinutes,
	}, nil
}

func (s TimeSlot) Date() time.Time         { return s.date }
func (s TimeSlot) Start() ClockTime        { return s.start }
func (s TimeSlot) DurationMinutes() int    { return s.duration }
func (s TimeSlot) Duration() time.Duration { return time.Duration(s.duration) * time.Minute }
func (s TimeSlot) IsZero() bool            { return s.date.IsZero() }

// End is the first minute not covered by the slot. A slot ending at midnight
// reports 24:00.
func (s TimeSlot) End() ClockTime { return s.end }

// Overlaps reports whether both slots share at least one minute. Slots on
// different days never overlap.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	if !s.date.Equal(other.date) {
		return false
	}
	return s.start < other.end && other.start < s.end
}

// Contains reports whether t falls inside [start, end).
func (s TimeSlot) Contains(t ClockTime) bool {
	return s.start <= t && t < s.end
}

// StartAt places the slot start on the clock of loc.
func (s TimeSlot) StartAt(loc *time.Location) time.Time {
	y, m, d := s.date.Date()
	return time.Date(y, m, d, s.start.Hour(), s.start.Minute(), 0, 0, loc)
}

func (s TimeSlot) EndAt(loc *time.Location) time.Time {
	return s.StartAt(loc).Add(s.Duration())
}

// IsPast is true when the slot start is strictly before now, with the slot
// interpreted in now's location.
func (s TimeSlot) IsPast(now time.Time) bool {
	return s.StartAt(now.Location()).Before(now)
}

func (s TimeSlot) IsToday(now time.Time) bool {
	return s.date.Equal(DateOf(now))
}

func (s TimeSlot) String() string {
	return fmt.Sprintf("%s %s-%s", s.date.Format(dateLayout), s.start, s.end)
}
