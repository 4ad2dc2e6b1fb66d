package model

import "time"

type SourceKind string

const (
	KindCalendarEvent SourceKind = "calendar_event"
	KindTask          SourceKind = "task"
)

// Candidate is the source-agnostic form of a calendar event or task.
// Candidates are only built by the agenda normalizer and are never persisted.
type Candidate struct {
	Kind          SourceKind `json:"type"`
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	EffectiveTime time.Time  `json:"start_time"`
	AllDay        bool       `json:"is_all_day"`
	Priority      Priority   `json:"priority,omitempty"` // tasks only
	Location      string     `json:"location,omitempty"` // calendar events only
	Completed     bool       `json:"completed,omitempty"`
	MinutesUntil  int        `json:"minutes_until"`

	// Undated marks a task without a deadline. Such candidates only exist in
	// day digests; windowed views never contain them.
	Undated bool `json:"-"`
}

// Window is the closed interval [Start, End] both sources are queried with.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// DayWindow covers one calendar day in loc: from midnight up to the last
// nanosecond before the next midnight.
func DayWindow(day time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	d := day.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	next := time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, loc)
	return Window{Start: start, End: next.Add(-time.Nanosecond)}
}
