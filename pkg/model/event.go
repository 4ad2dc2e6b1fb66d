package model

// EventTime mirrors the calendar wire shape: timed events carry an RFC 3339
// DateTime, all-day events carry only a Date (YYYY-MM-DD).
type EventTime struct {
	DateTime string
	Date     string
}

// IsDate reports whether only a calendar date is set.
func (t EventTime) IsDate() bool {
	return t.DateTime == "" && t.Date != ""
}

// CalendarEvent is a snapshot of one upstream event as returned by a calendar source.
type CalendarEvent struct {
	ID          string
	Title       string
	Description string
	Location    string
	Start       EventTime
	End         EventTime
	Attendees   []string
}
