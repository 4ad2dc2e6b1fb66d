// Package digest renders a day's events and tasks into a structured summary
// that mail or HTTP adapters can present however they like.
package digest

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/harrisonrobin/agendify/pkg/model"
)

const (
	AllDayLabel    = "All Day"
	NoDueTimeLabel = "No due time"

	clockLayout = "03:04 PM"
)

type Marker string

const (
	MarkerNone    Marker = ""
	MarkerDone    Marker = "done"
	MarkerPending Marker = "pending"
)

type Item struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Time        string `json:"time"`
	AllDay      bool   `json:"all_day,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	// Priority is only filled when it differs from medium.
	Priority string `json:"priority,omitempty"`
	Marker   Marker `json:"marker,omitempty"`
}

type Section struct {
	Title     string `json:"title"`
	Items     []Item `json:"items"`
	Empty     bool   `json:"empty"`
	EmptyText string `json:"empty_text,omitempty"`
}

type Payload struct {
	Day     string  `json:"day"`
	Subject string  `json:"subject"`
	Heading string  `json:"heading"`
	Events  Section `json:"events"`
	Tasks   Section `json:"tasks"`
}

// Renderer formats times in the user's location.
type Renderer struct {
	loc *time.Location
}

func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{loc: loc}
}

// Render builds the digest for day. It never fails; a section without items
// is flagged Empty and carries its placeholder text.
func (r *Renderer) Render(day time.Time, events, tasks []model.Candidate) Payload {
	d := day.In(r.loc)
	p := Payload{
		Day:     d.Format("2006-01-02"),
		Subject: "Your Daily Agenda - " + d.Format("January 02, 2006"),
		Heading: "Your Daily Agenda for " + d.Format("Monday, January 02, 2006"),
		Events:  Section{Title: "Calendar Events", Items: []Item{}},
		Tasks:   Section{Title: "Tasks", Items: []Item{}},
	}

	for _, c := range sortByTime(events) {
		p.Events.Items = append(p.Events.Items, Item{
			ID:          c.ID,
			Title:       c.Title,
			Time:        r.displayTime(c),
			AllDay:      c.AllDay,
			Location:    c.Location,
			Description: c.Description,
		})
	}
	for _, c := range sortByTime(tasks) {
		item := Item{
			ID:          c.ID,
			Title:       c.Title,
			Time:        r.displayTime(c),
			Description: c.Description,
			Marker:      MarkerPending,
		}
		if c.Completed {
			item.Marker = MarkerDone
		}
		if c.Priority != "" && c.Priority != model.PriorityMedium {
			item.Priority = titleCase(string(c.Priority))
		}
		p.Tasks.Items = append(p.Tasks.Items, item)
	}

	if len(p.Events.Items) == 0 {
		p.Events.Empty = true
		p.Events.EmptyText = "No events scheduled for today."
	}
	if len(p.Tasks.Items) == 0 {
		p.Tasks.Empty = true
		p.Tasks.EmptyText = "No tasks due today."
	}
	return p
}

func (r *Renderer) displayTime(c model.Candidate) string {
	switch {
	case c.Undated:
		return NoDueTimeLabel
	case c.AllDay:
		return AllDayLabel
	}
	return c.EffectiveTime.In(r.loc).Format(clockLayout)
}

// sortByTime orders ascending by effective time with undated entries last.
func sortByTime(in []model.Candidate) []model.Candidate {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b model.Candidate) int {
		if a.Undated != b.Undated {
			if a.Undated {
				return 1
			}
			return -1
		}
		return cmp.Or(a.EffectiveTime.Compare(b.EffectiveTime), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
