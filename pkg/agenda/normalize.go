package agenda

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/agendify/pkg/model"
)

const dateLayout = "2006-01-02"

// Normalizer turns calendar events and tasks into candidates.
// All-day dates are anchored at midnight in the reference location.
type Normalizer struct {
	loc *time.Location
}

func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// Event normalizes one calendar event.
func (n *Normalizer) Event(ev model.CalendarEvent) (model.Candidate, error) {
	if strings.TrimSpace(ev.Title) == "" {
		return model.Candidate{}, &NormalizationError{Kind: MissingTitle, ID: ev.ID}
	}

	c := model.Candidate{
		Kind:        model.KindCalendarEvent,
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
	}

	switch {
	case ev.Start.DateTime != "":
		t, err := time.Parse(time.RFC3339, ev.Start.DateTime)
		if err != nil {
			return model.Candidate{}, &NormalizationError{Kind: InvalidTime, ID: ev.ID, Err: err}
		}
		c.EffectiveTime = t
	case ev.Start.Date != "":
		d, err := time.ParseInLocation(dateLayout, ev.Start.Date, n.loc)
		if err != nil {
			return model.Candidate{}, &NormalizationError{Kind: InvalidTime, ID: ev.ID, Err: err}
		}
		c.EffectiveTime = d
		c.AllDay = true
	default:
		return model.Candidate{}, &NormalizationError{Kind: InvalidTime, ID: ev.ID, Err: errors.New("event has no start")}
	}
	return c, nil
}

// Events normalizes a batch, failing on the first malformed event.
func (n *Normalizer) Events(events []model.CalendarEvent) ([]model.Candidate, error) {
	out := make([]model.Candidate, 0, len(events))
	for _, ev := range events {
		c, err := n.Event(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Task normalizes one task. Tasks without a due time return ErrNotApplicable.
func (n *Normalizer) Task(t model.Task) (model.Candidate, error) {
	if !t.HasDue() {
		return model.Candidate{}, fmt.Errorf("task %s: %w", t.ID, ErrNotApplicable)
	}
	c := taskCandidate(t)
	c.EffectiveTime = *t.DueAt
	return c, nil
}

// Tasks normalizes a batch, leaving out tasks without a due time.
func (n *Normalizer) Tasks(tasks []model.Task) []model.Candidate {
	out := make([]model.Candidate, 0, len(tasks))
	for _, t := range tasks {
		c, err := n.Task(t)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

// DigestTasks normalizes tasks for a day digest, where undated tasks are kept
// and flagged instead of dropped. The sqlite task source only returns tasks
// due inside the day, so undated ones arrive here only from other sources.
func (n *Normalizer) DigestTasks(tasks []model.Task) []model.Candidate {
	out := make([]model.Candidate, 0, len(tasks))
	for _, t := range tasks {
		c, err := n.Task(t)
		if errors.Is(err, ErrNotApplicable) {
			c = taskCandidate(t)
			c.Undated = true
		}
		out = append(out, c)
	}
	return out
}

func taskCandidate(t model.Task) model.Candidate {
	priority := t.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	return model.Candidate{
		Kind:        model.KindTask,
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    priority,
		Completed:   t.Completed,
	}
}
