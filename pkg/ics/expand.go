package ics

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/harrisonrobin/agendify/pkg/model"
)

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405"
	utcLayout      = "20060102T150405Z"

	maxOccurrences = 1000
)

// vevent is a VEVENT reduced to what expansion needs.
type vevent struct {
	uid         string
	summary     string
	description string
	location    string
	start, end  time.Time
	allDay      bool
	rrule       string
	exdates     []time.Time
	recurrence  *time.Time
	attendees   []string
}

func parseEvent(ve *ical.VEvent, loc *time.Location) (vevent, error) {
	var ev vevent
	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.uid = uid.Value
	ev.summary = propValue(ve, ical.ComponentPropertySummary)
	ev.description = propValue(ve, ical.ComponentPropertyDescription)
	ev.location = propValue(ve, ical.ComponentPropertyLocation)
	ev.rrule = propValue(ve, ical.ComponentPropertyRrule)

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return ev, fmt.Errorf("event %s: missing DTSTART", ev.uid)
	}
	ev.allDay = isDate(dtstart)

	var err error
	if ev.allDay {
		if ev.start, err = time.ParseInLocation(dateLayout, dtstart.Value, loc); err != nil {
			return ev, fmt.Errorf("event %s: DTSTART: %w", ev.uid, err)
		}
		ev.end = ev.start.AddDate(0, 0, 1)
		if dtend := ve.GetProperty(ical.ComponentPropertyDtEnd); dtend != nil {
			if end, err := time.ParseInLocation(dateLayout, dtend.Value, loc); err == nil && end.After(ev.start) {
				ev.end = end
			}
		}
	} else {
		if ev.start, err = ve.GetStartAt(); err != nil {
			return ev, fmt.Errorf("event %s: DTSTART: %w", ev.uid, err)
		}
		ev.end = ev.start
		if end, err := ve.GetEndAt(); err == nil && end.After(ev.start) {
			ev.end = end
		}
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part), tzid(p, loc)); err == nil {
				ev.exdates = append(ev.exdates, t)
			}
		}
	}
	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		if t, err := parseICSTime(rid.Value, tzid(rid, loc)); err == nil {
			ev.recurrence = &t
		}
	}
	for _, a := range ve.Attendees() {
		if email := a.Email(); email != "" {
			ev.attendees = append(ev.attendees, email)
		}
	}
	return ev, nil
}

// expand turns parsed entries into concrete instances overlapping w.
// Instances replaced by a RECURRENCE-ID override are emitted once, from the override.
func expand(events []vevent, w model.Window) []model.CalendarEvent {
	overridden := make(map[string]bool)
	for _, ev := range events {
		if ev.recurrence != nil {
			overridden[instanceID(ev.uid, *ev.recurrence)] = true
		}
	}

	var out []model.CalendarEvent
	for _, ev := range events {
		switch {
		case ev.recurrence != nil:
			if overlaps(ev.start, ev.end, w) {
				out = append(out, toEvent(ev, ev.start, ev.end, instanceID(ev.uid, *ev.recurrence)))
			}
		case ev.rrule == "":
			if overlaps(ev.start, ev.end, w) {
				out = append(out, toEvent(ev, ev.start, ev.end, ev.uid))
			}
		default:
			out = append(out, expandRecurring(ev, w, overridden)...)
		}
	}
	return out
}

func expandRecurring(ev vevent, w model.Window, overridden map[string]bool) []model.CalendarEvent {
	rule, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		slog.Warn("skipping unparseable recurrence", "uid", ev.uid, "rrule", ev.rrule, "error", err)
		return nil
	}
	rule.DTStart(ev.start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.exdates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	dur := ev.end.Sub(ev.start)
	starts := set.Between(w.Start.Add(-dur).In(ev.start.Location()), w.End.In(ev.start.Location()), true)
	if len(starts) > maxOccurrences {
		slog.Warn("recurrence truncated", "uid", ev.uid, "cap", maxOccurrences)
		starts = starts[:maxOccurrences]
	}

	var out []model.CalendarEvent
	for _, start := range starts {
		id := instanceID(ev.uid, start)
		if overridden[id] {
			continue
		}
		end := start.Add(dur)
		if overlaps(start, end, w) {
			out = append(out, toEvent(ev, start, end, id))
		}
	}
	return out
}

func toEvent(ev vevent, start, end time.Time, id string) model.CalendarEvent {
	out := model.CalendarEvent{
		ID:          id,
		Title:       ev.summary,
		Description: ev.description,
		Location:    ev.location,
		Attendees:   ev.attendees,
	}
	if ev.allDay {
		out.Start = model.EventTime{Date: start.Format(time.DateOnly)}
		out.End = model.EventTime{Date: end.Format(time.DateOnly)}
	} else {
		out.Start = model.EventTime{DateTime: start.Format(time.RFC3339)}
		out.End = model.EventTime{DateTime: end.Format(time.RFC3339)}
	}
	return out
}

func instanceID(uid string, start time.Time) string {
	return uid + "_" + start.UTC().Format(utcLayout)
}

// overlaps reports whether [start, end) touches the closed window. A
// zero-length event counts when its start falls inside.
func overlaps(start, end time.Time, w model.Window) bool {
	if start.After(w.End) {
		return false
	}
	if end.After(start) {
		return end.After(w.Start)
	}
	return !start.Before(w.Start)
}

func isDate(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func tzid(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	return fallback
}

func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse(utcLayout, v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation(dateTimeLayout, v, loc)
	}
	return time.ParseInLocation(dateLayout, v, loc)
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}
