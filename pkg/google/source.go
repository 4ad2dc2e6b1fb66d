// Package google reads events from a Google Calendar on behalf of a user.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/agendify/pkg/agenda"
	"github.com/harrisonrobin/agendify/pkg/model"
)

// PrimaryCalendar is the alias Google accepts for a user's main calendar.
const PrimaryCalendar = "primary"

var _ agenda.CalendarSource = (*Source)(nil)

// Source lists events from one calendar, named either by ID or by its
// display name as shown in the calendar list.
type Source struct {
	calendar string
	opts     []option.ClientOption

	mu  sync.Mutex
	ids map[string]string
}

// NewSource returns a Source for calendar. Extra options are passed to
// calendar.NewService after the per-user HTTP client.
func NewSource(calendarName string, opts ...option.ClientOption) *Source {
	if calendarName == "" {
		calendarName = PrimaryCalendar
	}
	return &Source{calendar: calendarName, opts: opts, ids: make(map[string]string)}
}

// List returns single (expanded) events overlapping w, ordered by start.
func (s *Source) List(ctx context.Context, cred model.Credential, w model.Window) ([]model.CalendarEvent, error) {
	srv, err := s.service(ctx, cred)
	if err != nil {
		return nil, &agenda.UpstreamError{Kind: agenda.Unavailable, Message: "create calendar client", Err: err}
	}

	calendarID, err := s.resolve(ctx, srv)
	if err != nil {
		return nil, err
	}

	// timeMax excludes events starting exactly at the bound, so ask for one
	// more second and leave the closed end of w to the aggregator.
	var events []model.CalendarEvent
	call := srv.Events.List(calendarID).
		TimeMin(w.Start.Format(time.RFC3339)).
		TimeMax(w.End.Truncate(time.Second).Add(time.Second).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)
	err = call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			events = append(events, toEvent(item))
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return events, nil
}

func (s *Source) service(ctx context.Context, cred model.Credential) (*calendar.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cred.AccessToken,
		TokenType:   "Bearer",
		Expiry:      cred.ExpiresAt,
	})
	opts := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}, s.opts...)
	return calendar.NewService(ctx, opts...)
}

// resolve maps a calendar display name onto its ID. IDs and the primary
// alias pass through untouched.
func (s *Source) resolve(ctx context.Context, srv *calendar.Service) (string, error) {
	if s.calendar == PrimaryCalendar || strings.Contains(s.calendar, "@") {
		return s.calendar, nil
	}

	s.mu.Lock()
	id, ok := s.ids[s.calendar]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	calendars, err := listCalendars(ctx, srv)
	if err != nil {
		return "", err
	}
	for _, c := range calendars {
		if c.Summary == s.calendar {
			id = c.ID
			break
		}
	}
	if id == "" {
		return "", &agenda.UpstreamError{Kind: agenda.Unavailable, Message: fmt.Sprintf("calendar %q not found", s.calendar)}
	}

	s.mu.Lock()
	s.ids[s.calendar] = id
	s.mu.Unlock()
	return id, nil
}

// Calendar is one entry of the user's calendar list. Summary is the name
// accepted in place of an ID.
type Calendar struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Primary     bool   `json:"primary"`
	AccessRole  string `json:"access_role"`
	Selected    bool   `json:"selected"`
}

// Calendars lists every calendar the credential can see.
func (s *Source) Calendars(ctx context.Context, cred model.Credential) ([]Calendar, error) {
	srv, err := s.service(ctx, cred)
	if err != nil {
		return nil, &agenda.UpstreamError{Kind: agenda.Unavailable, Message: "create calendar client", Err: err}
	}
	return listCalendars(ctx, srv)
}

func listCalendars(ctx context.Context, srv *calendar.Service) ([]Calendar, error) {
	var out []Calendar
	err := srv.CalendarList.List().Pages(ctx, func(list *calendar.CalendarList) error {
		for _, item := range list.Items {
			out = append(out, Calendar{
				ID:          item.Id,
				Summary:     item.Summary,
				Description: item.Description,
				Primary:     item.Primary,
				AccessRole:  item.AccessRole,
				Selected:    item.Selected,
			})
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func toEvent(item *calendar.Event) model.CalendarEvent {
	ev := model.CalendarEvent{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
	}
	if item.Start != nil {
		ev.Start = model.EventTime{DateTime: item.Start.DateTime, Date: item.Start.Date}
	}
	if item.End != nil {
		ev.End = model.EventTime{DateTime: item.End.DateTime, Date: item.End.Date}
	}
	for _, a := range item.Attendees {
		if a.Email != "" {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
	}
	return ev
}

// classify turns a client error into an *agenda.UpstreamError.
func classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &agenda.UpstreamError{Kind: agenda.Unavailable, Message: "calendar request failed", Err: err}
	}

	kind := agenda.Unavailable
	switch gerr.Code {
	case http.StatusUnauthorized:
		kind = agenda.Unauthorized
	case http.StatusTooManyRequests:
		kind = agenda.RateLimited
	case http.StatusForbidden:
		kind = agenda.Unauthorized
		for _, item := range gerr.Errors {
			switch item.Reason {
			case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
				kind = agenda.RateLimited
			}
		}
	}
	msg := gerr.Message
	if msg == "" {
		msg = http.StatusText(gerr.Code)
	}
	return &agenda.UpstreamError{Kind: kind, Message: msg, Err: err}
}
