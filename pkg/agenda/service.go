// Package agenda merges calendar events and tasks into the upcoming
// notification feed and the daily digest.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harrisonrobin/agendify/pkg/digest"
	"github.com/harrisonrobin/agendify/pkg/model"
)

// CalendarSource lists raw events overlapping a window. Failures are *UpstreamError.
type CalendarSource interface {
	List(ctx context.Context, cred model.Credential, w model.Window) ([]model.CalendarEvent, error)
}

// TaskSource lists a user's tasks due inside a window.
type TaskSource interface {
	List(ctx context.Context, userID string, w model.Window, includeCompleted bool) ([]model.Task, error)
}

// Credentials yields a usable calendar credential per user.
type Credentials interface {
	Usable(ctx context.Context, userID string) (model.Credential, error)
	Invalidate(ctx context.Context, userID, accessToken string) error
}

type UserDirectory interface {
	User(ctx context.Context, userID string) (model.User, error)
}

type Mailer interface {
	Send(ctx context.Context, to, subject string, p digest.Payload) error
}

// Upcoming is the notification feed. CalendarErr is set when the calendar half
// could not be fetched and Items holds tasks only.
type Upcoming struct {
	Items       []model.Candidate
	CalendarErr error
}

// Digest is a rendered day summary with the same degraded-mode signal as Upcoming.
type Digest struct {
	Payload     digest.Payload
	CalendarErr error
}

type Service struct {
	creds      Credentials
	calendar   CalendarSource
	tasks      TaskSource
	users      UserDirectory
	mailer     Mailer
	normalizer *Normalizer
	renderer   *digest.Renderer
	loc        *time.Location
}

type Option func(*Service)

func WithUsers(users UserDirectory) Option { return func(s *Service) { s.users = users } }
func WithMailer(m Mailer) Option           { return func(s *Service) { s.mailer = m } }

func NewService(creds Credentials, calendar CalendarSource, tasks TaskSource, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		creds:      creds,
		calendar:   calendar,
		tasks:      tasks,
		normalizer: NewNormalizer(loc),
		renderer:   digest.NewRenderer(loc),
		loc:        loc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetUpcoming returns the user's events and tasks starting within lookaheadMinutes of now.
func (s *Service) GetUpcoming(ctx context.Context, userID string, now time.Time, lookaheadMinutes int) (Upcoming, error) {
	if userID == "" {
		return Upcoming{}, &ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	if now.IsZero() {
		return Upcoming{}, &ValidationError{Field: "now", Message: "must be set"}
	}
	if lookaheadMinutes <= 0 {
		return Upcoming{}, &ValidationError{Field: "lookahead", Message: fmt.Sprintf("must be positive, got %d", lookaheadMinutes)}
	}
	window := model.Window{Start: now, End: now.Add(time.Duration(lookaheadMinutes) * time.Minute)}

	events, calErr := s.fetchCalendar(ctx, userID, window)
	calendar, err := s.normalizer.Events(events)
	if err != nil {
		return Upcoming{}, err
	}

	tasks, err := s.tasks.List(ctx, userID, window, false)
	if err != nil {
		return Upcoming{}, fmt.Errorf("list tasks: %w", err)
	}

	return Upcoming{
		Items:       Aggregate(calendar, s.normalizer.Tasks(tasks), window),
		CalendarErr: calErr,
	}, nil
}

// GetDailyDigest renders the user's events and tasks for the calendar day containing day.
func (s *Service) GetDailyDigest(ctx context.Context, userID string, day time.Time) (Digest, error) {
	if userID == "" {
		return Digest{}, &ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	if day.IsZero() {
		return Digest{}, &ValidationError{Field: "day", Message: "must be set"}
	}
	window := model.DayWindow(day, s.loc)

	events, calErr := s.fetchCalendar(ctx, userID, window)
	calendar, err := s.normalizer.Events(events)
	if err != nil {
		return Digest{}, err
	}

	tasks, err := s.tasks.List(ctx, userID, window, true)
	if err != nil {
		return Digest{}, fmt.Errorf("list tasks: %w", err)
	}

	return Digest{
		Payload:     s.renderer.Render(window.Start, calendar, s.normalizer.DigestTasks(tasks)),
		CalendarErr: calErr,
	}, nil
}

// SendDailyDigest renders the digest for day and mails it to the user.
func (s *Service) SendDailyDigest(ctx context.Context, userID string, day time.Time) error {
	if s.users == nil || s.mailer == nil {
		return errors.New("digest delivery is not configured")
	}
	user, err := s.users.User(ctx, userID)
	if err != nil {
		return fmt.Errorf("look up user %s: %w", userID, err)
	}
	if user.Email == "" {
		return &ValidationError{Field: "email", Message: "user has no email address"}
	}

	d, err := s.GetDailyDigest(ctx, userID, day)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, user.Email, d.Payload.Subject, d.Payload); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	slog.Info("daily digest sent", "user_id", userID, "day", d.Payload.Day,
		"events", len(d.Payload.Events.Items), "tasks", len(d.Payload.Tasks.Items))
	return nil
}

// fetchCalendar never fails the request: credential and upstream errors are
// returned alongside an empty event list so the caller can degrade to tasks only.
func (s *Service) fetchCalendar(ctx context.Context, userID string, window model.Window) ([]model.CalendarEvent, error) {
	cred, err := s.creds.Usable(ctx, userID)
	if err != nil {
		slog.Warn("calendar skipped, no usable credential", "user_id", userID, "error", err)
		return nil, err
	}

	events, err := s.calendar.List(ctx, cred, window)
	if err == nil {
		return events, nil
	}

	var uerr *UpstreamError
	if errors.As(err, &uerr) && uerr.Kind == Unauthorized {
		if ierr := s.creds.Invalidate(ctx, userID, cred.AccessToken); ierr != nil {
			slog.Error("could not invalidate credential", "user_id", userID, "error", ierr)
		}
	}
	slog.Warn("calendar fetch failed, returning tasks only", "user_id", userID, "error", err)
	return nil, err
}
