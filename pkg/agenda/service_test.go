package agenda

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/agendify/pkg/auth"
	"github.com/harrisonrobin/agendify/pkg/digest"
	"github.com/harrisonrobin/agendify/pkg/model"
)

type fakeCreds struct {
	cred        model.Credential
	err         error
	invalidated []string
}

func (f *fakeCreds) Usable(ctx context.Context, userID string) (model.Credential, error) {
	return f.cred, f.err
}

func (f *fakeCreds) Invalidate(ctx context.Context, userID, accessToken string) error {
	f.invalidated = append(f.invalidated, accessToken)
	return nil
}

type fakeCalendar struct {
	events []model.CalendarEvent
	err    error
	window model.Window
}

func (f *fakeCalendar) List(ctx context.Context, cred model.Credential, w model.Window) ([]model.CalendarEvent, error) {
	f.window = w
	return f.events, f.err
}

type fakeTasks struct {
	tasks            []model.Task
	err              error
	window           model.Window
	includeCompleted bool
}

func (f *fakeTasks) List(ctx context.Context, userID string, w model.Window, includeCompleted bool) ([]model.Task, error) {
	f.window = w
	f.includeCompleted = includeCompleted
	return f.tasks, f.err
}

type fakeUsers map[string]model.User

func (f fakeUsers) User(ctx context.Context, id string) (model.User, error) {
	u, ok := f[id]
	if !ok {
		return model.User{}, errors.New("no such user")
	}
	return u, nil
}

type fakeMailer struct {
	to, subject string
	payload     digest.Payload
}

func (f *fakeMailer) Send(ctx context.Context, to, subject string, p digest.Payload) error {
	f.to, f.subject, f.payload = to, subject, p
	return nil
}

func validCreds() *fakeCreds {
	return &fakeCreds{cred: model.Credential{AccessToken: "tok", ExpiresAt: now.Add(time.Hour)}}
}

func exampleSources() (*fakeCalendar, *fakeTasks) {
	cal := &fakeCalendar{events: []model.CalendarEvent{
		{ID: "evt1", Title: "Standup", Start: model.EventTime{DateTime: "2024-01-01T10:30:00Z"}},
	}}
	tasks := &fakeTasks{tasks: []model.Task{
		{ID: "t1", Title: "Ship", DueAt: ptr(at(11, 45)), Priority: model.PriorityHigh},
		{ID: "t2", Title: "Past", DueAt: ptr(at(9, 0))},
		{ID: "t3", Title: "No deadline"},
	}}
	return cal, tasks
}

func TestGetUpcoming(t *testing.T) {
	cal, tasks := exampleSources()
	svc := NewService(validCreds(), cal, tasks, time.UTC)

	up, err := svc.GetUpcoming(context.Background(), "u1", now, 120)
	require.NoError(t, err)
	require.NoError(t, up.CalendarErr)
	require.Len(t, up.Items, 2)
	assert.Equal(t, "evt1", up.Items[0].ID)
	assert.Equal(t, 30, up.Items[0].MinutesUntil)
	assert.Equal(t, "t1", up.Items[1].ID)
	assert.Equal(t, 105, up.Items[1].MinutesUntil)

	want := model.Window{Start: now, End: now.Add(2 * time.Hour)}
	assert.Equal(t, want, cal.window)
	assert.Equal(t, want, tasks.window)
	assert.False(t, tasks.includeCompleted)
}

func TestGetUpcoming_UpstreamFailureKeepsTasks(t *testing.T) {
	cal, tasks := exampleSources()
	cal.err = &UpstreamError{Kind: Unavailable, Message: "503"}
	svc := NewService(validCreds(), cal, tasks, time.UTC)

	up, err := svc.GetUpcoming(context.Background(), "u1", now, 120)
	require.NoError(t, err)
	var uerr *UpstreamError
	require.ErrorAs(t, up.CalendarErr, &uerr)
	require.Len(t, up.Items, 1)
	assert.Equal(t, "t1", up.Items[0].ID)
}

func TestGetUpcoming_UnauthorizedInvalidatesCredential(t *testing.T) {
	cal, tasks := exampleSources()
	cal.err = &UpstreamError{Kind: Unauthorized, Message: "401"}
	creds := validCreds()
	svc := NewService(creds, cal, tasks, time.UTC)

	up, err := svc.GetUpcoming(context.Background(), "u1", now, 120)
	require.NoError(t, err)
	assert.Len(t, up.Items, 1)
	assert.Equal(t, []string{"tok"}, creds.invalidated)
}

func TestGetUpcoming_CredentialErrorKeepsTasks(t *testing.T) {
	cal, tasks := exampleSources()
	creds := &fakeCreds{err: &auth.CredentialError{Kind: auth.NoRefreshToken}}
	svc := NewService(creds, cal, tasks, time.UTC)

	up, err := svc.GetUpcoming(context.Background(), "u1", now, 120)
	require.NoError(t, err)
	var cerr *auth.CredentialError
	require.ErrorAs(t, up.CalendarErr, &cerr)
	require.Len(t, up.Items, 1)
	assert.Equal(t, "t1", up.Items[0].ID)
	assert.Empty(t, creds.invalidated)
}

func TestGetUpcoming_NormalizationErrorIsFatal(t *testing.T) {
	cal, tasks := exampleSources()
	cal.events = append(cal.events, model.CalendarEvent{ID: "bad", Start: model.EventTime{DateTime: "2024-01-01T10:40:00Z"}})
	svc := NewService(validCreds(), cal, tasks, time.UTC)

	_, err := svc.GetUpcoming(context.Background(), "u1", now, 120)
	var nerr *NormalizationError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, MissingTitle, nerr.Kind)
}

func TestGetUpcoming_Validation(t *testing.T) {
	cal, tasks := exampleSources()
	svc := NewService(validCreds(), cal, tasks, time.UTC)

	for _, tc := range []struct {
		user      string
		now       time.Time
		lookahead int
	}{
		{"", now, 120},
		{"u1", time.Time{}, 120},
		{"u1", now, 0},
		{"u1", now, -5},
	} {
		_, err := svc.GetUpcoming(context.Background(), tc.user, tc.now, tc.lookahead)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	}
}

func TestGetUpcoming_TaskStoreFailureIsFatal(t *testing.T) {
	cal, tasks := exampleSources()
	tasks.err = errors.New("disk I/O error")
	svc := NewService(validCreds(), cal, tasks, time.UTC)

	_, err := svc.GetUpcoming(context.Background(), "u1", now, 120)
	assert.Error(t, err)
}

func TestGetDailyDigest(t *testing.T) {
	cal := &fakeCalendar{events: []model.CalendarEvent{
		{ID: "h1", Title: "Holiday", Start: model.EventTime{Date: "2024-01-01"}},
		{ID: "h2", Title: "Offsite", Start: model.EventTime{Date: "2024-01-01"}},
	}}
	tasks := &fakeTasks{}
	svc := NewService(validCreds(), cal, tasks, time.UTC)

	d, err := svc.GetDailyDigest(context.Background(), "u1", at(15, 0))
	require.NoError(t, err)
	assert.True(t, tasks.includeCompleted)
	assert.Equal(t, model.DayWindow(now, time.UTC), tasks.window)

	require.Len(t, d.Payload.Events.Items, 2)
	for _, it := range d.Payload.Events.Items {
		assert.Equal(t, digest.AllDayLabel, it.Time)
	}
	assert.True(t, d.Payload.Tasks.Empty)
	assert.Empty(t, d.Payload.Tasks.Items)
}

func TestGetDailyDigest_DegradesOnUpstreamFailure(t *testing.T) {
	cal := &fakeCalendar{err: &UpstreamError{Kind: RateLimited, Message: "quota"}}
	tasks := &fakeTasks{tasks: []model.Task{{ID: "t", Title: "Call bank", DueAt: ptr(at(14, 0)), Completed: true}}}
	svc := NewService(validCreds(), cal, tasks, time.UTC)

	d, err := svc.GetDailyDigest(context.Background(), "u1", now)
	require.NoError(t, err)
	assert.Error(t, d.CalendarErr)
	assert.True(t, d.Payload.Events.Empty)
	require.Len(t, d.Payload.Tasks.Items, 1)
	assert.Equal(t, digest.MarkerDone, d.Payload.Tasks.Items[0].Marker)
}

func TestSendDailyDigest(t *testing.T) {
	cal, tasks := exampleSources()
	mailer := &fakeMailer{}
	users := fakeUsers{"u1": {ID: "u1", Email: "ada@example.com"}}
	svc := NewService(validCreds(), cal, tasks, time.UTC, WithUsers(users), WithMailer(mailer))

	require.NoError(t, svc.SendDailyDigest(context.Background(), "u1", now))
	assert.Equal(t, "ada@example.com", mailer.to)
	assert.Equal(t, "Your Daily Agenda - January 01, 2024", mailer.subject)
	assert.Len(t, mailer.payload.Tasks.Items, 3)

	assert.Error(t, svc.SendDailyDigest(context.Background(), "ghost", now))
}

func TestSendDailyDigest_NotConfigured(t *testing.T) {
	cal, tasks := exampleSources()
	svc := NewService(validCreds(), cal, tasks, time.UTC)
	assert.Error(t, svc.SendDailyDigest(context.Background(), "u1", now))
}
