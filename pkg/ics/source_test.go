package ics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/agendify/pkg/agenda"
	"github.com/harrisonrobin/agendify/pkg/model"
)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//agendify//test//EN
BEGIN:VEVENT
UID:standup
SUMMARY:Standup
DTSTART:20240101T090000Z
DTEND:20240101T091500Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20240103T090000Z
END:VEVENT
BEGIN:VEVENT
UID:standup
RECURRENCE-ID:20240102T090000Z
SUMMARY:Standup (moved)
DTSTART:20240102T100000Z
DTEND:20240102T101500Z
END:VEVENT
BEGIN:VEVENT
UID:holiday
SUMMARY:Holiday
DTSTART;VALUE=DATE:20240102
DTEND;VALUE=DATE:20240103
END:VEVENT
BEGIN:VEVENT
UID:review
SUMMARY:Review
LOCATION:Room 4
DTSTART:20240102T150000Z
DTEND:20240102T160000Z
ATTENDEE:mailto:ada@example.com
END:VEVENT
BEGIN:VEVENT
SUMMARY:No uid
DTSTART:20240102T120000Z
END:VEVENT
END:VCALENDAR
`

func crlf(s string) string { return strings.ReplaceAll(s, "\n", "\r\n") }

func day(y int, m time.Month, d int) model.Window {
	return model.DayWindow(time.Date(y, m, d, 12, 0, 0, 0, time.UTC), time.UTC)
}

func serve(t *testing.T, h http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewSource(srv.URL+"/feed.ics", time.UTC)
}

func ids(events []model.CalendarEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestSource_ExpandsDay(t *testing.T) {
	src := serve(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, crlf(feed))
	})

	events, err := src.List(context.Background(), model.Credential{}, day(2024, 1, 2))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"standup_20240102T090000Z", "holiday", "review"}, ids(events))

	for _, e := range events {
		switch e.ID {
		case "standup_20240102T090000Z":
			assert.Equal(t, "Standup (moved)", e.Title)
			assert.Equal(t, "2024-01-02T10:00:00Z", e.Start.DateTime)
		case "holiday":
			assert.True(t, e.Start.IsDate())
			assert.Equal(t, "2024-01-02", e.Start.Date)
		case "review":
			assert.Equal(t, "Room 4", e.Location)
			assert.Equal(t, []string{"ada@example.com"}, e.Attendees)
		}
	}
}

func TestSource_ExdateAndCount(t *testing.T) {
	src := serve(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, crlf(feed))
	})

	events, err := src.List(context.Background(), model.Credential{}, day(2024, 1, 3))
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = src.List(context.Background(), model.Credential{}, day(2024, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, []string{"standup_20240105T090000Z"}, ids(events))

	events, err = src.List(context.Background(), model.Credential{}, day(2024, 1, 6))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSource_UpcomingWindow(t *testing.T) {
	src := serve(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, crlf(feed))
	})
	start := time.Date(2024, 1, 4, 8, 0, 0, 0, time.UTC)

	events, err := src.List(context.Background(), model.Credential{}, model.Window{Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []string{"standup_20240104T090000Z"}, ids(events))
	assert.Equal(t, "2024-01-04T09:15:00Z", events[0].End.DateTime)
}

func TestSource_ConditionalFetchAndFallback(t *testing.T) {
	var calls atomic.Int32
	src := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.Header().Set("ETag", `"v1"`)
			fmt.Fprint(w, crlf(feed))
		case 2:
			assert.Equal(t, `"v1"`, r.Header.Get("If-None-Match"))
			w.WriteHeader(http.StatusNotModified)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})

	for range 3 {
		events, err := src.List(context.Background(), model.Credential{}, day(2024, 1, 2))
		require.NoError(t, err)
		assert.Len(t, events, 3)
	}
}

func TestSource_StatusMapping(t *testing.T) {
	for _, tc := range []struct {
		status int
		want   agenda.UpstreamErrorKind
	}{
		{http.StatusUnauthorized, agenda.Unauthorized},
		{http.StatusForbidden, agenda.Unauthorized},
		{http.StatusTooManyRequests, agenda.RateLimited},
		{http.StatusInternalServerError, agenda.Unavailable},
		{http.StatusNotFound, agenda.Unavailable},
	} {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			src := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			_, err := src.List(context.Background(), model.Credential{}, day(2024, 1, 2))
			var uerr *agenda.UpstreamError
			require.ErrorAs(t, err, &uerr)
			assert.Equal(t, tc.want, uerr.Kind)
		})
	}
}

func TestSource_Unreachable(t *testing.T) {
	src := NewSource("http://127.0.0.1:1/feed.ics", time.UTC)
	_, err := src.List(context.Background(), model.Credential{}, day(2024, 1, 2))
	var uerr *agenda.UpstreamError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, agenda.Unavailable, uerr.Kind)
}

func TestNewSource_Webcal(t *testing.T) {
	src := NewSource("webcal://example.com/cal.ics", nil)
	assert.Equal(t, "https://example.com/cal.ics", src.url)
	assert.Equal(t, "https://example.com/(redacted)", redact("https://example.com/private/abc.ics?token=x"))
}

func TestSource_FeedSizeLimit(t *testing.T) {
	body := crlf(feed)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	small := NewSource(srv.URL+"/feed.ics", time.UTC, WithMaxFeedSize(int64(len(body)-1)))
	_, err := small.List(context.Background(), model.Credential{}, day(2024, 1, 2))
	var uerr *agenda.UpstreamError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, agenda.Unavailable, uerr.Kind)
	assert.Contains(t, uerr.Message, "larger than")

	exact := NewSource(srv.URL+"/feed.ics", time.UTC, WithMaxFeedSize(int64(len(body))))
	_, err = exact.List(context.Background(), model.Credential{}, day(2024, 1, 2))
	require.NoError(t, err)
}
