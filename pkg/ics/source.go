// Package ics reads events from an iCalendar feed published over HTTP.
package ics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/harrisonrobin/agendify/pkg/agenda"
	"github.com/harrisonrobin/agendify/pkg/model"
)

const (
	fetchTimeout = 15 * time.Second
	maxFeedBytes = 32 << 20
)

var _ agenda.CalendarSource = (*Source)(nil)

// Source fetches and expands one feed. The feed URL carries its own
// authorization, so the per-user credential is not used.
type Source struct {
	url    string
	client *http.Client
	loc    *time.Location
	limit  int64

	mu   sync.Mutex
	etag string
	body []byte
}

type Option func(*Source)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option { return func(s *Source) { s.client = c } }

// WithMaxFeedSize caps the number of bytes read from one feed response.
func WithMaxFeedSize(n int64) Option { return func(s *Source) { s.limit = n } }

// NewSource returns a Source for feedURL. Floating and all-day times are read in loc.
func NewSource(feedURL string, loc *time.Location, opts ...Option) *Source {
	if strings.HasPrefix(feedURL, "webcal://") {
		feedURL = "https://" + strings.TrimPrefix(feedURL, "webcal://")
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Source{url: feedURL, loc: loc, limit: maxFeedBytes, client: &http.Client{Timeout: fetchTimeout}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns events overlapping w with recurrences expanded.
func (s *Source) List(ctx context.Context, _ model.Credential, w model.Window) ([]model.CalendarEvent, error) {
	body, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &agenda.UpstreamError{Kind: agenda.Unavailable, Message: "malformed calendar feed", Err: err}
	}

	var parsed []vevent
	for _, ve := range cal.Events() {
		ev, err := parseEvent(ve, s.loc)
		if err != nil {
			slog.Warn("skipping calendar entry", "feed", redact(s.url), "error", err)
			continue
		}
		parsed = append(parsed, ev)
	}
	return expand(parsed, w), nil
}

// fetch performs a conditional GET and falls back to the last good body
// when the feed is temporarily unreachable.
func (s *Source) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &agenda.UpstreamError{Kind: agenda.Unavailable, Message: "build feed request", Err: err}
	}
	s.mu.Lock()
	etag, cached := s.etag, s.body
	s.mu.Unlock()
	if etag != "" && cached != nil {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if cached != nil {
			slog.Warn("calendar feed unreachable, using cached copy", "feed", redact(s.url), "error", err)
			return cached, nil
		}
		return nil, &agenda.UpstreamError{Kind: agenda.Unavailable, Message: "fetch calendar feed", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, s.limit+1))
		if err != nil {
			return nil, &agenda.UpstreamError{Kind: agenda.Unavailable, Message: "read calendar feed", Err: err}
		}
		if int64(len(body)) > s.limit {
			return nil, &agenda.UpstreamError{Kind: agenda.Unavailable, Message: fmt.Sprintf("calendar feed larger than %d bytes", s.limit)}
		}
		s.mu.Lock()
		s.etag, s.body = resp.Header.Get("ETag"), body
		s.mu.Unlock()
		return body, nil
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		return cached, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, &agenda.UpstreamError{Kind: agenda.Unauthorized, Message: resp.Status}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &agenda.UpstreamError{Kind: agenda.RateLimited, Message: resp.Status}
	}

	if cached != nil && resp.StatusCode >= http.StatusInternalServerError {
		slog.Warn("calendar feed failing, using cached copy", "feed", redact(s.url), "status", resp.StatusCode)
		return cached, nil
	}
	return nil, &agenda.UpstreamError{Kind: agenda.Unavailable, Message: resp.Status}
}

// redact keeps feed secrets out of logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://(redacted)"
	}
	return fmt.Sprintf("%s://%s/(redacted)", u.Scheme, u.Host)
}
