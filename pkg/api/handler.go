// Package api serves the notification feed and daily digest over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/harrisonrobin/agendify/pkg/agenda"
	"github.com/harrisonrobin/agendify/pkg/digest"
	"github.com/harrisonrobin/agendify/pkg/model"
)

// UserHeader carries the caller's user ID. Authentication happens in front of this service.
const UserHeader = "X-User-ID"

type Agenda interface {
	GetUpcoming(ctx context.Context, userID string, now time.Time, lookaheadMinutes int) (agenda.Upcoming, error)
	GetDailyDigest(ctx context.Context, userID string, day time.Time) (agenda.Digest, error)
	SendDailyDigest(ctx context.Context, userID string, day time.Time) error
}

type Handler struct {
	agenda    Agenda
	lookahead int
	loc       *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

func NewHandler(a Agenda, lookahead int, loc *time.Location, logger *slog.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{agenda: a, lookahead: lookahead, loc: loc, logger: logger, now: time.Now}
}

// NewServeMux registers all routes behind logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/notifications/upcoming", h.Upcoming)
	mux.HandleFunc("GET /api/notifications/daily-digest", h.DailyDigest)
	mux.HandleFunc("POST /api/notifications/daily-digest/send", h.SendDailyDigest)

	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	return wrapped
}

type UpcomingResponse struct {
	Success       bool              `json:"success"`
	UpcomingItems []model.Candidate `json:"upcoming_items"`
	Count         int               `json:"count"`
	CalendarError string            `json:"calendar_error,omitempty"`
}

type DigestResponse struct {
	Success       bool           `json:"success"`
	Digest        digest.Payload `json:"digest"`
	CalendarError string         `json:"calendar_error,omitempty"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Time: h.now().UTC().Format(time.RFC3339)})
}

// Upcoming accepts an optional lookahead query parameter in minutes.
func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	lookahead := h.lookahead
	if raw := r.URL.Query().Get("lookahead"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "lookahead must be a whole number of minutes")
			return
		}
		lookahead = n
	}

	up, err := h.agenda.GetUpcoming(r.Context(), userID, h.now(), lookahead)
	if err != nil {
		h.fail(w, "upcoming", userID, err)
		return
	}
	items := up.Items
	if items == nil {
		items = []model.Candidate{}
	}
	writeJSON(w, http.StatusOK, UpcomingResponse{
		Success:       true,
		UpcomingItems: items,
		Count:         len(items),
		CalendarError: errText(up.CalendarErr),
	})
}

// DailyDigest accepts an optional date query parameter (YYYY-MM-DD), today by default.
func (h *Handler) DailyDigest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	day, ok := h.day(w, r)
	if !ok {
		return
	}

	d, err := h.agenda.GetDailyDigest(r.Context(), userID, day)
	if err != nil {
		h.fail(w, "daily digest", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, DigestResponse{Success: true, Digest: d.Payload, CalendarError: errText(d.CalendarErr)})
}

func (h *Handler) SendDailyDigest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	day, ok := h.day(w, r)
	if !ok {
		return
	}

	if err := h.agenda.SendDailyDigest(r.Context(), userID, day); err != nil {
		h.fail(w, "send daily digest", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Daily digest sent successfully"})
}

func (h *Handler) day(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return h.now().In(h.loc), true
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}

func (h *Handler) fail(w http.ResponseWriter, op, userID string, err error) {
	var verr *agenda.ValidationError
	var nerr *agenda.NormalizationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &nerr):
		h.logger.Error(op+" failed", "user_id", userID, "error", err)
		writeError(w, http.StatusBadGateway, "calendar returned an unusable event")
	default:
		h.logger.Error(op+" failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
		return "", false
	}
	return userID, true
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
