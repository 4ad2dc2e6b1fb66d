// Package scheduler sends every user their daily digest on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/harrisonrobin/agendify/pkg/model"
)

const runTimeout = 5 * time.Minute

type DigestSender interface {
	SendDailyDigest(ctx context.Context, userID string, day time.Time) error
}

type UserLister interface {
	List(ctx context.Context) ([]model.User, error)
}

type Scheduler struct {
	cron   *cron.Cron
	sender DigestSender
	users  UserLister
	now    func() time.Time
}

// New parses a standard five-field spec evaluated in loc.
func New(spec string, loc *time.Location, sender DigestSender, users UserLister) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		sender: sender,
		users:  users,
		now:    func() time.Time { return time.Now().In(loc) },
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("parse digest schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		slog.Info("digest scheduler started", "next_run", e.Next)
	}
}

// Stop halts the schedule and waits for a running job or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	if err := s.RunOnce(ctx); err != nil {
		slog.Error("daily digest run finished with failures", "error", err)
	}
}

// RunOnce sends today's digest to every user. One user's failure does not
// stop delivery to the others.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	users, err := s.users.List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	day := s.now()
	var errs []error
	sent := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.sender.SendDailyDigest(ctx, u.ID, day); err != nil {
			slog.Warn("daily digest not sent", "user_id", u.ID, "error", err)
			errs = append(errs, fmt.Errorf("user %s: %w", u.ID, err))
			continue
		}
		sent++
	}
	slog.Info("daily digest run", "users", len(users), "sent", sent)
	return errors.Join(errs...)
}
