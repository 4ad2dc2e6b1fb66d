package agenda

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/harrisonrobin/agendify/pkg/model"
)

// Aggregate merges calendar and task candidates into the upcoming feed for window.
// window.Start is "now". Candidates outside the closed window, undated ones and
// ones already past are dropped; the rest are ordered by minutes until start,
// calendar events before tasks, then by ID.
func Aggregate(calendar, tasks []model.Candidate, window model.Window) []model.Candidate {
	now := window.Start
	out := make([]model.Candidate, 0, len(calendar)+len(tasks))

	for _, c := range slices.Concat(calendar, tasks) {
		if c.Undated || !window.Contains(c.EffectiveTime) {
			continue
		}
		minutes := minutesUntil(now, c.EffectiveTime)
		if minutes < 0 {
			continue
		}
		c.MinutesUntil = minutes
		out = append(out, c)
	}

	slices.SortFunc(out, func(a, b model.Candidate) int {
		return cmp.Or(
			cmp.Compare(a.MinutesUntil, b.MinutesUntil),
			cmp.Compare(kindRank(a.Kind), kindRank(b.Kind)),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out
}

func minutesUntil(now, t time.Time) int {
	return int(math.Floor(t.Sub(now).Minutes()))
}

func kindRank(k model.SourceKind) int {
	if k == model.KindCalendarEvent {
		return 0
	}
	return 1
}
