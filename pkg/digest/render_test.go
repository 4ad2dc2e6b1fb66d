package digest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/agendify/pkg/model"
)

var day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRender_AllDayEventsNoTasks(t *testing.T) {
	events := []model.Candidate{
		{Kind: model.KindCalendarEvent, ID: "b", Title: "Offsite", EffectiveTime: day, AllDay: true},
		{Kind: model.KindCalendarEvent, ID: "a", Title: "Holiday", EffectiveTime: day, AllDay: true},
	}

	p := NewRenderer(time.UTC).Render(day, events, nil)

	require.Len(t, p.Events.Items, 2)
	assert.False(t, p.Events.Empty)
	for _, it := range p.Events.Items {
		assert.Equal(t, AllDayLabel, it.Time)
	}
	assert.Equal(t, "a", p.Events.Items[0].ID)
	assert.True(t, p.Tasks.Empty)
	assert.Empty(t, p.Tasks.Items)
	assert.Equal(t, "No tasks due today.", p.Tasks.EmptyText)
}

func TestRender_Headings(t *testing.T) {
	p := NewRenderer(time.UTC).Render(day, nil, nil)
	assert.Equal(t, "2024-01-01", p.Day)
	assert.Equal(t, "Your Daily Agenda - January 01, 2024", p.Subject)
	assert.Equal(t, "Your Daily Agenda for Monday, January 01, 2024", p.Heading)
	assert.True(t, p.Events.Empty)
	assert.Equal(t, "No events scheduled for today.", p.Events.EmptyText)
}

func TestRender_TasksOrderAndMarkers(t *testing.T) {
	tasks := []model.Candidate{
		{Kind: model.KindTask, ID: "undated", Title: "Someday", Undated: true, Priority: model.PriorityLow},
		{Kind: model.KindTask, ID: "late", Title: "Report", EffectiveTime: day.Add(17 * time.Hour), Priority: model.PriorityHigh},
		{Kind: model.KindTask, ID: "early", Title: "Email", EffectiveTime: day.Add(9*time.Hour + 30*time.Minute), Completed: true, Priority: model.PriorityMedium},
	}

	p := NewRenderer(time.UTC).Render(day, nil, tasks)

	require.Len(t, p.Tasks.Items, 3)
	assert.Equal(t, []string{"early", "late", "undated"},
		[]string{p.Tasks.Items[0].ID, p.Tasks.Items[1].ID, p.Tasks.Items[2].ID})

	assert.Equal(t, "09:30 AM", p.Tasks.Items[0].Time)
	assert.Equal(t, MarkerDone, p.Tasks.Items[0].Marker)
	assert.Empty(t, p.Tasks.Items[0].Priority)

	assert.Equal(t, "05:00 PM", p.Tasks.Items[1].Time)
	assert.Equal(t, MarkerPending, p.Tasks.Items[1].Marker)
	assert.Equal(t, "High", p.Tasks.Items[1].Priority)

	assert.Equal(t, NoDueTimeLabel, p.Tasks.Items[2].Time)
	assert.Equal(t, "Low", p.Tasks.Items[2].Priority)
}

func TestRender_LocalizesTimes(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	events := []model.Candidate{
		{Kind: model.KindCalendarEvent, ID: "e", Title: "Standup", EffectiveTime: time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC), Location: "Room 1"},
	}

	p := NewRenderer(ny).Render(time.Date(2024, 1, 1, 12, 0, 0, 0, ny), events, nil)
	require.Len(t, p.Events.Items, 1)
	assert.Equal(t, "10:00 AM", p.Events.Items[0].Time)
	assert.Equal(t, "Room 1", p.Events.Items[0].Location)
	assert.Empty(t, p.Events.Items[0].Marker)
}
