package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcal/internal/model"
)

func timedEvent(uid string, start, end time.Time, rules ...string) model.CalendarEvent {
	return NormalizeRaw(RawEvent{
		UID:     uid,
		Summary: "event " + uid,
		Start:   start,
		End:     end,
		RRules:  rules,
	})
}

func TestExpand_NonRecurringIsIdentity(t *testing.T) {
	t.Parallel()

	ev := timedEvent("e1", utc(2024, time.June, 1, 15, 0), utc(2024, time.June, 1, 16, 0))
	win := Window{Start: utc(2024, time.May, 1, 0, 0), End: utc(2024, time.September, 1, 0, 0)}

	result, err := Expander{}.Expand([]model.CalendarEvent{ev}, win)
	require.NoError(t, err)

	require.Len(t, result.Events, 1)
	assert.Equal(t, ev, result.Events[0])
	assert.False(t, result.Events[0].Recurring)
}

func TestExpand_WeeklyThreeOccurrences(t *testing.T) {
	t.Parallel()

	// Anchored Monday 2024-01-01 09:00; window ends before the fourth
	// Monday's start time.
	ev := timedEvent("e1",
		utc(2024, time.January, 1, 9, 0), utc(2024, time.January, 1, 10, 0),
		"FREQ=WEEKLY;BYDAY=MO")
	win := Window{Start: utc(2024, time.January, 1, 0, 0), End: utc(2024, time.January, 22, 0, 0)}

	result, err := Expander{}.Expand([]model.CalendarEvent{ev}, win)
	require.NoError(t, err)

	require.Len(t, result.Events, 3)
	wantStarts := []time.Time{
		utc(2024, time.January, 1, 9, 0),
		utc(2024, time.January, 8, 9, 0),
		utc(2024, time.January, 15, 9, 0),
	}
	seen := make(map[string]bool)
	for i, inst := range result.Events {
		assert.True(t, inst.Start.Equal(wantStarts[i]), "instance %d start %v", i, inst.Start)
		assert.Equal(t, time.Hour, inst.Duration())
		assert.True(t, inst.Recurring)
		assert.Empty(t, inst.RecurrenceRules)
		assert.False(t, seen[inst.UID], "duplicate uid %s", inst.UID)
		seen[inst.UID] = true
	}
}

func TestExpand_WindowEndpointsInclusive(t *testing.T) {
	t.Parallel()

	// Daily rule; window boundaries land exactly on occurrence starts.
	ev := timedEvent("e1",
		utc(2024, time.January, 1, 0, 0), utc(2024, time.January, 1, 1, 0),
		"FREQ=DAILY")
	win := Window{Start: utc(2024, time.January, 2, 0, 0), End: utc(2024, time.January, 4, 0, 0)}

	result, err := Expander{}.Expand([]model.CalendarEvent{ev}, win)
	require.NoError(t, err)

	require.Len(t, result.Events, 3)
	assert.True(t, result.Events[0].Start.Equal(win.Start))
	assert.True(t, result.Events[2].Start.Equal(win.End))
	for _, inst := range result.Events {
		assert.True(t, win.Contains(inst.Start), "start %v outside window", inst.Start)
	}
}

func TestExpand_MultipleRulesMerged(t *testing.T) {
	t.Parallel()

	// Weekly Monday + weekly Thursday, anchored Monday 2024-01-01.
	ev := timedEvent("e1",
		utc(2024, time.January, 1, 9, 0), utc(2024, time.January, 1, 10, 0),
		"FREQ=WEEKLY;BYDAY=MO", "FREQ=WEEKLY;BYDAY=TH")
	win := Window{Start: utc(2024, time.January, 1, 0, 0), End: utc(2024, time.January, 8, 0, 0)}

	result, err := Expander{}.Expand([]model.CalendarEvent{ev}, win)
	require.NoError(t, err)

	// Mon 1st, Thu 4th, Mon 8th (00:00 window end excludes the 8th 09:00).
	require.Len(t, result.Events, 2)
	assert.True(t, result.Events[0].Start.Equal(utc(2024, time.January, 1, 9, 0)))
	assert.True(t, result.Events[1].Start.Equal(utc(2024, time.January, 4, 9, 0)))
}

func TestExpand_InvalidRuleSkippedValidKept(t *testing.T) {
	t.Parallel()

	ev := timedEvent("e1",
		utc(2024, time.January, 1, 9, 0), utc(2024, time.January, 1, 10, 0),
		"NOT-A-RULE", "FREQ=WEEKLY;BYDAY=MO")
	win := Window{Start: utc(2024, time.January, 1, 0, 0), End: utc(2024, time.January, 16, 0, 0)}

	result, err := Expander{}.Expand([]model.CalendarEvent{ev}, win)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SkippedRules)
	require.Len(t, result.Events, 3)
	for _, inst := range result.Events {
		assert.True(t, inst.Recurring)
	}
}

func TestExpand_AllRulesInvalidFallsBackToDefining(t *testing.T) {
	t.Parallel()

	ev := timedEvent("e1",
		utc(2024, time.January, 1, 9, 0), utc(2024, time.January, 1, 10, 0),
		"NOT-A-RULE")
	win := Window{Start: utc(2024, time.January, 1, 0, 0), End: utc(2024, time.February, 1, 0, 0)}

	result, err := Expander{}.Expand([]model.CalendarEvent{ev}, win)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SkippedRules)
	require.Len(t, result.Events, 1)
	assert.Equal(t, ev, result.Events[0])
}

func TestExpand_ExceptionDatesExcluded(t *testing.T) {
	t.Parallel()

	anchor := utc(2024, time.January, 1, 9, 0)
	raw := RawEvent{
		UID:     "e1",
		Summary: "weekly",
		Start:   anchor,
		End:     anchor.Add(30 * time.Minute),
		RRules:  []string{"FREQ=WEEKLY;BYDAY=MO"},
		ExDates: []time.Time{anchor.AddDate(0, 0, 7)},
	}
	win := Window{Start: utc(2024, time.January, 1, 0, 0), End: utc(2024, time.January, 21, 0, 0)}

	result, err := Expander{}.Expand([]model.CalendarEvent{NormalizeRaw(raw)}, win)
	require.NoError(t, err)

	require.Len(t, result.Events, 2)
	assert.True(t, result.Events[0].Start.Equal(anchor))
	assert.True(t, result.Events[1].Start.Equal(anchor.AddDate(0, 0, 14)))
}

func TestExpand_OccurrenceCap(t *testing.T) {
	t.Parallel()

	ev := timedEvent("e1",
		utc(2024, time.January, 1, 9, 0), utc(2024, time.January, 1, 10, 0),
		"FREQ=DAILY")
	win := Window{Start: utc(2024, time.January, 1, 0, 0), End: utc(2024, time.March, 1, 0, 0)}

	result, err := Expander{MaxOccurrencesPerEvent: 10}.Expand([]model.CalendarEvent{ev}, win)
	require.NoError(t, err)

	assert.Len(t, result.Events, 10)
	assert.Equal(t, []string{"e1"}, result.TruncatedUIDs)
}

func TestExpand_AllDayRecurrencePreservesClassification(t *testing.T) {
	t.Parallel()

	allDay := NormalizeRaw(RawEvent{
		UID:           "e1",
		Summary:       "chores",
		Start:         utc(2024, time.January, 6, 0, 0),
		End:           utc(2024, time.January, 7, 0, 0),
		StartDateOnly: true,
		EndDateOnly:   true,
		RRules:        []string{"FREQ=WEEKLY;BYDAY=SA"},
	})
	win := Window{Start: utc(2024, time.January, 1, 0, 0), End: utc(2024, time.January, 21, 0, 0)}

	result, err := Expander{}.Expand([]model.CalendarEvent{allDay}, win)
	require.NoError(t, err)

	require.Len(t, result.Events, 3)
	for _, inst := range result.Events {
		assert.True(t, inst.AllDay)
		assert.Equal(t, 24*time.Hour, inst.Duration())
	}
}

func TestExpand_OverrideReplacesOccurrence(t *testing.T) {
	t.Parallel()

	// Weekly sync anchored Monday 2024-01-01 09:00; the 2024-01-08
	// occurrence is moved to 11:00 by an override record.
	base := timedEvent("sync",
		utc(2024, time.January, 1, 9, 0), utc(2024, time.January, 1, 9, 30),
		"FREQ=WEEKLY;BYDAY=MO")
	rid := utc(2024, time.January, 8, 9, 0)
	moved := NormalizeRaw(RawEvent{
		UID:          "sync",
		Summary:      "sync (moved)",
		Start:        utc(2024, time.January, 8, 11, 0),
		End:          utc(2024, time.January, 8, 11, 30),
		RecurrenceID: &rid,
	})
	win := Window{Start: utc(2024, time.January, 1, 0, 0), End: utc(2024, time.January, 15, 0, 0)}

	result, err := Expander{}.Expand([]model.CalendarEvent{base, moved}, win)
	require.NoError(t, err)

	// Jan 1 and Jan 8 occurrences only; the override is consumed, not
	// surfaced as an extra event.
	require.Len(t, result.Events, 2)

	onDay := EventsOnDay(result.Events, day(2024, time.January, 8, time.UTC))
	require.Len(t, onDay, 1)
	assert.Equal(t, "sync (moved)", onDay[0].Summary)
	assert.True(t, onDay[0].Start.Equal(utc(2024, time.January, 8, 11, 0)))
	assert.True(t, onDay[0].Recurring)
}

func TestExpand_OverrideOnNonRecurring(t *testing.T) {
	t.Parallel()

	base := timedEvent("e1", utc(2024, time.June, 1, 15, 0), utc(2024, time.June, 1, 16, 0))
	rid := utc(2024, time.June, 1, 15, 0)
	moved := NormalizeRaw(RawEvent{
		UID:          "e1",
		Summary:      "rescheduled",
		Start:        utc(2024, time.June, 2, 10, 0),
		End:          utc(2024, time.June, 2, 11, 0),
		RecurrenceID: &rid,
	})
	win := Window{Start: utc(2024, time.May, 1, 0, 0), End: utc(2024, time.September, 1, 0, 0)}

	result, err := Expander{}.Expand([]model.CalendarEvent{base, moved}, win)
	require.NoError(t, err)

	require.Len(t, result.Events, 1)
	assert.Equal(t, "e1", result.Events[0].UID)
	assert.Equal(t, "rescheduled", result.Events[0].Summary)
	assert.True(t, result.Events[0].Start.Equal(utc(2024, time.June, 2, 10, 0)))
}

func TestExpand_OverrideWithoutBaseDropped(t *testing.T) {
	t.Parallel()

	rid := utc(2024, time.June, 1, 15, 0)
	orphan := NormalizeRaw(RawEvent{
		UID:          "gone",
		Summary:      "detached override",
		Start:        utc(2024, time.June, 1, 16, 0),
		End:          utc(2024, time.June, 1, 17, 0),
		RecurrenceID: &rid,
	})
	win := Window{Start: utc(2024, time.May, 1, 0, 0), End: utc(2024, time.September, 1, 0, 0)}

	result, err := Expander{}.Expand([]model.CalendarEvent{orphan}, win)
	require.NoError(t, err)
	assert.Empty(t, result.Events)
}

func TestExpand_InvertedWindowRejected(t *testing.T) {
	t.Parallel()

	ev := timedEvent("e1", utc(2024, time.June, 1, 15, 0), utc(2024, time.June, 1, 16, 0))
	win := Window{Start: utc(2024, time.June, 1, 0, 0), End: utc(2024, time.May, 1, 0, 0)}

	_, err := Expander{}.Expand([]model.CalendarEvent{ev}, win)
	assert.Error(t, err)
}

func TestDefaultWindow(t *testing.T) {
	t.Parallel()

	now := utc(2024, time.June, 15, 12, 0)
	win := DefaultWindow(now)
	assert.Equal(t, utc(2024, time.May, 15, 12, 0), win.Start)
	assert.Equal(t, utc(2024, time.September, 15, 12, 0), win.End)
}
