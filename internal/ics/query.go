package ics

import (
	"sort"
	"time"

	"dashcal/internal/model"
)

// EventsOnDay answers "which events are visible on day" against an
// already-expanded event set. Only the calendar date of day (in its own
// location) matters; the time of day is ignored.
//
// All-day events match when the day's calendar date falls within the
// event's [start date, end date] range, comparing dates only. Timed
// events match when their start instant falls inside the day's
// 00:00-23:59:59.999 window, with the day boundaries materialized in the
// event's own offset.
//
// The result is ordered: all-day events first, then timed; within each
// class by ascending start, stable for equal starts.
func EventsOnDay(events []model.CalendarEvent, day time.Time) []model.CalendarEvent {
	visible := make([]model.CalendarEvent, 0)
	for _, ev := range events {
		if visibleOnDay(ev, day) {
			visible = append(visible, ev)
		}
	}

	sort.SliceStable(visible, func(i, j int) bool {
		a, b := visible[i], visible[j]
		if a.AllDay != b.AllDay {
			return a.AllDay
		}
		return a.Start.Before(b.Start)
	})

	return visible
}

func visibleOnDay(ev model.CalendarEvent, day time.Time) bool {
	if ev.AllDay {
		d := dateOrdinal(day)
		return dateOrdinal(ev.Start) <= d && d <= dateOrdinal(ev.End)
	}

	// Build the day's boundaries in the event's own offset so a timed
	// event is bucketed by its source clock, not the server's.
	y, m, d := day.Date()
	loc := ev.Start.Location()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	dayEnd := dayStart.Add(24*time.Hour - time.Millisecond)

	return !ev.Start.Before(dayStart) && !ev.Start.After(dayEnd)
}

// dateOrdinal flattens a calendar date to a comparable integer.
func dateOrdinal(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
