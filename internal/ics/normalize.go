package ics

import (
	"time"

	"dashcal/internal/model"
)

const (
	// placeholderSummary is used when the source omits SUMMARY.
	placeholderSummary = "(no title)"

	// allDaySlack is how far from exactly 24h a span may be and still
	// count as a single all-day event (0.1 hours).
	allDaySlack = 6 * time.Minute
)

// NormalizeRaw converts one parsed VEVENT into a canonical CalendarEvent:
// it classifies all-day vs. timed, rewrites all-day instants to UTC day
// boundaries and fills defaults. Recurrence rules are carried through
// verbatim for the expander.
func NormalizeRaw(raw RawEvent) model.CalendarEvent {
	ev := model.CalendarEvent{
		UID:             raw.UID,
		Summary:         raw.Summary,
		Description:     raw.Description,
		Location:        raw.Location,
		Start:           raw.Start,
		End:             raw.End,
		Recurring:       len(raw.RRules) > 0,
		RecurrenceRules: append([]string(nil), raw.RRules...),
		ExceptionDates:  append([]time.Time(nil), raw.ExDates...),
		RecurrenceID:    raw.RecurrenceID,
	}

	if ev.Summary == "" {
		ev.Summary = placeholderSummary
	}

	// Rule 1: the source explicitly used date-only values for both
	// endpoints. Later rules never get a say.
	if raw.StartDateOnly && raw.EndDateOnly {
		return toAllDay(ev)
	}
	return normalize(ev)
}

// Normalize re-applies classification to an already-constructed event.
// It is idempotent: canonical all-day events span exactly one UTC day and
// re-classify as all-day through the 24-hour rule; canonical timed events
// match no all-day rule and pass through unchanged.
func Normalize(ev model.CalendarEvent) model.CalendarEvent {
	if ev.Summary == "" {
		ev.Summary = placeholderSummary
	}
	return normalize(ev)
}

// normalize applies classification rules 2-5 in precedence order.
func normalize(ev model.CalendarEvent) model.CalendarEvent {
	span := ev.End.Sub(ev.Start)

	// Rule 2: identical instants. Inverted spans are coerced the same
	// way so End >= Start always holds after normalization.
	if span <= 0 {
		return toAllDay(ev)
	}

	// Rule 3: span within 0.1h of exactly 24 hours, regardless of clock
	// alignment.
	if d := span - 24*time.Hour; d >= -allDaySlack && d <= allDaySlack {
		return toAllDay(ev)
	}

	// Rule 4: midnight-to-end-of-day on a single calendar date.
	if sameCalendarDate(ev.Start, ev.End) &&
		clockIs(ev.Start, 0, 0) && clockIs(ev.End, 23, 59) {
		return toAllDay(ev)
	}

	// Rule 5: timed. Instants stay exactly as the source resolved them.
	ev.AllDay = false
	return ev
}

// toAllDay rewrites an event to canonical all-day form: Start becomes UTC
// midnight of the start calendar date and End the UTC midnight after it.
// Multi-day source spans intentionally collapse to one UTC day.
func toAllDay(ev model.CalendarEvent) model.CalendarEvent {
	y, m, d := ev.Start.Date()
	ev.Start = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	ev.End = ev.Start.Add(24 * time.Hour)
	ev.AllDay = true
	return ev
}

func sameCalendarDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func clockIs(t time.Time, hour, minute int) bool {
	return t.Hour() == hour && t.Minute() == minute
}
