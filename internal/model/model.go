package model

import "time"

// CalendarEvent is the canonical event produced by the normalizer and
// consumed by the expander and day query. A value is either a defining
// record (possibly carrying recurrence rules) or a concrete occurrence
// instance synthesized during expansion.
type CalendarEvent struct {
	// UID is stable within one fetch/expand cycle. Expanded instances
	// derive theirs from the defining record's UID plus the occurrence
	// start instant, so no two surfaced events share a UID.
	UID string

	Summary     string
	Description string
	Location    string

	// Start / End are absolute instants once normalization completes,
	// with End >= Start guaranteed. For all-day events they are UTC day
	// boundaries and End is exclusive.
	Start time.Time
	End   time.Time

	// AllDay is computed by the normalizer's heuristic, never taken
	// verbatim from the source feed.
	AllDay bool

	// Recurring is true for a defining record carrying recurrence rules
	// and for every instance expanded from it.
	Recurring bool

	// RecurrenceRules holds the raw RRULE strings of a defining record.
	// Expanded instances do not carry rules.
	RecurrenceRules []string

	// ExceptionDates lists EXDATE instants of a defining record; the
	// expander drops occurrences falling on them.
	ExceptionDates []time.Time

	// RecurrenceID, when non-nil, marks this record as an override of
	// the occurrence at that instant of the recurring event sharing its
	// UID. Override records are consumed during expansion and never
	// surfaced themselves.
	RecurrenceID *time.Time
}

// Duration returns the span between Start and End.
func (e CalendarEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// IsDefining reports whether this record still carries recurrence rules,
// i.e. it has not yet been replaced by expanded instances.
func (e CalendarEvent) IsDefining() bool {
	return len(e.RecurrenceRules) > 0
}
