package ics

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

// RawEvent is one VEVENT as read from the feed, before normalization.
// Start/End are the instants the source encoded; the date-only flags
// record whether the source used VALUE=DATE (or a bare YYYYMMDD value)
// rather than a date-time.
type RawEvent struct {
	UID string

	Summary     string
	Description string
	Location    string

	Start time.Time
	End   time.Time

	StartDateOnly bool
	EndDateOnly   bool

	RRules  []string
	ExDates []time.Time

	// RecurrenceID is set when the VEVENT carried RECURRENCE-ID, which
	// makes it an override of one occurrence of the recurring event with
	// the same UID.
	RecurrenceID *time.Time
}

// Parse parses an iCalendar payload into RawEvents. Components other than
// VEVENT (timezone definitions, alarms, todos) are discarded. A VEVENT
// that cannot be read is logged and skipped; only malformed calendar
// syntax fails the whole parse.
func Parse(body []byte) ([]RawEvent, error) {
	if len(body) == 0 {
		return nil, NewFeedError(CategoryParse, "feed body is empty", nil)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, NewFeedError(CategoryParse, "feed is not valid iCalendar", err)
	}

	events := make([]RawEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		raw, perr := parseVEvent(ve)
		if perr != nil {
			slog.Warn("skipping unreadable VEVENT", "err", perr)
			continue
		}
		events = append(events, raw)
	}

	return events, nil
}

func parseVEvent(ve *ical.VEvent) (RawEvent, error) {
	var out RawEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if out.UID == "" {
		// Keep the event addressable for the rest of the cycle.
		out.UID = uuid.NewString()
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	out.StartDateOnly = propIsDateOnly(ve.GetProperty(ical.ComponentPropertyDtStart))
	out.EndDateOnly = propIsDateOnly(ve.GetProperty(ical.ComponentPropertyDtEnd))

	start, err := eventStart(ve, out.StartDateOnly)
	if err != nil {
		return out, err
	}
	out.Start = start

	// DTEND is optional; a missing or unreadable end resolves to the
	// start instant and the normalizer takes it from there.
	if end, err := eventEnd(ve, out.EndDateOnly); err == nil {
		out.End = end
	} else {
		out.End = start
		out.EndDateOnly = out.StartDateOnly
	}

	// RRULE can legally appear more than once; keep them all in order.
	for _, p := range ve.GetProperties(ical.ComponentPropertyRrule) {
		if v := strings.TrimSpace(p.Value); v != "" {
			out.RRules = append(out.RRules, v)
		}
	}

	// Raw property name: the library's constant set has no entry for
	// RECURRENCE-ID.
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value); err == nil {
			out.RecurrenceID = &t
		}
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	return out, nil
}

// propIsDateOnly reports whether a DTSTART/DTEND property carries a
// date-only value: either VALUE=DATE or a value without a time component.
func propIsDateOnly(p *ical.IANAProperty) bool {
	if p == nil {
		return false
	}
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

func eventStart(ve *ical.VEvent, dateOnly bool) (time.Time, error) {
	if dateOnly {
		if t, err := ve.GetAllDayStartAt(); err == nil {
			return t, nil
		}
	}
	if t, err := ve.GetStartAt(); err == nil {
		return t, nil
	}
	return time.Time{}, errors.New("VEVENT has no readable DTSTART")
}

func eventEnd(ve *ical.VEvent, dateOnly bool) (time.Time, error) {
	if dateOnly {
		if t, err := ve.GetAllDayEndAt(); err == nil {
			return t, nil
		}
	}
	if t, err := ve.GetEndAt(); err == nil {
		return t, nil
	}
	return time.Time{}, errors.New("VEVENT has no readable DTEND")
}

// parseICSTime parses the basic DATE / DATE-TIME / UTC forms used by
// EXDATE values.
func parseICSTime(v string) (time.Time, error) {
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.Local)
	default:
		return time.ParseInLocation("20060102", v, time.UTC)
	}
}
