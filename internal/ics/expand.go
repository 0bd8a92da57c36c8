package ics

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"dashcal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// Window is the bounded horizon within which recurrence rules are
// enumerated. Both endpoints are inclusive for occurrence starts.
type Window struct {
	Start time.Time
	End   time.Time
}

// DefaultWindow is the expansion horizon collaborators use when none is
// given: one month back through three months ahead of now.
func DefaultWindow(now time.Time) Window {
	return Window{
		Start: now.AddDate(0, -1, 0),
		End:   now.AddDate(0, 3, 0),
	}
}

// Contains reports whether t falls inside the window, endpoints included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// ExpandResult carries the expanded event set plus diagnostics.
type ExpandResult struct {
	Events []model.CalendarEvent

	// TruncatedUIDs lists defining records that hit the occurrence cap.
	TruncatedUIDs []string
	// SkippedRules counts rule strings that failed to parse.
	SkippedRules int
}

// Expander turns defining records into concrete occurrence instances
// within a window. Non-recurring events pass through unchanged.
type Expander struct {
	// MaxOccurrencesPerEvent caps how many instances one defining record
	// may produce inside the window. Zero means the default cap.
	MaxOccurrencesPerEvent int
}

// Expand processes the whole normalized event set. Defining records with
// recurrence rules are consumed and replaced by their instances; if every
// rule of a record fails to parse, the record itself is surfaced
// unexpanded rather than disappearing. Override records (RECURRENCE-ID)
// are consumed too: each replaces the matching occurrence of the base
// event sharing its UID, and an override without a base is dropped.
func (x Expander) Expand(events []model.CalendarEvent, win Window) (ExpandResult, error) {
	var result ExpandResult
	if win.End.Before(win.Start) {
		return result, errors.New("expand: window end is before window start")
	}

	maxOcc := x.MaxOccurrencesPerEvent
	if maxOcc <= 0 {
		maxOcc = defaultMaxOccurrencesPerEvent
	}

	overrides := make(map[string][]model.CalendarEvent)
	bases := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	result.Events = make([]model.CalendarEvent, 0, len(bases))

	baseUIDs := make(map[string]bool, len(bases))
	for _, ev := range bases {
		baseUIDs[ev.UID] = true
	}

	for _, ev := range bases {
		ovs := overrides[ev.UID]

		if !ev.IsDefining() {
			if o, ok := overrideFor(ovs, ev.Start); ok {
				ev = applyOverride(ev, o)
			}
			result.Events = append(result.Events, ev)
			continue
		}

		instances, skipped, truncated := expandDefining(ev, ovs, win, maxOcc)
		result.SkippedRules += skipped
		if truncated {
			result.TruncatedUIDs = append(result.TruncatedUIDs, ev.UID)
			slog.Warn("recurrence expansion truncated", "uid", ev.UID, "cap", maxOcc)
		}

		if instances == nil {
			// Every rule failed to parse; keep the defining record.
			result.Events = append(result.Events, ev)
			continue
		}
		result.Events = append(result.Events, instances...)
	}

	for uid := range overrides {
		if !baseUIDs[uid] {
			slog.Debug("dropping override without a base event", "uid", uid)
		}
	}

	return result, nil
}

// overrideFor finds the override record, if any, whose RECURRENCE-ID names
// the occurrence scheduled at start.
func overrideFor(ovs []model.CalendarEvent, start time.Time) (model.CalendarEvent, bool) {
	for _, o := range ovs {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return model.CalendarEvent{}, false
}

// applyOverride replaces the occurrence's own fields with the override's,
// keeping the UID and recurring flag of the instance being replaced.
func applyOverride(inst, o model.CalendarEvent) model.CalendarEvent {
	inst.Summary = o.Summary
	inst.Description = o.Description
	inst.Location = o.Location
	inst.Start = o.Start
	inst.End = o.End
	inst.AllDay = o.AllDay
	return inst
}

// expandDefining enumerates all occurrence instants of one defining
// record within the window, merging all of its rules into one set. The
// returned slice is nil, as opposed to empty, when no rule parsed at all.
func expandDefining(ev model.CalendarEvent, ovs []model.CalendarEvent, win Window, maxOcc int) (instances []model.CalendarEvent, skipped int, truncated bool) {
	// rrule-go works in the anchor's location; align the window with it.
	loc := ev.Start.Location()
	rangeStart := win.Start.In(loc)
	rangeEnd := win.End.In(loc)

	seen := make(map[int64]time.Time)
	parsedAny := false

	for _, rule := range ev.RecurrenceRules {
		r, err := rrule.StrToRRule(rule)
		if err != nil {
			skipped++
			slog.Warn("skipping unparseable recurrence rule",
				"uid", ev.UID, "rule", rule, "err", err)
			continue
		}
		parsedAny = true
		r.DTStart(ev.Start)

		var set rrule.Set
		set.RRule(r)
		for _, ex := range ev.ExceptionDates {
			set.ExDate(ex.In(loc))
		}

		for _, t := range set.Between(rangeStart, rangeEnd, true) {
			seen[t.UnixNano()] = t
		}
	}

	if !parsedAny {
		return nil, skipped, false
	}

	starts := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		starts = append(starts, t)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	if len(starts) > maxOcc {
		starts = starts[:maxOcc]
		truncated = true
	}

	duration := ev.Duration()
	instances = make([]model.CalendarEvent, 0, len(starts))
	for _, start := range starts {
		inst := model.CalendarEvent{
			UID:         ev.UID + "-" + start.Format(time.RFC3339),
			Summary:     ev.Summary,
			Description: ev.Description,
			Location:    ev.Location,
			Start:       start,
			End:         start.Add(duration),
			AllDay:      ev.AllDay,
			Recurring:   true,
		}
		if o, ok := overrideFor(ovs, start); ok {
			inst = applyOverride(inst, o)
		}
		instances = append(instances, inst)
	}

	return instances, skipped, truncated
}
