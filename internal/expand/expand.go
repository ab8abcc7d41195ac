// Package expand turns master events plus skip exceptions into concrete
// occurrences inside a UTC query window.
//
// Expansion is pure: identical inputs always produce identical output,
// and nothing here performs I/O or looks at the wall clock.
package expand

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"neuroboost/internal/model"
	"neuroboost/internal/recur"
)

// Series pairs an event with its recurrence rule parsed exactly once.
type Series struct {
	Event model.Event
	Rule  recur.Rule
}

// NewSeries parses the event's rule string. A malformed rule surfaces as
// *recur.RuleError; the caller decides whether to skip the event or
// abort the batch.
func NewSeries(ev model.Event) (Series, error) {
	rule, err := recur.Parse(ev.RecurrenceRule)
	if err != nil {
		return Series{}, err
	}
	return Series{Event: ev, Rule: rule}, nil
}

// SkipSet indexes skip exceptions by the exact UTC start instant of the
// suppressed occurrence.
type SkipSet map[string]bool

// NewSkipSet builds a SkipSet from exception records. Non-skip entries
// are ignored (there are no "moved occurrence" semantics).
func NewSkipSet(exceptions []model.EventException) SkipSet {
	if len(exceptions) == 0 {
		return nil
	}
	set := make(SkipSet, len(exceptions))
	for _, ex := range exceptions {
		if ex.Skipped {
			set[instantKey(ex.Occurrence)] = true
		}
	}
	return set
}

func instantKey(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// intersects implements the inclusive window test. An occurrence exactly
// on a window boundary belongs to both adjacent windows; callers paging
// back-to-back see it twice. That overlap is intentional.
func intersects(start, end, rangeStart, rangeEnd time.Time) bool {
	return !end.Before(rangeStart) && !start.After(rangeEnd)
}

// Expand produces the ordered occurrences of the series intersecting
// [rangeStart, rangeEnd]. Skipped instants are dropped entirely.
func (s Series) Expand(skips SkipSet, rangeStart, rangeEnd time.Time) []model.Occurrence {
	ev := s.Event

	if s.Rule.None() {
		// Exceptions only ever target generated instances; a standalone
		// event is deleted, not skipped.
		if !intersects(ev.StartsAt, ev.EndsAt, rangeStart, rangeEnd) {
			return nil
		}
		return []model.Occurrence{{
			ID:             ev.ID,
			SourceEventID:  ev.ID,
			Title:          ev.Title,
			AllDay:         ev.AllDay,
			RecurrenceRule: ev.RecurrenceRule,
			Start:          ev.StartsAt.UTC(),
			End:            ev.EndsAt.UTC(),
		}}
	}

	duration := ev.Duration()

	opt := s.Rule.ROption(ev.StartsAt)
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		// Parse already vetted the rule; an option-level failure here
		// means a rule the generator cannot represent. Treat as empty.
		return nil
	}

	// Instants starting before the window can still overlap it, so the
	// generation window is widened backwards by one duration.
	genStart := rangeStart.Add(-duration)
	starts := rule.Between(genStart.UTC(), rangeEnd.UTC(), true)

	out := make([]model.Occurrence, 0, len(starts))
	for _, start := range starts {
		start = start.UTC()
		end := start.Add(duration)
		if skips[instantKey(start)] {
			continue
		}
		if !intersects(start, end, rangeStart, rangeEnd) {
			continue
		}
		out = append(out, model.Occurrence{
			ID:             ev.ID + ":" + instantKey(start),
			SourceEventID:  ev.ID,
			Title:          ev.Title,
			AllDay:         ev.AllDay,
			RecurrenceRule: ev.RecurrenceRule,
			Start:          start,
			End:            end,
		})
	}
	return out
}

// EventError reports one event that failed to expand in a batch.
type EventError struct {
	EventID string
	Err     error
}

// All expands a batch of events against a shared window, merging and
// sorting occurrences by start. A malformed rule on one event never
// hides the others; failures come back alongside the good output.
func All(events []model.Event, exceptions map[string][]model.EventException, rangeStart, rangeEnd time.Time) ([]model.Occurrence, []EventError) {
	var (
		out  []model.Occurrence
		errs []EventError
	)
	for _, ev := range events {
		series, err := NewSeries(ev)
		if err != nil {
			errs = append(errs, EventError{EventID: ev.ID, Err: err})
			continue
		}
		skips := NewSkipSet(exceptions[ev.ID])
		out = append(out, series.Expand(skips, rangeStart, rangeEnd)...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, errs
}
