package expand

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"neuroboost/internal/model"
	"neuroboost/internal/recur"
)

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func mustSeries(t *testing.T, ev model.Event) Series {
	t.Helper()
	s, err := NewSeries(ev)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	return s
}

func TestExpandSingleEvent(t *testing.T) {
	t.Parallel()
	ev := model.Event{
		ID:       "ev1",
		Title:    "Deep work",
		StartsAt: utc(2025, 8, 21, 12, 0),
		EndsAt:   utc(2025, 8, 21, 14, 0),
	}
	s := mustSeries(t, ev)

	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"window covers event", utc(2025, 8, 21, 0, 0), utc(2025, 8, 22, 0, 0), 1},
		{"window after event", utc(2025, 8, 22, 0, 0), utc(2025, 8, 23, 0, 0), 0},
		{"window before event", utc(2025, 8, 20, 0, 0), utc(2025, 8, 21, 0, 0), 0},
		{"partial overlap front", utc(2025, 8, 21, 13, 0), utc(2025, 8, 21, 15, 0), 1},
		{"touching end boundary", utc(2025, 8, 21, 14, 0), utc(2025, 8, 21, 16, 0), 1},
		{"touching start boundary", utc(2025, 8, 21, 10, 0), utc(2025, 8, 21, 12, 0), 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := s.Expand(nil, tt.start, tt.end)
			if len(got) != tt.want {
				t.Fatalf("got %d occurrences, want %d", len(got), tt.want)
			}
			if tt.want == 1 {
				occ := got[0]
				if occ.ID != "ev1" || occ.SourceEventID != "ev1" {
					t.Fatalf("identity = %q/%q, want ev1/ev1", occ.ID, occ.SourceEventID)
				}
				if !occ.Start.Equal(ev.StartsAt) || !occ.End.Equal(ev.EndsAt) {
					t.Fatalf("bounds = %v..%v", occ.Start, occ.End)
				}
			}
		})
	}
}

func TestExpandWeeklyCount(t *testing.T) {
	t.Parallel()
	anchor := utc(2025, 1, 6, 10, 0) // Monday
	ev := model.Event{
		ID:             "ev2",
		Title:          "Standup",
		StartsAt:       anchor,
		EndsAt:         anchor.Add(60 * time.Minute),
		RecurrenceRule: "FREQ=WEEKLY;COUNT=8",
	}
	s := mustSeries(t, ev)

	got := s.Expand(nil, utc(2025, 1, 1, 0, 0), utc(2025, 3, 1, 0, 0))
	if len(got) != 8 {
		t.Fatalf("got %d occurrences, want 8", len(got))
	}
	for k, occ := range got {
		wantStart := anchor.AddDate(0, 0, 7*k)
		if !occ.Start.Equal(wantStart) {
			t.Fatalf("occurrence %d start = %v, want %v", k, occ.Start, wantStart)
		}
		if occ.End.Sub(occ.Start) != 60*time.Minute {
			t.Fatalf("occurrence %d duration = %v, want 1h", k, occ.End.Sub(occ.Start))
		}
		if occ.SourceEventID != "ev2" {
			t.Fatalf("occurrence %d master = %q", k, occ.SourceEventID)
		}
	}
}

func TestExpandSkipException(t *testing.T) {
	t.Parallel()
	anchor := utc(2025, 1, 6, 10, 0)
	ev := model.Event{
		ID:             "ev3",
		StartsAt:       anchor,
		EndsAt:         anchor.Add(time.Hour),
		RecurrenceRule: "FREQ=WEEKLY;COUNT=8",
	}
	s := mustSeries(t, ev)

	skipped := anchor.AddDate(0, 0, 21) // k = 3
	skips := NewSkipSet([]model.EventException{
		{EventID: "ev3", Occurrence: skipped, Skipped: true},
		{EventID: "ev3", Occurrence: anchor.AddDate(0, 0, 7), Skipped: false}, // not a skip
	})

	got := s.Expand(skips, utc(2025, 1, 1, 0, 0), utc(2025, 3, 1, 0, 0))
	if len(got) != 7 {
		t.Fatalf("got %d occurrences, want 7", len(got))
	}
	for i, occ := range got {
		if occ.Start.Equal(skipped) {
			t.Fatalf("skipped occurrence still present at index %d", i)
		}
		if i > 0 && !got[i-1].Start.Before(occ.Start) {
			t.Fatalf("ordering broken at index %d", i)
		}
	}
}

func TestExpandWindowBoundedWhenNoCount(t *testing.T) {
	t.Parallel()
	anchor := utc(2025, 1, 6, 10, 0)
	ev := model.Event{
		ID:             "ev4",
		StartsAt:       anchor,
		EndsAt:         anchor.Add(time.Hour),
		RecurrenceRule: "FREQ=WEEKLY",
	}
	s := mustSeries(t, ev)

	got := s.Expand(nil, utc(2025, 1, 1, 0, 0), utc(2025, 1, 31, 0, 0))
	if len(got) != 4 {
		t.Fatalf("got %d occurrences, want 4 (Jan 6, 13, 20, 27)", len(got))
	}
}

func TestExpandOccurrenceOverlappingWindowStart(t *testing.T) {
	t.Parallel()
	anchor := utc(2025, 1, 6, 10, 0)
	ev := model.Event{
		ID:             "ev5",
		StartsAt:       anchor,
		EndsAt:         anchor.Add(2 * time.Hour),
		RecurrenceRule: "FREQ=WEEKLY;COUNT=2",
	}
	s := mustSeries(t, ev)

	// Window opens mid-occurrence: the instance started at 10:00 and
	// still intersects [11:00, ...].
	got := s.Expand(nil, utc(2025, 1, 6, 11, 0), utc(2025, 1, 7, 0, 0))
	if len(got) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(got))
	}
	if !got[0].Start.Equal(anchor) {
		t.Fatalf("start = %v, want %v", got[0].Start, anchor)
	}
}

func TestExpandZeroLengthWindow(t *testing.T) {
	t.Parallel()
	anchor := utc(2025, 1, 6, 10, 0)
	ev := model.Event{
		ID:       "ev6",
		StartsAt: anchor,
		EndsAt:   anchor.Add(time.Hour),
	}
	s := mustSeries(t, ev)

	// Boundary-inclusive on both sides.
	if got := s.Expand(nil, anchor, anchor); len(got) != 1 {
		t.Fatalf("window at start instant: got %d, want 1", len(got))
	}
	end := anchor.Add(time.Hour)
	if got := s.Expand(nil, end, end); len(got) != 1 {
		t.Fatalf("window at end instant: got %d, want 1", len(got))
	}
	outside := anchor.Add(2 * time.Hour)
	if got := s.Expand(nil, outside, outside); len(got) != 0 {
		t.Fatalf("window outside event: got %d, want 0", len(got))
	}
}

func TestExpandDeterministic(t *testing.T) {
	t.Parallel()
	anchor := utc(2025, 1, 6, 10, 0)
	ev := model.Event{
		ID:             "ev7",
		Title:          "Gym",
		StartsAt:       anchor,
		EndsAt:         anchor.Add(time.Hour),
		RecurrenceRule: "FREQ=WEEKLY;COUNT=5",
	}
	s := mustSeries(t, ev)
	skips := NewSkipSet([]model.EventException{{EventID: "ev7", Occurrence: anchor.AddDate(0, 0, 7), Skipped: true}})

	a := s.Expand(skips, utc(2025, 1, 1, 0, 0), utc(2025, 3, 1, 0, 0))
	b := s.Expand(skips, utc(2025, 1, 1, 0, 0), utc(2025, 3, 1, 0, 0))
	if !reflect.DeepEqual(a, b) {
		t.Fatal("expansion is not deterministic for identical inputs")
	}
}

func TestAllCollectsRuleErrors(t *testing.T) {
	t.Parallel()
	good := model.Event{
		ID:       "good",
		StartsAt: utc(2025, 1, 6, 10, 0),
		EndsAt:   utc(2025, 1, 6, 11, 0),
	}
	bad := model.Event{
		ID:             "bad",
		StartsAt:       utc(2025, 1, 6, 10, 0),
		EndsAt:         utc(2025, 1, 6, 11, 0),
		RecurrenceRule: "FREQ=DAILY",
	}

	occs, errs := All([]model.Event{bad, good}, nil, utc(2025, 1, 1, 0, 0), utc(2025, 2, 1, 0, 0))
	if len(occs) != 1 || occs[0].ID != "good" {
		t.Fatalf("occurrences = %+v, want just the good event", occs)
	}
	if len(errs) != 1 || errs[0].EventID != "bad" {
		t.Fatalf("errors = %+v, want one for the bad event", errs)
	}
	var re *recur.RuleError
	if !errors.As(errs[0].Err, &re) {
		t.Fatalf("error %v is not *recur.RuleError", errs[0].Err)
	}
}

func TestAllMergesAndSorts(t *testing.T) {
	t.Parallel()
	a := model.Event{
		ID:             "a",
		StartsAt:       utc(2025, 1, 7, 9, 0),
		EndsAt:         utc(2025, 1, 7, 10, 0),
		RecurrenceRule: "FREQ=WEEKLY;COUNT=2",
	}
	b := model.Event{
		ID:       "b",
		StartsAt: utc(2025, 1, 6, 15, 0),
		EndsAt:   utc(2025, 1, 6, 16, 0),
	}

	occs, errs := All([]model.Event{a, b}, nil, utc(2025, 1, 1, 0, 0), utc(2025, 2, 1, 0, 0))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if len(occs) != 3 {
		t.Fatalf("got %d occurrences, want 3", len(occs))
	}
	for i := 1; i < len(occs); i++ {
		if occs[i].Start.Before(occs[i-1].Start) {
			t.Fatalf("global ordering broken at %d", i)
		}
	}
	if occs[0].SourceEventID != "b" {
		t.Fatalf("first occurrence = %q, want the earlier single event", occs[0].SourceEventID)
	}
}
