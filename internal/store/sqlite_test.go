package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"neuroboost/internal/model"
	logx "neuroboost/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "nb.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st != nil {
		t.Fatal("disabled driver should return a nil store")
	}
}

func TestEventRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	ev := model.Event{
		ID:             "ev1",
		Title:          "Deep work",
		StartsAt:       time.Date(2025, 8, 21, 9, 0, 0, 0, time.UTC),
		EndsAt:         time.Date(2025, 8, 21, 11, 0, 0, 0, time.UTC),
		RecurrenceRule: "FREQ=WEEKLY;COUNT=4",
		Timezone:       "Europe/Moscow",
	}
	if err := st.CreateEvent(ctx, ev); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	got, err := st.GetEvent(ctx, "ev1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if !got.StartsAt.Equal(ev.StartsAt) || !got.EndsAt.Equal(ev.EndsAt) {
		t.Fatalf("bounds = %v..%v, want %v..%v", got.StartsAt, got.EndsAt, ev.StartsAt, ev.EndsAt)
	}
	if got.RecurrenceRule != ev.RecurrenceRule {
		t.Fatalf("rrule = %q, want %q", got.RecurrenceRule, ev.RecurrenceRule)
	}

	newStart := ev.StartsAt.Add(30 * time.Minute)
	if err := st.PatchEvent(ctx, "ev1", EventPatch{StartsAt: &newStart}); err != nil {
		t.Fatalf("PatchEvent: %v", err)
	}
	got, err = st.GetEvent(ctx, "ev1")
	if err != nil {
		t.Fatalf("GetEvent after patch: %v", err)
	}
	if !got.StartsAt.Equal(newStart) {
		t.Fatalf("patched start = %v, want %v", got.StartsAt, newStart)
	}
	if !got.EndsAt.Equal(ev.EndsAt) {
		t.Fatal("patch touched a field it should not have")
	}

	if err := st.DeleteEvent(ctx, "ev1"); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if _, err := st.GetEvent(ctx, "ev1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetEvent after delete: %v, want ErrNotFound", err)
	}
}

func TestPatchMissingEvent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	title := "x"
	err := st.PatchEvent(context.Background(), "nope", EventPatch{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExceptionUpsert(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	ev := model.Event{
		ID:       "ev2",
		Title:    "Gym",
		StartsAt: time.Date(2025, 1, 6, 18, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2025, 1, 6, 19, 0, 0, 0, time.UTC),
	}
	if err := st.CreateEvent(ctx, ev); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	occ := time.Date(2025, 1, 13, 18, 0, 0, 0, time.UTC)
	ex := model.EventException{EventID: "ev2", Occurrence: occ, Skipped: true}
	if err := st.UpsertException(ctx, ex); err != nil {
		t.Fatalf("UpsertException: %v", err)
	}
	// Upsert again flipping the flag.
	ex.Skipped = false
	if err := st.UpsertException(ctx, ex); err != nil {
		t.Fatalf("UpsertException (update): %v", err)
	}

	all, err := st.ListExceptions(ctx)
	if err != nil {
		t.Fatalf("ListExceptions: %v", err)
	}
	got := all["ev2"]
	if len(got) != 1 {
		t.Fatalf("got %d exceptions, want 1", len(got))
	}
	if got[0].Skipped {
		t.Fatal("second upsert should have cleared the skip flag")
	}
	if !got[0].Occurrence.Equal(occ) {
		t.Fatalf("occurrence = %v, want %v", got[0].Occurrence, occ)
	}
}

func TestTasksAndReflections(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	task := model.Task{ID: "t1", Title: "Write MVP doc", Priority: 3}
	if err := st.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	status := model.TaskDone
	if err := st.PatchTask(ctx, "t1", TaskPatch{Status: &status}); err != nil {
		t.Fatalf("PatchTask: %v", err)
	}
	tasks, err := st.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != model.TaskDone {
		t.Fatalf("tasks = %+v", tasks)
	}

	ev := model.Event{
		ID:       "ev3",
		Title:    "Review",
		StartsAt: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2025, 2, 1, 11, 0, 0, 0, time.UTC),
	}
	if err := st.CreateEvent(ctx, ev); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	r := model.Reflection{ID: "r1", EventID: "ev3", FocusPct: 80, GoalPct: 70, Mood: 4}
	if err := st.AddReflection(ctx, r); err != nil {
		t.Fatalf("AddReflection: %v", err)
	}

	ids, err := st.ReflectedEventIDs(ctx)
	if err != nil {
		t.Fatalf("ReflectedEventIDs: %v", err)
	}
	if !ids["ev3"] {
		t.Fatal("ev3 should be marked reflected")
	}
}
