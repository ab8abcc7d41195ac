package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"neuroboost/internal/eventbus"
	"neuroboost/internal/notify"
	"neuroboost/internal/nudge"
	"neuroboost/internal/store"
	logx "neuroboost/pkg/logx"
)

var testNow = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "nb.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("store open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	nsvc := notify.New(notify.Config{Route: "none", RatePerSec: 1000}, logx.Nop(), nil)
	sched := nudge.New(nudge.Config{}, nil, nsvc, nil, nil, logx.Nop(), nil)

	deps := Deps{
		Store:  st,
		Nudges: sched,
		Notify: nsvc,
		Now:    func() time.Time { return testNow },
	}
	return NewHandler(deps, logx.Nop())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]any{}
	if ct := rec.Header().Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: bad json response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec, out := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["ok"] != true || out["db"] != "ok" {
		t.Fatalf("health = %v", out)
	}
}

func TestEventLifecycle(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec, out := doJSON(t, h, http.MethodPost, "/events", map[string]any{
		"title":    "Standup",
		"startsAt": "2025-01-06T10:00:00Z",
		"endsAt":   "2025-01-06T10:15:00Z",
		"rrule":    "FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: %d %v", rec.Code, out)
	}
	id, _ := out["id"].(string)
	if id == "" {
		t.Fatal("create returned no id")
	}

	rec, out = doJSON(t, h, http.MethodGet, "/events?start=2025-01-06T00:00:00Z&end=2025-01-12T23:59:59Z", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("query: %d %v", rec.Code, out)
	}
	occs, _ := out["occurrences"].([]any)
	if len(occs) != 2 { // Monday and Wednesday of the first week
		t.Fatalf("occurrences = %d, want 2: %v", len(occs), out)
	}

	// Skip the Wednesday instance.
	rec, out = doJSON(t, h, http.MethodPost, "/events/"+id+"/exceptions", map[string]any{
		"occurrenceStart": "2025-01-08T10:00:00Z",
		"skipped":         true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("exception: %d %v", rec.Code, out)
	}
	rec, out = doJSON(t, h, http.MethodGet, "/events?start=2025-01-06T00:00:00Z&end=2025-01-12T23:59:59Z", nil)
	occs, _ = out["occurrences"].([]any)
	if len(occs) != 1 {
		t.Fatalf("after skip: %d occurrences, want 1", len(occs))
	}

	rec, out = doJSON(t, h, http.MethodPatch, "/events/"+id, map[string]any{"title": "Daily standup"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %v", rec.Code, out)
	}

	rec, out = doJSON(t, h, http.MethodDelete, "/events/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %v", rec.Code, out)
	}
	rec, _ = doJSON(t, h, http.MethodDelete, "/events/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d, want 404", rec.Code)
	}
}

func TestCreateEventValidation(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	cases := []map[string]any{
		{"startsAt": "2025-01-06T10:00:00Z", "endsAt": "2025-01-06T11:00:00Z"},
		{"title": "x", "startsAt": "2025-01-06T11:00:00Z", "endsAt": "2025-01-06T10:00:00Z"},
		{"title": "x", "startsAt": "2025-01-06T10:00:00Z", "endsAt": "2025-01-06T11:00:00Z", "rrule": "FREQ=DAILY"},
		{"title": "x", "startsAt": "not-a-date", "endsAt": "2025-01-06T11:00:00Z"},
	}
	for i, body := range cases {
		rec, _ := doJSON(t, h, http.MethodPost, "/events", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("case %d: status %d, want 400", i, rec.Code)
		}
	}
}

func TestPatchEventNothingToUpdate(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec, _ := doJSON(t, h, http.MethodPatch, "/events/whatever", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReflectionAndStats(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	_, out := doJSON(t, h, http.MethodPost, "/events", map[string]any{
		"title":    "Deep work",
		"startsAt": "2025-01-06T09:00:00Z",
		"endsAt":   "2025-01-06T10:30:00Z",
	})
	id, _ := out["id"].(string)

	rec, _ := doJSON(t, h, http.MethodPost, "/events/"+id+"/reflection", map[string]any{
		"focusPct": 80, "goalPct": 70, "mood": 4, "note": "solid",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reflection: %d", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/events/"+id+"/reflection", map[string]any{"note": "missing numbers"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad reflection: %d, want 400", rec.Code)
	}

	rec, out = doJSON(t, h, http.MethodGet, "/stats/week?start=2025-01-06", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d %v", rec.Code, out)
	}
	if out["plannedMin"] != float64(90) || out["completedMin"] != float64(90) || out["adherencePct"] != float64(100) {
		t.Fatalf("stats = %v", out)
	}
	perDay, _ := out["perDay"].([]any)
	if len(perDay) != 7 {
		t.Fatalf("perDay = %d entries", len(perDay))
	}
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec, out := doJSON(t, h, http.MethodPost, "/tasks", map[string]any{"title": "Write report", "priority": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: %d %v", rec.Code, out)
	}
	id, _ := out["id"].(string)

	rec, _ = doJSON(t, h, http.MethodPatch, "/tasks/"+id, map[string]any{"status": "doing"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d", rec.Code)
	}
	rec, _ = doJSON(t, h, http.MethodPatch, "/tasks/"+id, map[string]any{"status": "blocked"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status: %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	recList := httptest.NewRecorder()
	h.ServeHTTP(recList, req)
	var tasks []map[string]any
	if err := json.Unmarshal(recList.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0]["status"] != "doing" {
		t.Fatalf("tasks = %v", tasks)
	}
}

func TestNudgeStatus(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec, out := doJSON(t, h, http.MethodGet, "/status/nudges", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["route"] != "none" {
		t.Fatalf("route = %v", out["route"])
	}
	if out["dedupeWindowSec"] != float64(120) {
		t.Fatalf("dedupeWindowSec = %v", out["dedupeWindowSec"])
	}
	// testNow is Monday 2025-01-06; next planner is Sunday 2025-01-12
	// 18:00 UTC+3, i.e. 15:00 UTC.
	if got := out["weeklyPlannerUtc"]; got != "2025-01-12T15:00:00Z" {
		t.Fatalf("weeklyPlannerUtc = %v", got)
	}
}

func TestNudgeStatusActivity(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	activity := eventbus.NewRecorder(bus, 8)
	bus.Publish(eventbus.Event{Type: "nudge.fired", Time: testNow, Data: "ev1:T-5"})
	activity.Close()

	nsvc := notify.New(notify.Config{Route: "none"}, logx.Nop(), nil)
	sched := nudge.New(nudge.Config{}, nil, nsvc, nil, nil, logx.Nop(), nil)
	h := NewHandler(Deps{
		Nudges:   sched,
		Notify:   nsvc,
		Activity: activity,
		Now:      func() time.Time { return testNow },
	}, logx.Nop())

	rec, out := doJSON(t, h, http.MethodGet, "/status/nudges", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	items, _ := out["activity"].([]any)
	if len(items) != 1 {
		t.Fatalf("activity = %v", out["activity"])
	}
	first, _ := items[0].(map[string]any)
	if first["type"] != "nudge.fired" || first["detail"] != "ev1:T-5" {
		t.Fatalf("activity item = %v", first)
	}
}

func TestPlannerAckEndpoint(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec, out := doJSON(t, h, http.MethodPost, "/status/nudges/ack", map[string]any{"week": "2025-W02"})
	if rec.Code != http.StatusOK {
		t.Fatalf("ack: %d %v", rec.Code, out)
	}
	if out["week"] != "2025-W02" {
		t.Fatalf("week = %v", out["week"])
	}
}

func TestNotifyTestStub(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec, out := doJSON(t, h, http.MethodPost, "/notify/test", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["wouldUse"] != "none" {
		t.Fatalf("wouldUse = %v", out["wouldUse"])
	}
}

func TestExportDryRun(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	doJSON(t, h, http.MethodPost, "/tasks", map[string]any{"title": "Plan"})
	doJSON(t, h, http.MethodPost, "/events", map[string]any{
		"title":    "Focus",
		"startsAt": "2025-01-06T09:00:00Z",
		"endsAt":   "2025-01-06T10:00:00Z",
	})

	rec, out := doJSON(t, h, http.MethodGet, "/export/dry-run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["mode"] != "dry-run" || out["planned"] != float64(2) {
		t.Fatalf("plan = %v", out)
	}
}

func TestCalendarICS(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	doJSON(t, h, http.MethodPost, "/events", map[string]any{
		"title":    "Review",
		"startsAt": testNow.Add(24 * time.Hour).Format(time.RFC3339),
		"endsAt":   testNow.Add(25 * time.Hour).Format(time.RFC3339),
	})

	req := httptest.NewRequest(http.MethodGet, "/calendar.ics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("content-type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "SUMMARY:Review") {
		t.Fatalf("ICS missing event:\n%s", body)
	}
}

func TestStorageDisabled(t *testing.T) {
	t.Parallel()

	h := NewHandler(Deps{Now: func() time.Time { return testNow }}, logx.Nop())
	rec, _ := doJSON(t, h, http.MethodGet, "/events?start=2025-01-06T00:00:00Z&end=2025-01-07T00:00:00Z", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	rec, out := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || out["db"] != "disabled" {
		t.Fatalf("health = %d %v", rec.Code, out)
	}
}
