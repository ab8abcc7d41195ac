package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"neuroboost/internal/eventbus"
	"neuroboost/internal/expand"
	"neuroboost/internal/export"
	"neuroboost/internal/model"
	"neuroboost/internal/notify"
	"neuroboost/internal/nudge"
	"neuroboost/internal/stats"
	"neuroboost/internal/store"
	logx "neuroboost/pkg/logx"
)

// Deps are the services the handlers call into. Store may be nil when
// persistence is disabled; data routes then answer 503.
type Deps struct {
	Store  store.Store
	Nudges *nudge.Service
	Notify *notify.Service

	// Activity is the bus recorder feeding the scheduler activity list
	// on /status/nudges. Nil omits the list.
	Activity *eventbus.Recorder

	// Now is the clock used by status/ICS responses. Nil means wall
	// time; tests pin it.
	Now func() time.Time
}

type handler struct {
	deps Deps
	log  logx.Logger
}

// NewHandler builds the route table. Split from the listener so tests
// drive it through httptest.
func NewHandler(deps Deps, log logx.Logger) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &handler{deps: deps, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("GET /events", h.listOccurrences)
	mux.HandleFunc("POST /events", h.createEvent)
	mux.HandleFunc("PATCH /events/{id}", h.patchEvent)
	mux.HandleFunc("DELETE /events/{id}", h.deleteEvent)
	mux.HandleFunc("POST /events/{id}/exceptions", h.upsertException)
	mux.HandleFunc("POST /events/{id}/reflection", h.addReflection)

	mux.HandleFunc("GET /tasks", h.listTasks)
	mux.HandleFunc("POST /tasks", h.createTask)
	mux.HandleFunc("PATCH /tasks/{id}", h.patchTask)

	mux.HandleFunc("GET /stats/week", h.weekStats)
	mux.HandleFunc("GET /status/nudges", h.nudgeStatus)
	mux.HandleFunc("POST /status/nudges/ack", h.ackPlanner)
	mux.HandleFunc("POST /notify/test", h.notifyTest)

	mux.HandleFunc("GET /export/dry-run", h.exportDryRun)
	mux.HandleFunc("GET /calendar.ics", h.calendarICS)
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// requireStore answers 503 when persistence is disabled.
func (h *handler) requireStore(w http.ResponseWriter) (store.Store, bool) {
	if h.deps.Store == nil {
		writeErr(w, http.StatusServiceUnavailable, store.ErrDisabled.Error())
		return nil, false
	}
	return h.deps.Store, true
}

// parseInstant accepts RFC3339 or a bare date (midnight UTC).
func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	now := h.deps.Now().UTC().Format(time.RFC3339Nano)
	if h.deps.Store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "db": "disabled", "utc_now": now})
		return
	}
	if err := h.deps.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "db": "ok", "utc_now": now})
}

type occurrencesResponse struct {
	Occurrences []model.Occurrence `json:"occurrences"`
	Errors      []expansionError   `json:"errors,omitempty"`
}

type expansionError struct {
	EventID string `json:"eventId"`
	Error   string `json:"error"`
}

// occurrencesIn expands every stored event against [start, end].
func (h *handler) occurrencesIn(r *http.Request, st store.Store, start, end time.Time) (occurrencesResponse, error) {
	events, err := st.ListEvents(r.Context())
	if err != nil {
		return occurrencesResponse{}, err
	}
	exceptions, err := st.ListExceptions(r.Context())
	if err != nil {
		return occurrencesResponse{}, err
	}
	occs, errs := expand.All(events, exceptions, start, end)
	resp := occurrencesResponse{Occurrences: occs}
	if resp.Occurrences == nil {
		resp.Occurrences = []model.Occurrence{}
	}
	for _, e := range errs {
		resp.Errors = append(resp.Errors, expansionError{EventID: e.EventID, Error: e.Err.Error()})
	}
	return resp, nil
}

func (h *handler) listOccurrences(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	start, err := parseInstant(r.URL.Query().Get("start"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad start")
		return
	}
	end, err := parseInstant(r.URL.Query().Get("end"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad end")
		return
	}
	resp, err := h.occurrencesIn(r, st, start, end)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type createEventRequest struct {
	Title        string `json:"title"`
	StartsAt     string `json:"startsAt"`
	EndsAt       string `json:"endsAt"`
	AllDay       bool   `json:"allDay"`
	RRule        string `json:"rrule"`
	SourceTaskID string `json:"sourceTaskId"`
}

func (h *handler) createEvent(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Title == "" || req.StartsAt == "" || req.EndsAt == "" {
		writeErr(w, http.StatusBadRequest, "title, startsAt, endsAt required")
		return
	}
	starts, err := parseInstant(req.StartsAt)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad startsAt")
		return
	}
	ends, err := parseInstant(req.EndsAt)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad endsAt")
		return
	}
	if !ends.After(starts) {
		writeErr(w, http.StatusBadRequest, "endsAt must be after startsAt")
		return
	}
	if _, err := expand.NewSeries(model.Event{RecurrenceRule: req.RRule}); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	ev := model.Event{
		ID:             uuid.NewString(),
		Title:          req.Title,
		StartsAt:       starts,
		EndsAt:         ends,
		AllDay:         req.AllDay,
		RecurrenceRule: req.RRule,
		Timezone:       "Europe/Moscow",
		SourceTaskID:   req.SourceTaskID,
		CreatedAt:      h.deps.Now().UTC(),
	}
	if err := st.CreateEvent(r.Context(), ev); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": ev.ID})
}

type patchEventRequest struct {
	Title    *string `json:"title"`
	StartsAt *string `json:"startsAt"`
	EndsAt   *string `json:"endsAt"`
	RRule    *string `json:"rrule"`
	AllDay   *bool   `json:"allDay"`
}

func (h *handler) patchEvent(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	var req patchEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Title == nil && req.StartsAt == nil && req.EndsAt == nil && req.RRule == nil && req.AllDay == nil {
		writeErr(w, http.StatusBadRequest, "nothing to update")
		return
	}

	var p store.EventPatch
	p.Title = req.Title
	p.AllDay = req.AllDay
	if req.StartsAt != nil {
		t, err := parseInstant(*req.StartsAt)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "bad startsAt")
			return
		}
		p.StartsAt = &t
	}
	if req.EndsAt != nil {
		t, err := parseInstant(*req.EndsAt)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "bad endsAt")
			return
		}
		p.EndsAt = &t
	}
	if req.RRule != nil {
		if _, err := expand.NewSeries(model.Event{RecurrenceRule: *req.RRule}); err != nil {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		p.RecurrenceRule = req.RRule
	}

	id := r.PathValue("id")
	if err := st.PatchEvent(r.Context(), id, p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "event not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (h *handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := st.DeleteEvent(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "event not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type exceptionRequest struct {
	OccurrenceStart string `json:"occurrenceStart"`
	Skipped         bool   `json:"skipped"`
}

func (h *handler) upsertException(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	var req exceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	occ, err := parseInstant(req.OccurrenceStart)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad occurrenceStart")
		return
	}
	id := r.PathValue("id")
	if _, err := st.GetEvent(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "event not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	ex := model.EventException{EventID: id, Occurrence: occ, Skipped: req.Skipped}
	if err := st.UpsertException(r.Context(), ex); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type reflectionRequest struct {
	FocusPct *int   `json:"focusPct"`
	GoalPct  *int   `json:"goalPct"`
	Mood     *int   `json:"mood"`
	Note     string `json:"note"`
}

func (h *handler) addReflection(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	var req reflectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.FocusPct == nil || req.GoalPct == nil || req.Mood == nil {
		writeErr(w, http.StatusBadRequest, "numbers required")
		return
	}
	id := r.PathValue("id")
	if _, err := st.GetEvent(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "event not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	ref := model.Reflection{
		ID:        uuid.NewString(),
		EventID:   id,
		FocusPct:  *req.FocusPct,
		GoalPct:   *req.GoalPct,
		Mood:      *req.Mood,
		Note:      req.Note,
		CreatedAt: h.deps.Now().UTC(),
	}
	if err := st.AddReflection(r.Context(), ref); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": ref.ID})
}

func (h *handler) listTasks(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	tasks, err := st.ListTasks(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	Status      string `json:"status"`
}

func (h *handler) createTask(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Title == "" {
		writeErr(w, http.StatusBadRequest, "title required")
		return
	}
	status := model.TaskStatus(req.Status)
	switch status {
	case "":
		status = model.TaskTodo
	case model.TaskTodo, model.TaskDoing, model.TaskDone:
	default:
		writeErr(w, http.StatusBadRequest, "bad status")
		return
	}
	t := model.Task{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      status,
		CreatedAt:   h.deps.Now().UTC(),
	}
	if err := st.CreateTask(r.Context(), t); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": t.ID})
}

type patchTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *int    `json:"priority"`
	Status      *string `json:"status"`
}

func (h *handler) patchTask(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	var req patchTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Title == nil && req.Description == nil && req.Priority == nil && req.Status == nil {
		writeErr(w, http.StatusBadRequest, "nothing to update")
		return
	}
	var p store.TaskPatch
	p.Title = req.Title
	p.Description = req.Description
	p.Priority = req.Priority
	if req.Status != nil {
		status := model.TaskStatus(*req.Status)
		switch status {
		case model.TaskTodo, model.TaskDoing, model.TaskDone:
		default:
			writeErr(w, http.StatusBadRequest, "bad status")
			return
		}
		p.Status = &status
	}
	id := r.PathValue("id")
	if err := st.PatchTask(r.Context(), id, p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "task not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (h *handler) weekStats(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	start, err := time.Parse("2006-01-02", r.URL.Query().Get("start"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad start")
		return
	}
	events, err := st.ListEvents(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	reflected, err := st.ReflectedEventIDs(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats.ForWeek(events, reflected, start))
}

func (h *handler) nudgeStatus(w http.ResponseWriter, r *http.Request) {
	now := h.deps.Now()
	resp := map[string]any{"ok": true}
	if h.deps.Notify != nil {
		resp["route"] = h.deps.Notify.RouteName()
		resp["history"] = h.deps.Notify.History()
	}
	if h.deps.Nudges != nil {
		cfg := h.deps.Nudges.Config()
		loc := h.deps.Nudges.Location()
		planner := nudge.NextPlanner(now, loc)
		resp["enabled"] = cfg.Enabled
		resp["dedupeWindowSec"] = int(cfg.DedupeWindow.Seconds())
		resp["quietHours"] = cfg.QuietHours
		resp["weeklyPlannerLocal"] = planner.Format(time.RFC3339)
		resp["weeklyPlannerUtc"] = planner.UTC().Format(time.RFC3339)
	}
	if h.deps.Activity != nil {
		resp["activity"] = h.deps.Activity.Recent()
	}
	writeJSON(w, http.StatusOK, resp)
}

type ackRequest struct {
	Week string `json:"week"`
}

func (h *handler) ackPlanner(w http.ResponseWriter, r *http.Request) {
	if h.deps.Nudges == nil {
		writeErr(w, http.StatusServiceUnavailable, "nudges disabled")
		return
	}
	var req ackRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means current week
	}
	week := h.deps.Nudges.AckPlanner(req.Week)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "week": week})
}

func (h *handler) notifyTest(w http.ResponseWriter, r *http.Request) {
	if h.deps.Notify == nil {
		writeErr(w, http.StatusServiceUnavailable, "notify disabled")
		return
	}
	route := h.deps.Notify.RouteName()
	if route == "none" {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":       true,
			"wouldUse": route,
			"note":     "route is a stub; no sends performed",
		})
		return
	}
	n := notify.Notification{
		Key:   "test:" + h.deps.Now().UTC().Format(time.RFC3339),
		Title: "Test notification",
		Body:  "Delivery check from /notify/test",
		At:    h.deps.Now(),
	}
	if err := h.deps.Notify.Send(r.Context(), n); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "wouldUse": route, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "wouldUse": route, "note": "test notification sent"})
}

func (h *handler) exportDryRun(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	tasks, err := st.ListTasks(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	events, err := st.ListEvents(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, export.DryRun(tasks, events))
}

const icsWindow = 30 * 24 * time.Hour

func (h *handler) calendarICS(w http.ResponseWriter, r *http.Request) {
	st, ok := h.requireStore(w)
	if !ok {
		return
	}
	now := h.deps.Now().UTC()
	resp, err := h.occurrencesIn(r, st, now, now.Add(icsWindow))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(export.ICS(resp.Occurrences, now)))
}
