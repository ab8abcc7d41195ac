package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"neuroboost/internal/model"
	logx "neuroboost/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return s.db.PingContext(ctx)
}

// Instants are stored as RFC3339Nano UTC text so rows stay readable and
// comparisons sort lexicographically.
func fmtInstant(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ---- tasks ----

func (s *sqliteStore) CreateTask(ctx context.Context, t model.Task) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Status == "" {
		t.Status = model.TaskTodo
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, title, description, priority, status, created_at)
		 VALUES(?,?,?,?,?,?)`,
		t.ID, t.Title, nullStr(t.Description), t.Priority, string(t.Status), fmtInstant(t.CreatedAt),
	)
	return err
}

func (s *sqliteStore) ListTasks(ctx context.Context) ([]model.Task, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, priority, status, created_at
		 FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		var (
			t       model.Task
			desc    sql.NullString
			status  string
			created string
		)
		if err := rows.Scan(&t.ID, &t.Title, &desc, &t.Priority, &status, &created); err != nil {
			return nil, err
		}
		t.Description = desc.String
		t.Status = model.TaskStatus(status)
		if t.CreatedAt, err = parseInstant(created); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PatchTask(ctx context.Context, id string, p TaskPatch) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullStr(*p.Description))
	}
	if p.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *p.Priority)
	}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, "UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// ---- events ----

func (s *sqliteStore) CreateEvent(ctx context.Context, e model.Event) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(id, title, starts_at, ends_at, all_day, rrule, tz, source_task_id, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Title, fmtInstant(e.StartsAt), fmtInstant(e.EndsAt), boolInt(e.AllDay),
		nullStr(e.RecurrenceRule), nullStr(e.Timezone), nullStr(e.SourceTaskID), fmtInstant(e.CreatedAt),
	)
	return err
}

func (s *sqliteStore) GetEvent(ctx context.Context, id string) (model.Event, error) {
	if s == nil || s.db == nil {
		return model.Event{}, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, starts_at, ends_at, all_day, rrule, tz, source_task_id, created_at
		 FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	return ev, err
}

func (s *sqliteStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, starts_at, ends_at, all_day, rrule, tz, source_task_id, created_at
		 FROM events ORDER BY starts_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvent(scan func(dest ...any) error) (model.Event, error) {
	var (
		ev               model.Event
		starts, ends     string
		allDay           int
		rrule, tz, task  sql.NullString
		created          string
	)
	if err := scan(&ev.ID, &ev.Title, &starts, &ends, &allDay, &rrule, &tz, &task, &created); err != nil {
		return model.Event{}, err
	}
	var err error
	if ev.StartsAt, err = parseInstant(starts); err != nil {
		return model.Event{}, err
	}
	if ev.EndsAt, err = parseInstant(ends); err != nil {
		return model.Event{}, err
	}
	if ev.CreatedAt, err = parseInstant(created); err != nil {
		return model.Event{}, err
	}
	ev.AllDay = allDay != 0
	ev.RecurrenceRule = rrule.String
	ev.Timezone = tz.String
	ev.SourceTaskID = task.String
	return ev, nil
}

func (s *sqliteStore) PatchEvent(ctx context.Context, id string, p EventPatch) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.StartsAt != nil {
		sets = append(sets, "starts_at = ?")
		args = append(args, fmtInstant(*p.StartsAt))
	}
	if p.EndsAt != nil {
		sets = append(sets, "ends_at = ?")
		args = append(args, fmtInstant(*p.EndsAt))
	}
	if p.RecurrenceRule != nil {
		sets = append(sets, "rrule = ?")
		args = append(args, nullStr(*p.RecurrenceRule))
	}
	if p.AllDay != nil {
		sets = append(sets, "all_day = ?")
		args = append(args, boolInt(*p.AllDay))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, "UPDATE events SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *sqliteStore) DeleteEvent(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// ---- exceptions ----

func (s *sqliteStore) UpsertException(ctx context.Context, ex model.EventException) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_exceptions(event_id, occurrence, skipped) VALUES(?,?,?)
		 ON CONFLICT(event_id, occurrence) DO UPDATE SET skipped=excluded.skipped`,
		ex.EventID, fmtInstant(ex.Occurrence), boolInt(ex.Skipped),
	)
	return err
}

func (s *sqliteStore) ListExceptions(ctx context.Context) (map[string][]model.EventException, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, occurrence, skipped FROM event_exceptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]model.EventException{}
	for rows.Next() {
		var (
			ex      model.EventException
			occ     string
			skipped int
		)
		if err := rows.Scan(&ex.EventID, &occ, &skipped); err != nil {
			return nil, err
		}
		if ex.Occurrence, err = parseInstant(occ); err != nil {
			return nil, err
		}
		ex.Skipped = skipped != 0
		out[ex.EventID] = append(out[ex.EventID], ex)
	}
	return out, rows.Err()
}

// ---- reflections ----

func (s *sqliteStore) AddReflection(ctx context.Context, r model.Reflection) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reflections(id, event_id, focus_pct, goal_pct, mood, note, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		r.ID, r.EventID, r.FocusPct, r.GoalPct, r.Mood, nullStr(r.Note), fmtInstant(r.CreatedAt),
	)
	return err
}

func (s *sqliteStore) ReflectedEventIDs(ctx context.Context) (map[string]bool, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT event_id FROM reflections`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// ---- helpers ----

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
