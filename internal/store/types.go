package store

import (
	"context"
	"errors"
	"time"

	"neuroboost/internal/model"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("record not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// EventPatch describes a partial event update. Nil fields are left
// untouched. Any change to StartsAt/EndsAt/RecurrenceRule invalidates
// previously computed occurrences; callers must re-expand.
type EventPatch struct {
	Title          *string
	StartsAt       *time.Time
	EndsAt         *time.Time
	RecurrenceRule *string
	AllDay         *bool
}

// TaskPatch describes a partial task update.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *int
	Status      *model.TaskStatus
}

// Store is the persistence API consumed by the HTTP layer and the nudge
// scheduler's occurrence source.
type Store interface {
	Ping(ctx context.Context) error

	CreateTask(ctx context.Context, t model.Task) error
	ListTasks(ctx context.Context) ([]model.Task, error)
	PatchTask(ctx context.Context, id string, p TaskPatch) error

	CreateEvent(ctx context.Context, e model.Event) error
	GetEvent(ctx context.Context, id string) (model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	PatchEvent(ctx context.Context, id string, p EventPatch) error
	DeleteEvent(ctx context.Context, id string) error

	UpsertException(ctx context.Context, ex model.EventException) error
	ListExceptions(ctx context.Context) (map[string][]model.EventException, error)

	AddReflection(ctx context.Context, r model.Reflection) error
	ReflectedEventIDs(ctx context.Context) (map[string]bool, error)

	Close() error
}
