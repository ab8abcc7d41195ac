package nudge

import (
	"context"
	"time"

	"neuroboost/internal/model"
	"neuroboost/internal/notify"
)

// Config controls the reminder loop. Zero fields fall back to the
// defaults below.
type Config struct {
	Enabled bool

	// PollInterval is the tick cadence.
	PollInterval time.Duration
	// DedupeWindow is the minimum gap before the same (occurrence,
	// phase) pair may notify again.
	DedupeWindow time.Duration
	// Horizon is how far ahead each tick looks for occurrences.
	Horizon time.Duration
	// BackwardSlack extends the window backwards to catch occurrences
	// that started moments ago.
	BackwardSlack time.Duration

	// QuietHours is a local-time "HH:MM-HH:MM" range (wraparound
	// allowed). Empty or malformed means never active.
	QuietHours string

	// Timezone is the display zone for quiet hours, the planner
	// trigger and notification bodies. The deployment runs fixed
	// UTC+3 ("Europe/Moscow").
	Timezone string
}

const (
	defaultPollInterval  = 30 * time.Second
	defaultDedupeWindow  = 120 * time.Second
	defaultHorizon       = 6 * time.Hour
	defaultBackwardSlack = 10 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = defaultDedupeWindow
	}
	if c.Horizon <= 0 {
		c.Horizon = defaultHorizon
	}
	if c.BackwardSlack <= 0 {
		c.BackwardSlack = defaultBackwardSlack
	}
	return c
}

// Clock abstracts wall time so tests can step it instead of sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

// OccurrenceSource yields all occurrences intersecting [start, end].
// In production this is the store plus the expander; tests plug in a
// canned list.
type OccurrenceSource interface {
	Occurrences(ctx context.Context, start, end time.Time) ([]model.Occurrence, error)
}

// Sink delivers one notification. Satisfied by *notify.Service.
type Sink interface {
	Send(ctx context.Context, n notify.Notification) error
}

// Phase tags which reminder a nudge belongs to.
type Phase string

const (
	// PhaseT5 fires five minutes before an occurrence starts.
	PhaseT5 Phase = "T-5"
	// PhaseT1 fires as the occurrence is about to start (T-1/T-0).
	PhaseT1 Phase = "T-1"
)
