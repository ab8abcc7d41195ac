// Package model holds the persisted domain records and the derived
// occurrence value shared by the store, the expander and the HTTP API.
//
// All instants are stored and exchanged in UTC. The Timezone field on
// Event is a display tag only; it never affects storage or expansion.
package model

import "time"

// TaskStatus enumerates the lifecycle of a Task.
type TaskStatus string

const (
	TaskTodo  TaskStatus = "todo"
	TaskDoing TaskStatus = "doing"
	TaskDone  TaskStatus = "done"
)

// Task is a backlog item that may be scheduled into one or more events.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    int        `json:"priority"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Event is a master time-block definition. A non-empty RecurrenceRule
// makes it the anchor of a weekly series; otherwise it stands alone.
//
// Invariant: EndsAt > StartsAt.
type Event struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	StartsAt       time.Time `json:"startsAt"`
	EndsAt         time.Time `json:"endsAt"`
	AllDay         bool      `json:"allDay"`
	RecurrenceRule string    `json:"rrule,omitempty"`
	Timezone       string    `json:"tz,omitempty"`
	SourceTaskID   string    `json:"sourceTaskId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Duration is the fixed length every occurrence of the event inherits.
func (e Event) Duration() time.Duration { return e.EndsAt.Sub(e.StartsAt) }

// EventException suppresses a single generated instance of a recurring
// event. The occurrence is keyed by its exact UTC start instant.
type EventException struct {
	EventID    string    `json:"eventId"`
	Occurrence time.Time `json:"occurrence"`
	Skipped    bool      `json:"skipped"`
}

// Occurrence is one concrete, time-bounded instance of an event. It is
// derived on every expansion and never persisted.
type Occurrence struct {
	ID             string    `json:"id"`
	SourceEventID  string    `json:"masterId"`
	Title          string    `json:"title"`
	AllDay         bool      `json:"allDay"`
	RecurrenceRule string    `json:"rrule,omitempty"`
	Start          time.Time `json:"startsAt"`
	End            time.Time `json:"endsAt"`
}

// Reflection records a post-hoc self-assessment of an event. An event
// with at least one reflection counts as completed for weekly stats.
type Reflection struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	FocusPct  int       `json:"focusPct"`
	GoalPct   int       `json:"goalPct"`
	Mood      int       `json:"mood"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
