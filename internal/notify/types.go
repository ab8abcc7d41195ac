// Package notify delivers nudge notifications through exactly one
// active route: local desktop (D-Bus), Telegram, or a disabled stub.
package notify

import (
	"context"
	"fmt"
	"time"
)

// Notification is one reminder to show the user.
type Notification struct {
	// Key identifies the (occurrence, phase) pair for status/history.
	Key   string
	Title string
	Body  string
	At    time.Time
}

// Route is a single delivery channel. The scheduler never branches on
// delivery mechanics beyond "is the active route enabled".
type Route interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// DeliveryError wraps a sink failure. The scheduler records it but does
// not roll back its dedupe write (avoids storms on a flaky sink).
type DeliveryError struct {
	Route string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify via %s: %v", e.Route, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Config controls the delivery service.
type Config struct {
	// Route selects the active channel: "desktop", "telegram" or "none".
	// Unknown values fall back to the stub.
	Route       string
	RatePerSec  int
	SendTimeout time.Duration

	Telegram TelegramConfig
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}

// HistoryItem is one delivered (or attempted) notification, kept for
// the status endpoint.
type HistoryItem struct {
	At    time.Time `json:"at"`
	Key   string    `json:"key"`
	Title string    `json:"title"`
	Error string    `json:"error,omitempty"`
}

// String keeps bus activity entries compact: the key, plus the error
// when delivery failed.
func (h HistoryItem) String() string {
	if h.Error != "" {
		return h.Key + ": " + h.Error
	}
	return h.Key
}
