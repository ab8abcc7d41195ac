// Package store provides the persistence layer for tasks, events,
// per-occurrence exceptions and reflections.
//
// The only real backend is SQLite (modernc.org/sqlite, pure Go). The
// "none" driver disables persistence; callers get ErrDisabled and the
// HTTP layer turns that into 503s on data routes.
package store
