// Package nudge runs the reminder loop: on a fixed cadence it asks the
// occurrence source for everything starting soon, picks the T-5 and T-1
// phases, and pushes at most one notification per (occurrence, phase)
// pair through the notification sink.
//
// # Loop shape
//
// One tick is fetch → evaluate → re-arm. The next tick is scheduled
// only after the current one finishes (including its data fetch), so
// ticks never overlap even under slow I/O. A tick that fails to fetch
// is skipped entirely and retried on the next cadence.
//
// # State
//
// The dedupe map and the weekly planner ack set live in the scheduler,
// shared under a mutex with the planner trigger and with ack calls
// arriving over HTTP. Both are mirrored
// best-effort into a state file so a restart does not replay
// notifications; a crash between send and persist can duplicate at
// most one nudge.
//
// # Quiet hours
//
// A local-time range (fixed UTC+3 display zone) during which nudges
// are suppressed but still dedupe-marked, so a quiet-hours occurrence
// is considered exactly once instead of every tick.
package nudge
