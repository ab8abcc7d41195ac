package nudge

import (
	"fmt"
	"time"
)

// plannerHour is the local hour (fixed UTC+3) of the weekly planning
// nudge: Sunday 18:00.
const plannerHour = 18

// isoWeekKey renders the ISO week of t, e.g. "2025-W02".
func isoWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// plannerKey is the dedupe key for the weekly planner nudge.
func plannerKey(week string) string {
	return fmt.Sprintf("planner:%s:%d", week, plannerHour)
}

// NextPlanner returns the next Sunday 18:00 in loc strictly after now.
func NextPlanner(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	daysUntilSunday := (int(time.Sunday) - int(local.Weekday()) + 7) % 7
	target := time.Date(local.Year(), local.Month(), local.Day(), plannerHour, 0, 0, 0, loc)
	target = target.AddDate(0, 0, daysUntilSunday)
	if !target.After(local) {
		target = target.AddDate(0, 0, 7)
	}
	return target
}
