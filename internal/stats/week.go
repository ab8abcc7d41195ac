// Package stats computes the weekly planned-vs-completed report.
// "Completed" means the event has at least one reflection logged
// against it.
package stats

import (
	"time"

	"neuroboost/internal/model"
)

// Day is one row of the per-day breakdown.
type Day struct {
	Date         string `json:"date"` // YYYY-MM-DD, UTC
	PlannedMin   int    `json:"plannedMin"`
	CompletedMin int    `json:"completedMin"`
}

// Week is the report for one 7-day window.
type Week struct {
	PlannedMin   int   `json:"plannedMin"`
	CompletedMin int   `json:"completedMin"`
	AdherencePct int   `json:"adherencePct"`
	PerDay       []Day `json:"perDay"`
}

// durationMin truncates an event's length to whole minutes.
func durationMin(ev model.Event) int {
	return int(ev.EndsAt.Sub(ev.StartsAt) / time.Minute)
}

// ForWeek reports planned and completed minutes over the 7 days from
// weekStart (a UTC midnight). An event contributes its full duration
// to every day it touches; nothing is clipped at day or week edges.
// reflected marks event IDs that count as completed.
func ForWeek(events []model.Event, reflected map[string]bool, weekStart time.Time) Week {
	weekStart = weekStart.UTC()
	weekEnd := weekStart.Add(7 * 24 * time.Hour)

	var w Week
	var inWindow []model.Event
	for _, ev := range events {
		// Inclusive on both edges, matching the occurrence window.
		if !ev.EndsAt.Before(weekStart) && !ev.StartsAt.After(weekEnd) {
			inWindow = append(inWindow, ev)
			mins := durationMin(ev)
			w.PlannedMin += mins
			if reflected[ev.ID] {
				w.CompletedMin += mins
			}
		}
	}
	if w.PlannedMin > 0 {
		w.AdherencePct = int(float64(w.CompletedMin)/float64(w.PlannedMin)*100 + 0.5)
	}

	w.PerDay = make([]Day, 0, 7)
	for i := 0; i < 7; i++ {
		dayStart := weekStart.Add(time.Duration(i) * 24 * time.Hour)
		dayEnd := dayStart.Add(24 * time.Hour)
		day := Day{Date: dayStart.Format("2006-01-02")}
		for _, ev := range inWindow {
			if !ev.EndsAt.Before(dayStart) && ev.StartsAt.Before(dayEnd) {
				mins := durationMin(ev)
				day.PlannedMin += mins
				if reflected[ev.ID] {
					day.CompletedMin += mins
				}
			}
		}
		w.PerDay = append(w.PerDay, day)
	}
	return w
}
