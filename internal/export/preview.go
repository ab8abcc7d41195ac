// Package export renders read-only views of the calendar: a dry-run
// plan of the Markdown vault layout, and an ICS feed of expanded
// occurrences. Nothing in this package ever writes to the vault.
package export

import (
	"fmt"
	"path"
	"strings"

	"neuroboost/internal/model"
)

// PlannedFile is one entry of the dry-run plan.
type PlannedFile struct {
	RelPath string `json:"relPath"`
	Bytes   int    `json:"bytes"`
}

// Plan is the dry-run response: a count of everything that would be
// written and a preview of the first entries.
type Plan struct {
	Mode    string        `json:"mode"`
	Planned int           `json:"planned"`
	Files   []PlannedFile `json:"files"`
}

const (
	vaultRoot  = "NeuroBoost"
	previewCap = 25
)

// DryRun composes the vault plan for the given tasks and events.
// Tasks land under NeuroBoost/tasks/, events under
// NeuroBoost/calendar/<year>/. Paths that escape the vault root are
// dropped.
func DryRun(tasks []model.Task, events []model.Event) Plan {
	ops := make([]PlannedFile, 0, len(tasks)+len(events))

	for _, t := range tasks {
		rel := path.Join(vaultRoot, "tasks", t.ID+".md")
		ops = append(ops, PlannedFile{RelPath: rel, Bytes: len(taskMarkdown(t))})
	}
	for _, ev := range events {
		day := ev.StartsAt.UTC().Format("2006-01-02")
		rel := path.Join(vaultRoot, "calendar", day[:4], fmt.Sprintf("%s__%s.md", day, ev.ID))
		ops = append(ops, PlannedFile{RelPath: rel, Bytes: len(eventMarkdown(ev))})
	}

	safe := ops[:0]
	for _, op := range ops {
		if confined(op.RelPath) {
			safe = append(safe, op)
		}
	}

	files := safe
	if len(files) > previewCap {
		files = files[:previewCap]
	}
	return Plan{Mode: "dry-run", Planned: len(safe), Files: files}
}

// confined rejects anything that would resolve outside the vault root.
func confined(rel string) bool {
	clean := path.Clean(rel)
	if strings.Contains(clean, "..") {
		return false
	}
	return strings.HasPrefix(clean, vaultRoot+"/")
}

func taskMarkdown(t model.Task) string {
	lines := []string{
		"---",
		"id: " + t.ID,
		"type: task",
		fmt.Sprintf("priority: %d", t.Priority),
		"status: " + string(t.Status),
		`tags: ["#neuroboost"]`,
		"---",
		"",
		"# " + t.Title,
		t.Description,
	}
	return strings.Join(lines, "\n")
}

func eventMarkdown(ev model.Event) string {
	lines := []string{
		"---",
		"id: " + ev.ID,
		"type: event",
		fmt.Sprintf("all_day: %t", ev.AllDay),
		"rrule: " + ev.RecurrenceRule,
		"starts_at_utc: " + ev.StartsAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		"ends_at_utc: " + ev.EndsAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		`tags: ["#neuroboost","#calendar"]`,
		"---",
		"",
		"# " + ev.Title,
	}
	return strings.Join(lines, "\n")
}
