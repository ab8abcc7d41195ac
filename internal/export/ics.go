package export

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"neuroboost/internal/model"
)

// ICS renders the given occurrences as an iCalendar feed. UIDs reuse
// the occurrence IDs so re-fetches update in place instead of
// duplicating.
func ICS(occs []model.Occurrence, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//neuroboost//calendar//EN")

	for _, occ := range occs {
		ev := cal.AddEvent(occ.ID)
		ev.SetDtStampTime(now.UTC())
		ev.SetStartAt(occ.Start.UTC())
		ev.SetEndAt(occ.End.UTC())
		ev.SetSummary(occ.Title)
	}
	return cal.Serialize()
}
