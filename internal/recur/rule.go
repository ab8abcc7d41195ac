// Package recur parses recurrence rule strings into a small tagged
// variant. Rules are parsed once at the data boundary; expansion works
// on the parsed form and never re-reads the raw string.
//
// Supported grammar (a subset of iCalendar RRULE):
//
//	FREQ=WEEKLY[;INTERVAL=n][;COUNT=n][;BYDAY=MO,TU,...]
//
// An optional leading "RRULE:" prefix is tolerated. The empty string
// means "no recurrence". Everything else is a *RuleError.
package recur

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Freq is the recurrence frequency tag.
type Freq int

const (
	// None marks a single, non-recurring event.
	None Freq = iota
	// Weekly repeats at fixed multiples of seven days from the anchor.
	Weekly
)

// Rule is the parsed recurrence definition.
//
// The zero value is "no recurrence".
type Rule struct {
	Freq     Freq
	Interval int            // weeks between instances; 0 and 1 both mean every week
	Count    int            // total number of instances; 0 means bounded by the query window
	ByDay    []time.Weekday // optional weekday filter; empty means anchor weekday only
}

// None reports whether the rule describes a single occurrence.
func (r Rule) None() bool { return r.Freq == None }

// RuleError reports a malformed or unsupported recurrence rule string.
type RuleError struct {
	Raw    string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("recurrence rule %q: %s", e.Raw, e.Reason)
}

var weekdayNames = map[string]time.Weekday{
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
	"SU": time.Sunday,
}

// Parse converts a rule string into its tagged form.
func Parse(raw string) (Rule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Rule{}, nil
	}
	s = strings.TrimPrefix(s, "RRULE:")

	var (
		rule    Rule
		sawFreq bool
	)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, &RuleError{Raw: raw, Reason: "component without '=': " + part}
		}
		k = strings.ToUpper(strings.TrimSpace(k))
		v = strings.TrimSpace(v)

		switch k {
		case "FREQ":
			sawFreq = true
			if !strings.EqualFold(v, "WEEKLY") {
				return Rule{}, &RuleError{Raw: raw, Reason: "unsupported FREQ " + v}
			}
			rule.Freq = Weekly
		case "INTERVAL":
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return Rule{}, &RuleError{Raw: raw, Reason: "bad INTERVAL " + v}
			}
			rule.Interval = n
		case "COUNT":
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return Rule{}, &RuleError{Raw: raw, Reason: "bad COUNT " + v}
			}
			rule.Count = n
		case "BYDAY":
			for _, day := range strings.Split(v, ",") {
				wd, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(day))]
				if !ok {
					return Rule{}, &RuleError{Raw: raw, Reason: "bad BYDAY entry " + day}
				}
				rule.ByDay = append(rule.ByDay, wd)
			}
		default:
			return Rule{}, &RuleError{Raw: raw, Reason: "unsupported component " + k}
		}
	}
	if !sawFreq {
		return Rule{}, &RuleError{Raw: raw, Reason: "missing FREQ"}
	}
	return rule, nil
}

// ROption builds the rrule-go options for a parsed rule anchored at the
// given instant. Calling it on a None rule is a programming error.
func (r Rule) ROption(anchor time.Time) rrule.ROption {
	opt := rrule.ROption{
		Freq:    rrule.WEEKLY,
		Dtstart: anchor.UTC(),
	}
	if r.Interval > 1 {
		opt.Interval = r.Interval
	}
	if r.Count > 0 {
		opt.Count = r.Count
	}
	for _, wd := range r.ByDay {
		opt.Byweekday = append(opt.Byweekday, rruleWeekday(wd))
	}
	return opt
}

func rruleWeekday(wd time.Weekday) rrule.Weekday {
	switch wd {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}
