package nudge

import (
	"regexp"
	"time"
)

var quietRangeRe = regexp.MustCompile(`^(\d{2}):(\d{2})-(\d{2}):(\d{2})$`)

// parseQuietRange decodes "HH:MM-HH:MM" into minutes-of-day bounds.
// ok is false for empty or malformed input (quiet hours never active).
func parseQuietRange(s string) (startMin, endMin int, ok bool) {
	m := quietRangeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	h1, m1 := atoi2(m[1]), atoi2(m[2])
	h2, m2 := atoi2(m[3]), atoi2(m[4])
	if h1 > 23 || h2 > 23 || m1 > 59 || m2 > 59 {
		return 0, 0, false
	}
	return h1*60 + m1, h2*60 + m2, true
}

// atoi2 parses exactly two digits (the regexp guarantees the shape).
func atoi2(s string) int { return int(s[0]-'0')*10 + int(s[1]-'0') }

// quietActive reports whether local falls inside the configured range.
// The range is [start, end): inclusive of the opening minute, exclusive
// of the closing one. Wraparound ranges ("23:00-08:00") span midnight.
func quietActive(rangeStr string, local time.Time) bool {
	start, end, ok := parseQuietRange(rangeStr)
	if !ok {
		return false
	}
	mins := local.Hour()*60 + local.Minute()
	if start <= end {
		return mins >= start && mins < end
	}
	return mins >= start || mins < end
}
