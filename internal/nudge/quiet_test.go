package nudge

import (
	"testing"
	"time"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 1, 6, hour, min, 0, 0, time.UTC)
}

func TestQuietActive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rng   string
		local time.Time
		want  bool
	}{
		{"wrap inside late", "23:00-08:00", at(23, 30), true},
		{"wrap inside early", "23:00-08:00", at(7, 59), true},
		{"wrap outside morning", "23:00-08:00", at(8, 30), false},
		{"wrap start inclusive", "23:00-08:00", at(23, 0), true},
		{"wrap end exclusive", "23:00-08:00", at(8, 0), false},
		{"wrap just before start", "23:00-08:00", at(22, 59), false},
		{"plain inside", "13:00-14:00", at(13, 30), true},
		{"plain end exclusive", "13:00-14:00", at(14, 0), false},
		{"plain before", "13:00-14:00", at(12, 59), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := quietActive(tc.rng, tc.local); got != tc.want {
				t.Fatalf("quietActive(%q, %s) = %v, want %v", tc.rng, tc.local.Format("15:04"), got, tc.want)
			}
		})
	}
}

func TestQuietActiveMalformed(t *testing.T) {
	t.Parallel()

	for _, rng := range []string{
		"",
		"23:00",
		"23-08",
		"25:00-08:00",
		"23:00-08:61",
		"aa:bb-cc:dd",
		"23:00 - 08:00",
	} {
		if quietActive(rng, at(23, 30)) {
			t.Errorf("quietActive(%q) = true, want false", rng)
		}
	}
}
