package helpers

import (
	"fmt"
	"time"
)

const defaultDateLayout = "2006-01-02 15:04 MST"

// Date renders ts in local time, or "-" for the zero time.
func Date(ts time.Time, layout string) string {
	if ts.IsZero() {
		return "-"
	}
	if layout == "" {
		layout = defaultDateLayout
	}
	return ts.In(time.Local).Format(layout)
}

// Relative describes ts as seen from now, e.g. "5m ago" or "in 2h".
func Relative(ts, now time.Time) string {
	diff := now.Sub(ts)
	if diff < 0 {
		return "in " + span(-diff)
	}
	if diff < time.Minute {
		return "just now"
	}
	return span(diff) + " ago"
}

func span(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d >= day:
		return fmt.Sprintf("%dd", d/day)
	case d >= time.Hour:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d >= time.Minute:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return fmt.Sprintf("%ds", d/time.Second)
}
