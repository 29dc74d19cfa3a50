package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRelative(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := map[string]time.Time{
		"just now": now.Add(-10 * time.Second),
		"5m ago":   now.Add(-5 * time.Minute),
		"3h ago":   now.Add(-3 * time.Hour),
		"2d ago":   now.Add(-50 * time.Hour),
		"in 30m":   now.Add(30 * time.Minute),
		"in 45s":   now.Add(45 * time.Second),
	}
	for want, ts := range cases {
		require.Equal(t, want, Relative(ts, now), "ts=%s", ts)
	}
}

func TestDate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "-", Date(time.Time{}, ""))

	ts := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	require.Equal(t, ts.In(time.Local).Format("2006-01-02"), Date(ts, "2006-01-02"))
	require.Equal(t, ts.In(time.Local).Format(defaultDateLayout), Date(ts, ""))
}
