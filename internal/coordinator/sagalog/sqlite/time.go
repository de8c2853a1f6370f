package sqlite

import (
	"fmt"
	"time"
)

// Timestamps are TEXT in UTC with a fixed-width zone so rows sort
// lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: saga log time %q: %w", s, err)
	}
	return t, nil
}
