package utils

import (
	"fmt"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// UTCTimestamp formats t as RFC3339 in UTC, the wire format for response
// timestamps.
func UTCTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
