package util

import (
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTime accepts RFC3339 text, zone-less timestamps read as UTC, and positive unix seconds or milliseconds.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		switch {
		case n <= 0:
			return time.Time{}, false
		case n >= 1e11: // past year 5138 in seconds, so milliseconds
			return time.UnixMilli(n), true
		default:
			return time.Unix(n, 0), true
		}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func ParseTimeDefault(s string, def time.Time) time.Time {
	t, ok := ParseTime(s)
	if !ok {
		return def
	}
	return t
}
