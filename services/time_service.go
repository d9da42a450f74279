package services

import (
	"strconv"
	"strings"
	"time"
)

// GetCurrentTimestamp returns now as ISO-8601.
func GetCurrentTimestamp(now time.Time) string {
	return now.Format(time.RFC3339)
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp; a trailing "Z" means UTC. Naive
// timestamps are read in loc. The zone of an explicit offset is preserved so the
// formatted date matches the source wall clock.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// timestampFromValue accepts an ISO string or epoch seconds.
func timestampFromValue(v any, loc *time.Location) (time.Time, bool) {
	switch vv := v.(type) {
	case string:
		if t, ok := ParseTimestamp(vv, loc); ok {
			return t, true
		}
		if sec, err := strconv.ParseInt(strings.TrimSpace(vv), 10, 64); err == nil && len(strings.TrimSpace(vv)) >= 9 {
			return time.Unix(sec, 0).In(loc), true
		}
	case float64:
		if vv > 0 {
			return time.Unix(int64(vv), 0).In(loc), true
		}
	case int64:
		if vv > 0 {
			return time.Unix(vv, 0).In(loc), true
		}
	case int:
		if vv > 0 {
			return time.Unix(int64(vv), 0).In(loc), true
		}
	}
	return time.Time{}, false
}
