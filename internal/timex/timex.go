package timex

import (
	"fmt"
	"time"
)

// Layouts accepted for client-supplied date strings, tried in order.
// Older clients send bare dates, newer ones RFC3339 with fractional seconds.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NowMicros returns the current UTC instant in Unix microseconds.
func NowMicros() int64 {
	return time.Now().UTC().UnixMicro()
}

// FromMicros converts Unix microseconds to a UTC time.
func FromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// ToMicros converts a time to Unix microseconds.
func ToMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

// RFC3339 renders Unix microseconds as an RFC3339 string for logs and wire
// payloads.
func RFC3339(us int64) string {
	return time.UnixMicro(us).UTC().Format(time.RFC3339Nano)
}

// ParseDate parses a client-supplied date string in any accepted layout and
// normalizes it to UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseDateToMicros parses a client-supplied date string into Unix
// microseconds.
func ParseDateToMicros(s string) (int64, error) {
	t, err := ParseDate(s)
	if err != nil {
		return 0, err
	}
	return t.UnixMicro(), nil
}
