package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseClock converts an "HH:MM" time of day to minutes after midnight.
func ParseClock(value string) (int, error) {
	value = strings.TrimSpace(value)
	hh, mm, ok := strings.Cut(value, ":")
	if !ok {
		return 0, fmt.Errorf("clock %q: want HH:MM", value)
	}
	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > 24 {
		return 0, fmt.Errorf("clock %q: bad hour", value)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("clock %q: bad minute", value)
	}
	total := hours*60 + minutes
	if total > 24*60 {
		return 0, fmt.Errorf("clock %q: past midnight", value)
	}
	return total, nil
}

// TimeRange is a half-open span of minutes after midnight.
type TimeRange struct {
	Start int
	End   int
}

// ParseTimeRange parses a start/end pair. Both must be set and start must
// come before end.
func ParseTimeRange(start, end string) (TimeRange, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TimeRange{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TimeRange{}, err
	}
	if e <= s {
		return TimeRange{}, fmt.Errorf("time range %s-%s: end must follow start", start, end)
	}
	return TimeRange{Start: s, End: e}, nil
}

// Minutes returns the length of the range.
func (r TimeRange) Minutes() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}
