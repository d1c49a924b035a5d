package domain

import (
	"fmt"
	"time"
)

// SummerYear is the season every week in the catalog belongs to.
const SummerYear = 2026

// WeekCount is the number of summer weeks.
const WeekCount = 11

// SummerWeek is one Monday to Friday camp week.
type SummerWeek struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
}

var summerWeeks = buildWeeks(time.Date(SummerYear, time.June, 8, 0, 0, 0, 0, time.UTC))

func buildWeeks(firstMonday time.Time) []SummerWeek {
	weeks := make([]SummerWeek, 0, WeekCount)
	for i := 0; i < WeekCount; i++ {
		start := firstMonday.AddDate(0, 0, 7*i)
		end := start.AddDate(0, 0, 4)
		weeks = append(weeks, SummerWeek{
			ID:    fmt.Sprintf("w%d", i+1),
			Index: i,
			Label: weekLabel(start, end),
			Start: start.Format(time.DateOnly),
			End:   end.Format(time.DateOnly),
		})
	}
	return weeks
}

func weekLabel(start, end time.Time) string {
	if start.Month() == end.Month() {
		return fmt.Sprintf("%s %d-%d", start.Format("Jan"), start.Day(), end.Day())
	}
	return fmt.Sprintf("%s %d-%s %d", start.Format("Jan"), start.Day(), end.Format("Jan"), end.Day())
}

// SummerWeeks returns the ordered week sequence.
func SummerWeeks() []SummerWeek {
	out := make([]SummerWeek, len(summerWeeks))
	copy(out, summerWeeks)
	return out
}

// WeekByID looks up a week.
func WeekByID(id string) (SummerWeek, bool) {
	for _, w := range summerWeeks {
		if w.ID == id {
			return w, true
		}
	}
	return SummerWeek{}, false
}

// ValidWeek reports whether id names a summer week.
func ValidWeek(id string) bool {
	_, ok := WeekByID(id)
	return ok
}

// Days returns the five weekday dates of the week.
func (w SummerWeek) Days() []time.Time {
	start, err := time.Parse(time.DateOnly, w.Start)
	if err != nil {
		return nil
	}
	days := make([]time.Time, 0, 5)
	for i := 0; i < 5; i++ {
		days = append(days, start.AddDate(0, 0, i))
	}
	return days
}

// Holiday reports whether day is a US federal holiday observed on a weekday
// during the summer. Independence Day moves to Friday or Monday when it
// falls on a weekend.
func Holiday(day time.Time) bool {
	y, m, d := day.Date()
	switch m {
	case time.June:
		return d == 19 || observed(y, time.June, 19, day)
	case time.July:
		return d == 4 || observed(y, time.July, 4, day)
	case time.September:
		// Labor Day: first Monday.
		return day.Weekday() == time.Monday && d <= 7
	}
	return false
}

func observed(year int, month time.Month, dayOfMonth int, day time.Time) bool {
	actual := time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)
	switch actual.Weekday() {
	case time.Saturday:
		return sameDate(actual.AddDate(0, 0, -1), day)
	case time.Sunday:
		return sameDate(actual.AddDate(0, 0, 1), day)
	}
	return false
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
