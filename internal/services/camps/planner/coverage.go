package planner

import (
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
)

// CoverageStatus compares a week's camp hours with a parent's work hours.
type CoverageStatus string

const (
	Uncovered        CoverageStatus = "uncovered"
	PartiallyCovered CoverageStatus = "partially_covered"
	FullyCovered     CoverageStatus = "fully_covered"
	Exceeds          CoverageStatus = "exceeds"
)

// WeekCoverage is one week's result. Minutes are summed over the week's
// working days; holidays are not working days.
type WeekCoverage struct {
	WeekID       string
	CampID       string
	Status       CoverageStatus
	WorkMinutes  int
	GapMinutes   int
	ExtraMinutes int
	// HoursKnown is false when the booked camp does not publish hours.
	HoursKnown bool
}

// Coverage reports, for every summer week, how well the child's booked
// camp covers schedule. A camp without published hours counts as partial.
func (p *Planner) Coverage(childID string, schedule domain.WorkSchedule) []WeekCoverage {
	p.mu.Lock()
	defer p.mu.Unlock()

	weeks := domain.SummerWeeks()
	out := make([]WeekCoverage, 0, len(weeks))
	for _, week := range weeks {
		wc := WeekCoverage{WeekID: week.ID}
		var workDays []domain.TimeRange
		for _, day := range week.Days() {
			if domain.Holiday(day) {
				continue
			}
			if hours, ok := schedule.HoursOn(day.Weekday()); ok {
				workDays = append(workDays, hours)
				wc.WorkMinutes += hours.Minutes()
			}
		}

		slot, booked := p.slots[Key{ChildID: childID, WeekID: week.ID}]
		if !booked || !slot.Active() {
			wc.Status = Uncovered
			wc.GapMinutes = wc.WorkMinutes
			out = append(out, wc)
			continue
		}
		wc.CampID = slot.CampID
		camp, known := p.catalog.Camp(slot.CampID)
		if !known {
			wc.Status = Uncovered
			wc.GapMinutes = wc.WorkMinutes
			out = append(out, wc)
			continue
		}
		hours, ok := camp.DailyHours()
		if !ok {
			wc.Status = PartiallyCovered
			out = append(out, wc)
			continue
		}
		wc.HoursKnown = true
		for _, work := range workDays {
			gap, extra := compareDay(work, hours)
			wc.GapMinutes += gap
			wc.ExtraMinutes += extra
		}
		wc.Status = status(wc)
		out = append(out, wc)
	}
	return out
}

// compareDay returns the work minutes camp leaves uncovered and the camp
// minutes outside work.
func compareDay(work, camp domain.TimeRange) (gap, extra int) {
	overlap := min(work.End, camp.End) - max(work.Start, camp.Start)
	if overlap < 0 {
		overlap = 0
	}
	return work.Minutes() - overlap, camp.Minutes() - overlap
}

func status(wc WeekCoverage) CoverageStatus {
	switch {
	case wc.WorkMinutes > 0 && wc.GapMinutes >= wc.WorkMinutes:
		return Uncovered
	case wc.GapMinutes > 0:
		return PartiallyCovered
	case wc.ExtraMinutes > 0:
		return Exceeds
	}
	return FullyCovered
}
