package planner

import (
	"fmt"
	"math"
	"sort"

	"github.com/louisbranch/campplanner/internal/services/camps/domain"
)

// CostQuery scopes Cost. Empty fields select everything.
type CostQuery struct {
	ChildID  string
	FromWeek string
	ToWeek   string
}

// CostLine is the charge for one confirmed slot. Amounts are in cents.
type CostLine struct {
	ChildID       string
	WeekID        string
	CampID        string
	WeeklyCents   int64
	DiscountCents int64
	Override      bool
}

// CostBreakdown totals confirmed slots. Unpriced lists confirmed slots whose
// camp has no usable price and no override.
type CostBreakdown struct {
	Lines         []CostLine
	Unpriced      []Slot
	SubtotalCents int64
	DiscountCents int64
	TotalCents    int64
}

// Cost sums the effective weekly price of confirmed slots in scope. When
// two or more children in scope share a camp-week at a camp with a sibling
// discount, every child but the first by id gets the discount.
func (p *Planner) Cost(q CostQuery) (CostBreakdown, error) {
	from, to := 0, domain.WeekCount-1
	if q.FromWeek != "" {
		w, ok := domain.WeekByID(q.FromWeek)
		if !ok {
			return CostBreakdown{}, invalid("from_week", fmt.Sprintf("unknown week %q", q.FromWeek))
		}
		from = w.Index
	}
	if q.ToWeek != "" {
		w, ok := domain.WeekByID(q.ToWeek)
		if !ok {
			return CostBreakdown{}, invalid("to_week", fmt.Sprintf("unknown week %q", q.ToWeek))
		}
		to = w.Index
	}
	if from > to {
		return CostBreakdown{}, invalid("from_week", "week range is reversed")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var out CostBreakdown
	type campWeek struct{ camp, week string }
	groups := make(map[campWeek][]int)
	for _, s := range p.slots {
		if s.State != Confirmed {
			continue
		}
		if q.ChildID != "" && s.ChildID != q.ChildID {
			continue
		}
		if idx := weekIndex(s.WeekID); idx < from || idx > to {
			continue
		}
		camp, known := p.catalog.Camp(s.CampID)
		line := CostLine{ChildID: s.ChildID, WeekID: s.WeekID, CampID: s.CampID}
		switch {
		case s.CostOverride != nil:
			line.WeeklyCents = int64(*s.CostOverride) * 100
			line.Override = true
		case known:
			price, ok := domain.NumericPrice(camp)
			if !ok {
				out.Unpriced = append(out.Unpriced, s)
				continue
			}
			line.WeeklyCents = int64(price.Lo) * 100
		default:
			out.Unpriced = append(out.Unpriced, s)
			continue
		}
		out.Lines = append(out.Lines, line)
	}
	sort.Slice(out.Lines, func(i, j int) bool {
		a, b := out.Lines[i], out.Lines[j]
		if a.ChildID != b.ChildID {
			return a.ChildID < b.ChildID
		}
		return weekIndex(a.WeekID) < weekIndex(b.WeekID)
	})
	sortSlots(out.Unpriced)

	for i, line := range out.Lines {
		k := campWeek{line.CampID, line.WeekID}
		groups[k] = append(groups[k], i)
	}
	for k, idxs := range groups {
		if len(idxs) < 2 {
			continue
		}
		camp, ok := p.catalog.Camp(k.camp)
		if !ok || !camp.HasSiblingDiscount {
			continue
		}
		rate := p.siblingRate
		if camp.SiblingDiscountRate != nil {
			rate = *camp.SiblingDiscountRate
		}
		// Lines are sorted by child id, so idxs[0] is the first child.
		for _, i := range idxs[1:] {
			out.Lines[i].DiscountCents = int64(math.Round(float64(out.Lines[i].WeeklyCents) * rate))
		}
	}

	for _, line := range out.Lines {
		out.SubtotalCents += line.WeeklyCents
		out.DiscountCents += line.DiscountCents
	}
	out.TotalCents = out.SubtotalCents - out.DiscountCents
	return out, nil
}
