package planner

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/louisbranch/campplanner/internal/services/camps/domain"
)

// ConflictKind names a warnable planner condition.
type ConflictKind string

const (
	AgeMismatch ConflictKind = "age_mismatch"
	OverBudget  ConflictKind = "over_budget"
	CampClosed  ConflictKind = "camp_closed"
	CampMissing ConflictKind = "camp_missing"
)

// Conflict is a warning about the current plan. It never blocks a change.
type Conflict struct {
	Kind     ConflictKind
	ChildID  string
	WeekID   string
	CampID   string
	Detail   string
	Metadata map[string]string
}

// DetectConflicts lists warnings for live slots: ages outside the camp's
// range, camps that closed or left the catalog, and confirmed cost above
// budgetCap (whole dollars, nil for no cap).
func (p *Planner) DetectConflicts(children map[string]domain.Child, budgetCap *int) []Conflict {
	var out []Conflict
	p.mu.Lock()
	for _, s := range p.slots {
		if !s.Active() {
			continue
		}
		base := Conflict{ChildID: s.ChildID, WeekID: s.WeekID, CampID: s.CampID}
		camp, ok := p.catalog.Camp(s.CampID)
		if !ok {
			if p.catalog != nil {
				c := base
				c.Kind = CampMissing
				c.Detail = fmt.Sprintf("camp %s is no longer in the catalog", s.CampID)
				out = append(out, c)
			}
			continue
		}
		if camp.IsClosed {
			c := base
			c.Kind = CampClosed
			c.Detail = fmt.Sprintf("%s is closed", camp.Name)
			c.Metadata = map[string]string{"CampName": camp.Name}
			out = append(out, c)
		}
		if child, ok := children[s.ChildID]; ok && child.AgeAsOfSummer != nil && !ageFits(*child.AgeAsOfSummer, camp) {
			c := base
			c.Kind = AgeMismatch
			c.Detail = fmt.Sprintf("%s is %d; %s takes ages %s-%s", child.Name, *child.AgeAsOfSummer, camp.Name, optAge(camp.MinAge), optAge(camp.MaxAge))
			c.Metadata = map[string]string{
				"ChildName": child.Name,
				"CampName":  camp.Name,
				"MinAge":    optAge(camp.MinAge),
				"MaxAge":    optAge(camp.MaxAge),
			}
			out = append(out, c)
		}
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ChildID != b.ChildID {
			return a.ChildID < b.ChildID
		}
		if a.WeekID != b.WeekID {
			return weekIndex(a.WeekID) < weekIndex(b.WeekID)
		}
		return a.Kind < b.Kind
	})

	if budgetCap != nil {
		cost, err := p.Cost(CostQuery{})
		if err == nil && cost.TotalCents > int64(*budgetCap)*100 {
			out = append(out, Conflict{
				Kind:   OverBudget,
				Detail: fmt.Sprintf("confirmed camps cost %d cents, budget is %d dollars", cost.TotalCents, *budgetCap),
				Metadata: map[string]string{
					"TotalCents": strconv.FormatInt(cost.TotalCents, 10),
					"BudgetCap":  strconv.Itoa(*budgetCap),
				},
			})
		}
	}
	return out
}
