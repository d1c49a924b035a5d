package planner

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
)

func confirm(t *testing.T, p *Planner, c domain.Child, week, camp string, opts AssignOptions) {
	t.Helper()
	ctx := context.Background()
	if _, err := p.Assign(ctx, c, week, camp, opts); err != nil {
		t.Fatalf("assign %s/%s: %v", c.ID, week, err)
	}
	if _, err := p.Confirm(ctx, c.ID, week); err != nil {
		t.Fatalf("confirm %s/%s: %v", c.ID, week, err)
	}
}

func TestCostSiblingDiscount(t *testing.T) {
	p, _ := newTestPlanner(t)
	confirm(t, p, child("a", 9), "w3", "surf", AssignOptions{})
	confirm(t, p, child("b", 10), "w3", "surf", AssignOptions{})

	got, err := p.Cost(CostQuery{})
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	weekly := int64(40000)
	want := CostBreakdown{
		Lines: []CostLine{
			{ChildID: "a", WeekID: "w3", CampID: "surf", WeeklyCents: weekly},
			{ChildID: "b", WeekID: "w3", CampID: "surf", WeeklyCents: weekly, DiscountCents: 4000},
		},
		SubtotalCents: 2 * weekly,
		DiscountCents: 4000,
		TotalCents:    2*weekly - 4000,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cost mismatch (-want +got):\n%s", diff)
	}
}

func TestCostAdditivity(t *testing.T) {
	p, _ := newTestPlanner(t)
	confirm(t, p, child("a", 9), "w3", "surf", AssignOptions{})
	confirm(t, p, child("b", 10), "w3", "surf", AssignOptions{})
	confirm(t, p, child("a", 9), "w4", "art", AssignOptions{})
	confirm(t, p, child("b", 10), "w4", "art", AssignOptions{})
	confirm(t, p, child("b", 10), "w5", "surf", AssignOptions{CostOverride: domain.IntPtr(300)})

	all, err := p.Cost(CostQuery{})
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	var perChild int64
	for _, id := range []string{"a", "b"} {
		c, err := p.Cost(CostQuery{ChildID: id})
		if err != nil {
			t.Fatalf("Cost(%s): %v", id, err)
		}
		if c.DiscountCents != 0 {
			t.Fatalf("single-child discount = %d, want 0", c.DiscountCents)
		}
		perChild += c.TotalCents
	}
	// Art has no sibling discount, so only the shared surf week is discounted.
	if all.DiscountCents != 4000 {
		t.Fatalf("discount = %d, want 4000", all.DiscountCents)
	}
	if all.TotalCents != perChild-all.DiscountCents {
		t.Fatalf("total = %d, want %d", all.TotalCents, perChild-all.DiscountCents)
	}
}

func TestCostOnlyCountsConfirmed(t *testing.T) {
	p, _ := newTestPlanner(t)
	ctx := context.Background()
	if _, err := p.Assign(ctx, child("a", 9), "w1", "surf", AssignOptions{}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	confirm(t, p, child("a", 9), "w2", "tbd", AssignOptions{})
	confirm(t, p, child("a", 9), "w6", "art", AssignOptions{})

	got, err := p.Cost(CostQuery{FromWeek: "w1", ToWeek: "w5"})
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	if got.TotalCents != 0 || len(got.Lines) != 0 {
		t.Fatalf("cost = %+v, want nothing priced in range", got)
	}
	if len(got.Unpriced) != 1 || got.Unpriced[0].CampID != "tbd" {
		t.Fatalf("unpriced = %+v, want tbd", got.Unpriced)
	}

	got, err = p.Cost(CostQuery{FromWeek: "w6"})
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	if got.TotalCents != 25000 {
		t.Fatalf("total = %d, want 25000", got.TotalCents)
	}
}

func TestCostRejectsBadRange(t *testing.T) {
	p, _ := newTestPlanner(t)
	if _, err := p.Cost(CostQuery{FromWeek: "w5", ToWeek: "w2"}); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if _, err := p.Cost(CostQuery{ToWeek: "w0"}); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestDetectConflictsBudgetAndClosed(t *testing.T) {
	p, _ := newTestPlanner(t)
	confirm(t, p, child("a", 9), "w1", "surf", AssignOptions{})
	confirm(t, p, child("a", 9), "w2", "shut", AssignOptions{})

	conflicts := p.DetectConflicts(nil, domain.IntPtr(450))
	var kinds []ConflictKind
	for _, c := range conflicts {
		kinds = append(kinds, c.Kind)
	}
	if diff := cmp.Diff([]ConflictKind{CampClosed, OverBudget}, kinds); diff != "" {
		t.Fatalf("kinds mismatch (-want +got):\n%s", diff)
	}
	if got := conflicts[1].Metadata["TotalCents"]; got != "50000" {
		t.Fatalf("total = %q, want 50000", got)
	}
	if len(p.DetectConflicts(nil, domain.IntPtr(500))) != 1 {
		t.Fatal("budget at the total should not warn")
	}
}

func TestDetectConflictsCampMissing(t *testing.T) {
	p, _ := newTestPlanner(t)
	confirm(t, p, child("a", 9), "w1", "art", AssignOptions{})
	snap, _ := domain.NewSnapshot(2, []domain.Camp{{ID: "surf", Name: "Surf"}}, testCatalog(t).LoadedAt())
	p.SetCatalog(snap)
	conflicts := p.DetectConflicts(nil, nil)
	if len(conflicts) != 1 || conflicts[0].Kind != CampMissing {
		t.Fatalf("conflicts = %+v, want camp missing", conflicts)
	}
}
