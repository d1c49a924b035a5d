package userstate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/planner"
	"github.com/louisbranch/campplanner/internal/services/camps/storage"
	"github.com/louisbranch/campplanner/internal/services/camps/storage/memory"
)

var fixedNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func sequence(prefix string) func() (string, error) {
	var mu sync.Mutex
	n := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n), nil
	}
}

type fixture struct {
	store   *memory.Store
	planner *planner.Planner
	agg     *Aggregator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	store.SignIn(domain.User{ID: "u1"})
	snap, _ := domain.NewSnapshot(1, []domain.Camp{
		{ID: "surf", Name: "Surf", MinAge: domain.IntPtr(6), MaxAge: domain.IntPtr(14)},
		{ID: "art", Name: "Art"},
	}, fixedNow)
	p := planner.New(store, planner.WithIDGenerator(sequence("slot-")))
	p.SetCatalog(snap)
	agg := New(store, p, WithIDGenerator(sequence("id")), WithClock(func() time.Time { return fixedNow }))
	if err := agg.Load(context.Background(), domain.User{ID: "u1"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return fixture{store: store, planner: p, agg: agg}
}

func TestMutationsRequireUser(t *testing.T) {
	agg := New(memory.New(), nil)
	_, err := agg.ToggleFavorite(context.Background(), "surf", "")
	if code := apperrors.CodeOf(err); code != apperrors.CodeNotAuthenticated {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeNotAuthenticated)
	}
}

func TestToggleFavorite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	on, err := f.agg.ToggleFavorite(ctx, "surf", "")
	if err != nil || !on {
		t.Fatalf("first toggle = %v, %v; want true", on, err)
	}
	if !f.agg.IsFavorited("surf") {
		t.Fatal("expected surf favorited")
	}
	off, err := f.agg.ToggleFavorite(ctx, "surf", "")
	if err != nil || off {
		t.Fatalf("second toggle = %v, %v; want false", off, err)
	}
	if f.agg.IsFavorited("surf") {
		t.Fatal("expected surf not favorited")
	}
	rows, err := f.store.List(ctx, storage.Favorites, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("stored favorites = %d, want 0", len(rows))
	}
}

func TestToggleFavoriteUnknownChild(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.ToggleFavorite(context.Background(), "surf", "ghost")
	if code := apperrors.CodeOf(err); code != apperrors.CodeNotFound {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeNotFound)
	}
}

func TestPutChildValidates(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.PutChild(context.Background(), domain.Child{Name: "Ella", AgeAsOfSummer: domain.IntPtr(30)})
	if code := apperrors.CodeOf(err); code != apperrors.CodeValidation {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeValidation)
	}
	if got := apperrors.MetadataOf(err)["Field"]; got != "ageasofsummer" {
		t.Fatalf("field = %q, want ageasofsummer", got)
	}

	c, err := f.agg.PutChild(context.Background(), domain.Child{Name: "  Ella ", AgeAsOfSummer: domain.IntPtr(9)})
	if err != nil {
		t.Fatalf("PutChild: %v", err)
	}
	want := domain.Child{ID: "id2", UserID: "u1", Name: "Ella", AgeAsOfSummer: domain.IntPtr(9), Color: "blue"}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatalf("child mismatch (-want +got):\n%s", diff)
	}
	if _, ok := f.agg.ChildrenByID()["id2"]; !ok {
		t.Fatal("expected child in view")
	}
}

func TestRemoveChildCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ella, err := f.agg.PutChild(ctx, domain.Child{Name: "Ella", AgeAsOfSummer: domain.IntPtr(9)})
	if err != nil {
		t.Fatalf("PutChild: %v", err)
	}
	theo, err := f.agg.PutChild(ctx, domain.Child{Name: "Theo", AgeAsOfSummer: domain.IntPtr(7)})
	if err != nil {
		t.Fatalf("PutChild: %v", err)
	}
	for _, week := range []string{"w1", "w2"} {
		if _, err := f.planner.Assign(ctx, ella, week, "surf", planner.AssignOptions{}); err != nil {
			t.Fatalf("Assign %s: %v", week, err)
		}
	}
	if _, err := f.planner.Assign(ctx, theo, "w1", "art", planner.AssignOptions{}); err != nil {
		t.Fatalf("Assign theo: %v", err)
	}
	if _, err := f.agg.ToggleFavorite(ctx, "art", ella.ID); err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}
	if _, err := f.agg.ToggleFavorite(ctx, "surf", ""); err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}

	if err := f.agg.RemoveChild(ctx, ella.ID); err != nil {
		t.Fatalf("RemoveChild: %v", err)
	}

	if _, ok := f.agg.ChildrenByID()[ella.ID]; ok {
		t.Fatal("expected child removed")
	}
	bySlot := f.agg.SlotsByChild()
	if len(bySlot[ella.ID]) != 0 {
		t.Fatalf("slots for removed child = %v", bySlot[ella.ID])
	}
	if len(bySlot[theo.ID]) != 1 {
		t.Fatalf("slots for theo = %d, want 1", len(bySlot[theo.ID]))
	}
	if f.agg.IsFavorited("art") || !f.agg.IsFavorited("surf") {
		t.Fatalf("favorites = %v, want only surf", f.agg.View().Favorites)
	}
	rows, err := f.store.List(ctx, storage.ScheduledSlots, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("stored slots = %d, want 1", len(rows))
	}
}

func TestSavedSearchRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	filter := domain.Filter{
		Search:     "  Surf ",
		Categories: []domain.Category{"Art", "Art"},
		ChildAge:   domain.IntPtr(9),
		SortField:  domain.SortName,
	}
	saved, err := f.agg.SaveSearch(ctx, "Beach week", filter)
	if err != nil {
		t.Fatalf("SaveSearch: %v", err)
	}
	if saved.FilterCount != 3 {
		t.Fatalf("filter count = %d, want 3", saved.FilterCount)
	}
	if !saved.CreatedAt.Equal(fixedNow) {
		t.Fatalf("created at = %v, want %v", saved.CreatedAt, fixedNow)
	}
	got, err := f.agg.LoadSearch(saved.ID)
	if err != nil {
		t.Fatalf("LoadSearch: %v", err)
	}
	if diff := cmp.Diff(filter.Canonical(), got); diff != "" {
		t.Fatalf("filter mismatch (-want +got):\n%s", diff)
	}

	if err := f.agg.DeleteSearch(ctx, saved.ID); err != nil {
		t.Fatalf("DeleteSearch: %v", err)
	}
	if _, err := f.agg.LoadSearch(saved.ID); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("LoadSearch after delete = %v, want not found", err)
	}
}

func TestPutReviewReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	review := domain.Review{
		CampID: "surf", OverallRating: 4, ValueRating: 3, StaffRating: 5,
		ActivitiesRating: 4, SafetyRating: 5, Title: "Great",
	}
	first, err := f.agg.PutReview(ctx, review)
	if err != nil {
		t.Fatalf("PutReview: %v", err)
	}
	review.OverallRating = 2
	second, err := f.agg.PutReview(ctx, review)
	if err != nil {
		t.Fatalf("PutReview again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("review id = %q, want %q", second.ID, first.ID)
	}
	reviews := f.agg.View().Reviews
	if len(reviews) != 1 || reviews[0].OverallRating != 2 {
		t.Fatalf("reviews = %+v, want one with rating 2", reviews)
	}

	review.SafetyRating = 0
	if _, err := f.agg.PutReview(ctx, review); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("PutReview invalid = %v, want validation", err)
	}
}

func TestSquadLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	squad, err := f.agg.CreateSquad(ctx, "Maple Street")
	if err != nil {
		t.Fatalf("CreateSquad: %v", err)
	}
	if squad.ID != "id1" || squad.InviteCode != "ID2" {
		t.Fatalf("squad id = %q, invite = %q, want id1 and ID2", squad.ID, squad.InviteCode)
	}
	if len(f.agg.View().Squads) != 1 {
		t.Fatalf("squads = %d, want 1", len(f.agg.View().Squads))
	}

	f.store.SignIn(domain.User{ID: "u2"})
	other := New(f.store, nil, WithIDGenerator(sequence("other")))
	if err := other.Load(ctx, domain.User{ID: "u2"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(other.View().Squads) != 0 {
		t.Fatalf("unjoined squads = %d, want 0", len(other.View().Squads))
	}
	joined, err := other.JoinSquad(ctx, " "+squad.InviteCode+" ")
	if err != nil {
		t.Fatalf("JoinSquad: %v", err)
	}
	if joined.ID != squad.ID {
		t.Fatalf("joined = %q, want %q", joined.ID, squad.ID)
	}
	if _, err := other.JoinSquad(ctx, squad.InviteCode); err != nil {
		t.Fatalf("JoinSquad again: %v", err)
	}
	if n := len(other.View().Memberships); n != 1 {
		t.Fatalf("memberships = %d, want 1", n)
	}
	if m := other.View().Memberships[0]; m.Role != domain.SquadMember {
		t.Fatalf("role = %q, want member", m.Role)
	}
	if _, err := other.JoinSquad(ctx, "NOPE"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("JoinSquad unknown = %v, want not found", err)
	}
	if err := other.LeaveSquad(ctx, squad.ID); err != nil {
		t.Fatalf("LeaveSquad: %v", err)
	}
	if len(other.View().Squads) != 0 {
		t.Fatal("expected squad gone after leaving")
	}
}

func TestSetWorkSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws, err := f.agg.SetWorkSchedule(ctx, map[string]domain.WorkHours{
		"Mon": {Start: "08:30", End: "17:00"},
		"fri": {Start: "09:00", End: "13:00"},
	})
	if err != nil {
		t.Fatalf("SetWorkSchedule: %v", err)
	}
	want := map[string]domain.WorkHours{
		"mon": {Start: "08:30", End: "17:00"},
		"fri": {Start: "09:00", End: "13:00"},
	}
	if diff := cmp.Diff(want, ws.Days); diff != "" {
		t.Fatalf("days mismatch (-want +got):\n%s", diff)
	}

	_, err = f.agg.SetWorkSchedule(ctx, map[string]domain.WorkHours{"tue": {Start: "17:00", End: "09:00"}})
	if code := apperrors.CodeOf(err); code != apperrors.CodeValidation {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeValidation)
	}
	_, err = f.agg.SetWorkSchedule(ctx, map[string]domain.WorkHours{"someday": {Start: "09:00", End: "17:00"}})
	if code := apperrors.CodeOf(err); code != apperrors.CodeValidation {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeValidation)
	}
	if diff := cmp.Diff(want, f.agg.View().WorkSchedule.Days); diff != "" {
		t.Fatalf("rejected write changed view (-want +got):\n%s", diff)
	}
}

func TestSetPreferencesAndReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.agg.SetPreferences(ctx, domain.Preferences{BudgetCap: domain.IntPtr(2500), Locale: "es-US"}); err != nil {
		t.Fatalf("SetPreferences: %v", err)
	}
	if _, err := f.agg.SetPreferences(ctx, domain.Preferences{Locale: "not a tag!"}); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("SetPreferences invalid = %v, want validation", err)
	}

	fresh := New(f.store, nil)
	if err := fresh.Load(ctx, domain.User{ID: "u1"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := domain.Preferences{UserID: "u1", BudgetCap: domain.IntPtr(2500), Locale: "es-US"}
	if diff := cmp.Diff(want, fresh.View().Preferences); diff != "" {
		t.Fatalf("preferences mismatch (-want +got):\n%s", diff)
	}

	fresh.Reset()
	if fresh.View().UserID != "" {
		t.Fatal("expected empty view after reset")
	}
}
