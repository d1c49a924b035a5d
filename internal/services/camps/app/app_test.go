package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/services/camps/bus"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/planner"
	"github.com/louisbranch/campplanner/internal/services/camps/storage/memory"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testCamps() []domain.Camp {
	return []domain.Camp{
		{ID: "c1", Name: "Surf Rangers", Category: "Beach/Surf", MinAge: domain.IntPtr(8), MaxAge: domain.IntPtr(14), MinPrice: domain.IntPtr(400), MaxPrice: domain.IntPtr(450)},
		{ID: "c2", Name: "Art Lab", Category: "Art", MinAge: domain.IntPtr(5), MaxAge: domain.IntPtr(10), MinPrice: domain.IntPtr(300), MaxPrice: domain.IntPtr(300)},
		{ID: "c3", Name: "Code Camp", Category: "STEM", MinAge: domain.IntPtr(9), MaxAge: domain.IntPtr(15)},
	}
}

type events struct {
	mu  sync.Mutex
	all []bus.Event
	ch  chan bus.Event
}

func watch(a *App) (*events, func()) {
	e := &events{ch: make(chan bus.Event, 1024)}
	unsubscribe := a.Bus().Subscribe(func(ev bus.Event) {
		e.mu.Lock()
		e.all = append(e.all, ev)
		e.mu.Unlock()
		e.ch <- ev
	})
	return e, unsubscribe
}

// next waits for the first event that satisfies match.
func (e *events) next(t *testing.T, match func(bus.Event) bool) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-e.ch:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return nil
		}
	}
}

func (e *events) snapshot() []bus.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bus.Event(nil), e.all...)
}

func isResults(ev bus.Event) bool {
	_, ok := ev.(bus.ResultsChanged)
	return ok
}

func isError(ev bus.Event) bool {
	_, ok := ev.(bus.ErrorOccurred)
	return ok
}

func newApp(t *testing.T) (*App, *memory.Store, *events) {
	t.Helper()
	store := memory.New()
	store.SetCatalog(testCamps())
	a, err := New(Config{Store: store, Now: func() time.Time { return testNow }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ev, unsubscribe := watch(a)
	t.Cleanup(func() {
		a.Teardown()
		unsubscribe()
	})
	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return a, store, ev
}

func resultIDs(ev bus.Event) []string {
	var ids []string
	for _, c := range ev.(bus.ResultsChanged).Results {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestInitPublishesInitialResults(t *testing.T) {
	a, _, ev := newApp(t)
	first := ev.next(t, isResults)
	if diff := cmp.Diff([]string{"c2", "c3", "c1"}, resultIDs(first)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if got := first.(bus.ResultsChanged).SnapshotVersion; got != a.Snapshot().Version() {
		t.Fatalf("snapshot version = %d, want %d", got, a.Snapshot().Version())
	}
	if err := a.Init(context.Background()); err == nil {
		t.Fatal("expected second Init to fail")
	}
}

func TestInitFailsWhenCatalogUnavailable(t *testing.T) {
	store := memory.New()
	store.FailNext(apperrors.ErrTransient)
	a, err := New(Config{Store: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Teardown()
	if err := a.Init(context.Background()); !errors.Is(err, apperrors.ErrTransient) {
		t.Fatalf("Init = %v, want transient", err)
	}
}

func TestSetFilterNarrowsResults(t *testing.T) {
	a, _, ev := newApp(t)
	ev.next(t, isResults)

	cats := []domain.Category{"Art", "STEM"}
	if err := a.Send(context.Background(), bus.SetFilter{Patch: domain.FilterPatch{Categories: &cats}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := ev.next(t, isResults).(bus.ResultsChanged)
	if diff := cmp.Diff([]string{"c2", "c3"}, resultIDs(got)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if got.FacetCounts["Beach/Surf"] != 1 {
		t.Fatalf("facet Beach/Surf = %d, want 1", got.FacetCounts["Beach/Surf"])
	}

	if err := a.Send(context.Background(), bus.ClearFilters{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ids := resultIDs(ev.next(t, isResults)); len(ids) != 3 {
		t.Fatalf("results after clear = %v, want 3", ids)
	}
}

func TestInvalidFilterKeepsCurrent(t *testing.T) {
	a, _, ev := newApp(t)
	ev.next(t, isResults)
	age := 40
	if err := a.Send(context.Background(), bus.SetFilter{Patch: domain.FilterPatch{ChildAge: &age}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := ev.next(t, isError).(bus.ErrorOccurred)
	if got.Code != apperrors.CodeValidation {
		t.Fatalf("code = %s, want %s", got.Code, apperrors.CodeValidation)
	}
	if got.Message != "Please check childAge." {
		t.Fatalf("message = %q", got.Message)
	}
	if a.Filter().ChildAge != nil {
		t.Fatal("expected filter unchanged")
	}
}

func TestLatestSearchWins(t *testing.T) {
	a, _, ev := newApp(t)
	ev.next(t, isResults)
	terms := []string{"s", "su", "sur", "surf"}
	for _, term := range terms {
		if err := a.Send(context.Background(), bus.Search{Text: term}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	final := ev.next(t, func(e bus.Event) bool {
		r, ok := e.(bus.ResultsChanged)
		return ok && r.Filter.Search == "surf"
	})
	a.Teardown()

	var last bus.ResultsChanged
	for _, e := range ev.snapshot() {
		if r, ok := e.(bus.ResultsChanged); ok {
			last = r
		}
	}
	if last.Version() != final.Version() {
		t.Fatalf("last results version = %d, want %d", last.Version(), final.Version())
	}
	if diff := cmp.Diff([]string{"c1"}, resultIDs(final)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestReturningToEarlierSearchPublishesResults(t *testing.T) {
	a, _, ev := newApp(t)
	ev.next(t, isResults)
	for round := 0; round < 20; round++ {
		for _, term := range []string{"art", "code", "art"} {
			if err := a.Send(context.Background(), bus.Search{Text: term}); err != nil {
				t.Fatalf("Send: %v", err)
			}
		}
	}
	// Commands apply in order, so the navigation event follows the last search.
	if err := a.Send(context.Background(), bus.Navigate{Target: bus.TargetFavorites}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ev.next(t, func(e bus.Event) bool {
		_, ok := e.(bus.NavigationChanged)
		return ok
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		var last bus.ResultsChanged
		for _, e := range ev.snapshot() {
			if r, ok := e.(bus.ResultsChanged); ok {
				last = r
			}
			if isError(e) {
				t.Fatalf("unexpected error event %+v", e)
			}
		}
		if last.Filter.Search == "art" {
			if diff := cmp.Diff([]string{"c2"}, resultIDs(last)); diff != "" {
				t.Fatalf("results mismatch (-want +got):\n%s", diff)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("last results search = %q, want %q", last.Filter.Search, "art")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDistanceSortWithoutOriginWarns(t *testing.T) {
	a, _, ev := newApp(t)
	ev.next(t, isResults)
	if err := a.Send(context.Background(), bus.Sort{Field: domain.SortDistance}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := ev.next(t, func(e bus.Event) bool {
		_, ok := e.(bus.WarningRaised)
		return ok
	}).(bus.WarningRaised)
	if got.Warning.Code != domain.WarningDistanceNoOrigin {
		t.Fatalf("warning = %s, want %s", got.Warning.Code, domain.WarningDistanceNoOrigin)
	}
	if got.Message == "" || got.Message == "core.warning.distance_no_origin" {
		t.Fatalf("message = %q, want localized text", got.Message)
	}
}

func TestSignedOutCommandsEndSession(t *testing.T) {
	a, _, ev := newApp(t)
	ev.next(t, isResults)
	if err := a.Send(context.Background(), bus.FavoriteToggle{CampID: "c1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	session := ev.next(t, func(e bus.Event) bool {
		_, ok := e.(bus.SessionChanged)
		return ok
	}).(bus.SessionChanged)
	if session.User != nil {
		t.Fatalf("session user = %+v, want nil", session.User)
	}
	got := ev.next(t, isError).(bus.ErrorOccurred)
	if got.Code != apperrors.CodeNotAuthenticated {
		t.Fatalf("code = %s, want %s", got.Code, apperrors.CodeNotAuthenticated)
	}
	if got.Version() <= session.Version() {
		t.Fatalf("error version %d not after session version %d", got.Version(), session.Version())
	}
}

func TestSignInAssignAndFavorite(t *testing.T) {
	a, store, ev := newApp(t)
	ev.next(t, isResults)

	store.SignIn(domain.User{ID: "u1", DisplayName: "Pat"})
	session := ev.next(t, func(e bus.Event) bool {
		s, ok := e.(bus.SessionChanged)
		return ok && s.User != nil
	}).(bus.SessionChanged)
	if session.User.ID != "u1" {
		t.Fatalf("session user = %q, want u1", session.User.ID)
	}

	child, err := a.Users().PutChild(context.Background(), domain.Child{Name: "Ella", AgeAsOfSummer: domain.IntPtr(9)})
	if err != nil {
		t.Fatalf("PutChild: %v", err)
	}
	if err := a.Send(context.Background(), bus.PlanAssign{ChildID: child.ID, WeekID: "w1", CampID: "c1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	changed := ev.next(t, func(e bus.Event) bool {
		p, ok := e.(bus.PlannerChanged)
		return ok && len(p.Slots) == 1
	}).(bus.PlannerChanged)
	if s := changed.Slots[0]; s.CampID != "c1" || s.State != planner.Tentative {
		t.Fatalf("slot = %+v, want tentative c1", s)
	}

	if err := a.Send(context.Background(), bus.PlanAssign{ChildID: child.ID, WeekID: "w1", CampID: "c2"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	occupied := ev.next(t, isError).(bus.ErrorOccurred)
	if occupied.Code != apperrors.CodeSlotOccupied {
		t.Fatalf("code = %s, want %s", occupied.Code, apperrors.CodeSlotOccupied)
	}
	if occupied.Message != "Jun 8-12 is already booked with Surf Rangers." {
		t.Fatalf("message = %q", occupied.Message)
	}

	if err := a.Send(context.Background(), bus.FavoriteToggle{CampID: "c3"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	fav := ev.next(t, func(e bus.Event) bool {
		r, ok := e.(bus.ResultsChanged)
		return ok && r.Favorited["c3"]
	}).(bus.ResultsChanged)
	if len(fav.Favorited) != 1 {
		t.Fatalf("favorited = %v, want only c3", fav.Favorited)
	}

	store.SignOut()
	ev.next(t, func(e bus.Event) bool {
		s, ok := e.(bus.SessionChanged)
		return ok && s.User == nil
	})
	if n := len(a.Planner().Slots()); n != 0 {
		t.Fatalf("slots after sign-out = %d, want 0", n)
	}
}

func TestNavigate(t *testing.T) {
	a, store, ev := newApp(t)
	ev.next(t, isResults)
	store.SignIn(domain.User{ID: "u1"})

	if err := a.Send(context.Background(), bus.Navigate{Target: bus.TargetPlanner}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	nav := ev.next(t, func(e bus.Event) bool {
		_, ok := e.(bus.NavigationChanged)
		return ok
	}).(bus.NavigationChanged)
	if nav.Label != "Planner" {
		t.Fatalf("label = %q, want Planner", nav.Label)
	}

	if err := a.Send(context.Background(), bus.Navigate{Target: bus.TargetAdmin}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	denied := ev.next(t, isError).(bus.ErrorOccurred)
	if denied.Code != apperrors.CodePermission {
		t.Fatalf("code = %s, want %s", denied.Code, apperrors.CodePermission)
	}
}
