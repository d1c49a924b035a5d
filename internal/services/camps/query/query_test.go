package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
)

func ip(v int) *int { return &v }

func fixedNow() time.Time { return time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC) }

func s1Snapshot(t *testing.T) *domain.Snapshot {
	t.Helper()
	snap, warnings := domain.NewSnapshot(1, []domain.Camp{
		{ID: "a", Name: "Surf", Category: domain.CategoryBeachSurf, MinAge: ip(8), MaxAge: ip(14), MinPrice: ip(400), MaxPrice: ip(500)},
		{ID: "b", Name: "Art", Category: domain.CategoryArt, MinAge: ip(6), MaxAge: ip(12), MinPrice: ip(250), MaxPrice: ip(250)},
	}, fixedNow())
	if len(warnings) != 0 {
		t.Fatalf("snapshot warnings: %v", warnings)
	}
	return snap
}

func ids(r Result) []string {
	out := make([]string, len(r.Results))
	for i, c := range r.Results {
		out[i] = c.ID
	}
	return out
}

func newEngine() *Engine {
	return NewEngine(Config{Now: fixedNow})
}

func TestScenarioS1(t *testing.T) {
	snap := s1Snapshot(t)
	engine := newEngine()
	tests := []struct {
		name   string
		filter domain.Filter
		want   []string
	}{
		{"category art by name", domain.Filter{Categories: []domain.Category{"Art"}, SortField: domain.SortName}, []string{"b"}},
		{"child age 7", domain.Filter{ChildAge: ip(7)}, []string{"b"}},
		{"price max 300", domain.Filter{PriceMax: ip(300)}, []string{"b"}},
		{"empty name desc", domain.Filter{SortField: domain.SortName, SortDir: domain.SortDesc}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Evaluate(context.Background(), snap, tt.filter)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(res)); diff != "" {
				t.Fatalf("results (-want +got):\n%s", diff)
			}
			if res.Total != len(tt.want) {
				t.Fatalf("total = %d, want %d", res.Total, len(tt.want))
			}
			if res.SnapshotVersion != 1 {
				t.Fatalf("snapshot version = %d", res.SnapshotVersion)
			}
		})
	}
}

func TestScenarioS5FingerprintIgnoresOrder(t *testing.T) {
	a := Fingerprint(domain.Filter{Categories: []domain.Category{"Art", "Sports"}, Search: "camp"})
	b := Fingerprint(domain.Filter{Search: "camp", Categories: []domain.Category{"Sports", "Art"}})
	if a != b {
		t.Fatalf("fingerprints differ:\n%s\n%s", a, b)
	}
	if Fingerprint(domain.Filter{}) != "{}" {
		t.Fatalf("neutral fingerprint = %s, want {}", Fingerprint(domain.Filter{}))
	}
	if Fingerprint(domain.Filter{Search: "camp"}) == a {
		t.Fatal("different filters share a fingerprint")
	}
}

func TestFacetCountsIgnoreCategoryPredicate(t *testing.T) {
	snap := s1Snapshot(t)
	res, err := newEngine().Evaluate(context.Background(), snap, domain.Filter{Categories: []domain.Category{"Art"}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.FacetCounts[domain.CategoryArt] != 1 || res.FacetCounts[domain.CategoryBeachSurf] != 1 {
		t.Fatalf("facets = %v", res.FacetCounts)
	}
	if _, ok := res.FacetCounts[domain.CategoryMusic]; !ok {
		t.Fatal("expected zero facet for every category")
	}
}

func TestCategoryToggleReusesBaseSet(t *testing.T) {
	snap := s1Snapshot(t)
	engine := newEngine()
	ctx := context.Background()
	if _, err := engine.Evaluate(ctx, snap, domain.Filter{ChildAge: ip(9)}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, err := engine.Evaluate(ctx, snap, domain.Filter{ChildAge: ip(9), Categories: []domain.Category{"Art"}}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, err := engine.Evaluate(ctx, snap, domain.Filter{ChildAge: ip(9), SortDir: domain.SortDesc}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	got := engine.Counters()
	if got.BaseMisses != 1 || got.BaseHits != 2 {
		t.Fatalf("counters = %+v, want one base scan reused twice", got)
	}
	if _, err := engine.Evaluate(ctx, snap, domain.Filter{ChildAge: ip(9)}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if engine.Counters().ResultHits != 1 {
		t.Fatalf("counters = %+v, want a result hit", engine.Counters())
	}
}

func TestNewSnapshotClearsCache(t *testing.T) {
	engine := newEngine()
	ctx := context.Background()
	if _, err := engine.Evaluate(ctx, s1Snapshot(t), domain.Filter{}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	next, _ := domain.NewSnapshot(2, []domain.Camp{{ID: "z", Name: "Zen", Category: domain.CategoryArt}}, fixedNow())
	res, err := engine.Evaluate(ctx, next, domain.Filter{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if diff := cmp.Diff([]string{"z"}, ids(res)); diff != "" {
		t.Fatalf("results (-want +got):\n%s", diff)
	}
	if engine.Counters().ResultHits != 0 {
		t.Fatalf("stale cache hit: %+v", engine.Counters())
	}
	if got := engine.Warm(next); got.Version != 2 || got.Total != 1 {
		t.Fatalf("stats = %+v", got)
	}
}

func TestWarmComputesExtremes(t *testing.T) {
	stats := newEngine().Warm(s1Snapshot(t))
	if !stats.Bounds.Priced || stats.Bounds.MinPrice != 250 || stats.Bounds.MaxPrice != 500 {
		t.Fatalf("bounds = %+v", stats.Bounds)
	}
	if *stats.MinAge != 6 || *stats.MaxAge != 14 {
		t.Fatalf("ages = %d-%d", *stats.MinAge, *stats.MaxAge)
	}
	if stats.CategoryCounts[domain.CategoryArt] != 1 {
		t.Fatalf("counts = %v", stats.CategoryCounts)
	}
}

func TestEvaluateMonotonic(t *testing.T) {
	snap, _ := domain.NewSnapshot(1, []domain.Camp{
		{ID: "a", Name: "Surf Camp", Category: domain.CategoryBeachSurf, MinAge: ip(8), MaxAge: ip(14), MinPrice: ip(400), MaxPrice: ip(500), FoodIncluded: true},
		{ID: "b", Name: "Art Camp", Category: domain.CategoryArt, MinAge: ip(6), MaxAge: ip(12), MinPrice: ip(250), MaxPrice: ip(250)},
		{ID: "c", Name: "Robot Camp", Category: domain.CategorySTEM, PriceWeek: "ask", Weeks: []string{"w2"}},
		{ID: "d", Name: "Soccer Camp", Category: domain.CategorySports, IsClosed: true, MinPrice: ip(300), MaxPrice: ip(300)},
	}, fixedNow())
	engine := newEngine()
	base := domain.Filter{Search: "camp"}
	baseRes, err := engine.Evaluate(context.Background(), snap, base)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	visible := map[string]bool{}
	for _, id := range ids(baseRes) {
		visible[id] = true
	}
	narrower := []domain.Filter{
		{Search: "camp", ChildAge: ip(10)},
		{Search: "camp", PriceMin: ip(260)},
		{Search: "camp", Weeks: []string{"w1"}},
		{Search: "camp", Flags: domain.Flags{FoodIncluded: true}},
		{Search: "camp", ExcludeClosed: true},
		{Search: "camp", HasOpenings: true},
		{Search: "camp", Categories: []domain.Category{"STEM", "Art"}},
	}
	for _, f := range narrower {
		res, err := engine.Evaluate(context.Background(), snap, f)
		if err != nil {
			t.Fatalf("evaluate %+v: %v", f, err)
		}
		for _, id := range ids(res) {
			if !visible[id] {
				t.Fatalf("filter %+v introduced %s", f, id)
			}
		}
	}
}

func TestEvaluateDeterministicAcrossEngines(t *testing.T) {
	snap := s1Snapshot(t)
	f := domain.Filter{SortField: domain.SortMinPrice, SortDir: domain.SortDesc}
	first, err := newEngine().Evaluate(context.Background(), snap, f)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	second, err := newEngine().Evaluate(context.Background(), snap, f)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if diff := cmp.Diff(ids(first), ids(second)); diff != "" {
		t.Fatalf("results differ (-first +second):\n%s", diff)
	}
}

func TestEvaluateDistanceWithoutOriginWarns(t *testing.T) {
	res, err := newEngine().Evaluate(context.Background(), s1Snapshot(t), domain.Filter{SortByDistance: true})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Code != domain.WarningDistanceNoOrigin {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	if diff := cmp.Diff([]string{"b", "a"}, ids(res)); diff != "" {
		t.Fatalf("fallback order (-want +got):\n%s", diff)
	}
}

func TestEvaluateHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEngine().Evaluate(ctx, s1Snapshot(t), domain.Filter{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestEvaluateResultsAreCopies(t *testing.T) {
	snap := s1Snapshot(t)
	engine := newEngine()
	first, _ := engine.Evaluate(context.Background(), snap, domain.Filter{})
	first.Results[0].Name = "mutated"
	first.FacetCounts[domain.CategoryArt] = 99
	second, _ := engine.Evaluate(context.Background(), snap, domain.Filter{})
	if second.Results[0].Name == "mutated" || second.FacetCounts[domain.CategoryArt] == 99 {
		t.Fatal("cached result was mutated through a returned copy")
	}
}

func TestEvaluateConcurrent(t *testing.T) {
	snap := s1Snapshot(t)
	engine := newEngine()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f := domain.Filter{ChildAge: ip(6 + i%4)}
			if _, err := engine.Evaluate(context.Background(), snap, f); err != nil {
				t.Errorf("evaluate: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func waitForWaiters(t *testing.T, engine *Engine, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		engine.mu.Lock()
		n := 0
		for _, fl := range engine.flights {
			n += fl.waiters
		}
		engine.mu.Unlock()
		if n == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("flight waiters never reached %d", want)
}

func TestEvaluateSharedFlightSurvivesOneCancellation(t *testing.T) {
	snap := s1Snapshot(t)
	engine := newEngine()
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	engine.scanStarted = func() {
		started <- struct{}{}
		<-release
	}
	f := domain.Filter{Search: "zzz-no-match"}

	ctx1, cancel1 := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := engine.Evaluate(ctx1, snap, f)
		firstErr <- err
	}()
	<-started
	waitForWaiters(t, engine, 1)

	type outcome struct {
		res Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := engine.Evaluate(context.Background(), snap, f)
		second <- outcome{res, err}
	}()
	waitForWaiters(t, engine, 2)

	cancel1()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first err = %v, want context.Canceled", err)
	}
	close(release)

	got := <-second
	if got.err != nil {
		t.Fatalf("second err = %v, want nil", got.err)
	}
	if got.res.Total != 0 || got.res.SnapshotVersion != 1 {
		t.Fatalf("second result = %+v", got.res)
	}
}

func TestEvaluateRetriesAbandonedFlight(t *testing.T) {
	snap := s1Snapshot(t)
	engine := newEngine()
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	var once sync.Once
	engine.scanStarted = func() {
		block := false
		once.Do(func() { block = true })
		started <- struct{}{}
		if block {
			<-release
		}
	}
	f := domain.Filter{Categories: []domain.Category{domain.CategoryArt}}

	ctx1, cancel1 := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := engine.Evaluate(ctx1, snap, f)
		firstErr <- err
	}()
	<-started
	cancel1()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first err = %v, want context.Canceled", err)
	}

	second := make(chan error, 1)
	var res Result
	go func() {
		var err error
		res, err = engine.Evaluate(context.Background(), snap, f)
		second <- err
	}()
	waitForWaiters(t, engine, 1)
	close(release)

	if err := <-second; err != nil {
		t.Fatalf("second err = %v, want nil", err)
	}
	if diff := cmp.Diff([]string{"b"}, ids(res)); diff != "" {
		t.Fatalf("results (-want +got):\n%s", diff)
	}
}
