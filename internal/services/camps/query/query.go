// Package query evaluates filters over a catalog snapshot.
//
// The engine keeps two bounded LRU caches per snapshot version. The base
// cache holds the camps that pass every non-category predicate, with their
// facet counts; the result cache holds final ranked pages. Toggling a
// category only re-runs the category test over a cached base set.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/louisbranch/campplanner/internal/platform/otel"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/geo"
	"github.com/louisbranch/campplanner/internal/services/camps/predicate"
	"github.com/louisbranch/campplanner/internal/services/camps/rank"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
)

// DefaultCacheSize bounds each cache level.
const DefaultCacheSize = 256

// cancelCheckEvery is how many camps are scanned between context checks.
const cancelCheckEvery = 64

// Config configures an Engine.
type Config struct {
	CacheSize int
	Geo       *geo.Table
	// Now is the clock registration urgency is derived against.
	Now    func() time.Time
	Locale language.Tag
}

// Stats are the per-snapshot aggregates computed by Warm.
type Stats struct {
	Version        int64
	Total          int
	CategoryCounts map[domain.Category]int
	Bounds         predicate.Bounds
	MinAge         *int
	MaxAge         *int
}

// Result is one evaluated filter.
type Result struct {
	SnapshotVersion int64
	Fingerprint     string
	Results         []domain.Camp
	FacetCounts     map[domain.Category]int
	Total           int
	Warnings        []domain.Warning
}

// Counters report cache behavior.
type Counters struct {
	ResultHits   int
	ResultMisses int
	BaseHits     int
	BaseMisses   int
}

type baseSet struct {
	camps    []domain.Camp
	facets   map[domain.Category]int
	warnings []domain.Warning
}

// Engine evaluates filters. It is safe for concurrent use.
type Engine struct {
	cfg Config

	mu       sync.Mutex
	version  int64
	warmed   bool
	stats    Stats
	results  *lru.Cache
	bases    *lru.Cache
	counters Counters
	flights  map[string]*flight

	group singleflight.Group

	// scanStarted runs before a base-set scan; tests use it to hold a flight.
	scanStarted func()
}

// flight is the context a shared evaluation runs under. It is cancelled
// once every caller waiting on it has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewEngine builds an engine.
func NewEngine(cfg Config) *Engine {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		cfg:     cfg,
		results: lru.New(cfg.CacheSize),
		bases:   lru.New(cfg.CacheSize),
		flights: make(map[string]*flight),
	}
}

// Fingerprint returns the canonical encoding of f. Set-valued fields are
// order-insensitive and neutral fields are omitted.
func Fingerprint(f domain.Filter) string {
	data, err := json.Marshal(f.Canonical())
	if err != nil {
		// Filter holds only plain fields; Marshal cannot fail.
		panic(fmt.Sprintf("fingerprint filter: %v", err))
	}
	return string(data)
}

func baseFingerprint(f domain.Filter) string {
	f = f.WithoutCategories()
	f.SortField = ""
	f.SortDir = ""
	f.SortByDistance = false
	if f.MaxMiles == nil {
		f.Origin = ""
	}
	return Fingerprint(f)
}

// Warm computes the snapshot aggregates, once per version. A new version
// clears both caches.
func (e *Engine) Warm(snap *domain.Snapshot) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.warmLocked(snap)
}

func (e *Engine) warmLocked(snap *domain.Snapshot) Stats {
	if e.warmed && e.version == snap.Version() {
		return e.stats
	}
	e.results.Clear()
	e.bases.Clear()
	e.version = snap.Version()
	e.warmed = true

	stats := Stats{
		Version:        snap.Version(),
		Total:          snap.Len(),
		CategoryCounts: emptyFacets(),
	}
	snap.Each(func(c domain.Camp) bool {
		stats.CategoryCounts[c.Category]++
		if n, ok := domain.NumericPrice(c); ok {
			if !stats.Bounds.Priced || n.Lo < stats.Bounds.MinPrice {
				stats.Bounds.MinPrice = n.Lo
			}
			if !stats.Bounds.Priced || n.Hi > stats.Bounds.MaxPrice {
				stats.Bounds.MaxPrice = n.Hi
			}
			stats.Bounds.Priced = true
		}
		if c.MinAge != nil && (stats.MinAge == nil || *c.MinAge < *stats.MinAge) {
			stats.MinAge = domain.IntPtr(*c.MinAge)
		}
		if c.MaxAge != nil && (stats.MaxAge == nil || *c.MaxAge > *stats.MaxAge) {
			stats.MaxAge = domain.IntPtr(*c.MaxAge)
		}
		return true
	})
	e.stats = stats
	return stats
}

// Counters returns a copy of the cache counters.
func (e *Engine) Counters() Counters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters
}

// Evaluate runs f over snap. Identical concurrent calls share one
// evaluation. Cancelling ctx abandons this caller's wait; the shared scan
// stops only when no caller is left waiting for it.
func (e *Engine) Evaluate(ctx context.Context, snap *domain.Snapshot, f domain.Filter) (Result, error) {
	if err := f.Validate(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	ctx, span := otel.Tracer("query").Start(ctx, "query.Evaluate")
	defer span.End()

	now := e.cfg.Now()
	fp := Fingerprint(f)
	key := cacheKey(snap.Version(), now, fp)
	span.SetAttributes(
		attribute.Int64("catalog.version", snap.Version()),
		attribute.String("query.fingerprint", fp),
	)

	e.mu.Lock()
	e.warmLocked(snap)
	if cached, ok := e.results.Get(key); ok {
		e.counters.ResultHits++
		e.mu.Unlock()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return copyResult(cached.(Result)), nil
	}
	e.counters.ResultMisses++
	e.mu.Unlock()
	span.SetAttributes(attribute.Bool("cache.hit", false))

	for {
		res, err := e.share(ctx, key, func(flightCtx context.Context) (Result, error) {
			return e.evaluate(flightCtx, snap, f, fp, now)
		})
		// A call that joined a flight abandoned by everyone else sees that
		// flight's cancellation; the finished call is gone, so run again.
		if err != nil && isContextErr(err) && ctx.Err() == nil {
			continue
		}
		return res, err
	}
}

func (e *Engine) share(ctx context.Context, key string, fn func(context.Context) (Result, error)) (Result, error) {
	fl := e.joinFlight(ctx, key)
	defer e.leaveFlight(key, fl)

	ch := e.group.DoChan(key, func() (any, error) {
		return fn(fl.ctx)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return copyResult(res.Val.(Result)), nil
	}
}

func (e *Engine) joinFlight(ctx context.Context, key string) *flight {
	e.mu.Lock()
	defer e.mu.Unlock()
	fl, ok := e.flights[key]
	if !ok {
		flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: flightCtx, cancel: cancel}
		e.flights[key] = fl
	}
	fl.waiters++
	return fl
}

func (e *Engine) leaveFlight(key string, fl *flight) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	if e.flights[key] == fl {
		delete(e.flights, key)
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Engine) evaluate(ctx context.Context, snap *domain.Snapshot, f domain.Filter, fp string, now time.Time) (Result, error) {
	e.mu.Lock()
	stats := e.warmLocked(snap)
	e.mu.Unlock()

	compiled := predicate.Compile(f, predicate.Env{Now: now, Bounds: stats.Bounds, Geo: e.cfg.Geo})

	base, err := e.baseSet(ctx, snap, f, compiled, now)
	if err != nil {
		return Result{}, err
	}

	results := make([]domain.Camp, 0, len(base.camps))
	for _, c := range base.camps {
		if compiled.Category == nil || compiled.Category(c) {
			results = append(results, c)
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	field, dir := f.Sort()
	warnings := append([]domain.Warning(nil), base.warnings...)
	for _, w := range rank.Sort(results, rank.Options{
		Field:  field,
		Dir:    dir,
		Origin: f.Origin,
		Geo:    e.cfg.Geo,
		Locale: e.cfg.Locale,
	}) {
		if !hasWarning(warnings, w.Code) {
			warnings = append(warnings, w)
		}
	}

	res := Result{
		SnapshotVersion: snap.Version(),
		Fingerprint:     fp,
		Results:         results,
		FacetCounts:     base.facets,
		Total:           len(results),
		Warnings:        warnings,
	}
	e.mu.Lock()
	if e.version == snap.Version() {
		e.results.Add(cacheKey(snap.Version(), now, fp), res)
	}
	e.mu.Unlock()
	return res, nil
}

func (e *Engine) baseSet(ctx context.Context, snap *domain.Snapshot, f domain.Filter, compiled predicate.Compiled, now time.Time) (baseSet, error) {
	key := cacheKey(snap.Version(), now, baseFingerprint(f))
	e.mu.Lock()
	if cached, ok := e.bases.Get(key); ok {
		e.counters.BaseHits++
		e.mu.Unlock()
		return cached.(baseSet), nil
	}
	e.counters.BaseMisses++
	e.mu.Unlock()

	if e.scanStarted != nil {
		e.scanStarted()
	}
	set := baseSet{facets: emptyFacets(), warnings: compiled.Warnings}
	var scanErr error
	i := 0
	snap.Each(func(c domain.Camp) bool {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				scanErr = err
				return false
			}
		}
		i++
		if compiled.Base(c) {
			set.camps = append(set.camps, c)
			set.facets[c.Category]++
		}
		return true
	})
	if scanErr != nil {
		return baseSet{}, scanErr
	}

	e.mu.Lock()
	if e.version == snap.Version() {
		e.bases.Add(key, set)
	}
	e.mu.Unlock()
	return set, nil
}

// cacheKey includes the calendar day because urgency moves with the clock.
func cacheKey(version int64, now time.Time, fp string) string {
	return fmt.Sprintf("%d|%s|%s", version, now.Format(time.DateOnly), fp)
}

func emptyFacets() map[domain.Category]int {
	facets := make(map[domain.Category]int, len(domain.Categories()))
	for _, c := range domain.Categories() {
		facets[c] = 0
	}
	return facets
}

func hasWarning(warnings []domain.Warning, code domain.WarningCode) bool {
	for _, w := range warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

func copyResult(r Result) Result {
	out := r
	out.Results = append([]domain.Camp(nil), r.Results...)
	out.FacetCounts = make(map[domain.Category]int, len(r.FacetCounts))
	for k, v := range r.FacetCounts {
		out.FacetCounts[k] = v
	}
	out.Warnings = append([]domain.Warning(nil), r.Warnings...)
	return out
}
