package campplanner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/louisbranch/campplanner/internal/platform/config"
	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	errori18n "github.com/louisbranch/campplanner/internal/platform/errors/i18n"
	i18ncatalog "github.com/louisbranch/campplanner/internal/platform/i18n/catalog"
	"github.com/louisbranch/campplanner/internal/platform/timeouts"
	"github.com/louisbranch/campplanner/internal/services/camps/app"
	"github.com/louisbranch/campplanner/internal/services/camps/bus"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/query"
	"github.com/louisbranch/campplanner/internal/services/camps/session"
	"github.com/spf13/cobra"
)

type searchOptions struct {
	categories []string
	age        int
	priceMin   int
	priceMax   int
	weeks      []string
	sort       string
	desc       bool
	openOnly   bool
	hasOpening bool
	origin     string
	maxMiles   float64
	limit      int
}

func newSearchCommand(cfg *Config) *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search the camp catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.filter(cmd, args)
			if err != nil {
				return err
			}
			if err := f.Validate(); err != nil {
				locale := i18ncatalog.Default().Match(cfg.Locale)
				return apperrors.New(apperrors.CodeOf(err), errori18n.Message(locale, err))
			}
			return runSearch(cmd, cfg, f, opts.limit)
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVar(&opts.categories, "category", nil, "categories to include (repeatable)")
	flags.IntVar(&opts.age, "age", 0, "child age the camp must accept")
	flags.IntVar(&opts.priceMin, "price-min", 0, "lowest weekly price in dollars")
	flags.IntVar(&opts.priceMax, "price-max", 0, "highest weekly price in dollars")
	flags.StringSliceVar(&opts.weeks, "week", nil, "summer week ids, w1 to w11 (repeatable)")
	flags.StringVar(&opts.sort, "sort", "", "sort field: name, min_price, min_age, distance, category, recency")
	flags.BoolVar(&opts.desc, "desc", false, "sort descending")
	flags.BoolVar(&opts.openOnly, "open-only", false, "hide closed camps")
	flags.BoolVar(&opts.hasOpening, "upcoming", false, "only camps whose registration opens within 30 days")
	flags.StringVar(&opts.origin, "origin", "", "origin address for distance")
	flags.Float64Var(&opts.maxMiles, "max-miles", 0, "radius around origin in miles")
	flags.IntVar(&opts.limit, "limit", 20, "camps to list; 0 lists all")
	return cmd
}

// filter builds the query from the flags that were set.
func (o searchOptions) filter(cmd *cobra.Command, args []string) (domain.Filter, error) {
	var f domain.Filter
	if len(args) == 1 {
		f.Search = args[0]
	}
	for _, c := range o.categories {
		f.Categories = append(f.Categories, domain.Category(c))
	}
	flags := cmd.Flags()
	if flags.Changed("age") {
		f.ChildAge = domain.IntPtr(o.age)
	}
	if flags.Changed("price-min") {
		f.PriceMin = domain.IntPtr(o.priceMin)
	}
	if flags.Changed("price-max") {
		f.PriceMax = domain.IntPtr(o.priceMax)
	}
	if flags.Changed("max-miles") {
		miles := o.maxMiles
		f.MaxMiles = &miles
	}
	f.Weeks = o.weeks
	f.SortField = domain.SortField(strings.ToLower(o.sort))
	if o.desc {
		f.SortDir = domain.SortDesc
	}
	f.ExcludeClosed = o.openOnly
	f.HasOpenings = o.hasOpening
	f.Origin = o.origin
	if o.limit < 0 {
		return domain.Filter{}, config.Invalidf("limit must not be negative")
	}
	return f, nil
}

// searchWatcher collects the events of one search.
type searchWatcher struct {
	want string

	mu       sync.Mutex
	results  *bus.ResultsChanged
	failure  *bus.ErrorOccurred
	warnings []bus.WarningRaised
	done     chan struct{}
	once     sync.Once
}

func (w *searchWatcher) observe(ev bus.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch e := ev.(type) {
	case bus.ResultsChanged:
		if query.Fingerprint(e.Filter) == w.want {
			w.results = &e
			w.once.Do(func() { close(w.done) })
		}
	case bus.ErrorOccurred:
		w.failure = &e
		w.once.Do(func() { close(w.done) })
	case bus.WarningRaised:
		w.warnings = append(w.warnings, e)
	}
}

func runSearch(cmd *cobra.Command, cfg *Config, f domain.Filter, limit int) error {
	ctx := cmd.Context()
	var verifier *session.Verifier
	if strings.TrimSpace(cfg.SessionToken) != "" {
		v, err := newVerifier()
		if err != nil {
			return err
		}
		verifier = v
	}
	table, err := loadGeo(cfg)
	if err != nil {
		return err
	}
	store, adapter, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	core, err := app.New(app.Config{Store: adapter, Geo: table, Locale: cfg.Locale})
	if err != nil {
		return err
	}
	w := &searchWatcher{want: query.Fingerprint(f), done: make(chan struct{})}
	unsubscribe := core.Bus().Subscribe(w.observe)
	defer unsubscribe()

	if err := core.Init(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.SessionToken) != "" {
		if _, err := store.SignInToken(verifier, cfg.SessionToken); err != nil {
			core.Teardown()
			return err
		}
	}
	if err := core.Send(ctx, bus.SetFilter{Patch: patchFor(f)}); err != nil {
		core.Teardown()
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeouts.Storage)
	defer cancel()
	select {
	case <-w.done:
	case <-waitCtx.Done():
	}
	// Teardown waits for the evaluation, so its warnings are collected.
	core.Teardown()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failure != nil {
		return apperrors.New(w.failure.Code, w.failure.Message)
	}
	if w.results == nil {
		return apperrors.Wrap(apperrors.CodeTransient, "search timed out", waitCtx.Err())
	}
	printResults(cmd, *w.results, limit, core.Snapshot().LoadedAt())
	seen := map[domain.WarningCode]bool{}
	for _, warn := range w.warnings {
		if seen[warn.Warning.Code] {
			continue
		}
		seen[warn.Warning.Code] = true
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warn.Message)
	}
	return nil
}

// patchFor sets every filter field to f's value.
func patchFor(f domain.Filter) domain.FilterPatch {
	return domain.FilterPatch{
		Search:         &f.Search,
		Categories:     &f.Categories,
		ChildAge:       f.ChildAge,
		PriceMin:       f.PriceMin,
		PriceMax:       f.PriceMax,
		Weeks:          &f.Weeks,
		Flags:          &f.Flags,
		HasOpenings:    &f.HasOpenings,
		SortByDistance: &f.SortByDistance,
		SortField:      &f.SortField,
		SortDir:        &f.SortDir,
		Origin:         &f.Origin,
		MaxMiles:       f.MaxMiles,
		ExcludeClosed:  &f.ExcludeClosed,
		Clear:          []string{"childAge", "priceMin", "priceMax", "maxMiles"},
	}
}
