// Package app runs one planning session: it loads the catalog, follows
// sign-in changes, applies view commands from the bus and publishes the
// resulting projections.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	errori18n "github.com/louisbranch/campplanner/internal/platform/errors/i18n"
	i18ncatalog "github.com/louisbranch/campplanner/internal/platform/i18n/catalog"
	"github.com/louisbranch/campplanner/internal/services/camps/bus"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/geo"
	"github.com/louisbranch/campplanner/internal/services/camps/planner"
	"github.com/louisbranch/campplanner/internal/services/camps/query"
	"github.com/louisbranch/campplanner/internal/services/camps/storage"
	"github.com/louisbranch/campplanner/internal/services/camps/userstate"
	"golang.org/x/text/language"
)

// Config configures an App.
type Config struct {
	Store storage.Adapter
	// CatalogFilter is an optional backend filter applied while loading.
	CatalogFilter       string
	Geo                 *geo.Table
	Locale              string
	CacheSize           int
	SiblingDiscountRate float64
	Now                 func() time.Time
}

// App owns the engine, planner and user state for one session.
type App struct {
	store  storage.Adapter
	cfg    Config
	now    func() time.Time
	engine *query.Engine
	plan   *planner.Planner
	users  *userstate.Aggregator
	bus    *bus.Bus

	mu         sync.Mutex
	started    bool
	snapshot   *domain.Snapshot
	filter     domain.Filter
	user       *domain.User
	userCtx    context.Context
	cancelUser context.CancelFunc
	fatal      error

	evalMu     sync.Mutex
	evalGen    uint64
	cancelEval context.CancelFunc
	last       *bus.ResultsChanged

	runCtx      context.Context
	cancelRun   context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// New builds an app over cfg.Store. Nothing runs until Init.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	tag, err := language.Parse(i18ncatalog.Default().Match(cfg.Locale))
	if err != nil {
		tag = language.AmericanEnglish
	}
	a := &App{store: cfg.Store, cfg: cfg, now: cfg.Now}
	a.engine = query.NewEngine(query.Config{
		CacheSize: cfg.CacheSize,
		Geo:       cfg.Geo,
		Now:       cfg.Now,
		Locale:    tag,
	})
	planOpts := []planner.Option{}
	if cfg.SiblingDiscountRate > 0 {
		planOpts = append(planOpts, planner.WithSiblingDiscountRate(cfg.SiblingDiscountRate))
	}
	a.plan = planner.New(cfg.Store, planOpts...)
	a.users = userstate.New(cfg.Store, a.plan, userstate.WithClock(cfg.Now))
	a.bus = bus.New(a.handle)
	a.runCtx, a.cancelRun = context.WithCancel(context.Background())
	return a, nil
}

// Bus returns the command and event channel.
func (a *App) Bus() *bus.Bus { return a.bus }

// Engine returns the query engine.
func (a *App) Engine() *query.Engine { return a.engine }

// Planner returns the slot planner.
func (a *App) Planner() *planner.Planner { return a.plan }

// Users returns the user state aggregator.
func (a *App) Users() *userstate.Aggregator { return a.users }

// Snapshot returns the published catalog.
func (a *App) Snapshot() *domain.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

// Filter returns the current filter.
func (a *App) Filter() domain.Filter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filter
}

// Err returns the first fatal error seen by the session.
func (a *App) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fatal
}

// Init loads the catalog, warms the engine, subscribes to auth changes and
// starts the dispatcher. The first evaluation of the empty filter is
// published once it completes.
func (a *App) Init(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("app already initialized")
	}
	a.started = true
	a.mu.Unlock()

	camps, version, err := storage.LoadAllCamps(ctx, a.store, a.cfg.CatalogFilter)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	snap, warnings := domain.NewSnapshot(version, camps, a.now())
	for _, w := range warnings {
		log.Printf("catalog: %s", w.Detail)
	}
	stats := a.engine.Warm(snap)
	a.plan.SetCatalog(snap)
	a.mu.Lock()
	a.snapshot = snap
	a.mu.Unlock()
	log.Printf("catalog version %d loaded with %d camps", version, stats.Total)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.bus.Run(a.runCtx)
	}()
	a.unsubscribe = a.store.OnAuthChange(a.onAuth)

	if len(warnings) > 0 {
		a.publishWarning(domain.Warning{
			Code:     domain.WarningSkippedCamp,
			Detail:   fmt.Sprintf("%d catalog rows skipped", len(warnings)),
			Metadata: map[string]string{"Count": fmt.Sprint(len(warnings))},
		})
	}
	a.evaluate(domain.Filter{})
	return nil
}

// Teardown stops the dispatcher, cancels in-flight work and waits for it.
func (a *App) Teardown() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.cancelRun()
	a.bus.Close()
	a.wg.Wait()
}

// Send queues a command for the dispatcher.
func (a *App) Send(ctx context.Context, cmd bus.Command) error {
	return a.bus.Send(ctx, cmd)
}

func (a *App) locale() string {
	if prefs := a.users.View().Preferences; prefs.Locale != "" {
		return i18ncatalog.Default().Match(prefs.Locale)
	}
	return i18ncatalog.Default().Match(a.cfg.Locale)
}

func (a *App) text(key string) string {
	msg, ok := i18ncatalog.Default().Message(a.locale(), key)
	if !ok {
		return key
	}
	return msg
}

// handleError publishes err. Not-authenticated errors also end the session.
func (a *App) handleError(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	code := apperrors.CodeOf(err)
	switch {
	case code == apperrors.CodeFatal:
		log.Printf("fatal: %v", err)
		a.mu.Lock()
		if a.fatal == nil {
			a.fatal = err
		}
		a.mu.Unlock()
	case code == apperrors.CodeNotAuthenticated:
		a.endSession()
	case code.Warning():
	default:
		log.Printf("command failed: %v", err)
	}
	a.bus.Publish(bus.ErrorOccurred{
		Code:    code,
		Detail:  err.Error(),
		Message: errori18n.Message(a.locale(), err),
	})
}

func (a *App) publishWarning(w domain.Warning) {
	a.bus.Publish(bus.WarningRaised{Warning: w, Message: a.text("core.warning." + string(w.Code))})
}
