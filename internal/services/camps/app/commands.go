package app

import (
	"context"
	"log"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/services/camps/bus"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
)

// handle applies one command on the dispatcher goroutine.
func (a *App) handle(ctx context.Context, cmd bus.Command) {
	var err error
	switch c := cmd.(type) {
	case bus.Search:
		err = a.updateFilter(func(f domain.Filter) (domain.Filter, error) {
			f.Search = c.Text
			return f, f.Validate()
		})
	case bus.SetFilter:
		err = a.updateFilter(c.Patch.Apply)
	case bus.ClearFilters:
		err = a.updateFilter(func(domain.Filter) (domain.Filter, error) {
			return domain.Filter{}, nil
		})
	case bus.Sort:
		err = a.updateFilter(func(f domain.Filter) (domain.Filter, error) {
			f.SortField = c.Field
			f.SortDir = c.Dir
			f.SortByDistance = false
			return f, f.Validate()
		})
	case bus.FavoriteToggle:
		err = a.toggleFavorite(ctx, c)
	case bus.PlanAssign:
		err = a.assign(ctx, c)
	case bus.Navigate:
		err = a.navigate(c)
	default:
		log.Printf("unhandled command %T", cmd)
	}
	a.handleError(err)
}

// updateFilter replaces the current filter and starts its evaluation. A
// rejected update leaves the filter unchanged.
func (a *App) updateFilter(next func(domain.Filter) (domain.Filter, error)) error {
	a.mu.Lock()
	f, err := next(a.filter)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.filter = f
	a.mu.Unlock()
	a.evaluate(f)
	return nil
}

// evaluate cancels any running evaluation and starts one for f. Results of
// superseded evaluations are dropped.
func (a *App) evaluate(f domain.Filter) {
	snap := a.Snapshot()
	if snap == nil {
		return
	}
	a.evalMu.Lock()
	if a.cancelEval != nil {
		a.cancelEval()
	}
	a.evalGen++
	gen := a.evalGen
	ctx, cancel := context.WithCancel(a.runCtx)
	a.cancelEval = cancel
	a.evalMu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		res, err := a.engine.Evaluate(ctx, snap, f)

		a.evalMu.Lock()
		if gen != a.evalGen || ctx.Err() != nil {
			a.evalMu.Unlock()
			return
		}
		if err != nil {
			a.evalMu.Unlock()
			a.handleError(err)
			return
		}
		defer a.evalMu.Unlock()
		ev := bus.ResultsChanged{
			SnapshotVersion: res.SnapshotVersion,
			Filter:          f,
			Results:         res.Results,
			FacetCounts:     res.FacetCounts,
			Total:           res.Total,
		}
		ev.Favorited = a.favorited(ev.Results)
		a.last = &ev
		a.bus.Publish(ev)
		for _, w := range res.Warnings {
			a.publishWarning(w)
		}
	}()
}

func (a *App) favorited(camps []domain.Camp) map[string]bool {
	out := make(map[string]bool)
	for _, c := range camps {
		if a.users.IsFavorited(c.ID) {
			out[c.ID] = true
		}
	}
	return out
}

// republish re-sends the latest results with fresh favorite marks.
func (a *App) republish() {
	a.evalMu.Lock()
	defer a.evalMu.Unlock()
	if a.last == nil {
		return
	}
	ev := *a.last
	ev.Favorited = a.favorited(ev.Results)
	a.last = &ev
	a.bus.Publish(ev)
}

// userContext returns a context cancelled on sign-out or when parent ends.
func (a *App) userContext(parent context.Context) (context.Context, context.CancelFunc, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user == nil || a.cancelUser == nil {
		return nil, nil, apperrors.ErrNotAuthenticated
	}
	ctx, cancel := context.WithCancel(a.userCtx)
	stop := context.AfterFunc(parent, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

func (a *App) toggleFavorite(parent context.Context, c bus.FavoriteToggle) error {
	ctx, done, err := a.userContext(parent)
	if err != nil {
		return err
	}
	defer done()
	if _, err := a.users.ToggleFavorite(ctx, c.CampID, c.ChildID); err != nil {
		return err
	}
	a.republish()
	return nil
}

func (a *App) assign(parent context.Context, c bus.PlanAssign) error {
	ctx, done, err := a.userContext(parent)
	if err != nil {
		return err
	}
	defer done()
	child, ok := a.users.ChildrenByID()[c.ChildID]
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeNotFound, "child "+c.ChildID+" not found", map[string]string{"Resource": "child", "ID": c.ChildID})
	}
	_, err = a.plan.Assign(ctx, child, c.WeekID, c.CampID, c.Options)
	a.publishPlanner()
	return err
}

func (a *App) publishPlanner() {
	prefs := a.users.View().Preferences
	a.bus.Publish(bus.PlannerChanged{
		PlannerVersion: a.plan.Version(),
		Slots:          a.plan.Slots(),
		Conflicts:      a.plan.DetectConflicts(a.users.ChildrenByID(), prefs.BudgetCap),
	})
}

func (a *App) navigate(c bus.Navigate) error {
	target, err := bus.ParseTarget(string(c.Target))
	if err != nil {
		return err
	}
	if target == bus.TargetAdmin {
		a.mu.Lock()
		admin := a.user != nil && a.user.Admin
		signedIn := a.user != nil
		a.mu.Unlock()
		if !signedIn {
			return apperrors.ErrNotAuthenticated
		}
		if !admin {
			return apperrors.WithMetadata(apperrors.CodePermission, "admin screen requires an admin", map[string]string{"Resource": "admin"})
		}
	}
	a.bus.Publish(bus.NavigationChanged{Target: target, Label: a.text("core.nav." + string(target))})
	return nil
}

// onAuth follows the identity provider. A new user loads their state; a
// refresh for the same user only republishes the session.
func (a *App) onAuth(user *domain.User) {
	if user == nil {
		a.endSession()
		return
	}
	a.mu.Lock()
	refresh := a.user != nil && a.user.ID == user.ID
	u := *user
	a.user = &u
	if !refresh {
		if a.cancelUser != nil {
			a.cancelUser()
		}
		a.userCtx, a.cancelUser = context.WithCancel(a.runCtx)
	}
	ctx := a.userCtx
	a.mu.Unlock()

	if !refresh {
		if err := a.loadUser(ctx, u); err != nil {
			a.handleError(err)
			return
		}
	}
	a.bus.Publish(bus.SessionChanged{User: &u})
	if !refresh {
		a.publishPlanner()
		a.republish()
	}
}

func (a *App) loadUser(ctx context.Context, u domain.User) error {
	if err := a.users.Load(ctx, u); err != nil {
		return err
	}
	if err := a.plan.Load(ctx); err != nil {
		return err
	}
	return nil
}

// endSession drops user state and cancels user-scoped work.
func (a *App) endSession() {
	a.mu.Lock()
	if a.cancelUser != nil {
		a.cancelUser()
		a.cancelUser = nil
	}
	a.user = nil
	a.mu.Unlock()

	a.plan.Reset()
	a.users.Reset()
	a.bus.Publish(bus.SessionChanged{})
	a.publishPlanner()
	a.republish()
}
