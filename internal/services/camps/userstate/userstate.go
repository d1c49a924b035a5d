// Package userstate keeps a coherent view of the signed-in user's records:
// children, favorites, saved searches, reviews, squads, work schedule and
// preferences. Every mutation writes through the storage adapter and then
// re-reads the collections it touched; readers always see a whole view.
package userstate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/platform/id"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/planner"
	"github.com/louisbranch/campplanner/internal/services/camps/storage"
	"golang.org/x/sync/errgroup"
)

// View is an immutable snapshot of user state. Slices are sorted by id.
type View struct {
	UserID        string
	Children      []domain.Child
	Favorites     []domain.Favorite
	SavedSearches []domain.SavedSearch
	Reviews       []domain.Review
	Squads        []domain.Squad
	Memberships   []domain.Membership
	WorkSchedule  domain.WorkSchedule
	Preferences   domain.Preferences
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithIDGenerator replaces the record id generator.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(a *Aggregator) {
		if newID != nil {
			a.newID = newID
		}
	}
}

// WithClock replaces the time source for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// Aggregator is the only writer of user collections. Slots belong to the
// planner; the aggregator reads them for SlotsByChild and cascades child
// removal into it.
type Aggregator struct {
	store   storage.Adapter
	planner *planner.Planner
	newID   func() (string, error)
	now     func() time.Time

	mu   sync.Mutex
	view atomic.Pointer[View]
}

// New returns an aggregator with an empty view.
func New(store storage.Adapter, p *planner.Planner, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:   store,
		planner: p,
		newID:   id.NewID,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.view.Store(&View{})
	return a
}

// View returns the current snapshot.
func (a *Aggregator) View() *View {
	return a.view.Load()
}

// Load reads every collection for user and replaces the view.
func (a *Aggregator) Load(ctx context.Context, user domain.User) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := &View{
		UserID:       user.ID,
		WorkSchedule: domain.WorkSchedule{UserID: user.ID, Days: map[string]domain.WorkHours{}},
		Preferences:  domain.Preferences{UserID: user.ID},
	}
	var fillMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range []storage.Collection{
		storage.Children, storage.Favorites, storage.SavedSearches, storage.Reviews,
		storage.Squads, storage.Memberships, storage.WorkSchedules, storage.Preferences,
	} {
		g.Go(func() error {
			rows, err := a.store.List(gctx, c, ownRows(c, user.ID))
			if err != nil {
				return err
			}
			fillMu.Lock()
			defer fillMu.Unlock()
			return fill(next, c, rows)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	next.Squads = memberSquads(next.Squads, next.Memberships)
	a.view.Store(next)
	return nil
}

// ownRows narrows the single-row collections to the user. The adapter
// scopes everything else.
func ownRows(c storage.Collection, userID string) storage.Where {
	switch c {
	case storage.Memberships, storage.WorkSchedules, storage.Preferences:
		return storage.Where{"user_id": userID}
	}
	return nil
}

func memberSquads(squads []domain.Squad, memberships []domain.Membership) []domain.Squad {
	joined := make(map[string]bool, len(memberships))
	for _, m := range memberships {
		joined[m.SquadID] = true
	}
	var out []domain.Squad
	for _, s := range squads {
		if joined[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// fill decodes rows into the matching view field.
func fill(v *View, c storage.Collection, rows []storage.Row) error {
	switch c {
	case storage.Children:
		v.Children = decode(rows, storage.ChildFromRow)
	case storage.Favorites:
		v.Favorites = decode(rows, storage.FavoriteFromRow)
	case storage.SavedSearches:
		v.SavedSearches = decode(rows, storage.SavedSearchFromRow)
	case storage.Reviews:
		v.Reviews = decode(rows, storage.ReviewFromRow)
	case storage.Squads:
		v.Squads = decode(rows, storage.SquadFromRow)
	case storage.Memberships:
		v.Memberships = decode(rows, storage.MembershipFromRow)
	case storage.WorkSchedules:
		if len(rows) > 0 {
			ws, err := storage.WorkScheduleFromRow(rows[0])
			if err != nil {
				return apperrors.Wrap(apperrors.CodeFatal, "decode work schedule", err)
			}
			v.WorkSchedule = ws
		}
	case storage.Preferences:
		if len(rows) > 0 {
			v.Preferences = storage.PreferencesFromRow(rows[0])
		}
	}
	return nil
}

func decode[T any](rows []storage.Row, fn func(storage.Row) T) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, fn(row))
	}
	return out
}

// Reset clears the view, as on sign-out.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.view.Store(&View{})
}

// IsFavorited reports whether campID is among the user's favorites.
func (a *Aggregator) IsFavorited(campID string) bool {
	for _, f := range a.View().Favorites {
		if f.CampID == campID {
			return true
		}
	}
	return false
}

// ChildrenByID indexes the user's children.
func (a *Aggregator) ChildrenByID() map[string]domain.Child {
	v := a.View()
	out := make(map[string]domain.Child, len(v.Children))
	for _, c := range v.Children {
		out[c.ID] = c
	}
	return out
}

// SlotsByChild groups the planner's live slots by child id.
func (a *Aggregator) SlotsByChild() map[string][]planner.Slot {
	out := make(map[string][]planner.Slot)
	if a.planner == nil {
		return out
	}
	for _, s := range a.planner.Slots() {
		out[s.ChildID] = append(out[s.ChildID], s)
	}
	return out
}

// refresh re-reads collections and swaps in a new view. Callers hold a.mu.
func (a *Aggregator) refresh(ctx context.Context, collections ...storage.Collection) error {
	cur := a.View()
	if cur.UserID == "" {
		return apperrors.ErrNotAuthenticated
	}
	next := *cur
	for _, c := range collections {
		rows, err := a.store.List(ctx, c, ownRows(c, cur.UserID))
		if err != nil {
			return err
		}
		if err := fill(&next, c, rows); err != nil {
			return err
		}
	}
	if containsAny(collections, storage.Squads, storage.Memberships) {
		rows, err := a.store.List(ctx, storage.Squads, nil)
		if err != nil {
			return err
		}
		next.Squads = memberSquads(decode(rows, storage.SquadFromRow), next.Memberships)
	}
	a.view.Store(&next)
	return nil
}

func containsAny(list []storage.Collection, want ...storage.Collection) bool {
	for _, c := range list {
		for _, w := range want {
			if c == w {
				return true
			}
		}
	}
	return false
}

func (a *Aggregator) userID() (string, error) {
	uid := a.View().UserID
	if uid == "" {
		return "", apperrors.ErrNotAuthenticated
	}
	return uid, nil
}

func (a *Aggregator) ensureID(current string) (string, error) {
	if strings.TrimSpace(current) != "" {
		return current, nil
	}
	newID, err := a.newID()
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeFatal, "generate id", err)
	}
	return newID, nil
}

func notFound(resource, recordID string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, fmt.Sprintf("%s %s not found", resource, recordID), map[string]string{"Resource": resource, "ID": recordID})
}
