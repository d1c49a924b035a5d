package userstate

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/platform/id"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/storage"
)

// ToggleFavorite adds campID to the favorites, or removes it when present.
// It reports whether the camp is favorited afterwards.
func (a *Aggregator) ToggleFavorite(ctx context.Context, campID, childID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	uid, err := a.userID()
	if err != nil {
		return false, err
	}
	campID = strings.TrimSpace(campID)
	if childID != "" {
		if _, ok := a.ChildrenByID()[childID]; !ok {
			return false, notFound("child", childID)
		}
	}
	for _, f := range a.View().Favorites {
		if f.CampID != campID {
			continue
		}
		if err := a.deleteRow(ctx, storage.Favorites, f.ID); err != nil {
			return true, err
		}
		return false, a.refresh(ctx, storage.Favorites)
	}
	favID, err := a.ensureID("")
	if err != nil {
		return false, err
	}
	fav := domain.Favorite{ID: favID, UserID: uid, CampID: campID, ChildID: childID}
	if err := domain.Validate(fav); err != nil {
		return false, err
	}
	if _, err := a.store.Upsert(ctx, storage.Favorites, storage.FavoriteRow(fav)); err != nil {
		return false, err
	}
	return true, a.refresh(ctx, storage.Favorites)
}

// PutChild creates or updates a child. An empty color picks the next one in
// the palette.
func (a *Aggregator) PutChild(ctx context.Context, child domain.Child) (domain.Child, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	uid, err := a.userID()
	if err != nil {
		return domain.Child{}, err
	}
	child.ID, err = a.ensureID(child.ID)
	if err != nil {
		return domain.Child{}, err
	}
	child.UserID = uid
	child.Name = strings.TrimSpace(child.Name)
	if child.Color == "" {
		child.Color = domain.Colors[len(a.View().Children)%len(domain.Colors)]
	}
	if err := domain.Validate(child); err != nil {
		return domain.Child{}, err
	}
	row, err := a.store.Upsert(ctx, storage.Children, storage.ChildRow(child))
	if err != nil {
		return domain.Child{}, err
	}
	return storage.ChildFromRow(row), a.refresh(ctx, storage.Children)
}

// RemoveChild deletes a child together with its planned weeks and the
// favorites kept for it.
func (a *Aggregator) RemoveChild(ctx context.Context, childID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.userID(); err != nil {
		return err
	}
	if a.planner != nil {
		for _, s := range a.planner.Slots() {
			if s.ChildID != childID {
				continue
			}
			if err := a.planner.Unassign(ctx, s.ChildID, s.WeekID); err != nil {
				return err
			}
		}
	}
	for _, f := range a.View().Favorites {
		if f.ChildID != childID {
			continue
		}
		if err := a.deleteRow(ctx, storage.Favorites, f.ID); err != nil {
			return err
		}
	}
	if err := a.deleteRow(ctx, storage.Children, childID); err != nil {
		return err
	}
	return a.refresh(ctx, storage.Children, storage.Favorites)
}

// SaveSearch stores f under name in canonical form.
func (a *Aggregator) SaveSearch(ctx context.Context, name string, f domain.Filter) (domain.SavedSearch, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	uid, err := a.userID()
	if err != nil {
		return domain.SavedSearch{}, err
	}
	if err := f.Validate(); err != nil {
		return domain.SavedSearch{}, err
	}
	encoded, err := domain.EncodeFilter(f)
	if err != nil {
		return domain.SavedSearch{}, apperrors.Wrap(apperrors.CodeFatal, "save search", err)
	}
	searchID, err := a.ensureID("")
	if err != nil {
		return domain.SavedSearch{}, err
	}
	search := domain.SavedSearch{
		ID:          searchID,
		UserID:      uid,
		Name:        strings.TrimSpace(name),
		FilterJSON:  encoded,
		FilterCount: f.ActiveDimensions(),
		CreatedAt:   a.now().UTC(),
	}
	if err := domain.Validate(search); err != nil {
		return domain.SavedSearch{}, err
	}
	row, err := a.store.Upsert(ctx, storage.SavedSearches, storage.SavedSearchRow(search))
	if err != nil {
		return domain.SavedSearch{}, err
	}
	return storage.SavedSearchFromRow(row), a.refresh(ctx, storage.SavedSearches)
}

// LoadSearch decodes a saved search's filter.
func (a *Aggregator) LoadSearch(searchID string) (domain.Filter, error) {
	for _, s := range a.View().SavedSearches {
		if s.ID == searchID {
			return domain.DecodeFilter([]byte(s.FilterJSON))
		}
	}
	return domain.Filter{}, notFound("saved search", searchID)
}

// DeleteSearch removes a saved search.
func (a *Aggregator) DeleteSearch(ctx context.Context, searchID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.userID(); err != nil {
		return err
	}
	if err := a.store.Delete(ctx, storage.SavedSearches, searchID); err != nil {
		return err
	}
	return a.refresh(ctx, storage.SavedSearches)
}

// PutReview writes the user's review of a camp. A second review of the same
// camp replaces the first and keeps its creation time.
func (a *Aggregator) PutReview(ctx context.Context, review domain.Review) (domain.Review, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	uid, err := a.userID()
	if err != nil {
		return domain.Review{}, err
	}
	review.UserID = uid
	review.ID = ""
	review.CreatedAt = a.now().UTC()
	for _, existing := range a.View().Reviews {
		if existing.CampID == review.CampID {
			review.ID = existing.ID
			review.CreatedAt = existing.CreatedAt
			break
		}
	}
	if review.ID, err = a.ensureID(review.ID); err != nil {
		return domain.Review{}, err
	}
	if err := domain.Validate(review); err != nil {
		return domain.Review{}, err
	}
	row, err := a.store.Upsert(ctx, storage.Reviews, storage.ReviewRow(review))
	if err != nil {
		return domain.Review{}, err
	}
	return storage.ReviewFromRow(row), a.refresh(ctx, storage.Reviews)
}

// CreateSquad creates a squad owned by the user and joins it as owner.
func (a *Aggregator) CreateSquad(ctx context.Context, name string) (domain.Squad, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	uid, err := a.userID()
	if err != nil {
		return domain.Squad{}, err
	}
	squadID, err := a.ensureID("")
	if err != nil {
		return domain.Squad{}, err
	}
	codeID, err := a.ensureID("")
	if err != nil {
		return domain.Squad{}, err
	}
	squad := domain.Squad{
		ID:         squadID,
		Name:       strings.TrimSpace(name),
		OwnerID:    uid,
		InviteCode: id.InviteCode(codeID),
		CreatedAt:  a.now().UTC(),
	}
	if err := domain.Validate(squad); err != nil {
		return domain.Squad{}, err
	}
	if _, err := a.store.Upsert(ctx, storage.Squads, storage.SquadRow(squad)); err != nil {
		return domain.Squad{}, err
	}
	if err := a.join(ctx, uid, squad.ID, domain.SquadOwner); err != nil {
		return domain.Squad{}, err
	}
	return squad, a.refresh(ctx, storage.Memberships)
}

// JoinSquad joins the squad with the given invite code. Joining a squad the
// user already belongs to returns it unchanged.
func (a *Aggregator) JoinSquad(ctx context.Context, inviteCode string) (domain.Squad, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	uid, err := a.userID()
	if err != nil {
		return domain.Squad{}, err
	}
	code := id.NormalizeInviteCode(inviteCode)
	rows, err := a.store.List(ctx, storage.Squads, storage.Where{"invite_code": code})
	if err != nil {
		return domain.Squad{}, err
	}
	if len(rows) == 0 {
		return domain.Squad{}, notFound("squad", code)
	}
	squad := storage.SquadFromRow(rows[0])
	for _, m := range a.View().Memberships {
		if m.SquadID == squad.ID {
			return squad, nil
		}
	}
	if err := a.join(ctx, uid, squad.ID, domain.SquadMember); err != nil {
		return domain.Squad{}, err
	}
	return squad, a.refresh(ctx, storage.Memberships)
}

// LeaveSquad drops the user's membership. An owner leaving also deletes the
// squad.
func (a *Aggregator) LeaveSquad(ctx context.Context, squadID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	uid, err := a.userID()
	if err != nil {
		return err
	}
	var membership *domain.Membership
	for _, m := range a.View().Memberships {
		if m.SquadID == squadID {
			membership = &m
			break
		}
	}
	if membership == nil {
		return notFound("membership", squadID)
	}
	if err := a.deleteRow(ctx, storage.Memberships, membership.ID); err != nil {
		return err
	}
	if membership.Role == domain.SquadOwner {
		for _, s := range a.View().Squads {
			if s.ID == squadID && s.OwnerID == uid {
				if err := a.deleteRow(ctx, storage.Squads, s.ID); err != nil {
					return err
				}
			}
		}
	}
	return a.refresh(ctx, storage.Memberships)
}

func (a *Aggregator) join(ctx context.Context, uid, squadID string, role domain.SquadRole) error {
	memberID, err := a.ensureID("")
	if err != nil {
		return err
	}
	m := domain.Membership{ID: memberID, SquadID: squadID, UserID: uid, Role: role}
	if err := domain.Validate(m); err != nil {
		return err
	}
	_, err = a.store.Upsert(ctx, storage.Memberships, storage.MembershipRow(m))
	return err
}

// SetWorkSchedule replaces the user's working hours. Every span must end
// after it starts.
func (a *Aggregator) SetWorkSchedule(ctx context.Context, days map[string]domain.WorkHours) (domain.WorkSchedule, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	uid, err := a.userID()
	if err != nil {
		return domain.WorkSchedule{}, err
	}
	ws := domain.WorkSchedule{UserID: uid, Days: make(map[string]domain.WorkHours, len(days))}
	for day, hours := range days {
		ws.Days[strings.ToLower(strings.TrimSpace(day))] = hours
	}
	if err := domain.Validate(ws); err != nil {
		return domain.WorkSchedule{}, err
	}
	for day, hours := range ws.Days {
		if _, err := domain.ParseTimeRange(hours.Start, hours.End); err != nil {
			return domain.WorkSchedule{}, apperrors.WrapWithMetadata(apperrors.CodeValidation, "work hours on "+day, map[string]string{"Field": "days"}, err)
		}
	}
	row, err := storage.WorkScheduleRow(ws)
	if err != nil {
		return domain.WorkSchedule{}, apperrors.Wrap(apperrors.CodeFatal, "encode work schedule", err)
	}
	if _, err := a.store.Upsert(ctx, storage.WorkSchedules, row); err != nil {
		return domain.WorkSchedule{}, err
	}
	if err := a.refresh(ctx, storage.WorkSchedules); err != nil {
		return domain.WorkSchedule{}, err
	}
	return a.View().WorkSchedule, nil
}

// SetPreferences replaces the user's planning settings.
func (a *Aggregator) SetPreferences(ctx context.Context, prefs domain.Preferences) (domain.Preferences, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	uid, err := a.userID()
	if err != nil {
		return domain.Preferences{}, err
	}
	prefs.UserID = uid
	prefs.HomeAddress = strings.TrimSpace(prefs.HomeAddress)
	if err := domain.Validate(prefs); err != nil {
		return domain.Preferences{}, err
	}
	if _, err := a.store.Upsert(ctx, storage.Preferences, storage.PreferencesRow(prefs)); err != nil {
		return domain.Preferences{}, err
	}
	if err := a.refresh(ctx, storage.Preferences); err != nil {
		return domain.Preferences{}, err
	}
	return a.View().Preferences, nil
}

// deleteRow deletes a row, treating an already missing row as deleted.
func (a *Aggregator) deleteRow(ctx context.Context, c storage.Collection, rowID string) error {
	err := a.store.Delete(ctx, c, rowID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	return nil
}
