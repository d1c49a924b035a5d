package storage

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/campplanner/internal/services/camps/domain"
)

func optInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func rowInt(r Row, col string) *int {
	v, ok := r.Int(col)
	if !ok {
		return nil
	}
	n := int(v)
	return &n
}

func optText(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// ChildRow encodes a child.
func ChildRow(c domain.Child) Row {
	return Row{
		"id":               c.ID,
		"user_id":          c.UserID,
		"name":             c.Name,
		"age_as_of_summer": optInt(c.AgeAsOfSummer),
		"color":            c.Color,
		"notes":            c.Notes,
	}
}

// ChildFromRow decodes a child.
func ChildFromRow(r Row) domain.Child {
	return domain.Child{
		ID:            r.ID(),
		UserID:        r.String("user_id"),
		Name:          r.String("name"),
		AgeAsOfSummer: rowInt(r, "age_as_of_summer"),
		Color:         r.String("color"),
		Notes:         r.String("notes"),
	}
}

// FavoriteRow encodes a favorite.
func FavoriteRow(f domain.Favorite) Row {
	return Row{
		"id":       f.ID,
		"user_id":  f.UserID,
		"camp_id":  f.CampID,
		"child_id": optText(f.ChildID),
		"notes":    f.Notes,
	}
}

// FavoriteFromRow decodes a favorite.
func FavoriteFromRow(r Row) domain.Favorite {
	return domain.Favorite{
		ID:      r.ID(),
		UserID:  r.String("user_id"),
		CampID:  r.String("camp_id"),
		ChildID: r.String("child_id"),
		Notes:   r.String("notes"),
	}
}

// SlotRow encodes a scheduled slot.
func SlotRow(s domain.ScheduledSlot) Row {
	return Row{
		"id":            s.ID,
		"user_id":       s.UserID,
		"child_id":      s.ChildID,
		"week_id":       s.WeekID,
		"camp_id":       s.CampID,
		"status":        string(s.Status),
		"cost_override": optInt(s.CostOverride),
		"notes":         s.Notes,
	}
}

// SlotFromRow decodes a scheduled slot. Rows written before statuses existed
// read as tentative.
func SlotFromRow(r Row) domain.ScheduledSlot {
	status := domain.SlotStatus(r.String("status"))
	if status == "" {
		status = domain.SlotTentative
	}
	return domain.ScheduledSlot{
		ID:           r.ID(),
		UserID:       r.String("user_id"),
		ChildID:      r.String("child_id"),
		WeekID:       r.String("week_id"),
		CampID:       r.String("camp_id"),
		Status:       status,
		CostOverride: rowInt(r, "cost_override"),
		Notes:        r.String("notes"),
	}
}

// ReviewRow encodes a review.
func ReviewRow(v domain.Review) Row {
	var year any
	if v.YearAttended != 0 {
		year = int64(v.YearAttended)
	}
	return Row{
		"id":                v.ID,
		"user_id":           v.UserID,
		"camp_id":           v.CampID,
		"overall_rating":    int64(v.OverallRating),
		"value_rating":      int64(v.ValueRating),
		"staff_rating":      int64(v.StaffRating),
		"activities_rating": int64(v.ActivitiesRating),
		"safety_rating":     int64(v.SafetyRating),
		"title":             v.Title,
		"review_text":       v.ReviewText,
		"year_attended":     year,
		"child_age_at_time": optInt(v.ChildAgeAtTime),
		"would_recommend":   v.WouldRecommend,
		"helpful_count":     int64(v.HelpfulCount),
		"created_at":        v.CreatedAt,
	}
}

// ReviewFromRow decodes a review.
func ReviewFromRow(r Row) domain.Review {
	v := domain.Review{
		ID:             r.ID(),
		UserID:         r.String("user_id"),
		CampID:         r.String("camp_id"),
		Title:          r.String("title"),
		ReviewText:     r.String("review_text"),
		ChildAgeAtTime: rowInt(r, "child_age_at_time"),
		WouldRecommend: r.Bool("would_recommend"),
		CreatedAt:      r.Time("created_at"),
	}
	ratings := []struct {
		col string
		dst *int
	}{
		{"overall_rating", &v.OverallRating},
		{"value_rating", &v.ValueRating},
		{"staff_rating", &v.StaffRating},
		{"activities_rating", &v.ActivitiesRating},
		{"safety_rating", &v.SafetyRating},
		{"helpful_count", &v.HelpfulCount},
		{"year_attended", &v.YearAttended},
	}
	for _, rt := range ratings {
		if n, ok := r.Int(rt.col); ok {
			*rt.dst = int(n)
		}
	}
	return v
}

// SavedSearchRow encodes a saved search.
func SavedSearchRow(s domain.SavedSearch) Row {
	return Row{
		"id":           s.ID,
		"user_id":      s.UserID,
		"name":         s.Name,
		"filter_json":  s.FilterJSON,
		"filter_count": int64(s.FilterCount),
		"created_at":   s.CreatedAt,
	}
}

// SavedSearchFromRow decodes a saved search.
func SavedSearchFromRow(r Row) domain.SavedSearch {
	count, _ := r.Int("filter_count")
	return domain.SavedSearch{
		ID:          r.ID(),
		UserID:      r.String("user_id"),
		Name:        r.String("name"),
		FilterJSON:  r.String("filter_json"),
		FilterCount: int(count),
		CreatedAt:   r.Time("created_at"),
	}
}

// SquadRow encodes a squad.
func SquadRow(s domain.Squad) Row {
	return Row{
		"id":          s.ID,
		"name":        s.Name,
		"owner_id":    s.OwnerID,
		"invite_code": s.InviteCode,
		"created_at":  s.CreatedAt,
	}
}

// SquadFromRow decodes a squad.
func SquadFromRow(r Row) domain.Squad {
	return domain.Squad{
		ID:         r.ID(),
		Name:       r.String("name"),
		OwnerID:    r.String("owner_id"),
		InviteCode: r.String("invite_code"),
		CreatedAt:  r.Time("created_at"),
	}
}

// MembershipRow encodes a membership.
func MembershipRow(m domain.Membership) Row {
	return Row{
		"id":       m.ID,
		"squad_id": m.SquadID,
		"user_id":  m.UserID,
		"role":     string(m.Role),
	}
}

// MembershipFromRow decodes a membership.
func MembershipFromRow(r Row) domain.Membership {
	return domain.Membership{
		ID:      r.ID(),
		SquadID: r.String("squad_id"),
		UserID:  r.String("user_id"),
		Role:    domain.SquadRole(r.String("role")),
	}
}

// WorkScheduleRow encodes a work schedule. The row id is the user id since
// each user has one schedule.
func WorkScheduleRow(w domain.WorkSchedule) (Row, error) {
	days, err := json.Marshal(w.Days)
	if err != nil {
		return nil, fmt.Errorf("encode work schedule: %w", err)
	}
	return Row{
		"id":        w.UserID,
		"user_id":   w.UserID,
		"days_json": string(days),
	}, nil
}

// WorkScheduleFromRow decodes a work schedule.
func WorkScheduleFromRow(r Row) (domain.WorkSchedule, error) {
	w := domain.WorkSchedule{UserID: r.String("user_id"), Days: map[string]domain.WorkHours{}}
	raw := r.String("days_json")
	if raw == "" {
		return w, nil
	}
	if err := json.Unmarshal([]byte(raw), &w.Days); err != nil {
		return domain.WorkSchedule{}, fmt.Errorf("decode work schedule: %w", err)
	}
	return w, nil
}

// PreferencesRow encodes preferences. The row id is the user id.
func PreferencesRow(p domain.Preferences) Row {
	return Row{
		"id":           p.UserID,
		"user_id":      p.UserID,
		"budget_cap":   optInt(p.BudgetCap),
		"home_address": p.HomeAddress,
		"locale":       p.Locale,
	}
}

// PreferencesFromRow decodes preferences.
func PreferencesFromRow(r Row) domain.Preferences {
	return domain.Preferences{
		UserID:      r.String("user_id"),
		BudgetCap:   rowInt(r, "budget_cap"),
		HomeAddress: r.String("home_address"),
		Locale:      r.String("locale"),
	}
}
