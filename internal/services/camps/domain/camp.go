package domain

import (
	"strings"
	"time"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
)

// Camp is one catalog record. Nil numeric fields are unknown ("TBD").
type Camp struct {
	ID          string
	Name        string
	Category    Category
	Description string

	MinAge *int
	MaxAge *int

	// MinPrice and MaxPrice are whole dollars per week.
	MinPrice  *int
	MaxPrice  *int
	PriceWeek string

	HasExtendedCare     bool
	FoodIncluded        bool
	HasTransport        bool
	HasSiblingDiscount  bool
	SiblingDiscountRate *float64
	IsClosed            bool

	ImageURL string
	Address  string
	Phone    string
	Email    string
	Website  string

	RegDate2026 string

	// Weeks lists the summer week ids the camp runs. Nil means unknown.
	Weeks []string

	HoursStart    string
	HoursEnd      string
	ExtendedStart string
	ExtendedEnd   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the identity and ordering invariants of a catalog row.
func (c Camp) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return apperrors.WithMetadata(apperrors.CodeValidation, "camp id is required", map[string]string{"Field": "id"})
	}
	if strings.TrimSpace(c.Name) == "" {
		return apperrors.WithMetadata(apperrors.CodeValidation, "camp name is required", map[string]string{"Field": "camp_name"})
	}
	if c.MinAge != nil && c.MaxAge != nil && *c.MinAge > *c.MaxAge {
		return apperrors.WithMetadata(apperrors.CodeValidation, "camp min_age exceeds max_age", map[string]string{"Field": "min_age"})
	}
	if c.MinPrice != nil && c.MaxPrice != nil && *c.MinPrice > *c.MaxPrice {
		return apperrors.WithMetadata(apperrors.CodeValidation, "camp min_price exceeds max_price", map[string]string{"Field": "min_price"})
	}
	if c.MinPrice != nil && *c.MinPrice < 0 {
		return apperrors.WithMetadata(apperrors.CodeValidation, "camp min_price is negative", map[string]string{"Field": "min_price"})
	}
	if c.SiblingDiscountRate != nil && (*c.SiblingDiscountRate < 0 || *c.SiblingDiscountRate > 1) {
		return apperrors.WithMetadata(apperrors.CodeValidation, "camp sibling discount rate must be within [0,1]", map[string]string{"Field": "sibling_discount_rate"})
	}
	return nil
}

// RunsIn reports whether the camp runs during week. known is false when the
// camp has no schedule data.
func (c Camp) RunsIn(weekID string) (runs bool, known bool) {
	if c.Weeks == nil {
		return false, false
	}
	for _, id := range c.Weeks {
		if id == weekID {
			return true, true
		}
	}
	return false, true
}

// DailyHours returns the span a child can attend on a camp day, widened by
// extended care when the camp offers it. ok is false when hours are unknown.
func (c Camp) DailyHours() (TimeRange, bool) {
	base, err := ParseTimeRange(c.HoursStart, c.HoursEnd)
	if err != nil {
		return TimeRange{}, false
	}
	if !c.HasExtendedCare {
		return base, true
	}
	if start, err := ParseClock(c.ExtendedStart); err == nil && start < base.Start {
		base.Start = start
	}
	if end, err := ParseClock(c.ExtendedEnd); err == nil && end > base.End {
		base.End = end
	}
	return base, true
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
