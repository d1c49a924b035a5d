// Package predicate holds the composable camp tests the query engine builds
// from a filter.
//
// A nil Predicate is neutral. And skips neutral inputs, so a filter with no
// restrictions compiles to All.
package predicate

import (
	"strings"
	"time"

	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/geo"
	"golang.org/x/text/cases"
)

// Predicate reports whether a camp passes a restriction.
type Predicate func(domain.Camp) bool

// All passes every camp.
func All(domain.Camp) bool { return true }

// And composes predicates. Nil entries are neutral.
func And(ps ...Predicate) Predicate {
	live := make([]Predicate, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			live = append(live, p)
		}
	}
	switch len(live) {
	case 0:
		return All
	case 1:
		return live[0]
	}
	return func(c domain.Camp) bool {
		for _, p := range live {
			if !p(c) {
				return false
			}
		}
		return true
	}
}

var fold = cases.Fold()

// Text matches q as a case-insensitive substring of the name or description.
func Text(q string) Predicate {
	q = fold.String(strings.TrimSpace(q))
	if q == "" {
		return nil
	}
	return func(c domain.Camp) bool {
		return strings.Contains(fold.String(c.Name), q) || strings.Contains(fold.String(c.Description), q)
	}
}

// CategorySet passes camps whose category is in set.
func CategorySet(set []domain.Category) Predicate {
	if len(set) == 0 {
		return nil
	}
	allowed := make(map[domain.Category]bool, len(set))
	for _, c := range set {
		allowed[domain.ParseCategory(string(c))] = true
	}
	return func(c domain.Camp) bool {
		return allowed[domain.ParseCategory(string(c.Category))]
	}
}

// ChildAge passes camps whose age range includes age. Missing bounds are
// open.
func ChildAge(age *int) Predicate {
	if age == nil {
		return nil
	}
	a := *age
	return func(c domain.Camp) bool {
		if c.MinAge != nil && a < *c.MinAge {
			return false
		}
		if c.MaxAge != nil && a > *c.MaxAge {
			return false
		}
		return true
	}
}

// Bounds are the catalog-wide numeric price extremes.
type Bounds struct {
	MinPrice int
	MaxPrice int
	// Priced is false when no camp has a numeric price.
	Priced bool
}

// PriceRange passes camps whose price interval meets [lo, hi]. Missing
// bounds take the catalog extremes. Camps without a numeric price pass only
// while neither bound is tighter than the catalog extreme.
func PriceRange(lo, hi *int, bounds Bounds) Predicate {
	if lo == nil && hi == nil {
		return nil
	}
	low, high := bounds.MinPrice, bounds.MaxPrice
	tight := false
	if lo != nil {
		low = *lo
		if !bounds.Priced || *lo > bounds.MinPrice {
			tight = true
		}
	}
	if hi != nil {
		high = *hi
		if !bounds.Priced || *hi < bounds.MaxPrice {
			tight = true
		}
	}
	return func(c domain.Camp) bool {
		n, ok := domain.NumericPrice(c)
		if !ok {
			return !tight
		}
		return n.Lo <= high && n.Hi >= low
	}
}

// WeekAvailability passes camps that run in any of weeks. Camps without
// schedule data pass.
func WeekAvailability(weeks []string) Predicate {
	if len(weeks) == 0 {
		return nil
	}
	return func(c domain.Camp) bool {
		if c.Weeks == nil {
			return true
		}
		for _, w := range weeks {
			if runs, _ := c.RunsIn(w); runs {
				return true
			}
		}
		return false
	}
}

// FeatureFlags passes camps carrying every requested flag.
func FeatureFlags(f domain.Flags) Predicate {
	if !f.Any() {
		return nil
	}
	return func(c domain.Camp) bool {
		return (!f.ExtendedCare || c.HasExtendedCare) &&
			(!f.FoodIncluded || c.FoodIncluded) &&
			(!f.HasTransport || c.HasTransport) &&
			(!f.SiblingDiscount || c.HasSiblingDiscount)
	}
}

// HasOpenings rejects camps whose registration is full or closed as of now.
func HasOpenings(enabled bool, now time.Time) Predicate {
	if !enabled {
		return nil
	}
	return func(c domain.Camp) bool {
		switch CampUrgency(c, now).Urgency {
		case UrgencyFull, UrgencyClosed:
			return false
		}
		return true
	}
}

// Distance passes camps within maxMiles of origin. Camps whose address does
// not resolve are excluded.
func Distance(origin geo.Point, maxMiles float64, table *geo.Table) Predicate {
	return func(c domain.Camp) bool {
		p, ok := table.Lookup(c.Address)
		if !ok {
			return false
		}
		return geo.Miles(origin, p) <= maxMiles
	}
}

// ExcludeClosed rejects closed camps.
func ExcludeClosed(enabled bool) Predicate {
	if !enabled {
		return nil
	}
	return func(c domain.Camp) bool { return !c.IsClosed }
}
