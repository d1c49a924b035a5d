package predicate

import (
	"time"

	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/geo"
)

// Env carries the context predicates are compiled against.
type Env struct {
	Now    time.Time
	Bounds Bounds
	Geo    *geo.Table
}

// Compiled splits a filter into the category test and everything else so
// facet counts can be taken before categories apply.
type Compiled struct {
	Base     Predicate
	Category Predicate
	Warnings []domain.Warning
}

// Match applies both parts.
func (c Compiled) Match(camp domain.Camp) bool {
	if !c.Base(camp) {
		return false
	}
	return c.Category == nil || c.Category(camp)
}

// Compile builds the predicates for f.
func Compile(f domain.Filter, env Env) Compiled {
	if env.Now.IsZero() {
		env.Now = time.Now()
	}
	var warnings []domain.Warning
	var distance Predicate
	if f.MaxMiles != nil {
		if origin, ok := env.Geo.Lookup(f.Origin); ok {
			distance = Distance(origin, *f.MaxMiles, env.Geo)
		} else {
			warnings = append(warnings, domain.Warning{
				Code:   domain.WarningDistanceNoOrigin,
				Detail: "distance radius ignored: origin not resolved",
			})
		}
	}
	return Compiled{
		Base: And(
			ExcludeClosed(f.ExcludeClosed),
			Text(f.Search),
			ChildAge(f.ChildAge),
			PriceRange(f.PriceMin, f.PriceMax, env.Bounds),
			WeekAvailability(f.Weeks),
			FeatureFlags(f.Flags),
			HasOpenings(f.HasOpenings, env.Now),
			distance,
		),
		Category: CategorySet(f.Categories),
		Warnings: warnings,
	}
}
