package domain

import "strings"

// Category is the single activity family a camp belongs to.
type Category string

const (
	CategoryArt           Category = "Art"
	CategoryBeachSurf     Category = "Beach/Surf"
	CategoryCooking       Category = "Cooking"
	CategoryDance         Category = "Dance"
	CategoryLanguage      Category = "Language"
	CategoryMultiActivity Category = "Multi-Activity"
	CategoryMusic         Category = "Music"
	CategoryNature        Category = "Nature"
	CategorySports        Category = "Sports"
	CategorySTEM          Category = "STEM"
	CategoryTheater       Category = "Theater"
)

var categories = []Category{
	CategoryArt,
	CategoryBeachSurf,
	CategoryCooking,
	CategoryDance,
	CategoryLanguage,
	CategoryMultiActivity,
	CategoryMusic,
	CategoryNature,
	CategorySports,
	CategorySTEM,
	CategoryTheater,
}

// Categories returns the closed category enumeration in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory maps a stored category to the enumeration. Matching ignores
// case and surrounding space; unknown values fall back to Multi-Activity.
func ParseCategory(value string) Category {
	c, ok := LookupCategory(value)
	if !ok {
		return CategoryMultiActivity
	}
	return c
}

// LookupCategory reports whether value names a known category.
func LookupCategory(value string) (Category, bool) {
	value = strings.TrimSpace(value)
	for _, c := range categories {
		if strings.EqualFold(string(c), value) {
			return c, true
		}
	}
	return "", false
}
