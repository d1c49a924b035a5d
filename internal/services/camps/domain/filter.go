package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"golang.org/x/text/cases"
)

// SortField names a ranking key.
type SortField string

const (
	SortName     SortField = "name"
	SortMinPrice SortField = "min_price"
	SortMinAge   SortField = "min_age"
	SortDistance SortField = "distance"
	SortCategory SortField = "category"
	SortRecency  SortField = "recency"
)

// SortFields lists the recognized ranking keys.
func SortFields() []SortField {
	return []SortField{SortName, SortMinPrice, SortMinAge, SortDistance, SortCategory, SortRecency}
}

// SortDir is the ranking direction.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// Flags are the feature requirements a camp must all satisfy.
type Flags struct {
	ExtendedCare    bool `json:"extendedCare,omitempty"`
	FoodIncluded    bool `json:"foodIncluded,omitempty"`
	HasTransport    bool `json:"hasTransport,omitempty"`
	SiblingDiscount bool `json:"siblingDiscount,omitempty"`
}

// Any reports whether at least one flag is requested.
func (f Flags) Any() bool {
	return f.ExtendedCare || f.FoodIncluded || f.HasTransport || f.SiblingDiscount
}

// Filter is the typed catalog query. The zero value matches every camp and
// sorts by name.
type Filter struct {
	Search         string     `json:"search,omitempty"`
	Categories     []Category `json:"categories,omitempty"`
	ChildAge       *int       `json:"childAge,omitempty"`
	PriceMin       *int       `json:"priceMin,omitempty"`
	PriceMax       *int       `json:"priceMax,omitempty"`
	Weeks          []string   `json:"weeks,omitempty"`
	Flags          Flags      `json:"flags,omitzero"`
	HasOpenings    bool       `json:"hasOpenings,omitempty"`
	SortByDistance bool       `json:"sortByDistance,omitempty"`
	SortField      SortField  `json:"sortField,omitempty"`
	SortDir        SortDir    `json:"sortDir,omitempty"`
	Origin         string     `json:"origin,omitempty"`
	MaxMiles       *float64   `json:"maxMiles,omitempty"`
	ExcludeClosed  bool       `json:"excludeClosed,omitempty"`
}

// DecodeFilter parses the filter wire format. Unknown fields, unknown enum
// values and trailing data are validation errors.
func DecodeFilter(data []byte) (Filter, error) {
	var f Filter
	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return Filter{}, apperrors.WrapWithMetadata(apperrors.CodeValidation, "decode filter", map[string]string{"Field": "filter"}, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Filter{}, apperrors.WithMetadata(apperrors.CodeValidation, "decode filter: trailing data", map[string]string{"Field": "filter"})
	}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// EncodeFilter returns the canonical wire JSON of f.
func EncodeFilter(f Filter) (string, error) {
	data, err := json.Marshal(f.Canonical())
	if err != nil {
		return "", fmt.Errorf("encode filter: %w", err)
	}
	return string(data), nil
}

// Validate checks enum and range fields.
func (f Filter) Validate() error {
	invalid := func(field, msg string) error {
		return apperrors.WithMetadata(apperrors.CodeValidation, "filter "+field+": "+msg, map[string]string{"Field": field})
	}
	for _, c := range f.Categories {
		if _, ok := LookupCategory(string(c)); !ok {
			return invalid("categories", fmt.Sprintf("unknown category %q", c))
		}
	}
	for _, w := range f.Weeks {
		if !ValidWeek(w) {
			return invalid("weeks", fmt.Sprintf("unknown week %q", w))
		}
	}
	if f.ChildAge != nil && (*f.ChildAge < 0 || *f.ChildAge > 25) {
		return invalid("childAge", "must be within 0-25")
	}
	if f.PriceMin != nil && *f.PriceMin < 0 {
		return invalid("priceMin", "must not be negative")
	}
	if f.PriceMax != nil && *f.PriceMax < 0 {
		return invalid("priceMax", "must not be negative")
	}
	if f.MaxMiles != nil && *f.MaxMiles < 0 {
		return invalid("maxMiles", "must not be negative")
	}
	if f.SortField != "" && !slices.Contains(SortFields(), f.SortField) {
		return invalid("sortField", fmt.Sprintf("unknown sort field %q", f.SortField))
	}
	switch f.SortDir {
	case "", SortAsc, SortDesc:
	default:
		return invalid("sortDir", fmt.Sprintf("unknown sort direction %q", f.SortDir))
	}
	return nil
}

var fold = cases.Fold()

// Canonical returns the equivalent filter in normal form: search trimmed and
// case folded, sets sorted and de-duplicated, categories spelled as the
// enumeration, neutral fields cleared.
func (f Filter) Canonical() Filter {
	out := f
	out.Search = fold.String(strings.TrimSpace(f.Search))

	out.Categories = nil
	for _, c := range f.Categories {
		if known, ok := LookupCategory(string(c)); ok {
			out.Categories = append(out.Categories, known)
		}
	}
	slices.Sort(out.Categories)
	out.Categories = slices.Compact(out.Categories)

	out.Weeks = slices.Clone(f.Weeks)
	slices.SortFunc(out.Weeks, compareWeekIDs)
	out.Weeks = slices.Compact(out.Weeks)
	if len(out.Weeks) == 0 {
		out.Weeks = nil
	}

	out.Origin = strings.TrimSpace(f.Origin)
	if f.SortByDistance && f.SortField == "" {
		out.SortField = SortDistance
	}
	out.SortByDistance = false
	if out.SortField == SortName {
		out.SortField = ""
	}
	if out.SortDir == SortAsc {
		out.SortDir = ""
	}
	return out
}

// Sort returns the effective sort key and direction.
func (f Filter) Sort() (SortField, SortDir) {
	field := f.SortField
	if field == "" {
		field = SortName
		if f.SortByDistance {
			field = SortDistance
		}
	}
	dir := f.SortDir
	if dir == "" {
		dir = SortAsc
	}
	return field, dir
}

// ActiveDimensions counts the non-neutral restrictions in f. Sorting is not
// a restriction.
func (f Filter) ActiveDimensions() int {
	c := f.Canonical()
	n := 0
	if c.Search != "" {
		n++
	}
	if len(c.Categories) > 0 {
		n++
	}
	if c.ChildAge != nil {
		n++
	}
	if c.PriceMin != nil || c.PriceMax != nil {
		n++
	}
	if len(c.Weeks) > 0 {
		n++
	}
	if c.Flags.Any() {
		n++
	}
	if c.HasOpenings {
		n++
	}
	if c.Origin != "" && c.MaxMiles != nil {
		n++
	}
	if c.ExcludeClosed {
		n++
	}
	return n
}

// WithoutCategories returns f with the category restriction removed.
func (f Filter) WithoutCategories() Filter {
	f.Categories = nil
	return f
}

func compareWeekIDs(a, b string) int {
	wa, oka := WeekByID(a)
	wb, okb := WeekByID(b)
	if oka && okb {
		return wa.Index - wb.Index
	}
	return strings.Compare(a, b)
}

// FilterPatch is a partial filter update. Nil fields are left unchanged;
// Clear names fields reset to neutral.
type FilterPatch struct {
	Search         *string     `json:"search,omitempty"`
	Categories     *[]Category `json:"categories,omitempty"`
	ChildAge       *int        `json:"childAge,omitempty"`
	PriceMin       *int        `json:"priceMin,omitempty"`
	PriceMax       *int        `json:"priceMax,omitempty"`
	Weeks          *[]string   `json:"weeks,omitempty"`
	Flags          *Flags      `json:"flags,omitempty"`
	HasOpenings    *bool       `json:"hasOpenings,omitempty"`
	SortByDistance *bool       `json:"sortByDistance,omitempty"`
	SortField      *SortField  `json:"sortField,omitempty"`
	SortDir        *SortDir    `json:"sortDir,omitempty"`
	Origin         *string     `json:"origin,omitempty"`
	MaxMiles       *float64    `json:"maxMiles,omitempty"`
	ExcludeClosed  *bool       `json:"excludeClosed,omitempty"`
	Clear          []string    `json:"clear,omitempty"`
}

// Apply returns f updated by p. The result is validated.
func (p FilterPatch) Apply(f Filter) (Filter, error) {
	for _, field := range p.Clear {
		switch field {
		case "search":
			f.Search = ""
		case "categories":
			f.Categories = nil
		case "childAge":
			f.ChildAge = nil
		case "priceMin":
			f.PriceMin = nil
		case "priceMax":
			f.PriceMax = nil
		case "weeks":
			f.Weeks = nil
		case "flags":
			f.Flags = Flags{}
		case "origin":
			f.Origin = ""
		case "maxMiles":
			f.MaxMiles = nil
		default:
			return Filter{}, apperrors.WithMetadata(apperrors.CodeValidation, fmt.Sprintf("filter patch: cannot clear %q", field), map[string]string{"Field": "clear"})
		}
	}
	if p.Search != nil {
		f.Search = *p.Search
	}
	if p.Categories != nil {
		f.Categories = slices.Clone(*p.Categories)
	}
	if p.ChildAge != nil {
		f.ChildAge = IntPtr(*p.ChildAge)
	}
	if p.PriceMin != nil {
		f.PriceMin = IntPtr(*p.PriceMin)
	}
	if p.PriceMax != nil {
		f.PriceMax = IntPtr(*p.PriceMax)
	}
	if p.Weeks != nil {
		f.Weeks = slices.Clone(*p.Weeks)
	}
	if p.Flags != nil {
		f.Flags = *p.Flags
	}
	if p.HasOpenings != nil {
		f.HasOpenings = *p.HasOpenings
	}
	if p.SortByDistance != nil {
		f.SortByDistance = *p.SortByDistance
	}
	if p.SortField != nil {
		f.SortField = *p.SortField
	}
	if p.SortDir != nil {
		f.SortDir = *p.SortDir
	}
	if p.Origin != nil {
		f.Origin = *p.Origin
	}
	if p.MaxMiles != nil {
		v := *p.MaxMiles
		f.MaxMiles = &v
	}
	if p.ExcludeClosed != nil {
		f.ExcludeClosed = *p.ExcludeClosed
	}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}
