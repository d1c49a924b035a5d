// Package rank orders camps under a composite key: the requested field, then
// name, then id. Missing values sort last in either direction.
package rank

import (
	"bytes"
	"slices"
	"strings"

	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/geo"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Options selects the ordering.
type Options struct {
	Field domain.SortField
	Dir   domain.SortDir
	// Origin is the address distances are measured from.
	Origin string
	Geo    *geo.Table
	// Locale drives name collation. The zero tag collates as English.
	Locale language.Tag
}

type sortKey struct {
	missing bool
	num     float64
	text    string
}

type entry struct {
	camp domain.Camp
	key  sortKey
}

// Sort orders camps in place and returns any warnings. A distance sort
// without a resolvable origin falls back to name.
func Sort(camps []domain.Camp, opts Options) []domain.Warning {
	var warnings []domain.Warning
	field := opts.Field
	if field == "" {
		field = domain.SortName
	}
	var origin geo.Point
	if field == domain.SortDistance {
		p, ok := opts.Geo.Lookup(opts.Origin)
		if !ok {
			warnings = append(warnings, domain.Warning{
				Code:   domain.WarningDistanceNoOrigin,
				Detail: "distance sort needs a resolved origin; sorted by name",
			})
			field = domain.SortName
		}
		origin = p
	}
	desc := opts.Dir == domain.SortDesc

	tag := opts.Locale
	if tag == language.Und {
		tag = language.English
	}
	// Collators are not safe for concurrent use.
	col := collate.New(tag, collate.IgnoreCase)
	var buf collate.Buffer

	entries := make([]entry, len(camps))
	for i, c := range camps {
		entries[i] = entry{camp: c, key: keyFor(c, field, origin, opts.Geo)}
	}
	names := make(map[string][]byte, len(camps))
	nameKey := func(c domain.Camp) []byte {
		if k, ok := names[c.ID]; ok {
			return k
		}
		k := slices.Clone(col.KeyFromString(&buf, c.Name))
		buf.Reset()
		names[c.ID] = k
		return k
	}

	slices.SortStableFunc(entries, func(a, b entry) int {
		if field != domain.SortName {
			if r := comparePrimary(a.key, b.key, desc, col); r != 0 {
				return r
			}
			if r := bytes.Compare(nameKey(a.camp), nameKey(b.camp)); r != 0 {
				return r
			}
		} else {
			if r := compareNames(a.camp, b.camp, desc, nameKey); r != 0 {
				return r
			}
		}
		return strings.Compare(a.camp.ID, b.camp.ID)
	})
	for i := range entries {
		camps[i] = entries[i].camp
	}
	return warnings
}

func keyFor(c domain.Camp, field domain.SortField, origin geo.Point, table *geo.Table) sortKey {
	switch field {
	case domain.SortMinPrice:
		if n, ok := domain.NumericPrice(c); ok {
			return sortKey{num: float64(n.Lo)}
		}
	case domain.SortMinAge:
		if c.MinAge != nil {
			return sortKey{num: float64(*c.MinAge)}
		}
	case domain.SortDistance:
		if p, ok := table.Lookup(c.Address); ok {
			return sortKey{num: geo.Miles(origin, p)}
		}
	case domain.SortCategory:
		return sortKey{text: string(domain.ParseCategory(string(c.Category)))}
	case domain.SortRecency:
		if !c.CreatedAt.IsZero() {
			return sortKey{num: float64(c.CreatedAt.UnixMilli())}
		}
	}
	return sortKey{missing: true}
}

func comparePrimary(a, b sortKey, desc bool, col *collate.Collator) int {
	switch {
	case a.missing && b.missing:
		return 0
	case a.missing:
		return 1
	case b.missing:
		return -1
	}
	var r int
	if a.text != "" || b.text != "" {
		r = col.CompareString(a.text, b.text)
	} else {
		switch {
		case a.num < b.num:
			r = -1
		case a.num > b.num:
			r = 1
		}
	}
	if desc {
		r = -r
	}
	return r
}

func compareNames(a, b domain.Camp, desc bool, nameKey func(domain.Camp) []byte) int {
	aEmpty := strings.TrimSpace(a.Name) == ""
	bEmpty := strings.TrimSpace(b.Name) == ""
	switch {
	case aEmpty && bEmpty:
		return 0
	case aEmpty:
		return 1
	case bEmpty:
		return -1
	}
	r := bytes.Compare(nameKey(a), nameKey(b))
	if desc {
		r = -r
	}
	return r
}
