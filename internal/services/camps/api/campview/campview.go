// Package campview renders query results as the JSON documents served by
// the catalog API and the MCP tools.
package campview

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/predicate"
	"github.com/louisbranch/campplanner/internal/services/camps/query"
)

// Camp is the public summary of one camp.
type Camp struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Category        string   `json:"category,omitempty"`
	Price           string   `json:"price"`
	MinPrice        *int     `json:"minPrice,omitempty"`
	MaxPrice        *int     `json:"maxPrice,omitempty"`
	MinAge          *int     `json:"minAge,omitempty"`
	MaxAge          *int     `json:"maxAge,omitempty"`
	Weeks           []string `json:"weeks,omitempty"`
	Address         string   `json:"address,omitempty"`
	Website         string   `json:"website,omitempty"`
	IsClosed        bool     `json:"isClosed,omitempty"`
	Urgency         string   `json:"urgency"`
	RegistrationDay string   `json:"registrationOpens,omitempty"`
	DaysUntil       *int     `json:"daysUntilRegistration,omitempty"`
}

// Facet is one category count.
type Facet struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Warning is a non-fatal evaluation note.
type Warning struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// Result is one evaluated filter.
type Result struct {
	SnapshotVersion int64     `json:"snapshotVersion"`
	Fingerprint     string    `json:"fingerprint"`
	Total           int       `json:"total"`
	Camps           []Camp    `json:"camps"`
	Facets          []Facet   `json:"facets"`
	Warnings        []Warning `json:"warnings,omitempty"`
}

// Price renders a camp's weekly price for display.
func Price(c domain.Camp) string {
	switch p := domain.PriceOf(c).(type) {
	case domain.Numeric:
		if p.Free() && p.Hi == 0 {
			return "Free"
		}
		if p.Lo == p.Hi {
			return fmt.Sprintf("$%d/week", p.Lo)
		}
		return fmt.Sprintf("$%d-$%d/week", p.Lo, p.Hi)
	case domain.FreeText:
		return p.Text
	default:
		return "TBD"
	}
}

// FromCamp summarizes c as of now.
func FromCamp(c domain.Camp, now time.Time) Camp {
	reg := predicate.CampUrgency(c, now)
	out := Camp{
		ID:       c.ID,
		Name:     c.Name,
		Category: string(c.Category),
		Price:    Price(c),
		MinPrice: c.MinPrice,
		MaxPrice: c.MaxPrice,
		MinAge:   c.MinAge,
		MaxAge:   c.MaxAge,
		Weeks:    c.Weeks,
		Address:  c.Address,
		Website:  c.Website,
		IsClosed: c.IsClosed,
		Urgency:  string(reg.Urgency),
	}
	if !reg.Opens.IsZero() {
		out.RegistrationDay = reg.Opens.Format(time.DateOnly)
		days := reg.DaysUntil
		out.DaysUntil = &days
	}
	return out
}

// FromResult renders res. limit caps the camps listed; zero lists all.
func FromResult(res query.Result, now time.Time, limit int) Result {
	out := Result{
		SnapshotVersion: res.SnapshotVersion,
		Fingerprint:     res.Fingerprint,
		Total:           res.Total,
		Camps:           []Camp{},
		Facets:          []Facet{},
	}
	for i, c := range res.Results {
		if limit > 0 && i >= limit {
			break
		}
		out.Camps = append(out.Camps, FromCamp(c, now))
	}
	for _, cat := range domain.Categories() {
		out.Facets = append(out.Facets, Facet{Category: string(cat), Count: res.FacetCounts[cat]})
	}
	sort.SliceStable(out.Facets, func(i, j int) bool { return out.Facets[i].Count > out.Facets[j].Count })
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, Warning{Code: string(w.Code), Detail: w.Detail})
	}
	return out
}

// Map converts v to a generic JSON object.
func Map(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode view: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode view: %w", err)
	}
	return out, nil
}
