// Package geo resolves addresses through a bounded, caller-supplied lookup
// table and measures great-circle distances. It performs no geocoding.
package geo

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// EarthRadiusMiles is the mean Earth radius used by Miles.
const EarthRadiusMiles = 3958.8

// DefaultMaxEntries bounds a table when no limit is configured.
const DefaultMaxEntries = 5000

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether the coordinates are in range.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Miles returns the Haversine distance between a and b.
func Miles(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Table maps normalized addresses to coordinates. It is safe for concurrent
// use.
type Table struct {
	mu      sync.RWMutex
	max     int
	entries map[string]Point
}

// NewTable returns an empty table holding at most max entries.
func NewTable(max int) *Table {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Table{max: max, entries: make(map[string]Point)}
}

// Normalize folds an address to its lookup key.
func Normalize(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(address)), " ")
}

// Add records address. It fails when the table is full or the point is out
// of range.
func (t *Table) Add(address string, p Point) error {
	key := Normalize(address)
	if key == "" {
		return fmt.Errorf("address is required")
	}
	if !p.Valid() {
		return fmt.Errorf("coordinates out of range for %q", address)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[key]; !exists && len(t.entries) >= t.max {
		return fmt.Errorf("geo table full (%d entries)", t.max)
	}
	t.entries[key] = p
	return nil
}

// Lookup resolves address.
func (t *Table) Lookup(address string) (Point, bool) {
	if t == nil {
		return Point{}, false
	}
	key := Normalize(address)
	if key == "" {
		return Point{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.entries[key]
	return p, ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Distance resolves both addresses and returns the miles between them.
func (t *Table) Distance(from, to string) (float64, bool) {
	a, ok := t.Lookup(from)
	if !ok {
		return 0, false
	}
	b, ok := t.Lookup(to)
	if !ok {
		return 0, false
	}
	return Miles(a, b), true
}
