package domain

import (
	"fmt"
	"time"
)

// Snapshot is an immutable, versioned catalog. Readers share it freely.
type Snapshot struct {
	version  int64
	loadedAt time.Time
	camps    []Camp
	byID     map[string]int
}

// NewSnapshot validates camps and publishes the valid ones. Invalid or
// duplicate rows are skipped and reported as warnings.
func NewSnapshot(version int64, camps []Camp, loadedAt time.Time) (*Snapshot, []Warning) {
	s := &Snapshot{
		version:  version,
		loadedAt: loadedAt,
		camps:    make([]Camp, 0, len(camps)),
		byID:     make(map[string]int, len(camps)),
	}
	var warnings []Warning
	for _, c := range camps {
		if err := c.Validate(); err != nil {
			warnings = append(warnings, Warning{
				Code:     WarningSkippedCamp,
				Detail:   fmt.Sprintf("camp %q: %v", c.ID, err),
				Metadata: map[string]string{"CampID": c.ID},
			})
			continue
		}
		if _, dup := s.byID[c.ID]; dup {
			warnings = append(warnings, Warning{
				Code:     WarningSkippedCamp,
				Detail:   fmt.Sprintf("camp %q: duplicate id", c.ID),
				Metadata: map[string]string{"CampID": c.ID},
			})
			continue
		}
		c.Category = ParseCategory(string(c.Category))
		s.byID[c.ID] = len(s.camps)
		s.camps = append(s.camps, c)
	}
	return s, warnings
}

// Version identifies the snapshot. Results carry it so stale ones can be
// dropped.
func (s *Snapshot) Version() int64 {
	if s == nil {
		return 0
	}
	return s.version
}

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}

// Len returns the number of camps.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.camps)
}

// Camp looks up a camp by id.
func (s *Snapshot) Camp(id string) (Camp, bool) {
	if s == nil {
		return Camp{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return Camp{}, false
	}
	return s.camps[i], true
}

// Camps returns the camps in load order. The slice is a copy.
func (s *Snapshot) Camps() []Camp {
	if s == nil {
		return nil
	}
	out := make([]Camp, len(s.camps))
	copy(out, s.camps)
	return out
}

// Each calls fn for every camp in load order until fn returns false.
func (s *Snapshot) Each(fn func(Camp) bool) {
	if s == nil {
		return
	}
	for _, c := range s.camps {
		if !fn(c) {
			return
		}
	}
}
