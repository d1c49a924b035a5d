// Package planner owns the signed-in user's (child, week) to camp
// assignments. The mapping is a partial function: a week holds at most one
// live slot per child, and replacing an occupant requires force.
package planner

import (
	"context"
	"errors"
	"sort"
	"sync"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/platform/id"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/storage"
)

// DefaultSiblingDiscountRate applies when a camp offers a sibling discount
// without stating its rate.
const DefaultSiblingDiscountRate = 0.10

// State is a slot's position in its lifecycle. A key with no slot is empty.
type State string

const (
	Tentative State = "tentative"
	Confirmed State = "confirmed"
	Cancelled State = "cancelled"
)

// Key identifies a slot.
type Key struct {
	ChildID string
	WeekID  string
}

// Slot is one planned week for one child.
type Slot struct {
	ID      string
	ChildID string
	WeekID  string
	CampID  string
	State   State
	// CostOverride replaces the catalog price, in whole dollars.
	CostOverride *int
	Notes        string
}

// Key returns the slot's key.
func (s Slot) Key() Key { return Key{ChildID: s.ChildID, WeekID: s.WeekID} }

// Active reports whether the slot occupies its week.
func (s Slot) Active() bool { return s.State == Tentative || s.State == Confirmed }

// Option configures a Planner.
type Option func(*Planner)

// WithSiblingDiscountRate sets the rate used for camps that offer a sibling
// discount without a rate of their own.
func WithSiblingDiscountRate(rate float64) Option {
	return func(p *Planner) {
		if rate >= 0 && rate <= 1 {
			p.siblingRate = rate
		}
	}
}

// WithIDGenerator replaces the slot id generator.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(p *Planner) {
		if newID != nil {
			p.newID = newID
		}
	}
}

// Planner holds the slots of one user. Mutations apply to memory first and
// then persist through a per-key write queue; a failed write restores the
// key to its last persisted state.
type Planner struct {
	store       storage.Adapter
	newID       func() (string, error)
	siblingRate float64

	// opMu lets single-key mutations run together and makes Swap exclusive.
	opMu sync.RWMutex

	mu      sync.Mutex
	catalog *domain.Snapshot
	slots   map[Key]Slot
	durable map[Key]Slot
	gen     map[Key]uint64
	version uint64

	qmu   sync.Mutex
	lanes map[Key]*lane
}

// New returns an empty planner that persists through store.
func New(store storage.Adapter, opts ...Option) *Planner {
	p := &Planner{
		store:       store,
		newID:       id.NewID,
		siblingRate: DefaultSiblingDiscountRate,
		slots:       make(map[Key]Slot),
		durable:     make(map[Key]Slot),
		gen:         make(map[Key]uint64),
		lanes:       make(map[Key]*lane),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetCatalog points camp lookups at snapshot.
func (p *Planner) SetCatalog(snapshot *domain.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.catalog = snapshot
}

// Load replaces the in-memory slots with the user's stored slots.
func (p *Planner) Load(ctx context.Context) error {
	rows, err := p.store.List(ctx, storage.ScheduledSlots, nil)
	if err != nil {
		return err
	}
	slots := make(map[Key]Slot, len(rows))
	for _, row := range rows {
		s := fromStored(storage.SlotFromRow(row))
		slots[s.Key()] = s
	}

	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots = slots
	p.durable = make(map[Key]Slot, len(slots))
	for k, s := range slots {
		p.durable[k] = s
	}
	p.gen = make(map[Key]uint64)
	p.version++
	return nil
}

// Reset forgets every slot, as on sign-out.
func (p *Planner) Reset() {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots = make(map[Key]Slot)
	p.durable = make(map[Key]Slot)
	p.gen = make(map[Key]uint64)
	p.version++
}

// Version increases on every change to the slot set.
func (p *Planner) Version() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// Slots returns the live slots ordered by child then week.
func (p *Planner) Slots() []Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Slot, 0, len(p.slots))
	for _, s := range p.slots {
		if s.Active() {
			out = append(out, s)
		}
	}
	sortSlots(out)
	return out
}

// All returns every slot including cancelled ones awaiting purge.
func (p *Planner) All() []Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Slot, 0, len(p.slots))
	for _, s := range p.slots {
		out = append(out, s)
	}
	sortSlots(out)
	return out
}

// Slot returns the live slot at key.
func (p *Planner) Slot(key Key) (Slot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[key]
	if !ok || !s.Active() {
		return Slot{}, false
	}
	return s, true
}

// Purge drops cancelled slots and returns how many were removed.
func (p *Planner) Purge() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k, s := range p.slots {
		if s.State == Cancelled {
			delete(p.slots, k)
			n++
		}
	}
	if n > 0 {
		p.version++
	}
	return n
}

func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].ChildID != slots[j].ChildID {
			return slots[i].ChildID < slots[j].ChildID
		}
		return weekIndex(slots[i].WeekID) < weekIndex(slots[j].WeekID)
	})
}

func weekIndex(weekID string) int {
	w, ok := domain.WeekByID(weekID)
	if !ok {
		return domain.WeekCount
	}
	return w.Index
}

func fromStored(s domain.ScheduledSlot) Slot {
	state := Tentative
	if s.Status == domain.SlotConfirmed {
		state = Confirmed
	}
	return Slot{
		ID:           s.ID,
		ChildID:      s.ChildID,
		WeekID:       s.WeekID,
		CampID:       s.CampID,
		State:        state,
		CostOverride: s.CostOverride,
		Notes:        s.Notes,
	}
}

func toStored(s Slot) domain.ScheduledSlot {
	status := domain.SlotTentative
	if s.State == Confirmed {
		status = domain.SlotConfirmed
	}
	return domain.ScheduledSlot{
		ID:           s.ID,
		ChildID:      s.ChildID,
		WeekID:       s.WeekID,
		CampID:       s.CampID,
		Status:       status,
		CostOverride: s.CostOverride,
		Notes:        s.Notes,
	}
}

// storageError keeps session and input errors and reports everything else
// as transient.
func storageError(op string, err error) error {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeNotAuthenticated, apperrors.CodePermission, apperrors.CodeValidation, apperrors.CodeTransient:
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.Wrap(apperrors.CodeTransient, op, err)
}
