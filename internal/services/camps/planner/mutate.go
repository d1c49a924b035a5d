package planner

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/storage"
)

// AssignOptions modify Assign.
type AssignOptions struct {
	// Force replaces another occupant and ignores the camp's age range.
	Force bool
	// CostOverride replaces the catalog price, in whole dollars.
	CostOverride *int
	Notes        string
}

// Assign books camp for child in week as a tentative slot. Assigning the
// occupant again only updates the override and notes.
func (p *Planner) Assign(ctx context.Context, child domain.Child, weekID, campID string, opts AssignOptions) (Slot, error) {
	if strings.TrimSpace(child.ID) == "" {
		return Slot{}, invalid("child_id", "child id is required")
	}
	week, ok := domain.WeekByID(weekID)
	if !ok {
		return Slot{}, invalid("week_id", fmt.Sprintf("unknown week %q", weekID))
	}
	if opts.CostOverride != nil && *opts.CostOverride < 0 {
		return Slot{}, invalid("cost_override", "cost override is negative")
	}

	p.opMu.RLock()
	defer p.opMu.RUnlock()

	key := Key{ChildID: child.ID, WeekID: week.ID}
	p.mu.Lock()
	camp, ok := p.catalog.Camp(campID)
	if !ok {
		p.mu.Unlock()
		return Slot{}, apperrors.WithMetadata(apperrors.CodeNotFound, fmt.Sprintf("camp %s not found", campID), map[string]string{"Resource": "camp", "CampID": campID})
	}
	current, exists := p.slots[key]
	if exists && current.Active() && current.CampID == campID {
		if sameDetails(current, opts) {
			p.mu.Unlock()
			return current, nil
		}
	} else if exists && current.Active() && !opts.Force {
		occupant, _ := p.catalog.Camp(current.CampID)
		p.mu.Unlock()
		return Slot{}, apperrors.WithMetadata(apperrors.CodeSlotOccupied, "slot is occupied", map[string]string{
			"ChildID":   child.ID,
			"WeekID":    week.ID,
			"WeekLabel": week.Label,
			"CampID":    current.CampID,
			"CampName":  campName(occupant, current.CampID),
		})
	}
	if !opts.Force {
		if err := checkAge(child, camp); err != nil {
			p.mu.Unlock()
			return Slot{}, err
		}
	}

	next := Slot{
		ChildID:      child.ID,
		WeekID:       week.ID,
		CampID:       campID,
		State:        Tentative,
		CostOverride: opts.CostOverride,
		Notes:        opts.Notes,
	}
	if exists && current.Active() && current.CampID == campID {
		next.State = current.State
	}
	switch {
	case p.durable[key].ID != "":
		next.ID = p.durable[key].ID
	case current.ID != "":
		next.ID = current.ID
	default:
		newID, err := p.newID()
		if err != nil {
			p.mu.Unlock()
			return Slot{}, apperrors.Wrap(apperrors.CodeFatal, "generate slot id", err)
		}
		next.ID = newID
	}
	gen := p.setLocked(key, next)
	p.mu.Unlock()

	if err := p.submit(ctx, key, p.persister(key, next)); err != nil {
		p.rollback(key, gen)
		return Slot{}, storageError("save slot", err)
	}
	return next, nil
}

// Confirm moves a tentative slot to confirmed. Confirming a confirmed slot
// is a no-op.
func (p *Planner) Confirm(ctx context.Context, childID, weekID string) (Slot, error) {
	p.opMu.RLock()
	defer p.opMu.RUnlock()

	key := Key{ChildID: childID, WeekID: weekID}
	p.mu.Lock()
	current, ok := p.slots[key]
	if !ok || !current.Active() {
		p.mu.Unlock()
		return Slot{}, apperrors.WithMetadata(apperrors.CodeNotFound, "slot not found", map[string]string{"Resource": "slot", "ChildID": childID, "WeekID": weekID})
	}
	if current.State == Confirmed {
		p.mu.Unlock()
		return current, nil
	}
	next := current
	next.State = Confirmed
	gen := p.setLocked(key, next)
	p.mu.Unlock()

	if err := p.submit(ctx, key, p.persister(key, next)); err != nil {
		p.rollback(key, gen)
		return Slot{}, storageError("confirm slot", err)
	}
	return next, nil
}

// Unassign cancels the slot at child and week. An empty or cancelled slot
// is left alone.
func (p *Planner) Unassign(ctx context.Context, childID, weekID string) error {
	p.opMu.RLock()
	defer p.opMu.RUnlock()

	key := Key{ChildID: childID, WeekID: weekID}
	p.mu.Lock()
	current, ok := p.slots[key]
	if !ok || !current.Active() {
		p.mu.Unlock()
		return nil
	}
	next := current
	next.State = Cancelled
	gen := p.setLocked(key, next)
	p.mu.Unlock()

	if err := p.submit(ctx, key, p.persister(key, next)); err != nil {
		p.rollback(key, gen)
		return storageError("remove slot", err)
	}
	return nil
}

// Swap exchanges the camps booked at a and b. Either both keys change or
// neither does; an empty side moves the other's booking across. Swap waits
// for other mutations to finish and blocks new ones while it runs.
func (p *Planner) Swap(ctx context.Context, a, b Key) error {
	if a == b {
		return nil
	}
	for _, k := range []Key{a, b} {
		if !domain.ValidWeek(k.WeekID) {
			return invalid("week_id", fmt.Sprintf("unknown week %q", k.WeekID))
		}
	}

	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	sa, okA := p.slots[a]
	sb, okB := p.slots[b]
	okA = okA && sa.Active()
	okB = okB && sb.Active()
	if !okA && !okB {
		p.mu.Unlock()
		return nil
	}
	storedA, hadA := p.durable[a]
	nextA, err := p.moved(a, sb, okB, sa)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	nextB, err := p.moved(b, sa, okA, sb)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	genA := p.setLocked(a, nextA)
	genB := p.setLocked(b, nextB)
	p.mu.Unlock()

	if err := p.submit(ctx, a, p.persister(a, nextA)); err != nil {
		p.rollback(a, genA)
		p.rollback(b, genB)
		return storageError("swap slots", err)
	}
	if err := p.submit(ctx, b, p.persister(b, nextB)); err != nil {
		undo := nextA
		undo.State = Cancelled
		if hadA {
			undo = storedA
		}
		if cerr := p.submit(context.WithoutCancel(ctx), a, p.persister(a, undo)); cerr != nil {
			log.Printf("planner: undo swap of %s/%s: %v", a.ChildID, a.WeekID, cerr)
		}
		p.rollback(a, genA)
		p.rollback(b, genB)
		return storageError("swap slots", err)
	}
	return nil
}

// moved builds the slot that key holds after receiving src. present is
// false when src is empty, in which case key is cancelled. Callers hold
// p.mu.
func (p *Planner) moved(key Key, src Slot, present bool, current Slot) (Slot, error) {
	if !present {
		next := current
		next.State = Cancelled
		return next, nil
	}
	next := src
	next.ChildID = key.ChildID
	next.WeekID = key.WeekID
	next.ID = current.ID
	if d := p.durable[key]; d.ID != "" {
		next.ID = d.ID
	}
	if next.ID == "" {
		newID, err := p.newID()
		if err != nil {
			return Slot{}, apperrors.Wrap(apperrors.CodeFatal, "generate slot id", err)
		}
		next.ID = newID
	}
	return next, nil
}

// setLocked stores next and returns the key's new generation. Callers hold
// p.mu.
func (p *Planner) setLocked(key Key, next Slot) uint64 {
	p.slots[key] = next
	p.gen[key]++
	p.version++
	return p.gen[key]
}

// persister returns the storage write that makes key hold target.
func (p *Planner) persister(key Key, target Slot) func(context.Context) error {
	return func(ctx context.Context) error {
		if target.Active() {
			if _, err := p.store.Upsert(ctx, storage.ScheduledSlots, storage.SlotRow(toStored(target))); err != nil {
				return err
			}
			p.mu.Lock()
			p.durable[key] = target
			p.mu.Unlock()
			return nil
		}
		p.mu.Lock()
		stored, ok := p.durable[key]
		p.mu.Unlock()
		if !ok {
			return nil
		}
		if err := p.store.Delete(ctx, storage.ScheduledSlots, stored.ID); err != nil && !apperrors.HasCode(err, apperrors.CodeNotFound) {
			return err
		}
		p.mu.Lock()
		delete(p.durable, key)
		p.mu.Unlock()
		return nil
	}
}

// rollback restores key to its last persisted state unless a later
// mutation has already replaced gen.
func (p *Planner) rollback(key Key, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen[key] != gen {
		return
	}
	if d, ok := p.durable[key]; ok {
		p.slots[key] = d
	} else {
		delete(p.slots, key)
	}
	p.version++
}

func sameDetails(s Slot, opts AssignOptions) bool {
	if s.Notes != opts.Notes {
		return false
	}
	switch {
	case s.CostOverride == nil && opts.CostOverride == nil:
		return true
	case s.CostOverride == nil || opts.CostOverride == nil:
		return false
	}
	return *s.CostOverride == *opts.CostOverride
}

// checkAge fails when the child's known age is outside the camp's known
// range.
func checkAge(child domain.Child, camp domain.Camp) error {
	if child.AgeAsOfSummer == nil || ageFits(*child.AgeAsOfSummer, camp) {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeAgeOutOfRange, "child age outside camp range", map[string]string{
		"ChildID":   child.ID,
		"ChildName": child.Name,
		"ChildAge":  strconv.Itoa(*child.AgeAsOfSummer),
		"CampID":    camp.ID,
		"CampName":  camp.Name,
		"MinAge":    optAge(camp.MinAge),
		"MaxAge":    optAge(camp.MaxAge),
	})
}

func ageFits(age int, camp domain.Camp) bool {
	if camp.MinAge != nil && age < *camp.MinAge {
		return false
	}
	if camp.MaxAge != nil && age > *camp.MaxAge {
		return false
	}
	return true
}

func optAge(v *int) string {
	if v == nil {
		return "?"
	}
	return strconv.Itoa(*v)
}

func campName(c domain.Camp, fallback string) string {
	if c.Name != "" {
		return c.Name
	}
	return fallback
}

func invalid(field, msg string) error {
	return apperrors.WithMetadata(apperrors.CodeValidation, msg, map[string]string{"Field": field})
}
