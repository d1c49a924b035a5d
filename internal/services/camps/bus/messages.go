package bus

import (
	"fmt"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/planner"
)

// Command is a request from the view. The set of commands is closed.
type Command interface {
	isCommand()
}

// Search replaces the free-text search.
type Search struct {
	Text string
}

// SetFilter applies a partial filter update.
type SetFilter struct {
	Patch domain.FilterPatch
}

// ClearFilters resets the filter to its neutral value.
type ClearFilters struct{}

// Sort changes the ranking key.
type Sort struct {
	Field domain.SortField
	Dir   domain.SortDir
}

// FavoriteToggle flips a camp's favorite mark.
type FavoriteToggle struct {
	CampID  string
	ChildID string
}

// PlanAssign places a camp in a child's week.
type PlanAssign struct {
	ChildID string
	WeekID  string
	CampID  string
	Options planner.AssignOptions
}

// Navigate moves the view to a top-level screen.
type Navigate struct {
	Target Target
}

func (Search) isCommand()         {}
func (SetFilter) isCommand()      {}
func (ClearFilters) isCommand()   {}
func (Sort) isCommand()           {}
func (FavoriteToggle) isCommand() {}
func (PlanAssign) isCommand()     {}
func (Navigate) isCommand()       {}

// Target is a navigation destination.
type Target string

const (
	TargetDashboard Target = "dashboard"
	TargetPlanner   Target = "planner"
	TargetFavorites Target = "favorites"
	TargetChildren  Target = "children"
	TargetAdmin     Target = "admin"
)

// Targets lists navigation destinations in menu order.
func Targets() []Target {
	return []Target{TargetDashboard, TargetPlanner, TargetFavorites, TargetChildren, TargetAdmin}
}

// ParseTarget validates a navigation destination.
func ParseTarget(value string) (Target, error) {
	for _, t := range Targets() {
		if string(t) == value {
			return t, nil
		}
	}
	return "", apperrors.WithMetadata(apperrors.CodeValidation, fmt.Sprintf("unknown navigation target %q", value), map[string]string{"Field": "target"})
}

// Event is a versioned projection published to the view. The set of events
// is closed.
type Event interface {
	// Version increases with every published event.
	Version() uint64
	withVersion(v uint64) Event
}

// Header carries the publication version.
type Header struct {
	Seq uint64
}

// Version returns the publication version.
func (h Header) Version() uint64 { return h.Seq }

// ResultsChanged carries a new evaluation of the current filter.
type ResultsChanged struct {
	Header
	SnapshotVersion int64
	Filter          domain.Filter
	Results         []domain.Camp
	FacetCounts     map[domain.Category]int
	Total           int
	// Favorited marks result camps the user has favorited.
	Favorited map[string]bool
}

// PlannerChanged carries the live slots after a planner change.
type PlannerChanged struct {
	Header
	PlannerVersion uint64
	Slots          []planner.Slot
	Conflicts      []planner.Conflict
}

// ErrorOccurred reports a failed command or background operation.
type ErrorOccurred struct {
	Header
	Code   apperrors.Code
	Detail string
	// Message is the localized text for the user.
	Message string
}

// SessionChanged reports sign-in, refresh or sign-out (nil User).
type SessionChanged struct {
	Header
	User *domain.User
}

// WarningRaised reports a non-fatal condition such as a distance sort
// without an origin.
type WarningRaised struct {
	Header
	Warning domain.Warning
	Message string
}

// NavigationChanged reports the active screen.
type NavigationChanged struct {
	Header
	Target Target
	Label  string
}

func (e ResultsChanged) withVersion(v uint64) Event    { e.Seq = v; return e }
func (e PlannerChanged) withVersion(v uint64) Event    { e.Seq = v; return e }
func (e ErrorOccurred) withVersion(v uint64) Event     { e.Seq = v; return e }
func (e SessionChanged) withVersion(v uint64) Event    { e.Seq = v; return e }
func (e WarningRaised) withVersion(v uint64) Event     { e.Seq = v; return e }
func (e NavigationChanged) withVersion(v uint64) Event { e.Seq = v; return e }
