package domain

import (
	"strings"
	"time"
)

// User is the signed-in account reported by the identity provider.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Admin       bool
}

// Colors is the fixed palette children are drawn with.
var Colors = []string{"blue", "green", "orange", "pink", "purple", "teal"}

// Child is a planner subject owned by one user.
type Child struct {
	ID            string `validate:"required"`
	UserID        string `validate:"required"`
	Name          string `validate:"required,max=80"`
	AgeAsOfSummer *int   `validate:"omitempty,min=0,max=18"`
	Color         string `validate:"required,oneof=blue green orange pink purple teal"`
	Notes         string `validate:"max=2000"`
}

// SlotStatus is the stored state of a planned week.
type SlotStatus string

const (
	SlotTentative SlotStatus = "tentative"
	SlotConfirmed SlotStatus = "confirmed"
)

// ScheduledSlot assigns a camp to one child for one week.
type ScheduledSlot struct {
	ID      string     `validate:"required"`
	UserID  string     `validate:"required"`
	ChildID string     `validate:"required"`
	WeekID  string     `validate:"required,week"`
	CampID  string     `validate:"required"`
	Status  SlotStatus `validate:"required,oneof=tentative confirmed"`
	// CostOverride replaces the catalog price, in whole dollars.
	CostOverride *int   `validate:"omitempty,min=0"`
	Notes        string `validate:"max=2000"`
}

// Favorite marks a camp as wished for, optionally for one child.
type Favorite struct {
	ID      string `validate:"required"`
	UserID  string `validate:"required"`
	CampID  string `validate:"required"`
	ChildID string
	Notes   string `validate:"max=2000"`
}

// Review is a user's single rating of a camp.
type Review struct {
	ID               string `validate:"required"`
	UserID           string `validate:"required"`
	CampID           string `validate:"required"`
	OverallRating    int    `validate:"min=1,max=5"`
	ValueRating      int    `validate:"min=1,max=5"`
	StaffRating      int    `validate:"min=1,max=5"`
	ActivitiesRating int    `validate:"min=1,max=5"`
	SafetyRating     int    `validate:"min=1,max=5"`
	Title            string `validate:"max=200"`
	ReviewText       string `validate:"max=10000"`
	YearAttended     int    `validate:"omitempty,min=2000,max=2100"`
	ChildAgeAtTime   *int   `validate:"omitempty,min=0,max=18"`
	WouldRecommend   bool
	HelpfulCount     int `validate:"min=0"`
	CreatedAt        time.Time
}

// SavedSearch is a named filter kept by a user.
type SavedSearch struct {
	ID          string `validate:"required"`
	UserID      string `validate:"required"`
	Name        string `validate:"required,max=120"`
	FilterJSON  string `validate:"required"`
	FilterCount int    `validate:"min=0"`
	CreatedAt   time.Time
}

// Squad is a group of families planning together.
type Squad struct {
	ID         string `validate:"required"`
	Name       string `validate:"required,max=120"`
	OwnerID    string `validate:"required"`
	InviteCode string `validate:"required"`
	CreatedAt  time.Time
}

// SquadRole is a member's role in a squad.
type SquadRole string

const (
	SquadOwner  SquadRole = "owner"
	SquadMember SquadRole = "member"
)

// Membership links a user to a squad.
type Membership struct {
	ID      string    `validate:"required"`
	SquadID string    `validate:"required"`
	UserID  string    `validate:"required"`
	Role    SquadRole `validate:"required,oneof=owner member"`
}

// Weekday keys used by work schedules.
const (
	Monday    = "mon"
	Tuesday   = "tue"
	Wednesday = "wed"
	Thursday  = "thu"
	Friday    = "fri"
	Saturday  = "sat"
	Sunday    = "sun"
)

// WorkHours is one weekday's working span.
type WorkHours struct {
	Start string `json:"start" validate:"required,clock"`
	End   string `json:"end" validate:"required,clock"`
}

// WorkSchedule holds a parent's working hours keyed by weekday. Weekdays
// without an entry are non-working.
type WorkSchedule struct {
	UserID string               `validate:"required"`
	Days   map[string]WorkHours `validate:"dive,keys,oneof=mon tue wed thu fri sat sun,endkeys"`
}

// HoursOn returns the working span for day. ok is false on days off.
func (w WorkSchedule) HoursOn(day time.Weekday) (TimeRange, bool) {
	h, found := w.Days[weekdayKey(day)]
	if !found {
		return TimeRange{}, false
	}
	r, err := ParseTimeRange(h.Start, h.End)
	if err != nil {
		return TimeRange{}, false
	}
	return r, true
}

func weekdayKey(day time.Weekday) string {
	return strings.ToLower(day.String()[:3])
}

// Preferences holds per-user planning settings.
type Preferences struct {
	UserID string `validate:"required"`
	// BudgetCap is the summer budget in whole dollars.
	BudgetCap   *int   `validate:"omitempty,min=0"`
	HomeAddress string `validate:"max=300"`
	Locale      string `validate:"omitempty,bcp47_language_tag"`
}
