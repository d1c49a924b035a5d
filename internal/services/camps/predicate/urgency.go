package predicate

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/louisbranch/campplanner/internal/services/camps/domain"
)

// Urgency is the derived state of a camp's registration window.
type Urgency string

const (
	UrgencyOpen     Urgency = "open"
	UrgencySoon     Urgency = "soon"
	UrgencyUpcoming Urgency = "upcoming"
	UrgencyFull     Urgency = "full"
	UrgencyClosed   Urgency = "closed"
	UrgencyUnknown  Urgency = "unknown"
)

// SoonDays is the window in which an upcoming opening counts as soon.
const SoonDays = 7

// UpcomingWindowDays is the window the view highlights as upcoming.
const UpcomingWindowDays = 30

// Registration is the urgency derived from a registration date text.
type Registration struct {
	Urgency Urgency
	// Opens is set when the text named a date.
	Opens time.Time
	// DaysUntil counts whole days from today to Opens.
	DaysUntil int
}

// WithinWindow reports whether an upcoming opening falls inside the
// highlighted window.
func (r Registration) WithinWindow() bool {
	return (r.Urgency == UrgencySoon || r.Urgency == UrgencyUpcoming) && r.DaysUntil <= UpcomingWindowDays
}

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// RegistrationUrgency derives the urgency of a reg_date_2026 text as of now.
// Keywords are checked before dates; open keywords win over full ones.
func RegistrationUrgency(text string, now time.Time) Registration {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return Registration{Urgency: UrgencyUnknown}
	}
	for _, tok := range tokens {
		switch tok {
		case "open", "now", "rolling":
			return Registration{Urgency: UrgencyOpen}
		}
	}
	for _, tok := range tokens {
		if tok == "full" || tok == "closed" || strings.HasPrefix(tok, "fill") || strings.HasPrefix(tok, "waitlist") {
			return Registration{Urgency: UrgencyFull}
		}
	}
	for i, tok := range tokens {
		month, ok := months[tok]
		if !ok {
			continue
		}
		day := 1
		for _, next := range tokens[i+1:] {
			if n, err := strconv.Atoi(leadingDigits(next)); err == nil {
				if n >= 1 && n <= 31 {
					day = n
				}
				break
			}
		}
		return fromDate(month, day, now)
	}
	return Registration{Urgency: UrgencyUnknown}
}

// leadingDigits keeps the numeric prefix of tokens like "15th".
func leadingDigits(tok string) string {
	end := 0
	for end < len(tok) && tok[end] >= '0' && tok[end] <= '9' {
		end++
	}
	return tok[:end]
}

func fromDate(month time.Month, day int, now time.Time) Registration {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	opens := dateIn(today.Year(), month, day, now.Location())
	if opens.Before(today) {
		opens = dateIn(today.Year()+1, month, day, now.Location())
	}
	days := daysBetween(today, opens)
	r := Registration{Opens: opens, DaysUntil: days}
	switch {
	case days == 0:
		r.Urgency = UrgencyOpen
	case days <= SoonDays:
		r.Urgency = UrgencySoon
	default:
		r.Urgency = UrgencyUpcoming
	}
	return r
}

// dateIn clamps day to the month's length.
func dateIn(year int, month time.Month, day int, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func daysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// CampUrgency is the registration urgency of c. Closed camps are closed
// whatever their text says.
func CampUrgency(c domain.Camp, now time.Time) Registration {
	if c.IsClosed {
		return Registration{Urgency: UrgencyClosed}
	}
	return RegistrationUrgency(c.RegDate2026, now)
}
