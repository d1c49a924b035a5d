package domain

import (
	"errors"
	"testing"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
)

func TestCampValidate(t *testing.T) {
	valid := Camp{ID: "a", Name: "Surf", MinAge: IntPtr(8), MaxAge: IntPtr(14)}
	if err := valid.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	bad := []Camp{
		{Name: "no id"},
		{ID: "x"},
		{ID: "x", Name: "ages", MinAge: IntPtr(10), MaxAge: IntPtr(8)},
		{ID: "x", Name: "prices", MinPrice: IntPtr(500), MaxPrice: IntPtr(400)},
	}
	for _, c := range bad {
		if err := c.Validate(); !errors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("Validate(%+v) = %v, want validation error", c, err)
		}
	}
}

func TestParseCategoryFallsBack(t *testing.T) {
	if got := ParseCategory("stem"); got != CategorySTEM {
		t.Fatalf("ParseCategory(stem) = %q", got)
	}
	if got := ParseCategory(""); got != CategoryMultiActivity {
		t.Fatalf("ParseCategory(empty) = %q", got)
	}
	if got := ParseCategory("Knitting"); got != CategoryMultiActivity {
		t.Fatalf("ParseCategory(Knitting) = %q", got)
	}
}

func TestCampDailyHours(t *testing.T) {
	c := Camp{HoursStart: "09:00", HoursEnd: "15:00"}
	got, ok := c.DailyHours()
	if !ok || got.Start != 540 || got.End != 900 {
		t.Fatalf("DailyHours = %+v %v", got, ok)
	}
	c.HasExtendedCare = true
	c.ExtendedStart = "07:30"
	c.ExtendedEnd = "18:00"
	got, _ = c.DailyHours()
	if got.Start != 450 || got.End != 1080 {
		t.Fatalf("extended DailyHours = %+v", got)
	}
	if _, ok := (Camp{}).DailyHours(); ok {
		t.Fatal("expected unknown hours")
	}
}

func TestCampRunsIn(t *testing.T) {
	if _, known := (Camp{}).RunsIn("w1"); known {
		t.Fatal("nil weeks should be unknown")
	}
	runs, known := Camp{Weeks: []string{"w2"}}.RunsIn("w1")
	if runs || !known {
		t.Fatalf("RunsIn = %v %v", runs, known)
	}
}

func TestParseClock(t *testing.T) {
	if got, err := ParseClock("08:30"); err != nil || got != 510 {
		t.Fatalf("ParseClock = %d %v", got, err)
	}
	for _, bad := range []string{"8", "25:00", "08:60", "08:5", "ab:cd"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("ParseClock(%q) expected error", bad)
		}
	}
}

func TestValidateChild(t *testing.T) {
	ok := Child{ID: "c1", UserID: "u1", Name: "Eli", Color: "teal", AgeAsOfSummer: IntPtr(7)}
	if err := Validate(ok); err != nil {
		t.Fatalf("validate child: %v", err)
	}
	bad := ok
	bad.Color = "red"
	err := Validate(bad)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if apperrors.MetadataOf(err)["Field"] != "color" {
		t.Fatalf("metadata = %v", apperrors.MetadataOf(err))
	}
}

func TestValidateReviewRatings(t *testing.T) {
	r := Review{ID: "r", UserID: "u", CampID: "c", OverallRating: 6, ValueRating: 3, StaffRating: 3, ActivitiesRating: 3, SafetyRating: 3}
	if err := Validate(r); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestValidateWorkSchedule(t *testing.T) {
	ok := WorkSchedule{UserID: "u", Days: map[string]WorkHours{Monday: {Start: "09:00", End: "17:00"}}}
	if err := Validate(ok); err != nil {
		t.Fatalf("validate: %v", err)
	}
	bad := WorkSchedule{UserID: "u", Days: map[string]WorkHours{"funday": {Start: "09:00", End: "17:00"}}}
	if err := Validate(bad); err == nil {
		t.Fatal("expected bad weekday to fail")
	}
	badClock := WorkSchedule{UserID: "u", Days: map[string]WorkHours{Monday: {Start: "9am", End: "17:00"}}}
	if err := Validate(badClock); err == nil {
		t.Fatal("expected bad clock to fail")
	}
}
