package domain

import (
	"testing"
	"time"
)

func TestNewSnapshotSkipsInvalidRows(t *testing.T) {
	snap, warnings := NewSnapshot(3, []Camp{
		{ID: "a", Name: "Surf", Category: "beach/surf"},
		{ID: "b", Name: "Bad", MinAge: IntPtr(12), MaxAge: IntPtr(6)},
		{ID: "a", Name: "Dup"},
		{ID: "c", Name: "Mystery", Category: "Knitting"},
	}, time.Now())
	if snap.Len() != 2 {
		t.Fatalf("len = %d, want 2", snap.Len())
	}
	if len(warnings) != 2 {
		t.Fatalf("warnings = %d, want 2", len(warnings))
	}
	for _, w := range warnings {
		if w.Code != WarningSkippedCamp {
			t.Fatalf("warning code = %q", w.Code)
		}
	}
	a, ok := snap.Camp("a")
	if !ok || a.Category != CategoryBeachSurf {
		t.Fatalf("camp a = %+v, %v", a, ok)
	}
	c, _ := snap.Camp("c")
	if c.Category != CategoryMultiActivity {
		t.Fatalf("camp c category = %q", c.Category)
	}
	if snap.Version() != 3 {
		t.Fatalf("version = %d", snap.Version())
	}
}

func TestSnapshotCampsIsCopy(t *testing.T) {
	snap, _ := NewSnapshot(1, []Camp{{ID: "a", Name: "Surf"}}, time.Now())
	camps := snap.Camps()
	camps[0].Name = "changed"
	if got, _ := snap.Camp("a"); got.Name != "Surf" {
		t.Fatalf("snapshot mutated: %q", got.Name)
	}
}

func TestNilSnapshot(t *testing.T) {
	var snap *Snapshot
	if snap.Len() != 0 || snap.Version() != 0 {
		t.Fatal("nil snapshot should be empty")
	}
	if _, ok := snap.Camp("a"); ok {
		t.Fatal("nil snapshot should miss")
	}
}
