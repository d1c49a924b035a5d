package geo

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseTable(t *testing.T) {
	data := []byte(`
places:
  - address: "1 Ocean Ave,  Santa Cruz"
    lat: 36.96
    lng: -122.02
  - address: "200 Main St, Watsonville"
    lat: 36.91
    lng: -121.76
`)
	table, err := Parse(data, 10)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("len = %d, want 2", table.Len())
	}
	p, ok := table.Lookup("1 ocean ave, santa cruz")
	if !ok || p.Lat != 36.96 {
		t.Fatalf("lookup = %+v, %v", p, ok)
	}
}

func TestParseTableRejectsOverflowAndBadPoints(t *testing.T) {
	overflow := []byte("places:\n  - {address: a, lat: 1, lng: 1}\n  - {address: b, lat: 2, lng: 2}\n")
	if _, err := Parse(overflow, 1); err == nil {
		t.Fatal("expected overflow error")
	}
	bad := []byte("places:\n  - {address: a, lat: 91, lng: 1}\n")
	if _, err := Parse(bad, 10); err == nil {
		t.Fatal("expected range error")
	}
	if _, err := Parse([]byte("places: ["), 10); err == nil {
		t.Fatal("expected syntax error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geo.yaml")
	if err := os.WriteFile(path, []byte("places:\n  - {address: home, lat: 10, lng: 20}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	table, err := LoadFile(path, 0)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, ok := table.Lookup("HOME"); !ok {
		t.Fatal("expected home entry")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), 0); err == nil {
		t.Fatal("expected missing file error")
	}
}
