package campimporter

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/louisbranch/campplanner/internal/platform/config"
	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/storage"
	campsqlite "github.com/louisbranch/campplanner/internal/services/camps/storage/sqlite"
)

const sampleYAML = `camps:
  - id: c1
    camp_name: " Surf Rangers "
    category: beach/surf
    min_age: 8
    max_age: 14
    min_price: 400
    max_price: 450
    weeks: [w1, w2]
    hours_start: "09:00"
    hours_end: "15:00"
    website: https://surf.example.com
  - id: c2
    camp_name: Clay Studio
    category: Pottery
    price_week: TBD
`

var importNow = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func TestParseConfig(t *testing.T) {
	fs := flag.NewFlagSet("camp-importer", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-file", "camps.yaml", "-dry-run"})
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.File != "camps.yaml" || !cfg.DryRun || cfg.DBPath != filepath.Join("data", "camps.db") {
		t.Fatalf("config = %+v", cfg)
	}

	if _, err := ParseConfig(flag.NewFlagSet("camp-importer", flag.ContinueOnError), nil); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid without file", err)
	}
}

func TestParseNormalizesRows(t *testing.T) {
	camps, notes, err := Parse([]byte(sampleYAML), importNow)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(camps) != 2 {
		t.Fatalf("camps = %d, want 2", len(camps))
	}
	if camps[0].Name != "Surf Rangers" || camps[0].Category != domain.CategoryBeachSurf {
		t.Fatalf("first camp = %q/%q", camps[0].Name, camps[0].Category)
	}
	if diff := cmp.Diff([]string{"w1", "w2"}, camps[0].Weeks); diff != "" {
		t.Fatalf("weeks mismatch (-want +got):\n%s", diff)
	}
	if !camps[0].CreatedAt.Equal(importNow) || !camps[0].UpdatedAt.Equal(importNow) {
		t.Fatalf("timestamps = %v/%v, want %v", camps[0].CreatedAt, camps[0].UpdatedAt, importNow)
	}
	if camps[1].Category != domain.CategoryMultiActivity {
		t.Fatalf("second category = %q, want Multi-Activity", camps[1].Category)
	}
	if len(notes) != 1 || !strings.Contains(notes[0], "Pottery") {
		t.Fatalf("notes = %v", notes)
	}
}

func TestParseReadsJSON(t *testing.T) {
	camps, _, err := Parse([]byte(`{"camps": [{"id": "c9", "camp_name": "Robot Lab", "category": "STEM", "is_closed": true}]}`), importNow)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(camps) != 1 || !camps[0].IsClosed || camps[0].Category != domain.CategorySTEM {
		t.Fatalf("camps = %+v", camps)
	}
}

func TestParseRejectsBadRows(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "empty", doc: "", want: "empty"},
		{name: "unknown key", doc: "camps:\n  - id: c1\n    camp_name: A\n    colour: red\n", want: "colour"},
		{name: "missing name", doc: "camps:\n  - id: c1\n", want: "camp 1"},
		{name: "bad week", doc: "camps:\n  - id: c1\n    camp_name: A\n    weeks: [w12]\n", want: "week"},
		{name: "bad clock", doc: "camps:\n  - id: c1\n    camp_name: A\n    hours_start: 9am\n", want: "clock"},
		{name: "reversed ages", doc: "camps:\n  - id: c1\n    camp_name: A\n    min_age: 12\n    max_age: 8\n", want: "min_age"},
		{name: "duplicate", doc: "camps:\n  - id: c1\n    camp_name: A\n  - id: c1\n    camp_name: B\n", want: "already used"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tt.doc), importNow)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestParseValidationErrorCode(t *testing.T) {
	_, _, err := Parse([]byte("camps:\n  - id: c1\n    camp_name: A\n    email: nope\n"), importNow)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func writeCatalog(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "camps.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestRunDryRunDoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", "camps.db")
	var out bytes.Buffer
	err := Run(context.Background(), Config{File: writeCatalog(t, dir, sampleYAML), DBPath: dbPath, DryRun: true}, &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "validated 2 camp(s)") {
		t.Fatalf("output = %q", out.String())
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatalf("database should not exist after dry run: %v", err)
	}
}

func TestRunReplacesCatalog(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", "camps.db")
	var out bytes.Buffer
	if err := Run(context.Background(), Config{File: writeCatalog(t, dir, sampleYAML), DBPath: dbPath}, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "imported 2 camp(s)") || !strings.Contains(out.String(), "catalog version 2") {
		t.Fatalf("output = %q", out.String())
	}

	store, err := campsqlite.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	camps, version, err := storage.LoadAllCamps(context.Background(), store, "")
	if err != nil {
		t.Fatalf("LoadAllCamps: %v", err)
	}
	if version != 2 || len(camps) != 2 {
		t.Fatalf("version/camps = %d/%d, want 2/2", version, len(camps))
	}
}
