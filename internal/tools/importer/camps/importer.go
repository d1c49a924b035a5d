// Package campimporter loads a camp catalog file into the SQLite catalog.
package campimporter

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	entrypoint "github.com/louisbranch/campplanner/internal/platform/cmd"
	"github.com/louisbranch/campplanner/internal/platform/config"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	campsqlite "github.com/louisbranch/campplanner/internal/services/camps/storage/sqlite"
	"gopkg.in/yaml.v3"
)

// Config holds configuration for the catalog importer.
type Config struct {
	File   string
	DBPath string
	DryRun bool
}

// ParseConfig parses CLI flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{DBPath: filepath.Join("data", "camps.db")}
	fs.StringVar(&cfg.File, "file", "", "catalog file (YAML or JSON)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "catalog database path")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "validate without writing to the database")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.File) == "" {
		return Config{}, config.Invalidf("file is required")
	}
	return cfg, nil
}

// Run reads, validates and, unless DryRun is set, replaces the catalog.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	data, err := os.ReadFile(cfg.File)
	if err != nil {
		return fmt.Errorf("read catalog file: %w", err)
	}
	camps, notes, err := Parse(data, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, note := range notes {
		fmt.Fprintf(out, "note: %s\n", note)
	}

	if cfg.DryRun {
		_, err = fmt.Fprintf(out, "validated %s camp(s)\n", humanize.Comma(int64(len(camps))))
		return err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := campsqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open catalog store: %w", err)
	}
	defer store.Close()

	version, err := store.ReplaceCatalog(ctx, camps)
	if err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	_, err = fmt.Fprintf(out, "imported %s camp(s) into %s (catalog version %d)\n", humanize.Comma(int64(len(camps))), cfg.DBPath, version)
	return err
}

type catalogFile struct {
	Camps []campRecord `yaml:"camps"`
}

// campRecord is one catalog row in file form. Keys follow the storage
// column names.
type campRecord struct {
	ID                  string    `yaml:"id" validate:"required"`
	Name                string    `yaml:"camp_name" validate:"required"`
	Category            string    `yaml:"category"`
	Description         string    `yaml:"description"`
	MinAge              *int      `yaml:"min_age" validate:"omitempty,min=0,max=25"`
	MaxAge              *int      `yaml:"max_age" validate:"omitempty,min=0,max=25"`
	MinPrice            *int      `yaml:"min_price" validate:"omitempty,min=0"`
	MaxPrice            *int      `yaml:"max_price" validate:"omitempty,min=0"`
	PriceWeek           string    `yaml:"price_week"`
	HasExtendedCare     bool      `yaml:"has_extended_care"`
	FoodIncluded        bool      `yaml:"food_included"`
	HasTransport        bool      `yaml:"has_transport"`
	HasSiblingDiscount  bool      `yaml:"has_sibling_discount"`
	SiblingDiscountRate *float64  `yaml:"sibling_discount_rate" validate:"omitempty,gte=0,lte=1"`
	IsClosed            bool      `yaml:"is_closed"`
	ImageURL            string    `yaml:"image_url" validate:"omitempty,url"`
	Address             string    `yaml:"address"`
	Phone               string    `yaml:"phone"`
	Email               string    `yaml:"email" validate:"omitempty,email"`
	Website             string    `yaml:"website" validate:"omitempty,url"`
	RegDate2026         string    `yaml:"reg_date_2026"`
	Weeks               []string  `yaml:"weeks" validate:"omitempty,dive,week"`
	HoursStart          string    `yaml:"hours_start" validate:"omitempty,clock"`
	HoursEnd            string    `yaml:"hours_end" validate:"omitempty,clock"`
	ExtendedStart       string    `yaml:"extended_start" validate:"omitempty,clock"`
	ExtendedEnd         string    `yaml:"extended_end" validate:"omitempty,clock"`
	CreatedAt           time.Time `yaml:"created_at"`
	UpdatedAt           time.Time `yaml:"updated_at"`
}

// Parse decodes a catalog document. JSON input is read as YAML. Unknown keys,
// invalid rows and duplicate ids are errors; unknown categories are mapped
// to Multi-Activity and reported in notes.
func Parse(data []byte, now time.Time) ([]domain.Camp, []string, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc catalogFile
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("catalog file is empty")
		}
		return nil, nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[string]int, len(doc.Camps))
	camps := make([]domain.Camp, 0, len(doc.Camps))
	var notes []string
	for i, rec := range doc.Camps {
		rec.ID = strings.TrimSpace(rec.ID)
		rec.Name = strings.TrimSpace(rec.Name)
		if err := domain.Validate(rec); err != nil {
			return nil, nil, fmt.Errorf("camp %d (%s): %w", i+1, rec.ID, err)
		}
		if prev, ok := seen[rec.ID]; ok {
			return nil, nil, fmt.Errorf("camp %d: id %q already used by camp %d", i+1, rec.ID, prev)
		}
		seen[rec.ID] = i + 1

		camp, note := rec.toCamp(now)
		if err := camp.Validate(); err != nil {
			return nil, nil, fmt.Errorf("camp %d (%s): %w", i+1, rec.ID, err)
		}
		if note != "" {
			notes = append(notes, note)
		}
		camps = append(camps, camp)
	}
	return camps, notes, nil
}

func (r campRecord) toCamp(now time.Time) (domain.Camp, string) {
	c := domain.Camp{
		ID:                  r.ID,
		Name:                r.Name,
		Description:         strings.TrimSpace(r.Description),
		MinAge:              r.MinAge,
		MaxAge:              r.MaxAge,
		MinPrice:            r.MinPrice,
		MaxPrice:            r.MaxPrice,
		PriceWeek:           strings.TrimSpace(r.PriceWeek),
		HasExtendedCare:     r.HasExtendedCare,
		FoodIncluded:        r.FoodIncluded,
		HasTransport:        r.HasTransport,
		HasSiblingDiscount:  r.HasSiblingDiscount,
		SiblingDiscountRate: r.SiblingDiscountRate,
		IsClosed:            r.IsClosed,
		ImageURL:            r.ImageURL,
		Address:             strings.TrimSpace(r.Address),
		Phone:               r.Phone,
		Email:               r.Email,
		Website:             r.Website,
		RegDate2026:         strings.TrimSpace(r.RegDate2026),
		Weeks:               r.Weeks,
		HoursStart:          r.HoursStart,
		HoursEnd:            r.HoursEnd,
		ExtendedStart:       r.ExtendedStart,
		ExtendedEnd:         r.ExtendedEnd,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}

	var note string
	if raw := strings.TrimSpace(r.Category); raw != "" {
		known, ok := domain.LookupCategory(raw)
		if !ok {
			known = domain.ParseCategory(raw)
			note = fmt.Sprintf("camp %s: unknown category %q stored as %s", r.ID, raw, known)
		}
		c.Category = known
	}
	return c, note
}
