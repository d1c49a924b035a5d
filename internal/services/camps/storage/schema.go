package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
)

// Collection names a user-scoped table.
type Collection string

const (
	Children       Collection = "children"
	Favorites      Collection = "favorites"
	ScheduledSlots Collection = "scheduled_slots"
	Reviews        Collection = "reviews"
	SavedSearches  Collection = "saved_searches"
	Squads         Collection = "squads"
	Memberships    Collection = "memberships"
	WorkSchedules  Collection = "work_schedules"
	Preferences    Collection = "preferences"
)

// ColumnType is the storage type of a column value.
type ColumnType int

const (
	// Text values are string.
	Text ColumnType = iota
	// Int values are int64.
	Int
	// Bool values are bool.
	Bool
	// Time values are time.Time in UTC, stored as Unix milliseconds.
	Time
)

// Column describes one field of a collection.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Schema describes a collection.
type Schema struct {
	Collection Collection
	Columns    []Column
	// Unique lists column sets that must not repeat across rows.
	Unique [][]string
	// OwnerColumn holds the id of the user a row belongs to.
	OwnerColumn string
	// Shared collections are readable by every signed-in user.
	Shared bool
}

var schemas = map[Collection]Schema{
	Children: {
		Collection: Children,
		Columns: []Column{
			{Name: "id", Type: Text},
			{Name: "user_id", Type: Text},
			{Name: "name", Type: Text},
			{Name: "age_as_of_summer", Type: Int, Nullable: true},
			{Name: "color", Type: Text},
			{Name: "notes", Type: Text},
		},
		OwnerColumn: "user_id",
	},
	Favorites: {
		Collection: Favorites,
		Columns: []Column{
			{Name: "id", Type: Text},
			{Name: "user_id", Type: Text},
			{Name: "camp_id", Type: Text},
			{Name: "child_id", Type: Text, Nullable: true},
			{Name: "notes", Type: Text},
		},
		Unique:      [][]string{{"user_id", "camp_id"}},
		OwnerColumn: "user_id",
	},
	ScheduledSlots: {
		Collection: ScheduledSlots,
		Columns: []Column{
			{Name: "id", Type: Text},
			{Name: "user_id", Type: Text},
			{Name: "child_id", Type: Text},
			{Name: "week_id", Type: Text},
			{Name: "camp_id", Type: Text},
			{Name: "status", Type: Text},
			{Name: "cost_override", Type: Int, Nullable: true},
			{Name: "notes", Type: Text},
		},
		Unique:      [][]string{{"user_id", "child_id", "week_id"}},
		OwnerColumn: "user_id",
	},
	Reviews: {
		Collection: Reviews,
		Columns: []Column{
			{Name: "id", Type: Text},
			{Name: "user_id", Type: Text},
			{Name: "camp_id", Type: Text},
			{Name: "overall_rating", Type: Int},
			{Name: "value_rating", Type: Int},
			{Name: "staff_rating", Type: Int},
			{Name: "activities_rating", Type: Int},
			{Name: "safety_rating", Type: Int},
			{Name: "title", Type: Text},
			{Name: "review_text", Type: Text},
			{Name: "year_attended", Type: Int, Nullable: true},
			{Name: "child_age_at_time", Type: Int, Nullable: true},
			{Name: "would_recommend", Type: Bool},
			{Name: "helpful_count", Type: Int},
			{Name: "created_at", Type: Time},
		},
		Unique:      [][]string{{"user_id", "camp_id"}},
		OwnerColumn: "user_id",
	},
	SavedSearches: {
		Collection: SavedSearches,
		Columns: []Column{
			{Name: "id", Type: Text},
			{Name: "user_id", Type: Text},
			{Name: "name", Type: Text},
			{Name: "filter_json", Type: Text},
			{Name: "filter_count", Type: Int},
			{Name: "created_at", Type: Time},
		},
		OwnerColumn: "user_id",
	},
	Squads: {
		Collection: Squads,
		Columns: []Column{
			{Name: "id", Type: Text},
			{Name: "name", Type: Text},
			{Name: "owner_id", Type: Text},
			{Name: "invite_code", Type: Text},
			{Name: "created_at", Type: Time},
		},
		Unique:      [][]string{{"invite_code"}},
		OwnerColumn: "owner_id",
		Shared:      true,
	},
	Memberships: {
		Collection: Memberships,
		Columns: []Column{
			{Name: "id", Type: Text},
			{Name: "squad_id", Type: Text},
			{Name: "user_id", Type: Text},
			{Name: "role", Type: Text},
		},
		Unique:      [][]string{{"squad_id", "user_id"}},
		OwnerColumn: "user_id",
	},
	WorkSchedules: {
		Collection: WorkSchedules,
		Columns: []Column{
			{Name: "id", Type: Text},
			{Name: "user_id", Type: Text},
			{Name: "days_json", Type: Text},
		},
		Unique:      [][]string{{"user_id"}},
		OwnerColumn: "user_id",
	},
	Preferences: {
		Collection: Preferences,
		Columns: []Column{
			{Name: "id", Type: Text},
			{Name: "user_id", Type: Text},
			{Name: "budget_cap", Type: Int, Nullable: true},
			{Name: "home_address", Type: Text},
			{Name: "locale", Type: Text},
		},
		Unique:      [][]string{{"user_id"}},
		OwnerColumn: "user_id",
	},
}

// SchemaFor returns the schema of collection.
func SchemaFor(collection Collection) (Schema, error) {
	s, ok := schemas[collection]
	if !ok {
		return Schema{}, apperrors.WithMetadata(apperrors.CodeValidation, fmt.Sprintf("unknown collection %q", collection), map[string]string{"Field": "collection"})
	}
	return s, nil
}

// Collections lists every user collection in a stable order.
func Collections() []Collection {
	out := make([]Collection, 0, len(schemas))
	for c := range schemas {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Column looks up a column by name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in declaration order.
func (s Schema) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Row is one collection record keyed by column name.
type Row map[string]any

// ID returns the row id.
func (r Row) ID() string {
	id, _ := r["id"].(string)
	return id
}

// String returns a text column, or "" when absent or null.
func (r Row) String(col string) string {
	v, _ := r[col].(string)
	return v
}

// Int returns an integer column. ok is false when null.
func (r Row) Int(col string) (int64, bool) {
	v, ok := r[col].(int64)
	return v, ok
}

// Bool returns a boolean column.
func (r Row) Bool(col string) bool {
	v, _ := r[col].(bool)
	return v
}

// Time returns a time column, zero when null.
func (r Row) Time(col string) time.Time {
	v, _ := r[col].(time.Time)
	return v
}

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Where selects rows by column equality. A nil value matches null.
type Where map[string]any

// Normalize coerces row values to their column types and rejects unknown
// columns, null in non-nullable columns and a missing id. Absent columns
// take their zero value.
func (s Schema) Normalize(row Row) (Row, error) {
	out := make(Row, len(s.Columns))
	for key := range row {
		if _, ok := s.Column(key); !ok {
			return nil, s.invalid(key, "unknown column")
		}
	}
	for _, col := range s.Columns {
		raw, present := row[col.Name]
		if !present || raw == nil {
			if col.Nullable {
				out[col.Name] = nil
				continue
			}
			if present && raw == nil {
				return nil, s.invalid(col.Name, "must not be null")
			}
			out[col.Name] = zeroValue(col.Type)
			continue
		}
		v, err := coerce(col.Type, raw)
		if err != nil {
			return nil, s.invalid(col.Name, err.Error())
		}
		out[col.Name] = v
	}
	if strings.TrimSpace(out.ID()) == "" {
		return nil, s.invalid("id", "is required")
	}
	return out, nil
}

// NormalizeWhere coerces where values and rejects unknown columns.
func (s Schema) NormalizeWhere(where Where) (Where, error) {
	out := make(Where, len(where))
	for key, raw := range where {
		col, ok := s.Column(key)
		if !ok {
			return nil, s.invalid(key, "unknown column")
		}
		if raw == nil {
			out[key] = nil
			continue
		}
		v, err := coerce(col.Type, raw)
		if err != nil {
			return nil, s.invalid(key, err.Error())
		}
		out[key] = v
	}
	return out, nil
}

// Matches reports whether row satisfies where.
func (w Where) Matches(row Row) bool {
	for key, want := range w {
		got := row[key]
		if want == nil || got == nil {
			if want != got {
				return false
			}
			continue
		}
		if wt, ok := want.(time.Time); ok {
			gt, ok := got.(time.Time)
			if !ok || !wt.Equal(gt) {
				return false
			}
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

func (s Schema) invalid(column, msg string) error {
	return apperrors.WithMetadata(
		apperrors.CodeValidation,
		fmt.Sprintf("%s.%s %s", s.Collection, column, msg),
		map[string]string{"Field": column},
	)
}

func zeroValue(t ColumnType) any {
	switch t {
	case Int:
		return int64(0)
	case Bool:
		return false
	case Time:
		return time.Time{}
	}
	return ""
}

func coerce(t ColumnType, raw any) (any, error) {
	switch t {
	case Text:
		if v, ok := raw.(string); ok {
			return v, nil
		}
	case Int:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v == float64(int64(v)) {
				return int64(v), nil
			}
		}
	case Bool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		}
	case Time:
		switch v := raw.(type) {
		case time.Time:
			if v.IsZero() {
				return time.Time{}, nil
			}
			return time.UnixMilli(v.UnixMilli()).UTC(), nil
		case int64:
			if v == 0 {
				return time.Time{}, nil
			}
			return time.UnixMilli(v).UTC(), nil
		}
	}
	return nil, fmt.Errorf("has wrong type %T", raw)
}

// UniqueKey returns the value tuple of cols in row, for conflict checks.
func UniqueKey(row Row, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(row[c])
	}
	return strings.Join(parts, "\x00")
}
