package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/services/camps/storage"
)

func conflict(table string, cols []string) error {
	return apperrors.WithMetadata(
		apperrors.CodeConflict,
		fmt.Sprintf("%s already has a row with %s", table, strings.Join(cols, ", ")),
		map[string]string{"Resource": table, "Columns": strings.Join(cols, ",")},
	)
}

func permission(collection storage.Collection) error {
	return apperrors.WithMetadata(apperrors.CodePermission, fmt.Sprintf("%s row belongs to another user", collection), map[string]string{"Resource": string(collection)})
}

// toSQL converts a normalized value to its column encoding.
func toSQL(col storage.Column, v any) any {
	if v == nil {
		return nil
	}
	switch col.Type {
	case storage.Bool:
		if b, _ := v.(bool); b {
			return int64(1)
		}
		return int64(0)
	case storage.Time:
		t, _ := v.(time.Time)
		return toMillis(t)
	}
	return v
}

// fromSQL decodes a scanned value into the normalized row form.
func fromSQL(col storage.Column, v any) any {
	if v == nil {
		return nil
	}
	switch col.Type {
	case storage.Text:
		switch s := v.(type) {
		case string:
			return s
		case []byte:
			return string(s)
		}
	case storage.Int:
		if n, ok := v.(int64); ok {
			return n
		}
	case storage.Bool:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case storage.Time:
		if n, ok := v.(int64); ok {
			return fromMillis(n)
		}
	}
	return v
}

// Upsert inserts or replaces the signed-in user's row. An empty owner
// column is stamped with the user id.
func (s *Store) Upsert(ctx context.Context, collection storage.Collection, row storage.Row) (storage.Row, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	schema, err := storage.SchemaFor(collection)
	if err != nil {
		return nil, err
	}
	user, err := s.user()
	if err != nil {
		return nil, err
	}
	row = row.Clone()
	if owner, _ := row[schema.OwnerColumn].(string); strings.TrimSpace(owner) == "" {
		row[schema.OwnerColumn] = user.ID
	}
	normalized, err := schema.Normalize(row)
	if err != nil {
		return nil, err
	}
	if normalized.String(schema.OwnerColumn) != user.ID {
		return nil, permission(collection)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("upsert "+string(collection), err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", schema.OwnerColumn, schema.Collection),
		normalized.ID(),
	).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, wrap("upsert "+string(collection), err)
	case owner != user.ID:
		return nil, permission(collection)
	}

	names := schema.ColumnNames()
	values := make([]any, len(schema.Columns))
	placeholders := make([]string, len(schema.Columns))
	updates := make([]string, 0, len(schema.Columns))
	for i, col := range schema.Columns {
		values[i] = toSQL(col, normalized[col.Name])
		placeholders[i] = "?"
		if col.Name != "id" {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", col.Name, col.Name))
		}
	}
	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		schema.Collection,
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
	if _, err := tx.ExecContext(ctx, stmt, values...); err != nil {
		if isUniqueViolation(err) {
			return nil, conflict(string(collection), uniqueColumns(schema, err))
		}
		return nil, wrap("upsert "+string(collection), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap("commit "+string(collection), err)
	}
	return normalized.Clone(), nil
}

// uniqueColumns names the constraint the driver reported, falling back to
// the collection's first unique set.
func uniqueColumns(schema storage.Schema, err error) []string {
	msg := err.Error()
	for _, cols := range schema.Unique {
		qualified := make([]string, len(cols))
		for i, c := range cols {
			qualified[i] = string(schema.Collection) + "." + c
		}
		if strings.Contains(msg, strings.Join(qualified, ", ")) {
			return cols
		}
	}
	if len(schema.Unique) > 0 {
		return schema.Unique[0]
	}
	return []string{"id"}
}

// Delete removes the signed-in user's row.
func (s *Store) Delete(ctx context.Context, collection storage.Collection, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	schema, err := storage.SchemaFor(collection)
	if err != nil {
		return err
	}
	user, err := s.user()
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return apperrors.WithMetadata(apperrors.CodeValidation, "id is required", map[string]string{"Field": "id"})
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return wrap("delete "+string(collection), err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", schema.OwnerColumn, schema.Collection),
		id,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.WithMetadata(apperrors.CodeNotFound, fmt.Sprintf("%s row not found", collection), map[string]string{"Resource": string(collection), "ID": id})
	}
	if err != nil {
		return wrap("delete "+string(collection), err)
	}
	if owner != user.ID {
		return permission(collection)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", schema.Collection), id); err != nil {
		return wrap("delete "+string(collection), err)
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit "+string(collection), err)
	}
	return nil
}

// List returns rows matching where, ordered by id. Rows of other users are
// visible only in shared collections.
func (s *Store) List(ctx context.Context, collection storage.Collection, where storage.Where) ([]storage.Row, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	schema, err := storage.SchemaFor(collection)
	if err != nil {
		return nil, err
	}
	user, err := s.user()
	if err != nil {
		return nil, err
	}
	where, err = schema.NormalizeWhere(where)
	if err != nil {
		return nil, err
	}

	var (
		clauses []string
		params  []any
	)
	if !schema.Shared {
		clauses = append(clauses, schema.OwnerColumn+" = ?")
		params = append(params, user.ID)
	}
	keys := make([]string, 0, len(where))
	for key := range where {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		col, _ := schema.Column(key)
		if where[key] == nil {
			clauses = append(clauses, key+" IS NULL")
			continue
		}
		clauses = append(clauses, key+" = ?")
		params = append(params, toSQL(col, where[key]))
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(schema.ColumnNames(), ", "), schema.Collection)
	if len(clauses) > 0 {
		stmt += " WHERE " + strings.Join(clauses, " AND ")
	}
	stmt += " ORDER BY id ASC"

	rows, err := s.sqlDB.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, wrap("list "+string(collection), err)
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		raw := make([]any, len(schema.Columns))
		dest := make([]any, len(schema.Columns))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, wrap("list "+string(collection), err)
		}
		row := make(storage.Row, len(schema.Columns))
		for i, col := range schema.Columns {
			row[col.Name] = fromSQL(col, raw[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list "+string(collection), err)
	}
	return out, nil
}
