package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/storage"
	"github.com/louisbranch/campplanner/internal/services/camps/storage/filter"
)

const campColumns = `id, camp_name, category, description,
	min_age, max_age, min_price, max_price, price_week,
	has_extended_care, food_included, has_transport, has_sibling_discount,
	sibling_discount_rate, is_closed,
	image_url, address, phone, email, website,
	reg_date_2026, weeks_json,
	hours_start, hours_end, extended_start, extended_end,
	created_at, updated_at`

// LoadCatalog returns one page of camps ordered by id, read in a single
// transaction so the page and its version agree.
func (s *Store) LoadCatalog(ctx context.Context, query storage.CatalogQuery) (storage.CampPage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CampPage{}, err
	}
	cond, err := filter.Parse(query.Filter)
	if err != nil {
		return storage.CampPage{}, err
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = storage.DefaultPageSize
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.CampPage{}, wrap("load catalog", err)
	}
	defer func() { _ = tx.Rollback() }()

	var page storage.CampPage
	if err := tx.QueryRowContext(ctx, `SELECT version FROM catalog_meta WHERE id = 1`).Scan(&page.Version); err != nil {
		return storage.CampPage{}, wrap("load catalog version", err)
	}

	var (
		clauses []string
		params  []any
	)
	if where := cond.SQL(); where.Clause != "" {
		clauses = append(clauses, where.Clause)
		params = append(params, where.Params...)
	}
	if token := strings.TrimSpace(query.PageToken); token != "" {
		clauses = append(clauses, "id > ?")
		params = append(params, token)
	}
	stmt := "SELECT " + campColumns + " FROM camps"
	if len(clauses) > 0 {
		stmt += " WHERE " + strings.Join(clauses, " AND ")
	}
	stmt += " ORDER BY id ASC LIMIT ?"
	params = append(params, pageSize+1)

	rows, err := tx.QueryContext(ctx, stmt, params...)
	if err != nil {
		return storage.CampPage{}, wrap("load catalog", err)
	}
	defer rows.Close()

	page.Camps = make([]domain.Camp, 0, pageSize)
	for rows.Next() {
		camp, err := scanCamp(rows)
		if err != nil {
			return storage.CampPage{}, wrap("load catalog", err)
		}
		page.Camps = append(page.Camps, camp)
	}
	if err := rows.Err(); err != nil {
		return storage.CampPage{}, wrap("load catalog", err)
	}
	if len(page.Camps) > pageSize {
		page.NextPageToken = page.Camps[pageSize-1].ID
		page.Camps = page.Camps[:pageSize]
	}
	return page, nil
}

// ReplaceCatalog swaps the whole catalog and bumps its version. Importers
// call it; the planner only reads.
func (s *Store) ReplaceCatalog(ctx context.Context, camps []domain.Camp) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	for _, c := range camps {
		if err := c.Validate(); err != nil {
			return 0, err
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap("replace catalog", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM camps`); err != nil {
		return 0, wrap("clear catalog", err)
	}
	insert, err := tx.PrepareContext(ctx, `INSERT INTO camps (`+campColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, wrap("prepare camp insert", err)
	}
	defer insert.Close()

	for _, c := range camps {
		var weeks any
		if c.Weeks != nil {
			raw, err := json.Marshal(c.Weeks)
			if err != nil {
				return 0, fmt.Errorf("encode weeks for camp %s: %w", c.ID, err)
			}
			weeks = string(raw)
		}
		var rate any
		if c.SiblingDiscountRate != nil {
			rate = *c.SiblingDiscountRate
		}
		if _, err := insert.ExecContext(ctx,
			c.ID, strings.TrimSpace(c.Name), string(c.Category), c.Description,
			nullInt(c.MinAge), nullInt(c.MaxAge), nullInt(c.MinPrice), nullInt(c.MaxPrice), c.PriceWeek,
			c.HasExtendedCare, c.FoodIncluded, c.HasTransport, c.HasSiblingDiscount,
			rate, c.IsClosed,
			c.ImageURL, c.Address, c.Phone, c.Email, c.Website,
			c.RegDate2026, weeks,
			c.HoursStart, c.HoursEnd, c.ExtendedStart, c.ExtendedEnd,
			toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
		); err != nil {
			if isUniqueViolation(err) {
				return 0, conflict("camps", []string{"id"})
			}
			return 0, wrap("insert camp "+c.ID, err)
		}
	}

	var version int64
	if err := tx.QueryRowContext(ctx, `UPDATE catalog_meta SET version = version + 1 WHERE id = 1 RETURNING version`).Scan(&version); err != nil {
		return 0, wrap("bump catalog version", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, wrap("commit catalog", err)
	}
	return version, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCamp(row scanner) (domain.Camp, error) {
	var (
		c                    domain.Camp
		category             string
		minAge, maxAge       sql.NullInt64
		minPrice, maxPrice   sql.NullInt64
		rate                 sql.NullFloat64
		weeks                sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&c.ID, &c.Name, &category, &c.Description,
		&minAge, &maxAge, &minPrice, &maxPrice, &c.PriceWeek,
		&c.HasExtendedCare, &c.FoodIncluded, &c.HasTransport, &c.HasSiblingDiscount,
		&rate, &c.IsClosed,
		&c.ImageURL, &c.Address, &c.Phone, &c.Email, &c.Website,
		&c.RegDate2026, &weeks,
		&c.HoursStart, &c.HoursEnd, &c.ExtendedStart, &c.ExtendedEnd,
		&createdAt, &updatedAt,
	); err != nil {
		return domain.Camp{}, err
	}
	c.Category = domain.Category(category)
	c.MinAge, c.MaxAge = intPtr(minAge), intPtr(maxAge)
	c.MinPrice, c.MaxPrice = intPtr(minPrice), intPtr(maxPrice)
	if rate.Valid {
		r := rate.Float64
		c.SiblingDiscountRate = &r
	}
	if weeks.Valid {
		c.Weeks = []string{}
		if err := json.Unmarshal([]byte(weeks.String), &c.Weeks); err != nil {
			return domain.Camp{}, fmt.Errorf("decode weeks for camp %s: %w", c.ID, err)
		}
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}
