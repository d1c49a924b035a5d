// Package memory provides an in-process storage adapter. It backs tests
// and the fixture mode of the command-line planner.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/session"
	"github.com/louisbranch/campplanner/internal/services/camps/storage"
	"github.com/louisbranch/campplanner/internal/services/camps/storage/filter"
)

// Store keeps the catalog and user collections in maps. The embedded hub
// tracks the signed-in user.
type Store struct {
	*session.Hub

	mu       sync.Mutex
	version  int64
	camps    []domain.Camp
	rows     map[storage.Collection]map[string]storage.Row
	failures []error
	calls    map[string]int
}

// New returns an empty store at catalog version 1.
func New() *Store {
	return &Store{
		Hub:     session.NewHub(),
		version: 1,
		rows:    make(map[storage.Collection]map[string]storage.Row),
		calls:   make(map[string]int),
	}
}

// SetCatalog replaces the catalog and bumps its version.
func (s *Store) SetCatalog(camps []domain.Camp) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camps = append([]domain.Camp(nil), camps...)
	sort.SliceStable(s.camps, func(i, j int) bool { return s.camps[i].ID < s.camps[j].ID })
	s.version++
	return s.version
}

// FailNext queues errors returned, in order, by the next calls of any
// operation.
func (s *Store) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Calls returns how many times op ("load_catalog", "upsert", "delete",
// "list") was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// OnAuthChange subscribes handler to the hub.
func (s *Store) OnAuthChange(handler func(*domain.User)) func() {
	return s.Subscribe(handler)
}

// begin records the call and pops a queued failure. Callers hold s.mu.
func (s *Store) begin(ctx context.Context, op string) error {
	s.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}
	return nil
}

// LoadCatalog returns one page of camps ordered by id. The catalog is
// readable without signing in.
func (s *Store) LoadCatalog(ctx context.Context, query storage.CatalogQuery) (storage.CampPage, error) {
	cond, err := filter.Parse(query.Filter)
	if err != nil {
		return storage.CampPage{}, err
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = storage.DefaultPageSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "load_catalog"); err != nil {
		return storage.CampPage{}, err
	}

	page := storage.CampPage{Version: s.version}
	for _, c := range s.camps {
		if query.PageToken != "" && c.ID <= query.PageToken {
			continue
		}
		if !cond.Match(c) {
			continue
		}
		if len(page.Camps) == pageSize {
			page.NextPageToken = page.Camps[len(page.Camps)-1].ID
			break
		}
		page.Camps = append(page.Camps, c)
	}
	return page, nil
}

func (s *Store) user() (domain.User, error) {
	u := s.Current()
	if u == nil {
		return domain.User{}, apperrors.ErrNotAuthenticated
	}
	return *u, nil
}

// Upsert writes row for the signed-in user. An empty owner column is
// stamped with the user id.
func (s *Store) Upsert(ctx context.Context, collection storage.Collection, row storage.Row) (storage.Row, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "upsert"); err != nil {
		return nil, err
	}
	table := s.rows[collection]
	if table == nil {
		table = make(map[string]storage.Row)
		s.rows[collection] = table
	}
	id := normalized.ID()
	if existing, ok := table[id]; ok && existing.String(schema.OwnerColumn) != user.ID {
		return nil, permission(collection)
	}
	for _, cols := range schema.Unique {
		key := storage.UniqueKey(normalized, cols)
		for otherID, other := range table {
			if otherID != id && storage.UniqueKey(other, cols) == key {
				return nil, apperrors.WithMetadata(
					apperrors.CodeConflict,
					fmt.Sprintf("%s already has a row with %s", collection, strings.Join(cols, ", ")),
					map[string]string{"Resource": string(collection), "Columns": strings.Join(cols, ",")},
				)
			}
		}
	}
	table[id] = normalized
	return normalized.Clone(), nil
}

// Delete removes the signed-in user's row.
func (s *Store) Delete(ctx context.Context, collection storage.Collection, id string) error {
	schema, err := storage.SchemaFor(collection)
	if err != nil {
		return err
	}
	user, err := s.user()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "delete"); err != nil {
		return err
	}
	existing, ok := s.rows[collection][id]
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeNotFound, fmt.Sprintf("%s row not found", collection), map[string]string{"Resource": string(collection), "ID": id})
	}
	if existing.String(schema.OwnerColumn) != user.ID {
		return permission(collection)
	}
	delete(s.rows[collection], id)
	return nil
}

// List returns rows matching where, ordered by id. Rows of other users are
// visible only in shared collections.
func (s *Store) List(ctx context.Context, collection storage.Collection, where storage.Where) ([]storage.Row, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "list"); err != nil {
		return nil, err
	}
	var out []storage.Row
	for _, row := range s.rows[collection] {
		if !schema.Shared && row.String(schema.OwnerColumn) != user.ID {
			continue
		}
		if where.Matches(row) {
			out = append(out, row.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

var _ storage.Adapter = (*Store)(nil)

func permission(collection storage.Collection) error {
	return apperrors.WithMetadata(
		apperrors.CodePermission,
		fmt.Sprintf("%s row belongs to another user", collection),
		map[string]string{"Resource": string(collection)},
	)
}
