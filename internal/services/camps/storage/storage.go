// Package storage defines the persistence contract the camp planner core
// consumes: a paged catalog read, user-scoped collection writes, and auth
// change notifications.
package storage

import (
	"context"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
)

// DefaultPageSize is used when a catalog query does not set one.
const DefaultPageSize = 200

// CatalogQuery selects catalog rows. Filter is an AIP-160 expression over
// camp columns applied by the backend; the core may filter further.
type CatalogQuery struct {
	Filter    string
	PageSize  int
	PageToken string
}

// CampPage is one page of catalog rows.
type CampPage struct {
	Camps         []domain.Camp
	NextPageToken string
	// Version identifies the catalog the page was read from.
	Version int64
}

// Adapter is a persistence backend. User-scoped calls act for the signed-in
// user and fail with a not-authenticated error when nobody is signed in.
type Adapter interface {
	LoadCatalog(ctx context.Context, query CatalogQuery) (CampPage, error)
	Upsert(ctx context.Context, collection Collection, row Row) (Row, error)
	Delete(ctx context.Context, collection Collection, id string) error
	List(ctx context.Context, collection Collection, where Where) ([]Row, error)
	// OnAuthChange registers handler for sign-in, sign-out (nil user) and
	// token refresh. The returned function unsubscribes.
	OnAuthChange(handler func(*domain.User)) (unsubscribe func())
}

// maxCatalogRestarts bounds how often LoadAllCamps restarts when the
// catalog version changes between pages.
const maxCatalogRestarts = 3

// LoadAllCamps pages through the whole catalog. Pages must agree on the
// catalog version; a change mid-read restarts from the first page.
func LoadAllCamps(ctx context.Context, adapter Adapter, filter string) ([]domain.Camp, int64, error) {
	for attempt := 0; attempt < maxCatalogRestarts; attempt++ {
		camps, version, consistent, err := loadPages(ctx, adapter, filter)
		if err != nil {
			return nil, 0, err
		}
		if consistent {
			return camps, version, nil
		}
	}
	return nil, 0, apperrors.New(apperrors.CodeTransient, "catalog changed while loading")
}

func loadPages(ctx context.Context, adapter Adapter, filter string) ([]domain.Camp, int64, bool, error) {
	var (
		camps   []domain.Camp
		version int64
		token   string
	)
	for first := true; ; first = false {
		page, err := adapter.LoadCatalog(ctx, CatalogQuery{Filter: filter, PageSize: DefaultPageSize, PageToken: token})
		if err != nil {
			return nil, 0, false, err
		}
		if first {
			version = page.Version
		} else if page.Version != version {
			return nil, 0, false, nil
		}
		camps = append(camps, page.Camps...)
		if page.NextPageToken == "" {
			return camps, version, true, nil
		}
		token = page.NextPageToken
	}
}
