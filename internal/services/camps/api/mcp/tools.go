package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/platform/timeouts"
	"github.com/louisbranch/campplanner/internal/services/camps/api/campview"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/predicate"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// Catalog is the catalog query surface the tools call.
type Catalog interface {
	Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// SearchCampsInput is a catalog query in tool form.
type SearchCampsInput struct {
	Search     string   `json:"search,omitempty" jsonschema:"case-insensitive text matched against camp name and description"`
	Categories []string `json:"categories,omitempty" jsonschema:"category names such as STEM or Beach/Surf"`
	ChildAge   *int     `json:"child_age,omitempty" jsonschema:"age the camp must accept"`
	PriceMin   *int     `json:"price_min,omitempty" jsonschema:"lowest weekly price in dollars"`
	PriceMax   *int     `json:"price_max,omitempty" jsonschema:"highest weekly price in dollars"`
	Weeks      []string `json:"weeks,omitempty" jsonschema:"summer week ids w1 through w11"`
	SortField  string   `json:"sort_field,omitempty" jsonschema:"name, min_price, min_age, category or recency"`
	SortDir    string   `json:"sort_dir,omitempty" jsonschema:"asc or desc"`
	OpenOnly   bool     `json:"open_only,omitempty" jsonschema:"exclude closed camps"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum camps returned (default 10, max 50)"`
}

// SearchCampsResult lists the matching camps.
type SearchCampsResult struct {
	Total       int                `json:"total" jsonschema:"number of camps matching the query"`
	Fingerprint string             `json:"fingerprint" jsonschema:"canonical form of the query"`
	Camps       []campview.Camp    `json:"camps"`
	Warnings    []campview.Warning `json:"warnings,omitempty"`
}

// SearchCampsTool defines the search_camps tool.
func SearchCampsTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "search_camps",
		Description: "Searches the summer camp catalog by text, category, age, price and week",
	}
}

// SearchCampsHandler runs a catalog query.
func SearchCampsHandler(catalog Catalog) mcpsdk.ToolHandlerFor[SearchCampsInput, SearchCampsResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, input SearchCampsInput) (*mcpsdk.CallToolResult, SearchCampsResult, error) {
		if catalog == nil {
			return nil, SearchCampsResult{}, fmt.Errorf("catalog client is not configured")
		}
		filter, err := input.filter()
		if err != nil {
			return nil, SearchCampsResult{}, err
		}
		callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
		defer cancel()

		resp, err := catalog.Evaluate(callCtx, filter)
		if err != nil {
			return nil, SearchCampsResult{}, fmt.Errorf("search camps failed: %w", err)
		}
		var view campview.Result
		if err := decodeStruct(resp, &view); err != nil {
			return nil, SearchCampsResult{}, err
		}

		limit := input.Limit
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		limit = min(limit, maxSearchLimit)
		camps := view.Camps
		if len(camps) > limit {
			camps = camps[:limit]
		}
		return nil, SearchCampsResult{
			Total:       view.Total,
			Fingerprint: view.Fingerprint,
			Camps:       camps,
			Warnings:    view.Warnings,
		}, nil
	}
}

// filter renders the input as filter wire JSON.
func (in SearchCampsInput) filter() (*structpb.Struct, error) {
	if in.Limit < 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeValidation, "limit must not be negative", map[string]string{"Field": "limit"})
	}
	f := domain.Filter{
		Search:        in.Search,
		ChildAge:      in.ChildAge,
		PriceMin:      in.PriceMin,
		PriceMax:      in.PriceMax,
		Weeks:         in.Weeks,
		SortField:     domain.SortField(strings.ToLower(strings.TrimSpace(in.SortField))),
		SortDir:       domain.SortDir(strings.ToLower(strings.TrimSpace(in.SortDir))),
		ExcludeClosed: in.OpenOnly,
	}
	for _, c := range in.Categories {
		f.Categories = append(f.Categories, domain.Category(c))
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}
	return structpb.NewStruct(m)
}

func decodeStruct(in *structpb.Struct, out any) error {
	if in == nil {
		return fmt.Errorf("catalog response is missing")
	}
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return fmt.Errorf("encode catalog response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}

// CampUrgencyInput is a registration date text to classify.
type CampUrgencyInput struct {
	RegDate  string `json:"reg_date" jsonschema:"registration text such as 'March 5th' or 'Open now'"`
	IsClosed bool   `json:"is_closed,omitempty" jsonschema:"whether the camp is closed"`
	Today    string `json:"today,omitempty" jsonschema:"reference date YYYY-MM-DD; defaults to the server date"`
}

// CampUrgencyResult is the derived registration urgency.
type CampUrgencyResult struct {
	Urgency      string `json:"urgency" jsonschema:"open, soon, upcoming, full, closed or unknown"`
	OpensOn      string `json:"opens_on,omitempty" jsonschema:"opening date when the text named one"`
	DaysUntil    *int   `json:"days_until,omitempty"`
	WithinWindow bool   `json:"within_window" jsonschema:"true when an opening falls within the next 30 days"`
}

// CampUrgencyTool defines the camp_urgency tool.
func CampUrgencyTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "camp_urgency",
		Description: "Classifies a camp registration date text into an urgency",
	}
}

// CampUrgencyHandler classifies registration text as of now, or the date
// the caller names.
func CampUrgencyHandler(now func() time.Time) mcpsdk.ToolHandlerFor[CampUrgencyInput, CampUrgencyResult] {
	if now == nil {
		now = time.Now
	}
	return func(_ context.Context, _ *mcpsdk.CallToolRequest, input CampUrgencyInput) (*mcpsdk.CallToolResult, CampUrgencyResult, error) {
		today := now()
		if s := strings.TrimSpace(input.Today); s != "" {
			parsed, err := time.Parse(time.DateOnly, s)
			if err != nil {
				return nil, CampUrgencyResult{}, apperrors.WrapWithMetadata(apperrors.CodeValidation, "today must be YYYY-MM-DD", map[string]string{"Field": "today"}, err)
			}
			today = parsed
		}
		reg := predicate.CampUrgency(domain.Camp{RegDate2026: input.RegDate, IsClosed: input.IsClosed}, today)
		result := CampUrgencyResult{Urgency: string(reg.Urgency), WithinWindow: reg.WithinWindow()}
		if !reg.Opens.IsZero() {
			result.OpensOn = reg.Opens.Format(time.DateOnly)
			days := reg.DaysUntil
			result.DaysUntil = &days
		}
		return nil, result, nil
	}
}

// SummerWeeksInput takes no arguments.
type SummerWeeksInput struct{}

// SummerWeeksResult lists the season's weeks in order.
type SummerWeeksResult struct {
	Year  int                 `json:"year"`
	Weeks []domain.SummerWeek `json:"weeks"`
}

// SummerWeeksTool defines the summer_weeks tool.
func SummerWeeksTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "summer_weeks",
		Description: "Lists the summer camp weeks with their ids and dates",
	}
}

// SummerWeeksHandler returns the week calendar.
func SummerWeeksHandler() mcpsdk.ToolHandlerFor[SummerWeeksInput, SummerWeeksResult] {
	return func(context.Context, *mcpsdk.CallToolRequest, SummerWeeksInput) (*mcpsdk.CallToolResult, SummerWeeksResult, error) {
		return nil, SummerWeeksResult{Year: domain.SummerYear, Weeks: domain.SummerWeeks()}, nil
	}
}
