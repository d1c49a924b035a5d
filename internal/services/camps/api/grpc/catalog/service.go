// Package catalog serves camp catalog queries over gRPC. Requests and
// responses are google.protobuf.Struct documents holding the filter wire
// JSON and the rendered result.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	errori18n "github.com/louisbranch/campplanner/internal/platform/errors/i18n"
	i18ncatalog "github.com/louisbranch/campplanner/internal/platform/i18n/catalog"
	"github.com/louisbranch/campplanner/internal/services/camps/api/campview"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/query"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "camps.v1.CatalogService"

// Full method names.
const (
	EvaluateMethod    = "/" + ServiceName + "/Evaluate"
	FingerprintMethod = "/" + ServiceName + "/Fingerprint"
)

// localeHeader carries the caller's Accept-Language preference.
const localeHeader = "accept-language"

// CatalogServer is the server API for camps.v1.CatalogService.
type CatalogServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Fingerprint(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Service evaluates filters against the current snapshot.
type Service struct {
	engine *query.Engine
	clock  func() time.Time

	mu       sync.RWMutex
	snapshot *domain.Snapshot
}

// NewService returns a service over engine. SetSnapshot must be called
// before requests are served.
func NewService(engine *query.Engine) *Service {
	return &Service{engine: engine, clock: time.Now}
}

// SetSnapshot publishes a catalog snapshot and warms the engine for it.
func (s *Service) SetSnapshot(snap *domain.Snapshot) query.Stats {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	return s.engine.Warm(snap)
}

// Snapshot returns the published snapshot.
func (s *Service) Snapshot() *domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Evaluate runs the filter in the request.
func (s *Service) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	locale := requestLocale(ctx)
	if s == nil || s.engine == nil {
		return nil, status.Error(codes.Internal, "catalog engine is not configured")
	}
	snap := s.Snapshot()
	if snap == nil {
		return nil, status.Error(codes.Unavailable, "catalog is not loaded")
	}
	f, err := decodeFilter(in)
	if err != nil {
		return nil, toStatus(locale, err)
	}
	res, err := s.engine.Evaluate(ctx, snap, f)
	if err != nil {
		return nil, toStatus(locale, err)
	}
	return toStruct(campview.FromResult(res, s.clock(), 0))
}

// Fingerprint returns the canonical encoding of the filter in the request.
func (s *Service) Fingerprint(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f, err := decodeFilter(in)
	if err != nil {
		return nil, toStatus(requestLocale(ctx), err)
	}
	return structpb.NewStruct(map[string]any{"fingerprint": query.Fingerprint(f)})
}

func decodeFilter(in *structpb.Struct) (domain.Filter, error) {
	if in == nil {
		return domain.Filter{}, nil
	}
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return domain.Filter{}, apperrors.WrapWithMetadata(apperrors.CodeValidation, "encode filter", map[string]string{"Field": "filter"}, err)
	}
	return domain.DecodeFilter(data)
}

func toStruct(v any) (*structpb.Struct, error) {
	m, err := campview.Map(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func requestLocale(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return i18ncatalog.BaseLocale
	}
	return i18ncatalog.Default().Match(strings.Join(md.Get(localeHeader), ","))
}

// toStatus converts err to a gRPC status carrying ErrorInfo and a localized
// message.
func toStatus(locale string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		domainErr = apperrors.Wrap(apperrors.CodeUnknown, err.Error(), err)
	}
	return domainErr.ToGRPCStatus(locale, errori18n.Message(locale, err))
}

// Register adds srv to registrar.
func Register(registrar grpc.ServiceRegistrar, srv CatalogServer) {
	registrar.RegisterService(&serviceDesc, srv)
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EvaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CatalogServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func fingerprintHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).Fingerprint(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FingerprintMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CatalogServer).Fingerprint(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "Fingerprint", Handler: fingerprintHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "camps/v1/catalog.proto",
}

// Client calls camps.v1.CatalogService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Evaluate calls CatalogService.Evaluate.
func (c *Client) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, EvaluateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Fingerprint calls CatalogService.Fingerprint.
func (c *Client) Fingerprint(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FingerprintMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
