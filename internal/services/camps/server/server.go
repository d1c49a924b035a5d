// Package server wires the catalog runtime and gRPC lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/campplanner/internal/services/camps/api/grpc/catalog"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/geo"
	"github.com/louisbranch/campplanner/internal/services/camps/query"
	"github.com/louisbranch/campplanner/internal/services/camps/storage"
	campsqlite "github.com/louisbranch/campplanner/internal/services/camps/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Options configures a catalog server.
type Options struct {
	Addr   string
	DBPath string
	// GeoPath is an optional YAML address table for distance queries.
	GeoPath string
	// ReloadInterval re-reads the catalog when positive.
	ReloadInterval time.Duration
	CacheSize      int
}

// Server hosts the catalog gRPC API over a SQLite catalog.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	store      *campsqlite.Store
	adapter    storage.Adapter
	service    *catalog.Service
	reload     time.Duration
}

// New opens storage, loads the catalog and listens on opts.Addr.
func New(ctx context.Context, opts Options) (*Server, error) {
	var table *geo.Table
	if strings.TrimSpace(opts.GeoPath) != "" {
		loaded, err := geo.LoadFile(opts.GeoPath, 0)
		if err != nil {
			return nil, err
		}
		table = loaded
	}

	store, err := OpenCatalogStore(ctx, opts.DBPath)
	if err != nil {
		return nil, err
	}
	adapter := storage.NewResilient(store)
	service := catalog.NewService(query.NewEngine(query.Config{CacheSize: opts.CacheSize, Geo: table}))

	s := &Server{store: store, adapter: adapter, service: service, reload: opts.ReloadInterval}
	if err := s.Reload(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	listener, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", opts.Addr, err)
	}
	s.listener = listener
	s.grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.health = health.NewServer()
	catalog.Register(s.grpcServer, service)
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(catalog.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return s, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Reload reads the whole catalog and publishes it when its version changed.
func (s *Server) Reload(ctx context.Context) error {
	camps, version, err := storage.LoadAllCamps(ctx, s.adapter, "")
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if current := s.service.Snapshot(); current != nil && current.Version() == version {
		return nil
	}
	snap, warnings := domain.NewSnapshot(version, camps, time.Now())
	for _, w := range warnings {
		log.Printf("catalog: %s", w.Detail)
	}
	stats := s.service.SetSnapshot(snap)
	log.Printf("catalog version %d published with %d camps", version, stats.Total)
	return nil
}

// Run creates and serves a catalog server until context cancellation.
func Run(ctx context.Context, opts Options) error {
	server, err := New(ctx, opts)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the gRPC server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	if s.reload > 0 {
		go s.reloadLoop(ctx)
	}

	log.Printf("catalog server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		return serveResult(<-serveErr)
	case err := <-serveErr:
		return serveResult(err)
	}
}

func serveResult(err error) error {
	if err == nil || errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return fmt.Errorf("serve gRPC: %w", err)
}

func (s *Server) reloadLoop(ctx context.Context) {
	ticker := time.NewTicker(s.reload)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				log.Printf("reload catalog: %v", err)
			}
		}
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close catalog store: %v", err)
		}
	}
}

// OpenCatalogStore opens the SQLite catalog at path, creating its directory.
// Failures other than a schema mismatch are transient.
func OpenCatalogStore(ctx context.Context, path string) (*campsqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := campsqlite.Open(ctx, path)
	if err != nil {
		if errors.Is(err, sqlitemigrate.ErrSchemaMismatch) || strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("open catalog sqlite store: %w", err)
		}
		return nil, apperrors.Wrap(apperrors.CodeTransient, "open catalog sqlite store", err)
	}
	return store, nil
}
