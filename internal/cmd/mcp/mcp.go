// Package mcp parses MCP command flags and serves catalog tools over stdio.
package mcp

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/campplanner/internal/platform/cmd"
	"github.com/louisbranch/campplanner/internal/platform/config"
	platformgrpc "github.com/louisbranch/campplanner/internal/platform/grpc"
	"github.com/louisbranch/campplanner/internal/platform/timeouts"
	"github.com/louisbranch/campplanner/internal/services/camps/api/grpc/catalog"
	mcpapi "github.com/louisbranch/campplanner/internal/services/camps/api/mcp"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Config holds MCP command configuration.
type Config struct {
	CatalogAddr string        `env:"CAMPPLANNER_CATALOG_ADDR" envDefault:"localhost:8092"`
	DialTimeout time.Duration `env:"CAMPPLANNER_MCP_DIAL_TIMEOUT"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = timeouts.GRPCDial
	}

	fs.StringVar(&cfg.CatalogAddr, "catalog-addr", cfg.CatalogAddr, "catalog gRPC server address")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "how long to wait for the catalog to report healthy")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.CatalogAddr) == "" {
		return Config{}, config.Invalidf("catalog-addr is required")
	}
	if cfg.DialTimeout <= 0 {
		return Config{}, config.Invalidf("dial-timeout must be positive")
	}
	return cfg, nil
}

// Run connects to the catalog service and serves MCP tools on stdio.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		conn, err := platformgrpc.Dial(ctx, cfg.CatalogAddr, catalog.ServiceName, cfg.DialTimeout)
		if err != nil {
			return fmt.Errorf("connect catalog: %w", err)
		}
		defer conn.Close()

		server := mcpapi.NewServer(catalog.NewClient(conn), time.Now)
		return mcpapi.Serve(ctx, server, &mcpsdk.StdioTransport{})
	})
}
