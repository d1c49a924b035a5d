// Package catalog parses catalog service flags and launches the gRPC server.
package catalog

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/campplanner/internal/platform/cmd"
	"github.com/louisbranch/campplanner/internal/platform/config"
	"github.com/louisbranch/campplanner/internal/services/camps/server"
)

// Config holds catalog command configuration.
type Config struct {
	Port           int           `env:"CAMPPLANNER_CATALOG_PORT"            envDefault:"8092"`
	DBPath         string        `env:"CAMPPLANNER_DB_PATH"                 envDefault:"data/camps.db"`
	GeoPath        string        `env:"CAMPPLANNER_GEO_PATH"`
	ReloadInterval time.Duration `env:"CAMPPLANNER_CATALOG_RELOAD_INTERVAL" envDefault:"1m"`
	CacheSize      int           `env:"CAMPPLANNER_QUERY_CACHE_SIZE"        envDefault:"256"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The catalog gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the catalog SQLite database")
	fs.StringVar(&cfg.GeoPath, "geo-path", cfg.GeoPath, "Optional YAML address table for distance queries")
	fs.DurationVar(&cfg.ReloadInterval, "reload-interval", cfg.ReloadInterval, "How often to re-read the catalog; 0 disables")
	fs.IntVar(&cfg.CacheSize, "cache-size", cfg.CacheSize, "Query result cache entries per level; 0 uses the default")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return Config{}, config.Invalidf("port %d out of range", cfg.Port)
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return Config{}, config.Invalidf("db-path is required")
	}
	if cfg.CacheSize < 0 {
		return Config{}, config.Invalidf("cache-size must not be negative")
	}
	return cfg, nil
}

// Run starts the catalog gRPC API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCatalog, func(ctx context.Context) error {
		return server.Run(ctx, server.Options{
			Addr:           fmt.Sprintf(":%d", cfg.Port),
			DBPath:         cfg.DBPath,
			GeoPath:        cfg.GeoPath,
			ReloadInterval: cfg.ReloadInterval,
			CacheSize:      cfg.CacheSize,
		})
	})
}
