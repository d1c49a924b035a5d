// Package campplanner builds the campplanner command-line interface.
package campplanner

import (
	"context"
	"fmt"
	"io"
	"strings"

	entrypoint "github.com/louisbranch/campplanner/internal/platform/cmd"
	"github.com/louisbranch/campplanner/internal/platform/config"
	"github.com/louisbranch/campplanner/internal/services/camps/geo"
	"github.com/louisbranch/campplanner/internal/services/camps/server"
	"github.com/louisbranch/campplanner/internal/services/camps/storage"
	campsqlite "github.com/louisbranch/campplanner/internal/services/camps/storage/sqlite"
	"github.com/spf13/cobra"
)

// Config holds settings shared by every subcommand.
type Config struct {
	DBPath  string `env:"CAMPPLANNER_DB_PATH" envDefault:"data/camps.db"`
	GeoPath string `env:"CAMPPLANNER_GEO_PATH"`
	Locale  string `env:"CAMPPLANNER_LOCALE" envDefault:"en-US"`
	// SessionToken signs a user in before searching.
	SessionToken string `env:"CAMPPLANNER_SESSION_TOKEN"`
}

// NewRootCommand returns the campplanner command tree. Defaults come from
// cfg; persistent flags override them.
func NewRootCommand(cfg Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "campplanner",
		Short:         "Search the summer camp catalog and plan camp weeks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "catalog database path")
	root.PersistentFlags().StringVar(&cfg.GeoPath, "geo-path", cfg.GeoPath, "YAML address table for distance queries")
	root.PersistentFlags().StringVar(&cfg.Locale, "locale", cfg.Locale, "preferred locale for messages")
	root.PersistentFlags().StringVar(&cfg.SessionToken, "session-token", cfg.SessionToken, "signed session token; requires CAMPPLANNER_SESSION_SECRET")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", config.ErrInvalid, err)
	})

	root.AddCommand(
		newSearchCommand(&cfg),
		newUpcomingCommand(&cfg),
		newWeeksCommand(),
		newFingerprintCommand(),
		newWhoamiCommand(&cfg),
	)
	return root
}

// Execute parses env defaults, runs the command tree and returns the
// process exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return entrypoint.ExitCode(err)
	}
	root := NewRootCommand(cfg)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePlanner, root.ExecuteContext)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return entrypoint.ExitCode(err)
}

// openCatalog opens the configured store wrapped with retries.
func openCatalog(ctx context.Context, cfg *Config) (*campsqlite.Store, storage.Adapter, error) {
	if strings.TrimSpace(cfg.DBPath) == "" {
		return nil, nil, config.Invalidf("db-path is required")
	}
	store, err := server.OpenCatalogStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return store, storage.NewResilient(store), nil
}

func loadGeo(cfg *Config) (*geo.Table, error) {
	if strings.TrimSpace(cfg.GeoPath) == "" {
		return nil, nil
	}
	table, err := geo.LoadFile(cfg.GeoPath, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	return table, nil
}
