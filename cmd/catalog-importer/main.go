// Package main loads a camp catalog file into the SQLite store.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	entrypoint "github.com/louisbranch/campplanner/internal/platform/cmd"
	"github.com/louisbranch/campplanner/internal/platform/config"
	campimporter "github.com/louisbranch/campplanner/internal/tools/importer/camps"
)

func main() {
	cfg, err := campimporter.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.ExitCodef(entrypoint.ExitCode(err), "Error: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceImporter, func(ctx context.Context) error {
		return campimporter.Run(ctx, cfg, os.Stdout)
	})
	if err != nil {
		stop()
		config.ExitCodef(entrypoint.ExitCode(err), "Error: %v", err)
	}
}
