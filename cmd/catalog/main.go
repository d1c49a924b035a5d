// Package main starts the catalog gRPC service process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	catalogcmd "github.com/louisbranch/campplanner/internal/cmd/catalog"
	entrypoint "github.com/louisbranch/campplanner/internal/platform/cmd"
	"github.com/louisbranch/campplanner/internal/platform/config"
)

func main() {
	cfg, err := catalogcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.ExitCodef(entrypoint.ExitCode(err), "parse flags: %v", err)
	}
	log.SetPrefix("[CATALOG] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := catalogcmd.Run(ctx, cfg); err != nil {
		stop()
		config.ExitCodef(entrypoint.ExitCode(err), "failed to serve: %v", err)
	}
}
