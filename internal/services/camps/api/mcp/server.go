// Package mcp exposes catalog queries and the week calendar as MCP tools.
package mcp

import (
	"context"
	"errors"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "campplanner"
	serverVersion = "0.1.0"
)

// NewServer returns an MCP server with the catalog tools registered.
func NewServer(catalog Catalog, now func() time.Time) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: serverVersion}, nil)
	mcpsdk.AddTool(server, SearchCampsTool(), SearchCampsHandler(catalog))
	mcpsdk.AddTool(server, CampUrgencyTool(), CampUrgencyHandler(now))
	mcpsdk.AddTool(server, SummerWeeksTool(), SummerWeeksHandler())
	return server
}

// Serve runs server on transport until ctx is cancelled or the client
// disconnects.
func Serve(ctx context.Context, server *mcpsdk.Server, transport mcpsdk.Transport) error {
	if server == nil {
		return errors.New("mcp server is nil")
	}
	err := server.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
