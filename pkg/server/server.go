// Package server exposes the CO2 estimator tools over MCP (stdio and
// HTTP+SSE) and as a small JSON API.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/NERVsystems/co2mcp/pkg/tools"
	"github.com/NERVsystems/co2mcp/pkg/version"
)

// ServerName is the MCP implementation name announced to clients
const ServerName = "co2mcp"

// Server is the MCP server with every estimator tool registered.
type Server struct {
	srv      *mcpserver.MCPServer
	registry *tools.Registry
	logger   *slog.Logger
}

func NewServer(logger *slog.Logger, svc tools.Services) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if svc.Calculator == nil || svc.Resolver == nil || svc.Sessions == nil || svc.Routes == nil {
		return nil, errors.New("server: calculator, resolver, sessions and routes are required")
	}
	logger.Info("initializing CO2 estimator MCP server",
		"name", ServerName,
		"version", version.BuildVersion)

	srv := mcpserver.NewMCPServer(
		ServerName,
		version.BuildVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	registry := tools.NewRegistry(logger, svc)
	registry.RegisterAll(srv)

	return &Server{srv: srv, registry: registry, logger: logger}, nil
}

// Serve speaks MCP over newline-delimited JSON-RPC on in and out until in
// reaches EOF or ctx is cancelled. Both count as a clean stop.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.srv)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		s.logger.Info("stdio transport stopped")
		return nil
	}
	return err
}

// RunWithContext serves MCP on the process's stdin and stdout.
func (s *Server) RunWithContext(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// GetMCPServer returns the underlying MCP server for the HTTP transport
func (s *Server) GetMCPServer() *mcpserver.MCPServer {
	return s.srv
}

// Registry returns the tool registry backing both the MCP and JSON surfaces
func (s *Server) Registry() *tools.Registry {
	return s.registry
}
