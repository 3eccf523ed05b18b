// Package mcp exposes the memory engine as a Model Context Protocol tool
// surface. Every tool call passes through the operation driver, which owns
// operation ids, timeouts, and error mapping.
package mcp

import (
	"context"
	"time"

	mcp "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/server"
	"github.com/fredcamaral/gomcp-sdk/transport"

	"mcp-semantic-memory/internal/analytics"
	"mcp-semantic-memory/internal/codeindex"
	"mcp-semantic-memory/internal/config"
	"mcp-semantic-memory/internal/crossproject"
	"mcp-semantic-memory/internal/dedup"
	"mcp-semantic-memory/internal/logging"
	"mcp-semantic-memory/internal/memory"
)

const (
	serverName    = "mcp-semantic-memory"
	serverVersion = "1.0.0"
)

// Deps carries the wired services the tool surface drives.
type Deps struct {
	Memory        *memory.Service
	Dedup         *dedup.Detector
	Relationships *dedup.RelationshipDetector
	CodeIndex     *codeindex.Indexer
	CrossProject  *crossproject.Searcher
	Registry      *crossproject.Registry
	Analytics     *analytics.Collector
}

// Server is the MCP-facing façade over the memory engine.
type Server struct {
	mcpServer *server.Server
	deps      Deps
	analytics *analytics.Collector
	timeout   time.Duration
	logger    logging.Logger
}

// NewServer builds the tool surface and registers every tool.
func NewServer(cfg *config.Config, deps Deps) *Server {
	timeout := defaultOperationTimeout
	if cfg != nil && cfg.Server.OperationTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Server.OperationTimeoutSeconds) * time.Second
	}
	s := &Server{
		mcpServer: mcp.NewServer(serverName, serverVersion),
		deps:      deps,
		analytics: deps.Analytics,
		timeout:   timeout,
		logger:    logging.WithComponent("mcp"),
	}
	s.registerMemoryTools()
	s.registerCodeTools()
	s.registerCrossProjectTools()
	s.registerAnalyticsTools()
	return s
}

// MCPServer exposes the underlying protocol server.
func (s *Server) MCPServer() *server.Server {
	return s.mcpServer
}

// ServeStdio attaches the stdio transport and serves until the context is
// cancelled. Stdout belongs to the protocol; all logging goes to stderr.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.mcpServer.SetTransport(transport.NewStdioTransport())
	s.logger.Info("serving MCP over stdio")
	return s.mcpServer.Start(ctx)
}

// addTool registers one tool behind the operation driver.
func (s *Server) addTool(name, description string, schema map[string]interface{}, handler handlerFunc) {
	s.mcpServer.AddTool(
		mcp.NewTool(name, description, schema),
		mcp.ToolHandlerFunc(s.drive(name, handler)),
	)
}

// Schema property helpers shared by the tool registrations.

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func enumProp(description string, values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "enum": values, "description": description}
}

func numberProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": description}
}

func integerProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func boolProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

func arrayProp(description, itemType string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": itemType},
		"description": description,
	}
}

func objectProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": true,
		"description":          description,
	}
}
