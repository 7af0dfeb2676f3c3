// Package mcp exposes generation status and codeframe hierarchies to agents
// over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/helixml/codeframe/application/service"
	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/hierarchy"
	"github.com/helixml/codeframe/infrastructure/api/v1/dto"
)

// StatusReader reports a generation with its job counts.
type StatusReader interface {
	Status(ctx context.Context, id int64) (service.Status, error)
}

// HierarchyReader reads a generation's codeframe.
type HierarchyReader interface {
	Tree(ctx context.Context, generationID int64) ([]hierarchy.TreeNode, error)
	Flat(ctx context.Context, generationID int64) ([]hierarchy.Node, error)
}

// Server wraps the MCP server with codeframe tools.
type Server struct {
	mcpServer   *server.MCPServer
	generations StatusReader
	hierarchy   HierarchyReader
	logger      *slog.Logger
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(generations StatusReader, hierarchyReader HierarchyReader, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		generations: generations,
		hierarchy:   hierarchyReader,
		logger:      logger,
	}

	mcpServer := server.NewMCPServer(
		"codeframe",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	statusTool := mcp.NewTool("get_generation_status",
		mcp.WithDescription("Get a codeframe generation's status and the state of its label jobs"),
		mcp.WithNumber("generation_id",
			mcp.Required(),
			mcp.Description("The numeric ID of the generation"),
		),
	)
	mcpServer.AddTool(statusTool, s.handleStatus)

	hierarchyTool := mcp.NewTool("get_hierarchy",
		mcp.WithDescription("Get the codeframe of a generation as a tree of themes and codes"),
		mcp.WithNumber("generation_id",
			mcp.Required(),
			mcp.Description("The numeric ID of the generation"),
		),
		mcp.WithBoolean("flat",
			mcp.Description("Return a tree-ordered flat list instead of nested nodes (default: false)"),
		),
	)
	mcpServer.AddTool(hierarchyTool, s.handleHierarchy)
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := generationID(request)
	if errResult != nil {
		return errResult, nil
	}

	status, err := s.generations.Status(ctx, id)
	if err != nil {
		return s.toolError("get generation status", id, err), nil
	}

	return jsonResult(dto.GenerationStatusResponse{
		Data: dto.NewGenerationResponse(status.Generation),
		Jobs: status.Jobs,
	})
}

func (s *Server) handleHierarchy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := generationID(request)
	if errResult != nil {
		return errResult, nil
	}

	if request.GetBool("flat", false) {
		nodes, err := s.hierarchy.Flat(ctx, id)
		if err != nil {
			return s.toolError("get hierarchy", id, err), nil
		}
		return jsonResult(dto.NewFlatResponse(nodes))
	}

	tree, err := s.hierarchy.Tree(ctx, id)
	if err != nil {
		return s.toolError("get hierarchy", id, err), nil
	}
	return jsonResult(dto.NewTreeResponse(tree))
}

func (s *Server) toolError(operation string, id int64, err error) *mcp.CallToolResult {
	if errors.Is(err, domain.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("generation %d not found", id))
	}
	s.logger.Error(operation+" failed", slog.Int64("generation_id", id), slog.Any("error", err))
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", operation, err))
}

func generationID(request mcp.CallToolRequest) (int64, *mcp.CallToolResult) {
	id := request.GetInt("generation_id", 0)
	if id <= 0 {
		return 0, mcp.NewToolResultError("generation_id is required")
	}
	return int64(id), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MCPServer returns the underlying MCP server for stdio serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
