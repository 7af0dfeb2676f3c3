package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/helixml/codeframe/application/service"
	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/cluster"
	"github.com/helixml/codeframe/domain/generation"
	"github.com/helixml/codeframe/domain/hierarchy"
	"github.com/helixml/codeframe/domain/job"
	"github.com/helixml/codeframe/infrastructure/api/v1/dto"
)

var testTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeGenerations implements StatusReader for generation 7 only.
type fakeGenerations struct{}

func (fakeGenerations) Status(_ context.Context, id int64) (service.Status, error) {
	if id != 7 {
		return service.Status{}, fmt.Errorf("get generation %d: %w", id, domain.ErrNotFound)
	}
	g := generation.Reconstruct(
		7, 12, generation.StatusLabeling, nil, cluster.DefaultConfig(),
		"en", "analyst", "", 0, 0, 3, testTime, testTime, nil,
	)
	return service.Status{Generation: g, Jobs: job.Counts{Waiting: 1, Completed: 2}}, nil
}

// fakeHierarchy implements HierarchyReader with one theme and one code.
type fakeHierarchy struct{}

func testNodes() []hierarchy.Node {
	parent := int64(1)
	return []hierarchy.Node{
		hierarchy.ReconstructNode(1, 7, nil, "Service", "", hierarchy.ConfidenceHigh, hierarchy.FrequencyCommon,
			[]string{"rude staff"}, nil, nil, 0, true, false, nil, 1, testTime, testTime),
		hierarchy.ReconstructNode(2, 7, &parent, "Rude staff", "", hierarchy.ConfidenceMedium, hierarchy.FrequencyRare,
			nil, nil, nil, 0, true, false, nil, 1, testTime, testTime),
	}
}

func (fakeHierarchy) Tree(_ context.Context, _ int64) ([]hierarchy.TreeNode, error) {
	return hierarchy.BuildTree(testNodes()), nil
}

func (fakeHierarchy) Flat(_ context.Context, _ int64) ([]hierarchy.Node, error) {
	return testNodes(), nil
}

func testServer() *Server {
	return NewServer(fakeGenerations{}, fakeHierarchy{}, "0.1.0-test", nil)
}

// sendMessage marshals a JSON-RPC request, sends it through HandleMessage,
// and returns the JSONRPCResponse.
func sendMessage(t *testing.T, srv *Server, method string, id int, params map[string]any) mcp.JSONRPCResponse {
	t.Helper()

	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		msg["params"] = params
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	result := srv.MCPServer().HandleMessage(context.Background(), raw)

	resp, ok := result.(mcp.JSONRPCResponse)
	if !ok {
		t.Fatalf("expected JSONRPCResponse, got %T: %+v", result, result)
	}
	return resp
}

// resultJSON re-marshals the Result field through JSON into dst.
func resultJSON(t *testing.T, resp mcp.JSONRPCResponse, dst any) {
	t.Helper()
	b, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		t.Fatalf("unmarshal result into %T: %v", dst, err)
	}
}

func textFromContent(t *testing.T, result mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	b, err := json.Marshal(result.Content[0])
	if err != nil {
		t.Fatalf("marshal content: %v", err)
	}
	var tc struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b, &tc); err != nil {
		t.Fatalf("unmarshal text content: %v", err)
	}
	return tc.Text
}

func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "test-client",
			"version": "0.0.1",
		},
	}
}

func callTool(t *testing.T, name string, args map[string]any) mcp.CallToolResult {
	t.Helper()
	srv := testServer()
	sendMessage(t, srv, "initialize", 1, initializeParams())
	resp := sendMessage(t, srv, "tools/call", 2, map[string]any{
		"name":      name,
		"arguments": args,
	})
	var result mcp.CallToolResult
	resultJSON(t, resp, &result)
	return result
}

func TestServer_Initialize(t *testing.T) {
	srv := testServer()
	resp := sendMessage(t, srv, "initialize", 1, initializeParams())

	var result mcp.InitializeResult
	resultJSON(t, resp, &result)

	if result.ServerInfo.Name != "codeframe" {
		t.Errorf("expected server name codeframe, got %s", result.ServerInfo.Name)
	}
	if result.ServerInfo.Version != "0.1.0-test" {
		t.Errorf("expected version 0.1.0-test, got %s", result.ServerInfo.Version)
	}
	if result.Capabilities.Tools == nil {
		t.Error("expected tools capability to be present")
	}
}

func TestServer_ListTools(t *testing.T) {
	srv := testServer()
	sendMessage(t, srv, "initialize", 1, initializeParams())

	resp := sendMessage(t, srv, "tools/list", 2, nil)

	var result mcp.ListToolsResult
	resultJSON(t, resp, &result)

	names := map[string]bool{}
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	if len(names) != 2 || !names["get_generation_status"] || !names["get_hierarchy"] {
		t.Errorf("unexpected tools: %v", names)
	}
}

func TestServer_GetGenerationStatus(t *testing.T) {
	result := callTool(t, "get_generation_status", map[string]any{"generation_id": 7})
	if result.IsError {
		t.Fatalf("unexpected error: %s", textFromContent(t, result))
	}

	var status dto.GenerationStatusResponse
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Data.ID != 7 || status.Data.Status != "labeling" {
		t.Errorf("unexpected generation: %+v", status.Data)
	}
	if status.Jobs.Waiting != 1 || status.Jobs.Completed != 2 {
		t.Errorf("unexpected job counts: %+v", status.Jobs)
	}
}

func TestServer_GetGenerationStatusNotFound(t *testing.T) {
	result := callTool(t, "get_generation_status", map[string]any{"generation_id": 99})
	if !result.IsError {
		t.Fatal("expected error response")
	}
	if text := textFromContent(t, result); !strings.Contains(text, "generation 99 not found") {
		t.Errorf("unexpected error text: %s", text)
	}
}

func TestServer_GetGenerationStatusMissingID(t *testing.T) {
	result := callTool(t, "get_generation_status", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error response")
	}
	if text := textFromContent(t, result); !strings.Contains(text, "generation_id is required") {
		t.Errorf("unexpected error text: %s", text)
	}
}

func TestServer_GetHierarchyTree(t *testing.T) {
	result := callTool(t, "get_hierarchy", map[string]any{"generation_id": 7})
	if result.IsError {
		t.Fatalf("unexpected error: %s", textFromContent(t, result))
	}

	var tree dto.TreeResponse
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &tree); err != nil {
		t.Fatalf("unmarshal tree: %v", err)
	}
	if len(tree.Data) != 1 || tree.Data[0].Name != "Service" {
		t.Fatalf("unexpected roots: %+v", tree.Data)
	}
	if len(tree.Data[0].Children) != 1 || tree.Data[0].Children[0].Name != "Rude staff" {
		t.Errorf("unexpected children: %+v", tree.Data[0].Children)
	}
}

func TestServer_GetHierarchyFlat(t *testing.T) {
	result := callTool(t, "get_hierarchy", map[string]any{"generation_id": 7, "flat": true})
	if result.IsError {
		t.Fatalf("unexpected error: %s", textFromContent(t, result))
	}

	var flat dto.FlatResponse
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &flat); err != nil {
		t.Fatalf("unmarshal flat: %v", err)
	}
	if len(flat.Data) != 2 || flat.Data[1].ParentID == nil || *flat.Data[1].ParentID != 1 {
		t.Errorf("unexpected nodes: %+v", flat.Data)
	}
}
