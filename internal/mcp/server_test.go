package mcp

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
)

// captureOutput redirects stdout during test and returns captured content
func captureOutput(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// setupTestServer creates a server with a temp data directory
func setupTestServer(t *testing.T) (*Server, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "taproot-mcp-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	originalDataDir := os.Getenv("TAPROOT_DATA_DIR")
	os.Setenv("TAPROOT_DATA_DIR", tmpDir)

	// Suppress stderr output during tests
	oldStderr := os.Stderr
	os.Stderr, _ = os.Open(os.DevNull)

	server, err := NewServer()

	os.Stderr = oldStderr

	if err != nil {
		os.RemoveAll(tmpDir)
		os.Setenv("TAPROOT_DATA_DIR", originalDataDir)
		t.Fatalf("failed to create server: %v", err)
	}

	cleanup := func() {
		server.Stop()
		os.RemoveAll(tmpDir)
		os.Setenv("TAPROOT_DATA_DIR", originalDataDir)
	}

	return server, cleanup
}

// callTool drives a tools/call request through the server and returns the
// parsed response.
func callTool(t *testing.T, server *Server, name string, args map[string]interface{}) JSONRPCResponse {
	t.Helper()

	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	paramsJSON, _ := json.Marshal(params)

	req := &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	}

	output := captureOutput(func() {
		server.handleRequest(req)
	})

	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(output), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return resp
}

// toolText extracts the text payload from a tool-call response, failing the
// test if the response carries isError.
func toolText(t *testing.T, resp JSONRPCResponse) string {
	t.Helper()

	if resp.Error != nil {
		t.Fatalf("unexpected RPC error: %v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("result is not a map")
	}
	if result["isError"] == true {
		t.Fatalf("tool returned error: %v", result["content"])
	}
	content := result["content"].([]interface{})
	first := content[0].(map[string]interface{})
	return first["text"].(string)
}

// toolErrorText extracts the error text from a tool-call response that is
// expected to carry isError.
func toolErrorText(t *testing.T, resp JSONRPCResponse) string {
	t.Helper()

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("result is not a map")
	}
	if result["isError"] != true {
		t.Fatalf("expected isError response, got: %v", result)
	}
	content := result["content"].([]interface{})
	first := content[0].(map[string]interface{})
	return first["text"].(string)
}

// =============================================================================
// Server Creation Tests
// =============================================================================

func TestNewServer(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	if server == nil {
		t.Fatal("expected non-nil server")
	}
	if server.store == nil {
		t.Error("expected non-nil store")
	}
}

func TestNewServerAt_CorruptFileStartsEmpty(t *testing.T) {
	tmpDir := t.TempDir()
	path := tmpDir + "/memory.json"
	if err := os.WriteFile(path, []byte("{{{not json"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	oldStderr := os.Stderr
	os.Stderr, _ = os.Open(os.DevNull)
	server, err := NewServerAt(path)
	os.Stderr = oldStderr

	if err != nil {
		t.Fatalf("NewServerAt: %v", err)
	}
	if server.store.Size() != 0 {
		t.Errorf("expected empty store after corrupt load, got %d nodes", server.store.Size())
	}
}

// =============================================================================
// Initialize Tests
// =============================================================================

func TestHandleInitialize(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
	}

	output := captureOutput(func() {
		server.handleRequest(req)
	})

	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(output), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.Error != nil {
		t.Errorf("unexpected error: %v", resp.Error)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("result is not a map")
	}

	if result["protocolVersion"] != "2024-11-05" {
		t.Errorf("unexpected protocol version: %v", result["protocolVersion"])
	}

	info, ok := result["serverInfo"].(map[string]interface{})
	if !ok {
		t.Error("serverInfo missing")
	}
	if info["name"] != "taproot-mcp" {
		t.Errorf("unexpected server name: %v", info["name"])
	}
}

func TestHandleRequest_UnknownMethod(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "nonsense/method",
	}

	output := captureOutput(func() {
		server.handleRequest(req)
	})

	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(output), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected method-not-found error")
	}
	if resp.Error.Code != -32601 {
		t.Errorf("unexpected error code: %d", resp.Error.Code)
	}
}

// =============================================================================
// Tools List Tests
// =============================================================================

func TestHandleToolsList(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/list",
	}

	output := captureOutput(func() {
		server.handleRequest(req)
	})

	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(output), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("result is not a map")
	}

	tools, ok := result["tools"].([]interface{})
	if !ok {
		t.Fatal("tools is not an array")
	}

	expectedTools := map[string]bool{
		"add_node":         false,
		"connect":          false,
		"recall":           false,
		"forget":           false,
		"disconnect":       false,
		"list_tags":        false,
		"list_nodes":       false,
		"list_connections": false,
		"graph_stats":      false,
	}

	for _, tool := range tools {
		toolMap := tool.(map[string]interface{})
		name := toolMap["name"].(string)
		expectedTools[name] = true

		if toolMap["description"] == nil {
			t.Errorf("tool '%s' missing description", name)
		}
		schema, ok := toolMap["inputSchema"].(map[string]interface{})
		if !ok {
			t.Errorf("tool '%s' missing inputSchema", name)
			continue
		}
		if schema["type"] != "object" {
			t.Errorf("tool '%s' schema type should be 'object'", name)
		}
	}

	for name, found := range expectedTools {
		if !found {
			t.Errorf("tool '%s' not found in tools list", name)
		}
	}
}

// =============================================================================
// Tool Call Tests - add_node / connect
// =============================================================================

func TestToolCall_AddNode(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := callTool(t, server, "add_node", map[string]interface{}{
		"content": "likes pizza",
		"tags":    []interface{}{"food", "preference"},
	})

	text := toolText(t, resp)
	if !strings.Contains(text, "added") {
		t.Errorf("unexpected response text: %s", text)
	}

	if server.store.Size() != 1 {
		t.Errorf("expected 1 node, got %d", server.store.Size())
	}
	node := server.store.Nodes()[0]
	if node.ID != "0" {
		t.Errorf("expected auto-assigned id 0, got %s", node.ID)
	}
	if node.Content != "likes pizza" {
		t.Errorf("unexpected content: %s", node.Content)
	}
}

func TestToolCall_AddNode_ExplicitID(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := callTool(t, server, "add_node", map[string]interface{}{
		"content": "custom",
		"id":      "pizza-fact",
	})
	toolText(t, resp)

	if !server.store.Contains("pizza-fact") {
		t.Error("expected node with explicit id")
	}
}

func TestToolCall_AddNode_DuplicateID(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	callTool(t, server, "add_node", map[string]interface{}{"content": "first", "id": "x"})
	resp := callTool(t, server, "add_node", map[string]interface{}{"content": "second", "id": "x"})

	text := toolErrorText(t, resp)
	if !strings.Contains(text, "x") {
		t.Errorf("error should name the colliding id: %s", text)
	}
	if server.store.Size() != 1 {
		t.Errorf("duplicate add must not change the store, got %d nodes", server.store.Size())
	}
}

func TestToolCall_AddNode_MissingContent(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := callTool(t, server, "add_node", map[string]interface{}{
		"tags": []interface{}{"orphan"},
	})
	toolErrorText(t, resp)
}

func TestToolCall_Connect(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	callTool(t, server, "add_node", map[string]interface{}{"content": "a", "id": "a"})
	callTool(t, server, "add_node", map[string]interface{}{"content": "b", "id": "b"})

	resp := callTool(t, server, "connect", map[string]interface{}{
		"from_id": "a",
		"to_id":   "b",
		"type":    "caused_by",
	})
	toolText(t, resp)

	conns := server.store.ListConnections()
	if len(conns) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(conns))
	}
	if conns[0].Type != "caused_by" {
		t.Errorf("unexpected type: %s", conns[0].Type)
	}
}

func TestToolCall_Connect_DanglingReference(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	callTool(t, server, "add_node", map[string]interface{}{"content": "a", "id": "a"})

	resp := callTool(t, server, "connect", map[string]interface{}{
		"from_id": "a",
		"to_id":   "ghost",
		"type":    "t",
	})
	toolErrorText(t, resp)

	if len(server.store.ListConnections()) != 0 {
		t.Error("dangling connect must not change the store")
	}
}

// =============================================================================
// Tool Call Tests - recall
// =============================================================================

func TestToolCall_Recall(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	callTool(t, server, "add_node", map[string]interface{}{
		"content": "likes pizza", "id": "0", "tags": []interface{}{"food"},
	})
	callTool(t, server, "add_node", map[string]interface{}{
		"content": "lives in Rome", "id": "1", "tags": []interface{}{"geo"},
	})
	callTool(t, server, "connect", map[string]interface{}{
		"from_id": "0", "to_id": "1", "type": "lives_near",
	})

	resp := callTool(t, server, "recall", map[string]interface{}{
		"tags": []interface{}{"food"},
	})
	text := toolText(t, resp)

	var payload struct {
		Count   int `json:"count"`
		Results []struct {
			ID          string `json:"id"`
			Match       string `json:"match"`
			Connections []struct {
				Type      string `json:"type"`
				MatchedID string `json:"matched_id"`
			} `json:"connections"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("failed to parse recall payload: %v", err)
	}

	if payload.Count != 2 {
		t.Fatalf("expected 2 results, got %d", payload.Count)
	}
	if payload.Results[0].ID != "0" || payload.Results[0].Match != "direct" {
		t.Errorf("unexpected first result: %+v", payload.Results[0])
	}
	if payload.Results[1].ID != "1" || payload.Results[1].Match != "related" {
		t.Errorf("unexpected second result: %+v", payload.Results[1])
	}
	if len(payload.Results[1].Connections) != 1 {
		t.Fatalf("expected 1 evidence entry, got %d", len(payload.Results[1].Connections))
	}
	ev := payload.Results[1].Connections[0]
	if ev.Type != "lives_near" || ev.MatchedID != "0" {
		t.Errorf("unexpected evidence: %+v", ev)
	}
}

func TestToolCall_Recall_NoTags(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := callTool(t, server, "recall", map[string]interface{}{})
	toolErrorText(t, resp)
}

// =============================================================================
// Tool Call Tests - forget / disconnect
// =============================================================================

func TestToolCall_Forget(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	callTool(t, server, "add_node", map[string]interface{}{
		"content": "temporary fact", "id": "tmp", "tags": []interface{}{"scratch"},
	})
	callTool(t, server, "add_node", map[string]interface{}{
		"content": "keeper", "id": "keep",
	})

	resp := callTool(t, server, "forget", map[string]interface{}{
		"tags": []interface{}{"scratch"},
	})
	text := toolText(t, resp)
	if !strings.Contains(text, "\"removed\": 1") {
		t.Errorf("unexpected forget payload: %s", text)
	}

	if server.store.Contains("tmp") {
		t.Error("tagged node should be gone")
	}
	if !server.store.Contains("keep") {
		t.Error("untagged node should survive")
	}
}

func TestToolCall_Forget_NeedsCriteria(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := callTool(t, server, "forget", map[string]interface{}{})
	toolErrorText(t, resp)
}

func TestToolCall_Disconnect(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	callTool(t, server, "add_node", map[string]interface{}{"content": "a", "id": "a"})
	callTool(t, server, "add_node", map[string]interface{}{"content": "b", "id": "b"})
	callTool(t, server, "connect", map[string]interface{}{"from_id": "a", "to_id": "b", "type": "t"})
	callTool(t, server, "connect", map[string]interface{}{"from_id": "b", "to_id": "a", "type": "t"})

	resp := callTool(t, server, "disconnect", map[string]interface{}{
		"from_id": "a", "to_id": "b",
	})
	text := toolText(t, resp)
	if !strings.Contains(text, "\"removed\": 1") {
		t.Errorf("unexpected disconnect payload: %s", text)
	}

	conns := server.store.ListConnections()
	if len(conns) != 1 || conns[0].FromID != "b" {
		t.Errorf("reverse direction should survive, got %+v", conns)
	}
}

// =============================================================================
// Tool Call Tests - listings and stats
// =============================================================================

func TestToolCall_ListTags(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	callTool(t, server, "add_node", map[string]interface{}{
		"content": "x", "tags": []interface{}{"zebra", "apple"},
	})

	resp := callTool(t, server, "list_tags", map[string]interface{}{})
	text := toolText(t, resp)

	var payload struct {
		Count int      `json:"count"`
		Tags  []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("failed to parse tags payload: %v", err)
	}
	if payload.Count != 2 {
		t.Errorf("expected 2 tags, got %d", payload.Count)
	}
	if payload.Tags[0] != "apple" || payload.Tags[1] != "zebra" {
		t.Errorf("tags should be sorted, got %v", payload.Tags)
	}
}

func TestToolCall_GraphStats(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	callTool(t, server, "add_node", map[string]interface{}{
		"content": "x", "tags": []interface{}{"t"},
	})

	resp := callTool(t, server, "graph_stats", map[string]interface{}{})
	text := toolText(t, resp)

	var stats GraphStats
	if err := json.Unmarshal([]byte(text), &stats); err != nil {
		t.Fatalf("failed to parse stats: %v", err)
	}
	if stats.Nodes != 1 || stats.Tags != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestToolCall_UnknownTool(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := callTool(t, server, "does_not_exist", map[string]interface{}{})
	if resp.Error == nil {
		t.Fatal("expected error for unknown tool")
	}
	if resp.Error.Code != -32602 {
		t.Errorf("unexpected error code: %d", resp.Error.Code)
	}
}

// =============================================================================
// Persistence Tests
// =============================================================================

func TestToolCalls_PersistAcrossRestart(t *testing.T) {
	tmpDir := t.TempDir()
	path := tmpDir + "/memory.json"

	oldStderr := os.Stderr
	os.Stderr, _ = os.Open(os.DevNull)
	server, err := NewServerAt(path)
	os.Stderr = oldStderr
	if err != nil {
		t.Fatalf("NewServerAt: %v", err)
	}

	callTool(t, server, "add_node", map[string]interface{}{
		"content": "durable fact", "id": "d", "tags": []interface{}{"keep"},
	})
	server.Stop()

	oldStderr = os.Stderr
	os.Stderr, _ = os.Open(os.DevNull)
	reloaded, err := NewServerAt(path)
	os.Stderr = oldStderr
	if err != nil {
		t.Fatalf("NewServerAt reload: %v", err)
	}

	if !reloaded.store.Contains("d") {
		t.Error("node should survive a restart")
	}
}

// =============================================================================
// Resource Tests
// =============================================================================

func TestHandleResourceRead(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	callTool(t, server, "add_node", map[string]interface{}{"content": "x", "id": "0"})

	params, _ := json.Marshal(map[string]interface{}{"uri": "taproot://graph/nodes"})
	req := &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "resources/read",
		Params:  params,
	}

	output := captureOutput(func() {
		server.handleRequest(req)
	})

	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(output), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	result := resp.Result.(map[string]interface{})
	contents := result["contents"].([]interface{})
	first := contents[0].(map[string]interface{})
	if !strings.Contains(first["text"].(string), "\"id\": \"0\"") {
		t.Errorf("resource text missing node: %s", first["text"])
	}
}

// =============================================================================
// Prompt Tests
// =============================================================================

func TestHandlePromptsGet(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	callTool(t, server, "add_node", map[string]interface{}{
		"content": "likes pizza", "id": "0", "tags": []interface{}{"food"},
	})

	params, _ := json.Marshal(map[string]interface{}{
		"name": "with_memory",
		"arguments": map[string]string{
			"tags": "food",
			"task": "suggest dinner",
		},
	})
	req := &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "prompts/get",
		Params:  params,
	}

	output := captureOutput(func() {
		server.handleRequest(req)
	})

	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(output), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	result := resp.Result.(map[string]interface{})
	messages := result["messages"].([]interface{})
	msg := messages[0].(map[string]interface{})
	content := msg["content"].(map[string]interface{})
	text := content["text"].(string)
	if !strings.Contains(text, "likes pizza") {
		t.Errorf("prompt should embed recalled memory: %s", text)
	}
	if !strings.Contains(text, "suggest dinner") {
		t.Errorf("prompt should end with the task: %s", text)
	}
}
