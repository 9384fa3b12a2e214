// Package mcp implements the Model Context Protocol server for Taproot
package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/taprootHQ/taproot/internal/graph"
	"github.com/taprootHQ/taproot/internal/persist"
)

// Version is set from the build-time version in cmd before Start.
var Version = "dev"

// Server implements the MCP protocol over stdio. It owns the single graph
// store instance for the process and flushes it to disk after every
// mutating tool call.
type Server struct {
	store   *graph.Store
	path    string
	scanner *bufio.Scanner
}

// GraphStats contains statistics about the memory graph
type GraphStats struct {
	Nodes       int    `json:"nodes"`
	Connections int    `json:"connections"`
	Tags        int    `json:"tags"`
	FileSize    string `json:"file_size"`
	Path        string `json:"path"`
}

// NewServer creates a new MCP server backed by the graph file at the default
// path. A load failure is never fatal: the server warns and starts from an
// empty store, operating purely in-memory until the next successful save.
func NewServer() (*Server, error) {
	path, err := persist.DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve graph path: %w", err)
	}
	server, err := NewServerAt(path)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "📁 Memory graph: %s\n", path)
	return server, nil
}

// NewServerAt creates a server on an explicit graph file path. Used by tests
// and by callers that manage multiple graphs.
func NewServerAt(path string) (*Server, error) {
	store, err := persist.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Could not load graph (%v), starting empty\n", err)
		store = graph.NewStore()
	}
	return &Server{
		store:   store,
		path:    path,
		scanner: bufio.NewScanner(os.Stdin),
	}, nil
}

// Start begins the MCP server loop
func (s *Server) Start() error {
	fmt.Fprintln(os.Stderr, "🌱 Taproot MCP server ready")

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			continue
		}

		var request JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &request); err != nil {
			s.sendError(nil, -32700, "Parse error", err.Error())
			continue
		}

		s.handleRequest(&request)
	}

	return s.scanner.Err()
}

// Stop flushes the store a final time before shutdown.
func (s *Server) Stop() {
	if s.store != nil {
		s.flush()
	}
}

// GetGraphStats returns statistics about the memory graph
func (s *Server) GetGraphStats() GraphStats {
	stats := GraphStats{
		Nodes:       s.store.Size(),
		Connections: len(s.store.ListConnections()),
		Tags:        len(s.store.ListTags()),
		FileSize:    "none",
		Path:        s.path,
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.FileSize = humanSize(info.Size())
	}
	return stats
}

// flush writes the store to disk. A failed save is non-fatal per the
// recovery policy: warn and keep serving from memory.
func (s *Server) flush() {
	if err := persist.Save(s.store, s.path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Save failed (%v), continuing in-memory\n", err)
	}
}

// handleRequest processes a JSON-RPC request
func (s *Server) handleRequest(req *JSONRPCRequest) {
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolCall(req)
	case "resources/list":
		s.handleResourcesList(req)
	case "resources/read":
		s.handleResourceRead(req)
	case "prompts/list":
		s.handlePromptsList(req)
	case "prompts/get":
		s.handlePromptsGet(req)
	default:
		s.sendError(req.ID, -32601, "Method not found", req.Method)
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *JSONRPCRequest) {
	result := map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
			"prompts":   map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    "taproot-mcp",
			"version": Version,
		},
	}
	s.sendResult(req.ID, result)
}

// handleToolsList returns available tools
func (s *Server) handleToolsList(req *JSONRPCRequest) {
	tools := []map[string]interface{}{
		{
			"name":        "add_node",
			"description": "Store a new memory node. Use this to save a discrete fact the AI should remember.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"content": map[string]interface{}{
						"type":        "string",
						"description": "The content to remember",
					},
					"tags": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Tags to index the node for recall (e.g. 'food', 'geo', 'preference')",
					},
					"id": map[string]interface{}{
						"type":        "string",
						"description": "Optional explicit node id; must be unique. Assigned automatically when omitted.",
					},
				},
				"required": []string{"content"},
			},
		},
		{
			"name":        "connect",
			"description": "Create a directed, typed connection between two existing memory nodes.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"from_id": map[string]interface{}{
						"type":        "string",
						"description": "Id of the source node",
					},
					"to_id": map[string]interface{}{
						"type":        "string",
						"description": "Id of the target node",
					},
					"type": map[string]interface{}{
						"type":        "string",
						"description": "Relationship type (e.g. 'lives_near', 'caused_by')",
					},
				},
				"required": []string{"from_id", "to_id", "type"},
			},
		},
		{
			"name":        "recall",
			"description": "Recall memory nodes by tags. Returns direct tag matches plus nodes one connection hop away, with the connection that links each related node to a match.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tags": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Tags to recall by (at least one)",
					},
				},
				"required": []string{"tags"},
			},
		},
		{
			"name":        "forget",
			"description": "Forget memory nodes by content substring and/or tags. Connections touching a forgotten node are removed with it.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Case-insensitive content substring to match",
					},
					"tags": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Forget nodes carrying any of these tags",
					},
				},
			},
		},
		{
			"name":        "disconnect",
			"description": "Remove connections between an ordered pair of nodes, optionally restricted to one type. The reverse direction is untouched.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"from_id": map[string]interface{}{
						"type":        "string",
						"description": "Id of the source node",
					},
					"to_id": map[string]interface{}{
						"type":        "string",
						"description": "Id of the target node",
					},
					"type": map[string]interface{}{
						"type":        "string",
						"description": "Optional connection type filter",
					},
				},
				"required": []string{"from_id", "to_id"},
			},
		},
		{
			"name":        "list_tags",
			"description": "List every tag currently in use across memory nodes",
			"inputSchema": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			"name":        "list_nodes",
			"description": "List all memory nodes in insertion order",
			"inputSchema": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			"name":        "list_connections",
			"description": "List all connections in insertion order",
			"inputSchema": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			"name":        "graph_stats",
			"description": "Get statistics about the memory graph",
			"inputSchema": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}

	s.sendResult(req.ID, map[string]interface{}{"tools": tools})
}

// handleToolCall executes a tool
func (s *Server) handleToolCall(req *JSONRPCRequest) {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, -32602, "Invalid params", err.Error())
		return
	}

	var result interface{}
	var err error

	switch params.Name {
	case "add_node":
		result, err = s.toolAddNode(params.Arguments)
	case "connect":
		result, err = s.toolConnect(params.Arguments)
	case "recall":
		result, err = s.toolRecall(params.Arguments)
	case "forget":
		result, err = s.toolForget(params.Arguments)
	case "disconnect":
		result, err = s.toolDisconnect(params.Arguments)
	case "list_tags":
		result, err = s.toolListTags()
	case "list_nodes":
		result, err = s.toolListNodes()
	case "list_connections":
		result, err = s.toolListConnections()
	case "graph_stats":
		result, err = s.toolGraphStats()
	default:
		s.sendError(req.ID, -32602, "Unknown tool", params.Name)
		return
	}

	if err != nil {
		s.sendResult(req.ID, map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": fmt.Sprintf("Error: %v", err)},
			},
			"isError": true,
		})
		return
	}

	text, _ := json.MarshalIndent(result, "", "  ")
	s.sendResult(req.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(text)},
		},
	})
}

// Tool implementations

func (s *Server) toolAddNode(args map[string]interface{}) (interface{}, error) {
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return nil, fmt.Errorf("content is required")
	}

	tags := stringSlice(args["tags"])

	id, _ := args["id"].(string)
	if id == "" {
		id = s.store.NextID()
	}

	if err := s.store.AddNode(id, content, tags); err != nil {
		return nil, err
	}
	s.flush()

	return map[string]interface{}{
		"status":  "added",
		"id":      id,
		"message": fmt.Sprintf("Memory node stored with id %s", id),
	}, nil
}

func (s *Server) toolConnect(args map[string]interface{}) (interface{}, error) {
	fromID, _ := args["from_id"].(string)
	toID, _ := args["to_id"].(string)
	connType, _ := args["type"].(string)
	if fromID == "" || toID == "" || connType == "" {
		return nil, fmt.Errorf("from_id, to_id and type are required")
	}

	if err := s.store.AddConnection(fromID, toID, connType); err != nil {
		return nil, err
	}
	s.flush()

	return map[string]interface{}{
		"status":  "connected",
		"message": fmt.Sprintf("Connected %s -> %s (%s)", fromID, toID, connType),
	}, nil
}

func (s *Server) toolRecall(args map[string]interface{}) (interface{}, error) {
	tags := stringSlice(args["tags"])
	if len(tags) == 0 {
		return nil, fmt.Errorf("at least one tag is required")
	}

	results := s.store.Recall(tags)

	items := make([]map[string]interface{}, len(results))
	for i, r := range results {
		item := map[string]interface{}{
			"id":      r.Node.ID,
			"content": r.Node.Content,
			"tags":    r.Node.Tags,
			"match":   string(r.Kind),
		}
		if r.Kind == graph.MatchRelated {
			evidence := make([]map[string]interface{}, len(r.Evidence))
			for j, ev := range r.Evidence {
				evidence[j] = map[string]interface{}{
					"type":       ev.ConnType,
					"matched_id": ev.MatchedID,
				}
			}
			item["connections"] = evidence
		}
		items[i] = item
	}

	return map[string]interface{}{
		"tags":    tags,
		"count":   len(items),
		"results": items,
	}, nil
}

func (s *Server) toolForget(args map[string]interface{}) (interface{}, error) {
	pattern, _ := args["pattern"].(string)
	tags := stringSlice(args["tags"])
	if pattern == "" && len(tags) == 0 {
		return nil, fmt.Errorf("pattern or tags is required")
	}

	removed := s.store.ForgetByPatternOrTags(pattern, tags)
	if removed > 0 {
		s.flush()
	}

	return map[string]interface{}{
		"status":  "forgotten",
		"removed": removed,
		"message": fmt.Sprintf("Forgot %d memory node(s)", removed),
	}, nil
}

func (s *Server) toolDisconnect(args map[string]interface{}) (interface{}, error) {
	fromID, _ := args["from_id"].(string)
	toID, _ := args["to_id"].(string)
	if fromID == "" || toID == "" {
		return nil, fmt.Errorf("from_id and to_id are required")
	}
	connType, _ := args["type"].(string)

	removed := s.store.Disconnect(fromID, toID, connType)
	if removed > 0 {
		s.flush()
	}

	return map[string]interface{}{
		"status":  "disconnected",
		"removed": removed,
		"message": fmt.Sprintf("Removed %d connection(s) %s -> %s", removed, fromID, toID),
	}, nil
}

func (s *Server) toolListTags() (interface{}, error) {
	tags := s.store.ListTags()
	return map[string]interface{}{
		"count": len(tags),
		"tags":  tags,
	}, nil
}

func (s *Server) toolListNodes() (interface{}, error) {
	nodes := s.store.Nodes()
	items := make([]map[string]interface{}, len(nodes))
	for i, n := range nodes {
		items[i] = map[string]interface{}{
			"id":      n.ID,
			"content": n.Content,
			"tags":    n.Tags,
		}
	}
	return map[string]interface{}{
		"count": len(items),
		"nodes": items,
	}, nil
}

func (s *Server) toolListConnections() (interface{}, error) {
	conns := s.store.ListConnections()
	items := make([]map[string]interface{}, len(conns))
	for i, c := range conns {
		items[i] = map[string]interface{}{
			"from_id": c.FromID,
			"to_id":   c.ToID,
			"type":    c.Type,
		}
	}
	return map[string]interface{}{
		"count":       len(items),
		"connections": items,
	}, nil
}

func (s *Server) toolGraphStats() (interface{}, error) {
	return s.GetGraphStats(), nil
}

// handleResourcesList returns available resources
func (s *Server) handleResourcesList(req *JSONRPCRequest) {
	resources := []map[string]interface{}{
		{
			"uri":         "taproot://graph/nodes",
			"name":        "Memory Nodes",
			"description": "All memory nodes in insertion order",
			"mimeType":    "application/json",
		},
		{
			"uri":         "taproot://graph/tags",
			"name":        "Tags",
			"description": "All tags currently in use",
			"mimeType":    "application/json",
		},
		{
			"uri":         "taproot://graph/stats",
			"name":        "Graph Statistics",
			"description": "Statistics about the memory graph",
			"mimeType":    "application/json",
		},
	}

	s.sendResult(req.ID, map[string]interface{}{"resources": resources})
}

// handleResourceRead reads a resource
func (s *Server) handleResourceRead(req *JSONRPCRequest) {
	var params struct {
		URI string `json:"uri"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, -32602, "Invalid params", err.Error())
		return
	}

	var content interface{}
	var err error

	switch params.URI {
	case "taproot://graph/nodes":
		content, err = s.toolListNodes()
	case "taproot://graph/tags":
		content, err = s.toolListTags()
	case "taproot://graph/stats":
		content, err = s.toolGraphStats()
	default:
		s.sendError(req.ID, -32602, "Unknown resource", params.URI)
		return
	}

	if err != nil {
		s.sendError(req.ID, -32603, "Internal error", err.Error())
		return
	}

	text, _ := json.MarshalIndent(content, "", "  ")
	s.sendResult(req.ID, map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"uri":      params.URI,
				"mimeType": "application/json",
				"text":     string(text),
			},
		},
	})
}

// handlePromptsList returns available prompts
func (s *Server) handlePromptsList(req *JSONRPCRequest) {
	prompts := []map[string]interface{}{
		{
			"name":        "with_memory",
			"description": "Enhance your prompt with recalled memories",
			"arguments": []map[string]interface{}{
				{
					"name":        "tags",
					"description": "Comma-separated tags to recall by",
					"required":    true,
				},
				{
					"name":        "task",
					"description": "Your current task or question",
					"required":    true,
				},
			},
		},
	}

	s.sendResult(req.ID, map[string]interface{}{"prompts": prompts})
}

// handlePromptsGet returns a prompt with recalled memories injected
func (s *Server) handlePromptsGet(req *JSONRPCRequest) {
	var params struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, -32602, "Invalid params", err.Error())
		return
	}

	if params.Name != "with_memory" {
		s.sendError(req.ID, -32602, "Unknown prompt", params.Name)
		return
	}

	tagsArg := params.Arguments["tags"]
	task := params.Arguments["task"]
	if tagsArg == "" || task == "" {
		s.sendError(req.ID, -32602, "Missing required argument", "tags and task")
		return
	}

	var tags []string
	for _, t := range strings.Split(tagsArg, ",") {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}

	var memoryContext string
	results := s.store.Recall(tags)
	if len(results) > 0 {
		memoryContext = "Relevant memories:\n"
		for _, r := range results {
			if r.Kind == graph.MatchDirect {
				memoryContext += fmt.Sprintf("- %s\n", r.Node.Content)
			} else {
				memoryContext += fmt.Sprintf("- %s (related via %s)\n", r.Node.Content, r.Evidence[0].ConnType)
			}
		}
		memoryContext += "\n"
	}

	messages := []map[string]interface{}{
		{
			"role": "user",
			"content": map[string]interface{}{
				"type": "text",
				"text": memoryContext + task,
			},
		},
	}

	s.sendResult(req.ID, map[string]interface{}{
		"description": "Task enhanced with recalled memories",
		"messages":    messages,
	})
}

// JSON-RPC types and helpers

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (s *Server) sendResult(id interface{}, result interface{}) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	data, _ := json.Marshal(resp)
	fmt.Println(string(data))
}

func (s *Server) sendError(id interface{}, code int, message, data string) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	respData, _ := json.Marshal(resp)
	fmt.Println(string(respData))
}

// stringSlice coerces a JSON array argument into []string, dropping
// non-string members.
func stringSlice(raw interface{}) []string {
	arr, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func humanSize(size int64) string {
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	} else if size < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
}
