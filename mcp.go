package curator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/curator/internal/store"
	"github.com/hazyhaar/curator/kit"
)

// RegisterMCP registers curator tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerStatsTool(srv)
	s.registerLookupTool(srv)
	s.registerAddTool(srv)
	s.registerRetryTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}

func parseKind(raw string) (Kind, error) {
	k := store.Kind(raw)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", store.ErrInvalidKind, raw)
	}
	return k, nil
}

// --- stats ---

func (s *Service) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "curator_stats",
		Description: "Report record counts by status for the collect and classify queues, plus scrape cache totals.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Stats(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- lookup ---

type lookupReq struct {
	URL string `json:"url"`
}

func (s *Service) registerLookupTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "curator_lookup",
		Description: "Return everything known about one URL: its collect record, classify record and scrape cache entry.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "URL to look up"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*lookupReq)
		return s.Lookup(ctx, r.URL)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r lookupReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- add ---

type addReq struct {
	Kind   string   `json:"kind"`
	URLs   []string `json:"urls"`
	Source string   `json:"source"`
}

func (s *Service) registerAddTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "curator_add",
		Description: "Queue URLs for processing. Kind 'collect' queues aggregator pages for link extraction; 'classify' queues individual candidates.",
		InputSchema: inputSchema(map[string]any{
			"kind":   map[string]any{"type": "string", "enum": []string{"collect", "classify"}},
			"urls":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"source": map[string]any{"type": "string", "description": "Provenance label stored on new records"},
		}, []string{"kind", "urls"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*addReq)
		kind, err := parseKind(r.Kind)
		if err != nil {
			return nil, err
		}
		source := r.Source
		if source == "" {
			source = "mcp"
		}
		return s.Add(ctx, kind, r.URLs, source)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r addReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- retry ---

type retryReq struct {
	Kind        string   `json:"kind"`
	Statuses    []string `json:"statuses"`
	Source      string   `json:"source"`
	IncludeDone bool     `json:"include_done"`
}

func (s *Service) registerRetryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "curator_retry",
		Description: "Requeue errored records of one queue back to status new so the next run picks them up. Empty statuses means all error statuses.",
		InputSchema: inputSchema(map[string]any{
			"kind":         map[string]any{"type": "string", "enum": []string{"collect", "classify"}},
			"statuses":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"source":       map[string]any{"type": "string", "description": "Only requeue records from this source"},
			"include_done": map[string]any{"type": "boolean", "description": "Also requeue finished records for reprocessing"},
		}, []string{"kind"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*retryReq)
		kind, err := parseKind(r.Kind)
		if err != nil {
			return nil, err
		}
		n, err := s.Retry(ctx, kind, r.Statuses, r.Source, r.IncludeDone)
		if err != nil {
			return nil, err
		}
		return map[string]any{"requeued": n}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r retryReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
