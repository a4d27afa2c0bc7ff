package mcpproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ToolSchema is the raw tool schema returned by an MCP server's tools/list
// call, mirroring the wire shape the teacher's MCPToolSchema parses.
type ToolSchema struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// CallResult is the outcome of a tools/call round trip.
type CallResult struct {
	Success   bool
	Output    json.RawMessage
	Error     string
	LatencyMs int64
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// serverClient speaks JSON-RPC over HTTP to one allowlisted MCP server.
type serverClient struct {
	baseURL    string
	authHeader string
	client     *http.Client
}

func newServerClient(cfg ServerConfig, timeout time.Duration) *serverClient {
	return &serverClient{
		baseURL:    cfg.BaseURL,
		authHeader: cfg.AuthHeader,
		client:     &http.Client{Timeout: timeout},
	}
}

func (c *serverClient) listTools(ctx context.Context) ([]ToolSchema, error) {
	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	var result struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("parse tools/list response: %w", err)
	}
	return result.Tools, nil
}

func (c *serverClient) callTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	start := time.Now()
	resp, err := c.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return &CallResult{Success: false, Error: err.Error(), LatencyMs: latency}, nil
	}
	if resp.Error != nil {
		return &CallResult{Success: false, Error: resp.Error.Message, LatencyMs: latency}, nil
	}
	return &CallResult{Success: true, Output: resp.Result, LatencyMs: latency}, nil
}

func (c *serverClient) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(b))
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return &out, fmt.Errorf("mcp error %d: %s", out.Error.Code, out.Error.Message)
	}
	return &out, nil
}
