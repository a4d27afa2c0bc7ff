// Package mcpproxy implements the MCP tool proxy described in spec.md §5:
// it discovers external MCP servers from an allowlist file, maintains a
// per-server tools cache with a refresh interval (default 600s) and a
// not-found negative cache of zero duration, and forwards tool calls with
// a per-call timeout. Adapted from the teacher's internal/mcp package
// (MCPClientManager's connect/dispatch shape and transport_http.go's
// JSON-RPC-over-HTTP wire format), dropping its JIT tool-compilation
// scoring, shard-affinity ranking and ToolCompilationContext machinery —
// that machinery targets codeNERD's multi-agent shard assignment, which
// has no counterpart in a decision-memory engine's tool proxy.
package mcpproxy

import (
	"encoding/json"
	"fmt"
	"os"
)

// ServerConfig describes one allowlisted MCP server.
type ServerConfig struct {
	ID         string `json:"id"`
	BaseURL    string `json:"base_url"`
	AuthHeader string `json:"auth_header,omitempty"`
}

// Allowlist is the JSON document mcp_discovery.allowlist_path points at.
type Allowlist struct {
	Servers []ServerConfig `json:"servers"`
}

// LoadAllowlist reads and parses the allowlist file. An empty path yields
// an empty allowlist rather than an error, so the proxy is a no-op when
// mcp_discovery.allowlist_path is unset.
func LoadAllowlist(path string) (*Allowlist, error) {
	if path == "" {
		return &Allowlist{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp allowlist %s: %w", path, err)
	}
	var list Allowlist
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse mcp allowlist %s: %w", path, err)
	}
	for _, s := range list.Servers {
		if s.ID == "" || s.BaseURL == "" {
			return nil, fmt.Errorf("mcp allowlist %s: server entry missing id or base_url", path)
		}
	}
	return &list, nil
}

func (a *Allowlist) lookup(id string) (ServerConfig, bool) {
	for _, s := range a.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return ServerConfig{}, false
}
