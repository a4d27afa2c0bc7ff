package mcpproxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/config"
	"github.com/membria/membria-core/internal/logging"
	"github.com/membria/membria-core/internal/metrics"
)

type toolCacheEntry struct {
	tools     []ToolSchema
	fetchedAt time.Time
}

// Proxy discovers allowlisted MCP servers and forwards tool listings and
// tool calls to them, per spec.md §5.
type Proxy struct {
	cfg  *config.Store
	list *Allowlist

	mu      sync.Mutex
	clients map[string]*serverClient
	cache   map[string]toolCacheEntry
}

// New constructs a Proxy over the given allowlist.
func New(cfg *config.Store, list *Allowlist) *Proxy {
	return &Proxy{
		cfg:     cfg,
		list:    list,
		clients: make(map[string]*serverClient),
		cache:   make(map[string]toolCacheEntry),
	}
}

// NewFromConfig loads the allowlist named by mcp_discovery.allowlist_path
// and constructs a Proxy over it.
func NewFromConfig(cfg *config.Store) (*Proxy, error) {
	list, err := LoadAllowlist(cfg.GetString("mcp_discovery.allowlist_path"))
	if err != nil {
		return nil, err
	}
	return New(cfg, list), nil
}

func (p *Proxy) timeout() time.Duration {
	return time.Duration(p.cfg.GetInt("mcp_discovery.timeout_sec", 8)) * time.Second
}

func (p *Proxy) refreshInterval() time.Duration {
	return time.Duration(p.cfg.GetInt("mcp_discovery.refresh_sec", 600)) * time.Second
}

func (p *Proxy) clientFor(serverID string) (*serverClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[serverID]; ok {
		return c, nil
	}
	cfg, ok := p.list.lookup(serverID)
	if !ok {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("mcp server %q is not allowlisted", serverID))
	}
	c := newServerClient(cfg, p.timeout())
	p.clients[serverID] = c
	return c, nil
}

// ListTools returns the cached tool list for serverID, refreshing it from
// the server when the cache is empty or older than mcp_discovery.refresh_sec.
// A server that is not allowlisted is never cached (the negative cache
// spec.md §5 calls for is zero duration: every lookup re-attempts).
func (p *Proxy) ListTools(ctx context.Context, serverID string) ([]ToolSchema, error) {
	p.mu.Lock()
	entry, ok := p.cache[serverID]
	fresh := ok && time.Since(entry.fetchedAt) < p.refreshInterval()
	p.mu.Unlock()
	if fresh {
		return entry.tools, nil
	}

	client, err := p.clientFor(serverID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	tools, err := client.listTools(callCtx)
	if err != nil {
		logging.Get(logging.CategoryMCP).Warn("list tools for %s failed: %v", serverID, err)
		return nil, apperr.Wrap(apperr.TransientBackend, err, "mcp server "+serverID+" tools/list failed")
	}

	p.mu.Lock()
	p.cache[serverID] = toolCacheEntry{tools: tools, fetchedAt: time.Now()}
	p.mu.Unlock()
	return tools, nil
}

// HasTool reports whether serverID currently advertises a tool named name,
// refreshing the cache per ListTools' rules first.
func (p *Proxy) HasTool(ctx context.Context, serverID, name string) (bool, error) {
	tools, err := p.ListTools(ctx, serverID)
	if err != nil {
		return false, err
	}
	for _, t := range tools {
		if t.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// CallTool invokes a tool on serverID, enforcing mcp_discovery.timeout_sec
// as a per-call deadline regardless of the caller's own context deadline.
func (p *Proxy) CallTool(ctx context.Context, serverID, name string, args map[string]any) (*CallResult, error) {
	client, err := p.clientFor(serverID)
	if err != nil {
		metrics.MCPProxyCalls.WithLabelValues(serverID, "not_allowlisted").Inc()
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	result, err := client.callTool(callCtx, name, args)
	if err != nil {
		metrics.MCPProxyCalls.WithLabelValues(serverID, "error").Inc()
		return nil, apperr.Wrap(apperr.TransientBackend, err, "mcp server "+serverID+" tools/call failed")
	}
	if !result.Success {
		metrics.MCPProxyCalls.WithLabelValues(serverID, "tool_error").Inc()
		return result, nil
	}
	metrics.MCPProxyCalls.WithLabelValues(serverID, "ok").Inc()
	return result, nil
}

// InvalidateCache forces the next ListTools call for serverID to refetch.
func (p *Proxy) InvalidateCache(serverID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, serverID)
}

// Servers returns the allowlisted server IDs.
func (p *Proxy) Servers() []string {
	ids := make([]string, 0, len(p.list.Servers))
	for _, s := range p.list.Servers {
		ids = append(ids, s.ID)
	}
	return ids
}
