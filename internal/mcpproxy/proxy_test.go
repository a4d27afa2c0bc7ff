package mcpproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/membria/membria-core/internal/config"
)

func newTestServer(t *testing.T, listCalls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.Method {
		case "tools/list":
			if listCalls != nil {
				atomic.AddInt32(listCalls, 1)
			}
			writeResult(w, req.ID, map[string]any{
				"tools": []ToolSchema{{Name: "search_decisions", Description: "search"}},
			})
		case "tools/call":
			writeResult(w, req.ID, map[string]any{"ok": true})
		default:
			http.Error(w, "unknown method", http.StatusBadRequest)
		}
	}))
}

func writeResult(w http.ResponseWriter, id int, result any) {
	payload, _ := json.Marshal(result)
	resp := rpcResponse{JSONRPC: "2.0", ID: id, Result: payload}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeAllowlist(t *testing.T, servers ...ServerConfig) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allowlist.json")
	data, err := json.Marshal(Allowlist{Servers: servers})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadAllowlistEmptyPathYieldsEmptyList(t *testing.T) {
	list, err := LoadAllowlist("")
	require.NoError(t, err)
	require.Empty(t, list.Servers)
}

func TestLoadAllowlistRejectsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"servers":[{"id":"x"}]}`), 0o644))
	_, err := LoadAllowlist(path)
	require.Error(t, err)
}

func TestListToolsReturnsServerTools(t *testing.T) {
	srv := newTestServer(t, nil)
	defer srv.Close()

	path := writeAllowlist(t, ServerConfig{ID: "docs", BaseURL: srv.URL})
	list, err := LoadAllowlist(path)
	require.NoError(t, err)

	p := New(config.DefaultStore(), list)
	tools, err := p.ListTools(context.Background(), "docs")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "search_decisions", tools[0].Name)
}

func TestListToolsCachesWithinRefreshInterval(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls)
	defer srv.Close()

	path := writeAllowlist(t, ServerConfig{ID: "docs", BaseURL: srv.URL})
	list, err := LoadAllowlist(path)
	require.NoError(t, err)

	cfg := config.DefaultStore()
	p := New(cfg, list)

	_, err = p.ListTools(context.Background(), "docs")
	require.NoError(t, err)
	_, err = p.ListTools(context.Background(), "docs")
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestListToolsRefetchesAfterInvalidate(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls)
	defer srv.Close()

	path := writeAllowlist(t, ServerConfig{ID: "docs", BaseURL: srv.URL})
	list, err := LoadAllowlist(path)
	require.NoError(t, err)

	p := New(config.DefaultStore(), list)
	_, err = p.ListTools(context.Background(), "docs")
	require.NoError(t, err)
	p.InvalidateCache("docs")
	_, err = p.ListTools(context.Background(), "docs")
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestListToolsUnallowlistedServerErrorsEveryCall(t *testing.T) {
	list, err := LoadAllowlist("")
	require.NoError(t, err)
	p := New(config.DefaultStore(), list)

	_, err1 := p.ListTools(context.Background(), "ghost")
	require.Error(t, err1)
	_, err2 := p.ListTools(context.Background(), "ghost")
	require.Error(t, err2)
}

func TestCallToolInvokesServer(t *testing.T) {
	srv := newTestServer(t, nil)
	defer srv.Close()

	path := writeAllowlist(t, ServerConfig{ID: "docs", BaseURL: srv.URL})
	list, err := LoadAllowlist(path)
	require.NoError(t, err)

	p := New(config.DefaultStore(), list)
	result, err := p.CallTool(context.Background(), "docs", "search_decisions", map[string]any{"query": "x"})
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestHasToolReflectsServerToolList(t *testing.T) {
	srv := newTestServer(t, nil)
	defer srv.Close()

	path := writeAllowlist(t, ServerConfig{ID: "docs", BaseURL: srv.URL})
	list, err := LoadAllowlist(path)
	require.NoError(t, err)

	p := New(config.DefaultStore(), list)
	ok, err := p.HasTool(context.Background(), "docs", "search_decisions")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.HasTool(context.Background(), "docs", "nonexistent")
	require.NoError(t, err)
	require.False(t, ok)
}
