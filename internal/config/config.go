// Package config implements membria's flat dotted-key configuration store
// (spec.md §6). Keys like "daemon.port" or "mcp_discovery.allowlist_path"
// are looked up directly rather than through nested struct field access,
// so new keys can be added by any component without touching a central
// schema. The store layers, lowest to highest precedence:
//
//  1. built-in defaults (DefaultStore)
//  2. an optional YAML document (config.yaml)
//  3. an optional project-local .membria.toml override
//  4. environment variables of the form MEMBRIA_<DOTTED_KEY_UPPERED_>
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Store is a flat dotted-key configuration map. All values are stored as
// strings; typed accessors parse on read.
type Store struct {
	values map[string]string
}

// DefaultStore returns the built-in defaults for every recognized key in
// spec.md §6's configuration table, plus the keys this expansion adds.
func DefaultStore() *Store {
	s := &Store{values: make(map[string]string)}
	defaults := map[string]string{
		"daemon.port":                     "8765",
		"daemon.socket_path":              "",
		"context_plugins":                 "docshot,session_context,calibration,negative_knowledge,role_negative_knowledge,similar_decisions,role_skills,behavior_chains",
		"memory.default_ttl_days":         "365",
		"memory.half_life_days":           "180",
		"memory.ttl_episodic_days":        "180",
		"memory.ttl_semantic_days":        "365",
		"memory.ttl_procedural_days":      "720",
		"memory.allow_hard_delete":        "false",
		"safety.resonance_threshold":      "0.5",
		"mcp_discovery.allowlist_path":    "",
		"mcp_discovery.timeout_sec":       "8",
		"mcp_discovery.refresh_sec":       "600",
		"webhook.hmac_secret":             "",
		"webhook.bind_addr":               ":8766",
		"chains.max_tokens":               "2000",
		"chains.negative_knowledge_top_n": "5",
		"context.max_tokens":              "2000",
		"ingest.chunk_size":               "800",
		"ingest.chunk_overlap":            "100",
		"ingest.embed_batch_size":         "96",
		"ingest.embed_timeout_sec":        "60",
		"embedding.provider":              "ollama",
		"embedding.ollama_endpoint":       "http://localhost:11434",
		"embedding.ollama_model":          "embeddinggemma",
		"embedding.genai_model":           "gemini-embedding-001",
		"graphstore.database_path":        "data/membria.db",
		"signalqueue.database_path":       "data/signals.db",
		"engrams.branch":                  "main",
		"engrams.storage_dir":             "data/engrams",
		"logging.debug_mode":              "false",
		"logging.level":                   "info",
	}
	for k, v := range defaults {
		s.values[k] = v
	}
	return s
}

// LoadYAML merges a flat-or-nested YAML document into the store. Nested
// maps are flattened into dotted keys (e.g. daemon: {port: 9} becomes
// "daemon.port").
func (s *Store) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read yaml config %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse yaml config %s: %w", path, err)
	}
	flatten("", raw, s.values)
	return nil
}

// LoadTOML merges an optional project-local .membria.toml override into
// the store, following the same flattening rule as LoadYAML.
func (s *Store) LoadTOML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read toml config %s: %w", path, err)
	}
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse toml config %s: %w", path, err)
	}
	flatten("", raw, s.values)
	return nil
}

// ApplyEnv overrides every key with an MEMBRIA_<DOTTED_KEY> environment
// variable, dots replaced with underscores and upper-cased, e.g.
// "daemon.port" <- $MEMBRIA_DAEMON_PORT.
func (s *Store) ApplyEnv() {
	for k := range s.values {
		envKey := "MEMBRIA_" + strings.ToUpper(strings.ReplaceAll(k, ".", "_"))
		if v, ok := os.LookupEnv(envKey); ok {
			s.values[k] = v
		}
	}
}

func flatten(prefix string, raw map[string]any, out map[string]string) {
	for k, v := range raw {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprintf("%v", val)
		}
	}
}

// Set assigns a single key, used by tests and by programmatic overrides.
func (s *Store) Set(key, value string) { s.values[key] = value }

// GetString returns the raw string value, or "" if unset.
func (s *Store) GetString(key string) string { return s.values[key] }

// GetStringOr returns the value or a fallback if the key is unset/empty.
func (s *Store) GetStringOr(key, fallback string) string {
	if v, ok := s.values[key]; ok && v != "" {
		return v
	}
	return fallback
}

// GetInt parses the value as an int, returning fallback on error or absence.
func (s *Store) GetInt(key string, fallback int) int {
	v, ok := s.values[key]
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// GetFloat parses the value as a float64, returning fallback on error.
func (s *Store) GetFloat(key string, fallback float64) float64 {
	v, ok := s.values[key]
	if !ok || v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// GetBool parses the value as a bool, returning fallback on error.
func (s *Store) GetBool(key string, fallback bool) bool {
	v, ok := s.values[key]
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// GetList splits a comma-separated value into a trimmed slice, dropping
// empty elements. Used for "context_plugins" and similar ordered lists.
func (s *Store) GetList(key string) []string {
	v := s.values[key]
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load builds a Store from defaults, an optional YAML file, an optional
// .membria.toml override, then environment variables, in that precedence
// order.
func Load(yamlPath, tomlPath string) (*Store, error) {
	s := DefaultStore()
	if yamlPath != "" {
		if err := s.LoadYAML(yamlPath); err != nil {
			return nil, err
		}
	}
	if tomlPath != "" {
		if err := s.LoadTOML(tomlPath); err != nil {
			return nil, err
		}
	}
	s.ApplyEnv()
	return s, nil
}
