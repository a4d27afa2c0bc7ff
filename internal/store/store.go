// Package store implements the graph-backed memory store of spec.md §4.A:
// typed node/edge CRUD over a versioned schema, namespaced by
// tenant/team/project. It is grounded on the teacher's
// internal/store/local_core.go (single-writer SQLite handle, PRAGMA
// tuning) and internal/store/local_graph.go (typed edge table, BFS
// traversal), generalized from codeNERD's free-form knowledge_graph
// entity to the Decision/Outcome/NegativeKnowledge/Skill graph.
package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/logging"
)

// GraphStore is the typed CRUD surface over the property graph. All
// writes go through db behind a per-entity mutex shard so that
// read-modify-write sequences in the memory manager (§4.B) are
// serializable without locking the whole store for unrelated entities
// (§5).
type GraphStore struct {
	db     *sql.DB
	dbPath string

	shardsMu sync.Mutex
	shards   map[string]*sync.Mutex
}

// Open initializes (creating if needed) the SQLite database at path and
// applies pending migrations to CurrentSchemaVersion.
func Open(path string) (*GraphStore, error) {
	timer := logging.StartTimer(logging.CategoryGraphStore, "Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "create graph store directory %s", dir)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "open sqlite database %s", path)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.Get(logging.CategoryGraphStore).Warn("pragma failed (%s): %v", pragma, err)
		}
	}

	gs := &GraphStore{db: db, dbPath: path, shards: make(map[string]*sync.Mutex)}
	if err := gs.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	migrator := NewMigrator(db).WithPath(path)
	if _, err := migrator.MigrateTo(""); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "apply pending migrations")
	}

	return gs, nil
}

// Close releases the underlying database handle.
func (gs *GraphStore) Close() error {
	return gs.db.Close()
}

// lockEntity returns the mutex shard for entityID, creating it on first
// use. Compound read-modify-write sequences (§4.B, §5) must hold this
// lock for the duration of the sequence.
func (gs *GraphStore) lockEntity(entityID string) *sync.Mutex {
	gs.shardsMu.Lock()
	defer gs.shardsMu.Unlock()
	m, ok := gs.shards[entityID]
	if !ok {
		m = &sync.Mutex{}
		gs.shards[entityID] = m
	}
	return m
}

// WithEntityLock runs fn while holding entityID's per-entity mutex,
// serializing writes to the same entity id per §5 ("Writes through the
// memory manager to the same entity id are serialized").
func (gs *GraphStore) WithEntityLock(entityID string, fn func() error) error {
	mu := gs.lockEntity(entityID)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

func namespaceClause(ns nsFilter) (string, []any) {
	if ns.crossNamespace {
		return "", nil
	}
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if ns.tenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, ns.tenantID)
	}
	if ns.teamID != "" {
		clauses = append(clauses, "team_id = ?")
		args = append(args, ns.teamID)
	}
	if ns.projectID != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, ns.projectID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	sqlClause := " AND "
	out := ""
	for i, c := range clauses {
		if i > 0 {
			out += sqlClause
		}
		out += c
	}
	return out, args
}

// nsFilter is the internal representation used to build namespace
// WHERE clauses; crossNamespace bypasses filtering for administrative
// queries that explicitly opt in (§4.A).
type nsFilter struct {
	tenantID, teamID, projectID string
	crossNamespace              bool
}

func fmtArgs(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ", "
		}
		s += "?"
	}
	return s
}
