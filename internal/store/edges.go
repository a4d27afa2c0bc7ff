package store

import (
	"encoding/json"
	"fmt"

	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
)

// StoreEdge upserts a typed graph edge, grounded on the teacher's
// StoreLink (internal/store/local_graph.go) but keyed by the domain's
// closed EdgeType vocabulary (§3) instead of a free-form relation string.
func (gs *GraphStore) StoreEdge(e domain.Edge) error {
	timer := logging.StartTimer(logging.CategoryGraphStore, "StoreEdge")
	defer timer.Stop()

	if e.FromID == "" || e.ToID == "" || e.Type == "" {
		return fmt.Errorf("invalid edge: from/to/type must be non-empty")
	}

	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal edge metadata: %w", err)
	}

	_, err = gs.db.Exec(
		`INSERT INTO edges (from_id, edge_type, to_id, tenant_id, team_id, project_id, weight, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(from_id, edge_type, to_id) DO UPDATE SET weight = excluded.weight, metadata = excluded.metadata`,
		e.FromID, string(e.Type), e.ToID, e.Namespace.TenantID, e.Namespace.TeamID, e.Namespace.ProjectID, e.Weight, string(metaJSON),
	)
	return err
}

// direction for edge queries, mirroring the teacher's QueryLinks.
type EdgeDirection string

const (
	EdgeOutgoing EdgeDirection = "outgoing"
	EdgeIncoming EdgeDirection = "incoming"
	EdgeBoth     EdgeDirection = "both"
)

// QueryEdges returns edges touching entity in the given direction,
// grounded on the teacher's queryLinksLocked.
func (gs *GraphStore) QueryEdges(entity string, dir EdgeDirection) ([]domain.Edge, error) {
	timer := logging.StartTimer(logging.CategoryGraphStore, "QueryEdges")
	defer timer.Stop()

	var query string
	var args []any
	switch dir {
	case EdgeOutgoing:
		query = `SELECT from_id, edge_type, to_id, tenant_id, team_id, project_id, weight, metadata FROM edges WHERE from_id = ?`
		args = []any{entity}
	case EdgeIncoming:
		query = `SELECT from_id, edge_type, to_id, tenant_id, team_id, project_id, weight, metadata FROM edges WHERE to_id = ?`
		args = []any{entity}
	default:
		query = `SELECT from_id, edge_type, to_id, tenant_id, team_id, project_id, weight, metadata FROM edges WHERE from_id = ? OR to_id = ?`
		args = []any{entity, entity}
	}

	rows, err := gs.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.Edge
	for rows.Next() {
		var e domain.Edge
		var edgeType, metaJSON string
		if err := rows.Scan(&e.FromID, &edgeType, &e.ToID, &e.Namespace.TenantID, &e.Namespace.TeamID, &e.Namespace.ProjectID, &e.Weight, &metaJSON); err != nil {
			logging.Get(logging.CategoryGraphStore).Warn("edge row scan failed: %v", err)
			continue
		}
		e.Type = domain.EdgeType(edgeType)
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
				logging.Get(logging.CategoryGraphStore).Warn("edge metadata unmarshal failed for %s-[%s]->%s: %v", e.FromID, e.Type, e.ToID, err)
			}
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// TraversePath runs a breadth-first search for the shortest chain of
// outgoing edges connecting from to to, grounded on the teacher's
// TraversePath BFS (internal/store/local_graph.go). Memory retrieval
// does not call it; only the store's tests do.
func (gs *GraphStore) TraversePath(from, to string, maxDepth int) ([]domain.Edge, error) {
	timer := logging.StartTimer(logging.CategoryGraphStore, "TraversePath")
	defer timer.Stop()

	if maxDepth <= 0 {
		maxDepth = 5
	}

	type queueItem struct {
		entity string
		depth  int
	}

	cameFrom := make(map[string]*domain.Edge)
	queue := []queueItem{{entity: from, depth: 0}}
	cameFrom[from] = nil

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.entity == to {
			path := make([]domain.Edge, current.depth)
			curr := to
			for i := current.depth - 1; i >= 0; i-- {
				edge := cameFrom[curr]
				if edge == nil {
					break
				}
				path[i] = *edge
				curr = edge.FromID
			}
			return path, nil
		}

		if current.depth >= maxDepth {
			continue
		}

		links, err := gs.QueryEdges(current.entity, EdgeOutgoing)
		if err != nil {
			continue
		}
		for _, link := range links {
			if _, visited := cameFrom[link.ToID]; !visited {
				l := link
				cameFrom[link.ToID] = &l
				queue = append(queue, queueItem{entity: link.ToID, depth: current.depth + 1})
			}
		}
	}

	return nil, fmt.Errorf("no path found from %s to %s within depth %d", from, to, maxDepth)
}
