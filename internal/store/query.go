package store

import (
	"time"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
)

// NSFilter builds a scoped namespace filter from a domain.Namespace.
func NSFilter(ns domain.Namespace) nsFilter {
	return nsFilter{tenantID: ns.TenantID, teamID: ns.TeamID, projectID: ns.ProjectID}
}

// CrossNamespaceFilter bypasses namespace scoping entirely, for
// administrative queries (maintenance sweeps, cross-tenant reporting)
// that explicitly opt in.
func CrossNamespaceFilter() nsFilter {
	return nsFilter{crossNamespace: true}
}

// ExpiredDecisionIDs returns ids of active decisions whose TTL has
// elapsed as of now (§4.B soft-forget candidates).
func (gs *GraphStore) ExpiredDecisionIDs(now time.Time) ([]string, error) {
	timer := logging.StartTimer(logging.CategoryGraphStore, "ExpiredDecisionIDs")
	defer timer.Stop()

	rows, err := gs.db.Query(
		`SELECT id FROM decisions
		 WHERE is_active = 1 AND ttl_days > 0
		   AND (created_at + ttl_days * 86400) <= ?`,
		now.Unix(),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "query expired decisions")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			logging.Get(logging.CategoryGraphStore).Warn("expired decision id scan failed: %v", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountDecisionsByModule counts a module's decisions without loading
// full rows. Nothing outside the store calls it.
func (gs *GraphStore) CountDecisionsByModule(module string, ns nsFilter) (int, error) {
	clause, args := namespaceClause(ns)
	query := `SELECT COUNT(*) FROM decisions WHERE module = ? AND is_active = 1`
	queryArgs := []any{module}
	if clause != "" {
		query += " AND " + clause
		queryArgs = append(queryArgs, args...)
	}
	var n int
	if err := gs.db.QueryRow(query, queryArgs...).Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.PermanentBackend, err, "count decisions by module %s", module)
	}
	return n, nil
}
