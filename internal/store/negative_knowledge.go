package store

import (
	"database/sql"
	"errors"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
)

// PutNegativeKnowledge inserts or replaces a "this does not work" record
// (§3 NegativeKnowledge).
func (gs *GraphStore) PutNegativeKnowledge(n *domain.NegativeKnowledge) error {
	timer := logging.StartTimer(logging.CategoryGraphStore, "PutNegativeKnowledge")
	defer timer.Stop()

	_, err := gs.db.Exec(
		`INSERT INTO negative_knowledge (
			id, tenant_id, team_id, project_id, is_active, ttl_days, last_verified_at,
			deprecated_reason, memory_type, memory_subject, hypothesis, conclusion,
			domain, severity, recommendation, prevented_count, discovered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_active=excluded.is_active, ttl_days=excluded.ttl_days,
			last_verified_at=excluded.last_verified_at, deprecated_reason=excluded.deprecated_reason,
			hypothesis=excluded.hypothesis, conclusion=excluded.conclusion, severity=excluded.severity,
			recommendation=excluded.recommendation, prevented_count=excluded.prevented_count`,
		n.ID, n.Namespace.TenantID, n.Namespace.TeamID, n.Namespace.ProjectID,
		n.Lifecycle.IsActive, n.Lifecycle.TTLDays, n.Lifecycle.LastVerifiedAt,
		n.Lifecycle.DeprecatedReason, n.Lifecycle.MemoryType, n.Lifecycle.MemorySubject,
		n.Hypothesis, n.Conclusion, n.Domain, string(n.Severity), n.Recommendation,
		n.PreventedCount, n.DiscoveredAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "put negative knowledge %s", n.ID)
	}
	return nil
}

// GetNegativeKnowledge loads a negative-knowledge record by id.
func (gs *GraphStore) GetNegativeKnowledge(id string) (*domain.NegativeKnowledge, error) {
	row := gs.db.QueryRow(
		`SELECT id, tenant_id, team_id, project_id, is_active, ttl_days, last_verified_at,
			deprecated_reason, memory_type, memory_subject, hypothesis, conclusion,
			domain, severity, recommendation, prevented_count, discovered_at
		 FROM negative_knowledge WHERE id = ?`, id)
	n, err := scanNegativeKnowledge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "negative knowledge %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "get negative knowledge %s", id)
	}
	return n, nil
}

func scanNegativeKnowledge(row rowScanner) (*domain.NegativeKnowledge, error) {
	var n domain.NegativeKnowledge
	var severity string
	err := row.Scan(
		&n.ID, &n.Namespace.TenantID, &n.Namespace.TeamID, &n.Namespace.ProjectID,
		&n.Lifecycle.IsActive, &n.Lifecycle.TTLDays, &n.Lifecycle.LastVerifiedAt,
		&n.Lifecycle.DeprecatedReason, &n.Lifecycle.MemoryType, &n.Lifecycle.MemorySubject,
		&n.Hypothesis, &n.Conclusion, &n.Domain, &severity, &n.Recommendation,
		&n.PreventedCount, &n.DiscoveredAt,
	)
	if err != nil {
		return nil, err
	}
	n.Severity = domain.Severity(severity)
	return &n, nil
}

// ListNegativeKnowledgeByDomain returns active negative-knowledge records
// for domain, read by the behavior chains, skill generator, context
// manager, memory manager and tool server.
func (gs *GraphStore) ListNegativeKnowledgeByDomain(dom string) ([]*domain.NegativeKnowledge, error) {
	rows, err := gs.db.Query(
		`SELECT id, tenant_id, team_id, project_id, is_active, ttl_days, last_verified_at,
			deprecated_reason, memory_type, memory_subject, hypothesis, conclusion,
			domain, severity, recommendation, prevented_count, discovered_at
		 FROM negative_knowledge WHERE domain = ? AND is_active = 1`, dom)
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "list negative knowledge for domain %s", dom)
	}
	defer rows.Close()

	var out []*domain.NegativeKnowledge
	for rows.Next() {
		n, err := scanNegativeKnowledge(rows)
		if err != nil {
			logging.Get(logging.CategoryGraphStore).Warn("negative_knowledge row scan failed: %v", err)
			continue
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// IncrementPreventedCount bumps the record's prevented_count by one. The
// firewall does not call it; nothing outside the store does.
func (gs *GraphStore) IncrementPreventedCount(id string) error {
	_, err := gs.db.Exec(`UPDATE negative_knowledge SET prevented_count = prevented_count + 1 WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "increment prevented_count for %s", id)
	}
	return nil
}

// DeprecateNegativeKnowledge soft-forgets a negative-knowledge record,
// mirroring DeprecateDecision (§4.B soft-forget).
func (gs *GraphStore) DeprecateNegativeKnowledge(id, reason string) error {
	res, err := gs.db.Exec(
		`UPDATE negative_knowledge SET is_active = 0, deprecated_reason = ? WHERE id = ?`,
		reason, id,
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "deprecate negative knowledge %s", id)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.NotFound, "negative knowledge %s not found", id)
	}
	return nil
}

// TouchNegativeKnowledge updates last_verified_at, mirroring TouchDecision.
func (gs *GraphStore) TouchNegativeKnowledge(id string, verifiedAt int64) error {
	_, err := gs.db.Exec(`UPDATE negative_knowledge SET last_verified_at = ? WHERE id = ?`, verifiedAt, id)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "touch negative knowledge %s", id)
	}
	return nil
}

// HardDeleteNegativeKnowledge permanently removes a record, gated behind
// Policy.AllowHardDelete by the memory manager.
func (gs *GraphStore) HardDeleteNegativeKnowledge(id string) error {
	res, err := gs.db.Exec(`DELETE FROM negative_knowledge WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "hard delete negative knowledge %s", id)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.NotFound, "negative knowledge %s not found", id)
	}
	return nil
}
