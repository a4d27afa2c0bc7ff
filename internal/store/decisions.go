package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
)

// PutDecision inserts or replaces a decision row. Callers (internal/memory)
// are responsible for holding the entity's lock across read-modify-write
// sequences; PutDecision itself is a single statement and does not lock.
func (gs *GraphStore) PutDecision(d *domain.Decision) error {
	timer := logging.StartTimer(logging.CategoryGraphStore, "PutDecision")
	defer timer.Stop()

	alternatives, err := json.Marshal(d.Alternatives)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal alternatives")
	}
	altReasons, err := json.Marshal(d.AlternativesWithReasons)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal alternatives_with_reasons")
	}
	assumptions, err := json.Marshal(d.Assumptions)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal assumptions")
	}
	successCriteria, err := json.Marshal(d.PredictedOutcome.SuccessCriteria)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal predicted success_criteria")
	}

	_, err = gs.db.Exec(
		`INSERT INTO decisions (
			id, tenant_id, team_id, project_id, is_active, ttl_days, last_verified_at,
			deprecated_reason, memory_type, memory_subject, statement, alternatives,
			alternatives_with_reasons, assumptions, predicted_description,
			predicted_success_criteria, predicted_risk_level, confidence, module,
			created_at, created_by, context_hash, status, linked_pr, linked_commit
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_active=excluded.is_active, ttl_days=excluded.ttl_days,
			last_verified_at=excluded.last_verified_at, deprecated_reason=excluded.deprecated_reason,
			memory_type=excluded.memory_type, memory_subject=excluded.memory_subject,
			statement=excluded.statement, alternatives=excluded.alternatives,
			alternatives_with_reasons=excluded.alternatives_with_reasons, assumptions=excluded.assumptions,
			predicted_description=excluded.predicted_description,
			predicted_success_criteria=excluded.predicted_success_criteria,
			predicted_risk_level=excluded.predicted_risk_level, confidence=excluded.confidence,
			module=excluded.module, status=excluded.status, linked_pr=excluded.linked_pr,
			linked_commit=excluded.linked_commit`,
		d.ID, d.Namespace.TenantID, d.Namespace.TeamID, d.Namespace.ProjectID,
		d.Lifecycle.IsActive, d.Lifecycle.TTLDays, d.Lifecycle.LastVerifiedAt,
		d.Lifecycle.DeprecatedReason, d.Lifecycle.MemoryType, d.Lifecycle.MemorySubject,
		d.Statement, string(alternatives), string(altReasons), string(assumptions),
		d.PredictedOutcome.Description, string(successCriteria), string(d.PredictedOutcome.RiskLevel),
		d.Confidence, d.Module, d.CreatedAt, d.CreatedBy, d.ContextHash, string(d.Status),
		d.LinkedPR, d.LinkedCommit,
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "put decision %s", d.ID)
	}
	return nil
}

// GetDecision loads a decision by id, scoped to ns unless ns.crossNamespace.
func (gs *GraphStore) GetDecision(id string, ns nsFilter) (*domain.Decision, error) {
	timer := logging.StartTimer(logging.CategoryGraphStore, "GetDecision")
	defer timer.Stop()

	clause, args := namespaceClause(ns)
	query := `SELECT id, tenant_id, team_id, project_id, is_active, ttl_days, last_verified_at,
		deprecated_reason, memory_type, memory_subject, statement, alternatives,
		alternatives_with_reasons, assumptions, predicted_description,
		predicted_success_criteria, predicted_risk_level, confidence, module,
		created_at, created_by, context_hash, status, linked_pr, linked_commit
		FROM decisions WHERE id = ?`
	queryArgs := []any{id}
	if clause != "" {
		query += " AND " + clause
		queryArgs = append(queryArgs, args...)
	}

	row := gs.db.QueryRow(query, queryArgs...)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "decision %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "get decision %s", id)
	}
	return d, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows so scanDecision serves both
// single-row and list queries.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*domain.Decision, error) {
	var d domain.Decision
	var alternatives, altReasons, assumptions, successCriteria string
	var riskLevel, status string

	err := row.Scan(
		&d.ID, &d.Namespace.TenantID, &d.Namespace.TeamID, &d.Namespace.ProjectID,
		&d.Lifecycle.IsActive, &d.Lifecycle.TTLDays, &d.Lifecycle.LastVerifiedAt,
		&d.Lifecycle.DeprecatedReason, &d.Lifecycle.MemoryType, &d.Lifecycle.MemorySubject,
		&d.Statement, &alternatives, &altReasons, &assumptions,
		&d.PredictedOutcome.Description, &successCriteria, &riskLevel, &d.Confidence, &d.Module,
		&d.CreatedAt, &d.CreatedBy, &d.ContextHash, &status, &d.LinkedPR, &d.LinkedCommit,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(alternatives), &d.Alternatives); err != nil {
		return nil, fmt.Errorf("unmarshal alternatives: %w", err)
	}
	if err := json.Unmarshal([]byte(altReasons), &d.AlternativesWithReasons); err != nil {
		return nil, fmt.Errorf("unmarshal alternatives_with_reasons: %w", err)
	}
	if err := json.Unmarshal([]byte(assumptions), &d.Assumptions); err != nil {
		return nil, fmt.Errorf("unmarshal assumptions: %w", err)
	}
	if err := json.Unmarshal([]byte(successCriteria), &d.PredictedOutcome.SuccessCriteria); err != nil {
		return nil, fmt.Errorf("unmarshal predicted success_criteria: %w", err)
	}
	d.PredictedOutcome.RiskLevel = domain.RiskLevel(riskLevel)
	d.Status = domain.DecisionStatus(status)
	return &d, nil
}

// ListDecisionsByModule returns active decisions tagged with module,
// scoped to ns, most recent first.
func (gs *GraphStore) ListDecisionsByModule(module string, ns nsFilter) ([]*domain.Decision, error) {
	timer := logging.StartTimer(logging.CategoryGraphStore, "ListDecisionsByModule")
	defer timer.Stop()

	clause, args := namespaceClause(ns)
	query := `SELECT id, tenant_id, team_id, project_id, is_active, ttl_days, last_verified_at,
		deprecated_reason, memory_type, memory_subject, statement, alternatives,
		alternatives_with_reasons, assumptions, predicted_description,
		predicted_success_criteria, predicted_risk_level, confidence, module,
		created_at, created_by, context_hash, status, linked_pr, linked_commit
		FROM decisions WHERE module = ? AND is_active = 1`
	queryArgs := []any{module}
	if clause != "" {
		query += " AND " + clause
		queryArgs = append(queryArgs, args...)
	}
	query += " ORDER BY created_at DESC"

	rows, err := gs.db.Query(query, queryArgs...)
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "list decisions by module %s", module)
	}
	defer rows.Close()

	var out []*domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			logging.Get(logging.CategoryGraphStore).Warn("decision row scan failed: %v", err)
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeprecateDecision soft-forgets a decision (§4.B soft-forget), leaving the
// row in place with is_active=0 instead of deleting it.
func (gs *GraphStore) DeprecateDecision(id, reason string) error {
	timer := logging.StartTimer(logging.CategoryGraphStore, "DeprecateDecision")
	defer timer.Stop()

	res, err := gs.db.Exec(
		`UPDATE decisions SET is_active = 0, deprecated_reason = ? WHERE id = ?`,
		reason, id,
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "deprecate decision %s", id)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.NotFound, "decision %s not found", id)
	}
	return nil
}

// TouchDecision updates last_verified_at (§4.B freshness scoring).
func (gs *GraphStore) TouchDecision(id string, verifiedAt int64) error {
	_, err := gs.db.Exec(`UPDATE decisions SET last_verified_at = ? WHERE id = ?`, verifiedAt, id)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "touch decision %s", id)
	}
	return nil
}

// HardDeleteDecision permanently removes a decision row. Gated by the
// memory manager behind Policy.AllowHardDelete; soft-forget via
// DeprecateDecision is the default (§4.B).
func (gs *GraphStore) HardDeleteDecision(id string) error {
	timer := logging.StartTimer(logging.CategoryGraphStore, "HardDeleteDecision")
	defer timer.Stop()

	res, err := gs.db.Exec(`DELETE FROM decisions WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "hard delete decision %s", id)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.NotFound, "decision %s not found", id)
	}
	return nil
}
