package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
)

// PutOutcome inserts or replaces an outcome row, including its full
// signal history as a JSON array (§3 Outcome.signals).
func (gs *GraphStore) PutOutcome(o *domain.Outcome) error {
	timer := logging.StartTimer(logging.CategoryGraphStore, "PutOutcome")
	defer timer.Stop()

	signals, err := json.Marshal(o.Signals)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal signals")
	}
	lessons, err := json.Marshal(o.LessonsLearned)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal lessons_learned")
	}
	metrics, err := json.Marshal(o.Metrics)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal metrics")
	}

	_, err = gs.db.Exec(
		`INSERT INTO outcomes (
			id, tenant_id, team_id, project_id, decision_id, status, created_at,
			submitted_at, merged_at, completed_at, pr_url, pr_number, commit_sha,
			repo, signals, final_status, final_score, lessons_learned, metrics, finalized
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, submitted_at=excluded.submitted_at,
			merged_at=excluded.merged_at, completed_at=excluded.completed_at,
			pr_url=excluded.pr_url, pr_number=excluded.pr_number, commit_sha=excluded.commit_sha,
			repo=excluded.repo, signals=excluded.signals, final_status=excluded.final_status,
			final_score=excluded.final_score, lessons_learned=excluded.lessons_learned,
			metrics=excluded.metrics, finalized=excluded.finalized`,
		o.ID, o.Namespace.TenantID, o.Namespace.TeamID, o.Namespace.ProjectID, o.DecisionID,
		string(o.Status), o.CreatedAt, o.SubmittedAt, o.MergedAt, o.CompletedAt,
		o.PRURL, o.PRNumber, o.CommitSHA, o.Repo, string(signals), string(o.FinalStatus),
		o.FinalScore, string(lessons), string(metrics), o.Finalized(),
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "put outcome %s", o.ID)
	}
	return nil
}

// GetOutcome loads an outcome by id.
func (gs *GraphStore) GetOutcome(id string) (*domain.Outcome, error) {
	timer := logging.StartTimer(logging.CategoryGraphStore, "GetOutcome")
	defer timer.Stop()

	row := gs.db.QueryRow(
		`SELECT id, tenant_id, team_id, project_id, decision_id, status, created_at,
			submitted_at, merged_at, completed_at, pr_url, pr_number, commit_sha,
			repo, signals, final_status, final_score, lessons_learned, metrics, finalized
		 FROM outcomes WHERE id = ?`, id)
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "outcome %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "get outcome %s", id)
	}
	return o, nil
}

// GetOutcomeByDecision loads the (unique) outcome tracking decisionID.
func (gs *GraphStore) GetOutcomeByDecision(decisionID string) (*domain.Outcome, error) {
	row := gs.db.QueryRow(
		`SELECT id, tenant_id, team_id, project_id, decision_id, status, created_at,
			submitted_at, merged_at, completed_at, pr_url, pr_number, commit_sha,
			repo, signals, final_status, final_score, lessons_learned, metrics, finalized
		 FROM outcomes WHERE decision_id = ?`, decisionID)
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "outcome for decision %s not found", decisionID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "get outcome for decision %s", decisionID)
	}
	return o, nil
}

func scanOutcome(row rowScanner) (*domain.Outcome, error) {
	var o domain.Outcome
	var status, finalStatus, signals, lessons, metrics string
	var finalized bool

	err := row.Scan(
		&o.ID, &o.Namespace.TenantID, &o.Namespace.TeamID, &o.Namespace.ProjectID, &o.DecisionID,
		&status, &o.CreatedAt, &o.SubmittedAt, &o.MergedAt, &o.CompletedAt,
		&o.PRURL, &o.PRNumber, &o.CommitSHA, &o.Repo, &signals, &finalStatus,
		&o.FinalScore, &lessons, &metrics, &finalized,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OutcomeStatus(status)
	o.FinalStatus = domain.FinalStatus(finalStatus)
	if err := json.Unmarshal([]byte(signals), &o.Signals); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(lessons), &o.LessonsLearned); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metrics), &o.Metrics); err != nil {
		return nil, err
	}
	if finalized {
		o.MarkFinalized()
	}
	return &o, nil
}

// ListPendingOutcomes returns outcomes not yet finalized. Nothing
// outside the store calls it.
func (gs *GraphStore) ListPendingOutcomes(ns nsFilter) ([]*domain.Outcome, error) {
	clause, args := namespaceClause(ns)
	query := `SELECT id, tenant_id, team_id, project_id, decision_id, status, created_at,
		submitted_at, merged_at, completed_at, pr_url, pr_number, commit_sha,
		repo, signals, final_status, final_score, lessons_learned, metrics, finalized
		FROM outcomes WHERE finalized = 0`
	if clause != "" {
		query += " AND " + clause
	}
	rows, err := gs.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "list pending outcomes")
	}
	defer rows.Close()

	var out []*domain.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			logging.Get(logging.CategoryGraphStore).Warn("outcome row scan failed: %v", err)
			continue
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
