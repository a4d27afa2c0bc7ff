package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
)

// PutSessionContext upserts the short-lived hint state for a session
// (§3, §4.H budgeted context input).
func (gs *GraphStore) PutSessionContext(s *domain.SessionContext) error {
	plan, err := json.Marshal(s.CurrentPlan)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal current_plan")
	}
	constraints, err := json.Marshal(s.Constraints)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal constraints")
	}

	_, err = gs.db.Exec(
		`INSERT INTO session_contexts (
			session_id, tenant_id, team_id, project_id, task, focus, current_plan,
			constraints, doc_shot_id, created_at, expires_at, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			task=excluded.task, focus=excluded.focus, current_plan=excluded.current_plan,
			constraints=excluded.constraints, doc_shot_id=excluded.doc_shot_id,
			expires_at=excluded.expires_at, is_active=excluded.is_active`,
		s.SessionID, s.Namespace.TenantID, s.Namespace.TeamID, s.Namespace.ProjectID,
		s.Task, s.Focus, string(plan), string(constraints), s.DocShotID,
		s.CreatedAt, s.ExpiresAt, s.IsActive,
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "put session context %s", s.SessionID)
	}
	return nil
}

// GetSessionContext loads the hint state for sessionID.
func (gs *GraphStore) GetSessionContext(sessionID string) (*domain.SessionContext, error) {
	timer := logging.StartTimer(logging.CategoryGraphStore, "GetSessionContext")
	defer timer.Stop()

	row := gs.db.QueryRow(
		`SELECT session_id, tenant_id, team_id, project_id, task, focus, current_plan,
			constraints, doc_shot_id, created_at, expires_at, is_active
		 FROM session_contexts WHERE session_id = ?`, sessionID)

	var s domain.SessionContext
	var plan, constraints string
	err := row.Scan(
		&s.SessionID, &s.Namespace.TenantID, &s.Namespace.TeamID, &s.Namespace.ProjectID,
		&s.Task, &s.Focus, &plan, &constraints, &s.DocShotID, &s.CreatedAt, &s.ExpiresAt, &s.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "session context %s not found", sessionID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "get session context %s", sessionID)
	}
	if err := json.Unmarshal([]byte(plan), &s.CurrentPlan); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(constraints), &s.Constraints); err != nil {
		return nil, err
	}
	return &s, nil
}

// ExpireSessionContexts deactivates every session context whose TTL has
// elapsed as of now (unix seconds), returning the count deactivated.
func (gs *GraphStore) ExpireSessionContexts(now int64) (int, error) {
	res, err := gs.db.Exec(
		`UPDATE session_contexts SET is_active = 0
		 WHERE is_active = 1 AND expires_at > 0 AND expires_at <= ?`, now,
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.PermanentBackend, err, "expire session contexts")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
