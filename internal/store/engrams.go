package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
)

// PutEngram persists a session checkpoint (§3, §4.M ingestion target).
func (gs *GraphStore) PutEngram(e *domain.Engram) error {
	timer := logging.StartTimer(logging.CategoryGraphStore, "PutEngram")
	defer timer.Stop()

	transcript, err := json.Marshal(e.Transcript)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal transcript")
	}
	filesChanged, err := json.Marshal(e.FilesChanged)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal files_changed")
	}
	decisionsExtracted, err := json.Marshal(e.DecisionsExtracted)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal decisions_extracted")
	}
	antipatterns, err := json.Marshal(e.AntipatternsTriggered)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal antipatterns_triggered")
	}
	reasoningTrail, err := json.Marshal(e.ReasoningTrail)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal reasoning_trail")
	}
	confidenceTrajectory, err := json.Marshal(e.ConfidenceTrajectory)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal confidence_trajectory")
	}
	toolCallGraph, err := json.Marshal(e.ToolCallGraph)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal tool_call_graph")
	}

	_, err = gs.db.Exec(
		`INSERT INTO engrams (
			id, tenant_id, team_id, project_id, session_id, commit_sha, branch, timestamp,
			agent_type, agent_model, agent_duration_ms, agent_tokens, agent_cost_usd,
			transcript, files_changed, decisions_extracted, context_injected,
			antipatterns_triggered, reasoning_trail, confidence_trajectory, tool_call_graph
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			decisions_extracted=excluded.decisions_extracted, context_injected=excluded.context_injected,
			antipatterns_triggered=excluded.antipatterns_triggered`,
		e.ID, e.Namespace.TenantID, e.Namespace.TeamID, e.Namespace.ProjectID, e.SessionID,
		e.CommitSHA, e.Branch, e.Timestamp, e.Agent.Type, e.Agent.Model, e.Agent.DurationMS,
		e.Agent.Tokens, e.Agent.CostUSD, string(transcript), string(filesChanged),
		string(decisionsExtracted), e.ContextInjected, string(antipatterns),
		string(reasoningTrail), string(confidenceTrajectory), string(toolCallGraph),
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "put engram %s", e.ID)
	}
	return nil
}

// GetEngram loads one session checkpoint by id.
func (gs *GraphStore) GetEngram(id string) (*domain.Engram, error) {
	row := gs.db.QueryRow(
		`SELECT id, tenant_id, team_id, project_id, session_id, commit_sha, branch, timestamp,
			agent_type, agent_model, agent_duration_ms, agent_tokens, agent_cost_usd,
			transcript, files_changed, decisions_extracted, context_injected,
			antipatterns_triggered, reasoning_trail, confidence_trajectory, tool_call_graph
		 FROM engrams WHERE id = ?`, id)

	var e domain.Engram
	var transcript, filesChanged, decisionsExtracted, antipatterns, reasoningTrail, confidenceTrajectory, toolCallGraph string
	err := row.Scan(
		&e.ID, &e.Namespace.TenantID, &e.Namespace.TeamID, &e.Namespace.ProjectID, &e.SessionID,
		&e.CommitSHA, &e.Branch, &e.Timestamp, &e.Agent.Type, &e.Agent.Model, &e.Agent.DurationMS,
		&e.Agent.Tokens, &e.Agent.CostUSD, &transcript, &filesChanged,
		&decisionsExtracted, &e.ContextInjected, &antipatterns,
		&reasoningTrail, &confidenceTrajectory, &toolCallGraph,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "engram %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "get engram %s", id)
	}

	if err := json.Unmarshal([]byte(transcript), &e.Transcript); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(filesChanged), &e.FilesChanged); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(decisionsExtracted), &e.DecisionsExtracted); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(antipatterns), &e.AntipatternsTriggered); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(reasoningTrail), &e.ReasoningTrail); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(confidenceTrajectory), &e.ConfidenceTrajectory); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(toolCallGraph), &e.ToolCallGraph); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEngramsBySession returns checkpoints for a session, oldest first.
func (gs *GraphStore) ListEngramsBySession(sessionID string) ([]*domain.Engram, error) {
	rows, err := gs.db.Query(`SELECT id FROM engrams WHERE session_id = ? ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "list engrams for session %s", sessionID)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.Engram, 0, len(ids))
	for _, id := range ids {
		e, err := gs.GetEngram(id)
		if err != nil {
			logging.Get(logging.CategoryGraphStore).Warn("engram %s vanished mid-list: %v", id, err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
