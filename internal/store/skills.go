package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
)

// PutSkill inserts or replaces a generated skill version (§4.F). Skills
// are append-only by version; callers bump Version rather than mutating
// an existing row in place, so ID must embed the version.
func (gs *GraphStore) PutSkill(s *domain.Skill) error {
	greenZone, err := json.Marshal(s.GreenZone)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal green_zone")
	}
	yellowZone, err := json.Marshal(s.YellowZone)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal yellow_zone")
	}
	redZone, err := json.Marshal(s.RedZone)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal red_zone")
	}
	generatedFrom, err := json.Marshal(s.GeneratedFromDecisions)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal generated_from_decisions")
	}
	conflicts, err := json.Marshal(s.ConflictsWith)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal conflicts_with")
	}

	_, err = gs.db.Exec(
		`INSERT INTO skills (
			id, tenant_id, team_id, project_id, domain, version, success_rate,
			confidence, sample_size, quality_score, procedure, green_zone,
			yellow_zone, red_zone, generated_from_decisions, conflicts_with, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			success_rate=excluded.success_rate, confidence=excluded.confidence,
			sample_size=excluded.sample_size, quality_score=excluded.quality_score,
			procedure=excluded.procedure, green_zone=excluded.green_zone,
			yellow_zone=excluded.yellow_zone, red_zone=excluded.red_zone,
			conflicts_with=excluded.conflicts_with, is_active=excluded.is_active`,
		s.ID, s.Namespace.TenantID, s.Namespace.TeamID, s.Namespace.ProjectID, s.Domain, s.Version,
		s.SuccessRate, s.Confidence, s.SampleSize, s.QualityScore, s.Procedure,
		string(greenZone), string(yellowZone), string(redZone), string(generatedFrom),
		string(conflicts), s.IsActive,
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "put skill %s", s.ID)
	}
	return nil
}

func scanSkill(row rowScanner) (*domain.Skill, error) {
	var s domain.Skill
	var greenZone, yellowZone, redZone, generatedFrom, conflicts string
	err := row.Scan(
		&s.ID, &s.Namespace.TenantID, &s.Namespace.TeamID, &s.Namespace.ProjectID, &s.Domain, &s.Version,
		&s.SuccessRate, &s.Confidence, &s.SampleSize, &s.QualityScore, &s.Procedure,
		&greenZone, &yellowZone, &redZone, &generatedFrom, &conflicts, &s.IsActive,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(greenZone), &s.GreenZone); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(yellowZone), &s.YellowZone); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(redZone), &s.RedZone); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(generatedFrom), &s.GeneratedFromDecisions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(conflicts), &s.ConflictsWith); err != nil {
		return nil, err
	}
	return &s, nil
}

const skillColumns = `id, tenant_id, team_id, project_id, domain, version, success_rate,
	confidence, sample_size, quality_score, procedure, green_zone,
	yellow_zone, red_zone, generated_from_decisions, conflicts_with, is_active`

// GetLatestSkill returns the highest-version active skill for domain.
func (gs *GraphStore) GetLatestSkill(dom string, ns nsFilter) (*domain.Skill, error) {
	clause, args := namespaceClause(ns)
	query := `SELECT ` + skillColumns + ` FROM skills WHERE domain = ? AND is_active = 1`
	queryArgs := []any{dom}
	if clause != "" {
		query += " AND " + clause
		queryArgs = append(queryArgs, args...)
	}
	query += " ORDER BY version DESC LIMIT 1"

	row := gs.db.QueryRow(query, queryArgs...)
	s, err := scanSkill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "no active skill for domain %s", dom)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "get latest skill for domain %s", dom)
	}
	return s, nil
}

// ListSkillVersions returns every version of a domain's skill, oldest
// first, so callers can inspect quality-score drift across versions.
func (gs *GraphStore) ListSkillVersions(dom string, ns nsFilter) ([]*domain.Skill, error) {
	clause, args := namespaceClause(ns)
	query := `SELECT ` + skillColumns + ` FROM skills WHERE domain = ?`
	queryArgs := []any{dom}
	if clause != "" {
		query += " AND " + clause
		queryArgs = append(queryArgs, args...)
	}
	query += " ORDER BY version ASC"

	rows, err := gs.db.Query(query, queryArgs...)
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "list skill versions for domain %s", dom)
	}
	defer rows.Close()

	var out []*domain.Skill
	for rows.Next() {
		s, err := scanSkill(rows)
		if err != nil {
			logging.Get(logging.CategoryGraphStore).Warn("skill row scan failed: %v", err)
			continue
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeactivateSkill marks a prior version inactive once superseded (§4.F).
func (gs *GraphStore) DeactivateSkill(id string) error {
	_, err := gs.db.Exec(`UPDATE skills SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "deactivate skill %s", id)
	}
	return nil
}
