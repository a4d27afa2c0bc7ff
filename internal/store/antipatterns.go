package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
)

// PutAntiPattern inserts or replaces a firewall rule (§4.I).
func (gs *GraphStore) PutAntiPattern(a *domain.AntiPattern) error {
	keywords, err := json.Marshal(a.Keywords)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal keywords")
	}
	_, err = gs.db.Exec(
		`INSERT INTO antipatterns (
			id, tenant_id, team_id, project_id, name, category, severity,
			failure_rate, regex_pattern, keywords, removal_rate, repos_affected
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, category=excluded.category, severity=excluded.severity,
			failure_rate=excluded.failure_rate, regex_pattern=excluded.regex_pattern,
			keywords=excluded.keywords, removal_rate=excluded.removal_rate,
			repos_affected=excluded.repos_affected`,
		a.ID, a.Namespace.TenantID, a.Namespace.TeamID, a.Namespace.ProjectID,
		a.Name, a.Category, string(a.Severity), a.FailureRate, a.RegexPattern,
		string(keywords), a.RemovalRate, a.ReposAffected,
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "put antipattern %s", a.ID)
	}
	return nil
}

// ListAntiPatterns returns every registered firewall rule, used to build
// the detector set at daemon boot and on each firewall evaluation (§4.I).
func (gs *GraphStore) ListAntiPatterns() ([]*domain.AntiPattern, error) {
	rows, err := gs.db.Query(
		`SELECT id, tenant_id, team_id, project_id, name, category, severity,
			failure_rate, regex_pattern, keywords, removal_rate, repos_affected
		 FROM antipatterns`)
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "list antipatterns")
	}
	defer rows.Close()

	var out []*domain.AntiPattern
	for rows.Next() {
		var a domain.AntiPattern
		var severity, keywords string
		if err := rows.Scan(
			&a.ID, &a.Namespace.TenantID, &a.Namespace.TeamID, &a.Namespace.ProjectID,
			&a.Name, &a.Category, &severity, &a.FailureRate, &a.RegexPattern,
			&keywords, &a.RemovalRate, &a.ReposAffected,
		); err != nil {
			logging.Get(logging.CategoryGraphStore).Warn("antipattern row scan failed: %v", err)
			continue
		}
		a.Severity = domain.Severity(severity)
		if err := json.Unmarshal([]byte(keywords), &a.Keywords); err != nil {
			logging.Get(logging.CategoryGraphStore).Warn("antipattern %s keywords unmarshal failed: %v", a.ID, err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// GetAntiPattern loads one rule by id.
func (gs *GraphStore) GetAntiPattern(id string) (*domain.AntiPattern, error) {
	row := gs.db.QueryRow(
		`SELECT id, tenant_id, team_id, project_id, name, category, severity,
			failure_rate, regex_pattern, keywords, removal_rate, repos_affected
		 FROM antipatterns WHERE id = ?`, id)
	var a domain.AntiPattern
	var severity, keywords string
	err := row.Scan(
		&a.ID, &a.Namespace.TenantID, &a.Namespace.TeamID, &a.Namespace.ProjectID,
		&a.Name, &a.Category, &severity, &a.FailureRate, &a.RegexPattern,
		&keywords, &a.RemovalRate, &a.ReposAffected,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "antipattern %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "get antipattern %s", id)
	}
	a.Severity = domain.Severity(severity)
	if err := json.Unmarshal([]byte(keywords), &a.Keywords); err != nil {
		return nil, err
	}
	return &a, nil
}
