package store

import (
	"database/sql"
	"errors"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
)

// GetOrCreateCalibrationProfile loads the Beta posterior for domain,
// seeding a fresh Beta(1,1) prior if none exists yet (§3, §4.D).
func (gs *GraphStore) GetOrCreateCalibrationProfile(dom string, ns domain.Namespace) (*domain.CalibrationProfile, error) {
	timer := logging.StartTimer(logging.CategoryGraphStore, "GetOrCreateCalibrationProfile")
	defer timer.Stop()

	row := gs.db.QueryRow(
		`SELECT domain, tenant_id, team_id, project_id, alpha, beta, last_updated
		 FROM calibration_profiles WHERE domain = ? AND tenant_id = ? AND team_id = ? AND project_id = ?`,
		dom, ns.TenantID, ns.TeamID, ns.ProjectID,
	)
	var c domain.CalibrationProfile
	err := row.Scan(&c.Domain, &c.Namespace.TenantID, &c.Namespace.TeamID, &c.Namespace.ProjectID, &c.Alpha, &c.Beta, &c.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		fresh := domain.NewCalibrationProfile(dom, ns)
		if err := gs.PutCalibrationProfile(fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "get calibration profile for domain %s", dom)
	}
	return &c, nil
}

// PutCalibrationProfile persists a (possibly updated) Beta posterior.
func (gs *GraphStore) PutCalibrationProfile(c *domain.CalibrationProfile) error {
	_, err := gs.db.Exec(
		`INSERT INTO calibration_profiles (domain, tenant_id, team_id, project_id, alpha, beta, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(domain, tenant_id, team_id, project_id) DO UPDATE SET
			alpha=excluded.alpha, beta=excluded.beta, last_updated=excluded.last_updated`,
		c.Domain, c.Namespace.TenantID, c.Namespace.TeamID, c.Namespace.ProjectID, c.Alpha, c.Beta, c.LastUpdated,
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "put calibration profile for domain %s", c.Domain)
	}
	return nil
}

// ListCalibrationProfiles returns every profile in ns, used by
// get_confidence_guidance's cross-domain summaries (§4.D).
func (gs *GraphStore) ListCalibrationProfiles(ns nsFilter) ([]*domain.CalibrationProfile, error) {
	clause, args := namespaceClause(ns)
	query := `SELECT domain, tenant_id, team_id, project_id, alpha, beta, last_updated FROM calibration_profiles`
	if clause != "" {
		query += " WHERE " + clause
	}
	rows, err := gs.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "list calibration profiles")
	}
	defer rows.Close()

	var out []*domain.CalibrationProfile
	for rows.Next() {
		var c domain.CalibrationProfile
		if err := rows.Scan(&c.Domain, &c.Namespace.TenantID, &c.Namespace.TeamID, &c.Namespace.ProjectID, &c.Alpha, &c.Beta, &c.LastUpdated); err != nil {
			logging.Get(logging.CategoryGraphStore).Warn("calibration_profiles row scan failed: %v", err)
			continue
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
