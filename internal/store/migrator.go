package store

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/membria/membria-core/internal/logging"
)

// CurrentSchemaVersion is the schema version createSchema() produces.
// Migrations move a database from whatever version it's at up to this one.
const CurrentSchemaVersion = "2026.01"

// Migration is one forward step in the schema's history. Grounded on the
// teacher's ordered v1->v2->v3->v4 ALTER TABLE steps in
// internal/store/migrations.go, generalized into a capability interface
// so new migrations can be appended without touching the runner.
type Migration interface {
	Version() string
	Description() string
	Migrate(db *sql.DB) error
}

// addColumnMigration ports the teacher's table/column/def ALTER TABLE
// pattern (internal/store/migrations.go pendingMigrations) as a reusable
// migration step instead of a flat slice the runner special-cases.
type addColumnMigration struct {
	version     string
	table       string
	column      string
	def         string
}

func (m addColumnMigration) Version() string     { return m.version }
func (m addColumnMigration) Description() string  { return fmt.Sprintf("add %s.%s", m.table, m.column) }
func (m addColumnMigration) Migrate(db *sql.DB) error {
	if !tableExists(db, m.table) {
		return nil
	}
	if columnExists(db, m.table, m.column) {
		return nil
	}
	query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.def)
	_, err := db.Exec(query)
	return err
}

// registeredMigrations lists schema evolution steps applied in order
// after createSchema has ensured the base tables exist. Empty today;
// the slice is the hook future columns get appended to instead of
// editing createSchema's CREATE TABLE statements in place.
var registeredMigrations = []Migration{}

// Migrator applies registeredMigrations to a database, recording each
// attempt in schema_versions and backing up the database file before
// any migration runs so a failed migration can be rolled back.
type Migrator struct {
	db     *sql.DB
	dbPath string
}

// NewMigrator grounds construction on the teacher's RunAllMigrations,
// but the db handle is already open (the caller holds the single
// connection), so dbPath is tracked separately for backup/restore.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// WithPath attaches the on-disk path so MigrateTo can snapshot the file
// before mutating it. Open() calls this immediately after NewMigrator.
func (m *Migrator) WithPath(path string) *Migrator {
	m.dbPath = path
	return m
}

// MigrateTo applies every registered migration whose version has not
// yet been recorded in schema_versions. A non-empty target skips every
// migration whose Version() sorts after it (string comparison); "" means
// "apply everything pending".
func (m *Migrator) MigrateTo(target string) (int, error) {
	timer := logging.StartTimer(logging.CategoryGraphStore, "MigrateTo")
	defer timer.Stop()

	if len(registeredMigrations) == 0 {
		return 0, nil
	}

	applied := GetAppliedVersions(m.db)

	pending := make([]Migration, 0, len(registeredMigrations))
	for _, mig := range registeredMigrations {
		if target != "" && mig.Version() > target {
			continue
		}
		if !applied[mig.Version()] {
			pending = append(pending, mig)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var backupPath string
	if m.dbPath != "" {
		bp, err := createBackup(m.dbPath)
		if err != nil {
			logging.Get(logging.CategoryGraphStore).Warn("pre-migration backup failed, proceeding without one: %v", err)
		} else {
			backupPath = bp
		}
	}

	ran := 0
	for _, mig := range pending {
		start := time.Now()
		err := mig.Migrate(m.db)
		status := "ok"
		errMsg := ""
		if err != nil {
			status = "failed"
			errMsg = err.Error()
		}
		m.recordVersion(mig.Version(), mig.Description(), status, errMsg, time.Since(start))

		if err != nil {
			if backupPath != "" && m.dbPath != "" {
				if restoreErr := restoreBackup(m.dbPath, backupPath); restoreErr != nil {
					logging.Get(logging.CategoryGraphStore).Error("restore after failed migration %s also failed: %v", mig.Version(), restoreErr)
				}
			}
			return ran, fmt.Errorf("migration %s (%s): %w", mig.Version(), mig.Description(), err)
		}
		ran++
	}
	return ran, nil
}

func (m *Migrator) recordVersion(version, description, status, errMsg string, d time.Duration) {
	_, err := m.db.Exec(
		`INSERT INTO schema_versions (version, executed_at, duration_ms, status, description, error) VALUES (?, ?, ?, ?, ?, ?)`,
		version, time.Now().Unix(), d.Milliseconds(), status, description, errMsg,
	)
	if err != nil {
		logging.Get(logging.CategoryGraphStore).Warn("failed to record schema_versions entry for %s: %v", version, err)
	}
}

// GetAppliedVersions returns the set of migration versions that have
// successfully executed against db.
func GetAppliedVersions(db *sql.DB) map[string]bool {
	applied := make(map[string]bool)
	if !tableExists(db, "schema_versions") {
		return applied
	}
	rows, err := db.Query(`SELECT version FROM schema_versions WHERE status = 'ok'`)
	if err != nil {
		return applied
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err == nil {
			applied[v] = true
		}
	}
	return applied
}

func tableExists(db *sql.DB, table string) bool {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
	return err == nil && count > 0
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// createBackup copies the database file aside before a migration run,
// mirroring the teacher's CreateBackup in internal/store/migrations.go.
func createBackup(dbPath string) (string, error) {
	backupPath := dbPath + fmt.Sprintf(".backup_%s", time.Now().Format("20060102_150405"))

	src, err := os.Open(dbPath)
	if err != nil {
		return "", fmt.Errorf("open source database: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("copy database to backup: %w", err)
	}
	return backupPath, dst.Sync()
}

// restoreBackup restores dbPath from backupPath after a failed migration.
func restoreBackup(dbPath, backupPath string) error {
	src, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("open backup file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(dbPath)
	if err != nil {
		return fmt.Errorf("recreate database file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return dst.Sync()
}
