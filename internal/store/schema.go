package store

// createSchema creates every table at CurrentSchemaVersion if it does not
// already exist. Tables mirror the entities of spec.md §3; JSON-typed
// columns (alternatives, assumptions, signals, metrics, ...) are stored
// as TEXT and marshaled/unmarshaled at the CRUD boundary.
func (gs *GraphStore) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			ttl_days INTEGER NOT NULL DEFAULT 365,
			last_verified_at INTEGER NOT NULL DEFAULT 0,
			deprecated_reason TEXT NOT NULL DEFAULT '',
			memory_type TEXT NOT NULL DEFAULT '',
			memory_subject TEXT NOT NULL DEFAULT '',
			statement TEXT NOT NULL,
			alternatives TEXT NOT NULL DEFAULT '[]',
			alternatives_with_reasons TEXT NOT NULL DEFAULT '{}',
			assumptions TEXT NOT NULL DEFAULT '[]',
			predicted_description TEXT NOT NULL DEFAULT '',
			predicted_success_criteria TEXT NOT NULL DEFAULT '[]',
			predicted_risk_level TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL,
			module TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			context_hash TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			linked_pr TEXT NOT NULL DEFAULT '',
			linked_commit TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_namespace ON decisions(tenant_id, team_id, project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_module ON decisions(module)`,

		`CREATE TABLE IF NOT EXISTS outcomes (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			decision_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at INTEGER NOT NULL,
			submitted_at INTEGER NOT NULL DEFAULT 0,
			merged_at INTEGER NOT NULL DEFAULT 0,
			completed_at INTEGER NOT NULL DEFAULT 0,
			pr_url TEXT NOT NULL DEFAULT '',
			pr_number INTEGER NOT NULL DEFAULT 0,
			commit_sha TEXT NOT NULL DEFAULT '',
			repo TEXT NOT NULL DEFAULT '',
			signals TEXT NOT NULL DEFAULT '[]',
			final_status TEXT NOT NULL DEFAULT '',
			final_score REAL NOT NULL DEFAULT 0,
			lessons_learned TEXT NOT NULL DEFAULT '[]',
			metrics TEXT NOT NULL DEFAULT '{}',
			finalized INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_decision ON outcomes(decision_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_outcomes_decision_unique ON outcomes(decision_id)`,

		`CREATE TABLE IF NOT EXISTS negative_knowledge (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			ttl_days INTEGER NOT NULL DEFAULT 365,
			last_verified_at INTEGER NOT NULL DEFAULT 0,
			deprecated_reason TEXT NOT NULL DEFAULT '',
			memory_type TEXT NOT NULL DEFAULT '',
			memory_subject TEXT NOT NULL DEFAULT '',
			hypothesis TEXT NOT NULL,
			conclusion TEXT NOT NULL,
			domain TEXT NOT NULL,
			severity TEXT NOT NULL,
			recommendation TEXT NOT NULL DEFAULT '',
			prevented_count INTEGER NOT NULL DEFAULT 0,
			discovered_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_negknow_domain ON negative_knowledge(domain)`,

		`CREATE TABLE IF NOT EXISTS antipatterns (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			failure_rate REAL NOT NULL DEFAULT 0,
			regex_pattern TEXT NOT NULL,
			keywords TEXT NOT NULL DEFAULT '[]',
			removal_rate REAL NOT NULL DEFAULT 0,
			repos_affected INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_antipatterns_category ON antipatterns(category)`,

		`CREATE TABLE IF NOT EXISTS calibration_profiles (
			domain TEXT NOT NULL,
			tenant_id TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			alpha REAL NOT NULL DEFAULT 1,
			beta REAL NOT NULL DEFAULT 1,
			last_updated INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (domain, tenant_id, team_id, project_id)
		)`,

		`CREATE TABLE IF NOT EXISTS skills (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			domain TEXT NOT NULL,
			version INTEGER NOT NULL,
			success_rate REAL NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			sample_size INTEGER NOT NULL DEFAULT 0,
			quality_score REAL NOT NULL DEFAULT 0,
			procedure TEXT NOT NULL DEFAULT '',
			green_zone TEXT NOT NULL DEFAULT '[]',
			yellow_zone TEXT NOT NULL DEFAULT '[]',
			red_zone TEXT NOT NULL DEFAULT '[]',
			generated_from_decisions TEXT NOT NULL DEFAULT '[]',
			conflicts_with TEXT NOT NULL DEFAULT '[]',
			is_active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_skills_domain ON skills(domain, version)`,

		`CREATE TABLE IF NOT EXISTS engrams (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL,
			commit_sha TEXT NOT NULL DEFAULT '',
			branch TEXT NOT NULL DEFAULT '',
			timestamp INTEGER NOT NULL,
			agent_type TEXT NOT NULL DEFAULT '',
			agent_model TEXT NOT NULL DEFAULT '',
			agent_duration_ms INTEGER NOT NULL DEFAULT 0,
			agent_tokens INTEGER NOT NULL DEFAULT 0,
			agent_cost_usd REAL NOT NULL DEFAULT 0,
			transcript TEXT NOT NULL DEFAULT '[]',
			files_changed TEXT NOT NULL DEFAULT '[]',
			decisions_extracted TEXT NOT NULL DEFAULT '[]',
			context_injected INTEGER NOT NULL DEFAULT 0,
			antipatterns_triggered TEXT NOT NULL DEFAULT '[]',
			reasoning_trail TEXT NOT NULL DEFAULT '[]',
			confidence_trajectory TEXT NOT NULL DEFAULT '[]',
			tool_call_graph TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_engrams_session ON engrams(session_id)`,

		`CREATE TABLE IF NOT EXISTS session_contexts (
			session_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			task TEXT NOT NULL DEFAULT '',
			focus TEXT NOT NULL DEFAULT '',
			current_plan TEXT NOT NULL DEFAULT '[]',
			constraints TEXT NOT NULL DEFAULT '[]',
			doc_shot_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			file_path TEXT NOT NULL,
			content TEXT NOT NULL,
			doc_type TEXT NOT NULL DEFAULT '',
			embedding BLOB,
			chunk_index INTEGER NOT NULL DEFAULT 0,
			chunk_total INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(file_path)`,

		`CREATE TABLE IF NOT EXISTS docshots (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			document_ids TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS edges (
			from_id TEXT NOT NULL,
			edge_type TEXT NOT NULL,
			to_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			weight REAL NOT NULL DEFAULT 1,
			metadata TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (from_id, edge_type, to_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id)`,

		`CREATE TABLE IF NOT EXISTS schema_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version TEXT NOT NULL,
			executed_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT ''
		)`,
	}

	for _, stmt := range stmts {
		if _, err := gs.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
