// Package domain defines the property-graph entity types shared by every
// membria component: Decision, Outcome, Signal, NegativeKnowledge,
// AntiPattern, CalibrationProfile, Skill, Engram, SessionContext, DocShot,
// Document and SchemaVersion (spec.md §3), plus the Namespace and
// lifecycle fields every node carries.
package domain

// Namespace scopes every query and write to a (tenant, team, project)
// triple. Every read filters by namespace unless the caller explicitly
// requests cross-namespace scope (§4.A).
type Namespace struct {
	TenantID  string
	TeamID    string
	ProjectID string
}

// Empty reports whether the namespace has no identifying fields set,
// which is only valid for cross-namespace administrative queries.
func (n Namespace) Empty() bool {
	return n.TenantID == "" && n.TeamID == "" && n.ProjectID == ""
}

// Lifecycle carries the ambient memory-lifecycle fields every node
// exposes (§3, §4.B). MemoryType drives the TTL table; MemorySubject is
// a free-form tag (e.g. a domain or decision id) used by retrieval
// filters.
type Lifecycle struct {
	IsActive         bool
	TTLDays          int
	LastVerifiedAt   int64 // unix seconds
	DeprecatedReason string
	MemoryType       string // episodic | semantic | procedural
	MemorySubject    string
}
