package memory

import (
	"time"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
	"github.com/membria/membria-core/internal/store"
)

// Manager wraps the graph store with the §4.B semantic operations and
// enforces Policy on every read and write.
type Manager struct {
	gs     *store.GraphStore
	policy Policy
	now    func() time.Time
}

// New constructs a Manager over an already-open graph store.
func New(gs *store.GraphStore, policy Policy) *Manager {
	return &Manager{gs: gs, policy: policy, now: time.Now}
}

// StoreDecision persists a new decision, stamping CreatedAt/
// LastVerifiedAt and defaulting TTL from the memory policy if the
// caller left Lifecycle.TTLDays unset (§4.B).
func (m *Manager) StoreDecision(d *domain.Decision) error {
	timer := logging.StartTimer(logging.CategoryMemory, "StoreDecision")
	defer timer.Stop()

	now := m.now().Unix()
	if d.CreatedAt == 0 {
		d.CreatedAt = now
	}
	d.Lifecycle.LastVerifiedAt = now
	if d.Lifecycle.TTLDays == 0 {
		d.Lifecycle.TTLDays = m.policy.TTLDaysForType(d.Lifecycle.MemoryType)
	}
	d.Lifecycle.IsActive = true
	d.Finalize()

	return m.gs.WithEntityLock(d.ID, func() error {
		return m.gs.PutDecision(d)
	})
}

// StoreNegativeKnowledge persists a failure-class record, defaulting TTL
// the same way StoreDecision does.
func (m *Manager) StoreNegativeKnowledge(n *domain.NegativeKnowledge) error {
	timer := logging.StartTimer(logging.CategoryMemory, "StoreNegativeKnowledge")
	defer timer.Stop()

	if !n.Valid() {
		return apperr.New(apperr.InvalidArgument, "negative knowledge requires domain and severity")
	}

	now := m.now().Unix()
	if n.DiscoveredAt == 0 {
		n.DiscoveredAt = now
	}
	n.Lifecycle.LastVerifiedAt = now
	if n.Lifecycle.TTLDays == 0 {
		n.Lifecycle.TTLDays = m.policy.TTLDaysForType(n.Lifecycle.MemoryType)
	}
	n.Lifecycle.IsActive = true

	return m.gs.WithEntityLock(n.ID, func() error {
		return m.gs.PutNegativeKnowledge(n)
	})
}

// ScoredDecision pairs a decision with the composite retrieval score
// that ranked it (§4.B).
type ScoredDecision struct {
	Decision *domain.Decision
	Score    float64
}

// RelevanceFunc scores a candidate decision's topical relevance to the
// caller's query in [0,1]; retrieve_decisions leaves relevance scoring to
// the caller (e.g. the context composer's keyword/embedding match) since
// the memory manager itself is relevance-agnostic.
type RelevanceFunc func(*domain.Decision) float64

// ImpactFunc scores a candidate decision's downstream impact in [0,1]
// (e.g. derived from its outcome's FinalScore); defaults to 0.5 (neutral)
// when nil.
type ImpactFunc func(*domain.Decision) float64

// RetrieveDecisions returns up to limit active decisions for module,
// sorted by composite score descending (§4.B). Decisions past their TTL
// are excluded (should_forget) rather than scored to zero.
func (m *Manager) RetrieveDecisions(module string, limit int, relevance RelevanceFunc, impact ImpactFunc) ([]ScoredDecision, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "RetrieveDecisions")
	defer timer.Stop()

	candidates, err := m.gs.ListDecisionsByModule(module, store.CrossNamespaceFilter())
	if err != nil {
		return nil, err
	}

	now := m.now()
	scored := make([]ScoredDecision, 0, len(candidates))
	for _, d := range candidates {
		ageDays := now.Sub(time.Unix(d.CreatedAt, 0)).Hours() / 24
		ttl := d.Lifecycle.TTLDays
		if ttl == 0 {
			ttl = m.policy.TTLDaysForType(d.Lifecycle.MemoryType)
		}
		if m.policy.ShouldForget(ageDays, ttl) {
			continue
		}

		rel := 1.0
		if relevance != nil {
			rel = relevance(d)
		}
		imp := 0.5
		if impact != nil {
			imp = impact(d)
		}
		freshness := m.policy.Freshness(ageDays, ttl)
		score := CompositeScore(rel, d.Confidence, freshness, imp)
		scored = append(scored, ScoredDecision{Decision: d, Score: score})
	}

	sortScoredDesc(scored)
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// RetrieveNegativeKnowledge returns up to limit active negative-knowledge
// records for domain (§4.B). When domain is empty, callers should use
// internal/store directly for a cross-domain scan; this signature keeps
// the semantic-layer contract narrow to the common case.
func (m *Manager) RetrieveNegativeKnowledge(dom string, limit int) ([]*domain.NegativeKnowledge, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "RetrieveNegativeKnowledge")
	defer timer.Stop()

	all, err := m.gs.ListNegativeKnowledgeByDomain(dom)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// UpdateDecision re-persists a decision and stamps last_verified_at,
// refusing to touch ContextHash (immutable once computed) or Status
// outside the §3 transition table.
func (m *Manager) UpdateDecision(d *domain.Decision) error {
	timer := logging.StartTimer(logging.CategoryMemory, "UpdateDecision")
	defer timer.Stop()

	return m.gs.WithEntityLock(d.ID, func() error {
		existing, err := m.gs.GetDecision(d.ID, store.CrossNamespaceFilter())
		if err != nil {
			return err
		}
		if d.Status != existing.Status && !existing.CanTransitionTo(d.Status) {
			return apperr.Transition(string(existing.Status), "decision %s cannot move to %s", d.ID, d.Status)
		}
		d.ContextHash = existing.ContextHash
		d.Lifecycle.LastVerifiedAt = m.now().Unix()
		return m.gs.PutDecision(d)
	})
}

// UpdateNegativeKnowledge re-persists a negative-knowledge record and
// stamps last_verified_at, mirroring UpdateDecision.
func (m *Manager) UpdateNegativeKnowledge(n *domain.NegativeKnowledge) error {
	timer := logging.StartTimer(logging.CategoryMemory, "UpdateNegativeKnowledge")
	defer timer.Stop()

	if !n.Valid() {
		return apperr.New(apperr.InvalidArgument, "negative knowledge requires domain and severity")
	}
	return m.gs.WithEntityLock(n.ID, func() error {
		n.Lifecycle.LastVerifiedAt = m.now().Unix()
		return m.gs.PutNegativeKnowledge(n)
	})
}

// ForgetNegativeKnowledge deprecates a negative-knowledge record under
// the same soft-forget-by-default/hard-delete-gated rule as
// ForgetDecision.
func (m *Manager) ForgetNegativeKnowledge(id, reason string, hard bool) error {
	timer := logging.StartTimer(logging.CategoryMemory, "ForgetNegativeKnowledge")
	defer timer.Stop()

	return m.gs.WithEntityLock(id, func() error {
		if hard && m.policy.AllowHardDelete {
			return m.gs.HardDeleteNegativeKnowledge(id)
		}
		return m.gs.DeprecateNegativeKnowledge(id, reason)
	})
}

// ForgetDecision deprecates a decision per the §4.B soft-forget policy.
// hard=true is honored only when the manager's Policy.AllowHardDelete is
// set; otherwise it silently falls back to soft-forget so callers cannot
// accidentally destroy history by flipping a flag the deployment forbids.
func (m *Manager) ForgetDecision(id, reason string, hard bool) error {
	timer := logging.StartTimer(logging.CategoryMemory, "ForgetDecision")
	defer timer.Stop()

	return m.gs.WithEntityLock(id, func() error {
		if hard && m.policy.AllowHardDelete {
			return m.gs.HardDeleteDecision(id)
		}
		return m.gs.DeprecateDecision(id, reason)
	})
}

// SweepExpired deprecates every active decision past its TTL, returning
// the count forgotten. It runs only when a caller invokes it; no
// supervisor service schedules it.
func (m *Manager) SweepExpired() (int, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "SweepExpired")
	defer timer.Stop()

	ids, err := m.gs.ExpiredDecisionIDs(m.now())
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		if err := m.gs.DeprecateDecision(id, "ttl_expired"); err != nil {
			logging.Get(logging.CategoryMemory).Warn("failed to deprecate expired decision %s: %v", id, err)
			continue
		}
		count++
	}
	return count, nil
}

func sortScoredDesc(s []ScoredDecision) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Score > s[j-1].Score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
