package memory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/store"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	gs, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { gs.Close() })
	return New(gs, DefaultPolicy())
}

func TestStoreDecisionStampsLifecycle(t *testing.T) {
	m := openTestManager(t)

	d := &domain.Decision{
		ID:        "dec_001",
		Statement: "adopt gRPC for internal RPC",
		Module:    "transport",
		Confidence: 0.7,
		Status:    domain.DecisionPending,
	}
	require.NoError(t, m.StoreDecision(d))
	require.NotZero(t, d.CreatedAt)
	require.NotZero(t, d.Lifecycle.LastVerifiedAt)
	require.Equal(t, DefaultPolicy().DefaultTTLDays, d.Lifecycle.TTLDays)
	require.True(t, d.Lifecycle.IsActive)
	require.NotEmpty(t, d.ContextHash)
}

func TestStoreNegativeKnowledgeRejectsInvalid(t *testing.T) {
	m := openTestManager(t)
	err := m.StoreNegativeKnowledge(&domain.NegativeKnowledge{ID: "nk_1"})
	require.Error(t, err)
}

func TestRetrieveDecisionsExcludesPastTTL(t *testing.T) {
	m := openTestManager(t)
	now := time.Now().Unix()

	fresh := &domain.Decision{ID: "dec_fresh", Module: "storage", Statement: "use sqlite", Confidence: 0.9, CreatedAt: now, Status: domain.DecisionPending}
	stale := &domain.Decision{ID: "dec_stale", Module: "storage", Statement: "use flat files", Confidence: 0.9, CreatedAt: now - int64(400*24*3600), Status: domain.DecisionPending}
	require.NoError(t, m.StoreDecision(fresh))
	require.NoError(t, m.StoreDecision(stale))

	results, err := m.RetrieveDecisions("storage", 10, nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 1, "decision past its default TTL must be excluded from retrieval")
	require.Equal(t, "dec_fresh", results[0].Decision.ID)
}

func TestRetrieveDecisionsHonorsLimit(t *testing.T) {
	m := openTestManager(t)
	for i := 0; i < 3; i++ {
		d := &domain.Decision{
			ID:        "dec_" + string(rune('a'+i)),
			Module:    "api",
			Statement: "decision",
			Confidence: 0.5,
			Status:    domain.DecisionPending,
		}
		require.NoError(t, m.StoreDecision(d))
	}
	results, err := m.RetrieveDecisions("api", 2, nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestUpdateDecisionRejectsIllegalTransition(t *testing.T) {
	m := openTestManager(t)
	d := &domain.Decision{ID: "dec_x", Module: "api", Statement: "x", Status: domain.DecisionPending}
	require.NoError(t, m.StoreDecision(d))

	d.Status = domain.DecisionPending
	next := *d
	next.Status = domain.DecisionCompleted
	err := m.UpdateDecision(&next)
	require.Error(t, err)
}

func TestForgetDecisionSoftForgetsByDefault(t *testing.T) {
	m := openTestManager(t)
	d := &domain.Decision{ID: "dec_y", Module: "api", Statement: "y", Status: domain.DecisionPending}
	require.NoError(t, m.StoreDecision(d))

	require.NoError(t, m.ForgetDecision("dec_y", "superseded", true))

	got, err := m.gs.GetDecision("dec_y", store.CrossNamespaceFilter())
	require.NoError(t, err, "hard=true must fall back to soft-forget when AllowHardDelete is false")
	require.False(t, got.Lifecycle.IsActive)
	require.Equal(t, "superseded", got.Lifecycle.DeprecatedReason)
}

func TestForgetDecisionHardDeletesWhenPolicyAllows(t *testing.T) {
	gs, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { gs.Close() })

	policy := DefaultPolicy()
	policy.AllowHardDelete = true
	m := New(gs, policy)

	d := &domain.Decision{ID: "dec_z", Module: "api", Statement: "z", Status: domain.DecisionPending}
	require.NoError(t, m.StoreDecision(d))
	require.NoError(t, m.ForgetDecision("dec_z", "bad call", true))

	_, err = gs.GetDecision("dec_z", store.CrossNamespaceFilter())
	require.Error(t, err)
}

func TestForgetNegativeKnowledgeSoftForgetsByDefault(t *testing.T) {
	m := openTestManager(t)
	n := &domain.NegativeKnowledge{ID: "nk_x", Domain: "auth", Severity: domain.SeverityHigh, Hypothesis: "h", Conclusion: "c"}
	require.NoError(t, m.StoreNegativeKnowledge(n))

	require.NoError(t, m.ForgetNegativeKnowledge("nk_x", "false positive", true))

	got, err := m.gs.GetNegativeKnowledge("nk_x")
	require.NoError(t, err)
	require.False(t, got.Lifecycle.IsActive)
	require.Equal(t, "false positive", got.Lifecycle.DeprecatedReason)
}

func TestUpdateNegativeKnowledgeStampsVerifiedAt(t *testing.T) {
	m := openTestManager(t)
	n := &domain.NegativeKnowledge{ID: "nk_y", Domain: "auth", Severity: domain.SeverityMedium, Hypothesis: "h", Conclusion: "c"}
	require.NoError(t, m.StoreNegativeKnowledge(n))

	n.Conclusion = "revised conclusion"
	require.NoError(t, m.UpdateNegativeKnowledge(n))

	got, err := m.gs.GetNegativeKnowledge("nk_y")
	require.NoError(t, err)
	require.Equal(t, "revised conclusion", got.Conclusion)
	require.NotZero(t, got.Lifecycle.LastVerifiedAt)
}

func TestSweepExpiredDeprecatesOnlyPastTTL(t *testing.T) {
	m := openTestManager(t)
	now := time.Now().Unix()

	stale := &domain.Decision{ID: "dec_stale", Module: "x", Statement: "s", CreatedAt: now - int64(400*24*3600), Status: domain.DecisionPending}
	fresh := &domain.Decision{ID: "dec_fresh", Module: "x", Statement: "f", CreatedAt: now, Status: domain.DecisionPending}
	require.NoError(t, m.StoreDecision(stale))
	require.NoError(t, m.StoreDecision(fresh))

	n, err := m.SweepExpired()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := m.gs.GetDecision("dec_stale", store.CrossNamespaceFilter())
	require.NoError(t, err)
	require.False(t, got.Lifecycle.IsActive)
}
