package context

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/membria/membria-core/internal/calibration"
	"github.com/membria/membria-core/internal/chains"
	"github.com/membria/membria-core/internal/config"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/pattern"
	"github.com/membria/membria-core/internal/store"
)

func openTestManager(t *testing.T, cfg *config.Store) (*Manager, *store.GraphStore) {
	t.Helper()
	gs, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { gs.Close() })
	calc := calibration.New(gs)
	extractor := pattern.New(gs)
	composer := chains.New(gs, calc, extractor)
	return New(gs, calc, extractor, composer, cfg), gs
}

func TestBuildDecisionContextIncludesDocshotAndSession(t *testing.T) {
	m, _ := openTestManager(t, nil)
	res := m.BuildDecisionContext(context.Background(), Request{
		Statement: "use PostgreSQL", Module: "storage", Confidence: 0.8,
		DocShot:        &domain.DocShot{ID: "ds_1", DocumentIDs: []string{"doc_a", "doc_b"}},
		SessionContext: &domain.SessionContext{Task: "build ingest pipeline", Focus: "storage layer"},
	})
	require.Contains(t, res.CompactContext, "# Decision Context (Unified)")
	require.Contains(t, res.CompactContext, "DocShot")
	require.Contains(t, res.CompactContext, "Session Context")
	require.Contains(t, res.SectionsIncluded, "docshot")
	require.Contains(t, res.SectionsIncluded, "session_context")
	require.False(t, res.Truncated)
}

func TestBuildDecisionContextSortsSectionsByPriority(t *testing.T) {
	m, _ := openTestManager(t, nil)
	res := m.BuildDecisionContext(context.Background(), Request{
		Statement: "x", Module: "storage", Confidence: 0.5,
		DocShot:        &domain.DocShot{ID: "ds_1"},
		SessionContext: &domain.SessionContext{Task: "t"},
	})
	docIdx := strings.Index(res.CompactContext, "DocShot")
	sessIdx := strings.Index(res.CompactContext, "Session Context")
	require.True(t, docIdx >= 0 && sessIdx >= 0)
	require.Less(t, docIdx, sessIdx, "docshot (priority 0) must render before session_context (priority 1)")
}

func TestBuildDecisionContextRoleSectionsAlwaysConsidered(t *testing.T) {
	cfg := config.DefaultStore()
	cfg.Set("context_plugins", "docshot")
	m, _ := openTestManager(t, cfg)
	res := m.BuildDecisionContext(context.Background(), Request{
		Statement: "x", Module: "storage", Confidence: 0.5,
		RoleSkills: []*domain.Skill{{ID: "sk-storage-v1", Domain: "storage", Version: 1}},
	})
	require.Contains(t, res.SectionsIncluded, "role_skills", "role plugins must be appended even when omitted from context_plugins config")
}

func TestBuildDecisionContextTruncatesUnderTightBudget(t *testing.T) {
	m, gs := openTestManager(t, nil)
	for i := 0; i < 10; i++ {
		require.NoError(t, gs.PutNegativeKnowledge(&domain.NegativeKnowledge{
			ID: "nk_" + string(rune('a'+i)), Domain: "storage", Severity: domain.SeverityHigh,
			Hypothesis: strings.Repeat("x", 200), Conclusion: strings.Repeat("y", 200), Recommendation: "avoid",
		}))
	}
	res := m.BuildDecisionContext(context.Background(), Request{
		Statement: "x", Module: "storage", Confidence: 0.5, MaxTokens: 30,
	})
	require.True(t, res.Truncated)
	require.Contains(t, res.CompactContext, "*[Context truncated to fit token budget]*")
}

func TestBuildDecisionContextWithNoInputsProducesEmptyResult(t *testing.T) {
	m, _ := openTestManager(t, nil)
	res := m.BuildDecisionContext(context.Background(), Request{Statement: "x", Module: "unused-domain", Confidence: 0.5})
	require.Empty(t, res.SectionsIncluded)
	require.False(t, res.Truncated)
}

func TestBuildDecisionContextSurfaceReturnsNegativeKnowledge(t *testing.T) {
	m, gs := openTestManager(t, nil)
	require.NoError(t, gs.PutNegativeKnowledge(&domain.NegativeKnowledge{
		ID: "nk_1", Domain: "storage", Severity: domain.SeverityMedium,
		Hypothesis: "shared connection pool", Conclusion: "leaked connections", Recommendation: "use per-request pool",
	}))
	res := m.BuildDecisionContext(context.Background(), Request{Statement: "x", Module: "storage", Confidence: 0.5})
	require.NotNil(t, res.Surface)
	require.Len(t, res.Surface.NegativeKnowledge, 1)
	require.Contains(t, res.CompactContext, "Negative Knowledge")
}
