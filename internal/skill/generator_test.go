package skill

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/membria/membria-core/internal/calibration"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/pattern"
	"github.com/membria/membria-core/internal/store"
)

func openTestGenerator(t *testing.T) (*Generator, *store.GraphStore) {
	t.Helper()
	gs, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { gs.Close() })
	extractor := pattern.New(gs)
	calc := calibration.New(gs)
	clock := int64(1_700_000_000)
	return New(gs, extractor, calc, func() int64 { return clock }), gs
}

func seedQualifyingDomain(t *testing.T, gs *store.GraphStore, dom string) {
	t.Helper()
	for i := 0; i < 4; i++ {
		id := "dec_" + dom + string(rune('a'+i))
		require.NoError(t, gs.PutDecision(&domain.Decision{
			ID: id, Module: dom, Statement: "use PostgreSQL for " + dom, Status: domain.DecisionCompleted,
		}))
		o := &domain.Outcome{ID: "oc_" + id, DecisionID: id, Status: domain.OutcomeCompleted, FinalStatus: domain.FinalSuccess}
		o.MarkFinalized()
		require.NoError(t, gs.PutOutcome(o))
		_, err := gs.GetOrCreateCalibrationProfile(dom, domain.Namespace{})
		require.NoError(t, err)
	}
}

func TestGenerateSkillRequiresMinPatterns(t *testing.T) {
	g, gs := openTestGenerator(t)
	_ = gs
	_, err := g.GenerateSkill(context.Background(), "empty-domain", 3, 3)
	require.Error(t, err)
}

func TestGenerateSkillProducesVersionOne(t *testing.T) {
	g, gs := openTestGenerator(t)
	seedQualifyingDomain(t, gs, "storage")

	s, err := g.GenerateSkill(context.Background(), "storage", 1, 3)
	require.NoError(t, err)
	require.Equal(t, 1, s.Version)
	require.Equal(t, "sk-storage-v1", s.ID)
	require.Contains(t, s.GreenZone, "PostgreSQL")
	require.Contains(t, s.Procedure, "success_rate=")
}

func TestGenerateSkillRegenerationBumpsVersion(t *testing.T) {
	g, gs := openTestGenerator(t)
	seedQualifyingDomain(t, gs, "storage")

	first, err := g.GenerateSkill(context.Background(), "storage", 1, 3)
	require.NoError(t, err)

	second, err := g.GenerateSkill(context.Background(), "storage", 1, 3)
	require.NoError(t, err)
	require.Equal(t, 2, second.Version)

	edges, err := gs.QueryEdges(second.ID, store.EdgeOutgoing)
	require.NoError(t, err)
	found := false
	for _, e := range edges {
		if e.Type == domain.EdgeVersionOf && e.ToID == first.ID {
			found = true
		}
	}
	require.True(t, found, "regenerated skill must link VERSION_OF to its predecessor")

	prior, err := gs.GetLatestSkill("storage", store.CrossNamespaceFilter())
	require.NoError(t, err)
	require.Equal(t, second.ID, prior.ID, "deactivating the predecessor must leave only the new version active")
}

func TestGetSkillReadinessReportsReason(t *testing.T) {
	g, gs := openTestGenerator(t)
	seedQualifyingDomain(t, gs, "storage")

	readiness, err := g.GetSkillReadiness(context.Background(), []string{"storage", "unknown-domain"}, 1, 3)
	require.NoError(t, err)
	require.Len(t, readiness, 2)
	require.True(t, readiness[0].Ready)
	require.False(t, readiness[1].Ready)
	require.NotEmpty(t, readiness[1].Reason)
}
