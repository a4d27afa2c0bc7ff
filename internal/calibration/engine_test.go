package calibration

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/store"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	gs, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { gs.Close() })
	return New(gs)
}

func TestGetConfidenceGuidanceNoData(t *testing.T) {
	e := openTestEngine(t)
	g, err := e.GetConfidenceGuidance("unseen-domain", nil, domain.Namespace{})
	require.NoError(t, err)
	require.Equal(t, "no_data", g.Status)
}

func TestUpdateIncrementsAlphaOnSuccess(t *testing.T) {
	e := openTestEngine(t)
	p, err := e.Update("transport", domain.Namespace{}, true)
	require.NoError(t, err)
	require.Equal(t, float64(2), p.Alpha)
	require.Equal(t, float64(1), p.Beta)
}

func TestUpdateIncrementsBetaOnFailure(t *testing.T) {
	e := openTestEngine(t)
	p, err := e.Update("transport", domain.Namespace{}, false)
	require.NoError(t, err)
	require.Equal(t, float64(1), p.Alpha)
	require.Equal(t, float64(2), p.Beta)
}

func TestGetConfidenceGuidanceRecommendsWhenGapLargeAndSampleSufficient(t *testing.T) {
	e := openTestEngine(t)
	for i := 0; i < 5; i++ {
		_, err := e.Update("storage", domain.Namespace{}, true)
		require.NoError(t, err)
	}
	userConf := 0.2
	g, err := e.GetConfidenceGuidance("storage", &userConf, domain.Namespace{})
	require.NoError(t, err)
	require.Equal(t, "data_available", g.Status)
	require.NotEmpty(t, g.Recommendation)
	require.Contains(t, g.Recommendation, "underconfident")
}

func TestGetConfidenceGuidanceSkipsRecommendationBelowSampleThreshold(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.Update("api", domain.Namespace{}, true)
	require.NoError(t, err)
	userConf := 0.1
	g, err := e.GetConfidenceGuidance("api", &userConf, domain.Namespace{})
	require.NoError(t, err)
	require.Empty(t, g.Recommendation, "sample_size < 3 must suppress the recommendation text")
}

func TestBatchUpdateSkipsUnmappedDecisions(t *testing.T) {
	e := openTestEngine(t)
	outcomes := []BatchOutcome{
		{DecisionID: "dec_1", Success: true},
		{DecisionID: "dec_unmapped", Success: false},
	}
	domains := map[string]string{"dec_1": "api"}
	result := e.BatchUpdate(outcomes, domains, domain.Namespace{})
	require.Equal(t, 1, result.Updated)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, 0, result.Failed)
}
