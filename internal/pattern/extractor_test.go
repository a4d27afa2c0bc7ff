package pattern

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/store"
)

func openTestExtractor(t *testing.T) (*Extractor, *store.GraphStore) {
	t.Helper()
	gs, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { gs.Close() })
	return New(gs), gs
}

func seedDecisionWithOutcome(t *testing.T, gs *store.GraphStore, id, module, statement string, final domain.FinalStatus) {
	t.Helper()
	require.NoError(t, gs.PutDecision(&domain.Decision{
		ID:        id,
		Module:    module,
		Statement: statement,
		Status:    domain.DecisionCompleted,
	}))
	o := &domain.Outcome{ID: "oc_" + id, DecisionID: id, Status: domain.OutcomeCompleted, FinalStatus: final}
	o.MarkFinalized()
	require.NoError(t, gs.PutOutcome(o))
}

func TestExtractPatternKeyMatchesKeyword(t *testing.T) {
	require.Equal(t, "PostgreSQL", ExtractPatternKey("Use PostgreSQL for the user database"))
	require.Equal(t, "Redis", ExtractPatternKey("adopt Redis for caching"))
}

func TestExtractPatternKeyFallsBackToCapitalizedWord(t *testing.T) {
	require.Equal(t, "Bespoke", ExtractPatternKey("adopt Bespoke in-house queueing"))
}

func TestExtractPatternKeyFallsBackToStatement(t *testing.T) {
	require.Equal(t, "keep it simple", ExtractPatternKey("keep it simple"))
}

func TestExtractPatternsForDomainFiltersByMinSampleSize(t *testing.T) {
	e, gs := openTestExtractor(t)
	seedDecisionWithOutcome(t, gs, "d1", "storage", "use PostgreSQL for storage", domain.FinalSuccess)
	seedDecisionWithOutcome(t, gs, "d2", "storage", "use PostgreSQL again", domain.FinalSuccess)

	patterns, err := e.ExtractPatternsForDomain(context.Background(), "storage", 3)
	require.NoError(t, err)
	require.Empty(t, patterns, "sample size of 2 must be dropped under the default min_sample_size of 3")
}

func TestExtractPatternsForDomainScoresSuccessRate(t *testing.T) {
	e, gs := openTestExtractor(t)
	seedDecisionWithOutcome(t, gs, "d1", "storage", "use PostgreSQL for storage", domain.FinalSuccess)
	seedDecisionWithOutcome(t, gs, "d2", "storage", "use PostgreSQL again", domain.FinalSuccess)
	seedDecisionWithOutcome(t, gs, "d3", "storage", "use PostgreSQL once more", domain.FinalFailure)

	patterns, err := e.ExtractPatternsForDomain(context.Background(), "storage", 3)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, "PostgreSQL", patterns[0].Statement)
	require.InDelta(t, 2.0/3.0, patterns[0].SuccessRate, 1e-9)
	require.Equal(t, 3, patterns[0].SampleSize)
}

func TestDetectConflictingPatternsFindsViableAlternatives(t *testing.T) {
	e, gs := openTestExtractor(t)
	for i := 0; i < 3; i++ {
		seedDecisionWithOutcome(t, gs, "pg"+itoa(i), "db", "use PostgreSQL here", domain.FinalSuccess)
	}
	for i := 0; i < 3; i++ {
		seedDecisionWithOutcome(t, gs, "mongo"+itoa(i), "db", "use MongoDB here", domain.FinalSuccess)
	}

	conflicts, err := e.DetectConflictingPatterns(context.Background(), "db")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
}

func itoa(i int) string { return string(rune('0' + i)) }
