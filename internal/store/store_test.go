package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/membria/membria-core/internal/domain"
)

func openTestStore(t *testing.T) *GraphStore {
	t.Helper()
	gs, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { gs.Close() })
	return gs
}

func TestPutAndGetDecisionRoundTrips(t *testing.T) {
	gs := openTestStore(t)

	d := &domain.Decision{
		ID:         "dec_abc123def456",
		Statement:  "use PostgreSQL over MongoDB",
		Alternatives: []string{"MongoDB", "PostgreSQL"},
		Assumptions:  []string{"ops team knows SQL"},
		Confidence:   0.8,
		Module:       "storage",
		CreatedAt:    1700000000,
		Status:       domain.DecisionPending,
	}
	d.Finalize()
	require.NoError(t, gs.PutDecision(d))

	got, err := gs.GetDecision(d.ID, CrossNamespaceFilter())
	require.NoError(t, err)
	require.Equal(t, d.Statement, got.Statement)
	require.Equal(t, d.ContextHash, got.ContextHash)
	require.ElementsMatch(t, d.Alternatives, got.Alternatives)
}

func TestGetDecisionNotFound(t *testing.T) {
	gs := openTestStore(t)
	_, err := gs.GetDecision("dec_missing", CrossNamespaceFilter())
	require.Error(t, err)
}

func TestPutAndGetOutcomeRoundTrips(t *testing.T) {
	gs := openTestStore(t)

	o := &domain.Outcome{
		ID:         "outcome_1",
		DecisionID: "dec_abc123def456",
		Status:     domain.OutcomePending,
		CreatedAt:  1700000000,
		Signals: []domain.Signal{
			{SignalType: domain.SignalPRCreated, Valence: domain.ValencePositive, Timestamp: 1, Description: "opened PR"},
		},
	}
	require.NoError(t, gs.PutOutcome(o))

	got, err := gs.GetOutcome(o.ID)
	require.NoError(t, err)
	require.Equal(t, o.DecisionID, got.DecisionID)
	require.Len(t, got.Signals, 1)
	require.False(t, got.Finalized())
}

func TestStoreEdgeAndTraversePath(t *testing.T) {
	gs := openTestStore(t)

	require.NoError(t, gs.StoreEdge(domain.Edge{FromID: "dec_a", Type: domain.EdgeResultedIn, ToID: "outcome_a", Weight: 1}))
	require.NoError(t, gs.StoreEdge(domain.Edge{FromID: "outcome_a", Type: domain.EdgeCaused, ToID: "dec_b", Weight: 1}))

	path, err := gs.TraversePath("dec_a", "dec_b", 5)
	require.NoError(t, err)
	require.Len(t, path, 2)
	require.Equal(t, domain.EdgeResultedIn, path[0].Type)
	require.Equal(t, domain.EdgeCaused, path[1].Type)
}

func TestWithEntityLockSerializesCallers(t *testing.T) {
	gs := openTestStore(t)

	order := make([]int, 0, 2)
	done := make(chan struct{})
	go func() {
		_ = gs.WithEntityLock("dec_x", func() error {
			order = append(order, 1)
			return nil
		})
		close(done)
	}()
	<-done
	_ = gs.WithEntityLock("dec_x", func() error {
		order = append(order, 2)
		return nil
	})
	require.Equal(t, []int{1, 2}, order)
}

func TestCalibrationProfileGetOrCreateSeedsPrior(t *testing.T) {
	gs := openTestStore(t)

	c, err := gs.GetOrCreateCalibrationProfile("storage", domain.Namespace{})
	require.NoError(t, err)
	require.Equal(t, 1.0, c.Alpha)
	require.Equal(t, 1.0, c.Beta)

	c.Alpha += 3
	require.NoError(t, gs.PutCalibrationProfile(c))

	again, err := gs.GetOrCreateCalibrationProfile("storage", domain.Namespace{})
	require.NoError(t, err)
	require.Equal(t, 4.0, again.Alpha)
}
