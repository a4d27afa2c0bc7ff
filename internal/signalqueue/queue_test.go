package signalqueue

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "signals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestSaveAndGetPending(t *testing.T) {
	q := openTestQueue(t)

	s := Signal{ID: "sig_1", Timestamp: 100, SignalType: LevelHigh, Confidence: 0.9, Module: "auth", RawText: "switched to JWT"}
	require.NoError(t, q.Save(s))

	pending, err := q.GetPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "sig_1", pending[0].ID)
	require.Equal(t, StatusPending, pending[0].Status)
}

func TestSaveIsIdempotentOnID(t *testing.T) {
	q := openTestQueue(t)

	s := Signal{ID: "sig_1", Timestamp: 100, SignalType: LevelHigh, Confidence: 0.9, Module: "auth", RawText: "x"}
	require.NoError(t, q.Save(s))
	require.NoError(t, q.Save(s))

	pending, err := q.GetPending()
	require.NoError(t, err)
	require.Len(t, pending, 1, "re-saving the same id must not duplicate the row")
}

func TestMarkExtractedTransitionsOutOfPending(t *testing.T) {
	q := openTestQueue(t)
	require.NoError(t, q.Save(Signal{ID: "sig_1", Timestamp: 100, SignalType: LevelMedium, Module: "db"}))

	require.NoError(t, q.MarkExtracted("sig_1", "dec_abc123"))

	pending, err := q.GetPending()
	require.NoError(t, err)
	require.Empty(t, pending)

	history, err := q.GetHistory(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, StatusExtracted, history[0].Status)
	require.Equal(t, "dec_abc123", history[0].ExtractedDecisionID)
}

func TestMarkExtractedConflictsOnReassignment(t *testing.T) {
	q := openTestQueue(t)
	require.NoError(t, q.Save(Signal{ID: "sig_1", Timestamp: 100, SignalType: LevelHigh}))
	require.NoError(t, q.MarkExtracted("sig_1", "dec_a"))

	err := q.MarkExtracted("sig_1", "dec_b")
	require.Error(t, err)
}

func TestDepthCountsOnlyPending(t *testing.T) {
	q := openTestQueue(t)
	require.NoError(t, q.Save(Signal{ID: "sig_1", Timestamp: 1, SignalType: LevelHigh}))
	require.NoError(t, q.Save(Signal{ID: "sig_2", Timestamp: 2, SignalType: LevelHigh}))
	require.NoError(t, q.MarkExtracted("sig_2", "dec_a"))

	depth, err := q.Depth()
	require.NoError(t, err)
	require.Equal(t, 1, depth)
}
