package chains

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/membria/membria-core/internal/calibration"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/pattern"
	"github.com/membria/membria-core/internal/store"
)

func openTestComposer(t *testing.T) (*Composer, *store.GraphStore) {
	t.Helper()
	gs, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { gs.Close() })
	calc := calibration.New(gs)
	extractor := pattern.New(gs)
	return New(gs, calc, extractor), gs
}

func TestComposeWithNoDataProducesEmptyChains(t *testing.T) {
	c, _ := openTestComposer(t)
	text, outputs, truncated := c.Compose(context.Background(), Input{Domain: "storage", Statement: "use something", Confidence: 0.8}, 0, 0)
	require.False(t, truncated)
	require.Contains(t, text, "Decision Context: storage")
	for _, o := range outputs {
		require.Empty(t, o.Content)
	}
}

func TestComposeCalibrationWarningTriggersOnLargeGap(t *testing.T) {
	c, gs := openTestComposer(t)
	for i := 0; i < 5; i++ {
		_, err := c.calc.Update("storage", domain.Namespace{}, false)
		require.NoError(t, err)
	}
	_ = gs
	text, outputs, _ := c.Compose(context.Background(), Input{Domain: "storage", Statement: "x", Confidence: 0.95}, 0, 0)
	require.Contains(t, text, "Calibration Warning")
	require.Equal(t, "calibration_warning", outputs[0].Name)
	require.NotEmpty(t, outputs[0].Content)
}

func TestComposeNegativeEvidenceListsTopItems(t *testing.T) {
	c, gs := openTestComposer(t)
	for i := 0; i < 2; i++ {
		require.NoError(t, gs.PutNegativeKnowledge(&domain.NegativeKnowledge{
			ID: "nk_" + string(rune('a'+i)), Domain: "storage", Severity: domain.SeverityHigh,
			Hypothesis: "h" + string(rune('a'+i)), Conclusion: "failed", Recommendation: "avoid",
		}))
	}
	text, _, _ := c.Compose(context.Background(), Input{Domain: "storage", Statement: "x", Confidence: 0.5}, 0, 0)
	require.Contains(t, text, "Known Failures")
	require.Contains(t, text, "ha")
}

func TestComposeAntiPatternGuardDetectsMatch(t *testing.T) {
	c, gs := openTestComposer(t)
	require.NoError(t, gs.PutAntiPattern(&domain.AntiPattern{
		ID: "ap_1", Name: "Shared mutable global state", Category: "storage",
		Severity: domain.SeverityHigh, FailureRate: 0.8, RegexPattern: "global\\s+state",
	}))

	text, _, _ := c.Compose(context.Background(), Input{Domain: "storage", Statement: "introduce global state for caching", Confidence: 0.5}, 0, 0)
	require.Contains(t, text, "AntiPattern Guard")
	require.Contains(t, text, "Strongly reconsider")
}

func TestComposeAntiPatternGuardSkipsInvalidRegex(t *testing.T) {
	c, gs := openTestComposer(t)
	require.NoError(t, gs.PutAntiPattern(&domain.AntiPattern{
		ID: "ap_bad", Name: "broken", Category: "storage", Severity: domain.SeverityLow,
		FailureRate: 0.9, RegexPattern: "(unterminated",
	}))
	text, _, _ := c.Compose(context.Background(), Input{Domain: "storage", Statement: "anything", Confidence: 0.5}, 0, 0)
	require.NotContains(t, text, "AntiPattern Guard", "an invalid regex must be skipped, not fatal")
}

func TestComposeTruncatesUnderTightBudget(t *testing.T) {
	c, gs := openTestComposer(t)
	for i := 0; i < 10; i++ {
		require.NoError(t, gs.PutNegativeKnowledge(&domain.NegativeKnowledge{
			ID: "nk_" + itoa(i), Domain: "storage", Severity: domain.SeverityHigh,
			Hypothesis: strings.Repeat("x", 200), Conclusion: strings.Repeat("y", 200), Recommendation: "avoid",
		}))
	}
	_, _, truncated := c.Compose(context.Background(), Input{Domain: "storage", Statement: "x", Confidence: 0.5}, 20, 5)
	require.True(t, truncated)
}

func itoa(i int) string { return string(rune('0' + i)) }
