package firewall

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/store"
)

func openTestFirewall(t *testing.T) (*Firewall, *store.GraphStore) {
	t.Helper()
	gs, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { gs.Close() })
	return New(gs, nil), gs
}

func TestEvaluateAllowsSafeDecision(t *testing.T) {
	f, _ := openTestFirewall(t)
	res := f.Evaluate(Request{
		Statement: "use industry standard library", Confidence: 0.85,
		Alternatives: []string{"Library A", "Library B"},
	})
	require.Equal(t, VerdictAllow, res.Verdict)
	require.False(t, res.OverrideRequired)
}

func TestEvaluateLowConfidenceNoAlternativesIsCritical(t *testing.T) {
	f, _ := openTestFirewall(t)
	res := f.Evaluate(Request{Statement: "use custom authentication", Confidence: 0.3})
	require.Equal(t, VerdictBlock, res.Verdict)
	require.True(t, res.OverrideRequired)
	found := false
	for _, fl := range res.Flags {
		if fl.ID == "low_confidence" {
			found = true
			require.Equal(t, domain.SeverityCritical, fl.Severity)
		}
	}
	require.True(t, found)
}

func TestEvaluateLowConfidenceWithAlternativesIsLessSevere(t *testing.T) {
	f, _ := openTestFirewall(t)
	res := f.Evaluate(Request{Statement: "use custom authentication", Confidence: 0.3, Alternatives: []string{"OAuth", "SAML"}})
	for _, fl := range res.Flags {
		if fl.ID == "low_confidence" {
			require.NotEqual(t, domain.SeverityCritical, fl.Severity)
		}
	}
}

func TestEvaluateDetectsAntipatternViaRegex(t *testing.T) {
	f, gs := openTestFirewall(t)
	require.NoError(t, gs.PutAntiPattern(&domain.AntiPattern{
		ID: "ap_jwt", Name: "custom_jwt", Category: "auth",
		Severity: domain.SeverityHigh, FailureRate: 0.8, RegexPattern: "custom\\s+jwt",
	}))
	res := f.Evaluate(Request{Statement: "Implement custom JWT", Confidence: 0.8, Alternatives: []string{"a", "b"}})
	found := false
	for _, fl := range res.Flags {
		if fl.ID == "antipattern_detected" {
			found = true
		}
	}
	require.True(t, found)
}

func TestEvaluateOverconfidentLanguageFlagged(t *testing.T) {
	f, _ := openTestFirewall(t)
	res := f.Evaluate(Request{Statement: "this will definitely work and always be perfect", Confidence: 0.95, Alternatives: []string{"a"}})
	found := false
	for _, fl := range res.Flags {
		if fl.ID == "overconfident" {
			found = true
		}
	}
	require.True(t, found)
}

func TestEvaluateTimePressureFlagged(t *testing.T) {
	f, _ := openTestFirewall(t)
	res := f.Evaluate(Request{Statement: "quick decision", Confidence: 0.7, Alternatives: []string{"a", "b"}, TimePressure: true})
	found := false
	for _, fl := range res.Flags {
		if fl.ID == "time_pressure" {
			found = true
		}
	}
	require.True(t, found)
}

func TestEvaluateTwoMediumFlagsTriggersWarn(t *testing.T) {
	f, _ := openTestFirewall(t)
	res := f.Evaluate(Request{Statement: "use custom solution", Confidence: 0.7, TimePressure: true})
	require.Equal(t, VerdictWarn, res.Verdict)
}

func TestEvaluateRiskScoreOrdering(t *testing.T) {
	f, gs := openTestFirewall(t)
	require.NoError(t, gs.PutAntiPattern(&domain.AntiPattern{
		ID: "ap_jwt", Name: "custom_jwt", Category: "auth",
		Severity: domain.SeverityHigh, FailureRate: 0.8, RegexPattern: "custom",
	}))

	safe := f.Evaluate(Request{Statement: "use standard library", Confidence: 0.9, Alternatives: []string{"Alt"}})
	risky := f.Evaluate(Request{Statement: "custom solution", Confidence: 0.2, TimePressure: true})
	require.Less(t, safe.RiskScore, risky.RiskScore)
}

func TestEvaluateMessageIncludesRiskScoreAndFlags(t *testing.T) {
	f, _ := openTestFirewall(t)
	res := f.Evaluate(Request{Statement: "custom auth", Confidence: 0.4})
	require.Contains(t, res.Message, "Risk score")
	require.Contains(t, res.Message, "Red flags")
}

func TestEvaluateInvalidAntipatternRegexSkipped(t *testing.T) {
	f, gs := openTestFirewall(t)
	require.NoError(t, gs.PutAntiPattern(&domain.AntiPattern{
		ID: "ap_bad", Name: "broken", Category: "auth", Severity: domain.SeverityLow,
		FailureRate: 0.9, RegexPattern: "(unterminated",
	}))
	res := f.Evaluate(Request{Statement: "anything goes here", Confidence: 0.9, Alternatives: []string{"a", "b"}})
	for _, fl := range res.Flags {
		require.NotEqual(t, "antipattern_detected", fl.ID)
	}
}
