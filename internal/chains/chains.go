// Package chains implements the behavior-chain composer of spec.md §4.G:
// four markdown-producing chains run in debiasing-first priority order,
// aggregated under a token budget with tail-first truncation by priority.
// Grounded on original_source/src/membria/behavior_chains.py (the four
// chain bodies) and chain_builder.py (the orchestrator's priority
// ordering and truncation rule), carried into Go as a slice of Chain
// values run in a fixed sequence rather than the Python orchestrator's
// hardcoded if/elif dispatch.
package chains

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/membria/membria-core/internal/calibration"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
	"github.com/membria/membria-core/internal/metrics"
	"github.com/membria/membria-core/internal/pattern"
	"github.com/membria/membria-core/internal/store"
)

const (
	defaultMaxTokens           = 2000
	defaultNegativeKnowledgeTopN = 5
	calibrationGapThreshold    = 0.10
	truncationMarker           = "\n*[truncated]*\n"
)

// Input is the decision-time context every chain builds from.
type Input struct {
	Domain     string
	Statement  string
	Confidence float64
}

// ChainOutput pairs a chain's name/priority with its rendered markdown
// (empty when the chain did not trigger).
type ChainOutput struct {
	Name     string
	Priority int
	Content  string
}

// Composer runs the four behavior chains and assembles their output
// under a token budget.
type Composer struct {
	gs        *store.GraphStore
	calc      *calibration.Engine
	extractor *pattern.Extractor
}

// New constructs a Composer over its data dependencies.
func New(gs *store.GraphStore, calc *calibration.Engine, extractor *pattern.Extractor) *Composer {
	return &Composer{gs: gs, calc: calc, extractor: extractor}
}

// estimateTokens mirrors §4.G's len(text)/4 heuristic.
func estimateTokens(s string) int { return len(s) / 4 }

// buildCalibrationWarning is chain 1 (priority 1): debiasing, fires only
// when |confidence_gap| > 0.10 and sample_size >= 3 (§4.G).
func (c *Composer) buildCalibrationWarning(in Input) string {
	g, err := c.calc.GetConfidenceGuidance(in.Domain, &in.Confidence, domain.Namespace{})
	if err != nil || g.Status != "data_available" || g.ConfidenceGap == nil {
		return ""
	}
	gap := *g.ConfidenceGap
	if g.SampleSize < 3 || absf(gap) <= calibrationGapThreshold {
		return ""
	}

	biasType := "OVERCONFIDENT"
	if gap < 0 {
		biasType = "UNDERCONFIDENT"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Calibration Warning (Team Bias Detection)\n\n")
	fmt.Fprintf(&b, "Team is **%s** by %.0f%% in **%s** domain.\n\n", biasType, absf(gap)*100, in.Domain)
	fmt.Fprintf(&b, "### Historical Data\n")
	fmt.Fprintf(&b, "- Decisions analyzed: %.0f\n", g.SampleSize)
	fmt.Fprintf(&b, "- Actual success rate: %.0f%%\n", g.ActualSuccessRate*100)
	fmt.Fprintf(&b, "- Trend: %s\n\n", g.Trend)
	fmt.Fprintf(&b, "### Your Decision\n")
	fmt.Fprintf(&b, "- Your confidence: %.0f%%\n", in.Confidence*100)
	if g.Adjustment != nil {
		adjusted := clamp01(in.Confidence + *g.Adjustment)
		fmt.Fprintf(&b, "- Recommended: %.0f%% (adjustment %+.0f%%)\n", adjusted*100, *g.Adjustment*100)
	}
	return b.String()
}

// buildNegativeEvidence is chain 2 (priority 2): top-N NegativeKnowledge
// items for the domain (§4.G).
func (c *Composer) buildNegativeEvidence(in Input, topN int) string {
	if topN <= 0 {
		topN = defaultNegativeKnowledgeTopN
	}
	items, err := c.gs.ListNegativeKnowledgeByDomain(in.Domain)
	if err != nil || len(items) == 0 {
		return ""
	}
	if len(items) > topN {
		items = items[:topN]
	}

	var b strings.Builder
	b.WriteString("## Known Failures (Evidence-Based Warnings)\n\n")
	for _, n := range items {
		fmt.Fprintf(&b, "### %s\n", n.Hypothesis)
		fmt.Fprintf(&b, "**Conclusion:** %s\n", n.Conclusion)
		fmt.Fprintf(&b, "- Severity: %s\n", strings.ToUpper(string(n.Severity)))
		fmt.Fprintf(&b, "- Prevented future decisions: %d\n", n.PreventedCount)
		fmt.Fprintf(&b, "- Recommendation: %s\n\n", n.Recommendation)
	}
	return b.String()
}

// buildAntiPatternGuard is chain 3 (priority 3): compile each
// antipattern's regex (invalid ones are skipped with a warning, never
// fatal), scan the statement case-insensitively, emit a severity-tiered
// remediation (§4.G).
func (c *Composer) buildAntiPatternGuard(in Input) string {
	all, err := c.gs.ListAntiPatterns()
	if err != nil || len(all) == 0 {
		return ""
	}

	var detected []*domain.AntiPattern
	for _, ap := range all {
		if ap.Category != in.Domain || ap.RegexPattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + ap.RegexPattern)
		if err != nil {
			logging.Get(logging.CategoryChains).Warn("invalid antipattern regex for %s: %v", ap.ID, err)
			continue
		}
		if re.MatchString(in.Statement) {
			detected = append(detected, ap)
		}
	}
	if len(detected) == 0 {
		return ""
	}
	if len(detected) > 5 {
		detected = detected[:5]
	}

	var b strings.Builder
	b.WriteString("## AntiPattern Guard (Known Problematic Patterns)\n\n")
	fmt.Fprintf(&b, "**Statement scanned:** %s\n\n", in.Statement)
	for _, ap := range detected {
		fmt.Fprintf(&b, "### %s\n", ap.Name)
		fmt.Fprintf(&b, "- Failure rate: %.0f%%\n", ap.FailureRate*100)
		fmt.Fprintf(&b, "- Severity: %s\n", strings.ToUpper(string(ap.Severity)))
		switch {
		case ap.FailureRate > 0.70:
			b.WriteString("- **RECOMMENDATION**: Strongly reconsider this approach\n")
		case ap.FailureRate > 0.50:
			b.WriteString("- **RECOMMENDATION**: Review carefully, pattern fails often\n")
		default:
			b.WriteString("- **RECOMMENDATION**: Possible issues, verify mitigations\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// buildPositivePrecedent is chain 4 (priority 4, lowest): top-3
// successful decisions in the same domain (§4.G).
func (c *Composer) buildPositivePrecedent(ctx context.Context, in Input) string {
	patterns, err := c.extractor.ExtractPatternsForDomain(ctx, in.Domain, 1)
	if err != nil || len(patterns) == 0 {
		return ""
	}

	type precedent struct {
		decisionID string
		pattern    string
	}
	var precedents []precedent
	for _, p := range patterns {
		if p.SuccessRate <= 0 {
			continue
		}
		for _, did := range p.SupportingDecisions {
			precedents = append(precedents, precedent{decisionID: did, pattern: p.Statement})
			if len(precedents) >= 3 {
				break
			}
		}
		if len(precedents) >= 3 {
			break
		}
	}
	if len(precedents) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Positive Precedents (Successful Decisions)\n\n")
	for _, pr := range precedents {
		d, err := c.gs.GetDecision(pr.decisionID, store.CrossNamespaceFilter())
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "- **%s**\n", d.Statement)
		fmt.Fprintf(&b, "  - Confidence: %.0f%%\n", d.Confidence*100)
		fmt.Fprintf(&b, "  - Outcome: SUCCESS\n")
		fmt.Fprintf(&b, "  - Date: %s\n\n", time.Unix(d.CreatedAt, 0).UTC().Format("2006-01-02"))
	}
	return b.String()
}

// Compose runs all four chains in priority order and assembles a
// token-budgeted markdown block (§4.G). maxTokens<=0 uses the default of
// 2000; negativeKnowledgeTopN<=0 uses the default of 5.
func (c *Composer) Compose(ctx context.Context, in Input, maxTokens, negativeKnowledgeTopN int) (string, []ChainOutput, bool) {
	timer := logging.StartTimer(logging.CategoryChains, "Compose")
	defer timer.Stop()

	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	outputs := []ChainOutput{
		{Name: "calibration_warning", Priority: 1, Content: c.buildCalibrationWarning(in)},
		{Name: "negative_evidence", Priority: 2, Content: c.buildNegativeEvidence(in, negativeKnowledgeTopN)},
		{Name: "antipattern_guard", Priority: 3, Content: c.buildAntiPatternGuard(in)},
		{Name: "positive_precedent", Priority: 4, Content: c.buildPositivePrecedent(ctx, in)},
	}

	var full strings.Builder
	fmt.Fprintf(&full, "# Decision Context: %s\n\n", in.Domain)
	fmt.Fprintf(&full, "**Your Confidence:** %.0f%%\n\n", in.Confidence*100)
	for _, o := range outputs {
		if o.Content != "" {
			full.WriteString(o.Content)
			full.WriteString("\n")
		}
	}

	text := full.String()
	if estimateTokens(text) <= maxTokens {
		return text, outputs, false
	}

	metrics.ContextTruncations.Inc()
	return truncateTailFirst(outputs, in, maxTokens), outputs, true
}

// truncateTailFirst rebuilds the markdown block in priority order,
// stopping (and appending the truncation marker) as soon as adding the
// next chain would exceed max_tokens (§4.G).
func truncateTailFirst(outputs []ChainOutput, in Input, maxTokens int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Decision Context: %s (Truncated)\n\n", in.Domain)
	used := estimateTokens(b.String())

	for _, o := range outputs {
		if o.Content == "" {
			continue
		}
		chainTokens := estimateTokens(o.Content)
		if used+chainTokens > maxTokens {
			b.WriteString(truncationMarker)
			break
		}
		b.WriteString(o.Content)
		b.WriteString("\n")
		used += chainTokens
	}
	return b.String()
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
