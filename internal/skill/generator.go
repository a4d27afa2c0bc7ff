// Package skill implements the skill generator of spec.md §4.F:
// templating a versioned, zoned procedure document from a domain's
// qualifying patterns, its calibration profile, and its top
// negative-knowledge items. Grounded on
// original_source/src/membria/skill_models.py's Skill dataclass (fields
// carried over verbatim into domain.Skill) and skill_commands.py's
// regeneration/versioning flow.
package skill

import (
	"context"
	"fmt"
	"strings"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/calibration"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
	"github.com/membria/membria-core/internal/pattern"
	"github.com/membria/membria-core/internal/store"
)

const (
	defaultMinPatterns   = 3
	defaultMinSampleSize = 3
	negativeKnowledgeTopN = 5
)

// Generator produces and versions Skill documents for a domain.
type Generator struct {
	gs         *store.GraphStore
	extractor  *pattern.Extractor
	calc       *calibration.Engine
	now        func() int64
}

// New constructs a skill Generator over the store/pattern/calibration
// layers it templates from.
func New(gs *store.GraphStore, extractor *pattern.Extractor, calc *calibration.Engine, now func() int64) *Generator {
	return &Generator{gs: gs, extractor: extractor, calc: calc, now: now}
}

// GenerateSkill implements §4.F: requires at least minPatterns qualifying
// patterns (each already filtered by minSampleSize inside the pattern
// extractor), classifies them into green/yellow/red zones, takes
// confidence from the domain's calibration mean, computes quality_score,
// assembles the markdown procedure, and versions the result with a
// VERSION_OF edge to the prior skill.
func (g *Generator) GenerateSkill(ctx context.Context, dom string, minPatterns, minSampleSize int) (*domain.Skill, error) {
	timer := logging.StartTimer(logging.CategorySkill, "GenerateSkill")
	defer timer.Stop()

	if minPatterns <= 0 {
		minPatterns = defaultMinPatterns
	}
	if minSampleSize <= 0 {
		minSampleSize = defaultMinSampleSize
	}

	patterns, err := g.extractor.ExtractPatternsForDomain(ctx, dom, minSampleSize)
	if err != nil {
		return nil, err
	}
	if len(patterns) < minPatterns {
		return nil, apperr.New(apperr.InvalidArgument,
			"domain %s has %d qualifying pattern(s), need at least %d", dom, len(patterns), minPatterns)
	}

	var green, yellow, red []string
	var totalSamples int
	var weightedSuccess float64
	var decisionIDs []string
	for _, p := range patterns {
		switch domain.ZoneOf(p.SuccessRate) {
		case "green":
			green = append(green, p.Statement)
		case "yellow":
			yellow = append(yellow, p.Statement)
		default:
			red = append(red, p.Statement)
		}
		totalSamples += p.SampleSize
		weightedSuccess += p.SuccessRate * float64(p.SampleSize)
		decisionIDs = append(decisionIDs, p.SupportingDecisions...)
	}
	successRate := 0.0
	if totalSamples > 0 {
		successRate = weightedSuccess / float64(totalSamples)
	}

	guidance, err := g.calc.GetConfidenceGuidance(dom, nil, domain.Namespace{})
	if err != nil {
		return nil, err
	}
	confidence := successRate
	if guidance.Status == "data_available" {
		confidence = guidance.ActualSuccessRate
	}

	negKnowledge, err := g.gs.ListNegativeKnowledgeByDomain(dom)
	if err != nil {
		return nil, err
	}

	qualityScore := domain.QualityScoreOf(successRate, totalSamples)
	version := 1
	var predecessor *domain.Skill
	if prev, err := g.gs.GetLatestSkill(dom, store.CrossNamespaceFilter()); err == nil {
		predecessor = prev
		version = prev.Version + 1
	}

	id := fmt.Sprintf("sk-%s-v%d", dom, version)
	skill := &domain.Skill{
		ID:                     id,
		Domain:                 dom,
		Version:                version,
		SuccessRate:            successRate,
		Confidence:             confidence,
		SampleSize:             totalSamples,
		QualityScore:           qualityScore,
		GreenZone:              green,
		YellowZone:             yellow,
		RedZone:                red,
		GeneratedFromDecisions: decisionIDs,
		IsActive:               true,
	}
	skill.Procedure = renderProcedure(skill, negKnowledge, guidance)

	if err := g.gs.PutSkill(skill); err != nil {
		return nil, err
	}
	if predecessor != nil {
		if err := g.gs.DeactivateSkill(predecessor.ID); err != nil {
			return nil, err
		}
		if err := g.gs.StoreEdge(domain.Edge{FromID: skill.ID, Type: domain.EdgeVersionOf, ToID: predecessor.ID, Weight: 1}); err != nil {
			return nil, err
		}
	}
	for _, did := range decisionIDs {
		if err := g.gs.StoreEdge(domain.Edge{FromID: skill.ID, Type: domain.EdgeGeneratedFrom, ToID: did, Weight: 1}); err != nil {
			logging.Get(logging.CategorySkill).Warn("failed to link skill %s to decision %s: %v", skill.ID, did, err)
		}
	}

	return skill, nil
}

// renderProcedure assembles the markdown procedure document. The zones
// and calibration numbers appear verbatim per §4.F's freedom-of-template
// clause.
func renderProcedure(s *domain.Skill, negKnowledge []*domain.NegativeKnowledge, guidance *calibration.Guidance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s procedure (v%d)\n\n", s.Domain, s.Version)
	fmt.Fprintf(&b, "success_rate=%.2f confidence=%.2f sample_size=%d quality_score=%.2f\n\n", s.SuccessRate, s.Confidence, s.SampleSize, s.QualityScore)

	b.WriteString("## Green zone (use confidently)\n")
	writeZoneList(&b, s.GreenZone)
	b.WriteString("\n## Yellow zone (review carefully)\n")
	writeZoneList(&b, s.YellowZone)
	b.WriteString("\n## Red zone (avoid)\n")
	writeZoneList(&b, s.RedZone)

	if guidance != nil && guidance.Status == "data_available" {
		fmt.Fprintf(&b, "\n## Calibration summary\n")
		fmt.Fprintf(&b, "actual_success_rate=%.2f trend=%s sample_size=%.0f credible_interval_95=[%.2f, %.2f]\n",
			guidance.ActualSuccessRate, guidance.Trend, guidance.SampleSize,
			guidance.CredibleInterval95Lo, guidance.CredibleInterval95Hi)
	}

	if len(negKnowledge) > 0 {
		b.WriteString("\n## Known failure modes\n")
		top := negKnowledge
		if len(top) > negativeKnowledgeTopN {
			top = top[:negativeKnowledgeTopN]
		}
		for _, n := range top {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", n.Severity, n.Hypothesis, n.Conclusion)
		}
	}

	return b.String()
}

func writeZoneList(b *strings.Builder, items []string) {
	if len(items) == 0 {
		b.WriteString("(none)\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

// Readiness is the per-domain get_skill_readiness response shape (§4.F).
type Readiness struct {
	Domain          string
	Ready           bool
	Patterns        int
	HasCalibration  bool
	Reason          string
}

// GetSkillReadiness reports, per domain, whether enough qualifying
// patterns and calibration data exist to generate a skill (§4.F).
func (g *Generator) GetSkillReadiness(ctx context.Context, domains []string, minPatterns, minSampleSize int) ([]Readiness, error) {
	if minPatterns <= 0 {
		minPatterns = defaultMinPatterns
	}
	if minSampleSize <= 0 {
		minSampleSize = defaultMinSampleSize
	}

	out := make([]Readiness, 0, len(domains))
	for _, dom := range domains {
		patterns, err := g.extractor.ExtractPatternsForDomain(ctx, dom, minSampleSize)
		if err != nil {
			out = append(out, Readiness{Domain: dom, Reason: err.Error()})
			continue
		}
		guidance, err := g.calc.GetConfidenceGuidance(dom, nil, domain.Namespace{})
		if err != nil {
			out = append(out, Readiness{Domain: dom, Reason: err.Error()})
			continue
		}
		hasCalibration := guidance.Status == "data_available"

		r := Readiness{Domain: dom, Patterns: len(patterns), HasCalibration: hasCalibration}
		switch {
		case len(patterns) < minPatterns:
			r.Reason = fmt.Sprintf("only %d qualifying pattern(s), need %d", len(patterns), minPatterns)
		case !hasCalibration:
			r.Reason = "no calibration data for domain yet"
		default:
			r.Ready = true
		}
		out = append(out, r)
	}
	return out, nil
}
