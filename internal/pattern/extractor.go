// Package pattern implements the pattern extractor of spec.md §4.E: mining
// recurring technology choices from a domain's finalized decisions,
// scoring their success rate, and flagging conflicting patterns. Grounded
// on original_source/src/membria/pattern_extractor.py's keyword catalog
// and conflict-detection rule, restructured around the teacher's
// concurrent-fetch idiom using golang.org/x/sync/errgroup for the
// decision-to-outcome join.
package pattern

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
	"github.com/membria/membria-core/internal/store"
)

// keywordCatalog is the curated technology catalog used for pattern-key
// extraction (§4.E step (i)), grounded on the original Python extractor's
// per-category keyword lists.
var keywordCatalog = map[string][]string{
	"database":   {"PostgreSQL", "MongoDB", "SQLite", "MySQL", "Redis", "DynamoDB"},
	"auth":       {"Auth0", "JWT", "OAuth", "Firebase", "Cognito", "Keycloak"},
	"api":        {"REST", "GraphQL", "gRPC", "FastAPI", "Express", "Django"},
	"cache":      {"Redis", "Memcached", "Varnish", "CloudFlare"},
	"messaging":  {"RabbitMQ", "Kafka", "SQS", "Pub/Sub"},
	"storage":    {"S3", "GCS", "Azure Blob", "MinIO"},
	"monitoring": {"Datadog", "New Relic", "Prometheus", "CloudWatch"},
}

var flatKeywords = buildFlatKeywords()

func buildFlatKeywords() []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range keywordCatalog {
		for _, kw := range list {
			lower := strings.ToLower(kw)
			if !seen[lower] {
				seen[lower] = true
				out = append(out, kw)
			}
		}
	}
	// Deterministic order regardless of map iteration, longest-first so a
	// multi-word keyword like "Azure Blob" matches before a shorter one.
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// ExtractPatternKey implements §4.E's three-tier extraction: curated
// keyword match, then first capitalized word, then the raw statement.
func ExtractPatternKey(statement string) string {
	if statement == "" {
		return "unknown"
	}
	lower := strings.ToLower(statement)
	for _, kw := range flatKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw
		}
	}
	for _, word := range strings.Fields(statement) {
		trimmed := strings.Trim(word, ".,;:")
		if trimmed != "" && isUpper(rune(trimmed[0])) {
			return trimmed
		}
	}
	return strings.TrimSpace(statement)
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

// Pattern is one extracted pattern key with its outcome statistics
// (§4.E).
type Pattern struct {
	Statement           string
	SuccessRate         float64
	SampleSize          int
	SupportingDecisions []string
}

// Extractor mines patterns from a graph store's decisions and outcomes.
type Extractor struct {
	gs *store.GraphStore
}

// New constructs an Extractor over an already-open graph store.
func New(gs *store.GraphStore) *Extractor {
	return &Extractor{gs: gs}
}

type decisionOutcome struct {
	decision *domain.Decision
	status   domain.FinalStatus
	has      bool
}

// fetchOutcomes resolves each decision's finalized outcome concurrently,
// skipping decisions with no finalized outcome.
func (e *Extractor) fetchOutcomes(ctx context.Context, decisions []*domain.Decision) ([]decisionOutcome, error) {
	results := make([]decisionOutcome, len(decisions))
	g, _ := errgroup.WithContext(ctx)
	for i, d := range decisions {
		i, d := i, d
		g.Go(func() error {
			o, err := e.gs.GetOutcomeByDecision(d.ID)
			if err != nil {
				results[i] = decisionOutcome{decision: d}
				return nil
			}
			if !o.Finalized() {
				results[i] = decisionOutcome{decision: d}
				return nil
			}
			results[i] = decisionOutcome{decision: d, status: o.FinalStatus, has: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ExtractPatternsForDomain implements §4.E's full algorithm: fetch,
// group by pattern key, score, filter by min_sample_size, sort descending
// by success_rate.
func (e *Extractor) ExtractPatternsForDomain(ctx context.Context, dom string, minSampleSize int) ([]Pattern, error) {
	timer := logging.StartTimer(logging.CategoryPattern, "ExtractPatternsForDomain")
	defer timer.Stop()

	if minSampleSize <= 0 {
		minSampleSize = 3
	}

	decisions, err := e.gs.ListDecisionsByModule(dom, store.CrossNamespaceFilter())
	if err != nil {
		return nil, err
	}
	if len(decisions) == 0 {
		return nil, nil
	}

	resolved, err := e.fetchOutcomes(ctx, decisions)
	if err != nil {
		return nil, err
	}

	type group struct {
		successes, total int
		ids               []string
	}
	groups := make(map[string]*group)
	for _, r := range resolved {
		if !r.has {
			continue
		}
		key := ExtractPatternKey(r.decision.Statement)
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.total++
		g.ids = append(g.ids, r.decision.ID)
		if r.status == domain.FinalSuccess {
			g.successes++
		}
	}

	var patterns []Pattern
	for key, g := range groups {
		if g.total < minSampleSize {
			continue
		}
		patterns = append(patterns, Pattern{
			Statement:           key,
			SuccessRate:         float64(g.successes) / float64(g.total),
			SampleSize:          g.total,
			SupportingDecisions: g.ids,
		})
	}

	sort.Slice(patterns, func(i, j int) bool { return patterns[i].SuccessRate > patterns[j].SuccessRate })
	return patterns, nil
}

// DomainStats summarizes a domain's extracted patterns (§4.E auxiliary
// per-domain stats).
type DomainStats struct {
	Domain                  string
	TotalPatterns           int
	TotalDecisions          int
	AvgSuccessRate          float64
	HighConfidencePatterns  int // success_rate > 0.75
	MediumConfidencePatterns int
	LowConfidencePatterns   int // success_rate < 0.50
}

// GetPatternStats computes DomainStats using min_sample_size=1 so every
// observed pattern contributes, mirroring the original extractor's
// statistics pass.
func (e *Extractor) GetPatternStats(ctx context.Context, dom string) (DomainStats, error) {
	patterns, err := e.ExtractPatternsForDomain(ctx, dom, 1)
	if err != nil {
		return DomainStats{}, err
	}
	stats := DomainStats{Domain: dom}
	if len(patterns) == 0 {
		return stats, nil
	}
	var weighted float64
	for _, p := range patterns {
		stats.TotalPatterns++
		stats.TotalDecisions += p.SampleSize
		weighted += p.SuccessRate * float64(p.SampleSize)
		switch {
		case p.SuccessRate > 0.75:
			stats.HighConfidencePatterns++
		case p.SuccessRate < 0.50:
			stats.LowConfidencePatterns++
		default:
			stats.MediumConfidencePatterns++
		}
	}
	if stats.TotalDecisions > 0 {
		stats.AvgSuccessRate = weighted / float64(stats.TotalDecisions)
	}
	return stats, nil
}

// Conflict is a pair of patterns that both succeed often enough to be
// viable but represent different choices (§4.E).
type Conflict struct {
	First, Second Pattern
}

// DetectConflictingPatterns finds pattern pairs where both have
// success_rate > 0.60 and neither statement is a substring of the other
// (§4.E).
func (e *Extractor) DetectConflictingPatterns(ctx context.Context, dom string) ([]Conflict, error) {
	patterns, err := e.ExtractPatternsForDomain(ctx, dom, 3)
	if err != nil {
		return nil, err
	}
	var conflicts []Conflict
	for i := 0; i < len(patterns); i++ {
		for j := i + 1; j < len(patterns); j++ {
			p1, p2 := patterns[i], patterns[j]
			if p1.SuccessRate > 0.60 && p2.SuccessRate > 0.60 && !isSubstring(p1.Statement, p2.Statement) && !isSubstring(p2.Statement, p1.Statement) {
				conflicts = append(conflicts, Conflict{First: p1, Second: p2})
			}
		}
	}
	return conflicts, nil
}

func isSubstring(a, b string) bool {
	return strings.Contains(strings.ToLower(b), strings.ToLower(a))
}
