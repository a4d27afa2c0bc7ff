// Package context implements the unified context manager of spec.md
// §4.H: a configurable plug-in pipeline that composes a single
// token-budgeted markdown payload from docshot provenance, session
// hints, calibration, negative knowledge, similar decisions, role-scoped
// skills/negative-knowledge, and behavior chains. Grounded on
// original_source/src/membria/context_manager.py's ContextManager,
// restructured from the Python's closure-keyed plugin_map into a Go
// method-per-plugin dispatch table so each plugin can be unit-tested in
// isolation.
package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/membria/membria-core/internal/calibration"
	"github.com/membria/membria-core/internal/chains"
	"github.com/membria/membria-core/internal/config"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
	"github.com/membria/membria-core/internal/metrics"
	"github.com/membria/membria-core/internal/pattern"
	"github.com/membria/membria-core/internal/store"
)

// Section priorities per §4.H (lower sorts first).
const (
	priorityDocshot               = 0
	prioritySessionContext        = 1
	priorityCalibration           = 2
	priorityNegativeKnowledge     = 3
	priorityRoleNegativeKnowledge = 3
	prioritySimilarDecisions      = 4
	priorityRoleSkills            = 4
	priorityBehaviorChains        = 5
)

var defaultPluginOrder = []string{
	"docshot", "session_context", "calibration", "negative_knowledge",
	"role_negative_knowledge", "similar_decisions", "role_skills", "behavior_chains",
}

const minRemainingTokensForPartialFit = 20

// Section is one plug-in's rendered output, keyed for sorting and
// reporting in sections_included (§4.H).
type Section struct {
	Name     string
	Content  string
	Priority int
}

func (s Section) tokens() int { return estimateTokens(s.Content) }

func estimateTokens(s string) int { return len(s) / 4 }

// Surface is the raw retrieval result behind the similar_decisions/
// negative_knowledge/calibration sections, returned verbatim to the
// caller per §4.H.
type Surface struct {
	SimilarDecisions  []*domain.Decision
	NegativeKnowledge []*domain.NegativeKnowledge
	Calibration       *calibration.Guidance
}

// Request is build_decision_context's full parameter set (§4.H).
type Request struct {
	Statement             string
	Module                string
	Confidence            float64
	MaxTokens             int
	IncludeChains         bool
	DocShot               *domain.DocShot
	SessionContext        *domain.SessionContext
	RoleSkills            []*domain.Skill
	RoleNegativeKnowledge []*domain.NegativeKnowledge
}

// Result is build_decision_context's return shape (§4.H).
type Result struct {
	CompactContext   string
	TotalTokens      int
	Truncated        bool
	SectionsIncluded []string
	Surface          *Surface
}

// Manager assembles the unified context payload from every plug-in.
type Manager struct {
	gs          *store.GraphStore
	calc        *calibration.Engine
	extractor   *pattern.Extractor
	composer    *chains.Composer
	pluginOrder []string
}

// New constructs a Manager, reading context_plugins from cfg (falling
// back to the §4.H default order) and ensuring the role plug-ins are
// always present per the original's "ensure role-specific plugins"
// guarantee.
func New(gs *store.GraphStore, calc *calibration.Engine, extractor *pattern.Extractor, composer *chains.Composer, cfg *config.Store) *Manager {
	order := defaultPluginOrder
	if cfg != nil {
		if configured := cfg.GetList("context_plugins"); len(configured) > 0 {
			order = configured
		}
	}
	order = ensurePresent(order, "role_negative_knowledge")
	order = ensurePresent(order, "role_skills")
	return &Manager{gs: gs, calc: calc, extractor: extractor, composer: composer, pluginOrder: order}
}

func ensurePresent(order []string, name string) []string {
	for _, o := range order {
		if o == name {
			return order
		}
	}
	return append(order, name)
}

// BuildDecisionContext implements §4.H's single entry point: runs every
// configured plug-in (skipping unknown names), sorts by priority, and
// compacts under MaxTokens. Plug-in failures are logged and skipped —
// they never fail the composition.
func (m *Manager) BuildDecisionContext(ctx context.Context, req Request) Result {
	timer := logging.StartTimer(logging.CategoryContext, "BuildDecisionContext")
	defer timer.Stop()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	surface := m.buildSurface(req.Module)

	builders := map[string]func() Section{
		"docshot":                 func() Section { return m.docshotSection(req.DocShot) },
		"session_context":         func() Section { return m.sessionSection(req.SessionContext) },
		"calibration":             func() Section { return m.calibrationSection(surface) },
		"negative_knowledge":      func() Section { return m.negativeKnowledgeSection(surface) },
		"role_negative_knowledge": func() Section { return m.roleNegativeKnowledgeSection(req.RoleNegativeKnowledge) },
		"similar_decisions":       func() Section { return m.similarDecisionsSection(surface) },
		"role_skills":             func() Section { return m.roleSkillsSection(req.RoleSkills) },
		"behavior_chains":         func() Section { return m.behaviorChainsSection(ctx, req, maxTokens) },
	}

	var sections []Section
	for _, name := range m.pluginOrder {
		builder, ok := builders[name]
		if !ok {
			continue
		}
		section := m.safeBuild(name, builder)
		if section.Content != "" {
			sections = append(sections, section)
		}
	}

	return m.compact(sections, maxTokens, &surface)
}

// safeBuild runs a plug-in, converting a panic into a logged-and-skipped
// empty section so one broken plug-in never fails the whole composition.
func (m *Manager) safeBuild(name string, build func() Section) (section Section) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryContext).Warn("context plugin %s panicked: %v", name, r)
			section = Section{}
		}
	}()
	return build()
}

func (m *Manager) buildSurface(module string) Surface {
	var surface Surface

	patterns, err := m.extractor.ExtractPatternsForDomain(context.Background(), module, 1)
	if err != nil {
		logging.Get(logging.CategoryContext).Warn("surface: pattern extraction failed for %s: %v", module, err)
	} else {
		seen := 0
		for _, p := range patterns {
			for _, id := range p.SupportingDecisions {
				d, err := m.gs.GetDecision(id, store.CrossNamespaceFilter())
				if err != nil {
					continue
				}
				surface.SimilarDecisions = append(surface.SimilarDecisions, d)
				seen++
				if seen >= 5 {
					break
				}
			}
			if seen >= 5 {
				break
			}
		}
	}

	if nk, err := m.gs.ListNegativeKnowledgeByDomain(module); err == nil {
		surface.NegativeKnowledge = nk
	} else {
		logging.Get(logging.CategoryContext).Warn("surface: negative knowledge lookup failed for %s: %v", module, err)
	}

	if guidance, err := m.calc.GetConfidenceGuidance(module, nil, domain.Namespace{}); err == nil && guidance.Status == "data_available" {
		surface.Calibration = guidance
	}

	return surface
}

func (m *Manager) docshotSection(d *domain.DocShot) Section {
	if d == nil {
		return Section{}
	}
	var b strings.Builder
	b.WriteString("## DocShot (Provenance)\n")
	fmt.Fprintf(&b, "- DocShot ID: %s\n", truncateText(d.ID, 80))
	fmt.Fprintf(&b, "- Documents: %d\n", len(d.DocumentIDs))
	return Section{Name: "docshot", Content: b.String(), Priority: priorityDocshot}
}

func (m *Manager) sessionSection(s *domain.SessionContext) Section {
	if s == nil {
		return Section{}
	}
	var b strings.Builder
	b.WriteString("## Session Context\n")
	if s.Task != "" {
		fmt.Fprintf(&b, "- Task: %s\n", truncateText(s.Task, 200))
	}
	if s.Focus != "" {
		fmt.Fprintf(&b, "- Focus: %s\n", truncateText(s.Focus, 200))
	}
	for i, plan := range s.CurrentPlan {
		if i >= 1 {
			break
		}
		fmt.Fprintf(&b, "- Plan: %s\n", truncateText(plan, 280))
	}
	for i, c := range s.Constraints {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "- Constraint: %s\n", truncateText(c, 160))
	}
	return Section{Name: "session_context", Content: b.String(), Priority: prioritySessionContext}
}

func (m *Manager) calibrationSection(surface Surface) Section {
	if surface.Calibration == nil {
		return Section{}
	}
	g := surface.Calibration
	var b strings.Builder
	b.WriteString("## Team Calibration\n")
	fmt.Fprintf(&b, "- Success rate: %.0f%%\n", g.ActualSuccessRate*100)
	gap := 0.0
	if g.ConfidenceGap != nil {
		gap = *g.ConfidenceGap
	}
	fmt.Fprintf(&b, "- Confidence gap: %+.0f%%\n", gap*100)
	fmt.Fprintf(&b, "- Sample size: %.0f\n", g.SampleSize)
	return Section{Name: "calibration", Content: b.String(), Priority: priorityCalibration}
}

func (m *Manager) negativeKnowledgeSection(surface Surface) Section {
	if len(surface.NegativeKnowledge) == 0 {
		return Section{}
	}
	items := surface.NegativeKnowledge
	if len(items) > 5 {
		items = items[:5]
	}
	var b strings.Builder
	b.WriteString("## Negative Knowledge (Avoid)\n")
	for _, n := range items {
		fmt.Fprintf(&b, "- %s: %s\n", truncateText(n.Hypothesis, 120), truncateText(n.Recommendation, 160))
	}
	return Section{Name: "negative_knowledge", Content: b.String(), Priority: priorityNegativeKnowledge}
}

func (m *Manager) roleNegativeKnowledgeSection(items []*domain.NegativeKnowledge) Section {
	if len(items) == 0 {
		return Section{}
	}
	if len(items) > 5 {
		items = items[:5]
	}
	var b strings.Builder
	b.WriteString("## Role Negative Knowledge (Avoid)\n")
	for _, n := range items {
		fmt.Fprintf(&b, "- %s: %s\n", truncateText(n.Hypothesis, 120), truncateText(n.Recommendation, 160))
	}
	return Section{Name: "role_negative_knowledge", Content: b.String(), Priority: priorityRoleNegativeKnowledge}
}

func (m *Manager) similarDecisionsSection(surface Surface) Section {
	if len(surface.SimilarDecisions) == 0 {
		return Section{}
	}
	items := surface.SimilarDecisions
	if len(items) > 5 {
		items = items[:5]
	}
	var b strings.Builder
	b.WriteString("## Similar Decisions\n")
	for _, d := range items {
		fmt.Fprintf(&b, "- %s (%s)\n", truncateText(d.Statement, 160), d.Status)
	}
	return Section{Name: "similar_decisions", Content: b.String(), Priority: prioritySimilarDecisions}
}

func (m *Manager) roleSkillsSection(items []*domain.Skill) Section {
	if len(items) == 0 {
		return Section{}
	}
	if len(items) > 5 {
		items = items[:5]
	}
	var b strings.Builder
	b.WriteString("## Role Skills (Use)\n")
	for _, s := range items {
		fmt.Fprintf(&b, "- %s (v%d)\n", s.Domain, s.Version)
	}
	return Section{Name: "role_skills", Content: b.String(), Priority: priorityRoleSkills}
}

func (m *Manager) behaviorChainsSection(ctx context.Context, req Request, maxTokens int) Section {
	if !req.IncludeChains || m.composer == nil {
		return Section{}
	}
	text, _, _ := m.composer.Compose(ctx, chains.Input{Domain: req.Module, Statement: req.Statement, Confidence: req.Confidence}, maxTokens, 0)
	if text == "" {
		return Section{}
	}
	return Section{Name: "behavior_chains", Content: text, Priority: priorityBehaviorChains}
}

// compact implements §4.H's compaction rule: sort ascending by priority,
// emit whole sections while they fit, emit a truncated prefix once <20
// tokens remain is false (i.e. >=20 remain), else stop with the
// truncation marker.
func (m *Manager) compact(sections []Section, maxTokens int, surface *Surface) Result {
	if len(sections) == 0 {
		return Result{Surface: surface}
	}

	sortSectionsByPriority(sections)

	header := "# Decision Context (Unified)\n"
	var b strings.Builder
	b.WriteString(header)
	used := estimateTokens(header)

	var included []string
	truncated := false

	for _, s := range sections {
		content := strings.TrimSpace(s.Content) + "\n"
		sTokens := estimateTokens(content)
		if used+sTokens <= maxTokens {
			b.WriteString(content)
			used += sTokens
			included = append(included, s.Name)
			continue
		}
		remaining := maxTokens - used
		if remaining >= minRemainingTokensForPartialFit {
			chars := remaining * 4
			if chars > len(content) {
				chars = len(content)
			}
			snippet := strings.TrimRight(content[:chars], " \t\n")
			b.WriteString(snippet)
			b.WriteString("\n")
			used += estimateTokens(snippet)
			included = append(included, s.Name)
		}
		truncated = true
		break
	}

	if truncated {
		b.WriteString("*[Context truncated to fit token budget]*\n")
		metrics.ContextTruncations.Inc()
	}

	return Result{
		CompactContext:   strings.TrimSpace(b.String()) + "\n",
		TotalTokens:      used,
		Truncated:        truncated,
		SectionsIncluded: included,
		Surface:          surface,
	}
}

func sortSectionsByPriority(s []Section) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Priority < s[j-1].Priority; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	return s[:maxLen]
}
