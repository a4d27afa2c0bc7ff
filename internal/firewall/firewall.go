// Package firewall implements the red-flag firewall of spec.md §4.I:
// five detectors scored and aggregated into a BLOCK/WARN/ALLOW verdict
// before a risky decision is recorded. Grounded on
// original_source/src/membria/red_flags.py (RedFlagDetector's five
// checks and severity weights) and firewall.py (Firewall.evaluate's
// should_block/should_warn thresholds and message rendering).
package firewall

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/membria/membria-core/internal/config"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
	"github.com/membria/membria-core/internal/metrics"
	"github.com/membria/membria-core/internal/store"
)

func compileCaseInsensitive(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

// Verdict is the firewall's allow/warn/block outcome (§4.I).
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictWarn  Verdict = "warn"
	VerdictBlock Verdict = "block"
)

var overconfidentWords = []string{
	"definitely", "obviously", "always", "never",
	"certainly", "absolutely", "100%", "guaranteed",
	"the best", "perfect", "foolproof", "unquestionably",
}

// Flag is a single detected red flag (§4.I).
type Flag struct {
	ID             string
	Name           string
	Description    string
	Severity       domain.Severity
	Evidence       string
	Recommendation string
}

// Request is a decision's risk-relevant context at evaluation time.
type Request struct {
	Statement    string
	Domain       string
	Confidence   float64
	Alternatives []string
	TimePressure bool
}

// Result is the firewall's evaluation output (§4.I).
type Result struct {
	Verdict          Verdict
	RiskScore        float64
	Flags            []Flag
	Message          string
	OverrideRequired bool
}

// Firewall evaluates decisions against the five red-flag detectors.
type Firewall struct {
	gs  *store.GraphStore
	cfg *config.Store
}

// New constructs a Firewall. cfg may be nil; it is stored on the
// Firewall but Evaluate does not read it.
func New(gs *store.GraphStore, cfg *config.Store) *Firewall {
	return &Firewall{gs: gs, cfg: cfg}
}

// Evaluate runs all five detectors against req, scores risk, and
// returns a BLOCK/WARN/ALLOW verdict (§4.I). Antipattern matching scans
// every registered antipattern whose regex compiles and matches the
// statement; a broken regex is skipped with a warning, never fatal.
func (f *Firewall) Evaluate(req Request) Result {
	timer := logging.StartTimer(logging.CategoryFirewall, "Evaluate")
	defer timer.Stop()

	var flags []Flag

	if req.Confidence < 0.5 {
		flags = append(flags, flagLowConfidence(req.Confidence, req.Alternatives))
	}
	if len(req.Alternatives) < 2 {
		flags = append(flags, flagNoAlternatives())
	}
	for _, name := range f.detectAntipatterns(req.Domain, req.Statement) {
		flags = append(flags, flagAntipattern(name))
	}
	if req.Confidence > 0.85 && hasOverconfidentLanguage(req.Statement) {
		flags = append(flags, flagOverconfidentLanguage())
	}
	if req.TimePressure {
		flags = append(flags, flagTimePressure())
	}

	riskScore := calculateRiskScore(flags)
	verdict := classify(flags)
	metrics.FirewallVerdicts.WithLabelValues(string(verdict)).Inc()

	return Result{
		Verdict:          verdict,
		RiskScore:        riskScore,
		Flags:            flags,
		Message:          renderMessage(verdict, flags, riskScore),
		OverrideRequired: verdict == VerdictBlock,
	}
}

// detectAntipatterns scans statement against every registered
// antipattern's regex (case-insensitively), returning the names of
// those that match. When dom is non-empty, only antipatterns registered
// under that category are considered. Invalid regexes are logged and
// skipped.
func (f *Firewall) detectAntipatterns(dom, statement string) []string {
	all, err := f.gs.ListAntiPatterns()
	if err != nil {
		logging.Get(logging.CategoryFirewall).Warn("antipattern lookup failed: %v", err)
		return nil
	}
	var names []string
	for _, ap := range all {
		if ap.RegexPattern == "" {
			continue
		}
		if dom != "" && ap.Category != dom {
			continue
		}
		re, err := compileCaseInsensitive(ap.RegexPattern)
		if err != nil {
			logging.Get(logging.CategoryFirewall).Warn("invalid antipattern regex for %s: %v", ap.ID, err)
			continue
		}
		if re.MatchString(statement) {
			names = append(names, ap.Name)
		}
	}
	return names
}

func flagLowConfidence(confidence float64, alternatives []string) Flag {
	hasAlts := len(alternatives) >= 2
	severity := domain.SeverityCritical
	evidence := fmt.Sprintf("Confidence is %d%% AND no alternatives considered", int(confidence*100))
	recommendation := "BLOCK: Generate alternatives first"
	if hasAlts {
		severity = domain.SeverityLow
		evidence = fmt.Sprintf("Confidence is %d%%, but alternatives exist", int(confidence*100))
		recommendation = "Proceed carefully - consider more exploration time"
	}
	return Flag{
		ID: "low_confidence", Name: "Low Confidence Without Alternatives",
		Description: "Decision made with low confidence and no backup options",
		Severity:    severity, Evidence: evidence, Recommendation: recommendation,
	}
}

func flagNoAlternatives() Flag {
	return Flag{
		ID: "no_alternatives", Name: "No Alternatives Considered",
		Description: "Only one option was evaluated", Severity: domain.SeverityMedium,
		Evidence:       "Zero or one alternative listed",
		Recommendation: "Brainstorm at least 2-3 alternatives before deciding",
	}
}

func flagAntipattern(name string) Flag {
	return Flag{
		ID: "antipattern_detected", Name: fmt.Sprintf("Known Antipattern: %s", name),
		Description: fmt.Sprintf("Decision mentions %q which is a known problematic pattern", name),
		Severity:    domain.SeverityHigh,
		Evidence:    fmt.Sprintf("%q is removed in 80%%+ of codebases", name),
		Recommendation: "Avoid this pattern. Use proven alternatives instead.",
	}
}

func flagOverconfidentLanguage() Flag {
	return Flag{
		ID: "overconfident", Name: "Overconfident Language",
		Description: "Strong certainty claims without evidence", Severity: domain.SeverityMedium,
		Evidence:       "Words like 'definitely', 'obviously', 'always' used without qualification",
		Recommendation: "Add evidence or caveats. Be more precise about what you know.",
	}
}

func flagTimePressure() Flag {
	return Flag{
		ID: "time_pressure", Name: "Time Pressure Detected",
		Description: "Decision made under time constraints", Severity: domain.SeverityMedium,
		Evidence:       "Quick decision without proper analysis",
		Recommendation: "Slow down if possible. Take 10 minutes to reconsider.",
	}
}

func hasOverconfidentLanguage(statement string) bool {
	lower := strings.ToLower(statement)
	for _, word := range overconfidentWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// calculateRiskScore sums each flag's severity weight and normalizes by
// 3.0, clamped to 1.0 (§4.I).
func calculateRiskScore(flags []Flag) float64 {
	if len(flags) == 0 {
		return 0
	}
	var total float64
	for _, f := range flags {
		total += f.Severity.Weight()
	}
	score := total / 3.0
	if score > 1 {
		score = 1
	}
	return score
}

// classify implements should_block/should_warn: BLOCK on any CRITICAL
// flag or 2+ HIGH flags; else WARN on 1+ HIGH or 2+ MEDIUM; else ALLOW
// (§4.I).
func classify(flags []Flag) Verdict {
	var high, medium int
	for _, f := range flags {
		switch f.Severity {
		case domain.SeverityCritical:
			return VerdictBlock
		case domain.SeverityHigh:
			high++
		case domain.SeverityMedium:
			medium++
		}
	}
	if high >= 2 {
		return VerdictBlock
	}
	if high >= 1 || medium >= 2 {
		return VerdictWarn
	}
	return VerdictAllow
}

var severityIcon = map[domain.Severity]string{
	domain.SeverityLow:      "[low]",
	domain.SeverityMedium:   "[medium]",
	domain.SeverityHigh:     "[high]",
	domain.SeverityCritical: "[critical]",
}

// renderMessage builds the user-facing firewall report (§4.I).
func renderMessage(verdict Verdict, flags []Flag, riskScore float64) string {
	var b strings.Builder
	switch verdict {
	case VerdictAllow:
		b.WriteString("Decision looks good")
	case VerdictWarn:
		b.WriteString("Warning: this decision has some risks")
	case VerdictBlock:
		b.WriteString("BLOCKED: this decision is too risky")
	}
	fmt.Fprintf(&b, "\n\nRisk score: %d%%\n", int(riskScore*100))

	if len(flags) > 0 {
		b.WriteString("\nRed flags:\n")
		for _, f := range flags {
			fmt.Fprintf(&b, "  %s %s\n      %s\n", severityIcon[f.Severity], f.Name, f.Evidence)
		}
		b.WriteString("\nWhat to do:\n")
		for i, f := range flags {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, f.Recommendation)
		}
	}

	switch verdict {
	case VerdictBlock:
		b.WriteString("\nTo proceed anyway, use: --force --reason 'explanation'\n")
	case VerdictWarn:
		b.WriteString("\nYou can proceed with: --force\n")
	}

	return b.String()
}
