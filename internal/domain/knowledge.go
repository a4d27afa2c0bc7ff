package domain

import "math"

// Severity is a shared severity scale used by NegativeKnowledge,
// AntiPattern and the firewall's red-flag findings.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityWeight = map[Severity]float64{
	SeverityLow:      0.2,
	SeverityMedium:   0.4,
	SeverityHigh:      0.7,
	SeverityCritical: 1.0,
}

// Weight returns the firewall risk-score weight for a severity (§4.I).
func (s Severity) Weight() float64 { return severityWeight[s] }

// NegativeKnowledge is a recorded failure class: a hypothesis that was
// tried and found to fail, with a recommendation to avoid repeating it
// (§3).
type NegativeKnowledge struct {
	ID              string
	Namespace       Namespace
	Lifecycle       Lifecycle
	Hypothesis      string
	Conclusion      string
	Domain          string
	Severity        Severity
	Recommendation  string
	PreventedCount  int // monotonic counter
	DiscoveredAt    int64
}

// Valid reports whether the required fields (severity, domain) are
// present, per the §3 invariant.
func (n *NegativeKnowledge) Valid() bool {
	return n.Domain != "" && n.Severity != ""
}

// AntiPattern is a regex-detectable problematic pattern (§3).
type AntiPattern struct {
	ID            string
	Namespace     Namespace
	Name          string
	Category      string // domain
	Severity      Severity
	FailureRate   float64
	RegexPattern  string
	Keywords      []string
	RemovalRate   float64
	ReposAffected int
}

// CalibrationProfile maintains a per-domain Beta(alpha, beta) posterior
// over decision success (§3, §4.D).
type CalibrationProfile struct {
	Domain      string
	Namespace   Namespace
	Alpha       float64 // >= 1
	Beta        float64 // >= 1
	LastUpdated int64
}

// NewCalibrationProfile seeds a fresh profile with the uniform Beta(1,1)
// prior (§3).
func NewCalibrationProfile(domain string, ns Namespace) *CalibrationProfile {
	return &CalibrationProfile{Domain: domain, Namespace: ns, Alpha: 1, Beta: 1}
}

// Mean is the posterior mean success rate.
func (c *CalibrationProfile) Mean() float64 { return c.Alpha / (c.Alpha + c.Beta) }

// SampleSize is the number of finalized outcomes folded into this profile.
func (c *CalibrationProfile) SampleSize() float64 { return c.Alpha + c.Beta - 2 }

// Variance is the Beta distribution's variance.
func (c *CalibrationProfile) Variance() float64 {
	apb := c.Alpha + c.Beta
	return (c.Alpha * c.Beta) / (apb * apb * (apb + 1))
}

// Trend classifies the profile's mean into improving/stable/declining
// (§3/§4.D).
func (c *CalibrationProfile) Trend() string {
	mean := c.Mean()
	switch {
	case mean >= 0.75:
		return "improving"
	case mean >= 0.5:
		return "stable"
	default:
		return "declining"
	}
}

// Skill is versioned procedural knowledge generated from patterns (§3,
// §4.F).
type Skill struct {
	ID                    string
	Namespace             Namespace
	Domain                string
	Version               int
	SuccessRate           float64
	Confidence            float64
	SampleSize            int
	QualityScore          float64
	Procedure             string
	GreenZone             []string
	YellowZone            []string
	RedZone               []string
	GeneratedFromDecisions []string
	ConflictsWith         []string
	IsActive              bool
}

// ZoneOf classifies a pattern's success rate into green/yellow/red per
// the §3 zoning rule: green >= 0.75; 0.5 <= yellow < 0.75; red < 0.5.
func ZoneOf(successRate float64) string {
	switch {
	case successRate >= 0.75:
		return "green"
	case successRate >= 0.5:
		return "yellow"
	default:
		return "red"
	}
}

// QualityScoreOf computes quality_score = success_rate * (1 -
// 1/sqrt(sample_size)), clamped to [0,1] (§3).
func QualityScoreOf(successRate float64, sampleSize int) float64 {
	if sampleSize <= 0 {
		return 0
	}
	raw := successRate * (1 - 1/math.Sqrt(float64(sampleSize)))
	if raw < 0 {
		return 0
	}
	if raw > 1 {
		return 1
	}
	return raw
}
