// Package calibration implements the Bayesian calibration engine of
// spec.md §4.D: a per-domain Beta(alpha, beta) posterior over decision
// success, updated at outcome finalization and queried through
// get_confidence_guidance for human-confidence feedback. Grounded on the
// domain.CalibrationProfile math already present in internal/domain, this
// package adds the update/guidance/batch service operations around it.
package calibration

import (
	"fmt"
	"math"
	"time"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
	"github.com/membria/membria-core/internal/metrics"
	"github.com/membria/membria-core/internal/store"
)

// Gap-severity adjustment table (§4.D): larger confidence gaps pull the
// recommended adjustment further in the opposing direction.
const (
	smallGapThreshold = 0.05
	largeGapThreshold = 0.25
	smallAdjustment   = 0.05
	largeAdjustment   = 0.125

	minSampleSizeForRecommendation = 3
)

// Engine owns the per-domain Beta posteriors backed by a graph store.
type Engine struct {
	gs *store.GraphStore
}

// New constructs a calibration Engine over an already-open graph store.
func New(gs *store.GraphStore) *Engine {
	return &Engine{gs: gs}
}

// Update folds one finalized outcome into domain's posterior: alpha
// increments on success, beta on failure (§4.D).
func (e *Engine) Update(domainName string, ns domain.Namespace, success bool) (*domain.CalibrationProfile, error) {
	timer := logging.StartTimer(logging.CategoryCalibration, "Update")
	defer timer.Stop()

	if domainName == "" {
		return nil, apperr.New(apperr.InvalidArgument, "calibration update requires a domain")
	}

	var result *domain.CalibrationProfile
	err := e.gs.WithEntityLock("calibration:"+domainName, func() error {
		profile, err := e.gs.GetOrCreateCalibrationProfile(domainName, ns)
		if err != nil {
			return err
		}
		if success {
			profile.Alpha++
		} else {
			profile.Beta++
		}
		profile.LastUpdated = time.Now().Unix()
		if err := e.gs.PutCalibrationProfile(profile); err != nil {
			return err
		}
		result = profile
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CalibrationUpdates.WithLabelValues(domainName, boolLabel(success)).Inc()
	return result, nil
}

// BatchResult summarizes a BatchUpdate run (§4.D).
type BatchResult struct {
	Updated int
	Failed  int
	Skipped int
}

// BatchOutcome pairs a finalized outcome's decision id with its realized
// success, for BatchUpdate's bulk calibration folding.
type BatchOutcome struct {
	DecisionID string
	Success    bool
}

// BatchUpdate folds a set of finalized outcomes into their domains'
// posteriors using a decision_id -> domain map (§4.D). Outcomes whose
// decision has no domain mapping are skipped, not failed.
func (e *Engine) BatchUpdate(outcomes []BatchOutcome, decisionDomains map[string]string, ns domain.Namespace) BatchResult {
	timer := logging.StartTimer(logging.CategoryCalibration, "BatchUpdate")
	defer timer.Stop()

	var result BatchResult
	for _, o := range outcomes {
		dom, ok := decisionDomains[o.DecisionID]
		if !ok || dom == "" {
			result.Skipped++
			continue
		}
		if _, err := e.Update(dom, ns, o.Success); err != nil {
			logging.Get(logging.CategoryCalibration).Warn("batch calibration update failed for decision %s: %v", o.DecisionID, err)
			result.Failed++
			continue
		}
		result.Updated++
	}
	return result
}

// Guidance is the get_confidence_guidance response shape (§4.D).
type Guidance struct {
	Domain              string
	Status              string // "no_data" | "data_available"
	ActualSuccessRate    float64
	SampleSize           float64
	Trend                string
	UserConfidence       *float64
	ConfidenceGap        *float64
	Adjustment           *float64
	Recommendation       string
	CredibleInterval95Lo float64
	CredibleInterval95Hi float64
}

// GetConfidenceGuidance implements §4.D: status=no_data for an unseen
// domain; otherwise the posterior mean, gap-severity adjustment against an
// optional user confidence estimate, a recommendation when the gap is
// material and sample size is sufficient, and a normal-approximation 95%
// credible interval.
func (e *Engine) GetConfidenceGuidance(domainName string, userConfidence *float64, ns domain.Namespace) (*Guidance, error) {
	timer := logging.StartTimer(logging.CategoryCalibration, "GetConfidenceGuidance")
	defer timer.Stop()

	profiles, err := e.gs.ListCalibrationProfiles(store.CrossNamespaceFilter())
	if err != nil {
		return nil, err
	}
	var profile *domain.CalibrationProfile
	for _, p := range profiles {
		if p.Domain == domainName {
			profile = p
			break
		}
	}
	if profile == nil {
		return &Guidance{Domain: domainName, Status: "no_data"}, nil
	}

	mean := profile.Mean()
	sampleSize := profile.SampleSize()
	lo, hi := credibleInterval95(mean, profile.Variance())

	g := &Guidance{
		Domain:                domainName,
		Status:                "data_available",
		ActualSuccessRate:     mean,
		SampleSize:            sampleSize,
		Trend:                 profile.Trend(),
		CredibleInterval95Lo:  lo,
		CredibleInterval95Hi:  hi,
	}

	if userConfidence != nil {
		gap := *userConfidence - mean
		adj := adjustmentForGap(gap)
		g.UserConfidence = userConfidence
		g.ConfidenceGap = &gap
		g.Adjustment = &adj
		if sampleSize >= minSampleSizeForRecommendation && math.Abs(gap) > smallGapThreshold {
			g.Recommendation = recommendationText(gap, mean)
		}
	}

	return g, nil
}

// adjustmentForGap applies the §4.D gap-severity table: +-0.05 for
// |gap| in (0.05, 0.25], otherwise +-0.125, always opposing the gap's sign.
func adjustmentForGap(gap float64) float64 {
	abs := math.Abs(gap)
	magnitude := largeAdjustment
	if abs > smallGapThreshold && abs <= largeGapThreshold {
		magnitude = smallAdjustment
	}
	if gap > 0 {
		return -magnitude
	}
	return magnitude
}

func recommendationText(gap, _ float64) string {
	pct := math.Abs(gap) * 100
	if gap > 0 {
		return fmt.Sprintf("overconfident: actual success rate is %.1f%% lower than stated confidence", pct)
	}
	return fmt.Sprintf("underconfident: actual success rate is %.1f%% higher than stated confidence", pct)
}

// credibleInterval95 approximates the Beta posterior's 95% credible
// interval with a normal approximation: mean +- 1.96*sqrt(variance),
// clamped to [0,1] (§4.D).
func credibleInterval95(mean, variance float64) (lo, hi float64) {
	half := 1.96 * math.Sqrt(variance)
	lo = clamp01(mean - half)
	hi = clamp01(mean + half)
	return lo, hi
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
