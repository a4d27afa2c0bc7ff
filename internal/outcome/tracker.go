// Package outcome implements the Outcome state machine of spec.md §4.C:
// record_pr_created, record_pr_merged, record_ci_result, record_incident,
// record_performance and finalize_outcome, each driving domain.Outcome's
// transition table under a per-outcome-id lock. Grounded on the teacher's
// per-entity locking discipline in internal/store/local_core.go, adapted
// here from the graph store's entity-id shard to outcome ids specifically.
package outcome

import (
	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/calibration"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
	"github.com/membria/membria-core/internal/metrics"
	"github.com/membria/membria-core/internal/store"
)

// "Good" performance thresholds (§4.C): all checks present must pass.
const (
	goodUptimeMin     = 99.0
	goodErrorRateMax  = 1.0
	goodBugCountMax   = 2.0
	goodIncidentCount = 0.0
)

// Tracker drives the Outcome lifecycle state machine over a graph store.
type Tracker struct {
	gs   *store.GraphStore
	calc *calibration.Engine
	now  func() int64
}

// New constructs a Tracker. calc may be nil; finalize_outcome then skips
// the §4.D calibration update entirely (used by callers that drive
// calibration separately).
func New(gs *store.GraphStore, calc *calibration.Engine, now func() int64) *Tracker {
	return &Tracker{gs: gs, calc: calc, now: now}
}

func (t *Tracker) loadLocked(id string) (*domain.Outcome, error) {
	o, err := t.gs.GetOutcome(id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// appendSignal applies the §4.C idempotency rule: a signal already
// present by its (outcome_id, signal_type, timestamp, description) key
// is not re-appended (I7, B-webhook-idempotency).
func appendSignal(o *domain.Outcome, s domain.Signal) bool {
	if o.HasSignal(s) {
		return false
	}
	o.Signals = append(o.Signals, s)
	return true
}

func (t *Tracker) transition(id string, target domain.OutcomeStatus, mutate func(o *domain.Outcome)) (*domain.Outcome, error) {
	var result *domain.Outcome
	err := t.gs.WithEntityLock(id, func() error {
		o, err := t.loadLocked(id)
		if err != nil {
			return err
		}
		if o.Finalized() {
			return apperr.New(apperr.AlreadyFinalized, "outcome %s already finalized", id)
		}
		if target != "" && o.Status != target && !o.CanTransitionTo(target) {
			return apperr.Transition(string(o.Status), "outcome %s cannot move to %s", id, target)
		}
		mutate(o)
		if target != "" {
			o.Status = target
		}
		if err := t.gs.PutOutcome(o); err != nil {
			return err
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.OutcomeTransitions.WithLabelValues(string(result.Status)).Inc()
	return result, nil
}

// RecordPRCreated transitions pending->submitted and appends a pr_created
// signal (§4.C).
func (t *Tracker) RecordPRCreated(outcomeID string, prNumber int, prURL, branch string) (*domain.Outcome, error) {
	timer := logging.StartTimer(logging.CategoryOutcome, "RecordPRCreated")
	defer timer.Stop()

	return t.transition(outcomeID, domain.OutcomeSubmitted, func(o *domain.Outcome) {
		appendSignal(o, domain.Signal{
			SignalType:  domain.SignalPRCreated,
			Valence:     domain.ValenceOf(domain.SignalPRCreated),
			Timestamp:   t.now(),
			Description: "pull request #" + itoa(prNumber) + " opened on " + branch,
		})
		o.PRNumber = prNumber
		o.PRURL = prURL
		o.SubmittedAt = t.now()
	})
}

// RecordPRMerged transitions submitted->merged and appends a pr_merged
// signal (§4.C).
func (t *Tracker) RecordPRMerged(outcomeID string, prNumber int) (*domain.Outcome, error) {
	timer := logging.StartTimer(logging.CategoryOutcome, "RecordPRMerged")
	defer timer.Stop()

	return t.transition(outcomeID, domain.OutcomeMerged, func(o *domain.Outcome) {
		appendSignal(o, domain.Signal{
			SignalType:  domain.SignalPRMerged,
			Valence:     domain.ValenceOf(domain.SignalPRMerged),
			Timestamp:   t.now(),
			Description: "pull request #" + itoa(prNumber) + " merged",
		})
		o.PRNumber = prNumber
		o.MergedAt = t.now()
	})
}

// RecordCIResult appends ci_passed or ci_failed. A failed run does not by
// itself change the top-level status (§4.C).
func (t *Tracker) RecordCIResult(outcomeID string, passed bool, details string) (*domain.Outcome, error) {
	timer := logging.StartTimer(logging.CategoryOutcome, "RecordCIResult")
	defer timer.Stop()

	signalType := domain.SignalCIFailed
	if passed {
		signalType = domain.SignalCIPassed
	}
	return t.transition(outcomeID, "", func(o *domain.Outcome) {
		appendSignal(o, domain.Signal{
			SignalType:  signalType,
			Valence:     domain.ValenceOf(signalType),
			Timestamp:   t.now(),
			Description: details,
		})
	})
}

// RecordIncident appends an incident negative signal with severity
// (§4.C).
func (t *Tracker) RecordIncident(outcomeID, severity, description string) (*domain.Outcome, error) {
	timer := logging.StartTimer(logging.CategoryOutcome, "RecordIncident")
	defer timer.Stop()

	return t.transition(outcomeID, "", func(o *domain.Outcome) {
		appendSignal(o, domain.Signal{
			SignalType:  domain.SignalIncident,
			Valence:     domain.ValenceNegative,
			Timestamp:   t.now(),
			Description: description,
			Severity:    severity,
		})
	})
}

// GoodMetrics reports whether metrics pass every present §4.C threshold:
// uptime >= 99%, error_rate < 1%, bug_count <= 2, incident_count = 0.
// Checks not present in metrics are skipped.
func GoodMetrics(m map[string]float64) bool {
	if v, ok := m["uptime"]; ok && v < goodUptimeMin {
		return false
	}
	if v, ok := m["error_rate"]; ok && v >= goodErrorRateMax {
		return false
	}
	if v, ok := m["bug_count"]; ok && v > goodBugCountMax {
		return false
	}
	if v, ok := m["incident_count"]; ok && v > goodIncidentCount {
		return false
	}
	return true
}

// RecordPerformance appends performance_ok or performance_poor per
// GoodMetrics and persists the metrics map (§4.C).
func (t *Tracker) RecordPerformance(outcomeID string, m map[string]float64) (*domain.Outcome, error) {
	timer := logging.StartTimer(logging.CategoryOutcome, "RecordPerformance")
	defer timer.Stop()

	signalType := domain.SignalPerformancePoor
	if GoodMetrics(m) {
		signalType = domain.SignalPerformanceOK
	}
	return t.transition(outcomeID, "", func(o *domain.Outcome) {
		appendSignal(o, domain.Signal{
			SignalType: signalType,
			Valence:    domain.ValenceOf(signalType),
			Timestamp:  t.now(),
			Metrics:    m,
		})
		if o.Metrics == nil {
			o.Metrics = make(map[string]float64, len(m))
		}
		for k, v := range m {
			o.Metrics[k] = v
		}
	})
}

// FinalizeOutcome completes the outcome and, if decisionDomain is
// non-empty, updates calibration (§4.D). Calibration errors are logged
// and never fail the finalization (§4.C).
func (t *Tracker) FinalizeOutcome(outcomeID string, finalStatus domain.FinalStatus, finalScore float64, decisionDomain string) (*domain.Outcome, error) {
	timer := logging.StartTimer(logging.CategoryOutcome, "FinalizeOutcome")
	defer timer.Stop()

	result, err := t.transition(outcomeID, domain.OutcomeCompleted, func(o *domain.Outcome) {
		o.FinalStatus = finalStatus
		o.FinalScore = finalScore
		o.CompletedAt = t.now()
		o.MarkFinalized()
	})
	if err != nil {
		return nil, err
	}

	if decisionDomain != "" && t.calc != nil {
		success := finalStatus == domain.FinalSuccess
		if _, cerr := t.calc.Update(decisionDomain, domain.Namespace{}, success); cerr != nil {
			logging.Get(logging.CategoryOutcome).Warn("calibration update failed for domain %s: %v", decisionDomain, cerr)
		}
	}
	return result, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
