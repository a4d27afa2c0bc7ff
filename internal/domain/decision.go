package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// RiskLevel classifies the predicted risk of a Decision's outcome.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// DecisionStatus tracks a Decision's own lifecycle, separate from its
// Outcome's lifecycle. Status advances monotonically; failed->pending is
// forbidden (§3 invariant).
type DecisionStatus string

const (
	DecisionPending   DecisionStatus = "pending"
	DecisionExecuted  DecisionStatus = "executed"
	DecisionCompleted DecisionStatus = "completed"
	DecisionFailed    DecisionStatus = "failed"
)

var decisionStatusRank = map[DecisionStatus]int{
	DecisionPending:   0,
	DecisionExecuted:  1,
	DecisionCompleted: 2,
	DecisionFailed:    3,
}

// PredictedOutcome is the developer's stated expectation at decision time.
type PredictedOutcome struct {
	Description     string
	SuccessCriteria []string
	RiskLevel       RiskLevel
}

// Decision is the atomic unit of the system: a recorded choice with
// alternatives, assumptions, a predicted outcome and a confidence level
// (spec.md §3).
type Decision struct {
	ID                      string
	Namespace               Namespace
	Lifecycle               Lifecycle
	Statement               string
	Alternatives            []string
	AlternativesWithReasons map[string]string
	Assumptions             []string
	PredictedOutcome        PredictedOutcome
	Confidence              float64
	Module                  string // domain tag
	CreatedAt               int64
	CreatedBy               string
	ContextHash             string // immutable once computed
	Status                  DecisionStatus
	LinkedPR                string
	LinkedCommit            string
}

// canonicalPayload is the stable, order-independent encoding over which
// ContextHash is computed (§3, invariant I1).
type canonicalPayload struct {
	Statement        string   `json:"statement"`
	Alternatives     []string `json:"alternatives"`
	Assumptions      []string `json:"assumptions"`
	PredictedOutcome struct {
		Description     string   `json:"description"`
		SuccessCriteria []string `json:"success_criteria"`
		RiskLevel       string   `json:"risk_level"`
	} `json:"predicted_outcome"`
}

// ComputeContextHash returns the SHA-256 hex digest over the canonical
// encoding of (statement, sorted alternatives, sorted assumptions,
// predicted_outcome), per §3 and invariant I1. It is pure and
// deterministic: calling it twice on equal inputs yields the same digest
// regardless of input ordering.
func ComputeContextHash(statement string, alternatives, assumptions []string, predicted PredictedOutcome) string {
	sortedAlts := append([]string(nil), alternatives...)
	sort.Strings(sortedAlts)
	sortedAssum := append([]string(nil), assumptions...)
	sort.Strings(sortedAssum)
	sortedCriteria := append([]string(nil), predicted.SuccessCriteria...)
	sort.Strings(sortedCriteria)

	payload := canonicalPayload{
		Statement:    statement,
		Alternatives: sortedAlts,
		Assumptions:  sortedAssum,
	}
	payload.PredictedOutcome.Description = predicted.Description
	payload.PredictedOutcome.SuccessCriteria = sortedCriteria
	payload.PredictedOutcome.RiskLevel = string(predicted.RiskLevel)

	// json.Marshal on a struct with fixed field order is deterministic,
	// giving us a stable canonical encoding without hand-rolling one.
	encoded, err := json.Marshal(payload)
	if err != nil {
		// Marshal of plain strings/slices cannot fail; if it somehow did,
		// hashing the zero value still yields a deterministic (if wrong)
		// digest rather than panicking the caller.
		encoded = []byte{}
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// Finalize computes and freezes ContextHash. Any call after ContextHash
// is set is a no-op, even if the content changed; it is the caller's responsibility
// not to mutate Statement/Alternatives/Assumptions/PredictedOutcome
// after finalization, since ContextHash never changes once computed.
func (d *Decision) Finalize() {
	if d.ContextHash != "" {
		return
	}
	d.ContextHash = ComputeContextHash(d.Statement, d.Alternatives, d.Assumptions, d.PredictedOutcome)
}

// ValidConfidence reports whether Confidence satisfies the §3 invariant
// 0 <= confidence <= 1.
func (d *Decision) ValidConfidence() bool {
	return d.Confidence >= 0 && d.Confidence <= 1
}

// CanTransitionTo reports whether moving from d.Status to next is a legal,
// monotonic advance. failed -> pending is explicitly forbidden; all other
// backward moves are likewise rejected.
func (d *Decision) CanTransitionTo(next DecisionStatus) bool {
	if d.Status == DecisionFailed && next == DecisionPending {
		return false
	}
	return decisionStatusRank[next] >= decisionStatusRank[d.Status]
}
