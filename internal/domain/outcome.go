package domain

// OutcomeStatus is the Outcome lifecycle state (§3, §4.C).
type OutcomeStatus string

const (
	OutcomePending   OutcomeStatus = "pending"
	OutcomeSubmitted OutcomeStatus = "submitted"
	OutcomeMerged    OutcomeStatus = "merged"
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeAbandoned OutcomeStatus = "abandoned"
)

// FinalStatus is the terminal verdict recorded at finalization.
type FinalStatus string

const (
	FinalSuccess FinalStatus = "success"
	FinalPartial FinalStatus = "partial"
	FinalFailure FinalStatus = "failure"
)

// SignalType enumerates the kinds of external events an Outcome can
// record (§3).
type SignalType string

const (
	SignalPRCreated       SignalType = "pr_created"
	SignalPRMerged        SignalType = "pr_merged"
	SignalCIPassed        SignalType = "ci_passed"
	SignalCIFailed        SignalType = "ci_failed"
	SignalTestFailed      SignalType = "test_failed"
	SignalBugFound        SignalType = "bug_found"
	SignalIncident        SignalType = "incident"
	SignalPerformanceOK   SignalType = "performance_ok"
	SignalPerformancePoor SignalType = "performance_poor"
	SignalStabilityOK     SignalType = "stability_ok"
	SignalStabilityPoor   SignalType = "stability_poor"
)

// Valence classifies a Signal's sentiment.
type Valence string

const (
	ValencePositive Valence = "positive"
	ValenceNegative Valence = "negative"
	ValenceNeutral  Valence = "neutral"
)

var positiveSignalTypes = map[SignalType]bool{
	SignalPRCreated:     true,
	SignalPRMerged:      true,
	SignalCIPassed:      true,
	SignalPerformanceOK: true,
	SignalStabilityOK:   true,
}

var negativeSignalTypes = map[SignalType]bool{
	SignalCIFailed:        true,
	SignalTestFailed:      true,
	SignalBugFound:        true,
	SignalIncident:        true,
	SignalPerformancePoor: true,
	SignalStabilityPoor:   true,
}

// ValenceOf returns the default valence for a signal type, used when the
// caller does not supply one explicitly.
func ValenceOf(t SignalType) Valence {
	switch {
	case positiveSignalTypes[t]:
		return ValencePositive
	case negativeSignalTypes[t]:
		return ValenceNegative
	default:
		return ValenceNeutral
	}
}

// Signal is a single positive/negative/neutral event relevant to an
// Outcome's realization (§3).
type Signal struct {
	SignalType  SignalType
	Valence     Valence
	Timestamp   int64
	Description string
	Severity    string // optional
	Metrics     map[string]float64
}

// Key returns the idempotency tuple for this signal, per §4.C: appending
// signals is idempotent by (outcome_id, signal_type, timestamp,
// description).
func (s Signal) Key(outcomeID string) string {
	return outcomeID + "|" + string(s.SignalType) + "|" + itoa64(s.Timestamp) + "|" + s.Description
}

func itoa64(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Outcome tracks the realization lifecycle of a Decision (§3).
type Outcome struct {
	ID          string
	Namespace   Namespace
	DecisionID  string
	Status      OutcomeStatus
	CreatedAt   int64
	SubmittedAt int64
	MergedAt    int64
	CompletedAt int64

	PRURL    string
	PRNumber int
	CommitSHA string
	Repo     string

	Signals []Signal // append-only

	FinalStatus    FinalStatus
	FinalScore     float64
	LessonsLearned []string
	Metrics        map[string]float64

	finalized bool
}

// Finalized reports whether FinalStatus has been set; once true, no
// further state mutation is permitted (§3 invariant).
func (o *Outcome) Finalized() bool { return o.finalized }

// MarkFinalized freezes the outcome after a successful finalize_outcome
// call.
func (o *Outcome) MarkFinalized() { o.finalized = true }

// HasSignal reports whether a signal with the same idempotency key is
// already present, used to enforce §4.C/I7 idempotent signal append.
func (o *Outcome) HasSignal(s Signal) bool {
	key := s.Key(o.ID)
	for _, existing := range o.Signals {
		if existing.Key(o.ID) == key {
			return true
		}
	}
	return false
}

// EstimateSuccess computes the pre-finalization success estimate from
// recorded signals (§4.C): 0.5 + 0.5*(positive-negative)/max(1,total).
func (o *Outcome) EstimateSuccess() float64 {
	var positive, negative, total int
	for _, s := range o.Signals {
		total++
		switch s.Valence {
		case ValencePositive:
			positive++
		case ValenceNegative:
			negative++
		}
	}
	denom := total
	if denom < 1 {
		denom = 1
	}
	return 0.5 + 0.5*float64(positive-negative)/float64(denom)
}

// permissiblePredecessors enumerates the legal source states for each
// target status. Beyond the merged -> completed path, completed may also
// follow pending or submitted directly.
var permissiblePredecessors = map[OutcomeStatus][]OutcomeStatus{
	OutcomeSubmitted: {OutcomePending},
	OutcomeMerged:     {OutcomeSubmitted},
	OutcomeCompleted:  {OutcomeMerged, OutcomeSubmitted, OutcomePending},
	OutcomeFailed:     {OutcomePending, OutcomeSubmitted, OutcomeMerged},
	OutcomeAbandoned:  {OutcomePending, OutcomeSubmitted, OutcomeMerged},
}

// CanTransitionTo reports whether target is reachable from o.Status.
func (o *Outcome) CanTransitionTo(target OutcomeStatus) bool {
	for _, pred := range permissiblePredecessors[target] {
		if o.Status == pred {
			return true
		}
	}
	return false
}
