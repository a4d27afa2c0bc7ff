package domain

import "testing"

func TestComputeContextHashIsOrderIndependent(t *testing.T) {
	predicted := PredictedOutcome{Description: "faster reads", SuccessCriteria: []string{"p99 < 50ms", "no regressions"}, RiskLevel: RiskMedium}

	h1 := ComputeContextHash("Use PostgreSQL", []string{"PostgreSQL", "MongoDB"}, []string{"ops team knows SQL"}, predicted)
	h2 := ComputeContextHash("Use PostgreSQL", []string{"MongoDB", "PostgreSQL"}, []string{"ops team knows SQL"}, predicted)

	if h1 != h2 {
		t.Fatalf("expected order-independent hash, got %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64-char hex sha256 digest, got %d chars", len(h1))
	}
}

func TestComputeContextHashDiffersOnContentChange(t *testing.T) {
	predicted := PredictedOutcome{Description: "x"}
	h1 := ComputeContextHash("statement A", nil, nil, predicted)
	h2 := ComputeContextHash("statement B", nil, nil, predicted)
	if h1 == h2 {
		t.Fatalf("expected differing hashes for differing statements")
	}
}

func TestDecisionFinalizeIsImmutable(t *testing.T) {
	d := &Decision{Statement: "use X"}
	d.Finalize()
	first := d.ContextHash

	d.Statement = "use Y" // mutate after finalize, which callers must not do
	d.Finalize()          // Finalize is idempotent once ContextHash is set
	if d.ContextHash != first {
		t.Fatalf("ContextHash must never change once computed")
	}
}

func TestValidConfidence(t *testing.T) {
	cases := []struct {
		conf float64
		want bool
	}{{0, true}, {1, true}, {0.5, true}, {-0.01, false}, {1.01, false}}
	for _, c := range cases {
		d := &Decision{Confidence: c.conf}
		if got := d.ValidConfidence(); got != c.want {
			t.Errorf("ValidConfidence(%v) = %v, want %v", c.conf, got, c.want)
		}
	}
}

func TestDecisionCanTransitionTo(t *testing.T) {
	d := &Decision{Status: DecisionFailed}
	if d.CanTransitionTo(DecisionPending) {
		t.Fatalf("failed -> pending must be forbidden")
	}

	d = &Decision{Status: DecisionPending}
	if !d.CanTransitionTo(DecisionExecuted) {
		t.Fatalf("pending -> executed should be legal")
	}
	if d.CanTransitionTo(DecisionCompleted) == false {
		t.Fatalf("forward jump pending -> completed should be allowed (monotonic, not strictly sequential)")
	}
}
