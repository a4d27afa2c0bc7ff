package webhook

import (
	"context"
	"fmt"

	"github.com/membria/membria-core/internal/domain"
)

// translateGitHub maps a GitHub webhook payload onto a §4.C outcome
// signal. Unknown shapes (no extractable decision id, or an event
// subtype the translator doesn't recognize) are ignored with HTTP 200
// per §4.K.
func (s *Server) translateGitHub(ctx context.Context, eventType string, payload map[string]any, eventID string) (translateResult, error) {
	switch eventType {
	case "push":
		return s.translatePush(payload, eventID)
	case "pull_request":
		return s.translatePullRequest(payload, eventID)
	case "workflow_run":
		return s.translateWorkflowRun(payload, eventID)
	case "check_run":
		return s.translateCheckRun(payload, eventID)
	default:
		return translateResult{Ignored: true}, nil
	}
}

// translatePush has no dedicated §4.C signal (push carries no
// success/failure verdict by itself); it links the triggering commit and
// repo onto the Outcome so later signals (CI, PR merge) can be attributed.
func (s *Server) translatePush(payload map[string]any, eventID string) (translateResult, error) {
	message := stringField(payload, "head_commit", "message")
	decisionID := extractDecisionID(message)
	if decisionID == "" {
		return translateResult{Ignored: true}, nil
	}
	o, err := s.locateOrCreateOutcome(decisionID)
	if err != nil {
		return translateResult{}, err
	}
	if s.markSeen(eventID, o.ID, "push") {
		return translateResult{OutcomeID: o.ID}, nil
	}
	o.CommitSHA = stringField(payload, "head_commit", "id")
	o.Repo = stringField(payload, "repository", "full_name")
	if err := s.gs.PutOutcome(o); err != nil {
		return translateResult{}, err
	}
	return translateResult{OutcomeID: o.ID}, nil
}

func (s *Server) translatePullRequest(payload map[string]any, eventID string) (translateResult, error) {
	action, _ := payload["action"].(string)
	title := stringField(payload, "pull_request", "title")
	body := stringField(payload, "pull_request", "body")
	decisionID := extractDecisionID(title, body)
	if decisionID == "" {
		return translateResult{Ignored: true}, nil
	}
	o, err := s.locateOrCreateOutcome(decisionID)
	if err != nil {
		return translateResult{}, err
	}

	switch action {
	case "opened", "reopened", "edited", "synchronize":
		signalType := "pr_created"
		if s.markSeen(eventID, o.ID, signalType) {
			return translateResult{OutcomeID: o.ID}, nil
		}
		prNumber := intField(payload, "pull_request", "number")
		prURL := stringField(payload, "pull_request", "html_url")
		branch := stringField(payload, "pull_request", "head", "ref")
		if _, err := s.tracker.RecordPRCreated(o.ID, prNumber, prURL, branch); err != nil {
			return translateResult{}, err
		}
	case "closed":
		merged, _ := nestedField(payload, "pull_request", "merged").(bool)
		if !merged {
			return translateResult{Ignored: true}, nil
		}
		signalType := "pr_merged"
		if s.markSeen(eventID, o.ID, signalType) {
			return translateResult{OutcomeID: o.ID}, nil
		}
		prNumber := intField(payload, "pull_request", "number")
		if o.Status == domain.OutcomePending {
			// Merged is only reachable from submitted: record the PR first
			// when no "opened" event reached this outcome beforehand.
			prURL := stringField(payload, "pull_request", "html_url")
			branch := stringField(payload, "pull_request", "head", "ref")
			if _, err := s.tracker.RecordPRCreated(o.ID, prNumber, prURL, branch); err != nil {
				return translateResult{}, err
			}
		}
		if _, err := s.tracker.RecordPRMerged(o.ID, prNumber); err != nil {
			return translateResult{}, err
		}
	default:
		return translateResult{Ignored: true}, nil
	}
	return translateResult{OutcomeID: o.ID}, nil
}

func (s *Server) translateWorkflowRun(payload map[string]any, eventID string) (translateResult, error) {
	return s.translateCIConclusion(payload, eventID, "workflow_run", "workflow_run", "head_commit", "message")
}

func (s *Server) translateCheckRun(payload map[string]any, eventID string) (translateResult, error) {
	return s.translateCIConclusion(payload, eventID, "check_run", "check_run", "check_run", "head_sha")
}

// translateCIConclusion handles workflow_run/check_run, both of which
// report a conclusion once the run finishes and both of which carry the
// decision id only indirectly (via the commit that triggered the run).
func (s *Server) translateCIConclusion(payload map[string]any, eventID, source, objectKey, fallbackKeyA, fallbackKeyB string) (translateResult, error) {
	status, _ := nestedField(payload, objectKey, "status").(string)
	if status != "completed" {
		return translateResult{Ignored: true}, nil
	}
	message := stringField(payload, fallbackKeyA, fallbackKeyB)
	decisionID := extractDecisionID(message, stringField(payload, objectKey, "name"))
	if decisionID == "" {
		return translateResult{Ignored: true}, nil
	}
	o, err := s.locateOrCreateOutcome(decisionID)
	if err != nil {
		return translateResult{}, err
	}
	if s.markSeen(eventID, o.ID, source) {
		return translateResult{OutcomeID: o.ID}, nil
	}

	conclusion, _ := nestedField(payload, objectKey, "conclusion").(string)
	passed := conclusion == "success"
	details := fmt.Sprintf("%s conclusion=%s", source, conclusion)
	if _, err := s.tracker.RecordCIResult(o.ID, passed, details); err != nil {
		return translateResult{}, err
	}
	return translateResult{OutcomeID: o.ID}, nil
}

// translateCIEvent handles the generic /ci/event body of §4.K:
// {decision_id, event_type, passed, details?}.
func (s *Server) translateCIEvent(ctx context.Context, payload ciEventPayload) (translateResult, error) {
	if payload.DecisionID == "" {
		return translateResult{Ignored: true}, nil
	}
	o, err := s.locateOrCreateOutcome(payload.DecisionID)
	if err != nil {
		return translateResult{}, err
	}
	eventID := payload.DecisionID + "|" + payload.EventType
	if s.markSeen(eventID, o.ID, "ci_event") {
		return translateResult{OutcomeID: o.ID}, nil
	}

	details := payload.EventType
	if payload.Details != nil {
		details = fmt.Sprintf("%s %v", payload.EventType, payload.Details)
	}
	if _, err := s.tracker.RecordCIResult(o.ID, payload.Passed, details); err != nil {
		return translateResult{}, err
	}
	return translateResult{OutcomeID: o.ID}, nil
}

// nestedField walks a chain of map[string]any keys, returning nil if any
// hop is missing or not a map.
func nestedField(payload map[string]any, keys ...string) any {
	var cur any = payload
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}

func stringField(payload map[string]any, keys ...string) string {
	v, _ := nestedField(payload, keys...).(string)
	return v
}

func intField(payload map[string]any, keys ...string) int {
	switch v := nestedField(payload, keys...).(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
