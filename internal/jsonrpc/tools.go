package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/calibration"
	membriactx "github.com/membria/membria-core/internal/context"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/firewall"
	"github.com/membria/membria-core/internal/logging"
	"github.com/membria/membria-core/internal/memory"
	"github.com/membria/membria-core/internal/metrics"
	"github.com/membria/membria-core/internal/outcome"
	"github.com/membria/membria-core/internal/pattern"
	"github.com/membria/membria-core/internal/store"
)

var validate = validator.New()

// ToolSchema is the tools/list entry shape (§4.J).
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolContent is the tools/call result shape (§4.J): {content:[{type,text}]}.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolCallResult wraps a tool's JSON result as the spec's text-content
// envelope.
type ToolCallResult struct {
	Content []ToolContent `json:"content"`
}

// Tools implements the membria.* tool surface (§4.J) over the already-
// built service layer.
type Tools struct {
	gs        *store.GraphStore
	mem       *memory.Manager
	tracker   *outcome.Tracker
	calc      *calibration.Engine
	extractor *pattern.Extractor
	ctxMgr    *membriactx.Manager
	fw        *firewall.Firewall
}

// NewTools wires the tool surface over its dependencies.
func NewTools(gs *store.GraphStore, mem *memory.Manager, tracker *outcome.Tracker, calc *calibration.Engine, extractor *pattern.Extractor, ctxMgr *membriactx.Manager, fw *firewall.Firewall) *Tools {
	return &Tools{gs: gs, mem: mem, tracker: tracker, calc: calc, extractor: extractor, ctxMgr: ctxMgr, fw: fw}
}

// Schemas returns the tools/list payload (§4.J).
func (t *Tools) Schemas() []ToolSchema {
	return []ToolSchema{
		{Name: "membria.capture_decision", Description: "Record a new decision with alternatives and confidence.", InputSchema: objectSchema(map[string]string{
			"statement": "string", "alternatives": "array", "confidence": "number", "context": "object",
		}, "statement", "alternatives", "confidence")},
		{Name: "membria.record_outcome", Description: "Finalize a decision's outcome.", InputSchema: objectSchema(map[string]string{
			"decision_id": "string", "final_status": "string", "final_score": "number", "decision_domain": "string",
		}, "decision_id", "final_status", "final_score")},
		{Name: "membria.get_calibration", Description: "Get team calibration guidance for a domain.", InputSchema: objectSchema(map[string]string{
			"domain": "string",
		}, "domain")},
		{Name: "membria.get_decision_context", Description: "Compose the unified decision context payload.", InputSchema: objectSchema(map[string]string{
			"statement": "string", "module": "string", "confidence": "number",
		}, "statement", "module", "confidence")},
		{Name: "membria.get_plan_context", Description: "Compose plan-level context: precedent, failures, calibration.", InputSchema: objectSchema(map[string]string{
			"domain": "string", "scope": "string",
		}, "domain")},
		{Name: "membria.validate_plan", Description: "Run each plan step through the red-flag firewall.", InputSchema: objectSchema(map[string]string{
			"steps": "array", "domain": "string",
		}, "steps")},
		{Name: "membria.record_plan", Description: "Record a multi-step plan as decisions under one session.", InputSchema: objectSchema(map[string]string{
			"plan_steps": "array", "domain": "string", "plan_confidence": "number",
			"duration_estimate": "string", "warnings_shown": "array", "warnings_heeded": "array",
		}, "plan_steps", "domain")},
	}
}

func objectSchema(props map[string]string, required ...string) map[string]any {
	p := make(map[string]any, len(props))
	for name, typ := range props {
		p[name] = map[string]string{"type": typ}
	}
	return map[string]any{"type": "object", "properties": p, "required": required}
}

// Register binds initialize/tools/list/tools/call and every membria.*
// method onto srv (§4.J).
func (t *Tools) Register(srv *Server) {
	srv.Register("initialize", t.handleInitialize)
	srv.Register("tools/list", t.handleToolsList)
	srv.Register("tools/call", t.handleToolsCall)
}

func (t *Tools) handleInitialize(_ context.Context, _ json.RawMessage) (any, *RPCError) {
	return map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{"tools": true},
	}, nil
}

func (t *Tools) handleToolsList(_ context.Context, _ json.RawMessage) (any, *RPCError) {
	return map[string]any{"tools": t.Schemas()}, nil
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (t *Tools) handleToolsCall(ctx context.Context, raw json.RawMessage) (any, *RPCError) {
	var p toolCallParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "invalid tools/call params: " + err.Error()}
	}

	handler, ok := toolDispatch[p.Name]
	if !ok {
		metrics.ToolCalls.WithLabelValues(p.Name, "unknown").Inc()
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "unknown tool: " + p.Name}
	}

	result, err := handler(t, ctx, p.Arguments)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(p.Name, "error").Inc()
		if apperr.KindOf(err) == apperr.InvalidArgument {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		return nil, &RPCError{Code: CodeInternal, Message: err.Error()}
	}

	metrics.ToolCalls.WithLabelValues(p.Name, "ok").Inc()
	encoded, _ := json.Marshal(result)
	return ToolCallResult{Content: []ToolContent{{Type: "text", Text: string(encoded)}}}, nil
}

var toolDispatch = map[string]func(*Tools, context.Context, json.RawMessage) (any, error){
	"membria.capture_decision":    (*Tools).captureDecision,
	"membria.record_outcome":      (*Tools).recordOutcome,
	"membria.get_calibration":     (*Tools).getCalibration,
	"membria.get_decision_context": (*Tools).getDecisionContext,
	"membria.get_plan_context":    (*Tools).getPlanContext,
	"membria.validate_plan":       (*Tools).validatePlan,
	"membria.record_plan":         (*Tools).recordPlan,
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return apperr.New(apperr.InvalidArgument, "missing arguments")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.New(apperr.InvalidArgument, "malformed arguments: %v", err)
	}
	if err := validate.Struct(v); err != nil {
		return apperr.New(apperr.InvalidArgument, "invalid arguments: %v", err)
	}
	return nil
}

type captureDecisionParams struct {
	Statement    string   `json:"statement" validate:"required"`
	Alternatives []string `json:"alternatives"`
	Confidence   float64  `json:"confidence" validate:"gte=0,lte=1"`
	Context      struct {
		Module string `json:"module"`
	} `json:"context"`
}

func (t *Tools) captureDecision(_ context.Context, raw json.RawMessage) (any, error) {
	var p captureDecisionParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	id := "dec_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	d := &domain.Decision{
		ID:           id,
		Statement:    p.Statement,
		Alternatives: p.Alternatives,
		Confidence:   p.Confidence,
		Module:       p.Context.Module,
		Status:       domain.DecisionPending,
	}
	d.ContextHash = domain.ComputeContextHash(d.Statement, d.Alternatives, d.Assumptions, d.PredictedOutcome)
	if err := t.mem.StoreDecision(d); err != nil {
		return nil, err
	}
	return map[string]any{"decision_id": id, "status": "pending"}, nil
}

type recordOutcomeParams struct {
	DecisionID     string  `json:"decision_id" validate:"required"`
	FinalStatus    string  `json:"final_status" validate:"required,oneof=success partial failure"`
	FinalScore     float64 `json:"final_score"`
	DecisionDomain string  `json:"decision_domain"`
}

func (t *Tools) recordOutcome(_ context.Context, raw json.RawMessage) (any, error) {
	var p recordOutcomeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	o, err := t.gs.GetOutcomeByDecision(p.DecisionID)
	if err != nil {
		o = &domain.Outcome{ID: "oc_" + uuid.NewString(), DecisionID: p.DecisionID, Status: domain.OutcomePending}
		if err := t.gs.PutOutcome(o); err != nil {
			return nil, err
		}
	}

	finalized, err := t.tracker.FinalizeOutcome(o.ID, domain.FinalStatus(p.FinalStatus), p.FinalScore, p.DecisionDomain)
	if err != nil {
		return nil, err
	}
	return finalized, nil
}

type getCalibrationParams struct {
	Domain string `json:"domain" validate:"required"`
}

func (t *Tools) getCalibration(_ context.Context, raw json.RawMessage) (any, error) {
	var p getCalibrationParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return t.calc.GetConfidenceGuidance(p.Domain, nil, domain.Namespace{})
}

type getDecisionContextParams struct {
	Statement  string  `json:"statement" validate:"required"`
	Module     string  `json:"module" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

func (t *Tools) getDecisionContext(ctx context.Context, raw json.RawMessage) (any, error) {
	var p getDecisionContextParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	res := t.ctxMgr.BuildDecisionContext(ctx, membriactx.Request{
		Statement: p.Statement, Module: p.Module, Confidence: p.Confidence,
		MaxTokens: 2000, IncludeChains: true,
	})
	return res, nil
}

type getPlanContextParams struct {
	Domain string `json:"domain" validate:"required"`
	Scope  string `json:"scope"`
}

func (t *Tools) getPlanContext(ctx context.Context, raw json.RawMessage) (any, error) {
	var p getPlanContextParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	stats, err := t.extractor.GetPatternStats(ctx, p.Domain)
	if err != nil {
		logging.Get(logging.CategoryJSONRPC).Warn("get_plan_context: pattern stats failed for %s: %v", p.Domain, err)
	}
	patterns, err := t.extractor.ExtractPatternsForDomain(ctx, p.Domain, 1)
	if err != nil {
		logging.Get(logging.CategoryJSONRPC).Warn("get_plan_context: pattern extraction failed for %s: %v", p.Domain, err)
	}
	negKnowledge, err := t.gs.ListNegativeKnowledgeByDomain(p.Domain)
	if err != nil {
		logging.Get(logging.CategoryJSONRPC).Warn("get_plan_context: negative knowledge lookup failed for %s: %v", p.Domain, err)
	}
	guidance, err := t.calc.GetConfidenceGuidance(p.Domain, nil, domain.Namespace{})
	if err != nil {
		return nil, err
	}

	var successful, failed []string
	for _, pat := range patterns {
		if pat.SuccessRate >= 0.6 {
			successful = append(successful, pat.Statement)
		} else {
			failed = append(failed, pat.Statement)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Plan Context: %s\n\n", p.Domain)
	if p.Scope != "" {
		fmt.Fprintf(&b, "Scope: %s\n\n", p.Scope)
	}
	fmt.Fprintf(&b, "## Successful Patterns\n")
	writeLines(&b, successful)
	fmt.Fprintf(&b, "\n## Failed Approaches\n")
	writeLines(&b, failed)
	fmt.Fprintf(&b, "\n## Known Constraints\n")
	for _, n := range negKnowledge {
		fmt.Fprintf(&b, "- %s: %s\n", n.Hypothesis, n.Recommendation)
	}
	if guidance.Status == "data_available" {
		fmt.Fprintf(&b, "\n## Calibration\n")
		fmt.Fprintf(&b, "Actual success rate: %.0f%% (sample_size=%.0f, trend=%s)\n", guidance.ActualSuccessRate*100, guidance.SampleSize, guidance.Trend)
	}
	fmt.Fprintf(&b, "\n## Recommendations\n")
	if guidance.Recommendation != "" {
		fmt.Fprintf(&b, "- %s\n", guidance.Recommendation)
	} else {
		b.WriteString("- (no recommendation: insufficient data)\n")
	}

	return map[string]any{
		"markdown":           b.String(),
		"past_plans":          stats,
		"failed_approaches":   failed,
		"successful_patterns": successful,
		"calibration":         guidance,
		"constraints":         negKnowledge,
	}, nil
}

func writeLines(b *strings.Builder, items []string) {
	if len(items) == 0 {
		b.WriteString("(none recorded)\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

type validatePlanParams struct {
	Steps  []string `json:"steps" validate:"required,min=1"`
	Domain string   `json:"domain"`
}

type planWarning struct {
	Step           int    `json:"step"`
	FlagID         string `json:"flag_id"`
	Severity       string `json:"severity"`
	Evidence       string `json:"evidence"`
	Recommendation string `json:"recommendation"`
}

func (t *Tools) validatePlan(_ context.Context, raw json.RawMessage) (any, error) {
	var p validatePlanParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	var warnings []planWarning
	var high, medium, low int
	for i, step := range p.Steps {
		result := t.fw.Evaluate(firewall.Request{Statement: step, Confidence: 0.7, Domain: p.Domain})
		for _, f := range result.Flags {
			warnings = append(warnings, planWarning{
				Step: i, FlagID: f.ID, Severity: string(f.Severity),
				Evidence: f.Evidence, Recommendation: f.Recommendation,
			})
			switch f.Severity {
			case domain.SeverityHigh, domain.SeverityCritical:
				high++
			case domain.SeverityMedium:
				medium++
			case domain.SeverityLow:
				low++
			}
		}
	}

	return map[string]any{
		"total_steps":     len(p.Steps),
		"warnings":        warnings,
		"high_severity":   high,
		"medium_severity": medium,
		"low_severity":    low,
		"can_proceed":     high == 0,
	}, nil
}

type recordPlanParams struct {
	PlanSteps        []string `json:"plan_steps" validate:"required,min=1"`
	Domain           string   `json:"domain" validate:"required"`
	PlanConfidence   float64  `json:"plan_confidence"`
	DurationEstimate string   `json:"duration_estimate"`
	WarningsShown    []string `json:"warnings_shown"`
	WarningsHeeded   []string `json:"warnings_heeded"`
}

type recordedStep struct {
	Step       string `json:"step"`
	DecisionID string `json:"decision_id"`
}

func (t *Tools) recordPlan(_ context.Context, raw json.RawMessage) (any, error) {
	var p recordPlanParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	confidence := p.PlanConfidence
	if confidence == 0 {
		confidence = 0.7
	}

	engramID := "eng_" + uuid.NewString()
	session := &domain.SessionContext{
		SessionID:   engramID,
		Task:        p.Domain,
		CurrentPlan: p.PlanSteps,
		Constraints: p.WarningsHeeded,
		IsActive:    true,
	}

	var recorded []recordedStep
	for _, step := range p.PlanSteps {
		id := "dec_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		d := &domain.Decision{
			ID: id, Statement: step, Module: p.Domain, Confidence: confidence,
			Status: domain.DecisionPending,
		}
		d.ContextHash = domain.ComputeContextHash(d.Statement, d.Alternatives, d.Assumptions, d.PredictedOutcome)
		if err := t.mem.StoreDecision(d); err != nil {
			return nil, err
		}
		recorded = append(recorded, recordedStep{Step: step, DecisionID: id})
	}

	if err := t.gs.PutSessionContext(session); err != nil {
		return nil, err
	}
	if err := t.gs.StoreEdge(domain.Edge{FromID: engramID, Type: domain.EdgeBasedOn, ToID: recorded[0].DecisionID, Weight: 1}); err != nil {
		logging.Get(logging.CategoryJSONRPC).Warn("failed to link engram %s: %v", engramID, err)
	}

	return map[string]any{
		"engram_id":          engramID,
		"decisions_recorded": recorded,
		"status":             "recorded",
	}, nil
}
