package jsonrpc

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/membria/membria-core/internal/calibration"
	membriactx "github.com/membria/membria-core/internal/context"
	"github.com/membria/membria-core/internal/chains"
	"github.com/membria/membria-core/internal/config"
	"github.com/membria/membria-core/internal/firewall"
	"github.com/membria/membria-core/internal/memory"
	"github.com/membria/membria-core/internal/outcome"
	"github.com/membria/membria-core/internal/pattern"
	"github.com/membria/membria-core/internal/store"
)

func openTestTools(t *testing.T) *Tools {
	t.Helper()
	gs, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { gs.Close() })

	calc := calibration.New(gs)
	extractor := pattern.New(gs)
	mem := memory.New(gs, memory.DefaultPolicy())
	tracker := outcome.New(gs, calc, func() int64 { return 1_700_000_000 })
	composer := chains.New(gs, calc, extractor)
	ctxMgr := membriactx.New(gs, calc, extractor, composer, config.DefaultStore())
	fw := firewall.New(gs, config.DefaultStore())

	return NewTools(gs, mem, tracker, calc, extractor, ctxMgr, fw)
}

func TestCaptureDecisionThenRecordOutcome(t *testing.T) {
	tools := openTestTools(t)
	srv := NewServer()
	tools.Register(srv)

	raw, _ := json.Marshal(map[string]any{
		"name": "membria.capture_decision",
		"arguments": map[string]any{
			"statement": "use PostgreSQL", "alternatives": []string{"MySQL", "SQLite"}, "confidence": 0.8,
		},
	})
	result, rpcErr := tools.handleToolsCall(context.Background(), raw)
	require.Nil(t, rpcErr)
	content := result.(ToolCallResult).Content[0].Text
	var captured map[string]any
	require.NoError(t, json.Unmarshal([]byte(content), &captured))
	require.Equal(t, "pending", captured["status"])
	decisionID := captured["decision_id"].(string)
	require.NotEmpty(t, decisionID)

	raw2, _ := json.Marshal(map[string]any{
		"name": "membria.record_outcome",
		"arguments": map[string]any{
			"decision_id": decisionID, "final_status": "success", "final_score": 0.9, "decision_domain": "storage",
		},
	})
	result2, rpcErr2 := tools.handleToolsCall(context.Background(), raw2)
	require.Nil(t, rpcErr2)
	require.Contains(t, result2.(ToolCallResult).Content[0].Text, "completed")
}

func TestRecordOutcomeInvalidFinalStatusRejected(t *testing.T) {
	tools := openTestTools(t)
	raw, _ := json.Marshal(map[string]any{
		"name": "membria.record_outcome",
		"arguments": map[string]any{"decision_id": "dec_x", "final_status": "bogus", "final_score": 0.5},
	})
	_, rpcErr := tools.handleToolsCall(context.Background(), raw)
	require.NotNil(t, rpcErr)
	require.Equal(t, CodeInvalidParams, rpcErr.Code)
}

func TestValidatePlanReportsTotalSteps(t *testing.T) {
	tools := openTestTools(t)
	raw, _ := json.Marshal(map[string]any{
		"name":      "membria.validate_plan",
		"arguments": map[string]any{"steps": []string{"do the risky thing"}, "domain": "storage"},
	})
	result, rpcErr := tools.handleToolsCall(context.Background(), raw)
	require.Nil(t, rpcErr)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.(ToolCallResult).Content[0].Text), &decoded))
	require.EqualValues(t, 1, decoded["total_steps"])
}

func TestRecordPlanCreatesDecisionsAndEngram(t *testing.T) {
	tools := openTestTools(t)
	raw, _ := json.Marshal(map[string]any{
		"name": "membria.record_plan",
		"arguments": map[string]any{
			"plan_steps": []string{"step one", "step two"}, "domain": "storage", "plan_confidence": 0.7,
		},
	})
	result, rpcErr := tools.handleToolsCall(context.Background(), raw)
	require.Nil(t, rpcErr)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.(ToolCallResult).Content[0].Text), &decoded))
	require.Equal(t, "recorded", decoded["status"])
	recordedSteps := decoded["decisions_recorded"].([]any)
	require.Len(t, recordedSteps, 2)
}

func TestUnknownToolReturnsMethodNotFound(t *testing.T) {
	tools := openTestTools(t)
	raw, _ := json.Marshal(map[string]any{"name": "membria.nonexistent", "arguments": map[string]any{}})
	_, rpcErr := tools.handleToolsCall(context.Background(), raw)
	require.NotNil(t, rpcErr)
	require.Equal(t, CodeMethodNotFound, rpcErr.Code)
}

func TestInitializeAndToolsList(t *testing.T) {
	tools := openTestTools(t)
	init, rpcErr := tools.handleInitialize(context.Background(), nil)
	require.Nil(t, rpcErr)
	require.NotNil(t, init)

	list, rpcErr2 := tools.handleToolsList(context.Background(), nil)
	require.Nil(t, rpcErr2)
	schemas := list.(map[string]any)["tools"].([]ToolSchema)
	require.Len(t, schemas, 7)
}
