package repair

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tensor-ninja/agent-fix/internal/config"
	"github.com/tensor-ninja/agent-fix/internal/index"
	"github.com/tensor-ninja/agent-fix/internal/llm"
	"github.com/tensor-ninja/agent-fix/internal/llm/mock"
	repaircore "github.com/tensor-ninja/agent-fix/internal/repair"
	"github.com/tensor-ninja/agent-fix/internal/rpc"
	"github.com/tensor-ninja/agent-fix/internal/sandbox"
)

type passingExecutor struct{}

func (passingExecutor) RunTest(context.Context, string, []string) (sandbox.Result, error) {
	return sandbox.Result{Success: true, Output: sandbox.AllTestsPassedMarker}, nil
}

func (passingExecutor) InstallDependency(context.Context, string) (sandbox.Result, error) {
	return sandbox.Result{Success: true}, nil
}

type fixedIndex struct {
	matches []index.Match
	queries []string
}

func (f *fixedIndex) Query(_ context.Context, text string, _ int) ([]index.Match, error) {
	f.queries = append(f.queries, text)
	return f.matches, nil
}

func newRunnerOrchestrator(t *testing.T, narration string) *repaircore.Orchestrator {
	t.Helper()
	registry := llm.NewRegistry()
	registry.RegisterProvider("mock", &mock.Provider{
		ChatFn: func(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{Message: llm.ChatMessage{
				Role:    llm.RoleAssistant,
				Content: narration,
				ToolCalls: []llm.ToolCall{{
					ID:   "call-1",
					Type: "function",
					Function: llm.ToolFunctionCall{
						Name:      repaircore.ActionExecuteAndTest,
						Arguments: json.RawMessage(`{"code":"x = 1","tests":["assert x == 1"]}`),
					},
				}},
			}}, nil
		},
	})
	registry.RegisterModel("fixer", llm.ModelRoute{Provider: "mock", Model: "fixer-1"}, true)
	return repaircore.NewOrchestrator(registry, passingExecutor{}, config.RepairConfig{MaxAttempts: 5}, zap.NewNop())
}

func TestRunnerTranslatesEvents(t *testing.T) {
	runner := &RepairRunner{Orchestrator: newRunnerOrchestrator(t, "Applying the fix now")}
	httpReq := httptest.NewRequest(http.MethodPost, "/repair/run", nil)

	events, err := runner.Run(httpReq, rpc.RunRepairRequest{SessionID: "s1", Title: "t", Description: "d"})
	require.NoError(t, err)

	var collected []rpc.RepairEvent
	for ev := range events {
		collected = append(collected, ev)
	}
	require.NotEmpty(t, collected)

	last := collected[len(collected)-1]
	assert.Equal(t, "done", last.Type)
	assert.True(t, last.Done)
	require.NotNil(t, last.Outcome)
	assert.True(t, last.Outcome.Success)

	var tokens []string
	sawMessage := false
	for _, ev := range collected {
		assert.Equal(t, "s1", ev.SessionID)
		switch ev.Type {
		case "token":
			tokens = append(tokens, ev.Token)
		case "message":
			sawMessage = true
			assert.Equal(t, "Applying the fix now", ev.Message)
		}
	}
	assert.True(t, sawMessage)
	assert.Equal(t, []string{"Applying", "the", "fix", "now"}, tokens)
}

func TestRunnerRetrievesContextForQuery(t *testing.T) {
	idx := &fixedIndex{matches: []index.Match{{Identifier: "util.py", Content: "def add(a, b): return a - b", Score: 0.92}}}
	runner := &RepairRunner{Orchestrator: newRunnerOrchestrator(t, ""), Index: idx}
	httpReq := httptest.NewRequest(http.MethodPost, "/repair/run", nil)

	events, err := runner.Run(httpReq, rpc.RunRepairRequest{
		SessionID:    "s1",
		Title:        "add broken",
		Description:  "add subtracts",
		ContextQuery: "def add",
	})
	require.NoError(t, err)
	for range events {
	}

	assert.Equal(t, []string{"def add"}, idx.queries)
}

func TestRunnerWithoutOrchestratorEmitsError(t *testing.T) {
	runner := &RepairRunner{}
	httpReq := httptest.NewRequest(http.MethodPost, "/repair/run", nil)

	events, err := runner.Run(httpReq, rpc.RunRepairRequest{Title: "t"})
	require.NoError(t, err)

	var collected []rpc.RepairEvent
	for ev := range events {
		collected = append(collected, ev)
	}
	require.Len(t, collected, 1)
	assert.Equal(t, "error", collected[0].Type)
}
