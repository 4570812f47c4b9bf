package workflow

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"ai-taskagent-be/pkg/agent/access"
	"ai-taskagent-be/pkg/agent/store"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func succeed(data map[string]interface{}) StepFunc {
	return func(ctx context.Context, sc *StepContext) Outcome {
		return Success(data)
	}
}

func fail(reason string) StepFunc {
	return func(ctx context.Context, sc *StepContext) Outcome {
		return Failure(reason)
	}
}

func newTestEngine(t *testing.T, defs ...*Definition) *Engine {
	t.Helper()
	registry := NewRegistry()
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			t.Fatalf("Register(%s) failed: %v", def.ID, err)
		}
	}
	return NewEngine(registry, nil, nil, nil, testLogger())
}

func TestRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		def     *Definition
		wantErr string
	}{
		{
			name:    "no id",
			def:     &Definition{Steps: []Step{{Name: "a", Run: succeed(nil), OnSuccess: StepComplete, OnFailure: StepError}}},
			wantErr: "requires an id",
		},
		{
			name:    "no steps",
			def:     &Definition{ID: "empty"},
			wantErr: "declares no steps",
		},
		{
			name: "duplicate step",
			def: &Definition{ID: "dup", Steps: []Step{
				{Name: "a", Run: succeed(nil), OnSuccess: StepComplete, OnFailure: StepError},
				{Name: "a", Run: succeed(nil), OnSuccess: StepComplete, OnFailure: StepError},
			}},
			wantErr: "duplicate step",
		},
		{
			name: "reserved sentinel as step name",
			def: &Definition{ID: "reserved", Steps: []Step{
				{Name: StepComplete, Run: succeed(nil), OnSuccess: StepComplete, OnFailure: StepError},
			}},
			wantErr: "reserved sentinel",
		},
		{
			name: "dangling transition",
			def: &Definition{ID: "dangling", Steps: []Step{
				{Name: "a", Run: succeed(nil), OnSuccess: "nowhere", OnFailure: StepError},
			}},
			wantErr: "undeclared step",
		},
		{
			name: "step without body",
			def: &Definition{ID: "nobody", Steps: []Step{
				{Name: "a", OnSuccess: StepComplete, OnFailure: StepError},
			}},
			wantErr: "has no body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.def)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestStartPausesAtFirstPrompt(t *testing.T) {
	def := &Definition{ID: "wf", Steps: []Step{
		{Name: "ask", Prompt: "What's the name?", Run: succeed(nil), OnSuccess: StepComplete, OnFailure: StepError},
	}}
	e := newTestEngine(t, def)
	session := store.NewSession("s1", "u1")

	result, err := e.Start(session, "wf")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if result.Status != StatusAwaitingInput {
		t.Errorf("Status = %s, want %s", result.Status, StatusAwaitingInput)
	}
	if result.Response != "What's the name?" {
		t.Errorf("Response = %q, want first prompt", result.Response)
	}
	if session.Strategy != store.StrategyGuidedFlow {
		t.Errorf("Strategy = %q, want guided_flow", session.Strategy)
	}
	if session.StackDepth() != 1 {
		t.Errorf("StackDepth = %d, want 1", session.StackDepth())
	}
}

func TestStartUnknownWorkflow(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Start(store.NewSession("s1", "u1"), "ghost"); err == nil {
		t.Fatal("expected error for unknown workflow")
	}
}

func TestStepAdvancesToNextPrompt(t *testing.T) {
	def := &Definition{ID: "wf", Steps: []Step{
		{Name: "first", Prompt: "First?", Run: succeed(map[string]interface{}{"a": 1}), OnSuccess: "second", OnFailure: "first"},
		{Name: "second", Prompt: "Second?", Run: succeed(nil), OnSuccess: StepComplete, OnFailure: StepError},
	}}
	e := newTestEngine(t, def)
	session := store.NewSession("s1", "u1")
	_, _ = e.Start(session, "wf")

	result, err := e.Step(context.Background(), session, "value", access.ScopeFilter{})
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if result.Status != StatusAwaitingInput || result.Response != "Second?" {
		t.Errorf("result = (%s, %q), want awaiting second prompt", result.Status, result.Response)
	}

	frame := session.ActiveFrame()
	if frame.CurrentStep != "second" {
		t.Errorf("CurrentStep = %q, want second", frame.CurrentStep)
	}
	if frame.CollectedData["a"] != 1 {
		t.Errorf("collected data not merged: %v", frame.CollectedData)
	}
}

// A terminal Auto step must run in the same turn as the last collected
// field: the user never has to say something extra to trigger the save.
func TestAutoStepChainsToCompletion(t *testing.T) {
	saved := false
	def := &Definition{ID: "wf", Steps: []Step{
		{Name: "collect", Prompt: "Name?", Run: succeed(map[string]interface{}{"name": "x"}), OnSuccess: "save", OnFailure: "collect"},
		{Name: "save", Auto: true, Run: func(ctx context.Context, sc *StepContext) Outcome {
			saved = true
			return Success(map[string]interface{}{"id": "r1", "message": "Created."})
		}, OnSuccess: StepComplete, OnFailure: StepError},
	}}
	e := newTestEngine(t, def)
	session := store.NewSession("s1", "u1")
	_, _ = e.Start(session, "wf")

	result, err := e.Step(context.Background(), session, "x", access.ScopeFilter{})
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if !saved {
		t.Error("auto step did not execute")
	}
	if result.Status != StatusCompleted {
		t.Errorf("Status = %s, want %s", result.Status, StatusCompleted)
	}
	if result.Response != "Created." {
		t.Errorf("Response = %q, want completion message", result.Response)
	}
	if result.WorkflowID != "wf" {
		t.Errorf("WorkflowID = %q, want wf", result.WorkflowID)
	}
	if session.StackDepth() != 0 {
		t.Errorf("stack not cleared: depth %d", session.StackDepth())
	}
	if session.Strategy != store.StrategyConversational {
		t.Errorf("Strategy = %q, want conversational", session.Strategy)
	}
}

func TestRetryExhaustionAbortsWorkflow(t *testing.T) {
	def := &Definition{ID: "wf", Steps: []Step{
		{Name: "pick", Prompt: "Pick?", Run: fail("Bad value."), OnSuccess: StepComplete, OnFailure: "pick"},
	}}
	e := newTestEngine(t, def)
	session := store.NewSession("s1", "u1")
	_, _ = e.Start(session, "wf")

	ctx := context.Background()
	scope := access.ScopeFilter{}

	// Three failures stay within the budget and re-prompt.
	for i := 0; i < DefaultMaxRetries; i++ {
		result, err := e.Step(ctx, session, "junk", scope)
		if err != nil {
			t.Fatalf("attempt %d errored: %v", i+1, err)
		}
		if result.Status != StatusAwaitingInput {
			t.Fatalf("attempt %d status = %s, want awaiting_input", i+1, result.Status)
		}
		if !strings.Contains(result.Response, "Bad value.") {
			t.Errorf("attempt %d response missing failure reason: %q", i+1, result.Response)
		}
	}

	// The fourth failure exceeds the budget.
	result, err := e.Step(ctx, session, "junk", scope)
	if result == nil || result.Status != StatusAborted {
		t.Fatalf("expected aborted result, got %+v", result)
	}
	var exhausted *store.RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want RetryExhaustedError", err)
	}
	if exhausted.Attempts != DefaultMaxRetries+1 {
		t.Errorf("Attempts = %d, want %d", exhausted.Attempts, DefaultMaxRetries+1)
	}
	if session.StackDepth() != 0 {
		t.Errorf("stack not cleared after abort: depth %d", session.StackDepth())
	}
}

func TestAwaitingInputDoesNotCountRetry(t *testing.T) {
	def := &Definition{ID: "wf", Steps: []Step{
		{Name: "pick", Prompt: "Pick?", Run: func(ctx context.Context, sc *StepContext) Outcome {
			return AwaitingInput("Which one?", []store.Choice{{ID: "1", Label: "A"}})
		}, OnSuccess: StepComplete, OnFailure: "pick"},
	}}
	e := newTestEngine(t, def)
	session := store.NewSession("s1", "u1")
	_, _ = e.Start(session, "wf")

	for i := 0; i < DefaultMaxRetries+2; i++ {
		result, err := e.Step(context.Background(), session, "hm", access.ScopeFilter{})
		if err != nil {
			t.Fatalf("Step errored: %v", err)
		}
		if result.Status != StatusAwaitingInput {
			t.Fatalf("Status = %s, want awaiting_input", result.Status)
		}
		if len(result.Choices) != 1 {
			t.Errorf("Choices len = %d, want 1", len(result.Choices))
		}
	}

	if got := session.ActiveFrame().RetryCounts["pick"]; got != 0 {
		t.Errorf("retry count = %d, want 0", got)
	}
}

func TestSubflowPushAndResume(t *testing.T) {
	parentRuns := 0
	parent := &Definition{ID: "parent", Steps: []Step{
		{Name: "need_customer", ExpectedField: "customer", Prompt: "Which customer?", Run: func(ctx context.Context, sc *StepContext) Outcome {
			parentRuns++
			if injected, ok := sc.Frame.CollectedData["customer"].(map[string]interface{}); ok {
				return Success(map[string]interface{}{"customer_name": injected["name"]})
			}
			return NeedsSubflow("child", "customer")
		}, OnSuccess: "finish", OnFailure: "need_customer"},
		{Name: "finish", Auto: true, Run: succeed(map[string]interface{}{"message": "Done."}), OnSuccess: StepComplete, OnFailure: StepError},
	}}
	child := &Definition{ID: "child", Steps: []Step{
		{Name: "collect", Prompt: "New customer name?", Run: func(ctx context.Context, sc *StepContext) Outcome {
			return Success(map[string]interface{}{"name": sc.Message})
		}, OnSuccess: StepComplete, OnFailure: "collect"},
	}}

	e := newTestEngine(t, parent, child)
	session := store.NewSession("s1", "u1")
	ctx := context.Background()
	scope := access.ScopeFilter{}

	_, _ = e.Start(session, "parent")

	// Unresolvable customer pushes the child workflow.
	result, err := e.Step(ctx, session, "Unknown Person", scope)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if result.Status != StatusAwaitingInput || !strings.Contains(result.Response, "New customer name?") {
		t.Fatalf("result = (%s, %q), want child prompt", result.Status, result.Response)
	}
	if session.StackDepth() != 2 {
		t.Fatalf("StackDepth = %d, want 2", session.StackDepth())
	}
	childFrame := session.ActiveFrame()
	if childFrame.ReturnStep != "need_customer" || childFrame.EntityKey != "customer" {
		t.Errorf("child frame = %+v, want return step and entity key set", childFrame)
	}

	// Completing the child resumes the parent without executing it in
	// the same turn: state only.
	runsBefore := parentRuns
	result, err = e.Step(ctx, session, "Jane Doe", scope)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if result.Status != StatusAwaitingInput {
		t.Fatalf("Status = %s, want awaiting_input", result.Status)
	}
	if parentRuns != runsBefore {
		t.Errorf("parent step executed during subflow unwind")
	}
	if session.StackDepth() != 1 {
		t.Fatalf("StackDepth = %d, want 1", session.StackDepth())
	}

	base := session.ActiveFrame()
	if base.CurrentStep != "need_customer" {
		t.Errorf("CurrentStep = %q, want need_customer", base.CurrentStep)
	}
	injected, ok := base.CollectedData["customer"].(map[string]interface{})
	if !ok || injected["name"] != "Jane Doe" {
		t.Fatalf("child data not injected: %v", base.CollectedData)
	}

	// The next turn re-executes the parent step with the injected data.
	result, err = e.Step(ctx, session, "here you go", scope)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", result.Status)
	}
}

func TestStackOverflowAborts(t *testing.T) {
	def := &Definition{ID: "wf", Steps: []Step{
		{Name: "a", Prompt: "?", Run: succeed(nil), OnSuccess: StepComplete, OnFailure: StepError},
	}}
	e := newTestEngine(t, def)
	session := store.NewSession("s1", "u1")

	for i := 0; i < store.MaxStackDepth; i++ {
		if err := session.PushFrame(store.NewFrame("wf", "a")); err != nil {
			t.Fatalf("setup push %d failed: %v", i, err)
		}
	}

	result, err := e.Start(session, "wf")
	if result == nil || result.Status != StatusAborted {
		t.Fatalf("expected aborted result, got %+v", result)
	}
	var overflow *store.StackOverflowError
	if !errors.As(err, &overflow) {
		t.Fatalf("error = %v, want StackOverflowError", err)
	}
	if session.StackDepth() != 0 {
		t.Errorf("stack not cleared: depth %d", session.StackDepth())
	}
}
