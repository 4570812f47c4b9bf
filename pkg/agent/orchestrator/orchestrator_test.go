package orchestrator

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"ai-taskagent-be/pkg/agent/access"
	"ai-taskagent-be/pkg/agent/analyzer"
	"ai-taskagent-be/pkg/agent/contextstore"
	"ai-taskagent-be/pkg/agent/inference"
	"ai-taskagent-be/pkg/agent/store"
	"ai-taskagent-be/pkg/agent/workflow"
	"ai-taskagent-be/pkg/events"

	"github.com/google/uuid"
)

// mapInference scripts classification per message text. Answer echoes
// a canned reply.
type mapInference struct {
	classifications map[string]*inference.ClassifyResult
	classifyErr     error
	answer          string
	answerErr       error
	answerCalls     int
}

func (m *mapInference) Classify(ctx context.Context, text, contextSummary string) (*inference.ClassifyResult, error) {
	if m.classifyErr != nil {
		return nil, m.classifyErr
	}
	if result, ok := m.classifications[text]; ok {
		return result, nil
	}
	return &inference.ClassifyResult{Type: analyzer.TypeSimpleAnswer, Confidence: 0.9}, nil
}

func (m *mapInference) Extract(ctx context.Context, text string, schema []inference.FieldSchema) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func (m *mapInference) Answer(ctx context.Context, text, contextSummary string) (string, error) {
	m.answerCalls++
	if m.answerErr != nil {
		return "", m.answerErr
	}
	return m.answer, nil
}

type countingStore struct {
	contextstore.ContextStore
	saves int
}

func (c *countingStore) Save(ctx context.Context, session *store.Session) error {
	c.saves++
	return c.ContextStore.Save(ctx, session)
}

type failingLoadStore struct {
	contextstore.ContextStore
}

func (f *failingLoadStore) Load(ctx context.Context, sessionID string) (*store.Session, error) {
	return nil, errors.New("corrupt payload")
}

type staticPolicy struct{}

func (staticPolicy) ScopeFor(ctx context.Context, userID uuid.UUID) (access.ScopeFilter, error) {
	return access.UserScope(userID), nil
}

type recordingPublisher struct {
	published []events.Event
}

func (r *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	r.published = append(r.published, event)
	return nil
}

func testWorkflow() *workflow.Definition {
	return &workflow.Definition{ID: "create_thing", Steps: []workflow.Step{
		{
			Name:          "collect_name",
			ExpectedField: "name",
			Prompt:        "What's it called?",
			Run: func(ctx context.Context, sc *workflow.StepContext) workflow.Outcome {
				return workflow.Success(map[string]interface{}{"name": sc.Message})
			},
			OnSuccess: "save",
			OnFailure: "collect_name",
		},
		{
			Name: "save",
			Auto: true,
			Run: func(ctx context.Context, sc *workflow.StepContext) workflow.Outcome {
				return workflow.Success(map[string]interface{}{"id": "t1", "message": "Thing created."})
			},
			OnSuccess: workflow.StepComplete,
			OnFailure: workflow.StepError,
		},
	}}
}

type harness struct {
	orchestrator *Orchestrator
	store        *countingStore
	publisher    *recordingPublisher
	userID       uuid.UUID
}

func newHarness(t *testing.T, client inference.Client) *harness {
	t.Helper()
	logger := log.New(io.Discard, "", 0)

	registry := workflow.NewRegistry()
	if err := registry.Register(testWorkflow()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	cs := &countingStore{ContextStore: contextstore.NewMemoryStore(time.Minute)}
	publisher := &recordingPublisher{}
	engine := workflow.NewEngine(registry, nil, nil, client, logger)
	messageAnalyzer := analyzer.NewAnalyzer(client, registry, logger)

	return &harness{
		orchestrator: NewOrchestrator(cs, messageAnalyzer, engine, client, staticPolicy{}, publisher, logger),
		store:        cs,
		publisher:    publisher,
		userID:       uuid.New(),
	}
}

func TestTurnStartsWorkflowAndPersistsOnce(t *testing.T) {
	client := &mapInference{
		classifications: map[string]*inference.ClassifyResult{
			"make a thing": {Type: analyzer.TypeNewWorkflowRequest, Confidence: 0.95, Workflow: "create_thing"},
		},
	}
	h := newHarness(t, client)

	result, err := h.orchestrator.ProcessMessage(context.Background(), "s1", h.userID, "make a thing", false)
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if result.Response != "What's it called?" {
		t.Errorf("Response = %q, want first prompt", result.Response)
	}
	if result.Strategy != store.StrategyGuidedFlow {
		t.Errorf("Strategy = %q, want guided_flow", result.Strategy)
	}
	if h.store.saves != 1 {
		t.Errorf("saves = %d, want exactly 1 per turn", h.store.saves)
	}

	persisted, err := h.store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if persisted.StackDepth() != 1 {
		t.Errorf("persisted StackDepth = %d, want 1", persisted.StackDepth())
	}
	if len(persisted.History) != 2 {
		t.Errorf("persisted history len = %d, want user+assistant", len(persisted.History))
	}
}

func TestWorkflowCompletionPublishesEvent(t *testing.T) {
	client := &mapInference{
		classifications: map[string]*inference.ClassifyResult{
			"make a thing": {Type: analyzer.TypeNewWorkflowRequest, Confidence: 0.95, Workflow: "create_thing"},
			"Widget":       {Type: analyzer.TypeWorkflowContinuation, Confidence: 0.95},
		},
	}
	h := newHarness(t, client)
	ctx := context.Background()

	if _, err := h.orchestrator.ProcessMessage(ctx, "s1", h.userID, "make a thing", false); err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}

	result, err := h.orchestrator.ProcessMessage(ctx, "s1", h.userID, "Widget", false)
	if err != nil {
		t.Fatalf("turn 2 failed: %v", err)
	}
	if result.Response != "Thing created." {
		t.Errorf("Response = %q, want completion message", result.Response)
	}
	if result.Strategy != store.StrategyConversational {
		t.Errorf("Strategy = %q, want conversational after completion", result.Strategy)
	}

	if len(h.publisher.published) != 1 {
		t.Fatalf("published events = %d, want 1", len(h.publisher.published))
	}
	event := h.publisher.published[0]
	if event.EventType() != "WORKFLOW_COMPLETED" {
		t.Errorf("EventType = %q, want WORKFLOW_COMPLETED", event.EventType())
	}
	if event.Payload()["workflow_id"] != "create_thing" {
		t.Errorf("event workflow_id = %v, want create_thing", event.Payload()["workflow_id"])
	}
}

func TestCancellationClearsStack(t *testing.T) {
	client := &mapInference{
		classifications: map[string]*inference.ClassifyResult{
			"make a thing": {Type: analyzer.TypeNewWorkflowRequest, Confidence: 0.95, Workflow: "create_thing"},
		},
	}
	h := newHarness(t, client)
	ctx := context.Background()

	if _, err := h.orchestrator.ProcessMessage(ctx, "s1", h.userID, "make a thing", false); err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}

	// "cancel" hits the analyzer's keyword fast path.
	result, err := h.orchestrator.ProcessMessage(ctx, "s1", h.userID, "cancel", false)
	if err != nil {
		t.Fatalf("cancel turn failed: %v", err)
	}
	if result.Strategy != store.StrategyConversational {
		t.Errorf("Strategy = %q, want conversational", result.Strategy)
	}

	persisted, _ := h.store.Load(ctx, "s1")
	if persisted.StackDepth() != 0 {
		t.Errorf("stack not cleared: depth %d", persisted.StackDepth())
	}

	if len(h.publisher.published) != 1 || h.publisher.published[0].EventType() != "WORKFLOW_CANCELLED" {
		t.Errorf("expected one cancelled event, got %+v", h.publisher.published)
	}
}

func TestCancellationWithNothingInFlight(t *testing.T) {
	h := newHarness(t, &mapInference{})

	result, err := h.orchestrator.ProcessMessage(context.Background(), "s1", h.userID, "cancel", false)
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if !strings.Contains(result.Response, "nothing in progress") {
		t.Errorf("Response = %q, want nothing-to-cancel notice", result.Response)
	}
	if len(h.publisher.published) != 0 {
		t.Errorf("no event expected, got %d", len(h.publisher.published))
	}
}

// When classification is unavailable the turn degrades to a
// conversational apology and the workflow stack survives untouched.
func TestInferenceOutageLeavesStackIntact(t *testing.T) {
	client := &mapInference{
		classifications: map[string]*inference.ClassifyResult{
			"make a thing": {Type: analyzer.TypeNewWorkflowRequest, Confidence: 0.95, Workflow: "create_thing"},
		},
	}
	h := newHarness(t, client)
	ctx := context.Background()

	if _, err := h.orchestrator.ProcessMessage(ctx, "s1", h.userID, "make a thing", false); err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}

	client.classifyErr = errors.New("model overloaded")
	result, err := h.orchestrator.ProcessMessage(ctx, "s1", h.userID, "Widget", false)
	if err != nil {
		t.Fatalf("outage turn returned error: %v", err)
	}
	if result.Strategy != store.StrategyConversational {
		t.Errorf("Strategy = %q, want conversational fallback", result.Strategy)
	}

	persisted, _ := h.store.Load(ctx, "s1")
	if persisted.StackDepth() != 1 {
		t.Errorf("stack depth = %d, want 1 (untouched)", persisted.StackDepth())
	}
	if persisted.ActiveFrame().CurrentStep != "collect_name" {
		t.Errorf("step moved during outage: %q", persisted.ActiveFrame().CurrentStep)
	}
}

// A dead answer path is retried a bounded number of times, then the
// turn degrades without touching the workflow stack.
func TestAnswerOutageKeepsProgress(t *testing.T) {
	client := &mapInference{
		answerErr: errors.New("inference down"),
		classifications: map[string]*inference.ClassifyResult{
			"make a thing":        {Type: analyzer.TypeNewWorkflowRequest, Confidence: 0.95, Workflow: "create_thing"},
			"what's the weather?": {Type: analyzer.TypeNormalQuestion, Confidence: 0.9},
		},
	}
	h := newHarness(t, client)
	ctx := context.Background()

	if _, err := h.orchestrator.ProcessMessage(ctx, "s1", h.userID, "make a thing", false); err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}

	result, err := h.orchestrator.ProcessMessage(ctx, "s1", h.userID, "what's the weather?", false)
	if err != nil {
		t.Fatalf("outage turn returned error: %v", err)
	}
	if !strings.Contains(result.Response, "kept your progress") {
		t.Errorf("Response = %q, want degraded-but-safe notice", result.Response)
	}
	if client.answerCalls != 3 {
		t.Errorf("answer calls = %d, want 3 (bounded retries)", client.answerCalls)
	}

	persisted, _ := h.store.Load(ctx, "s1")
	if persisted.StackDepth() != 1 || persisted.ActiveFrame().CurrentStep != "collect_name" {
		t.Errorf("workflow state disturbed: depth %d, step %q",
			persisted.StackDepth(), persisted.ActiveFrame().CurrentStep)
	}
}

func TestNormalQuestionKeepsWorkflowAndReminds(t *testing.T) {
	client := &mapInference{
		answer: "Paris.",
		classifications: map[string]*inference.ClassifyResult{
			"make a thing":                  {Type: analyzer.TypeNewWorkflowRequest, Confidence: 0.95, Workflow: "create_thing"},
			"what's the capital of France?": {Type: analyzer.TypeNormalQuestion, Confidence: 0.9},
		},
	}
	h := newHarness(t, client)
	ctx := context.Background()

	if _, err := h.orchestrator.ProcessMessage(ctx, "s1", h.userID, "make a thing", false); err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}

	result, err := h.orchestrator.ProcessMessage(ctx, "s1", h.userID, "what's the capital of France?", false)
	if err != nil {
		t.Fatalf("aside turn failed: %v", err)
	}
	if !strings.HasPrefix(result.Response, "Paris.") {
		t.Errorf("Response = %q, want the answer first", result.Response)
	}
	if !strings.Contains(result.Response, "What's it called?") {
		t.Errorf("Response = %q, want resume prompt appended", result.Response)
	}

	persisted, _ := h.store.Load(ctx, "s1")
	if persisted.StackDepth() != 1 {
		t.Errorf("aside disturbed the stack: depth %d", persisted.StackDepth())
	}
}

func TestUnloadableSessionReportsContextReset(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	client := &mapInference{answer: "Hello!"}

	registry := workflow.NewRegistry()
	if err := registry.Register(testWorkflow()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	cs := &failingLoadStore{ContextStore: contextstore.NewMemoryStore(time.Minute)}
	o := NewOrchestrator(
		cs,
		analyzer.NewAnalyzer(client, registry, logger),
		workflow.NewEngine(registry, nil, nil, client, logger),
		client,
		staticPolicy{},
		nil,
		logger,
	)

	result, err := o.ProcessMessage(context.Background(), "s1", uuid.New(), "hi", false)
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if !result.ContextReset {
		t.Error("ContextReset not reported for unloadable session")
	}
	if result.Response != "Hello!" {
		t.Errorf("Response = %q, want conversational answer", result.Response)
	}
}

// A resumed conversation whose agent context expired tells the user,
// where a genuinely new conversation does not.
func TestExpiredSessionReportsContextReset(t *testing.T) {
	h := newHarness(t, &mapInference{answer: "Hello!"})
	ctx := context.Background()

	result, err := h.orchestrator.ProcessMessage(ctx, "s1", h.userID, "hi", true)
	if err != nil {
		t.Fatalf("resumed turn failed: %v", err)
	}
	if !result.ContextReset {
		t.Error("ContextReset not reported for expired resumed session")
	}

	result, err = h.orchestrator.ProcessMessage(ctx, "s2", h.userID, "hi", false)
	if err != nil {
		t.Fatalf("fresh turn failed: %v", err)
	}
	if result.ContextReset {
		t.Error("ContextReset reported for a first message")
	}
}

func TestResetSessionDeletesState(t *testing.T) {
	client := &mapInference{
		classifications: map[string]*inference.ClassifyResult{
			"make a thing": {Type: analyzer.TypeNewWorkflowRequest, Confidence: 0.95, Workflow: "create_thing"},
		},
	}
	h := newHarness(t, client)
	ctx := context.Background()

	if _, err := h.orchestrator.ProcessMessage(ctx, "s1", h.userID, "make a thing", false); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if err := h.orchestrator.ResetSession(ctx, "s1"); err != nil {
		t.Fatalf("ResetSession failed: %v", err)
	}

	if _, err := h.store.Load(ctx, "s1"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("error after reset = %v, want ErrSessionNotFound", err)
	}

	// The per-session lock entry goes with the state, keeping the lock
	// map bounded by live sessions.
	if _, held := h.orchestrator.locks.Load("s1"); held {
		t.Error("lock entry survived ResetSession")
	}
}
