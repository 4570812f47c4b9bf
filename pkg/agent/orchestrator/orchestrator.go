package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"ai-taskagent-be/pkg/agent/access"
	"ai-taskagent-be/pkg/agent/analyzer"
	"ai-taskagent-be/pkg/agent/contextstore"
	"ai-taskagent-be/pkg/agent/inference"
	"ai-taskagent-be/pkg/agent/store"
	"ai-taskagent-be/pkg/agent/workflow"
	"ai-taskagent-be/pkg/events"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// Every collaborator call gets the same bounded treatment: a
// per-attempt timeout and exponential backoff up to three tries.
const (
	collaboratorTimeout = 15 * time.Second
	collaboratorRetries = 3
)

// EventPublisher receives audit events for completed and cancelled
// workflows. Implementations must tolerate being called concurrently.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// TurnResult is what one processed message yields.
type TurnResult struct {
	Strategy       string                 `json:"strategy"`
	Response       string                 `json:"response"`
	Data           map[string]interface{} `json:"data,omitempty"`
	PendingChoices []store.Choice         `json:"pending_choices,omitempty"`

	// ContextReset signals that the session could not be loaded and the
	// turn ran against a fresh one.
	ContextReset bool `json:"context_reset,omitempty"`
}

// Orchestrator is the single entry point for a user turn: it loads the
// session, classifies the message, dispatches to the matching handler,
// and persists the session exactly once at the end of the turn.
type Orchestrator struct {
	contextStore contextstore.ContextStore
	analyzer     *analyzer.Analyzer
	engine       *workflow.Engine
	inference    inference.Client
	policy       access.Policy
	publisher    EventPublisher
	logger       *log.Logger

	locks sync.Map // sessionID -> *sync.Mutex
}

func NewOrchestrator(
	ctxStore contextstore.ContextStore,
	messageAnalyzer *analyzer.Analyzer,
	engine *workflow.Engine,
	inferenceClient inference.Client,
	policy access.Policy,
	publisher EventPublisher,
	logger *log.Logger,
) *Orchestrator {
	return &Orchestrator{
		contextStore: ctxStore,
		analyzer:     messageAnalyzer,
		engine:       engine,
		inference:    inferenceClient,
		policy:       policy,
		publisher:    publisher,
		logger:       logger,
	}
}

// ProcessMessage handles one user message for one session. Turns
// addressing the same session id are serialized; different sessions
// proceed concurrently. resumed tells the orchestrator the caller
// addressed a pre-existing conversation, so a missing context row
// means expiry rather than a first message.
func (o *Orchestrator) ProcessMessage(ctx context.Context, sessionID string, userID uuid.UUID, message string, resumed bool) (*TurnResult, error) {
	mu := o.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, reset := o.loadSession(ctx, sessionID, userID, resumed)

	scope, err := o.policy.ScopeFor(ctx, userID)
	if err != nil {
		o.logger.Printf("[ORCHESTRATOR] Scope lookup failed, degrading to user scope: %v", err)
		scope = access.UserScope(userID)
	}

	classification, err := o.classifyWithRetry(ctx, message, session)
	if err != nil {
		// Inference is down. Answer conversationally without touching the
		// stack, so the workflow resumes once the service recovers.
		o.logger.Printf("[ORCHESTRATOR] Classification unavailable: %v", err)
		result := &TurnResult{
			Strategy:     store.StrategyConversational,
			Response:     "I'm having trouble understanding requests right now. Your current task is untouched; please try again in a moment.",
			ContextReset: reset,
		}
		o.finishTurn(ctx, session, message, result)
		return result, nil
	}

	result, err := o.dispatch(ctx, session, message, scope, classification)
	if err != nil {
		var external *store.ExternalServiceError
		if errors.As(err, &external) {
			o.logger.Printf("[ORCHESTRATOR] External dependency failed mid-turn: %v", err)
			result = &TurnResult{
				Strategy: store.StrategyConversational,
				Response: "One of my data sources is unavailable right now. I've kept your progress; please try again shortly.",
			}
		} else if result == nil {
			return nil, err
		}
	}

	result.ContextReset = reset
	o.finishTurn(ctx, session, message, result)
	return result, nil
}

// ResetSession deletes the persisted session state.
func (o *Orchestrator) ResetSession(ctx context.Context, sessionID string) error {
	mu := o.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()
	// Drop the lock entry too, or the map grows one mutex per dead
	// session id.
	defer o.locks.Delete(sessionID)
	return o.contextStore.Delete(ctx, sessionID)
}

func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	lock, _ := o.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// loadSession returns the persisted session or a fresh one. A missing
// or corrupt session never fails the turn: the user is told their
// context was reset and the conversation restarts cleanly. A plain
// miss on a resumed conversation is a TTL expiry, which is also a
// reset from the user's point of view.
func (o *Orchestrator) loadSession(ctx context.Context, sessionID string, userID uuid.UUID, resumed bool) (*store.Session, bool) {
	session, err := o.contextStore.Load(ctx, sessionID)
	if err == nil {
		return session, false
	}

	if !errors.Is(err, store.ErrSessionNotFound) {
		o.logger.Printf("[ORCHESTRATOR] Session %s load failed, starting fresh: %v", sessionID, err)
		return store.NewSession(sessionID, userID.String()), true
	}

	if resumed {
		o.logger.Printf("[ORCHESTRATOR] Session %s context expired, starting fresh", sessionID)
	}
	return store.NewSession(sessionID, userID.String()), resumed
}

// classifyWithRetry wraps the analyzer call with exponential backoff.
// Transient inference failures are retried; the analyzer's own cache
// makes retried calls cheap.
func (o *Orchestrator) classifyWithRetry(ctx context.Context, message string, session *store.Session) (*analyzer.Classification, error) {
	operation := func() (*analyzer.Classification, error) {
		callCtx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
		defer cancel()
		return o.analyzer.Analyze(callCtx, message, session)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(collaboratorRetries),
	)
}

// answerWithRetry applies the same timeout and backoff policy to the
// direct-answer path, so a hung inference call can't pin the turn for
// the life of the request context.
func (o *Orchestrator) answerWithRetry(ctx context.Context, message, contextSummary string) (string, error) {
	operation := func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
		defer cancel()
		return o.inference.Answer(callCtx, message, contextSummary)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(collaboratorRetries),
	)
}

func (o *Orchestrator) dispatch(
	ctx context.Context,
	session *store.Session,
	message string,
	scope access.ScopeFilter,
	classification *analyzer.Classification,
) (*TurnResult, error) {

	o.logger.Printf("[ORCHESTRATOR] Dispatching %s for session %s", classification.Type, session.ID)

	switch classification.Type {
	case analyzer.TypeWorkflowContinuation:
		return o.continueWorkflow(ctx, session, message, scope)

	case analyzer.TypeNormalQuestion:
		return o.answerAside(ctx, session, message)

	case analyzer.TypeSubWorkflowRequest:
		return o.pushSubflow(ctx, session, classification.SuggestedWorkflow)

	case analyzer.TypeCancellation:
		return o.cancelWorkflow(ctx, session)

	case analyzer.TypeNewWorkflowRequest:
		return o.startWorkflow(ctx, session, classification.SuggestedWorkflow)

	case analyzer.TypeSimpleAnswer, analyzer.TypeRAGQuery:
		return o.answerConversational(ctx, session, message)

	default:
		return o.answerConversational(ctx, session, message)
	}
}

func (o *Orchestrator) continueWorkflow(ctx context.Context, session *store.Session, message string, scope access.ScopeFilter) (*TurnResult, error) {
	if session.ActiveFrame() == nil {
		return o.answerConversational(ctx, session, message)
	}

	stepResult, err := o.engine.Step(ctx, session, message, scope)
	if err != nil && stepResult == nil {
		return nil, err
	}

	result := &TurnResult{
		Strategy:       session.Strategy,
		Response:       stepResult.Response,
		Data:           stepResult.Data,
		PendingChoices: stepResult.Choices,
	}

	if stepResult.Status == workflow.StatusCompleted {
		result.Strategy = store.StrategyConversational
		if result.Response == "" {
			result.Response = "All done."
		}
		o.publish(ctx, events.NewWorkflowCompletedEvent(session.ID, session.UserID, stepResult.WorkflowID))
	}

	return result, nil
}

// answerAside answers an off-topic question without touching the
// workflow stack, then reminds the user where they left off.
func (o *Orchestrator) answerAside(ctx context.Context, session *store.Session, message string) (*TurnResult, error) {
	answer, err := o.answerWithRetry(ctx, message, historySummary(session))
	if err != nil {
		return nil, &store.ExternalServiceError{Service: "inference", Err: err}
	}

	response := answer
	if frame := session.ActiveFrame(); frame != nil {
		if def, ok := o.engine.Registry().Get(frame.WorkflowID); ok {
			if step, ok := def.StepByName(frame.CurrentStep); ok && step.Prompt != "" {
				response = answer + "\n\nBack to where we were: " + step.Prompt
			}
		}
	}

	return &TurnResult{Strategy: session.Strategy, Response: response}, nil
}

func (o *Orchestrator) pushSubflow(ctx context.Context, session *store.Session, workflowID string) (*TurnResult, error) {
	entityKey := o.activeEntityKey(session)

	stepResult, err := o.engine.PushSubflow(session, workflowID, entityKey)
	if err != nil && stepResult == nil {
		return nil, err
	}

	return &TurnResult{
		Strategy:       session.Strategy,
		Response:       stepResult.Response,
		PendingChoices: stepResult.Choices,
	}, nil
}

func (o *Orchestrator) cancelWorkflow(ctx context.Context, session *store.Session) (*TurnResult, error) {
	if session.ActiveFrame() == nil {
		return &TurnResult{
			Strategy: store.StrategyConversational,
			Response: "There's nothing in progress to cancel.",
		}, nil
	}

	session.ClearStack()
	session.Strategy = store.StrategyConversational
	o.publish(ctx, events.NewWorkflowCancelledEvent(session.ID, session.UserID))

	return &TurnResult{
		Strategy: store.StrategyConversational,
		Response: "Okay, I've cancelled that. What would you like to do next?",
	}, nil
}

func (o *Orchestrator) startWorkflow(ctx context.Context, session *store.Session, workflowID string) (*TurnResult, error) {
	stepResult, err := o.engine.Start(session, workflowID)
	if err != nil && stepResult == nil {
		return nil, err
	}

	return &TurnResult{
		Strategy: session.Strategy,
		Response: stepResult.Response,
	}, nil
}

func (o *Orchestrator) answerConversational(ctx context.Context, session *store.Session, message string) (*TurnResult, error) {
	answer, err := o.answerWithRetry(ctx, message, historySummary(session))
	if err != nil {
		return nil, &store.ExternalServiceError{Service: "inference", Err: err}
	}

	strategy := session.Strategy
	if session.ActiveFrame() == nil {
		strategy = store.StrategyConversational
		session.Strategy = strategy
	}

	return &TurnResult{Strategy: strategy, Response: answer}, nil
}

// activeEntityKey derives the collected-data key a sub-workflow's
// result should land under: the field the parent's current step is
// waiting for.
func (o *Orchestrator) activeEntityKey(session *store.Session) string {
	frame := session.ActiveFrame()
	if frame == nil {
		return ""
	}
	def, ok := o.engine.Registry().Get(frame.WorkflowID)
	if !ok {
		return ""
	}
	step, ok := def.StepByName(frame.CurrentStep)
	if !ok {
		return ""
	}
	if step.Field != nil {
		return step.Field.Name
	}
	return step.ExpectedField
}

// finishTurn appends the exchange to history and performs the single
// persist of the turn. A failed save is logged, never surfaced: the
// user already has their answer.
func (o *Orchestrator) finishTurn(ctx context.Context, session *store.Session, message string, result *TurnResult) {
	session.AppendHistory("user", message)
	session.AppendHistory("assistant", result.Response)

	if err := o.contextStore.Save(ctx, session); err != nil {
		o.logger.Printf("[ORCHESTRATOR] Session %s save failed: %v", session.ID, err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, event events.Event) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Printf("[ORCHESTRATOR] Event publish failed: %v", err)
	}
}

func historySummary(session *store.Session) string {
	if len(session.History) == 0 {
		return ""
	}
	var summary string
	for _, m := range session.History {
		summary += m.Role + ": " + m.Content + "\n"
	}
	return summary
}
