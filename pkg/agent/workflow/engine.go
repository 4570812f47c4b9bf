package workflow

import (
	"context"
	"fmt"
	"log"

	"ai-taskagent-be/pkg/agent/access"
	"ai-taskagent-be/pkg/agent/inference"
	"ai-taskagent-be/pkg/agent/resolver"
	"ai-taskagent-be/pkg/agent/store"
)

// DefaultMaxRetries is the per-step failure budget before the whole
// workflow aborts.
const DefaultMaxRetries = 3

// ResultStatus classifies the state of the workflow after one turn.
type ResultStatus string

const (
	// StatusAwaitingInput means the workflow is paused and the next
	// user message is expected to move it forward.
	StatusAwaitingInput ResultStatus = "awaiting_input"

	// StatusCompleted means the whole workflow (stack empty) finished.
	StatusCompleted ResultStatus = "completed"

	// StatusAborted means the workflow was torn down (retries
	// exhausted, stack overflow, error sentinel).
	StatusAborted ResultStatus = "aborted"
)

// StepResult is what one engine invocation reports back to the
// orchestrator.
type StepResult struct {
	Status     ResultStatus
	Response   string
	Choices    []store.Choice
	Data       map[string]interface{}
	WorkflowID string
}

// Engine executes registered workflow definitions against a session's
// frame stack. Single-threaded per session: the orchestrator
// serializes turns addressing the same session id.
type Engine struct {
	registry   *Registry
	resolver   *resolver.Resolver
	records    resolver.RecordCreator
	inference  inference.Client
	maxRetries int
	logger     *log.Logger
}

func NewEngine(
	registry *Registry,
	entityResolver *resolver.Resolver,
	records resolver.RecordCreator,
	inferenceClient inference.Client,
	logger *log.Logger,
) *Engine {
	return &Engine{
		registry:   registry,
		resolver:   entityResolver,
		records:    records,
		inference:  inferenceClient,
		maxRetries: DefaultMaxRetries,
		logger:     logger,
	}
}

// Registry exposes the definitions the engine runs.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Start pushes a base frame for the named workflow and returns the
// first step's prompt.
func (e *Engine) Start(session *store.Session, workflowID string) (*StepResult, error) {
	def, ok := e.registry.Get(workflowID)
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", workflowID)
	}

	if err := session.PushFrame(store.NewFrame(def.ID, def.FirstStep())); err != nil {
		return e.abortOverflow(session, err)
	}
	session.Strategy = store.StrategyGuidedFlow

	e.logger.Printf("[ENGINE] Started workflow %s at step %s", def.ID, def.FirstStep())

	first, _ := def.StepByName(def.FirstStep())
	return &StepResult{Status: StatusAwaitingInput, Response: first.Prompt}, nil
}

// PushSubflow pushes a sub-workflow frame on top of the active frame,
// recording the parent's current step as the resume point.
func (e *Engine) PushSubflow(session *store.Session, workflowID, entityKey string) (*StepResult, error) {
	parent := session.ActiveFrame()
	if parent == nil {
		// No workflow in flight: a "create X first" request degrades to
		// a plain start.
		return e.Start(session, workflowID)
	}

	def, ok := e.registry.Get(workflowID)
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", workflowID)
	}

	frame := store.NewFrame(def.ID, def.FirstStep())
	frame.ReturnStep = parent.CurrentStep
	frame.EntityKey = entityKey

	if err := session.PushFrame(frame); err != nil {
		return e.abortOverflow(session, err)
	}

	e.logger.Printf("[ENGINE] Pushed subflow %s (return step %s, entity key %s)",
		def.ID, frame.ReturnStep, entityKey)

	first, _ := def.StepByName(def.FirstStep())
	return &StepResult{Status: StatusAwaitingInput, Response: first.Prompt}, nil
}

// Step executes the active frame's current step with the user
// message. The transition decision is applied to the frame that
// executed, addressed by index: a subflow pushed during execution can
// never hijack its parent's transition.
func (e *Engine) Step(
	ctx context.Context,
	session *store.Session,
	message string,
	scope access.ScopeFilter,
) (*StepResult, error) {

	idx := session.StackDepth() - 1
	if session.FrameAt(idx) == nil {
		return nil, fmt.Errorf("no active workflow frame")
	}
	return e.runFrame(ctx, session, idx, message, scope)
}

func (e *Engine) runFrame(
	ctx context.Context,
	session *store.Session,
	idx int,
	message string,
	scope access.ScopeFilter,
) (*StepResult, error) {

	frame := session.FrameAt(idx)

	def, ok := e.registry.Get(frame.WorkflowID)
	if !ok {
		session.ClearStack()
		session.Strategy = store.StrategyConversational
		return nil, fmt.Errorf("frame references unknown workflow %q", frame.WorkflowID)
	}

	stepDef, ok := def.StepByName(frame.CurrentStep)
	if !ok {
		session.ClearStack()
		session.Strategy = store.StrategyConversational
		return nil, fmt.Errorf("workflow %s: frame at undeclared step %q", def.ID, frame.CurrentStep)
	}

	outcome := stepDef.Run(ctx, &StepContext{
		Session:   session,
		Frame:     frame,
		Message:   message,
		Scope:     scope,
		Resolver:  e.resolver,
		Records:   e.records,
		Inference: e.inference,
		Logger:    e.logger,
	})

	e.logger.Printf("[ENGINE] %s/%s -> %s", def.ID, stepDef.Name, outcome.Status)

	switch outcome.Status {
	case OutcomeAwaitingInput:
		return &StepResult{
			Status:   StatusAwaitingInput,
			Response: outcome.Message,
			Choices:  outcome.Choices,
		}, nil

	case OutcomeNeedsSubflow:
		return e.pushFromStep(session, idx, outcome)

	case OutcomeSuccess:
		frame = session.FrameAt(idx)
		frame.Merge(outcome.Data)
		frame.CurrentStep = stepDef.OnSuccess
		return e.settle(ctx, session, idx, scope)

	case OutcomeFailure:
		frame = session.FrameAt(idx)
		attempts := frame.IncrementRetry(stepDef.Name)
		if attempts > e.maxRetries {
			workflowID := frame.WorkflowID
			session.ClearStack()
			session.Strategy = store.StrategyConversational
			err := &store.RetryExhaustedError{WorkflowID: workflowID, Step: stepDef.Name, Attempts: attempts}
			e.logger.Printf("[ENGINE] %v", err)
			return &StepResult{
				Status:   StatusAborted,
				Response: "I couldn't complete that task after several attempts, so I've cancelled it. You can start over whenever you like.",
			}, err
		}
		frame.CurrentStep = stepDef.OnFailure
		return e.settleFailure(ctx, session, idx, scope, outcome.Reason)

	default:
		return nil, fmt.Errorf("workflow %s: step %q returned unknown outcome %q",
			def.ID, stepDef.Name, outcome.Status)
	}
}

// pushFromStep pushes the subflow requested by a step body. The
// parent's step pointer is deliberately not advanced: its transition
// happens only when the parent frame itself executes again, after the
// subflow completes and resumes it.
func (e *Engine) pushFromStep(session *store.Session, parentIdx int, outcome Outcome) (*StepResult, error) {
	def, ok := e.registry.Get(outcome.SubflowID)
	if !ok {
		return nil, fmt.Errorf("step requested unknown subflow %q", outcome.SubflowID)
	}

	parent := session.FrameAt(parentIdx)
	frame := store.NewFrame(def.ID, def.FirstStep())
	frame.ReturnStep = parent.CurrentStep
	frame.EntityKey = outcome.EntityKey

	if err := session.PushFrame(frame); err != nil {
		return e.abortOverflow(session, err)
	}

	e.logger.Printf("[ENGINE] Step pushed subflow %s (return step %s)", def.ID, frame.ReturnStep)

	first, _ := def.StepByName(def.FirstStep())
	response := first.Prompt
	if outcome.Message != "" {
		response = outcome.Message + "\n\n" + first.Prompt
	}
	return &StepResult{Status: StatusAwaitingInput, Response: response}, nil
}

// settle applies terminal sentinels after a successful transition of
// the frame at idx, unwinding completed sub-workflows into their
// parents. Auto steps landed on are executed immediately.
func (e *Engine) settle(ctx context.Context, session *store.Session, idx int, scope access.ScopeFilter) (*StepResult, error) {
	frame := session.FrameAt(idx)

	switch frame.CurrentStep {
	case StepError:
		session.ClearStack()
		session.Strategy = store.StrategyConversational
		return &StepResult{
			Status:   StatusAborted,
			Response: "Something went wrong with that task, so I've stopped it.",
		}, nil

	case StepComplete:
		done, _ := session.PopFrame()

		if done.IsSubflow() {
			parent := session.ActiveFrame()
			if parent == nil {
				// Defensive: a subflow frame always has a parent below it.
				session.Strategy = store.StrategyConversational
				return &StepResult{Status: StatusCompleted, Data: done.CollectedData, WorkflowID: done.WorkflowID}, nil
			}
			parent.Merge(map[string]interface{}{done.EntityKey: done.CollectedData})
			parent.CurrentStep = done.ReturnStep

			e.logger.Printf("[ENGINE] Subflow %s complete, resuming %s at step %s",
				done.WorkflowID, parent.WorkflowID, done.ReturnStep)

			parentDef, _ := e.registry.Get(parent.WorkflowID)
			resumeStep, _ := parentDef.StepByName(done.ReturnStep)
			response := "Done. Picking up where we left off."
			if resumeStep != nil && resumeStep.Prompt != "" {
				response = response + "\n\n" + resumeStep.Prompt
			}
			return &StepResult{Status: StatusAwaitingInput, Response: response}, nil
		}

		session.ClearStack()
		session.Strategy = store.StrategyConversational
		e.logger.Printf("[ENGINE] Workflow %s complete", done.WorkflowID)
		response, _ := done.CollectedData["message"].(string)
		return &StepResult{Status: StatusCompleted, Response: response, Data: done.CollectedData, WorkflowID: done.WorkflowID}, nil

	default:
		def, _ := e.registry.Get(frame.WorkflowID)
		next, ok := def.StepByName(frame.CurrentStep)
		if !ok {
			// Unreachable after registration-time validation.
			return nil, fmt.Errorf("workflow %s transitioned to undeclared step %q",
				frame.WorkflowID, frame.CurrentStep)
		}
		if next.Auto {
			return e.runFrame(ctx, session, idx, "", scope)
		}
		return &StepResult{Status: StatusAwaitingInput, Response: next.Prompt}, nil
	}
}

// settleFailure is the failure-path counterpart of settle: the frame
// has been routed to its OnFailure target (typically a clarification
// step).
func (e *Engine) settleFailure(ctx context.Context, session *store.Session, idx int, scope access.ScopeFilter, reason string) (*StepResult, error) {
	result, err := e.settle(ctx, session, idx, scope)
	if err != nil {
		return nil, err
	}
	if result.Status == StatusAwaitingInput && reason != "" {
		result.Response = reason + "\n\n" + result.Response
	}
	return result, nil
}

func (e *Engine) abortOverflow(session *store.Session, err error) (*StepResult, error) {
	session.ClearStack()
	session.Strategy = store.StrategyConversational
	e.logger.Printf("[ENGINE] %v (workflow design fault)", err)
	return &StepResult{
		Status:   StatusAborted,
		Response: "That task nests too deeply to continue, so I've stopped it. Please start again.",
	}, err
}
