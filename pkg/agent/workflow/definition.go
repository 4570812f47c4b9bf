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

// Terminal sentinels. They are transition targets, never declared
// steps.
const (
	StepComplete = "complete"
	StepError    = "error"
)

// OutcomeStatus classifies what a step body decided.
type OutcomeStatus string

const (
	OutcomeSuccess      OutcomeStatus = "success"
	OutcomeFailure      OutcomeStatus = "failure"
	OutcomeNeedsSubflow OutcomeStatus = "needs_subflow"

	// OutcomeAwaitingInput pauses at the current step without counting
	// a retry: the step needs a human decision (ambiguous resolution,
	// missing entity) rather than a corrected value.
	OutcomeAwaitingInput OutcomeStatus = "awaiting_input"
)

// Outcome is the result of executing one step body.
type Outcome struct {
	Status    OutcomeStatus
	Data      map[string]interface{}
	Reason    string
	SubflowID string
	EntityKey string
	Message   string
	Choices   []store.Choice
}

func Success(data map[string]interface{}) Outcome {
	return Outcome{Status: OutcomeSuccess, Data: data}
}

func Failure(reason string) Outcome {
	return Outcome{Status: OutcomeFailure, Reason: reason}
}

func NeedsSubflow(workflowID, entityKey string) Outcome {
	return Outcome{Status: OutcomeNeedsSubflow, SubflowID: workflowID, EntityKey: entityKey}
}

func AwaitingInput(message string, choices []store.Choice) Outcome {
	return Outcome{Status: OutcomeAwaitingInput, Message: message, Choices: choices}
}

// StepContext carries the message and injected collaborators into a
// step body. Bodies are pure functions of collected data + message +
// collaborators; they never touch the stack.
type StepContext struct {
	Session   *store.Session
	Frame     *store.Frame
	Message   string
	Scope     access.ScopeFilter
	Resolver  *resolver.Resolver
	Records   resolver.RecordCreator
	Inference inference.Client
	Logger    *log.Logger
}

// StepFunc is an executable step body.
type StepFunc func(ctx context.Context, sc *StepContext) Outcome

// Step is one named state of a workflow.
type Step struct {
	Name string

	// ExpectedField names the field this step is waiting for, shown to
	// the message analyzer so it can tell "answers the field" from
	// "asks an unrelated question".
	ExpectedField string

	// Field declares the resolution capability when ExpectedField
	// references a domain record.
	Field *resolver.FieldSpec

	// Prompt is shown to the user when the workflow lands on this step.
	Prompt string

	// Auto steps execute as soon as the workflow lands on them, without
	// waiting for a user message (persistence and confirmation-free
	// transitions).
	Auto bool

	Run       StepFunc
	OnSuccess string
	OnFailure string
}

// Definition is an ordered set of named steps. The first declared
// step is the initial state.
type Definition struct {
	ID          string
	Description string
	Steps       []Step

	index map[string]int
}

// FirstStep returns the initial step name.
func (d *Definition) FirstStep() string {
	return d.Steps[0].Name
}

// StepByName looks up a declared step.
func (d *Definition) StepByName(name string) (*Step, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return &d.Steps[i], true
}

// Registry holds registered workflow definitions. Transition targets
// are validated here, at registration time, so the engine never hits
// a dangling step name at runtime.
type Registry struct {
	definitions map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]*Definition)}
}

// Register validates and stores a definition. Every non-terminal
// OnSuccess/OnFailure target must reference a declared step.
func (r *Registry) Register(def *Definition) error {
	if def.ID == "" {
		return fmt.Errorf("workflow definition requires an id")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("workflow %q declares no steps", def.ID)
	}
	if _, exists := r.definitions[def.ID]; exists {
		return fmt.Errorf("workflow %q already registered", def.ID)
	}

	def.index = make(map[string]int, len(def.Steps))
	for i, step := range def.Steps {
		if step.Name == "" {
			return fmt.Errorf("workflow %q: step %d has no name", def.ID, i)
		}
		if step.Name == StepComplete || step.Name == StepError {
			return fmt.Errorf("workflow %q: step name %q is a reserved sentinel", def.ID, step.Name)
		}
		if _, dup := def.index[step.Name]; dup {
			return fmt.Errorf("workflow %q: duplicate step %q", def.ID, step.Name)
		}
		if step.Run == nil {
			return fmt.Errorf("workflow %q: step %q has no body", def.ID, step.Name)
		}
		def.index[step.Name] = i
	}

	for _, step := range def.Steps {
		for _, target := range []string{step.OnSuccess, step.OnFailure} {
			if target == StepComplete || target == StepError {
				continue
			}
			if _, ok := def.index[target]; !ok {
				return fmt.Errorf("workflow %q: step %q transitions to undeclared step %q",
					def.ID, step.Name, target)
			}
		}
	}

	r.definitions[def.ID] = def
	return nil
}

// Get returns a registered definition.
func (r *Registry) Get(id string) (*Definition, bool) {
	def, ok := r.definitions[id]
	return def, ok
}

// IDs lists the registered workflow ids.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.definitions))
	for id := range r.definitions {
		ids = append(ids, id)
	}
	return ids
}
