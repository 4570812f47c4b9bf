package analyzer

import (
	"context"
	"crypto/md5"
	"fmt"
	"log"
	"strings"
	"time"

	"ai-taskagent-be/pkg/agent/inference"
	"ai-taskagent-be/pkg/agent/store"
	"ai-taskagent-be/pkg/agent/workflow"

	"github.com/patrickmn/go-cache"
)

// Classification types.
const (
	TypeWorkflowContinuation = "workflow_continuation"
	TypeNormalQuestion       = "normal_question"
	TypeSubWorkflowRequest   = "sub_workflow_request"
	TypeCancellation         = "cancellation"
	TypeNewWorkflowRequest   = "new_workflow_request"
	TypeSimpleAnswer         = "simple_answer"
	TypeRAGQuery             = "rag_query"
)

// lowConfidence is the tie-break floor: below it the analyzer prefers
// preserving in-flight state over guessing a distracting intent.
const lowConfidence = 0.5

// cancellation keywords short-circuit the classification call.
var cancellationKeywords = []string{"cancel", "stop", "abort", "nevermind", "never mind", "forget it", "quit"}

// Classification is the routing decision for one message.
type Classification struct {
	Type              string  `json:"type"`
	Confidence        float64 `json:"confidence"`
	SuggestedWorkflow string  `json:"suggested_workflow,omitempty"`
}

// Analyzer classifies an incoming message against the current session
// state. It reads the session, never mutates it.
type Analyzer struct {
	inference inference.Client
	registry  *workflow.Registry
	cache     *cache.Cache
	logger    *log.Logger
}

func NewAnalyzer(inferenceClient inference.Client, registry *workflow.Registry, logger *log.Logger) *Analyzer {
	return &Analyzer{
		inference: inferenceClient,
		registry:  registry,
		cache:     cache.New(5*time.Minute, 10*time.Minute),
		logger:    logger,
	}
}

// Analyze produces the routing decision for a message. Classification
// results are cached for a short TTL keyed by (message, session
// fingerprint) so a repeated or corrected input doesn't pay for a
// second inference call.
func (a *Analyzer) Analyze(ctx context.Context, message string, session *store.Session) (*Classification, error) {
	if isCancellation(message) {
		return &Classification{Type: TypeCancellation, Confidence: 1.0}, nil
	}

	cacheKey := a.cacheKey(message, session)
	if cached, found := a.cache.Get(cacheKey); found {
		a.logger.Printf("[ANALYZER] Cache hit")
		return cached.(*Classification), nil
	}

	summary := a.buildContextSummary(session)

	result, err := a.inference.Classify(ctx, message, summary)
	if err != nil {
		return nil, &store.ExternalServiceError{Service: "inference", Err: err}
	}

	classification := a.applyPolicy(result, session)
	a.cache.Set(cacheKey, classification, cache.DefaultExpiration)

	a.logger.Printf("[ANALYZER] %s (confidence %.2f)", classification.Type, classification.Confidence)
	return classification, nil
}

// applyPolicy validates the raw classification against the session
// state and applies the tie-break bias: low confidence prefers
// workflow_continuation when a workflow is active, conversational
// handling otherwise.
func (a *Analyzer) applyPolicy(result *inference.ClassifyResult, session *store.Session) *Classification {
	active := session.ActiveFrame() != nil

	classification := &Classification{
		Type:              result.Type,
		Confidence:        result.Confidence,
		SuggestedWorkflow: result.Workflow,
	}

	if !isKnownType(result.Type) {
		classification.Type = a.fallbackType(active)
		classification.Confidence = lowConfidence
		return classification
	}

	// Stack-dependent types make no sense without an active workflow.
	if !active && (result.Type == TypeWorkflowContinuation || result.Type == TypeNormalQuestion) {
		classification.Type = TypeSimpleAnswer
	}

	// A suggested workflow must actually exist to be actionable.
	if result.Type == TypeNewWorkflowRequest || result.Type == TypeSubWorkflowRequest {
		if _, ok := a.registry.Get(result.Workflow); !ok {
			a.logger.Printf("[ANALYZER] Suggested workflow %q not registered, falling back", result.Workflow)
			classification.Type = a.fallbackType(active)
			classification.Confidence = lowConfidence
			return classification
		}
	}

	if result.Confidence < lowConfidence {
		classification.Type = a.fallbackType(active)
	}

	return classification
}

func (a *Analyzer) fallbackType(workflowActive bool) string {
	if workflowActive {
		return TypeWorkflowContinuation
	}
	return TypeSimpleAnswer
}

// buildContextSummary renders the session state for the classifier.
func (a *Analyzer) buildContextSummary(session *store.Session) string {
	var summary strings.Builder

	frame := session.ActiveFrame()
	if frame == nil {
		summary.WriteString("IDLE: No workflow in progress.\n")
	} else {
		summary.WriteString(fmt.Sprintf("ACTIVE_WORKFLOW: %s (step %s)\n", frame.WorkflowID, frame.CurrentStep))
		if field := a.expectedField(frame); field != "" {
			summary.WriteString(fmt.Sprintf("PENDING_FIELD: %s (the next message is expected to supply this value)\n", field))
		}
		if len(frame.CollectedData) > 0 {
			keys := make([]string, 0, len(frame.CollectedData))
			for k := range frame.CollectedData {
				keys = append(keys, k)
			}
			summary.WriteString(fmt.Sprintf("COLLECTED: %s\n", strings.Join(keys, ", ")))
		}
	}

	if ids := a.registry.IDs(); len(ids) > 0 {
		summary.WriteString("AVAILABLE_WORKFLOWS: " + strings.Join(ids, ", "))
	}

	return summary.String()
}

// expectedField looks up the declared expected field of the frame's
// current step.
func (a *Analyzer) expectedField(frame *store.Frame) string {
	def, ok := a.registry.Get(frame.WorkflowID)
	if !ok {
		return ""
	}
	step, ok := def.StepByName(frame.CurrentStep)
	if !ok {
		return ""
	}
	return step.ExpectedField
}

func (a *Analyzer) cacheKey(message string, session *store.Session) string {
	fingerprint := "idle"
	if frame := session.ActiveFrame(); frame != nil {
		fingerprint = frame.WorkflowID + "/" + frame.CurrentStep
	}
	return fmt.Sprintf("%x", md5.Sum([]byte(message+"|"+fingerprint)))
}

func isCancellation(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	for _, kw := range cancellationKeywords {
		if normalized == kw {
			return true
		}
	}
	return false
}

func isKnownType(t string) bool {
	switch t {
	case TypeWorkflowContinuation, TypeNormalQuestion, TypeSubWorkflowRequest,
		TypeCancellation, TypeNewWorkflowRequest, TypeSimpleAnswer, TypeRAGQuery:
		return true
	}
	return false
}
