package store

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound signals a context store miss (fresh session or
// TTL expiry). The orchestrator recovers by starting a new session.
var ErrSessionNotFound = errors.New("session not found")

// ValidationError marks a collected field as invalid. Not fatal: the
// workflow re-prompts the same step.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %q: %s", e.Field, e.Reason)
}

// EntityNotFoundError is raised when resolution fails and creation is
// disallowed. The workflow stays paused at the requesting step.
type EntityNotFoundError struct {
	Identifier string
	ModelType  string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("no %s matching %q", e.ModelType, e.Identifier)
}

// ExternalServiceError wraps an inference/search/persistence failure
// that survived the retry policy. Session state is left untouched so
// the same turn can be retried.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError aborts the whole workflow after a step failed
// more than MaxRetries times. Fatal but recoverable: the user can
// start over.
type RetryExhaustedError struct {
	WorkflowID string
	Step       string
	Attempts   int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("workflow %s aborted: step %q failed %d times", e.WorkflowID, e.Step, e.Attempts)
}

// StackOverflowError marks nested sub-workflow depth exceeding the
// limit. A workflow-design fault, not a user error.
type StackOverflowError struct {
	Depth int
	Max   int
}

func (e *StackOverflowError) Error() string {
	return fmt.Sprintf("workflow stack depth %d exceeds maximum %d", e.Depth, e.Max)
}
