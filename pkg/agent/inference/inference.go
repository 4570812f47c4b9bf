package inference

import (
	"context"
)

// FieldSchema describes one field the agent wants extracted from free
// text. The capability is data-described; nothing is inferred from
// field naming conventions.
type FieldSchema struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string" | "number" | "array"
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ClassifyResult is the structured output of message classification.
type ClassifyResult struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Workflow   string  `json:"workflow,omitempty"` // detected workflow id, if any
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Client is the language-understanding collaborator. Parsing natural
// language into structure is delegated entirely to this interface;
// the core never interprets raw text itself.
type Client interface {
	// Classify labels a message against a summary of the session state.
	Classify(ctx context.Context, text, contextSummary string) (*ClassifyResult, error)

	// Extract pulls structured field values out of free text.
	Extract(ctx context.Context, text string, schema []FieldSchema) (map[string]interface{}, error)

	// Answer produces a direct conversational reply.
	Answer(ctx context.Context, text, contextSummary string) (string, error)
}
