package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"ai-taskagent-be/pkg/llm"
)

// LLMClient implements Client on top of a generic LLM provider.
// Classification and extraction run at temperature 0 for deterministic
// output; answers use the provider default.
type LLMClient struct {
	provider llm.LLMProvider
	logger   *log.Logger
}

var _ Client = (*LLMClient)(nil)

func NewLLMClient(provider llm.LLMProvider, logger *log.Logger) *LLMClient {
	return &LLMClient{provider: provider, logger: logger}
}

func (c *LLMClient) Classify(ctx context.Context, text, contextSummary string) (*ClassifyResult, error) {
	prompt := buildClassifyPrompt(text, contextSummary)

	// Classification emits a small JSON object; cap the response so a
	// rambling model cannot stall the turn.
	response, err := c.provider.Generate(ctx, prompt, llm.WithTemperature(0.0), llm.WithMaxTokens(300))
	if err != nil {
		return nil, fmt.Errorf("classification call failed: %w", err)
	}

	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return nil, fmt.Errorf("no JSON found in classification response")
	}

	var result ClassifyResult
	if err := json.Unmarshal([]byte(jsonContent), &result); err != nil {
		return nil, fmt.Errorf("classification unmarshal failed: %w", err)
	}

	result.Type = strings.ToLower(strings.TrimSpace(result.Type))
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}

	c.logger.Printf("[INFERENCE] Classified: %s (confidence %.2f, workflow %q)",
		result.Type, result.Confidence, result.Workflow)

	return &result, nil
}

func (c *LLMClient) Extract(ctx context.Context, text string, schema []FieldSchema) (map[string]interface{}, error) {
	prompt := buildExtractPrompt(text, schema)

	response, err := c.provider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}

	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return nil, fmt.Errorf("no JSON found in extraction response")
	}

	var values map[string]interface{}
	if err := json.Unmarshal([]byte(jsonContent), &values); err != nil {
		return nil, fmt.Errorf("extraction unmarshal failed: %w", err)
	}

	return values, nil
}

func (c *LLMClient) Answer(ctx context.Context, text, contextSummary string) (string, error) {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You are a helpful business assistant. Answer the user's question directly and concisely.\n")
	prompt.WriteString("</system>\n\n")

	if contextSummary != "" {
		prompt.WriteString("<conversation_context>\n")
		prompt.WriteString(contextSummary)
		prompt.WriteString("\n</conversation_context>\n\n")
	}

	prompt.WriteString("<user_question>\n")
	prompt.WriteString(text)
	prompt.WriteString("\n</user_question>")

	return c.provider.Generate(ctx, prompt.String())
}

func buildClassifyPrompt(text, contextSummary string) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You are a message router. Your ONLY job is to classify what the user wants to DO.\n")
	prompt.WriteString("You do NOT answer questions. You only classify.\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<session_state>\n")
	prompt.WriteString(contextSummary)
	prompt.WriteString("\n</session_state>\n\n")

	prompt.WriteString("<user_message>\n")
	prompt.WriteString(text)
	prompt.WriteString("\n</user_message>\n\n")

	prompt.WriteString("<type_definitions>\n")
	prompt.WriteString("Choose ONE type that best matches the message:\n\n")
	prompt.WriteString("workflow_continuation: The message plausibly answers the PENDING_FIELD shown in <session_state>\n")
	prompt.WriteString("  - Use when: a workflow is active and the message looks like a value for the expected field\n")
	prompt.WriteString("  - Examples: a name, a number, an item list, 'the first one', 'yes'\n\n")
	prompt.WriteString("normal_question: An unrelated question asked mid-workflow\n")
	prompt.WriteString("  - Use when: a workflow is active but the message is clearly a question about something else\n")
	prompt.WriteString("  - The workflow must NOT lose progress; the question is answered on the side\n\n")
	prompt.WriteString("sub_workflow_request: The user wants to create a prerequisite entity first\n")
	prompt.WriteString("  - Use when: 'create a new customer first', 'he's not in the system yet, add him'\n")
	prompt.WriteString("  - Requires: workflow (the id of the creation workflow)\n\n")
	prompt.WriteString("cancellation: The user wants to abandon the current workflow\n")
	prompt.WriteString("  - Use when: 'cancel', 'stop', 'forget it', 'start over'\n\n")
	prompt.WriteString("new_workflow_request: The user asks to start a NEW task\n")
	prompt.WriteString("  - Use when: 'create an invoice', 'add a product', 'new customer'\n")
	prompt.WriteString("  - Requires: workflow (the id of the requested workflow)\n\n")
	prompt.WriteString("simple_answer: A standalone question answerable without record lookup\n\n")
	prompt.WriteString("rag_query: A question that needs information from the user's stored records\n")
	prompt.WriteString("</type_definitions>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"type\": \"workflow_continuation|normal_question|sub_workflow_request|cancellation|new_workflow_request|simple_answer|rag_query\",\n")
	prompt.WriteString("  \"confidence\": 0.95,\n")
	prompt.WriteString("  \"workflow\": \"workflow id if sub_workflow_request or new_workflow_request, otherwise empty\",\n")
	prompt.WriteString("  \"reasoning\": \"Brief explanation\"\n")
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

func buildExtractPrompt(text string, schema []FieldSchema) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You are a data extractor. Pull the requested fields out of the user's message.\n")
	prompt.WriteString("Use null for fields not present. Do NOT invent values.\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<fields>\n")
	for _, f := range schema {
		prompt.WriteString(fmt.Sprintf("- %s (%s)", f.Name, f.Type))
		if f.Description != "" {
			prompt.WriteString(": " + f.Description)
		}
		if f.Required {
			prompt.WriteString(" [required]")
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("</fields>\n\n")

	prompt.WriteString("<user_message>\n")
	prompt.WriteString(text)
	prompt.WriteString("\n</user_message>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY a valid JSON object keyed by field name.\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

func extractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}

	return response[startIdx : endIdx+1]
}
