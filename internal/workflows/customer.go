package workflows

import (
	"context"
	"fmt"
	"strings"

	"ai-taskagent-be/internal/entity"
	"ai-taskagent-be/pkg/agent/inference"
	"ai-taskagent-be/pkg/agent/workflow"
)

func customerDefinition() *workflow.Definition {
	return &workflow.Definition{
		ID:          CreateCustomerID,
		Description: "Create a new customer record",
		Steps: []workflow.Step{
			{
				Name:          "collect_name",
				ExpectedField: "name",
				Prompt:        "What's the customer's name?",
				Run:           customerCollectName,
				OnSuccess:     "collect_email",
				OnFailure:     "collect_name",
			},
			{
				Name:          "collect_email",
				ExpectedField: "email",
				Prompt:        "What's their email address? (or say 'skip')",
				Run:           customerCollectEmail,
				OnSuccess:     "save",
				OnFailure:     "collect_email",
			},
			{
				Name:      "save",
				Auto:      true,
				Run:       customerSave,
				OnSuccess: workflow.StepComplete,
				OnFailure: workflow.StepError,
			},
		},
	}
}

func customerCollectName(ctx context.Context, sc *workflow.StepContext) workflow.Outcome {
	// Pull structured fields out of the message; a plain name message
	// still works because the raw text is the fallback.
	values, err := sc.Inference.Extract(ctx, sc.Message, []inference.FieldSchema{
		{Name: "name", Type: "string", Description: "The customer's full name", Required: true},
		{Name: "email", Type: "string", Description: "The customer's email address"},
		{Name: "phone", Type: "string", Description: "The customer's phone number"},
	})
	if err != nil {
		sc.Logger.Printf("[WORKFLOW] Extraction failed, using raw message as name: %v", err)
		values = map[string]interface{}{"name": strings.TrimSpace(sc.Message)}
	}

	name, _ := values["name"].(string)
	if name == "" {
		name = strings.TrimSpace(sc.Message)
	}
	if name == "" {
		return workflow.Failure("I didn't catch a name there. What should I call this customer?")
	}
	if len(name) > 255 {
		return workflow.Failure("That name is too long. Could you shorten it?")
	}

	data := map[string]interface{}{"name": name}
	if email, ok := values["email"].(string); ok && email != "" {
		data["email"] = email
	}
	if phone, ok := values["phone"].(string); ok && phone != "" {
		data["phone"] = phone
	}
	return workflow.Success(data)
}

func customerCollectEmail(ctx context.Context, sc *workflow.StepContext) workflow.Outcome {
	// Already captured alongside the name? Skip straight through.
	if email, ok := sc.Frame.CollectedData["email"].(string); ok && email != "" {
		return workflow.Success(nil)
	}

	message := strings.TrimSpace(sc.Message)
	if strings.EqualFold(message, "skip") || strings.EqualFold(message, "no") {
		return workflow.Success(nil)
	}

	if !strings.Contains(message, "@") || strings.Count(message, "@") != 1 {
		return workflow.Failure(fmt.Sprintf("%q doesn't look like an email address.", message))
	}

	return workflow.Success(map[string]interface{}{"email": message})
}

func customerSave(ctx context.Context, sc *workflow.StepContext) workflow.Outcome {
	attributes := map[string]interface{}{}
	for k, v := range sc.Frame.CollectedData {
		attributes[k] = v
	}

	id, err := sc.Records.Create(ctx, entity.ModelTypeCustomer, sc.Scope, attributes)
	if err != nil {
		sc.Logger.Printf("[WORKFLOW] Customer save failed: %v", err)
		return workflow.Failure("I couldn't save the customer.")
	}

	name, _ := sc.Frame.CollectedData["name"].(string)
	return workflow.Success(map[string]interface{}{
		"id":      id,
		"message": fmt.Sprintf("Customer %q created.", name),
	})
}
