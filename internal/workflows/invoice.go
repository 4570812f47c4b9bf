package workflows

import (
	"context"
	"fmt"
	"strings"

	"ai-taskagent-be/internal/entity"
	"ai-taskagent-be/pkg/agent/resolver"
	"ai-taskagent-be/pkg/agent/store"
	"ai-taskagent-be/pkg/agent/workflow"
)

func invoiceDefinition() *workflow.Definition {
	return &workflow.Definition{
		ID:          CreateInvoiceID,
		Description: "Create an invoice for a customer with product line items",
		Steps: []workflow.Step{
			{
				Name:          "collect_customer",
				ExpectedField: "customer",
				Field: &resolver.FieldSpec{
					Name:        "customer",
					ModelType:   entity.ModelTypeCustomer,
					SearchField: "name",
					Resolvable:  true,
				},
				Prompt:    "Who is this invoice for?",
				Run:       invoiceCollectCustomer,
				OnSuccess: "collect_items",
				OnFailure: "collect_customer",
			},
			{
				Name:          "collect_items",
				ExpectedField: "items",
				Field: &resolver.FieldSpec{
					Name:        "items",
					ModelType:   entity.ModelTypeProduct,
					SearchField: "name",
					Resolvable:  true,
				},
				Prompt:    "Which products go on it? (comma separated)",
				Run:       invoiceCollectItems,
				OnSuccess: "confirm",
				OnFailure: "collect_items",
			},
			{
				Name:          "confirm",
				ExpectedField: "confirmation",
				Prompt:        "Shall I create the invoice? (yes/no)",
				Run:           invoiceConfirm,
				OnSuccess:     "save",
				OnFailure:     "confirm",
			},
			{
				Name:      "save",
				Auto:      true,
				Run:       invoiceSave,
				OnSuccess: workflow.StepComplete,
				OnFailure: workflow.StepError,
			},
		},
	}
}

// invoiceCollectCustomer resolves the spoken customer reference. Four
// ways out: already resolved (sub-workflow injected it), auto-selected,
// ambiguous (pause for a pick), or unresolvable (offer creation).
func invoiceCollectCustomer(ctx context.Context, sc *workflow.StepContext) workflow.Outcome {
	// A completed create_customer sub-workflow injects the new customer
	// under this step's entity key.
	if injected, ok := sc.Frame.CollectedData["customer"].(map[string]interface{}); ok {
		if id, ok := injected["id"].(string); ok && id != "" {
			name, _ := injected["name"].(string)
			return workflow.Success(map[string]interface{}{
				"customer_id":   id,
				"customer_name": name,
			})
		}
	}

	// A pending ambiguity means this message is the user's pick.
	if pending := pendingChoices(sc.Frame, "customer"); len(pending) > 0 {
		if picked := choiceSelection(sc.Message, pending); picked != nil {
			clearPendingChoices(sc.Frame, "customer")
			if picked.ID == createNewChoiceID {
				return workflow.NeedsSubflow(CreateCustomerID, "customer")
			}
			return workflow.Success(map[string]interface{}{
				"customer_id":   picked.ID,
				"customer_name": picked.Label,
			})
		}
		return workflow.AwaitingInput("I didn't catch which one you meant. Pick a number from the list.", pending)
	}

	identifier := strings.TrimSpace(sc.Message)
	if identifier == "" {
		return workflow.Failure("I need a customer name to continue.")
	}

	resolution, err := sc.Resolver.Resolve(ctx, identifier, entity.ModelTypeCustomer, sc.Scope, resolver.Options{})
	if err != nil {
		sc.Logger.Printf("[WORKFLOW] Customer resolution failed: %v", err)
		return workflow.Failure("I couldn't look up that customer just now. Try again?")
	}

	switch resolution.Decision {
	case resolver.DecisionSelected:
		name, _ := resolution.Candidate.Attributes["name"].(string)
		return workflow.Success(map[string]interface{}{
			"customer_id":   resolution.Candidate.ID,
			"customer_name": name,
		})

	case resolver.DecisionAmbiguousNeedsUser:
		choices := withCreateNewChoice(
			choicesFromCandidates(resolution.Candidates),
			"Create a new customer",
		)
		stashPendingChoices(sc.Frame, "customer", choices)
		return workflow.AwaitingInput(
			fmt.Sprintf("I found %d customers matching %q. Which one did you mean, or should I create a new one?",
				len(resolution.Candidates), identifier),
			choices,
		)

	default: // not found
		return workflow.NeedsSubflow(CreateCustomerID, "customer")
	}
}

// invoiceCollectItems resolves each named product independently. Items
// that fail to resolve are reported together; resolved ones are never
// lost to a sibling's failure.
func invoiceCollectItems(ctx context.Context, sc *workflow.StepContext) workflow.Outcome {
	identifiers := splitItems(sc.Message)
	if len(identifiers) == 0 {
		return workflow.Failure("I need at least one product for the invoice.")
	}

	results := sc.Resolver.ResolveItems(ctx, identifiers, entity.ModelTypeProduct, sc.Scope, resolver.Options{})

	var items []interface{}
	var problems []string
	for _, item := range results {
		if item.Err != nil {
			problems = append(problems, fmt.Sprintf("%q (lookup failed)", item.Identifier))
			continue
		}
		switch item.Resolution.Decision {
		case resolver.DecisionSelected, resolver.DecisionCreated:
			name, _ := item.Resolution.Candidate.Attributes["name"].(string)
			items = append(items, map[string]interface{}{
				"product_id": item.Resolution.Candidate.ID,
				"name":       name,
			})
		case resolver.DecisionAmbiguousNeedsUser:
			problems = append(problems, fmt.Sprintf("%q (several matches, be more specific)", item.Identifier))
		default:
			problems = append(problems, fmt.Sprintf("%q (not found)", item.Identifier))
		}
	}

	if len(problems) > 0 {
		return workflow.Failure(fmt.Sprintf(
			"I couldn't place these items: %s. Please re-list the products.",
			strings.Join(problems, ", ")))
	}

	return workflow.Success(map[string]interface{}{"items": items})
}

func invoiceConfirm(ctx context.Context, sc *workflow.StepContext) workflow.Outcome {
	if affirmative(sc.Message) {
		return workflow.Success(nil)
	}
	if negative(sc.Message) {
		return workflow.Failure("Okay, let's double-check. Tell me when you're ready to confirm.")
	}
	return workflow.Failure("Please answer yes or no.")
}

func invoiceSave(ctx context.Context, sc *workflow.StepContext) workflow.Outcome {
	customerName, _ := sc.Frame.CollectedData["customer_name"].(string)

	attributes := map[string]interface{}{
		"name":        fmt.Sprintf("Invoice for %s", customerName),
		"customer_id": sc.Frame.CollectedData["customer_id"],
		"items":       sc.Frame.CollectedData["items"],
	}

	id, err := sc.Records.Create(ctx, entity.ModelTypeInvoice, sc.Scope, attributes)
	if err != nil {
		sc.Logger.Printf("[WORKFLOW] Invoice save failed: %v", err)
		return workflow.Failure("I couldn't save the invoice.")
	}

	return workflow.Success(map[string]interface{}{
		"id":      id,
		"message": fmt.Sprintf("Invoice created for %s.", customerName),
	})
}

// splitItems breaks "coffee, sugar and milk" into identifiers.
func splitItems(message string) []string {
	normalized := strings.ReplaceAll(message, " and ", ",")
	parts := strings.Split(normalized, ",")

	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func choicesFromCandidates(candidates []resolver.EntityCandidate) []store.Choice {
	choices := make([]store.Choice, len(candidates))
	for i, c := range candidates {
		label, _ := c.Attributes["name"].(string)
		if label == "" {
			label = c.ID
		}
		choices[i] = store.Choice{ID: c.ID, Label: label, Data: c.Attributes}
	}
	return choices
}

// Pending choices survive the turn boundary inside collected data,
// keyed away from real fields.
func stashPendingChoices(frame *store.Frame, field string, choices []store.Choice) {
	serialized := make([]interface{}, len(choices))
	for i, c := range choices {
		serialized[i] = map[string]interface{}{"id": c.ID, "label": c.Label}
	}
	frame.Merge(map[string]interface{}{"_pending_" + field: serialized})
}

func pendingChoices(frame *store.Frame, field string) []store.Choice {
	raw, ok := frame.CollectedData["_pending_"+field].([]interface{})
	if !ok {
		return nil
	}
	choices := make([]store.Choice, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		label, _ := m["label"].(string)
		choices = append(choices, store.Choice{ID: id, Label: label})
	}
	return choices
}

func clearPendingChoices(frame *store.Frame, field string) {
	delete(frame.CollectedData, "_pending_"+field)
}
