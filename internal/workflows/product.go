package workflows

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"ai-taskagent-be/internal/entity"
	"ai-taskagent-be/pkg/agent/workflow"
)

func productDefinition() *workflow.Definition {
	return &workflow.Definition{
		ID:          CreateProductID,
		Description: "Create a new product record",
		Steps: []workflow.Step{
			{
				Name:          "collect_name",
				ExpectedField: "name",
				Prompt:        "What's the product called?",
				Run:           productCollectName,
				OnSuccess:     "collect_price",
				OnFailure:     "collect_name",
			},
			{
				Name:          "collect_price",
				ExpectedField: "price",
				Prompt:        "What does it cost?",
				Run:           productCollectPrice,
				OnSuccess:     "save",
				OnFailure:     "collect_price",
			},
			{
				Name:      "save",
				Auto:      true,
				Run:       productSave,
				OnSuccess: workflow.StepComplete,
				OnFailure: workflow.StepError,
			},
		},
	}
}

func productCollectName(ctx context.Context, sc *workflow.StepContext) workflow.Outcome {
	name := strings.TrimSpace(sc.Message)
	if name == "" {
		return workflow.Failure("I need a product name to continue.")
	}
	if len(name) > 255 {
		return workflow.Failure("That name is too long. Could you shorten it?")
	}
	return workflow.Success(map[string]interface{}{"name": name})
}

func productCollectPrice(ctx context.Context, sc *workflow.StepContext) workflow.Outcome {
	raw := strings.TrimSpace(sc.Message)
	raw = strings.TrimPrefix(raw, "$")
	raw = strings.ReplaceAll(raw, ",", "")

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return workflow.Failure(fmt.Sprintf("%q doesn't look like a price.", sc.Message))
	}
	if price < 0 {
		return workflow.Failure("The price can't be negative.")
	}

	return workflow.Success(map[string]interface{}{"price": price})
}

func productSave(ctx context.Context, sc *workflow.StepContext) workflow.Outcome {
	attributes := map[string]interface{}{}
	for k, v := range sc.Frame.CollectedData {
		attributes[k] = v
	}

	id, err := sc.Records.Create(ctx, entity.ModelTypeProduct, sc.Scope, attributes)
	if err != nil {
		sc.Logger.Printf("[WORKFLOW] Product save failed: %v", err)
		return workflow.Failure("I couldn't save the product.")
	}

	name, _ := sc.Frame.CollectedData["name"].(string)
	return workflow.Success(map[string]interface{}{
		"id":      id,
		"message": fmt.Sprintf("Product %q created.", name),
	})
}
