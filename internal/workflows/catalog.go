// Package workflows declares the guided task definitions the agent can
// run: creating customers, products, and invoices.
package workflows

import (
	"strings"

	"ai-taskagent-be/pkg/agent/store"
	"ai-taskagent-be/pkg/agent/workflow"
)

// Workflow ids.
const (
	CreateCustomerID = "create_customer"
	CreateProductID  = "create_product"
	CreateInvoiceID  = "create_invoice"
)

// createNewChoiceID marks the synthetic "create a new record" option
// appended to ambiguous-match choice lists.
const createNewChoiceID = "create_new"

// RegisterAll registers the full catalog. Registration validates every
// transition target, so a bad definition fails at startup, not mid
// conversation.
func RegisterAll(registry *workflow.Registry) error {
	for _, def := range []*workflow.Definition{
		customerDefinition(),
		productDefinition(),
		invoiceDefinition(),
	} {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// affirmative reports whether a message reads as a yes.
func affirmative(message string) bool {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "yes", "y", "yeah", "yep", "sure", "ok", "okay", "confirm", "correct":
		return true
	}
	return false
}

func negative(message string) bool {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "no", "n", "nope", "wrong", "incorrect":
		return true
	}
	return false
}

// choiceSelection matches a user reply against pending choices, by
// ordinal ("1", "the first one") or by label.
func choiceSelection(message string, choices []store.Choice) *store.Choice {
	normalized := strings.ToLower(strings.TrimSpace(message))

	ordinals := map[string]int{
		"1": 0, "first": 0, "the first one": 0, "the first": 0,
		"2": 1, "second": 1, "the second one": 1, "the second": 1,
		"3": 2, "third": 2, "the third one": 2, "the third": 2,
		"4": 3, "fourth": 3,
		"5": 4, "fifth": 4,
	}
	if idx, ok := ordinals[normalized]; ok && idx < len(choices) {
		return &choices[idx]
	}

	// "create a new one", "make a new customer" and the like select the
	// synthetic create option when one is on offer.
	for i, c := range choices {
		if c.ID != createNewChoiceID {
			continue
		}
		if strings.Contains(normalized, "new") || strings.Contains(normalized, "create") {
			return &choices[i]
		}
	}

	for i, c := range choices {
		if strings.Contains(strings.ToLower(c.Label), normalized) && normalized != "" {
			return &choices[i]
		}
	}
	return nil
}

// withCreateNewChoice appends the create option so an ambiguous match
// always offers a way out that isn't one of the candidates.
func withCreateNewChoice(choices []store.Choice, label string) []store.Choice {
	return append(choices, store.Choice{ID: createNewChoiceID, Label: label})
}
