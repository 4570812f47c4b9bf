package workflows

import (
	"context"
	"io"
	"log"
	"reflect"
	"testing"

	"ai-taskagent-be/pkg/agent/access"
	"ai-taskagent-be/pkg/agent/resolver"
	"ai-taskagent-be/pkg/agent/store"
	"ai-taskagent-be/pkg/agent/workflow"
)

func TestRegisterAll(t *testing.T) {
	registry := workflow.NewRegistry()
	if err := RegisterAll(registry); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}

	for _, id := range []string{CreateCustomerID, CreateProductID, CreateInvoiceID} {
		if _, ok := registry.Get(id); !ok {
			t.Errorf("workflow %s not registered", id)
		}
	}
}

func TestChoiceSelection(t *testing.T) {
	choices := []store.Choice{
		{ID: "c1", Label: "John Smith"},
		{ID: "c2", Label: "John Smithson"},
		{ID: "c3", Label: "Jon Smits"},
	}

	tests := []struct {
		message string
		wantID  string
	}{
		{"1", "c1"},
		{"2", "c2"},
		{"the first one", "c1"},
		{"Second", "c2"},
		{"smithson", "c2"},
		{"Jon Smits", "c3"},
		{"9", ""},
		{"someone else entirely", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			picked := choiceSelection(tt.message, choices)
			if tt.wantID == "" {
				if picked != nil {
					t.Errorf("choiceSelection(%q) = %s, want nil", tt.message, picked.ID)
				}
				return
			}
			if picked == nil || picked.ID != tt.wantID {
				t.Errorf("choiceSelection(%q) = %v, want %s", tt.message, picked, tt.wantID)
			}
		})
	}
}

func TestChoiceSelectionCreateNew(t *testing.T) {
	choices := withCreateNewChoice([]store.Choice{
		{ID: "c1", Label: "John Smith"},
		{ID: "c2", Label: "John Smithson"},
	}, "Create a new customer")

	tests := []struct {
		message string
		wantID  string
	}{
		{"create a new one", createNewChoiceID},
		{"make a new customer", createNewChoiceID},
		{"3", createNewChoiceID},
		{"1", "c1"},
		{"smithson", "c2"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			picked := choiceSelection(tt.message, choices)
			if picked == nil || picked.ID != tt.wantID {
				t.Errorf("choiceSelection(%q) = %v, want %s", tt.message, picked, tt.wantID)
			}
		})
	}
}

type fixedSearch struct {
	candidates []resolver.EntityCandidate
}

func (f fixedSearch) Search(ctx context.Context, modelType, query string, scope access.ScopeFilter, limit int) ([]resolver.EntityCandidate, error) {
	return f.candidates, nil
}

// An ambiguous customer match must offer the matched candidates plus a
// way to create a fresh record, and picking that option hands off to
// the customer workflow.
func TestInvoiceAmbiguousCustomerOffersCreateNew(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	r := resolver.NewResolver(
		fixedSearch{candidates: []resolver.EntityCandidate{
			{ID: "c1", Similarity: 0.75, Attributes: map[string]interface{}{"name": "John Smith"}},
			{ID: "c2", Similarity: 0.72, Attributes: map[string]interface{}{"name": "John Smithson"}},
		}},
		fixedSearch{},
		nil,
		resolver.DefaultConfig(),
		logger,
	)

	sc := &workflow.StepContext{
		Frame:    frameWithData(nil),
		Message:  "John",
		Resolver: r,
		Logger:   logger,
	}

	outcome := invoiceCollectCustomer(context.Background(), sc)
	if outcome.Status != workflow.OutcomeAwaitingInput {
		t.Fatalf("Status = %s, want awaiting_input (%s)", outcome.Status, outcome.Reason)
	}
	if len(outcome.Choices) != 3 {
		t.Fatalf("Choices len = %d, want 2 candidates + create option", len(outcome.Choices))
	}
	if last := outcome.Choices[len(outcome.Choices)-1]; last.ID != createNewChoiceID {
		t.Errorf("last choice = %+v, want the create option", last)
	}

	sc.Message = "create a new one"
	outcome = invoiceCollectCustomer(context.Background(), sc)
	if outcome.Status != workflow.OutcomeNeedsSubflow {
		t.Fatalf("Status = %s, want needs_subflow", outcome.Status)
	}
	if outcome.SubflowID != CreateCustomerID || outcome.EntityKey != "customer" {
		t.Errorf("subflow = (%s, %s), want (create_customer, customer)", outcome.SubflowID, outcome.EntityKey)
	}
}

func TestSplitItems(t *testing.T) {
	tests := []struct {
		message string
		want    []string
	}{
		{"coffee, sugar and milk", []string{"coffee", "sugar", "milk"}},
		{"just coffee", []string{"just coffee"}},
		{"a, , b", []string{"a", "b"}},
		{"", nil},
	}

	for _, tt := range tests {
		got := splitItems(tt.message)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitItems(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestAffirmativeNegative(t *testing.T) {
	for _, msg := range []string{"yes", "Y", " yeah ", "okay", "confirm"} {
		if !affirmative(msg) {
			t.Errorf("affirmative(%q) = false", msg)
		}
	}
	for _, msg := range []string{"no", "N", "nope"} {
		if !negative(msg) {
			t.Errorf("negative(%q) = false", msg)
		}
	}
	if affirmative("maybe") || negative("maybe") {
		t.Error("ambiguous reply read as a decision")
	}
}

func TestProductCollectPrice(t *testing.T) {
	tests := []struct {
		message   string
		wantPrice float64
		wantFail  bool
	}{
		{"12.50", 12.50, false},
		{"$1,200.00", 1200.00, false},
		{"0", 0, false},
		{"-5", 0, true},
		{"a lot", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			sc := &workflow.StepContext{
				Frame:   frameWithData(nil),
				Message: tt.message,
			}
			outcome := productCollectPrice(context.Background(), sc)

			if tt.wantFail {
				if outcome.Status != workflow.OutcomeFailure {
					t.Errorf("Status = %s, want failure", outcome.Status)
				}
				return
			}
			if outcome.Status != workflow.OutcomeSuccess {
				t.Fatalf("Status = %s, want success (%s)", outcome.Status, outcome.Reason)
			}
			if outcome.Data["price"] != tt.wantPrice {
				t.Errorf("price = %v, want %v", outcome.Data["price"], tt.wantPrice)
			}
		})
	}
}

func TestCustomerCollectEmail(t *testing.T) {
	tests := []struct {
		name      string
		collected map[string]interface{}
		message   string
		want      workflow.OutcomeStatus
	}{
		{"valid email", nil, "jane@example.com", workflow.OutcomeSuccess},
		{"skip keyword", nil, "skip", workflow.OutcomeSuccess},
		{"already captured", map[string]interface{}{"email": "j@e.com"}, "whatever", workflow.OutcomeSuccess},
		{"missing at sign", nil, "not-an-email", workflow.OutcomeFailure},
		{"double at sign", nil, "a@@b.com", workflow.OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &workflow.StepContext{
				Frame:   frameWithData(tt.collected),
				Message: tt.message,
			}
			outcome := customerCollectEmail(context.Background(), sc)
			if outcome.Status != tt.want {
				t.Errorf("Status = %s, want %s", outcome.Status, tt.want)
			}
		})
	}
}

func TestPendingChoicesRoundTrip(t *testing.T) {
	frame := frameWithData(nil)
	choices := []store.Choice{
		{ID: "c1", Label: "John Smith"},
		{ID: "c2", Label: "John Smithson"},
	}

	stashPendingChoices(frame, "customer", choices)

	restored := pendingChoices(frame, "customer")
	if len(restored) != 2 || restored[0].ID != "c1" || restored[1].Label != "John Smithson" {
		t.Fatalf("restored = %+v", restored)
	}

	clearPendingChoices(frame, "customer")
	if got := pendingChoices(frame, "customer"); got != nil {
		t.Errorf("choices survive clear: %v", got)
	}
}

func frameWithData(data map[string]interface{}) *store.Frame {
	f := store.NewFrame("wf", "step")
	for k, v := range data {
		f.CollectedData[k] = v
	}
	return &f
}
