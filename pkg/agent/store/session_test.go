package store

import (
	"encoding/json"
	"testing"
)

func TestAppendHistoryEvictsOldest(t *testing.T) {
	s := NewSession("s1", "u1")

	for i := 0; i < HistoryCapacity; i++ {
		s.AppendHistory("user", "msg")
	}
	if len(s.History) != HistoryCapacity {
		t.Fatalf("History len = %d, want %d", len(s.History), HistoryCapacity)
	}

	s.AppendHistory("user", "newest")
	if len(s.History) != HistoryCapacity {
		t.Errorf("History len after overflow = %d, want %d", len(s.History), HistoryCapacity)
	}
	if got := s.History[len(s.History)-1].Content; got != "newest" {
		t.Errorf("last entry = %q, want %q", got, "newest")
	}
}

func TestPushFrameEnforcesMaxDepth(t *testing.T) {
	s := NewSession("s1", "u1")

	for i := 0; i < MaxStackDepth; i++ {
		if err := s.PushFrame(NewFrame("wf", "step")); err != nil {
			t.Fatalf("PushFrame %d failed: %v", i, err)
		}
	}

	err := s.PushFrame(NewFrame("wf", "step"))
	if err == nil {
		t.Fatal("expected overflow error, got nil")
	}
	if _, ok := err.(*StackOverflowError); !ok {
		t.Errorf("error type = %T, want *StackOverflowError", err)
	}
}

func TestPopFrame(t *testing.T) {
	s := NewSession("s1", "u1")

	if _, ok := s.PopFrame(); ok {
		t.Error("PopFrame on empty stack reported ok")
	}

	_ = s.PushFrame(NewFrame("parent", "a"))
	_ = s.PushFrame(NewFrame("child", "b"))

	f, ok := s.PopFrame()
	if !ok || f.WorkflowID != "child" {
		t.Errorf("PopFrame = (%q, %v), want (child, true)", f.WorkflowID, ok)
	}
	if s.ActiveFrame().WorkflowID != "parent" {
		t.Errorf("ActiveFrame = %q, want parent", s.ActiveFrame().WorkflowID)
	}
}

func TestFrameAtBounds(t *testing.T) {
	s := NewSession("s1", "u1")
	_ = s.PushFrame(NewFrame("wf", "step"))

	if s.FrameAt(-1) != nil {
		t.Error("FrameAt(-1) should be nil")
	}
	if s.FrameAt(1) != nil {
		t.Error("FrameAt(1) should be nil")
	}
	if s.FrameAt(0) == nil {
		t.Error("FrameAt(0) should be the pushed frame")
	}
}

func TestIncrementRetry(t *testing.T) {
	f := NewFrame("wf", "step")

	if got := f.IncrementRetry("step"); got != 1 {
		t.Errorf("first increment = %d, want 1", got)
	}
	if got := f.IncrementRetry("step"); got != 2 {
		t.Errorf("second increment = %d, want 2", got)
	}
	if got := f.IncrementRetry("other"); got != 1 {
		t.Errorf("independent step = %d, want 1", got)
	}
}

// A session must survive a JSON round-trip with its workflow stack and
// collected data intact. Persistence rewrites the whole session every
// turn, so any lossy field here corrupts the conversation.
func TestSessionJSONRoundTrip(t *testing.T) {
	s := NewSession("s1", "u1")
	s.Strategy = StrategyGuidedFlow
	s.AppendHistory("user", "create an invoice")
	s.AppendHistory("assistant", "Who is it for?")

	parent := NewFrame("create_invoice", "collect_customer")
	parent.CollectedData["customer_name"] = "John"
	parent.RetryCounts["collect_customer"] = 2
	_ = s.PushFrame(parent)

	child := NewFrame("create_customer", "collect_name")
	child.ReturnStep = "collect_customer"
	child.EntityKey = "customer"
	child.CollectedData["name"] = "John Smith"
	_ = s.PushFrame(child)

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var restored Session
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if restored.Strategy != StrategyGuidedFlow {
		t.Errorf("Strategy = %q, want %q", restored.Strategy, StrategyGuidedFlow)
	}
	if len(restored.History) != 2 {
		t.Errorf("History len = %d, want 2", len(restored.History))
	}
	if restored.StackDepth() != 2 {
		t.Fatalf("StackDepth = %d, want 2", restored.StackDepth())
	}

	top := restored.ActiveFrame()
	if !top.IsSubflow() || top.ReturnStep != "collect_customer" || top.EntityKey != "customer" {
		t.Errorf("subflow frame lost fields: %+v", top)
	}
	if top.CollectedData["name"] != "John Smith" {
		t.Errorf("subflow collected data lost: %v", top.CollectedData)
	}

	base := restored.FrameAt(0)
	if base.RetryCounts["collect_customer"] != 2 {
		t.Errorf("retry counts lost: %v", base.RetryCounts)
	}
}
