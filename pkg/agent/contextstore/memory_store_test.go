package contextstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-taskagent-be/pkg/agent/store"
)

func TestMemoryStoreMissReturnsNotFound(t *testing.T) {
	m := NewMemoryStore(time.Minute)

	_, err := m.Load(context.Background(), "missing")
	if !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	m := NewMemoryStore(time.Minute)
	ctx := context.Background()

	session := store.NewSession("s1", "u1")
	session.Strategy = store.StrategyGuidedFlow
	session.AppendHistory("user", "create a product")

	frame := store.NewFrame("create_product", "collect_price")
	frame.CollectedData["name"] = "Espresso Beans"
	frame.CollectedData["_pending_customer"] = []interface{}{
		map[string]interface{}{"id": "c1", "label": "John Smith"},
	}
	frame.RetryCounts["collect_price"] = 1
	_ = session.PushFrame(frame)

	if err := m.Save(ctx, session); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := m.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Strategy != store.StrategyGuidedFlow {
		t.Errorf("Strategy = %q, want guided_flow", loaded.Strategy)
	}
	if loaded.StackDepth() != 1 {
		t.Fatalf("StackDepth = %d, want 1", loaded.StackDepth())
	}

	restored := loaded.ActiveFrame()
	if restored.CurrentStep != "collect_price" {
		t.Errorf("CurrentStep = %q, want collect_price", restored.CurrentStep)
	}
	if restored.CollectedData["name"] != "Espresso Beans" {
		t.Errorf("collected data lost: %v", restored.CollectedData)
	}
	if restored.RetryCounts["collect_price"] != 1 {
		t.Errorf("retry counts lost: %v", restored.RetryCounts)
	}

	pending, ok := restored.CollectedData["_pending_customer"].([]interface{})
	if !ok || len(pending) != 1 {
		t.Fatalf("pending choices lost: %v", restored.CollectedData["_pending_customer"])
	}
	choice, ok := pending[0].(map[string]interface{})
	if !ok || choice["label"] != "John Smith" {
		t.Errorf("choice shape changed through round-trip: %v", pending[0])
	}
}

// Mutating a loaded session must not leak into the stored copy until
// the next Save: the store hands out independent snapshots.
func TestMemoryStoreIsolatesLoads(t *testing.T) {
	m := NewMemoryStore(time.Minute)
	ctx := context.Background()

	session := store.NewSession("s1", "u1")
	if err := m.Save(ctx, session); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	first, _ := m.Load(ctx, "s1")
	first.AppendHistory("user", "mutation")

	second, err := m.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(second.History) != 0 {
		t.Errorf("mutation leaked into store: %v", second.History)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	m := NewMemoryStore(time.Minute)
	ctx := context.Background()

	session := store.NewSession("s1", "u1")
	if err := m.Save(ctx, session); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := m.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := m.Load(ctx, "s1"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("error after delete = %v, want ErrSessionNotFound", err)
	}
}
