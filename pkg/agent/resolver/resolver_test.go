package resolver

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"ai-taskagent-be/pkg/agent/access"
	"ai-taskagent-be/pkg/agent/store"
)

type fakeSearcher struct {
	candidates []EntityCandidate
	err        error
	calls      int
}

func (f *fakeSearcher) Search(ctx context.Context, modelType, query string, scope access.ScopeFilter, limit int) ([]EntityCandidate, error) {
	f.calls++
	return f.candidates, f.err
}

type fakeCreator struct {
	id   string
	err  error
	last map[string]interface{}
}

func (f *fakeCreator) Create(ctx context.Context, modelType string, scope access.ScopeFilter, attributes map[string]interface{}) (string, error) {
	f.last = attributes
	return f.id, f.err
}

func newTestResolver(vector, db *fakeSearcher, creator *fakeCreator) *Resolver {
	// Single attempt per source keeps the hard-failure cases quick;
	// retry behavior has its own test.
	cfg := DefaultConfig()
	cfg.SearchRetries = 1
	return NewResolver(vector, db, creator, cfg, log.New(io.Discard, "", 0))
}

func TestResolveAutoSelectsHighConfidence(t *testing.T) {
	vector := &fakeSearcher{candidates: []EntityCandidate{
		{ID: "c1", SourceType: SourceVector, Similarity: 0.95, Attributes: map[string]interface{}{"name": "John Smith"}},
	}}
	db := &fakeSearcher{}
	r := newTestResolver(vector, db, &fakeCreator{})

	res, err := r.Resolve(context.Background(), "john", "customer", access.ScopeFilter{}, Options{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Decision != DecisionSelected {
		t.Fatalf("Decision = %s, want selected", res.Decision)
	}
	if res.Candidate == nil || res.Candidate.ID != "c1" {
		t.Errorf("Candidate = %+v, want c1", res.Candidate)
	}
}

func TestResolveAmbiguousMidBand(t *testing.T) {
	vector := &fakeSearcher{candidates: []EntityCandidate{
		{ID: "c1", SourceType: SourceVector, Similarity: 0.85},
		{ID: "c2", SourceType: SourceVector, Similarity: 0.80},
	}}
	db := &fakeSearcher{candidates: []EntityCandidate{
		{ID: "c3", SourceType: SourceDB, Similarity: 0.75},
	}}
	r := newTestResolver(vector, db, &fakeCreator{})

	res, err := r.Resolve(context.Background(), "john", "customer", access.ScopeFilter{}, Options{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Decision != DecisionAmbiguousNeedsUser {
		t.Fatalf("Decision = %s, want ambiguous_needs_user", res.Decision)
	}
	if len(res.Candidates) != 3 {
		t.Errorf("Candidates len = %d, want 3", len(res.Candidates))
	}
	if res.Candidates[0].ID != "c1" {
		t.Errorf("best candidate = %s, want c1", res.Candidates[0].ID)
	}
}

func TestResolveAmbiguousTrimsToTopN(t *testing.T) {
	var many []EntityCandidate
	for i := 0; i < 8; i++ {
		many = append(many, EntityCandidate{ID: string(rune('a' + i)), Similarity: 0.89 - float64(i)*0.01})
	}
	r := newTestResolver(&fakeSearcher{candidates: many}, &fakeSearcher{}, &fakeCreator{})

	res, err := r.Resolve(context.Background(), "x", "customer", access.ScopeFilter{}, Options{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(res.Candidates) != DefaultConfig().TopN {
		t.Errorf("Candidates len = %d, want %d", len(res.Candidates), DefaultConfig().TopN)
	}
}

func TestResolveCreatesWhenMissing(t *testing.T) {
	creator := &fakeCreator{id: "new-1"}
	r := newTestResolver(&fakeSearcher{}, &fakeSearcher{}, creator)

	res, err := r.Resolve(context.Background(), "Brand New Co", "customer", access.ScopeFilter{},
		Options{CreateIfMissing: true, Defaults: map[string]interface{}{"status": "active"}})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Decision != DecisionCreated {
		t.Fatalf("Decision = %s, want created", res.Decision)
	}
	if res.Candidate.ID != "new-1" {
		t.Errorf("Candidate.ID = %s, want new-1", res.Candidate.ID)
	}
	if creator.last["name"] != "Brand New Co" || creator.last["status"] != "active" {
		t.Errorf("creator attributes = %v", creator.last)
	}
}

func TestResolveNotFoundWithoutCreate(t *testing.T) {
	r := newTestResolver(&fakeSearcher{}, &fakeSearcher{}, &fakeCreator{})

	res, err := r.Resolve(context.Background(), "nobody", "customer", access.ScopeFilter{}, Options{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Decision != DecisionNotFound {
		t.Errorf("Decision = %s, want not_found", res.Decision)
	}
}

// Low-confidence matches below the ambiguity floor are treated the
// same as no match at all.
func TestResolveLowScoresFallThrough(t *testing.T) {
	vector := &fakeSearcher{candidates: []EntityCandidate{{ID: "c1", Similarity: 0.5}}}
	r := newTestResolver(vector, &fakeSearcher{}, &fakeCreator{})

	res, err := r.Resolve(context.Background(), "vague", "customer", access.ScopeFilter{}, Options{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Decision != DecisionNotFound {
		t.Errorf("Decision = %s, want not_found", res.Decision)
	}
}

func TestResolveSurvivesOneSourceFailure(t *testing.T) {
	vector := &fakeSearcher{err: errors.New("vector index down")}
	db := &fakeSearcher{candidates: []EntityCandidate{
		{ID: "c1", SourceType: SourceDB, Similarity: 0.95},
	}}
	r := newTestResolver(vector, db, &fakeCreator{})

	res, err := r.Resolve(context.Background(), "john", "customer", access.ScopeFilter{}, Options{})
	if err != nil {
		t.Fatalf("Resolve failed despite healthy db source: %v", err)
	}
	if res.Decision != DecisionSelected {
		t.Errorf("Decision = %s, want selected", res.Decision)
	}
}

// A source that fails once and then recovers should succeed within the
// bounded retry budget instead of losing its contribution.
func TestResolveRetriesTransientSearchFailure(t *testing.T) {
	vector := &flakySearcher{failures: 1, candidates: []EntityCandidate{
		{ID: "c1", SourceType: SourceVector, Similarity: 0.95},
	}}
	cfg := DefaultConfig()
	r := NewResolver(vector, &fakeSearcher{}, &fakeCreator{}, cfg, log.New(io.Discard, "", 0))

	res, err := r.Resolve(context.Background(), "john", "customer", access.ScopeFilter{}, Options{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Decision != DecisionSelected {
		t.Errorf("Decision = %s, want selected", res.Decision)
	}
	if vector.calls != 2 {
		t.Errorf("vector calls = %d, want 2 (one failure, one retry)", vector.calls)
	}
}

type flakySearcher struct {
	failures   int
	candidates []EntityCandidate
	calls      int
}

func (f *flakySearcher) Search(ctx context.Context, modelType, query string, scope access.ScopeFilter, limit int) ([]EntityCandidate, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient search error")
	}
	return f.candidates, nil
}

func TestResolveFailsWhenBothSourcesFail(t *testing.T) {
	vector := &fakeSearcher{err: errors.New("vector down")}
	db := &fakeSearcher{err: errors.New("db down")}
	r := newTestResolver(vector, db, &fakeCreator{})

	_, err := r.Resolve(context.Background(), "john", "customer", access.ScopeFilter{}, Options{})
	var external *store.ExternalServiceError
	if !errors.As(err, &external) {
		t.Fatalf("error = %v, want ExternalServiceError", err)
	}
}

func TestResolveCachesCandidates(t *testing.T) {
	vector := &fakeSearcher{candidates: []EntityCandidate{{ID: "c1", Similarity: 0.95}}}
	db := &fakeSearcher{}
	r := newTestResolver(vector, db, &fakeCreator{})

	ctx := context.Background()
	scope := access.ScopeFilter{}
	if _, err := r.Resolve(ctx, "john", "customer", scope, Options{}); err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	if _, err := r.Resolve(ctx, "john", "customer", scope, Options{}); err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}

	if vector.calls != 1 || db.calls != 1 {
		t.Errorf("search calls = (%d, %d), want (1, 1)", vector.calls, db.calls)
	}
}

func TestResolveItemsIndependentFailures(t *testing.T) {
	// "coffee" resolves, "ghost" finds nothing.
	vector := &fakeSearcher{}
	db := &dbByQuery{results: map[string][]EntityCandidate{
		"coffee": {{ID: "p1", SourceType: SourceDB, Similarity: 1.0}},
	}}
	r := NewResolver(vector, db, &fakeCreator{}, DefaultConfig(), log.New(io.Discard, "", 0))

	results := r.ResolveItems(context.Background(), []string{"coffee", "ghost"}, "product", access.ScopeFilter{}, Options{})
	if len(results) != 2 {
		t.Fatalf("results len = %d, want 2", len(results))
	}
	if results[0].Resolution.Decision != DecisionSelected {
		t.Errorf("item 0 decision = %s, want selected", results[0].Resolution.Decision)
	}
	if results[1].Resolution.Decision != DecisionNotFound {
		t.Errorf("item 1 decision = %s, want not_found", results[1].Resolution.Decision)
	}
}

type dbByQuery struct {
	results map[string][]EntityCandidate
}

func (f *dbByQuery) Search(ctx context.Context, modelType, query string, scope access.ScopeFilter, limit int) ([]EntityCandidate, error) {
	return f.results[query], nil
}

func TestDedupeAndSort(t *testing.T) {
	merged := dedupeAndSort([]EntityCandidate{
		{ID: "a", SourceType: SourceVector, Similarity: 0.80},
		{ID: "b", SourceType: SourceDB, Similarity: 0.95},
		{ID: "a", SourceType: SourceDB, Similarity: 0.90},
	})

	if len(merged) != 2 {
		t.Fatalf("len = %d, want 2", len(merged))
	}
	if merged[0].ID != "b" || merged[1].ID != "a" {
		t.Errorf("order = [%s, %s], want [b, a]", merged[0].ID, merged[1].ID)
	}
	if merged[1].Similarity != 0.90 {
		t.Errorf("duplicate kept worse score: %.2f", merged[1].Similarity)
	}
}
