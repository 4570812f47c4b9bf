package resolver

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"ai-taskagent-be/pkg/agent/access"
	"ai-taskagent-be/pkg/agent/store"

	"github.com/cenkalti/backoff/v5"
	"github.com/patrickmn/go-cache"
)

// Source types for candidates.
const (
	SourceVector = "vector"
	SourceDB     = "db"
)

// Decision is the outcome class of one resolution.
type Decision string

const (
	DecisionSelected           Decision = "selected"
	DecisionAmbiguousNeedsUser Decision = "ambiguous_needs_user"
	DecisionCreated            Decision = "created"
	DecisionNotFound           Decision = "not_found"
)

// EntityCandidate is one possible match for a spoken identifier.
type EntityCandidate struct {
	ID         string                 `json:"id"`
	SourceType string                 `json:"source_type"`
	Similarity float64                `json:"similarity"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Resolution is the decision derived from the merged candidate set.
type Resolution struct {
	Decision   Decision          `json:"decision"`
	Candidate  *EntityCandidate  `json:"candidate,omitempty"`  // Selected / Created
	Candidates []EntityCandidate `json:"candidates,omitempty"` // AmbiguousNeedsUser
}

// Options tunes one resolution call.
type Options struct {
	CreateIfMissing bool
	Defaults        map[string]interface{}
	Limit           int
}

// FieldSpec is the declared resolution capability of a workflow
// field: a data-described contract, never inferred from naming
// conventions.
type FieldSpec struct {
	Name            string                 `json:"name"`
	ModelType       string                 `json:"model_type"`
	SearchField     string                 `json:"search_field"`
	Resolvable      bool                   `json:"resolvable"`
	CreateIfMissing bool                   `json:"create_if_missing"`
	Defaults        map[string]interface{} `json:"defaults,omitempty"`
}

// VectorSearcher is the semantic search collaborator.
type VectorSearcher interface {
	Search(ctx context.Context, modelType, query string, scope access.ScopeFilter, limit int) ([]EntityCandidate, error)
}

// DBSearcher is the exact/fuzzy search collaborator.
type DBSearcher interface {
	Search(ctx context.Context, modelType, query string, scope access.ScopeFilter, limit int) ([]EntityCandidate, error)
}

// RecordCreator is the persistence collaborator used for
// create-if-missing resolutions.
type RecordCreator interface {
	Create(ctx context.Context, modelType string, scope access.ScopeFilter, attributes map[string]interface{}) (string, error)
}

// Config holds the fixed decision thresholds and the per-source
// search call policy.
type Config struct {
	AutoSelectThreshold float64
	AmbiguousThreshold  float64
	TopN                int
	SearchLimit         int
	CacheTTL            time.Duration

	// Each search source gets a per-attempt timeout and bounded
	// exponential-backoff retries, so a hung source can't pin the turn.
	SearchTimeout time.Duration
	SearchRetries uint
}

func DefaultConfig() Config {
	return Config{
		AutoSelectThreshold: 0.90,
		AmbiguousThreshold:  0.70,
		TopN:                5,
		SearchLimit:         10,
		CacheTTL:            5 * time.Minute,
		SearchTimeout:       10 * time.Second,
		SearchRetries:       3,
	}
}

// Resolver maps free-text identifiers to existing or newly created
// domain records via dual-source search and a fixed confidence
// policy.
type Resolver struct {
	vector  VectorSearcher
	db      DBSearcher
	creator RecordCreator
	config  Config
	cache   *cache.Cache
	logger  *log.Logger
}

func NewResolver(
	vector VectorSearcher,
	db DBSearcher,
	creator RecordCreator,
	config Config,
	logger *log.Logger,
) *Resolver {
	return &Resolver{
		vector:  vector,
		db:      db,
		creator: creator,
		config:  config,
		cache:   cache.New(config.CacheTTL, 10*time.Minute),
		logger:  logger,
	}
}

// Resolve maps an identifier to a record. Vector and DB search run
// concurrently with independent failure: one source erroring only
// omits its contribution. Candidate sets are cached per
// (modelType, query, scope) for a short TTL; the decision policy is
// re-applied on every hit, never cached itself.
func (r *Resolver) Resolve(
	ctx context.Context,
	identifier string,
	modelType string,
	scope access.ScopeFilter,
	opts Options,
) (*Resolution, error) {

	candidates, err := r.searchCandidates(ctx, identifier, modelType, scope)
	if err != nil {
		return nil, err
	}

	return r.decide(ctx, identifier, modelType, scope, candidates, opts)
}

// ItemResolution is the per-item result of an array-valued field.
type ItemResolution struct {
	Index      int         `json:"index"`
	Identifier string      `json:"identifier"`
	Resolution *Resolution `json:"resolution,omitempty"`
	Err        error       `json:"-"`
	ErrMessage string      `json:"error,omitempty"`
}

// ResolveItems resolves each identifier of an array-valued nested
// field independently. One item failing is recorded on that item and
// never prevents resolution of its siblings.
func (r *Resolver) ResolveItems(
	ctx context.Context,
	identifiers []string,
	modelType string,
	scope access.ScopeFilter,
	opts Options,
) []ItemResolution {

	results := make([]ItemResolution, len(identifiers))
	for i, identifier := range identifiers {
		res, err := r.Resolve(ctx, identifier, modelType, scope, opts)
		results[i] = ItemResolution{
			Index:      i,
			Identifier: identifier,
			Resolution: res,
			Err:        err,
		}
		if err != nil {
			results[i].ErrMessage = err.Error()
			r.logger.Printf("[RESOLVER] Item %d (%q) failed: %v", i, identifier, err)
		}
	}
	return results
}

func (r *Resolver) searchCandidates(
	ctx context.Context,
	identifier string,
	modelType string,
	scope access.ScopeFilter,
) ([]EntityCandidate, error) {

	cacheKey := fmt.Sprintf("%s|%s|%s|%s", modelType, identifier, scope.Level, scope.UserID)
	if cached, found := r.cache.Get(cacheKey); found {
		r.logger.Printf("[RESOLVER] Cache hit for %q (%s)", identifier, modelType)
		return cached.([]EntityCandidate), nil
	}

	type searchResult struct {
		source     string
		candidates []EntityCandidate
		err        error
	}

	search := func(source string, fn func(context.Context) ([]EntityCandidate, error)) searchResult {
		operation := func() ([]EntityCandidate, error) {
			callCtx, cancel := context.WithTimeout(ctx, r.config.SearchTimeout)
			defer cancel()
			return fn(callCtx)
		}
		candidates, err := backoff.Retry(ctx, operation,
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(r.config.SearchRetries),
		)
		return searchResult{source: source, candidates: candidates, err: err}
	}

	var wg sync.WaitGroup
	results := make([]searchResult, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = search(SourceVector, func(callCtx context.Context) ([]EntityCandidate, error) {
			return r.vector.Search(callCtx, modelType, identifier, scope, r.config.SearchLimit)
		})
	}()
	go func() {
		defer wg.Done()
		results[1] = search(SourceDB, func(callCtx context.Context) ([]EntityCandidate, error) {
			return r.db.Search(callCtx, modelType, identifier, scope, r.config.SearchLimit)
		})
	}()
	wg.Wait()

	var merged []EntityCandidate
	failures := 0
	for _, res := range results {
		if res.err != nil {
			failures++
			r.logger.Printf("[RESOLVER] %s search failed for %q: %v (continuing with other source)",
				res.source, identifier, res.err)
			continue
		}
		merged = append(merged, res.candidates...)
	}

	if failures == len(results) {
		return nil, &store.ExternalServiceError{
			Service: "search",
			Err:     fmt.Errorf("all candidate sources failed for %q", identifier),
		}
	}

	merged = dedupeAndSort(merged)
	r.cache.Set(cacheKey, merged, cache.DefaultExpiration)

	return merged, nil
}

func (r *Resolver) decide(
	ctx context.Context,
	identifier string,
	modelType string,
	scope access.ScopeFilter,
	candidates []EntityCandidate,
	opts Options,
) (*Resolution, error) {

	if len(candidates) > 0 && candidates[0].Similarity >= r.config.AutoSelectThreshold {
		top := candidates[0]
		r.logger.Printf("[RESOLVER] Auto-selected %s for %q (score %.2f)", top.ID, identifier, top.Similarity)
		return &Resolution{Decision: DecisionSelected, Candidate: &top}, nil
	}

	if len(candidates) > 0 && candidates[0].Similarity >= r.config.AmbiguousThreshold {
		topN := candidates
		if len(topN) > r.config.TopN {
			topN = topN[:r.config.TopN]
		}
		r.logger.Printf("[RESOLVER] Ambiguous match for %q: %d candidates need user input", identifier, len(topN))
		return &Resolution{Decision: DecisionAmbiguousNeedsUser, Candidates: topN}, nil
	}

	if opts.CreateIfMissing {
		attributes := map[string]interface{}{"name": identifier}
		for k, v := range opts.Defaults {
			attributes[k] = v
		}

		id, err := r.creator.Create(ctx, modelType, scope, attributes)
		if err != nil {
			return nil, &store.ExternalServiceError{Service: "persistence", Err: err}
		}

		r.logger.Printf("[RESOLVER] Created new %s %s for %q", modelType, id, identifier)
		return &Resolution{
			Decision:  DecisionCreated,
			Candidate: &EntityCandidate{ID: id, SourceType: SourceDB, Similarity: 1.0, Attributes: attributes},
		}, nil
	}

	r.logger.Printf("[RESOLVER] No match for %q (%s), creation disallowed", identifier, modelType)
	return &Resolution{Decision: DecisionNotFound}, nil
}

// dedupeAndSort merges candidates by record id, keeping the best
// similarity per record, and orders by similarity descending.
func dedupeAndSort(candidates []EntityCandidate) []EntityCandidate {
	best := make(map[string]EntityCandidate, len(candidates))
	for _, c := range candidates {
		if existing, ok := best[c.ID]; !ok || c.Similarity > existing.Similarity {
			best[c.ID] = c
		}
	}

	merged := make([]EntityCandidate, 0, len(best))
	for _, c := range best {
		merged = append(merged, c)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	return merged
}
