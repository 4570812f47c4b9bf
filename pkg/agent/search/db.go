package search

import (
	"context"
	"fmt"
	"log"
	"strings"

	"ai-taskagent-be/internal/repository/specification"
	"ai-taskagent-be/internal/repository/unitofwork"
	"ai-taskagent-be/pkg/agent/access"
	"ai-taskagent-be/pkg/agent/resolver"
)

// DBSearch resolves identifiers lexically via an ILIKE match on record
// names. Scores come from match strength, not embeddings, so an exact
// name hit can auto-select without a vector round trip.
type DBSearch struct {
	uowFactory unitofwork.RepositoryFactory
	logger     *log.Logger
}

var _ resolver.DBSearcher = (*DBSearch)(nil)

func NewDBSearch(uowFactory unitofwork.RepositoryFactory, logger *log.Logger) *DBSearch {
	return &DBSearch{uowFactory: uowFactory, logger: logger}
}

func (s *DBSearch) Search(ctx context.Context, modelType, query string, scope access.ScopeFilter, limit int) ([]resolver.EntityCandidate, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	records, err := uow.RecordRepository().FindAll(ctx,
		specification.ByModelType{ModelType: modelType},
		specification.ScopeBy{Scope: scope},
		specification.NameSearch{Query: query},
		specification.Pagination{Limit: limit},
	)
	if err != nil {
		return nil, fmt.Errorf("record search: %w", err)
	}

	candidates := make([]resolver.EntityCandidate, 0, len(records))
	for _, r := range records {
		attrs := map[string]interface{}{"name": r.Name}
		for k, v := range r.Attributes {
			attrs[k] = v
		}
		candidates = append(candidates, resolver.EntityCandidate{
			ID:         r.Id.String(),
			SourceType: resolver.SourceDB,
			Similarity: lexicalScore(query, r.Name),
			Attributes: attrs,
		})
	}

	s.logger.Printf("[SEARCH] DB search %q (%s): %d candidates", query, modelType, len(candidates))
	return candidates, nil
}

// lexicalScore grades how strongly a stored name matches the query.
// Exact matches clear the auto-select threshold; prefix matches land in
// the ambiguous band.
func lexicalScore(query, name string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	n := strings.ToLower(strings.TrimSpace(name))

	switch {
	case q == n:
		return 1.0
	case strings.HasPrefix(n, q):
		return 0.9
	case strings.Contains(n, q):
		return 0.75
	default:
		return 0.6
	}
}
