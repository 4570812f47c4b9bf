package search

import (
	"context"
	"fmt"
	"log"

	"ai-taskagent-be/internal/repository/specification"
	"ai-taskagent-be/internal/repository/unitofwork"
	"ai-taskagent-be/pkg/agent/access"
	"ai-taskagent-be/pkg/agent/resolver"
	"ai-taskagent-be/pkg/embedding"

	"github.com/google/uuid"
)

// VectorSearch resolves identifiers semantically: the query is embedded
// and matched against record embeddings via pgvector cosine similarity.
type VectorSearch struct {
	uowFactory        unitofwork.RepositoryFactory
	embeddingProvider embedding.EmbeddingProvider
	logger            *log.Logger
}

var _ resolver.VectorSearcher = (*VectorSearch)(nil)

func NewVectorSearch(
	uowFactory unitofwork.RepositoryFactory,
	embeddingProvider embedding.EmbeddingProvider,
	logger *log.Logger,
) *VectorSearch {
	return &VectorSearch{
		uowFactory:        uowFactory,
		embeddingProvider: embeddingProvider,
		logger:            logger,
	}
}

func (s *VectorSearch) Search(ctx context.Context, modelType, query string, scope access.ScopeFilter, limit int) ([]resolver.EntityCandidate, error) {
	res, err := s.embeddingProvider.Generate(query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scopeUser := scope.UserID
	if scope.Level == access.ScopeAdmin {
		scopeUser = uuid.Nil // no ownership filter
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	scored, err := uow.RecordEmbeddingRepository().SearchSimilarWithScore(
		ctx, res.Embedding.Values, modelType, scopeUser, limit, 0.0)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	if len(scored) == 0 {
		return nil, nil
	}

	// Hydrate record attributes for the matched embeddings.
	recordIds := make([]uuid.UUID, 0, len(scored))
	for _, sc := range scored {
		recordIds = append(recordIds, sc.Embedding.RecordId)
	}
	records, err := uow.RecordRepository().FindAll(ctx, specification.ByIDs{IDs: recordIds})
	if err != nil {
		return nil, fmt.Errorf("hydrate records: %w", err)
	}

	attributesById := make(map[uuid.UUID]map[string]interface{}, len(records))
	for _, r := range records {
		attrs := map[string]interface{}{"name": r.Name}
		for k, v := range r.Attributes {
			attrs[k] = v
		}
		attributesById[r.Id] = attrs
	}

	candidates := make([]resolver.EntityCandidate, 0, len(scored))
	for _, sc := range scored {
		candidates = append(candidates, resolver.EntityCandidate{
			ID:         sc.Embedding.RecordId.String(),
			SourceType: resolver.SourceVector,
			Similarity: sc.Similarity,
			Attributes: attributesById[sc.Embedding.RecordId],
		})
	}

	s.logger.Printf("[SEARCH] Vector search %q (%s): %d candidates", query, modelType, len(candidates))
	return candidates, nil
}
