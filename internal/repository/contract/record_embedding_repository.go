package contract

import (
	"context"

	"ai-taskagent-be/internal/entity"
	"ai-taskagent-be/internal/repository/specification"

	"github.com/google/uuid"
)

// ScoredRecordEmbedding wraps RecordEmbedding with its similarity score
type ScoredRecordEmbedding struct {
	Embedding  *entity.RecordEmbedding
	Similarity float64 // 0.0 to 1.0 (1.0 = identical)
}

type RecordEmbeddingRepository interface {
	Create(ctx context.Context, embedding *entity.RecordEmbedding) error
	CreateBulk(ctx context.Context, embeddings []*entity.RecordEmbedding) error
	DeleteByRecordId(ctx context.Context, recordId uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.RecordEmbedding, error)
	// SearchSimilarWithScore returns embeddings with their similarity scores,
	// joined against records so model type and ownership filters apply.
	SearchSimilarWithScore(ctx context.Context, embedding []float32, modelType string, userId uuid.UUID, limit int, threshold float64) ([]*ScoredRecordEmbedding, error)
}
