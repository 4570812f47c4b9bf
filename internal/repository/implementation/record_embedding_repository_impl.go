package implementation

import (
	"context"

	"ai-taskagent-be/internal/entity"
	"ai-taskagent-be/internal/mapper"
	"ai-taskagent-be/internal/model"
	"ai-taskagent-be/internal/repository/contract"
	"ai-taskagent-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type RecordEmbeddingRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.RecordEmbeddingMapper
}

func NewRecordEmbeddingRepository(db *gorm.DB) contract.RecordEmbeddingRepository {
	return &RecordEmbeddingRepositoryImpl{
		db:     db,
		mapper: mapper.NewRecordEmbeddingMapper(),
	}
}

func (r *RecordEmbeddingRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *RecordEmbeddingRepositoryImpl) Create(ctx context.Context, embedding *entity.RecordEmbedding) error {
	m := r.mapper.ToModel(embedding)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*embedding = *r.mapper.ToEntity(m)
	return nil
}

func (r *RecordEmbeddingRepositoryImpl) CreateBulk(ctx context.Context, embeddings []*entity.RecordEmbedding) error {
	models := make([]*model.RecordEmbedding, len(embeddings))
	for i, e := range embeddings {
		models[i] = r.mapper.ToModel(e)
	}

	if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
		return err
	}

	for i, m := range models {
		*embeddings[i] = *r.mapper.ToEntity(m)
	}
	return nil
}

func (r *RecordEmbeddingRepositoryImpl) DeleteByRecordId(ctx context.Context, recordId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("record_id = ?", recordId).Delete(&model.RecordEmbedding{}).Error
}

func (r *RecordEmbeddingRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.RecordEmbedding, error) {
	var models []*model.RecordEmbedding
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.RecordEmbedding, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

// SearchSimilarWithScore returns embeddings with similarity scores, filtered by threshold.
// Cosine distance in pgvector is: 1 - cosine_similarity, so we compute
// 1 - (embedding_value <=> query_vector) = cosine_similarity.
func (r *RecordEmbeddingRepositoryImpl) SearchSimilarWithScore(ctx context.Context, embedding []float32, modelType string, userId uuid.UUID, limit int, threshold float64) ([]*contract.ScoredRecordEmbedding, error) {
	if limit <= 0 {
		limit = 5
	}

	type result struct {
		model.RecordEmbedding
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	query := r.db.WithContext(ctx).
		Table("record_embeddings").
		Select("record_embeddings.*, 1 - (embedding_value <=> ?) as similarity", queryVector).
		Joins("JOIN records ON records.id = record_embeddings.record_id").
		Where("records.model_type = ?", modelType).
		Where("record_embeddings.deleted_at IS NULL").
		Where("records.deleted_at IS NULL").
		Where("1 - (embedding_value <=> ?) >= ?", queryVector, threshold).
		Order("similarity DESC").
		Limit(limit)

	if userId != uuid.Nil {
		query = query.Where("records.user_id = ?", userId)
	}

	if err := query.Scan(&results).Error; err != nil {
		return nil, err
	}

	scoredEmbeddings := make([]*contract.ScoredRecordEmbedding, len(results))
	for i, res := range results {
		e := r.mapper.ToEntity(&res.RecordEmbedding)
		scoredEmbeddings[i] = &contract.ScoredRecordEmbedding{
			Embedding:  e,
			Similarity: res.Similarity,
		}
	}
	return scoredEmbeddings, nil
}
