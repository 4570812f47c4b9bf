package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ai-taskagent-be/internal/dto"
	"ai-taskagent-be/internal/entity"
	"ai-taskagent-be/internal/repository/unitofwork"
	"ai-taskagent-be/pkg/agent/access"
	"ai-taskagent-be/pkg/agent/resolver"

	"github.com/google/uuid"
)

// EmbedPublisher pushes a record onto the embedding pipeline after a
// write. Matches the publisher service signature.
type EmbedPublisher interface {
	Publish(ctx context.Context, message []byte) error
}

// RecordStore persists records created through entity resolution and
// queues them for embedding.
type RecordStore struct {
	uowFactory unitofwork.RepositoryFactory
	publisher  EmbedPublisher
	logger     *log.Logger
}

var _ resolver.RecordCreator = (*RecordStore)(nil)

func NewRecordStore(
	uowFactory unitofwork.RepositoryFactory,
	publisher EmbedPublisher,
	logger *log.Logger,
) *RecordStore {
	return &RecordStore{
		uowFactory: uowFactory,
		publisher:  publisher,
		logger:     logger,
	}
}

func (s *RecordStore) Create(ctx context.Context, modelType string, scope access.ScopeFilter, attributes map[string]interface{}) (string, error) {
	name, _ := attributes["name"].(string)
	if name == "" {
		return "", fmt.Errorf("record of type %s requires a name attribute", modelType)
	}

	extra := make(map[string]interface{}, len(attributes))
	for k, v := range attributes {
		if k == "name" {
			continue
		}
		extra[k] = v
	}

	record := &entity.Record{
		Id:         uuid.New(),
		ModelType:  modelType,
		Name:       name,
		Attributes: extra,
		UserId:     scope.UserID,
		CreatedAt:  time.Now(),
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.RecordRepository().Create(ctx, record); err != nil {
		return "", fmt.Errorf("create %s record: %w", modelType, err)
	}

	s.logger.Printf("[SEARCH] Created %s record %s (%q)", modelType, record.Id, name)

	// Queue for embedding so future semantic lookups can find it. Best
	// effort: the record exists either way.
	payload := dto.PublishEmbedRecordMessage{RecordId: record.Id}
	if msg, err := json.Marshal(payload); err == nil {
		if err := s.publisher.Publish(ctx, msg); err != nil {
			s.logger.Printf("[SEARCH] Failed to queue embedding for record %s: %v", record.Id, err)
		}
	}

	return record.Id.String(), nil
}
