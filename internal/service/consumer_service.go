// FILE: internal/service/consumer_service.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ai-taskagent-be/internal/dto"
	"ai-taskagent-be/internal/entity"
	"ai-taskagent-be/internal/repository/specification"
	"ai-taskagent-be/internal/repository/unitofwork"
	"ai-taskagent-be/pkg/embedding"
	"ai-taskagent-be/pkg/utils"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub            *gochannel.GoChannel
	topicName         string
	uowFactory        unitofwork.RepositoryFactory
	embeddingProvider embedding.EmbeddingProvider
	chunkSize         int
	chunkOverlap      int
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	embeddingProvider embedding.EmbeddingProvider,
	chunkSize int,
	chunkOverlap int,
) IConsumerService {
	return &consumerService{
		pubSub:            pubSub,
		topicName:         topicName,
		uowFactory:        uowFactory,
		embeddingProvider: embeddingProvider,
		chunkSize:         chunkSize,
		chunkOverlap:      chunkOverlap,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishEmbedRecordMessage
	err := json.Unmarshal(msg.Payload, &payload)
	if err != nil {
		log.Printf("[ERROR] Failed to unmarshal message: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	log.Printf("[INFO] Processing record embedding for RecordId: %s", payload.RecordId)

	uow := cs.uowFactory.NewUnitOfWork(ctx)

	record, err := uow.RecordRepository().FindOne(ctx, specification.ByID{ID: payload.RecordId})
	if err != nil {
		log.Printf("[ERROR] Failed to get record %s: %v", payload.RecordId, err)
		msg.Nack() // Nack for retriable errors
		return
	}
	if record == nil {
		log.Printf("[ERROR] Record not found: %s", payload.RecordId)
		msg.Ack() // Record deleted? Ack.
		return
	}

	content := recordDocument(record)

	log.Printf("[INFO] Generating embeddings for record %s (content length: %d)", payload.RecordId, len(content))

	// Record documents rarely exceed one chunk, but invoices with many
	// line items can.
	chunks := utils.SplitText(content, cs.chunkSize, cs.chunkOverlap)

	var newEmbeddings []*entity.RecordEmbedding

	for i, chunk := range chunks {
		res, err := cs.embeddingProvider.Generate(chunk, "RETRIEVAL_DOCUMENT")
		if err != nil {
			log.Printf("[ERROR] Failed to generate embedding for chunk %d of record %s: %v", i, payload.RecordId, err)
			msg.Nack()
			return
		}

		newEmbeddings = append(newEmbeddings, &entity.RecordEmbedding{
			Id:             uuid.New(),
			Document:       chunk,
			EmbeddingValue: res.Embedding.Values,
			RecordId:       record.Id,
			ChunkIndex:     i,
			CreatedAt:      time.Now(),
		})
	}

	if err := uow.Begin(ctx); err != nil {
		log.Printf("[ERROR] Failed to begin transaction: %v", err)
		msg.Nack()
		return
	}
	defer uow.Rollback()

	if err := uow.RecordEmbeddingRepository().DeleteByRecordId(ctx, record.Id); err != nil {
		log.Printf("[ERROR] Failed to delete old embeddings: %v", err)
		msg.Nack()
		return
	}

	if len(newEmbeddings) > 0 {
		if err := uow.RecordEmbeddingRepository().CreateBulk(ctx, newEmbeddings); err != nil {
			log.Printf("[ERROR] Failed to create bulk embeddings: %v", err)
			msg.Nack()
			return
		}
	}

	if err := uow.Commit(); err != nil {
		log.Printf("[ERROR] Failed to commit transaction: %v", err)
		msg.Nack()
		return
	}

	log.Printf("[SUCCESS] Record processed: %d chunks for RecordId: %s", len(newEmbeddings), payload.RecordId)
	msg.Ack()
}

// recordDocument renders a record as the text that gets embedded.
func recordDocument(record *entity.Record) string {
	content := fmt.Sprintf("Type: %s\nName: %s\n", record.ModelType, record.Name)
	for k, v := range record.Attributes {
		content += fmt.Sprintf("%s: %v\n", k, v)
	}
	content += "Created At: " + record.CreatedAt.Format(time.RFC3339)
	return content
}
