package service

import (
	"context"
	"encoding/json"
	"time"

	"ai-taskagent-be/internal/dto"
	"ai-taskagent-be/internal/entity"
	"ai-taskagent-be/internal/pkg/logger"
	"ai-taskagent-be/internal/repository/specification"
	"ai-taskagent-be/internal/repository/unitofwork"
	"ai-taskagent-be/pkg/agent/access"
	"ai-taskagent-be/pkg/agent/store"
	"ai-taskagent-be/pkg/events"

	"github.com/google/uuid"
)

type IRecordService interface {
	Create(ctx context.Context, userId uuid.UUID, req *dto.CreateRecordRequest) (*dto.CreateRecordResponse, error)
	Show(ctx context.Context, userId uuid.UUID, id uuid.UUID) (*dto.ShowRecordResponse, error)
	List(ctx context.Context, userId uuid.UUID, req *dto.ListRecordsRequest) ([]*dto.ShowRecordResponse, error)
	Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error
}

type recordService struct {
	uowFactory       unitofwork.RepositoryFactory
	publisherService IPublisherService
	natsPublisher    NatsEventPublisher
	logger           logger.ILogger
}

// NatsEventPublisher mirrors the nats publisher surface the services
// need. Nil-safe at call sites: NATS being down never blocks a write.
type NatsEventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

func NewRecordService(
	uowFactory unitofwork.RepositoryFactory,
	publisherService IPublisherService,
	natsPublisher NatsEventPublisher,
	sysLogger logger.ILogger,
) IRecordService {
	return &recordService{
		uowFactory:       uowFactory,
		publisherService: publisherService,
		natsPublisher:    natsPublisher,
		logger:           sysLogger,
	}
}

func (s *recordService) Create(ctx context.Context, userId uuid.UUID, req *dto.CreateRecordRequest) (*dto.CreateRecordResponse, error) {
	record := &entity.Record{
		Id:         uuid.New(),
		ModelType:  req.ModelType,
		Name:       req.Name,
		Attributes: req.Attributes,
		UserId:     userId,
		CreatedAt:  time.Now(),
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.RecordRepository().Create(ctx, record); err != nil {
		return nil, err
	}

	// Queue the embed job so the record becomes semantically searchable.
	payload := dto.PublishEmbedRecordMessage{RecordId: record.Id}
	msgJson, err := json.Marshal(payload)
	if err == nil {
		if err := s.publisherService.Publish(ctx, msgJson); err != nil {
			s.logger.Warn("RecordService", "Failed to publish embed message", map[string]interface{}{
				"record_id": record.Id.String(),
				"error":     err.Error(),
			})
		}
	}

	s.publishAudit(ctx, events.NewRecordCreatedEvent(record.Id.String(), record.ModelType, userId.String()))

	return &dto.CreateRecordResponse{Id: record.Id}, nil
}

func (s *recordService) Show(ctx context.Context, userId uuid.UUID, id uuid.UUID) (*dto.ShowRecordResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	record, err := uow.RecordRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.ByUserID{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &store.EntityNotFoundError{Identifier: id.String(), ModelType: "record"}
	}
	return toRecordResponse(record), nil
}

func (s *recordService) List(ctx context.Context, userId uuid.UUID, req *dto.ListRecordsRequest) ([]*dto.ShowRecordResponse, error) {
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	specs := []specification.Specification{
		specification.ScopeBy{Scope: access.UserScope(userId)},
		specification.Pagination{Limit: limit, Offset: req.Offset},
		specification.OrderBy{Field: "created_at", Desc: true},
	}
	if req.ModelType != "" {
		specs = append(specs, specification.ByModelType{ModelType: req.ModelType})
	}
	if req.Query != "" {
		specs = append(specs, specification.NameSearch{Query: req.Query})
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	records, err := uow.RecordRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.ShowRecordResponse, len(records))
	for i, r := range records {
		responses[i] = toRecordResponse(r)
	}
	return responses, nil
}

func (s *recordService) Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	record, err := uow.RecordRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.ByUserID{UserID: userId},
	)
	if err != nil {
		return err
	}
	if record == nil {
		return &store.EntityNotFoundError{Identifier: id.String(), ModelType: "record"}
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.RecordEmbeddingRepository().DeleteByRecordId(ctx, id); err != nil {
		return err
	}
	if err := uow.RecordRepository().Delete(ctx, id); err != nil {
		return err
	}

	return uow.Commit()
}

func (s *recordService) publishAudit(ctx context.Context, event events.Event) {
	if s.natsPublisher == nil {
		return
	}
	if err := s.natsPublisher.Publish(ctx, event); err != nil {
		s.logger.Warn("RecordService", "Failed to publish audit event", map[string]interface{}{
			"event_type": event.EventType(),
			"error":      err.Error(),
		})
	}
}

func toRecordResponse(r *entity.Record) *dto.ShowRecordResponse {
	return &dto.ShowRecordResponse{
		Id:         r.Id,
		ModelType:  r.ModelType,
		Name:       r.Name,
		Attributes: r.Attributes,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}
