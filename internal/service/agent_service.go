package service

import (
	"context"
	"time"

	"ai-taskagent-be/internal/dto"
	"ai-taskagent-be/internal/entity"
	"ai-taskagent-be/internal/pkg/logger"
	"ai-taskagent-be/internal/repository/specification"
	"ai-taskagent-be/internal/repository/unitofwork"
	"ai-taskagent-be/pkg/agent/orchestrator"
	"ai-taskagent-be/pkg/agent/store"

	"github.com/google/uuid"
)

type IAgentService interface {
	SendMessage(ctx context.Context, userId uuid.UUID, req *dto.SendMessageRequest) (*dto.SendMessageResponse, error)
	CreateSession(ctx context.Context, userId uuid.UUID, req *dto.CreateAgentSessionRequest) (*dto.CreateAgentSessionResponse, error)
	ListSessions(ctx context.Context, userId uuid.UUID) ([]*dto.AgentSessionResponse, error)
	GetTranscript(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dto.AgentTranscriptResponse, error)
	DeleteSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error
}

type agentService struct {
	uowFactory   unitofwork.RepositoryFactory
	orchestrator *orchestrator.Orchestrator
	logger       logger.ILogger
}

func NewAgentService(
	uowFactory unitofwork.RepositoryFactory,
	agentOrchestrator *orchestrator.Orchestrator,
	sysLogger logger.ILogger,
) IAgentService {
	return &agentService{
		uowFactory:   uowFactory,
		orchestrator: agentOrchestrator,
		logger:       sysLogger,
	}
}

// SendMessage runs one agent turn and records the exchange in the
// durable transcript. The turn itself (classification, workflow state,
// persistence of agent context) is the orchestrator's job; this layer
// owns chat session rows.
func (s *agentService) SendMessage(ctx context.Context, userId uuid.UUID, req *dto.SendMessageRequest) (*dto.SendMessageResponse, error) {
	session, resumed, err := s.ensureSession(ctx, userId, req.SessionId, req.Message)
	if err != nil {
		return nil, err
	}

	result, err := s.orchestrator.ProcessMessage(ctx, session.Id.String(), userId, req.Message, resumed)
	if err != nil {
		return nil, err
	}

	// Transcript is best effort: the agent already answered.
	s.appendTranscript(ctx, session.Id, req.Message, result.Response, result.Strategy)

	return &dto.SendMessageResponse{
		SessionId:      session.Id,
		Strategy:       result.Strategy,
		Response:       result.Response,
		Data:           result.Data,
		PendingChoices: result.PendingChoices,
		ContextReset:   result.ContextReset,
	}, nil
}

func (s *agentService) CreateSession(ctx context.Context, userId uuid.UUID, req *dto.CreateAgentSessionRequest) (*dto.CreateAgentSessionResponse, error) {
	title := req.Title
	if title == "" {
		title = "New conversation"
	}

	session := &entity.ChatSession{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     title,
		CreatedAt: time.Now(),
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.ChatSessionRepository().Create(ctx, session); err != nil {
		return nil, err
	}

	return &dto.CreateAgentSessionResponse{Id: session.Id}, nil
}

func (s *agentService) ListSessions(ctx context.Context, userId uuid.UUID) ([]*dto.AgentSessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sessions, err := uow.ChatSessionRepository().FindAll(ctx,
		specification.Filter("user_id", userId),
		specification.OrderBy{Field: "updated_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.AgentSessionResponse, len(sessions))
	for i, sess := range sessions {
		responses[i] = &dto.AgentSessionResponse{
			Id:        sess.Id,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		}
	}
	return responses, nil
}

func (s *agentService) GetTranscript(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dto.AgentTranscriptResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	session, err := uow.ChatSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.Filter("user_id", userId),
	)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &store.EntityNotFoundError{Identifier: sessionId.String(), ModelType: "chat_session"}
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: false},
	)
	if err != nil {
		return nil, err
	}

	messageResponses := make([]dto.AgentMessageResponse, len(messages))
	for i, msg := range messages {
		messageResponses[i] = dto.AgentMessageResponse{
			Id:        msg.Id,
			Role:      msg.Role,
			Chat:      msg.Chat,
			Strategy:  msg.Strategy,
			CreatedAt: msg.CreatedAt,
		}
	}

	return &dto.AgentTranscriptResponse{
		Session: dto.AgentSessionResponse{
			Id:        session.Id,
			Title:     session.Title,
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
		},
		Messages: messageResponses,
	}, nil
}

func (s *agentService) DeleteSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	session, err := uow.ChatSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.Filter("user_id", userId),
	)
	if err != nil {
		return err
	}
	if session == nil {
		return &store.EntityNotFoundError{Identifier: sessionId.String(), ModelType: "chat_session"}
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteByChatSessionId(ctx, sessionId); err != nil {
		return err
	}
	if err := uow.ChatSessionRepository().Delete(ctx, sessionId); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	// Drop the agent context too so a reused id starts clean.
	return s.orchestrator.ResetSession(ctx, sessionId.String())
}

// ensureSession loads the addressed chat session (enforcing ownership)
// or creates a fresh one titled from the first message. The second
// return reports whether the conversation pre-existed, which lets the
// orchestrator tell a TTL-expired context apart from a first message.
func (s *agentService) ensureSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, firstMessage string) (*entity.ChatSession, bool, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	if sessionId != uuid.Nil {
		session, err := uow.ChatSessionRepository().FindOne(ctx,
			specification.ByID{ID: sessionId},
			specification.Filter("user_id", userId),
		)
		if err != nil {
			return nil, false, err
		}
		if session == nil {
			return nil, false, &store.EntityNotFoundError{Identifier: sessionId.String(), ModelType: "chat_session"}
		}
		return session, true, nil
	}

	title := firstMessage
	if len(title) > 80 {
		title = title[:80]
	}
	session := &entity.ChatSession{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     title,
		CreatedAt: time.Now(),
	}
	if err := uow.ChatSessionRepository().Create(ctx, session); err != nil {
		return nil, false, err
	}
	return session, false, nil
}

func (s *agentService) appendTranscript(ctx context.Context, sessionId uuid.UUID, userMessage, assistantMessage, strategy string) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	// The turn strategy is recorded on the assistant row, so the
	// transcript shows how each reply was produced.
	rows := []*entity.ChatMessage{
		{Id: uuid.New(), Chat: userMessage, Role: "user", ChatSessionId: sessionId, CreatedAt: time.Now()},
		{Id: uuid.New(), Chat: assistantMessage, Role: "assistant", Strategy: strategy, ChatSessionId: sessionId, CreatedAt: time.Now()},
	}
	for _, row := range rows {
		if err := uow.ChatMessageRepository().Create(ctx, row); err != nil {
			s.logger.Warn("AgentService", "Failed to append transcript message", map[string]interface{}{
				"session_id": sessionId.String(),
				"role":       row.Role,
				"error":      err.Error(),
			})
		}
	}
}
