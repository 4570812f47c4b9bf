package unitofwork

import (
	"context"

	"ai-taskagent-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	UserRepository() contract.UserRepository
	RecordRepository() contract.RecordRepository
	RecordEmbeddingRepository() contract.RecordEmbeddingRepository

	ChatSessionRepository() contract.ChatSessionRepository
	ChatMessageRepository() contract.ChatMessageRepository
}
