package service

import (
	"context"
	"fmt"

	"ai-taskagent-be/internal/entity"
	"ai-taskagent-be/internal/repository/specification"
	"ai-taskagent-be/internal/repository/unitofwork"
	"ai-taskagent-be/pkg/agent/access"

	"github.com/google/uuid"
)

// dbAccessPolicy derives a caller's search scope from their stored
// role. Admins see all records, everyone else only their own.
type dbAccessPolicy struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewAccessPolicy(uowFactory unitofwork.RepositoryFactory) access.Policy {
	return &dbAccessPolicy{uowFactory: uowFactory}
}

func (p *dbAccessPolicy) ScopeFor(ctx context.Context, userId uuid.UUID) (access.ScopeFilter, error) {
	uow := p.uowFactory.NewUnitOfWork(ctx)
	user, err := uow.UserRepository().FindOne(ctx, specification.ByID{ID: userId})
	if err != nil {
		return access.ScopeFilter{}, err
	}
	if user == nil {
		return access.ScopeFilter{}, fmt.Errorf("user %s not found", userId)
	}

	if user.Role == entity.UserRoleAdmin {
		return access.ScopeFilter{Level: access.ScopeAdmin, UserID: userId}, nil
	}
	return access.UserScope(userId), nil
}
