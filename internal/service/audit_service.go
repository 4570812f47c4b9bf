package service

import (
	"context"

	"ai-taskagent-be/internal/pkg/logger"
	"ai-taskagent-be/pkg/events"
	pktNats "ai-taskagent-be/pkg/nats"
)

// IAuditService consumes workflow and record events off the bus and
// writes them to the structured audit log.
type IAuditService interface {
	Start() error
}

type auditService struct {
	subscriber *pktNats.Subscriber
	logger     logger.ILogger
}

func NewAuditService(subscriber *pktNats.Subscriber, sysLogger logger.ILogger) IAuditService {
	return &auditService{
		subscriber: subscriber,
		logger:     sysLogger,
	}
}

func (s *auditService) Start() error {
	if s.subscriber == nil {
		s.logger.Warn("AuditService", "NATS unavailable, audit trail disabled", nil)
		return nil
	}
	return s.subscriber.Subscribe("events.>", "audit-trail", s.handle)
}

func (s *auditService) handle(ctx context.Context, event events.Event) error {
	s.logger.Info("AuditService", event.EventType(), event.Payload())
	return nil
}
