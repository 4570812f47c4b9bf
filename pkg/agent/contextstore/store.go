package contextstore

import (
	"context"

	"ai-taskagent-be/pkg/agent/store"
)

// ContextStore persists per-session agent state between turns. A
// session must round-trip through Save/Load with no information loss,
// including the full workflow stack and collected data.
type ContextStore interface {
	Load(ctx context.Context, sessionID string) (*store.Session, error)
	Save(ctx context.Context, session *store.Session) error
	Delete(ctx context.Context, sessionID string) error
}
