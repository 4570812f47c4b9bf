package access

import (
	"context"

	"github.com/google/uuid"
)

// ScopeLevel is the breadth of records a caller may see.
type ScopeLevel string

const (
	ScopeAdmin     ScopeLevel = "admin" // no filter
	ScopeTenant    ScopeLevel = "tenant"
	ScopeWorkspace ScopeLevel = "workspace"
	ScopeUser      ScopeLevel = "user"
)

// ScopeFilter is an opaque access constraint applied to every search
// and persistence call. Consumers pass it through without
// interpreting its internals; only the repository layer applies it.
type ScopeFilter struct {
	Level       ScopeLevel `json:"level"`
	UserID      uuid.UUID  `json:"user_id"`
	TenantID    uuid.UUID  `json:"tenant_id,omitempty"`
	WorkspaceID uuid.UUID  `json:"workspace_id,omitempty"`
}

// Policy computes the scope filter for a user. It is injected
// explicitly into every resolver/search call, never looked up through
// ambient global state.
type Policy interface {
	ScopeFor(ctx context.Context, userID uuid.UUID) (ScopeFilter, error)
}

// UserScope is the narrowest filter: the caller sees only their own
// records. Used as the degraded default when the policy lookup fails.
func UserScope(userID uuid.UUID) ScopeFilter {
	return ScopeFilter{Level: ScopeUser, UserID: userID}
}
