package dto

import (
	"time"

	"ai-taskagent-be/pkg/agent/store"

	"github.com/google/uuid"
)

type SendMessageRequest struct {
	SessionId uuid.UUID `json:"session_id"`
	Message   string    `json:"message" validate:"required"`
}

type SendMessageResponse struct {
	SessionId      uuid.UUID      `json:"session_id"`
	Strategy       string         `json:"strategy"`
	Response       string         `json:"response"`
	Data           map[string]any `json:"data,omitempty"`
	PendingChoices []store.Choice `json:"pending_choices,omitempty"`
	ContextReset   bool           `json:"context_reset,omitempty"`
}

type CreateAgentSessionRequest struct {
	Title string `json:"title"`
}

type CreateAgentSessionResponse struct {
	Id uuid.UUID `json:"id"`
}

type AgentSessionResponse struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type AgentMessageResponse struct {
	Id        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	Chat      string    `json:"chat"`
	Strategy  string    `json:"strategy,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AgentTranscriptResponse struct {
	Session  AgentSessionResponse   `json:"session"`
	Messages []AgentMessageResponse `json:"messages"`
}
