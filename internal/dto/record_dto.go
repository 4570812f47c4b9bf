package dto

import (
	"time"

	"github.com/google/uuid"
)

// PublishEmbedRecordMessage is the embed-pipeline payload.
type PublishEmbedRecordMessage struct {
	RecordId uuid.UUID `json:"record_id"`
}

type CreateRecordRequest struct {
	ModelType  string         `json:"model_type" validate:"required,oneof=customer product invoice"`
	Name       string         `json:"name" validate:"required"`
	Attributes map[string]any `json:"attributes"`
}

type CreateRecordResponse struct {
	Id uuid.UUID `json:"id"`
}

type ShowRecordResponse struct {
	Id         uuid.UUID      `json:"id"`
	ModelType  string         `json:"model_type"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  *time.Time     `json:"updated_at"`
}

type ListRecordsRequest struct {
	ModelType string `query:"model_type"`
	Query     string `query:"q"`
	Limit     int    `query:"limit"`
	Offset    int    `query:"offset"`
}
