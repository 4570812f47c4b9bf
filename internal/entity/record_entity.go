package entity

import (
	"time"

	"github.com/google/uuid"
)

// Record model types known to the agent.
const (
	ModelTypeCustomer = "customer"
	ModelTypeProduct  = "product"
	ModelTypeInvoice  = "invoice"
)

type Record struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ModelType  string
	Name       string
	Attributes map[string]interface{}
	UserId     uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt  time.Time
	UpdatedAt  *time.Time
	DeletedAt  *time.Time
	IsDeleted  bool
}
