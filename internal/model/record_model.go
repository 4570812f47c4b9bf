package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Record struct {
	Id         uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ModelType  string            `gorm:"type:varchar(64);not null;index"`
	Name       string            `gorm:"type:varchar(255);not null;index"`
	Attributes datatypes.JSONMap `gorm:"type:jsonb"`
	UserId     uuid.UUID         `gorm:"type:uuid;not null;index"`
	CreatedAt  time.Time         `gorm:"autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime"`
	DeletedAt  gorm.DeletedAt    `gorm:"index"`
}

func (Record) TableName() string {
	return "records"
}
