package specification

import (
	"ai-taskagent-be/pkg/agent/access"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByModelType filters records by their model type (customer, product, ...).
type ByModelType struct {
	ModelType string
}

func (s ByModelType) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("model_type = ?", s.ModelType)
}

// ByUserID filters by owning user
type ByUserID struct {
	UserID uuid.UUID
}

func (s ByUserID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserID)
}

// NameSearch applies a case-insensitive substring match on the record name.
type NameSearch struct {
	Query string
}

func (s NameSearch) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("name ILIKE ?", "%"+s.Query+"%")
}

// ScopeBy translates an access scope into row filters. Admin scope sees
// everything; every other level is isolated to the owning user.
type ScopeBy struct {
	Scope access.ScopeFilter
}

func (s ScopeBy) Apply(db *gorm.DB) *gorm.DB {
	if s.Scope.Level == access.ScopeAdmin {
		return db
	}
	return db.Where("user_id = ?", s.Scope.UserID)
}
