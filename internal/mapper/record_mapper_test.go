package mapper

import (
	"testing"
	"time"

	"ai-taskagent-be/internal/entity"
	"ai-taskagent-be/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestRecordMapperToEntity(t *testing.T) {
	m := NewRecordMapper()

	assert.Nil(t, m.ToEntity(nil))

	now := time.Now()
	rec := &model.Record{
		Id:         uuid.New(),
		ModelType:  "product",
		Name:       "Espresso Beans 1kg",
		Attributes: datatypes.JSONMap{"price": 24.50},
		UserId:     uuid.New(),
		CreatedAt:  now,
		DeletedAt:  gorm.DeletedAt{Time: now, Valid: true},
	}

	e := m.ToEntity(rec)
	assert.Equal(t, rec.Id, e.Id)
	assert.Equal(t, "product", e.ModelType)
	assert.Equal(t, 24.50, e.Attributes["price"])
	assert.True(t, e.IsDeleted)
	assert.NotNil(t, e.DeletedAt)
	assert.Nil(t, e.UpdatedAt, "zero UpdatedAt should map to nil")
}

func TestRecordMapperToModelSynthesizesDeletedAt(t *testing.T) {
	m := NewRecordMapper()

	e := &entity.Record{
		Id:         uuid.New(),
		ModelType:  "customer",
		Name:       "John Smith",
		Attributes: map[string]interface{}{"email": "john@example.com"},
		UserId:     uuid.New(),
		IsDeleted:  true,
	}

	rec := m.ToModel(e)
	assert.True(t, rec.DeletedAt.Valid, "IsDeleted without timestamp should still mark the row deleted")
	assert.Equal(t, "John Smith", rec.Name)
	assert.Equal(t, "john@example.com", rec.Attributes["email"])
}

func TestRecordMapperToEntities(t *testing.T) {
	m := NewRecordMapper()

	out := m.ToEntities([]*model.Record{
		{Id: uuid.New(), Name: "a"},
		{Id: uuid.New(), Name: "b"},
	})
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Name)
	assert.Equal(t, "b", out[1].Name)
}
