package mapper

import (
	"testing"
	"time"

	"ai-taskagent-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestChatMessageMapperCarriesStrategy(t *testing.T) {
	m := NewChatMapper()

	msg := &entity.ChatMessage{
		Id:            uuid.New(),
		Chat:          "Invoice created for John Smith.",
		Role:          "assistant",
		Strategy:      "guided_flow",
		ChatSessionId: uuid.New(),
		CreatedAt:     time.Now(),
	}

	row := m.ChatMessageToModel(msg)
	assert.Equal(t, "guided_flow", row.Strategy)

	back := m.ChatMessageToEntity(row)
	assert.Equal(t, "assistant", back.Role)
	assert.Equal(t, "guided_flow", back.Strategy)
	assert.Equal(t, msg.ChatSessionId, back.ChatSessionId)
}
