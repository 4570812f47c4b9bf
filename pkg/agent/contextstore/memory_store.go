package contextstore

import (
	"context"
	"encoding/json"
	"time"

	"ai-taskagent-be/pkg/agent/store"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in an in-process cache. Used for
// development and tests when no Redis is available. Sessions are
// stored as serialized JSON so the round-trip behavior is identical
// to the Redis store.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	return &MemoryStore{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*store.Session, error) {
	raw, found := m.cache.Get(sessionID)
	if !found {
		return nil, store.ErrSessionNotFound
	}

	var session store.Session
	if err := json.Unmarshal(raw.([]byte), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (m *MemoryStore) Save(_ context.Context, session *store.Session) error {
	session.UpdatedAt = time.Now()

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	m.cache.Set(session.ID, data, cache.DefaultExpiration)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.cache.Delete(sessionID)
	return nil
}
