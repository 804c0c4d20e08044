package storage

import (
	"context"
	"sync"
	"time"

	"github.com/chatmux/chatmux/internal/config"
	"github.com/chatmux/chatmux/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// MemoryStorage implements storage using in-memory cache
type MemoryStorage struct {
	// mu serializes read-modify-write of session values
	mu       sync.Mutex
	sessions *cache.Cache
	logger   *logrus.Logger
}

func NewMemoryStorage(cfg *config.MemoryConfig, logger *logrus.Logger) *MemoryStorage {
	expiration := cfg.DefaultExpiration
	if expiration <= 0 {
		expiration = cache.NoExpiration
	}
	return &MemoryStorage{
		sessions: cache.New(expiration, cfg.CleanupInterval),
		logger:   logger,
	}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func (m *MemoryStorage) Create(ctx context.Context, sessionID, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.sessions.Get(sessionKey(sessionID)); found {
		return nil
	}
	m.sessions.SetDefault(sessionKey(sessionID), &Session{
		ID:        sessionID,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *MemoryStorage) AppendTurns(ctx context.Context, sessionID string, turns ...models.ConversationTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := &Session{ID: sessionID, CreatedAt: time.Now().UTC()}
	if val, found := m.sessions.Get(sessionKey(sessionID)); found {
		session = val.(*Session)
	}
	session.Turns = append(session.Turns, turns...)

	// SetDefault refreshes the expiration on every write
	m.sessions.SetDefault(sessionKey(sessionID), session)
	return nil
}

func (m *MemoryStorage) GetRecent(ctx context.Context, sessionID string, limit int) ([]models.ConversationTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, found := m.sessions.Get(sessionKey(sessionID))
	if !found {
		return []models.ConversationTurn{}, nil
	}
	return recent(val.(*Session).Turns, limit), nil
}

func (m *MemoryStorage) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, found := m.sessions.Get(sessionKey(sessionID))
	if !found {
		return nil, ErrSessionNotFound
	}
	session := *val.(*Session)
	session.Turns = recent(session.Turns, 0)
	return &session, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.sessions.Get(sessionKey(sessionID)); !found {
		return false, nil
	}
	m.sessions.Delete(sessionKey(sessionID))
	return true, nil
}

func (m *MemoryStorage) Close() error {
	m.sessions.Flush()
	return nil
}
