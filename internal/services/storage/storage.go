package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatmux/chatmux/internal/config"
	"github.com/chatmux/chatmux/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrSessionNotFound is returned for unknown session ids
var ErrSessionNotFound = errors.New("session not found")

// Session is a conversation and its metadata
type Session struct {
	ID        string                    `json:"session_id"`
	OwnerID   string                    `json:"owner_id,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
	Turns     []models.ConversationTurn `json:"turns"`
}

// SessionStore persists conversation turns keyed by session id
type SessionStore interface {
	// Create registers an empty session; an existing session is left untouched
	Create(ctx context.Context, sessionID, ownerID string) error
	// AppendTurns adds turns in order, creating the session if needed
	AppendTurns(ctx context.Context, sessionID string, turns ...models.ConversationTurn) error
	// GetRecent returns up to limit of the newest turns, oldest first
	GetRecent(ctx context.Context, sessionID string, limit int) ([]models.ConversationTurn, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	// Delete reports whether the session existed
	Delete(ctx context.Context, sessionID string) (bool, error)
	Close() error
}

// Manager manages different storage backends
type Manager struct {
	storage SessionStore
	logger  *logrus.Logger
}

// NewManager creates a new storage manager
func NewManager(cfg *config.StorageConfig, logger *logrus.Logger) (*Manager, error) {
	var storage SessionStore

	switch cfg.Type {
	case "redis":
		redisStorage, err := NewRedisStorage(&cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		storage = redisStorage
	case "memory":
		storage = NewMemoryStorage(&cfg.Memory, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}

	logger.WithField("type", cfg.Type).Info("Session storage initialized")

	return &Manager{
		storage: storage,
		logger:  logger,
	}, nil
}

// NewManagerWith wraps an existing backend
func NewManagerWith(storage SessionStore, logger *logrus.Logger) *Manager {
	return &Manager{storage: storage, logger: logger}
}

// Delegate methods to underlying storage
func (m *Manager) Create(ctx context.Context, sessionID, ownerID string) error {
	return m.storage.Create(ctx, sessionID, ownerID)
}

func (m *Manager) AppendTurns(ctx context.Context, sessionID string, turns ...models.ConversationTurn) error {
	return m.storage.AppendTurns(ctx, sessionID, turns...)
}

func (m *Manager) GetRecent(ctx context.Context, sessionID string, limit int) ([]models.ConversationTurn, error) {
	return m.storage.GetRecent(ctx, sessionID, limit)
}

func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	return m.storage.Get(ctx, sessionID)
}

func (m *Manager) Delete(ctx context.Context, sessionID string) (bool, error) {
	return m.storage.Delete(ctx, sessionID)
}

func (m *Manager) Close() error {
	return m.storage.Close()
}

// recent returns the newest limit turns; limit <= 0 means all
func recent(turns []models.ConversationTurn, limit int) []models.ConversationTurn {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]models.ConversationTurn, len(turns))
	copy(out, turns)
	return out
}
