package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chatmux/chatmux/internal/config"
	"github.com/chatmux/chatmux/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisStorage implements storage using Redis
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisStorage(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		ttl:    cfg.SessionTTL,
		logger: logger,
	}, nil
}

func metaKey(sessionID string) string  { return fmt.Sprintf("session:%s:meta", sessionID) }
func turnsKey(sessionID string) string { return fmt.Sprintf("session:%s:turns", sessionID) }

func (r *RedisStorage) Create(ctx context.Context, sessionID, ownerID string) error {
	key := metaKey(sessionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "created_at", time.Now().UTC().Format(time.RFC3339Nano))
		if ownerID != "" {
			pipe.HSetNX(ctx, key, "owner_id", ownerID)
		}
		r.expire(ctx, pipe, key)
		return nil
	})
	return err
}

func (r *RedisStorage) AppendTurns(ctx context.Context, sessionID string, turns ...models.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return err
		}
		values = append(values, data)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, metaKey(sessionID), "created_at", time.Now().UTC().Format(time.RFC3339Nano))
		pipe.RPush(ctx, turnsKey(sessionID), values...)
		r.expire(ctx, pipe, metaKey(sessionID))
		r.expire(ctx, pipe, turnsKey(sessionID))
		return nil
	})
	return err
}

func (r *RedisStorage) GetRecent(ctx context.Context, sessionID string, limit int) ([]models.ConversationTurn, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}

	raw, err := r.client.LRange(ctx, turnsKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeTurns(raw)
}

func (r *RedisStorage) Get(ctx context.Context, sessionID string) (*Session, error) {
	meta, err := r.client.HGetAll(ctx, metaKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, ErrSessionNotFound
	}

	turns, err := r.GetRecent(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}

	session := &Session{ID: sessionID, OwnerID: meta["owner_id"], Turns: turns}
	if ts, err := time.Parse(time.RFC3339Nano, meta["created_at"]); err == nil {
		session.CreatedAt = ts
	}
	return session, nil
}

func (r *RedisStorage) Delete(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Del(ctx, metaKey(sessionID), turnsKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

func (r *RedisStorage) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
}

func decodeTurns(raw []string) ([]models.ConversationTurn, error) {
	turns := make([]models.ConversationTurn, 0, len(raw))
	for _, item := range raw {
		var turn models.ConversationTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("failed to decode turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
