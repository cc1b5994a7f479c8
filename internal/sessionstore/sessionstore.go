// Package sessionstore хранит сессии бэкенда между перезапусками сервиса.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/backend"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
)

// SessionTTL ограничивает срок хранения сессии временем жизни refresh-токена.
const SessionTTL = 30 * 24 * time.Hour

const keyPrefix = "kigalihub:session:"

// Memory хранит сессии в памяти процесса.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

var (
	_ backend.SessionStorage = (*Memory)(nil)
	_ backend.SessionStorage = (*Redis)(nil)
)

// NewMemory создаёт хранилище в памяти.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*model.Session)}
}

// Load возвращает копию сохранённой сессии или nil.
func (m *Memory) Load(_ context.Context, key string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

// Save сохраняет копию сессии.
func (m *Memory) Save(_ context.Context, key string, s *model.Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	c := *s

	m.mu.Lock()
	m.sessions[key] = &c
	m.mu.Unlock()
	return nil
}

// Delete удаляет сессию.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()
	return nil
}

type redisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis хранит сессии в Redis под ключами kigalihub:session:<key>.
type Redis struct {
	rdb redisClient
	ttl time.Duration
}

// NewRedis создаёт хранилище поверх клиента Redis.
func NewRedis(rdb redisClient) *Redis {
	return &Redis{rdb: rdb, ttl: SessionTTL}
}

// Connect разбирает адрес Redis и проверяет соединение.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis parse: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Key возвращает ключ Redis для сессии браузера.
func Key(key string) string {
	return keyPrefix + key
}

// Load возвращает сохранённую сессию или nil.
func (r *Redis) Load(ctx context.Context, key string) (*model.Session, error) {
	raw, err := r.rdb.Get(ctx, Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Save сохраняет сессию на время жизни refresh-токена.
func (r *Redis) Save(ctx context.Context, key string, s *model.Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, Key(key), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete удаляет сессию.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, Key(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
